// scheduler.go - the fixed pool of OS threads that time-slices Processes
// (spec.md §4.6).
//
// Grounded on coprocessor_manager.go + coproc_worker_ie32.go: the teacher
// already runs each coprocessor core on its own goroutine, tracks pending
// work with a mutex-guarded map, and parks callers on a poll/wait/timeout
// loop. SchedulerPool generalises "one goroutine per foreign CPU, tickets
// keyed by request" into "a fixed pool of goroutines, each draining a
// runqueue of *Process by ticking one opcode at a time", with idle
// workers stealing backlog from the busiest sibling instead of coprocessor
// tickets being polled.

package viua

import (
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// SchedulerPool owns the fixed set of scheduler workers and the dedicated
// FFI scheduler pool they hand foreign calls off to.
type SchedulerPool struct {
	kernel  *Kernel
	workers []*schedulerWorker
	ffi     *ffiSchedulerPool
	eg      *errgroup.Group
}

// NewSchedulerPool builds a pool with numWorkers main schedulers and
// numFFIWorkers dedicated FFI schedulers. numWorkers <= 0 defaults to
// runtime.NumCPU(), matching the teacher's host-core sizing in
// runtime_status.go's CPU selection (and spec.md §6's default scheduler
// count).
func NewSchedulerPool(k *Kernel, numWorkers, numFFIWorkers int) *SchedulerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if numFFIWorkers <= 0 {
		numFFIWorkers = 2
	}
	pool := &SchedulerPool{kernel: k}
	pool.ffi = newFFISchedulerPool(k, numFFIWorkers)
	for i := 0; i < numWorkers; i++ {
		pool.workers = append(pool.workers, newSchedulerWorker(i, pool))
	}
	return pool
}

// Start launches every worker goroutine under a shared errgroup, the same
// fan-out-and-drain shape go-probe uses for its worker pools. Start does
// not block; call Wait to run until the image halts or every process has
// terminated.
func (pool *SchedulerPool) Start() {
	pool.eg = &errgroup.Group{}
	for _, w := range pool.workers {
		w := w
		pool.eg.Go(func() error {
			w.run()
			return nil
		})
	}
}

// Wait blocks until every scheduler worker has drained and shut down the
// FFI pool behind it, then returns the kernel's exit code (spec.md §6).
func (pool *SchedulerPool) Wait() int {
	pool.eg.Wait() // workers never return an error; Halt/exit code drive shutdown instead
	pool.ffi.stop()
	return pool.kernel.ExitCode()
}

// schedulerWorker is one OS-thread-equivalent: a goroutine draining its
// own runqueue in round-robin order, falling back to the kernel's shared
// Ready queue (newly spawned or newly joined processes) and then to
// stealing from a busier sibling before idling.
type schedulerWorker struct {
	id   int
	pool *SchedulerPool

	mu       sync.Mutex
	runqueue []*Process
}

func newSchedulerWorker(id int, pool *SchedulerPool) *schedulerWorker {
	return &schedulerWorker{id: id, pool: pool}
}

func (w *schedulerWorker) enqueue(p *Process) {
	w.mu.Lock()
	w.runqueue = append(w.runqueue, p)
	w.mu.Unlock()
}

func (w *schedulerWorker) len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.runqueue)
}

// dequeue pops the head of this worker's runqueue, round-robin style.
func (w *schedulerWorker) dequeue() (*Process, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.runqueue) == 0 {
		return nil, false
	}
	p := w.runqueue[0]
	w.runqueue = w.runqueue[1:]
	return p, true
}

// steal removes up to half of this worker's backlog for a starving
// sibling, the same load-spreading shape as coprocessor_manager.go's
// ticket table, generalised from "a ticket per request" to "a process per
// runqueue slot".
func (w *schedulerWorker) steal() []*Process {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := len(w.runqueue) / 2
	if n == 0 {
		return nil
	}
	stolen := w.runqueue[:n:n]
	w.runqueue = w.runqueue[n:]
	return stolen
}

const idleRebalanceThreshold = 4
const idlePollInterval = 2 * time.Millisecond

// run is the worker's main loop: dequeue-or-steal-or-wait, tick once,
// route the result, repeat until the kernel has nothing left to run.
func (w *schedulerWorker) run() {
	idleTicks := 0
	for {
		p, ok := w.dequeue()
		if !ok {
			select {
			case p = <-w.pool.kernel.Ready:
				ok = true
			case <-time.After(idlePollInterval):
			}
		}
		if !ok {
			if w.pool.kernel.shouldStop() {
				return
			}
			idleTicks++
			if idleTicks >= idleRebalanceThreshold {
				w.rebalance()
				idleTicks = 0
			}
			continue
		}
		idleTicks = 0
		w.runOne(p)
	}
}

// runOne ticks one process exactly once and routes it: back onto this
// worker's own runqueue, off to the FFI scheduler, or reported terminated,
// per spec.md §4.4's tick() contract and §4.6's suspension points.
func (w *schedulerWorker) runOne(p *Process) {
	if err := p.tick(); err != nil {
		vmErr, ok := err.(*VMError)
		if !ok {
			vmErr = NewVMError(ErrStackCorruption, "%v", err)
		}
		p.TerminatingException = exceptionFromVMError(vmErr)
		p.setFlag(FlagFinished)
		w.pool.kernel.logger.Errorf("process %d: fatal error, halting: %v", p.PID, err)
		w.pool.kernel.Halt(1)
	}

	switch {
	case p.Finished():
		w.pool.kernel.NotifyTerminated(p)
		p.Mailbox.Close()
	case p.suspend == SuspendFFI:
		w.pool.ffi.submit(p)
	case p.suspend != SuspendNone:
		// SuspendJoin / SuspendReceive: a dedicated goroutine spawned by
		// opJoin/opReceive (process_exec2.go) is already parked waiting
		// for this process's result and will call kernel.enqueueReady
		// once it has one (spec.md §4.6). Nothing to do here.
	default:
		w.enqueue(p)
	}
}

// rebalance steals half the busiest sibling's backlog when this worker
// has gone idle for idleRebalanceThreshold polls in a row, spec.md §4.6's
// "migrates on imbalance: a scheduler with no work steals processes from
// the most-loaded scheduler".
func (w *schedulerWorker) rebalance() {
	var busiest *schedulerWorker
	max := 1
	for _, other := range w.pool.workers {
		if other == w {
			continue
		}
		if n := other.len(); n > max {
			max = n
			busiest = other
		}
	}
	if busiest == nil {
		return
	}
	for _, p := range busiest.steal() {
		w.enqueue(p)
	}
}
