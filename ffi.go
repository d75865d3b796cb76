// ffi.go - the foreign-function adapter and its dedicated scheduler pool
// (spec.md §4.7, §4.6's "FFI scheduler").
//
// Grounded on coprocessor_manager.go's createWorker/dispatch-by-type
// pattern: the teacher hands a request off to one of a fixed set of
// coprocessor worker goroutines and later collects its result via a
// ticket; this generalises "dispatch to one of 5 CPU cores" into
// "dispatch to a registered Go closure with a frame", and a ticket into
// the process itself being re-enqueued once its foreign call returns.

package viua

import "sync"

// pendingFFI is a parked foreign invocation: everything opCall already
// resolved (the callee, its frame, the caller's static/global register
// sets, and where the return value should land) before handing the
// process off to the FFI scheduler instead of calling fn directly.
type pendingFFI struct {
	fn            ForeignFunction
	frame         *Frame
	statics       *RegisterSet
	globals       *RegisterSet
	retPtr        *RegisterOperand
	returnAddress int
}

// ffiSchedulerPool is a small fixed pool of goroutines dedicated to
// running (possibly slow, possibly blocking) foreign calls, kept separate
// from the main scheduler pool so one slow native call cannot starve
// native process ticking (spec.md §4.6).
type ffiSchedulerPool struct {
	kernel *Kernel
	queue  chan *Process
	wg     sync.WaitGroup
}

func newFFISchedulerPool(k *Kernel, workers int) *ffiSchedulerPool {
	if workers < 1 {
		workers = 1
	}
	pool := &ffiSchedulerPool{kernel: k, queue: make(chan *Process, 4096)}
	pool.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go pool.run()
	}
	return pool
}

func (fp *ffiSchedulerPool) run() {
	defer fp.wg.Done()
	for p := range fp.queue {
		fp.invoke(p)
	}
}

// submit hands a process whose tick ended with p.suspend == SuspendFFI to
// this pool. Called by a main scheduler worker; it blocks only when 4096
// processes are already waiting in the queue for an FFI worker.
func (fp *ffiSchedulerPool) submit(p *Process) {
	fp.queue <- p
}

// invoke runs the parked call to completion, marshals its result (if any)
// into the caller's return register the way spec.md §4.7 describes, and
// requeues the process onto the kernel's ready queue for the main
// scheduler pool to pick back up.
func (fp *ffiSchedulerPool) invoke(p *Process) {
	call := p.ffi
	p.ffi = nil
	p.suspend = SuspendNone
	p.clearFlag(FlagSuspended)

	var opErr error
	if err := fp.callForeign(call); err != nil {
		opErr = err
	} else if call.retPtr != nil {
		if v, gerr := call.frame.Locals.Get(0); gerr == nil {
			opErr = p.storeResult(call.retPtr, v)
		}
	}
	p.stack.IP = call.returnAddress
	p.resumeAfterPark(opErr)
}

// callForeign invokes a foreign function, converting a Go panic into an
// ordinary Exception the way spec.md §4.7 requires uncaught native
// exceptions to surface as Exception Values rather than crashing the
// runtime.
func (fp *ffiSchedulerPool) callForeign(call *pendingFFI) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewVMError(ErrUncaught, "foreign function %q panicked: %v", call.frame.FunctionName, r)
		}
	}()
	return call.fn(call.frame, call.statics, call.globals)
}

func (fp *ffiSchedulerPool) stop() {
	close(fp.queue)
	fp.wg.Wait()
}
