// kernel.go - global registries, process table, and the boot/spawn/join/
// teardown sequence.
//
// Grounded on coprocessor_manager.go's CoprocessorManager: a struct
// holding fixed registries (workers [7]*CoprocWorker, completions
// map[uint32]*CoprocCompletion guarded by a mutex) plus ticket allocation
// and drain-on-shutdown, generalised here from "coprocessor tickets" to
// "function/block/prototype registries and a pid-indexed process table".

package viua

import (
	"fmt"
	"sync"
)

// ForeignFunction is a Go closure registered as a callable foreign
// function, spec.md §4.7: it receives a Frame and the process's static
// and global register sets, and writes its result (if any) into
// frame.Locals[0] the way native return values land in register 0.
type ForeignFunction func(f *Frame, statics, globals *RegisterSet) error

// Kernel owns every registry a running image needs: symbol tables built
// at import time (read-only thereafter, guarded by a RWMutex per spec.md
// §5), the pid allocator, and the live process table.
type Kernel struct {
	Config Config
	logger Logger

	mu          sync.RWMutex
	functions   map[string]FunctionEntry
	blocks      map[string]BlockEntry
	prototypes  map[string]*Prototype
	foreignFns  map[string]ForeignFunction

	image *Image

	procMu    sync.Mutex
	processes map[uint64]*Process
	nextPID   uint64

	terminating  bool
	exitCode     int
	termException *Exception

	joinWaiters map[uint64][]chan joinResult

	Ready chan *Process
}

type joinResult struct {
	value Value
	exc   *Exception
	err   error
}

// NewKernel constructs an empty kernel; Boot loads and registers an
// image's symbols into it.
func NewKernel(cfg Config, logger Logger) *Kernel {
	if logger == nil {
		logger = nullLogger{}
	}
	return &Kernel{
		Config:      cfg,
		logger:      logger,
		functions:   make(map[string]FunctionEntry),
		blocks:      make(map[string]BlockEntry),
		prototypes:  make(map[string]*Prototype),
		foreignFns:  make(map[string]ForeignFunction),
		processes:   make(map[uint64]*Process),
		joinWaiters: make(map[uint64][]chan joinResult),
		nextPID:     1,
		Ready:       make(chan *Process, 4096),
	}
}

// Boot registers an image's function and block tables and records it as
// the kernel's active image, per spec.md §2's "Kernel boots → loads
// bytecode image → seeds an initial Process".
func (k *Kernel) Boot(img *Image) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.image = img
	for _, fn := range img.Functions {
		k.functions[fn.Name] = fn
	}
	for _, bl := range img.Blocks {
		k.blocks[bl.Name] = bl
	}
	return nil
}

// RegisterForeignFunction installs a Go closure as a callable foreign
// function, the adapter point FFI call opcodes resolve against.
func (k *Kernel) RegisterForeignFunction(name string, fn ForeignFunction) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.foreignFns[name] = fn
}

func (k *Kernel) lookupFunction(name string) (FunctionEntry, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	fn, ok := k.functions[name]
	return fn, ok
}

func (k *Kernel) lookupBlock(name string) (BlockEntry, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	bl, ok := k.blocks[name]
	return bl, ok
}

func (k *Kernel) lookupForeignFunction(name string) (ForeignFunction, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	fn, ok := k.foreignFns[name]
	return fn, ok
}

func (k *Kernel) registerPrototype(proto *Prototype) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.prototypes[proto.Name] = proto
}

// Spawn allocates a new pid and process activated at entry, registering
// it in the process table. It does not schedule it; the caller (the
// `process` opcode handler, or SpawnMain for the entry process) hands it
// to a Scheduler.
func (k *Kernel) Spawn(entry FunctionEntry) *Process {
	k.procMu.Lock()
	pid := k.nextPID
	k.nextPID++
	k.procMu.Unlock()

	p := NewProcess(pid, k, k.image, entry)

	k.procMu.Lock()
	k.processes[pid] = p
	k.procMu.Unlock()
	return p
}

// SpawnMain builds the entry process for fn, used once at boot.
func (k *Kernel) SpawnMain(fn string) (*Process, error) {
	entry, ok := k.lookupFunction(fn)
	if !ok {
		return nil, NewVMError(ErrUndefinedSymbol, "entry function %q not found", fn)
	}
	return k.Spawn(entry), nil
}

// SpawnWithArgs is Spawn, but installs a pre-built Arguments register set
// as the entry frame's arguments (the `process` opcode's prepared frame)
// instead of an empty one.
func (k *Kernel) SpawnWithArgs(entry FunctionEntry, args *RegisterSet) *Process {
	p := k.Spawn(entry)
	p.stack.Frames[0].Arguments = args
	return p
}

// enqueueReady hands a process to whichever scheduler worker next polls
// Ready; used both for the boot process and for every `process`-spawned
// child.
func (k *Kernel) enqueueReady(p *Process) {
	k.Ready <- p
}

func (k *Kernel) Process(pid uint64) (*Process, bool) {
	k.procMu.Lock()
	defer k.procMu.Unlock()
	p, ok := k.processes[pid]
	return p, ok
}

// NotifyTerminated records p's outcome and wakes anyone joined on it,
// called by the scheduler once a process finishes.
func (k *Kernel) NotifyTerminated(p *Process) {
	k.procMu.Lock()
	waiters := k.joinWaiters[p.PID]
	delete(k.joinWaiters, p.PID)
	k.procMu.Unlock()

	result := joinResult{value: p.stack.ReturnValue, exc: p.TerminatingException}
	for _, ch := range waiters {
		ch <- result
		close(ch)
	}

	if p.TerminatingException == nil {
		return
	}

	if p.WatchdogFn != "" {
		k.spawnWatchdog(p)
		return
	}

	if !p.Flag(FlagHidden) {
		k.logger.Errorf("process %d terminated with uncaught exception: %s", p.PID, p.TerminatingException.Str())
		k.setExitCode(1)
	}
}

// spawnWatchdog implements spec.md §4.5's unwind step 3: a process that
// dies with no catcher and a registered watchdog doesn't report a plain
// termination -- the kernel instead spawns the watchdog function with the
// terminating exception as its sole argument, the way a supervisor
// inherits a failed worker's error.
func (k *Kernel) spawnWatchdog(p *Process) {
	entry, ok := k.lookupFunction(p.WatchdogFn)
	if !ok {
		k.logger.Errorf("process %d: watchdog %q is not a registered function", p.PID, p.WatchdogFn)
		k.setExitCode(1)
		return
	}
	args := NewRegisterSet(1)
	_ = args.Set(0, p.TerminatingException)
	child := k.SpawnWithArgs(entry, args)
	k.logger.Infof("process %d: terminated with uncaught exception, spawning watchdog %q as process %d", p.PID, p.WatchdogFn, child.PID)
	k.enqueueReady(child)
}

// awaitTermination registers a waiter channel for pid, called by the
// `join` opcode handler before suspending. If the process has already
// finished, it returns the result immediately via the returned channel
// (pre-filled), matching a non-blocking fast path.
func (k *Kernel) awaitTermination(pid uint64) <-chan joinResult {
	ch := make(chan joinResult, 1)
	k.procMu.Lock()
	target, ok := k.processes[pid]
	if ok && target.Flag(FlagFinished) {
		k.procMu.Unlock()
		ch <- joinResult{value: target.stack.ReturnValue, exc: target.TerminatingException}
		close(ch)
		return ch
	}
	if !ok {
		k.procMu.Unlock()
		ch <- joinResult{err: NewVMError(ErrUndefinedSymbol, "join of unknown process %d", pid)}
		close(ch)
		return ch
	}
	k.joinWaiters[pid] = append(k.joinWaiters[pid], ch)
	k.procMu.Unlock()
	return ch
}

func (k *Kernel) setExitCode(code int) {
	k.procMu.Lock()
	defer k.procMu.Unlock()
	if !k.terminating {
		k.exitCode = code
	}
}

// Halt sets the kernel's terminating flag, spec.md §4.5's `halt`
// instruction.
func (k *Kernel) Halt(code int) {
	k.procMu.Lock()
	defer k.procMu.Unlock()
	k.terminating = true
	k.exitCode = code
}

func (k *Kernel) ExitCode() int {
	k.procMu.Lock()
	defer k.procMu.Unlock()
	return k.exitCode
}

func (k *Kernel) Terminating() bool {
	k.procMu.Lock()
	defer k.procMu.Unlock()
	return k.terminating
}

// shouldStop reports whether the scheduler pool has nothing left to do:
// either `halt` fired, or every spawned process has finished. Polled by
// idle scheduler workers (scheduler.go) deciding whether to return instead
// of continuing to wait on the ready queue.
func (k *Kernel) shouldStop() bool {
	k.procMu.Lock()
	terminating := k.terminating
	live := 0
	for _, p := range k.processes {
		if !p.Finished() {
			live++
		}
	}
	k.procMu.Unlock()
	return terminating || live == 0
}

// Run boots img, spawns its entry function, and drives it to completion on
// a scheduler pool of the given size (0 means runtime.NumCPU()), the
// sequence spec.md §2 describes: "Kernel boots -> loads bytecode image ->
// seeds an initial Process with frame for entry function -> dispatches
// processes to schedulers." Returns the process exit code (spec.md §6):
// the kernel's exit code, unless the entry process returned cleanly with
// an Integer in register 0, which overrides it.
func (k *Kernel) Run(img *Image, entryFn string, numSchedulers, numFFISchedulers int) (int, error) {
	if err := k.Boot(img); err != nil {
		return 1, err
	}
	main, err := k.SpawnMain(entryFn)
	if err != nil {
		return 1, err
	}
	pool := NewSchedulerPool(k, numSchedulers, numFFISchedulers)
	pool.Start()
	k.enqueueReady(main)
	exitCode := pool.Wait()

	if main.TerminatingException == nil {
		if iv, ok := main.stack.ReturnValue.(Integer); ok {
			return int(iv), nil
		}
	}
	return exitCode, nil
}

func (k *Kernel) String() string {
	return fmt.Sprintf("Kernel{functions=%d, processes=%d}", len(k.functions), len(k.processes))
}
