// process.go - one user-space actor: its stack, registers, mailbox, and
// the big per-opcode dispatch that implements spec.md §4.4's tick().
//
// Grounded on cpu_ie32.go's Execute() main loop (fetch/decode/execute,
// default-case invalid-opcode handling) restructured into a single-opcode
// tick() that returns control to a scheduler worker between every
// instruction instead of running to completion, so many Processes can
// share a small pool of OS threads (§4.6).

package viua

import "fmt"

// ProcessFlag mirrors spec.md §3's Process flags.
type ProcessFlag uint8

const (
	FlagFinished ProcessFlag = 1 << iota
	FlagSuspended
	FlagJoinable
	FlagHidden
)

const staticRegisterSetSize = 64

// Process is one actor: isolated registers, its own stack, a mailbox, and
// whatever Kernel-level bookkeeping (pid, priority, watchdog) spec.md §3
// assigns it.
type Process struct {
	PID      uint64
	Priority int
	flags    ProcessFlag

	stack   *Stack
	globals *RegisterSet
	statics map[string]*RegisterSet

	Mailbox *Mailbox

	kernel *Kernel
	image  *Image

	WatchdogFn string

	TerminatingException *Exception

	// suspend/ffi implement spec.md §4.6's park-off-the-runqueue model: a
	// tick that can't finish a `call` (FFI), `join`, or `receive` inline
	// sets suspend instead of blocking the scheduler worker that ticked
	// it. FFI hands off to the dedicated FFI scheduler (ffi.go); join and
	// receive hand off to a one-shot goroutine (process_exec2.go's
	// parkOnJoin/parkOnReceive) that requeues the process once it has a
	// result.
	suspend SuspendReason
	ffi     *pendingFFI
}

// SuspendReason classifies why a process is not immediately requeued
// after a tick: a normal tick requeues straight away, while any other
// reason means some goroutine outside the scheduler pool is holding the
// process until it has a result worth resuming with.
type SuspendReason int

const (
	SuspendNone SuspendReason = iota
	SuspendFFI
	SuspendJoin
	SuspendReceive
)

// NewProcess allocates a process ready to start at entry.EntryAt within
// img, with entry.LocalSize locals in its first frame.
func NewProcess(pid uint64, k *Kernel, img *Image, entry FunctionEntry) *Process {
	p := &Process{
		PID:     pid,
		globals: NewRegisterSet(256),
		statics: make(map[string]*RegisterSet),
		Mailbox: NewMailbox(),
		kernel:  k,
		image:   img,
		stack:   NewStack(),
	}
	f := NewFrame(entry.Name, 0, entry.LocalSize)
	p.stack.Frames = append(p.stack.Frames, f)
	p.stack.IP = entry.EntryAt
	return p
}

func (p *Process) Flag(f ProcessFlag) bool     { return p.flags&f != 0 }
func (p *Process) setFlag(f ProcessFlag)       { p.flags |= f }
func (p *Process) clearFlag(f ProcessFlag)     { p.flags &^= f }
func (p *Process) Finished() bool              { return p.Flag(FlagFinished) }

func (p *Process) staticsFor(fn string) *RegisterSet {
	rs, ok := p.statics[fn]
	if !ok {
		rs = NewRegisterSet(staticRegisterSetSize)
		p.statics[fn] = rs
	}
	return rs
}

func (p *Process) registerSetFor(f *Frame, set RegisterSetID) (*RegisterSet, error) {
	switch set {
	case RegisterSetLocal:
		return f.Locals, nil
	case RegisterSetStatic:
		return p.staticsFor(f.FunctionName), nil
	case RegisterSetGlobal:
		return p.globals, nil
	default:
		return nil, NewVMError(ErrType, "undefined register set selector %d", set)
	}
}

// resolveSlot turns a decoded RegisterOperand into the concrete register
// set and index it addresses, honoring direct / register-indirect /
// pointer-dereference access modes (spec.md §4.1).
func (p *Process) resolveSlot(op RegisterOperand) (*RegisterSet, int, error) {
	frame, err := p.stack.Current()
	if err != nil {
		return nil, 0, err
	}
	rs, err := p.registerSetFor(frame, op.Set)
	if err != nil {
		return nil, 0, err
	}
	switch op.Mode {
	case AccessDirect:
		return rs, op.Index, nil
	case AccessRegister:
		v, err := rs.Get(op.Index)
		if err != nil {
			return nil, 0, err
		}
		iv, ok := v.(Integer)
		if !ok {
			return nil, 0, NewVMError(ErrType, "register-indirect operand must be Integer, got %s", v.TypeName())
		}
		return rs, int(iv), nil
	case AccessPointer:
		v, err := rs.Get(op.Index)
		if err != nil {
			return nil, 0, err
		}
		ptr, ok := v.(Pointer)
		if !ok {
			return nil, 0, NewVMError(ErrType, "pointer-dereference operand must be Pointer, got %s", v.TypeName())
		}
		if ptr.FrameDepth < 0 || ptr.FrameDepth >= len(p.stack.Frames) {
			return nil, 0, NewVMError(ErrOutOfRange, "dangling pointer: frame depth %d no longer exists", ptr.FrameDepth)
		}
		targetFrame := p.stack.Frames[ptr.FrameDepth]
		targetRS, err := p.registerSetFor(targetFrame, ptr.Set)
		if err != nil {
			return nil, 0, err
		}
		return targetRS, ptr.Index, nil
	default:
		return nil, 0, NewVMError(ErrType, "undefined access mode %d", op.Mode)
	}
}

func (p *Process) getOperand(op RegisterOperand) (Value, error) {
	rs, idx, err := p.resolveSlot(op)
	if err != nil {
		return nil, err
	}
	return rs.Get(idx)
}

func (p *Process) setOperand(op RegisterOperand, v Value) error {
	rs, idx, err := p.resolveSlot(op)
	if err != nil {
		return err
	}
	return rs.Set(idx, v)
}

func (p *Process) popOperand(op RegisterOperand) (Value, error) {
	rs, idx, err := p.resolveSlot(op)
	if err != nil {
		return nil, err
	}
	return rs.Pop(idx)
}

// storeResult writes v into dst unless the destination is void (the
// caller discarded the result, spec.md §4.1's `fetch_void`).
func (p *Process) storeResult(dst *RegisterOperand, v Value) error {
	if dst == nil {
		return nil
	}
	return p.setOperand(*dst, v)
}

func (p *Process) code() []byte { return p.image.Bytecode }

// tick executes exactly one opcode, per spec.md §4.4's nine steps.
func (p *Process) tick() error {
	prevIP := p.stack.IP

	dec := NewDecoder(p.code(), p.stack.IP)
	op, err := dec.FetchOpcode()
	nextIP := -1
	if err == nil {
		nextIP, err = p.execute(Op(op), dec)
	}

	if err != nil {
		if vmErr, ok := err.(*VMError); ok && IsFatal(vmErr) {
			return vmErr
		}
		p.installThrown(err)
	} else if nextIP >= 0 {
		p.stack.IP = nextIP
	} else {
		p.stack.IP = dec.Pos()
	}

	if len(p.stack.Frames) == 0 || p.Flag(FlagFinished) {
		p.setFlag(FlagFinished)
		return nil
	}

	if p.suspend != SuspendNone {
		p.setFlag(FlagSuspended)
		return nil
	}

	opcodeValue := Op(op)
	if p.stack.IP == prevIP && p.stack.Thrown == nil &&
		opcodeValue != OpReturn && opcodeValue != OpJoin && opcodeValue != OpReceive {
		p.stack.Thrown = NewException("InstructionUnchanged",
			fmt.Sprintf("opcode %s at offset %d did not advance the cursor", opcodeValue, prevIP))
	}

	if p.stack.Thrown != nil && p.stack.preparedFrameIsSet() {
		p.stack.discardPreparedFrame()
	}

	if p.stack.Thrown != nil {
		handled, err := p.unwind()
		if err != nil {
			return err
		}
		if !handled {
			p.TerminatingException = p.stack.Thrown
			p.setFlag(FlagFinished)
			return nil
		}
	}

	return nil
}

func (p *Process) installThrown(err error) {
	if vmErr, ok := err.(*VMError); ok {
		p.stack.Thrown = exceptionFromVMError(vmErr)
		return
	}
	p.stack.Thrown = NewException("RuntimeError", err.Error())
}

// unwind runs the algorithm in spec.md §4.5: find a catcher, pop frames
// down to its associated depth, install `caught`, and resume at the
// handler block. Returns handled=false if no catcher exists anywhere on
// the stack.
func (p *Process) unwind() (bool, error) {
	exc := p.stack.Thrown
	protos := p.kernel.prototypes
	tf, target, ok := findCatcher(p.stack, exc, protos)
	if !ok {
		return false, nil
	}
	for len(p.stack.Frames) > tf.AssociatedFrameDepth {
		f := p.stack.Frames[len(p.stack.Frames)-1]
		p.runDeferred(f)
		if _, err := p.stack.PopFrame(); err != nil {
			return false, err
		}
	}
	for {
		top := p.stack.TryFrames[len(p.stack.TryFrames)-1]
		p.stack.TryFrames = p.stack.TryFrames[:len(p.stack.TryFrames)-1]
		if top == tf {
			break
		}
		if len(p.stack.TryFrames) == 0 {
			break
		}
	}
	p.stack.Caught = exc
	p.stack.Thrown = nil
	p.stack.IP = p.stack.JumpBase + target.EntryAt
	return true, nil
}

// resumeAfterPark finishes a join/receive/FFI call that parked the process
// off a scheduler worker's runqueue (spec.md §4.6): install any resulting
// error as a thrown exception, unwind it if nothing on the stack catches
// it, then either report termination or hand the process back to the
// kernel's ready queue. Called from whichever goroutine observed the
// parked operation's result -- never a scheduler worker itself, since the
// whole point of parking is to free that worker to tick other processes.
func (p *Process) resumeAfterPark(opErr error) {
	if opErr != nil {
		p.installThrown(opErr)
	}
	if p.stack.Thrown != nil {
		handled, err := p.unwind()
		if err != nil {
			p.installThrown(err)
			p.TerminatingException = p.stack.Thrown
			p.setFlag(FlagFinished)
		} else if !handled {
			p.TerminatingException = p.stack.Thrown
			p.setFlag(FlagFinished)
		}
	}

	if p.Finished() {
		p.kernel.NotifyTerminated(p)
		p.Mailbox.Close()
		return
	}
	p.kernel.enqueueReady(p)
}

func (p *Process) runDeferred(f *Frame) {
	for i := len(f.Deferred) - 1; i >= 0; i-- {
		d := f.Deferred[i]
		p.invokeDeferred(d)
	}
}

// invokeDeferred runs a deferred call synchronously to completion before
// its owning frame is destroyed, swallowing (but logging, via the
// kernel's logger) any exception it raises -- a deferred cleanup call
// failing must not prevent the unwind already in progress from completing.
func (p *Process) invokeDeferred(d DeferredCall) {
	entry, ok := p.kernel.functions[d.FunctionName]
	if !ok {
		p.kernel.logger.Errorf("deferred call to undefined function %q", d.FunctionName)
		return
	}
	sub := NewStack()
	f := NewFrame(d.FunctionName, d.Arguments.Size(), entry.LocalSize)
	f.Arguments = d.Arguments
	sub.Frames = append(sub.Frames, f)
	sub.IP = entry.EntryAt
	saved := p.stack
	p.stack = sub
	for !p.Flag(FlagFinished) && len(p.stack.Frames) > 0 {
		if err := p.tick(); err != nil {
			p.kernel.logger.Errorf("deferred call %q failed: %v", d.FunctionName, err)
			break
		}
	}
	p.clearFlag(FlagFinished)
	p.stack = saved
}
