// process_exec2.go - call/process/control/linking instruction families,
// continuing process_exec.go.
//
// Grounded the same way as process_exec.go: cpu_ie32.go's opcode switch,
// generalised to the spec's frame-preparation protocol (`frame` / `param`
// / `pamv` / `call`) and coprocessor_manager.go's dispatch-by-type pattern
// for the foreign-call path.

package viua

import "time"

// callTargetKind tags how a call/process instruction names its target.
type callTargetKind byte

const (
	targetByName callTargetKind = iota
	targetByRegister
)

func (p *Process) fetchCallTarget(dec *Decoder) (string, error) {
	raw, err := dec.FetchPrimitiveUint()
	if err != nil {
		return "", err
	}
	switch callTargetKind(raw) {
	case targetByName:
		return dec.FetchAtom()
	case targetByRegister:
		op, err := dec.FetchRegisterIndex()
		if err != nil {
			return "", err
		}
		v, err := p.getOperand(op)
		if err != nil {
			return "", err
		}
		switch fv := v.(type) {
		case FunctionReference:
			return fv.Name, nil
		case *Closure:
			return fv.FunctionName, nil
		default:
			return "", NewVMError(ErrType, "call target register must hold Function or Closure, got %s", v.TypeName())
		}
	default:
		return "", NewVMError(ErrType, "undefined call target kind %d", raw)
	}
}

// ---------------------------------------------------------------------
// calls
// ---------------------------------------------------------------------

func (p *Process) opFrame(dec *Decoder) error {
	nArgs, err := dec.FetchPrimitiveUint()
	if err != nil {
		return err
	}
	nLocals, err := dec.FetchPrimitiveUint()
	if err != nil {
		return err
	}
	return p.stack.PrepareFrame(&Frame{
		Arguments: NewRegisterSet(int(nArgs)),
		Locals:    NewRegisterSet(int(nLocals)),
	})
}

func (p *Process) preparedFrame() (*Frame, error) {
	if p.stack.preparedFrame == nil {
		return nil, NewVMError(ErrStackCorruption, "no frame prepared")
	}
	return p.stack.preparedFrame, nil
}

func (p *Process) opParam(dec *Decoder, move bool) error {
	idx, err := dec.FetchPrimitiveUint()
	if err != nil {
		return err
	}
	src, err := dec.FetchRegisterIndex()
	if err != nil {
		return err
	}
	f, err := p.preparedFrame()
	if err != nil {
		return err
	}
	var v Value
	if move {
		v, err = p.popOperand(src)
	} else {
		v, err = p.getOperand(src)
		if err == nil {
			v = v.Copy()
		}
	}
	if err != nil {
		return err
	}
	if err := f.Arguments.Set(int(idx), v); err != nil {
		return err
	}
	if move {
		return f.Arguments.Flag(int(idx), FlagMoved)
	}
	return nil
}

func (p *Process) opArg(dec *Decoder) error {
	dst, err := dec.FetchRegisterIndex()
	if err != nil {
		return err
	}
	idx, err := dec.FetchPrimitiveUint()
	if err != nil {
		return err
	}
	frame, err := p.stack.Current()
	if err != nil {
		return err
	}
	moved, err := frame.Arguments.IsFlagged(int(idx), FlagMoved)
	if err != nil {
		return err
	}
	var v Value
	if moved {
		v, err = frame.Arguments.Pop(int(idx))
	} else {
		v, err = frame.Arguments.Get(int(idx))
		if err == nil {
			v = v.Copy()
		}
	}
	if err != nil {
		return err
	}
	return p.setOperand(dst, v)
}

func (p *Process) opArgc(dec *Decoder) error {
	dst, err := dec.FetchRegisterIndex()
	if err != nil {
		return err
	}
	frame, err := p.stack.Current()
	if err != nil {
		return err
	}
	return p.setOperand(dst, Integer(frame.Arguments.Size()))
}

// opCall commits the prepared frame as either a native call (pushes a new
// Frame and jumps) or a foreign call. A foreign call does not run inline:
// it parks the process's pending invocation on p.ffi and sets p.suspend,
// so the scheduler worker that was ticking this process can hand it off
// to the dedicated FFI scheduler (ffi.go, spec.md §4.6/§4.7) instead of
// blocking its own goroutine on potentially slow native code. Returns the
// explicit next instruction pointer.
func (p *Process) opCall(dec *Decoder) (int, error) {
	ret, isVoid, err := dec.FetchRegisterOrVoid()
	if err != nil {
		return -1, err
	}
	var retPtr *RegisterOperand
	if !isVoid {
		retPtr = &ret
	}
	name, err := p.fetchCallTarget(dec)
	if err != nil {
		return -1, err
	}
	returnAddress := dec.Pos()

	if entry, ok := p.kernel.lookupFunction(name); ok {
		if _, err := p.stack.PushPreparedFrame(returnAddress, retPtr); err != nil {
			return -1, err
		}
		frame, _ := p.stack.Current()
		frame.FunctionName = entry.Name
		if frame.Locals.Size() < entry.LocalSize {
			frame.Locals = NewRegisterSet(entry.LocalSize)
		}
		return entry.EntryAt, nil
	}

	if fn, ok := p.kernel.lookupForeignFunction(name); ok {
		f, err := p.preparedFrame()
		if err != nil {
			return -1, err
		}
		p.stack.discardPreparedFrame()
		f.FunctionName = name
		p.ffi = &pendingFFI{
			fn:            fn,
			frame:         f,
			statics:       p.staticsFor(name),
			globals:       p.globals,
			retPtr:        retPtr,
			returnAddress: returnAddress,
		}
		p.suspend = SuspendFFI
		return returnAddress, nil
	}

	return -1, NewVMError(ErrUndefinedSymbol, "call to undefined function %q", name)
}

// opTailcall reuses the current frame's activation slot: the callee
// replaces the caller's Frame in place, inheriting its return address and
// return register, native calls only (spec.md §4.5).
func (p *Process) opTailcall(dec *Decoder) (int, error) {
	name, err := p.fetchCallTarget(dec)
	if err != nil {
		return -1, err
	}
	entry, ok := p.kernel.lookupFunction(name)
	if !ok {
		return -1, NewVMError(ErrUndefinedSymbol, "tailcall to undefined function %q", name)
	}
	f, err := p.preparedFrame()
	if err != nil {
		return -1, err
	}
	current, err := p.stack.Current()
	if err != nil {
		return -1, err
	}
	f.FunctionName = entry.Name
	f.ReturnAddress = current.ReturnAddress
	f.ReturnRegister = current.ReturnRegister
	if f.Locals.Size() < entry.LocalSize {
		f.Locals = NewRegisterSet(entry.LocalSize)
	}
	p.stack.Frames[len(p.stack.Frames)-1] = f
	p.stack.discardPreparedFrame()
	return entry.EntryAt, nil
}

func (p *Process) opDefer(dec *Decoder) error {
	name, err := p.fetchCallTarget(dec)
	if err != nil {
		return err
	}
	f, err := p.preparedFrame()
	if err != nil {
		return err
	}
	current, err := p.stack.Current()
	if err != nil {
		return err
	}
	current.PushDeferred(name, f.Arguments)
	p.stack.discardPreparedFrame()
	return nil
}

// opReturn pops the current frame, running its deferred calls first, and
// resumes at the caller's recorded return address.
func (p *Process) opReturn(dec *Decoder) (int, error) {
	frame, err := p.stack.Current()
	if err != nil {
		return -1, err
	}
	p.runDeferred(frame)
	popped, err := p.stack.PopFrame()
	if err != nil {
		return -1, err
	}
	if len(p.stack.Frames) == 0 {
		return 0, nil
	}
	if popped.ReturnRegister != nil {
		v, err := popped.Locals.Get(0)
		if err == nil {
			if err := p.setOperand(*popped.ReturnRegister, v); err != nil {
				return -1, err
			}
		}
	}
	return popped.ReturnAddress, nil
}

// ---------------------------------------------------------------------
// processes & messaging
// ---------------------------------------------------------------------

func (p *Process) opProcess(dec *Decoder) error {
	ret, isVoid, err := dec.FetchRegisterOrVoid()
	if err != nil {
		return err
	}
	name, err := p.fetchCallTarget(dec)
	if err != nil {
		return err
	}
	entry, ok := p.kernel.lookupFunction(name)
	if !ok {
		return NewVMError(ErrUndefinedSymbol, "process spawn of undefined function %q", name)
	}
	f, err := p.preparedFrame()
	if err != nil {
		return err
	}
	p.stack.discardPreparedFrame()

	child := p.kernel.SpawnWithArgs(entry, f.Arguments)
	p.kernel.enqueueReady(child)

	if !isVoid {
		return p.setOperand(ret, ProcessHandle{PID: child.PID})
	}
	return nil
}

func (p *Process) opSelf(dec *Decoder) error {
	dst, err := dec.FetchRegisterIndex()
	if err != nil {
		return err
	}
	return p.setOperand(dst, ProcessHandle{PID: p.PID})
}

func asProcessHandle(v Value) (ProcessHandle, error) {
	h, ok := v.(ProcessHandle)
	if !ok {
		return ProcessHandle{}, NewVMError(ErrType, "expected Process, got %s", v.TypeName())
	}
	return h, nil
}

// opJoin implements spec.md §4.6's "join parks the process off the
// runqueue rather than blocking a scheduler worker". awaitTermination
// already returns a pre-filled channel when the joinee has already
// finished, so the fast path below never parks at all; only a join on a
// still-running process spawns the waiter goroutine.
func (p *Process) opJoin(dec *Decoder) error {
	dst, isVoid, err := dec.FetchRegisterOrVoid()
	if err != nil {
		return err
	}
	handleOp, err := dec.FetchRegisterIndex()
	if err != nil {
		return err
	}
	timeout, err := dec.FetchTimeout()
	if err != nil {
		return err
	}
	hv, err := p.getOperand(handleOp)
	if err != nil {
		return err
	}
	handle, err := asProcessHandle(hv)
	if err != nil {
		return err
	}

	ch := p.kernel.awaitTermination(handle.PID)
	select {
	case res := <-ch:
		return p.completeJoin(res, dst, isVoid, handle.PID)
	default:
	}

	p.suspend = SuspendJoin
	go p.parkOnJoin(ch, timeout, dst, isVoid, handle.PID)
	return nil
}

// completeJoin turns a joinResult into the three outcomes `join` can
// produce: propagate a kernel-side error, surface the joinee's uncaught
// exception as one of the joiner's own, or store its return value.
func (p *Process) completeJoin(res joinResult, dst RegisterOperand, isVoid bool, pid uint64) error {
	if res.err != nil {
		return res.err
	}
	if res.exc != nil {
		return NewVMError(ErrUncaught, "joined process %d terminated with uncaught exception: %s", pid, res.exc.Str())
	}
	if isVoid || res.value == nil {
		return nil
	}
	return p.setOperand(dst, res.value)
}

// parkOnJoin runs on its own goroutine, off the scheduler worker that
// called opJoin, so a join that waits indefinitely never occupies one of
// the pool's fixed OS-thread-equivalents (spec.md §4.6). Once the joinee
// terminates or the timeout elapses, it resumes p exactly the way ffi.go's
// invoke() resumes a process whose foreign call has returned.
func (p *Process) parkOnJoin(ch <-chan joinResult, timeout Timeout, dst RegisterOperand, isVoid bool, pid uint64) {
	var res joinResult
	if timeout.Infinite {
		res = <-ch
	} else {
		select {
		case res = <-ch:
		case <-time.After(time.Duration(timeout.Millis) * time.Millisecond):
			res = joinResult{err: NewVMError(ErrTimeout, "join of process %d timed out after %dms", pid, timeout.Millis)}
		}
	}
	p.suspend = SuspendNone
	p.clearFlag(FlagSuspended)
	p.resumeAfterPark(p.completeJoin(res, dst, isVoid, pid))
}

func (p *Process) opSend(dec *Decoder) error {
	handleOp, valOp, err := p.fetch2RegisterOperands(dec)
	if err != nil {
		return err
	}
	hv, err := p.getOperand(handleOp)
	if err != nil {
		return err
	}
	handle, err := asProcessHandle(hv)
	if err != nil {
		return err
	}
	target, ok := p.kernel.Process(handle.PID)
	if !ok {
		return NewVMError(ErrUndefinedSymbol, "send to unknown process %d", handle.PID)
	}
	val, err := p.popOperand(valOp)
	if err != nil {
		return err
	}
	return target.Mailbox.Send(val.Copy())
}

// opReceive implements the same park-off-the-runqueue discipline as
// opJoin: a message already sitting in the mailbox is delivered inline,
// but a receive that would otherwise block parks on its own goroutine
// instead of tying up the scheduler worker until one arrives.
func (p *Process) opReceive(dec *Decoder) error {
	dst, isVoid, err := dec.FetchRegisterOrVoid()
	if err != nil {
		return err
	}
	timeout, err := dec.FetchTimeout()
	if err != nil {
		return err
	}

	if v, err, ok := p.Mailbox.tryPop(); ok {
		if err != nil || isVoid {
			return err
		}
		return p.setOperand(dst, v)
	}

	p.suspend = SuspendReceive
	go p.parkOnReceive(timeout, dst, isVoid)
	return nil
}

// parkOnReceive blocks on the mailbox from a dedicated goroutine -- never
// the scheduler worker that ticked opReceive -- then resumes p the same
// way parkOnJoin and ffi.go's invoke() do.
func (p *Process) parkOnReceive(timeout Timeout, dst RegisterOperand, isVoid bool) {
	v, err := p.Mailbox.Receive(timeout)
	p.suspend = SuspendNone
	p.clearFlag(FlagSuspended)

	if err == nil && !isVoid {
		err = p.setOperand(dst, v)
	}
	p.resumeAfterPark(err)
}

func (p *Process) opWatchdog(dec *Decoder) error {
	name, err := dec.FetchAtom()
	if err != nil {
		return err
	}
	p.WatchdogFn = name
	return nil
}

// ---------------------------------------------------------------------
// control
// ---------------------------------------------------------------------

func (p *Process) opJump(dec *Decoder) (int, error) {
	target, err := dec.FetchPrimitiveUint()
	if err != nil {
		return -1, err
	}
	return p.stack.JumpBase + int(target), nil
}

func (p *Process) opIf(dec *Decoder) (int, error) {
	condOp, err := dec.FetchRegisterIndex()
	if err != nil {
		return -1, err
	}
	whenTrue, err := dec.FetchPrimitiveUint()
	if err != nil {
		return -1, err
	}
	whenFalse, err := dec.FetchPrimitiveUint()
	if err != nil {
		return -1, err
	}
	cv, err := p.getOperand(condOp)
	if err != nil {
		return -1, err
	}
	if cv.Boolean() {
		return p.stack.JumpBase + int(whenTrue), nil
	}
	return p.stack.JumpBase + int(whenFalse), nil
}

func (p *Process) opCatch(dec *Decoder) error {
	typeName, err := dec.FetchAtom()
	if err != nil {
		return err
	}
	blockName, err := dec.FetchAtom()
	if err != nil {
		return err
	}
	block, ok := p.kernel.lookupBlock(blockName)
	if !ok {
		return NewVMError(ErrUndefinedSymbol, "catch references undefined block %q", blockName)
	}
	return p.stack.AddCatcher(typeName, CatchTarget{BlockName: blockName, EntryAt: block.EntryAt})
}

func (p *Process) opEnter(dec *Decoder) (int, error) {
	blockName, err := dec.FetchAtom()
	if err != nil {
		return -1, err
	}
	if _, err := p.stack.EnterTry(); err != nil {
		return -1, err
	}
	block, ok := p.kernel.lookupBlock(blockName)
	if !ok {
		return -1, NewVMError(ErrUndefinedSymbol, "enter references undefined block %q", blockName)
	}
	return p.stack.JumpBase + block.EntryAt, nil
}

func (p *Process) opDraw(dec *Decoder) error {
	dst, err := dec.FetchRegisterIndex()
	if err != nil {
		return err
	}
	if p.stack.Caught == nil {
		return NewVMError(ErrNullRead, "draw with no caught exception")
	}
	caught := p.stack.Caught
	p.stack.Caught = nil
	return p.setOperand(dst, caught)
}

func (p *Process) opLeave(dec *Decoder) error {
	_, err := p.stack.LeaveTry()
	return err
}

func (p *Process) opThrow(dec *Decoder) error {
	src, err := dec.FetchRegisterIndex()
	if err != nil {
		return err
	}
	v, err := p.popOperand(src)
	if err != nil {
		return err
	}
	exc, ok := v.(*Exception)
	if !ok {
		exc = &Exception{Kind: v.TypeName(), Payload: v, Msg: v.Str()}
	}
	p.stack.Thrown = exc
	return nil
}

// ---------------------------------------------------------------------
// linking & modules
// ---------------------------------------------------------------------

func (p *Process) opImport(dec *Decoder) error {
	_, err := dec.FetchAtom() // module name; resolution is the Loader/Linker's job (out of scope)
	return err
}

func (p *Process) opClass(dec *Decoder) error {
	name, err := dec.FetchAtom()
	if err != nil {
		return err
	}
	p.kernel.registerPrototype(&Prototype{Name: name})
	return nil
}

func (p *Process) opDerive(dec *Decoder) error {
	className, err := dec.FetchAtom()
	if err != nil {
		return err
	}
	parentName, err := dec.FetchAtom()
	if err != nil {
		return err
	}
	p.kernel.mu.Lock()
	cls, ok := p.kernel.prototypes[className]
	if !ok {
		cls = &Prototype{Name: className}
		p.kernel.prototypes[className] = cls
	}
	parent, parentOk := p.kernel.prototypes[parentName]
	var parentChain []string
	if parentOk {
		parentChain = append([]string{parentName}, parent.Ancestors...)
	} else {
		parentChain = []string{parentName}
	}
	linearized, lerr := linearizeC3([][]string{parentChain})
	p.kernel.mu.Unlock()
	if lerr != nil {
		return lerr
	}
	cls.Ancestors = linearized
	return nil
}

func (p *Process) opAttach(dec *Decoder) error {
	className, err := dec.FetchAtom()
	if err != nil {
		return err
	}
	_, err = dec.FetchAtom() // method name; method bodies are ordinary registered functions
	if err != nil {
		return err
	}
	p.kernel.mu.Lock()
	if _, ok := p.kernel.prototypes[className]; !ok {
		p.kernel.prototypes[className] = &Prototype{Name: className}
	}
	p.kernel.mu.Unlock()
	return nil
}

func (p *Process) opRegister(dec *Decoder) error {
	_, err := dec.FetchAtom() // library name; foreign registration is performed by the Linker collaborator
	return err
}

func (p *Process) opNew(dec *Decoder) error {
	dst, err := dec.FetchRegisterIndex()
	if err != nil {
		return err
	}
	className, err := dec.FetchAtom()
	if err != nil {
		return err
	}
	return p.setOperand(dst, NewObject(className))
}

func (p *Process) opMsg(dec *Decoder) (int, error) {
	ret, isVoid, err := dec.FetchRegisterOrVoid()
	if err != nil {
		return -1, err
	}
	target, err := dec.FetchRegisterIndex()
	if err != nil {
		return -1, err
	}
	methodName, err := dec.FetchAtom()
	if err != nil {
		return -1, err
	}
	tv, err := p.getOperand(target)
	if err != nil {
		return -1, err
	}
	obj, ok := tv.(*Object)
	if !ok {
		return -1, NewVMError(ErrType, "msg target must be Object, got %s", tv.TypeName())
	}
	mangled := obj.Prototype + "::" + methodName
	var retPtr *RegisterOperand
	if !isVoid {
		retPtr = &ret
	}
	returnAddress := dec.Pos()
	if entry, ok := p.kernel.lookupFunction(mangled); ok {
		if _, err := p.stack.PushPreparedFrame(returnAddress, retPtr); err != nil {
			return -1, err
		}
		frame, _ := p.stack.Current()
		frame.FunctionName = entry.Name
		return entry.EntryAt, nil
	}
	return -1, NewVMError(ErrUndefinedSymbol, "no method %q on prototype %q", methodName, obj.Prototype)
}

func (p *Process) opObjInsert(dec *Decoder) error {
	target, keyOp, valOp, err := p.fetch3RegisterOperands(dec)
	if err != nil {
		return err
	}
	tv, err := p.getOperand(target)
	if err != nil {
		return err
	}
	obj, ok := tv.(*Object)
	if !ok {
		return NewVMError(ErrType, "insert target must be Object, got %s", tv.TypeName())
	}
	keyV, err := p.getOperand(keyOp)
	if err != nil {
		return err
	}
	key, ok := keyV.(Atom)
	if !ok {
		return NewVMError(ErrType, "object key must be Atom, got %s", keyV.TypeName())
	}
	val, err := p.popOperand(valOp)
	if err != nil {
		return err
	}
	obj.Slots[string(key)] = val
	return nil
}

func (p *Process) opObjRemove(dec *Decoder) error {
	dst, target, keyOp, err := p.fetch3RegisterOperands(dec)
	if err != nil {
		return err
	}
	tv, err := p.getOperand(target)
	if err != nil {
		return err
	}
	obj, ok := tv.(*Object)
	if !ok {
		return NewVMError(ErrType, "remove target must be Object, got %s", tv.TypeName())
	}
	keyV, err := p.getOperand(keyOp)
	if err != nil {
		return err
	}
	key, ok := keyV.(Atom)
	if !ok {
		return NewVMError(ErrType, "object key must be Atom, got %s", keyV.TypeName())
	}
	val, ok := obj.Slots[string(key)]
	if !ok {
		return NewVMError(ErrOutOfRange, "object has no slot %q", key)
	}
	delete(obj.Slots, string(key))
	return p.setOperand(dst, val)
}

func (p *Process) opAtom(dec *Decoder) error {
	dst, err := dec.FetchRegisterIndex()
	if err != nil {
		return err
	}
	name, err := dec.FetchAtom()
	if err != nil {
		return err
	}
	return p.setOperand(dst, Atom(name))
}

func (p *Process) opAtomEq(dec *Decoder) error {
	dst, aOp, bOp, err := p.fetch3RegisterOperands(dec)
	if err != nil {
		return err
	}
	av, err := p.getOperand(aOp)
	if err != nil {
		return err
	}
	bv, err := p.getOperand(bOp)
	if err != nil {
		return err
	}
	a, ok := av.(Atom)
	if !ok {
		return NewVMError(ErrType, "atomeq operand must be Atom, got %s", av.TypeName())
	}
	b, ok := bv.(Atom)
	if !ok {
		return NewVMError(ErrType, "atomeq operand must be Atom, got %s", bv.TypeName())
	}
	return p.setOperand(dst, Boolean(a == b))
}
