// frame.go - call frames and deferred calls.
//
// Grounded on cpu_ie32.go's Push/Pop stack-pointer discipline, generalised
// from a single hardware stack slot to a per-call Frame carrying its own
// argument and local register sets, per spec.md §3.

package viua

// DeferredCall is a call installed by `defer` (spec.md §4.5's control
// family): it runs when its owning frame pops, in LIFO order, regardless
// of whether the frame popped normally or while unwinding.
type DeferredCall struct {
	FunctionName string
	Arguments    *RegisterSet
}

// Frame is one call activation: the callee's name, its incoming
// arguments, its local registers, where execution resumes in the caller
// once this frame pops, and which caller register (if any) receives the
// return value.
type Frame struct {
	FunctionName   string
	Arguments      *RegisterSet
	Locals         *RegisterSet
	ReturnAddress  int
	ReturnRegister *RegisterOperand // nil if the caller discarded the result (void)
	Deferred       []DeferredCall
}

// NewFrame allocates a frame with nArgs argument slots and nLocals local
// slots.
func NewFrame(fn string, nArgs, nLocals int) *Frame {
	return &Frame{
		FunctionName: fn,
		Arguments:    NewRegisterSet(nArgs),
		Locals:       NewRegisterSet(nLocals),
	}
}

// PushDeferred appends a deferred call, to be run (in reverse order) when
// this frame pops.
func (f *Frame) PushDeferred(fn string, args *RegisterSet) {
	f.Deferred = append(f.Deferred, DeferredCall{FunctionName: fn, Arguments: args})
}

// checkUnusedMoves validates that every argument slot passed by move was
// consumed before this frame pops (spec.md §3, original_source/src/process.cpp).
func (f *Frame) checkUnusedMoves() error {
	if idx := f.Arguments.unusedMovedParameters(); len(idx) > 0 {
		return NewVMError(ErrMovedParameterUnused,
			"frame %q popped with unused moved parameter(s) at index %v", f.FunctionName, idx)
	}
	return nil
}
