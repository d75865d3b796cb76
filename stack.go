// stack.go - the two-level per-process stack: call frames and exception
// try-frames, plus the handful of staging slots ("prepared" frame/try)
// that hold state between the instructions that build a call and the
// instruction that commits it.
//
// Grounded on cpu_ie32.go's Push/Pop bounds-checked stack-pointer
// discipline, generalised from one flat hardware stack to the spec's
// Frame/TryFrame pair, and debug_backtrace.go's frame-walking idiom for
// StackTrace. The "return value comes from local register 0 of the last
// frame" rule is recovered from original_source/src/process.cpp's
// Stack::pop, see SPEC_FULL.md §A.3.

package viua

import "fmt"

// CatchTarget is where control resumes if a TryFrame's catcher for a given
// exception type fires: a block name plus the jump-base-relative offset
// the kernel resolves it to at link time.
type CatchTarget struct {
	BlockName string
	EntryAt   int
}

// TryFrame groups the catchers installed by one `try` block together with
// the call-frame depth it was entered at, so unwind knows how many call
// frames to pop when one of this try-frame's catchers fires.
type TryFrame struct {
	Catchers             map[string]CatchTarget
	AssociatedFrameDepth int
}

func newTryFrame(depth int) *TryFrame {
	return &TryFrame{Catchers: make(map[string]CatchTarget), AssociatedFrameDepth: depth}
}

// Stack is one process's full activation state.
type Stack struct {
	Frames    []*Frame
	TryFrames []*TryFrame

	preparedFrame *Frame
	preparedTry   *TryFrame

	IP       int // cursor within the current frame's function bytecode
	JumpBase int // byte offset of the current function's bytecode within the image

	Thrown      *Exception // non-nil while an exception is propagating
	Caught      *Exception // the most recently caught exception, readable by `catch`'s body
	ReturnValue Value      // set once the stack's last frame pops
}

func NewStack() *Stack {
	return &Stack{}
}

func (s *Stack) Depth() int { return len(s.Frames) }

func (s *Stack) Current() (*Frame, error) {
	if len(s.Frames) == 0 {
		return nil, NewVMError(ErrStackCorruption, "no active frame")
	}
	return s.Frames[len(s.Frames)-1], nil
}

// PrepareFrame stages a new frame for an upcoming call. Only one frame may
// be staged at a time (spec.md §4.5's `frame` instruction must be followed
// by a `call`/`tailcall`/`process` before another `frame`).
func (s *Stack) PrepareFrame(f *Frame) error {
	if s.preparedFrame != nil {
		return NewVMError(ErrStackCorruption, "frame already prepared for call %q", s.preparedFrame.FunctionName)
	}
	s.preparedFrame = f
	return nil
}

// PushPreparedFrame commits the staged frame onto the call stack,
// recording where the caller resumes and which register (if any) receives
// the return value.
func (s *Stack) PushPreparedFrame(returnAddress int, returnRegister *RegisterOperand) (*Frame, error) {
	if s.preparedFrame == nil {
		return nil, NewVMError(ErrStackCorruption, "call with no frame prepared")
	}
	if len(s.Frames) >= maxStackDepth {
		return nil, NewVMError(ErrStackOverflow, "call stack depth exceeded %d", maxStackDepth)
	}
	f := s.preparedFrame
	s.preparedFrame = nil
	f.ReturnAddress = returnAddress
	f.ReturnRegister = returnRegister
	s.Frames = append(s.Frames, f)
	return f, nil
}

const maxStackDepth = 8192

// PopFrame pops the top call frame, running its deferred calls' bookkeeping
// is the caller's responsibility (process.go invokes them before calling
// this), checks for unused moved parameters, and -- when the stack becomes
// empty as a result -- captures the frame's local register 0 as the
// stack's final ReturnValue, per original_source/src/process.cpp.
func (s *Stack) PopFrame() (*Frame, error) {
	if len(s.Frames) == 0 {
		return nil, NewVMError(ErrStackCorruption, "pop of empty call stack")
	}
	f := s.Frames[len(s.Frames)-1]
	if err := f.checkUnusedMoves(); err != nil {
		return nil, err
	}
	s.Frames = s.Frames[:len(s.Frames)-1]
	if len(s.Frames) == 0 {
		if v, err := f.Locals.Get(0); err == nil {
			s.ReturnValue = v
		}
	}
	return f, nil
}

// preparedFrameIsSet reports whether a frame is currently staged, used by
// tick() to discard it when an exception fires before the matching
// call/process commits it (spec.md §4.4 step 7).
func (s *Stack) preparedFrameIsSet() bool { return s.preparedFrame != nil }

func (s *Stack) discardPreparedFrame() { s.preparedFrame = nil }

// PrepareTry stages a new try-frame the way PrepareFrame stages a call.
func (s *Stack) PrepareTry() error {
	if s.preparedTry != nil {
		return NewVMError(ErrStackCorruption, "try-frame already prepared")
	}
	s.preparedTry = newTryFrame(len(s.Frames))
	return nil
}

// AddCatcher registers a catcher on the staged try-frame for the named
// exception type.
func (s *Stack) AddCatcher(typeName string, target CatchTarget) error {
	if s.preparedTry == nil {
		return NewVMError(ErrStackCorruption, "catch with no try-frame prepared")
	}
	s.preparedTry.Catchers[typeName] = target
	return nil
}

// EnterTry commits the staged try-frame onto the try-stack.
func (s *Stack) EnterTry() (*TryFrame, error) {
	if s.preparedTry == nil {
		return nil, NewVMError(ErrStackCorruption, "enter with no try-frame prepared")
	}
	tf := s.preparedTry
	s.preparedTry = nil
	s.TryFrames = append(s.TryFrames, tf)
	return tf, nil
}

// LeaveTry pops the innermost try-frame for `leave`. The unwinder pops
// try-frames itself (process.go's unwind) and does not call this.
func (s *Stack) LeaveTry() (*TryFrame, error) {
	if len(s.TryFrames) == 0 {
		return nil, NewVMError(ErrStackCorruption, "leave with no active try-frame")
	}
	tf := s.TryFrames[len(s.TryFrames)-1]
	s.TryFrames = s.TryFrames[:len(s.TryFrames)-1]
	return tf, nil
}

// StackTrace renders a human-readable frame list, innermost first, in the
// style of debug_backtrace.go's walk.
func (s *Stack) StackTrace() []string {
	trace := make([]string, 0, len(s.Frames))
	for i := len(s.Frames) - 1; i >= 0; i-- {
		trace = append(trace, fmt.Sprintf("#%d %s", len(s.Frames)-1-i, s.Frames[i].FunctionName))
	}
	return trace
}
