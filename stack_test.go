package viua

import "testing"

func TestStackPrepareAndPushFrameLifecycle(t *testing.T) {
	s := NewStack()
	if err := s.PrepareFrame(NewFrame("callee/0", 0, 2)); err != nil {
		t.Fatalf("PrepareFrame: %v", err)
	}
	if err := s.PrepareFrame(NewFrame("other/0", 0, 1)); err == nil {
		t.Fatalf("expected an error staging a second frame before the first commits")
	}

	f, err := s.PushPreparedFrame(7, nil)
	if err != nil {
		t.Fatalf("PushPreparedFrame: %v", err)
	}
	if f.ReturnAddress != 7 || s.Depth() != 1 {
		t.Fatalf("pushed frame has ReturnAddress=%d depth=%d, want 7 and 1", f.ReturnAddress, s.Depth())
	}

	if _, err := s.PushPreparedFrame(0, nil); err == nil {
		t.Fatalf("expected an error committing with nothing staged")
	}
}

func TestStackPopFrameSetsReturnValueWhenEmptied(t *testing.T) {
	s := NewStack()
	s.PrepareFrame(NewFrame("main/0", 0, 1))
	f, _ := s.PushPreparedFrame(0, nil)
	f.Locals.Set(0, Integer(120))

	popped, err := s.PopFrame()
	if err != nil {
		t.Fatalf("PopFrame: %v", err)
	}
	if popped != f {
		t.Fatalf("PopFrame returned a different frame than was pushed")
	}
	if s.Depth() != 0 {
		t.Fatalf("stack should be empty after popping its only frame")
	}
	if s.ReturnValue != Integer(120) {
		t.Fatalf("ReturnValue = %v, want Integer(120)", s.ReturnValue)
	}
}

func TestStackPopFrameRejectsUnusedMovedParameter(t *testing.T) {
	s := NewStack()
	f := NewFrame("callee/1", 1, 0)
	f.Arguments.Set(0, Integer(1))
	f.Arguments.Flag(0, FlagMoved)
	s.PrepareFrame(f)
	s.PushPreparedFrame(0, nil)

	if _, err := s.PopFrame(); err == nil {
		t.Fatalf("expected MovedParameterUnused popping a frame with an unconsumed moved argument")
	}
}

func TestStackPopFrameOfEmptyStackFails(t *testing.T) {
	s := NewStack()
	if _, err := s.PopFrame(); err == nil {
		t.Fatalf("expected an error popping an empty stack")
	}
}

func TestStackTryFrameLifecycle(t *testing.T) {
	s := NewStack()
	s.PrepareFrame(NewFrame("main/0", 0, 0))
	s.PushPreparedFrame(0, nil)

	if err := s.PrepareTry(); err != nil {
		t.Fatalf("PrepareTry: %v", err)
	}
	if err := s.AddCatcher("ArithmeticError", CatchTarget{BlockName: "handler", EntryAt: 42}); err != nil {
		t.Fatalf("AddCatcher: %v", err)
	}
	tf, err := s.EnterTry()
	if err != nil {
		t.Fatalf("EnterTry: %v", err)
	}
	if tf.AssociatedFrameDepth != 1 {
		t.Fatalf("AssociatedFrameDepth = %d, want 1", tf.AssociatedFrameDepth)
	}
	if tf.Catchers["ArithmeticError"].EntryAt != 42 {
		t.Fatalf("catcher not recorded correctly")
	}

	popped, err := s.LeaveTry()
	if err != nil || popped != tf {
		t.Fatalf("LeaveTry did not return the frame just entered: %v, %v", popped, err)
	}
	if _, err := s.LeaveTry(); err == nil {
		t.Fatalf("expected an error leaving with no active try-frame")
	}
}

func TestStackAddCatcherWithoutPrepareFails(t *testing.T) {
	s := NewStack()
	if err := s.AddCatcher("X", CatchTarget{}); err == nil {
		t.Fatalf("expected an error adding a catcher with no try-frame staged")
	}
}

func TestStackTraceInnermostFirst(t *testing.T) {
	s := NewStack()
	s.PrepareFrame(NewFrame("outer/0", 0, 0))
	s.PushPreparedFrame(0, nil)
	s.PrepareFrame(NewFrame("inner/0", 0, 0))
	s.PushPreparedFrame(0, nil)

	trace := s.StackTrace()
	if len(trace) != 2 {
		t.Fatalf("expected 2 trace lines, got %d", len(trace))
	}
	if trace[0] != "#0 inner/0" || trace[1] != "#1 outer/0" {
		t.Fatalf("trace = %v, want innermost frame first", trace)
	}
}
