package viua

import (
	"fmt"
	"reflect"
	"testing"
)

func TestLinearizeC3SingleParent(t *testing.T) {
	got, err := linearizeC3([][]string{{"Base", "Object"}})
	if err != nil {
		t.Fatalf("linearizeC3: %v", err)
	}
	want := []string{"Base", "Object"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

// Diamond inheritance: D derives from B and C, both of which derive from A.
// C3 must resolve to [B, C, A], preserving B before C (declaration order)
// while keeping A after both since every parent list places it last.
func TestLinearizeC3Diamond(t *testing.T) {
	got, err := linearizeC3([][]string{
		{"B", "A"},
		{"C", "A"},
	})
	if err != nil {
		t.Fatalf("linearizeC3: %v", err)
	}
	want := []string{"B", "C", "A"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestLinearizeC3InconsistentHierarchy(t *testing.T) {
	// A has order [X, Y], B has order [Y, X] -- no consistent merge exists.
	_, err := linearizeC3([][]string{
		{"X", "Y"},
		{"Y", "X"},
	})
	if err == nil {
		t.Fatalf("expected an error for an inconsistent ancestor hierarchy")
	}
}

func TestFindCatcherMatchesExactType(t *testing.T) {
	s := NewStack()
	s.PrepareFrame(NewFrame("main/0", 0, 0))
	s.PushPreparedFrame(0, nil)
	s.PrepareTry()
	s.AddCatcher("ArithmeticError", CatchTarget{BlockName: "handler", EntryAt: 10})
	s.EnterTry()

	exc := NewException("ArithmeticError", "divide by zero")
	tf, target, ok := findCatcher(s, exc, nil)
	if !ok || target.EntryAt != 10 || tf != s.TryFrames[0] {
		t.Fatalf("expected a direct-type match, got ok=%v target=%+v", ok, target)
	}
}

func TestFindCatcherMatchesAncestor(t *testing.T) {
	s := NewStack()
	s.PrepareFrame(NewFrame("main/0", 0, 0))
	s.PushPreparedFrame(0, nil)
	s.PrepareTry()
	s.AddCatcher("Exception", CatchTarget{BlockName: "handler", EntryAt: 5})
	s.EnterTry()

	protos := map[string]*Prototype{
		"CustomError": {Name: "CustomError", Ancestors: []string{"Exception", "Object"}},
	}
	exc := NewException("CustomError", "boom")
	_, target, ok := findCatcher(s, exc, protos)
	if !ok || target.EntryAt != 5 {
		t.Fatalf("expected an ancestor-chain match via Exception, got ok=%v", ok)
	}
}

func TestFindCatcherPrefersInnermostTryFrame(t *testing.T) {
	s := NewStack()
	s.PrepareFrame(NewFrame("main/0", 0, 0))
	s.PushPreparedFrame(0, nil)

	s.PrepareTry()
	s.AddCatcher("Exception", CatchTarget{BlockName: "outer", EntryAt: 1})
	s.EnterTry()

	s.PrepareTry()
	s.AddCatcher("Exception", CatchTarget{BlockName: "inner", EntryAt: 2})
	s.EnterTry()

	exc := NewException("Exception", "boom")
	_, target, ok := findCatcher(s, exc, nil)
	if !ok || target.BlockName != "inner" {
		t.Fatalf("expected the innermost try-frame's catcher to win, got %+v", target)
	}
}

func TestFindCatcherNoMatch(t *testing.T) {
	s := NewStack()
	exc := NewException("Unhandled", "boom")
	_, _, ok := findCatcher(s, exc, nil)
	if ok {
		t.Fatalf("expected no match with an empty try-frame stack")
	}
}

// spyLogger records every Errorf call, used to observe that a deferred
// call was at least attempted during unwind without needing a full
// function body to execute.
type spyLogger struct {
	errors []string
}

func (l *spyLogger) Debugf(string, ...any) {}
func (l *spyLogger) Infof(string, ...any)  {}
func (l *spyLogger) Errorf(format string, args ...any) {
	l.errors = append(l.errors, fmt.Sprintf(format, args...))
}

// Reproduces spec.md §4.5 unwinder step 4: a `try` in the outer frame,
// entered, then a nested `call` whose callee throws. unwind() must pop
// every frame above the try-frame's associated depth -- including the
// callee's own frame -- not stop one short of it.
func TestUnwindPopsFramesAboveAssociatedDepth(t *testing.T) {
	p := newTestProcess(2)
	spy := &spyLogger{}
	p.kernel.logger = spy

	// main/0 is already pushed by newTestProcess, at depth 1.
	if err := p.stack.PrepareTry(); err != nil {
		t.Fatalf("PrepareTry: %v", err)
	}
	if err := p.stack.AddCatcher("Boom", CatchTarget{BlockName: "handler", EntryAt: 99}); err != nil {
		t.Fatalf("AddCatcher: %v", err)
	}
	tf, err := p.stack.EnterTry()
	if err != nil {
		t.Fatalf("EnterTry: %v", err)
	}
	if tf.AssociatedFrameDepth != 1 {
		t.Fatalf("AssociatedFrameDepth = %d, want 1 (frame count at try time)", tf.AssociatedFrameDepth)
	}

	// Simulate `call foo` from within the try block: a new frame for foo
	// is pushed, taking the stack to depth 2.
	callee := NewFrame("foo/0", 0, 1)
	callee.PushDeferred("cleanup/0", NewRegisterSet(0))
	if err := p.stack.PrepareFrame(callee); err != nil {
		t.Fatalf("PrepareFrame: %v", err)
	}
	if _, err := p.stack.PushPreparedFrame(0, nil); err != nil {
		t.Fatalf("PushPreparedFrame: %v", err)
	}
	if p.stack.Depth() != 2 {
		t.Fatalf("expected depth 2 after the nested call, got %d", p.stack.Depth())
	}

	// foo throws.
	p.stack.Thrown = NewException("Boom", "nested failure")

	handled, err := p.unwind()
	if err != nil {
		t.Fatalf("unwind: %v", err)
	}
	if !handled {
		t.Fatalf("expected the outer try's catcher to handle the exception")
	}

	if p.stack.Depth() != tf.AssociatedFrameDepth {
		t.Fatalf("depth after unwind = %d, want %d (foo's frame must be popped)",
			p.stack.Depth(), tf.AssociatedFrameDepth)
	}
	current, err := p.stack.Current()
	if err != nil || current.FunctionName != "main/0" {
		t.Fatalf("expected main/0 to be the active frame after unwind, got %v (err %v)", current, err)
	}
	if len(spy.errors) == 0 {
		t.Fatalf("expected foo's deferred call to run (and fail, since cleanup/0 is unregistered) during unwind")
	}
	if p.stack.IP != p.stack.JumpBase+99 {
		t.Fatalf("IP after unwind = %d, want %d (the catcher's EntryAt)", p.stack.IP, p.stack.JumpBase+99)
	}
}
