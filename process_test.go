package viua

import (
	"testing"
	"time"
)

func TestProcessExecAddWritesSum(t *testing.T) {
	p := newTestProcess(4)
	f, _ := p.stack.Current()
	f.Locals.Set(1, Integer(40))
	f.Locals.Set(2, Integer(2))

	code := newAsm().op(OpAdd).reg(0).reg(1).reg(2).bytes()
	if err := execOne(p, code); err != nil {
		t.Fatalf("execOne: %v", err)
	}

	got, err := f.Locals.Get(0)
	if err != nil || got != Integer(42) {
		t.Fatalf("dst register = %v, %v; want Integer(42)", got, err)
	}
}

func TestProcessExecDivByZeroReturnsArithmeticError(t *testing.T) {
	p := newTestProcess(4)
	f, _ := p.stack.Current()
	f.Locals.Set(1, Integer(10))
	f.Locals.Set(2, Integer(0))

	code := newAsm().op(OpDiv).reg(0).reg(1).reg(2).bytes()
	if err := execOne(p, code); err == nil {
		t.Fatalf("expected an ArithmeticError dividing by zero")
	}
}

func TestProcessExecMoveClearsSource(t *testing.T) {
	p := newTestProcess(4)
	f, _ := p.stack.Current()
	f.Locals.Set(1, Text("payload"))

	code := newAsm().op(OpMove).reg(0).reg(1).bytes()
	if err := execOne(p, code); err != nil {
		t.Fatalf("execOne: %v", err)
	}

	if _, err := f.Locals.Get(1); err == nil {
		t.Fatalf("source register should be empty after move")
	}
	v, err := f.Locals.Get(0)
	if err != nil || v.Repr() != `"payload"` {
		t.Fatalf("destination = %v, %v; want the moved text", v, err)
	}
}

func TestProcessExecCopyLeavesSourceIntact(t *testing.T) {
	p := newTestProcess(4)
	f, _ := p.stack.Current()
	f.Locals.Set(1, Integer(9))

	code := newAsm().op(OpCopy).reg(0).reg(1).bytes()
	if err := execOne(p, code); err != nil {
		t.Fatalf("execOne: %v", err)
	}

	src, err := f.Locals.Get(1)
	if err != nil || src != Integer(9) {
		t.Fatalf("source should survive copy, got %v, %v", src, err)
	}
	dst, err := f.Locals.Get(0)
	if err != nil || dst != Integer(9) {
		t.Fatalf("destination = %v, %v; want Integer(9)", dst, err)
	}
}

func TestProcessExecVectorConsumesSourceRegisters(t *testing.T) {
	p := newTestProcess(6)
	f, _ := p.stack.Current()
	f.Locals.Set(1, Integer(10))
	f.Locals.Set(2, Integer(20))
	f.Locals.Set(3, Integer(30))

	code := newAsm().op(OpVector).reg(0).reg(1).uint32(3).bytes()
	if err := execOne(p, code); err != nil {
		t.Fatalf("execOne: %v", err)
	}

	dst, err := f.Locals.Get(0)
	if err != nil {
		t.Fatalf("Get dst: %v", err)
	}
	vec := dst.(*Vector)
	if vec.Len() != 3 {
		t.Fatalf("vector length = %d, want 3", vec.Len())
	}
	if _, err := f.Locals.Get(1); err == nil {
		t.Fatalf("source registers should be consumed (popped) by vector construction")
	}
}

func TestProcessExecPtrThenDeref(t *testing.T) {
	p := newTestProcess(4)
	f, _ := p.stack.Current()
	f.Locals.Set(1, Integer(77))

	code := newAsm().op(OpPtr).reg(0).reg(1).bytes()
	if err := execOne(p, code); err != nil {
		t.Fatalf("execOne: %v", err)
	}

	dst, err := f.Locals.Get(0)
	if err != nil {
		t.Fatalf("Get dst: %v", err)
	}
	ptr, ok := dst.(Pointer)
	if !ok {
		t.Fatalf("expected a Pointer value, got %T", dst)
	}
	v, err := ptr.Deref(p)
	if err != nil || v != Integer(77) {
		t.Fatalf("Deref = %v, %v; want Integer(77)", v, err)
	}
}

// Reproduces spec.md §4.6's "join/receive park the process off the
// runqueue": opReceive on an empty mailbox must not block the goroutine
// calling execute (the scheduler worker's own goroutine in real use), and
// must requeue the process onto the kernel's Ready channel once a message
// arrives.
func TestProcessExecReceiveParksAndResumes(t *testing.T) {
	p := newTestProcess(2)

	code := newAsm().op(OpReceive).reg(0).uint32(0).bytes()
	if err := execOne(p, code); err != nil {
		t.Fatalf("execOne: %v", err)
	}
	if p.suspend != SuspendReceive {
		t.Fatalf("expected the process to park on receive, suspend = %v", p.suspend)
	}

	if err := p.Mailbox.Send(Integer(99)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case resumed := <-p.kernel.Ready:
		if resumed != p {
			t.Fatalf("expected the same process to be requeued")
		}
	case <-time.After(time.Second):
		t.Fatalf("process was never requeued after a message arrived")
	}

	if p.suspend != SuspendNone {
		t.Fatalf("expected suspend to be cleared after resume, got %v", p.suspend)
	}
	f, _ := p.stack.Current()
	got, err := f.Locals.Get(0)
	if err != nil || got != Integer(99) {
		t.Fatalf("dst register = %v, %v; want Integer(99)", got, err)
	}
}

// Same discipline for opJoin: joining a still-running process must not
// block, and the parked goroutine must requeue the joiner once the
// joinee terminates.
func TestProcessExecJoinParksAndResumes(t *testing.T) {
	p := newTestProcess(2)
	k := p.kernel

	child := k.Spawn(FunctionEntry{Name: "child/0", EntryAt: 0, LocalSize: 1})
	f, _ := p.stack.Current()
	f.Locals.Set(1, ProcessHandle{PID: child.PID})

	code := newAsm().op(OpJoin).reg(0).reg(1).uint32(0).bytes()
	if err := execOne(p, code); err != nil {
		t.Fatalf("execOne: %v", err)
	}
	if p.suspend != SuspendJoin {
		t.Fatalf("expected the joiner to park, suspend = %v", p.suspend)
	}

	child.stack.ReturnValue = Integer(7)
	child.setFlag(FlagFinished)
	k.NotifyTerminated(child)

	select {
	case resumed := <-k.Ready:
		if resumed != p {
			t.Fatalf("expected the joiner to be requeued")
		}
	case <-time.After(time.Second):
		t.Fatalf("joiner was never requeued after the joinee terminated")
	}

	got, err := f.Locals.Get(0)
	if err != nil || got != Integer(7) {
		t.Fatalf("dst register = %v, %v; want Integer(7)", got, err)
	}
}

func TestProcessExecCompareLt(t *testing.T) {
	p := newTestProcess(4)
	f, _ := p.stack.Current()
	f.Locals.Set(1, Integer(1))
	f.Locals.Set(2, Integer(2))

	code := newAsm().op(OpLt).reg(0).reg(1).reg(2).bytes()
	if err := execOne(p, code); err != nil {
		t.Fatalf("execOne: %v", err)
	}
	got, err := f.Locals.Get(0)
	if err != nil || got != Boolean(true) {
		t.Fatalf("1 < 2 = %v, %v; want true", got, err)
	}
}
