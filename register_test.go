package viua

import "testing"

func TestRegisterSetBasicLifecycle(t *testing.T) {
	rs := NewRegisterSet(4)

	if _, err := rs.Get(0); err == nil {
		t.Fatalf("expected NullRead reading an empty slot")
	}

	if err := rs.Set(0, Integer(42)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err := rs.Get(0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != Integer(42) {
		t.Fatalf("got %v, want Integer(42)", v)
	}
}

func TestRegisterSetPopThenSetRoundTrips(t *testing.T) {
	rs := NewRegisterSet(2)
	rs.Set(0, Integer(7))

	popped, err := rs.Pop(0)
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if empty, _ := rs.IsEmpty(0); !empty {
		t.Fatalf("slot should be empty after Pop")
	}
	if err := rs.Set(0, popped); err != nil {
		t.Fatalf("Set after Pop: %v", err)
	}
	v, err := rs.Get(0)
	if err != nil || v.Repr() != "7" {
		t.Fatalf("round trip changed value: got %v, err %v", v, err)
	}
}

func TestRegisterSetMoveLeavesSourceMoved(t *testing.T) {
	rs := NewRegisterSet(2)
	rs.Set(0, Integer(9))

	if err := rs.Move(1, 0); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if _, err := rs.Get(0); err == nil {
		t.Fatalf("expected read of moved-from register to fail")
	}
	flagged, err := rs.IsFlagged(0, FlagMoved)
	if err != nil || !flagged {
		t.Fatalf("source register should be flagged MOVED, flagged=%v err=%v", flagged, err)
	}
	v, err := rs.Get(1)
	if err != nil || v != Integer(9) {
		t.Fatalf("destination should hold moved value, got %v err %v", v, err)
	}
}

func TestRegisterSetSwapExchangesFlagsAndValues(t *testing.T) {
	rs := NewRegisterSet(2)
	rs.Set(0, Integer(1))
	rs.Set(1, Integer(2))
	rs.Flag(0, FlagKeep)

	if err := rs.Swap(0, 1); err != nil {
		t.Fatalf("Swap: %v", err)
	}
	v0, _ := rs.Get(0)
	v1, _ := rs.Get(1)
	if v0 != Integer(2) || v1 != Integer(1) {
		t.Fatalf("swap did not exchange values: v0=%v v1=%v", v0, v1)
	}
	if flagged, _ := rs.IsFlagged(1, FlagKeep); !flagged {
		t.Fatalf("KEEP flag should have moved with its value to slot 1")
	}
}

func TestRegisterSetOutOfRange(t *testing.T) {
	rs := NewRegisterSet(2)
	if err := rs.Set(5, Integer(1)); err == nil {
		t.Fatalf("expected OutOfRange setting index 5 of a 2-slot set")
	}
	if _, err := rs.Get(-1); err == nil {
		t.Fatalf("expected OutOfRange getting negative index")
	}
}

func TestUnusedMovedParametersDetection(t *testing.T) {
	rs := NewRegisterSet(3)
	rs.Set(0, Integer(1))
	rs.Set(1, Integer(2))
	rs.Flag(1, FlagMoved) // simulate pamv without a matching arg

	idx := rs.unusedMovedParameters()
	if len(idx) != 1 || idx[0] != 1 {
		t.Fatalf("expected exactly index 1 flagged unused-moved, got %v", idx)
	}
}
