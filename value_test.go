package viua

import "testing"

func TestValueCopyProducesDistinctEqualValue(t *testing.T) {
	cases := []Value{
		Integer(5),
		Float(3.5),
		Boolean(true),
		Text("hello"),
		NewString([]byte("hello")),
		Atom("foo"),
		NewVector([]Value{Integer(1), Integer(2)}),
	}
	for _, v := range cases {
		cp := v.Copy()
		if cp.Repr() != v.Repr() {
			t.Errorf("%s: copy repr mismatch: %q vs %q", v.TypeName(), cp.Repr(), v.Repr())
		}
	}
}

func TestVectorCopyIsDeep(t *testing.T) {
	vec := NewVector([]Value{NewString([]byte("a"))})
	cp := vec.Copy().(*Vector)

	inner, _ := cp.At(0)
	innerStr := inner.(*String)
	innerStr.bytes[0] = 'b'

	orig, _ := vec.At(0)
	if orig.(*String).Str() != "a" {
		t.Fatalf("mutating the copy's inner value mutated the original: got %q", orig.Str())
	}
}

func TestReferenceCopyIsSharedNotDeep(t *testing.T) {
	ref := NewReference(NewString([]byte("shared")))
	cp := ref.Copy().(*Reference)

	cp.Deref().(*String).bytes[0] = 'S'

	if ref.Deref().(*String).Str() != "Shared" {
		t.Fatalf("Reference.Copy should share the underlying cell, got %q", ref.Deref().Str())
	}
}

func TestBitsCopyPreservesSubByteLength(t *testing.T) {
	b := NewBits(12)
	if err := b.Set(0, true); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := b.Set(11, true); err != nil {
		t.Fatalf("Set: %v", err)
	}

	cp := b.Copy().(*Bits)
	if cp.Len() != 12 {
		t.Fatalf("Copy of a 12-bit value has Len() = %d, want 12", cp.Len())
	}
	if cp.Repr() != b.Repr() {
		t.Fatalf("copy repr mismatch: %q vs %q", cp.Repr(), b.Repr())
	}

	// mutating the copy must not affect the original.
	cp.Set(1, true)
	if v, _ := b.At(1); v {
		t.Fatalf("mutating the copy mutated the original")
	}
}

func TestBitsAtSetRoundTrip(t *testing.T) {
	b := NewBits(12)
	if err := b.Set(0, true); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := b.Set(11, true); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err := b.At(0)
	if err != nil || !v {
		t.Fatalf("bit 0 should be set, got %v err %v", v, err)
	}
	if _, err := b.At(12); err == nil {
		t.Fatalf("expected OutOfRange reading bit 12 of a 12-bit string")
	}
}

func TestBitwiseAndRequiresEqualLength(t *testing.T) {
	a := NewBits(8)
	b := NewBits(16)
	if _, err := applyBitwise(a, b, func(x, y byte) byte { return x & y }); err == nil {
		t.Fatalf("expected a length-mismatch error")
	}
}

func TestStructInsertionOrderPreserved(t *testing.T) {
	s := NewStruct()
	s.Insert("b", Integer(2))
	s.Insert("a", Integer(1))
	s.Insert("b", Integer(20)) // overwrite, should not reorder

	keys := s.Keys()
	if len(keys) != 2 || keys[0] != "b" || keys[1] != "a" {
		t.Fatalf("expected insertion order [b a], got %v", keys)
	}
	v, _ := s.Get("b")
	if v != Integer(20) {
		t.Fatalf("expected overwritten value 20, got %v", v)
	}
}

func TestPointerDerefDanglingFrame(t *testing.T) {
	p := newTestProcess(2)
	ptr := Pointer{FrameDepth: 5, Set: RegisterSetLocal, Index: 0}
	if _, err := ptr.Deref(p); err == nil {
		t.Fatalf("expected OutOfRange dereferencing a pointer to a nonexistent frame")
	}
}
