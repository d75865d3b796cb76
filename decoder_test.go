package viua

import "testing"

func TestDecoderFetchOpcodeAdvances(t *testing.T) {
	code := newAsm().op(OpAdd).op(OpSub).bytes()
	d := NewDecoder(code, 0)

	op, err := d.FetchOpcode()
	if err != nil || Op(op) != OpAdd {
		t.Fatalf("first opcode = %v, %v; want OpAdd", op, err)
	}
	op, err = d.FetchOpcode()
	if err != nil || Op(op) != OpSub {
		t.Fatalf("second opcode = %v, %v; want OpSub", op, err)
	}
	if !d.AtEnd() {
		t.Fatalf("expected cursor at end after two opcodes")
	}
}

func TestDecoderFetchRegisterIndexRoundTrip(t *testing.T) {
	code := newAsm().regFull(17, RegisterSetStatic, AccessPointer).bytes()
	d := NewDecoder(code, 0)

	ro, err := d.FetchRegisterIndex()
	if err != nil {
		t.Fatalf("FetchRegisterIndex: %v", err)
	}
	if ro.Index != 17 || ro.Set != RegisterSetStatic || ro.Mode != AccessPointer {
		t.Fatalf("got %+v, want Index=17 Set=Static Mode=Pointer", ro)
	}
}

func TestDecoderFetchRegisterIndexRejectsBadSet(t *testing.T) {
	// Set selector occupies bits [3:5); value 3 is out of the defined
	// Local/Static/Global range.
	code := []byte{0x03 << regSetShift, 0, 0, 0, 0}
	d := NewDecoder(code, 0)
	if _, err := d.FetchRegisterIndex(); err == nil {
		t.Fatalf("expected an error for an undefined register set selector")
	}
}

func TestDecoderFetchPrimitiveIntNegative(t *testing.T) {
	code := newAsm().int64(-42).bytes()
	d := NewDecoder(code, 0)
	v, err := d.FetchPrimitiveInt()
	if err != nil || v != -42 {
		t.Fatalf("FetchPrimitiveInt = %v, %v; want -42, nil", v, err)
	}
}

func TestDecoderFetchAtom(t *testing.T) {
	code := newAsm().atom("hello").bytes()
	d := NewDecoder(code, 0)
	s, err := d.FetchAtom()
	if err != nil || s != "hello" {
		t.Fatalf("FetchAtom = %q, %v; want %q, nil", s, err, "hello")
	}
	if !d.AtEnd() {
		t.Fatalf("expected cursor exhausted after reading the whole atom")
	}
}

func TestDecoderFetchTimeoutEncoding(t *testing.T) {
	code := newAsm().uint32(0).bytes()
	d := NewDecoder(code, 0)
	to, err := d.FetchTimeout()
	if err != nil || !to.Infinite {
		t.Fatalf("timeout 0 should decode as Infinite, got %+v err %v", to, err)
	}

	code = newAsm().uint32(251).bytes()
	d = NewDecoder(code, 0)
	to, err = d.FetchTimeout()
	if err != nil || to.Infinite || to.Millis != 250 {
		t.Fatalf("timeout 251 should decode as 250ms, got %+v err %v", to, err)
	}
}

func TestDecoderVoidMarker(t *testing.T) {
	code := []byte{voidMarker}
	d := NewDecoder(code, 0)
	isVoid, err := d.IsVoid()
	if err != nil || !isVoid {
		t.Fatalf("IsVoid = %v, %v; want true, nil", isVoid, err)
	}
	if !d.AtEnd() {
		t.Fatalf("IsVoid should consume the marker byte")
	}
}

func TestDecoderFetchRegisterOrVoidPrefersVoid(t *testing.T) {
	code := []byte{voidMarker}
	d := NewDecoder(code, 0)
	_, isVoid, err := d.FetchRegisterOrVoid()
	if err != nil || !isVoid {
		t.Fatalf("FetchRegisterOrVoid over a void marker = isVoid %v, %v", isVoid, err)
	}
}

func TestDecoderNeedRejectsTruncatedStream(t *testing.T) {
	d := NewDecoder([]byte{0x01}, 0)
	if _, err := d.FetchPrimitiveUint(); err == nil {
		t.Fatalf("expected a truncation error reading 4 bytes from a 1-byte stream")
	}
}

func TestDecoderBitstringRoundTrip(t *testing.T) {
	b := NewBits(10)
	b.Set(0, true)
	b.Set(9, true)

	code := newAsm().uint32(uint32(b.nbits))
	code.buf = append(code.buf, b.data...)

	d := NewDecoder(code.bytes(), 0)
	got, err := d.FetchBitstring()
	if err != nil {
		t.Fatalf("FetchBitstring: %v", err)
	}
	if got.nbits != 10 {
		t.Fatalf("nbits = %d, want 10", got.nbits)
	}
	v0, _ := got.At(0)
	v9, _ := got.At(9)
	if !v0 || !v9 {
		t.Fatalf("expected bits 0 and 9 set, got %v %v", v0, v9)
	}
}
