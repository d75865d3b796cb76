// process_exec.go - the instruction-family dispatch referenced by
// process.go's tick(). Split into its own file purely for size; it is
// still part of the same Process type.
//
// Grounded on cpu_ie32.go's big opcode switch (one case per mnemonic,
// each calling a small focused helper), generalised from fixed-width
// register-machine opcodes to the spec's typed-operand instruction set.

package viua

import (
	"sort"
)

// execute runs one decoded instruction, returning either an explicit next
// instruction pointer or -1 to mean "wherever the decoder cursor ended up"
// (the common case for straight-line instructions).
func (p *Process) execute(op Op, dec *Decoder) (int, error) {
	switch op {
	case OpNop:
		return -1, nil

	case OpAdd, OpSub, OpMul, OpDiv:
		return -1, p.binaryArith(dec, arithFamilyOf(op), wrapArith)
	case OpWrapAdd, OpWrapSub, OpWrapMul, OpWrapDiv:
		return -1, p.binaryArith(dec, wrapFamilyOf(op), wrapArith)
	case OpCheckedSAdd, OpCheckedSSub, OpCheckedSMul, OpCheckedSDiv:
		return -1, p.binaryArith(dec, checkedSFamilyOf(op), checkedSigned)
	case OpCheckedUAdd, OpCheckedUSub, OpCheckedUMul, OpCheckedUDiv:
		return -1, p.binaryArith(dec, checkedUFamilyOf(op), checkedUnsigned)
	case OpSaturatingSAdd, OpSaturatingSSub, OpSaturatingSMul, OpSaturatingSDiv:
		return -1, p.binaryArithNoErr(dec, saturatingSFamilyOf(op), saturatingSigned)
	case OpSaturatingUAdd, OpSaturatingUSub, OpSaturatingUMul, OpSaturatingUDiv:
		return -1, p.binaryArithNoErr(dec, saturatingUFamilyOf(op), saturatingUnsigned)

	case OpIinc:
		return -1, p.incdec(dec, 1)
	case OpIdec:
		return -1, p.incdec(dec, -1)

	case OpLt, OpLte, OpGt, OpGte, OpEq:
		return -1, p.compare(dec, op)

	case OpBits:
		return -1, p.opBits(dec)
	case OpBitAnd, OpBitOr, OpBitXor:
		return -1, p.bitwiseBinary(dec, op)
	case OpBitNot:
		return -1, p.bitwiseNot(dec)
	case OpBitAt:
		return -1, p.bitAt(dec)
	case OpBitSet:
		return -1, p.bitSet(dec)
	case OpShl, OpShr, OpAshl, OpAshr, OpRol, OpRor:
		return -1, p.bitShift(dec, op)

	case OpText:
		return -1, p.opText(dec)
	case OpTextEq:
		return -1, p.textEq(dec)
	case OpTextAt:
		return -1, p.textAt(dec)
	case OpTextSub:
		return -1, p.textSub(dec)
	case OpTextLength:
		return -1, p.textLength(dec)
	case OpTextCommonPrefix:
		return -1, p.textCommon(dec, true)
	case OpTextCommonSuffix:
		return -1, p.textCommon(dec, false)
	case OpTextConcat:
		return -1, p.textConcat(dec)

	case OpVector:
		return -1, p.opVector(dec)
	case OpVInsert:
		return -1, p.vInsert(dec)
	case OpVPush:
		return -1, p.vPush(dec)
	case OpVPop:
		return -1, p.vPop(dec)
	case OpVAt:
		return -1, p.vAt(dec)
	case OpVLen:
		return -1, p.vLen(dec)
	case OpStruct:
		return -1, p.opStruct(dec)
	case OpStructInsert:
		return -1, p.structInsert(dec)
	case OpStructRemove:
		return -1, p.structRemove(dec)
	case OpStructKeys:
		return -1, p.structKeys(dec)

	case OpMove:
		return -1, p.opMove(dec)
	case OpCopy:
		return -1, p.opCopy(dec)
	case OpPtr:
		return -1, p.opPtr(dec)
	case OpSwap:
		return -1, p.opSwap(dec)
	case OpDelete:
		return -1, p.opDelete(dec)
	case OpIsNull:
		return -1, p.opIsNull(dec)
	case OpRess:
		return -1, p.opRess(dec)

	case OpClosure:
		return -1, p.opClosure(dec)
	case OpCapture, OpCaptureCopy, OpCaptureMove:
		return -1, p.opCapture(dec, op)
	case OpFunction:
		return -1, p.opFunction(dec)

	case OpFrame:
		return -1, p.opFrame(dec)
	case OpParam:
		return -1, p.opParam(dec, false)
	case OpPamv:
		return -1, p.opParam(dec, true)
	case OpArg:
		return -1, p.opArg(dec)
	case OpArgc:
		return -1, p.opArgc(dec)
	case OpCall:
		return p.opCall(dec)
	case OpTailcall:
		return p.opTailcall(dec)
	case OpDefer:
		return -1, p.opDefer(dec)
	case OpReturn:
		return p.opReturn(dec)

	case OpProcess:
		return -1, p.opProcess(dec)
	case OpSelf:
		return -1, p.opSelf(dec)
	case OpJoin:
		return -1, p.opJoin(dec)
	case OpSend:
		return -1, p.opSend(dec)
	case OpReceive:
		return -1, p.opReceive(dec)
	case OpWatchdog:
		return -1, p.opWatchdog(dec)

	case OpJump:
		return p.opJump(dec)
	case OpIf:
		return p.opIf(dec)
	case OpTry:
		return -1, p.stack.PrepareTry()
	case OpCatch:
		return -1, p.opCatch(dec)
	case OpEnter:
		return p.opEnter(dec)
	case OpDraw:
		return -1, p.opDraw(dec)
	case OpLeave:
		return -1, p.opLeave(dec)
	case OpThrow:
		return -1, p.opThrow(dec)

	case OpImport:
		return -1, p.opImport(dec)
	case OpClass:
		return -1, p.opClass(dec)
	case OpDerive:
		return -1, p.opDerive(dec)
	case OpAttach:
		return -1, p.opAttach(dec)
	case OpRegister:
		return -1, p.opRegister(dec)
	case OpNew:
		return -1, p.opNew(dec)
	case OpMsg:
		return p.opMsg(dec)
	case OpInsert:
		return -1, p.opObjInsert(dec)
	case OpRemove:
		return -1, p.opObjRemove(dec)
	case OpAtom:
		return -1, p.opAtom(dec)
	case OpAtomEq:
		return -1, p.opAtomEq(dec)

	case OpHalt:
		p.kernel.Halt(0)
		p.setFlag(FlagFinished)
		return -1, nil

	default:
		return -1, NewVMError(ErrUndefinedSymbol, "unknown opcode %d", op)
	}
}

// ---------------------------------------------------------------------
// arithmetic
// ---------------------------------------------------------------------

func arithFamilyOf(op Op) arithOp {
	switch op {
	case OpAdd:
		return arithAdd
	case OpSub:
		return arithSub
	case OpMul:
		return arithMul
	default:
		return arithDiv
	}
}

func wrapFamilyOf(op Op) arithOp {
	switch op {
	case OpWrapAdd:
		return arithAdd
	case OpWrapSub:
		return arithSub
	case OpWrapMul:
		return arithMul
	default:
		return arithDiv
	}
}

func checkedSFamilyOf(op Op) arithOp {
	switch op {
	case OpCheckedSAdd:
		return arithAdd
	case OpCheckedSSub:
		return arithSub
	case OpCheckedSMul:
		return arithMul
	default:
		return arithDiv
	}
}

func checkedUFamilyOf(op Op) arithOp {
	switch op {
	case OpCheckedUAdd:
		return arithAdd
	case OpCheckedUSub:
		return arithSub
	case OpCheckedUMul:
		return arithMul
	default:
		return arithDiv
	}
}

func saturatingSFamilyOf(op Op) arithOp {
	switch op {
	case OpSaturatingSAdd:
		return arithAdd
	case OpSaturatingSSub:
		return arithSub
	case OpSaturatingSMul:
		return arithMul
	default:
		return arithDiv
	}
}

func saturatingUFamilyOf(op Op) arithOp {
	switch op {
	case OpSaturatingUAdd:
		return arithAdd
	case OpSaturatingUSub:
		return arithSub
	case OpSaturatingUMul:
		return arithMul
	default:
		return arithDiv
	}
}

func asInteger(v Value) (int64, error) {
	iv, ok := v.(Integer)
	if !ok {
		return 0, NewVMError(ErrType, "expected Integer, got %s", v.TypeName())
	}
	return int64(iv), nil
}

func (p *Process) fetch3RegisterOperands(dec *Decoder) (dst, a, b RegisterOperand, err error) {
	dst, err = dec.FetchRegisterIndex()
	if err != nil {
		return
	}
	a, err = dec.FetchRegisterIndex()
	if err != nil {
		return
	}
	b, err = dec.FetchRegisterIndex()
	return
}

func (p *Process) binaryArith(dec *Decoder, kind arithOp, fn func(arithOp, int64, int64) (int64, error)) error {
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
	a, err := asInteger(av)
	if err != nil {
		return err
	}
	b, err := asInteger(bv)
	if err != nil {
		return err
	}
	r, err := fn(kind, a, b)
	if err != nil {
		return err
	}
	return p.setOperand(dst, Integer(r))
}

func (p *Process) binaryArithNoErr(dec *Decoder, kind arithOp, fn func(arithOp, int64, int64) int64) error {
	return p.binaryArith(dec, kind, func(k arithOp, a, b int64) (int64, error) {
		return fn(k, a, b), nil
	})
}

func (p *Process) incdec(dec *Decoder, delta int64) error {
	target, err := dec.FetchRegisterIndex()
	if err != nil {
		return err
	}
	v, err := p.getOperand(target)
	if err != nil {
		return err
	}
	iv, err := asInteger(v)
	if err != nil {
		return err
	}
	return p.setOperand(target, Integer(iv+delta))
}

func (p *Process) compare(dec *Decoder, op Op) error {
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
	a, err := asInteger(av)
	if err != nil {
		return err
	}
	b, err := asInteger(bv)
	if err != nil {
		return err
	}
	var r bool
	switch op {
	case OpLt:
		r = a < b
	case OpLte:
		r = a <= b
	case OpGt:
		r = a > b
	case OpGte:
		r = a >= b
	case OpEq:
		r = a == b
	}
	return p.setOperand(dst, Boolean(r))
}

// ---------------------------------------------------------------------
// bitwise
// ---------------------------------------------------------------------

func (p *Process) opBits(dec *Decoder) error {
	dst, err := dec.FetchRegisterIndex()
	if err != nil {
		return err
	}
	b, err := dec.FetchBitstring()
	if err != nil {
		return err
	}
	return p.setOperand(dst, b)
}

func asBits(v Value) (*Bits, error) {
	b, ok := v.(*Bits)
	if !ok {
		return nil, NewVMError(ErrType, "expected Bits, got %s", v.TypeName())
	}
	return b, nil
}

func (p *Process) bitwiseBinary(dec *Decoder, op Op) error {
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
	a, err := asBits(av)
	if err != nil {
		return err
	}
	b, err := asBits(bv)
	if err != nil {
		return err
	}
	var fn func(x, y byte) byte
	switch op {
	case OpBitAnd:
		fn = func(x, y byte) byte { return x & y }
	case OpBitOr:
		fn = func(x, y byte) byte { return x | y }
	case OpBitXor:
		fn = func(x, y byte) byte { return x ^ y }
	}
	r, err := applyBitwise(a, b, fn)
	if err != nil {
		return err
	}
	return p.setOperand(dst, r)
}

func (p *Process) bitwiseNot(dec *Decoder) error {
	dst, src, err := p.fetch2RegisterOperands(dec)
	if err != nil {
		return err
	}
	sv, err := p.getOperand(src)
	if err != nil {
		return err
	}
	b, err := asBits(sv)
	if err != nil {
		return err
	}
	out := NewBits(b.nbits)
	for i := range out.data {
		out.data[i] = ^b.data[i]
	}
	return p.setOperand(dst, out)
}

func (p *Process) fetch2RegisterOperands(dec *Decoder) (a, b RegisterOperand, err error) {
	a, err = dec.FetchRegisterIndex()
	if err != nil {
		return
	}
	b, err = dec.FetchRegisterIndex()
	return
}

func (p *Process) bitAt(dec *Decoder) error {
	dst, src, idxOp, err := p.fetch3RegisterOperands(dec)
	if err != nil {
		return err
	}
	sv, err := p.getOperand(src)
	if err != nil {
		return err
	}
	b, err := asBits(sv)
	if err != nil {
		return err
	}
	idxV, err := p.getOperand(idxOp)
	if err != nil {
		return err
	}
	idx, err := asInteger(idxV)
	if err != nil {
		return err
	}
	bit, err := b.At(int(idx))
	if err != nil {
		return err
	}
	return p.setOperand(dst, Boolean(bit))
}

func (p *Process) bitSet(dec *Decoder) error {
	target, idxOp, valOp, err := p.fetch3RegisterOperands(dec)
	if err != nil {
		return err
	}
	tv, err := p.getOperand(target)
	if err != nil {
		return err
	}
	b, err := asBits(tv)
	if err != nil {
		return err
	}
	idxV, err := p.getOperand(idxOp)
	if err != nil {
		return err
	}
	idx, err := asInteger(idxV)
	if err != nil {
		return err
	}
	valV, err := p.getOperand(valOp)
	if err != nil {
		return err
	}
	boolVal, ok := valV.(Boolean)
	if !ok {
		return NewVMError(ErrType, "bitset value must be Boolean, got %s", valV.TypeName())
	}
	return b.Set(int(idx), bool(boolVal))
}

func (p *Process) bitShift(dec *Decoder, op Op) error {
	dst, srcOp, countOp, err := p.fetch3RegisterOperands(dec)
	if err != nil {
		return err
	}
	sv, err := p.getOperand(srcOp)
	if err != nil {
		return err
	}
	b, err := asBits(sv)
	if err != nil {
		return err
	}
	cv, err := p.getOperand(countOp)
	if err != nil {
		return err
	}
	count, err := asInteger(cv)
	if err != nil {
		return err
	}
	out := shiftBits(b, int(count), op)
	return p.setOperand(dst, out)
}

func shiftBits(b *Bits, count int, op Op) *Bits {
	out := NewBits(b.nbits)
	n := b.nbits
	get := func(i int) bool {
		if i < 0 || i >= n {
			return false
		}
		bit, _ := b.At(i)
		return bit
	}
	for i := 0; i < n; i++ {
		var src int
		switch op {
		case OpShl, OpAshl, OpRol:
			src = i - count
			if op == OpRol {
				src = ((i-count)%n + n) % n
			}
		default: // OpShr, OpAshr, OpRor
			src = i + count
			if op == OpRor {
				src = ((i+count)%n + n) % n
			}
		}
		_ = out.Set(i, get(src))
	}
	return out
}

// ---------------------------------------------------------------------
// text
// ---------------------------------------------------------------------

func asText(v Value) (string, error) {
	switch t := v.(type) {
	case Text:
		return string(t), nil
	case *String:
		return t.Str(), nil
	default:
		return "", NewVMError(ErrType, "expected Text, got %s", v.TypeName())
	}
}

func (p *Process) opText(dec *Decoder) error {
	dst, err := dec.FetchRegisterIndex()
	if err != nil {
		return err
	}
	s, err := dec.FetchAtom()
	if err != nil {
		return err
	}
	return p.setOperand(dst, Text(s))
}

func (p *Process) textEq(dec *Decoder) error {
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
	a, err := asText(av)
	if err != nil {
		return err
	}
	b, err := asText(bv)
	if err != nil {
		return err
	}
	return p.setOperand(dst, Boolean(a == b))
}

func (p *Process) textAt(dec *Decoder) error {
	dst, src, idxOp, err := p.fetch3RegisterOperands(dec)
	if err != nil {
		return err
	}
	sv, err := p.getOperand(src)
	if err != nil {
		return err
	}
	s, err := asText(sv)
	if err != nil {
		return err
	}
	runes := []rune(s)
	idxV, err := p.getOperand(idxOp)
	if err != nil {
		return err
	}
	idx, err := asInteger(idxV)
	if err != nil {
		return err
	}
	if idx < 0 || int(idx) >= len(runes) {
		return NewVMError(ErrOutOfRange, "text index %d out of range [0,%d)", idx, len(runes))
	}
	return p.setOperand(dst, Text(string(runes[idx])))
}

func (p *Process) textSub(dec *Decoder) error {
	dst, src, fromOp, toOp, err := p.fetch4RegisterOperands(dec)
	if err != nil {
		return err
	}
	sv, err := p.getOperand(src)
	if err != nil {
		return err
	}
	s, err := asText(sv)
	if err != nil {
		return err
	}
	runes := []rune(s)
	fromV, err := p.getOperand(fromOp)
	if err != nil {
		return err
	}
	from, err := asInteger(fromV)
	if err != nil {
		return err
	}
	toV, err := p.getOperand(toOp)
	if err != nil {
		return err
	}
	to, err := asInteger(toV)
	if err != nil {
		return err
	}
	if from < 0 || to > int64(len(runes)) || from > to {
		return NewVMError(ErrOutOfRange, "text substring [%d,%d) out of range [0,%d]", from, to, len(runes))
	}
	return p.setOperand(dst, Text(string(runes[from:to])))
}

func (p *Process) fetch4RegisterOperands(dec *Decoder) (a, b, c, d RegisterOperand, err error) {
	a, err = dec.FetchRegisterIndex()
	if err != nil {
		return
	}
	b, err = dec.FetchRegisterIndex()
	if err != nil {
		return
	}
	c, err = dec.FetchRegisterIndex()
	if err != nil {
		return
	}
	d, err = dec.FetchRegisterIndex()
	return
}

func (p *Process) textLength(dec *Decoder) error {
	dst, src, err := p.fetch2RegisterOperands(dec)
	if err != nil {
		return err
	}
	sv, err := p.getOperand(src)
	if err != nil {
		return err
	}
	s, err := asText(sv)
	if err != nil {
		return err
	}
	return p.setOperand(dst, Integer(len([]rune(s))))
}

func (p *Process) textCommon(dec *Decoder, prefix bool) error {
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
	a, err := asText(av)
	if err != nil {
		return err
	}
	b, err := asText(bv)
	if err != nil {
		return err
	}
	ar, br := []rune(a), []rune(b)
	if prefix {
		n := 0
		for n < len(ar) && n < len(br) && ar[n] == br[n] {
			n++
		}
		return p.setOperand(dst, Text(string(ar[:n])))
	}
	n := 0
	for n < len(ar) && n < len(br) && ar[len(ar)-1-n] == br[len(br)-1-n] {
		n++
	}
	return p.setOperand(dst, Text(string(ar[len(ar)-n:])))
}

func (p *Process) textConcat(dec *Decoder) error {
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
	a, err := asText(av)
	if err != nil {
		return err
	}
	b, err := asText(bv)
	if err != nil {
		return err
	}
	return p.setOperand(dst, Text(a+b))
}

// ---------------------------------------------------------------------
// containers
// ---------------------------------------------------------------------

func asVector(v Value) (*Vector, error) {
	vec, ok := v.(*Vector)
	if !ok {
		return nil, NewVMError(ErrType, "expected Vector, got %s", v.TypeName())
	}
	return vec, nil
}

// opVector packs N consecutive locals (starting at a base register) into
// a fresh Vector; each source slot becomes empty (spec.md §4.5).
func (p *Process) opVector(dec *Decoder) error {
	dst, err := dec.FetchRegisterIndex()
	if err != nil {
		return err
	}
	base, err := dec.FetchRegisterIndex()
	if err != nil {
		return err
	}
	n, err := dec.FetchPrimitiveUint()
	if err != nil {
		return err
	}
	items := make([]Value, 0, n)
	for i := 0; i < int(n); i++ {
		op := base
		op.Index = base.Index + i
		v, err := p.popOperand(op)
		if err != nil {
			return err
		}
		items = append(items, v)
	}
	return p.setOperand(dst, NewVector(items))
}

func (p *Process) vInsert(dec *Decoder) error {
	target, idxOp, valOp, err := p.fetch3RegisterOperands(dec)
	if err != nil {
		return err
	}
	tv, err := p.getOperand(target)
	if err != nil {
		return err
	}
	vec, err := asVector(tv)
	if err != nil {
		return err
	}
	idxV, err := p.getOperand(idxOp)
	if err != nil {
		return err
	}
	idx, err := asInteger(idxV)
	if err != nil {
		return err
	}
	val, err := p.popOperand(valOp)
	if err != nil {
		return err
	}
	return vec.Insert(int(idx), val)
}

func (p *Process) vPush(dec *Decoder) error {
	target, valOp, err := p.fetch2RegisterOperands(dec)
	if err != nil {
		return err
	}
	tv, err := p.getOperand(target)
	if err != nil {
		return err
	}
	vec, err := asVector(tv)
	if err != nil {
		return err
	}
	val, err := p.popOperand(valOp)
	if err != nil {
		return err
	}
	vec.Push(val)
	return nil
}

func (p *Process) vPop(dec *Decoder) error {
	dst, target, err := p.fetch2RegisterOperands(dec)
	if err != nil {
		return err
	}
	tv, err := p.getOperand(target)
	if err != nil {
		return err
	}
	vec, err := asVector(tv)
	if err != nil {
		return err
	}
	v, err := vec.Pop()
	if err != nil {
		return err
	}
	return p.setOperand(dst, v)
}

func (p *Process) vAt(dec *Decoder) error {
	dst, target, idxOp, err := p.fetch3RegisterOperands(dec)
	if err != nil {
		return err
	}
	tv, err := p.getOperand(target)
	if err != nil {
		return err
	}
	vec, err := asVector(tv)
	if err != nil {
		return err
	}
	idxV, err := p.getOperand(idxOp)
	if err != nil {
		return err
	}
	idx, err := asInteger(idxV)
	if err != nil {
		return err
	}
	v, err := vec.At(int(idx))
	if err != nil {
		return err
	}
	return p.setOperand(dst, v)
}

func (p *Process) vLen(dec *Decoder) error {
	dst, target, err := p.fetch2RegisterOperands(dec)
	if err != nil {
		return err
	}
	tv, err := p.getOperand(target)
	if err != nil {
		return err
	}
	vec, err := asVector(tv)
	if err != nil {
		return err
	}
	return p.setOperand(dst, Integer(vec.Len()))
}

func asStruct(v Value) (*Struct, error) {
	s, ok := v.(*Struct)
	if !ok {
		return nil, NewVMError(ErrType, "expected Struct, got %s", v.TypeName())
	}
	return s, nil
}

func (p *Process) opStruct(dec *Decoder) error {
	dst, err := dec.FetchRegisterIndex()
	if err != nil {
		return err
	}
	return p.setOperand(dst, NewStruct())
}

func (p *Process) structInsert(dec *Decoder) error {
	target, keyOp, valOp, err := p.fetch3RegisterOperands(dec)
	if err != nil {
		return err
	}
	tv, err := p.getOperand(target)
	if err != nil {
		return err
	}
	st, err := asStruct(tv)
	if err != nil {
		return err
	}
	keyV, err := p.getOperand(keyOp)
	if err != nil {
		return err
	}
	key, ok := keyV.(Atom)
	if !ok {
		return NewVMError(ErrType, "struct key must be Atom, got %s", keyV.TypeName())
	}
	val, err := p.popOperand(valOp)
	if err != nil {
		return err
	}
	st.Insert(string(key), val)
	return nil
}

func (p *Process) structRemove(dec *Decoder) error {
	dst, target, keyOp, err := p.fetch3RegisterOperands(dec)
	if err != nil {
		return err
	}
	tv, err := p.getOperand(target)
	if err != nil {
		return err
	}
	st, err := asStruct(tv)
	if err != nil {
		return err
	}
	keyV, err := p.getOperand(keyOp)
	if err != nil {
		return err
	}
	key, ok := keyV.(Atom)
	if !ok {
		return NewVMError(ErrType, "struct key must be Atom, got %s", keyV.TypeName())
	}
	val, ok := st.Remove(string(key))
	if !ok {
		return NewVMError(ErrOutOfRange, "struct has no key %q", key)
	}
	return p.setOperand(dst, val)
}

func (p *Process) structKeys(dec *Decoder) error {
	dst, target, err := p.fetch2RegisterOperands(dec)
	if err != nil {
		return err
	}
	tv, err := p.getOperand(target)
	if err != nil {
		return err
	}
	st, err := asStruct(tv)
	if err != nil {
		return err
	}
	keys := st.Keys()
	sort.Strings(keys)
	items := make([]Value, len(keys))
	for i, k := range keys {
		items[i] = Atom(k)
	}
	return p.setOperand(dst, NewVector(items))
}

// ---------------------------------------------------------------------
// move & lifecycle
// ---------------------------------------------------------------------

func (p *Process) opMove(dec *Decoder) error {
	dst, src, err := p.fetch2RegisterOperands(dec)
	if err != nil {
		return err
	}
	v, err := p.popOperand(src)
	if err != nil {
		return err
	}
	return p.setOperand(dst, v)
}

func (p *Process) opCopy(dec *Decoder) error {
	dst, src, err := p.fetch2RegisterOperands(dec)
	if err != nil {
		return err
	}
	v, err := p.getOperand(src)
	if err != nil {
		return err
	}
	return p.setOperand(dst, v.Copy())
}

func (p *Process) opPtr(dec *Decoder) error {
	dst, src, err := p.fetch2RegisterOperands(dec)
	if err != nil {
		return err
	}
	rs, idx, err := p.resolveSlot(src)
	if err != nil {
		return err
	}
	_ = rs
	depth := len(p.stack.Frames) - 1
	return p.setOperand(dst, Pointer{FrameDepth: depth, Set: src.Set, Index: idx})
}

func (p *Process) opSwap(dec *Decoder) error {
	a, b, err := p.fetch2RegisterOperands(dec)
	if err != nil {
		return err
	}
	rsA, idxA, err := p.resolveSlot(a)
	if err != nil {
		return err
	}
	rsB, idxB, err := p.resolveSlot(b)
	if err != nil {
		return err
	}
	if rsA == rsB {
		return rsA.Swap(idxA, idxB)
	}
	va, err := rsA.Get(idxA)
	if err != nil {
		return err
	}
	vb, err := rsB.Get(idxB)
	if err != nil {
		return err
	}
	if err := rsA.Set(idxA, vb); err != nil {
		return err
	}
	return rsB.Set(idxB, va)
}

func (p *Process) opDelete(dec *Decoder) error {
	target, err := dec.FetchRegisterIndex()
	if err != nil {
		return err
	}
	rs, idx, err := p.resolveSlot(target)
	if err != nil {
		return err
	}
	return rs.Free(idx)
}

func (p *Process) opIsNull(dec *Decoder) error {
	dst, target, err := p.fetch2RegisterOperands(dec)
	if err != nil {
		return err
	}
	rs, idx, err := p.resolveSlot(target)
	if err != nil {
		return err
	}
	empty, err := rs.IsEmpty(idx)
	if err != nil {
		return err
	}
	return p.setOperand(dst, Boolean(empty))
}

func (p *Process) opRess(dec *Decoder) error {
	raw, err := dec.FetchPrimitiveUint()
	if err != nil {
		return err
	}
	switch RegisterSetID(raw) {
	case RegisterSetLocal, RegisterSetStatic, RegisterSetGlobal:
		return nil // selector is honored per-operand already; ress only validates it exists
	default:
		return NewVMError(ErrType, "undefined register set selector %d (temp register set is not implemented)", raw)
	}
}

// ---------------------------------------------------------------------
// closures & callables
// ---------------------------------------------------------------------

func (p *Process) opClosure(dec *Decoder) error {
	dst, err := dec.FetchRegisterIndex()
	if err != nil {
		return err
	}
	fn, err := dec.FetchAtom()
	if err != nil {
		return err
	}
	size, err := dec.FetchPrimitiveUint()
	if err != nil {
		return err
	}
	return p.setOperand(dst, NewClosure(fn, int(size)))
}

func (p *Process) opCapture(dec *Decoder, op Op) error {
	target, slotOp, srcOp, err := p.fetch3RegisterOperands(dec)
	if err != nil {
		return err
	}
	tv, err := p.getOperand(target)
	if err != nil {
		return err
	}
	cl, ok := tv.(*Closure)
	if !ok {
		return NewVMError(ErrType, "capture target must be Closure, got %s", tv.TypeName())
	}
	var v Value
	switch op {
	case OpCapture, OpCaptureCopy:
		v, err = p.getOperand(srcOp)
		if err == nil && op == OpCaptureCopy {
			v = v.Copy()
		}
	case OpCaptureMove:
		v, err = p.popOperand(srcOp)
	}
	if err != nil {
		return err
	}
	return cl.Captured.Set(slotOp.Index, v)
}

func (p *Process) opFunction(dec *Decoder) error {
	dst, err := dec.FetchRegisterIndex()
	if err != nil {
		return err
	}
	name, err := dec.FetchAtom()
	if err != nil {
		return err
	}
	return p.setOperand(dst, FunctionReference{Name: name})
}
