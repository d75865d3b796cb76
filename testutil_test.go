// testutil_test.go - a tiny bytecode assembler used only by this package's
// tests, encoding instructions the same way decoder.go reads them. Kept
// separate from the runtime itself since assembling textual/programmatic
// instructions into bytes is explicitly out of scope (spec.md §1); tests
// still need *some* way to drive the dispatch loop with real bytecode.

package viua

import "encoding/binary"

type asm struct {
	buf []byte
}

func newAsm() *asm { return &asm{} }

func (a *asm) op(o Op) *asm {
	a.buf = append(a.buf, byte(o))
	return a
}

// reg encodes a direct local-register operand.
func (a *asm) reg(idx int) *asm {
	return a.regFull(idx, RegisterSetLocal, AccessDirect)
}

func (a *asm) regFull(idx int, set RegisterSetID, mode AccessMode) *asm {
	prefix := byte(mode&accessModeMask) | byte(set&regSetMask)<<regSetShift
	a.buf = append(a.buf, prefix)
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(idx))
	a.buf = append(a.buf, b[:]...)
	return a
}

func (a *asm) void() *asm {
	a.buf = append(a.buf, voidMarker)
	return a
}

func (a *asm) uint32(v uint32) *asm {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	a.buf = append(a.buf, b[:]...)
	return a
}

func (a *asm) int64(v int64) *asm {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	a.buf = append(a.buf, b[:]...)
	return a
}

func (a *asm) atom(s string) *asm {
	a.uint32(uint32(len(s)))
	a.buf = append(a.buf, []byte(s)...)
	return a
}

func (a *asm) bytes() []byte { return a.buf }

// newTestProcess builds a bare Process with one active frame of nLocals
// registers, on an empty Kernel with no Image booted -- enough to drive p.execute
// directly for single-instruction unit tests.
func newTestProcess(nLocals int) *Process {
	k := NewKernel(Config{}, nil)
	p := &Process{
		PID:     1,
		globals: NewRegisterSet(8),
		statics: make(map[string]*RegisterSet),
		Mailbox: NewMailbox(),
		kernel:  k,
		stack:   NewStack(),
	}
	f := NewFrame("main/0", 0, nLocals)
	p.stack.Frames = append(p.stack.Frames, f)
	k.processes[p.PID] = p
	return p
}

// execOne decodes and runs a single instruction sequence against p,
// returning any error from execute.
func execOne(p *Process, code []byte) error {
	dec := NewDecoder(code, 0)
	op, err := dec.FetchOpcode()
	if err != nil {
		return err
	}
	_, err = p.execute(Op(op), dec)
	return err
}
