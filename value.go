// value.go - the polymorphic Value variants shared by every register slot.
//
// Grounded on cpu_ie32.go's register file (getRegister/resolveOperand),
// generalised from a flat uint32 word to spec.md §3's tagged-variant model.
// A closed sum type like this has no analogue in any library in the pack
// (the domain deps are all video/audio backends, not data modeling
// libraries), so it is built on the standard library only -- see DESIGN.md.

package viua

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is the interface every register-slot payload satisfies.
type Value interface {
	TypeName() string
	Str() string
	Repr() string
	Boolean() bool
	Copy() Value
}

// ---------------------------------------------------------------------
// Integer
// ---------------------------------------------------------------------

type Integer int64

func (v Integer) TypeName() string { return "Integer" }
func (v Integer) Str() string      { return strconv.FormatInt(int64(v), 10) }
func (v Integer) Repr() string     { return v.Str() }
func (v Integer) Boolean() bool    { return v != 0 }
func (v Integer) Copy() Value      { return v }

// ---------------------------------------------------------------------
// Float
// ---------------------------------------------------------------------

type Float float64

func (v Float) TypeName() string { return "Float" }
func (v Float) Str() string      { return strconv.FormatFloat(float64(v), 'g', -1, 64) }
func (v Float) Repr() string     { return v.Str() }
func (v Float) Boolean() bool    { return v != 0 && !math.IsNaN(float64(v)) }
func (v Float) Copy() Value      { return v }

// ---------------------------------------------------------------------
// Boolean
// ---------------------------------------------------------------------

type Boolean bool

func (v Boolean) TypeName() string { return "Boolean" }
func (v Boolean) Str() string      { return strconv.FormatBool(bool(v)) }
func (v Boolean) Repr() string     { return v.Str() }
func (v Boolean) Boolean() bool    { return bool(v) }
func (v Boolean) Copy() Value      { return v }

// ---------------------------------------------------------------------
// Byte
// ---------------------------------------------------------------------

type Byte byte

func (v Byte) TypeName() string { return "Byte" }
func (v Byte) Str() string      { return strconv.Itoa(int(v)) }
func (v Byte) Repr() string     { return fmt.Sprintf("0x%02x", byte(v)) }
func (v Byte) Boolean() bool    { return v != 0 }
func (v Byte) Copy() Value      { return v }

// ---------------------------------------------------------------------
// Bits (arbitrary-length bit string, stored packed 8-to-a-byte, length in bits)
// ---------------------------------------------------------------------

type Bits struct {
	data   []byte
	nbits  int
}

func NewBits(nbits int) *Bits {
	return &Bits{data: make([]byte, (nbits+7)/8), nbits: nbits}
}

func BitsFromBytes(b []byte) *Bits {
	data := make([]byte, len(b))
	copy(data, b)
	return &Bits{data: data, nbits: len(b) * 8}
}

func (v *Bits) Len() int { return v.nbits }

func (v *Bits) At(i int) (bool, error) {
	if i < 0 || i >= v.nbits {
		return false, NewVMError(ErrOutOfRange, "bit index %d out of range [0,%d)", i, v.nbits)
	}
	return v.data[i/8]&(1<<uint(i%8)) != 0, nil
}

func (v *Bits) Set(i int, bit bool) error {
	if i < 0 || i >= v.nbits {
		return NewVMError(ErrOutOfRange, "bit index %d out of range [0,%d)", i, v.nbits)
	}
	if bit {
		v.data[i/8] |= 1 << uint(i%8)
	} else {
		v.data[i/8] &^= 1 << uint(i%8)
	}
	return nil
}

func (v *Bits) TypeName() string { return "Bits" }
func (v *Bits) Str() string {
	var sb strings.Builder
	for i := v.nbits - 1; i >= 0; i-- {
		bit, _ := v.At(i)
		if bit {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}
func (v *Bits) Repr() string  { return "bits(" + v.Str() + ")" }
func (v *Bits) Boolean() bool {
	for _, b := range v.data {
		if b != 0 {
			return true
		}
	}
	return false
}
func (v *Bits) Copy() Value {
	cp := NewBits(v.nbits)
	copy(cp.data, v.data)
	return cp
}

func applyBitwise(a, b *Bits, op func(x, y byte) byte) (*Bits, error) {
	if a.nbits != b.nbits {
		return nil, NewVMError(ErrType, "bitstring length mismatch: %d vs %d", a.nbits, b.nbits)
	}
	out := NewBits(a.nbits)
	for i := range out.data {
		out.data[i] = op(a.data[i], b.data[i])
	}
	return out, nil
}

// ---------------------------------------------------------------------
// Text (immutable UTF-8)
// ---------------------------------------------------------------------

type Text string

func (v Text) TypeName() string { return "Text" }
func (v Text) Str() string      { return string(v) }
func (v Text) Repr() string     { return strconv.Quote(string(v)) }
func (v Text) Boolean() bool    { return len(v) > 0 }
func (v Text) Copy() Value      { return v }

// ---------------------------------------------------------------------
// String (legacy mutable byte string)
// ---------------------------------------------------------------------

type String struct{ bytes []byte }

func NewString(s []byte) *String {
	b := make([]byte, len(s))
	copy(b, s)
	return &String{bytes: b}
}

func (v *String) TypeName() string { return "String" }
func (v *String) Str() string      { return string(v.bytes) }
func (v *String) Repr() string     { return strconv.Quote(string(v.bytes)) }
func (v *String) Boolean() bool    { return len(v.bytes) > 0 }
func (v *String) Copy() Value      { return NewString(v.bytes) }

// ---------------------------------------------------------------------
// Atom (interned identifier; plain Go strings already compare by value)
// ---------------------------------------------------------------------

type Atom string

func (v Atom) TypeName() string { return "Atom" }
func (v Atom) Str() string      { return string(v) }
func (v Atom) Repr() string     { return "'" + string(v) }
func (v Atom) Boolean() bool    { return len(v) > 0 }
func (v Atom) Copy() Value      { return v }

// ---------------------------------------------------------------------
// Vector (ordered sequence of owned Values)
// ---------------------------------------------------------------------

type Vector struct{ items []Value }

func NewVector(items []Value) *Vector { return &Vector{items: items} }

func (v *Vector) Len() int { return len(v.items) }

func (v *Vector) At(i int) (Value, error) {
	if i < 0 || i >= len(v.items) {
		return nil, NewVMError(ErrOutOfRange, "vector index %d out of range [0,%d)", i, len(v.items))
	}
	return v.items[i], nil
}

func (v *Vector) Push(val Value) { v.items = append(v.items, val) }

func (v *Vector) Pop() (Value, error) {
	if len(v.items) == 0 {
		return nil, NewVMError(ErrOutOfRange, "pop of empty vector")
	}
	last := v.items[len(v.items)-1]
	v.items = v.items[:len(v.items)-1]
	return last, nil
}

func (v *Vector) Insert(i int, val Value) error {
	if i < 0 || i > len(v.items) {
		return NewVMError(ErrOutOfRange, "vector insert index %d out of range [0,%d]", i, len(v.items))
	}
	v.items = append(v.items, nil)
	copy(v.items[i+1:], v.items[i:])
	v.items[i] = val
	return nil
}

func (v *Vector) TypeName() string { return "Vector" }
func (v *Vector) Str() string {
	parts := make([]string, len(v.items))
	for i, it := range v.items {
		parts[i] = it.Repr()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
func (v *Vector) Repr() string  { return v.Str() }
func (v *Vector) Boolean() bool { return len(v.items) > 0 }
func (v *Vector) Copy() Value {
	cp := make([]Value, len(v.items))
	for i, it := range v.items {
		cp[i] = it.Copy()
	}
	return &Vector{items: cp}
}

// ---------------------------------------------------------------------
// Struct (insertion-ordered atom -> owned Value mapping)
// ---------------------------------------------------------------------

type Struct struct {
	keys []string
	vals map[string]Value
}

func NewStruct() *Struct {
	return &Struct{vals: make(map[string]Value)}
}

func (v *Struct) Insert(key string, val Value) {
	if _, exists := v.vals[key]; !exists {
		v.keys = append(v.keys, key)
	}
	v.vals[key] = val
}

func (v *Struct) Get(key string) (Value, bool) {
	val, ok := v.vals[key]
	return val, ok
}

func (v *Struct) Remove(key string) (Value, bool) {
	val, ok := v.vals[key]
	if !ok {
		return nil, false
	}
	delete(v.vals, key)
	for i, k := range v.keys {
		if k == key {
			v.keys = append(v.keys[:i], v.keys[i+1:]...)
			break
		}
	}
	return val, true
}

func (v *Struct) Keys() []string {
	out := make([]string, len(v.keys))
	copy(out, v.keys)
	return out
}

func (v *Struct) TypeName() string { return "Struct" }
func (v *Struct) Str() string {
	parts := make([]string, 0, len(v.keys))
	for _, k := range v.keys {
		parts = append(parts, k+": "+v.vals[k].Repr())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
func (v *Struct) Repr() string  { return v.Str() }
func (v *Struct) Boolean() bool { return len(v.keys) > 0 }
func (v *Struct) Copy() Value {
	cp := NewStruct()
	for _, k := range v.keys {
		cp.Insert(k, v.vals[k].Copy())
	}
	return cp
}

// ---------------------------------------------------------------------
// Closure (function name + captured register snapshot)
// ---------------------------------------------------------------------

type Closure struct {
	FunctionName string
	Captured     *RegisterSet
}

func NewClosure(fn string, capturedSize int) *Closure {
	return &Closure{FunctionName: fn, Captured: NewRegisterSet(capturedSize)}
}

func (v *Closure) TypeName() string { return "Closure" }
func (v *Closure) Str() string      { return "closure:" + v.FunctionName }
func (v *Closure) Repr() string     { return v.Str() }
func (v *Closure) Boolean() bool    { return true }
func (v *Closure) Copy() Value {
	cp := &Closure{FunctionName: v.FunctionName, Captured: NewRegisterSet(v.Captured.Size())}
	for i := 0; i < v.Captured.Size(); i++ {
		if val, err := v.Captured.Get(i); err == nil {
			_ = cp.Captured.Set(i, val.Copy())
		}
	}
	return cp
}

// ---------------------------------------------------------------------
// FunctionReference (bare function name, uncaptured)
// ---------------------------------------------------------------------

type FunctionReference struct{ Name string }

func (v FunctionReference) TypeName() string { return "Function" }
func (v FunctionReference) Str() string      { return "function:" + v.Name }
func (v FunctionReference) Repr() string     { return v.Str() }
func (v FunctionReference) Boolean() bool    { return true }
func (v FunctionReference) Copy() Value      { return v }

// ---------------------------------------------------------------------
// ProcessHandle (pid + weak reference)
// ---------------------------------------------------------------------

type ProcessHandle struct {
	PID  uint64
	proc *Process // weak: never dereferenced without going through the kernel's process table
}

func (v ProcessHandle) TypeName() string { return "Process" }
func (v ProcessHandle) Str() string      { return fmt.Sprintf("process:%d", v.PID) }
func (v ProcessHandle) Repr() string     { return v.Str() }
func (v ProcessHandle) Boolean() bool    { return v.PID != 0 }
func (v ProcessHandle) Copy() Value      { return v }

// ---------------------------------------------------------------------
// Pointer (non-owning weak reference into a process's own registers)
// ---------------------------------------------------------------------

// Pointer identifies a register slot by (call-frame depth, register-set
// selector, slot index) within the same process's stack. Validity is
// checked lazily at Deref time (original_source/include/viua/types/pointer.h:
// a dangling pointer raises only when actually read, not when created).
type Pointer struct {
	FrameDepth int
	Set        RegisterSetID
	Index      int
}

func (v Pointer) TypeName() string { return "Pointer" }
func (v Pointer) Str() string      { return fmt.Sprintf("ptr(%d,%d,%d)", v.FrameDepth, v.Set, v.Index) }
func (v Pointer) Repr() string     { return v.Str() }
func (v Pointer) Boolean() bool    { return true }
func (v Pointer) Copy() Value      { return v }

// Deref resolves the pointer against the owning process's current stack,
// returning OutOfRange if the referenced frame no longer exists.
func (v Pointer) Deref(p *Process) (Value, error) {
	if v.FrameDepth < 0 || v.FrameDepth >= len(p.stack.Frames) {
		return nil, NewVMError(ErrOutOfRange, "dangling pointer: frame depth %d no longer exists", v.FrameDepth)
	}
	rs, err := p.registerSetFor(p.stack.Frames[v.FrameDepth], v.Set)
	if err != nil {
		return nil, err
	}
	return rs.Get(v.Index)
}

// ---------------------------------------------------------------------
// Reference (counted shared ownership)
// ---------------------------------------------------------------------

type refCell struct {
	value Value
	count int
}

type Reference struct{ cell *refCell }

func NewReference(v Value) *Reference {
	return &Reference{cell: &refCell{value: v, count: 1}}
}

func (v *Reference) TypeName() string { return v.cell.value.TypeName() }
func (v *Reference) Str() string      { return v.cell.value.Str() }
func (v *Reference) Repr() string     { return v.cell.value.Repr() }
func (v *Reference) Boolean() bool    { return v.cell.value.Boolean() }

// Copy increments the shared refcount and returns a new handle to the same
// cell -- per spec.md §4.2, a Reference's copy is shared, not deep.
func (v *Reference) Copy() Value {
	v.cell.count++
	return &Reference{cell: v.cell}
}

// Deref returns the underlying shared Value, transparently unwrapping the
// Reference the way fetch_object does per spec.md §4.2.
func (v *Reference) Deref() Value { return v.cell.value }

func (v *Reference) Set(val Value) { v.cell.value = val }

// ---------------------------------------------------------------------
// Exception (kind tag + payload + message)
// ---------------------------------------------------------------------

type Exception struct {
	Kind    string // type name used by the unwinder's catcher lookup
	Payload Value
	Msg     string
}

func NewException(kind, msg string) *Exception {
	return &Exception{Kind: kind, Msg: msg}
}

func (v *Exception) TypeName() string { return v.Kind }
func (v *Exception) Str() string      { return v.Kind + ": " + v.Msg }
func (v *Exception) Repr() string     { return v.Str() }
func (v *Exception) Boolean() bool    { return true }
func (v *Exception) Copy() Value {
	var payload Value
	if v.Payload != nil {
		payload = v.Payload.Copy()
	}
	return &Exception{Kind: v.Kind, Payload: payload, Msg: v.Msg}
}

// exceptionFromVMError renders a runtime VMError as a thrown Exception
// Value, giving it the error kind's canonical name as its type name so it
// participates in catcher lookup like any user-defined exception class.
func exceptionFromVMError(err *VMError) *Exception {
	return &Exception{Kind: err.Kind.String(), Msg: err.Message}
}

// ---------------------------------------------------------------------
// Object (prototype name + slot mapping)
// ---------------------------------------------------------------------

type Object struct {
	Prototype string
	Slots     map[string]Value
}

func NewObject(prototype string) *Object {
	return &Object{Prototype: prototype, Slots: make(map[string]Value)}
}

func (v *Object) TypeName() string { return v.Prototype }
func (v *Object) Str() string      { return "object:" + v.Prototype }
func (v *Object) Repr() string     { return v.Str() }
func (v *Object) Boolean() bool    { return true }
func (v *Object) Copy() Value {
	cp := NewObject(v.Prototype)
	for k, val := range v.Slots {
		cp.Slots[k] = val.Copy()
	}
	return cp
}
