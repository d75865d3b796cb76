// opcodes.go - the instruction set named in spec.md §4.5, as a closed Go
// enum. Grounded on assembler/ie64dis.go's opcode name table, which pairs
// every numeric opcode with a mnemonic for disassembly; this module plays
// the same role for the decoder/process dispatch and the debugger.

package viua

type Op Opcode

const (
	OpNop Op = iota

	// arithmetic & logic
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpWrapAdd
	OpWrapSub
	OpWrapMul
	OpWrapDiv
	OpCheckedSAdd
	OpCheckedSSub
	OpCheckedSMul
	OpCheckedSDiv
	OpCheckedUAdd
	OpCheckedUSub
	OpCheckedUMul
	OpCheckedUDiv
	OpSaturatingSAdd
	OpSaturatingSSub
	OpSaturatingSMul
	OpSaturatingSDiv
	OpSaturatingUAdd
	OpSaturatingUSub
	OpSaturatingUMul
	OpSaturatingUDiv
	OpIinc
	OpIdec
	OpLt
	OpLte
	OpGt
	OpGte
	OpEq

	// bitwise
	OpBits
	OpBitAnd
	OpBitOr
	OpBitXor
	OpBitNot
	OpBitAt
	OpBitSet
	OpShl
	OpShr
	OpAshl
	OpAshr
	OpRol
	OpRor

	// text
	OpText
	OpTextEq
	OpTextAt
	OpTextSub
	OpTextLength
	OpTextCommonPrefix
	OpTextCommonSuffix
	OpTextConcat

	// containers
	OpVector
	OpVInsert
	OpVPush
	OpVPop
	OpVAt
	OpVLen
	OpStruct
	OpStructInsert
	OpStructRemove
	OpStructKeys

	// move & lifecycle
	OpMove
	OpCopy
	OpPtr
	OpSwap
	OpDelete
	OpIsNull
	OpRess

	// closures & callables
	OpClosure
	OpCapture
	OpCaptureCopy
	OpCaptureMove
	OpFunction

	// calls
	OpFrame
	OpParam
	OpPamv
	OpArg
	OpArgc
	OpCall
	OpTailcall
	OpDefer
	OpReturn

	// processes & messaging
	OpProcess
	OpSelf
	OpJoin
	OpSend
	OpReceive
	OpWatchdog

	// control
	OpJump
	OpIf
	OpTry
	OpCatch
	OpEnter
	OpDraw
	OpLeave
	OpThrow

	// linking & modules
	OpImport
	OpClass
	OpDerive
	OpAttach
	OpRegister
	OpNew
	OpMsg
	OpInsert
	OpRemove
	OpAtom
	OpAtomEq

	// termination
	OpHalt
)

var opcodeNames = map[Op]string{
	OpNop: "nop",

	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpDiv: "div",
	OpWrapAdd: "wrapadd", OpWrapSub: "wrapsub", OpWrapMul: "wrapmul", OpWrapDiv: "wrapdiv",
	OpCheckedSAdd: "checkeds_add", OpCheckedSSub: "checkeds_sub", OpCheckedSMul: "checkeds_mul", OpCheckedSDiv: "checkeds_div",
	OpCheckedUAdd: "checkedu_add", OpCheckedUSub: "checkedu_sub", OpCheckedUMul: "checkedu_mul", OpCheckedUDiv: "checkedu_div",
	OpSaturatingSAdd: "saturatings_add", OpSaturatingSSub: "saturatings_sub", OpSaturatingSMul: "saturatings_mul", OpSaturatingSDiv: "saturatings_div",
	OpSaturatingUAdd: "saturatingu_add", OpSaturatingUSub: "saturatingu_sub", OpSaturatingUMul: "saturatingu_mul", OpSaturatingUDiv: "saturatingu_div",
	OpIinc: "iinc", OpIdec: "idec",
	OpLt: "lt", OpLte: "lte", OpGt: "gt", OpGte: "gte", OpEq: "eq",

	OpBits: "bits", OpBitAnd: "bitand", OpBitOr: "bitor", OpBitXor: "bitxor", OpBitNot: "bitnot",
	OpBitAt: "bitat", OpBitSet: "bitset",
	OpShl: "shl", OpShr: "shr", OpAshl: "ashl", OpAshr: "ashr", OpRol: "rol", OpRor: "ror",

	OpText: "text", OpTextEq: "texteq", OpTextAt: "textat", OpTextSub: "textsub",
	OpTextLength: "textlength", OpTextCommonPrefix: "textcommonprefix",
	OpTextCommonSuffix: "textcommonsuffix", OpTextConcat: "textconcat",

	OpVector: "vector", OpVInsert: "vinsert", OpVPush: "vpush", OpVPop: "vpop", OpVAt: "vat", OpVLen: "vlen",
	OpStruct: "struct", OpStructInsert: "structinsert", OpStructRemove: "structremove", OpStructKeys: "structkeys",

	OpMove: "move", OpCopy: "copy", OpPtr: "ptr", OpSwap: "swap", OpDelete: "delete",
	OpIsNull: "isnull", OpRess: "ress",

	OpClosure: "closure", OpCapture: "capture", OpCaptureCopy: "capturecopy", OpCaptureMove: "capturemove",
	OpFunction: "function",

	OpFrame: "frame", OpParam: "param", OpPamv: "pamv", OpArg: "arg", OpArgc: "argc",
	OpCall: "call", OpTailcall: "tailcall", OpDefer: "defer", OpReturn: "return",

	OpProcess: "process", OpSelf: "self", OpJoin: "join", OpSend: "send",
	OpReceive: "receive", OpWatchdog: "watchdog",

	OpJump: "jump", OpIf: "if", OpTry: "try", OpCatch: "catch", OpEnter: "enter",
	OpDraw: "draw", OpLeave: "leave", OpThrow: "throw",

	OpImport: "import", OpClass: "class", OpDerive: "derive", OpAttach: "attach",
	OpRegister: "register", OpNew: "new", OpMsg: "msg", OpInsert: "insert", OpRemove: "remove",
	OpAtom: "atom", OpAtomEq: "atomeq",

	OpHalt: "halt",
}

func (o Op) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return "unknown"
}
