package codegen

import "fmt"

// Type is the destination/operand type carried by a decoded instruction
// word (spec.md §3 "DecodedInstruction", §4.1 bits 7-11 / 9-13).
type Type uint8

const (
	// TypeVoid marks an operand slot that carries no value: the slot's
	// 20-bit field is never an instruction index.
	TypeVoid Type = iota
	// TypeInfo marks an operand slot used for auxiliary, non-reference
	// payload (e.g. a shift amount literal, a branch condition code).
	// Like TypeVoid, it is never instruction-bearing.
	TypeInfo
	TypeBoolean
	TypeInt8
	TypeUInt8
	TypeInt16
	TypeUInt16
	TypeInt32
	TypeUInt32
	TypeInt64
	TypeUInt64
	TypeFloat32
	TypeFloat64
	TypePointer
	TypeGCPointer
	TypeProcedureHandle
	TypeLabel
)

// IsInstructionBearing reports whether an operand slot of this type is an
// instruction index rather than an inline immediate (spec.md §4.1).
func (t Type) IsInstructionBearing() bool {
	return t != TypeVoid && t != TypeInfo
}

// Is64Bit reports whether values of this type occupy 64 bits on a 64-bit
// target (used to decide Register vs RegisterPair, spec.md §3 "Location").
func (t Type) Is64Bit() bool {
	switch t {
	case TypeInt64, TypeUInt64, TypeFloat64, TypePointer, TypeProcedureHandle:
		return true
	default:
		return false
	}
}

// IsGCPointer reports whether the type requires a paired GC-metadata
// register/stack slot (spec.md §3 "Location", "RegisterPair").
func (t Type) IsGCPointer() bool {
	return t == TypeGCPointer
}

// IsFloat reports whether the type belongs to the float/vector register
// kind rather than the integer kind.
func (t Type) IsFloat() bool {
	return t == TypeFloat32 || t == TypeFloat64
}

// ByteSize returns the storage size in bytes of a value of this type on a
// target with the given pointer size. Used by the stack-segment layout
// (spec.md §4.5) and the constraint engine (spec.md §4.3) to size
// registers/slots.
func (t Type) ByteSize(pointerSize int) int {
	switch t {
	case TypeVoid, TypeInfo:
		return 0
	case TypeBoolean, TypeInt8, TypeUInt8:
		return 1
	case TypeInt16, TypeUInt16:
		return 2
	case TypeInt32, TypeUInt32, TypeFloat32:
		return 4
	case TypeInt64, TypeUInt64, TypeFloat64:
		return 8
	case TypePointer, TypeProcedureHandle, TypeLabel:
		return pointerSize
	case TypeGCPointer:
		return 2 * pointerSize
	default:
		return pointerSize
	}
}

func (t Type) String() string {
	switch t {
	case TypeVoid:
		return "void"
	case TypeInfo:
		return "info"
	case TypeBoolean:
		return "bool"
	case TypeInt8:
		return "i8"
	case TypeUInt8:
		return "u8"
	case TypeInt16:
		return "i16"
	case TypeUInt16:
		return "u16"
	case TypeInt32:
		return "i32"
	case TypeUInt32:
		return "u32"
	case TypeInt64:
		return "i64"
	case TypeUInt64:
		return "u64"
	case TypeFloat32:
		return "f32"
	case TypeFloat64:
		return "f64"
	case TypePointer:
		return "ptr"
	case TypeGCPointer:
		return "gcptr"
	case TypeProcedureHandle:
		return "procref"
	case TypeLabel:
		return "label"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Opcode identifies the operation an instruction performs. The constant
// and operation opcode spaces are disjoint (spec.md §4.1 "Bit 0 =
// isConstant" already disambiguates the two, so the numeric ranges need
// not be disjoint in principle, but keeping them so avoids accidental
// misclassification in tests and tracing).
type Opcode uint16

const (
	OpInvalid Opcode = iota

	// --- Constant-form opcodes (spec.md §4.1 "Constant form") ---

	OpConstInt      // integer literal, signedness from destination Type
	OpConstFloat    // float literal (bit pattern carried in the 52-bit payload)
	OpConstLabel    // label placeholder; label id allocated at stage 2
	OpConstString0  // NUL-terminated string, payload = index into module string blob
	OpConstStringN  // length-prefixed string, payload = index into module string blob
	OpConstImport   // reference to an imported symbol, payload = import table index
	OpConstExport   // reference to an exported symbol, payload = export table index
	OpConstFunction // reference to a module-local function, payload = function index
	OpConstGlobal   // reference to a module-local data/constant symbol, payload = symbol index

	// --- Operation-form opcodes (spec.md §4.1 "Operation form") ---

	OpAllocateLocal // reserves stack storage; no code emitted (spec.md §4.7)

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpUDiv
	OpRem
	OpURem
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpUShr
	OpNeg
	OpNot

	OpCmpEq
	OpCmpNe
	OpCmpLt
	OpCmpLe
	OpCmpGt
	OpCmpGe
	OpCmpULt
	OpCmpULe
	OpCmpUGt
	OpCmpUGe

	OpJump
	OpJumpIfTrue
	OpJumpIfFalse

	OpLoad
	OpStore
	OpPtrAdd

	OpTruncate
	OpSignExtend
	OpZeroExtend
	OpBitcast

	OpBeginArguments
	OpArg

	OpBeginCall
	OpCallArg
	OpCall
	OpCallVoid
	OpCallClosure
	OpCallClosureVoid

	OpReturn
	OpReturnVoid
)

func (o Opcode) String() string {
	switch o {
	case OpInvalid:
		return "invalid"
	case OpConstInt:
		return "const.int"
	case OpConstFloat:
		return "const.float"
	case OpConstLabel:
		return "label"
	case OpConstString0:
		return "const.cstr"
	case OpConstStringN:
		return "const.str"
	case OpConstImport:
		return "const.import"
	case OpConstExport:
		return "const.export"
	case OpConstFunction:
		return "const.func"
	case OpConstGlobal:
		return "const.global"
	case OpAllocateLocal:
		return "alloca"
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpMul:
		return "mul"
	case OpDiv:
		return "div"
	case OpUDiv:
		return "udiv"
	case OpRem:
		return "rem"
	case OpURem:
		return "urem"
	case OpAnd:
		return "and"
	case OpOr:
		return "or"
	case OpXor:
		return "xor"
	case OpShl:
		return "shl"
	case OpShr:
		return "shr"
	case OpUShr:
		return "ushr"
	case OpNeg:
		return "neg"
	case OpNot:
		return "not"
	case OpCmpEq:
		return "cmp.eq"
	case OpCmpNe:
		return "cmp.ne"
	case OpCmpLt:
		return "cmp.lt"
	case OpCmpLe:
		return "cmp.le"
	case OpCmpGt:
		return "cmp.gt"
	case OpCmpGe:
		return "cmp.ge"
	case OpCmpULt:
		return "cmp.ult"
	case OpCmpULe:
		return "cmp.ule"
	case OpCmpUGt:
		return "cmp.ugt"
	case OpCmpUGe:
		return "cmp.uge"
	case OpJump:
		return "jump"
	case OpJumpIfTrue:
		return "jump.true"
	case OpJumpIfFalse:
		return "jump.false"
	case OpLoad:
		return "load"
	case OpStore:
		return "store"
	case OpPtrAdd:
		return "ptr.add"
	case OpTruncate:
		return "trunc"
	case OpSignExtend:
		return "sext"
	case OpZeroExtend:
		return "zext"
	case OpBitcast:
		return "bitcast"
	case OpBeginArguments:
		return "begin.args"
	case OpArg:
		return "arg"
	case OpBeginCall:
		return "begin.call"
	case OpCallArg:
		return "call.arg"
	case OpCall:
		return "call"
	case OpCallVoid:
		return "call.void"
	case OpCallClosure:
		return "call.closure"
	case OpCallClosureVoid:
		return "call.closure.void"
	case OpReturn:
		return "return"
	case OpReturnVoid:
		return "return.void"
	default:
		return fmt.Sprintf("opcode(%d)", uint16(o))
	}
}

// IsConstant reports whether this opcode is only ever decoded in the
// Constant instruction form (spec.md §4.1).
func (o Opcode) IsConstant() bool {
	return o >= OpConstInt && o <= OpConstGlobal
}

// IsArithmeticOrLogic reports whether the opcode is a binary ALU op whose
// destination may share a register with an input (spec.md §4.3
// "allowArgDestinationShare").
func (o Opcode) IsArithmeticOrLogic() bool {
	switch o {
	case OpAdd, OpSub, OpMul, OpDiv, OpUDiv, OpRem, OpURem, OpAnd, OpOr, OpXor, OpShl, OpShr, OpUShr, OpNeg, OpNot:
		return true
	default:
		return false
	}
}

func (o Opcode) IsComparison() bool {
	switch o {
	case OpCmpEq, OpCmpNe, OpCmpLt, OpCmpLe, OpCmpGt, OpCmpGe, OpCmpULt, OpCmpULe, OpCmpUGt, OpCmpUGe:
		return true
	default:
		return false
	}
}

func (o Opcode) IsBranch() bool {
	return o == OpJump || o == OpJumpIfTrue || o == OpJumpIfFalse
}

func (o Opcode) IsCall() bool {
	switch o {
	case OpCall, OpCallVoid, OpCallClosure, OpCallClosureVoid:
		return true
	default:
		return false
	}
}

func (o Opcode) IsReturn() bool {
	return o == OpReturn || o == OpReturnVoid
}

func (o Opcode) IsClosureCall() bool {
	return o == OpCallClosure || o == OpCallClosureVoid
}

// LabelID is a function-local identifier allocated during label discovery
// (spec.md §2 stage 2, §4.6).
type LabelID int32

const LabelIDInvalid LabelID = -1
