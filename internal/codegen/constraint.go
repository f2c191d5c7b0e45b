package codegen

import (
	"encoding/binary"
	"math"

	"github.com/sdvm-project/sdvmc/internal/codegen/backend"
	"github.com/sdvm-project/sdvmc/internal/codegen/backend/regalloc"
	"github.com/sdvm-project/sdvmc/internal/codegen/module"
)

// DataBuilder accumulates bytes for one output blob (the read-only string
// section or the per-function constant pool), handing back the aligned
// offset each append landed at (spec.md §4.3 "oversized immediates are
// written into the read-only constant section").
type DataBuilder struct {
	bytes []byte
}

func (b *DataBuilder) Append(data []byte, align int64) int64 {
	if align > 1 {
		pad := (align - int64(len(b.bytes))%align) % align
		b.bytes = append(b.bytes, make([]byte, pad)...)
	}
	off := int64(len(b.bytes))
	b.bytes = append(b.bytes, data...)
	return off
}

func (b *DataBuilder) Bytes() []byte { return b.bytes }

func fitsS32(v int64) bool  { return v >= math.MinInt32 && v <= math.MaxInt32 }
func fitsU32(v uint64) bool { return v <= math.MaxUint32 }

// defVRegID maps one defining instruction's index to the VReg identity its
// result(s) are tracked under. slot 0 is the sole register of a
// single-register def, or the low half of a pair; slot 1 is a pair's high
// half only. Multiplying by two keeps every instruction's pair of ids
// disjoint from its neighbours' (spec.md §9's arena+index identity
// pattern, extended to the rare two-register case).
func defVRegID(index int, slot int) regalloc.VRegID {
	return regalloc.VRegID(index)*2 + regalloc.VRegID(slot)
}

func kindSizeOf(t Type, abi *backend.ABI) (regalloc.RegKind, int32) {
	switch t {
	case TypeVoid, TypeInfo, TypeLabel:
		return regalloc.RegKindInvalid, 0
	case TypeBoolean, TypeInt8, TypeUInt8:
		return regalloc.RegKindInteger, 1
	case TypeInt16, TypeUInt16:
		return regalloc.RegKindInteger, 2
	case TypeInt32, TypeUInt32:
		return regalloc.RegKindInteger, 4
	case TypeInt64, TypeUInt64:
		if abi.Is32Bit {
			return regalloc.RegKindInteger, 4
		}
		return regalloc.RegKindInteger, 8
	case TypeFloat32:
		return regalloc.RegKindFloat, 4
	case TypeFloat64:
		return regalloc.RegKindFloat, 8
	case TypePointer, TypeProcedureHandle:
		return regalloc.RegKindInteger, int32(abi.PointerSize)
	case TypeGCPointer:
		return regalloc.RegKindInteger, int32(abi.PointerSize)
	default:
		Raise("kindSizeOf: unsupported type %s", t)
		return regalloc.RegKindInvalid, 0
	}
}

// registerLocationForType builds the Register/RegisterPair location a
// value of type t, defined by the instruction at index, occupies. It is
// used both for an instruction's own destination and — for any later
// instruction referencing that same index — to reconstruct the identical
// VReg identity for the operand slot that consumes it (spec.md §4.3
// "Ordinary ops").
func registerLocationForType(t Type, index int, abi *backend.ABI) Location {
	kind, size := kindSizeOf(t, abi)
	if kind == regalloc.RegKindInvalid {
		return LocationOfNull()
	}
	if t == TypeGCPointer || ((t == TypeInt64 || t == TypeUInt64) && abi.Is32Bit) {
		return LocationOfRegisterPair(kind, size,
			regalloc.NewVReg(defVRegID(index, 0), kind),
			regalloc.NewVReg(defVRegID(index, 1), kind))
	}
	return LocationOfRegister(kind, size, regalloc.NewVReg(defVRegID(index, 0), kind))
}

// ConstraintEngine implements stage 4 of the pipeline (spec.md §4.3): it
// assigns every instruction its destination Location and every operand
// slot its expected Location, driving one CallingConventionState for the
// function's own incoming arguments and a second for whichever call is
// currently under construction.
type ConstraintEngine struct {
	ABI    *backend.ABI
	Module *module.Module
	Labels []LabelID

	RODataBuilder       *DataBuilder
	ConstSectionBuilder *DataBuilder

	argState  CallingConventionState
	callState CallingConventionState

	instrs []CompilerInstruction
}

// NewConstraintEngine builds an engine over instrs, which must already
// carry Decoding, Index and LiveInterval populated by the earlier pipeline
// stages (spec.md §2 stages 1-3). Run mutates instrs in place.
func NewConstraintEngine(abi *backend.ABI, mod *module.Module, labels []LabelID, instrs []CompilerInstruction) *ConstraintEngine {
	return &ConstraintEngine{
		ABI:                 abi,
		Module:              mod,
		Labels:              labels,
		RODataBuilder:       &DataBuilder{},
		ConstSectionBuilder: &DataBuilder{},
		instrs:              instrs,
	}
}

// Run walks every instruction in index order and assigns its Location,
// Arg0/Arg1, StackLocation and Clobbers fields (spec.md §4.3).
func (ce *ConstraintEngine) Run() error {
	for i := range ce.instrs {
		ci := &ce.instrs[i]
		d := ci.Decoding
		switch {
		case d.IsConstant:
			loc, err := ce.constantLocation(ci)
			if err != nil {
				return err
			}
			ci.Location = loc
		case d.Opcode == OpBeginArguments:
			ce.argState.Reset()
			ci.Location = LocationOfNull()
		case d.Opcode == OpArg:
			ci.Location = ce.assignArgumentLocation(&ce.argState, d.DestType)
		case d.Opcode == OpBeginCall:
			ce.callState.Reset()
			ci.Location = LocationOfNull()
		case d.Opcode == OpCallArg:
			ci.Arg0 = ce.assignArgumentLocation(&ce.callState, d.Arg0.Type)
			ci.Location = LocationOfNull()
		case d.Opcode.IsCall():
			if err := ce.constrainCall(ci); err != nil {
				return err
			}
		case d.Opcode.IsReturn():
			ce.constrainReturn(ci)
		case d.Opcode == OpAllocateLocal:
			ce.constrainAllocateLocal(ci)
		default:
			ce.constrainOrdinary(ci)
		}
	}
	return nil
}

func (ce *ConstraintEngine) constrainOrdinary(ci *CompilerInstruction) {
	d := ci.Decoding
	ci.Location = registerLocationForType(d.DestType, ci.Index, ce.ABI)
	ci.Arg0 = ce.operandLocation(d.Arg0, d.Opcode)
	ci.Arg1 = ce.operandLocation(d.Arg1, d.Opcode)
}

// operandLocation builds the expected Location for one operand slot. A
// non-instruction-bearing slot (an inline immediate such as a shift
// amount) needs no Location at all — the emitter reads it straight off
// the DecodedInstruction. An instruction-bearing slot whose definition is
// already an embeddable immediate is passed through unchanged for plain
// ALU/comparison consumers (spec.md §3 invariant 5: "constant operands
// never own registers"); every other case wants a register of the
// operand's own kind/size.
func (ce *ConstraintEngine) operandLocation(os OperandSlot, consumer Opcode) Location {
	if !os.Type.IsInstructionBearing() {
		return LocationOfNull()
	}
	defIdx := os.Index()
	defLoc := ce.instrs[defIdx].Location
	if os.Type == TypeLabel {
		return defLoc
	}
	if defLoc.IsImmediate() && (consumer.IsArithmeticOrLogic() || consumer.IsComparison()) {
		return defLoc
	}
	return registerLocationForType(os.Type, defIdx, ce.ABI)
}

func (ce *ConstraintEngine) constrainAllocateLocal(ci *CompilerInstruction) {
	d := ci.Decoding
	size := int64(d.Arg0.Immediate())
	align := int64(d.Arg1.Immediate())
	if align <= 0 {
		align = int64(ce.ABI.PointerSize)
	}
	if size <= 0 {
		size = align
	}
	loc := LocationOfStackSlot(SegmentTemporary, int32(size), int32(align), 0)
	ci.StackLocation = loc
	ci.Location = loc
}

// assignArgumentLocation drives one CallingConventionState step for a
// single value of type t, returning the pinned register/stack location it
// lands in (spec.md §4.3 "Arg / Call-arg assignment table").
func (ce *ConstraintEngine) assignArgumentLocation(state *CallingConventionState, t Type) Location {
	abi := ce.ABI
	switch t {
	case TypeBoolean, TypeInt8, TypeUInt8, TypeInt16, TypeUInt16, TypeInt32, TypeUInt32:
		_, size := kindSizeOf(t, abi)
		idx, _, off, useStack := state.assignInteger(abi, 1, 4, 4)
		if useStack {
			return LocationOfStackSlot(SegmentArgumentPassing, size, size, off)
		}
		return LocationOfPinnedRegister(regalloc.RegKindInteger, size, abi.IntegerParamRegs[idx])

	case TypeInt64, TypeUInt64:
		if abi.Is32Bit {
			idx, _, off, useStack := state.assignInteger(abi, 2, 8, 8)
			if useStack {
				lo := StackSlot{Segment: SegmentArgumentPassing, Size: 4, Alignment: 4, SegmentOffset: off}
				hi := StackSlot{Segment: SegmentArgumentPassing, Size: 4, Alignment: 4, SegmentOffset: off + 4}
				return LocationOfStackSlotPair(lo, hi)
			}
			return LocationOfPinnedRegisterPair(regalloc.RegKindInteger, 4, abi.IntegerParamRegs[idx], abi.IntegerParamRegs[idx+1])
		}
		idx, _, off, useStack := state.assignInteger(abi, 1, 8, 8)
		if useStack {
			return LocationOfStackSlot(SegmentArgumentPassing, 8, 8, off)
		}
		return LocationOfPinnedRegister(regalloc.RegKindInteger, 8, abi.IntegerParamRegs[idx])

	case TypePointer, TypeProcedureHandle:
		ps := int32(abi.PointerSize)
		idx, _, off, useStack := state.assignInteger(abi, 1, int64(ps), int64(ps))
		if useStack {
			return LocationOfStackSlot(SegmentArgumentPassing, ps, ps, off)
		}
		return LocationOfPinnedRegister(regalloc.RegKindInteger, ps, abi.IntegerParamRegs[idx])

	case TypeGCPointer:
		ps := int32(abi.PointerSize)
		idx, _, off, useStack := state.assignInteger(abi, 2, int64(2*ps), int64(ps))
		if useStack {
			lo := StackSlot{Segment: SegmentArgumentPassing, Size: ps, Alignment: ps, SegmentOffset: off}
			hi := StackSlot{Segment: SegmentArgumentPassing, Size: ps, Alignment: ps, SegmentOffset: off + int64(ps)}
			return LocationOfStackSlotPair(lo, hi)
		}
		return LocationOfPinnedRegisterPair(regalloc.RegKindInteger, ps, abi.IntegerParamRegs[idx], abi.IntegerParamRegs[idx+1])

	case TypeFloat32:
		idx, useStack, off := state.assignFloat(abi, 4, 4)
		if useStack {
			return LocationOfStackSlot(SegmentArgumentPassing, 4, 4, off)
		}
		return LocationOfPinnedRegister(regalloc.RegKindFloat, 4, abi.FloatParamRegs[idx])

	case TypeFloat64:
		idx, useStack, off := state.assignFloat(abi, 8, 8)
		if useStack {
			return LocationOfStackSlot(SegmentArgumentPassing, 8, 8, off)
		}
		return LocationOfPinnedRegister(regalloc.RegKindFloat, 8, abi.FloatParamRegs[idx])

	default:
		Raise("assignArgumentLocation: unsupported argument type %s", t)
		return Location{}
	}
}

// callResultLocation/returnOperandLocation share this formula: both name
// the single ABI register (or pair, on a 32-bit target) reserved for a
// value of type t flowing across a call boundary — inbound as a callee's
// result, outbound as this function's own return value (spec.md §4.3
// "Call"/"Return").
func (ce *ConstraintEngine) callResultLocation(t Type) Location {
	abi := ce.ABI
	kind, size := kindSizeOf(t, abi)
	switch t {
	case TypeBoolean, TypeInt8, TypeUInt8, TypeInt16, TypeUInt16, TypeInt32, TypeUInt32:
		return LocationOfPinnedRegister(kind, size, abi.IntegerResultReg)
	case TypeInt64, TypeUInt64:
		if abi.Is32Bit {
			return LocationOfPinnedRegisterPair(kind, 4, abi.IntegerResultReg, abi.Integer64ResultReg)
		}
		return LocationOfPinnedRegister(kind, 8, abi.Integer64ResultReg)
	case TypePointer, TypeProcedureHandle:
		return LocationOfPinnedRegister(kind, size, abi.PointerResultReg)
	case TypeGCPointer:
		return LocationOfPinnedRegisterPair(kind, size, abi.PointerResultReg, abi.Integer64ResultReg)
	case TypeFloat32, TypeFloat64:
		return LocationOfPinnedRegister(kind, size, abi.FloatResultReg)
	default:
		Raise("callResultLocation: unsupported result type %s", t)
		return Location{}
	}
}

func (ce *ConstraintEngine) callTargetLocation(os OperandSlot) Location {
	if !os.Type.IsInstructionBearing() {
		Raise("call target operand is not instruction-bearing")
	}
	defIdx := os.Index()
	defLoc := ce.instrs[defIdx].Location
	if (defLoc.Kind == LocationLocalSymbolValue && ce.ABI.SupportsLocalSymbolValueCall) ||
		(defLoc.Kind == LocationGlobalSymbolValue && ce.ABI.SupportsGlobalSymbolValueCall) {
		return defLoc
	}
	return registerLocationForType(TypePointer, defIdx, ce.ABI)
}

func (ce *ConstraintEngine) callClobbers() ClobberSets {
	return ClobberSets{
		Integer:      ce.ABI.CallTouchedSet(regalloc.RegKindInteger),
		Float:        ce.ABI.CallTouchedSet(regalloc.RegKindFloat),
		VectorFloat:  ce.ABI.CallTouchedSet(regalloc.RegKindVectorFloat),
		VectorInteger: ce.ABI.CallTouchedSet(regalloc.RegKindVectorInteger),
	}
}

func (ce *ConstraintEngine) constrainCall(ci *CompilerInstruction) error {
	d := ci.Decoding
	ci.Clobbers = ce.callClobbers()

	switch d.Opcode {
	case OpCall, OpCallVoid:
		ci.Arg0 = ce.callTargetLocation(d.Arg0)
	case OpCallClosure, OpCallClosureVoid:
		ps := int32(ce.ABI.PointerSize)
		ci.Arg0 = LocationOfPinnedRegister(regalloc.RegKindInteger, ps, ce.ABI.ClosurePointerReg)
		ci.Arg1 = LocationOfPinnedRegister(regalloc.RegKindInteger, ps, ce.ABI.ClosureGCMetadataReg)
	default:
		return &UnsupportedOperandError{Index: ci.Index, Opcode: d.Opcode}
	}

	if d.Opcode == OpCallVoid || d.Opcode == OpCallClosureVoid {
		ci.Location = LocationOfNull()
	} else {
		ci.Location = ce.callResultLocation(d.DestType)
	}
	return nil
}

func (ce *ConstraintEngine) constrainReturn(ci *CompilerInstruction) {
	d := ci.Decoding
	ci.Location = LocationOfNull()
	if d.Opcode == OpReturn {
		ci.Arg0 = ce.callResultLocation(d.Arg0.Type)
	}
}

// constantLocation assigns the Location of one Constant-form instruction
// (spec.md §4.3 "Constants"): small integers become immediates the target
// can embed directly; everything else — oversized integers, 64-bit
// floats, strings, and module-level symbol references — is materialized
// into the read-only data blob or resolved to a symbol reference.
func (ce *ConstraintEngine) constantLocation(ci *CompilerInstruction) (Location, error) {
	d := ci.Decoding
	switch d.Opcode {
	case OpConstInt:
		switch d.DestType {
		case TypeBoolean, TypeInt8, TypeUInt8, TypeInt16, TypeUInt16, TypeInt32:
			return LocationOfImmediateS32(int32(d.Payload)), nil
		case TypeUInt32:
			return LocationOfImmediateU32(uint32(d.Payload)), nil
		case TypeInt64:
			if fitsS32(d.Payload) {
				return LocationOfImmediateS64(d.Payload), nil
			}
			return ce.intoConstSection8(uint64(d.Payload)), nil
		case TypeUInt64:
			u := uint64(d.Payload)
			if fitsU32(u) {
				return LocationOfImmediateU64(u), nil
			}
			return ce.intoConstSection8(u), nil
		default:
			return Location{}, &UnsupportedOperandError{Index: ci.Index, Opcode: d.Opcode}
		}

	case OpConstFloat:
		switch d.DestType {
		case TypeFloat32:
			return LocationOfImmediateF32(math.Float32frombits(uint32(d.Payload))), nil
		case TypeFloat64:
			// No target ISA in this family embeds a 64-bit float bit
			// pattern directly; every float64 constant goes through the
			// constant pool.
			return ce.intoConstSection8(uint64(d.Payload)), nil
		default:
			return Location{}, &UnsupportedOperandError{Index: ci.Index, Opcode: d.Opcode}
		}

	case OpConstLabel:
		return LocationOfImmediateLabel(ce.Labels[ci.Index]), nil

	case OpConstString0:
		off, err := ce.internCString(d.Payload)
		if err != nil {
			return Location{}, err
		}
		return LocationOfLocalSymbol(".rodata", off), nil

	case OpConstStringN:
		off, err := ce.internLengthPrefixedString(d.Payload)
		if err != nil {
			return Location{}, err
		}
		return LocationOfLocalSymbol(".rodata", off), nil

	case OpConstImport:
		idx := int(d.Payload)
		if idx < 0 || idx >= len(ce.Module.Imports) {
			return Location{}, &UnsupportedOperandError{Index: ci.Index, Opcode: d.Opcode}
		}
		return LocationOfGlobalSymbol(ce.Module.Imports[idx].Name, 0), nil

	case OpConstExport:
		idx := int(d.Payload)
		if idx < 0 || idx >= len(ce.Module.Exports) {
			return Location{}, &UnsupportedOperandError{Index: ci.Index, Opcode: d.Opcode}
		}
		return LocationOfLocalSymbol(ce.Module.Exports[idx].Name, 0), nil

	case OpConstFunction:
		idx := int(d.Payload)
		if idx < 0 || idx >= len(ce.Module.FuncTable) {
			return Location{}, &UnsupportedOperandError{Index: ci.Index, Opcode: d.Opcode}
		}
		return LocationOfLocalSymbol(ce.Module.FuncTable[idx].Name, 0), nil

	case OpConstGlobal:
		// A reference straight into the loader-populated constant blob,
		// not a named symbol — this is what distinguishes it from
		// ConstExport (spec.md §4.1 "payload = symbol index").
		return LocationOfConstantSection(d.Payload), nil

	default:
		return Location{}, &UnsupportedOperandError{Index: ci.Index, Opcode: d.Opcode}
	}
}

func (ce *ConstraintEngine) intoConstSection8(bits uint64) Location {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, bits)
	off := ce.ConstSectionBuilder.Append(buf, 8)
	return LocationOfConstantSection(off)
}

func (ce *ConstraintEngine) internCString(payload int64) (int64, error) {
	strings := ce.Module.Strings
	start := int(payload)
	if start < 0 || start > len(strings) {
		return 0, &MalformedInstructionError{Index: start, Reason: "const.cstr: payload out of range"}
	}
	end := start
	for end < len(strings) && strings[end] != 0 {
		end++
	}
	if end < len(strings) {
		end++ // include the terminating NUL.
	}
	return ce.RODataBuilder.Append(strings[start:end], 1), nil
}

func (ce *ConstraintEngine) internLengthPrefixedString(payload int64) (int64, error) {
	strings := ce.Module.Strings
	start := int(payload)
	if start < 0 || start+4 > len(strings) {
		return 0, &MalformedInstructionError{Index: start, Reason: "const.str: length prefix out of range"}
	}
	n := int(binary.LittleEndian.Uint32(strings[start : start+4]))
	end := start + 4 + n
	if n < 0 || end > len(strings) {
		return 0, &MalformedInstructionError{Index: start, Reason: "const.str: string body out of range"}
	}
	return ce.RODataBuilder.Append(strings[start:end], 4), nil
}
