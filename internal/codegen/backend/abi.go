// Package backend holds the pieces shared by every per-ISA emitter:
// the calling-convention descriptor (spec.md §6), whose per-kind
// allocatable register lists (AllocatableFor) parameterize the allocator
// (spec.md §4.4). The Machine interface each ISA package implements lives
// in package codegen, not here. It mirrors the
// role wazero's own backend package plays between backend/regalloc and
// backend/isa/{amd64,arm64}.
package backend

import "github.com/sdvm-project/sdvmc/internal/codegen/backend/regalloc"

// ABI is the calling-convention descriptor of spec.md §6. One instance
// exists per (target, ABI-variant) pair; instances are immutable after
// program init (spec.md §9 "Global state").
type ABI struct {
	Name        string
	PointerSize int32 // 4 or 8 bytes.

	StackAlignment          int64
	StackParameterAlignment int64
	CalloutShadowSpace      int64
	IntegerRegisterSize     int32

	// IntegerParamRegs is the width-polymorphic GP-register pool used for
	// every integer/pointer argument class (8 through 64-bit, and GC
	// pointer pairs), the same way SysV reuses RDI/RSI/... at whichever
	// sub-register width the argument needs.
	IntegerParamRegs []regalloc.RealReg
	// FloatParamRegs is the pool used for both scalar float and vector
	// arguments, the way SysV reuses XMM0-7 for both (spec.md §4.3: "float
	// / vector | analogous with the vector/float register pool").
	FloatParamRegs []regalloc.RealReg

	// Result registers, one per return class. Zero value (RealRegInvalid)
	// means the class has no single-register result (e.g. Integer64Result
	// on a 32-bit target, which instead uses a register pair built from
	// IntegerParamRegs[0:2] by convention).
	IntegerResultReg   regalloc.RealReg
	Integer64ResultReg regalloc.RealReg
	PointerResultReg   regalloc.RealReg
	FloatResultReg     regalloc.RealReg
	VectorResultReg    regalloc.RealReg

	ClosurePointerReg    regalloc.RealReg
	ClosureGCMetadataReg regalloc.RealReg

	AllocatableIntegerRegs      []regalloc.RealReg
	AllocatableFloatRegs        []regalloc.RealReg
	AllocatableVectorFloatRegs  []regalloc.RealReg
	AllocatableVectorIntegerRegs []regalloc.RealReg

	CallPreservedIntegerRegs []regalloc.RealReg
	CallPreservedFloatRegs   []regalloc.RealReg
	CallPreservedVectorRegs  []regalloc.RealReg

	CallTouchedIntegerRegs []regalloc.RealReg
	CallTouchedFloatRegs   []regalloc.RealReg
	CallTouchedVectorRegs  []regalloc.RealReg

	SupportsLocalSymbolValueCall  bool
	SupportsGlobalSymbolValueCall bool

	// Is32Bit reports whether 64-bit integers must be passed/returned as
	// a pair of 32-bit registers (spec.md §4.3 "64-bit integer" row).
	Is32Bit bool
}

// AllocatableFor returns the allocatable register list for the given
// register kind, used to construct a regalloc.RegisterFile per kind
// (spec.md §4.4).
func (a *ABI) AllocatableFor(kind regalloc.RegKind) []regalloc.RealReg {
	switch kind {
	case regalloc.RegKindInteger:
		return a.AllocatableIntegerRegs
	case regalloc.RegKindFloat:
		return a.AllocatableFloatRegs
	case regalloc.RegKindVectorFloat:
		return a.AllocatableVectorFloatRegs
	case regalloc.RegKindVectorInteger:
		return a.AllocatableVectorIntegerRegs
	default:
		return nil
	}
}

// CallPreservedFor returns the call-preserved register list for kind.
func (a *ABI) CallPreservedFor(kind regalloc.RegKind) []regalloc.RealReg {
	switch kind {
	case regalloc.RegKindInteger:
		return a.CallPreservedIntegerRegs
	case regalloc.RegKindFloat, regalloc.RegKindVectorFloat, regalloc.RegKindVectorInteger:
		return a.CallPreservedVectorRegs
	default:
		return nil
	}
}

// CallTouchedSet returns the call-touched registers of the given kind: the
// integer list for integer registers, and the float list united with the
// vector list for every float/vector kind. It is used per kind as the
// clobber set for a direct/indirect call instruction
// (spec.md §4.3 "install the ABI's callTouchedRegisters as the
// instruction's clobber set").
func (a *ABI) CallTouchedSet(kind regalloc.RegKind) regalloc.RegSet {
	switch kind {
	case regalloc.RegKindInteger:
		return regalloc.NewRegSet(a.CallTouchedIntegerRegs...)
	case regalloc.RegKindFloat, regalloc.RegKindVectorFloat, regalloc.RegKindVectorInteger:
		return regalloc.NewRegSet(a.CallTouchedFloatRegs...).Union(regalloc.NewRegSet(a.CallTouchedVectorRegs...))
	default:
		return regalloc.RegSet{}
	}
}
