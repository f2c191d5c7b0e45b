package codegen

import "github.com/sdvm-project/sdvmc/internal/codegen/backend/regalloc"

// StackSegmentKind enumerates the fixed set of per-function stack
// segments (spec.md §3 "StackSegments"). Enum order is the packing order
// used by frame layout (spec.md §4.5: "All remaining segments are packed
// after the prologue in enum order").
type StackSegmentKind uint8

const (
	SegmentArgumentPassing StackSegmentKind = iota
	SegmentPrologue
	SegmentCallPreservedInteger
	SegmentCallPreservedVector
	SegmentTemporary
	SegmentSpilling
	SegmentGCSpilling
	SegmentCallout
	numStackSegments
)

func (k StackSegmentKind) String() string {
	names := [...]string{
		"ArgumentPassing", "Prologue", "CallPreservedInteger", "CallPreservedVector",
		"Temporary", "Spilling", "GCSpilling", "Callout",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "invalid"
}

// StackSegment is one segment's size/alignment/offset bookkeeping
// (spec.md §3 "Each segment has {size, alignment, startOffset,
// endOffset}").
type StackSegment struct {
	Size        int64
	Alignment   int64
	StartOffset int64
	EndOffset   int64
}

// StackSegments is the fixed per-function set of StackSegment (spec.md §3).
type StackSegments [numStackSegments]StackSegment

// ClobberSets holds the four register sets an instruction may destroy
// as a side effect, one per register kind the allocator tracks
// separately (integer, float, vector-float, vector-integer; spec.md §3
// describes an integer/float/vector triple). Float and VectorFloat/VectorInteger are kept
// apart because a backend may, or may not, alias them to the same
// physical file.
type ClobberSets struct {
	Integer      regalloc.RegSet
	Float        regalloc.RegSet
	VectorFloat  regalloc.RegSet
	VectorInteger regalloc.RegSet
}

// For returns the clobber set for the given register kind.
func (c ClobberSets) For(kind regalloc.RegKind) regalloc.RegSet {
	switch kind {
	case regalloc.RegKindInteger:
		return c.Integer
	case regalloc.RegKindFloat:
		return c.Float
	case regalloc.RegKindVectorFloat:
		return c.VectorFloat
	case regalloc.RegKindVectorInteger:
		return c.VectorInteger
	default:
		return regalloc.RegSet{}
	}
}

// CompilerInstruction is the per-decoded-instruction working state
// threaded through stages 3-8 (spec.md §3 "CompilerInstruction"). The
// function-scoped slice of CompilerInstruction is the arena spec.md §9
// calls for; every cross-reference (live intervals, ActiveInterval,
// label relocations) is a 32-bit index into it, never an owning pointer.
type CompilerInstruction struct {
	Decoding     DecodedInstruction
	LiveInterval LiveInterval

	Arg0, Arg1 Location
	// Scratch holds up to two scratch-register requests an op may need
	// live only for its own duration (spec.md §4.4 "Scratch registers").
	Scratch [2]Location

	// Location is the instruction's own result location, possibly
	// rewritten from a pending register to a concrete one, or to a Stack
	// location if the allocator spilled it.
	Location Location

	// StackLocation is set when an op's definition is fixed to a stack
	// slot from the start (e.g. AllocateLocal), bypassing the register
	// allocator entirely (spec.md §3 "an explicit stackLocation (if the
	// register allocator decides to spill the def)" — here also used for
	// defs that are never register candidates in the first place).
	StackLocation Location

	Clobbers ClobberSets

	// Pattern is the slot for a multi-op pattern this instruction could be
	// subsumed by (spec.md §3 "a pattern pointer (optional multi-op
	// pattern that subsumes this one)"). No stage fuses instructions, so
	// nothing assigns it and it keeps its zero value.
	Pattern int

	Index int

	SourceLine int
}

// AllowArgDestinationShare reports whether the allocator may coalesce
// this instruction's result with one of its inputs (spec.md §4.3
// "Ordinary ops ... certain ops ... additionally record
// allowArgDestinationShare").
func (ci *CompilerInstruction) AllowArgDestinationShare() bool {
	op := ci.Decoding.Opcode
	return op.IsArithmeticOrLogic() || op.IsComparison() || op.IsBranch() ||
		op == OpLoad || op == OpStore || op == OpTruncate || op == OpSignExtend || op == OpZeroExtend
}
