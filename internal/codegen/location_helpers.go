package codegen

import "github.com/sdvm-project/sdvmc/internal/codegen/backend/regalloc"

// LocationOfPinnedRegisterPair builds a two-register location where both
// halves are bound to specific physical registers (spec.md §3
// "RegisterPair", used e.g. for a GC pointer argument occupying two
// consecutive integer argument registers).
func LocationOfPinnedRegisterPair(kind regalloc.RegKind, size int32, lo, hi regalloc.RealReg) Location {
	return Location{
		Kind: LocationRegisterPair,
		RegPair: [2]RegisterLocation{
			{Kind: kind, Size: size, Value: regalloc.FromRealReg(lo, kind), Pending: false},
			{Kind: kind, Size: size, Value: regalloc.FromRealReg(hi, kind), Pending: false},
		},
	}
}

// LocationOfStackSlot builds a Stack location in the given segment. Valid
// is left false: the frame-pointer-relative offset is only known once
// spill/frame layout (spec.md §4.5) has run.
func LocationOfStackSlot(segment StackSegmentKind, size, alignment int32, segmentOffset int64) Location {
	return Location{
		Kind: LocationStack,
		Stack: StackSlot{
			Segment:       segment,
			Size:          size,
			Alignment:     alignment,
			SegmentOffset: segmentOffset,
		},
	}
}

// LocationOfStackSlotPair builds a StackPair location from two already
// laid out StackSlot halves.
func LocationOfStackSlotPair(lo, hi StackSlot) Location {
	return Location{Kind: LocationStackPair, StackPair: [2]StackSlot{lo, hi}}
}
