package codegen

import (
	"github.com/sdvm-project/sdvmc/internal/codegen/backend"
	"github.com/sdvm-project/sdvmc/internal/codegen/backend/regalloc"
)

// FrameLayout is the output of stage 6/7 (spec.md §4.5): the final size
// and start offset of each of the function's eight fixed stack segments,
// plus the physical register the frame is anchored to.
type FrameLayout struct {
	Segments             StackSegments
	TotalSize            int64
	FramePointerRegister regalloc.RealReg
}

// FrameRequired reports whether the function needs a stack frame at all,
// i.e. whether TotalSize is non-zero. ComputeFrameLayout always gives the
// Prologue segment one pointer-sized slot, so for any ABI with a non-zero
// PointerSize this is true and every function gets a prologue, leaf
// functions included.
func (fl *FrameLayout) FrameRequired() bool { return fl.TotalSize > 0 }

func considerStackSlots(loc Location, f func(StackSlot)) {
	switch loc.Kind {
	case LocationStack:
		f(loc.Stack)
	case LocationStackPair:
		f(loc.StackPair[0])
		f(loc.StackPair[1])
	}
}

// growSegment sets seg.Size to the high-water mark of every StackSlot
// already placed in kind during stages 4-5 — their SegmentOffset is
// final, but the segment's own total size was not yet known until every
// instruction has been visited.
func growSegment(seg *StackSegment, instrs []CompilerInstruction, kind StackSegmentKind) {
	var maxEnd int64
	consider := func(s StackSlot) {
		if s.Segment != kind {
			return
		}
		if end := s.SegmentOffset + int64(s.Size); end > maxEnd {
			maxEnd = end
		}
	}
	for _, ci := range instrs {
		considerStackSlots(ci.Location, consider)
		considerStackSlots(ci.Arg0, consider)
		considerStackSlots(ci.Arg1, consider)
		considerStackSlots(ci.StackLocation, consider)
	}
	seg.Size = maxEnd
}

// ComputeFrameLayout packs the eight fixed stack segments in enum order
// (spec.md §4.5 "All remaining segments are packed after the prologue in
// enum order") and rounds the total up to the ABI's stack alignment.
//
// This implementation does not distinguish a caller-frame incoming stack
// parameter (conventionally addressed at a positive offset above the
// return address) from a callee-frame outgoing call's stack argument
// (addressed at a negative offset within the callee's own frame): both
// share the ArgumentPassing segment and are packed, and later addressed,
// uniformly. A target that needs the distinction would split
// ArgumentPassing into two segments; nothing in this spec's frame-layout
// algorithm requires that split.
func ComputeFrameLayout(abi *backend.ABI, instrs []CompilerInstruction, driver *RegAllocDriver, framePointerReg regalloc.RealReg) *FrameLayout {
	var segs StackSegments
	segs[SegmentArgumentPassing] = StackSegment{Alignment: maxInt64(abi.StackParameterAlignment, 1)}
	segs[SegmentPrologue] = StackSegment{Size: int64(abi.PointerSize), Alignment: int64(abi.PointerSize)}
	segs[SegmentCallPreservedInteger] = StackSegment{Alignment: maxInt64(int64(abi.IntegerRegisterSize), 1)}
	segs[SegmentCallPreservedVector] = StackSegment{Alignment: 16}
	segs[SegmentTemporary] = StackSegment{Alignment: int64(abi.PointerSize)}
	segs[SegmentSpilling] = StackSegment{Alignment: int64(abi.PointerSize)}
	segs[SegmentGCSpilling] = StackSegment{Alignment: int64(abi.PointerSize)}
	segs[SegmentCallout] = StackSegment{Size: abi.CalloutShadowSpace, Alignment: maxInt64(abi.StackAlignment, 1)}

	growSegment(&segs[SegmentArgumentPassing], instrs, SegmentArgumentPassing)
	growSegment(&segs[SegmentTemporary], instrs, SegmentTemporary)

	if abi.IntegerRegisterSize > 0 {
		n := int64(driver.Files[regalloc.RegKindInteger].CallPreserved(abi.CallPreservedIntegerRegs).Count())
		segs[SegmentCallPreservedInteger].Size = n * int64(abi.IntegerRegisterSize)
	}
	usedVector := driver.Files[regalloc.RegKindFloat].CallPreserved(abi.CallPreservedFloatRegs).
		Union(driver.Files[regalloc.RegKindVectorFloat].CallPreserved(abi.CallPreservedVectorRegs)).
		Union(driver.Files[regalloc.RegKindVectorInteger].CallPreserved(abi.CallPreservedVectorRegs))
	segs[SegmentCallPreservedVector].Size = int64(usedVector.Count()) * 16

	segs[SegmentSpilling].Size = driver.spillNext[SegmentSpilling]
	segs[SegmentGCSpilling].Size = driver.spillNext[SegmentGCSpilling]

	var offset int64
	for i := range segs {
		if segs[i].Alignment > 1 {
			offset = roundUp(offset, segs[i].Alignment)
		}
		segs[i].StartOffset = offset
		offset += segs[i].Size
		segs[i].EndOffset = offset
	}

	return &FrameLayout{
		Segments:             segs,
		TotalSize:            roundUp(offset, maxInt64(abi.StackAlignment, 1)),
		FramePointerRegister: framePointerReg,
	}
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// resolveSlot fills in the frame-pointer-relative address of one slot now
// that the segment it lives in has a final StartOffset (spec.md §3
// "Once spill layout runs, every Stack location that is valid has a
// stable framePointerOffset"). The frame grows down from the anchor, so
// a slot further into its segment sits at a more negative offset.
func (fl *FrameLayout) resolveSlot(s *StackSlot) {
	seg := fl.Segments[s.Segment]
	s.FramePointerRegister = fl.FramePointerRegister
	s.FramePointerOffset = -(seg.StartOffset + s.SegmentOffset + int64(s.Size))
	s.Valid = true
}

// ResolveLocation patches one Location's Stack/StackPair payload in place.
func (fl *FrameLayout) ResolveLocation(loc *Location) {
	switch loc.Kind {
	case LocationStack:
		fl.resolveSlot(&loc.Stack)
	case LocationStackPair:
		fl.resolveSlot(&loc.StackPair[0])
		fl.resolveSlot(&loc.StackPair[1])
	}
}

// ResolveAll patches every stack-resident Location across a function's
// instructions — destinations, operands, fixed stack locations and
// scratch requests alike — in one pass over the now-final segment layout.
func (fl *FrameLayout) ResolveAll(instrs []CompilerInstruction) {
	for i := range instrs {
		ci := &instrs[i]
		fl.ResolveLocation(&ci.Location)
		fl.ResolveLocation(&ci.Arg0)
		fl.ResolveLocation(&ci.Arg1)
		fl.ResolveLocation(&ci.StackLocation)
		fl.ResolveLocation(&ci.Scratch[0])
		fl.ResolveLocation(&ci.Scratch[1])
	}
}
