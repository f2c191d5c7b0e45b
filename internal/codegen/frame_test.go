package codegen

import (
	"testing"

	"github.com/sdvm-project/sdvmc/internal/codegen/backend/regalloc"
)

func TestComputeFrameLayoutPacksSegmentsInOrder(t *testing.T) {
	abi := testABI()
	abi.StackAlignment = 16
	abi.IntegerRegisterSize = 8

	instrs := []CompilerInstruction{
		{StackLocation: LocationOfStackSlot(SegmentTemporary, 8, 8, 0)},
	}
	driver := NewRegAllocDriver(abi)
	driver.spillNext[SegmentSpilling] = 16

	fl := ComputeFrameLayout(abi, instrs, driver, regalloc.RealReg(9))

	if fl.Segments[SegmentTemporary].Size != 8 {
		t.Fatalf("got Temporary size %d, want 8", fl.Segments[SegmentTemporary].Size)
	}
	if fl.Segments[SegmentSpilling].Size != 16 {
		t.Fatalf("got Spilling size %d, want 16", fl.Segments[SegmentSpilling].Size)
	}
	for i := 1; i < len(fl.Segments); i++ {
		if fl.Segments[i].StartOffset < fl.Segments[i-1].StartOffset {
			t.Fatalf("segment %d starts before segment %d", i, i-1)
		}
	}
	if fl.TotalSize%abi.StackAlignment != 0 {
		t.Fatalf("total size %d not aligned to %d", fl.TotalSize, abi.StackAlignment)
	}
}

func TestResolveAllFillsFramePointerOffset(t *testing.T) {
	abi := testABI()
	instrs := []CompilerInstruction{
		{Location: LocationOfStackSlot(SegmentTemporary, 8, 8, 0)},
	}
	driver := NewRegAllocDriver(abi)
	fl := ComputeFrameLayout(abi, instrs, driver, regalloc.RealReg(9))
	fl.ResolveAll(instrs)

	if !instrs[0].Location.Stack.Valid {
		t.Fatalf("expected the stack slot to be marked valid after layout")
	}
	if instrs[0].Location.Stack.FramePointerRegister != regalloc.RealReg(9) {
		t.Fatalf("got frame pointer register %v, want 9", instrs[0].Location.Stack.FramePointerRegister)
	}
}
