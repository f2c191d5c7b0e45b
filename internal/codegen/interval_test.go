package codegen

import "testing"

func instrBearing(idx int32) OperandSlot { return OperandSlot{Type: TypeInt32, Field: idx} }

func TestBuildLiveIntervals_DeadValue(t *testing.T) {
	instrs := []DecodedInstruction{
		{IsConstant: true, Opcode: OpConstInt, DestType: TypeInt32}, // index 0, never used.
	}
	intervals := BuildLiveIntervals(instrs)
	if intervals[0].HasUsage() {
		t.Fatalf("expected no usage for unconsumed value")
	}
	if intervals[0].Start != 0 || intervals[0].End != 0 {
		t.Fatalf("expected one-point interval, got %+v", intervals[0])
	}
}

func TestBuildLiveIntervals_WidenOnUse(t *testing.T) {
	instrs := []DecodedInstruction{
		{IsConstant: true, Opcode: OpConstInt, DestType: TypeInt32}, // 0: def
		{Opcode: OpAdd, DestType: TypeInt32, Arg0: instrBearing(0), Arg1: OperandSlot{Type: TypeVoid}}, // 1: use
		{Opcode: OpAdd, DestType: TypeInt32, Arg0: instrBearing(0), Arg1: OperandSlot{Type: TypeVoid}}, // 2: use
	}
	intervals := BuildLiveIntervals(instrs)
	if !intervals[0].HasUsage() {
		t.Fatalf("expected usage recorded")
	}
	if intervals[0].Start != 0 || intervals[0].End != 2 {
		t.Fatalf("got %+v, want Start=0 End=2", intervals[0])
	}
	if intervals[0].FirstUsage != 1 || intervals[0].LastUsage != 2 {
		t.Fatalf("got %+v, want FirstUsage=1 LastUsage=2", intervals[0])
	}
}

func TestBuildLiveIntervals_EveryInstructionIndexWithinItsOwnInterval(t *testing.T) {
	// spec.md §8 universal invariant 3: start <= i <= end for every instruction.
	instrs := []DecodedInstruction{
		{IsConstant: true, Opcode: OpConstInt, DestType: TypeInt32},
		{Opcode: OpAdd, DestType: TypeInt32, Arg0: instrBearing(0), Arg1: OperandSlot{Type: TypeVoid}},
	}
	intervals := BuildLiveIntervals(instrs)
	for i, iv := range intervals {
		if iv.Start > i || iv.End < i {
			t.Fatalf("index %d: interval %+v does not contain i", i, iv)
		}
	}
}
