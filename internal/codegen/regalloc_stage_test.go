package codegen

import (
	"testing"

	"github.com/sdvm-project/sdvmc/internal/codegen/backend"
	"github.com/sdvm-project/sdvmc/internal/codegen/backend/regalloc"
	"github.com/sdvm-project/sdvmc/internal/codegen/module"
)

func oneRegisterABI() *backend.ABI {
	return &backend.ABI{
		PointerSize:            8,
		IntegerParamRegs:       []regalloc.RealReg{1, 2},
		AllocatableIntegerRegs: []regalloc.RealReg{1},
	}
}

// Two integer constants and an argument share a single allocatable
// integer register (spec.md §8 "spill forced by register pressure"). The
// constants are small, so the constraint engine may give them immediate
// locations that the Add consumes directly; the test accepts either a
// spill of one constant or both constants staying immediates.
func TestRegAllocUnderPressureSpillsOrKeepsImmediates(t *testing.T) {
	mod := module.NewBuilder(8).Build()
	decs := []DecodedInstruction{
		{IsConstant: true, Opcode: OpConstInt, DestType: TypeInt32, Payload: 1}, // 0
		{IsConstant: true, Opcode: OpConstInt, DestType: TypeInt32, Payload: 2}, // 1
		{Opcode: OpBeginArguments, DestType: TypeVoid},                         // 2
		{Opcode: OpArg, DestType: TypeInt32},                                   // 3: forces 0 and 1 to sit in registers across this instruction's extent.
		{Opcode: OpAdd, DestType: TypeInt32, Arg0: OperandSlot{Type: TypeInt32, Field: 0}, Arg1: OperandSlot{Type: TypeInt32, Field: 1}}, // 4
	}
	// BuildLiveIntervals makes indices 0 and 1 live across index 3, up to
	// their use at the Add; constraint+regalloc then run as in the pipeline.
	intervals := BuildLiveIntervals(decs)
	instrs := make([]CompilerInstruction, len(decs))
	for i, d := range decs {
		instrs[i] = CompilerInstruction{Decoding: d, Index: i, LiveInterval: intervals[i]}
	}

	abi := oneRegisterABI()
	labels := DiscoverLabels(decs)
	ce := NewConstraintEngine(abi, mod, labels, instrs)
	if err := ce.Run(); err != nil {
		t.Fatalf("constraint stage failed: %v", err)
	}

	driver := NewRegAllocDriver(abi)
	driver.Run(instrs)

	// With only one allocatable integer register and two simultaneously
	// live constants, either at least one of them was moved to a stack
	// location, or both are immediates that never needed a register.
	spilled := instrs[0].Location.IsStack() || instrs[1].Location.IsStack()
	bothImmediate := instrs[0].Location.IsImmediate() && instrs[1].Location.IsImmediate()
	if !spilled && !bothImmediate {
		t.Fatalf("expected a spill or immediate-embedding under register pressure, got %+v / %+v", instrs[0].Location, instrs[1].Location)
	}
}

func TestRegAllocCommitsPinnedArgumentRegister(t *testing.T) {
	mod := module.NewBuilder(8).Build()
	decs := []DecodedInstruction{
		{Opcode: OpBeginArguments, DestType: TypeVoid},
		{Opcode: OpArg, DestType: TypeInt32},
		{Opcode: OpReturn, DestType: TypeVoid, Arg0: OperandSlot{Type: TypeInt32, Field: 1}, Arg1: OperandSlot{Type: TypeVoid}},
	}
	intervals := BuildLiveIntervals(decs)
	instrs := make([]CompilerInstruction, len(decs))
	for i, d := range decs {
		instrs[i] = CompilerInstruction{Decoding: d, Index: i, LiveInterval: intervals[i]}
	}
	abi := &backend.ABI{
		PointerSize:            8,
		IntegerParamRegs:       []regalloc.RealReg{1, 2, 3, 4},
		AllocatableIntegerRegs: []regalloc.RealReg{1, 2, 3, 4},
		IntegerResultReg:       1,
	}
	labels := DiscoverLabels(decs)
	ce := NewConstraintEngine(abi, mod, labels, instrs)
	if err := ce.Run(); err != nil {
		t.Fatalf("constraint stage failed: %v", err)
	}
	driver := NewRegAllocDriver(abi)
	driver.Run(instrs)

	if instrs[1].Location.Kind != LocationRegister || instrs[1].Location.Reg.Value.RealReg() != 1 {
		t.Fatalf("arg should stay pinned to register 1, got %+v", instrs[1].Location)
	}
}
