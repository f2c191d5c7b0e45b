package amd64

import (
	"testing"

	"github.com/sdvm-project/sdvmc/internal/codegen"
	"github.com/sdvm-project/sdvmc/internal/codegen/cfi"
	"github.com/sdvm-project/sdvmc/internal/codegen/module"
)

// compileTiny runs a decoded instruction stream through every pipeline
// stage (constraint -> regalloc -> frame layout -> emission) the way
// Compiler.CompileModule will, without going through the bytecode decoder
// (spec.md §8 "a hand-built CompilerInstruction array exercises the same
// stages a decoded one would").
func compileTiny(t *testing.T, decs []codegen.DecodedInstruction) (*codegen.CodeBuffer, []codegen.CompilerInstruction) {
	t.Helper()
	mod := module.NewBuilder(8).Build()
	instrs := make([]codegen.CompilerInstruction, len(decs))
	for i, d := range decs {
		instrs[i] = codegen.CompilerInstruction{Decoding: d, Index: i}
	}
	labelIDs := codegen.DiscoverLabels(decs)

	m := New()
	ce := codegen.NewConstraintEngine(m.ABI(), mod, labelIDs, instrs)
	if err := ce.Run(); err != nil {
		t.Fatalf("constraint engine: %v", err)
	}

	driver := codegen.NewRegAllocDriver(m.ABI())
	driver.Run(instrs)

	frame := codegen.ComputeFrameLayout(m.ABI(), instrs, driver, m.FramePointerRegister())
	frame.ResolveAll(instrs)

	labels := codegen.NewLabelTable(0)
	buf, err := codegen.EmitFunction(m, instrs, frame, labels, cfi.NopSink{})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	return buf, instrs
}

func TestEmitAddThenReturn(t *testing.T) {
	decs := []codegen.DecodedInstruction{
		{IsConstant: true, Opcode: codegen.OpConstInt, DestType: codegen.TypeInt32, Payload: 3},
		{IsConstant: true, Opcode: codegen.OpConstInt, DestType: codegen.TypeInt32, Payload: 4},
		{Opcode: codegen.OpAdd, DestType: codegen.TypeInt32,
			Arg0: codegen.OperandSlot{Type: codegen.TypeInt32, Field: 0},
			Arg1: codegen.OperandSlot{Type: codegen.TypeInt32, Field: 1}},
		{Opcode: codegen.OpReturn, DestType: codegen.TypeVoid,
			Arg0: codegen.OperandSlot{Type: codegen.TypeInt32, Field: 2},
			Arg1: codegen.OperandSlot{Type: codegen.TypeVoid}},
	}
	buf, _ := compileTiny(t, decs)
	b := buf.Bytes()
	if len(b) == 0 {
		t.Fatalf("expected non-empty emitted code")
	}
	if b[0] != 0x55 { // push rbp
		t.Fatalf("got first byte %#x, want 0x55 (push rbp)", b[0])
	}
	foundRet := false
	for _, c := range b {
		if c == 0xC3 {
			foundRet = true
		}
	}
	if !foundRet {
		t.Fatalf("expected a ret (0xC3) byte somewhere in the emitted code")
	}
}

func TestEmitIdentityArgument(t *testing.T) {
	decs := []codegen.DecodedInstruction{
		{Opcode: codegen.OpBeginArguments, DestType: codegen.TypeVoid},
		{Opcode: codegen.OpArg, DestType: codegen.TypeInt32},
		{Opcode: codegen.OpReturn, DestType: codegen.TypeVoid,
			Arg0: codegen.OperandSlot{Type: codegen.TypeInt32, Field: 1},
			Arg1: codegen.OperandSlot{Type: codegen.TypeVoid}},
	}
	buf, instrs := compileTiny(t, decs)
	if instrs[1].Location.Kind != codegen.LocationRegister {
		t.Fatalf("expected the first argument to land in a register")
	}
	if len(buf.Bytes()) == 0 {
		t.Fatalf("expected non-empty emitted code")
	}
}
