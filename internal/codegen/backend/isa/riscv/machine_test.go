package riscv

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
	if len(b) < 8 {
		t.Fatalf("expected at least two emitted words, got %d bytes", len(b))
	}
	// SP adjustment (ADDI sp, sp, -16) is always the first prologue
	// instruction this Machine emits.
	word0 := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	if word0 != iType(opImm, 0, x(SP), x(SP), -16) {
		t.Fatalf("got first word %#x, want ADDI sp, sp, -16 (%#x)", word0, iType(opImm, 0, x(SP), x(SP), -16))
	}
	foundRet := false
	retWord := iType(opJALR, 0, x(ZERO), x(RA), 0)
	for i := 0; i+4 <= len(b); i += 4 {
		w := uint32(b[i]) | uint32(b[i+1])<<8 | uint32(b[i+2])<<16 | uint32(b[i+3])<<24
		if w == retWord {
			foundRet = true
		}
	}
	if !foundRet {
		t.Fatalf("expected a JALR x0, 0(ra) (ret) word somewhere in the emitted code")
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

func TestEmitCompareProducesWholeWords(t *testing.T) {
	decs := []codegen.DecodedInstruction{
		{IsConstant: true, Opcode: codegen.OpConstInt, DestType: codegen.TypeInt32, Payload: 1},
		{IsConstant: true, Opcode: codegen.OpConstInt, DestType: codegen.TypeInt32, Payload: 2},
		{Opcode: codegen.OpCmpLt, DestType: codegen.TypeBoolean,
			Arg0: codegen.OperandSlot{Type: codegen.TypeInt32, Field: 0},
			Arg1: codegen.OperandSlot{Type: codegen.TypeInt32, Field: 1}},
		{Opcode: codegen.OpReturn, DestType: codegen.TypeVoid,
			Arg0: codegen.OperandSlot{Type: codegen.TypeBoolean, Field: 2},
			Arg1: codegen.OperandSlot{Type: codegen.TypeVoid}},
	}
	buf, _ := compileTiny(t, decs)
	if len(buf.Bytes())%4 != 0 {
		t.Fatalf("expected a whole number of 32-bit words, got %d bytes", len(buf.Bytes()))
	}
}
