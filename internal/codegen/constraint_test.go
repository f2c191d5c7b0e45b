package codegen

import (
	"testing"

	"github.com/sdvm-project/sdvmc/internal/codegen/backend"
	"github.com/sdvm-project/sdvmc/internal/codegen/backend/regalloc"
	"github.com/sdvm-project/sdvmc/internal/codegen/module"
)

// testABI is a small SysV-AMD64-shaped fixture: 4 integer argument
// registers, 2 float argument registers, enough to exercise both the
// register and stack-overflow paths without needing a real ISA package.
func testABI() *backend.ABI {
	return &backend.ABI{
		Name:                    "test-sysv",
		PointerSize:             8,
		StackAlignment:          16,
		StackParameterAlignment: 8,
		IntegerRegisterSize:     8,
		IntegerParamRegs:        []regalloc.RealReg{1, 2, 3, 4},
		FloatParamRegs:          []regalloc.RealReg{10, 11},
		IntegerResultReg:        1,
		Integer64ResultReg:      1,
		PointerResultReg:        1,
		FloatResultReg:          10,
		CallTouchedIntegerRegs:  []regalloc.RealReg{1, 2, 3, 4, 5},
		CallTouchedFloatRegs:    []regalloc.RealReg{10, 11, 12},
		SupportsGlobalSymbolValueCall: true,
		SupportsLocalSymbolValueCall:  true,
	}
}

func engineOver(abi *backend.ABI, mod *module.Module, decs []DecodedInstruction) (*ConstraintEngine, []CompilerInstruction) {
	instrs := make([]CompilerInstruction, len(decs))
	for i, d := range decs {
		instrs[i] = CompilerInstruction{Decoding: d, Index: i}
	}
	labels := DiscoverLabels(decs)
	return NewConstraintEngine(abi, mod, labels, instrs), instrs
}

func TestConstraintSmallIntConstantIsImmediate(t *testing.T) {
	mod := module.NewBuilder(8).Build()
	decs := []DecodedInstruction{{IsConstant: true, Opcode: OpConstInt, DestType: TypeInt32, Payload: 42}}
	ce, instrs := engineOver(testABI(), mod, decs)
	if err := ce.Run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if instrs[0].Location.Kind != LocationImmediateS32 {
		t.Fatalf("got %v, want LocationImmediateS32", instrs[0].Location.Kind)
	}
	if instrs[0].Location.ImmS64 != 42 {
		t.Fatalf("got %d, want 42", instrs[0].Location.ImmS64)
	}
}

func TestConstraintOversizedInt64GoesToConstantSection(t *testing.T) {
	mod := module.NewBuilder(8).Build()
	big := int64(1) << 40
	decs := []DecodedInstruction{{IsConstant: true, Opcode: OpConstInt, DestType: TypeInt64, Payload: big}}
	ce, instrs := engineOver(testABI(), mod, decs)
	if err := ce.Run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if instrs[0].Location.Kind != LocationConstantSection {
		t.Fatalf("got %v, want LocationConstantSection", instrs[0].Location.Kind)
	}
	if len(ce.ConstSectionBuilder.Bytes()) != 8 {
		t.Fatalf("got %d bytes in constant section, want 8", len(ce.ConstSectionBuilder.Bytes()))
	}
}

func TestConstraintSmallInt64StaysImmediate(t *testing.T) {
	mod := module.NewBuilder(8).Build()
	decs := []DecodedInstruction{{IsConstant: true, Opcode: OpConstInt, DestType: TypeInt64, Payload: 7}}
	ce, instrs := engineOver(testABI(), mod, decs)
	if err := ce.Run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if instrs[0].Location.Kind != LocationImmediateS64 {
		t.Fatalf("got %v, want LocationImmediateS64", instrs[0].Location.Kind)
	}
	if instrs[0].Location.ImmS64 != 7 {
		t.Fatalf("got %d, want 7", instrs[0].Location.ImmS64)
	}
}

func TestConstraintConstStringInternsIntoRoData(t *testing.T) {
	b := module.NewBuilder(8)
	off := b.AddString("hi")
	mod := b.Build()
	decs := []DecodedInstruction{{IsConstant: true, Opcode: OpConstString0, DestType: TypePointer, Payload: int64(off)}}
	ce, instrs := engineOver(testABI(), mod, decs)
	if err := ce.Run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if instrs[0].Location.Kind != LocationLocalSymbolValue {
		t.Fatalf("got %v, want LocationLocalSymbolValue", instrs[0].Location.Kind)
	}
	want := "hi\x00"
	got := string(ce.RODataBuilder.Bytes())
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestConstraintArgumentFillsRegistersThenStack(t *testing.T) {
	mod := module.NewBuilder(8).Build()
	decs := []DecodedInstruction{
		{Opcode: OpBeginArguments, DestType: TypeVoid},
		{Opcode: OpArg, DestType: TypeInt32},
		{Opcode: OpArg, DestType: TypeInt32},
		{Opcode: OpArg, DestType: TypeInt32},
		{Opcode: OpArg, DestType: TypeInt32},
		{Opcode: OpArg, DestType: TypeInt32}, // 5th integer arg: registers exhausted (4 available).
	}
	ce, instrs := engineOver(testABI(), mod, decs)
	if err := ce.Run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 1; i <= 4; i++ {
		if instrs[i].Location.Kind != LocationRegister {
			t.Fatalf("arg %d: got %v, want LocationRegister", i, instrs[i].Location.Kind)
		}
		if instrs[i].Location.Reg.Pending {
			t.Fatalf("arg %d: expected a pinned (non-pending) register", i)
		}
	}
	if instrs[5].Location.Kind != LocationStack {
		t.Fatalf("5th arg: got %v, want LocationStack", instrs[5].Location.Kind)
	}
	if instrs[5].Location.Stack.Segment != SegmentArgumentPassing {
		t.Fatalf("5th arg: got segment %v, want ArgumentPassing", instrs[5].Location.Stack.Segment)
	}
}

func TestConstraintOrdinaryOpOperandsReferenceDefVReg(t *testing.T) {
	mod := module.NewBuilder(8).Build()
	decs := []DecodedInstruction{
		{IsConstant: true, Opcode: OpConstInt, DestType: TypeInt32, Payload: 10},
		{Opcode: OpAdd, DestType: TypeInt32, Arg0: OperandSlot{Type: TypeInt32, Field: 0}, Arg1: OperandSlot{Type: TypeVoid}},
	}
	ce, instrs := engineOver(testABI(), mod, decs)
	if err := ce.Run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// index 0 is an immediate def consumed by an arithmetic op: its
	// location is reused directly as the operand (spec.md §3 invariant 5).
	if instrs[1].Arg0.Kind != LocationImmediateS32 {
		t.Fatalf("got %v, want the constant's own immediate location", instrs[1].Arg0.Kind)
	}
}

func TestConstraintOrdinaryOpOperandFromRegisterDef(t *testing.T) {
	mod := module.NewBuilder(8).Build()
	decs := []DecodedInstruction{
		{Opcode: OpBeginArguments, DestType: TypeVoid},
		{Opcode: OpArg, DestType: TypeInt32},
		{Opcode: OpAdd, DestType: TypeInt32, Arg0: OperandSlot{Type: TypeInt32, Field: 1}, Arg1: OperandSlot{Type: TypeVoid}},
	}
	ce, instrs := engineOver(testABI(), mod, decs)
	if err := ce.Run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if instrs[2].Arg0.Kind != LocationRegister {
		t.Fatalf("got %v, want LocationRegister", instrs[2].Arg0.Kind)
	}
	if !instrs[2].Arg0.Reg.Pending {
		t.Fatalf("expected a pending (any-register) operand location")
	}
	if instrs[2].Arg0.Reg.Value.ID() != regalloc.NewVReg(defVRegID(1, 0), regalloc.RegKindInteger).ID() {
		t.Fatalf("operand VReg id should match its definition's index-derived id")
	}
}

func TestConstraintCallSetsClobbersAndResultLocation(t *testing.T) {
	mod := module.NewBuilder(8).Build()
	decs := []DecodedInstruction{
		{IsConstant: true, Opcode: OpConstFunction, DestType: TypeProcedureHandle, Payload: 0},
		{Opcode: OpBeginCall, DestType: TypeVoid},
		{Opcode: OpCall, DestType: TypeInt32, Arg0: OperandSlot{Type: TypeProcedureHandle, Field: 0}, Arg1: OperandSlot{Type: TypeVoid}},
	}
	b := module.NewBuilder(8)
	b.AddFunction("callee", nil)
	ce, instrs := engineOver(testABI(), b.Build(), decs)
	if err := ce.Run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	call := instrs[2]
	if call.Clobbers.Integer.IsEmpty() {
		t.Fatalf("expected a non-empty integer clobber set for a call")
	}
	if call.Location.Kind != LocationRegister || call.Location.Reg.Pending {
		t.Fatalf("expected a pinned result register, got %+v", call.Location)
	}
	if call.Arg0.Kind != LocationLocalSymbolValue {
		t.Fatalf("got %v, want LocationLocalSymbolValue for a direct call to a local function", call.Arg0.Kind)
	}
}

func TestConstraintReturnUsesResultRegister(t *testing.T) {
	mod := module.NewBuilder(8).Build()
	decs := []DecodedInstruction{
		{IsConstant: true, Opcode: OpConstInt, DestType: TypeInt32, Payload: 1},
		{Opcode: OpReturn, DestType: TypeVoid, Arg0: OperandSlot{Type: TypeInt32, Field: 0}, Arg1: OperandSlot{Type: TypeVoid}},
	}
	ce, instrs := engineOver(testABI(), mod, decs)
	if err := ce.Run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if instrs[1].Arg0.Kind != LocationRegister || instrs[1].Arg0.Reg.Pending {
		t.Fatalf("got %+v, want a pinned result register", instrs[1].Arg0)
	}
}

func TestConstraintAllocateLocalGetsStackLocation(t *testing.T) {
	mod := module.NewBuilder(8).Build()
	decs := []DecodedInstruction{
		{Opcode: OpAllocateLocal, DestType: TypePointer, Arg0: OperandSlot{Type: TypeInfo, Field: 16}, Arg1: OperandSlot{Type: TypeInfo, Field: 8}},
	}
	ce, instrs := engineOver(testABI(), mod, decs)
	if err := ce.Run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if instrs[0].StackLocation.Kind != LocationStack {
		t.Fatalf("got %v, want LocationStack", instrs[0].StackLocation.Kind)
	}
	if instrs[0].StackLocation.Stack.Size != 16 || instrs[0].StackLocation.Stack.Alignment != 8 {
		t.Fatalf("got %+v, want size=16 align=8", instrs[0].StackLocation.Stack)
	}
}
