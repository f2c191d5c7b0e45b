package codegen

import "testing"

func TestDecodeConstantForm(t *testing.T) {
	d := DecodedInstruction{IsConstant: true, Opcode: OpConstInt, DestType: TypeInt32, Payload: -5}
	word := EncodeWord(d)
	got, err := DecodeWord(word, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != d {
		t.Fatalf("got %+v, want %+v", got, d)
	}
}

func TestDecodeOperationForm(t *testing.T) {
	d := DecodedInstruction{
		Opcode:   OpAdd,
		DestType: TypeInt64,
		Arg0:     OperandSlot{Type: TypeInt64, Field: 0},
		Arg1:     OperandSlot{Type: TypeInt64, Field: 1},
	}
	word := EncodeWord(d)
	got, err := DecodeWord(word, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != d {
		t.Fatalf("got %+v, want %+v", got, d)
	}
}

func TestDecodeOperationFormNegativeImmediate(t *testing.T) {
	d := DecodedInstruction{
		Opcode:   OpAdd,
		DestType: TypeInt32,
		Arg0:     OperandSlot{Type: TypeInt32, Field: 0},
		Arg1:     OperandSlot{Type: TypeInfo, Field: -17},
	}
	word := EncodeWord(d)
	got, err := DecodeWord(word, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Arg1.Field != -17 {
		t.Fatalf("got %d, want -17", got.Arg1.Field)
	}
}

func TestDecodeRoundTripEveryWord(t *testing.T) {
	// spec.md §8 "round-trip / idempotence laws": decode then re-encode
	// must reproduce the original word exactly.
	cases := []DecodedInstruction{
		{IsConstant: true, Opcode: OpConstLabel, DestType: TypeLabel, Payload: 0},
		{IsConstant: true, Opcode: OpConstFloat, DestType: TypeFloat64, Payload: -1},
		{Opcode: OpJump, DestType: TypeVoid, Arg0: OperandSlot{Type: TypeLabel, Field: 0}, Arg1: OperandSlot{Type: TypeVoid}},
		{Opcode: OpReturnVoid, DestType: TypeVoid},
	}
	for i, c := range cases {
		word := EncodeWord(c)
		got, err := DecodeWord(word, i+10) // index large enough that any operand index is in range.
		if err != nil {
			t.Fatalf("case %d: unexpected error: %v", i, err)
		}
		if got != c {
			t.Fatalf("case %d: got %+v, want %+v", i, got, c)
		}
		if word2 := EncodeWord(got); word2 != word {
			t.Fatalf("case %d: re-encoding did not reproduce original word: %x != %x", i, word2, word)
		}
	}
}

func TestDecodeMalformedInstructionOutOfRangeOperand(t *testing.T) {
	d := DecodedInstruction{
		Opcode:   OpAdd,
		DestType: TypeInt32,
		Arg0:     OperandSlot{Type: TypeInt32, Field: 5}, // references index 5, but currentIndex is 2.
		Arg1:     OperandSlot{Type: TypeVoid},
	}
	word := EncodeWord(d)
	_, err := DecodeWord(word, 2)
	if err == nil {
		t.Fatalf("expected MalformedInstructionError")
	}
	if _, ok := err.(*MalformedInstructionError); !ok {
		t.Fatalf("got %T, want *MalformedInstructionError", err)
	}
}

func TestDecodeMalformedInstructionNegativeOperand(t *testing.T) {
	d := DecodedInstruction{
		Opcode:   OpAdd,
		DestType: TypeInt32,
		Arg0:     OperandSlot{Type: TypeInt32, Field: -1},
		Arg1:     OperandSlot{Type: TypeVoid},
	}
	word := EncodeWord(d)
	if _, err := DecodeWord(word, 2); err == nil {
		t.Fatalf("expected error for negative instruction-bearing operand")
	}
}

func TestDecodeFunction(t *testing.T) {
	words := []uint64{
		EncodeWord(DecodedInstruction{IsConstant: true, Opcode: OpConstInt, DestType: TypeInt32, Payload: 1}),
		EncodeWord(DecodedInstruction{
			Opcode: OpReturn, DestType: TypeVoid,
			Arg0: OperandSlot{Type: TypeInt32, Field: 0},
			Arg1: OperandSlot{Type: TypeVoid},
		}),
	}
	instrs, err := DecodeFunction(words)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(instrs) != 2 {
		t.Fatalf("got %d instructions, want 2", len(instrs))
	}
}

func TestDiscoverLabels(t *testing.T) {
	instrs := []DecodedInstruction{
		{IsConstant: true, Opcode: OpConstInt, DestType: TypeInt32},
		{IsConstant: true, Opcode: OpConstLabel, DestType: TypeLabel},
		{Opcode: OpAdd, DestType: TypeInt32},
		{IsConstant: true, Opcode: OpConstLabel, DestType: TypeLabel},
	}
	ids := DiscoverLabels(instrs)
	want := []LabelID{LabelIDInvalid, 0, LabelIDInvalid, 1}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("index %d: got %v, want %v", i, ids[i], want[i])
		}
	}
}
