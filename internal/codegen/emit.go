package codegen

import "github.com/sdvm-project/sdvmc/internal/codegen/cfi"

// EmitFunction drives one Machine across an already-allocated,
// frame-laid-out instruction array, producing its final machine code
// (spec.md §4.7 "Per-instruction emission dispatch"). Move-lowering
// reconciling an operand's expected Location against its definition's
// resolved Location happens here, once, generically, rather than inside
// every ISA's EmitInstruction (spec.md §9 "Move insertion is a generic
// concern of the driver, not of any one backend").
func EmitFunction(m Machine, instrs []CompilerInstruction, frame *FrameLayout, labels *LabelTable, sink cfi.Sink) (*CodeBuffer, error) {
	out := &CodeBuffer{}
	if frame.FrameRequired() {
		m.EmitPrologue(frame, sink, out)
	}
	for i := range instrs {
		ci := &instrs[i]
		if ci.Location.Kind == LocationImmediateLabel {
			// A Label constant carries no machine code of its own; its
			// instruction position marks the address every earlier or later
			// branch referencing it resolves to (spec.md §4.6 "a label may
			// be referenced before it is bound").
			labels.Bind(ci.Location.LabelID, out.Len())
			continue
		}
		if err := insertOperandMoves(m, out, instrs, ci); err != nil {
			return nil, err
		}
		if err := m.EmitInstruction(ci, instrs, frame, sink, out, labels); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// insertOperandMoves reconciles Arg0/Arg1's expected Location with the
// resolved Location of whatever definition they reference. Both
// instruction-bearing operand slots were already fully allocated by the
// time EmitFunction runs (regalloc_stage.go processes Arg0/Arg1 exactly
// like any other pending location), so "expected" here is always
// concrete: a pinned or allocator-assigned register, never a pending
// one.
func insertOperandMoves(m Machine, out *CodeBuffer, instrs []CompilerInstruction, ci *CompilerInstruction) error {
	if err := insertOneOperandMove(m, out, instrs, ci.Decoding.Arg0, ci.Arg0); err != nil {
		return err
	}
	if err := insertOneOperandMove(m, out, instrs, ci.Decoding.Arg1, ci.Arg1); err != nil {
		return err
	}
	return nil
}

func insertOneOperandMove(m Machine, out *CodeBuffer, instrs []CompilerInstruction, slot OperandSlot, expected Location) error {
	if !slot.Type.IsInstructionBearing() {
		return nil
	}
	if !expected.IsRegister() && !expected.IsStack() {
		// The expected location is itself the value (an embedded immediate,
		// a constant-section reference, a symbol reference, ...); nothing to
		// move, the consuming op reads it directly.
		return nil
	}
	idx := slot.Index()
	if idx < 0 || idx >= len(instrs) {
		return nil
	}
	src := instrs[idx].Location
	if locationsEqual(expected, src) {
		return nil
	}
	return m.InsertMove(out, expected, src)
}

func locationsEqual(a, b Location) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case LocationRegister:
		return a.Reg.Value.RealReg() == b.Reg.Value.RealReg()
	case LocationRegisterPair:
		return a.RegPair[0].Value.RealReg() == b.RegPair[0].Value.RealReg() &&
			a.RegPair[1].Value.RealReg() == b.RegPair[1].Value.RealReg()
	case LocationStack:
		return a.Stack.FramePointerRegister == b.Stack.FramePointerRegister &&
			a.Stack.FramePointerOffset == b.Stack.FramePointerOffset
	case LocationStackPair:
		return a.StackPair[0].FramePointerOffset == b.StackPair[0].FramePointerOffset &&
			a.StackPair[1].FramePointerOffset == b.StackPair[1].FramePointerOffset
	default:
		return true
	}
}
