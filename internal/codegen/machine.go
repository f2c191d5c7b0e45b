package codegen

import (
	"github.com/sdvm-project/sdvmc/internal/codegen/backend"
	"github.com/sdvm-project/sdvmc/internal/codegen/backend/regalloc"
	"github.com/sdvm-project/sdvmc/internal/codegen/cfi"
)

// Machine is the per-ISA emitter interface (spec.md §4.7 "Per-instruction
// emission dispatch"), implemented once per target by
// internal/codegen/backend/isa/{amd64,arm64,riscv}. It mirrors the role
// wazero's own backend.Machine plays between the architecture-neutral
// compiler driver and each ISA's instruction encoder, adapted from
// wazevo's SSA-block model to this pipeline's flat, already-allocated
// instruction array.
type Machine interface {
	Name() string

	// ABI returns the calling-convention descriptor this Machine was
	// constructed with.
	ABI() *backend.ABI

	// FramePointerRegister returns the physical register the frame is
	// anchored to, used by ComputeFrameLayout and by every Stack location
	// this Machine resolves addresses for.
	FramePointerRegister() regalloc.RealReg

	// EmitPrologue writes the function entry sequence: frame allocation
	// and call-preserved register spills. No implementation emits a
	// CET/BTI landing-pad instruction.
	EmitPrologue(frame *FrameLayout, sink cfi.Sink, out *CodeBuffer)

	// EmitEpilogue writes the function exit sequence: call-preserved
	// register restores, frame deallocation, and the return instruction.
	EmitEpilogue(frame *FrameLayout, sink cfi.Sink, out *CodeBuffer)

	// EmitInstruction lowers one already-allocated CompilerInstruction to
	// machine code, appending to out and recording any label reference it
	// makes against labels. instrs is the full function array so the
	// emitter can read a referenced definition's resolved Location. A
	// Return/ReturnVoid instruction emits its own copy of the epilogue
	// inline (the bytecode may return from the middle of a function, not
	// only at the end of the instruction stream) using frame and sink.
	EmitInstruction(ci *CompilerInstruction, instrs []CompilerInstruction, frame *FrameLayout, sink cfi.Sink, out *CodeBuffer, labels *LabelTable) error

	// InsertMove copies the value at src into dst, reconciling an
	// operand's expected Location with its definition's actual resolved
	// Location (spec.md §4.7 "move arg0 source-location -> arg0
	// expected-location"). dst is always LocationRegister,
	// LocationRegisterPair, LocationStack or LocationStackPair (an
	// outgoing stack argument); src may be any Location kind.
	InsertMove(out *CodeBuffer, dst, src Location) error

	// NewPatcher returns a Patcher over out that understands every
	// RelocationKind this Machine's emitter can produce.
	NewPatcher(out *CodeBuffer) Patcher
}
