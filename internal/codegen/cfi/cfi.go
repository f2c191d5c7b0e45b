// Package cfi defines the callback interface a per-ISA Machine drives
// while emitting a function's prologue and epilogue, so a caller that
// wants DWARF call-frame-information records (or any other frame-layout
// observer) can hang off the compiler without the codegen package itself
// depending on a DWARF writer (spec.md §1 excludes the object-file writer
// and its debug-info sections, but the hooks a future one would need are
// cheap to carry now).
package cfi

import "github.com/sdvm-project/sdvmc/internal/codegen/backend/regalloc"

// Sink receives one notification per prologue/epilogue event, in the
// order the Machine emits them.
type Sink interface {
	// PushRegister records that reg was pushed/stored to preserve its
	// caller's value, at byte offset codeOffset into the function.
	PushRegister(codeOffset int64, reg regalloc.RealReg)
	// StackSizeAdvance records that the stack pointer moved by delta
	// bytes (negative for allocation) at codeOffset.
	StackSizeAdvance(codeOffset int64, delta int64)
	// EndPrologue marks the first instruction after the prologue.
	EndPrologue(codeOffset int64)
	// BeginEpilogue marks the first instruction of the epilogue.
	BeginEpilogue(codeOffset int64)
	// EndEpilogue marks the instruction immediately after the epilogue
	// (typically the return).
	EndEpilogue(codeOffset int64)
}

// NopSink implements Sink by doing nothing, the default when a caller has
// no frame-information consumer (spec.md §1, "DWARF ... are out of
// scope" — NopSink is how that absence is represented without making the
// Machine interface itself optional).
type NopSink struct{}

func (NopSink) PushRegister(int64, regalloc.RealReg) {}
func (NopSink) StackSizeAdvance(int64, int64)        {}
func (NopSink) EndPrologue(int64)                    {}
func (NopSink) BeginEpilogue(int64)                  {}
func (NopSink) EndEpilogue(int64)                    {}
