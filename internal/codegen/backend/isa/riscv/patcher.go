package riscv

import (
	"encoding/binary"

	"github.com/sdvm-project/sdvmc/internal/codegen"
)

// Patcher wraps a *codegen.CodeBuffer to additionally understand the ten
// RISC-V-specific RelocationKind variants label.go declares — this ISA
// splits a PC-relative or absolute displacement across an AUIPC/LUI and a
// dependent low-12 instruction, which the three universal relocation kinds
// (Relative32/Absolute32/Absolute64) can't express. Anything this Patcher
// doesn't own falls back to the wrapped buffer's own Patch (spec.md §4.6).
type Patcher struct {
	out *codegen.CodeBuffer
}

func NewPatcher(out *codegen.CodeBuffer) *Patcher { return &Patcher{out: out} }

func (p *Patcher) word(offset int64) uint32 {
	return binary.LittleEndian.Uint32(p.out.Raw()[offset : offset+4])
}

func (p *Patcher) setWord(offset int64, w uint32) {
	binary.LittleEndian.PutUint32(p.out.Raw()[offset:offset+4], w)
}

func (p *Patcher) Patch(offset int64, kind codegen.RelocationKind, value int64) error {
	switch kind {
	case codegen.RelocationJAL:
		return p.patchJ(offset, value)
	case codegen.RelocationBranch:
		return p.patchB(offset, value)
	case codegen.RelocationPCRelativeHi20, codegen.RelocationAbsoluteHi20:
		return p.patchU(offset, value)
	case codegen.RelocationPCRelativeLo12I, codegen.RelocationAbsoluteLo12I:
		return p.patchI(offset, value)
	case codegen.RelocationPCRelativeLo12S, codegen.RelocationAbsoluteLo12S:
		return p.patchS(offset, value)
	case codegen.RelocationRelax, codegen.RelocationCallPLT:
		// This backend never relaxes a relocation pair and never routes a
		// call through a PLT stub; the marker is accepted and ignored.
		return nil
	default:
		return p.out.Patch(offset, kind, value)
	}
}

func (p *Patcher) patchJ(offset, value int64) error {
	if value < -(1<<20) || value >= (1<<20) || value%2 != 0 {
		return &codegen.RelocationOverflowError{Offset: value, Kind: codegen.RelocationJAL}
	}
	p.setWord(offset, p.word(offset)&0xFFF|jImm(int32(value)))
	return nil
}

func (p *Patcher) patchB(offset, value int64) error {
	if value < -(1<<12) || value >= (1<<12) || value%2 != 0 {
		return &codegen.RelocationOverflowError{Offset: value, Kind: codegen.RelocationBranch}
	}
	p.setWord(offset, p.word(offset)&0x01FFF07F|bImm(int32(value)))
	return nil
}

// patchU rewrites a LUI/AUIPC's 20-bit upper immediate. value is expected
// to already be the 20-bit hi-immediate (the caller that requests this
// relocation kind is responsible for the +0x800 rounding that compensates
// for the paired low-12 instruction's sign extension).
func (p *Patcher) patchU(offset, value int64) error {
	p.setWord(offset, p.word(offset)&0xFFF|(uint32(value)&0xFFFFF)<<12)
	return nil
}

func (p *Patcher) patchI(offset, value int64) error {
	p.setWord(offset, p.word(offset)&0xFFFFF|(uint32(value)&0xFFF)<<20)
	return nil
}

func (p *Patcher) patchS(offset, value int64) error {
	p.setWord(offset, p.word(offset)&0x01FFF07F|sImm(int32(value)))
	return nil
}
