// Package riscv implements the Machine interface (spec.md §4.7) for the
// RV64G integer calling convention, grounded on the same register-numbering
// scheme package amd64/arm64 use: RealReg(enc+1) names the register whose
// RISC-V encoding is enc. This package only targets XLEN=64: there is no
// RV32 ABI instance and no word-sized (32-bit) op variants.
package riscv

import (
	"github.com/sdvm-project/sdvmc/internal/codegen/backend"
	"github.com/sdvm-project/sdvmc/internal/codegen/backend/regalloc"
)

func reg(enc int) regalloc.RealReg { return regalloc.RealReg(enc + 1) }

func encOf(r regalloc.RealReg) int { return int(r) - 1 }

var (
	ZERO = reg(0)
	RA   = reg(1)
	SP   = reg(2)
	GP   = reg(3)
	TP   = reg(4)
	T0   = reg(5)
	T1   = reg(6)
	T2   = reg(7)
	S0   = reg(8) // frame pointer
	S1   = reg(9)
	A0   = reg(10)
	A1   = reg(11)
	A2   = reg(12)
	A3   = reg(13)
	A4   = reg(14)
	A5   = reg(15)
	A6   = reg(16)
	A7   = reg(17)
	S2   = reg(18)
	S3   = reg(19)
	S4   = reg(20)
	S5   = reg(21)
	S6   = reg(22)
	S7   = reg(23)
	S8   = reg(24)
	S9   = reg(25)
	S10  = reg(26)
	S11  = reg(27)
	T3   = reg(28)
	T4   = reg(29)
	T5   = reg(30)
	T6   = reg(31)
)

func freg(enc int) regalloc.RealReg { return regalloc.RealReg(enc + 1) }

var (
	FA0 = freg(10)
	FA1 = freg(11)
	FA2 = freg(12)
	FA3 = freg(13)
	FA4 = freg(14)
	FA5 = freg(15)
	FA6 = freg(16)
	FA7 = freg(17)
)

// NewLP64DABI builds the RV64 integer-hardfloat ("lp64d") calling
// convention (spec.md §6): 8 integer and 8 float argument registers in
// a0-a7/fa0-fa7, a0 as the integer/pointer result, s0 as the frame
// anchor, s1-s11 callee-saved.
func NewLP64DABI() *backend.ABI {
	return &backend.ABI{
		Name:                    "riscv64-lp64d",
		PointerSize:             8,
		StackAlignment:          16,
		StackParameterAlignment: 8,
		CalloutShadowSpace:      0,
		IntegerRegisterSize:     8,

		IntegerParamRegs: []regalloc.RealReg{A0, A1, A2, A3, A4, A5, A6, A7},
		FloatParamRegs:   []regalloc.RealReg{FA0, FA1, FA2, FA3, FA4, FA5, FA6, FA7},

		IntegerResultReg:   A0,
		Integer64ResultReg: A0,
		PointerResultReg:   A0,
		FloatResultReg:     FA0,
		VectorResultReg:    FA0,

		ClosurePointerReg:    T0,
		ClosureGCMetadataReg: T1,

		AllocatableIntegerRegs: []regalloc.RealReg{T0, T1, T2, A0, A1, A2, A3, A4, A5, A6, A7, S1, S2, S3, S4, S5, S6, S7, S8, S9, S10, S11, T3, T4, T5},
		AllocatableFloatRegs:   []regalloc.RealReg{FA0, FA1, FA2, FA3, FA4, FA5, FA6, FA7},

		CallPreservedIntegerRegs: []regalloc.RealReg{S1, S2, S3, S4, S5, S6, S7, S8, S9, S10, S11},
		CallPreservedFloatRegs:   nil,

		CallTouchedIntegerRegs: []regalloc.RealReg{RA, T0, T1, T2, A0, A1, A2, A3, A4, A5, A6, A7, T3, T4, T5, T6},
		CallTouchedFloatRegs:   []regalloc.RealReg{FA0, FA1, FA2, FA3, FA4, FA5, FA6, FA7},

		SupportsLocalSymbolValueCall:  true,
		SupportsGlobalSymbolValueCall: true,

		Is32Bit: false,
	}
}
