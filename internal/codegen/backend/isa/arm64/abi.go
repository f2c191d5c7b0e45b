// Package arm64 implements the Machine interface (spec.md §4.7) for the
// AArch64 AAPCS64 calling convention. RealReg numbering mirrors the
// register's own encoding, offset by one the same way package amd64 does:
// RealReg(enc+1) names Xn/Vn whose ISA encoding is enc.
package arm64

import (
	"github.com/sdvm-project/sdvmc/internal/codegen/backend"
	"github.com/sdvm-project/sdvmc/internal/codegen/backend/regalloc"
)

func reg(enc int) regalloc.RealReg { return regalloc.RealReg(enc + 1) }

func encOf(r regalloc.RealReg) int { return int(r) - 1 }

var (
	X0  = reg(0)
	X1  = reg(1)
	X2  = reg(2)
	X3  = reg(3)
	X4  = reg(4)
	X5  = reg(5)
	X6  = reg(6)
	X7  = reg(7)
	X8  = reg(8)
	X9  = reg(9)
	X16 = reg(16)
	X17 = reg(17)
	X19 = reg(19)
	X20 = reg(20)
	X21 = reg(21)
	X22 = reg(22)
	X23 = reg(23)
	X24 = reg(24)
	X25 = reg(25)
	X26 = reg(26)
	X27 = reg(27)
	X28 = reg(28)
	X29 = reg(29) // frame pointer (FP)
	X30 = reg(30) // link register (LR)
	XZR = reg(31)
	SP  = reg(31) // same encoding as XZR; disambiguated by instruction form.
)

func vreg(enc int) regalloc.RealReg { return regalloc.RealReg(enc + 1) }

var (
	V0 = vreg(0)
	V1 = vreg(1)
	V2 = vreg(2)
	V3 = vreg(3)
	V4 = vreg(4)
	V5 = vreg(5)
	V6 = vreg(6)
	V7 = vreg(7)
)

// NewAAPCS64ABI builds the AArch64 procedure-call-standard descriptor
// (spec.md §6): 8 integer and 8 float/vector argument registers, X0/V0
// results, X29 as the frame anchor, X19-X28 callee-saved.
func NewAAPCS64ABI() *backend.ABI {
	return &backend.ABI{
		Name:                    "aapcs64",
		PointerSize:             8,
		StackAlignment:          16,
		StackParameterAlignment: 8,
		CalloutShadowSpace:      0,
		IntegerRegisterSize:     8,

		IntegerParamRegs: []regalloc.RealReg{X0, X1, X2, X3, X4, X5, X6, X7},
		FloatParamRegs:   []regalloc.RealReg{V0, V1, V2, V3, V4, V5, V6, V7},

		IntegerResultReg:   X0,
		Integer64ResultReg: X0,
		PointerResultReg:   X0,
		FloatResultReg:     V0,
		VectorResultReg:    V0,

		ClosurePointerReg:    X16,
		ClosureGCMetadataReg: X17,

		AllocatableIntegerRegs: []regalloc.RealReg{X0, X1, X2, X3, X4, X5, X6, X7, X8, X9, X19, X20, X21, X22, X23, X24, X25, X26, X27, X28},
		AllocatableFloatRegs:   []regalloc.RealReg{V0, V1, V2, V3, V4, V5, V6, V7},

		CallPreservedIntegerRegs: []regalloc.RealReg{X19, X20, X21, X22, X23, X24, X25, X26, X27, X28},
		CallPreservedFloatRegs:   nil,

		CallTouchedIntegerRegs: []regalloc.RealReg{X0, X1, X2, X3, X4, X5, X6, X7, X8, X9},
		CallTouchedFloatRegs:   []regalloc.RealReg{V0, V1, V2, V3, V4, V5, V6, V7},

		SupportsLocalSymbolValueCall:  true,
		SupportsGlobalSymbolValueCall: true,

		Is32Bit: false,
	}
}
