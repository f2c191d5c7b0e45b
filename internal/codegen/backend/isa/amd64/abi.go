// Package amd64 implements the Machine interface (spec.md §4.7) for the
// x86-64 SysV calling convention, the target wazero's own arch_amd64.go
// backend is grounded on. Register numbering follows the Intel/SysV
// encoding directly, offset by one so RealRegInvalid (0) never collides
// with RAX's encoding (0): RealReg(enc+1) names the register whose
// 3-bit/4-bit encoding is enc.
package amd64

import (
	"github.com/sdvm-project/sdvmc/internal/codegen/backend"
	"github.com/sdvm-project/sdvmc/internal/codegen/backend/regalloc"
)

const (
	encRAX = 0
	encRCX = 1
	encRDX = 2
	encRBX = 3
	encRSP = 4
	encRBP = 5
	encRSI = 6
	encRDI = 7
	encR8  = 8
	encR9  = 9
	encR10 = 10
	encR11 = 11
	encR12 = 12
	encR13 = 13
	encR14 = 14
	encR15 = 15
)

// reg converts a raw x86 register encoding to the RealReg this package
// uses everywhere else.
func reg(enc int) regalloc.RealReg { return regalloc.RealReg(enc + 1) }

// encOf inverts reg, recovering the 4-bit x86 encoding (and therefore
// whether the REX.B/R/X extension bit must be set) from a RealReg.
func encOf(r regalloc.RealReg) int { return int(r) - 1 }

var (
	RAX = reg(encRAX)
	RCX = reg(encRCX)
	RDX = reg(encRDX)
	RBX = reg(encRBX)
	RSP = reg(encRSP)
	RBP = reg(encRBP)
	RSI = reg(encRSI)
	RDI = reg(encRDI)
	R8  = reg(encR8)
	R9  = reg(encR9)
	R10 = reg(encR10)
	R11 = reg(encR11)
	R12 = reg(encR12)
	R13 = reg(encR13)
	R14 = reg(encR14)
	R15 = reg(encR15)
)

// xmm(n) names XMM register n in the same RealReg numbering space used
// for the float/vector RegisterFile (a distinct kind, so the numbering
// is free to start at 1 again without colliding with the integer file).
func xmm(n int) regalloc.RealReg { return regalloc.RealReg(n + 1) }

var (
	XMM0 = xmm(0)
	XMM1 = xmm(1)
	XMM2 = xmm(2)
	XMM3 = xmm(3)
	XMM4 = xmm(4)
	XMM5 = xmm(5)
	XMM6 = xmm(6)
	XMM7 = xmm(7)
)

// NewSysVABI builds the SysV AMD64 calling-convention descriptor (spec.md
// §6): 6 integer argument registers, 8 float/vector argument registers,
// RAX/RAX:RDX/XMM0 results, 16-byte stack alignment, RBP as the frame
// anchor, and the callee-saved register set the prologue/epilogue spill.
func NewSysVABI() *backend.ABI {
	return &backend.ABI{
		Name:                    "sysv-amd64",
		PointerSize:             8,
		StackAlignment:          16,
		StackParameterAlignment: 8,
		CalloutShadowSpace:      0,
		IntegerRegisterSize:     8,

		IntegerParamRegs: []regalloc.RealReg{RDI, RSI, RDX, RCX, R8, R9},
		FloatParamRegs:   []regalloc.RealReg{XMM0, XMM1, XMM2, XMM3, XMM4, XMM5, XMM6, XMM7},

		IntegerResultReg:   RAX,
		Integer64ResultReg: RAX,
		PointerResultReg:   RAX,
		FloatResultReg:     XMM0,
		VectorResultReg:    XMM0,

		ClosurePointerReg:    R10,
		ClosureGCMetadataReg: R11,

		AllocatableIntegerRegs: []regalloc.RealReg{RAX, RCX, RDX, RBX, RSI, RDI, R8, R9, R10, R11, R12, R13, R14, R15},
		AllocatableFloatRegs:   []regalloc.RealReg{XMM0, XMM1, XMM2, XMM3, XMM4, XMM5, XMM6, XMM7},

		CallPreservedIntegerRegs: []regalloc.RealReg{RBX, R12, R13, R14, R15},
		CallPreservedFloatRegs:   nil,

		CallTouchedIntegerRegs: []regalloc.RealReg{RAX, RCX, RDX, RSI, RDI, R8, R9, R10, R11},
		CallTouchedFloatRegs:   []regalloc.RealReg{XMM0, XMM1, XMM2, XMM3, XMM4, XMM5, XMM6, XMM7},

		SupportsLocalSymbolValueCall:  true,
		SupportsGlobalSymbolValueCall: true,

		Is32Bit: false,
	}
}
