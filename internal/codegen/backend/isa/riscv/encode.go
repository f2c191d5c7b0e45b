package riscv

import (
	"github.com/sdvm-project/sdvmc/internal/codegen"
	"github.com/sdvm-project/sdvmc/internal/codegen/backend/regalloc"
)

func w32(out *codegen.CodeBuffer, word uint32) { out.WriteUint32LE(word) }

func x(r regalloc.RealReg) uint32 { return uint32(encOf(r)) & 0x1F }

// Field-packing helpers, one per RISC-V base instruction format (the RISC-V
// ISA manual's own names). Each takes the already-shifted-into-place
// immediate bits so the relocation-patching helpers in patcher.go can
// reuse them to rewrite a previously emitted word in place.

func rType(opcode, funct3, funct7, rd, rs1, rs2 uint32) uint32 {
	return funct7<<25 | rs2<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func iType(opcode, funct3, rd, rs1 uint32, imm int32) uint32 {
	return (uint32(imm)&0xFFF)<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

// sImm/bImm/jImm pack only the immediate-bearing bits of the S/B/J formats
// (no opcode/rd/rs1/rs2/funct3), factored out so patcher.go can rewrite a
// previously emitted word's immediate field in place without needing to
// know the rest of its encoding.
func sImm(v int32) uint32 {
	u := uint32(v)
	return (u>>5&0x7F)<<25 | (u&0x1F)<<7
}

func bImm(v int32) uint32 {
	u := uint32(v)
	return (u>>12&1)<<31 | (u>>5&0x3F)<<25 | (u>>1&0xF)<<8 | (u>>11&1)<<7
}

func jImm(v int32) uint32 {
	u := uint32(v)
	return (u>>20&1)<<31 | (u>>1&0x3FF)<<21 | (u>>11&1)<<20 | (u>>12&0xFF)<<12
}

func sType(opcode, funct3, rs1, rs2 uint32, imm int32) uint32 {
	return sImm(imm) | rs2<<20 | rs1<<15 | funct3<<12 | opcode
}

func bType(opcode, funct3, rs1, rs2 uint32, imm int32) uint32 {
	return bImm(imm) | rs2<<20 | rs1<<15 | funct3<<12 | opcode
}

func uType(opcode, rd uint32, imm20 uint32) uint32 {
	return (imm20&0xFFFFF)<<12 | rd<<7 | opcode
}

func jType(opcode, rd uint32, imm int32) uint32 {
	return jImm(imm) | rd<<7 | opcode
}

const (
	opLoad    = 0x03
	opImm     = 0x13
	opAUIPC   = 0x17
	opStore   = 0x23
	opOp      = 0x33
	opLUI     = 0x37
	opBranch  = 0x63
	opJALR    = 0x67
	opJAL     = 0x6F
)

func addi(out *codegen.CodeBuffer, rd, rs1 regalloc.RealReg, imm int32) {
	w32(out, iType(opImm, 0, x(rd), x(rs1), imm))
}
func xori(out *codegen.CodeBuffer, rd, rs1 regalloc.RealReg, imm int32) { w32(out, iType(opImm, 4, x(rd), x(rs1), imm)) }
func sltiu(out *codegen.CodeBuffer, rd, rs1 regalloc.RealReg, imm int32) {
	w32(out, iType(opImm, 3, x(rd), x(rs1), imm))
}

// slli/srli/srai use the RV64 shift-immediate encoding: a 6-bit funct6 in
// the top bits of the would-be 12-bit I-immediate followed by a 6-bit
// shamt (RV32 uses a narrower funct7/5-bit shamt split; this backend only
// targets XLEN=64).
func slli(out *codegen.CodeBuffer, rd, rs1 regalloc.RealReg, shamt uint32) {
	w32(out, iType(opImm, 1, x(rd), x(rs1), int32(shamt&0x3F)))
}
func srli(out *codegen.CodeBuffer, rd, rs1 regalloc.RealReg, shamt uint32) {
	w32(out, iType(opImm, 5, x(rd), x(rs1), int32(shamt&0x3F)))
}
func srai(out *codegen.CodeBuffer, rd, rs1 regalloc.RealReg, shamt uint32) {
	w32(out, iType(opImm, 5, x(rd), x(rs1), int32(0x10<<6|shamt&0x3F)))
}

func rOp(out *codegen.CodeBuffer, funct3, funct7 uint32, rd, rs1, rs2 regalloc.RealReg) {
	w32(out, rType(opOp, funct3, funct7, x(rd), x(rs1), x(rs2)))
}

func ld(out *codegen.CodeBuffer, rd, rs1 regalloc.RealReg, imm int32) {
	w32(out, iType(opLoad, 3, x(rd), x(rs1), imm))
}
func sd(out *codegen.CodeBuffer, rs1, rs2 regalloc.RealReg, imm int32) {
	w32(out, sType(opStore, 3, x(rs1), x(rs2), imm))
}

func lui(out *codegen.CodeBuffer, rd regalloc.RealReg, imm20 uint32) { w32(out, uType(opLUI, x(rd), imm20)) }
func auipc(out *codegen.CodeBuffer, rd regalloc.RealReg, imm20 uint32) {
	w32(out, uType(opAUIPC, x(rd), imm20))
}

func jal(out *codegen.CodeBuffer, rd regalloc.RealReg, imm int32) { w32(out, jType(opJAL, x(rd), imm)) }
func jalr(out *codegen.CodeBuffer, rd, rs1 regalloc.RealReg, imm int32) {
	w32(out, iType(opJALR, 0, x(rd), x(rs1), imm))
}

func branch(out *codegen.CodeBuffer, funct3 uint32, rs1, rs2 regalloc.RealReg, imm int32) {
	w32(out, bType(opBranch, funct3, x(rs1), x(rs2), imm))
}
