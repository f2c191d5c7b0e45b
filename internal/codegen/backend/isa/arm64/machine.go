package arm64

import (
	"github.com/sdvm-project/sdvmc/internal/codegen"
	"github.com/sdvm-project/sdvmc/internal/codegen/backend"
	"github.com/sdvm-project/sdvmc/internal/codegen/backend/regalloc"
	"github.com/sdvm-project/sdvmc/internal/codegen/cfi"
)

// Machine implements codegen.Machine for AArch64/AAPCS64.
type Machine struct {
	abi *backend.ABI
}

func New() *Machine { return &Machine{abi: NewAAPCS64ABI()} }

func (m *Machine) Name() string                              { return "arm64-aapcs64" }
func (m *Machine) ABI() *backend.ABI                          { return m.abi }
func (m *Machine) FramePointerRegister() regalloc.RealReg     { return X29 }
func (m *Machine) NewPatcher(out *codegen.CodeBuffer) codegen.Patcher { return out }

func w32(out *codegen.CodeBuffer, word uint32) { out.WriteUint32LE(word) }

func r5(r regalloc.RealReg) uint32 { return uint32(encOf(r)) & 0x1F }

// --- register-register ALU encodings (64-bit "sf=1" variants) ---

func rrr(out *codegen.CodeBuffer, base uint32, rd, rn, rm regalloc.RealReg) {
	w32(out, base|r5(rm)<<16|r5(rn)<<5|r5(rd))
}

func (m *Machine) movReg(out *codegen.CodeBuffer, dst, src regalloc.RealReg) {
	if dst == src {
		return
	}
	// MOV Xd, Xm == ORR Xd, XZR, Xm
	w32(out, 0xAA0003E0|r5(src)<<16|r5(dst))
}

// movImm64 loads a full 64-bit immediate via MOVZ + up to 3 MOVK, emitting
// only the instructions needed for the value's non-zero 16-bit chunks
// (spec.md §4.3 constant materialization; mirrors the same "embed directly
// when cheap" discipline amd64's movRegImm64 follows).
func movImm64(out *codegen.CodeBuffer, dst regalloc.RealReg, v uint64) {
	// MOVZ loads bits[0:16] unconditionally; each further non-zero 16-bit
	// lane gets its own MOVK (spec.md §4.3 constant materialization).
	w32(out, 0xD2800000|(uint32(v)&0xFFFF)<<5|r5(dst))
	for shift := uint(16); shift < 64; shift += 16 {
		chunk := uint32(v>>shift) & 0xFFFF
		if chunk == 0 {
			continue
		}
		hw := uint32(shift / 16)
		w32(out, 0xF2800000|hw<<21|chunk<<5|r5(dst))
	}
}

func loadSymbol(out *codegen.CodeBuffer, dst regalloc.RealReg, name string, addend int64) {
	// ADRP Xd, 0 ; ADD Xd, Xd, #0 — both fields left zero and patched by the
	// (out-of-scope) object-file writer once the symbol's final page/offset
	// is known; this backend records where the two immediates live via a
	// single SymbolRelocation anchored at the ADRP instruction, the same
	// simplification InsertMove documents for amd64's RIP-relative form.
	adrpOff := out.Len()
	w32(out, 0x90000000|r5(dst))
	w32(out, 0x91000000|r5(dst)<<5|r5(dst))
	out.RequestSymbolRelocation(adrpOff, name, true, addend)
}

func (m *Machine) EmitPrologue(frame *codegen.FrameLayout, sink cfi.Sink, out *codegen.CodeBuffer) {
	// STR X30, [SP, #-16]! ; STR X29, [SP, #-... wait, keep it simple: push
	// LR then FP individually via pre-indexed STR, then mov FP, SP.
	strPreIndex(out, X30, SP, -16)
	sink.PushRegister(out.Len(), X30)
	strPreIndex(out, X29, SP, -16)
	sink.PushRegister(out.Len(), X29)
	w32(out, 0x91000000|r5(SP)<<5|r5(X29)) // MOV X29, SP == ADD X29, SP, #0
	if n := frame.TotalSize; n > 0 {
		subSPImm(out, uint32(n))
		sink.StackSizeAdvance(out.Len(), -n)
	}
	for _, r := range m.abi.CallPreservedIntegerRegs {
		strPreIndex(out, r, SP, -16)
		sink.PushRegister(out.Len(), r)
	}
	sink.EndPrologue(out.Len())
}

func (m *Machine) EmitEpilogue(frame *codegen.FrameLayout, sink cfi.Sink, out *codegen.CodeBuffer) {
	sink.BeginEpilogue(out.Len())
	for i := len(m.abi.CallPreservedIntegerRegs) - 1; i >= 0; i-- {
		ldrPostIndex(out, m.abi.CallPreservedIntegerRegs[i], SP, 16)
	}
	if frame.TotalSize > 0 {
		addSPImm(out, uint32(frame.TotalSize))
	}
	ldrPostIndex(out, X29, SP, 16)
	ldrPostIndex(out, X30, SP, 16)
	w32(out, 0xD65F03C0) // RET X30
	sink.EndEpilogue(out.Len())
}

// strPreIndex/ldrPostIndex implement the ARMv8 "STR/LDR (immediate)"
// pre/post-indexed 64-bit forms directly from the ISA manual's bitfield
// layout (size=11, op=00/01, idx=11 pre/01 post) rather than a hardcoded
// opcode table, so any signed 9-bit byte displacement works.
func strPreIndex(out *codegen.CodeBuffer, rt, rn regalloc.RealReg, imm int32) {
	w32(out, 0xF8000C00|(uint32(imm)&0x1FF)<<12|r5(rn)<<5|r5(rt))
}
func ldrPostIndex(out *codegen.CodeBuffer, rt, rn regalloc.RealReg, imm int32) {
	w32(out, 0xF8400400|(uint32(imm)&0x1FF)<<12|r5(rn)<<5|r5(rt))
}
func strUnsignedOffset(out *codegen.CodeBuffer, rt, rn regalloc.RealReg, byteOff int32) {
	w32(out, 0xF9000000|(uint32(byteOff/8)&0xFFF)<<10|r5(rn)<<5|r5(rt))
}
func ldrUnsignedOffset(out *codegen.CodeBuffer, rt, rn regalloc.RealReg, byteOff int32) {
	w32(out, 0xF9400000|(uint32(byteOff/8)&0xFFF)<<10|r5(rn)<<5|r5(rt))
}

// subSPImm/addSPImm use the ADD/SUB (immediate) 64-bit encoding's 12-bit
// unsigned immediate, sufficient for every frame this pipeline's stack
// budget produces; a frame larger than 4095 bytes would need the shifted
// (LSL #12) immediate form, not implemented here.
func subSPImm(out *codegen.CodeBuffer, imm uint32) {
	w32(out, 0xD1000000|(imm&0xFFF)<<10|r5(SP)<<5|r5(SP))
}
func addSPImm(out *codegen.CodeBuffer, imm uint32) {
	w32(out, 0x91000000|(imm&0xFFF)<<10|r5(SP)<<5|r5(SP))
}

func (m *Machine) InsertMove(out *codegen.CodeBuffer, dst, src codegen.Location) error {
	switch dst.Kind {
	case codegen.LocationRegister:
		return m.insertMoveIntoReg(out, dst.Reg.Value.RealReg(), src)
	case codegen.LocationRegisterPair:
		if src.Kind != codegen.LocationRegisterPair {
			return &codegen.UnsupportedOperandError{Opcode: codegen.OpInvalid}
		}
		if err := m.insertMoveIntoReg(out, dst.RegPair[0].Value.RealReg(), codegen.LocationOfPinnedRegister(regalloc.RegKindInteger, 8, src.RegPair[0].Value.RealReg())); err != nil {
			return err
		}
		return m.insertMoveIntoReg(out, dst.RegPair[1].Value.RealReg(), codegen.LocationOfPinnedRegister(regalloc.RegKindInteger, 8, src.RegPair[1].Value.RealReg()))
	case codegen.LocationStack:
		return m.insertMoveIntoStack(out, dst.Stack, src)
	case codegen.LocationStackPair:
		if src.Kind != codegen.LocationStackPair {
			return &codegen.UnsupportedOperandError{Opcode: codegen.OpInvalid}
		}
		if err := m.insertMoveIntoStack(out, dst.StackPair[0], codegen.LocationOfPinnedRegister(regalloc.RegKindInteger, 8, X0)); err != nil {
			return err
		}
		return m.insertMoveIntoStack(out, dst.StackPair[1], src)
	default:
		codegen.Raise("arm64: InsertMove called with unsupported destination kind %s", dst.Kind)
		return nil
	}
}

// insertMoveIntoStack stores src into an outgoing stack-argument slot,
// materializing it into a scratch register first when it isn't one
// already (spec.md §6 "stack-passed arguments").
func (m *Machine) insertMoveIntoStack(out *codegen.CodeBuffer, slot codegen.StackSlot, src codegen.Location) error {
	valReg := X16
	if src.Kind == codegen.LocationRegister {
		valReg = src.Reg.Value.RealReg()
	} else if err := m.insertMoveIntoReg(out, valReg, src); err != nil {
		return err
	}
	off := int32(slot.FramePointerOffset)
	if off >= 0 && off%8 == 0 && off < 32760 {
		strUnsignedOffset(out, valReg, slot.FramePointerRegister, off)
		return nil
	}
	addr := X9
	if valReg == addr {
		addr = X17
	}
	movImm64(out, addr, uint64(int64(off)))
	w32(out, 0x8B000000|r5(slot.FramePointerRegister)<<16|r5(addr)<<5|r5(addr))
	strUnsignedOffset(out, valReg, addr, 0)
	return nil
}

func (m *Machine) insertMoveIntoReg(out *codegen.CodeBuffer, dst regalloc.RealReg, src codegen.Location) error {
	switch src.Kind {
	case codegen.LocationRegister:
		m.movReg(out, dst, src.Reg.Value.RealReg())
	case codegen.LocationImmediateS32, codegen.LocationImmediateU32:
		movImm64(out, dst, uint64(uint32(src.ImmS64)))
	case codegen.LocationImmediateS64:
		movImm64(out, dst, uint64(src.ImmS64))
	case codegen.LocationImmediateU64:
		movImm64(out, dst, src.ImmU64)
	case codegen.LocationStack:
		ldrUnsignedOffsetAny(out, dst, src.Stack.FramePointerRegister, int32(src.Stack.FramePointerOffset))
	case codegen.LocationConstantSection:
		loadSymbol(out, dst, ".rodata", src.ConstantOffset)
	case codegen.LocationLocalSymbolValue, codegen.LocationGlobalSymbolValue:
		loadSymbol(out, dst, src.Symbol.Name, src.SymbolOffset)
	case codegen.LocationNull:
	default:
		return &codegen.UnsupportedOperandError{Opcode: codegen.OpInvalid}
	}
	return nil
}

// ldrUnsignedOffsetAny falls back to an ADD+LDR sequence when a frame
// offset is negative or exceeds the unsigned-offset form's 12-bit*8 range
// (this pipeline's frame grows down from X29, so almost every offset is
// negative in practice).
func ldrUnsignedOffsetAny(out *codegen.CodeBuffer, dst, base regalloc.RealReg, offset int32) {
	if offset >= 0 && offset%8 == 0 && offset < 32760 {
		ldrUnsignedOffset(out, dst, base, offset)
		return
	}
	// Outside the unsigned-offset form's range (this pipeline's frame
	// grows down from X29, so almost every offset is negative): materialize
	// the address in dst, then load through it.
	movImm64(out, dst, uint64(int64(offset)))
	w32(out, 0x8B000000|r5(base)<<16|r5(dst)<<5|r5(dst)) // ADD dst, dst, base
	ldrUnsignedOffset(out, dst, dst, 0)
}

func aluBase(op codegen.Opcode) (uint32, bool) {
	switch op {
	case codegen.OpAdd:
		return 0x8B000000, true
	case codegen.OpSub:
		return 0xCB000000, true
	case codegen.OpAnd:
		return 0x8A000000, true
	case codegen.OpOr:
		return 0xAA000000, true
	case codegen.OpXor:
		return 0xCA000000, true
	default:
		return 0, false
	}
}

func conditionCode(op codegen.Opcode) (uint32, bool) {
	switch op {
	case codegen.OpCmpEq:
		return 0x0, true // EQ
	case codegen.OpCmpNe:
		return 0x1, true // NE
	case codegen.OpCmpLt:
		return 0xB, true // LT
	case codegen.OpCmpLe:
		return 0xD, true // LE
	case codegen.OpCmpGt:
		return 0xC, true // GT
	case codegen.OpCmpGe:
		return 0xA, true // GE
	case codegen.OpCmpULt:
		return 0x3, true // LO
	case codegen.OpCmpULe:
		return 0x9, true // LS
	case codegen.OpCmpUGt:
		return 0x8, true // HI
	case codegen.OpCmpUGe:
		return 0x2, true // HS
	default:
		return 0, false
	}
}

func (m *Machine) EmitInstruction(ci *codegen.CompilerInstruction, instrs []codegen.CompilerInstruction, frame *codegen.FrameLayout, sink cfi.Sink, out *codegen.CodeBuffer, labels *codegen.LabelTable) error {
	op := ci.Decoding.Opcode
	switch {
	case ci.Decoding.IsConstant:
		return nil
	case op == codegen.OpAllocateLocal, op == codegen.OpBeginArguments, op == codegen.OpArg,
		op == codegen.OpBeginCall, op == codegen.OpCallArg:
		return nil
	case op.IsArithmeticOrLogic():
		return m.emitALU(ci, out)
	case op.IsComparison():
		return m.emitCompare(ci, out)
	case op.IsBranch():
		return m.emitBranch(ci, out, labels)
	case op == codegen.OpLoad:
		return m.emitLoad(ci, out)
	case op == codegen.OpStore:
		return m.emitStore(ci, out)
	case op == codegen.OpPtrAdd:
		return m.emitPtrAdd(ci, out)
	case op == codegen.OpTruncate, op == codegen.OpZeroExtend, op == codegen.OpBitcast:
		return m.emitCopy(ci, out)
	case op == codegen.OpSignExtend:
		return m.emitSignExtend(ci, out)
	case op.IsCall():
		return m.emitCall(ci, out)
	case op.IsReturn():
		m.EmitEpilogue(frame, sink, out)
		return nil
	default:
		return &codegen.UnsupportedOperandError{Index: ci.Index, Opcode: op}
	}
}

func (m *Machine) emitALU(ci *codegen.CompilerInstruction, out *codegen.CodeBuffer) error {
	dst := ci.Location
	if dst.Kind != codegen.LocationRegister {
		return &codegen.UnsupportedOperandError{Index: ci.Index, Opcode: ci.Decoding.Opcode}
	}
	dstReg := dst.Reg.Value.RealReg()
	scratch := X9
	switch ci.Decoding.Opcode {
	case codegen.OpNeg:
		if err := m.insertMoveIntoReg(out, scratch, ci.Arg0); err != nil {
			return err
		}
		w32(out, 0xCB0003E0|r5(scratch)<<16|r5(dstReg))
		return nil
	case codegen.OpNot:
		if err := m.insertMoveIntoReg(out, scratch, ci.Arg0); err != nil {
			return err
		}
		w32(out, 0xAA2003E0|r5(scratch)<<16|r5(dstReg))
		return nil
	case codegen.OpMul:
		lhs, rhs := X9, X16
		if err := m.insertMoveIntoReg(out, lhs, ci.Arg0); err != nil {
			return err
		}
		if err := m.insertMoveIntoReg(out, rhs, ci.Arg1); err != nil {
			return err
		}
		w32(out, 0x9B007C00|r5(rhs)<<16|r5(lhs)<<5|r5(dstReg))
		return nil
	case codegen.OpDiv, codegen.OpUDiv:
		lhs, rhs := X9, X16
		if err := m.insertMoveIntoReg(out, lhs, ci.Arg0); err != nil {
			return err
		}
		if err := m.insertMoveIntoReg(out, rhs, ci.Arg1); err != nil {
			return err
		}
		base := uint32(0x9AC00C00)
		if ci.Decoding.Opcode == codegen.OpUDiv {
			base = 0x9AC00800
		}
		w32(out, base|r5(rhs)<<16|r5(lhs)<<5|r5(dstReg))
		return nil
	case codegen.OpRem, codegen.OpURem:
		lhs, rhs, quot := X9, X16, X17
		if err := m.insertMoveIntoReg(out, lhs, ci.Arg0); err != nil {
			return err
		}
		if err := m.insertMoveIntoReg(out, rhs, ci.Arg1); err != nil {
			return err
		}
		base := uint32(0x9AC00C00)
		if ci.Decoding.Opcode == codegen.OpURem {
			base = 0x9AC00800
		}
		w32(out, base|r5(rhs)<<16|r5(lhs)<<5|r5(quot))
		w32(out, 0x9B008000|r5(rhs)<<16|r5(lhs)<<10|r5(quot)<<5|r5(dstReg)) // MSUB dst, quot, rhs, lhs
		return nil
	case codegen.OpShl, codegen.OpShr, codegen.OpUShr:
		lhs, rhs := X9, X16
		if err := m.insertMoveIntoReg(out, lhs, ci.Arg0); err != nil {
			return err
		}
		if err := m.insertMoveIntoReg(out, rhs, ci.Arg1); err != nil {
			return err
		}
		base := uint32(0x9AC02000) // LSLV
		if ci.Decoding.Opcode == codegen.OpShr {
			base = 0x9AC02800 // ASRV
		} else if ci.Decoding.Opcode == codegen.OpUShr {
			base = 0x9AC02400 // LSRV
		}
		rrr(out, base, dstReg, lhs, rhs)
		return nil
	default:
		base, ok := aluBase(ci.Decoding.Opcode)
		if !ok {
			return &codegen.UnsupportedOperandError{Index: ci.Index, Opcode: ci.Decoding.Opcode}
		}
		lhs, rhs := X9, X16
		if err := m.insertMoveIntoReg(out, lhs, ci.Arg0); err != nil {
			return err
		}
		if err := m.insertMoveIntoReg(out, rhs, ci.Arg1); err != nil {
			return err
		}
		rrr(out, base, dstReg, lhs, rhs)
		return nil
	}
}

func (m *Machine) emitCompare(ci *codegen.CompilerInstruction, out *codegen.CodeBuffer) error {
	dst := ci.Location
	if dst.Kind != codegen.LocationRegister {
		return &codegen.UnsupportedOperandError{Index: ci.Index, Opcode: ci.Decoding.Opcode}
	}
	lhs, rhs := X9, X16
	if err := m.insertMoveIntoReg(out, lhs, ci.Arg0); err != nil {
		return err
	}
	if err := m.insertMoveIntoReg(out, rhs, ci.Arg1); err != nil {
		return err
	}
	w32(out, 0xEB00001F|r5(rhs)<<16|r5(lhs)<<5) // SUBS XZR, lhs, rhs

	cc, ok := conditionCode(ci.Decoding.Opcode)
	if !ok {
		return &codegen.UnsupportedOperandError{Index: ci.Index, Opcode: ci.Decoding.Opcode}
	}
	dstReg := dst.Reg.Value.RealReg()
	invCC := cc ^ 1 // CSET inverts the tested condition (spec-independent ARM convention).
	w32(out, 0x9A9F07E0|invCC<<12|r5(dstReg))
	return nil
}

func (m *Machine) emitBranch(ci *codegen.CompilerInstruction, out *codegen.CodeBuffer, labels *codegen.LabelTable) error {
	target := ci.Decoding.Arg1
	if ci.Decoding.Opcode == codegen.OpJump {
		target = ci.Decoding.Arg0
	}
	lbl := codegen.LabelID(target.Field)

	if ci.Decoding.Opcode == codegen.OpJump {
		off := out.Len()
		w32(out, 0x14000000)
		labels.RequestPatch(lbl, codegen.RelocationRelative32, off, 0)
		return nil
	}
	cond := X9
	if err := m.insertMoveIntoReg(out, cond, ci.Arg0); err != nil {
		return err
	}
	w32(out, 0xEB1F001F|r5(cond)<<5) // SUBS XZR, cond, XZR (equivalent to CMP cond, #0)
	cc := uint32(0x1)                // NE: branch when cond != 0
	if ci.Decoding.Opcode == codegen.OpJumpIfFalse {
		cc = 0x0 // EQ
	}
	off := out.Len()
	w32(out, 0x54000000|cc)
	labels.RequestPatch(lbl, codegen.RelocationRelative32, off, 0)
	return nil
}

func (m *Machine) emitLoad(ci *codegen.CompilerInstruction, out *codegen.CodeBuffer) error {
	dst := ci.Location
	if dst.Kind != codegen.LocationRegister {
		return &codegen.UnsupportedOperandError{Index: ci.Index, Opcode: ci.Decoding.Opcode}
	}
	base := X9
	if err := m.insertMoveIntoReg(out, base, ci.Arg0); err != nil {
		return err
	}
	ldrUnsignedOffset(out, dst.Reg.Value.RealReg(), base, 0)
	return nil
}

func (m *Machine) emitStore(ci *codegen.CompilerInstruction, out *codegen.CodeBuffer) error {
	base := X9
	if err := m.insertMoveIntoReg(out, base, ci.Arg0); err != nil {
		return err
	}
	value := X16
	if err := m.insertMoveIntoReg(out, value, ci.Arg1); err != nil {
		return err
	}
	strUnsignedOffset(out, value, base, 0)
	return nil
}

func (m *Machine) emitPtrAdd(ci *codegen.CompilerInstruction, out *codegen.CodeBuffer) error {
	dst := ci.Location
	if dst.Kind != codegen.LocationRegister {
		return &codegen.UnsupportedOperandError{Index: ci.Index, Opcode: ci.Decoding.Opcode}
	}
	dstReg := dst.Reg.Value.RealReg()
	lhs, rhs := X9, X16
	if err := m.insertMoveIntoReg(out, lhs, ci.Arg0); err != nil {
		return err
	}
	if err := m.insertMoveIntoReg(out, rhs, ci.Arg1); err != nil {
		return err
	}
	rrr(out, 0x8B000000, dstReg, lhs, rhs)
	return nil
}

func (m *Machine) emitCopy(ci *codegen.CompilerInstruction, out *codegen.CodeBuffer) error {
	dst := ci.Location
	if dst.Kind != codegen.LocationRegister {
		return &codegen.UnsupportedOperandError{Index: ci.Index, Opcode: ci.Decoding.Opcode}
	}
	return m.insertMoveIntoReg(out, dst.Reg.Value.RealReg(), ci.Arg0)
}

func (m *Machine) emitSignExtend(ci *codegen.CompilerInstruction, out *codegen.CodeBuffer) error {
	dst := ci.Location
	if dst.Kind != codegen.LocationRegister {
		return &codegen.UnsupportedOperandError{Index: ci.Index, Opcode: ci.Decoding.Opcode}
	}
	src := X9
	if err := m.insertMoveIntoReg(out, src, ci.Arg0); err != nil {
		return err
	}
	// SXTW Xd, Wn == SBFM Xd, Xn, #0, #31.
	w32(out, 0x93407C00|r5(src)<<5|r5(dst.Reg.Value.RealReg()))
	return nil
}

func (m *Machine) emitCall(ci *codegen.CompilerInstruction, out *codegen.CodeBuffer) error {
	target := ci.Arg0
	switch target.Kind {
	case codegen.LocationLocalSymbolValue, codegen.LocationGlobalSymbolValue:
		off := out.Len()
		w32(out, 0x94000000)
		out.RequestSymbolRelocation(off, target.Symbol.Name, true, 0)
	default:
		callee := X16
		if err := m.insertMoveIntoReg(out, callee, target); err != nil {
			return err
		}
		w32(out, 0xD63F0000|r5(callee)<<5)
	}
	if ci.Location.Kind == codegen.LocationRegister {
		result := ci.Location.Reg.Value.RealReg()
		if result != X0 {
			m.movReg(out, result, X0)
		}
	}
	return nil
}
