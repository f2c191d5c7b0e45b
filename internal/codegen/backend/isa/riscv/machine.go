package riscv

import (
	"github.com/sdvm-project/sdvmc/internal/codegen"
	"github.com/sdvm-project/sdvmc/internal/codegen/backend"
	"github.com/sdvm-project/sdvmc/internal/codegen/backend/regalloc"
	"github.com/sdvm-project/sdvmc/internal/codegen/cfi"
)

// Machine implements codegen.Machine for RV64G/lp64d.
type Machine struct {
	abi *backend.ABI
}

func New() *Machine { return &Machine{abi: NewLP64DABI()} }

func (m *Machine) Name() string                                      { return "riscv64-lp64d" }
func (m *Machine) ABI() *backend.ABI                                  { return m.abi }
func (m *Machine) FramePointerRegister() regalloc.RealReg             { return S0 }
func (m *Machine) NewPatcher(out *codegen.CodeBuffer) codegen.Patcher { return NewPatcher(out) }

func movReg(out *codegen.CodeBuffer, dst, src regalloc.RealReg) {
	if dst == src {
		return
	}
	addi(out, dst, src, 0) // MV dst, src == ADDI dst, src, 0
}

// loadImm32 materializes a signed 32-bit value via LUI+ADDI, following the
// standard "round the upper 20 bits up by one when the low 12 bits would
// be taken as negative" trick every RV64 assembler's li expansion uses.
func loadImm32(out *codegen.CodeBuffer, dst regalloc.RealReg, v int32) {
	upper := (v + 0x800) >> 12
	lower := v - upper<<12
	if upper != 0 {
		lui(out, dst, uint32(upper)&0xFFFFF)
		if lower != 0 {
			addi(out, dst, dst, lower)
		}
		return
	}
	addi(out, dst, ZERO, lower)
}

// loadImm64 materializes an arbitrary 64-bit constant. RISC-V has no
// single-instruction 64-bit immediate load (spec.md §4.3 constant
// materialization): the high and low 32-bit halves are built independently
// via loadImm32, then combined with a shift and OR, clearing the sign
// extension loadImm32's ADDI would otherwise smear into the high half.
func loadImm64(out *codegen.CodeBuffer, dst regalloc.RealReg, v uint64) {
	hi := int32(v >> 32)
	lo := int32(uint32(v))
	if hi == 0 && lo >= 0 {
		loadImm32(out, dst, lo)
		return
	}
	loadImm32(out, dst, hi)
	slli(out, dst, dst, 32)
	scratch := T2
	if dst == scratch {
		scratch = T1
	}
	loadImm32(out, scratch, lo)
	slli(out, scratch, scratch, 32)
	srli(out, scratch, scratch, 32)
	rOp(out, 6, 0, dst, dst, scratch) // OR dst, dst, scratch
}

// loadSymbolAddress emits an AUIPC+ADDI pair with both immediate fields
// left zero, recording a single SymbolRelocation anchored at the AUIPC —
// the same "punt exact relocation math to the object-file writer"
// simplification arm64's loadSymbol and amd64's leaSymbol document.
func loadSymbolAddress(out *codegen.CodeBuffer, dst regalloc.RealReg, name string, addend int64) {
	off := out.Len()
	auipc(out, dst, 0)
	addi(out, dst, dst, 0)
	out.RequestSymbolRelocation(off, name, true, addend)
}

func loadFromStackAny(out *codegen.CodeBuffer, dst, base regalloc.RealReg, offset int32) {
	if offset >= -2048 && offset <= 2047 {
		ld(out, dst, base, offset)
		return
	}
	// Outside ADDI/LD's 12-bit signed range (this pipeline's frame grows
	// down from S0, so a deep frame can exceed it): materialize the
	// address in dst, then load through it.
	loadImm64(out, dst, uint64(int64(offset)))
	rOp(out, 0, 0, dst, dst, base) // ADD dst, dst, base
	ld(out, dst, dst, 0)
}

func (m *Machine) EmitPrologue(frame *codegen.FrameLayout, sink cfi.Sink, out *codegen.CodeBuffer) {
	addi(out, SP, SP, -16)
	sd(out, SP, RA, 8)
	sink.PushRegister(out.Len(), RA)
	sd(out, SP, S0, 0)
	sink.PushRegister(out.Len(), S0)
	addi(out, S0, SP, 16)
	if n := frame.TotalSize; n > 0 {
		addi(out, SP, SP, int32(-n))
		sink.StackSizeAdvance(out.Len(), -n)
	}
	for _, r := range m.abi.CallPreservedIntegerRegs {
		addi(out, SP, SP, -8)
		sd(out, SP, r, 0)
		sink.PushRegister(out.Len(), r)
	}
	sink.EndPrologue(out.Len())
}

func (m *Machine) EmitEpilogue(frame *codegen.FrameLayout, sink cfi.Sink, out *codegen.CodeBuffer) {
	sink.BeginEpilogue(out.Len())
	for i := len(m.abi.CallPreservedIntegerRegs) - 1; i >= 0; i-- {
		ld(out, m.abi.CallPreservedIntegerRegs[i], SP, 0)
		addi(out, SP, SP, 8)
	}
	if frame.TotalSize > 0 {
		addi(out, SP, SP, int32(frame.TotalSize))
	}
	ld(out, RA, SP, 8)
	ld(out, S0, SP, 0)
	addi(out, SP, SP, 16)
	jalr(out, ZERO, RA, 0) // RET == JALR x0, 0(ra)
	sink.EndEpilogue(out.Len())
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
		if err := m.insertMoveIntoStack(out, dst.StackPair[0], codegen.LocationOfPinnedRegister(regalloc.RegKindInteger, 8, A0)); err != nil {
			return err
		}
		return m.insertMoveIntoStack(out, dst.StackPair[1], src)
	default:
		codegen.Raise("riscv: InsertMove called with unsupported destination kind %s", dst.Kind)
		return nil
	}
}

// insertMoveIntoStack stores src (materializing it into a scratch register
// first when it isn't one already) into an outgoing stack-argument slot
// (spec.md §6 "stack-passed arguments").
func (m *Machine) insertMoveIntoStack(out *codegen.CodeBuffer, slot codegen.StackSlot, src codegen.Location) error {
	valReg := T2
	if src.Kind == codegen.LocationRegister {
		valReg = src.Reg.Value.RealReg()
	} else if err := m.insertMoveIntoReg(out, valReg, src); err != nil {
		return err
	}
	off := int32(slot.FramePointerOffset)
	if off >= -2048 && off <= 2047 {
		sd(out, slot.FramePointerRegister, valReg, off)
		return nil
	}
	addr := T1
	if valReg == addr {
		addr = T0
	}
	loadImm64(out, addr, uint64(int64(off)))
	rOp(out, 0, 0, addr, addr, slot.FramePointerRegister) // ADD addr, addr, fp
	sd(out, addr, valReg, 0)
	return nil
}

func (m *Machine) insertMoveIntoReg(out *codegen.CodeBuffer, dst regalloc.RealReg, src codegen.Location) error {
	switch src.Kind {
	case codegen.LocationRegister:
		movReg(out, dst, src.Reg.Value.RealReg())
	case codegen.LocationImmediateS32, codegen.LocationImmediateU32:
		loadImm64(out, dst, uint64(uint32(src.ImmS64)))
	case codegen.LocationImmediateS64:
		loadImm64(out, dst, uint64(src.ImmS64))
	case codegen.LocationImmediateU64:
		loadImm64(out, dst, src.ImmU64)
	case codegen.LocationStack:
		loadFromStackAny(out, dst, src.Stack.FramePointerRegister, int32(src.Stack.FramePointerOffset))
	case codegen.LocationConstantSection:
		loadSymbolAddress(out, dst, ".rodata", src.ConstantOffset)
	case codegen.LocationLocalSymbolValue, codegen.LocationGlobalSymbolValue:
		loadSymbolAddress(out, dst, src.Symbol.Name, src.SymbolOffset)
	case codegen.LocationNull:
		// Nothing to load; a Null source paired with a register destination
		// happens only for unused operand slots the constraint engine never
		// actually reads.
	default:
		return &codegen.UnsupportedOperandError{Opcode: codegen.OpInvalid}
	}
	return nil
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

// aluFuncts maps an arithmetic/logical opcode onto the R-type funct3/funct7
// pair that implements it, including the M-extension ops (funct7=1):
// unlike amd64's IDIV/DIV, RISC-V's MUL/DIV/REM family takes arbitrary
// register operands with no fixed-register constraint, so they need no
// special-casing beyond this table.
func aluFuncts(op codegen.Opcode) (funct3, funct7 uint32, ok bool) {
	switch op {
	case codegen.OpAdd:
		return 0, 0, true
	case codegen.OpSub:
		return 0, 0x20, true
	case codegen.OpAnd:
		return 7, 0, true
	case codegen.OpOr:
		return 6, 0, true
	case codegen.OpXor:
		return 4, 0, true
	case codegen.OpShl:
		return 1, 0, true
	case codegen.OpShr:
		return 5, 0x20, true
	case codegen.OpUShr:
		return 5, 0, true
	case codegen.OpMul:
		return 0, 1, true
	case codegen.OpDiv:
		return 4, 1, true
	case codegen.OpUDiv:
		return 5, 1, true
	case codegen.OpRem:
		return 6, 1, true
	case codegen.OpURem:
		return 7, 1, true
	default:
		return 0, 0, false
	}
}

func (m *Machine) emitALU(ci *codegen.CompilerInstruction, out *codegen.CodeBuffer) error {
	dst := ci.Location
	if dst.Kind != codegen.LocationRegister {
		return &codegen.UnsupportedOperandError{Index: ci.Index, Opcode: ci.Decoding.Opcode}
	}
	dstReg := dst.Reg.Value.RealReg()
	switch ci.Decoding.Opcode {
	case codegen.OpNeg:
		rhs := T1
		if err := m.insertMoveIntoReg(out, rhs, ci.Arg0); err != nil {
			return err
		}
		rOp(out, 0, 0x20, dstReg, ZERO, rhs) // SUB dst, x0, rhs
		return nil
	case codegen.OpNot:
		rhs := T1
		if err := m.insertMoveIntoReg(out, rhs, ci.Arg0); err != nil {
			return err
		}
		xori(out, dstReg, rhs, -1)
		return nil
	default:
		funct3, funct7, ok := aluFuncts(ci.Decoding.Opcode)
		if !ok {
			return &codegen.UnsupportedOperandError{Index: ci.Index, Opcode: ci.Decoding.Opcode}
		}
		lhs, rhs := T0, T1
		if err := m.insertMoveIntoReg(out, lhs, ci.Arg0); err != nil {
			return err
		}
		if err := m.insertMoveIntoReg(out, rhs, ci.Arg1); err != nil {
			return err
		}
		rOp(out, funct3, funct7, dstReg, lhs, rhs)
		return nil
	}
}

// emitCompare lowers every comparison opcode to a 0/1 result: equality
// and inequality via XOR followed by SLTIU/SLTU against zero, the ordered
// variants via SLT/SLTU (spec.md §4.3: comparison ops produce a 0/1
// integer result, RISC-V has
// no flags register to read one back from).
func (m *Machine) emitCompare(ci *codegen.CompilerInstruction, out *codegen.CodeBuffer) error {
	dst := ci.Location
	if dst.Kind != codegen.LocationRegister {
		return &codegen.UnsupportedOperandError{Index: ci.Index, Opcode: ci.Decoding.Opcode}
	}
	dstReg := dst.Reg.Value.RealReg()
	lhs, rhs := T0, T1
	if err := m.insertMoveIntoReg(out, lhs, ci.Arg0); err != nil {
		return err
	}
	if err := m.insertMoveIntoReg(out, rhs, ci.Arg1); err != nil {
		return err
	}
	switch ci.Decoding.Opcode {
	case codegen.OpCmpEq:
		rOp(out, 4, 0, dstReg, lhs, rhs) // XOR dst, lhs, rhs
		sltiu(out, dstReg, dstReg, 1)    // dst = (dst == 0)
	case codegen.OpCmpNe:
		rOp(out, 4, 0, dstReg, lhs, rhs)
		rOp(out, 3, 0, dstReg, ZERO, dstReg) // SLTU dst, x0, dst
	case codegen.OpCmpLt:
		rOp(out, 2, 0, dstReg, lhs, rhs)
	case codegen.OpCmpLe:
		rOp(out, 2, 0, dstReg, rhs, lhs)
		xori(out, dstReg, dstReg, 1)
	case codegen.OpCmpGt:
		rOp(out, 2, 0, dstReg, rhs, lhs)
	case codegen.OpCmpGe:
		rOp(out, 2, 0, dstReg, lhs, rhs)
		xori(out, dstReg, dstReg, 1)
	case codegen.OpCmpULt:
		rOp(out, 3, 0, dstReg, lhs, rhs)
	case codegen.OpCmpULe:
		rOp(out, 3, 0, dstReg, rhs, lhs)
		xori(out, dstReg, dstReg, 1)
	case codegen.OpCmpUGt:
		rOp(out, 3, 0, dstReg, rhs, lhs)
	case codegen.OpCmpUGe:
		rOp(out, 3, 0, dstReg, lhs, rhs)
		xori(out, dstReg, dstReg, 1)
	default:
		return &codegen.UnsupportedOperandError{Index: ci.Index, Opcode: ci.Decoding.Opcode}
	}
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
		jal(out, ZERO, 0)
		labels.RequestPatch(lbl, codegen.RelocationJAL, off, 0)
		return nil
	}
	cond := T0
	if err := m.insertMoveIntoReg(out, cond, ci.Arg0); err != nil {
		return err
	}
	funct3 := uint32(1) // BNE: branch when cond != 0 (JumpIfTrue)
	if ci.Decoding.Opcode == codegen.OpJumpIfFalse {
		funct3 = 0 // BEQ
	}
	off := out.Len()
	branch(out, funct3, cond, ZERO, 0)
	labels.RequestPatch(lbl, codegen.RelocationBranch, off, 0)
	return nil
}

func (m *Machine) emitLoad(ci *codegen.CompilerInstruction, out *codegen.CodeBuffer) error {
	dst := ci.Location
	if dst.Kind != codegen.LocationRegister {
		return &codegen.UnsupportedOperandError{Index: ci.Index, Opcode: ci.Decoding.Opcode}
	}
	base := T0
	if err := m.insertMoveIntoReg(out, base, ci.Arg0); err != nil {
		return err
	}
	ld(out, dst.Reg.Value.RealReg(), base, 0)
	return nil
}

func (m *Machine) emitStore(ci *codegen.CompilerInstruction, out *codegen.CodeBuffer) error {
	base := T0
	if err := m.insertMoveIntoReg(out, base, ci.Arg0); err != nil {
		return err
	}
	value := T1
	if err := m.insertMoveIntoReg(out, value, ci.Arg1); err != nil {
		return err
	}
	sd(out, base, value, 0)
	return nil
}

func (m *Machine) emitPtrAdd(ci *codegen.CompilerInstruction, out *codegen.CodeBuffer) error {
	dst := ci.Location
	if dst.Kind != codegen.LocationRegister {
		return &codegen.UnsupportedOperandError{Index: ci.Index, Opcode: ci.Decoding.Opcode}
	}
	dstReg := dst.Reg.Value.RealReg()
	lhs, rhs := T0, T1
	if err := m.insertMoveIntoReg(out, lhs, ci.Arg0); err != nil {
		return err
	}
	if err := m.insertMoveIntoReg(out, rhs, ci.Arg1); err != nil {
		return err
	}
	rOp(out, 0, 0, dstReg, lhs, rhs) // ADD dst, lhs, rhs
	return nil
}

func (m *Machine) emitCopy(ci *codegen.CompilerInstruction, out *codegen.CodeBuffer) error {
	dst := ci.Location
	if dst.Kind != codegen.LocationRegister {
		return &codegen.UnsupportedOperandError{Index: ci.Index, Opcode: ci.Decoding.Opcode}
	}
	return m.insertMoveIntoReg(out, dst.Reg.Value.RealReg(), ci.Arg0)
}

// emitSignExtend has no single-instruction SEXT.W without the Zbb
// extension, so it emulates a 32-to-64 sign extension via SLLI+SRAI
// (spec.md §4.3).
func (m *Machine) emitSignExtend(ci *codegen.CompilerInstruction, out *codegen.CodeBuffer) error {
	dst := ci.Location
	if dst.Kind != codegen.LocationRegister {
		return &codegen.UnsupportedOperandError{Index: ci.Index, Opcode: ci.Decoding.Opcode}
	}
	dstReg := dst.Reg.Value.RealReg()
	if err := m.insertMoveIntoReg(out, dstReg, ci.Arg0); err != nil {
		return err
	}
	slli(out, dstReg, dstReg, 32)
	srai(out, dstReg, dstReg, 32)
	return nil
}

func (m *Machine) emitCall(ci *codegen.CompilerInstruction, out *codegen.CodeBuffer) error {
	target := ci.Arg0
	switch target.Kind {
	case codegen.LocationLocalSymbolValue, codegen.LocationGlobalSymbolValue:
		off := out.Len()
		auipc(out, RA, 0)
		jalr(out, RA, RA, 0)
		out.RequestSymbolRelocation(off, target.Symbol.Name, true, 0)
	default:
		callee := T0
		if err := m.insertMoveIntoReg(out, callee, target); err != nil {
			return err
		}
		jalr(out, RA, callee, 0)
	}
	if ci.Location.Kind == codegen.LocationRegister {
		result := ci.Location.Reg.Value.RealReg()
		if result != A0 {
			movReg(out, result, A0)
		}
	}
	return nil
}
