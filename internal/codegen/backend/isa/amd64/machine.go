package amd64

import (
	"github.com/sdvm-project/sdvmc/internal/codegen/backend"
	"github.com/sdvm-project/sdvmc/internal/codegen/backend/regalloc"
	"github.com/sdvm-project/sdvmc/internal/codegen/cfi"
	"github.com/sdvm-project/sdvmc/internal/codegen"
)

// Machine implements codegen.Machine for x86-64/SysV.
type Machine struct {
	abi *backend.ABI
}

func New() *Machine { return &Machine{abi: NewSysVABI()} }

func (m *Machine) Name() string { return "amd64-sysv" }

func (m *Machine) ABI() *backend.ABI { return m.abi }

func (m *Machine) FramePointerRegister() regalloc.RealReg { return RBP }

func (m *Machine) NewPatcher(out *codegen.CodeBuffer) codegen.Patcher { return out }

// --- REX/ModRM/SIB encoding helpers ---

func regEnc(r regalloc.RealReg) (enc byte, ext bool) {
	e := encOf(r)
	return byte(e & 7), e >= 8
}

// rex writes a REX prefix iff w is set or any of the extension bits are,
// matching the convention every non-trivial amd64 encoder (including
// wazero's own) follows of only emitting the byte when it does something.
func rex(out *codegen.CodeBuffer, w, r, x, b bool) {
	if !w && !r && !x && !b {
		return
	}
	var v byte = 0x40
	if w {
		v |= 0x08
	}
	if r {
		v |= 0x04
	}
	if x {
		v |= 0x02
	}
	if b {
		v |= 0x01
	}
	out.WriteByte(v)
}

func modrmReg(out *codegen.CodeBuffer, regField, rm byte) {
	out.WriteByte(0xC0 | (regField&7)<<3 | (rm & 7))
}

// memOperand writes a ModRM(+SIB) + disp32 addressing [base+disp], the
// only addressing mode this emitter ever needs since every Stack location
// resolves to a single frame-pointer-relative offset (spec.md §4.5).
func memOperand(out *codegen.CodeBuffer, regField byte, base regalloc.RealReg, disp int32) {
	baseEnc, _ := regEnc(base)
	out.WriteByte(0x80 | (regField&7)<<3 | (baseEnc & 7))
	if baseEnc&7 == 4 { // RSP/R12 as base requires a SIB byte even with disp32.
		out.WriteByte(0x24)
	}
	out.WriteUint32LE(uint32(disp))
}

func pushReg(out *codegen.CodeBuffer, r regalloc.RealReg) {
	enc, ext := regEnc(r)
	rex(out, false, false, false, ext)
	out.WriteByte(0x50 + enc)
}

func popReg(out *codegen.CodeBuffer, r regalloc.RealReg) {
	enc, ext := regEnc(r)
	rex(out, false, false, false, ext)
	out.WriteByte(0x58 + enc)
}

// movRR emits "mov dst, src" (register to register, full 64-bit).
func movRR(out *codegen.CodeBuffer, dst, src regalloc.RealReg) {
	if dst == src {
		return
	}
	dEnc, dExt := regEnc(dst)
	sEnc, sExt := regEnc(src)
	rex(out, true, dExt, false, sExt)
	out.WriteByte(0x8B) // mov reg, r/m
	modrmReg(out, dEnc, sEnc)
}

func movRegFromStack(out *codegen.CodeBuffer, dst regalloc.RealReg, base regalloc.RealReg, disp int32) {
	dEnc, dExt := regEnc(dst)
	_, bExt := regEnc(base)
	rex(out, true, dExt, false, bExt)
	out.WriteByte(0x8B)
	memOperand(out, dEnc, base, disp)
}

func movStackFromReg(out *codegen.CodeBuffer, base regalloc.RealReg, disp int32, src regalloc.RealReg) {
	sEnc, sExt := regEnc(src)
	_, bExt := regEnc(base)
	rex(out, true, sExt, false, bExt)
	out.WriteByte(0x89) // mov r/m, reg
	memOperand(out, sEnc, base, disp)
}

// movRegImm64 loads a full 64-bit immediate (MOVABS), or the shorter
// sign-extended 32-bit immediate form when the value fits, matching the
// size discipline the constraint stage already applied when it decided an
// Int64 constant was too large to embed (constraint.go fitsS32).
func movRegImm64(out *codegen.CodeBuffer, dst regalloc.RealReg, v int64) {
	if v >= -(1<<31) && v < (1<<31) {
		dEnc, dExt := regEnc(dst)
		rex(out, true, false, false, dExt)
		out.WriteByte(0xC7)
		modrmReg(out, 0, dEnc)
		out.WriteUint32LE(uint32(int32(v)))
		return
	}
	dEnc, dExt := regEnc(dst)
	rex(out, true, false, false, dExt)
	out.WriteByte(0xB8 + dEnc)
	out.WriteUint64LE(uint64(v))
}

// leaSymbol loads the address of name plus addend (for example an offset
// into the read-only data section) via a RIP-relative LEA, recording a
// PC-relative symbol relocation against its disp32 field (spec.md §4.3
// constant pool / interned string references).
func leaSymbol(out *codegen.CodeBuffer, dst regalloc.RealReg, name string, addend int64) {
	dEnc, dExt := regEnc(dst)
	rex(out, true, dExt, false, false)
	out.WriteByte(0x8D) // LEA reg, [rip+disp32]
	out.WriteByte(0x05 | (dEnc&7)<<3)
	off := out.Len()
	out.WriteUint32LE(0)
	out.RequestSymbolRelocation(off, name, true, addend-4)
}

func aluOpcode(op codegen.Opcode) (byte, bool) {
	switch op {
	case codegen.OpAdd:
		return 0x03, true
	case codegen.OpOr:
		return 0x0B, true
	case codegen.OpAnd:
		return 0x23, true
	case codegen.OpSub:
		return 0x2B, true
	case codegen.OpXor:
		return 0x33, true
	default:
		return 0, false
	}
}

func regOf(loc codegen.Location) regalloc.RealReg {
	return loc.Reg.Value.RealReg()
}

// --- Machine interface ---

func (m *Machine) EmitPrologue(frame *codegen.FrameLayout, sink cfi.Sink, out *codegen.CodeBuffer) {
	pushReg(out, RBP)
	sink.PushRegister(out.Len(), RBP)
	movRR(out, RBP, RSP)
	if n := frame.TotalSize; n > 0 {
		rex(out, true, false, false, false)
		out.WriteByte(0x81)
		modrmReg(out, 5, 4) // SUB r/m64, imm32; reg field 5 = /5, rm=RSP enc 4
		out.WriteUint32LE(uint32(int32(n)))
		sink.StackSizeAdvance(out.Len(), -n)
	}
	for _, r := range m.abi.CallPreservedIntegerRegs {
		pushReg(out, r)
		sink.PushRegister(out.Len(), r)
	}
	sink.EndPrologue(out.Len())
}

func (m *Machine) EmitEpilogue(frame *codegen.FrameLayout, sink cfi.Sink, out *codegen.CodeBuffer) {
	sink.BeginEpilogue(out.Len())
	for i := len(m.abi.CallPreservedIntegerRegs) - 1; i >= 0; i-- {
		popReg(out, m.abi.CallPreservedIntegerRegs[i])
	}
	// leave: mov rsp, rbp; pop rbp
	out.WriteByte(0xC9)
	out.WriteByte(0xC3) // ret
	sink.EndEpilogue(out.Len())
}

func (m *Machine) InsertMove(out *codegen.CodeBuffer, dst, src codegen.Location) error {
	switch dst.Kind {
	case codegen.LocationRegister:
		return m.insertMoveIntoReg(out, regOf(dst), src)
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
		if err := m.insertMoveIntoStack(out, dst.StackPair[0], codegen.LocationOfPinnedRegister(regalloc.RegKindInteger, 8, RAX)); err != nil {
			return err
		}
		return m.insertMoveIntoStack(out, dst.StackPair[1], src)
	default:
		codegen.Raise("amd64: InsertMove called with unsupported destination kind %s", dst.Kind)
		return nil
	}
}

// insertMoveIntoStack stores src (materializing it into a scratch
// register first if it isn't already register-resident) into an outgoing
// stack-argument slot (spec.md §6 "stack-passed arguments").
func (m *Machine) insertMoveIntoStack(out *codegen.CodeBuffer, slot codegen.StackSlot, src codegen.Location) error {
	valReg := R11
	if src.Kind == codegen.LocationRegister {
		valReg = regOf(src)
	} else if err := m.insertMoveIntoReg(out, valReg, src); err != nil {
		return err
	}
	movStackFromReg(out, slot.FramePointerRegister, int32(slot.FramePointerOffset), valReg)
	return nil
}

func (m *Machine) insertMoveIntoReg(out *codegen.CodeBuffer, dst regalloc.RealReg, src codegen.Location) error {
	switch src.Kind {
	case codegen.LocationRegister:
		movRR(out, dst, regOf(src))
	case codegen.LocationImmediateS32, codegen.LocationImmediateU32:
		movRegImm64(out, dst, src.ImmS64)
	case codegen.LocationImmediateS64, codegen.LocationImmediateU64:
		if src.IsSigned {
			movRegImm64(out, dst, src.ImmS64)
		} else {
			movRegImm64(out, dst, int64(src.ImmU64))
		}
	case codegen.LocationStack:
		movRegFromStack(out, dst, src.Stack.FramePointerRegister, int32(src.Stack.FramePointerOffset))
	case codegen.LocationConstantSection:
		leaSymbol(out, dst, ".rodata", src.ConstantOffset)
	case codegen.LocationLocalSymbolValue, codegen.LocationGlobalSymbolValue:
		leaSymbol(out, dst, src.Symbol.Name, src.SymbolOffset)
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
		return nil // Every constant form already became a Location in constraint.go; no code to emit.
	case op == codegen.OpAllocateLocal, op == codegen.OpBeginArguments, op == codegen.OpArg,
		op == codegen.OpBeginCall, op == codegen.OpCallArg:
		return nil // Pure bookkeeping ops (spec.md §4.7): location was already fixed by an earlier stage.
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
	case op == codegen.OpTruncate, op == codegen.OpZeroExtend:
		return m.emitZeroExtendOrTruncate(ci, out)
	case op == codegen.OpSignExtend:
		return m.emitSignExtend(ci, out)
	case op == codegen.OpBitcast:
		return nil // Same-width reinterpretation: the value already sits in the right register/slot.
	case op.IsCall():
		return m.emitCall(ci, instrs, out)
	case op.IsReturn():
		m.EmitEpilogue(frame, sink, out)
		return nil
	default:
		return &codegen.UnsupportedOperandError{Index: ci.Index, Opcode: op}
	}
}

// emitALU implements the 2-operand destructive x86 ALU forms by first
// moving arg0 into the destination register when the allocator did not
// place it there already (spec.md §4.3 allowArgDestinationShare records
// the opportunity; this backend takes it whenever it can, and pays for a
// register-register mov when it couldn't).
func (m *Machine) emitALU(ci *codegen.CompilerInstruction, out *codegen.CodeBuffer) error {
	dst := ci.Location
	if dst.Kind != codegen.LocationRegister {
		return &codegen.UnsupportedOperandError{Index: ci.Index, Opcode: ci.Decoding.Opcode}
	}
	dstReg := regOf(dst)
	switch ci.Decoding.Opcode {
	case codegen.OpNeg, codegen.OpNot:
		if err := m.insertMoveIntoReg(out, dstReg, ci.Arg0); err != nil {
			return err
		}
		dEnc, dExt := regEnc(dstReg)
		rex(out, true, false, false, dExt)
		out.WriteByte(0xF7)
		reg3 := byte(3)
		if ci.Decoding.Opcode == codegen.OpNot {
			reg3 = 2
		}
		modrmReg(out, reg3, dEnc)
		return nil
	case codegen.OpShl, codegen.OpShr, codegen.OpUShr:
		if err := m.insertMoveIntoReg(out, dstReg, ci.Arg0); err != nil {
			return err
		}
		if err := m.insertMoveIntoReg(out, RCX, ci.Arg1); err != nil {
			return err
		}
		dEnc, dExt := regEnc(dstReg)
		rex(out, true, false, false, dExt)
		out.WriteByte(0xD3)
		field := byte(4)
		if ci.Decoding.Opcode == codegen.OpShr {
			field = 7 // SAR
		} else if ci.Decoding.Opcode == codegen.OpUShr {
			field = 5
		}
		modrmReg(out, field, dEnc)
		return nil
	case codegen.OpMul:
		if err := m.insertMoveIntoReg(out, dstReg, ci.Arg0); err != nil {
			return err
		}
		return m.emitIMul(dstReg, ci.Arg1, out)
	case codegen.OpDiv, codegen.OpUDiv, codegen.OpRem, codegen.OpURem:
		return m.emitDivRem(ci, dstReg, out)
	default:
		opcode, ok := aluOpcode(ci.Decoding.Opcode)
		if !ok {
			return &codegen.UnsupportedOperandError{Index: ci.Index, Opcode: ci.Decoding.Opcode}
		}
		if err := m.insertMoveIntoReg(out, dstReg, ci.Arg0); err != nil {
			return err
		}
		return m.emitALURSrc(dstReg, opcode, ci.Arg1, out)
	}
}

// emitALURSrc emits "op dstReg, src" where src may already be a register
// or must first be materialized into a scratch register (RAX is safe here
// since dstReg is never RAX for the left-hand side unless arg0 already
// lived there, in which case clobbering it for the right-hand load would
// be wrong — so a non-RAX scratch, R11, is used instead).
func (m *Machine) emitALURSrc(dstReg regalloc.RealReg, opcode byte, src codegen.Location, out *codegen.CodeBuffer) error {
	if src.Kind == codegen.LocationRegister {
		dEnc, dExt := regEnc(dstReg)
		sEnc, sExt := regEnc(regOf(src))
		rex(out, true, dExt, false, sExt)
		out.WriteByte(opcode)
		modrmReg(out, dEnc, sEnc)
		return nil
	}
	if err := m.insertMoveIntoReg(out, R11, src); err != nil {
		return err
	}
	dEnc, dExt := regEnc(dstReg)
	sEnc, sExt := regEnc(R11)
	rex(out, true, dExt, false, sExt)
	out.WriteByte(opcode)
	modrmReg(out, dEnc, sEnc)
	return nil
}

func (m *Machine) emitIMul(dstReg regalloc.RealReg, src codegen.Location, out *codegen.CodeBuffer) error {
	srcReg := regOf(src)
	if src.Kind != codegen.LocationRegister {
		if err := m.insertMoveIntoReg(out, R11, src); err != nil {
			return err
		}
		srcReg = R11
	}
	dEnc, dExt := regEnc(dstReg)
	sEnc, sExt := regEnc(srcReg)
	rex(out, true, dExt, false, sExt)
	out.WriteByte(0x0F)
	out.WriteByte(0xAF)
	modrmReg(out, dEnc, sEnc)
	return nil
}

// emitDivRem lowers Div/UDiv/Rem/URem via IDIV/DIV, which fix their
// dividend to RDX:RAX and their result to RAX (quotient) or RDX
// (remainder) — the one place this backend must shuffle values through
// specific physical registers regardless of what the allocator chose.
func (m *Machine) emitDivRem(ci *codegen.CompilerInstruction, dstReg regalloc.RealReg, out *codegen.CodeBuffer) error {
	signed := ci.Decoding.Opcode == codegen.OpDiv || ci.Decoding.Opcode == codegen.OpRem
	if err := m.insertMoveIntoReg(out, RAX, ci.Arg0); err != nil {
		return err
	}
	divisor := R11
	if err := m.insertMoveIntoReg(out, divisor, ci.Arg1); err != nil {
		return err
	}
	if signed {
		out.WriteByte(0x48)
		out.WriteByte(0x99) // CQO: sign-extend RAX into RDX:RAX
	} else {
		rex(out, true, false, false, false)
		out.WriteByte(0x33) // XOR RDX, RDX
		modrmReg(out, byte(encOf(RDX)), byte(encOf(RDX)))
	}
	dEnc, dExt := regEnc(divisor)
	rex(out, true, false, false, dExt)
	out.WriteByte(0xF7)
	field := byte(6)
	if signed {
		field = 7
	}
	modrmReg(out, field, dEnc)
	result := RAX
	if ci.Decoding.Opcode == codegen.OpRem || ci.Decoding.Opcode == codegen.OpURem {
		result = RDX
	}
	movRR(out, dstReg, result)
	return nil
}

// emitCompare emits CMP followed by SETcc into the low byte of dst and a
// MOVZX to materialize a full-width 0/1 boolean (spec.md §4.3 comparison
// ops produce a Boolean-typed result).
func (m *Machine) emitCompare(ci *codegen.CompilerInstruction, out *codegen.CodeBuffer) error {
	dst := ci.Location
	if dst.Kind != codegen.LocationRegister {
		return &codegen.UnsupportedOperandError{Index: ci.Index, Opcode: ci.Decoding.Opcode}
	}
	lhs := R11
	if err := m.insertMoveIntoReg(out, lhs, ci.Arg0); err != nil {
		return err
	}
	rhs := regalloc.RealReg(0)
	if ci.Arg1.Kind == codegen.LocationRegister {
		rhs = regOf(ci.Arg1)
	} else {
		rhs = RAX
		if err := m.insertMoveIntoReg(out, rhs, ci.Arg1); err != nil {
			return err
		}
	}
	lEnc, lExt := regEnc(lhs)
	rEnc, rExt := regEnc(rhs)
	rex(out, true, lExt, false, rExt)
	out.WriteByte(0x3B) // CMP reg, r/m
	modrmReg(out, lEnc, rEnc)

	cc, ok := conditionCode(ci.Decoding.Opcode)
	if !ok {
		return &codegen.UnsupportedOperandError{Index: ci.Index, Opcode: ci.Decoding.Opcode}
	}
	dEnc, dExt := regEnc(regOf(dst))
	rex(out, false, false, false, dExt)
	out.WriteByte(0x0F)
	out.WriteByte(0x90 | cc) // SETcc r/m8
	modrmReg(out, 0, dEnc)
	rex(out, false, dExt, false, dExt)
	out.WriteByte(0x0F)
	out.WriteByte(0xB6) // MOVZX reg, r/m8
	modrmReg(out, dEnc, dEnc)
	return nil
}

func conditionCode(op codegen.Opcode) (byte, bool) {
	switch op {
	case codegen.OpCmpEq:
		return 0x4, true
	case codegen.OpCmpNe:
		return 0x5, true
	case codegen.OpCmpLt:
		return 0xC, true
	case codegen.OpCmpLe:
		return 0xE, true
	case codegen.OpCmpGt:
		return 0xF, true
	case codegen.OpCmpGe:
		return 0xD, true
	case codegen.OpCmpULt:
		return 0x2, true
	case codegen.OpCmpULe:
		return 0x6, true
	case codegen.OpCmpUGt:
		return 0x7, true
	case codegen.OpCmpUGe:
		return 0x3, true
	default:
		return 0, false
	}
}

// emitBranch handles Jump/JumpIfTrue/JumpIfFalse. Conditional branches
// TEST their condition register against itself first, since this ISA's
// comparison ops already materialize their result as a 0/1 integer rather
// than leaving flag state live across instruction boundaries (spec.md §9:
// flags are never treated as a cross-instruction value in this pipeline).
func (m *Machine) emitBranch(ci *codegen.CompilerInstruction, out *codegen.CodeBuffer, labels *codegen.LabelTable) error {
	target := ci.Decoding.Arg1
	if ci.Decoding.Opcode == codegen.OpJump {
		target = ci.Decoding.Arg0
	}
	lbl := codegen.LabelID(target.Field)

	if ci.Decoding.Opcode != codegen.OpJump {
		cond := R11
		if err := m.insertMoveIntoReg(out, cond, ci.Arg0); err != nil {
			return err
		}
		cEnc, cExt := regEnc(cond)
		rex(out, false, cExt, false, cExt)
		out.WriteByte(0x85) // TEST r/m, reg
		modrmReg(out, cEnc, cEnc)

		opByte := byte(0x85) // JNZ
		if ci.Decoding.Opcode == codegen.OpJumpIfFalse {
			opByte = 0x84 // JZ
		}
		out.WriteByte(0x0F)
		out.WriteByte(opByte)
	} else {
		out.WriteByte(0xE9)
	}
	off := out.Len()
	out.WriteUint32LE(0)
	labels.RequestPatch(lbl, codegen.RelocationRelative32, off, -4)
	return nil
}

func (m *Machine) emitLoad(ci *codegen.CompilerInstruction, out *codegen.CodeBuffer) error {
	dst := ci.Location
	if dst.Kind != codegen.LocationRegister {
		return &codegen.UnsupportedOperandError{Index: ci.Index, Opcode: ci.Decoding.Opcode}
	}
	base := R11
	if err := m.insertMoveIntoReg(out, base, ci.Arg0); err != nil {
		return err
	}
	dEnc, dExt := regEnc(regOf(dst))
	_, bExt := regEnc(base)
	rex(out, true, dExt, false, bExt)
	out.WriteByte(0x8B)
	memOperand(out, dEnc, base, 0)
	return nil
}

func (m *Machine) emitStore(ci *codegen.CompilerInstruction, out *codegen.CodeBuffer) error {
	base := R11
	if err := m.insertMoveIntoReg(out, base, ci.Arg0); err != nil {
		return err
	}
	value := RAX
	if ci.Arg1.Kind == codegen.LocationRegister {
		value = regOf(ci.Arg1)
	} else if err := m.insertMoveIntoReg(out, value, ci.Arg1); err != nil {
		return err
	}
	vEnc, vExt := regEnc(value)
	_, bExt := regEnc(base)
	rex(out, true, vExt, false, bExt)
	out.WriteByte(0x89)
	memOperand(out, vEnc, base, 0)
	return nil
}

func (m *Machine) emitPtrAdd(ci *codegen.CompilerInstruction, out *codegen.CodeBuffer) error {
	dst := ci.Location
	if dst.Kind != codegen.LocationRegister {
		return &codegen.UnsupportedOperandError{Index: ci.Index, Opcode: ci.Decoding.Opcode}
	}
	dstReg := regOf(dst)
	if err := m.insertMoveIntoReg(out, dstReg, ci.Arg0); err != nil {
		return err
	}
	return m.emitALURSrc(dstReg, 0x03, ci.Arg1, out) // ADD dst, offset
}

func (m *Machine) emitZeroExtendOrTruncate(ci *codegen.CompilerInstruction, out *codegen.CodeBuffer) error {
	dst := ci.Location
	if dst.Kind != codegen.LocationRegister {
		return &codegen.UnsupportedOperandError{Index: ci.Index, Opcode: ci.Decoding.Opcode}
	}
	return m.insertMoveIntoReg(out, regOf(dst), ci.Arg0)
}

func (m *Machine) emitSignExtend(ci *codegen.CompilerInstruction, out *codegen.CodeBuffer) error {
	dst := ci.Location
	if dst.Kind != codegen.LocationRegister {
		return &codegen.UnsupportedOperandError{Index: ci.Index, Opcode: ci.Decoding.Opcode}
	}
	srcReg := R11
	if err := m.insertMoveIntoReg(out, srcReg, ci.Arg0); err != nil {
		return err
	}
	dEnc, dExt := regEnc(regOf(dst))
	sEnc, sExt := regEnc(srcReg)
	rex(out, true, dExt, false, sExt)
	out.WriteByte(0x63) // MOVSXD reg64, r/m32
	modrmReg(out, dEnc, sEnc)
	return nil
}

// emitCall lowers Call/CallVoid/CallClosure/CallClosureVoid. The ABI's
// clobber set was already installed on ci at constraint time (spec.md
// §4.3 "install the ABI's callTouchedRegisters as the instruction's
// clobber set"); the emitter only needs to materialize the callee address
// and issue the call.
func (m *Machine) emitCall(ci *codegen.CompilerInstruction, instrs []codegen.CompilerInstruction, out *codegen.CodeBuffer) error {
	target := ci.Arg0
	switch target.Kind {
	case codegen.LocationLocalSymbolValue, codegen.LocationGlobalSymbolValue:
		out.WriteByte(0xE8)
		off := out.Len()
		out.WriteUint32LE(0)
		out.RequestSymbolRelocation(off, target.Symbol.Name, true, -4)
	default:
		callee := R10
		if err := m.insertMoveIntoReg(out, callee, target); err != nil {
			return err
		}
		cEnc, cExt := regEnc(callee)
		rex(out, false, false, false, cExt)
		out.WriteByte(0xFF)
		modrmReg(out, 2, cEnc)
	}
	if ci.Location.Kind == codegen.LocationRegister {
		result := regOf(ci.Location)
		if result != RAX {
			movRR(out, result, RAX)
		}
	}
	return nil
}
