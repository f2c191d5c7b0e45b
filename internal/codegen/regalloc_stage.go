package codegen

import (
	"github.com/sdvm-project/sdvmc/internal/codegen/backend"
	"github.com/sdvm-project/sdvmc/internal/codegen/backend/regalloc"
)

// RegAllocDriver implements stage 5 of the pipeline (spec.md §4.4): it
// walks a function's CompilerInstruction array in index order, running the
// five-step per-instruction procedure against one regalloc.RegisterFile
// per register kind, and rewrites any Location the allocator cannot keep
// in a register into a Stack/StackPair spill.
type RegAllocDriver struct {
	ABI   *backend.ABI
	Files map[regalloc.RegKind]*regalloc.RegisterFile

	spillNext map[StackSegmentKind]int64
}

// NewRegAllocDriver builds one RegisterFile per register kind from the
// ABI's allocatable lists.
func NewRegAllocDriver(abi *backend.ABI) *RegAllocDriver {
	return &RegAllocDriver{
		ABI: abi,
		Files: map[regalloc.RegKind]*regalloc.RegisterFile{
			regalloc.RegKindInteger:       regalloc.NewRegisterFile(regalloc.RegKindInteger, abi.AllocatableFor(regalloc.RegKindInteger)),
			regalloc.RegKindFloat:         regalloc.NewRegisterFile(regalloc.RegKindFloat, abi.AllocatableFor(regalloc.RegKindFloat)),
			regalloc.RegKindVectorFloat:   regalloc.NewRegisterFile(regalloc.RegKindVectorFloat, abi.AllocatableFor(regalloc.RegKindVectorFloat)),
			regalloc.RegKindVectorInteger: regalloc.NewRegisterFile(regalloc.RegKindVectorInteger, abi.AllocatableFor(regalloc.RegKindVectorInteger)),
		},
		spillNext: map[StackSegmentKind]int64{},
	}
}

// Run performs register allocation over instrs in place (spec.md §4.4).
func (d *RegAllocDriver) Run(instrs []CompilerInstruction) {
	stillRegister := func(idx int) bool { return instrs[idx].Location.IsRegister() }

	for i := range instrs {
		ci := &instrs[i]

		// Step 1: expire intervals whose End has passed, or that were
		// spilled by an earlier iteration.
		for _, f := range d.Files {
			f.Begin(i, stillRegister)
		}

		// An operand's value is defined by whatever instruction it
		// references; that, not i, is what a pinned or pending operand
		// location must be checked for compatibility against (spec.md
		// §4.4 steps 2-3). The instruction's own destination is, by
		// definition, always "defined by" i itself.
		arg0Src := operandSource(ci.Decoding.Arg0)
		arg1Src := operandSource(ci.Decoding.Arg1)

		// Step 2: pinned locations claim their specific physical register
		// first. If the register is already compatibly occupied - i.e. by
		// the very value the operand references - it is reused in place;
		// otherwise whoever was squatting in it is evicted (and spilled).
		d.bindPinned(instrs, i, &ci.Arg0, arg0Src)
		d.bindPinned(instrs, i, &ci.Arg1, arg1Src)
		d.bindPinned(instrs, i, &ci.Location, i)

		// Step 3: pending ("any register") locations first try to reuse
		// the register their source interval already sits in; only when
		// no such register exists does the allocator find one free,
		// evicting the longest-lived active interval if nothing is free.
		d.bindPending(instrs, i, &ci.Arg0, arg0Src)
		d.bindPending(instrs, i, &ci.Arg1, arg1Src)
		d.bindPending(instrs, i, &ci.Location, i)

		// Step 4: the instruction's own clobber set evicts (and, if still
		// live afterwards, spills) anything it destroys as a side effect.
		for kind, f := range d.Files {
			toSpill := f.ApplyClobbers(ci.Clobbers.For(kind), i)
			for _, spilledIdx := range toSpill {
				d.evictInstructionFully(f, spilledIdx)
				d.spill(instrs, spilledIdx)
			}
		}

		// Step 5: commit this instruction's own register-resident result,
		// if any, as a fresh active interval.
		for _, f := range d.Files {
			f.End()
		}
		d.commit(instrs, i)
	}
}

// operandSource returns the instruction index an operand slot's value is
// defined by, or -1 if the slot carries an inline immediate rather than
// a reference to another instruction's result (spec.md §4.4's
// "compatible source interval" check only ever applies to the former).
func operandSource(slot OperandSlot) int {
	if !slot.Type.IsInstructionBearing() {
		return -1
	}
	return slot.Index()
}

func (d *RegAllocDriver) bindPinned(instrs []CompilerInstruction, i int, loc *Location, sourceIdx int) {
	switch loc.Kind {
	case LocationRegister:
		if loc.Reg.Pending {
			return
		}
		d.claim(instrs, i, loc.Reg.Kind, loc.Reg.Value.RealReg(), sourceIdx)
	case LocationRegisterPair:
		if loc.RegPair[0].Pending {
			return
		}
		d.claim(instrs, i, loc.RegPair[0].Kind, loc.RegPair[0].Value.RealReg(), sourceIdx)
		d.claim(instrs, i, loc.RegPair[1].Kind, loc.RegPair[1].Value.RealReg(), sourceIdx)
	}
}

// claim marks r active for sourceIdx's value. If r is already occupied
// by exactly that value - the compatible-source-interval case of
// spec.md §4.4 step 2 - the occupant is left in place and simply
// reused; any other occupant is evicted (and, if still live, spilled).
func (d *RegAllocDriver) claim(instrs []CompilerInstruction, i int, kind regalloc.RegKind, r regalloc.RealReg, sourceIdx int) {
	f := d.Files[kind]
	if occ, ok := f.Occupant(r); ok && occ.Instruction != sourceIdx {
		evicted, _ := f.Evict(r)
		d.evictInstructionFully(f, evicted)
		d.spill(instrs, evicted)
	}
	f.MarkActive(r)
}

// reuse looks for an ActiveInterval belonging to sourceIdx in f, other
// than one already claimed by an earlier half of the same pair, and
// returns its register without disturbing f's active set - the value
// already lives there from an earlier commit (spec.md §4.4 step 3: "if
// the source interval already sits in a register of the required kind
// ... reuse that register").
func (d *RegAllocDriver) reuse(f *regalloc.RegisterFile, sourceIdx int, claimed map[regalloc.RealReg]bool) (regalloc.RealReg, bool) {
	if sourceIdx < 0 {
		return regalloc.RealRegInvalid, false
	}
	for _, ai := range f.Actives {
		if ai.Instruction == sourceIdx && !claimed[ai.Reg] {
			return ai.Reg, true
		}
	}
	return regalloc.RealRegInvalid, false
}

func (d *RegAllocDriver) bindPending(instrs []CompilerInstruction, i int, loc *Location, sourceIdx int) {
	switch loc.Kind {
	case LocationRegister:
		if !loc.Reg.Pending {
			return
		}
		f := d.Files[loc.Reg.Kind]
		reg, ok := d.reuse(f, sourceIdx, nil)
		if !ok {
			var spilledInstr int
			var spilled bool
			reg, spilledInstr, spilled = f.Allocate()
			if spilled {
				d.evictInstructionFully(f, spilledInstr)
				d.spill(instrs, spilledInstr)
			}
		}
		f.MarkActive(reg)
		loc.Reg.Value = loc.Reg.Value.WithRealReg(reg)
		loc.Reg.Pending = false
	case LocationRegisterPair:
		if !loc.RegPair[0].Pending {
			return
		}
		claimed := map[regalloc.RealReg]bool{}
		for half := 0; half < 2; half++ {
			f := d.Files[loc.RegPair[half].Kind]
			reg, ok := d.reuse(f, sourceIdx, claimed)
			if !ok {
				var spilledInstr int
				var spilled bool
				reg, spilledInstr, spilled = f.Allocate()
				if spilled {
					d.evictInstructionFully(f, spilledInstr)
					d.spill(instrs, spilledInstr)
				}
			}
			claimed[reg] = true
			f.MarkActive(reg)
			loc.RegPair[half].Value = loc.RegPair[half].Value.WithRealReg(reg)
			loc.RegPair[half].Pending = false
		}
	}
}

// evictInstructionFully removes every ActiveInterval instr owns in f — a
// pair-resident value occupies two, and a clobber or eviction of either
// half invalidates both (spec.md §3 "RegisterPair").
func (d *RegAllocDriver) evictInstructionFully(f *regalloc.RegisterFile, instr int) {
	for {
		reg, ok := occupantOf(f, instr)
		if !ok {
			return
		}
		f.Evict(reg)
	}
}

func occupantOf(f *regalloc.RegisterFile, instr int) (regalloc.RealReg, bool) {
	for _, ai := range f.Actives {
		if ai.Instruction == instr {
			return ai.Reg, true
		}
	}
	return regalloc.RealRegInvalid, false
}

// spill rewrites instrs[idx]'s destination Location from a register (or
// register pair) to a freshly carved Spilling/GCSpilling stack slot
// (spec.md §4.4 "spilling"). The slot's SegmentOffset is final; its
// FramePointerOffset is filled in later by frame layout (spec.md §4.5).
func (d *RegAllocDriver) spill(instrs []CompilerInstruction, idx int) {
	ci := &instrs[idx]
	switch ci.Location.Kind {
	case LocationRegister:
		size := ci.Location.Reg.Size
		seg := SegmentSpilling
		off := d.allocSpillSlot(seg, int64(size))
		ci.Location = LocationOfStackSlot(seg, size, size, off)
	case LocationRegisterPair:
		size := ci.Location.RegPair[0].Size
		seg := SegmentSpilling
		if ci.Decoding.DestType == TypeGCPointer {
			seg = SegmentGCSpilling
		}
		offLo := d.allocSpillSlot(seg, int64(size))
		offHi := d.allocSpillSlot(seg, int64(size))
		lo := StackSlot{Segment: seg, Size: size, Alignment: size, SegmentOffset: offLo}
		hi := StackSlot{Segment: seg, Size: size, Alignment: size, SegmentOffset: offHi}
		ci.Location = LocationOfStackSlotPair(lo, hi)
	}
}

func (d *RegAllocDriver) allocSpillSlot(seg StackSegmentKind, size int64) int64 {
	cur := d.spillNext[seg]
	off := roundUp(cur, size)
	d.spillNext[seg] = off + size
	return off
}

// commit records the final register this instruction's result resolved
// to as a live ActiveInterval, if it is still register-resident after
// steps 2-4 (spec.md §4.4 step 5).
func (d *RegAllocDriver) commit(instrs []CompilerInstruction, i int) {
	ci := &instrs[i]
	start, end := ci.LiveInterval.Start, ci.LiveInterval.End
	switch ci.Location.Kind {
	case LocationRegister:
		f := d.Files[ci.Location.Reg.Kind]
		f.Commit(i, ci.Location.Reg.Value.RealReg(), start, end)
	case LocationRegisterPair:
		f := d.Files[ci.Location.RegPair[0].Kind]
		f.Commit(i, ci.Location.RegPair[0].Value.RealReg(), start, end)
		f.Commit(i, ci.Location.RegPair[1].Value.RealReg(), start, end)
	}
}
