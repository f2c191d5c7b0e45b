package regalloc

import (
	"fmt"
	"sort"
)

// ActiveInterval records that reg currently holds the live value defined
// by Instruction, valid over [Start, End] (spec.md §3 "RegisterFile").
type ActiveInterval struct {
	Instruction int
	Reg         RealReg
	Start, End  int
}

// RegisterFile is one allocatable-register file as described in spec.md
// §3 "RegisterFile" / §4.4. There is one RegisterFile per RegKind a
// backend chooses to keep distinct (a backend may alias kinds to the same
// physical file by constructing it once and registering it under more
// than one RegKind).
type RegisterFile struct {
	Kind RegKind

	// Allocatable is the ABI-declared allocatable register list, in
	// preference order: "the first in the ABI-declared allocatable list
	// wins" (spec.md §4.4 "Tie-breaking").
	Allocatable []RealReg

	// AllocatedRegisterSet holds registers currently owned by a live
	// interval (spec.md §3).
	AllocatedRegisterSet RegSet
	// ActiveRegisterSet holds registers used by the instruction currently
	// being processed; cleared between instructions (spec.md §3).
	ActiveRegisterSet RegSet
	// UsedRegisterSet is the union of every register ever allocated,
	// consumed after allocation to derive callee-save preservation
	// (spec.md §3, §4.4).
	UsedRegisterSet RegSet

	// Actives is kept sorted by ascending End (spec.md §3).
	Actives []ActiveInterval
}

// NewRegisterFile constructs an empty file for the given kind and
// allocatable register list.
func NewRegisterFile(kind RegKind, allocatable []RealReg) *RegisterFile {
	return &RegisterFile{Kind: kind, Allocatable: allocatable}
}

// Begin implements step 1 of spec.md §4.4's per-instruction procedure:
// expire every ActiveInterval whose End < index, or whose owning
// instruction no longer resolves to a register (stillRegister returns
// false — this happens when an earlier step in the same pass already
// spilled it), then clear ActiveRegisterSet.
func (f *RegisterFile) Begin(index int, stillRegister func(instr int) bool) {
	kept := f.Actives[:0]
	for _, ai := range f.Actives {
		if ai.End < index || !stillRegister(ai.Instruction) {
			f.AllocatedRegisterSet = f.AllocatedRegisterSet.Unset(ai.Reg)
			continue
		}
		kept = append(kept, ai)
	}
	f.Actives = kept
	f.ActiveRegisterSet = RegSet{}
}

// Occupant returns the ActiveInterval currently resident in r, if any.
func (f *RegisterFile) Occupant(r RealReg) (ActiveInterval, bool) {
	for _, ai := range f.Actives {
		if ai.Reg == r {
			return ai, true
		}
	}
	return ActiveInterval{}, false
}

// Evict removes r's current occupant (if any) from Actives and
// AllocatedRegisterSet, and reports which instruction it belonged to.
// Used both for spilling a specific-register occupant (spec.md §4.4 step
// 2) and for the greatest-End eviction in step 3.
func (f *RegisterFile) Evict(r RealReg) (evictedInstr int, ok bool) {
	for i, ai := range f.Actives {
		if ai.Reg == r {
			f.Actives = append(f.Actives[:i], f.Actives[i+1:]...)
			f.AllocatedRegisterSet = f.AllocatedRegisterSet.Unset(r)
			return ai.Instruction, true
		}
	}
	return -1, false
}

// MarkActive records r as used by the instruction currently being
// processed (spec.md §4.4 steps 2-3: "mark it active").
func (f *RegisterFile) MarkActive(r RealReg) {
	f.ActiveRegisterSet = f.ActiveRegisterSet.Set(r)
}

// Allocate implements the "any-register" half of step 3: scan the
// allocatable list for a register absent from both AllocatedRegisterSet
// and ActiveRegisterSet. If none is free, evict the ActiveInterval with
// the greatest End (standard linear-scan tie-breaking, spec.md §4.4) and
// return its former register plus the instruction that was spilled.
func (f *RegisterFile) Allocate() (reg RealReg, spilledInstr int, spilled bool) {
	for _, r := range f.Allocatable {
		if !f.AllocatedRegisterSet.Includes(r) && !f.ActiveRegisterSet.Includes(r) {
			return r, -1, false
		}
	}
	if len(f.Actives) == 0 {
		Raise("no allocatable %s register exists and nothing is evictable", f.Kind)
	}
	victim := f.Actives[len(f.Actives)-1] // sorted ascending End: last has the greatest End.
	for _, ai := range f.Actives {
		if ai.End > victim.End {
			victim = ai
		}
	}
	f.Evict(victim.Reg)
	return victim.Reg, victim.Instruction, true
}

// ApplyClobbers implements step 4: for each register in clobber, if it
// currently holds a live interval, either release it (if its use ends at
// or before index) or report it for spilling.
func (f *RegisterFile) ApplyClobbers(clobber RegSet, index int) (toSpill []int) {
	var kept []ActiveInterval
	for _, ai := range f.Actives {
		if clobber.Includes(ai.Reg) {
			f.AllocatedRegisterSet = f.AllocatedRegisterSet.Unset(ai.Reg)
			if ai.End > index {
				toSpill = append(toSpill, ai.Instruction)
			}
			continue
		}
		kept = append(kept, ai)
	}
	f.Actives = kept
	return toSpill
}

// End implements the first half of step 5: it clears ActiveRegisterSet.
// Recording the instruction's own register-resident value as a new
// ActiveInterval is done separately, by Commit.
func (f *RegisterFile) End() {
	f.ActiveRegisterSet = RegSet{}
}

// Commit records a new ActiveInterval for instr in reg, covering
// [start, end], inserted to keep Actives sorted by ascending End.
func (f *RegisterFile) Commit(instr int, reg RealReg, start, end int) {
	f.AllocatedRegisterSet = f.AllocatedRegisterSet.Set(reg)
	f.UsedRegisterSet = f.UsedRegisterSet.Set(reg)
	ai := ActiveInterval{Instruction: instr, Reg: reg, Start: start, End: end}
	i := sort.Search(len(f.Actives), func(i int) bool { return f.Actives[i].End >= end })
	f.Actives = append(f.Actives, ActiveInterval{})
	copy(f.Actives[i+1:], f.Actives[i:])
	f.Actives[i] = ai
}

// CallPreserved returns the intersection of UsedRegisterSet with the
// ABI's call-preserved list for this file (spec.md §4.4: "After
// allocation the per-function usedCallPreservedXxxRegisterSet is the
// intersection of usedRegisterSet ... with the ABI's
// callPreservedXxxRegisters list").
func (f *RegisterFile) CallPreserved(callPreserved []RealReg) RegSet {
	return f.UsedRegisterSet.Intersection(NewRegSet(callPreserved...))
}

// Raise is reassigned by the codegen package at init time so that
// internal-invariant-violation panics raised deep inside the allocator
// carry the same payload type as the rest of the pipeline (spec.md §7).
// It defaults to a plain panic so the package is self-contained for unit
// tests that do not import codegen.
var Raise = func(format string, args ...interface{}) {
	panic(&invariantViolation{fmt.Sprintf(format, args...)})
}

type invariantViolation struct{ msg string }

func (e *invariantViolation) Error() string { return "internal invariant violation: " + e.msg }
