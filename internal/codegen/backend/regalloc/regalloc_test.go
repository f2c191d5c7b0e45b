package regalloc

import "testing"

func alwaysRegister(int) bool { return true }

func TestRegisterFile_AllocateReusesFreeRegister(t *testing.T) {
	f := NewRegisterFile(RegKindInteger, []RealReg{1, 2, 3})
	f.Begin(0, alwaysRegister)
	r, spilledInstr, spilled := f.Allocate()
	if r != 1 || spilled || spilledInstr != -1 {
		t.Fatalf("got (%v, %v, %v), want (1, -1, false)", r, spilledInstr, spilled)
	}
	f.MarkActive(r)
	f.Commit(0, r, 0, 5)
	f.End()

	f.Begin(1, alwaysRegister)
	r2, _, spilled := f.Allocate()
	if r2 != 2 || spilled {
		t.Fatalf("got (%v, %v), want (2, false)", r2, spilled)
	}
}

func TestRegisterFile_AllocateEvictsGreatestEnd(t *testing.T) {
	f := NewRegisterFile(RegKindInteger, []RealReg{1, 2})
	f.Begin(0, alwaysRegister)
	f.Commit(0, 1, 0, 10)
	f.Commit(1, 2, 0, 20)
	f.End()

	f.Begin(1, alwaysRegister)
	_, spilledInstr, spilled := f.Allocate()
	if !spilled || spilledInstr != 1 {
		t.Fatalf("expected eviction of instruction with greatest End (1), got instr=%d spilled=%v", spilledInstr, spilled)
	}
}

func TestRegisterFile_BeginExpiresDeadIntervals(t *testing.T) {
	f := NewRegisterFile(RegKindInteger, []RealReg{1})
	f.Begin(0, alwaysRegister)
	f.Commit(0, 1, 0, 3)
	f.End()

	f.Begin(4, alwaysRegister) // End (3) < index (4): expires.
	if f.AllocatedRegisterSet.Includes(1) {
		t.Fatalf("expected register 1 to be expired")
	}
}

func TestRegisterFile_BeginExpiresWhenSpilledElsewhere(t *testing.T) {
	f := NewRegisterFile(RegKindInteger, []RealReg{1})
	f.Begin(0, alwaysRegister)
	f.Commit(0, 1, 0, 10)
	f.End()

	stillReg := func(instr int) bool { return false } // simulate a prior spill of instruction 0.
	f.Begin(1, stillReg)
	if f.AllocatedRegisterSet.Includes(1) {
		t.Fatalf("expected register 1 to be released once its instruction is no longer register-resident")
	}
}

func TestRegisterFile_ApplyClobbersSplitsReleaseAndSpill(t *testing.T) {
	f := NewRegisterFile(RegKindInteger, []RealReg{1, 2})
	f.Begin(0, alwaysRegister)
	f.Commit(0, 1, 0, 0) // dies at the clobbering instruction itself.
	f.Commit(1, 2, 0, 5) // lives past it.
	f.End()

	f.Begin(0, alwaysRegister)
	toSpill := f.ApplyClobbers(NewRegSet(1, 2), 0)
	if len(toSpill) != 1 || toSpill[0] != 1 {
		t.Fatalf("expected only instruction 1 (End > index) to be spilled, got %v", toSpill)
	}
	if f.AllocatedRegisterSet.Includes(1) || f.AllocatedRegisterSet.Includes(2) {
		t.Fatalf("expected both clobbered registers to be released from AllocatedRegisterSet")
	}
}

func TestRegisterFile_EvictAndOccupant(t *testing.T) {
	f := NewRegisterFile(RegKindInteger, []RealReg{1})
	f.Begin(0, alwaysRegister)
	f.Commit(5, 1, 2, 9)
	f.End()

	ai, ok := f.Occupant(1)
	if !ok || ai.Instruction != 5 {
		t.Fatalf("expected occupant instruction 5, got %+v ok=%v", ai, ok)
	}
	instr, ok := f.Evict(1)
	if !ok || instr != 5 {
		t.Fatalf("expected to evict instruction 5, got %d ok=%v", instr, ok)
	}
	if f.AllocatedRegisterSet.Includes(1) {
		t.Fatalf("expected register freed after evict")
	}
}

func TestRegisterFile_CallPreserved(t *testing.T) {
	f := NewRegisterFile(RegKindInteger, []RealReg{1, 2, 3})
	f.Begin(0, alwaysRegister)
	f.Commit(0, 1, 0, 1)
	f.Commit(1, 3, 0, 1)
	f.End()

	cp := f.CallPreserved([]RealReg{2, 3})
	if cp.Includes(1) || !cp.Includes(3) || cp.Includes(2) {
		t.Fatalf("expected call-preserved intersection {3}, got %v", cp)
	}
}
