package codegen

import "fmt"

// RelocationKind enumerates the encodings a pending label reference may
// need patched into it once the label's final address is known (spec.md
// §4.6). The RISC-V-specific variants exist because that ISA splits a
// 32-bit PC-relative displacement across two instructions (AUIPC +
// a PC-relative-low immediate) rather than encoding it in one place the
// way amd64/arm64 do.
type RelocationKind uint8

const (
	RelocationInvalid RelocationKind = iota
	// RelocationRelative32 patches a 32-bit PC-relative displacement
	// (amd64 Jcc/CALL/JMP rel32, arm64 adrp+add pairs already resolved).
	RelocationRelative32
	// RelocationAbsolute32 patches a 32-bit absolute address, only valid
	// for targets/relocation models where addresses are known to fit.
	RelocationAbsolute32
	// RelocationAbsolute64 patches a full 64-bit absolute address.
	RelocationAbsolute64

	// RelocationJAL patches RISC-V's 20-bit J-immediate (JAL).
	RelocationJAL
	// RelocationBranch patches RISC-V's 12-bit B-immediate (BEQ/BNE/...).
	RelocationBranch
	// RelocationPCRelativeHi20 patches the upper 20 bits of a RISC-V
	// PC-relative displacement into an AUIPC.
	RelocationPCRelativeHi20
	// RelocationPCRelativeLo12I patches the low 12 bits of a RISC-V
	// PC-relative displacement into an I-type instruction's immediate.
	RelocationPCRelativeLo12I
	// RelocationPCRelativeLo12S patches the low 12 bits of a RISC-V
	// PC-relative displacement into an S-type instruction's split
	// immediate.
	RelocationPCRelativeLo12S
	// RelocationAbsoluteHi20 patches the upper 20 bits of a RISC-V
	// absolute address into a LUI.
	RelocationAbsoluteHi20
	// RelocationAbsoluteLo12I patches the low 12 bits of a RISC-V
	// absolute address into an I-type instruction's immediate.
	RelocationAbsoluteLo12I
	// RelocationAbsoluteLo12S patches the low 12 bits of a RISC-V
	// absolute address into an S-type instruction's split immediate.
	RelocationAbsoluteLo12S
	// RelocationRelax names a RISC-V linker-relaxable relocation pair.
	// No emitter in this module requests it, and the RISC-V Patcher
	// accepts it without changing any bytes.
	RelocationRelax
	// RelocationCallPLT names a RISC-V call-through-PLT pair (AUIPC+JALR).
	// No emitter in this module requests it, and the RISC-V Patcher
	// accepts it without changing any bytes.
	RelocationCallPLT
)

func (k RelocationKind) String() string {
	names := [...]string{
		"invalid", "rel32", "abs32", "abs64",
		"jal", "branch", "pcrel.hi20", "pcrel.lo12i", "pcrel.lo12s",
		"abs.hi20", "abs.lo12i", "abs.lo12s", "relax", "call.plt",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return fmt.Sprintf("relocationKind(%d)", uint8(k))
}

// Label is one label-discovery-stage entry: a symbolic program point that
// may be referenced before its final section offset is known (spec.md §2
// stage 2, §4.6).
type Label struct {
	ID     LabelID
	Bound  bool
	Offset int64 // byte offset within Section, valid once Bound.
}

// PendingLabelRelocation is one not-yet-patched reference to a label,
// recorded at emission time and resolved once every label in the function
// has been bound (spec.md §4.6 "Label patching").
type PendingLabelRelocation struct {
	Label  LabelID
	Kind   RelocationKind
	Offset int64 // byte offset, within the section, of the field to patch.
	Addend int64
}

// LabelTable tracks label bindings and pending relocations for one
// function's emitted code. Bindings and patch requests may interleave in
// any order: a branch can reference a label bound earlier or later in the
// instruction stream (spec.md §4.6 "a label may be referenced before it is
// bound").
type LabelTable struct {
	labels      []Label
	relocations []PendingLabelRelocation
}

// NewLabelTable allocates a table sized for n labels (spec.md §2 stage 2
// output: one LabelID per label-discovery hit).
func NewLabelTable(n int) *LabelTable {
	labels := make([]Label, n)
	for i := range labels {
		labels[i] = Label{ID: LabelID(i)}
	}
	return &LabelTable{labels: labels}
}

// Bind records the final section offset of a label. A label may only be
// bound once (spec.md §4.6 "every Label constant is bound exactly once").
func (t *LabelTable) Bind(id LabelID, offset int64) {
	if id < 0 || int(id) >= len(t.labels) {
		Raise("label.bind: id %d out of range", id)
	}
	if t.labels[id].Bound {
		Raise("label.bind: label %d already bound", id)
	}
	t.labels[id] = Label{ID: id, Bound: true, Offset: offset}
}

// RequestPatch records that the bytes at offset need to be rewritten once
// id is bound, using the given relocation kind and addend.
func (t *LabelTable) RequestPatch(id LabelID, kind RelocationKind, offset, addend int64) {
	t.relocations = append(t.relocations, PendingLabelRelocation{Label: id, Kind: kind, Offset: offset, Addend: addend})
}

// Patcher is implemented by the section byte buffer the per-ISA emitter
// writes to; Patch rewrites the relocation-kind-specific field at offset
// in place (spec.md §4.6, §4.7 per-ISA emit).
type Patcher interface {
	Patch(offset int64, kind RelocationKind, value int64) error
}

// ResolveAll patches every pending relocation against its now-bound label,
// in the order the relocations were requested, through the single Patcher
// p (the compiler passes one over the function's code buffer). Label
// references are only ever recorded in that code: the constraint engine
// gives a Label constant an immediate location and never writes one into
// the read-only data or constant section, so no other section holds a
// label reference to patch.
func (t *LabelTable) ResolveAll(p Patcher) error {
	for _, r := range t.relocations {
		if int(r.Label) < 0 || int(r.Label) >= len(t.labels) {
			Raise("label.resolve: relocation references out-of-range label %d", r.Label)
		}
		lbl := t.labels[r.Label]
		if !lbl.Bound {
			Raise("label.resolve: label %d referenced but never bound", r.Label)
		}
		value := lbl.Offset - r.Offset + r.Addend
		if err := p.Patch(r.Offset, r.Kind, value); err != nil {
			return err
		}
	}
	return nil
}

// Offset returns the bound offset of id, or (0, false) if unbound.
func (t *LabelTable) Offset(id LabelID) (int64, bool) {
	if id < 0 || int(id) >= len(t.labels) {
		return 0, false
	}
	l := t.labels[id]
	return l.Offset, l.Bound
}
