// Package regalloc implements the linear-scan register allocation
// primitives described in spec.md §4.4: virtual/physical register
// identities, per-kind bitset register files, and the per-instruction
// allocation procedure. The package is deliberately ignorant of the
// bytecode IR (spec.md's CompilerInstruction, Location, ...) so it can be
// reused unchanged by every ISA backend, mirroring how wazero's own
// backend/regalloc package knows nothing about wasm or any specific ISA.
package regalloc

import "fmt"

// RegKind is one of the four register kinds a RegisterFile may hold
// (spec.md §3 "RegisterFile"). A backend may alias several kinds to the
// same physical file (e.g. scalar and vector floats sharing the SIMD
// register file on a given ISA).
type RegKind uint8

const (
	RegKindInvalid RegKind = iota
	RegKindInteger
	RegKindFloat
	RegKindVectorFloat
	RegKindVectorInteger
	NumRegKind
)

func (k RegKind) String() string {
	switch k {
	case RegKindInteger:
		return "integer"
	case RegKindFloat:
		return "float"
	case RegKindVectorFloat:
		return "vfloat"
	case RegKindVectorInteger:
		return "vint"
	default:
		return "invalid"
	}
}

// RealReg identifies a physical register within one RegKind's numbering
// space. Register number 0 is reserved to mean "invalid" so the zero
// value of RealReg is never mistaken for a real allocation.
type RealReg uint8

const RealRegInvalid RealReg = 0

func (r RealReg) String() string {
	if r == RealRegInvalid {
		return "invalid"
	}
	return fmt.Sprintf("r%d", uint8(r))
}

// VReg is a virtual register: the value produced by one instruction,
// before (spec.md §3: "pending=true") or after (pinned to a specific
// physical register) allocation. It is encoded as a single word so it can
// be compared and hashed cheaply, following the same bit-packing idea as
// wazero's wazevo backend (VRegID in the low bits, RegKind and the pinned
// RealReg, if any, in the high bits), adapted to this spec's four register
// kinds instead of wazevo's three.
type VReg uint64

type VRegID uint32

const vRegIDInvalid VRegID = 1<<32 - 1

// VRegInvalid is the zero-information VReg, used as a sentinel.
var VRegInvalid = VReg(vRegIDInvalid)

// FromRealReg builds a VReg that is permanently bound to a physical
// register, used to represent ABI-pinned locations (spec.md §3
// "Register(pending=false)").
func FromRealReg(r RealReg, kind RegKind) VReg {
	return VReg(r).setRealReg(r).SetKind(kind)
}

func (v VReg) setRealReg(r RealReg) VReg {
	return VReg(r)<<40 | (v & 0xffff_00_ff_ffffffff)
}

// RealReg returns the physical register this VReg is bound to, or
// RealRegInvalid if it is not yet (or never) allocated to one.
func (v VReg) RealReg() RealReg { return RealReg(v >> 40) }

// WithRealReg returns a copy of v bound to the given physical register
// (spec.md §4.4 "rewritten to a concrete physical register").
func (v VReg) WithRealReg(r RealReg) VReg { return v.setRealReg(r) }

func (v VReg) IsRealReg() bool { return v.RealReg() != RealRegInvalid }

// Kind returns the register kind this VReg belongs to.
func (v VReg) Kind() RegKind { return RegKind(v >> 48) }

// SetKind returns a copy of v tagged with the given register kind.
func (v VReg) SetKind(k RegKind) VReg { return VReg(k)<<48 | (v & 0x0000_ffff_ffffffff) }

// ID returns the pure virtual-register identifier, independent of any
// RealReg/RegKind tagging.
func (v VReg) ID() VRegID { return VRegID(v & 0xffffffff) }

func (v VReg) Valid() bool { return v.ID() != vRegIDInvalid && v.Kind() != RegKindInvalid }

func (v VReg) String() string {
	if v.IsRealReg() {
		return v.RealReg().String()
	}
	return fmt.Sprintf("v%d", v.ID())
}

// NewVReg creates a fresh, unallocated virtual register of the given kind.
func NewVReg(id VRegID, kind RegKind) VReg {
	return VReg(id).SetKind(kind)
}
