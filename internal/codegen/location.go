package codegen

import (
	"fmt"

	"github.com/sdvm-project/sdvmc/internal/codegen/backend/regalloc"
)

// LocationKind discriminates the Location sum type (spec.md §3
// "Location"). Go has no native tagged union, so — following the design
// note in spec.md §9 ("Sum types ... are expressed as tagged variants
// with exhaustive pattern matching at every consumer") — Location is one
// struct with a Kind tag and only the fields relevant to that Kind
// populated, mirroring the source's own overloaded-union encoding while
// making every consumer switch on Kind explicitly instead of trusting
// whichever union member happens to be non-zero.
type LocationKind uint8

const (
	LocationNull LocationKind = iota
	LocationImmediateS32
	LocationImmediateU32
	LocationImmediateS64
	LocationImmediateU64
	LocationImmediateF32
	LocationImmediateF64
	LocationImmediateLabel
	LocationConstantSection
	LocationRegister
	LocationRegisterPair
	LocationStack
	LocationStackPair
	LocationStackAddress
	LocationLocalSymbolValue
	LocationGlobalSymbolValue
)

func (k LocationKind) String() string {
	names := [...]string{
		"null", "imm.s32", "imm.u32", "imm.s64", "imm.u64", "imm.f32", "imm.f64",
		"imm.label", "const.section", "register", "register.pair", "stack", "stack.pair",
		"stack.address", "local.symbol", "global.symbol",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return fmt.Sprintf("locationKind(%d)", uint8(k))
}

// RegisterLocation is the payload of LocationRegister/LocationRegisterPair
// (spec.md §3 "Register(kind, size, value, pending, destroyed)").
type RegisterLocation struct {
	Kind regalloc.RegKind
	Size int32 // bytes
	// Value is the virtual register. Pending==false means Value is bound
	// to a specific RealReg already (an ABI-pinned or op-pinned location);
	// Pending==true means Value is still a free-floating VReg awaiting
	// allocation.
	Value regalloc.VReg
	// Pending reports whether this location accepts "any allocatable
	// register of this kind/size" (true) or names one specific physical
	// register (false).
	Pending bool
	// Destroyed reports whether the operation destroys the source value
	// in place (so the allocator must not reuse the register for a value
	// still live afterwards without spilling it first).
	Destroyed bool
}

// StackSlot is the payload of LocationStack/LocationStackPair (spec.md §3
// "Stack(slot)").
type StackSlot struct {
	Segment              StackSegmentKind
	Size                 int32
	Alignment            int32
	SegmentOffset        int64
	FramePointerRegister regalloc.RealReg
	FramePointerOffset   int64
	Valid                bool
}

// SymbolRef names a symbol the object-file writer will resolve (spec.md
// §3 "LocalSymbolValue | GlobalSymbolValue").
type SymbolRef struct {
	Name string
}

// Location is the sum type of spec.md §3. The zero value is LocationNull.
type Location struct {
	Kind LocationKind

	ImmS64   int64
	ImmU64   uint64
	ImmF32   float32
	ImmF64   float64
	IsSigned bool

	LabelID LabelID

	ConstantOffset int64

	Reg     RegisterLocation
	RegPair [2]RegisterLocation

	Stack     StackSlot
	StackPair [2]StackSlot

	Symbol       SymbolRef
	SymbolOffset int64
}

// IsRegister reports whether the location occupies one or two registers.
func (l Location) IsRegister() bool {
	return l.Kind == LocationRegister || l.Kind == LocationRegisterPair
}

// IsStack reports whether the location occupies one or two stack slots.
func (l Location) IsStack() bool {
	return l.Kind == LocationStack || l.Kind == LocationStackPair
}

// IsImmediate reports whether the location is a compile-time-known
// constant embeddable directly in an instruction (as opposed to
// ConstantSection, which is a read-only data reference).
func (l Location) IsImmediate() bool {
	switch l.Kind {
	case LocationImmediateS32, LocationImmediateU32, LocationImmediateS64, LocationImmediateU64,
		LocationImmediateF32, LocationImmediateF64, LocationImmediateLabel:
		return true
	default:
		return false
	}
}

// LocationOfNull builds the Null location.
func LocationOfNull() Location { return Location{Kind: LocationNull} }

// LocationOfRegister builds a pending (any-register) location of the
// given kind/size (spec.md §4.3 "Ordinary ops").
func LocationOfRegister(kind regalloc.RegKind, size int32, v regalloc.VReg) Location {
	return Location{Kind: LocationRegister, Reg: RegisterLocation{Kind: kind, Size: size, Value: v, Pending: true}}
}

// LocationOfPinnedRegister builds a location naming one specific physical
// register (spec.md §3 invariant 1).
func LocationOfPinnedRegister(kind regalloc.RegKind, size int32, r regalloc.RealReg) Location {
	return Location{
		Kind: LocationRegister,
		Reg:  RegisterLocation{Kind: kind, Size: size, Value: regalloc.FromRealReg(r, kind), Pending: false},
	}
}

// LocationOfRegisterPair builds a two-register location (spec.md §3
// "RegisterPair").
func LocationOfRegisterPair(kind regalloc.RegKind, size int32, lo, hi regalloc.VReg) Location {
	return Location{
		Kind: LocationRegisterPair,
		RegPair: [2]RegisterLocation{
			{Kind: kind, Size: size, Value: lo, Pending: true},
			{Kind: kind, Size: size, Value: hi, Pending: true},
		},
	}
}

func LocationOfImmediateS32(v int32) Location {
	return Location{Kind: LocationImmediateS32, ImmS64: int64(v), IsSigned: true}
}
func LocationOfImmediateU32(v uint32) Location {
	return Location{Kind: LocationImmediateU32, ImmU64: uint64(v)}
}

// LocationOfImmediateS64 preserves the full 64-bit payload. This is
// spec.md §9's first documented source divergence: the original
// sdvm_compilerLocation_immediateS64 silently truncated to a 32-bit
// immediate variant; this reimplementation never does.
func LocationOfImmediateS64(v int64) Location {
	return Location{Kind: LocationImmediateS64, ImmS64: v, IsSigned: true}
}

// LocationOfImmediateU64 preserves the full 64-bit payload (spec.md §9).
func LocationOfImmediateU64(v uint64) Location {
	return Location{Kind: LocationImmediateU64, ImmU64: v}
}

func LocationOfImmediateF32(v float32) Location {
	return Location{Kind: LocationImmediateF32, ImmF32: v}
}
func LocationOfImmediateF64(v float64) Location {
	return Location{Kind: LocationImmediateF64, ImmF64: v}
}
func LocationOfImmediateLabel(id LabelID) Location {
	return Location{Kind: LocationImmediateLabel, LabelID: id}
}
func LocationOfConstantSection(offset int64) Location {
	return Location{Kind: LocationConstantSection, ConstantOffset: offset}
}
func LocationOfLocalSymbol(name string, offset int64) Location {
	return Location{Kind: LocationLocalSymbolValue, Symbol: SymbolRef{Name: name}, SymbolOffset: offset}
}
func LocationOfGlobalSymbol(name string, offset int64) Location {
	return Location{Kind: LocationGlobalSymbolValue, Symbol: SymbolRef{Name: name}, SymbolOffset: offset}
}
