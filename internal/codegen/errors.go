package codegen

import "fmt"

// MalformedInstructionError is raised by the decoder (spec.md §4.1) when an
// operand slot references an instruction index outside [0, currentIndex).
type MalformedInstructionError struct {
	Index  int
	Reason string
}

func (e *MalformedInstructionError) Error() string {
	return fmt.Sprintf("malformed instruction at index %d: %s", e.Index, e.Reason)
}

// UnsupportedOperandError is raised by the location-constraint engine
// (spec.md §4.3) when it encounters an opcode it has no constraint rule
// for.
type UnsupportedOperandError struct {
	Index  int
	Opcode Opcode
}

func (e *UnsupportedOperandError) Error() string {
	return fmt.Sprintf("unsupported operand at index %d: opcode %s", e.Index, e.Opcode)
}

// RelocationOverflowError is raised by label patching (spec.md §4.6) when a
// computed displacement does not fit the relocation's width.
type RelocationOverflowError struct {
	Offset int64
	Kind   RelocationKind
}

func (e *RelocationOverflowError) Error() string {
	return fmt.Sprintf("relocation overflow: displacement %d does not fit %s", e.Offset, e.Kind)
}

// InternalInvariantViolation is the payload of a panic raised when the
// allocator or emitter hits a condition the spec (§7) calls "a programmer
// bug, not an input error": no allocatable register exists and nothing is
// evictable, or the emitter's move-lowering dispatch table has no entry for
// an operand-location combination. It is never constructed as a plain
// error value; callers that need to convert it to one call
// RecoverInternalInvariantViolation.
type InternalInvariantViolation struct {
	Msg string
}

func (e *InternalInvariantViolation) Error() string {
	return "internal invariant violation: " + e.Msg
}

// Raise panics with an *InternalInvariantViolation carrying the formatted
// message. It is the only sanctioned way to signal the InternalInvariantViolation
// class of error in this package (spec.md §7).
func Raise(format string, args ...interface{}) {
	panic(&InternalInvariantViolation{Msg: fmt.Sprintf(format, args...)})
}

// RecoverInternalInvariantViolation is deferred at the top of
// Compiler.CompileFunction, once per function (spec.md §7: "a single failure does not
// halt the module walk"). It turns a panicking InternalInvariantViolation
// into a returned error without affecting any other panic value.
func RecoverInternalInvariantViolation(errp *error) {
	if r := recover(); r != nil {
		if iv, ok := r.(*InternalInvariantViolation); ok {
			*errp = iv
			return
		}
		panic(r)
	}
}
