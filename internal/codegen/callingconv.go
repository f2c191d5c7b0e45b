package codegen

import "github.com/sdvm-project/sdvmc/internal/codegen/backend"

// CallingConventionState tracks one in-progress argument list — either
// the current function's incoming parameters or one outgoing call under
// construction (spec.md §4.3: "Two independent states run concurrently:
// one for the current function's incoming parameters ... and one for an
// outgoing call under construction"). BeginArguments/BeginCall each reset
// a fresh instance.
type CallingConventionState struct {
	usedInteger     int
	usedFloat       int
	nextStackOffset int64
}

// Reset returns the state to its just-constructed shape (spec.md §4.3).
func (s *CallingConventionState) Reset() { *s = CallingConventionState{} }

func roundUp(v, align int64) int64 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) / align * align
}

// assignInteger consumes n consecutive integer argument registers if that
// many remain, else falls back to a stackSize-byte stack slot aligned to
// stackAlign.
func (s *CallingConventionState) assignInteger(abi *backend.ABI, n int, stackSize, stackAlign int64) (regIdx, count int, stackOffset int64, useStack bool) {
	if s.usedInteger+n <= len(abi.IntegerParamRegs) {
		idx := s.usedInteger
		s.usedInteger += n
		return idx, n, 0, false
	}
	off := roundUp(s.nextStackOffset, stackAlign)
	s.nextStackOffset = off + stackSize
	return 0, 0, off, true
}

func (s *CallingConventionState) assignFloat(abi *backend.ABI, stackSize, stackAlign int64) (regIdx int, useStack bool, stackOffset int64) {
	if s.usedFloat < len(abi.FloatParamRegs) {
		idx := s.usedFloat
		s.usedFloat++
		return idx, false, 0
	}
	off := roundUp(s.nextStackOffset, stackAlign)
	s.nextStackOffset = off + stackSize
	return 0, true, off
}
