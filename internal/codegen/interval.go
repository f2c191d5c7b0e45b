package codegen

// LiveInterval is the smallest index range covering a value's definition
// and all its uses (spec.md §3 "LiveInterval", §4.2).
type LiveInterval struct {
	Start, End           int
	FirstUsage, LastUsage int
}

// newLiveInterval returns the one-point range [i, i] with no usages yet
// recorded (spec.md §4.2 step 1).
func newLiveInterval(i int) LiveInterval {
	return LiveInterval{Start: i, End: i, FirstUsage: maxInt, LastUsage: 0}
}

const maxInt = int(^uint(0) >> 1)

// HasUsage reports whether the value has at least one consumer. An
// interval with FirstUsage > LastUsage has none (spec.md §4.2 invariant).
func (l LiveInterval) HasUsage() bool { return l.FirstUsage <= l.LastUsage }

// widen applies one use at index i to the interval of the value it
// consumes (spec.md §4.2 step 2).
func (l *LiveInterval) widen(i int) {
	if i < l.Start {
		l.Start = i
	}
	if i > l.End {
		l.End = i
	}
	if i < l.FirstUsage {
		l.FirstUsage = i
	}
	if i > l.LastUsage {
		l.LastUsage = i
	}
}

// BuildLiveIntervals performs the single forward pass of spec.md §4.2
// over a decoded, already label-discovered instruction stream. Operand
// slots whose Type.IsInstructionBearing() reference a prior definition
// index; every other slot (inline immediates, Void, Info) contributes no
// liveness information.
func BuildLiveIntervals(instrs []DecodedInstruction) []LiveInterval {
	out := make([]LiveInterval, len(instrs))
	for i := range instrs {
		out[i] = newLiveInterval(i)
	}
	for i, instr := range instrs {
		if instr.IsConstant {
			continue
		}
		for _, slot := range [2]OperandSlot{instr.Arg0, instr.Arg1} {
			if slot.Type.IsInstructionBearing() {
				d := slot.Index()
				out[d].widen(i)
			}
		}
	}
	return out
}
