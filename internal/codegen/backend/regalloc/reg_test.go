package regalloc

import "testing"

func TestVRegRoundTrip(t *testing.T) {
	v := NewVReg(42, RegKindFloat)
	if v.ID() != 42 || v.Kind() != RegKindFloat || v.IsRealReg() {
		t.Fatalf("unexpected vreg state: %+v", v)
	}
	bound := v.WithRealReg(7)
	if !bound.IsRealReg() || bound.RealReg() != 7 || bound.ID() != 42 || bound.Kind() != RegKindFloat {
		t.Fatalf("binding a real reg must preserve ID and Kind: %+v", bound)
	}
}

func TestFromRealReg(t *testing.T) {
	r := FromRealReg(5, RegKindInteger)
	if !r.IsRealReg() || r.RealReg() != 5 || r.Kind() != RegKindInteger {
		t.Fatalf("unexpected: %+v", r)
	}
	if got := r.String(); got != "r5" {
		t.Fatalf("got %q, want r5", got)
	}
}

func TestVRegInvalid(t *testing.T) {
	if VRegInvalid.Valid() {
		t.Fatalf("VRegInvalid must not be Valid")
	}
}
