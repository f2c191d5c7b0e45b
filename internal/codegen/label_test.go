package codegen

import "testing"

type fakePatcher struct {
	patches map[int64]int64
}

func (p *fakePatcher) Patch(offset int64, kind RelocationKind, value int64) error {
	if p.patches == nil {
		p.patches = map[int64]int64{}
	}
	p.patches[offset] = value
	return nil
}

func TestLabelTableBindBeforeReference(t *testing.T) {
	lt := NewLabelTable(1)
	lt.Bind(0, 100)
	lt.RequestPatch(0, RelocationRelative32, 40, 0)
	p := &fakePatcher{}
	if err := lt.ResolveAll(p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := p.patches[40]; got != 60 {
		t.Fatalf("got %d, want 60 (100-40)", got)
	}
}

func TestLabelTableReferenceBeforeBind(t *testing.T) {
	lt := NewLabelTable(1)
	lt.RequestPatch(0, RelocationRelative32, 10, 0)
	lt.Bind(0, 50)
	p := &fakePatcher{}
	if err := lt.ResolveAll(p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := p.patches[10]; got != 40 {
		t.Fatalf("got %d, want 40 (50-10)", got)
	}
}

func TestLabelTableDoubleBindPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic on double-bind")
		}
	}()
	lt := NewLabelTable(1)
	lt.Bind(0, 1)
	lt.Bind(0, 2)
}

func TestLabelTableUnboundReferencePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic resolving an unbound label")
		}
	}()
	lt := NewLabelTable(1)
	lt.RequestPatch(0, RelocationRelative32, 0, 0)
	_ = lt.ResolveAll(&fakePatcher{})
}

func TestLabelTableOffset(t *testing.T) {
	lt := NewLabelTable(2)
	lt.Bind(1, 77)
	if off, bound := lt.Offset(1); !bound || off != 77 {
		t.Fatalf("got (%d, %v), want (77, true)", off, bound)
	}
	if _, bound := lt.Offset(0); bound {
		t.Fatalf("label 0 should be unbound")
	}
}
