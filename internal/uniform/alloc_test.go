package uniform

import "testing"

func TestAllocGlobalBumpsUp(t *testing.T) {
	a := newSubAllocator(0x20, 96)
	pos, ok := a.AllocGlobal(4)
	if !ok || pos != 0x20 {
		t.Fatalf("got pos=%#x ok=%v, want 0x20, true", pos, ok)
	}
	pos2, ok := a.AllocGlobal(2)
	if !ok || pos2 != 0x24 {
		t.Fatalf("got pos=%#x ok=%v, want 0x24, true", pos2, ok)
	}
}

func TestAllocLocalBumpsDown(t *testing.T) {
	a := newSubAllocator(0x20, 96)
	pos, ok := a.AllocLocal(1)
	if !ok || pos != 0x20+96-1 {
		t.Fatalf("got pos=%#x ok=%v", pos, ok)
	}
	pos2, ok := a.AllocLocal(2)
	if !ok || pos2 != pos-2 {
		t.Fatalf("got pos=%#x ok=%v, want %#x", pos2, ok, pos-2)
	}
}

func TestAllocGlobalCannotCrossLocalBound(t *testing.T) {
	a := newSubAllocator(0x20, 4)
	if _, ok := a.AllocLocal(3); !ok {
		t.Fatal("expected local alloc to succeed")
	}
	// Only 1 register remains free (0x20); a 2-register global alloc must fail.
	if _, ok := a.AllocGlobal(2); ok {
		t.Fatal("expected global alloc to fail once it would cross the local bound")
	}
	if _, ok := a.AllocGlobal(1); !ok {
		t.Fatal("expected a 1-register global alloc to still fit")
	}
}

func TestAllocLocalCannotCrossGlobalBound(t *testing.T) {
	a := newSubAllocator(0x20, 4)
	if _, ok := a.AllocGlobal(3); !ok {
		t.Fatal("expected global alloc to succeed")
	}
	if _, ok := a.AllocLocal(2); ok {
		t.Fatal("expected local alloc to fail once it would cross the global bound")
	}
}

func TestClearLocalResetsLowWaterMark(t *testing.T) {
	a := newSubAllocator(0x20, 4)
	a.AllocLocal(2)
	a.ClearLocal()
	pos, ok := a.AllocLocal(4)
	if !ok || pos != 0x20 {
		t.Fatalf("got pos=%#x ok=%v after ClearLocal, want full range reusable", pos, ok)
	}
}

func TestClearLocalDoesNotResetGlobal(t *testing.T) {
	a := newSubAllocator(0x20, 4)
	a.AllocGlobal(2)
	a.ClearLocal()
	// globals persist: a third global register must continue from where it left off
	pos, ok := a.AllocGlobal(1)
	if !ok || pos != 0x22 {
		t.Fatalf("got pos=%#x ok=%v, want 0x22, true", pos, ok)
	}
}

func TestBundleSub(t *testing.T) {
	b := newDefaultBundle()
	if b.Sub(FVec) != b.FVec || b.Sub(IVec) != b.IVec || b.Sub(Bool) != b.Bool {
		t.Error("Sub did not return the matching class allocator")
	}
}

func TestSetGeometryFVecStart(t *testing.T) {
	allocs := New()
	allocs.SetGeometryFVecStart(0x50)
	pos, ok := allocs.Geometry.FVec.AllocGlobal(1)
	if !ok || pos != 0x50 {
		t.Fatalf("got pos=%#x ok=%v, want 0x50, true", pos, ok)
	}
	// Default bundle's FVec range is untouched.
	dpos, ok := allocs.Default.FVec.AllocGlobal(1)
	if !ok || dpos != 0x20 {
		t.Fatalf("default bundle affected: got pos=%#x ok=%v", dpos, ok)
	}
}
