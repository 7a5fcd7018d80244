package opdesc

import "testing"

func TestPackAndFields(t *testing.T) {
	v := Pack(0xF, Field{}, Field{}, Field{})
	if v&destMask != 0xF {
		t.Errorf("dest mask not packed: %#x", v)
	}
}

func TestFindOrAddUnifiesCompatibleSlots(t *testing.T) {
	p := New()
	mask := CareMask(true, true, false, false)
	desc1 := Pack(0xF, Field{Swizzle: [4]byte{0, 1, 2, 3}}, Field{}, Field{})

	i1, err := p.FindOrAdd(desc1, mask)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	i2, err := p.FindOrAdd(desc1, mask)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if i1 != i2 {
		t.Errorf("identical descriptors should unify into one slot: %d != %d", i1, i2)
	}
	if p.Len() != 1 {
		t.Errorf("expected 1 slot, got %d", p.Len())
	}
}

func TestFindOrAddSeparatesIncompatibleSlots(t *testing.T) {
	p := New()
	mask := CareMask(true, true, false, false)
	descA := Pack(0xF, Field{Swizzle: [4]byte{0, 1, 2, 3}}, Field{}, Field{})
	descB := Pack(0x7, Field{Swizzle: [4]byte{3, 2, 1, 0}}, Field{}, Field{})

	iA, _ := p.FindOrAdd(descA, mask)
	iB, _ := p.FindOrAdd(descB, mask)
	if iA == iB {
		t.Error("incompatible descriptors must not unify")
	}
	if p.Len() != 2 {
		t.Errorf("expected 2 slots, got %d", p.Len())
	}
}

func TestFindOrAddPartialMaskWidensKnownSlot(t *testing.T) {
	p := New()
	destOnly := CareMask(true, false, false, false)
	src1Only := CareMask(false, true, false, false)

	descDest := Pack(0xF, Field{}, Field{}, Field{})
	i1, _ := p.FindOrAdd(descDest, destOnly)

	descSrc := Pack(0x0, Field{Swizzle: [4]byte{1, 1, 1, 1}}, Field{}, Field{})
	i2, err := p.FindOrAdd(descSrc, src1Only)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if i1 != i2 {
		t.Errorf("disjoint-mask descriptors touching the same unknown bits should still unify into slot 0: got %d and %d", i1, i2)
	}
	if p.Len() != 1 {
		t.Errorf("expected 1 slot, got %d", p.Len())
	}
}

func TestFindOrAddPoolExhausted(t *testing.T) {
	p := New()
	const mask = uint32(0xFFFFFFFF)
	for i := 0; i < MaxSlots; i++ {
		if _, err := p.FindOrAdd(uint32(i), mask); err != nil {
			t.Fatalf("unexpected error filling pool at %d: %v", i, err)
		}
	}
	if _, err := p.FindOrAdd(uint32(MaxSlots), mask); err == nil {
		t.Fatal("expected pool-exhausted error")
	}
}

type fakeSwapper struct {
	rewrites [][2]int
}

func (f *fakeSwapper) RewriteOPDESCIndex(from, to int) {
	f.rewrites = append(f.rewrites, [2]int{from, to})
}

func TestReserveMADSlotBelowLimitIsNoop(t *testing.T) {
	p := New()
	mask := CareMask(true, false, false, false)
	idx, _ := p.FindOrAdd(Pack(0x1, Field{}, Field{}, Field{}), mask)
	sw := &fakeSwapper{}
	got, err := p.ReserveMADSlot(idx, sw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != idx {
		t.Errorf("expected unchanged index %d, got %d", idx, got)
	}
	if len(sw.rewrites) != 0 {
		t.Errorf("expected no rewrites, got %v", sw.rewrites)
	}
	if !p.IsMAD(idx) {
		t.Error("expected slot to be marked MAD")
	}
}

func TestReserveMADSlotAboveLimitFailsWhenLowSlotsReserved(t *testing.T) {
	p := New()
	const mask = uint32(0xFFFFFFFF)

	// Fill slots 0..31 with distinct descriptors and mark them all MAD-reserved already.
	for i := 0; i < MadIndexLimit; i++ {
		idx, _ := p.FindOrAdd(uint32(i), mask)
		p.MarkMAD(idx)
	}
	// One more slot above the limit that a MAD instruction now needs.
	highIdx, _ := p.FindOrAdd(uint32(MadIndexLimit), mask)
	if highIdx < MadIndexLimit {
		t.Fatalf("test setup error: expected highIdx >= %d, got %d", MadIndexLimit, highIdx)
	}

	sw := &fakeSwapper{}
	_, err := p.ReserveMADSlot(highIdx, sw)
	if err == nil {
		t.Fatal("expected reservation to fail: every low slot is already MAD-reserved")
	}
}

func TestReserveMADSlotSwapsIntoFreeLowSlot(t *testing.T) {
	p := New()
	const mask = uint32(0xFFFFFFFF)

	for i := 0; i < MadIndexLimit; i++ {
		idx, _ := p.FindOrAdd(uint32(i), mask)
		if i != 5 { // leave slot 5 unmarked
			p.MarkMAD(idx)
		}
	}
	highIdx, _ := p.FindOrAdd(uint32(MadIndexLimit), mask)

	highVal := p.Value(highIdx)
	sw := &fakeSwapper{}
	got, err := p.ReserveMADSlot(highIdx, sw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 5 {
		t.Errorf("expected swap target slot 5, got %d", got)
	}
	if p.Value(5) != highVal {
		t.Errorf("swapped slot does not carry the original value: got %#x, want %#x", p.Value(5), highVal)
	}
	if len(sw.rewrites) != 1 {
		t.Errorf("expected 1 rewrite call (one exchange covers both directions), got %d", len(sw.rewrites))
	}
	if !p.IsMAD(5) {
		t.Error("expected target slot to be marked MAD")
	}
}
