package encode

import (
	"testing"

	"github.com/go-maestro/vshasm/internal/isa"
	"github.com/go-maestro/vshasm/internal/operand"
)

func reg(t *testing.T, letter byte, idx int) operand.Reg {
	t.Helper()
	r, err := operand.NewBareReg(letter, idx)
	if err != nil {
		t.Fatalf("NewBareReg(%c, %d): %v", letter, idx, err)
	}
	return r
}

func opFor(t *testing.T, name string) isa.Op {
	t.Helper()
	op, ok := isa.Lookup(name)
	if !ok {
		t.Fatalf("unknown mnemonic %q", name)
	}
	return op
}

func TestEncodeF1BasicFields(t *testing.T) {
	u := NewUnit()
	dst := reg(t, 'r', 0)
	src1 := reg(t, 'r', 1)
	src2 := reg(t, 'r', 2)
	pos, err := u.EncodeF1(opFor(t, "add"), dst, src1, src2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	word := u.Code.At(pos)
	if opc := word >> 26; opc != isa.OpADD {
		t.Errorf("got opcode %#x, want %#x", opc, isa.OpADD)
	}
	if dstField := (word >> 21) & 0x1F; dstField != uint32(dst.Flat) {
		t.Errorf("got dst field %#x, want %#x", dstField, dst.Flat)
	}
}

func TestEncodeF1RejectsTwoUniforms(t *testing.T) {
	u := NewUnit()
	dst := reg(t, 'r', 0)
	c1 := reg(t, 'c', 1)
	c2 := reg(t, 'c', 2)
	if _, err := u.EncodeF1(opFor(t, "add"), dst, c1, c2); err == nil {
		t.Fatal("expected error: two uniform source operands")
	}
}

func TestEncodeF1InvertsWhenSrc2IsUniform(t *testing.T) {
	u := NewUnit()
	dst := reg(t, 'r', 0)
	r1 := reg(t, 'r', 1)
	c5 := reg(t, 'c', 5)
	// "dph r1, c5" must invert to dphi, since the wide field only holds
	// the word's src1 position.
	pos, err := u.EncodeF1(opFor(t, "dph"), dst, r1, c5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	word := u.Code.At(pos)
	if opc := byte(word >> 26); opc != isa.OpDPHI {
		t.Errorf("got opcode %#x, want dphi %#x", opc, isa.OpDPHI)
	}
}

func TestEncodeF1NoInvertedFormErrors(t *testing.T) {
	u := NewUnit()
	dst := reg(t, 'r', 0)
	r1 := reg(t, 'r', 1)
	c5 := reg(t, 'c', 5)
	if _, err := u.EncodeF1(opFor(t, "add"), dst, r1, c5); err == nil {
		t.Fatal("expected error: add has no inverted form")
	}
}

func TestEncodeF1AllowsRepeatedVInput(t *testing.T) {
	u := NewUnit()
	dst := reg(t, 'r', 0)
	v1 := reg(t, 'v', 3)
	if _, err := u.EncodeF1(opFor(t, "add"), dst, v1, v1); err != nil {
		t.Fatalf("reusing the same v register across sources should be legal: %v", err)
	}
}

func TestEncodeF5RejectsThreeDistinctVInputs(t *testing.T) {
	u := NewUnit()
	dst := reg(t, 'r', 0)
	v1 := reg(t, 'v', 1)
	v2 := reg(t, 'v', 2)
	v3 := reg(t, 'v', 3)
	if _, err := u.EncodeF5(opFor(t, "mad"), dst, v1, v2, v3); err == nil {
		t.Fatal("expected error: three distinct v* registers exceed the two read ports")
	}
}

func TestEncodeF5AllowsRepeatedVInputAcrossThreeOperands(t *testing.T) {
	u := NewUnit()
	dst := reg(t, 'r', 0)
	v1 := reg(t, 'v', 1)
	v2 := reg(t, 'v', 2)
	if _, err := u.EncodeF5(opFor(t, "mad"), dst, v1, v1, v2); err != nil {
		t.Fatalf("reusing v1 should leave only two distinct v* registers: %v", err)
	}
}

func TestEncodeF5RejectsIndexedSource(t *testing.T) {
	u := NewUnit()
	dst := reg(t, 'r', 0)
	src1 := reg(t, 'r', 1)
	src2 := reg(t, 'c', 2)
	src2.IdxReg = 1
	src3 := reg(t, 'r', 3)
	if _, err := u.EncodeF5(opFor(t, "mad"), dst, src1, src2, src3); err == nil {
		t.Fatal("expected error: mad rejects index registers on every source operand")
	}
}

func TestEncodeF1SharesOPDESCSlotsAcrossIdenticalShapes(t *testing.T) {
	u := NewUnit()
	dst := reg(t, 'r', 0)
	src1 := reg(t, 'r', 1)
	src2 := reg(t, 'r', 2)
	p1, err := u.EncodeF1(opFor(t, "add"), dst, src1, src2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p2, err := u.EncodeF1(opFor(t, "mul"), dst, src1, src2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if (u.Code.At(p1) & 0x7F) != (u.Code.At(p2) & 0x7F) {
		t.Error("expected identical dest/src shapes to share one OPDESC slot")
	}
	if u.Pool.Len() != 1 {
		t.Errorf("got %d pool entries, want 1", u.Pool.Len())
	}
}

func TestEncodeF1u(t *testing.T) {
	u := NewUnit()
	dst := reg(t, 'r', 0)
	src1 := reg(t, 'r', 1)
	pos, err := u.EncodeF1u(opFor(t, "mov"), dst, src1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	word := u.Code.At(pos)
	if opc := byte(word >> 26); opc != isa.OpMOV {
		t.Errorf("got opcode %#x, want %#x", opc, isa.OpMOV)
	}
}

func TestEncodeF1cPacksBothConditions(t *testing.T) {
	u := NewUnit()
	src1 := reg(t, 'r', 0)
	src2 := reg(t, 'r', 1)
	pos, err := u.EncodeF1c(opFor(t, "cmp"), src1, src2, isa.CmpEQ, isa.CmpGT)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	word := u.Code.At(pos)
	if cmpX := (word >> 19) & 0x7; isa.CmpCondition(cmpX) != isa.CmpEQ {
		t.Errorf("got cmpX=%d, want CmpEQ", cmpX)
	}
	if cmpY := (word >> 22) & 0x7; isa.CmpCondition(cmpY) != isa.CmpGT {
		t.Errorf("got cmpY=%d, want CmpGT", cmpY)
	}
}

func TestEncodeF1cRejectsIndexedSource(t *testing.T) {
	u := NewUnit()
	src1 := reg(t, 'c', 2)
	src1.IdxReg = 1
	src2 := reg(t, 'r', 1)
	if _, err := u.EncodeF1c(opFor(t, "cmp"), src1, src2, isa.CmpEQ, isa.CmpGT); err == nil {
		t.Fatal("expected error: cmp has no spare bits for an index register")
	}
}

func TestEncodeFCallAndPatchProcCall(t *testing.T) {
	u := NewUnit()
	pos := u.EncodeFCall(opFor(t, "call"), 0, 0)
	word := u.Code.At(pos)
	patched := PatchProcCall(word, 42, 7)
	u.Code.Patch(pos, patched)
	got := u.Code.At(pos)
	if size := got & 0x3FF; size != 7 {
		t.Errorf("got size=%d, want 7", size)
	}
	if start := (got >> 10) & 0xFFF; start != 42 {
		t.Errorf("got start=%d, want 42", start)
	}
}

func TestPatchLabelTargetLeavesSizeFieldAlone(t *testing.T) {
	word := uint32(5) // size field = 5, target field = 0
	patched := PatchLabelTarget(word, 100)
	if size := patched & 0x3FF; size != 5 {
		t.Errorf("PatchLabelTarget clobbered the size field: got %d, want 5", size)
	}
	if target := (patched >> 10) & 0xFFF; target != 100 {
		t.Errorf("got target=%d, want 100", target)
	}
}

func TestPatchDeltaOnlyTouchesLow10Bits(t *testing.T) {
	word := uint32(0xFFFFFFFF)
	patched := PatchDelta(word, 3)
	if patched&0x3FF != 3 {
		t.Errorf("got low bits %#x, want 3", patched&0x3FF)
	}
	if patched&^uint32(0x3FF) != word&^uint32(0x3FF) {
		t.Error("PatchDelta must not touch bits above the low 10")
	}
}

func TestEncodeFForEncodesCounterAndTarget(t *testing.T) {
	u := NewUnit()
	counter := reg(t, 'i', 1)
	pos := u.EncodeFFor(opFor(t, "for"), counter, 0)
	word := u.Code.At(pos)
	if c := (word >> 24) & 0x3; c != 1 {
		t.Errorf("got counter field %d, want 1", c)
	}
}

func TestEncodeFMovaMasksAddressRegisters(t *testing.T) {
	u := NewUnit()
	src1 := reg(t, 'r', 0)
	pos, err := u.EncodeFMova(opFor(t, "mova"), operand.Swizzle{operand.SwzX, operand.SwzY, operand.SwzY, operand.SwzY}, src1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opc := byte(u.Code.At(pos) >> 26); opc != isa.OpMOVA {
		t.Errorf("got opcode %#x, want %#x", opc, isa.OpMOVA)
	}
}

func TestEncodeFSetEmitFlags(t *testing.T) {
	u := NewUnit()
	pos := u.EncodeFSetEmit(opFor(t, "setemit"), 2, true, true)
	word := u.Code.At(pos)
	if vtx := (word >> 22) & 0x3; vtx != 2 {
		t.Errorf("got vtx=%d, want 2", vtx)
	}
	if word&(1<<21) == 0 {
		t.Error("expected primEmit bit set")
	}
	if word&(1<<20) == 0 {
		t.Error("expected invertWinding bit set")
	}
}

func TestEncodeF5MADBasic(t *testing.T) {
	u := NewUnit()
	dst := reg(t, 'r', 0)
	src1 := reg(t, 'r', 1)
	src2 := reg(t, 'r', 2)
	src3 := reg(t, 'r', 3)
	pos, err := u.EncodeF5(opFor(t, "mad"), dst, src1, src2, src3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	word := u.Code.At(pos)
	if top := word >> 29; top != 0b111 {
		t.Errorf("got top-3 bits %#b, want 111", top)
	}
}

func TestEncodeF5RejectsTwoUniformOperands(t *testing.T) {
	u := NewUnit()
	dst := reg(t, 'r', 0)
	src1 := reg(t, 'r', 1)
	c2 := reg(t, 'c', 2)
	c3 := reg(t, 'c', 3)
	if _, err := u.EncodeF5(opFor(t, "mad"), dst, src1, c2, c3); err == nil {
		t.Fatal("expected error: only one of src2/src3 may be a uniform")
	}
}

func TestEncodeF5SelectsMADIWhenSrc3IsUniform(t *testing.T) {
	u := NewUnit()
	dst := reg(t, 'r', 0)
	src1 := reg(t, 'r', 1)
	src2 := reg(t, 'r', 2)
	c3 := reg(t, 'c', 3)
	pos, err := u.EncodeF5(opFor(t, "mad"), dst, src1, src2, c3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	word := u.Code.At(pos)
	if madi := (word >> 27) & 1; madi != 1 {
		t.Errorf("got madi=%d, want 1", madi)
	}
}

func TestEncodeF5ReservesLowOPDESCSlot(t *testing.T) {
	u := NewUnit()
	// The OPDESC descriptor only tracks swizzle/negate shape, not register
	// identity, so fill the pool with 40 distinct swizzle patterns on src1
	// (base-4 digits of i, guaranteed pairwise distinct for i < 256) to push
	// a subsequent MAD descriptor above index 31.
	for i := 0; i < 40; i++ {
		dst := reg(t, 'r', 0)
		src1 := reg(t, 'r', 1)
		src1.Swizzle = operand.Swizzle{byte(i % 4), byte((i / 4) % 4), byte((i / 16) % 4), byte((i / 64) % 4)}
		src2 := reg(t, 'v', 2)
		if _, err := u.EncodeF1(opFor(t, "add"), dst, src1, src2); err != nil {
			t.Fatalf("setup encode %d: %v", i, err)
		}
	}
	dst := reg(t, 'r', 0)
	src1 := reg(t, 'r', 1)
	src2 := reg(t, 'r', 2)
	src3 := reg(t, 'r', 3)
	pos, err := u.EncodeF5(opFor(t, "mad"), dst, src1, src2, src3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	word := u.Code.At(pos)
	idx := word & madOpdescFieldMask
	if idx >= 32 {
		t.Errorf("MAD OPDESC index %d was not reserved below 32", idx)
	}
}

func TestRewriteOPDESCIndexUpdatesEmittedWords(t *testing.T) {
	u := NewUnit()
	dst := reg(t, 'r', 0)
	src1 := reg(t, 'r', 1)
	src2 := reg(t, 'r', 2)
	pos, err := u.EncodeF1(opFor(t, "add"), dst, src1, src2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before := u.Code.At(pos) & opdescFieldMask
	u.Code.RewriteOPDESCIndex(int(before), 99)
	after := u.Code.At(pos) & opdescFieldMask
	if after != 99 {
		t.Errorf("got %d, want 99", after)
	}
}

func TestCheckDistinctInputsIgnoresNonVRegisters(t *testing.T) {
	r1 := reg(t, 'r', 0)
	if err := CheckDistinctInputs(r1, r1); err != nil {
		t.Errorf("unexpected error for repeated non-v register: %v", err)
	}
}
