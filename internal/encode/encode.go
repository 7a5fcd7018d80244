// Package encode implements the eleven 32-bit instruction-word encoders, the
// shared code-word buffer they append to, and the OPDESC swap-rewrite hook
// required by the operand-descriptor pool.
//
// Only the F1 formula and the two relocation-patch formulas are given
// verbatim elsewhere (they constrain the shared target/size field
// positions used by every branch-class format); every other layout here
// is this package's own self-consistent derivation chosen to satisfy
// those constraints. See DESIGN.md for the derivation.
package encode

import (
	"fmt"

	"github.com/go-maestro/vshasm/internal/isa"
	"github.com/go-maestro/vshasm/internal/opdesc"
	"github.com/go-maestro/vshasm/internal/operand"
)

// opdescFieldMask is the low 7-bit OPDESC index field shared by every
// OPDESC-bearing non-MAD format (up to 128 slots).
const opdescFieldMask = 0x7F

// madOpdescFieldMask is MAD's narrower 5-bit OPDESC field. MAD's opcode
// occupies only the top 3 bits, freeing bits for the other operand
// fields but leaving only 5 bits of index space.
const madOpdescFieldMask = 0x1F

// Buffer is the append-only code-word buffer shared by every input file
// (DATA MODEL: "Code word buffer ... shared by all input files").
type Buffer struct {
	Words []uint32

	// opdescRef[i] is the OPDESC pool index word i references, or -1.
	opdescRef []int
	// isMAD[i] marks words using the narrow 5-bit MAD OPDESC field, so
	// RewriteOPDESCIndex knows which field mask to reapply.
	isMAD []bool
}

func NewBuffer() *Buffer { return &Buffer{} }

// Pos returns the index the next emitted word will occupy.
func (b *Buffer) Pos() int { return len(b.Words) }

func (b *Buffer) emit(word uint32, opdescIdx int, mad bool) int {
	pos := len(b.Words)
	b.Words = append(b.Words, word)
	b.opdescRef = append(b.opdescRef, opdescIdx)
	b.isMAD = append(b.isMAD, mad)
	return pos
}

// Patch overwrites an already-emitted word wholesale (used by block/reloc
// to backpatch branch targets).
func (b *Buffer) Patch(pos int, word uint32) { b.Words[pos] = word }

func (b *Buffer) At(pos int) uint32 { return b.Words[pos] }

// RewriteOPDESCIndex implements opdesc.Swapper: every word referencing
// `from` is repointed to `to`, and vice versa, so a pool Swap leaves all
// already-emitted code consistent.
func (b *Buffer) RewriteOPDESCIndex(from, to int) {
	for i, ref := range b.opdescRef {
		switch ref {
		case from:
			b.opdescRef[i] = to
			b.Words[i] = setOpdescField(b.Words[i], to, b.isMAD[i])
		case to:
			b.opdescRef[i] = from
			b.Words[i] = setOpdescField(b.Words[i], from, b.isMAD[i])
		}
	}
}

func setOpdescField(word uint32, idx int, mad bool) uint32 {
	if mad {
		return (word &^ madOpdescFieldMask) | uint32(idx)&madOpdescFieldMask
	}
	return (word &^ opdescFieldMask) | uint32(idx)&opdescFieldMask
}

// PatchProcCall applies the procedure-relocation formula to a
// CALL/CALLC/CALLU word: the target field (bits 10-21) becomes the
// procedure's start address, the size field (bits 0-9) its instruction
// count.
func PatchProcCall(word uint32, start, size int) uint32 {
	return (word &^ 0x3FFFFF) | uint32(size) | uint32(start)<<10
}

// PatchLabelTarget applies the label-relocation formula to a
// FOR/IF/JMP*-class word: the target field (bits 10-21) becomes dst.
func PatchLabelTarget(word uint32, dst int) uint32 {
	return (word &^ (0xFFF << 10)) | uint32(dst)<<10
}

// PatchDelta overwrites only the low 10-bit size/delta field, used by
// IF/ELSE to patch the else-branch's jump delta.
func PatchDelta(word uint32, delta int) uint32 {
	return (word &^ 0x3FF) | uint32(delta)&0x3FF
}

func idxOf(r operand.Reg) uint32 { return uint32(r.IdxReg) }

func field4(swz operand.Swizzle) uint32 {
	var v uint32
	for i := 0; i < 4; i++ {
		v |= uint32(swz[i]&3) << uint(1+2*i)
	}
	return v
}

func negField(r operand.Reg) uint32 {
	n := field4(r.Swizzle)
	if r.Negate {
		n |= 1
	}
	return n
}

func writeMask(r operand.Reg) byte {
	var m byte
	for _, c := range r.Swizzle {
		m |= 1 << c
	}
	return m
}

// CheckDistinctInputs rejects instructions that read three or more distinct
// `v*` registers: the unit has only two input register file read ports, so
// reusing the same v-register across source operands is fine, but three
// distinct ones can't all be read in the same cycle.
func CheckDistinctInputs(srcs ...operand.Reg) error {
	seen := map[byte]bool{}
	for _, r := range srcs {
		if r.Class != operand.ClassV {
			continue
		}
		seen[r.Flat] = true
	}
	if len(seen) >= 3 {
		return fmt.Errorf("at most two distinct v* registers may be read by one instruction")
	}
	return nil
}

func descFromDestAndSrcs(dst operand.Reg, srcs ...operand.Reg) (uint32, uint32) {
	desc := opdesc.Pack(writeMask(dst), srcField(srcs, 0), srcField(srcs, 1), srcField(srcs, 2))
	mask := opdesc.CareMask(true, len(srcs) > 0, len(srcs) > 1, len(srcs) > 2)
	return desc, mask
}

func srcField(srcs []operand.Reg, i int) opdesc.Field {
	if i >= len(srcs) {
		return opdesc.Field{}
	}
	r := srcs[i]
	return opdesc.Field{Negate: r.Negate, Swizzle: [4]byte(r.Swizzle)}
}

// Unit bundles the state an encoder needs: the shared code buffer and the
// shared OPDESC pool.
type Unit struct {
	Code *Buffer
	Pool *opdesc.Pool
}

func NewUnit() *Unit { return &Unit{Code: NewBuffer(), Pool: opdesc.New()} }

// EncodeF0 encodes NOP/END/EMIT: opcode only, no operands.
func (u *Unit) EncodeF0(op isa.Op) int {
	return u.Code.emit(uint32(op.Opcode)<<26, -1, false)
}

// EncodeF1 encodes ADD/DP3/DP4/DPH(I)/MUL/SGE(I)/SLT(I)/MAX/MIN:
// opcode<<26 | opdesc | src2<<7 | src1<<12 | idx<<19 | dst<<21, with the
// source operands swapped (and the opcode's "I" inversion used) when
// src1 is narrow and src2 is a uniform.
func (u *Unit) EncodeF1(op isa.Op, dst, src1, src2 operand.Reg) (int, error) {
	if err := CheckDistinctInputs(src1, src2); err != nil {
		return 0, err
	}
	wide1, wide2 := !src1.IsNarrow(), !src2.IsNarrow()
	if wide1 && wide2 {
		return 0, fmt.Errorf("%s: only one source operand may be a uniform register", op.Name)
	}

	useOp := op
	w, n := src1, src2
	invertedIdx := false
	if !wide1 && wide2 {
		if op.Inverts == "" {
			return 0, fmt.Errorf("%s: has no inverted form", op.Name)
		}
		inv, ok := isa.Lookup(op.Inverts)
		if !ok {
			return 0, fmt.Errorf("%s: inverted mnemonic %q not found", op.Name, op.Inverts)
		}
		useOp = inv
		w, n = src2, src1
		invertedIdx = true
	}

	desc, mask := descFromDestAndSrcs(dst, src1, src2)
	idx, err := u.Pool.FindOrAdd(desc, mask)
	if err != nil {
		return 0, err
	}

	word := uint32(useOp.Opcode)<<26 | uint32(dst.Flat)<<21
	if invertedIdx {
		word |= idxOf(src2)<<19 | uint32(n.Flat)<<14 | uint32(w.Flat)<<7
	} else {
		word |= idxOf(w)<<19 | uint32(w.EffectiveFlat())<<12 | uint32(n.Flat)<<7
	}
	word |= uint32(idx) & opdescFieldMask
	return u.Code.emit(word, idx, false), nil
}

// EncodeF1u encodes the one-source variant (EX2/LG2/FLR/RCP/RSQ/MOV): the
// same field layout as F1 with the narrow source field left zero.
func (u *Unit) EncodeF1u(op isa.Op, dst, src1 operand.Reg) (int, error) {
	desc, mask := descFromDestAndSrcs(dst, src1)
	idx, err := u.Pool.FindOrAdd(desc, mask)
	if err != nil {
		return 0, err
	}
	word := uint32(op.Opcode)<<26 | uint32(dst.Flat)<<21 | idxOf(src1)<<19 | uint32(src1.EffectiveFlat())<<12
	word |= uint32(idx) & opdescFieldMask
	return u.Code.emit(word, idx, false), nil
}

// EncodeF1c encodes CMP: two sources, two parallel comparison results
// (written to cmp.x/cmp.y). Indexed addressing is not supported on either
// source by this format: there is no spare bit for an index register once
// both condition codes are packed in. See DESIGN.md.
func (u *Unit) EncodeF1c(op isa.Op, src1, src2 operand.Reg, cmpX, cmpY isa.CmpCondition) (int, error) {
	if src1.IdxReg != 0 || src2.IdxReg != 0 {
		return 0, fmt.Errorf("%s: index register not allowed here", op.Name)
	}
	if err := CheckDistinctInputs(src1, src2); err != nil {
		return 0, err
	}
	desc, mask := descFromDestAndSrcs(operand.Reg{Swizzle: operand.IdentitySwizzle}, src1, src2)
	idx, err := u.Pool.FindOrAdd(desc, mask)
	if err != nil {
		return 0, err
	}
	word := uint32(op.Opcode)<<26 | uint32(cmpY)<<22 | uint32(cmpX)<<19 | uint32(src1.EffectiveFlat())<<12 | uint32(src2.Flat)<<7
	word |= uint32(idx) & opdescFieldMask
	return u.Code.emit(word, idx, false), nil
}

// Combinator is the boolean combinator between cmp.x and cmp.y in an F2
// condition expression.
type Combinator byte

const (
	CombOr Combinator = iota
	CombAnd
)

// EncodeF2 encodes BREAKC/CALLC/JMPC/IFC. The target/size fields occupy
// bits 10-21/0-9 respectively so relocation can patch them uniformly with
// every other branch-class format; callers supply zero for target/size
// when the true value isn't known yet and patch later via PatchProcCall
// or PatchLabelTarget.
func (u *Unit) EncodeF2(op isa.Op, negX, negY bool, comb Combinator, target, size int) int {
	word := uint32(op.Opcode)<<26 | uint32(comb)<<23 | uint32(target&0xFFF)<<10 | uint32(size&0x3FF)
	if negX {
		word |= 1 << 25
	}
	if negY {
		word |= 1 << 24
	}
	return u.Code.emit(word, -1, false)
}

// EncodeF3 encodes CALLU/JMPU/IFU, conditioned on a single bool register.
func (u *Unit) EncodeF3(op isa.Op, b operand.Reg, target, size int) int {
	word := uint32(op.Opcode)<<26 | uint32(b.Index&0xF)<<22 | uint32(target&0xFFF)<<10 | uint32(size&0x3FF)
	return u.Code.emit(word, -1, false)
}

// EncodeFCall encodes an unconditional CALL.
func (u *Unit) EncodeFCall(op isa.Op, target, size int) int {
	word := uint32(op.Opcode)<<26 | uint32(target&0xFFF)<<10 | uint32(size&0x3FF)
	return u.Code.emit(word, -1, false)
}

// EncodeFFor encodes FOR: the loop bounds live in the referenced int
// uniform register, so the word only carries the register index and the
// back-edge jump target (patched at `.end` to curPos-1).
func (u *Unit) EncodeFFor(op isa.Op, counter operand.Reg, target int) int {
	word := uint32(op.Opcode)<<26 | uint32(counter.Index&0x3)<<24 | uint32(target&0xFFF)<<10
	return u.Code.emit(word, -1, false)
}

// EncodeFMova encodes MOVA: moves selected components of src1 into the
// address registers.
func (u *Unit) EncodeFMova(op isa.Op, comps operand.Swizzle, src1 operand.Reg) (int, error) {
	desc, mask := descFromDestAndSrcs(operand.Reg{Swizzle: comps}, src1)
	idx, err := u.Pool.FindOrAdd(desc, mask)
	if err != nil {
		return 0, err
	}
	word := uint32(op.Opcode)<<26 | idxOf(src1)<<19 | uint32(src1.EffectiveFlat())<<12
	word |= uint32(idx) & opdescFieldMask
	return u.Code.emit(word, idx, false), nil
}

// EncodeFSetEmit encodes SETEMIT's vertex-index/winding/primitive flags.
func (u *Unit) EncodeFSetEmit(op isa.Op, vtxIdx int, primEmit, invertWinding bool) int {
	word := uint32(op.Opcode)<<26 | uint32(vtxIdx&0x3)<<22
	if primEmit {
		word |= 1 << 21
	}
	if invertWinding {
		word |= 1 << 20
	}
	return u.Code.emit(word, -1, false)
}

// EncodeF5 encodes MAD/MADI: dst, src1(narrow), src2(wide), src3(narrow),
// swapping src2/src3 (and so selecting the "I" form) when src2 is narrow
// and src3 is the uniform. None of the three source operands support
// indexed addressing in this encoding: the narrower 5-bit OPDESC index
// leaves no field for an index register on any of them. See DESIGN.md.
func (u *Unit) EncodeF5(op isa.Op, dst, src1, src2, src3 operand.Reg) (int, error) {
	if src1.IdxReg != 0 || src2.IdxReg != 0 || src3.IdxReg != 0 {
		return 0, fmt.Errorf("%s: index register not allowed here", op.Name)
	}
	if err := CheckDistinctInputs(src1, src2, src3); err != nil {
		return 0, err
	}
	wide2, wide3 := !src2.IsNarrow(), !src3.IsNarrow()
	if wide2 && wide3 {
		return 0, fmt.Errorf("%s: only one of src2/src3 may be a uniform register", op.Name)
	}

	wideSlot, addendSlot := src2, src3
	var madi uint32
	if !wide2 && wide3 {
		wideSlot, addendSlot = src3, src2
		madi = 1
	}

	desc, mask := descFromDestAndSrcs(dst, src1, src2, src3)
	idx, err := u.Pool.FindOrAdd(desc, mask)
	if err != nil {
		return 0, err
	}
	idx, err = u.Pool.ReserveMADSlot(idx, u.Code)
	if err != nil {
		return 0, err
	}

	word := uint32(0b111)<<29 | madi<<27
	word |= uint32(dst.Flat&0x1F) << 22
	word |= uint32(src1.Flat&0x1F) << 17
	word |= uint32(wideSlot.EffectiveFlat()&0x7F) << 10
	word |= uint32(addendSlot.Flat&0x1F) << 5
	word |= uint32(idx) & madOpdescFieldMask
	return u.Code.emit(word, idx, true), nil
}
