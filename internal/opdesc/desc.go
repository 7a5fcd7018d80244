// Package opdesc implements the shared operand-descriptor pool: a
// compact, mask-unified table of destination masks and source
// swizzle/negation bits, plus the MAD low-index reservation scheme.
package opdesc

import "fmt"

// MaxSlots is the pool capacity.
const MaxSlots = 128

// MadIndexLimit is the highest OPDESC index a MAD/MADI instruction word
// can reference.
const MadIndexLimit = 32

// Field is one source operand's negation/swizzle pair, or the destination
// component mask when used in that role (only the low 4 bits of the
// packed value are meaningful there).
type Field struct {
	Negate  bool
	Swizzle [4]byte // each 0-3
}

// bit layout of a packed OPDESC value: dest(4) | src1(9) | src2(9) | src3(9)
const (
	destShift = 0
	src1Shift = 4
	src2Shift = 13
	src3Shift = 22
	fieldMask = 0x1FF // 9 bits
	destMask  = 0xF
)

func packField(f Field) uint32 {
	var v uint32
	if f.Negate {
		v |= 1
	}
	for i := 0; i < 4; i++ {
		v |= uint32(f.Swizzle[i]&3) << uint(1+2*i)
	}
	return v
}

// Pack assembles a full OPDESC value from a 4-bit destination mask and up
// to three source fields.
func Pack(destComponentMask byte, src1, src2, src3 Field) uint32 {
	v := uint32(destComponentMask&0xF) << destShift
	v |= packField(src1) << src1Shift
	v |= packField(src2) << src2Shift
	v |= packField(src3) << src3Shift
	return v
}

// FullFieldMask returns the "fully known" mask contribution for a field
// slot (used to build the knownMask argument to FindOrAdd).
func FullFieldMask() uint32 { return fieldMask }

// CareMask builds a knownMask, each parameter selecting whether the
// corresponding field is written/read by the instruction at all. A src
// mask can be narrowed further with WithoutSwizzleComponent; the encode
// package's callers use the whole-field masks as built here.
func CareMask(dest, src1, src2, src3 bool) uint32 {
	var m uint32
	if dest {
		m |= destMask << destShift
	}
	if src1 {
		m |= fieldMask << src1Shift
	}
	if src2 {
		m |= fieldMask << src2Shift
	}
	if src3 {
		m |= fieldMask << src3Shift
	}
	return m
}

// WithoutSwizzleComponent clears the mask bits for swizzle component comp
// (0=X..3=W) of the source field at shift (src1Shift/src2Shift/src3Shift).
// Used to model instructions that don't read every source component, such
// as DP3 never reading source component W.
func WithoutSwizzleComponent(mask uint32, shift uint, comp int) uint32 {
	bits := uint32(3) << uint(1+2*comp) << shift
	return mask &^ bits
}

const (
	Src1Shift = src1Shift
	Src2Shift = src2Shift
	Src3Shift = src3Shift
)

// slot is one pool entry.
type slot struct {
	value uint32
	known uint32
	isMAD bool
}

// Pool is the shared OPDESC table for one assembly run.
type Pool struct {
	slots []slot
}

func New() *Pool { return &Pool{} }

func (p *Pool) Len() int { return len(p.slots) }

// Value returns the raw packed value of slot i, for container emission.
func (p *Pool) Value(i int) uint32 { return p.slots[i].value }

// IsMAD reports whether slot i has been reserved as a MAD-eligible slot.
func (p *Pool) IsMAD(i int) bool { return p.slots[i].isMAD }

// FindOrAdd unifies desc (masked by mask) into an existing compatible slot
// or appends a new one: a slot matches when its knownMask intersected
// with the new mask already agrees with desc; matching slots absorb the
// new bits.
func (p *Pool) FindOrAdd(desc, mask uint32) (int, error) {
	for i := range p.slots {
		s := &p.slots[i]
		overlap := s.known & mask
		if (s.value & overlap) == (desc & overlap) {
			s.value |= desc & mask
			s.known |= mask
			return i, nil
		}
	}
	if len(p.slots) >= MaxSlots {
		return 0, fmt.Errorf("operand descriptor pool exhausted (max %d)", MaxSlots)
	}
	p.slots = append(p.slots, slot{value: desc & mask, known: mask})
	return len(p.slots) - 1, nil
}

// MarkMAD records that slot i now holds a value referenced by a MAD/MADI
// instruction and so must live below MadIndexLimit.
func (p *Pool) MarkMAD(i int) { p.slots[i].isMAD = true }

// lowestUnmarkedMADSlot returns the lowest index < MadIndexLimit that is
// not yet marked as a MAD slot, so Swap has somewhere to place the
// newly-demoted descriptor.
func (p *Pool) lowestUnmarkedMADSlot() (int, bool) {
	limit := MadIndexLimit
	if limit > len(p.slots) {
		limit = len(p.slots)
	}
	for i := 0; i < limit; i++ {
		if !p.slots[i].isMAD {
			return i, true
		}
	}
	return 0, false
}

// Swapper exchanges two OPDESC indices in already-emitted code words:
// words referencing `from` are repointed to `to`, and vice versa. It is
// implemented by the encode package (it owns the code buffer).
type Swapper interface {
	RewriteOPDESCIndex(from, to int)
}

// ReserveMADSlot ensures idx is usable by a MAD/MADI instruction: if idx is
// already < MadIndexLimit it is returned unchanged; otherwise it is
// swapped with the lowest still-unmarked slot below the limit, and every
// already-emitted word referencing either slot is rewritten via sw.
func (p *Pool) ReserveMADSlot(idx int, sw Swapper) (int, error) {
	if idx < MadIndexLimit {
		p.MarkMAD(idx)
		return idx, nil
	}
	target, ok := p.lowestUnmarkedMADSlot()
	if !ok {
		return 0, fmt.Errorf("no MAD-eligible operand descriptor slot available (all of 0..%d reserved)", MadIndexLimit-1)
	}
	p.slots[target], p.slots[idx] = p.slots[idx], p.slots[target]
	sw.RewriteOPDESCIndex(idx, target)
	p.MarkMAD(target)
	return target, nil
}
