// Package operand implements the register and swizzle operand parser
// and the flat 8-bit Maestro register space.
package operand

import "fmt"

// Class identifies a register namespace. Several classes share the same
// flat index range (v/o both occupy 0x00-0x0F); Class disambiguates them
// for direction-of-use checks (duplicate-input detection, output masks).
type Class byte

const (
	ClassV Class = iota // input attribute
	ClassO              // output
	ClassR              // temporary
	ClassC              // float-vector uniform
	ClassI              // integer-vector uniform
	ClassB              // boolean uniform
	ClassIdx            // a0/a1/a2(lcnt) index registers
)

// Flat index ranges for each register class.
const (
	VBase, VCount = 0x00, 16
	OBase, OCount = 0x00, 16
	RBase, RCount = 0x10, 16
	CBase, CCount = 0x20, 96
	IBase, ICount = 0x80, 4
	IReserved     = 0x88 // reserved range extends to here
	BBase, BCount = 0x88, 16
)

// Swizzle component indices.
const (
	SwzX = 0
	SwzY = 1
	SwzZ = 2
	SwzW = 3
)

// Swizzle is up to 4 component selectors, always normalized to 4 entries
// (missing trailing components replicate the last one given).
type Swizzle [4]byte

// IdentitySwizzle is ".xyzw".
var IdentitySwizzle = Swizzle{SwzX, SwzY, SwzZ, SwzW}

// Reg is a fully resolved register operand.
type Reg struct {
	Class   Class
	Index   int     // class-relative index (e.g. 5 for r5)
	Flat    byte    // flat 8-bit hardware index
	Negate  bool    // leading '-'
	Swizzle Swizzle // post-alias-composition swizzle
	IdxReg  int     // 0 = none, 1/2/3 = a0/a1/a2(lcnt)
	Offset  int     // literal [n] offset added to Flat
}

func classRange(c Class) (base, count int, letter byte, ok bool) {
	switch c {
	case ClassV:
		return VBase, VCount, 'v', true
	case ClassO:
		return OBase, OCount, 'o', true
	case ClassR:
		return RBase, RCount, 'r', true
	case ClassC:
		return CBase, CCount, 'c', true
	case ClassI:
		return IBase, ICount, 'i', true
	case ClassB:
		return BBase, BCount, 'b', true
	}
	return 0, 0, 0, false
}

// classByLetter maps a register-class letter to its Class.
func classByLetter(c byte) (Class, bool) {
	switch c {
	case 'v':
		return ClassV, true
	case 'o':
		return ClassO, true
	case 'r':
		return ClassR, true
	case 'c':
		return ClassC, true
	case 'i':
		return ClassI, true
	case 'b':
		return ClassB, true
	}
	return 0, false
}

// NewBareReg builds a register from class letter + class-relative index,
// validating the index is within the class's range.
func NewBareReg(letter byte, index int) (Reg, error) {
	class, ok := classByLetter(letter)
	if !ok {
		return Reg{}, fmt.Errorf("unknown register class '%c'", letter)
	}
	base, count, _, _ := classRange(class)
	if index < 0 || index >= count {
		return Reg{}, fmt.Errorf("register '%c%d' out of range (class holds %d registers)", letter, index, count)
	}
	return Reg{Class: class, Index: index, Flat: byte(base + index), Swizzle: IdentitySwizzle}, nil
}

// IndexRegisterNumber maps "a0"/"a1"/"a2"/"lcnt" to 1/2/3, or 0 if name is
// not an index register.
func IndexRegisterNumber(name string) int {
	switch name {
	case "a0":
		return 1
	case "a1":
		return 2
	case "a2", "lcnt":
		return 3
	}
	return 0
}

// IsNarrow reports whether the register's class can only ever occupy the
// 5-bit "narrow" operand field (v, o or r).
func (r Reg) IsNarrow() bool {
	return r.Class == ClassV || r.Class == ClassO || r.Class == ClassR
}

// EffectiveFlat returns the register's flat index after applying its
// literal offset (from "[n]" addressing), clamped into its class's range
// is the caller's responsibility (range checked at parse time).
func (r Reg) EffectiveFlat() byte {
	return byte(int(r.Flat) + r.Offset)
}

// ApplySwizzle composes an operand-site swizzle (1-4 letters, missing
// trailing components replicate the last) on top of this register's
// existing swizzle: the alias's swizzle is applied first, then the
// operand-site swizzle selects components from it.
func (r Reg) ApplySwizzle(sel Swizzle) Reg {
	out := r
	for i := 0; i < 4; i++ {
		out.Swizzle[i] = r.Swizzle[sel[i]]
	}
	return out
}

// Negated XORs the negation flag, used when composing negation through
// an alias.
func (r Reg) Negated() Reg {
	out := r
	out.Negate = !out.Negate
	return out
}
