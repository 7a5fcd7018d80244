package operand

import (
	"fmt"
	"strconv"

	"github.com/go-maestro/vshasm/internal/asmtext"
)

// AliasResolver looks up a previously declared alias by name. The asm
// package's symbol table implements this.
type AliasResolver interface {
	LookupAlias(name string) (Reg, bool)
}

var swizzleLetterSets = [3]string{"xyzw", "rgba", "stpq"}

func swizzleComponent(c byte) (byte, bool) {
	for _, set := range swizzleLetterSets {
		for i := 0; i < 4; i++ {
			if set[i] == c {
				return byte(i), true
			}
		}
	}
	return 0, false
}

// ParseSwizzle parses 1-4 swizzle-letter characters (all from the same
// letter set), replicating the last component to fill out to 4.
func ParseSwizzle(s string) (Swizzle, error) {
	if len(s) == 0 || len(s) > 4 {
		return Swizzle{}, fmt.Errorf("bad swizzle '.%s'", s)
	}
	var sw Swizzle
	var last byte
	for i := 0; i < len(s); i++ {
		c, ok := swizzleComponent(s[i])
		if !ok {
			return Swizzle{}, fmt.Errorf("bad swizzle '.%s'", s)
		}
		sw[i] = c
		last = c
	}
	for i := len(s); i < 4; i++ {
		sw[i] = last
	}
	return sw, nil
}

// Parse parses a full operand token: [-]base[.swizzle][[offset|idxreg|idxreg+offset]].
func Parse(tok asmtext.Fragment, resolver AliasResolver) (Reg, error) {
	f := tok

	negate := false
	if f.StartsWithByte('-') {
		negate = true
		f = f.Consume(1)
	}

	baseTok, f := f.ConsumeWhile(func(c byte) bool {
		return asmtext.IsIdentChar(c)
	})
	if baseTok.IsEmpty() {
		return Reg{}, fmt.Errorf("expected register operand, got '%s'", tok.Str)
	}

	reg, err := resolveBase(baseTok.Str, resolver)
	if err != nil {
		return Reg{}, err
	}

	if f.StartsWithByte('.') {
		swzTok, remain := f.Consume(1).ConsumeWhile(isSwizzleChar)
		sw, err := ParseSwizzle(swzTok.Str)
		if err != nil {
			return Reg{}, err
		}
		reg = reg.ApplySwizzle(sw)
		f = remain
	}

	if f.StartsWithByte('[') {
		idxReg, offset, remain, err := parseIndex(f)
		if err != nil {
			return Reg{}, err
		}
		if idxReg != 0 && reg.Class != ClassC {
			return Reg{}, fmt.Errorf("indirect indexing only valid on c-registers")
		}
		reg.IdxReg = idxReg
		reg.Offset = offset
		f = remain
	}

	if !f.IsEmpty() {
		return Reg{}, fmt.Errorf("unexpected trailing text '%s' in operand", f.Str)
	}

	if negate {
		reg = reg.Negated()
	}
	return reg, nil
}

func isSwizzleChar(c byte) bool {
	_, ok := swizzleComponent(c)
	return ok
}

func resolveBase(name string, resolver AliasResolver) (Reg, error) {
	if resolver != nil {
		if reg, ok := resolver.LookupAlias(name); ok {
			return reg, nil
		}
	}

	if len(name) < 2 {
		return Reg{}, fmt.Errorf("invalid register or identifier '%s'", name)
	}

	if n := IndexRegisterNumber(name); n != 0 {
		return Reg{Class: ClassIdx, IdxReg: n, Swizzle: IdentitySwizzle}, nil
	}

	letter := name[0]
	if _, ok := classByLetter(letter); !ok {
		return Reg{}, fmt.Errorf("undefined identifier '%s'", name)
	}
	num, err := strconv.Atoi(name[1:])
	if err != nil {
		return Reg{}, fmt.Errorf("invalid register '%s'", name)
	}
	return NewBareReg(letter, num)
}

// parseIndex parses "[offset]", "[idxreg]" or "[idxreg + offset]" starting
// at the '['.
func parseIndex(f asmtext.Fragment) (idxReg int, offset int, remain asmtext.Fragment, err error) {
	f = f.Consume(1) // '['
	inner, rest := f.ConsumeUntilByte(']')
	if !rest.StartsWithByte(']') {
		return 0, 0, f, fmt.Errorf("missing closing ']'")
	}
	rest = rest.Consume(1)

	inner = inner.ConsumeWhitespace()
	if inner.StartsWith(asmtext.IsIdentStart) {
		nameTok, after := inner.ConsumeWhile(asmtext.IsIdentChar)
		n := IndexRegisterNumber(nameTok.Str)
		if n == 0 {
			return 0, 0, f, fmt.Errorf("invalid index register '%s'", nameTok.Str)
		}
		idxReg = n
		after = after.ConsumeWhitespace()
		if after.StartsWithByte('+') {
			after = after.Consume(1).ConsumeWhitespace()
			offTok, _ := after.ConsumeWhile(func(c byte) bool { return c != ']' })
			v, e := strconv.Atoi(offTok.Str)
			if e != nil {
				return 0, 0, f, fmt.Errorf("invalid offset '%s'", offTok.Str)
			}
			offset = v
		}
	} else {
		v, e := strconv.Atoi(inner.Str)
		if e != nil {
			return 0, 0, f, fmt.Errorf("invalid offset '%s'", inner.Str)
		}
		offset = v
	}

	return idxReg, offset, rest, nil
}
