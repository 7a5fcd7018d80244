package asm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-maestro/vshasm/internal/asmtext"
	"github.com/go-maestro/vshasm/internal/block"
	"github.com/go-maestro/vshasm/internal/encode"
	"github.com/go-maestro/vshasm/internal/isa"
	"github.com/go-maestro/vshasm/internal/operand"
	"github.com/go-maestro/vshasm/internal/reloc"
)

// dispatchInstruction is the line-level half of instruction assembly:
// resolve the mnemonic, split its operand list, and hand off to the
// encoder shape matching the mnemonic's isa.Format.
func (a *Assembler) dispatchInstruction(name string, args asmtext.Fragment) error {
	op, err := a.opLookup(name)
	if err != nil {
		return err
	}

	ops := asmtext.SplitComma(args)

	switch op.Format {
	case isa.F0:
		a.unit.EncodeF0(op)
		a.blocks.NoteInstruction()
		return nil

	case isa.F1:
		return a.instF1(op, ops)
	case isa.F1u:
		return a.instF1u(op, ops)
	case isa.F1c:
		return a.instF1c(op, ops)
	case isa.F5:
		return a.instF5(op, ops)
	case isa.FMova:
		return a.instFMova(op, ops)
	case isa.FSetEmit:
		return a.instFSetEmit(op, ops)
	case isa.FCall:
		return a.instFCall(op, ops)
	case isa.FFor:
		return a.instFFor(op, ops)
	case isa.F2:
		return a.instF2(op, ops)
	case isa.F3:
		return a.instF3(op, ops)
	}
	return a.err(KindLex, "%s: unhandled instruction format", op.Name)
}

func (a *Assembler) operandAt(ops []asmtext.Fragment, i int) (operand.Reg, error) {
	if i >= len(ops) {
		return operand.Reg{}, a.err(KindLex, "missing operand %d", i+1)
	}
	return a.resolveOperand(ops[i])
}

func (a *Assembler) instF1(op isa.Op, ops []asmtext.Fragment) error {
	dst, err := a.operandAt(ops, 0)
	if err != nil {
		return err
	}
	src1, err := a.operandAt(ops, 1)
	if err != nil {
		return err
	}
	src2, err := a.operandAt(ops, 2)
	if err != nil {
		return err
	}
	if _, err := a.unit.EncodeF1(op, dst, src1, src2); err != nil {
		return a.err(KindSemantic, "%v", err)
	}
	a.blocks.NoteInstruction()
	return nil
}

func (a *Assembler) instF1u(op isa.Op, ops []asmtext.Fragment) error {
	dst, err := a.operandAt(ops, 0)
	if err != nil {
		return err
	}
	src1, err := a.operandAt(ops, 1)
	if err != nil {
		return err
	}
	if _, err := a.unit.EncodeF1u(op, dst, src1); err != nil {
		return a.err(KindSemantic, "%v", err)
	}
	a.blocks.NoteInstruction()
	return nil
}

func (a *Assembler) instF1c(op isa.Op, ops []asmtext.Fragment) error {
	src1, err := a.operandAt(ops, 0)
	if err != nil {
		return err
	}
	src2, err := a.operandAt(ops, 1)
	if err != nil {
		return err
	}
	if len(ops) < 4 {
		return a.err(KindLex, "cmp requires two comparison conditions")
	}
	cmpX, ok := isa.LookupCmp(strings.TrimSpace(ops[2].Str))
	if !ok {
		return a.err(KindLex, "unknown comparison %q", ops[2].Str)
	}
	cmpY, ok := isa.LookupCmp(strings.TrimSpace(ops[3].Str))
	if !ok {
		return a.err(KindLex, "unknown comparison %q", ops[3].Str)
	}
	if _, err := a.unit.EncodeF1c(op, src1, src2, cmpX, cmpY); err != nil {
		return a.err(KindSemantic, "%v", err)
	}
	a.blocks.NoteInstruction()
	return nil
}

func (a *Assembler) instF5(op isa.Op, ops []asmtext.Fragment) error {
	dst, err := a.operandAt(ops, 0)
	if err != nil {
		return err
	}
	src1, err := a.operandAt(ops, 1)
	if err != nil {
		return err
	}
	src2, err := a.operandAt(ops, 2)
	if err != nil {
		return err
	}
	src3, err := a.operandAt(ops, 3)
	if err != nil {
		return err
	}
	if _, err := a.unit.EncodeF5(op, dst, src1, src2, src3); err != nil {
		return a.err(KindSemantic, "%v", err)
	}
	a.blocks.NoteInstruction()
	return nil
}

// instFMova parses "a0.<mask>, src1", where the write mask on the address
// destination selects which components EncodeFMova fills.
func (a *Assembler) instFMova(op isa.Op, ops []asmtext.Fragment) error {
	if len(ops) < 2 {
		return a.err(KindLex, "mova requires a destination mask and a source")
	}
	destTok := strings.TrimSpace(ops[0].Str)
	comps := operand.IdentitySwizzle
	if i := strings.IndexByte(destTok, '.'); i >= 0 {
		sw, err := operand.ParseSwizzle(destTok[i+1:])
		if err != nil {
			return a.err(KindLex, "%v", err)
		}
		comps = sw
	}
	src1, err := a.operandAt(ops, 1)
	if err != nil {
		return err
	}
	if _, err := a.unit.EncodeFMova(op, comps, src1); err != nil {
		return a.err(KindSemantic, "%v", err)
	}
	a.blocks.NoteInstruction()
	return nil
}

// instFSetEmit parses "vtxIdx[, prim][, invert]".
func (a *Assembler) instFSetEmit(op isa.Op, ops []asmtext.Fragment) error {
	if len(ops) < 1 {
		return a.err(KindLex, "setemit requires a vertex index")
	}
	vtxIdx, err := strconv.Atoi(strings.TrimSpace(ops[0].Str))
	if err != nil {
		return a.err(KindLex, "invalid vertex index %q", ops[0].Str)
	}
	var prim, invert bool
	for _, tok := range ops[1:] {
		switch strings.TrimSpace(tok.Str) {
		case "prim", "primemit":
			prim = true
		case "invert", "invertw", "invertwinding":
			invert = true
		}
	}
	a.unit.EncodeFSetEmit(op, vtxIdx, prim, invert)
	a.blocks.NoteInstruction()
	return nil
}

// instFCall parses "procName" for an unconditional CALL.
func (a *Assembler) instFCall(op isa.Op, ops []asmtext.Fragment) error {
	if len(ops) < 1 {
		return a.err(KindLex, "call requires a procedure name")
	}
	name := strings.TrimSpace(ops[0].Str)
	pos := a.unit.EncodeFCall(op, 0, 0)
	a.procRelocs = append(a.procRelocs, reloc.ProcRelocation{Pos: pos, Name: name, File: a.curFile, Line: a.curLine})
	a.blocks.NoteInstruction()
	return nil
}

// instFFor parses "counterReg" and opens a FOR block.
func (a *Assembler) instFFor(op isa.Op, ops []asmtext.Fragment) error {
	counter, err := a.operandAt(ops, 0)
	if err != nil {
		return err
	}
	pos := a.unit.EncodeFFor(op, counter, 0)
	if err := a.blocks.Push(block.Frame{Kind: block.KindFor, Pos: pos}); err != nil {
		return a.err(KindCapacity, "%v", err)
	}
	return nil
}

// instF2 covers BREAKC/CALLC/JMPC/IFC: a leading condition expression,
// then (for CALLC/JMPC) a target name; BREAKC has no target operand (it
// always exits the innermost FOR) and IFC opens a block instead of
// resolving a reloc.
func (a *Assembler) instF2(op isa.Op, ops []asmtext.Fragment) error {
	if len(ops) < 1 {
		return a.err(KindLex, "%s requires a condition", op.Name)
	}
	negX, negY, comb, err := parseCondExpr(ops[0])
	if err != nil {
		return a.err(KindLex, "%v", err)
	}

	switch op.Opcode {
	case isa.OpIFC:
		pos := a.unit.EncodeF2(op, negX, negY, comb, 0, 0)
		if err := a.blocks.Push(block.Frame{Kind: block.KindIf, Pos: pos}); err != nil {
			return a.err(KindCapacity, "%v", err)
		}
	case isa.OpJMPC:
		if len(ops) < 2 {
			return a.err(KindLex, "jmpc requires a target label")
		}
		pos := a.unit.EncodeF2(op, negX, negY, comb, 0, 0)
		a.labelRelocs = append(a.labelRelocs, reloc.LabelRelocation{
			Pos: pos, Name: strings.TrimSpace(ops[1].Str), File: a.curFile, Line: a.curLine,
		})
		a.blocks.NoteInstruction()
	case isa.OpCALLC:
		if len(ops) < 2 {
			return a.err(KindLex, "callc requires a procedure name")
		}
		pos := a.unit.EncodeF2(op, negX, negY, comb, 0, 0)
		a.procRelocs = append(a.procRelocs, reloc.ProcRelocation{
			Pos: pos, Name: strings.TrimSpace(ops[1].Str), File: a.curFile, Line: a.curLine,
		})
		a.blocks.NoteInstruction()
	case isa.OpBREAKC:
		pos := a.unit.EncodeF2(op, negX, negY, comb, 0, 0)
		forFrame, ok := a.blocks.NearestFor()
		if !ok {
			return a.err(KindStructure, "breakc outside a FOR block")
		}
		forFrame.Breaks = append(forFrame.Breaks, pos)
		a.blocks.NoteInstruction()
	default:
		return a.err(KindLex, "%s: unhandled F2 opcode", op.Name)
	}
	return nil
}

// instF3 covers CALLU/JMPU/IFU: a bool register condition, then (for
// CALLU/JMPU) a target name.
func (a *Assembler) instF3(op isa.Op, ops []asmtext.Fragment) error {
	b, err := a.operandAt(ops, 0)
	if err != nil {
		return err
	}

	switch op.Opcode {
	case isa.OpIFU:
		pos := a.unit.EncodeF3(op, b, 0, 0)
		if err := a.blocks.Push(block.Frame{Kind: block.KindIf, Pos: pos}); err != nil {
			return a.err(KindCapacity, "%v", err)
		}
	case isa.OpJMPU:
		if len(ops) < 2 {
			return a.err(KindLex, "jmpu requires a target label")
		}
		pos := a.unit.EncodeF3(op, b, 0, 0)
		a.labelRelocs = append(a.labelRelocs, reloc.LabelRelocation{
			Pos: pos, Name: strings.TrimSpace(ops[1].Str), File: a.curFile, Line: a.curLine,
		})
		a.blocks.NoteInstruction()
	case isa.OpCALLU:
		if len(ops) < 2 {
			return a.err(KindLex, "callu requires a procedure name")
		}
		pos := a.unit.EncodeF3(op, b, 0, 0)
		a.procRelocs = append(a.procRelocs, reloc.ProcRelocation{
			Pos: pos, Name: strings.TrimSpace(ops[1].Str), File: a.curFile, Line: a.curLine,
		})
		a.blocks.NoteInstruction()
	default:
		return a.err(KindLex, "%s: unhandled F3 opcode", op.Name)
	}
	return nil
}

// parseCondExpr parses "!?cmp.x [&&|\|\|] !?cmp.y" (either term alone is
// also accepted, applying it to both slots of the F2 word).
func parseCondExpr(f asmtext.Fragment) (negX, negY bool, comb encode.Combinator, err error) {
	s := strings.TrimSpace(f.Str)
	comb = encode.CombOr

	var left, right string
	switch {
	case strings.Contains(s, "&&"):
		parts := strings.SplitN(s, "&&", 2)
		left, right = parts[0], parts[1]
		comb = encode.CombAnd
	case strings.Contains(s, "||"):
		parts := strings.SplitN(s, "||", 2)
		left, right = parts[0], parts[1]
		comb = encode.CombOr
	default:
		left, right = s, s
	}

	if left == right {
		// A single bare term names one cmp result for both slots of the
		// word (either "cmp.x" or "cmp.y" is accepted on its own).
		neg, _, err := parseCmpTermAny(left)
		return neg, neg, comb, err
	}

	negX, err = parseCmpTerm(left, 'x')
	if err != nil {
		return
	}
	negY, err = parseCmpTerm(right, 'y')
	return
}

func parseCmpTerm(s string, comp byte) (bool, error) {
	neg, name, err := parseCmpTermAny(s)
	if err != nil {
		return false, err
	}
	want := "cmp." + string(comp)
	if name != want {
		return false, fmt.Errorf("expected %q in condition expression, got %q", want, name)
	}
	return neg, nil
}

// parseCmpTermAny strips a leading negation and validates the remainder is
// "cmp.x" or "cmp.y", without pinning which one.
func parseCmpTermAny(s string) (neg bool, name string, err error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "!") {
		neg = true
		s = strings.TrimSpace(s[1:])
	}
	if s != "cmp.x" && s != "cmp.y" {
		return false, "", fmt.Errorf("expected \"cmp.x\" or \"cmp.y\" in condition expression, got %q", s)
	}
	return neg, s, nil
}
