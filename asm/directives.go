package asm

import (
	"strconv"
	"strings"

	"github.com/go-maestro/vshasm/internal/asmtext"
	"github.com/go-maestro/vshasm/internal/block"
	"github.com/go-maestro/vshasm/internal/container"
	"github.com/go-maestro/vshasm/internal/encode"
	"github.com/go-maestro/vshasm/internal/isa"
	"github.com/go-maestro/vshasm/internal/operand"
	"github.com/go-maestro/vshasm/internal/symtab"
	"github.com/go-maestro/vshasm/internal/uniform"
)

// dispatchDirective is a name -> handler table for every pseudo-op
// recognized by the assembler.
func (a *Assembler) dispatchDirective(name string, args asmtext.Fragment) error {
	switch name {
	case ".proc":
		return a.dirProc(args)
	case ".end":
		return a.dirEnd()
	case ".else":
		return a.dirElse()
	case ".alias":
		return a.dirAlias(args)
	case ".fvec":
		return a.dirUniformDecl(args, uniform.FVec)
	case ".ivec":
		return a.dirUniformDecl(args, uniform.IVec)
	case ".bool":
		return a.dirUniformDecl(args, uniform.Bool)
	case ".constf":
		return a.dirConst(args, uniform.FVec)
	case ".consti":
		return a.dirConst(args, uniform.IVec)
	case ".constfa":
		return a.dirConstArray(args)
	case ".setf":
		return a.dirSet(args, uniform.FVec)
	case ".seti":
		return a.dirSet(args, uniform.IVec)
	case ".setb":
		return a.dirSetBool(args)
	case ".in":
		return a.dirIn(args)
	case ".out":
		return a.dirOut(args)
	case ".entry":
		name, _ := firstWord(args)
		a.cur.mod.Entrypoint = name
		return nil
	case ".nodvle":
		a.cur.mod.NoDVLE = true
		return nil
	case ".gsh":
		return a.dirGsh(args)
	}
	return a.err(KindLex, "unknown directive %q", name)
}

func firstWord(f asmtext.Fragment) (string, asmtext.Fragment) {
	f = f.ConsumeWhitespace()
	tok, rest := f.ConsumeWhile(asmtext.IsWordChar)
	return tok.Str, rest.ConsumeWhitespace()
}

func (a *Assembler) dirProc(args asmtext.Fragment) error {
	name, _ := firstWord(args)
	if name == "" {
		return a.err(KindLex, ".proc requires a name")
	}
	if err := a.blocks.Push(block.Frame{Kind: block.KindProc, Pos: a.unit.Code.Pos(), Name: name}); err != nil {
		return a.err(KindCapacity, "%v", err)
	}
	return nil
}

func (a *Assembler) nopOp() isa.Op {
	op, _ := isa.Lookup("nop")
	return op
}

func (a *Assembler) jmpOp() isa.Op {
	op, _ := isa.Lookup("jmp")
	return op
}

func (a *Assembler) padIfNeeded(reason string) {
	if a.opts.AutoNOP {
		a.unit.EncodeF0(a.nopOp())
		a.blocks.NoteInstruction()
		return
	}
	a.warn("a padding NOP is required here: %s", reason)
}

// lastWordIsBranchClass reports whether the most recently emitted code
// word (if any) used a branch-class opcode.
func (a *Assembler) lastWordIsBranchClass() bool {
	pos := a.unit.Code.Pos()
	if pos == 0 {
		return false
	}
	word := a.unit.Code.At(pos - 1)
	return isa.IsBranchClass(byte(word >> 26))
}

func (a *Assembler) dirEnd() error {
	if a.blocks.LastWasEnd() {
		a.padIfNeeded("two successive IF/FOR blocks closed back to back")
	}
	if a.lastWordIsBranchClass() {
		a.padIfNeeded("block ends on a branch-class instruction")
	}

	frame, err := a.blocks.Pop()
	if err != nil {
		return a.err(KindStructure, "%v", err)
	}

	switch frame.Kind {
	case block.KindProc:
		size := a.unit.Code.Pos() - frame.Pos
		if size < 1 {
			a.padIfNeeded("PROC body must hold at least one instruction")
			size = a.unit.Code.Pos() - frame.Pos
		}
		proc := symtab.Procedure{Start: frame.Pos, Size: size}
		if err := a.symbols.Procedures.Insert(frame.Name, proc); err != nil {
			return a.err(KindSymbol, "%v", err)
		}
	case block.KindIf:
		if a.unit.Code.Pos()-frame.Pos < 2 {
			a.padIfNeeded("IF body must hold at least two instructions")
		}
		curPos := a.unit.Code.Pos()
		if frame.HasElse {
			word := a.unit.Code.At(frame.ElsePos)
			a.unit.Code.Patch(frame.ElsePos, encode.PatchDelta(word, curPos-frame.ElsePos))
		} else {
			word := a.unit.Code.At(frame.Pos)
			a.unit.Code.Patch(frame.Pos, encode.PatchLabelTarget(word, curPos))
		}
		a.blocks.NoteEnd()
	case block.KindFor:
		if a.unit.Code.Pos()-frame.Pos < 2 {
			a.padIfNeeded("FOR body must hold at least two instructions")
		}
		word := a.unit.Code.At(frame.Pos)
		a.unit.Code.Patch(frame.Pos, encode.PatchLabelTarget(word, a.unit.Code.Pos()-1))
		exit := a.unit.Code.Pos()
		for _, pos := range frame.Breaks {
			a.unit.Code.Patch(pos, encode.PatchLabelTarget(a.unit.Code.At(pos), exit))
		}
		a.blocks.NoteEnd()
	case block.KindArray:
		return a.commitArray(frame)
	}
	return nil
}

func (a *Assembler) dirElse() error {
	top, ok := a.blocks.Top()
	if !ok || top.Kind != block.KindIf || top.HasElse {
		return a.err(KindStructure, ".else without a matching open IF")
	}
	if a.lastWordIsBranchClass() {
		a.padIfNeeded("block ends on a branch-class instruction before .else")
	}

	elsePos := a.unit.EncodeFCall(a.jmpOp(), 0, 0)
	top.ElsePos = elsePos
	top.HasElse = true

	ifWord := a.unit.Code.At(top.Pos)
	a.unit.Code.Patch(top.Pos, encode.PatchLabelTarget(ifWord, a.unit.Code.Pos()))
	return nil
}

func (a *Assembler) dirAlias(args asmtext.Fragment) error {
	name, rest := firstWord(args)
	if name == "" {
		return a.err(KindLex, ".alias requires a name")
	}
	reg, err := a.resolveOperand(rest)
	if err != nil {
		return err
	}
	if err := a.symbols.Aliases.Insert(name, reg); err != nil {
		return a.err(KindSymbol, "%v", err)
	}
	return nil
}

func (a *Assembler) dirUniformDecl(args asmtext.Fragment, kind uniform.Kind) error {
	for _, piece := range asmtext.SplitComma(args) {
		name, size, err := parseNameSize(piece)
		if err != nil {
			return a.err(KindLex, "%v", err)
		}
		if err := a.declareUniform(name, kind, size); err != nil {
			return err
		}
	}
	return nil
}

func (a *Assembler) declareUniform(name string, kind uniform.Kind, size int) error {
	if a.cur.mod.IsGeoShader {
		sub := a.allocs.Geometry.Sub(kind)
		pos, ok := sub.AllocGlobal(size)
		if !ok {
			return a.err(KindCapacity, "out of %s uniform registers for %q", uniform.KindName(kind), name)
		}
		return a.bindUniformAlias(name, kind, pos, size)
	}
	rec, err := a.globals.Declare(name, kind, size, a.allocs)
	if err != nil {
		return a.err(KindSymbol, "%v", err)
	}
	return a.bindUniformAlias(name, kind, rec.Position, size)
}

func (a *Assembler) bindUniformAlias(name string, kind uniform.Kind, pos, size int) error {
	reg, err := operand.NewBareReg(letterOf(kind), pos-baseOf(kind))
	if err != nil {
		return a.err(KindRange, "%v", err)
	}
	if !asmtext.IsHidden(name) {
		a.cur.mod.Uniforms = append(a.cur.mod.Uniforms, container.Uniform{
			Name: name, Position: pos, Size: size, IsFVec: kind == uniform.FVec,
		})
	}
	if err := a.symbols.Aliases.Insert(name, reg); err != nil {
		return a.err(KindSymbol, "%v", err)
	}
	return nil
}

func baseOf(kind uniform.Kind) int {
	switch kind {
	case uniform.FVec:
		return operand.CBase
	case uniform.IVec:
		return operand.IBase
	default:
		return operand.BBase
	}
}

func letterOf(k uniform.Kind) byte {
	switch k {
	case uniform.FVec:
		return 'c'
	case uniform.IVec:
		return 'i'
	default:
		return 'b'
	}
}

func parseNameSize(f asmtext.Fragment) (string, int, error) {
	f = f.ConsumeWhitespace()
	name, rest := f.ConsumeWhile(asmtext.IsIdentChar)
	if !asmtext.IsValidIdentifier(name.Str) {
		return "", 0, errBadIdent(name.Str)
	}
	size := 1
	rest = rest.ConsumeWhitespace()
	if rest.StartsWithByte('[') {
		inner, _ := rest.Consume(1).ConsumeUntilByte(']')
		n, err := strconv.Atoi(strings.TrimSpace(inner.Str))
		if err != nil {
			return "", 0, err
		}
		size = n
	}
	return name.Str, size, nil
}

func (a *Assembler) currentAllocator(kind uniform.Kind) *uniform.SubAllocator {
	if a.cur.mod.IsGeoShader {
		return a.allocs.Geometry.Sub(kind)
	}
	return a.allocs.Default.Sub(kind)
}

func (a *Assembler) dirConst(args asmtext.Fragment, kind uniform.Kind) error {
	name, rest := parseNameParen(args)
	vals, err := parseQuad(rest)
	if err != nil {
		return a.err(KindLex, "%v", err)
	}
	pos, ok := a.currentAllocator(kind).AllocLocal(1)
	if !ok {
		return a.err(KindCapacity, "constant table full for %q", name)
	}
	c := container.Constant{Kind: constKind(kind), RegID: pos - baseOf(kind)}
	if kind == uniform.FVec {
		c.FVec = vals
	} else {
		c.IVec = [4]byte{byte(vals[0]), byte(vals[1]), byte(vals[2]), byte(vals[3])}
	}
	a.cur.mod.Constants = append(a.cur.mod.Constants, c)
	reg, err := operand.NewBareReg(letterOf(kind), pos-baseOf(kind))
	if err != nil {
		return a.err(KindRange, "%v", err)
	}
	if err := a.symbols.Aliases.Insert(name, reg); err != nil {
		return a.err(KindSymbol, "%v", err)
	}
	return nil
}

func constKind(k uniform.Kind) container.ConstantKind {
	switch k {
	case uniform.FVec:
		return container.ConstFVec
	case uniform.IVec:
		return container.ConstIVec
	default:
		return container.ConstBool
	}
}

func (a *Assembler) dirConstArray(args asmtext.Fragment) error {
	name, size, err := parseNameSize(args)
	if err != nil {
		return a.err(KindLex, "%v", err)
	}
	if err := a.blocks.Push(block.Frame{Kind: block.KindArray, Name: name, ArraySize: size}); err != nil {
		return a.err(KindCapacity, "%v", err)
	}
	return nil
}

// ArrayLine handles a bare `(a,b,c,d)` line found while the innermost open
// block is a `.constfa` array, accumulating one row per call.
func (a *Assembler) ArrayLine(args asmtext.Fragment) error {
	vals, err := parseQuad(args)
	if err != nil {
		return a.err(KindLex, "%v", err)
	}
	top, ok := a.blocks.Top()
	if !ok || top.Kind != block.KindArray {
		return a.err(KindStructure, "constant entry outside a .constfa block")
	}
	top.Consts = append(top.Consts, block.ArrayConst{A: vals[0], B: vals[1], C: vals[2], D: vals[3]})
	return nil
}

func (a *Assembler) commitArray(frame block.Frame) error {
	size := frame.ArraySize
	if size <= 1 {
		size = len(frame.Consts)
	}
	base, ok := a.currentAllocator(uniform.FVec).AllocLocal(size)
	if !ok {
		return a.err(KindCapacity, "out of float uniform registers for array %q", frame.Name)
	}
	for i, c := range frame.Consts {
		a.cur.mod.Constants = append(a.cur.mod.Constants, container.Constant{
			Kind: container.ConstFVec, RegID: base + i - operand.CBase,
			FVec: [4]float32{c.A, c.B, c.C, c.D},
		})
	}
	reg, err := operand.NewBareReg('c', base-operand.CBase)
	if err != nil {
		return a.err(KindRange, "%v", err)
	}
	if !asmtext.IsHidden(frame.Name) {
		a.cur.mod.Uniforms = append(a.cur.mod.Uniforms, container.Uniform{
			Name: frame.Name, Position: base, Size: size, IsFVec: true,
		})
	}
	if err := a.symbols.Aliases.Insert(frame.Name, reg); err != nil {
		return a.err(KindSymbol, "%v", err)
	}
	return nil
}

func (a *Assembler) dirSet(args asmtext.Fragment, kind uniform.Kind) error {
	name, rest := firstWord(args)
	vals, err := parseQuad(rest)
	if err != nil {
		return a.err(KindLex, "%v", err)
	}
	reg, err := a.resolveOperand(asmtext.NewFragment(a.curFile, a.curLine, name))
	if err != nil {
		return err
	}
	c := container.Constant{Kind: constKind(kind), RegID: int(reg.EffectiveFlat()) - baseOf(kind)}
	if kind == uniform.FVec {
		c.FVec = vals
	} else {
		c.IVec = [4]byte{byte(vals[0]), byte(vals[1]), byte(vals[2]), byte(vals[3])}
	}
	a.cur.mod.Constants = append(a.cur.mod.Constants, c)
	return nil
}

func (a *Assembler) dirSetBool(args asmtext.Fragment) error {
	name, rest := firstWord(args)
	onoff, _ := firstWord(rest)
	on := onoff == "on" || onoff == "1" || onoff == "true"
	reg, err := a.resolveOperand(asmtext.NewFragment(a.curFile, a.curLine, name))
	if err != nil {
		return err
	}
	a.cur.mod.Constants = append(a.cur.mod.Constants, container.Constant{
		Kind: container.ConstBool, RegID: int(reg.EffectiveFlat()) - operand.BBase, BoolVal: on,
	})
	return nil
}

func (a *Assembler) dirIn(args asmtext.Fragment) error {
	name, rest := firstWord(args)
	if name == "" {
		return a.err(KindLex, ".in requires a name")
	}
	var idx int
	if !rest.IsEmpty() {
		regTok, _ := rest.ConsumeWhile(asmtext.IsWordChar)
		reg, err := a.resolveOperand(regTok)
		if err != nil {
			return err
		}
		idx = reg.Index
	} else {
		idx = nextFreeInputReg(a.cur.mod)
	}
	a.cur.mod.InputMask |= 1 << uint(idx)
	reg, err := operand.NewBareReg('v', idx)
	if err != nil {
		return a.err(KindRange, "%v", err)
	}
	if err := a.symbols.Aliases.Insert(name, reg); err != nil {
		return a.err(KindSymbol, "%v", err)
	}
	return nil
}

func nextFreeInputReg(m *container.Module) int {
	for i := 0; i < operand.VCount; i++ {
		if m.InputMask&(1<<uint(i)) == 0 {
			return i
		}
	}
	return operand.VCount - 1
}

var outputTypes = map[string]container.OutputType{
	"position": container.OutPos, "pos": container.OutPos,
	"normalquat": container.OutNQuat, "nquat": container.OutNQuat,
	"color": container.OutClr, "clr": container.OutClr,
	"texcoord0": container.OutTCoord0, "tcoord0": container.OutTCoord0,
	"texcoord0w": container.OutTCoord0W, "tcoord0w": container.OutTCoord0W,
	"texcoord1": container.OutTCoord1, "tcoord1": container.OutTCoord1,
	"texcoord2": container.OutTCoord2, "tcoord2": container.OutTCoord2,
	"view": container.OutView, "dummy": container.OutDummy,
}

func (a *Assembler) dirOut(args asmtext.Fragment) error {
	name, rest := firstWord(args)
	typeTok, rest := firstWord(rest)
	typeName := typeTok
	mask := byte(0xF)
	if i := strings.IndexByte(typeTok, '.'); i >= 0 {
		typeName = typeTok[:i]
		mask = parseSwizzleMask(typeTok[i+1:])
	}
	outType, ok := outputTypes[typeName]
	if !ok {
		return a.err(KindLex, "unknown output type %q", typeName)
	}

	var regIdx int
	if !rest.IsEmpty() {
		regTok, _ := rest.ConsumeWhile(asmtext.IsWordChar)
		reg, err := a.resolveOperand(regTok)
		if err != nil {
			return err
		}
		regIdx = reg.Index
	} else {
		regIdx = nextFreeOutputReg(a.cur.mod)
	}

	if existing := a.cur.mod.OutputUsedRegMask[byte(regIdx)]; existing&mask != 0 {
		return a.err(KindSemantic, "output register o%d mask collision", regIdx)
	}
	a.cur.mod.OutputUsedRegMask[byte(regIdx)] |= mask
	a.cur.mod.OutputMask |= 1 << uint(regIdx)
	a.cur.mod.Outputs = append(a.cur.mod.Outputs, container.Output{Type: outType, Reg: byte(regIdx), Mask: mask})

	if name != "" && name != "-" {
		reg, err := operand.NewBareReg('o', regIdx)
		if err != nil {
			return a.err(KindRange, "%v", err)
		}
		if err := a.symbols.Aliases.Insert(name, reg); err != nil {
			return a.err(KindSymbol, "%v", err)
		}
	}
	return nil
}

func nextFreeOutputReg(m *container.Module) int {
	for i := 0; i < operand.OCount; i++ {
		if m.OutputMask&(1<<uint(i)) == 0 {
			return i
		}
	}
	return operand.OCount - 1
}

func parseSwizzleMask(s string) byte {
	var m byte
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case 'x', 'r', 's':
			m |= 1 << 0
		case 'y', 'g', 't':
			m |= 1 << 1
		case 'z', 'b', 'p':
			m |= 1 << 2
		case 'w', 'a', 'q':
			m |= 1 << 3
		}
	}
	return m
}

func (a *Assembler) dirGsh(args asmtext.Fragment) error {
	a.cur.mod.IsGeoShader = true
	mode, rest := firstWord(args)
	switch mode {
	case "point":
		a.cur.mod.GeoType = container.GeoPoint
	case "variable":
		a.cur.mod.GeoType = container.GeoVariable
		countTok, _ := firstWord(rest)
		n, _ := strconv.Atoi(countTok)
		a.cur.mod.GeoVariableNum = byte(n)
	case "fixed":
		a.cur.mod.GeoType = container.GeoFixed
		regTok, rest2 := firstWord(rest)
		reg, err := a.resolveOperand(asmtext.NewFragment(a.curFile, a.curLine, regTok))
		if err != nil {
			return err
		}
		countTok, _ := firstWord(rest2)
		n, _ := strconv.Atoi(countTok)
		a.cur.mod.GeoFixedStart = byte(reg.Index)
		a.cur.mod.GeoFixedNum = byte(n)
		a.allocs.SetGeometryFVecStart(operand.CBase + reg.Index + n)
	default:
		a.cur.mod.CompatGeo = true
	}
	return nil
}

func parseNameParen(f asmtext.Fragment) (name string, rest asmtext.Fragment) {
	f = f.ConsumeWhitespace()
	n, remain := f.ConsumeWhile(asmtext.IsIdentChar)
	return n.Str, remain
}

func parseQuad(f asmtext.Fragment) ([4]float32, error) {
	f = f.ConsumeWhitespace()
	if f.StartsWithByte('(') {
		f = f.Consume(1)
	}
	inner, _ := f.ConsumeUntilByte(')')
	parts := strings.Split(inner.Str, ",")
	var out [4]float32
	for i := 0; i < 4 && i < len(parts); i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 32)
		if err != nil {
			return out, err
		}
		out[i] = float32(v)
	}
	return out, nil
}

type identError struct{ s string }

func (e *identError) Error() string { return "invalid identifier " + strconv.Quote(e.s) }

func errBadIdent(s string) error { return &identError{s} }
