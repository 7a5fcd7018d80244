// Package asm wires the scanner, symbol tables, encoders, and container
// emitter into the Maestro VPU assembler pipeline: one Assembler value
// threaded through every stage, holding no process-wide singleton state.
package asm

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-maestro/vshasm/internal/asmtext"
	"github.com/go-maestro/vshasm/internal/block"
	"github.com/go-maestro/vshasm/internal/container"
	"github.com/go-maestro/vshasm/internal/encode"
	"github.com/go-maestro/vshasm/internal/isa"
	"github.com/go-maestro/vshasm/internal/operand"
	"github.com/go-maestro/vshasm/internal/reloc"
	"github.com/go-maestro/vshasm/internal/symtab"
	"github.com/go-maestro/vshasm/internal/uniform"
)

// Options controls behavior not implied by the input language.
type Options struct {
	AutoNOP bool // if false, a required padding NOP becomes a warning instead
}

// Assembler is the single value every component operates against.
type Assembler struct {
	opts Options
	log  *slog.Logger

	symbols *symtab.Symbols
	globals *uniform.GlobalTable
	allocs  *uniform.Allocators
	unit    *encode.Unit
	blocks  *block.Stack

	procRelocs  []reloc.ProcRelocation
	labelRelocs []reloc.LabelRelocation

	modules []*moduleState
	cur     *moduleState

	curFile string
	curLine int

	warnings []string
}

// moduleState bundles a container.Module with the per-file bookkeeping
// needed to populate it (input register allocation, geometry mode).
// `.constfa` rows accumulate in the open block.Frame, not here.
type moduleState struct {
	mod          *container.Module
	nextFreeIn   int
	geoFVecStart int
}

func New(opts Options, log *slog.Logger) *Assembler {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Assembler{
		opts:    opts,
		log:     log,
		symbols: symtab.NewSymbols(),
		globals: uniform.NewGlobalTable(),
		allocs:  uniform.New(),
		unit:    encode.NewUnit(),
		blocks:  block.New(),
	}
}

// AssembleFile processes one input file in full: a fresh module, per-file
// symbol state, every line scanned and dispatched, the block stack
// confirmed balanced, and pending label relocations resolved before the
// per-file state is discarded.
func (a *Assembler) AssembleFile(name string, r io.Reader) error {
	a.curFile = name
	a.symbols.ClearPerFile()
	a.allocs.ClearLocal()
	a.labelRelocs = nil
	a.blocks = block.New()

	a.cur = &moduleState{mod: &container.Module{
		Filename:          name,
		Entrypoint:        "main",
		OutputUsedRegMask: map[byte]byte{},
	}}

	sc := asmtext.NewScanner(r, name)
	for sc.Scan() {
		line := sc.Line()
		if !line.Command.IsEmpty() {
			a.curLine = line.Command.Line
		} else if len(line.Labels) > 0 {
			a.curLine = line.Labels[0].Line
		}
		if err := a.dispatchLabels(line.Labels); err != nil {
			return err
		}
		if line.Command.IsEmpty() {
			continue
		}
		if err := a.dispatchLine(line); err != nil {
			return err
		}
	}
	if sc.Err() != nil {
		return a.err(KindLex, "%v", sc.Err())
	}

	if !a.blocks.Empty() {
		return a.err(KindStructure, "unclosed block at end of file (depth %d)", a.blocks.Depth())
	}

	if err := reloc.ApplyLabels(a.unit.Code, a.symbols.Labels, a.labelRelocs); err != nil {
		return asErr(a.curFile, err)
	}

	a.modules = append(a.modules, a.cur)
	return nil
}

func (a *Assembler) dispatchLabels(labels []asmtext.Fragment) error {
	for _, lbl := range labels {
		name := lbl.Str
		if err := a.symbols.Labels.Insert(name, a.unit.Code.Pos()); err != nil {
			return a.err(KindSymbol, "%v", err)
		}
	}
	return nil
}

func (a *Assembler) dispatchLine(line asmtext.Line) error {
	cmd := line.Command.Str

	if top, ok := a.blocks.Top(); ok && top.Kind == block.KindArray {
		raw := strings.TrimSpace(cmd + " " + line.Args.Str)
		if strings.HasPrefix(raw, "(") {
			return a.ArrayLine(asmtext.NewFragment(a.curFile, a.curLine, raw))
		}
	}

	if len(cmd) > 0 && cmd[0] == '.' {
		return a.dispatchDirective(cmd, line.Args)
	}
	return a.dispatchInstruction(cmd, line.Args)
}

// Finish relocates every procedure call, resolves each module's
// entrypoint, and serializes the whole run into a container.Program.
func (a *Assembler) Finish() (*container.Program, error) {
	if err := reloc.ApplyProcs(a.unit.Code, a.symbols.Procedures, a.procRelocs); err != nil {
		return nil, asErr("", err)
	}

	p := &container.Program{Code: a.unit.Code.Words}
	for i := 0; i < a.unit.Pool.Len(); i++ {
		p.OpDescs = append(p.OpDescs, a.unit.Pool.Value(i))
	}

	for _, ms := range a.modules {
		m := ms.mod
		if !m.NoDVLE {
			proc, ok := a.symbols.Procedures.Lookup(m.Entrypoint)
			if !ok {
				return nil, &AsmError{File: m.Filename, Kind: KindSymbol, Msg: fmt.Sprintf("undefined entrypoint %q", m.Entrypoint)}
			}
			m.EntryStart = proc.Start
			m.EntryEnd = proc.Start + proc.Size
		}
		p.Modules = append(p.Modules, m)
	}
	return p, nil
}

// Warnings returns every non-fatal diagnostic collected during assembly.
// Warnings are reported but never abort assembly.
func (a *Assembler) Warnings() []string { return a.warnings }

// UniformNames returns the shared-space global uniform table's names in
// declaration order, for header.Generate's walk.
func (a *Assembler) UniformNames() []string { return a.globals.Names() }

// UniformKind resolves a global uniform name to the (class, position,
// size) triple header.Generate needs, implementing its kindOf callback.
// Position is rebased relative to its class's register-space base, and
// the boolean class reports as "FLAG" rather than "BOOL", matching the
// companion header's macro naming.
func (a *Assembler) UniformKind(name string) (class string, pos, size int, ok bool) {
	rec, found := a.globals.Lookup(name)
	if !found {
		return "", 0, 0, false
	}
	pos = rec.Position
	switch rec.Kind {
	case uniform.FVec:
		class = "FVEC"
		pos -= operand.CBase
	case uniform.IVec:
		class = "IVEC"
		pos -= operand.IBase
	case uniform.Bool:
		class = "FLAG"
		pos -= operand.BBase
	}
	return class, pos, rec.Size, true
}

func (a *Assembler) warn(format string, args ...any) {
	a.warnings = append(a.warnings, fmt.Sprintf("%s:%d: warning: %s", a.curFile, a.curLine, fmt.Sprintf(format, args...)))
}

func asErr(file string, err error) *AsmError {
	return &AsmError{File: file, Kind: KindSymbol, Msg: err.Error()}
}

// resolveOperand parses one register/swizzle token against the current
// file's alias table.
func (a *Assembler) resolveOperand(tok asmtext.Fragment) (operand.Reg, error) {
	r, err := operand.Parse(tok, a.symbols)
	if err != nil {
		return operand.Reg{}, a.err(KindRange, "%v", err)
	}
	return r, nil
}

// opLookup resolves a mnemonic, erroring with the lex taxonomy used for
// unrecognized tokens.
func (a *Assembler) opLookup(name string) (isa.Op, error) {
	op, ok := isa.Lookup(name)
	if !ok {
		return isa.Op{}, a.err(KindLex, "unknown mnemonic %q", name)
	}
	return op, nil
}
