// Package reloc implements the two-pass relocator: procedure calls are
// patched once every input file has been assembled (procedure names are
// global and may be defined after their first call site); labels are
// patched per-file, at end of file, against that file's own label table.
package reloc

import (
	"fmt"

	"github.com/go-maestro/vshasm/internal/encode"
	"github.com/go-maestro/vshasm/internal/symtab"
)

// ProcRelocation records a CALL/CALLC/CALLU word awaiting the named
// procedure's (start, size), known only once every file has been
// assembled.
type ProcRelocation struct {
	Pos  int
	Name string
	File string
	Line int
}

// LabelRelocation records a branch-class word awaiting a label's code
// position, resolved at the end of the file that defined it.
type LabelRelocation struct {
	Pos   int
	Name  string
	File  string
	Line  int
	IsFor bool // FOR's target is (dst-1), not dst; see ApplyLabels
}

// ApplyLabels patches every pending label relocation against labels,
// called once at the end of each input file. Labels don't survive file
// boundaries, so this must happen before they're cleared.
func ApplyLabels(code *encode.Buffer, labels *symtab.Table[int], relocs []LabelRelocation) error {
	for _, r := range relocs {
		dst, ok := labels.Lookup(r.Name)
		if !ok {
			return fmt.Errorf("%s:%d: undefined label %q", r.File, r.Line, r.Name)
		}
		if r.IsFor {
			dst--
		}
		code.Patch(r.Pos, encode.PatchLabelTarget(code.At(r.Pos), dst))
	}
	return nil
}

// ApplyProcs patches every pending procedure-call relocation against the
// (global) procedure table, called once after all input files have been
// assembled.
func ApplyProcs(code *encode.Buffer, procs *symtab.Table[symtab.Procedure], relocs []ProcRelocation) error {
	for _, r := range relocs {
		proc, ok := procs.Lookup(r.Name)
		if !ok {
			return fmt.Errorf("%s:%d: undefined procedure %q", r.File, r.Line, r.Name)
		}
		code.Patch(r.Pos, encode.PatchProcCall(code.At(r.Pos), proc.Start, proc.Size))
	}
	return nil
}
