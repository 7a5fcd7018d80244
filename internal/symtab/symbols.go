package symtab

import "github.com/go-maestro/vshasm/internal/operand"

// Procedure is the record stored for a named PROC block, filled in when
// the block's matching `.end` pops it off the block stack.
type Procedure struct {
	Start int
	Size  int
}

// Symbols bundles the per-run and per-file symbol tables described in
// DATA MODEL's Lifecycle paragraph.
type Symbols struct {
	Aliases    *Table[operand.Reg] // per-file
	Labels     *Table[int]         // per-file; value = code word index
	Procedures *Table[Procedure]   // global
}

func NewSymbols() *Symbols {
	return &Symbols{
		Aliases:    New[operand.Reg](),
		Labels:     New[int](),
		Procedures: New[Procedure](),
	}
}

// ClearPerFile resets the per-file tables (aliases, labels) between input
// files, leaving global tables (procedures) untouched.
func (s *Symbols) ClearPerFile() {
	s.Aliases.Clear()
	s.Labels.Clear()
}

// LookupAlias implements operand.AliasResolver.
func (s *Symbols) LookupAlias(name string) (operand.Reg, bool) {
	return s.Aliases.Lookup(name)
}
