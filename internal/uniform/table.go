package uniform

import (
	"fmt"

	"github.com/go-maestro/vshasm/internal/symtab"
)

// Record is a declared uniform, shared or per-module.
type Record struct {
	Name     string
	Position int
	Size     int // number of contiguous registers
	Kind     Kind
}

// GlobalTable is the shared-space float/int/bool uniform table: a single
// declaration-ordered name -> Record map used across all non-geometry
// input files. Labels live in a per-file namespace; procedures and
// shared-space uniforms live globally.
type GlobalTable struct {
	t *symtab.Table[Record]
}

func NewGlobalTable() *GlobalTable {
	return &GlobalTable{t: symtab.New[Record]()}
}

// Declare resolves a shared-space uniform declaration: if name was already
// declared, its type and size must match and its existing position is
// reused; otherwise a new slot is allocated via alloc.
func (g *GlobalTable) Declare(name string, kind Kind, size int, alloc *Allocators) (Record, error) {
	if existing, ok := g.t.Lookup(name); ok {
		if existing.Kind != kind || existing.Size != size {
			return Record{}, fmt.Errorf(
				"uniform '%s' redeclared with different type or size (was %s[%d], now %s[%d])",
				name, kindName(existing.Kind), existing.Size, kindName(kind), size)
		}
		return existing, nil
	}

	pos, ok := alloc.Default.Sub(kind).AllocGlobal(size)
	if !ok {
		return Record{}, fmt.Errorf("out of %s uniform registers for '%s'", kindName(kind), name)
	}
	rec := Record{Name: name, Position: pos, Size: size, Kind: kind}
	if err := g.t.Insert(name, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Names returns declared uniform names in declaration order.
func (g *GlobalTable) Names() []string { return g.t.Names() }

func (g *GlobalTable) Lookup(name string) (Record, bool) { return g.t.Lookup(name) }

func kindName(k Kind) string {
	switch k {
	case FVec:
		return "fvec"
	case IVec:
		return "ivec"
	default:
		return "bool"
	}
}

// KindName exports kindName for callers outside the package (header/module
// reporting).
func KindName(k Kind) string { return kindName(k) }
