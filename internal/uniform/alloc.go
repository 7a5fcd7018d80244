// Package uniform implements the disjoint uniform register allocators:
// three classes (float-vector, integer-vector, boolean), each with a
// bidirectional bump scheme, in a "default" and a "geometry-shader"
// profile.
package uniform

import "github.com/go-maestro/vshasm/internal/operand"

// Kind identifies a uniform register class.
type Kind byte

const (
	FVec Kind = iota
	IVec
	Bool
)

// SubAllocator is one class's bidirectional bump allocator: globals grow
// up from start, locals grow down from end, and bound tracks the
// low-water mark of any local allocation so AllocGlobal can never collide
// with space already claimed by a local array.
type SubAllocator struct {
	rangeEnd int // initial value of end, restored by ClearLocal
	start    int
	end      int
	bound    int
}

func newSubAllocator(base, count int) *SubAllocator {
	end := base + count
	return &SubAllocator{rangeEnd: end, start: base, end: end, bound: end}
}

// AllocGlobal bumps `start` up by n registers, failing if doing so would
// cross into space already reserved by a local allocation.
func (a *SubAllocator) AllocGlobal(n int) (pos int, ok bool) {
	if a.start+n > a.bound {
		return 0, false
	}
	pos = a.start
	a.start += n
	return pos, true
}

// AllocLocal bumps `end` down by n registers, failing if doing so would
// cross below the current global high-water mark.
func (a *SubAllocator) AllocLocal(n int) (pos int, ok bool) {
	newEnd := a.end - n
	if newEnd < a.start {
		return 0, false
	}
	a.end = newEnd
	if a.end < a.bound {
		a.bound = a.end
	}
	return a.end, true
}

// ClearLocal resets end/bound to the allocator's initial end. Intended
// to run between files; globals persist across it.
func (a *SubAllocator) ClearLocal() {
	a.end = a.rangeEnd
	a.bound = a.rangeEnd
}

// Bundle holds the three class sub-allocators active for one shader
// profile (default, or geometry-shader).
type Bundle struct {
	FVec *SubAllocator
	IVec *SubAllocator
	Bool *SubAllocator
}

func newDefaultBundle() *Bundle {
	return &Bundle{
		FVec: newSubAllocator(operand.CBase, operand.CCount),
		IVec: newSubAllocator(operand.IBase, operand.ICount),
		Bool: newSubAllocator(operand.BBase, operand.BCount),
	}
}

// Sub returns the sub-allocator for kind.
func (b *Bundle) Sub(kind Kind) *SubAllocator {
	switch kind {
	case FVec:
		return b.FVec
	case IVec:
		return b.IVec
	default:
		return b.Bool
	}
}

func (b *Bundle) ClearLocal() {
	b.FVec.ClearLocal()
	b.IVec.ClearLocal()
	b.Bool.ClearLocal()
}

// Allocators bundles the default and geometry-shader profiles.
type Allocators struct {
	Default  *Bundle
	Geometry *Bundle
}

func New() *Allocators {
	return &Allocators{
		Default:  newDefaultBundle(),
		Geometry: newDefaultBundle(),
	}
}

// SetGeometryFVecStart narrows the geometry-shader bundle's float-vector
// range to [firstFree, 0x80), for the `.gsh` directive.
func (a *Allocators) SetGeometryFVecStart(firstFree int) {
	a.Geometry.FVec = newSubAllocator(firstFree, operand.CBase+operand.CCount-firstFree)
}

// ClearLocal resets the local high-water marks of both bundles between
// input files.
func (a *Allocators) ClearLocal() {
	a.Default.ClearLocal()
	a.Geometry.ClearLocal()
}
