// Package container implements the DVLB/DVLP/DVLE binary emitter and the
// f24 float encoding it depends on. It owns the on-disk data model too,
// since the emitter has the most direct stake in its exact shape; the
// top-level assembler populates a Program as it processes input files
// and the header generator reads the same structure back out, read-only.
package container

// ConstantKind tags the union-typed constant-table entry: FVec/IVec/Bool
// never share storage.
type ConstantKind byte

const (
	ConstFVec ConstantKind = iota
	ConstIVec
	ConstBool
)

// Constant is one constant-table entry bound to a local uniform register.
type Constant struct {
	Kind    ConstantKind
	RegID   int // class-relative register index (class base already subtracted); written as is
	FVec    [4]float32
	IVec    [4]byte
	BoolVal bool
}

// OutputType enumerates the fixed-function output semantics recognized
// by `.out`.
type OutputType uint16

const (
	OutPos OutputType = iota
	OutNQuat
	OutClr
	OutTCoord0
	OutTCoord0W
	OutTCoord1
	OutTCoord2
	OutView
	OutDummy
)

// Output is one `.out` declaration.
type Output struct {
	Type OutputType
	Reg  byte
	Mask byte // 4-bit component write mask
}

// Uniform is one module-local uniform-table entry: a name bound to a
// position in one of the three register classes.
type Uniform struct {
	Name     string
	Position int // flat register index in its class's space
	Size     int // contiguous register count (>1 for array uniforms)
	IsFVec   bool
}

// GeoShaderType mirrors the `.gsh` submodes.
type GeoShaderType byte

const (
	GeoNone GeoShaderType = iota
	GeoPoint
	GeoVariable
	GeoFixed
)

// Module is one input file's DVLE view.
type Module struct {
	Filename    string
	Entrypoint  string
	EntryStart  int
	EntryEnd    int
	NoDVLE      bool
	IsGeoShader bool
	CompatGeo   bool
	IsMerge     bool
	InputMask   uint16
	OutputMask  uint16

	GeoType        GeoShaderType
	GeoFixedStart  byte
	GeoVariableNum byte
	GeoFixedNum    byte

	Uniforms  []Uniform
	Constants []Constant
	Outputs   []Output

	// OutputUsedRegMask tracks which (reg,component) pairs are already
	// claimed by an output, for the mask-collision check.
	OutputUsedRegMask map[byte]byte
}

// Program is the whole assembly run's output: one shared code buffer and
// OPDESC pool, and the ordered list of per-file modules.
type Program struct {
	Code    []uint32
	OpDescs []uint32
	Modules []*Module
}
