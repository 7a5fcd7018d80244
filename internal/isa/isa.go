// Package isa holds the Maestro VPU opcode table and instruction-format
// metadata used by the assembler.
package isa

// Format names an instruction word encoding shape.
type Format byte

const (
	F0 Format = iota // NOP/END/EMIT — no operands
	F1               // ADD/DP3/DP4/DPH/MUL/SGE/SLT/MAX/MIN
	F1u              // EX2/LG2/FLR/RCP/RSQ/MOV
	F1c              // CMP
	F2               // BREAKC/CALLC/JMPC/IFC
	F3               // CALLU/JMPU/IFU
	F5               // MAD/MADI
	FMova            // MOVA
	FSetEmit         // SETEMIT
	FCall            // unconditional CALL
	FFor             // FOR
)

// Opcode values, fixed by the Maestro ISA. Values explicitly pinned by the
// original implementation's opcode table are kept exact; the gaps between
// them are filled in with the remaining mnemonics this assembler must
// support, in ISA order.
const (
	OpADD  = 0x00
	OpDP3  = 0x01
	OpDP4  = 0x02
	OpDPH  = 0x03
	OpDPHI = 0x04
	OpEX2  = 0x06
	OpLG2  = 0x07
	OpMUL  = 0x08
	OpSGE  = 0x09
	OpSGEI = 0x0A
	OpSLT  = 0x0B
	OpMAX  = 0x0C
	OpMIN  = 0x0D
	OpRCP  = 0x0E
	OpRSQ  = 0x0F
	OpSLTI = 0x10
	OpFLR  = 0x11
	OpMOVA = 0x12
	OpMOV  = 0x13

	OpNOP  = 0x21
	OpEND  = 0x22
	OpJMP  = 0x23 // unconditional jump, used internally to encode `.else`
	OpCALL = 0x24

	OpCALLU = 0x25
	OpCALLC = 0x26
	OpIFU   = 0x27
	OpIFC   = 0x28
	OpEMIT  = 0x2A

	OpSETEMIT = 0x2B
	OpJMPC    = 0x2C
	OpJMPU    = 0x2D
	OpCMP     = 0x2E

	OpBREAKC = 0x30
	OpFOR    = 0x31

	OpMAD = 0x38 // only the top 3 bits select this form
)

// Op describes one assembler mnemonic.
type Op struct {
	Name    string
	Opcode  byte
	Format  Format
	Inverts string // mnemonic to swap to when the operand order must flip ("" if none)
}

var table = []Op{
	{"add", OpADD, F1, ""},
	{"dp3", OpDP3, F1, ""},
	{"dp4", OpDP4, F1, ""},
	{"dph", OpDPH, F1, "dphi"},
	{"dphi", OpDPHI, F1, ""},
	{"mul", OpMUL, F1, ""},
	{"sge", OpSGE, F1, "sgei"},
	{"sgei", OpSGEI, F1, ""},
	{"slt", OpSLT, F1, "slti"},
	{"slti", OpSLTI, F1, ""},
	{"max", OpMAX, F1, ""},
	{"min", OpMIN, F1, ""},

	{"ex2", OpEX2, F1u, ""},
	{"lg2", OpLG2, F1u, ""},
	{"flr", OpFLR, F1u, ""},
	{"rcp", OpRCP, F1u, ""},
	{"rsq", OpRSQ, F1u, ""},
	{"mov", OpMOV, F1u, ""},

	{"cmp", OpCMP, F1c, ""},

	{"breakc", OpBREAKC, F2, ""},
	{"callc", OpCALLC, F2, ""},
	{"jmpc", OpJMPC, F2, ""},
	{"ifc", OpIFC, F2, ""},

	{"callu", OpCALLU, F3, ""},
	{"jmpu", OpJMPU, F3, ""},
	{"ifu", OpIFU, F3, ""},

	{"mad", OpMAD, F5, "madi"},
	{"madi", OpMAD | 1, F5, ""},

	{"mova", OpMOVA, FMova, ""},
	{"setemit", OpSETEMIT, FSetEmit, ""},
	{"call", OpCALL, FCall, ""},
	{"jmp", OpJMP, FCall, ""}, // unconditional jump; `.else` reserves one of these
	{"for", OpFOR, FFor, ""},

	{"nop", OpNOP, F0, ""},
	{"end", OpEND, F0, ""},
	{"emit", OpEMIT, F0, ""},
}

var byName = func() map[string]Op {
	m := make(map[string]Op, len(table))
	for _, op := range table {
		m[op.Name] = op
	}
	return m
}()

// Lookup returns the Op for a mnemonic (case-insensitive caller
// responsibility) and whether it exists.
func Lookup(name string) (Op, bool) {
	op, ok := byName[name]
	return op, ok
}

// IsBranchClass reports whether an opcode terminates a basic block for the
// purpose of the auto-NOP padding rule: JMPC, JMPU, CALL, CALLC, CALLU,
// or a FOR-terminating BREAKC.
func IsBranchClass(opcode byte) bool {
	switch opcode {
	case OpJMPC, OpJMPU, OpCALL, OpCALLC, OpCALLU, OpBREAKC:
		return true
	}
	return false
}

// HasOPDESC reports whether the opcode carries an OPDESC index in its low
// bits: opcode < 0x20, or (opcode &^ 1) == CMP.
func HasOPDESC(opcode byte) bool {
	return opcode < 0x20 || (opcode&^1) == OpCMP
}

// CmpCondition enumerates the six comparison operators available to CMP
// and to the F2 conditional-branch expression parser.
type CmpCondition byte

const (
	CmpEQ CmpCondition = iota
	CmpNE
	CmpLT
	CmpLE
	CmpGT
	CmpGE
)

var cmpNames = map[string]CmpCondition{
	"eq": CmpEQ, "ne": CmpNE, "lt": CmpLT, "le": CmpLE, "gt": CmpGT, "ge": CmpGE,
}

func LookupCmp(name string) (CmpCondition, bool) {
	c, ok := cmpNames[name]
	return c, ok
}
