package isa

import "testing"

func TestLookupKnownMnemonic(t *testing.T) {
	op, ok := Lookup("mad")
	if !ok {
		t.Fatal("expected mad to be found")
	}
	if op.Opcode != OpMAD || op.Format != F5 {
		t.Errorf("got %+v", op)
	}
	if op.Inverts != "madi" {
		t.Errorf("got Inverts=%q, want madi", op.Inverts)
	}
}

func TestLookupUnknownMnemonic(t *testing.T) {
	if _, ok := Lookup("frobnicate"); ok {
		t.Fatal("expected frobnicate to be unknown")
	}
}

func TestMadiOpcodeSetsLowBit(t *testing.T) {
	op, ok := Lookup("madi")
	if !ok {
		t.Fatal("expected madi to be found")
	}
	if op.Opcode != OpMAD|1 {
		t.Errorf("got opcode %#x, want %#x", op.Opcode, OpMAD|1)
	}
}

func TestIsBranchClass(t *testing.T) {
	branchy := []byte{OpJMPC, OpJMPU, OpCALL, OpCALLC, OpCALLU, OpBREAKC}
	for _, op := range branchy {
		if !IsBranchClass(op) {
			t.Errorf("opcode %#x should be branch-class", op)
		}
	}
	notBranchy := []byte{OpADD, OpMOV, OpNOP, OpEND, OpFOR, OpCMP}
	for _, op := range notBranchy {
		if IsBranchClass(op) {
			t.Errorf("opcode %#x should not be branch-class", op)
		}
	}
}

func TestHasOPDESC(t *testing.T) {
	if !HasOPDESC(OpADD) {
		t.Error("ADD should carry an OPDESC index")
	}
	if !HasOPDESC(OpMOV) {
		t.Error("MOV should carry an OPDESC index")
	}
	if !HasOPDESC(OpCMP) {
		t.Error("CMP should carry an OPDESC index")
	}
	if HasOPDESC(OpNOP) {
		t.Error("NOP should not carry an OPDESC index")
	}
	if HasOPDESC(OpFOR) {
		t.Error("FOR should not carry an OPDESC index")
	}
	if HasOPDESC(OpBREAKC) {
		t.Error("BREAKC should not carry an OPDESC index")
	}
}

func TestLookupCmp(t *testing.T) {
	cases := map[string]CmpCondition{
		"eq": CmpEQ, "ne": CmpNE, "lt": CmpLT, "le": CmpLE, "gt": CmpGT, "ge": CmpGE,
	}
	for name, want := range cases {
		got, ok := LookupCmp(name)
		if !ok || got != want {
			t.Errorf("LookupCmp(%q) = %v, %v; want %v, true", name, got, ok, want)
		}
	}
	if _, ok := LookupCmp("xx"); ok {
		t.Error("expected unknown comparison mnemonic to fail")
	}
}

func TestTableMnemonicsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, op := range table {
		if seen[op.Name] {
			t.Errorf("duplicate mnemonic %q in opcode table", op.Name)
		}
		seen[op.Name] = true
	}
}
