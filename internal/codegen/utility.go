package codegen

import "scatha/internal/mir"

// Invariant is raised when a codegen pass discovers its MIR input violates
// an invariant the pass requires (e.g. running on the wrong register
// phase). Mirrors internal/ir.Invariant one level lower: a panic type
// callers catch only once, at the top of cmd/scathac.
type Invariant struct {
	Msg string
}

func (e Invariant) Error() string { return e.Msg }

func requirePhase(f *mir.Function, want mir.RegisterPhase, who string) {
	if f.Phase != want {
		panic(Invariant{Msg: who + ": function " + f.Name + " is not in phase " + want.String()})
	}
}

// HasSideEffects reports whether inst must never be removed by dead-code
// elimination even if its result (if any) is unused, mirroring
// hasSideEffects in lib/CodeGen/Utility.cc.
func HasSideEffects(inst mir.Instruction) bool {
	switch inst.(type) {
	case *mir.StoreInst, *mir.CallInst, *mir.ReturnInst,
		*mir.JumpInst, *mir.CondJumpInst, *mir.CompareInst, *mir.TestInst:
		return true
	default:
		return false
	}
}
