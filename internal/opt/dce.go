// Package opt implements the representative optimization passes of spec.md
// §4.5, each grounded on the teacher's pass shapes in
// internal/ir/optimizations.go (OptimizationPass, ConstantFolding,
// DeadCodeElimination, CommonSubexpressionElimination,
// CheckedArithmeticOptimization) generalized from the teacher's EVM IR to the
// spec's SSA IR.
package opt

import (
	"scatha/internal/ir"
	"scatha/internal/pass"
)

func init() {
	pass.Register("dce", pass.AsModulePass(&DCE{}), pass.CategorySimplification)
}

// DCE removes unreachable basic blocks and dead instructions, ported nearly
// verbatim in structure from the teacher's DeadCodeElimination
// (markReachable, markUsedValues, shouldKeepInstruction).
type DCE struct{}

func (DCE) Name() string        { return "dce" }
func (DCE) Description() string { return "removes unreachable blocks and dead instructions" }

func (d *DCE) RunOnFunction(ctx *ir.Context, f *ir.Function) bool {
	changed := d.eliminateDeadBlocks(f)
	if d.eliminateDeadInstructions(f) {
		changed = true
	}
	return changed
}

func (d *DCE) eliminateDeadBlocks(f *ir.Function) bool {
	entry := f.Entry()
	if entry == nil {
		return false
	}
	reachable := map[*ir.BasicBlock]bool{}
	var mark func(b *ir.BasicBlock)
	mark = func(b *ir.BasicBlock) {
		if reachable[b] {
			return
		}
		reachable[b] = true
		for _, s := range b.Successors() {
			mark(s)
		}
	}
	mark(entry)

	changed := false
	var kept []*ir.BasicBlock
	for _, b := range f.Blocks {
		if reachable[b] {
			kept = append(kept, b)
			continue
		}
		changed = true
		for _, s := range b.Successors() {
			s.RemovePredecessor(b)
		}
	}
	if changed {
		f.Blocks = kept
	}
	return changed
}

// eliminateDeadInstructions removes instructions whose result has no
// remaining uses and which have no side effects (store, call, the
// terminators are always kept). Repeats to a local fixed point since erasing
// one dead instruction can make its own operands' defining instructions dead
// in turn.
func (d *DCE) eliminateDeadInstructions(f *ir.Function) bool {
	changed := false
	for {
		round := false
		for _, b := range f.Blocks {
			snapshot := append([]ir.Instruction(nil), b.Insts...)
			for _, inst := range snapshot {
				if d.shouldKeep(inst) {
					continue
				}
				b.Erase(inst)
				round = true
			}
		}
		if !round {
			break
		}
		changed = true
	}
	return changed
}

func (d *DCE) shouldKeep(inst ir.Instruction) bool {
	switch inst.(type) {
	case *ir.StoreInst, *ir.CallInst:
		return true
	}
	if inst.IsTerminator() {
		return true
	}
	r := inst.Result()
	if r == nil {
		return true
	}
	return len(r.Uses()) > 0
}
