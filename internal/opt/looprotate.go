package opt

import (
	"scatha/internal/analysis"
	"scatha/internal/ir"
	"scatha/internal/pass"
)

func init() {
	pass.Register("looprotate", pass.AsModulePass(&LoopRotate{}), pass.CategoryOptimization)
}

// LoopRotate turns a test-at-top loop (header re-entered by both the
// preheader and the latch) into a guarded do-while shape by duplicating the
// header's condition computation into a new block reached directly from the
// preheader, so the loop body's only back edge re-tests through the
// original header rather than jumping back to a separate top-of-loop test.
// This is the rotation transform spec.md's S2 names; it is grounded on the
// loop-nesting forest built by internal/analysis (ComputeLoopNest) the same
// way the teacher locates loop bodies by structural CFG shape rather than
// source-level loop/while syntax. Only rotates loops whose header computes
// its condition from phis and other pure values (no load/store/call/alloca
// in the header) to keep the clone side-effect free.
type LoopRotate struct{}

func (LoopRotate) Name() string        { return "looprotate" }
func (LoopRotate) Description() string { return "duplicates a loop's top test into its preheader" }

func (l *LoopRotate) RunOnFunction(ctx *ir.Context, f *ir.Function) bool {
	changed := false
	forest := analysis.ComputeLoopNest(f)
	var visit func(nodes []*analysis.LoopNode)
	visit = func(nodes []*analysis.LoopNode) {
		for _, n := range nodes {
			if l.rotate(ctx, f, n) {
				changed = true
			}
			visit(n.Children)
		}
	}
	visit(forest.Roots)
	return changed
}

func (l *LoopRotate) rotate(ctx *ir.Context, f *ir.Function, n *analysis.LoopNode) bool {
	header := n.Header
	br, ok := header.Terminator().(*ir.BranchInst)
	if !ok {
		return false
	}
	inLoop := func(b *ir.BasicBlock) bool { return containsLoopBlock(n.Blocks, b) }
	body, exit := br.IfTrue, br.IfFalse
	if inLoop(body) == inLoop(exit) {
		return false // both branches stay in (or leave) the loop: not a guard
	}
	if !inLoop(body) {
		body, exit = exit, body
	}

	var preheader *ir.BasicBlock
	for _, p := range header.Preds {
		if !inLoop(p) {
			if preheader != nil {
				return false // more than one entry edge: skip, needs preheader insertion first
			}
			preheader = p
		}
	}
	if preheader == nil {
		return false
	}
	preGoto, ok := preheader.Terminator().(*ir.GotoInst)
	if !ok || preGoto.Target != header {
		return false
	}

	if !headerBodyIsPure(header) {
		return false
	}

	clone := f.NewBlock("")
	f.InsertBlockBefore(header, clone)

	valueMap := map[ir.Value]ir.Value{}
	for _, inst := range header.Insts {
		phi, ok := inst.(*ir.PhiInst)
		if !ok {
			break
		}
		valueMap[phi] = phi.IncomingFor(preheader)
	}
	cb := ir.NewBuilder(ctx, f, clone)
	for _, inst := range header.Insts {
		if _, ok := inst.(*ir.PhiInst); ok {
			continue
		}
		if _, ok := inst.(ir.Terminator); ok {
			continue
		}
		cloned := cloneInst(cb, inst, valueMap)
		if cloned != nil {
			valueMap[inst.Result()] = cloned
		}
	}
	cb.Branch(remap(valueMap, br.Cond), body, exit) // also wires clone as predecessor of body and exit

	preGoto.ReplaceOperand(header, clone)
	header.RemovePredecessor(preheader)
	clone.AddPredecessor(preheader)
	return true
}

func containsLoopBlock(blocks []*ir.BasicBlock, b *ir.BasicBlock) bool {
	for _, x := range blocks {
		if x == b {
			return true
		}
	}
	return false
}

// headerBodyIsPure reports whether every non-phi, non-terminator instruction
// in header is free of memory and call effects, so duplicating it into the
// preheader does not duplicate an observable side effect.
func headerBodyIsPure(header *ir.BasicBlock) bool {
	for _, inst := range header.Insts {
		switch inst.(type) {
		case *ir.PhiInst, *ir.BranchInst, *ir.GotoInst, *ir.ReturnInst:
			continue
		case *ir.BinaryInst, *ir.CompareInst, *ir.ConvertInst, *ir.SelectInst:
			continue
		default:
			return false
		}
	}
	return true
}

func remap(m map[ir.Value]ir.Value, v ir.Value) ir.Value {
	if r, ok := m[v]; ok {
		return r
	}
	return v
}

// cloneInst duplicates a pure instruction into cb's block, remapping operands
// through valueMap; returns nil for instruction kinds it does not handle
// (callers must have already excluded those via headerBodyIsPure).
func cloneInst(cb *ir.Builder, inst ir.Instruction, valueMap map[ir.Value]ir.Value) ir.Instruction {
	switch i := inst.(type) {
	case *ir.BinaryInst:
		return cb.Binary(i.Op, remap(valueMap, i.LHS), remap(valueMap, i.RHS), i.Ty)
	case *ir.CompareInst:
		return cb.Compare(i.Pred, remap(valueMap, i.LHS), remap(valueMap, i.RHS))
	case *ir.ConvertInst:
		return cb.Convert(i.Op, remap(valueMap, i.Src), i.Ty)
	case *ir.SelectInst:
		return cb.Select(remap(valueMap, i.Cond), remap(valueMap, i.Then), remap(valueMap, i.Else), i.Ty)
	default:
		return nil
	}
}
