package opt

import (
	"scatha/internal/ir"
	"scatha/internal/pass"
)

func init() {
	pass.Register("canonicalize", pass.AsModulePass(&Canonicalize{}), pass.CategorySimplification)
}

// Canonicalize normalizes commutative-operand order and comparison direction
// to a single normal form, the way the teacher's computeBinaryOp folds
// constant operands regardless of which side they appear on. Putting a
// constant on the right, and ordering non-constant operands by instruction
// id, gives later passes (InstCombine, GVN) a single pattern to match instead
// of two mirror-image ones.
type Canonicalize struct{}

func (Canonicalize) Name() string { return "canonicalize" }
func (Canonicalize) Description() string {
	return "normalizes commutative operand order and comparison direction"
}

func (c *Canonicalize) RunOnFunction(ctx *ir.Context, f *ir.Function) bool {
	changed := false
	for _, b := range f.Blocks {
		for _, inst := range b.Insts {
			switch i := inst.(type) {
			case *ir.BinaryInst:
				if i.Op.Commutative() && c.shouldSwap(i.LHS, i.RHS) {
					i.LHS, i.RHS = i.RHS, i.LHS
					changed = true
				}
			case *ir.CompareInst:
				if c.shouldSwap(i.LHS, i.RHS) {
					i.LHS, i.RHS = i.RHS, i.LHS
					i.Pred = swapPred(i.Pred)
					changed = true
				}
			}
		}
	}
	return changed
}

// shouldSwap reports whether lhs/rhs are in non-canonical order: a constant
// should always end up on the right, and among two instructions the lower id
// should be on the left.
func (c *Canonicalize) shouldSwap(lhs, rhs ir.Value) bool {
	_, lok := isConstant(lhs)
	_, rok := isConstant(rhs)
	if rok && !lok {
		return false
	}
	if lok {
		return !rok
	}
	li, liok := lhs.(ir.Instruction)
	ri, riok := rhs.(ir.Instruction)
	if liok && riok {
		return li.ID() > ri.ID()
	}
	return false
}

func isConstant(v ir.Value) (ir.Constant, bool) {
	c, ok := v.(ir.Constant)
	return c, ok
}

func swapPred(p ir.CmpPred) ir.CmpPred {
	switch p {
	case ir.CmpULt:
		return ir.CmpUGt
	case ir.CmpULe:
		return ir.CmpUGe
	case ir.CmpUGt:
		return ir.CmpULt
	case ir.CmpUGe:
		return ir.CmpULe
	case ir.CmpSLt:
		return ir.CmpSGt
	case ir.CmpSLe:
		return ir.CmpSGe
	case ir.CmpSGt:
		return ir.CmpSLt
	case ir.CmpSGe:
		return ir.CmpSLe
	default:
		return p // eq/ne are symmetric
	}
}
