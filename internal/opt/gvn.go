package opt

import (
	"fmt"

	"scatha/internal/analysis"
	"scatha/internal/ir"
	"scatha/internal/pass"
)

func init() {
	pass.Register("gvn", pass.AsModulePass(&GVN{}), pass.CategoryOptimization)
}

// GVN performs local value numbering via a congruence-class hash map,
// generalizing the teacher's CommonSubexpressionElimination (which
// value-numbers only sender() calls) to every pure instruction kind: binary,
// compare, select, convert, and GEP. Numbering is scoped per dominating
// block chain the same way the teacher scoped sender() reuse to one block,
// walking blocks in layout order and carrying forward a table keyed by
// structural shape, since a later block in reverse-postorder that is
// dominated by an earlier one will see its entries.
type GVN struct{}

func (GVN) Name() string        { return "gvn" }
func (GVN) Description() string { return "value-numbers pure instructions into congruence classes" }

func (g *GVN) RunOnFunction(ctx *ir.Context, f *ir.Function) bool {
	changed := false
	dt := analysis.ComputeDominance(f)
	table := map[string]ir.Value{}
	for _, b := range f.Blocks {
		if b != f.Entry() && dt.ImmediateDominator(b) == nil {
			continue // unreachable from entry: outside the dominator tree
		}
		for _, inst := range b.Insts {
			key, ok := valueNumberKey(inst)
			if !ok {
				continue
			}
			if existing, ok := table[key]; ok {
				if dt.Dominates(existing.(ir.Instruction).Block(), b) {
					ir.ReplaceAllUsesWith(inst.Result(), existing)
					changed = true
				}
				continue
			}
			table[key] = inst.Result()
		}
	}
	return changed
}

// valueNumberKey returns a structural key for instructions with no side
// effects whose result depends only on their opcode and operand identities;
// loads, stores, calls, and allocas are excluded since they are either
// effectful or allocate fresh identity each time.
func valueNumberKey(inst ir.Instruction) (string, bool) {
	switch i := inst.(type) {
	case *ir.BinaryInst:
		return fmt.Sprintf("bin:%s:%s:%p:%p", i.Op, i.Ty.String(), i.LHS, i.RHS), true
	case *ir.CompareInst:
		return fmt.Sprintf("cmp:%s:%p:%p", i.Pred, i.LHS, i.RHS), true
	case *ir.SelectInst:
		return fmt.Sprintf("sel:%s:%p:%p:%p", i.Ty.String(), i.Cond, i.Then, i.Else), true
	case *ir.ConvertInst:
		return fmt.Sprintf("cvt:%s:%s:%p", i.Op, i.Ty.String(), i.Src), true
	case *ir.GEPInst:
		key := fmt.Sprintf("gep:%s:%p", i.BaseType.String(), i.Base)
		for _, idx := range i.Indices {
			if idx.Value != nil {
				key += fmt.Sprintf(":v%p", idx.Value)
			} else {
				key += fmt.Sprintf(":c%d", idx.Const)
			}
		}
		return key, true
	default:
		return "", false
	}
}
