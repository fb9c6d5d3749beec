package opt

import (
	"scatha/internal/ir"
	"scatha/internal/pass"
)

func init() {
	pass.Register("tailcallmark", pass.AsModulePass(&TailCallMark{}), pass.CategoryAnalysis)
}

// TailCallMark flags a direct call immediately followed by a matching return
// (void call then bare return, or a call whose result is the returned value)
// as a tail-call candidate. It only sets an advisory bit on the instruction;
// the later SSA-destruction stage re-verifies the pattern itself rather than
// trusting this pass's flag, per the original lowering's isTailCall check
// (original_source/lib/CodeGen/DestroySSA.cc) - direct calls only, since an
// indirect callee cannot be proven not to alias the caller's own frame.
type TailCallMark struct{}

func (TailCallMark) Name() string        { return "tailcallmark" }
func (TailCallMark) Description() string { return "flags call+return pairs as tail-call candidates" }

func (t *TailCallMark) RunOnFunction(ctx *ir.Context, f *ir.Function) bool {
	changed := false
	for _, b := range f.Blocks {
		if markTailCall(b) {
			changed = true
		}
	}
	return changed
}

func markTailCall(b *ir.BasicBlock) bool {
	n := len(b.Insts)
	if n < 2 {
		return false
	}
	ret, ok := b.Insts[n-1].(*ir.ReturnInst)
	if !ok {
		return false
	}
	call, ok := b.Insts[n-2].(*ir.CallInst)
	if !ok {
		return false
	}
	if _, direct := call.Callee.(*ir.Function); !direct {
		return false
	}
	if ret.Val != nil && ret.Val != call.Result() {
		return false
	}
	if ret.Val == nil && call.HasResult {
		return false // result is discarded rather than returned: not a tail call
	}
	if call.TailCandidate {
		return false
	}
	call.TailCandidate = true
	return true
}
