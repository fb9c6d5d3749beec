package opt

import (
	"scatha/internal/ir"
	"scatha/internal/pass"
)

func init() {
	pass.Register("inline", pass.AsModulePass(&Inline{maxSize: defaultInlineSize}), pass.CategoryOptimization)
}

const (
	defaultInlineSize     = 24
	maxInlinesPerFunction = 64
)

// Inline replaces a direct call to a small, non-recursive function with a
// copy of its body spliced into the caller, the classic small-function
// inliner spec.md's pipeline DSL names as the one pass taking a sub-pipeline
// argument ("inline(sroa, mem2reg)"): once a callee's body is spliced in,
// the sub-pipeline runs to clean up the allocas/copies inlining exposes, the
// same way the teacher runs ConstantFolding immediately after
// CommonSubexpressionElimination to fold what CSE just exposed.
type Inline struct {
	maxSize int
	cleanup *pass.Pipeline
}

// NewInline returns an inliner with the given per-callee instruction-count
// budget; the registered default pass uses defaultInlineSize.
func NewInline(maxSize int) *Inline {
	return &Inline{maxSize: maxSize}
}

func (i *Inline) Name() string        { return "inline" }
func (i *Inline) Description() string { return "inlines small, non-recursive direct calls" }

// WithSubPipeline returns a copy of the inliner that runs sub on the whole
// module after every splice, the inlining-cleanup pipeline named in
// "inline(...)".
func (i *Inline) WithSubPipeline(sub *pass.Pipeline) pass.ModulePass {
	return pass.AsModulePass(&Inline{maxSize: i.maxSize, cleanup: sub})
}

func (i *Inline) RunOnModule(ctx *ir.Context, m *ir.Module) bool {
	changed := false
	for _, f := range m.Functions {
		if i.runOnFunction(ctx, m, f) {
			changed = true
		}
	}
	return changed
}

func (i *Inline) RunOnFunction(ctx *ir.Context, f *ir.Function) bool {
	return i.runOnFunction(ctx, nil, f)
}

func (i *Inline) runOnFunction(ctx *ir.Context, m *ir.Module, f *ir.Function) bool {
	changed := false
	for n := 0; n < maxInlinesPerFunction; n++ {
		call, block := findInlineCandidate(f, i.maxSize)
		if call == nil {
			break
		}
		inlineCall(ctx, f, block, call)
		changed = true
		if i.cleanup != nil && m != nil {
			i.cleanup.Run(ctx, m)
		}
	}
	return changed
}

func findInlineCandidate(f *ir.Function, maxSize int) (*ir.CallInst, *ir.BasicBlock) {
	for _, b := range f.Blocks {
		for _, inst := range b.Insts {
			call, ok := inst.(*ir.CallInst)
			if !ok {
				continue
			}
			callee, ok := call.Callee.(*ir.Function)
			if !ok || callee == f || !isInlinable(callee, maxSize) {
				continue
			}
			return call, b
		}
	}
	return nil, nil
}

func isInlinable(callee *ir.Function, maxSize int) bool {
	if len(callee.Blocks) == 0 {
		return false
	}
	for _, p := range callee.Params {
		if p.ByVal != nil || p.ValRet != nil {
			return false
		}
	}
	size := 0
	for _, b := range callee.Blocks {
		size += len(b.Insts)
		if size > maxSize {
			return false
		}
		for _, inst := range b.Insts {
			if c, ok := inst.(*ir.CallInst); ok && c.Callee == ir.Value(callee) {
				return false
			}
		}
	}
	return true
}

// inlineCall splices callee's body into f at call's position within block:
// block keeps every instruction before call, a fresh continuation block
// keeps call's former tail (including block's original terminator), and a
// clone of every callee block sits between them.
func inlineCall(ctx *ir.Context, f *ir.Function, block *ir.BasicBlock, call *ir.CallInst) {
	callee := call.Callee.(*ir.Function)

	cont := f.NewBlock("")
	moveTailToContinuation(block, cont, call)

	// Block order beyond Blocks[0] (the entry) only affects debug-print
	// readability, not CFG correctness, so the clones are simply appended;
	// their real position in the control-flow graph comes from the
	// terminators wired below and the AddPredecessor calls that follow.
	blockMap := map[*ir.BasicBlock]*ir.BasicBlock{}
	for _, cb := range callee.Blocks {
		blockMap[cb] = f.NewBlock("")
	}

	valueMap := map[ir.Value]ir.Value{}
	for idx, p := range callee.Params {
		if idx < len(call.Args) {
			valueMap[p] = call.Args[idx]
		}
	}

	var returns []ir.PhiIncoming
	for _, cb := range callee.Blocks {
		cloneCalleeBlock(ctx, f, cb, blockMap[cb], blockMap, valueMap, cont, &returns)
	}

	entryClone := blockMap[callee.Entry()]
	ir.NewBuilder(ctx, f, block).Goto(entryClone) // also wires block as entryClone's predecessor

	if call.HasResult && len(returns) > 0 {
		phi := ir.NewBuilder(ctx, f, cont).Phi(call.Ty)
		for _, in := range returns {
			phi.AddIncoming(in.Block, in.Value)
		}
		moveToFront(cont, phi)
		ir.ReplaceAllUsesWith(call, phi)
	}
	cont.Erase(call)
}

// moveTailToContinuation relocates every instruction from call onward
// (inclusive, which always includes block's original terminator) out of
// block and into cont, preserving order; block keeps everything before call.
func moveTailToContinuation(block, cont *ir.BasicBlock, call *ir.CallInst) {
	idx := -1
	for i, inst := range block.Insts {
		if inst == call {
			idx = i
			break
		}
	}
	tail := append([]ir.Instruction(nil), block.Insts[idx:]...)
	block.Insts = append([]ir.Instruction(nil), block.Insts[:idx]...)
	for _, inst := range tail {
		cont.PushBack(inst)
	}
}

func cloneCalleeBlock(ctx *ir.Context, f *ir.Function, cb, nb *ir.BasicBlock, blockMap map[*ir.BasicBlock]*ir.BasicBlock, valueMap map[ir.Value]ir.Value, cont *ir.BasicBlock, returns *[]ir.PhiIncoming) {
	bld := ir.NewBuilder(ctx, f, nb)
	for _, inst := range cb.Insts {
		switch i := inst.(type) {
		case *ir.AllocaInst:
			valueMap[i] = bld.Alloca(i.AllocType)
		case *ir.LoadInst:
			valueMap[i] = bld.Load(remap(valueMap, i.Address), i.LoadTy)
		case *ir.StoreInst:
			bld.Store(remap(valueMap, i.Address), remap(valueMap, i.Val))
		case *ir.GEPInst:
			idxs := make([]ir.GEPIndex, len(i.Indices))
			for n, idx := range i.Indices {
				if idx.Value != nil {
					idxs[n] = ir.GEPIndex{Value: remap(valueMap, idx.Value)}
				} else {
					idxs[n] = ir.GEPIndex{Const: idx.Const}
				}
			}
			valueMap[i] = bld.GEP(remap(valueMap, i.Base), i.BaseType, idxs)
		case *ir.BinaryInst:
			valueMap[i] = bld.Binary(i.Op, remap(valueMap, i.LHS), remap(valueMap, i.RHS), i.Ty)
		case *ir.CompareInst:
			valueMap[i] = bld.Compare(i.Pred, remap(valueMap, i.LHS), remap(valueMap, i.RHS))
		case *ir.CallInst:
			args := make([]ir.Value, len(i.Args))
			for n, a := range i.Args {
				args[n] = remap(valueMap, a)
			}
			valueMap[i] = bld.Call(remap(valueMap, i.Callee), args, i.Ty)
		case *ir.SelectInst:
			valueMap[i] = bld.Select(remap(valueMap, i.Cond), remap(valueMap, i.Then), remap(valueMap, i.Else), i.Ty)
		case *ir.ConvertInst:
			valueMap[i] = bld.Convert(i.Op, remap(valueMap, i.Src), i.Ty)
		case *ir.PhiInst:
			c := bld.Phi(i.Ty)
			for _, in := range i.Incoming {
				c.AddIncoming(blockMap[in.Block], remap(valueMap, in.Value))
			}
			valueMap[i] = c
		case *ir.ReturnInst:
			bld.Goto(cont)
			if i.Val != nil {
				*returns = append(*returns, ir.PhiIncoming{Block: nb, Value: remap(valueMap, i.Val)})
			}
		case *ir.GotoInst:
			bld.Goto(blockMap[i.Target])
		case *ir.BranchInst:
			bld.Branch(remap(valueMap, i.Cond), blockMap[i.IfTrue], blockMap[i.IfFalse])
		}
	}
}
