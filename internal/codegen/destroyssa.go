package codegen

import "scatha/internal/mir"

// wordWidth is the byte width used for copies into and out of the
// callee-register calling-convention window, where no operand instruction
// is available to ask for a narrower ByteWidth (spec.md's MIR register
// model is word-addressed; sub-word arguments are widened by the resolver
// before they ever reach destroyCalls/destroyReturns).
const wordWidth = 8

// DestroySSA lowers f out of SSA form and out of the SSA register phase,
// grounded directly on lib/CodeGen/DestroySSA.cc. It runs, in order:
// tail-call shaping, phi elimination, select elimination, call argument
// materialization, return-value materialization, and finally the 1:1
// remap of every non-fixed SSA register onto a virtual register. Each step
// mutates f in place; by the time it returns, f.Phase is PhaseVirtual and f
// has no PhiInst or SelectInst left. The fixed SSA registers (the function
// parameters) are not remapped and keep their SSA kind.
func DestroySSA(f *mir.Function, ti TargetInfo) {
	requirePhase(f, mir.PhaseSSA, "DestroySSA")
	destroyTailCalls(f)
	destroyPhis(f)
	destroySelects(f)
	destroyCalls(f, ti)
	destroyReturns(f)
	mapSSAToVirtualRegisters(f, ti)
	f.Phase = mir.PhaseVirtual
}

// isTailCall reports whether call is immediately followed, in the same
// block, by a ReturnInst whose operands are exactly call's destination
// registers in order — the only shape DestroySSA.cc (and this port, per
// the "direct-only tail calls" decision recorded for spec.md's open
// question) turns into an unconditional jump, and only for a direct
// callee.
func isTailCall(bb *mir.BasicBlock, i int) (*mir.CallInst, *mir.ReturnInst, bool) {
	call, ok := bb.Insts[i].(*mir.CallInst)
	if !ok || !call.IsNative() {
		return nil, nil, false
	}
	if i+1 >= len(bb.Insts) {
		return nil, nil, false
	}
	ret, ok := bb.Insts[i+1].(*mir.ReturnInst)
	if !ok {
		return nil, nil, false
	}
	dests := call.Dests()
	if len(ret.Vals) != len(dests) {
		return nil, nil, false
	}
	for k, v := range ret.Vals {
		if reg, ok := v.(*mir.Register); !ok || reg != dests[k] {
			return nil, nil, false
		}
	}
	return call, ret, true
}

// destroyTailCalls rewrites every directly-callable, return-shaped call
// into an unconditional jump to the callee, removing both the call and the
// return it fed (spec.md §4.7 step 2: "the call and the return are
// replaced by an unconditional jump to the callee, which must end the
// block"). Before the jump is inserted, the call's arguments are
// materialized into the function's own parameter registers — the call is
// self-recursive in tail position, so the callee's entry expects its
// arguments exactly where this function's own entry left them.
func destroyTailCalls(f *mir.Function) {
	for _, bb := range f.Blocks {
		for i := 0; i < len(bb.Insts); i++ {
			call, ret, ok := isTailCall(bb, i)
			if !ok {
				continue
			}
			materializeTailCallArgs(f, bb, call)
			jump := mir.NewJumpInst(call.Callee)
			call.ClearDest()
			ret.ClearOperands()
			bb.InsertAfter(ret, jump)
			bb.Erase(call)
			bb.Erase(ret)
			break
		}
	}
}

// materializeTailCallArgs copies each of call's arguments into the
// function's own parameter registers, in order, right before call —
// mirroring destroyTailCall's argument shuffle in DestroySSA.cc ("Copy
// arguments into bottom registers"). A parameter register read by one
// argument may already have been overwritten by an earlier argument's copy
// by the time the real writes run; for any such register this first snapshots
// its pre-shuffle value into a scratch register, before any real write
// happens, and substitutes the scratch register for the stale read,
// matching the teacher's "copy the argument to a temporary location before
// the argument copies" scratch-register dance.
func materializeTailCallArgs(f *mir.Function, bb *mir.BasicBlock, call *mir.CallInst) {
	params := f.Params
	n := len(call.Args)
	if n > len(params) {
		n = len(params)
	}
	scratch := make(map[*mir.Register]*mir.Register, n)
	for i := 0; i < n; i++ {
		reg, ok := call.Args[i].(*mir.Register)
		if !ok {
			continue
		}
		k := paramIndex(params, reg)
		if k < 0 || k >= i || scratch[reg] != nil {
			continue
		}
		tmp := f.SSARegs.New()
		bb.InsertBefore(call, mir.NewCopyInst(tmp, reg, wordWidth))
		scratch[reg] = tmp
	}
	for i := 0; i < n; i++ {
		dest := params[i]
		arg := call.Args[i]
		if reg, ok := arg.(*mir.Register); ok {
			if reg == dest {
				continue
			}
			if tmp := scratch[reg]; tmp != nil {
				arg = tmp
			}
		}
		bb.InsertBefore(call, mir.NewCopyInst(dest, arg, wordWidth))
	}
}

// paramIndex reports the index of reg within params, or -1 if reg is not
// one of the function's own parameter registers.
func paramIndex(params []*mir.Register, reg *mir.Register) int {
	for k, p := range params {
		if p == reg {
			return k
		}
	}
	return -1
}

// destroyPhis eliminates every phi by splitting any critical incoming edge
// (a predecessor with more than one successor feeding a successor with
// more than one predecessor) and inserting a copy of the incoming value in
// each predecessor just before its terminator, mirroring destroy(PhiInst)
// and splitEdge in DestroySSA.cc. A temporary register is used instead of
// writing the phi's destination directly whenever the incoming edge is
// critical or the destination is also read by another phi in the same
// block, avoiding the classic lost-copy / swap-problem hazards of naive
// phi elimination.
func destroyPhis(f *mir.Function) {
	for _, bb := range f.Blocks {
		var phis []*mir.PhiInst
		for _, inst := range bb.Insts {
			phi, ok := inst.(*mir.PhiInst)
			if !ok {
				break
			}
			phis = append(phis, phi)
		}
		if len(phis) == 0 {
			continue
		}
		for _, phi := range phis {
			for _, in := range phi.Incoming {
				pred := in.Block
				target := pred
				if isCriticalEdge(pred, bb) {
					target = splitEdge(f, pred, bb)
				}
				needTmp := isCriticalEdge(pred, bb) || destUsedByOtherPhi(phis, phi, in.Value)
				dest := phi.Dest()
				if needTmp {
					tmp := f.SSARegs.New()
					insertCopyBeforeTerm(target, tmp, in.Value, phi.ByteWidth())
					in.Value = tmp
					dest = tmp
				} else {
					insertCopyBeforeTerm(target, dest, in.Value, phi.ByteWidth())
				}
			}
		}
		for _, phi := range phis {
			bb.Erase(phi)
		}
	}
}

func isCriticalEdge(pred, succ *mir.BasicBlock) bool {
	return len(pred.Successors()) > 1 && len(succ.Preds) > 1
}

func destUsedByOtherPhi(phis []*mir.PhiInst, self *mir.PhiInst, v mir.Value) bool {
	reg, ok := v.(*mir.Register)
	if !ok {
		return false
	}
	for _, other := range phis {
		if other == self {
			continue
		}
		if other.Dest() == reg {
			return true
		}
	}
	return false
}

func insertCopyBeforeTerm(bb *mir.BasicBlock, dest *mir.Register, val mir.Value, width int) {
	cp := mir.NewCopyInst(dest, val, width)
	if term := bb.Terminator(); term != nil {
		bb.InsertBefore(term, cp)
	} else {
		bb.PushBack(cp)
	}
}

// splitEdge inserts a new block between pred and succ, re-wiring pred's
// terminator to target it instead, and returns it.
func splitEdge(f *mir.Function, pred, succ *mir.BasicBlock) *mir.BasicBlock {
	mid := f.NewBlock()
	mid.AddPredecessor(pred)
	mid.PushBack(mir.NewJumpInst(succ))
	succ.RemovePredecessor(pred)
	succ.AddPredecessor(mid)
	switch t := pred.Terminator().(type) {
	case *mir.JumpInst:
		t.Target = mid
	case *mir.CondJumpInst:
		if t.IfTrue == succ {
			t.IfTrue = mid
		}
		if t.IfFalse == succ {
			t.IfFalse = mid
		}
	}
	return mid
}

// destroySelects rewrites every SelectInst into an unconditional copy of
// the then-value followed by a conditional copy of the else-value under
// the inverted condition, exactly the shape destroy(SelectInst) produces.
func destroySelects(f *mir.Function) {
	for _, bb := range f.Blocks {
		var selects []*mir.SelectInst
		for _, inst := range bb.Insts {
			if sel, ok := inst.(*mir.SelectInst); ok {
				selects = append(selects, sel)
			}
		}
		for _, sel := range selects {
			dest := sel.Dest()
			width := sel.ByteWidth()
			then := mir.NewCopyInst(dest, sel.Then, width)
			els := mir.NewCondCopyInst(dest, sel.Else, width, sel.Cond.Inverse(), sel.Flag)
			bb.InsertBefore(sel, then)
			bb.InsertAfter(then, els)
			sel.ClearDest()
			bb.Erase(sel)
		}
	}
}

// destroyCalls materializes each call's calling convention: its arguments
// are copied into a contiguous window of the function's callee-register
// bank (reserving TargetInfo's call-metadata registers below them), the
// call's own operand list is rewritten to reference that window, and its
// destination registers are marked as reading the same window's leading
// registers back out, matching destroy(CallBase) in DestroySSA.cc.
func destroyCalls(f *mir.Function, ti TargetInfo) {
	for _, bb := range f.Blocks {
		for _, inst := range append([]mir.Instruction(nil), bb.Insts...) {
			call, ok := inst.(*mir.CallInst)
			if !ok {
				continue
			}
			numDests := call.NumDests()
			window := ti.NumCallMetadataRegisters + max(len(call.Args), numDests)
			regs := make([]*mir.Register, window)
			for i := range regs {
				regs[i] = f.CalleeRegs.New()
			}
			newArgs := make([]mir.Value, len(call.Args))
			for i, arg := range call.Args {
				slot := regs[ti.NumCallMetadataRegisters+i]
				bb.InsertBefore(call, mir.NewCopyInst(slot, arg, wordWidth))
				newArgs[i] = slot
			}
			call.SetArguments(newArgs)
			call.Clobbers = append([]*mir.Register(nil), regs...)
			if numDests > 0 {
				dest := call.Dest()
				r := dest
				for i := 0; i < numDests; i++ {
					src := regs[ti.NumCallMetadataRegisters+i]
					insertCopyAfter(bb, call, r, src, call.ByteWidth())
					r = r.Next()
				}
			}
		}
	}
}

func insertCopyAfter(bb *mir.BasicBlock, mark mir.Instruction, dest *mir.Register, src mir.Value, width int) {
	cp := mir.NewCopyInst(dest, src, width)
	bb.InsertAfter(mark, cp)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// destroyReturns copies each return operand into the function's fixed
// ReturnRegs before the terminator, matching destroy(ReturnInst): the
// actual transfer of control out of the function is left to the assembly
// emitter's epilogue, not modeled as MIR here.
func destroyReturns(f *mir.Function) {
	for _, bb := range f.Blocks {
		term := bb.Terminator()
		ret, ok := term.(*mir.ReturnInst)
		if !ok {
			continue
		}
		for i, v := range ret.Vals {
			insertCopyBeforeTerm(bb, f.ReturnRegs[i], v, wordWidth)
		}
	}
}

// mapSSAToVirtualRegisters replaces every non-fixed SSA-kind register with a
// fresh virtual register appended after the fixed ReturnRegs, in SSA index
// order, so multi-word chains stay consecutive (see replaceDestRegister in
// internal/mir). The fixed SSA registers, the function parameters, are not
// remapped and stay SSA-kind.
func mapSSAToVirtualRegisters(f *mir.Function, ti TargetInfo) {
	n := f.SSARegs.Len()
	for i := 0; i < n; i++ {
		ssa := f.SSARegs.At(i)
		if ssa.Fixed() {
			continue // a function parameter; its ABI slot is handled by the emitter's prologue
		}
		v := f.VirtualRegs.New()
		ssa.ReplaceWith(v)
	}
}
