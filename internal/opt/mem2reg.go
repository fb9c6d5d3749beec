package opt

import (
	"scatha/internal/ir"
	"scatha/internal/pass"
)

func init() {
	pass.Register("mem2reg", pass.AsModulePass(&Mem2Reg{}), pass.CategorySimplification)
}

// Mem2Reg promotes scalar allocas with no address-of escape to SSA values,
// generalizing the teacher's writeVariable/readVariable renaming stack
// (variableStack, incompletePhis, sealedBlocks in builder.go) from a
// single-pass AST walk to a standalone pass over an already-built CFG.
// Since the whole CFG is known up front, a block is sealed as soon as every
// predecessor has been filled, rather than only once construction reaches
// it; loop headers still need one round of incomplete phis for their
// back edge. Covers S3 together with SROA.
type Mem2Reg struct{}

func (Mem2Reg) Name() string        { return "mem2reg" }
func (Mem2Reg) Description() string { return "promotes non-escaping scalar allocas to SSA values" }

func (m *Mem2Reg) RunOnFunction(ctx *ir.Context, f *ir.Function) bool {
	entry := f.Entry()
	if entry == nil {
		return false
	}
	allocas, types := promotableAllocas(f)
	if len(allocas) == 0 {
		return false
	}

	r := &renamer{
		ctx:            ctx,
		f:              f,
		allocaType:     map[*ir.AllocaInst]ir.Type{},
		currentDef:     map[*ir.AllocaInst]map[*ir.BasicBlock]ir.Value{},
		incompletePhis: map[*ir.BasicBlock]map[*ir.AllocaInst]*ir.PhiInst{},
		sealed:         map[*ir.BasicBlock]bool{},
		filled:         map[*ir.BasicBlock]bool{},
	}
	for _, a := range allocas {
		r.allocaType[a] = types[a]
		r.currentDef[a] = map[*ir.BasicBlock]ir.Value{}
	}

	order := reversePostorderBlocks(entry)
	for _, b := range order {
		r.fillBlock(b, allocas)
	}

	changed := false
	for _, a := range allocas {
		if len(a.Uses()) == 0 {
			a.Block().Erase(a)
			changed = true
		}
	}
	return changed
}

type renamer struct {
	ctx            *ir.Context
	f              *ir.Function
	allocaType     map[*ir.AllocaInst]ir.Type
	currentDef     map[*ir.AllocaInst]map[*ir.BasicBlock]ir.Value
	incompletePhis map[*ir.BasicBlock]map[*ir.AllocaInst]*ir.PhiInst
	sealed         map[*ir.BasicBlock]bool
	filled         map[*ir.BasicBlock]bool
}

func (r *renamer) fillBlock(b *ir.BasicBlock, allocas []*ir.AllocaInst) {
	if len(b.Preds) == 0 {
		r.sealed[b] = true
	}
	for _, inst := range append([]ir.Instruction(nil), b.Insts...) {
		switch i := inst.(type) {
		case *ir.LoadInst:
			a, ok := rootAlloca(i.Address)
			if !ok || !r.tracked(a) {
				continue
			}
			v := r.readVariable(a, b)
			ir.ReplaceAllUsesWith(i, v)
			b.Erase(i)
		case *ir.StoreInst:
			a, ok := rootAlloca(i.Address)
			if !ok || !r.tracked(a) {
				continue
			}
			r.writeVariable(a, b, i.Val)
			b.Erase(i)
		}
	}
	r.filled[b] = true
	for _, s := range b.Successors() {
		if r.sealed[s] {
			continue
		}
		allFilled := true
		for _, p := range s.Preds {
			if !r.filled[p] {
				allFilled = false
				break
			}
		}
		if allFilled {
			r.sealBlock(s)
		}
	}
}

func (r *renamer) tracked(a *ir.AllocaInst) bool {
	_, ok := r.allocaType[a]
	return ok
}

func (r *renamer) writeVariable(a *ir.AllocaInst, b *ir.BasicBlock, v ir.Value) {
	r.currentDef[a][b] = v
}

func (r *renamer) readVariable(a *ir.AllocaInst, b *ir.BasicBlock) ir.Value {
	if v, ok := r.currentDef[a][b]; ok {
		return v
	}
	return r.readVariableRecursive(a, b)
}

func (r *renamer) readVariableRecursive(a *ir.AllocaInst, b *ir.BasicBlock) ir.Value {
	var val ir.Value
	switch {
	case !r.sealed[b]:
		phi := ir.NewBuilder(r.ctx, r.f, b).Phi(r.allocaType[a])
		moveToFront(b, phi)
		if r.incompletePhis[b] == nil {
			r.incompletePhis[b] = map[*ir.AllocaInst]*ir.PhiInst{}
		}
		r.incompletePhis[b][a] = phi
		val = phi
	case len(b.Preds) == 1:
		val = r.readVariable(a, b.Preds[0])
	case len(b.Preds) == 0:
		val = r.ctx.Undef(r.allocaType[a])
	default:
		phi := ir.NewBuilder(r.ctx, r.f, b).Phi(r.allocaType[a])
		moveToFront(b, phi)
		r.writeVariable(a, b, phi)
		val = r.addPhiOperands(a, phi, b)
	}
	r.writeVariable(a, b, val)
	return val
}

// moveToFront relocates inst (just appended to the tail by Builder.Phi) to
// the front of the block, after any phis already there; phis must stay
// grouped at the head of a block by the textual-IR and in-memory convention.
func moveToFront(b *ir.BasicBlock, inst ir.Instruction) {
	idx := -1
	for i, x := range b.Insts {
		if x == inst {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	b.Insts = append(b.Insts[:idx], b.Insts[idx+1:]...)
	front := 0
	for front < len(b.Insts) {
		if _, ok := b.Insts[front].(*ir.PhiInst); !ok {
			break
		}
		front++
	}
	b.Insts = append(b.Insts, nil)
	copy(b.Insts[front+1:], b.Insts[front:])
	b.Insts[front] = inst
}

func (r *renamer) addPhiOperands(a *ir.AllocaInst, phi *ir.PhiInst, b *ir.BasicBlock) ir.Value {
	for _, p := range b.Preds {
		phi.AddIncoming(p, r.readVariable(a, p))
	}
	return r.tryRemoveTrivialPhi(phi)
}

// tryRemoveTrivialPhi replaces a phi whose incoming values are all the same
// (ignoring self-references) with that value, the standard cleanup step that
// keeps single-predecessor-in-practice loop headers from leaving behind a
// redundant phi.
func (r *renamer) tryRemoveTrivialPhi(phi *ir.PhiInst) ir.Value {
	var same ir.Value
	for _, in := range phi.Incoming {
		if in.Value == phi || in.Value == same {
			continue
		}
		if same != nil {
			return phi // genuinely merges two distinct values
		}
		same = in.Value
	}
	if same == nil {
		same = r.ctx.Undef(phi.Ty)
	}
	ir.ReplaceAllUsesWith(phi, same)
	if blk := phi.Block(); blk != nil {
		blk.Erase(phi)
	}
	return same
}

func (r *renamer) sealBlock(b *ir.BasicBlock) {
	for a, phi := range r.incompletePhis[b] {
		r.addPhiOperands(a, phi, b)
	}
	delete(r.incompletePhis, b)
	r.sealed[b] = true
}

// reversePostorderBlocks orders blocks reachable from entry so a block is
// visited after all of its non-back-edge predecessors whenever the CFG is
// reducible; irreducible loops simply fall back to extra incomplete-phi
// rounds at seal time, which still converges.
func reversePostorderBlocks(entry *ir.BasicBlock) []*ir.BasicBlock {
	visited := map[*ir.BasicBlock]bool{}
	var order []*ir.BasicBlock
	var visit func(b *ir.BasicBlock)
	visit = func(b *ir.BasicBlock) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, s := range b.Successors() {
			visit(s)
		}
		order = append(order, b)
	}
	visit(entry)
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// promotableAllocas returns every alloca in f whose in-memory state can be
// replaced by a pure SSA value without changing program behavior, together
// with the type that value should carry.
func promotableAllocas(f *ir.Function) ([]*ir.AllocaInst, map[*ir.AllocaInst]ir.Type) {
	var out []*ir.AllocaInst
	types := map[*ir.AllocaInst]ir.Type{}
	for _, b := range f.Blocks {
		for _, inst := range b.Insts {
			a, ok := inst.(*ir.AllocaInst)
			if !ok {
				continue
			}
			if t, ok := promotableType(a); ok {
				out = append(out, a)
				types[a] = t
			}
		}
	}
	return out, types
}

// promotableType reports whether a's uses are either (a) only loads and
// stores of a's own pointer value (never passed to a call or returned), or
// (b) only GEPInsts through the same single constant-index path, each used
// only by a load/store of that path's whole value — the shape SROA can
// leave behind when it narrows an aggregate alloca down to one accessed
// element without fully eliminating the indirection to it. Mixing the two
// shapes on the same alloca is never promoted: a whole-value load/store and
// a sub-element GEP alias the same storage, so treating them as independent
// SSA values would be unsound. It returns the type an SSA value standing in
// for a's storage should carry — a.AllocType for (a), or the GEP path's
// resolved element type for (b).
func promotableType(a *ir.AllocaInst) (ir.Type, bool) {
	uses := a.Uses()
	if len(uses) == 0 {
		return nil, false
	}
	var direct, viaGEP int
	var gepType ir.Type
	var gepKey string
	for _, u := range uses {
		switch i := u.User.(type) {
		case *ir.LoadInst:
			if i.Address != a {
				return nil, false
			}
			direct++
		case *ir.StoreInst:
			if i.Address != a || i.Val == a {
				return nil, false
			}
			direct++
		case *ir.GEPInst:
			t, key, ok := resolveConstantPath(a.AllocType, i.Indices)
			if !ok || !onlyLoadStoreUsers(i) {
				return nil, false
			}
			if viaGEP > 0 && key != gepKey {
				return nil, false
			}
			gepType, gepKey = t, key
			viaGEP++
		default:
			return nil, false
		}
	}
	if direct > 0 && viaGEP > 0 {
		return nil, false
	}
	if viaGEP > 0 {
		return gepType, true
	}
	return a.AllocType, true
}

// rootAlloca reports the alloca standing behind addr: either addr itself, or
// the base of a GEP chain through it — the two address shapes promotableType
// allows mem2reg to track.
func rootAlloca(addr ir.Value) (*ir.AllocaInst, bool) {
	switch x := addr.(type) {
	case *ir.AllocaInst:
		return x, true
	case *ir.GEPInst:
		if base, ok := x.Base.(*ir.AllocaInst); ok {
			return base, true
		}
	}
	return nil, false
}
