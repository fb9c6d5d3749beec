package codegen

import "scatha/internal/mir"

// RegAlloc lowers f out of the virtual register phase into the hardware
// phase, grounded directly on lib/CodeGen/RegisterAllocator.cc: three-to-two
// address conversion, interference-graph construction and Chaitin-style
// simplify/select coloring, the virtual-to-hardware rewrite, and the
// post-coloring copy/dead-code cleanup and callee-register placement of
// spec.md §4.8 steps 1-6. There is no spill path: the model has no fixed
// register-file size, so a function's hardware-register bank simply grows to
// however many colors the graph needs.
func RegAlloc(f *mir.Function, ti TargetInfo) {
	requirePhase(f, mir.PhaseVirtual, "RegAlloc")
	convertToTwoAddress(f)

	refreshLiveness(f)
	coalesceCopies(f)
	refreshLiveness(f)

	graph := buildInterferenceGraph(f)
	numColors := graph.colorize()
	for i := 0; i < numColors; i++ {
		f.HardwareRegs.New()
	}
	graph.replaceWithHardware(f)

	evictCopyInstructions(f)
	sets := refreshLiveness(f)
	evictUnusedInstructions(f, sets)

	allocateCalleeRegisters(f, ti)
	f.Phase = mir.PhaseHardware
}

func refreshLiveness(f *mir.Function) map[*mir.BasicBlock]*LiveSet {
	lnf := ComputeLoopNest(f)
	sets := ComputeLiveSets(f, lnf)
	ComputeLiveIntervals(f, sets)
	return sets
}

// convertToTwoAddress rewrites every ArithInst and ConvertInst so its first
// operand is its own destination, the shape the VM's two-address
// instructions require (spec.md §4.8 step 1). A register already shared
// between dest and operand 0 costs nothing; a commutative op with operand 1
// equal to dest is fixed by swapping; anything else goes through a scratch
// register so the original destination's old value (when it doubles as the
// other operand) survives until the real op runs.
func convertToTwoAddress(f *mir.Function) {
	for _, bb := range f.Blocks {
		for i := 0; i < len(bb.Insts); i++ {
			switch inst := bb.Insts[i].(type) {
			case *mir.ArithInst:
				convertArithToTwoAddress(f, bb, inst)
			case *mir.ConvertInst:
				convertUnaryToTwoAddress(bb, inst)
			}
		}
	}
}

func convertArithToTwoAddress(f *mir.Function, bb *mir.BasicBlock, inst *mir.ArithInst) {
	dest := inst.Dest()
	lhs, rhs := inst.LHS, inst.RHS
	if lr, ok := lhs.(*mir.Register); ok && lr == dest {
		return
	}
	if rr, ok := rhs.(*mir.Register); ok && rr == dest && inst.Op.Commutative() {
		inst.SetOperandAt(0, rhs)
		inst.SetOperandAt(1, lhs)
		return
	}
	tmp := f.VirtualRegs.New()
	bb.InsertBefore(inst, mir.NewCopyInst(tmp, lhs, inst.ByteWidth()))
	inst.SetOperandAt(0, tmp)
	inst.ClearDest()
	inst.SetDest(tmp, 1)
	bb.InsertAfter(inst, mir.NewCopyInst(dest, tmp, inst.ByteWidth()))
}

func convertUnaryToTwoAddress(bb *mir.BasicBlock, inst *mir.ConvertInst) {
	dest := inst.Dest()
	if sr, ok := inst.Src.(*mir.Register); ok && sr == dest {
		return
	}
	bb.InsertBefore(inst, mir.NewCopyInst(dest, inst.Src, inst.ByteWidth()))
	inst.SetOperandAt(0, dest)
}

// coalesceCopies merges the source and destination of every plain register
// copy whose live ranges do not overlap, matching spec.md's "coalesce only
// moves whose source and destination do not interfere". Merging is done by
// rewriting every use/def of dest to src and erasing the copy; live ranges
// must be refreshed afterward since the register set has changed shape.
func coalesceCopies(f *mir.Function) {
	for _, bb := range f.Blocks {
		var erase []*mir.CopyInst
		for _, inst := range bb.Insts {
			cp, ok := inst.(*mir.CopyInst)
			if !ok {
				continue
			}
			src, ok := cp.Src.(*mir.Register)
			if !ok {
				continue
			}
			dest := cp.Dest()
			if src == dest {
				erase = append(erase, cp)
				continue
			}
			if src.Fixed() || dest.Fixed() {
				continue
			}
			if overlaps(src, dest) {
				continue
			}
			dest.ReplaceWith(src)
			erase = append(erase, cp)
		}
		for _, cp := range erase {
			eraseInst(bb, cp)
		}
	}
}

// igNode is one register's slot in an InterferenceGraph.
type igNode struct {
	reg       *mir.Register
	fixed     bool
	color     int
	neighbors map[*igNode]bool
}

// InterferenceGraph's nodes are a function's non-callee registers; an edge
// connects two registers whose live ranges overlap (spec.md §4.8 step 2).
// Fixed registers (parameters, return-value registers) get their color
// reserved up front rather than chosen by simplify/select.
type InterferenceGraph struct {
	nodes []*igNode
	byReg map[*mir.Register]*igNode
}

func buildInterferenceGraph(f *mir.Function) *InterferenceGraph {
	g := &InterferenceGraph{byReg: map[*mir.Register]*igNode{}}
	add := func(r *mir.Register) {
		if _, ok := g.byReg[r]; ok {
			return
		}
		n := &igNode{reg: r, fixed: r.Fixed(), color: -1, neighbors: map[*igNode]bool{}}
		g.byReg[r] = n
		g.nodes = append(g.nodes, n)
	}
	for _, p := range f.Params {
		add(p)
	}
	for _, r := range f.VirtualRegs.All() {
		if r.Fixed() || len(r.Uses()) > 0 || len(r.Defs()) > 0 {
			add(r)
		}
	}

	nextColor := 0
	for _, n := range g.nodes {
		if n.fixed {
			n.color = nextColor
			nextColor++
		}
	}

	for i, a := range g.nodes {
		for _, b := range g.nodes[i+1:] {
			if overlaps(a.reg, b.reg) {
				a.neighbors[b] = true
				b.neighbors[a] = true
			}
		}
	}
	return g
}

func overlaps(a, b *mir.Register) bool {
	for _, ia := range a.LiveRange() {
		for _, ib := range b.LiveRange() {
			if ia.Overlaps(ib) {
				return true
			}
		}
	}
	return false
}

// colorize runs simplify/select over every uncolored (non-fixed) node,
// picking the next node to remove by lowest remaining degree, breaking ties
// toward the lowest spill cost so registers costly to recompute keep more
// choice of color for longer. It returns the total color count, which
// becomes the function's hardware-register bank size.
func (g *InterferenceGraph) colorize() int {
	remaining := make([]*igNode, 0, len(g.nodes))
	for _, n := range g.nodes {
		if n.color < 0 {
			remaining = append(remaining, n)
		}
	}
	removed := map[*igNode]bool{}
	stack := make([]*igNode, 0, len(remaining))
	for len(remaining) > 0 {
		best := 0
		bestDegree, bestCost := -1, 0
		for i, n := range remaining {
			deg := 0
			for nb := range n.neighbors {
				if !removed[nb] {
					deg++
				}
			}
			cost := spillCost(n)
			if bestDegree < 0 || deg < bestDegree || (deg == bestDegree && cost < bestCost) {
				best, bestDegree, bestCost = i, deg, cost
			}
		}
		n := remaining[best]
		remaining = append(remaining[:best], remaining[best+1:]...)
		removed[n] = true
		stack = append(stack, n)
	}

	maxColor := -1
	for _, n := range g.nodes {
		if n.color > maxColor {
			maxColor = n.color
		}
	}
	for i := len(stack) - 1; i >= 0; i-- {
		n := stack[i]
		used := map[int]bool{}
		for nb := range n.neighbors {
			if nb.color >= 0 {
				used[nb.color] = true
			}
		}
		c := 0
		for used[c] {
			c++
		}
		n.color = c
		if c > maxColor {
			maxColor = c
		}
	}
	return maxColor + 1
}

func spillCost(n *igNode) int {
	return len(n.reg.Uses()) + len(n.reg.Defs())
}

// replaceWithHardware rewrites every node's register to the hardware
// register of its color and updates the function's Params/ReturnRegs slices
// to match; f.HardwareRegs must already hold exactly numColors registers.
// Nodes are walked in the order they were added to the graph (Params then
// VirtualRegs, each in ascending pool index), which is required for
// Register.ReplaceWith to correctly carry multi-word chains (see
// replaceDestRegister in internal/mir).
func (g *InterferenceGraph) replaceWithHardware(f *mir.Function) {
	for _, n := range g.nodes {
		hw := f.HardwareRegs.At(n.color)
		n.reg.ReplaceWith(hw)
	}
	for i, p := range f.Params {
		if n, ok := g.byReg[p]; ok {
			f.Params[i] = f.HardwareRegs.At(n.color)
		}
	}
	for i, r := range f.ReturnRegs {
		if n, ok := g.byReg[r]; ok {
			f.ReturnRegs[i] = f.HardwareRegs.At(n.color)
		}
	}
}

// evictCopyInstructions drops copies whose source and destination are now
// the same hardware register, and rewrites a copy of constant zero into a
// wide register as a self-XOR, which encodes smaller (spec.md §4.8 step 5).
func evictCopyInstructions(f *mir.Function) {
	for _, bb := range f.Blocks {
		var erase []mir.Instruction
		for _, inst := range bb.Insts {
			cp, ok := inst.(*mir.CopyInst)
			if !ok {
				continue
			}
			dest := cp.Dest()
			if r, ok := cp.Src.(*mir.Register); ok && r == dest {
				erase = append(erase, cp)
				continue
			}
			if c, ok := cp.Src.(*mir.Constant); ok && c.Val == 0 && cp.ByteWidth() > 2 {
				xor := mir.NewArithInst(dest, mir.ArithXor, dest, dest, cp.ByteWidth())
				bb.InsertBefore(cp, xor)
				erase = append(erase, cp)
			}
		}
		for _, inst := range erase {
			eraseInst(bb, inst)
		}
	}
}

// evictUnusedInstructions deletes any instruction with no side effects whose
// destinations are dead at that point, scanning each block in reverse and
// tracking the live set as it goes (spec.md §4.8 step 5). Callee-register
// destinations are never evicted since they feed a call's argument window
// whether or not anything reads them again, and a CondCopyInst's destination
// is never cleared from the live set since the copy only conditionally
// clobbers it.
func evictUnusedInstructions(f *mir.Function, sets map[*mir.BasicBlock]*LiveSet) {
	for _, bb := range f.Blocks {
		live := map[*mir.Register]bool{}
		for reg := range sets[bb].Out {
			live[reg] = true
		}
		var erase []mir.Instruction
		for i := len(bb.Insts) - 1; i >= 0; i-- {
			inst := bb.Insts[i]
			calleeDest := false
			if d := inst.Dest(); d != nil && d.Kind == mir.CalleeKind {
				calleeDest = true
			}
			anyLive := false
			for _, d := range inst.Dests() {
				if live[d] {
					anyLive = true
					break
				}
			}
			if !HasSideEffects(inst) && !calleeDest && !anyLive && inst.NumDests() > 0 {
				erase = append(erase, inst)
				continue
			}
			if _, isCondCopy := inst.(*mir.CondCopyInst); !isCondCopy {
				for _, d := range inst.Dests() {
					delete(live, d)
				}
			}
			for _, op := range inst.Operands() {
				if reg, ok := op.(*mir.Register); ok {
					live[reg] = true
				}
			}
		}
		for _, inst := range erase {
			eraseInst(bb, inst)
		}
	}
}

func eraseInst(bb *mir.BasicBlock, inst mir.Instruction) {
	inst.ClearDest()
	for _, op := range inst.Operands() {
		if op != nil {
			inst.ReplaceOperand(op, nil)
		}
	}
	bb.Erase(inst)
}

// allocateCalleeRegisters places a function's callee-register bank (its
// frame pointer plus every call's argument/result window) in hardware
// register space directly above the colored bank, and records each call's
// window offset so the emitter knows where its arguments and results land
// (spec.md §4.8 step 5, last bullet).
func allocateCalleeRegisters(f *mir.Function, ti TargetInfo) {
	numRegs := f.HardwareRegs.Len()
	framePtr := f.FramePtr
	for _, creg := range f.CalleeRegs.All() {
		hw := f.HardwareRegs.New()
		creg.ReplaceWith(hw)
		if creg == framePtr {
			f.FramePtr = hw
		}
	}
	for _, bb := range f.Blocks {
		for _, inst := range bb.Insts {
			call, ok := inst.(*mir.CallInst)
			if !ok {
				continue
			}
			offset := numRegs
			if len(call.Clobbers) > 0 {
				offset += call.Clobbers[0].Index
			}
			if call.IsNative() {
				offset += ti.NumRegistersForCallMetadata()
			}
			call.RegisterOffset = offset
		}
	}
}
