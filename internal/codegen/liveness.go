package codegen

import "scatha/internal/mir"

// ComputeLiveSets runs the two-pass SSA liveness algorithm of the original
// lib/CodeGen/DataFlow.cc over f in its pre-destroySSA (register-phase SSA)
// form: `dag()` walks the CFG in DFS post-order propagating liveOut/liveIn
// sets per block, then `loopTree()` widens every block inside a natural
// loop with its header's liveIn, since a loop header's live-in set must
// also be live at every point the loop can jump back from.
func ComputeLiveSets(f *mir.Function, lnf LoopNestingForest) map[*mir.BasicBlock]*LiveSet {
	ctx := &livenessContext{
		f:        f,
		sets:     map[*mir.BasicBlock]*LiveSet{},
		visited:  map[*mir.BasicBlock]bool{},
		onStack:  map[*mir.BasicBlock]bool{},
		backEdge: map[[2]*mir.BasicBlock]bool{},
	}
	for _, bb := range f.Blocks {
		ctx.sets[bb] = &LiveSet{In: map[*mir.Register]bool{}, Out: map[*mir.Register]bool{}}
	}
	if entry := f.Entry(); entry != nil {
		ctx.dag(entry)
	}
	ctx.loopTree(lnf)
	return ctx.sets
}

// LiveSet is the set of registers live at a basic block's entry (In) and
// exit (Out) boundary.
type LiveSet struct {
	In, Out map[*mir.Register]bool
}

// LoopNestingForest mirrors internal/analysis.LoopNestingForest shaped for
// MIR blocks, built once per function by the caller (RegAlloc) before
// calling ComputeLiveSets, since internal/analysis only operates on
// internal/ir control-flow graphs.
type LoopNestingForest struct {
	Roots []*LoopNode
}

// LoopNode is one natural loop: its header plus every block in its body
// (including nested loops), mirroring internal/analysis.LoopNode.
type LoopNode struct {
	Header   *mir.BasicBlock
	Blocks   []*mir.BasicBlock
	Children []*LoopNode
}

// ComputeLoopNest computes f's natural-loop forest directly over MIR basic
// blocks, grounded the same way as internal/analysis.ComputeLoopNest: a
// back edge is any edge to a block still on the current DFS stack, and a
// natural loop's body is every block that can reach the back edge's tail
// without passing through the header.
func ComputeLoopNest(f *mir.Function) LoopNestingForest {
	entry := f.Entry()
	if entry == nil {
		return LoopNestingForest{}
	}
	visited := map[*mir.BasicBlock]bool{}
	onStack := map[*mir.BasicBlock]bool{}
	var backEdges [][2]*mir.BasicBlock

	var dfs func(bb *mir.BasicBlock)
	dfs = func(bb *mir.BasicBlock) {
		visited[bb] = true
		onStack[bb] = true
		for _, s := range bb.Successors() {
			if onStack[s] {
				backEdges = append(backEdges, [2]*mir.BasicBlock{bb, s})
				continue
			}
			if !visited[s] {
				dfs(s)
			}
		}
		onStack[bb] = false
	}
	dfs(entry)

	headerBlocks := map[*mir.BasicBlock]map[*mir.BasicBlock]bool{}
	var headers []*mir.BasicBlock
	for _, be := range backEdges {
		tail, header := be[0], be[1]
		blocks := headerBlocks[header]
		if blocks == nil {
			blocks = map[*mir.BasicBlock]bool{header: true}
			headerBlocks[header] = blocks
			headers = append(headers, header)
		}
		naturalLoopBlocks(tail, header, blocks)
	}

	nodes := map[*mir.BasicBlock]*LoopNode{}
	var roots []*LoopNode
	for _, h := range headers {
		blocks := headerBlocks[h]
		node := &LoopNode{Header: h}
		for bb := range blocks {
			node.Blocks = append(node.Blocks, bb)
		}
		nodes[h] = node
	}
	for _, h := range headers {
		node := nodes[h]
		parent := (*LoopNode)(nil)
		for _, other := range headers {
			if other == h {
				continue
			}
			if headerBlocks[other][h] && (parent == nil || len(headerBlocks[other]) < len(headerBlocks[parent.Header])) {
				parent = nodes[other]
			}
		}
		if parent != nil {
			parent.Children = append(parent.Children, node)
		} else {
			roots = append(roots, node)
		}
	}
	return LoopNestingForest{Roots: roots}
}

func naturalLoopBlocks(tail, header *mir.BasicBlock, into map[*mir.BasicBlock]bool) {
	if into[tail] {
		return
	}
	into[tail] = true
	var walk func(bb *mir.BasicBlock)
	visited := map[*mir.BasicBlock]bool{tail: true}
	walk = func(bb *mir.BasicBlock) {
		for _, p := range bb.Preds {
			if p == header || visited[p] {
				continue
			}
			visited[p] = true
			into[p] = true
			walk(p)
		}
	}
	walk(tail)
}

type livenessContext struct {
	f        *mir.Function
	sets     map[*mir.BasicBlock]*LiveSet
	visited  map[*mir.BasicBlock]bool
	onStack  map[*mir.BasicBlock]bool
	backEdge map[[2]*mir.BasicBlock]bool
}

// dag computes liveOut/liveIn for bb and its not-yet-visited successors in DFS
// post-order: liveOut is the union of every successor's liveIn (treating a
// phi use as live-out only in the predecessor the phi reads it from, not
// across the whole successor), and liveIn is liveOut minus this block's own
// defs plus its operands, plus the destinations of any phis at its head
// (those are defined here, by construction, but still must flow as "in"
// for the predecessor-side copy DestroySSA will insert).
func (c *livenessContext) dag(bb *mir.BasicBlock) {
	if c.visited[bb] {
		return
	}
	c.visited[bb] = true
	c.onStack[bb] = true
	set := c.sets[bb]

	for _, s := range bb.Successors() {
		if c.onStack[s] {
			c.backEdge[[2]*mir.BasicBlock{bb, s}] = true
			continue
		}
		c.dag(s)
		for reg := range phiUsesFrom(s, bb) {
			set.Out[reg] = true
		}
		for reg := range c.sets[s].In {
			if !isPhiDest(s, reg) {
				set.Out[reg] = true
			}
		}
	}

	defs := map[*mir.Register]bool{}
	for _, inst := range bb.Insts {
		for _, d := range inst.Dests() {
			defs[d] = true
		}
	}
	for reg := range set.Out {
		if !defs[reg] {
			set.In[reg] = true
		}
	}
	for _, inst := range bb.Insts {
		if phi, ok := inst.(*mir.PhiInst); ok {
			for _, d := range phi.Dests() {
				set.In[d] = true
			}
			continue
		}
		for _, op := range inst.Operands() {
			if reg, ok := op.(*mir.Register); ok {
				set.In[reg] = true
			}
		}
	}
	if term := bb.Terminator(); term != nil {
		for _, d := range term.Dests() {
			set.In[d] = true
		}
	}
	c.onStack[bb] = false
}

func phiUsesFrom(succ, pred *mir.BasicBlock) map[*mir.Register]bool {
	out := map[*mir.Register]bool{}
	for _, inst := range succ.Insts {
		phi, ok := inst.(*mir.PhiInst)
		if !ok {
			break
		}
		for _, in := range phi.Incoming {
			if in.Block != pred {
				continue
			}
			if reg, ok := in.Value.(*mir.Register); ok {
				out[reg] = true
			}
		}
	}
	return out
}

func isPhiDest(bb *mir.BasicBlock, reg *mir.Register) bool {
	for _, inst := range bb.Insts {
		phi, ok := inst.(*mir.PhiInst)
		if !ok {
			break
		}
		for _, d := range phi.Dests() {
			if d == reg {
				return true
			}
		}
	}
	return false
}

// loopTree widens every block inside a natural loop with the liveIn set of
// its header, minus the header's own phi destinations, matching
// DataFlow.cc's rationale: any register live at loop entry must also be
// preserved across every back edge inside the loop body, a fact the DFS
// post-order walk in dag() cannot see because it only follows forward
// edges plus the single already-counted back edge.
func (c *livenessContext) loopTree(lnf LoopNestingForest) {
	var walk func(node *LoopNode)
	walk = func(node *LoopNode) {
		headerIn := map[*mir.Register]bool{}
		for reg := range c.sets[node.Header].In {
			if !isPhiDest(node.Header, reg) {
				headerIn[reg] = true
			}
		}
		for _, bb := range node.Blocks {
			set := c.sets[bb]
			for reg := range headerIn {
				set.In[reg] = true
				set.Out[reg] = true
			}
		}
		for _, child := range node.Children {
			walk(child)
		}
	}
	for _, root := range lnf.Roots {
		walk(root)
	}
}

// ComputeLiveIntervals assigns each register its live-range intervals from
// per-block live sets plus a program-point-linearized function, mirroring
// computeLiveRange/computeLiveInterval in lib/CodeGen/Utility.cc: a
// register's interval starts at its def point (or the block's start if it
// is live-in) and ends at its last use in each block it is live through,
// including one extra half-step for a CondCopyInst destination since a
// conditional copy only conditionally clobbers its destination, so the
// destination's old value must stay live across the instruction too.
func ComputeLiveIntervals(f *mir.Function, sets map[*mir.BasicBlock]*LiveSet) {
	f.AssignProgramPoints()
	intervals := map[*mir.Register][]mir.LiveInterval{}
	for _, bb := range f.Blocks {
		set := sets[bb]
		blockStart, blockEnd := blockRange(bb)
		live := map[*mir.Register]int{}
		for reg := range set.In {
			live[reg] = blockStart
		}
		for _, inst := range bb.Insts {
			point := inst.Index()
			if cc, ok := inst.(*mir.CondCopyInst); ok {
				if _, ok := live[cc.Dest()]; !ok {
					live[cc.Dest()] = point
				}
			}
			for _, op := range inst.Operands() {
				if reg, ok := op.(*mir.Register); ok {
					if _, ok := live[reg]; !ok {
						live[reg] = point
					}
				}
			}
			for _, d := range inst.Dests() {
				if start, ok := live[d]; ok {
					intervals[d] = append(intervals[d], mir.LiveInterval{Begin: start, End: point})
					delete(live, d)
				}
				if !set.Out[d] {
					continue
				}
				live[d] = point
			}
		}
		for reg, start := range live {
			intervals[reg] = append(intervals[reg], mir.LiveInterval{Begin: start, End: blockEnd})
		}
	}
	for reg, ivs := range intervals {
		reg.SetLiveRange(mergeIntervals(ivs))
	}
}

func blockRange(bb *mir.BasicBlock) (int, int) {
	if len(bb.Insts) == 0 {
		return 0, 0
	}
	first := bb.Insts[0].Index()
	last := bb.Insts[len(bb.Insts)-1].Index()
	return first, last + 2
}

func mergeIntervals(ivs []mir.LiveInterval) []mir.LiveInterval {
	if len(ivs) <= 1 {
		return ivs
	}
	for i := 1; i < len(ivs); i++ {
		for j := i; j > 0 && ivs[j-1].Begin > ivs[j].Begin; j-- {
			ivs[j-1], ivs[j] = ivs[j], ivs[j-1]
		}
	}
	merged := ivs[:1]
	for _, iv := range ivs[1:] {
		last := &merged[len(merged)-1]
		if iv.Begin <= last.End {
			if iv.End > last.End {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}
