// Package analysis implements the lazily-computed, CFG-derived analyses
// attached to an IR function: dominance/post-dominance trees and the
// loop-nesting forest. Each is computed on demand and meant to be discarded
// by the caller once a structural mutation invalidates it; there is no
// version-counter cache here; internal/pass tracks preservation at the
// pipeline level instead.
package analysis

import "scatha/internal/ir"

// DominatorTree maps each reachable block to its immediate dominator (nil for
// the root) and supports the dominates query used by every code-motion pass.
type DominatorTree struct {
	root  *ir.BasicBlock
	idom  map[*ir.BasicBlock]*ir.BasicBlock
	order map[*ir.BasicBlock]int // reverse postorder index, for fast dominates
}

// ComputeDominance builds the dominator tree of f using the standard
// iterative reverse-postorder fixed-point algorithm (Cooper, Harvey, Kennedy).
func ComputeDominance(f *ir.Function) *DominatorTree {
	entry := f.Entry()
	if entry == nil {
		return &DominatorTree{idom: map[*ir.BasicBlock]*ir.BasicBlock{}}
	}
	rpo := reversePostorder(entry, func(b *ir.BasicBlock) []*ir.BasicBlock { return b.Successors() })
	return computeFromRPO(entry, rpo, func(b *ir.BasicBlock) []*ir.BasicBlock { return b.Preds })
}

// ComputePostDominance builds the post-dominator tree over the reversed CFG
// with a synthetic exit predecessor of every return block.
func ComputePostDominance(f *ir.Function) *DominatorTree {
	var exits []*ir.BasicBlock
	for _, b := range f.Blocks {
		if len(b.Successors()) == 0 {
			exits = append(exits, b)
		}
	}
	if len(exits) == 0 {
		return &DominatorTree{idom: map[*ir.BasicBlock]*ir.BasicBlock{}}
	}
	// Synthetic exit is represented as nil; predecessors-of-nil are exits,
	// successors-of-nil are none. Walk reverse-postorder from the synthetic
	// root by seeding the worklist with every real exit block.
	rpo := reversePostorderMulti(exits, func(b *ir.BasicBlock) []*ir.BasicBlock { return b.Preds })
	return computeFromRPO(nil, rpo, func(b *ir.BasicBlock) []*ir.BasicBlock {
		if b == nil {
			return exits
		}
		if succs := b.Successors(); len(succs) > 0 {
			return succs
		}
		// b is a real exit block; its only reversed-graph predecessor is the
		// synthetic root.
		return []*ir.BasicBlock{nil}
	})
}

func reversePostorder(entry *ir.BasicBlock, succ func(*ir.BasicBlock) []*ir.BasicBlock) []*ir.BasicBlock {
	return reversePostorderMulti([]*ir.BasicBlock{entry}, succ)
}

func reversePostorderMulti(roots []*ir.BasicBlock, succ func(*ir.BasicBlock) []*ir.BasicBlock) []*ir.BasicBlock {
	visited := map[*ir.BasicBlock]bool{}
	var post []*ir.BasicBlock
	var visit func(b *ir.BasicBlock)
	visit = func(b *ir.BasicBlock) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, s := range succ(b) {
			visit(s)
		}
		post = append(post, b)
	}
	for _, r := range roots {
		visit(r)
	}
	rpo := make([]*ir.BasicBlock, len(post))
	for i, b := range post {
		rpo[len(post)-1-i] = b
	}
	return rpo
}

// computeFromRPO runs the Cooper/Harvey/Kennedy fixed point. root is the
// block whose idom stays nil (the function entry, or nil for the synthetic
// post-dominance exit).
func computeFromRPO(root *ir.BasicBlock, rpo []*ir.BasicBlock, preds func(*ir.BasicBlock) []*ir.BasicBlock) *DominatorTree {
	order := map[*ir.BasicBlock]int{}
	for i, b := range rpo {
		order[b] = i
	}
	order[root] = -1 // root dominates everything, including rpo[0] itself
	idom := map[*ir.BasicBlock]*ir.BasicBlock{}
	idom[root] = root

	changed := true
	for changed {
		changed = false
		for _, b := range rpo {
			if b == root {
				continue
			}
			var newIdom *ir.BasicBlock
			first := true
			for _, p := range preds(b) {
				if _, ok := order[p]; !ok {
					continue
				}
				if _, done := idom[p]; !done {
					continue
				}
				if first {
					newIdom = p
					first = false
					continue
				}
				newIdom = intersect(newIdom, p, idom, order)
			}
			if !first {
				if old, had := idom[b]; !had || old != newIdom {
					idom[b] = newIdom
					changed = true
				}
			}
		}
	}
	delete(idom, root)
	return &DominatorTree{root: root, idom: idom, order: order}
}

func intersect(a, b *ir.BasicBlock, idom map[*ir.BasicBlock]*ir.BasicBlock, order map[*ir.BasicBlock]int) *ir.BasicBlock {
	for a != b {
		for order[a] > order[b] {
			a = idom[a]
		}
		for order[b] > order[a] {
			b = idom[b]
		}
	}
	return a
}

// ImmediateDominator returns b's immediate dominator, or nil for the root.
func (t *DominatorTree) ImmediateDominator(b *ir.BasicBlock) *ir.BasicBlock {
	return t.idom[b]
}

// Dominates reports whether a dominates b (a block dominates itself). Walks
// the idom chain from b toward the root, which has no idom entry.
func (t *DominatorTree) Dominates(a, b *ir.BasicBlock) bool {
	for cur := b; ; cur = t.idom[cur] {
		if cur == a {
			return true
		}
		if cur == t.root {
			return false
		}
	}
}
