package analysis_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"scatha/internal/analysis"
	"scatha/internal/ir"
)

// buildDiamond builds entry -> {left, right} -> merge -> return.
func buildDiamond(ctx *ir.Context) (*ir.Function, map[string]*ir.BasicBlock) {
	m := ir.NewModule(ctx, "test")
	f := m.NewFunction("diamond", nil, ctx.VoidType())
	entry := f.NewBlock("entry")
	left := f.NewBlock("left")
	right := f.NewBlock("right")
	merge := f.NewBlock("merge")

	b := ir.NewBuilder(ctx, f, entry)
	cond := ctx.IntConstant(1, 1)
	b.Branch(cond, left, right)

	b.SetBlock(left)
	b.Goto(merge)

	b.SetBlock(right)
	b.Goto(merge)

	b.SetBlock(merge)
	b.Return(nil)

	return f, map[string]*ir.BasicBlock{"entry": entry, "left": left, "right": right, "merge": merge}
}

func TestDominanceDiamond(t *testing.T) {
	ctx := ir.NewContext()
	f, blocks := buildDiamond(ctx)
	dt := analysis.ComputeDominance(f)

	require.True(t, dt.Dominates(blocks["entry"], blocks["merge"]))
	require.True(t, dt.Dominates(blocks["entry"], blocks["left"]))
	require.False(t, dt.Dominates(blocks["left"], blocks["merge"]))
	require.False(t, dt.Dominates(blocks["right"], blocks["merge"]))
	require.Equal(t, blocks["entry"], dt.ImmediateDominator(blocks["merge"]))
}

func TestPostDominanceDiamond(t *testing.T) {
	ctx := ir.NewContext()
	f, blocks := buildDiamond(ctx)
	pdt := analysis.ComputePostDominance(f)

	require.True(t, pdt.Dominates(blocks["merge"], blocks["entry"]))
	require.True(t, pdt.Dominates(blocks["merge"], blocks["left"]))
}
