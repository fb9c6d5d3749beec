package analysis_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"scatha/internal/analysis"
	"scatha/internal/ir"
)

// buildLoop builds entry -> header -> {body -> header, exit}, a single
// natural loop with header as its only back-edge target.
func buildLoop(ctx *ir.Context) (*ir.Function, map[string]*ir.BasicBlock) {
	m := ir.NewModule(ctx, "test")
	f := m.NewFunction("loop", nil, ctx.VoidType())
	entry := f.NewBlock("entry")
	header := f.NewBlock("header")
	body := f.NewBlock("body")
	exit := f.NewBlock("exit")

	b := ir.NewBuilder(ctx, f, entry)
	b.Goto(header)

	cond := ctx.IntConstant(1, 1)
	b.SetBlock(header)
	b.Branch(cond, body, exit)

	b.SetBlock(body)
	b.Goto(header)

	b.SetBlock(exit)
	b.Return(nil)

	return f, map[string]*ir.BasicBlock{
		"entry": entry, "header": header, "body": body, "exit": exit,
	}
}

func TestComputeLoopNestFindsSingleLoop(t *testing.T) {
	ctx := ir.NewContext()
	f, blocks := buildLoop(ctx)
	lnf := analysis.ComputeLoopNest(f)

	require.Len(t, lnf.Roots, 1)
	root := lnf.Roots[0]
	require.Equal(t, blocks["header"], root.Header)
	require.ElementsMatch(t, []*ir.BasicBlock{blocks["header"], blocks["body"]}, root.Blocks)
	require.Empty(t, root.Children)

	require.Equal(t, root, lnf.InnermostLoop(blocks["header"]))
	require.Equal(t, root, lnf.InnermostLoop(blocks["body"]))
	require.Nil(t, lnf.InnermostLoop(blocks["entry"]))
	require.Nil(t, lnf.InnermostLoop(blocks["exit"]))
}

// buildNestedLoop builds a loop nested inside another: entry -> outer ->
// {innerHeader, exit}; innerHeader -> {innerBody, outerLatch}; innerBody
// loops back to innerHeader; outerLatch loops back to outer.
func buildNestedLoop(ctx *ir.Context) (*ir.Function, map[string]*ir.BasicBlock) {
	m := ir.NewModule(ctx, "test")
	f := m.NewFunction("nested", nil, ctx.VoidType())
	entry := f.NewBlock("entry")
	outer := f.NewBlock("outer")
	innerHeader := f.NewBlock("innerHeader")
	innerBody := f.NewBlock("innerBody")
	outerLatch := f.NewBlock("outerLatch")
	exit := f.NewBlock("exit")

	cond := ctx.IntConstant(1, 1)
	b := ir.NewBuilder(ctx, f, entry)
	b.Goto(outer)

	b.SetBlock(outer)
	b.Branch(cond, innerHeader, exit)

	b.SetBlock(innerHeader)
	b.Branch(cond, innerBody, outerLatch)

	b.SetBlock(innerBody)
	b.Goto(innerHeader)

	b.SetBlock(outerLatch)
	b.Goto(outer)

	b.SetBlock(exit)
	b.Return(nil)

	return f, map[string]*ir.BasicBlock{
		"entry": entry, "outer": outer, "innerHeader": innerHeader,
		"innerBody": innerBody, "outerLatch": outerLatch, "exit": exit,
	}
}

func TestComputeLoopNestNestsInnerLoop(t *testing.T) {
	ctx := ir.NewContext()
	f, blocks := buildNestedLoop(ctx)
	lnf := analysis.ComputeLoopNest(f)

	require.Len(t, lnf.Roots, 1)
	outerNode := lnf.Roots[0]
	require.Equal(t, blocks["outer"], outerNode.Header)
	require.ElementsMatch(t,
		[]*ir.BasicBlock{blocks["outer"], blocks["outerLatch"], blocks["innerHeader"], blocks["innerBody"]},
		outerNode.Blocks)

	require.Len(t, outerNode.Children, 1)
	innerNode := outerNode.Children[0]
	require.Equal(t, blocks["innerHeader"], innerNode.Header)
	require.ElementsMatch(t, []*ir.BasicBlock{blocks["innerHeader"], blocks["innerBody"]}, innerNode.Blocks)

	require.Equal(t, innerNode, lnf.InnermostLoop(blocks["innerHeader"]))
	require.Equal(t, innerNode, lnf.InnermostLoop(blocks["innerBody"]))
	require.Equal(t, outerNode, lnf.InnermostLoop(blocks["outerLatch"]))
	require.Nil(t, lnf.InnermostLoop(blocks["entry"]))
	require.Nil(t, lnf.InnermostLoop(blocks["exit"]))
}
