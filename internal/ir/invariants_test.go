package ir_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"scatha/internal/ir"
)

// buildDiamond builds a diamond-shaped function: entry branches to left
// and right, both join at tail via a phi, matching scenario S4's shape.
func buildDiamond(ctx *ir.Context) (*ir.Module, *ir.Function, *ir.PhiInst) {
	m := ir.NewModule(ctx, "test")
	i32 := ctx.IntType(32)
	i1 := ctx.IntType(1)
	f := m.NewFunction("f", []*ir.Parameter{{Name: "c", Ty: i1}}, i32)
	entry := f.NewBlock("entry")
	left := f.NewBlock("left")
	right := f.NewBlock("right")
	tail := f.NewBlock("tail")

	eb := ir.NewBuilder(ctx, f, entry)
	eb.Branch(f.Params[0], left, right)
	left.AddPredecessor(entry)
	right.AddPredecessor(entry)

	lb := ir.NewBuilder(ctx, f, left)
	lb.Goto(tail)
	tail.AddPredecessor(left)

	rb := ir.NewBuilder(ctx, f, right)
	rb.Goto(tail)
	tail.AddPredecessor(right)

	tb := ir.NewBuilder(ctx, f, tail)
	phi := tb.Phi(i32)
	phi.AddIncoming(left, ctx.IntConstant(1, 32))
	phi.AddIncoming(right, ctx.IntConstant(2, 32))
	tb.Return(phi)

	return m, f, phi
}

func TestUseDefSymmetry(t *testing.T) {
	ctx := ir.NewContext()
	_, f, _ := buildDiamond(ctx)
	checkUseDefSymmetry(t, f)
}

func checkUseDefSymmetry(t *testing.T, f *ir.Function) {
	t.Helper()
	for _, bb := range f.Blocks {
		for _, inst := range bb.Insts {
			for _, op := range inst.Operands() {
				if op == nil {
					continue
				}
				found := false
				for _, u := range op.Uses() {
					if u.User == inst {
						found = true
						break
					}
				}
				require.True(t, found, "instruction %v uses %v but is absent from its use set", inst, op)
			}
		}
	}
}

func TestPredecessorSuccessorSymmetry(t *testing.T) {
	ctx := ir.NewContext()
	_, f, _ := buildDiamond(ctx)
	for _, bb := range f.Blocks {
		for _, succ := range bb.Successors() {
			require.Contains(t, succ.Preds, bb, "block %s -> %s missing reciprocal predecessor edge", bb.Label, succ.Label)
		}
	}
}

func TestEveryBlockHasExactlyOneTerminator(t *testing.T) {
	ctx := ir.NewContext()
	_, f, _ := buildDiamond(ctx)
	for _, bb := range f.Blocks {
		require.NotNil(t, bb.Terminator(), "block %s has no terminator", bb.Label)
		term := bb.Insts[len(bb.Insts)-1]
		require.Equal(t, term, bb.Terminator().(ir.Instruction))
	}
}

func TestInstructionParentMatchesBlock(t *testing.T) {
	ctx := ir.NewContext()
	_, f, _ := buildDiamond(ctx)
	for _, bb := range f.Blocks {
		for _, inst := range bb.Insts {
			require.Equal(t, bb, inst.Block())
		}
	}
}

func TestReplaceAllUsesWithRewritesEveryUser(t *testing.T) {
	ctx := ir.NewContext()
	m := ir.NewModule(ctx, "test")
	i32 := ctx.IntType(32)
	f := m.NewFunction("f", nil, i32)
	entry := f.NewBlock("entry")
	b := ir.NewBuilder(ctx, f, entry)

	a := b.Binary(ir.OpAdd, ctx.IntConstant(1, 32), ctx.IntConstant(2, 32), i32)
	u1 := b.Binary(ir.OpAdd, a, ctx.IntConstant(3, 32), i32)
	u2 := b.Binary(ir.OpMul, a, a, i32)
	b.Return(u2)

	repl := ctx.IntConstant(9, 32)
	ir.ReplaceAllUsesWith(a, repl)

	require.Empty(t, a.Uses())
	require.Equal(t, ir.Value(repl), u1.LHS)
	require.Equal(t, ir.Value(repl), u2.LHS)
	require.Equal(t, ir.Value(repl), u2.RHS)
}

func TestPrintParseRoundTrip(t *testing.T) {
	ctx := ir.NewContext()
	m, _, _ := buildDiamond(ctx)
	text := ir.Print(m)

	ctx2 := ir.NewContext()
	parsed, err := ir.ParseModule(ctx2, "roundtrip.ir", strings.NewReader(text))
	require.NoError(t, err)
	require.Equal(t, text, ir.Print(parsed))
}

func TestPrintParseRoundTripFloatConstant(t *testing.T) {
	ctx := ir.NewContext()
	m := ir.NewModule(ctx, "test")
	f64 := ctx.FloatType(ir.Double)
	m.Globals = append(m.Globals, &ir.GlobalVariable{
		Name:        "pi",
		Ty:          f64,
		Constant:    true,
		Initializer: ctx.FloatConstant(0x400921fb54442d18, ir.Double), // math.Pi
	})
	f := m.NewFunction("f", nil, f64)
	entry := f.NewBlock("entry")
	ir.NewBuilder(ctx, f, entry).Return(ctx.FloatConstant(0x3ff0000000000000, ir.Double))

	text := ir.Print(m)
	require.Contains(t, text, "f0x400921fb54442d18")

	ctx2 := ir.NewContext()
	parsed, err := ir.ParseModule(ctx2, "roundtrip.ir", strings.NewReader(text))
	require.NoError(t, err)
	require.Equal(t, text, ir.Print(parsed))
}

func TestParseReportsUndeclaredSymbolWithPosition(t *testing.T) {
	src := "module m\nfunction @f() -> void {\nentry:\n  call void @missing()\n  return\n}\n"
	_, err := ir.ParseModule(ir.NewContext(), "bad.ir", strings.NewReader(src))
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing")
}
