package opt_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"scatha/internal/ir"
	"scatha/internal/opt"
)

func i32(ctx *ir.Context, n uint64) *ir.IntConstant { return ctx.IntConstant(n, 32) }

// buildAddChain builds a function computing ((1+x)+1)+1-2, matching
// spec.md's arithmetic-folding scenario.
func buildAddChain(ctx *ir.Context) (*ir.Function, ir.Value) {
	m := ir.NewModule(ctx, "test")
	i32ty := ctx.IntType(32)
	f := m.NewFunction("f", []*ir.Parameter{{Name: "x", Ty: i32ty}}, i32ty)
	entry := f.NewBlock("entry")
	x := f.Params[0]

	b := ir.NewBuilder(ctx, f, entry)
	s1 := b.Binary(ir.OpAdd, i32(ctx, 1), x, i32ty)
	s2 := b.Binary(ir.OpAdd, s1, i32(ctx, 1), i32ty)
	s3 := b.Binary(ir.OpAdd, s2, i32(ctx, 1), i32ty)
	s4 := b.Binary(ir.OpSub, s3, i32(ctx, 2), i32ty)
	b.Return(s4)
	return f, x
}

func runToFixedPoint(ctx *ir.Context, f *ir.Function, passes ...func(*ir.Context, *ir.Function) bool) {
	for i := 0; i < 8; i++ {
		changed := false
		for _, p := range passes {
			if p(ctx, f) {
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}

func TestInstCombineFoldsIdentities(t *testing.T) {
	ctx := ir.NewContext()
	f, _ := buildAddChain(ctx)
	canon := &opt.Canonicalize{}
	ic := &opt.InstCombine{}
	dce := &opt.DCE{}
	runToFixedPoint(ctx, f,
		canon.RunOnFunction,
		ic.RunOnFunction,
		dce.RunOnFunction,
	)
	// every constant-constant pair along the chain should have folded away,
	// leaving at most one residual add of x and a folded constant.
	entry := f.Entry()
	var binCount int
	for _, inst := range entry.Insts {
		if _, ok := inst.(*ir.BinaryInst); ok {
			binCount++
		}
	}
	require.LessOrEqual(t, binCount, 1)
}

func TestInstCombineIdempotent(t *testing.T) {
	ctx := ir.NewContext()
	f, _ := buildAddChain(ctx)
	ic := &opt.InstCombine{}
	canon := &opt.Canonicalize{}
	runToFixedPoint(ctx, f, canon.RunOnFunction, ic.RunOnFunction)
	changed := ic.RunOnFunction(ctx, f)
	require.False(t, changed, "a second run over an already-folded function must report no change")
}

func TestDCERemovesDeadInstructionAndUnreachableBlock(t *testing.T) {
	ctx := ir.NewContext()
	m := ir.NewModule(ctx, "test")
	i32ty := ctx.IntType(32)
	f := m.NewFunction("f", nil, i32ty)
	entry := f.NewBlock("entry")
	dead := f.NewBlock("dead")

	b := ir.NewBuilder(ctx, f, entry)
	b.Binary(ir.OpAdd, i32(ctx, 1), i32(ctx, 2), i32ty) // unused, dead
	b.Return(i32(ctx, 0))

	b.SetBlock(dead)
	b.Return(i32(ctx, 1))

	d := &opt.DCE{}
	changed := d.RunOnFunction(ctx, f)
	require.True(t, changed)
	require.Len(t, f.Blocks, 1)
	require.Len(t, f.Entry().Insts, 1) // only the return survives
}

func TestMem2RegPromotesScalarAlloca(t *testing.T) {
	ctx := ir.NewContext()
	m := ir.NewModule(ctx, "test")
	i32ty := ctx.IntType(32)
	f := m.NewFunction("f", nil, i32ty)
	entry := f.NewBlock("entry")

	b := ir.NewBuilder(ctx, f, entry)
	a := b.Alloca(i32ty)
	b.Store(a, i32(ctx, 42))
	load := b.Load(a, i32ty)
	b.Return(load)

	mr := &opt.Mem2Reg{}
	changed := mr.RunOnFunction(ctx, f)
	require.True(t, changed)

	for _, inst := range f.Entry().Insts {
		switch inst.(type) {
		case *ir.AllocaInst, *ir.LoadInst, *ir.StoreInst:
			t.Fatalf("memory instruction survived promotion: %v", inst)
		}
	}
}

func TestMem2RegInsertsPhiAtMerge(t *testing.T) {
	ctx := ir.NewContext()
	m := ir.NewModule(ctx, "test")
	i32ty := ctx.IntType(32)
	f := m.NewFunction("f", nil, i32ty)
	entry := f.NewBlock("entry")
	left := f.NewBlock("left")
	right := f.NewBlock("right")
	merge := f.NewBlock("merge")

	b := ir.NewBuilder(ctx, f, entry)
	a := b.Alloca(i32ty)
	b.Branch(i32(ctx, 1), left, right)

	b.SetBlock(left)
	b.Store(a, i32(ctx, 1))
	b.Goto(merge)

	b.SetBlock(right)
	b.Store(a, i32(ctx, 2))
	b.Goto(merge)

	b.SetBlock(merge)
	load := b.Load(a, i32ty)
	b.Return(load)

	mr := &opt.Mem2Reg{}
	require.True(t, mr.RunOnFunction(ctx, f))

	var hasPhi bool
	for _, inst := range merge.Insts {
		if _, ok := inst.(*ir.PhiInst); ok {
			hasPhi = true
		}
	}
	require.True(t, hasPhi, "merge block should gain a phi for the two stored values")
}

// TestSROAAndMem2RegEliminateArrayOfStructAlloca covers scenario S3: an
// alloca of [10 x {i64, i64}], stored into through a two-index GEP (array
// index, then struct field) at index 3, and read back the same way. SROA
// must split the array-of-structs alloca into one i64 alloca per addressed
// (element, field) path, and mem2reg must then promote those allocas away
// entirely.
func TestSROAAndMem2RegEliminateArrayOfStructAlloca(t *testing.T) {
	ctx := ir.NewContext()
	m := ir.NewModule(ctx, "test")
	i64 := ctx.IntType(64)
	pairTy := ctx.AnonymousStruct([]ir.StructMember{{Type: i64}, {Type: i64}})
	arrTy := ctx.ArrayType(pairTy, 10)

	f := m.NewFunction("f", nil, i64)
	entry := f.NewBlock("entry")
	b := ir.NewBuilder(ctx, f, entry)

	a := b.Alloca(arrTy)
	fieldA := b.GEP(a, arrTy, []ir.GEPIndex{{Const: 3}, {Const: 0}})
	fieldB := b.GEP(a, arrTy, []ir.GEPIndex{{Const: 3}, {Const: 1}})
	b.Store(fieldA, ctx.IntConstant(11, 64))
	b.Store(fieldB, ctx.IntConstant(22, 64))
	loadA := b.Load(fieldA, i64)
	loadB := b.Load(fieldB, i64)
	sum := b.Binary(ir.OpAdd, loadA, loadB, i64)
	b.Return(sum)

	s := &opt.SROA{}
	require.True(t, s.RunOnFunction(ctx, f))

	mr := &opt.Mem2Reg{}
	runToFixedPoint(ctx, f, s.RunOnFunction, mr.RunOnFunction)

	for _, inst := range f.Entry().Insts {
		switch inst.(type) {
		case *ir.AllocaInst, *ir.LoadInst, *ir.StoreInst, *ir.GEPInst:
			t.Fatalf("memory instruction survived SROA+mem2reg: %v", inst)
		}
	}
}

func TestInstCombineDistinctAllocasCompareFalse(t *testing.T) {
	ctx := ir.NewContext()
	m := ir.NewModule(ctx, "test")
	i32ty := ctx.IntType(32)
	f := m.NewFunction("f", nil, ctx.IntType(1))
	entry := f.NewBlock("entry")

	b := ir.NewBuilder(ctx, f, entry)
	p := b.Alloca(i32ty)
	q := b.Alloca(i32ty)
	cmp := b.Compare(ir.CmpEq, p, q)
	b.Return(cmp)

	ic := &opt.InstCombine{}
	require.True(t, ic.RunOnFunction(ctx, f))

	ret, ok := f.Entry().Insts[len(f.Entry().Insts)-1].(*ir.ReturnInst)
	require.True(t, ok)
	c, ok := ret.Val.(*ir.IntConstant)
	require.True(t, ok, "comparison of two distinct allocas should fold to a constant")
	require.Equal(t, uint64(0), c.Val)
}

func TestGVNDeduplicatesIdenticalBinary(t *testing.T) {
	ctx := ir.NewContext()
	m := ir.NewModule(ctx, "test")
	i32ty := ctx.IntType(32)
	f := m.NewFunction("f", []*ir.Parameter{{Name: "x", Ty: i32ty}}, i32ty)
	entry := f.NewBlock("entry")
	x := f.Params[0]

	b := ir.NewBuilder(ctx, f, entry)
	s1 := b.Binary(ir.OpAdd, x, i32(ctx, 1), i32ty)
	s2 := b.Binary(ir.OpAdd, x, i32(ctx, 1), i32ty)
	sum := b.Binary(ir.OpAdd, s1, s2, i32ty)
	b.Return(sum)

	g := &opt.GVN{}
	require.True(t, g.RunOnFunction(ctx, f))
	require.Empty(t, s2.Uses(), "the redundant second add should lose all uses once replaced")
}

func TestTailCallMarkFlagsDirectTailCall(t *testing.T) {
	ctx := ir.NewContext()
	m := ir.NewModule(ctx, "test")
	i32ty := ctx.IntType(32)
	callee := m.NewFunction("callee", nil, i32ty)
	callee.NewBlock("entry")
	cb := ir.NewBuilder(ctx, callee, callee.Entry())
	cb.Return(i32(ctx, 0))

	f := m.NewFunction("caller", nil, i32ty)
	entry := f.NewBlock("entry")
	b := ir.NewBuilder(ctx, f, entry)
	call := b.Call(callee, nil, i32ty)
	b.Return(call)

	tcm := &opt.TailCallMark{}
	require.True(t, tcm.RunOnFunction(ctx, f))
	require.True(t, call.TailCandidate)
}

func TestInlineSplicesCalleeBody(t *testing.T) {
	ctx := ir.NewContext()
	m := ir.NewModule(ctx, "test")
	i32ty := ctx.IntType(32)

	callee := m.NewFunction("add_one", []*ir.Parameter{{Name: "v", Ty: i32ty}}, i32ty)
	callee.NewBlock("entry")
	cb := ir.NewBuilder(ctx, callee, callee.Entry())
	sum := cb.Binary(ir.OpAdd, callee.Params[0], i32(ctx, 1), i32ty)
	cb.Return(sum)

	f := m.NewFunction("caller", []*ir.Parameter{{Name: "x", Ty: i32ty}}, i32ty)
	entry := f.NewBlock("entry")
	b := ir.NewBuilder(ctx, f, entry)
	call := b.Call(callee, []ir.Value{f.Params[0]}, i32ty)
	b.Return(call)

	inliner := opt.NewInline(24)
	require.True(t, inliner.RunOnFunction(ctx, f))

	for _, blk := range f.Blocks {
		for _, inst := range blk.Insts {
			if c, ok := inst.(*ir.CallInst); ok {
				require.NotEqual(t, ir.Value(callee), c.Callee, "the inlined call site should be gone")
			}
		}
	}
	require.Greater(t, len(f.Blocks), 1, "inlining should have introduced the callee's blocks")
}
