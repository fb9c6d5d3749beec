package codegen_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"scatha/internal/codegen"
	"scatha/internal/ir"
	"scatha/internal/mir"
)

// buildTailRecursive builds a function computing the n-th step of a
// countdown by self-recursion in tail position, matching scenario S1: the
// recursive call is immediately returned, so DestroySSA must rewrite it
// into an unconditional jump rather than a call/return pair.
func buildTailRecursive(ctx *ir.Context) (*ir.Module, *ir.Function) {
	m := ir.NewModule(ctx, "test")
	i32 := ctx.IntType(32)
	f := m.NewFunction("f", []*ir.Parameter{{Name: "n", Ty: i32}}, i32)
	entry := f.NewBlock("entry")
	base := f.NewBlock("base")
	rec := f.NewBlock("rec")
	n := f.Params[0]

	eb := ir.NewBuilder(ctx, f, entry)
	cmp := eb.Compare(ir.CmpSLe, n, ctx.IntConstant(0, 32))
	eb.Branch(cmp, base, rec)
	base.AddPredecessor(entry)
	rec.AddPredecessor(entry)

	bb := ir.NewBuilder(ctx, f, base)
	bb.Return(n)

	rb := ir.NewBuilder(ctx, f, rec)
	dec := rb.Binary(ir.OpSub, n, ctx.IntConstant(1, 32), i32)
	call := rb.Call(f, []ir.Value{dec}, i32)
	rb.Return(call)

	return m, f
}

// buildDiamondWithPhi mirrors internal/ir's invariants_test.go diamond
// shape (scenario S4), used here to exercise phi elimination through the
// full pipeline rather than in isolation.
func buildDiamondWithPhi(ctx *ir.Context) *ir.Module {
	m := ir.NewModule(ctx, "test")
	i32 := ctx.IntType(32)
	i1 := ctx.IntType(1)
	f := m.NewFunction("diamond", []*ir.Parameter{{Name: "c", Ty: i1}}, i32)
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

	return m
}

// lowerToHardware runs mf all the way from the IR-lowering Resolver's
// output through RegAlloc, the same sequence internal/driver.Invocation.Run
// drives per function.
func lowerToHardware(t *testing.T, m *ir.Module, ti codegen.TargetInfo) *mir.Module {
	t.Helper()
	mm := codegen.Resolve(m, ti)
	for _, f := range mm.Functions {
		codegen.DestroySSA(f, ti)
		codegen.RegAlloc(f, ti)
	}
	return mm
}

func hasPhi(f *mir.Function) bool {
	for _, bb := range f.Blocks {
		for _, inst := range bb.Insts {
			if _, ok := inst.(*mir.PhiInst); ok {
				return true
			}
		}
	}
	return false
}

func hasJump(f *mir.Function) bool {
	for _, bb := range f.Blocks {
		if _, ok := bb.Terminator().(*mir.JumpInst); ok {
			return true
		}
	}
	return false
}

func hasCall(f *mir.Function) bool {
	for _, bb := range f.Blocks {
		for _, inst := range bb.Insts {
			if _, ok := inst.(*mir.CallInst); ok {
				return true
			}
		}
	}
	return false
}

// everyRegisterIsHardware checks the post-RegAlloc universal invariant:
// no instruction operand or destination may still reference an SSA or
// virtual register once a function reaches PhaseHardware.
func everyRegisterIsHardware(t *testing.T, f *mir.Function) {
	t.Helper()
	check := func(r *mir.Register) {
		if r == nil {
			return
		}
		require.Contains(t, []mir.RegKind{mir.CalleeKind, mir.HardwareKind}, r.Kind,
			"register of kind %s survived register allocation", r.Kind)
	}
	for _, bb := range f.Blocks {
		for _, inst := range bb.Insts {
			for _, op := range inst.Operands() {
				if r, ok := op.(*mir.Register); ok {
					check(r)
				}
			}
			for _, d := range inst.Dests() {
				check(d)
			}
		}
	}
}

// copiesInto reports whether bb contains a CopyInst writing dest, and if so
// returns its source operand.
func copiesInto(bb *mir.BasicBlock, dest *mir.Register) (mir.Value, bool) {
	for _, inst := range bb.Insts {
		if cp, ok := inst.(*mir.CopyInst); ok && cp.Dest() == dest {
			return cp.Src, true
		}
	}
	return nil, false
}

func TestTailCallBecomesUnconditionalJump(t *testing.T) {
	ctx := ir.NewContext()
	m, _ := buildTailRecursive(ctx)
	ti := codegen.DefaultTargetInfo()

	mm := codegen.Resolve(m, ti)
	f := mm.Functions[0]
	require.True(t, hasCall(f), "expected a lowered call before DestroySSA")

	var call *mir.CallInst
	for _, bb := range f.Blocks {
		for _, inst := range bb.Insts {
			if c, ok := inst.(*mir.CallInst); ok {
				call = c
			}
		}
	}
	require.NotNil(t, call, "expected exactly one lowered call")
	require.Len(t, call.Args, 1)
	// DestroySSA replaces the SSA register holding the decremented value
	// with a fresh virtual register, so track it through its defining
	// instruction, whose destination is rewritten along with every use.
	decDefs := call.Args[0].(*mir.Register).Defs()
	require.NotEmpty(t, decDefs)
	param := f.Params[0]

	codegen.DestroySSA(f, ti)
	require.False(t, hasCall(f), "tail call should have been rewritten away")
	require.True(t, hasJump(f), "tail call should become an unconditional jump")
	require.Equal(t, mir.PhaseVirtual, f.Phase)

	var src mir.Value
	var found bool
	for _, bb := range f.Blocks {
		if v, ok := copiesInto(bb, param); ok {
			src, found = v, ok
		}
	}
	require.True(t, found, "expected a copy materializing the decremented argument into the function's own parameter register before the jump")
	require.Equal(t, decDefs[0].Dests()[0], src, "tail call argument must be copied into the bottom parameter register, not silently dropped")

	codegen.RegAlloc(f, ti)
	require.Equal(t, mir.PhaseHardware, f.Phase)
	everyRegisterIsHardware(t, f)
}

func TestPhiEliminatedByDestroySSA(t *testing.T) {
	ctx := ir.NewContext()
	m := buildDiamondWithPhi(ctx)
	ti := codegen.DefaultTargetInfo()

	mm := lowerToHardware(t, m, ti)
	f := mm.Functions[0]
	require.False(t, hasPhi(f), "DestroySSA must eliminate every phi")
	everyRegisterIsHardware(t, f)
}

func TestRegisterPhaseIsMonotonic(t *testing.T) {
	ctx := ir.NewContext()
	m, _ := buildTailRecursive(ctx)
	ti := codegen.DefaultTargetInfo()

	mm := codegen.Resolve(m, ti)
	f := mm.Functions[0]
	require.Equal(t, mir.PhaseSSA, f.Phase)

	codegen.DestroySSA(f, ti)
	require.Equal(t, mir.PhaseVirtual, f.Phase)

	codegen.RegAlloc(f, ti)
	require.Equal(t, mir.PhaseHardware, f.Phase)
}

func TestEmitProducesSymbolForEveryFunction(t *testing.T) {
	ctx := ir.NewContext()
	m, _ := buildTailRecursive(ctx)
	ti := codegen.DefaultTargetInfo()
	mm := lowerToHardware(t, m, ti)

	prog, err := codegen.Emit(mm)
	require.NoError(t, err)
	require.NotEmpty(t, prog.Code)
	require.Contains(t, prog.Symbols, "f")
	require.Empty(t, prog.Unresolved, "a self-recursive call resolves within its own module")
}

// buildRecordConstantReturn builds a function returning a {i64, i64}
// record constant directly, the shape spec.md §4.6 requires lower to a
// sequence of MIR copy instructions, one per 8-byte slice.
func buildRecordConstantReturn(ctx *ir.Context) (*ir.Module, *ir.RecordConstant) {
	m := ir.NewModule(ctx, "test")
	i64 := ctx.IntType(64)
	pairTy := ctx.AnonymousStruct([]ir.StructMember{{Type: i64}, {Type: i64}})
	rec := ctx.RecordConstant(pairTy, []ir.Constant{ctx.IntConstant(11, 64), ctx.IntConstant(22, 64)})

	f := m.NewFunction("f", nil, pairTy)
	entry := f.NewBlock("entry")
	ir.NewBuilder(ctx, f, entry).Return(rec)
	return m, rec
}

func TestResolveLowersRecordConstantToCopyChain(t *testing.T) {
	ctx := ir.NewContext()
	m, _ := buildRecordConstantReturn(ctx)
	ti := codegen.DefaultTargetInfo()

	mm := codegen.Resolve(m, ti)
	f := mm.Functions[0]

	var copies []*mir.CopyInst
	for _, bb := range f.Blocks {
		for _, inst := range bb.Insts {
			if cp, ok := inst.(*mir.CopyInst); ok {
				copies = append(copies, cp)
			}
		}
	}
	require.Len(t, copies, 2, "a {i64,i64} record constant flattens to two 8-byte copy instructions")
	require.Equal(t, &mir.Constant{Val: 11, Bytes: 8}, copies[0].Src)
	require.Equal(t, &mir.Constant{Val: 22, Bytes: 8}, copies[1].Src)
	require.Equal(t, copies[0].Dest().Next(), copies[1].Dest(), "the second slice's register must chain off the first")
}

func TestDiamondPipelineEmitsCleanly(t *testing.T) {
	ctx := ir.NewContext()
	m := buildDiamondWithPhi(ctx)
	ti := codegen.DefaultTargetInfo()
	mm := lowerToHardware(t, m, ti)

	prog, err := codegen.Emit(mm)
	require.NoError(t, err)
	require.Contains(t, prog.Symbols, "diamond")
}
