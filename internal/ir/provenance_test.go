package ir_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"scatha/internal/ir"
)

// TestDistinctAllocasAreProvablyDistinct covers scenario S6: two separate
// stack allocations can never alias, so a pointer comparison between them
// is foldable to false regardless of any runtime value.
func TestDistinctAllocasAreProvablyDistinct(t *testing.T) {
	ctx := ir.NewContext()
	m := ir.NewModule(ctx, "test")
	i32 := ctx.IntType(32)
	f := m.NewFunction("f", nil, ctx.VoidType())
	entry := f.NewBlock("entry")
	b := ir.NewBuilder(ctx, f, entry)

	a := b.Alloca(i32)
	c := b.Alloca(i32)
	b.Return(nil)

	pm := ir.ComputeProvenance(f)
	require.True(t, pm.Distinct(a, c))
}

// TestSameAllocaIsNotDistinctFromItself guards against a provenance pass
// that folds any alloca-vs-alloca comparison to false, rather than only
// distinct origins.
func TestSameAllocaIsNotDistinctFromItself(t *testing.T) {
	ctx := ir.NewContext()
	m := ir.NewModule(ctx, "test")
	i32 := ctx.IntType(32)
	f := m.NewFunction("f", nil, ctx.VoidType())
	entry := f.NewBlock("entry")
	b := ir.NewBuilder(ctx, f, entry)

	a := b.Alloca(i32)
	b.Return(nil)

	pm := ir.ComputeProvenance(f)
	require.False(t, pm.Distinct(a, a))
}

// TestGEPOffsetFromSameOriginTracksDistinctOffsets: two constant-offset GEPs
// off the same struct alloca are distinct pointers even though they share
// an origin, since their static offsets differ.
func TestGEPOffsetFromSameOriginTracksDistinctOffsets(t *testing.T) {
	ctx := ir.NewContext()
	m := ir.NewModule(ctx, "test")
	i32 := ctx.IntType(32)
	st := ctx.NamedStruct("Point", []ir.StructMember{
		{Type: i32},
		{Type: i32},
	})
	f := m.NewFunction("f", nil, ctx.VoidType())
	entry := f.NewBlock("entry")
	b := ir.NewBuilder(ctx, f, entry)

	base := b.Alloca(st)
	field0 := b.GEP(base, st, []ir.GEPIndex{{Const: 0}})
	field1 := b.GEP(base, st, []ir.GEPIndex{{Const: 1}})
	b.Return(nil)

	pm := ir.ComputeProvenance(f)
	require.True(t, pm.Distinct(field0, field1))
	require.False(t, pm.Distinct(field0, field0))
}
