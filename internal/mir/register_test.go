package mir_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"scatha/internal/mir"
)

func TestNewFunctionSeedsFixedParamsAndReturns(t *testing.T) {
	m := mir.NewModule("test")
	f := m.NewFunction("f", 2, 1)

	require.Equal(t, mir.PhaseSSA, f.Phase)
	require.Len(t, f.Params, 2)
	for _, p := range f.Params {
		require.Equal(t, mir.SSAKind, p.Kind)
		require.True(t, p.Fixed())
	}
	require.Len(t, f.ReturnRegs, 1)
	require.Equal(t, mir.VirtualKind, f.ReturnRegs[0].Kind)
	require.True(t, f.ReturnRegs[0].Fixed())
	require.Equal(t, mir.CalleeKind, f.FramePtr.Kind)
	require.True(t, f.FramePtr.Fixed())
}

func TestRegisterPoolAddUpdatesKindAndIndex(t *testing.T) {
	m := mir.NewModule("test")
	f := m.NewFunction("f", 0, 0)
	ssaReg := f.SSARegs.New()
	require.Equal(t, 0, ssaReg.Index)

	f.VirtualRegs.Add(ssaReg)
	require.Equal(t, mir.VirtualKind, ssaReg.Kind)
	require.Equal(t, 0, ssaReg.Index)
	require.Same(t, ssaReg, f.VirtualRegs.At(0))
}

func TestUseDefBookkeeping(t *testing.T) {
	m := mir.NewModule("test")
	f := m.NewFunction("f", 0, 1)
	bb := f.NewBlock()

	lhs := f.VirtualRegs.New()
	rhs := f.VirtualRegs.New()
	dest := f.VirtualRegs.New()
	add := mir.NewArithInst(dest, mir.ArithAdd, lhs, rhs, 8)
	bb.PushBack(add)

	require.ElementsMatch(t, []mir.Instruction{add}, lhs.Uses())
	require.ElementsMatch(t, []mir.Instruction{add}, rhs.Uses())
	require.ElementsMatch(t, []mir.Instruction{add}, dest.Defs())

	repl := f.VirtualRegs.New()
	lhs.ReplaceUsesWith(repl)
	require.Empty(t, lhs.Uses())
	require.Contains(t, repl.Uses(), mir.Instruction(add))
}

func TestLiveIntervalOverlapsAndContains(t *testing.T) {
	a := mir.LiveInterval{Begin: 0, End: 4}
	b := mir.LiveInterval{Begin: 2, End: 6}
	c := mir.LiveInterval{Begin: 4, End: 8}

	require.True(t, a.Overlaps(b))
	require.False(t, a.Overlaps(c), "half-open intervals touching at an endpoint do not overlap")
	require.True(t, a.Contains(0))
	require.False(t, a.Contains(4))
}

func TestRegisterPhaseString(t *testing.T) {
	require.Equal(t, "ssa", mir.PhaseSSA.String())
	require.Equal(t, "virtual", mir.PhaseVirtual.String())
	require.Equal(t, "hardware", mir.PhaseHardware.String())
}
