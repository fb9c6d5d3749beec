package mir_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"scatha/internal/mir"
)

func TestPrintIncludesBlockLabelsAndPredecessors(t *testing.T) {
	m := mir.NewModule("test")
	f := m.NewFunction("f", 1, 0)
	entry := f.NewBlock()
	exit := f.NewBlock()

	dest := f.VirtualRegs.New()
	entry.PushBack(mir.NewCopyInst(dest, f.Params[0], 8))
	entry.PushBack(mir.NewJumpInst(exit))
	exit.Preds = append(exit.Preds, entry)
	exit.PushBack(mir.NewReturnInst(nil))

	out := mir.Print(m)
	require.Contains(t, out, "func f (ssa)")
	require.Contains(t, out, entry.Label+":")
	require.Contains(t, out, "preds = "+entry.Label)
}
