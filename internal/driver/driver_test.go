package driver_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"scatha/internal/driver"
	"scatha/internal/ir"
)

// buildAdd builds a single-block function computing x+1, enough to drive
// the full pipeline without needing control flow.
func buildAdd(ctx *ir.Context) *ir.Module {
	m := ir.NewModule(ctx, "test")
	i32 := ctx.IntType(32)
	f := m.NewFunction("add_one", []*ir.Parameter{{Name: "x", Ty: i32}}, i32)
	entry := f.NewBlock("entry")
	b := ir.NewBuilder(ctx, f, entry)
	sum := b.Binary(ir.OpAdd, f.Params[0], ctx.IntConstant(1, 32), i32)
	b.Return(sum)
	return m
}

func TestRunProducesExecutableProgram(t *testing.T) {
	ctx := ir.NewContext()
	m := buildAdd(ctx)

	inv := &driver.Invocation{OptLevel: 1, Target: driver.TargetExecutable}
	result, err := inv.Run(context.Background(), m)
	require.NoError(t, err)
	require.NotNil(t, result.Program)
	require.Contains(t, result.Program.Symbols, "add_one")
}

func TestRunTracesPhasesToLogger(t *testing.T) {
	ctx := ir.NewContext()
	m := buildAdd(ctx)

	var lines []string
	inv := &driver.Invocation{
		Pipeline: "canonicalize, dce",
		Logger:   loggerFunc(func(format string, args ...any) { lines = append(lines, format) }),
	}
	_, err := inv.Run(context.Background(), m)
	require.NoError(t, err)
	require.NotEmpty(t, lines)
}

func TestRunHonorsCancellationBetweenPhases(t *testing.T) {
	ctx := ir.NewContext()
	m := buildAdd(ctx)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	inv := &driver.Invocation{OptLevel: 0, Target: driver.TargetExecutable}
	_, err := inv.Run(cancelled, m)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunRejectsInvalidPipeline(t *testing.T) {
	ctx := ir.NewContext()
	m := buildAdd(ctx)

	inv := &driver.Invocation{Pipeline: "not_a_real_pass"}
	_, err := inv.Run(context.Background(), m)
	require.Error(t, err)
}

type loggerFunc func(format string, args ...any)

func (f loggerFunc) Logf(format string, args ...any) { f(format, args...) }
