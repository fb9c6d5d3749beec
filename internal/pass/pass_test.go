package pass_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"scatha/internal/ir"
	"scatha/internal/pass"
)

type countingPass struct {
	ran int
}

func (c *countingPass) Name() string        { return "counting" }
func (c *countingPass) Description() string { return "test fixture" }
func (c *countingPass) RunOnFunction(ctx *ir.Context, f *ir.Function) bool {
	c.ran++
	return c.ran == 1
}

func TestRunToFixedPoint(t *testing.T) {
	cp := &countingPass{}
	p := (&pass.Pipeline{}).Append(pass.AsModulePass(cp))
	ctx := ir.NewContext()
	m := ir.NewModule(ctx, "test")
	m.NewFunction("f", nil, ctx.VoidType())

	pass.RunToFixedPoint(p, ctx, m, 10)
	require.Equal(t, 2, cp.ran)
}

func TestParsePipelineUnknownPass(t *testing.T) {
	_, err := pass.ParsePipeline("doesnotexist")
	require.Error(t, err)
}

func TestParsePipelineResolvesRegisteredNames(t *testing.T) {
	pass.Register("noop-test-pass", pass.AsModulePass(&countingPass{}), pass.CategoryOther)
	p, err := pass.ParsePipeline("noop-test-pass, noop-test-pass")
	require.NoError(t, err)
	require.NotNil(t, p)
}
