package irtext_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"scatha/internal/irtext"
)

const sampleModule = `module m
type @Point = { i32, i32 }
global @counter i32
declare @memcpy(ptr, ptr, i64) -> void
function @f(%x i32) -> i32 {
entry:
  %y = add i32 %x, 1
  return %y
}
`

func TestParseModuleFileBuildsExpectedShape(t *testing.T) {
	mf, err := irtext.ParseModuleFile("sample.ir", sampleModule)
	require.NoError(t, err)
	require.Equal(t, "m", mf.Name)
	require.Len(t, mf.Decls, 4)

	require.NotNil(t, mf.Decls[0].Struct)
	require.Equal(t, "@Point", mf.Decls[0].Struct.Name)
	require.Len(t, mf.Decls[0].Struct.Members, 2)

	require.NotNil(t, mf.Decls[1].Global)
	require.Equal(t, "@counter", mf.Decls[1].Global.Name)

	require.NotNil(t, mf.Decls[2].Declare)
	require.Equal(t, "@memcpy", mf.Decls[2].Declare.Name)
	require.Len(t, mf.Decls[2].Declare.Params, 3)

	require.NotNil(t, mf.Decls[3].Function)
	fn := mf.Decls[3].Function
	require.Equal(t, "@f", fn.Name)
	require.Len(t, fn.Params, 1)
	require.Len(t, fn.Blocks, 1)
	require.Equal(t, "entry", fn.Blocks[0].Label)
	require.Len(t, fn.Blocks[0].Insts, 2)
}

func TestParseModuleFileRejectsMalformedSource(t *testing.T) {
	_, err := irtext.ParseModuleFile("bad.ir", "module\n")
	require.Error(t, err)
}
