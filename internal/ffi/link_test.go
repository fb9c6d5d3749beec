package ffi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scatha/internal/ir"
)

func newModule(names ...string) *ir.Module {
	ctx := ir.NewContext()
	m := ir.NewModule(ctx, "test")
	i64 := ctx.IntType(64)
	for _, name := range names {
		m.NewForeignFunction(name, nil, i64)
	}
	return m
}

func TestLinkResolvesBuiltins(t *testing.T) {
	m := newModule("__builtin_alloc", "__builtin_print")

	addrs, err := Link(m, nil)
	require.NoError(t, err)

	assert.Equal(t, Address{Kind: BuiltinSlot, Index: 0}, addrs["__builtin_alloc"])
	assert.Equal(t, Address{Kind: BuiltinSlot, Index: 6}, addrs["__builtin_print"])
}

func TestLinkReportsUnresolved(t *testing.T) {
	m := newModule("sha256", "__builtin_alloc")

	addrs, err := Link(m, nil)

	var unresolved *UnresolvedSymbolError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, []string{"sha256"}, unresolved.Missing)
	assert.Contains(t, addrs, "__builtin_alloc")
	assert.NotContains(t, addrs, "sha256")
}

func TestLinkSkipsUnopenableLibraries(t *testing.T) {
	m := newModule("sha256")

	_, err := Link(m, []string{"/nonexistent/path.so"})

	var unresolved *UnresolvedSymbolError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, []string{"sha256"}, unresolved.Missing)
}

func TestSlotKindString(t *testing.T) {
	assert.Equal(t, "builtin", BuiltinSlot.String())
	assert.Equal(t, "library", LibrarySlot.String())
}
