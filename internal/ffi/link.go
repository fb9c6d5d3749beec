// Package ffi resolves a module's foreign function declarations to a
// dispatchable address, grounded on lib/IRGen/FFILinker.cc. A foreign
// function is either one of the fixed set of names the runtime implements
// directly (a "builtin", by the "__builtin_" name prefix) or a symbol
// exported by one of a caller-supplied list of Go plugins, searched in
// order and bound to the first one that exports it.
package ffi

import (
	"fmt"
	"plugin"
	"strings"

	"scatha/internal/ir"
)

// SlotKind distinguishes where a linked foreign function's call address
// dispatches to.
type SlotKind int

const (
	BuiltinSlot SlotKind = iota
	LibrarySlot
)

func (k SlotKind) String() string {
	switch k {
	case BuiltinSlot:
		return "builtin"
	case LibrarySlot:
		return "library"
	default:
		return "unknown"
	}
}

// Address is where a linked foreign function's call should be dispatched.
// Library is the index into the libPaths slice Link was given and is
// meaningless for a BuiltinSlot address; Index is the slot within that
// dispatch table.
type Address struct {
	Kind    SlotKind
	Library int
	Index   int
}

// builtinNames enumerates the runtime's built-in functions in a fixed
// index order; Link assigns each its position in this list. Adding a name
// here is a linking-format change: existing indices must never be
// reordered once an emitted program depends on them.
var builtinNames = []string{
	"alloc",
	"dealloc",
	"memcpy",
	"memmove",
	"memset",
	"memcmp",
	"print",
	"exit",
	"trap",
	"sqrt",
	"pow",
	"rand",
}

func builtinIndex() map[string]int {
	m := make(map[string]int, len(builtinNames))
	for i, name := range builtinNames {
		m["__builtin_"+name] = i
	}
	return m
}

// symbolPrefix is the exported-symbol naming convention a Go plugin must
// follow for a foreign function named "name": it must export a symbol
// "SCFFI_name", mirroring FFILinker.cc's "sc_ffi_" native-symbol prefix.
const symbolPrefix = "SCFFI_"

// UnresolvedSymbolError reports every foreign function Link could not bind
// to a builtin slot or to any of the searched libraries.
type UnresolvedSymbolError struct {
	Missing []string
}

func (e *UnresolvedSymbolError) Error() string {
	return fmt.Sprintf("ffi: unresolved foreign function(s): %s", strings.Join(e.Missing, ", "))
}

// Link resolves every entry in m.ForeignFunctions to an Address, trying the
// builtin table first and then each path in libPaths in order via
// plugin.Open/plugin.Lookup. It returns the addresses it managed to resolve
// together with an *UnresolvedSymbolError naming the rest when anything is
// left over, matching linkFFIs's "resolve what you can, report the rest"
// contract rather than failing on the first miss.
func Link(m *ir.Module, libPaths []string) (map[string]Address, error) {
	addrs := make(map[string]Address, len(m.ForeignFunctions))
	index := builtinIndex()

	pending := make([]*ir.ForeignFunction, 0, len(m.ForeignFunctions))
	for _, f := range m.ForeignFunctions {
		if idx, ok := index[f.Name]; ok {
			addrs[f.Name] = Address{Kind: BuiltinSlot, Index: idx}
			continue
		}
		pending = append(pending, f)
	}

	ffIndex := 0
	for libIndex, path := range libPaths {
		if len(pending) == 0 {
			break
		}
		lib, err := plugin.Open(path)
		if err != nil {
			continue
		}
		remaining := pending[:0]
		for _, f := range pending {
			if sym, err := lib.Lookup(symbolPrefix + f.Name); err == nil && sym != nil {
				addrs[f.Name] = Address{Kind: LibrarySlot, Library: libIndex, Index: ffIndex}
				ffIndex++
				continue
			}
			remaining = append(remaining, f)
		}
		pending = remaining
	}

	if len(pending) > 0 {
		missing := make([]string, len(pending))
		for i, f := range pending {
			missing[i] = f.Name
		}
		return addrs, &UnresolvedSymbolError{Missing: missing}
	}
	return addrs, nil
}
