// Package errors provides structured, caret-annotated diagnostics for the
// IR textual format's parser and for the linker/FFI stages, adapted from
// the teacher's internal/errors package (spec.md §7: "Parsing (IR text)"
// and "Linker unresolved symbols" / "FFI resolution"). Unlike the teacher's
// package, positions are plain Line/Column pairs rather than ast.Position,
// since the frontend's AST is out of scope here.
package errors

// Error code ranges, mirroring the teacher's scheme but re-purposed for the
// IR core: E1xxx is lexical/syntactic IR-text errors, E2xxx is semantic
// IR-text errors (the "Issues cover lexical, syntactic, and semantic
// (e.g., redeclaration) errors" contract of spec.md §7), E3xxx is linker
// errors, E4xxx is FFI resolution errors.
const (
	// E1001: malformed token or unexpected input during lexing/parsing.
	ErrorSyntax = "E1001"

	// E2001: a symbol is used before any declaration defines it.
	ErrorUndeclaredSymbol = "E2001"

	// E2002: a name is declared more than once at the same scope.
	ErrorRedeclaration = "E2002"

	// E2003: an operand's type disagrees with the type its IR instruction
	// declares for that slot.
	ErrorTypeMismatch = "E2003"

	// E2004: a branch, goto, or phi pair names a block that does not
	// exist in the enclosing function.
	ErrorUnknownBlock = "E2004"

	// E3001: the linker could not resolve one or more call targets.
	ErrorUnresolvedSymbol = "E3001"

	// E4001: FFI resolution could not bind a foreign function to either
	// the builtin table or any searched library.
	ErrorUnresolvedForeign = "E4001"
)
