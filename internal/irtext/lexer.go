// Package irtext implements the textual format for the IR: a
// participle-based lexer and grammar that parses the output of
// ir.Print back into an AST, mirroring the way the teacher's grammar
// package parses Kanso source with participle.
package irtext

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// IRLexer tokenizes the textual IR format. Rule order matters: Reg and At
// must be tried before Ident/Punctuation so "%3"/"@foo" lex as single
// tokens, the same way the teacher orders Integer before Operator.
var IRLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `;[^\n]*`},
	{Name: "Reg", Pattern: `%[a-zA-Z_][a-zA-Z0-9_]*|%[0-9]+`},
	{Name: "At", Pattern: `@[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Float", Pattern: `f0x[0-9a-fA-F]+`},
	{Name: "Int", Pattern: `0x[0-9a-fA-F]+|[0-9]+`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Arrow", Pattern: `->`},
	{Name: "Punct", Pattern: `[{}\[\]()=,:;]`},
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
})
