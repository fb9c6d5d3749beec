package irtext

import (
	"github.com/alecthomas/participle/v2"
)

var irParser = participle.MustBuild[ModuleFile](
	participle.Lexer(IRLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.UseLookahead(4),
)

// ParseModuleFile parses the textual IR format into its AST. filename is
// used only for error positions.
func ParseModuleFile(filename, src string) (*ModuleFile, error) {
	return irParser.ParseString(filename, src)
}
