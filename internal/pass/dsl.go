package pass

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// pipelineLexer tokenizes the pipeline DSL of spec.md §6:
// "canonicalize, sroa, mem2reg" or "inline(sroa, mem2reg)".
var pipelineLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_-]*`},
	{Name: "Punct", Pattern: `[(),]`},
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
})

// stepAST is one entry of a comma-separated pipeline list: a pass name with
// an optional parenthesized sub-pipeline, e.g. inline(sroa, mem2reg).
type stepAST struct {
	Name string     `@Ident`
	Args *pipelineAST `( "(" @@ ")" )?`
}

// pipelineAST is the comma-separated list grammar shared by the top level
// and any parenthesized sub-pipeline argument.
type pipelineAST struct {
	Steps []*stepAST `@@ ( "," @@ )*`
}

var pipelineParser = participle.MustBuild[pipelineAST](
	participle.Lexer(pipelineLexer),
	participle.Elide("Whitespace"),
)

// InlineCapable is implemented by passes (like Inline) that take a
// sub-pipeline argument, e.g. "inline(sroa, mem2reg)" runs the inliner with
// the parenthesized pipeline as its inlining-cleanup sub-pipeline.
type InlineCapable interface {
	ModulePass
	WithSubPipeline(sub *Pipeline) ModulePass
}

// ParsePipeline parses the pipeline DSL into an executable Pipeline,
// resolving every step name against the global registry.
func ParsePipeline(src string) (*Pipeline, error) {
	ast, err := pipelineParser.ParseString("", src)
	if err != nil {
		return nil, fmt.Errorf("pass: invalid pipeline %q: %w", src, err)
	}
	return buildPipeline(ast)
}

func buildPipeline(ast *pipelineAST) (*Pipeline, error) {
	p := &Pipeline{}
	for _, step := range ast.Steps {
		base, _, ok := Lookup(step.Name)
		if !ok {
			return nil, fmt.Errorf("pass: unknown pass %q", step.Name)
		}
		if step.Args == nil {
			p.Append(base)
			continue
		}
		sub, err := buildPipeline(step.Args)
		if err != nil {
			return nil, err
		}
		ic, ok := base.(InlineCapable)
		if !ok {
			return nil, fmt.Errorf("pass: %q does not accept a sub-pipeline argument", step.Name)
		}
		p.Append(ic.WithSubPipeline(sub))
	}
	return p, nil
}

// pipelineASTString renders a parsed pipeline back to DSL text.
func pipelineASTString(ast *pipelineAST) string {
	parts := make([]string, len(ast.Steps))
	for i, s := range ast.Steps {
		if s.Args == nil {
			parts[i] = s.Name
			continue
		}
		parts[i] = s.Name + "(" + pipelineASTString(s.Args) + ")"
	}
	return strings.Join(parts, ", ")
}
