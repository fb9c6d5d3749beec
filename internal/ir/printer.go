package ir

import (
	"fmt"
	"sort"
	"strings"
)

// Printer renders a Module to the textual IR format that Parse reads back.
// The shape (indent tracking into a strings.Builder, writeLine helper)
// follows the teacher's printer.go.
type Printer struct {
	indent int
	output strings.Builder
}

// NewPrinter creates a new IR printer.
func NewPrinter() *Printer {
	return &Printer{}
}

// Print returns the textual representation of an IR module.
func Print(m *Module) string {
	p := NewPrinter()
	p.printModule(m)
	return p.output.String()
}

func (p *Printer) writeIndent() {
	for i := 0; i < p.indent; i++ {
		p.output.WriteString("  ")
	}
}

func (p *Printer) writeLine(format string, args ...interface{}) {
	p.writeIndent()
	p.output.WriteString(fmt.Sprintf(format, args...))
	p.output.WriteString("\n")
}

func (p *Printer) printModule(m *Module) {
	p.writeLine("module %s", m.Name)
	p.writeLine("")

	p.printStructs(m.Ctx)

	for _, g := range m.Globals {
		kind := "global"
		if g.Constant {
			kind = "const"
		}
		if g.Initializer != nil {
			p.writeLine("%s @%s %s = %s", kind, g.Name, g.Ty.String(), valStr(g.Initializer))
		} else {
			p.writeLine("%s @%s %s", kind, g.Name, g.Ty.String())
		}
	}
	if len(m.Globals) > 0 {
		p.writeLine("")
	}

	for _, f := range m.ForeignFunctions {
		p.writeLine("declare @%s(%s) -> %s", f.Name, typeList(f.ParamTypes), f.RetType.String())
	}
	if len(m.ForeignFunctions) > 0 {
		p.writeLine("")
	}

	for _, f := range m.Functions {
		p.printFunction(f)
		p.writeLine("")
	}
}

// printStructs emits a "type @Name = { ... }" declaration for every named
// struct type interned in ctx, sorted by name for deterministic output. Named
// structs live in the Context rather than the Module, so Parse must be able
// to reconstruct them purely from these lines.
func (p *Printer) printStructs(ctx *Context) {
	if len(ctx.named) == 0 {
		return
	}
	names := make([]string, 0, len(ctx.named))
	for name := range ctx.named {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		st := ctx.named[name]
		parts := make([]string, len(st.Members))
		for i, m := range st.Members {
			parts[i] = m.Type.String()
		}
		p.writeLine("type @%s = { %s }", name, strings.Join(parts, ", "))
	}
	p.writeLine("")
}

func typeList(ts []Type) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

func (p *Printer) printFunction(f *Function) {
	params := make([]string, len(f.Params))
	for i, param := range f.Params {
		attrs := ""
		if param.ByVal != nil {
			attrs = fmt.Sprintf(" byval(%s)", param.ByVal.String())
		}
		if param.ValRet != nil {
			attrs = fmt.Sprintf(" valret(%s)", param.ValRet.String())
		}
		params[i] = fmt.Sprintf("%%%s %s%s", param.Name, param.Ty.String(), attrs)
	}
	if len(f.Blocks) == 0 {
		p.writeLine("declare @%s(%s) -> %s", f.Name, strings.Join(params, ", "), f.RetType.String())
		return
	}
	p.writeLine("function @%s(%s) -> %s {", f.Name, strings.Join(params, ", "), f.RetType.String())
	p.indent++
	for _, bb := range f.Blocks {
		p.printBlock(bb)
	}
	p.indent--
	p.writeLine("}")
}

func (p *Printer) printBlock(bb *BasicBlock) {
	preds := make([]string, len(bb.Preds))
	for i, pr := range bb.Preds {
		preds[i] = pr.Label
	}
	p.writeLine("%s: ; preds = %s", bb.Label, strings.Join(preds, ", "))
	p.indent++
	for _, inst := range bb.Insts {
		p.writeLine("%s", inst.String())
	}
	p.indent--
}
