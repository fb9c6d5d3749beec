package mir

import "strings"

// Print renders m in a debug-only textual form. Unlike internal/ir's
// Print/ParseModule pair, this format is not required to round-trip
// (spec.md §8 "IR to MIR to IR is not required to round-trip") — it exists
// only to make failures readable in test output.
func Print(m *Module) string {
	var sb strings.Builder
	for fi, f := range m.Functions {
		if fi > 0 {
			sb.WriteString("\n")
		}
		printFunction(&sb, f)
	}
	return sb.String()
}

func printFunction(sb *strings.Builder, f *Function) {
	sb.WriteString("func " + f.Name + " (")
	sb.WriteString(f.Phase.String())
	sb.WriteString(") {\n")
	for _, bb := range f.Blocks {
		sb.WriteString(bb.Label + ":")
		if len(bb.Preds) > 0 {
			sb.WriteString("  ; preds =")
			for _, p := range bb.Preds {
				sb.WriteString(" " + p.Label)
			}
		}
		sb.WriteString("\n")
		for _, inst := range bb.Insts {
			sb.WriteString("  " + inst.String() + "\n")
		}
	}
	sb.WriteString("}\n")
}
