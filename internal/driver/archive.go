package driver

import (
	"archive/tar"
	"fmt"
	"io"
	"sort"

	"scatha/internal/codegen"
	"scatha/internal/ir"
)

// shellHeader is the short shell fragment an executable is optionally
// prefixed with so it can be `chmod +x`'d and run directly, re-invoking
// the VM on its own remaining bytes (spec.md §6 "Emitted files:
// Executable"). The VM itself is external; this repo only needs the
// fragment to be stable text a real VM distribution would recognize.
const shellHeader = "#!/usr/bin/env scatha-vm\n"

// WriteExecutable writes the VM byte stream, prefixed by shellHeader when
// withShellHeader is true. Callers are responsible for setting the file's
// executable mode bit, matching spec.md §6's "file-mode bit set
// executable" note (a detail of the filesystem, not of the byte stream
// itself).
func WriteExecutable(w io.Writer, prog *codegen.Program, withShellHeader bool) error {
	if withShellHeader {
		if _, err := io.WriteString(w, shellHeader); err != nil {
			return err
		}
	}
	_, err := w.Write(prog.Code)
	return err
}

// symbolTable renders prog's resolved symbols and any remaining unresolved
// references as the "sym.txt" entry both archive formats carry, one
// "name offset" or "name UNRESOLVED" line per entry, sorted by name for a
// deterministic archive.
func symbolTable(prog *codegen.Program) string {
	names := make([]string, 0, len(prog.Symbols)+len(prog.Unresolved))
	for name := range prog.Symbols {
		names = append(names, name)
	}
	sort.Strings(names)
	var out string
	for _, name := range names {
		out += fmt.Sprintf("%s %d\n", name, prog.Symbols[name])
	}
	for _, ref := range prog.Unresolved {
		out += fmt.Sprintf("%s UNRESOLVED@%d\n", ref.Symbol, ref.Offset)
	}
	return out
}

// WriteBinaryArchive writes a .scbin archive: "executable", "sym.txt", and
// (when dbgsym is non-empty) "dbgsym.txt" (spec.md §6 "Binary archive").
func WriteBinaryArchive(w io.Writer, prog *codegen.Program, dbgsym string) error {
	tw := tar.NewWriter(w)
	if err := writeTarEntry(tw, "executable", prog.Code); err != nil {
		return err
	}
	if err := writeTarEntry(tw, "sym.txt", []byte(symbolTable(prog))); err != nil {
		return err
	}
	if dbgsym != "" {
		if err := writeTarEntry(tw, "dbgsym.txt", []byte(dbgsym)); err != nil {
			return err
		}
	}
	return tw.Close()
}

// WriteStaticLibrary writes a .sclib archive: "sym.txt" (the serialized
// symbol table) and "code.scir" (the module's textual IR), so a later
// compilation can link against it without needing the original IR file
// path (spec.md §6 "Static library").
func WriteStaticLibrary(w io.Writer, prog *codegen.Program, m *ir.Module) error {
	tw := tar.NewWriter(w)
	if err := writeTarEntry(tw, "sym.txt", []byte(symbolTable(prog))); err != nil {
		return err
	}
	if err := writeTarEntry(tw, "code.scir", []byte(ir.Print(m))); err != nil {
		return err
	}
	return tw.Close()
}

func writeTarEntry(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{Name: name, Size: int64(len(data)), Mode: 0o644}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}
