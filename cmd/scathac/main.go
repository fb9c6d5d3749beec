// Command scathac drives the middle- and back-end pipeline of spec.md §6
// over exactly one already-parsed textual-IR (.scir) module. The
// source-language frontend is out of scope; scathac's input is the IR a
// frontend would have produced.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"scatha/internal/codegen"
	"scatha/internal/driver"
	scerrors "scatha/internal/errors"
	"scatha/internal/ffi"
	"scatha/internal/ir"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) (exitCode int) {
	fs := flag.NewFlagSet("scathac", flag.ContinueOnError)
	optLevel := fs.Int("O", 0, "optimization level (0-3), ignored if -pipeline is set")
	pipeline := fs.String("pipeline", "", "explicit pipeline DSL string, e.g. inline(sroa, mem2reg), dce")
	targetName := fs.String("target", "exe", "output kind: exe, scbin, or sclib")
	output := fs.String("o", "a.out", "output file path")
	libPaths := fs.String("L", "", "comma-separated shared library search paths for FFI resolution")
	debugInfo := fs.Bool("g", false, "emit debug symbol table in a scbin archive")
	verbose := fs.Bool("v", false, "trace each pipeline phase to stderr")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: scathac [flags] <file.scir>")
		return 1
	}
	path := fs.Arg(0)

	target, err := parseTarget(*targetName)
	if err != nil {
		color.Red("%s", err)
		return 1
	}

	// Invariant violations (internal/ir.Invariant, internal/codegen.Invariant)
	// are programming bugs, not reportable diagnostics (spec.md §7); they are
	// recovered here, once, at the top of the process, so a bug surfaces as
	// a clean failure instead of a raw stack trace.
	defer func() {
		if r := recover(); r != nil {
			if inv, ok := asInvariant(r); ok {
				color.Red("internal error: %s", inv)
				exitCode = 1
				return
			}
			panic(r)
		}
	}()

	src, err := os.ReadFile(path)
	if err != nil {
		color.Red("%s", err)
		return 1
	}

	ctx := ir.NewContext()
	module, err := ir.ParseModule(ctx, path, strings.NewReader(string(src)))
	if err != nil {
		reportIssues(path, string(src), err)
		return 1
	}

	var paths []string
	if *libPaths != "" {
		paths = strings.Split(*libPaths, ",")
	}

	inv := &driver.Invocation{
		Pipeline:  *pipeline,
		OptLevel:  *optLevel,
		Target:    target,
		LibPaths:  paths,
		DebugInfo: *debugInfo,
	}
	if *verbose {
		inv.Logger = stderrLogger{}
	}

	result, err := inv.Run(context.Background(), module)
	if err != nil {
		var unresolved *ffi.UnresolvedSymbolError
		if errors.As(err, &unresolved) {
			color.Red("%s", err)
		} else {
			color.Red("compilation failed: %s", err)
		}
		return 1
	}

	if err := writeOutput(*output, target, result, *debugInfo); err != nil {
		color.Red("%s", err)
		return 1
	}

	color.Green("wrote %s", *output)
	return 0
}

func parseTarget(name string) (driver.TargetKind, error) {
	switch name {
	case "exe":
		return driver.TargetExecutable, nil
	case "scbin":
		return driver.TargetBinaryArchive, nil
	case "sclib":
		return driver.TargetStaticLibrary, nil
	default:
		return 0, fmt.Errorf("unknown -target %q (want exe, scbin, or sclib)", name)
	}
}

func writeOutput(path string, target driver.TargetKind, result *driver.Result, debugInfo bool) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	switch target {
	case driver.TargetExecutable:
		if err := driver.WriteExecutable(f, result.Program, true); err != nil {
			return err
		}
		return os.Chmod(path, 0o755)
	case driver.TargetBinaryArchive:
		dbgsym := ""
		if debugInfo {
			dbgsym = ir.Print(result.Module)
		}
		return driver.WriteBinaryArchive(f, result.Program, dbgsym)
	case driver.TargetStaticLibrary:
		return driver.WriteStaticLibrary(f, result.Program, result.Module)
	default:
		return fmt.Errorf("unhandled target kind %v", target)
	}
}

func reportIssues(path, src string, err error) {
	issues := scerrors.FromParticiple(err)
	if len(issues) == 0 {
		color.Red("%s: %s", path, err)
		return
	}
	for i := range issues {
		issues[i].Pos.Filename = path
	}
	r := scerrors.NewReporter(path, src)
	fmt.Fprint(os.Stderr, r.FormatAll(issues))
}

type stderrLogger struct{}

func (stderrLogger) Logf(format string, args ...any) {
	color.New(color.FgHiBlack).Fprintf(os.Stderr, format+"\n", args...)
}

func asInvariant(r any) (error, bool) {
	switch v := r.(type) {
	case ir.Invariant:
		return v, true
	case codegen.Invariant:
		return v, true
	case error:
		return nil, false
	default:
		return nil, false
	}
}
