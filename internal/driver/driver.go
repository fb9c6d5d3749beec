// Package driver implements the compiler invocation surface of spec.md §6
// ("Compiler invocation CLI") and §5 ("Cancellation"): it sequences the
// IR-text parse, optimization pipeline, IR→MIR lowering, SSA destruction,
// register allocation and assembly-emission phases, checking a
// context.Context for cooperative cancellation between phases only, never
// mid-phase, since the whole pipeline is single-threaded (spec.md §5).
package driver

import (
	"context"
	"fmt"

	"scatha/internal/codegen"
	"scatha/internal/ffi"
	"scatha/internal/ir"
	"scatha/internal/mir"
	_ "scatha/internal/opt" // registers the passes defaultPipelines names
	"scatha/internal/pass"
)

// Logger is the optional phase-tracing sink, wired by cmd/scathac to
// colour-tinted stderr output (SPEC_FULL.md "Supplemented features:
// Logging"), mirroring the verbose tracing gate in the original
// implementation's lib/Common/Logging.cc.
type Logger interface {
	Logf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Logf(string, ...any) {}

// TargetKind selects which of the three emitted-file shapes spec.md §6
// describes Run should produce.
type TargetKind int

const (
	TargetExecutable TargetKind = iota
	TargetBinaryArchive
	TargetStaticLibrary
)

// Invocation holds every input spec.md §6's thin CLI surface accepts.
type Invocation struct {
	// Pipeline is the pass-pipeline DSL string (spec.md §6 "Pipeline
	// DSL"); if empty, OptLevel selects a canned pipeline instead.
	Pipeline string
	// OptLevel selects a canned pipeline (0-3) when Pipeline is empty.
	OptLevel int
	// Target selects the emitted-file shape.
	Target TargetKind
	// LibPaths are the shared-library search paths FFI resolution
	// consults after the builtin table (spec.md §7 "FFI resolution").
	LibPaths []string
	// DebugInfo requests a "dbgsym.txt" entry in a binary archive.
	DebugInfo bool
	// Logger receives phase-by-phase tracing; defaults to a no-op sink.
	Logger Logger
}

// Result carries everything Run produced, ready for one of the Write*
// functions to serialize per spec.md §6 "Emitted files".
type Result struct {
	Module       *ir.Module
	MIR          *mir.Module
	Program      *codegen.Program
	FFIAddresses map[string]ffi.Address
}

// defaultPipelines mirrors -O0 through -O3: -O0 runs nothing, -O1 runs the
// simplification passes to a fixed point, -O2 adds GVN and loop rotation,
// -O3 adds inlining.
var defaultPipelines = map[int]string{
	0: "",
	1: "canonicalize, mem2reg, sroa, instcombine, dce",
	2: "canonicalize, mem2reg, sroa, instcombine, gvn, looprotate, dce",
	3: "inline(canonicalize, mem2reg, sroa, instcombine, gvn, looprotate, dce), tailcallmark",
}

// Run sequences IR-gen's output (already-parsed Module, since the source
// frontend is out of scope, spec.md §1) through optimization, lowering,
// SSA destruction, register allocation and assembly emission. ctx is
// checked for cancellation only between phases (spec.md §5
// "Cancellation": "checked between phases; no phase is cancelled
// mid-execution").
func (inv *Invocation) Run(ctx context.Context, m *ir.Module) (*Result, error) {
	log := inv.Logger
	if log == nil {
		log = nopLogger{}
	}
	ti := codegen.DefaultTargetInfo()

	if err := checkCancel(ctx); err != nil {
		return nil, err
	}
	pipelineSrc := inv.Pipeline
	if pipelineSrc == "" {
		pipelineSrc = defaultPipelines[inv.OptLevel]
	}
	if pipelineSrc != "" {
		log.Logf("optimize: running pipeline %q", pipelineSrc)
		p, err := pass.ParsePipeline(pipelineSrc)
		if err != nil {
			return nil, fmt.Errorf("driver: invalid pipeline: %w", err)
		}
		pass.RunToFixedPoint(p, m.Ctx, m, maxPipelineIterations)
	}

	if err := checkCancel(ctx); err != nil {
		return nil, err
	}
	log.Logf("lower: resolving %d function(s) to MIR", len(m.Functions))
	mm := codegen.Resolve(m, ti)

	if err := checkCancel(ctx); err != nil {
		return nil, err
	}
	for _, f := range mm.Functions {
		log.Logf("codegen: destroying SSA in @%s", f.Name)
		codegen.DestroySSA(f, ti)
		log.Logf("codegen: allocating registers in @%s", f.Name)
		codegen.RegAlloc(f, ti)
	}

	if err := checkCancel(ctx); err != nil {
		return nil, err
	}
	log.Logf("emit: assembling module %q", mm.Name)
	prog, err := codegen.Emit(mm)
	if err != nil {
		return nil, fmt.Errorf("driver: assembly emission: %w", err)
	}

	if err := checkCancel(ctx); err != nil {
		return nil, err
	}
	var ffiErr error
	var addrs map[string]ffi.Address
	if len(m.ForeignFunctions) > 0 {
		log.Logf("link: resolving %d foreign function(s)", len(m.ForeignFunctions))
		addrs, ffiErr = ffi.Link(m, inv.LibPaths)
	}

	return &Result{Module: m, MIR: mm, Program: prog, FFIAddresses: addrs}, ffiErr
}

// maxPipelineIterations bounds RunToFixedPoint's outer loop; the pass
// manager's own fixed-point termination (spec.md §4.4 "a pass that
// reports no change after another pass reported no change terminates any
// outer fixed-point loop") ends it sooner in practice.
const maxPipelineIterations = 64

func checkCancel(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
