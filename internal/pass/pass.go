// Package pass implements the pass manager: the FunctionPass/ModulePass
// interfaces, a global name registry, and a pipeline DSL parser, generalizing
// the teacher's OptimizationPass/OptimizationPipeline pair
// (internal/ir/optimizations.go) from one fixed pass list to a named,
// user-composable pipeline.
package pass

import "scatha/internal/ir"

// Category tags a registered pass the way the teacher's pipeline groups
// ConstantFolding/DeadCodeElimination/CommonSubexpressionElimination.
type Category string

const (
	CategorySimplification Category = "simplification"
	CategoryOptimization   Category = "optimization"
	CategoryAnalysis       Category = "analysis"
	CategoryOther          Category = "other"
)

// FunctionPass operates on one IR function and reports whether it changed
// anything, mirroring OptimizationPass.Apply but scoped to a single function.
type FunctionPass interface {
	Name() string
	Description() string
	RunOnFunction(ctx *ir.Context, f *ir.Function) bool
}

// ModulePass operates on a whole module; most implementations simply
// dispatch a FunctionPass over every function (see functionPassAdapter).
type ModulePass interface {
	Name() string
	Description() string
	RunOnModule(ctx *ir.Context, m *ir.Module) bool
}

// functionPassAdapter lifts a FunctionPass to a ModulePass by running it over
// every function in the module, exactly the way the teacher's passes loop
// `for _, fn := range program.Functions`.
type functionPassAdapter struct {
	FunctionPass
}

func (a functionPassAdapter) RunOnModule(ctx *ir.Context, m *ir.Module) bool {
	changed := false
	for _, f := range m.Functions {
		if a.RunOnFunction(ctx, f) {
			changed = true
		}
	}
	return changed
}

// AsModulePass adapts a FunctionPass for use wherever a ModulePass is needed.
func AsModulePass(fp FunctionPass) ModulePass {
	return functionPassAdapter{fp}
}

type registryEntry struct {
	pass     ModulePass
	category Category
}

var registry = map[string]registryEntry{}

// Register adds a named pass to the global, process-wide registry. Intended
// to be called once per pass at package init time (spec.md §9: "a rewrite
// should initialize it once at startup ... and keep it immutable
// thereafter").
func Register(name string, p ModulePass, cat Category) {
	registry[name] = registryEntry{pass: p, category: cat}
}

// Lookup returns the registered pass for name, or ok=false if unknown.
func Lookup(name string) (ModulePass, Category, bool) {
	e, ok := registry[name]
	return e.pass, e.category, ok
}

// Pipeline is a sequential composition of module passes, built either by
// hand (Append) or by parsing the pipeline DSL (ParsePipeline).
type Pipeline struct {
	steps []ModulePass
}

// Append adds a pass to the end of the pipeline and returns p for chaining.
func (p *Pipeline) Append(step ModulePass) *Pipeline {
	p.steps = append(p.steps, step)
	return p
}

// Run executes every step in order. It returns true if any step reported a
// change. Per spec.md §4.4, a pass seeing no change from the previous pass
// does not itself stop the pipeline — fixed-point iteration is the caller's
// responsibility (see RunToFixedPoint).
func (p *Pipeline) Run(ctx *ir.Context, m *ir.Module) bool {
	changed := false
	for _, step := range p.steps {
		if step.RunOnModule(ctx, m) {
			changed = true
		}
	}
	return changed
}

// RunToFixedPoint repeatedly runs the pipeline until a full pass over every
// step reports no change, or maxIters is reached (0 means unlimited).
func RunToFixedPoint(p *Pipeline, ctx *ir.Context, m *ir.Module, maxIters int) {
	for iter := 0; maxIters == 0 || iter < maxIters; iter++ {
		if !p.Run(ctx, m) {
			return
		}
	}
}
