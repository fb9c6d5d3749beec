// Package mir implements the machine IR: the lower-level, mostly
// two-address representation that mirrors the target VM's instruction set
// (spec.md §3 "MIR Module / Function"). A mir.Function owns four register
// pools (SSA, virtual, callee, hardware) and moves through three register
// phases as instruction selection, SSA destruction and register allocation
// run in sequence.
package mir

// RegKind identifies which of a function's four register pools a Register
// belongs to.
type RegKind int

const (
	SSAKind RegKind = iota
	VirtualKind
	CalleeKind
	HardwareKind
)

func (k RegKind) String() string {
	switch k {
	case SSAKind:
		return "ssa"
	case VirtualKind:
		return "vreg"
	case CalleeKind:
		return "callee"
	case HardwareKind:
		return "hw"
	default:
		return "reg"
	}
}

// RegisterPhase gates which operations are legal on a function (spec.md §3
// "Register phase"). Transitions are monotonic: SSA -> Virtual -> Hardware.
type RegisterPhase int

const (
	PhaseSSA RegisterPhase = iota
	PhaseVirtual
	PhaseHardware
)

func (p RegisterPhase) String() string {
	switch p {
	case PhaseSSA:
		return "ssa"
	case PhaseVirtual:
		return "virtual"
	case PhaseHardware:
		return "hardware"
	default:
		return "unknown"
	}
}

// Register is one storage location in one of a function's register pools.
// Identity is pointer identity. A register that is "fixed" has a position
// with ABI meaning (argument, return value, or a hardware color pinned by
// interference with a fixed node) and may not be renamed by allocation.
type Register struct {
	Kind  RegKind
	Index int

	pool      *RegisterPool
	fixed     bool
	uses      map[Instruction]int
	defs      map[Instruction]struct{}
	liveRange []LiveInterval
}

func newRegister(kind RegKind) *Register {
	return &Register{Kind: kind, uses: map[Instruction]int{}, defs: map[Instruction]struct{}{}}
}

func (r *Register) isValue() {}

// Fixed reports whether this register's index carries ABI meaning.
func (r *Register) Fixed() bool { return r.fixed }

// SetFixed marks or unmarks this register as fixed.
func (r *Register) SetFixed(v bool) { r.fixed = v }

// Next returns the register immediately following this one in the same
// pool, or nil at the end of the pool. Multi-word values (wider than 8
// bytes) occupy consecutive registers within one pool; resolvers and
// copy-generation walk this chain one word at a time.
func (r *Register) Next() *Register {
	if r.pool == nil {
		return nil
	}
	return r.pool.At(r.Index + 1)
}

// Uses returns the instructions that read this register as an operand.
func (r *Register) Uses() []Instruction {
	out := make([]Instruction, 0, len(r.uses))
	for i := range r.uses {
		out = append(out, i)
	}
	return out
}

// Defs returns the instructions that write this register.
func (r *Register) Defs() []Instruction {
	out := make([]Instruction, 0, len(r.defs))
	for i := range r.defs {
		out = append(out, i)
	}
	return out
}

func (r *Register) addUse(i Instruction)    { r.uses[i]++ }
func (r *Register) removeUse(i Instruction) {
	if n := r.uses[i]; n <= 1 {
		delete(r.uses, i)
	} else {
		r.uses[i] = n - 1
	}
}
func (r *Register) addDef(i Instruction)    { r.defs[i] = struct{}{} }
func (r *Register) removeDef(i Instruction) { delete(r.defs, i) }

// ReplaceUsesWith rewrites every instruction currently reading r to read
// repl instead.
func (r *Register) ReplaceUsesWith(repl *Register) {
	for _, inst := range r.Uses() {
		inst.ReplaceOperand(r, repl)
	}
}

// ReplaceDefsWith rewrites every instruction currently defining r to define
// repl instead, preserving each def's NumDests/offset shape.
func (r *Register) ReplaceDefsWith(repl *Register) {
	for _, inst := range r.Defs() {
		replaceDestRegister(inst, r, repl)
	}
}

// ReplaceWith replaces both uses and defs of r with repl.
func (r *Register) ReplaceWith(repl *Register) {
	r.ReplaceUsesWith(repl)
	r.ReplaceDefsWith(repl)
}

// LiveRange returns the sorted list of intervals where this register is
// live, populated by internal/codegen's ComputeLiveIntervals.
func (r *Register) LiveRange() []LiveInterval { return r.liveRange }

// SetLiveRange replaces the live range wholesale.
func (r *Register) SetLiveRange(lr []LiveInterval) { r.liveRange = lr }

// LiveInterval is a half-open program-point range [Begin, End) during which
// a register must be preserved. Two intervals interfere iff they overlap.
type LiveInterval struct {
	Begin, End int
}

// Overlaps reports whether a and b share any program point.
func (a LiveInterval) Overlaps(b LiveInterval) bool {
	return a.Begin < b.End && b.Begin < a.End
}

// Contains reports whether programPoint falls within this interval.
func (a LiveInterval) Contains(programPoint int) bool {
	return programPoint >= a.Begin && programPoint < a.End
}

// RegisterPool owns one kind of register for one function, in allocation
// order; Index is the register's position within its own pool.
type RegisterPool struct {
	kind RegKind
	regs []*Register
}

func newRegisterPool(kind RegKind) *RegisterPool {
	return &RegisterPool{kind: kind}
}

// New allocates and appends a fresh register to the pool.
func (p *RegisterPool) New() *Register {
	r := newRegister(p.kind)
	p.Add(r)
	return r
}

// Add appends an existing register to the pool, taking ownership of its
// index and switching its Kind to the pool's kind. New uses it for every
// fresh register.
func (p *RegisterPool) Add(r *Register) {
	r.pool = p
	r.Kind = p.kind
	r.Index = len(p.regs)
	p.regs = append(p.regs, r)
}

// At returns the register at index i, or nil if out of range.
func (p *RegisterPool) At(i int) *Register {
	if i < 0 || i >= len(p.regs) {
		return nil
	}
	return p.regs[i]
}

// Len returns the number of registers in the pool.
func (p *RegisterPool) Len() int { return len(p.regs) }

// All returns every register in the pool, in index order.
func (p *RegisterPool) All() []*Register { return p.regs }
