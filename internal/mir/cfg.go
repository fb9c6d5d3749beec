package mir

// Module is the MIR counterpart of internal/ir.Module: one unit of
// lowered functions, produced by
// internal/codegen.Resolver from an ir.Module (spec.md §3 "MIR Module").
type Module struct {
	Name      string
	Functions []*Function
}

// NewModule creates an empty MIR module.
func NewModule(name string) *Module {
	return &Module{Name: name}
}

// NewFunction creates and appends a fresh function, with its four register
// pools ready and its register phase set to SSA.
func (m *Module) NewFunction(name string, numParams, numReturnValues int) *Function {
	f := &Function{
		Name:            name,
		Module:          m,
		Phase:           PhaseSSA,
		NumReturnValues: numReturnValues,
		SSARegs:         newRegisterPool(SSAKind),
		VirtualRegs:     newRegisterPool(VirtualKind),
		CalleeRegs:      newRegisterPool(CalleeKind),
		HardwareRegs:    newRegisterPool(HardwareKind),
	}
	f.Params = make([]*Register, numParams)
	for i := range f.Params {
		r := f.SSARegs.New()
		r.SetFixed(true)
		f.Params[i] = r
	}
	f.FramePtr = f.CalleeRegs.New()
	f.FramePtr.SetFixed(true)
	f.ReturnRegs = make([]*Register, numReturnValues)
	for i := range f.ReturnRegs {
		r := f.VirtualRegs.New()
		r.SetFixed(true)
		f.ReturnRegs[i] = r
	}
	m.Functions = append(m.Functions, f)
	return f
}

// Function is one lowered function: a CFG of MIR basic blocks plus the
// four register pools that back it (spec.md §3 "Register phase").
// RegAlloc only ever targets HardwareRegs; until then virtual/callee
// registers stand in for the eventual physical locations.
type Function struct {
	Name            string
	Module          *Module
	Phase           RegisterPhase
	Params          []*Register
	NumReturnValues int
	// FramePtr is the fixed callee register every AllocaInst address is
	// computed relative to; it is materialized by the prologue the
	// assembly emitter generates, never assigned by ordinary instructions.
	FramePtr *Register
	// FrameSize is the number of bytes the resolver has reserved for
	// local storage below FramePtr.
	FrameSize int
	// ReturnRegs are the fixed virtual registers destroy(ReturnInst)
	// copies this function's return operands into before it jumps to its
	// epilogue (spec.md §4.7 step 3).
	ReturnRegs []*Register

	Blocks []*BasicBlock

	SSARegs      *RegisterPool
	VirtualRegs  *RegisterPool
	CalleeRegs   *RegisterPool
	HardwareRegs *RegisterPool

	nextLabel int
}

// Entry returns the function's entry block, or nil if it has none yet.
func (f *Function) Entry() *BasicBlock {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

func (f *Function) blockLabel() string {
	n := f.nextLabel
	f.nextLabel++
	return "bb" + itoa(n)
}

// NewBlock creates, appends and returns a fresh basic block.
func (f *Function) NewBlock() *BasicBlock {
	bb := &BasicBlock{Label: f.blockLabel(), Parent: f}
	f.Blocks = append(f.Blocks, bb)
	return bb
}

// AssignProgramPoints linearizes every instruction across the function's
// block list in order, giving each a unique, increasing Index used by
// internal/codegen's live-interval computation (two slots per instruction
// leave room to distinguish a register's def point from its use point, as
// the original CondCopyInst special-casing in computeLiveInterval needs).
func (f *Function) AssignProgramPoints() {
	point := 0
	for _, bb := range f.Blocks {
		for _, inst := range bb.Insts {
			inst.setIndex(point)
			point += 2
		}
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

// BasicBlock is an MIR basic block: a straight-line instruction list ending
// in exactly one terminator, once destroySSA and instruction selection have
// both finished.
type BasicBlock struct {
	Label  string
	Parent *Function
	Insts  []Instruction
	Preds  []*BasicBlock
}

// Terminator returns the block's terminating instruction, or nil if the
// block is still incomplete.
func (b *BasicBlock) Terminator() Instruction {
	if len(b.Insts) == 0 {
		return nil
	}
	if last := b.Insts[len(b.Insts)-1]; last.IsTerminator() {
		return last
	}
	return nil
}

// Successors returns the blocks this block's terminator can transfer
// control to; a tail-call JumpInst targeting a *CalleeRef has none.
func (b *BasicBlock) Successors() []*BasicBlock {
	switch t := b.Terminator().(type) {
	case *JumpInst:
		if bb, ok := t.Target.(*BasicBlock); ok {
			return []*BasicBlock{bb}
		}
		return nil
	case *CondJumpInst:
		return []*BasicBlock{t.IfTrue, t.IfFalse}
	default:
		return nil
	}
}

// AddPredecessor records pred as a predecessor of b.
func (b *BasicBlock) AddPredecessor(pred *BasicBlock) {
	b.Preds = append(b.Preds, pred)
}

// RemovePredecessor removes pred from b's predecessor list and strips its
// corresponding incoming value from every phi at the head of b.
func (b *BasicBlock) RemovePredecessor(pred *BasicBlock) {
	for i, p := range b.Preds {
		if p == pred {
			b.Preds = append(b.Preds[:i], b.Preds[i+1:]...)
			break
		}
	}
	for _, inst := range b.Insts {
		phi, ok := inst.(*PhiInst)
		if !ok {
			break
		}
		for i, in := range phi.Incoming {
			if in.Block == pred {
				unlinkOperand(phi, in.Value)
				phi.Incoming = append(phi.Incoming[:i], phi.Incoming[i+1:]...)
				break
			}
		}
	}
}

func (b *BasicBlock) setInstBlock(inst Instruction) {
	inst.setBlock(b)
}

// PushBack appends inst to the end of the block.
func (b *BasicBlock) PushBack(inst Instruction) {
	b.setInstBlock(inst)
	b.Insts = append(b.Insts, inst)
}

// PushFront inserts inst at the start of the block, after any existing
// phis (phis must stay contiguous at the block head).
func (b *BasicBlock) PushFront(inst Instruction) {
	b.setInstBlock(inst)
	i := 0
	for i < len(b.Insts) {
		if _, ok := b.Insts[i].(*PhiInst); !ok {
			break
		}
		i++
	}
	b.Insts = append(b.Insts, nil)
	copy(b.Insts[i+1:], b.Insts[i:])
	b.Insts[i] = inst
}

// InsertBefore inserts inst immediately before mark.
func (b *BasicBlock) InsertBefore(mark, inst Instruction) {
	b.insertAt(mark, inst, 0)
}

// InsertAfter inserts inst immediately after mark.
func (b *BasicBlock) InsertAfter(mark, inst Instruction) {
	b.insertAt(mark, inst, 1)
}

func (b *BasicBlock) insertAt(mark, inst Instruction, offset int) {
	b.setInstBlock(inst)
	for i, cur := range b.Insts {
		if cur == mark {
			at := i + offset
			b.Insts = append(b.Insts, nil)
			copy(b.Insts[at+1:], b.Insts[at:])
			b.Insts[at] = inst
			return
		}
	}
}

// Erase removes inst from the block. The caller must have already cleared
// its operands and destination registers.
func (b *BasicBlock) Erase(inst Instruction) {
	for i, cur := range b.Insts {
		if cur == inst {
			b.Insts = append(b.Insts[:i], b.Insts[i+1:]...)
			return
		}
	}
}
