package ir

// Module is the top-level container for a single compilation unit: its
// struct types live in the Context, everything else (functions, globals,
// foreign declarations) is owned here.
type Module struct {
	Ctx              *Context
	Name             string
	Functions        []*Function
	Globals          []*GlobalVariable
	ForeignFunctions []*ForeignFunction
}

// NewModule creates an empty module backed by ctx.
func NewModule(ctx *Context, name string) *Module {
	return &Module{Ctx: ctx, Name: name}
}

// NewFunction appends and returns a new function declaration/definition.
func (m *Module) NewFunction(name string, params []*Parameter, retType Type) *Function {
	f := &Function{
		Name:    name,
		Params:  params,
		RetType: retType,
		ptrTy:   m.Ctx.PtrType(),
	}
	m.Functions = append(m.Functions, f)
	return f
}

// NewForeignFunction appends and returns a new externally-resolved callee
// declaration (see internal/ffi).
func (m *Module) NewForeignFunction(name string, paramTypes []Type, retType Type) *ForeignFunction {
	f := &ForeignFunction{Name: name, ParamTypes: paramTypes, RetType: retType}
	m.ForeignFunctions = append(m.ForeignFunctions, f)
	return f
}

// NewGlobal appends and returns a new module-owned storage location.
func (m *Module) NewGlobal(name string, ty Type, constant bool, init Constant) *GlobalVariable {
	g := &GlobalVariable{Name: name, Ty: ty, Constant: constant, Initializer: init}
	m.Globals = append(m.Globals, g)
	return g
}

// Function owns an ordered list of basic blocks forming its CFG. The entry
// block is always Blocks[0]. A Function with no blocks is a declaration
// (e.g. imported from another module) rather than a definition.
type Function struct {
	valueBase
	Name    string
	Params  []*Parameter
	RetType Type
	Blocks  []*BasicBlock

	ptrTy   Type
	nextID  int
	nextLbl int
}

func (f *Function) Type() Type { return f.ptrTy }

// Entry returns the function's entry block, or nil if it is a declaration.
func (f *Function) Entry() *BasicBlock {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// allocID returns a fresh, function-unique instruction/value id.
func (f *Function) allocID() int {
	id := f.nextID
	f.nextID++
	return id
}

// NewBlock appends a new, empty basic block at the end of the function.
func (f *Function) NewBlock(label string) *BasicBlock {
	if label == "" {
		label = blockLabel(f.nextLbl)
		f.nextLbl++
	}
	bb := &BasicBlock{Label: label, Parent: f}
	f.Blocks = append(f.Blocks, bb)
	return bb
}

// InsertBlockBefore inserts bb immediately before mark in block order. It
// does not touch control-flow edges; callers are responsible for wiring
// terminators.
func (f *Function) InsertBlockBefore(mark, bb *BasicBlock) {
	for i, b := range f.Blocks {
		if b == mark {
			f.Blocks = append(f.Blocks, nil)
			copy(f.Blocks[i+1:], f.Blocks[i:])
			f.Blocks[i] = bb
			bb.Parent = f
			return
		}
	}
	f.Blocks = append(f.Blocks, bb)
	bb.Parent = f
}

// EraseBlock removes bb from the function. The caller must have already
// removed bb from every predecessor list and every phi that referenced it;
// EraseBlock panics (an invariant violation, not a recoverable error) if bb
// still has predecessors.
func (f *Function) EraseBlock(bb *BasicBlock) {
	if len(bb.Preds) != 0 {
		panic(Invariant{Msg: "ir: erasing basic block with remaining predecessors"})
	}
	for i, b := range f.Blocks {
		if b == bb {
			f.Blocks = append(f.Blocks[:i], f.Blocks[i+1:]...)
			return
		}
	}
}

func blockLabel(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	if n < 26 {
		return string(letters[n])
	}
	return string(letters[n%26]) + itoa(n/26)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// BasicBlock is a maximal straight-line instruction sequence ending in
// exactly one terminator (once construction is complete). It is itself a
// Value so that control-flow edges (goto/branch targets, phi incoming
// blocks) can be tracked like any other operand.
type BasicBlock struct {
	valueBase
	Label  string
	Parent *Function
	Insts  []Instruction
	Preds  []*BasicBlock
}

func (b *BasicBlock) Type() Type { return voidT }

// Terminator returns the block's terminating instruction, or nil if the
// block is still under construction.
func (b *BasicBlock) Terminator() Terminator {
	if len(b.Insts) == 0 {
		return nil
	}
	if t, ok := b.Insts[len(b.Insts)-1].(Terminator); ok {
		return t
	}
	return nil
}

// Successors returns the block's outgoing control-flow edges.
func (b *BasicBlock) Successors() []*BasicBlock {
	if t := b.Terminator(); t != nil {
		return t.Successors()
	}
	return nil
}

// AddPredecessor records an incoming control-flow edge from p. Callers
// building or rewriting the CFG call this directly; it is not inferred
// automatically from terminators, since a terminator may be mid-rewrite.
func (b *BasicBlock) AddPredecessor(p *BasicBlock) {
	for _, x := range b.Preds {
		if x == p {
			return
		}
	}
	b.Preds = append(b.Preds, p)
}

// RemovePredecessor drops p from the predecessor list and deletes the
// corresponding incoming entry from every phi in b.
func (b *BasicBlock) RemovePredecessor(p *BasicBlock) {
	for i, x := range b.Preds {
		if x == p {
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
			if in.Block == p {
				if in.Value != nil {
					for _, u := range in.Value.Uses() {
						if u.User == phi && u.Value == in.Value {
							in.Value.removeUse(u)
							break
						}
					}
				}
				phi.Incoming = append(phi.Incoming[:i], phi.Incoming[i+1:]...)
				break
			}
		}
	}
}

// PushBack appends inst to the end of the block and links its parent.
func (b *BasicBlock) PushBack(inst Instruction) {
	inst.setBlock(b)
	b.Insts = append(b.Insts, inst)
}

// PushFront inserts inst at the start of the block, after any existing phi
// instructions (the textual and in-memory convention: phis are always the
// leading instructions of a block).
func (b *BasicBlock) PushFront(inst Instruction) {
	inst.setBlock(b)
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
	inst.setBlock(b)
	for i, x := range b.Insts {
		if x == mark {
			b.Insts = append(b.Insts, nil)
			copy(b.Insts[i+1:], b.Insts[i:])
			b.Insts[i] = inst
			return
		}
	}
	b.Insts = append(b.Insts, inst)
}

// InsertAfter inserts inst immediately after mark.
func (b *BasicBlock) InsertAfter(mark, inst Instruction) {
	inst.setBlock(b)
	for i, x := range b.Insts {
		if x == mark {
			j := i + 1
			b.Insts = append(b.Insts, nil)
			copy(b.Insts[j+1:], b.Insts[j:])
			b.Insts[j] = inst
			return
		}
	}
	b.Insts = append(b.Insts, inst)
}

// Erase removes inst from the block and detaches it from every operand's
// use list. inst must have no remaining uses (an invariant violation
// otherwise): callers must RAUW or erase users first.
func (b *BasicBlock) Erase(inst Instruction) {
	if r := inst.Result(); r != nil && len(r.Uses()) != 0 {
		panic(Invariant{Msg: "ir: erasing instruction with remaining uses"})
	}
	for _, op := range inst.Operands() {
		if op == nil {
			continue
		}
		for _, u := range op.Uses() {
			if u.User == inst {
				op.removeUse(u)
				break
			}
		}
	}
	for i, x := range b.Insts {
		if x == inst {
			b.Insts = append(b.Insts[:i], b.Insts[i+1:]...)
			return
		}
	}
}
