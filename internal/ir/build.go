package ir

// Builder constructs instructions directly into a basic block, wiring use
// edges as it goes. Unlike the teacher's AST-driven builder, there is no
// source grammar underneath this one: the frontend producing instructions
// is out of scope, and SPEC_FULL.md's textual parser (parser.go) is the
// other path that populates a Function's blocks.
type Builder struct {
	Ctx *Context
	F   *Function
	BB  *BasicBlock
}

// NewBuilder returns a builder appending to the end of bb.
func NewBuilder(ctx *Context, f *Function, bb *BasicBlock) *Builder {
	return &Builder{Ctx: ctx, F: f, BB: bb}
}

// SetBlock redirects subsequent instructions to bb.
func (b *Builder) SetBlock(bb *BasicBlock) { b.BB = bb }

func link(user Instruction, v Value) Value {
	if v != nil {
		v.addUse(&Use{Value: v, User: user})
	}
	return v
}

func (b *Builder) emit(inst Instruction) {
	b.BB.PushBack(inst)
}

// Alloca reserves stack space for one value of ty and returns the pointer
// result.
func (b *Builder) Alloca(ty Type) *AllocaInst {
	inst := &AllocaInst{instBase: instBase{id: b.F.allocID()}, PtrTy: b.Ctx.PtrType(), AllocType: ty}
	b.emit(inst)
	return inst
}

// Load reads the value at addr, typed ty.
func (b *Builder) Load(addr Value, ty Type) *LoadInst {
	inst := &LoadInst{instBase: instBase{id: b.F.allocID()}, LoadTy: ty}
	inst.Address = link(inst, addr)
	b.emit(inst)
	return inst
}

// Store writes val to addr.
func (b *Builder) Store(addr, val Value) *StoreInst {
	inst := &StoreInst{instBase: instBase{id: b.F.allocID()}}
	inst.Address = link(inst, addr)
	inst.Val = link(inst, val)
	b.emit(inst)
	return inst
}

// GEP computes a symbolic address through baseType starting at base.
func (b *Builder) GEP(base Value, baseType Type, indices []GEPIndex) *GEPInst {
	inst := &GEPInst{instBase: instBase{id: b.F.allocID()}, PtrTy: b.Ctx.PtrType(), BaseType: baseType}
	inst.Base = link(inst, base)
	inst.Indices = indices
	for i := range inst.Indices {
		if inst.Indices[i].Value != nil {
			inst.Indices[i].Value = link(inst, inst.Indices[i].Value)
		}
	}
	b.emit(inst)
	return inst
}

// Binary emits an arithmetic or bitwise instruction.
func (b *Builder) Binary(op BinaryOp, lhs, rhs Value, ty Type) *BinaryInst {
	inst := &BinaryInst{instBase: instBase{id: b.F.allocID()}, Ty: ty, Op: op}
	inst.LHS = link(inst, lhs)
	inst.RHS = link(inst, rhs)
	b.emit(inst)
	return inst
}

// Compare emits a predicate comparison; the result is always i1.
func (b *Builder) Compare(pred CmpPred, lhs, rhs Value) *CompareInst {
	inst := &CompareInst{instBase: instBase{id: b.F.allocID()}, Ty: b.Ctx.IntType(1), Pred: pred}
	inst.LHS = link(inst, lhs)
	inst.RHS = link(inst, rhs)
	b.emit(inst)
	return inst
}

// Call emits a call to callee with args. retTy may be a VoidType for
// statement-position calls.
func (b *Builder) Call(callee Value, args []Value, retTy Type) *CallInst {
	_, isVoid := retTy.(*VoidType)
	inst := &CallInst{instBase: instBase{id: b.F.allocID()}, Ty: retTy, HasResult: !isVoid}
	inst.Callee = link(inst, callee)
	inst.Args = make([]Value, len(args))
	for i, a := range args {
		inst.Args[i] = link(inst, a)
	}
	b.emit(inst)
	return inst
}

// Phi emits an empty phi of type ty; incoming pairs are added with
// AddIncoming once all predecessors are known.
func (b *Builder) Phi(ty Type) *PhiInst {
	inst := &PhiInst{instBase: instBase{id: b.F.allocID()}, Ty: ty}
	b.emit(inst)
	return inst
}

// AddIncoming appends one (predecessor, value) pair to phi.
func (phi *PhiInst) AddIncoming(pred *BasicBlock, v Value) {
	phi.Incoming = append(phi.Incoming, PhiIncoming{Block: pred, Value: link(phi, v)})
}

// Select emits a branchless ternary.
func (b *Builder) Select(cond, then, els Value, ty Type) *SelectInst {
	inst := &SelectInst{instBase: instBase{id: b.F.allocID()}, Ty: ty}
	inst.Cond = link(inst, cond)
	inst.Then = link(inst, then)
	inst.Else = link(inst, els)
	b.emit(inst)
	return inst
}

// Convert emits a width or representation conversion of src to ty.
func (b *Builder) Convert(op ConvOp, src Value, ty Type) *ConvertInst {
	inst := &ConvertInst{instBase: instBase{id: b.F.allocID()}, Ty: ty, Op: op}
	inst.Src = link(inst, src)
	b.emit(inst)
	return inst
}

// Return terminates the current block, optionally with val.
func (b *Builder) Return(val Value) *ReturnInst {
	inst := &ReturnInst{instBase: instBase{id: b.F.allocID()}}
	inst.Val = link(inst, val)
	b.emit(inst)
	return inst
}

// Goto terminates the current block with an unconditional jump and wires
// the predecessor edge on target, as well as target's use edge (the goto
// is one of its uses, like any other operand).
func (b *Builder) Goto(target *BasicBlock) *GotoInst {
	inst := &GotoInst{instBase: instBase{id: b.F.allocID()}}
	setBlockOperand(inst, &inst.Target, target)
	b.emit(inst)
	target.AddPredecessor(b.BB)
	return inst
}

// Branch terminates the current block with a two-way conditional branch and
// wires both predecessor edges, as well as both targets' use edges.
func (b *Builder) Branch(cond Value, ifTrue, ifFalse *BasicBlock) *BranchInst {
	inst := &BranchInst{instBase: instBase{id: b.F.allocID()}}
	inst.Cond = link(inst, cond)
	setBlockOperand(inst, &inst.IfTrue, ifTrue)
	setBlockOperand(inst, &inst.IfFalse, ifFalse)
	b.emit(inst)
	ifTrue.AddPredecessor(b.BB)
	ifFalse.AddPredecessor(b.BB)
	return inst
}
