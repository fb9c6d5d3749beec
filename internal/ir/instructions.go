package ir

import "fmt"

// Instruction is an SSA value and a node in a basic block. Every opcode
// variant implements this closed sum type; dispatch is by type switch
// (spec.md §9: "tagged union per layer plus exhaustive match"). An
// instruction that produces a result is itself the Value representing that
// result; Result() returns nil for void-typed instructions (store, the
// terminators, void calls).
type Instruction interface {
	Value
	ID() int
	Result() Value
	Operands() []Value
	Block() *BasicBlock
	setBlock(b *BasicBlock)
	IsTerminator() bool
	SetOperandAt(i int, v Value)
	ReplaceOperand(old, new Value)
	String() string
}

// Terminator is the subset of instructions that may end a basic block.
type Terminator interface {
	Instruction
	Successors() []*BasicBlock
}

// instBase is embedded by every concrete instruction to provide identity,
// parent linkage and the use bookkeeping every Value needs.
type instBase struct {
	valueBase
	id    int
	block *BasicBlock
}

func (b *instBase) ID() int                 { return b.id }
func (b *instBase) Block() *BasicBlock      { return b.block }
func (b *instBase) setBlock(bb *BasicBlock) { b.block = bb }
func (b *instBase) IsTerminator() bool      { return false }

// setOperandAt is the generic implementation of
// Instruction::setOperandAt(i, v): detach the use from the old operand,
// attach it to the new one, rewrite the operand slot. Callers pass the
// operand slot by address so the rewrite is visible through the
// instruction's own field.
func setOperandAt(user Instruction, slot *Value, v Value) {
	old := *slot
	if old == v {
		return
	}
	if old != nil {
		for _, u := range old.Uses() {
			if u.User == user && u.Value == old {
				old.removeUse(u)
				break
			}
		}
	}
	*slot = v
	if v != nil {
		v.addUse(&Use{Value: v, User: user})
	}
}

// replaceOperand applies setOperandAt for each operand slot equal to old.
func replaceOperand(user Instruction, slots []*Value, old, new Value) {
	for _, s := range slots {
		if *s == old {
			setOperandAt(user, s, new)
		}
	}
}

// BinaryOp enumerates the arithmetic and bitwise opcodes.
type BinaryOp string

const (
	OpAdd  BinaryOp = "add"
	OpSub  BinaryOp = "sub"
	OpMul  BinaryOp = "mul"
	OpUDiv BinaryOp = "udiv"
	OpSDiv BinaryOp = "sdiv"
	OpURem BinaryOp = "urem"
	OpSRem BinaryOp = "srem"
	OpShl  BinaryOp = "shl"
	OpLShr BinaryOp = "lshr"
	OpAShr BinaryOp = "ashr"
	OpAnd  BinaryOp = "and"
	OpOr   BinaryOp = "or"
	OpXor  BinaryOp = "xor"
	OpFAdd BinaryOp = "fadd"
	OpFSub BinaryOp = "fsub"
	OpFMul BinaryOp = "fmul"
	OpFDiv BinaryOp = "fdiv"
)

// Commutative reports whether operand order does not affect the result,
// used by Canonicalize (internal/opt) to pick a normal form.
func (op BinaryOp) Commutative() bool {
	switch op {
	case OpAdd, OpMul, OpAnd, OpOr, OpXor, OpFAdd, OpFMul:
		return true
	default:
		return false
	}
}

// CmpPred enumerates comparison predicates.
type CmpPred string

const (
	CmpEq  CmpPred = "eq"
	CmpNe  CmpPred = "ne"
	CmpULt CmpPred = "ult"
	CmpULe CmpPred = "ule"
	CmpUGt CmpPred = "ugt"
	CmpUGe CmpPred = "uge"
	CmpSLt CmpPred = "slt"
	CmpSLe CmpPred = "sle"
	CmpSGt CmpPred = "sgt"
	CmpSGe CmpPred = "sge"
)

// Inverse returns the negated predicate, used when lowering select (spec.md
// §4.7 step 5: "conditional copy of the else-value under the inverted
// condition").
func (p CmpPred) Inverse() CmpPred {
	switch p {
	case CmpEq:
		return CmpNe
	case CmpNe:
		return CmpEq
	case CmpULt:
		return CmpUGe
	case CmpULe:
		return CmpUGt
	case CmpUGt:
		return CmpULe
	case CmpUGe:
		return CmpULt
	case CmpSLt:
		return CmpSGe
	case CmpSLe:
		return CmpSGt
	case CmpSGt:
		return CmpSLe
	case CmpSGe:
		return CmpSLt
	}
	return p
}

// AllocaInst reserves stack space for one value of AllocType and is itself
// the pointer result.
type AllocaInst struct {
	instBase
	PtrTy     Type
	AllocType Type
}

func (i *AllocaInst) Type() Type                  { return i.PtrTy }
func (i *AllocaInst) Result() Value               { return i }
func (i *AllocaInst) Operands() []Value           { return nil }
func (i *AllocaInst) SetOperandAt(int, Value)     {}
func (i *AllocaInst) ReplaceOperand(Value, Value) {}
func (i *AllocaInst) String() string {
	return fmt.Sprintf("%%%d = alloca %s", i.id, i.AllocType.String())
}

// LoadInst reads the value stored at Address.
type LoadInst struct {
	instBase
	LoadTy  Type
	Address Value
}

func (i *LoadInst) Type() Type        { return i.LoadTy }
func (i *LoadInst) Result() Value     { return i }
func (i *LoadInst) Operands() []Value { return []Value{i.Address} }
func (i *LoadInst) SetOperandAt(n int, v Value) {
	if n == 0 {
		setOperandAt(i, &i.Address, v)
	}
}
func (i *LoadInst) ReplaceOperand(old, new Value) {
	replaceOperand(i, []*Value{&i.Address}, old, new)
}
func (i *LoadInst) String() string {
	return fmt.Sprintf("%%%d = load %s, %s", i.id, i.LoadTy.String(), valStr(i.Address))
}

// StoreInst writes Val to Address.
type StoreInst struct {
	instBase
	Address Value
	Val     Value
}

func (i *StoreInst) Type() Type        { return voidT }
func (i *StoreInst) Result() Value     { return nil }
func (i *StoreInst) Operands() []Value { return []Value{i.Address, i.Val} }
func (i *StoreInst) SetOperandAt(n int, v Value) {
	switch n {
	case 0:
		setOperandAt(i, &i.Address, v)
	case 1:
		setOperandAt(i, &i.Val, v)
	}
}
func (i *StoreInst) ReplaceOperand(old, new Value) {
	replaceOperand(i, []*Value{&i.Address, &i.Val}, old, new)
}
func (i *StoreInst) String() string {
	return fmt.Sprintf("store %s, %s", valStr(i.Address), valStr(i.Val))
}

// GEPIndex is one index of a GetElementPointer: either a constant (folded
// at lowering time) or a dynamic SSA value.
type GEPIndex struct {
	Const int
	Value Value // nil if this index is the constant above
}

// GEPInst computes a symbolic address through an aggregate/array member
// chain without dereferencing.
type GEPInst struct {
	instBase
	PtrTy    Type
	Base     Value
	BaseType Type
	Indices  []GEPIndex
}

func (i *GEPInst) Type() Type    { return i.PtrTy }
func (i *GEPInst) Result() Value { return i }
func (i *GEPInst) Operands() []Value {
	ops := []Value{i.Base}
	for _, idx := range i.Indices {
		if idx.Value != nil {
			ops = append(ops, idx.Value)
		}
	}
	return ops
}
func (i *GEPInst) SetOperandAt(n int, v Value) {
	if n == 0 {
		setOperandAt(i, &i.Base, v)
		return
	}
	k := 1
	for idx := range i.Indices {
		if i.Indices[idx].Value != nil {
			if k == n {
				setOperandAt(i, &i.Indices[idx].Value, v)
				return
			}
			k++
		}
	}
}
func (i *GEPInst) ReplaceOperand(old, new Value) {
	if i.Base == old {
		setOperandAt(i, &i.Base, new)
	}
	for idx := range i.Indices {
		if i.Indices[idx].Value == old {
			setOperandAt(i, &i.Indices[idx].Value, new)
		}
	}
}
func (i *GEPInst) String() string {
	return fmt.Sprintf("%%%d = getelementptr %s, %s, %s", i.id, i.BaseType.String(), valStr(i.Base), gepIndexStr(i.Indices))
}

func gepIndexStr(idxs []GEPIndex) string {
	s := ""
	for n, idx := range idxs {
		if n > 0 {
			s += ", "
		}
		if idx.Value != nil {
			s += valStr(idx.Value)
		} else {
			s += fmt.Sprintf("%d", idx.Const)
		}
	}
	return s
}

// BinaryInst is an arithmetic or bitwise two-operand instruction.
type BinaryInst struct {
	instBase
	Ty       Type
	Op       BinaryOp
	LHS, RHS Value
}

func (i *BinaryInst) Type() Type        { return i.Ty }
func (i *BinaryInst) Result() Value     { return i }
func (i *BinaryInst) Operands() []Value { return []Value{i.LHS, i.RHS} }
func (i *BinaryInst) SetOperandAt(n int, v Value) {
	switch n {
	case 0:
		setOperandAt(i, &i.LHS, v)
	case 1:
		setOperandAt(i, &i.RHS, v)
	}
}
func (i *BinaryInst) ReplaceOperand(old, new Value) {
	replaceOperand(i, []*Value{&i.LHS, &i.RHS}, old, new)
}
func (i *BinaryInst) String() string {
	return fmt.Sprintf("%%%d = %s %s %s, %s", i.id, i.Op, i.Ty.String(), valStr(i.LHS), valStr(i.RHS))
}

// CompareInst produces an i1 result from a predicate over two operands.
type CompareInst struct {
	instBase
	Ty       Type
	Pred     CmpPred
	LHS, RHS Value
}

func (i *CompareInst) Type() Type        { return i.Ty }
func (i *CompareInst) Result() Value     { return i }
func (i *CompareInst) Operands() []Value { return []Value{i.LHS, i.RHS} }
func (i *CompareInst) SetOperandAt(n int, v Value) {
	switch n {
	case 0:
		setOperandAt(i, &i.LHS, v)
	case 1:
		setOperandAt(i, &i.RHS, v)
	}
}
func (i *CompareInst) ReplaceOperand(old, new Value) {
	replaceOperand(i, []*Value{&i.LHS, &i.RHS}, old, new)
}
func (i *CompareInst) String() string {
	return fmt.Sprintf("%%%d = cmp %s %s %s, %s", i.id, i.Pred, i.LHS.Type().String(), valStr(i.LHS), valStr(i.RHS))
}

// CallInst calls Callee (a Function, ForeignFunction, or indirect pointer
// value) with Args. HasResult is false for void calls, in which case
// Result() returns nil. TailCandidate is an advisory flag set by the
// TailCallMark pass; DestroySSA re-verifies the pattern itself rather than
// trusting it blindly.
type CallInst struct {
	instBase
	Ty            Type
	HasResult     bool
	Callee        Value
	Args          []Value
	TailCandidate bool
}

func (i *CallInst) Type() Type {
	if i.HasResult {
		return i.Ty
	}
	return voidT
}
func (i *CallInst) Result() Value {
	if i.HasResult {
		return i
	}
	return nil
}
func (i *CallInst) Operands() []Value {
	ops := make([]Value, 0, len(i.Args)+1)
	ops = append(ops, i.Callee)
	ops = append(ops, i.Args...)
	return ops
}
func (i *CallInst) SetOperandAt(n int, v Value) {
	if n == 0 {
		setOperandAt(i, &i.Callee, v)
		return
	}
	if n-1 < len(i.Args) {
		setOperandAt(i, &i.Args[n-1], v)
	}
}
func (i *CallInst) ReplaceOperand(old, new Value) {
	slots := []*Value{&i.Callee}
	for k := range i.Args {
		slots = append(slots, &i.Args[k])
	}
	replaceOperand(i, slots, old, new)
}
func (i *CallInst) String() string {
	if i.HasResult {
		return fmt.Sprintf("%%%d = call %s %s(%s)", i.id, i.Ty.String(), calleeName(i.Callee), valList(i.Args))
	}
	return fmt.Sprintf("call void %s(%s)", calleeName(i.Callee), valList(i.Args))
}

func calleeName(v Value) string {
	switch f := v.(type) {
	case *Function:
		return "@" + f.Name
	case *ForeignFunction:
		return "@" + f.Name
	default:
		return valStr(v)
	}
}

// PhiIncoming is one (predecessor, value) pair of a phi instruction.
type PhiIncoming struct {
	Block *BasicBlock
	Value Value
}

// PhiInst selects a value based on which predecessor was taken.
type PhiInst struct {
	instBase
	Ty       Type
	Incoming []PhiIncoming
}

func (i *PhiInst) Type() Type    { return i.Ty }
func (i *PhiInst) Result() Value { return i }
func (i *PhiInst) Operands() []Value {
	ops := make([]Value, len(i.Incoming))
	for n, in := range i.Incoming {
		ops[n] = in.Value
	}
	return ops
}
func (i *PhiInst) SetOperandAt(n int, v Value) {
	if n < len(i.Incoming) {
		setOperandAt(i, &i.Incoming[n].Value, v)
	}
}
func (i *PhiInst) ReplaceOperand(old, new Value) {
	for n := range i.Incoming {
		if i.Incoming[n].Value == old {
			setOperandAt(i, &i.Incoming[n].Value, new)
		}
	}
}
func (i *PhiInst) IncomingFor(b *BasicBlock) Value {
	for _, in := range i.Incoming {
		if in.Block == b {
			return in.Value
		}
	}
	return nil
}
func (i *PhiInst) String() string {
	s := fmt.Sprintf("%%%d = phi %s", i.id, i.Ty.String())
	for _, in := range i.Incoming {
		s += fmt.Sprintf(" [%s: %s]", in.Block.Label, valStr(in.Value))
	}
	return s
}

// SelectInst picks Then or Else based on Cond without branching.
type SelectInst struct {
	instBase
	Ty         Type
	Cond       Value
	Then, Else Value
}

func (i *SelectInst) Type() Type        { return i.Ty }
func (i *SelectInst) Result() Value     { return i }
func (i *SelectInst) Operands() []Value { return []Value{i.Cond, i.Then, i.Else} }
func (i *SelectInst) SetOperandAt(n int, v Value) {
	switch n {
	case 0:
		setOperandAt(i, &i.Cond, v)
	case 1:
		setOperandAt(i, &i.Then, v)
	case 2:
		setOperandAt(i, &i.Else, v)
	}
}
func (i *SelectInst) ReplaceOperand(old, new Value) {
	replaceOperand(i, []*Value{&i.Cond, &i.Then, &i.Else}, old, new)
}
func (i *SelectInst) String() string {
	return fmt.Sprintf("%%%d = select %s %s, %s, %s", i.id, i.Ty.String(), valStr(i.Cond), valStr(i.Then), valStr(i.Else))
}

// ConvOp enumerates integer width and pointer conversion opcodes.
type ConvOp string

const (
	OpTrunc   ConvOp = "trunc"
	OpZExt    ConvOp = "zext"
	OpSExt    ConvOp = "sext"
	OpBitcast ConvOp = "bitcast"
)

// ConvertInst is a width or representation conversion.
type ConvertInst struct {
	instBase
	Ty  Type
	Op  ConvOp
	Src Value
}

func (i *ConvertInst) Type() Type        { return i.Ty }
func (i *ConvertInst) Result() Value     { return i }
func (i *ConvertInst) Operands() []Value { return []Value{i.Src} }
func (i *ConvertInst) SetOperandAt(n int, v Value) {
	if n == 0 {
		setOperandAt(i, &i.Src, v)
	}
}
func (i *ConvertInst) ReplaceOperand(old, new Value) {
	replaceOperand(i, []*Value{&i.Src}, old, new)
}
func (i *ConvertInst) String() string {
	return fmt.Sprintf("%%%d = %s %s to %s", i.id, i.Op, valStr(i.Src), i.Ty.String())
}

// ReturnInst terminates a function, optionally carrying a return value.
type ReturnInst struct {
	instBase
	Val Value // nil for void return
}

func (i *ReturnInst) Type() Type    { return voidT }
func (i *ReturnInst) Result() Value { return nil }
func (i *ReturnInst) Operands() []Value {
	if i.Val != nil {
		return []Value{i.Val}
	}
	return nil
}
func (i *ReturnInst) SetOperandAt(n int, v Value) {
	if n == 0 {
		setOperandAt(i, &i.Val, v)
	}
}
func (i *ReturnInst) ReplaceOperand(old, new Value) {
	if i.Val == old {
		setOperandAt(i, &i.Val, new)
	}
}
func (i *ReturnInst) IsTerminator() bool        { return true }
func (i *ReturnInst) Successors() []*BasicBlock { return nil }
func (i *ReturnInst) String() string {
	if i.Val == nil {
		return "return"
	}
	return "return " + valStr(i.Val)
}

// setBlockOperand is setOperandAt specialized to a *BasicBlock-typed slot:
// goto/branch targets are Values too (cfg.go: blocks are Values "so that
// control-flow edges ... can be tracked like any other operand"), but their
// field type is the concrete *BasicBlock, not the Value interface, so they
// need their own detach-old/attach-new helper rather than setOperandAt's.
func setBlockOperand(user Instruction, slot **BasicBlock, bb *BasicBlock) {
	old := *slot
	if old == bb {
		return
	}
	if old != nil {
		for _, u := range old.Uses() {
			if u.User == user && u.Value == old {
				old.removeUse(u)
				break
			}
		}
	}
	*slot = bb
	if bb != nil {
		bb.addUse(&Use{Value: bb, User: user})
	}
}

// GotoInst is an unconditional jump.
type GotoInst struct {
	instBase
	Target *BasicBlock
}

func (i *GotoInst) Type() Type        { return voidT }
func (i *GotoInst) Result() Value     { return nil }
func (i *GotoInst) Operands() []Value { return []Value{i.Target} }
func (i *GotoInst) SetOperandAt(n int, v Value) {
	if n != 0 {
		return
	}
	if bb, ok := v.(*BasicBlock); ok {
		setBlockOperand(i, &i.Target, bb)
	}
}
func (i *GotoInst) ReplaceOperand(old, new Value) {
	if bb, ok := new.(*BasicBlock); ok && i.Target == old {
		setBlockOperand(i, &i.Target, bb)
	}
}
func (i *GotoInst) IsTerminator() bool        { return true }
func (i *GotoInst) Successors() []*BasicBlock { return []*BasicBlock{i.Target} }
func (i *GotoInst) String() string            { return "goto " + i.Target.Label }

// BranchInst is a two-way conditional branch.
type BranchInst struct {
	instBase
	Cond            Value
	IfTrue, IfFalse *BasicBlock
}

func (i *BranchInst) Type() Type        { return voidT }
func (i *BranchInst) Result() Value     { return nil }
func (i *BranchInst) Operands() []Value { return []Value{i.Cond, i.IfTrue, i.IfFalse} }
func (i *BranchInst) SetOperandAt(n int, v Value) {
	switch n {
	case 0:
		setOperandAt(i, &i.Cond, v)
	case 1:
		if bb, ok := v.(*BasicBlock); ok {
			setBlockOperand(i, &i.IfTrue, bb)
		}
	case 2:
		if bb, ok := v.(*BasicBlock); ok {
			setBlockOperand(i, &i.IfFalse, bb)
		}
	}
}
func (i *BranchInst) ReplaceOperand(old, new Value) {
	if i.Cond == old {
		setOperandAt(i, &i.Cond, new)
		return
	}
	if bb, ok := new.(*BasicBlock); ok {
		if i.IfTrue == old {
			setBlockOperand(i, &i.IfTrue, bb)
		}
		if i.IfFalse == old {
			setBlockOperand(i, &i.IfFalse, bb)
		}
	}
}
func (i *BranchInst) IsTerminator() bool { return true }
func (i *BranchInst) Successors() []*BasicBlock {
	return []*BasicBlock{i.IfTrue, i.IfFalse}
}
func (i *BranchInst) String() string {
	return fmt.Sprintf("branch %s, %s, %s", valStr(i.Cond), i.IfTrue.Label, i.IfFalse.Label)
}

func valStr(v Value) string {
	switch x := v.(type) {
	case nil:
		return "undef"
	case *IntConstant:
		return fmt.Sprintf("%d", x.Val)
	case *FloatConstant:
		return fmt.Sprintf("f0x%x", x.Bits)
	case *NullConstant:
		return "null"
	case *UndefConstant:
		return "undef"
	case *Parameter:
		return "%" + x.Name
	case *GlobalVariable:
		return "@" + x.Name
	case *Function:
		return "@" + x.Name
	case *ForeignFunction:
		return "@" + x.Name
	case *BasicBlock:
		return "%" + x.Label
	case Instruction:
		return fmt.Sprintf("%%%d", x.ID())
	default:
		return fmt.Sprintf("%v", v)
	}
}

func valList(vs []Value) string {
	s := ""
	for n, v := range vs {
		if n > 0 {
			s += ", "
		}
		s += valStr(v)
	}
	return s
}

var voidSingleton = &VoidType{}
var voidT Type = voidSingleton
