package mir

import "fmt"

// Instruction is an MIR value and a node in a basic block; the closed sum
// type dispatched by type switch throughout internal/codegen, mirroring
// internal/ir.Instruction one level lower (spec.md §9: "tagged union per
// layer plus exhaustive match").
type Instruction interface {
	ID() int
	Block() *BasicBlock
	setBlock(b *BasicBlock)
	Index() int
	setIndex(i int)
	Dest() *Register
	NumDests() int
	// Dests returns every consecutive register this instruction defines.
	Dests() []*Register
	SetDest(dest *Register, numDests int)
	ClearDest()
	Operands() []Value
	SetOperandAt(i int, v Value)
	ReplaceOperand(old, new Value)
	ByteWidth() int
	IsTerminator() bool
	String() string
}

// instBase is embedded by every concrete instruction for identity, parent
// linkage, the program-point index assigned by linearization, and the
// destination-register bookkeeping every opcode shares.
type instBase struct {
	id        int
	block     *BasicBlock
	index     int
	dest      *Register
	numDests  int
	byteWidth int
}

func (b *instBase) ID() int            { return b.id }
func (b *instBase) Block() *BasicBlock  { return b.block }
func (b *instBase) setBlock(bb *BasicBlock) { b.block = bb }
func (b *instBase) Index() int         { return b.index }
func (b *instBase) setIndex(i int)     { b.index = i }
func (b *instBase) Dest() *Register    { return b.dest }
func (b *instBase) NumDests() int      { return b.numDests }
func (b *instBase) ByteWidth() int     { return b.byteWidth }
func (b *instBase) IsTerminator() bool { return false }

func (b *instBase) Dests() []*Register {
	out := make([]*Register, 0, b.numDests)
	r := b.dest
	for i := 0; i < b.numDests && r != nil; i++ {
		out = append(out, r)
		r = r.Next()
	}
	return out
}

// setDestOn rewrites self's destination span, detaching defs from the old
// span and attaching them to the new one. Every concrete instruction's
// SetDest forwards to this with itself as self, since Go has no way for an
// embedded instBase method to recover the enclosing concrete type.
func setDestOn(self Instruction, b *instBase, dest *Register, numDests int) {
	r := b.dest
	for i := 0; i < b.numDests && r != nil; i++ {
		r.removeDef(self)
		r = r.Next()
	}
	r = dest
	for i := 0; i < numDests && r != nil; i++ {
		r.addDef(self)
		r = r.Next()
	}
	b.dest = dest
	b.numDests = numDests
}

func clearDestOn(self Instruction, b *instBase) {
	setDestOn(self, b, nil, 0)
}

// replaceDestRegister is called by Register.ReplaceDefsWith for each
// instruction that defines old. It rewrites the whole destination span only
// when old is the span's first register: later registers of a multi-dest
// span are reached transitively once the first register's replacement
// repoints Next() into the replacement pool (see mapSSAToVirtualRegisters in
// internal/codegen, which replaces pool members in ascending index order).
func replaceDestRegister(inst Instruction, old, repl *Register) {
	if inst.Dest() != old {
		return
	}
	inst.SetDest(repl, inst.NumDests())
}

func linkOperand(user Instruction, v Value) {
	if r, ok := v.(*Register); ok {
		r.addUse(user)
	}
}

func unlinkOperand(user Instruction, v Value) {
	if r, ok := v.(*Register); ok {
		r.removeUse(user)
	}
}

func setOperandAt(user Instruction, slot *Value, v Value) {
	old := *slot
	if old == v {
		return
	}
	if old != nil {
		unlinkOperand(user, old)
	}
	*slot = v
	if v != nil {
		linkOperand(user, v)
	}
}

func replaceOperandSlots(user Instruction, slots []*Value, old, new Value) {
	for _, s := range slots {
		if *s == old {
			setOperandAt(user, s, new)
		}
	}
}

// MemoryAddress is a symbolic memory operand: a base (either a register or
// a module-level global, mutually exclusive) plus an optional
// dynamically-computed offset register, a constant scale factor applied to
// it, and a folded constant byte offset (spec.md §4.6 GEP lowering rule).
type MemoryAddress struct {
	Base        *Register
	Global      *GlobalRef
	DynOffset   *Register
	Scale       int
	ConstOffset int
}

// CopyInst copies Src into Dest, by-word for multi-word values (genCopy in
// the original Resolver).
type CopyInst struct {
	instBase
	Src Value
}

func (i *CopyInst) SetDest(d *Register, n int) { setDestOn(i, &i.instBase, d, n) }
func (i *CopyInst) ClearDest()                 { clearDestOn(i, &i.instBase) }
func (i *CopyInst) Operands() []Value          { return []Value{i.Src} }
func (i *CopyInst) SetOperandAt(n int, v Value) {
	if n == 0 {
		setOperandAt(i, &i.Src, v)
	}
}
func (i *CopyInst) ReplaceOperand(old, new Value) {
	replaceOperandSlots(i, []*Value{&i.Src}, old, new)
}
func (i *CopyInst) String() string {
	return fmt.Sprintf("%s = copy %s, %d", regName(i.Dest()), valStr(i.Src), i.byteWidth)
}

// NewCopyInst constructs a copy of byteWidth bytes from src into dest.
func NewCopyInst(dest *Register, src Value, byteWidth int) *CopyInst {
	c := &CopyInst{instBase: instBase{byteWidth: byteWidth}}
	c.SetDest(dest, 1)
	c.SetOperandAt(0, src)
	return c
}

// CondCopyInst conditionally overwrites Dest with Src when Cond holds; used
// to lower select (spec.md §4.7 step 5) as an unconditional copy of the
// then-value followed by one of these for the else-value under the
// inverted condition. It still counts as a def of Dest (clobbers only
// conditionally, so liveness must treat Dest as read too — see
// internal/codegen's live-range computation).
type CondCopyInst struct {
	instBase
	Src  Value
	Flag Value
	Cond Condition
}

func (i *CondCopyInst) SetDest(d *Register, n int) { setDestOn(i, &i.instBase, d, n) }
func (i *CondCopyInst) ClearDest()                 { clearDestOn(i, &i.instBase) }
func (i *CondCopyInst) Operands() []Value          { return []Value{i.Src, i.Flag} }
func (i *CondCopyInst) SetOperandAt(n int, v Value) {
	switch n {
	case 0:
		setOperandAt(i, &i.Src, v)
	case 1:
		setOperandAt(i, &i.Flag, v)
	}
}
func (i *CondCopyInst) ReplaceOperand(old, new Value) {
	replaceOperandSlots(i, []*Value{&i.Src, &i.Flag}, old, new)
}
func (i *CondCopyInst) String() string {
	return fmt.Sprintf("%s = condcopy.%s %s %s, %d", regName(i.Dest()), i.Cond, valStr(i.Flag), valStr(i.Src), i.byteWidth)
}

// NewCondCopyInst constructs a CondCopyInst: dest is overwritten with src
// only when flag satisfies cond.
func NewCondCopyInst(dest *Register, src Value, byteWidth int, cond Condition, flag Value) *CondCopyInst {
	c := &CondCopyInst{instBase: instBase{byteWidth: byteWidth}, Cond: cond}
	c.SetDest(dest, 1)
	c.SetOperandAt(0, src)
	c.SetOperandAt(1, flag)
	return c
}

// ArithOp enumerates the two/three-address arithmetic opcodes the VM
// provides directly, paralleling internal/ir.BinaryOp one level lower.
type ArithOp string

const (
	ArithAdd  ArithOp = "add"
	ArithSub  ArithOp = "sub"
	ArithMul  ArithOp = "mul"
	ArithUDiv ArithOp = "udiv"
	ArithSDiv ArithOp = "sdiv"
	ArithURem ArithOp = "urem"
	ArithSRem ArithOp = "srem"
	ArithShl  ArithOp = "shl"
	ArithLShr ArithOp = "lshr"
	ArithAShr ArithOp = "ashr"
	ArithAnd  ArithOp = "and"
	ArithOr   ArithOp = "or"
	ArithXor  ArithOp = "xor"
	ArithFAdd ArithOp = "fadd"
	ArithFSub ArithOp = "fsub"
	ArithFMul ArithOp = "fmul"
	ArithFDiv ArithOp = "fdiv"
)

// Commutative reports whether operand order does not affect the result,
// used by RegAlloc's three-to-two-address lowering to prefer a swap over a
// scratch register.
func (op ArithOp) Commutative() bool {
	switch op {
	case ArithAdd, ArithMul, ArithAnd, ArithOr, ArithXor, ArithFAdd, ArithFMul:
		return true
	default:
		return false
	}
}

// ArithInst is a three-address arithmetic instruction as produced by
// instruction selection: Dest, LHS and RHS are independent until
// RegAlloc's three-to-two-address lowering pass forces Dest == LHS (or
// swaps LHS/RHS for a commutative op, or emits a scratch copy).
type ArithInst struct {
	instBase
	Op       ArithOp
	LHS, RHS Value
}

func (i *ArithInst) SetDest(d *Register, n int) { setDestOn(i, &i.instBase, d, n) }
func (i *ArithInst) ClearDest()                 { clearDestOn(i, &i.instBase) }
func (i *ArithInst) Operands() []Value          { return []Value{i.LHS, i.RHS} }
func (i *ArithInst) SetOperandAt(n int, v Value) {
	switch n {
	case 0:
		setOperandAt(i, &i.LHS, v)
	case 1:
		setOperandAt(i, &i.RHS, v)
	}
}
func (i *ArithInst) ReplaceOperand(old, new Value) {
	replaceOperandSlots(i, []*Value{&i.LHS, &i.RHS}, old, new)
}
func (i *ArithInst) String() string {
	return fmt.Sprintf("%s = %s %s, %s", regName(i.Dest()), i.Op, valStr(i.LHS), valStr(i.RHS))
}

// NewArithInst constructs a three-address arithmetic instruction.
func NewArithInst(dest *Register, op ArithOp, lhs, rhs Value, byteWidth int) *ArithInst {
	a := &ArithInst{instBase: instBase{byteWidth: byteWidth}, Op: op}
	a.SetDest(dest, 1)
	a.SetOperandAt(0, lhs)
	a.SetOperandAt(1, rhs)
	return a
}

// ConvOp enumerates the width and representation conversion opcodes,
// mirroring internal/ir.ConvOp one level lower.
type ConvOp string

const (
	ConvTrunc   ConvOp = "trunc"
	ConvZExt    ConvOp = "zext"
	ConvSExt    ConvOp = "sext"
	ConvBitcast ConvOp = "bitcast"
)

// ConvertInst is a width or representation conversion.
type ConvertInst struct {
	instBase
	Op  ConvOp
	Src Value
}

func (i *ConvertInst) SetDest(d *Register, n int) { setDestOn(i, &i.instBase, d, n) }
func (i *ConvertInst) ClearDest()                 { clearDestOn(i, &i.instBase) }
func (i *ConvertInst) Operands() []Value          { return []Value{i.Src} }
func (i *ConvertInst) SetOperandAt(n int, v Value) {
	if n == 0 {
		setOperandAt(i, &i.Src, v)
	}
}
func (i *ConvertInst) ReplaceOperand(old, new Value) {
	replaceOperandSlots(i, []*Value{&i.Src}, old, new)
}
func (i *ConvertInst) String() string {
	return fmt.Sprintf("%s = %s %s, %d", regName(i.Dest()), i.Op, valStr(i.Src), i.byteWidth)
}

// NewConvertInst constructs a ConvertInst.
func NewConvertInst(dest *Register, op ConvOp, src Value, byteWidth int) *ConvertInst {
	c := &ConvertInst{instBase: instBase{byteWidth: byteWidth}, Op: op}
	c.SetDest(dest, 1)
	c.SetOperandAt(0, src)
	return c
}

// SelectInst picks Then or Else based on Cond without branching. It exists
// only before SSA destruction: destroy(SelectInst) in internal/codegen
// rewrites every SelectInst into an unconditional CopyInst of Then plus a
// CondCopyInst of Else under the inverted condition (spec.md §4.7 step 5),
// the same shape the original DestroySSA.cc produces.
type SelectInst struct {
	instBase
	Cond       Condition
	Flag       Value
	Then, Else Value
}

func (i *SelectInst) SetDest(d *Register, n int) { setDestOn(i, &i.instBase, d, n) }
func (i *SelectInst) ClearDest()                 { clearDestOn(i, &i.instBase) }
func (i *SelectInst) Operands() []Value          { return []Value{i.Flag, i.Then, i.Else} }
func (i *SelectInst) SetOperandAt(n int, v Value) {
	switch n {
	case 0:
		setOperandAt(i, &i.Flag, v)
	case 1:
		setOperandAt(i, &i.Then, v)
	case 2:
		setOperandAt(i, &i.Else, v)
	}
}
func (i *SelectInst) ReplaceOperand(old, new Value) {
	replaceOperandSlots(i, []*Value{&i.Flag, &i.Then, &i.Else}, old, new)
}
func (i *SelectInst) String() string {
	return fmt.Sprintf("%s = select %s %s, %s, %s", regName(i.Dest()), i.Cond, valStr(i.Flag), valStr(i.Then), valStr(i.Else))
}

// NewSelectInst constructs a SelectInst.
func NewSelectInst(dest *Register, cond Condition, flag, then, els Value, byteWidth int) *SelectInst {
	s := &SelectInst{instBase: instBase{byteWidth: byteWidth}, Cond: cond}
	s.SetDest(dest, 1)
	s.SetOperandAt(0, flag)
	s.SetOperandAt(1, then)
	s.SetOperandAt(2, els)
	return s
}

// Condition is the predicate a CompareInst evaluates, reused by
// CondJumpInst and CondCopyInst to select/invert a branch.
type Condition string

const (
	CondEq  Condition = "eq"
	CondNe  Condition = "ne"
	CondULt Condition = "ult"
	CondULe Condition = "ule"
	CondUGt Condition = "ugt"
	CondUGe Condition = "uge"
	CondSLt Condition = "slt"
	CondSLe Condition = "sle"
	CondSGt Condition = "sgt"
	CondSGe Condition = "sge"
)

// Inverse returns the logically negated condition.
func (c Condition) Inverse() Condition {
	switch c {
	case CondEq:
		return CondNe
	case CondNe:
		return CondEq
	case CondULt:
		return CondUGe
	case CondULe:
		return CondUGt
	case CondUGt:
		return CondULe
	case CondUGe:
		return CondULt
	case CondSLt:
		return CondSGe
	case CondSLe:
		return CondSGt
	case CondSGt:
		return CondSLe
	case CondSGe:
		return CondSLt
	}
	return c
}

// CompareInst evaluates Cond over LHS and RHS and writes a 1-byte boolean
// into Dest.
type CompareInst struct {
	instBase
	Cond     Condition
	LHS, RHS Value
}

func (i *CompareInst) SetDest(d *Register, n int) { setDestOn(i, &i.instBase, d, n) }
func (i *CompareInst) ClearDest()                 { clearDestOn(i, &i.instBase) }
func (i *CompareInst) Operands() []Value          { return []Value{i.LHS, i.RHS} }
func (i *CompareInst) SetOperandAt(n int, v Value) {
	switch n {
	case 0:
		setOperandAt(i, &i.LHS, v)
	case 1:
		setOperandAt(i, &i.RHS, v)
	}
}
func (i *CompareInst) ReplaceOperand(old, new Value) {
	replaceOperandSlots(i, []*Value{&i.LHS, &i.RHS}, old, new)
}
func (i *CompareInst) String() string {
	return fmt.Sprintf("%s = cmp %s %s, %s", regName(i.Dest()), i.Cond, valStr(i.LHS), valStr(i.RHS))
}

// NewCompareInst constructs a CompareInst.
func NewCompareInst(dest *Register, cond Condition, lhs, rhs Value) *CompareInst {
	c := &CompareInst{instBase: instBase{byteWidth: 1}, Cond: cond}
	c.SetDest(dest, 1)
	c.SetOperandAt(0, lhs)
	c.SetOperandAt(1, rhs)
	return c
}

// TestInst tests Operand against zero with no destination, used to branch
// on a plain register value rather than a freshly computed comparison.
type TestInst struct {
	instBase
	Operand Value
}

func (i *TestInst) SetDest(d *Register, n int) { setDestOn(i, &i.instBase, d, n) }
func (i *TestInst) ClearDest()                  { clearDestOn(i, &i.instBase) }
func (i *TestInst) Operands() []Value           { return []Value{i.Operand} }
func (i *TestInst) SetOperandAt(n int, v Value) {
	if n == 0 {
		setOperandAt(i, &i.Operand, v)
	}
}
func (i *TestInst) ReplaceOperand(old, new Value) {
	replaceOperandSlots(i, []*Value{&i.Operand}, old, new)
}
func (i *TestInst) String() string { return "test " + valStr(i.Operand) }

// NewTestInst constructs a TestInst.
func NewTestInst(operand Value) *TestInst {
	t := &TestInst{}
	t.SetOperandAt(0, operand)
	return t
}

// LoadInst reads ByteWidth() bytes from Address into Dest.
type LoadInst struct {
	instBase
	Address MemoryAddress
}

func (i *LoadInst) SetDest(d *Register, n int) { setDestOn(i, &i.instBase, d, n) }
func (i *LoadInst) ClearDest()                 { clearDestOn(i, &i.instBase) }
func (i *LoadInst) Operands() []Value          { return addrOperands(i.Address) }
func (i *LoadInst) SetOperandAt(n int, v Value) { setAddrOperandAt(i, &i.Address, n, v) }
func (i *LoadInst) ReplaceOperand(old, new Value) {
	replaceAddrOperand(i, &i.Address, old, new)
}
func (i *LoadInst) String() string {
	return fmt.Sprintf("%s = load %s, %d", regName(i.Dest()), addrStr(i.Address), i.byteWidth)
}

// NewLoadInst constructs a LoadInst.
func NewLoadInst(dest *Register, addr MemoryAddress, byteWidth int) *LoadInst {
	l := &LoadInst{instBase: instBase{byteWidth: byteWidth}, Address: addr}
	l.SetDest(dest, 1)
	relinkAddr(l, addr)
	return l
}

// StoreInst writes Val to Address.
type StoreInst struct {
	instBase
	Address MemoryAddress
	Val     Value
}

func (i *StoreInst) SetDest(d *Register, n int) { setDestOn(i, &i.instBase, d, n) }
func (i *StoreInst) ClearDest()                 { clearDestOn(i, &i.instBase) }
func (i *StoreInst) Operands() []Value {
	return append(addrOperands(i.Address), i.Val)
}
func (i *StoreInst) SetOperandAt(n int, v Value) {
	addrOps := addrOperandCount(i.Address)
	if n < addrOps {
		setAddrOperandAt(i, &i.Address, n, v)
		return
	}
	if n == addrOps {
		setOperandAt(i, &i.Val, v)
	}
}
func (i *StoreInst) ReplaceOperand(old, new Value) {
	replaceAddrOperand(i, &i.Address, old, new)
	replaceOperandSlots(i, []*Value{&i.Val}, old, new)
}
func (i *StoreInst) String() string {
	return fmt.Sprintf("store %s, %s, %d", addrStr(i.Address), valStr(i.Val), i.byteWidth)
}

// NewStoreInst constructs a StoreInst.
func NewStoreInst(addr MemoryAddress, val Value, byteWidth int) *StoreInst {
	s := &StoreInst{instBase: instBase{byteWidth: byteWidth}, Address: addr}
	relinkAddr(s, addr)
	s.SetOperandAt(addrOperandCount(addr), val)
	return s
}

// LEAInst materializes Address as a plain pointer value in Dest ("load
// effective address"), used when a GEP result is consumed as a value
// instead of folded directly into a load/store's memory operand.
type LEAInst struct {
	instBase
	Address MemoryAddress
}

func (i *LEAInst) SetDest(d *Register, n int) { setDestOn(i, &i.instBase, d, n) }
func (i *LEAInst) ClearDest()                 { clearDestOn(i, &i.instBase) }
func (i *LEAInst) Operands() []Value          { return addrOperands(i.Address) }
func (i *LEAInst) SetOperandAt(n int, v Value) { setAddrOperandAt(i, &i.Address, n, v) }
func (i *LEAInst) ReplaceOperand(old, new Value) {
	replaceAddrOperand(i, &i.Address, old, new)
}
func (i *LEAInst) String() string {
	return fmt.Sprintf("%s = lea %s", regName(i.Dest()), addrStr(i.Address))
}

// NewLEAInst constructs a LEAInst with an 8-byte (pointer-sized) result.
func NewLEAInst(dest *Register, addr MemoryAddress) *LEAInst {
	l := &LEAInst{instBase: instBase{byteWidth: 8}, Address: addr}
	l.SetDest(dest, 1)
	relinkAddr(l, addr)
	return l
}

func addrOperandCount(a MemoryAddress) int {
	if a.DynOffset != nil {
		return 2
	}
	return 1
}

func addrOperands(a MemoryAddress) []Value {
	ops := []Value{addrBaseValue(a)}
	if a.DynOffset != nil {
		ops = append(ops, a.DynOffset)
	}
	return ops
}

func addrBaseValue(a MemoryAddress) Value {
	if a.Base != nil {
		return a.Base
	}
	if a.Global != nil {
		return a.Global
	}
	return nil
}

func setAddrOperandAt(user Instruction, a *MemoryAddress, n int, v Value) {
	switch n {
	case 0:
		if a.Base != nil {
			a.Base.removeUse(user)
		}
		switch base := v.(type) {
		case *Register:
			a.Base = base
			a.Global = nil
			base.addUse(user)
		case *GlobalRef:
			a.Base = nil
			a.Global = base
		default:
			a.Base = nil
			a.Global = nil
		}
	case 1:
		old := a.DynOffset
		r, _ := v.(*Register)
		if old != nil {
			old.removeUse(user)
		}
		a.DynOffset = r
		if r != nil {
			r.addUse(user)
		}
	}
}

func replaceAddrOperand(user Instruction, a *MemoryAddress, old, new Value) {
	newReg, _ := new.(*Register)
	if a.Base != nil && Value(a.Base) == old {
		a.Base.removeUse(user)
		a.Base = newReg
		if newReg != nil {
			newReg.addUse(user)
		}
	}
	if a.DynOffset != nil && Value(a.DynOffset) == old {
		a.DynOffset.removeUse(user)
		a.DynOffset = newReg
		if newReg != nil {
			newReg.addUse(user)
		}
	}
}

func relinkAddr(user Instruction, a MemoryAddress) {
	if a.Base != nil {
		a.Base.addUse(user)
	}
	if a.DynOffset != nil {
		a.DynOffset.addUse(user)
	}
}

func addrStr(a MemoryAddress) string {
	base := "-"
	switch {
	case a.Base != nil:
		base = regName(a.Base)
	case a.Global != nil:
		base = "@" + a.Global.Name
	}
	if a.DynOffset == nil {
		return fmt.Sprintf("[%s + %d]", base, a.ConstOffset)
	}
	return fmt.Sprintf("[%s + %s*%d + %d]", base, regName(a.DynOffset), a.Scale, a.ConstOffset)
}

// CallInst calls Callee, which is either a *CalleeRef (direct, resolved by
// name at link time) or a *Register (indirect). Clobbers lists the callee
// registers this call clobbers, populated by DestroySSA step 6 once the
// callee register bank is finalized.
type CallInst struct {
	instBase
	Callee   Value
	Args     []Value
	Clobbers []*Register
	// RegisterOffset is the hardware-register index of this call's callee
	// frame, set by RegAlloc's allocateCalleeRegisters once callee
	// registers have been placed above the function's own hardware bank.
	RegisterOffset int
}

func (i *CallInst) SetDest(d *Register, n int) { setDestOn(i, &i.instBase, d, n) }
func (i *CallInst) ClearDest()                 { clearDestOn(i, &i.instBase) }
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
	replaceOperandSlots(i, slots, old, new)
}

// IsNative reports whether this is a direct (named) call, as opposed to an
// indirect call through a register.
func (i *CallInst) IsNative() bool {
	_, ok := i.Callee.(*CalleeRef)
	return ok
}

func (i *CallInst) String() string {
	name := valStr(i.Callee)
	if len(i.Dests()) == 0 {
		return fmt.Sprintf("call %s(%s)", name, valListStr(i.Args))
	}
	return fmt.Sprintf("%s = call %s(%s)", regName(i.Dest()), name, valListStr(i.Args))
}

// SetArguments replaces the full argument list without touching Dest,
// matching DestroySSA's rewrite of a call's operand list to point at
// materialized callee registers (spec.md §4.7 step 2).
func (i *CallInst) SetArguments(args []Value) {
	for _, a := range i.Args {
		unlinkOperand(i, a)
	}
	i.Args = append([]Value(nil), args...)
	for _, a := range i.Args {
		linkOperand(i, a)
	}
}

// NewCallInst constructs a CallInst.
func NewCallInst(dest *Register, numDests int, callee Value, args []Value, byteWidth int) *CallInst {
	c := &CallInst{instBase: instBase{byteWidth: byteWidth}}
	c.SetDest(dest, numDests)
	setOperandAt(c, &c.Callee, callee)
	c.Args = make([]Value, len(args))
	for k, a := range args {
		setOperandAt(c, &c.Args[k], a)
	}
	return c
}

// ReturnInst terminates a function, carrying zero or more return operands
// (one per return-value register).
type ReturnInst struct {
	instBase
	Vals []Value
}

func (i *ReturnInst) SetDest(d *Register, n int) { setDestOn(i, &i.instBase, d, n) }
func (i *ReturnInst) ClearDest()                 { clearDestOn(i, &i.instBase) }
func (i *ReturnInst) Operands() []Value          { return i.Vals }
func (i *ReturnInst) SetOperandAt(n int, v Value) {
	if n < len(i.Vals) {
		setOperandAt(i, &i.Vals[n], v)
	}
}
func (i *ReturnInst) ReplaceOperand(old, new Value) {
	slots := make([]*Value, len(i.Vals))
	for k := range i.Vals {
		slots[k] = &i.Vals[k]
	}
	replaceOperandSlots(i, slots, old, new)
}
func (i *ReturnInst) ClearOperands() {
	for _, v := range i.Vals {
		unlinkOperand(i, v)
	}
	i.Vals = nil
}
func (i *ReturnInst) IsTerminator() bool { return true }
func (i *ReturnInst) String() string     { return "ret " + valListStr(i.Vals) }

// NewReturnInst constructs a ReturnInst.
func NewReturnInst(vals []Value) *ReturnInst {
	r := &ReturnInst{}
	r.Vals = make([]Value, len(vals))
	for k, v := range vals {
		setOperandAt(r, &r.Vals[k], v)
	}
	return r
}

// JumpInst is an unconditional control-flow transfer, also used by
// DestroySSA's direct tail-call shaping (spec.md §4.7 step 2: "the call and
// the return are replaced by an unconditional jump to the callee, which
// must end the block").
type JumpInst struct {
	instBase
	Target Value // *BasicBlock for an intra-function jump, *CalleeRef for a tail call
}

func (i *JumpInst) SetDest(d *Register, n int) { setDestOn(i, &i.instBase, d, n) }
func (i *JumpInst) ClearDest()                 { clearDestOn(i, &i.instBase) }
func (i *JumpInst) Operands() []Value          { return []Value{i.Target} }
func (i *JumpInst) SetOperandAt(n int, v Value) {
	if n == 0 {
		i.Target = v
	}
}
func (i *JumpInst) ReplaceOperand(old, new Value) {
	if i.Target == old {
		i.Target = new
	}
}
func (i *JumpInst) IsTerminator() bool { return true }
func (i *JumpInst) String() string     { return "jmp " + valStr(i.Target) }

// NewJumpInst constructs a JumpInst.
func NewJumpInst(target Value) *JumpInst { return &JumpInst{Target: target} }

// CondJumpInst branches to IfTrue or IfFalse according to Cond; Flag is the
// register the condition reads if this jump was lowered directly from a
// branch on a register value rather than from an immediately-preceding
// CompareInst.
type CondJumpInst struct {
	instBase
	Cond            Condition
	Flag            Value
	IfTrue, IfFalse *BasicBlock
}

func (i *CondJumpInst) SetDest(d *Register, n int) { setDestOn(i, &i.instBase, d, n) }
func (i *CondJumpInst) ClearDest()                 { clearDestOn(i, &i.instBase) }
func (i *CondJumpInst) Operands() []Value          { return []Value{i.Flag, i.IfTrue, i.IfFalse} }
func (i *CondJumpInst) SetOperandAt(n int, v Value) {
	if n == 0 {
		setOperandAt(i, &i.Flag, v)
	}
}
func (i *CondJumpInst) ReplaceOperand(old, new Value) {
	if i.Flag == old {
		setOperandAt(i, &i.Flag, new)
		return
	}
	if bb, ok := new.(*BasicBlock); ok {
		if Value(i.IfTrue) == old {
			i.IfTrue = bb
		}
		if Value(i.IfFalse) == old {
			i.IfFalse = bb
		}
	}
}
func (i *CondJumpInst) IsTerminator() bool { return true }
func (i *CondJumpInst) String() string {
	return fmt.Sprintf("jmp.%s %s, %s, %s", i.Cond, valStr(i.Flag), i.IfTrue.Label, i.IfFalse.Label)
}

// NewCondJumpInst constructs a CondJumpInst.
func NewCondJumpInst(cond Condition, flag Value, ifTrue, ifFalse *BasicBlock) *CondJumpInst {
	j := &CondJumpInst{Cond: cond, IfTrue: ifTrue, IfFalse: ifFalse}
	j.SetOperandAt(0, flag)
	return j
}

// PhiIncoming is one (predecessor, value) pair of an MIR phi, lowered
// verbatim from the IR phi (spec.md §4.6: "Phi nodes lower verbatim").
type PhiIncoming struct {
	Block *BasicBlock
	Value Value
}

// PhiInst is an MIR phi; DestroySSA (spec.md §4.7 step 4) is the only pass
// that eliminates these, by construction.
type PhiInst struct {
	instBase
	Incoming []PhiIncoming
}

func (i *PhiInst) SetDest(d *Register, n int) { setDestOn(i, &i.instBase, d, n) }
func (i *PhiInst) ClearDest()                 { clearDestOn(i, &i.instBase) }
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
func (i *PhiInst) OperandAt(n int) Value { return i.Incoming[n].Value }
func (i *PhiInst) String() string {
	s := fmt.Sprintf("%s = phi", regName(i.Dest()))
	for _, in := range i.Incoming {
		s += fmt.Sprintf(" [%s: %s]", in.Block.Label, valStr(in.Value))
	}
	return s
}

// NewPhiInst constructs a PhiInst.
func NewPhiInst(dest *Register, byteWidth int, incoming []PhiIncoming) *PhiInst {
	p := &PhiInst{instBase: instBase{byteWidth: byteWidth}, Incoming: append([]PhiIncoming(nil), incoming...)}
	p.SetDest(dest, 1)
	for k := range p.Incoming {
		linkOperand(p, p.Incoming[k].Value)
	}
	return p
}

func regName(r *Register) string {
	if r == nil {
		return "-"
	}
	return fmt.Sprintf("%%%s%d", r.Kind, r.Index)
}

func valStr(v Value) string {
	switch x := v.(type) {
	case nil:
		return "undef"
	case *Register:
		return regName(x)
	case *Constant:
		return fmt.Sprintf("%d", x.Val)
	case *UndefValue:
		return "undef"
	case *CalleeRef:
		return "@" + x.Name
	case *GlobalRef:
		return "@" + x.Name
	case *BasicBlock:
		return "%" + x.Label
	default:
		return fmt.Sprintf("%v", v)
	}
}

func valListStr(vs []Value) string {
	s := ""
	for n, v := range vs {
		if n > 0 {
			s += ", "
		}
		s += valStr(v)
	}
	return s
}
