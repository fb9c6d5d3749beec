package codegen

import (
	"fmt"

	"scatha/internal/ir"
	"scatha/internal/mir"
)

// Resolver performs instruction selection: lowering one internal/ir.Module
// into an internal/mir.Module. It is grounded directly on the original
// implementation's lib/CodeGen/Resolver.cc: a `valueMap` from SSA values to
// destination registers, a `nextRegister`-style allocator, and a
// `computeAddress`/`computeGEP` routine that folds constant-offset chains
// into a single immediate up to TargetInfo's limit, folding the address into
// a new base register (an LEA) whenever the next offset would exceed it.
type Resolver struct {
	ctx *ir.Context
	ti  TargetInfo

	funcs   map[*ir.Function]*mir.Function
	globals map[*ir.GlobalVariable]*mir.GlobalRef
	foreign map[*ir.ForeignFunction]*mir.CalleeRef

	// per-function state, reset by resolveFunction
	mf       *mir.Function
	blockMap map[*ir.BasicBlock]*mir.BasicBlock
	valueMap map[ir.Value]mir.Value
	slots    map[*ir.AllocaInst]int
}

// Resolve lowers mod into a fresh MIR module under target ti.
func Resolve(mod *ir.Module, ti TargetInfo) *mir.Module {
	r := &Resolver{
		ctx:     mod.Ctx,
		ti:      ti,
		funcs:   map[*ir.Function]*mir.Function{},
		globals: map[*ir.GlobalVariable]*mir.GlobalRef{},
		foreign: map[*ir.ForeignFunction]*mir.CalleeRef{},
	}
	mm := mir.NewModule(mod.Name)
	for _, g := range mod.Globals {
		r.globals[g] = &mir.GlobalRef{Name: g.Name}
	}
	for _, ff := range mod.ForeignFunctions {
		r.foreign[ff] = &mir.CalleeRef{Name: ff.Name, Foreign: true}
	}
	for _, f := range mod.Functions {
		numRet := 0
		if f.RetType.Size() > 0 {
			numRet = wordsFor(f.RetType)
		}
		r.funcs[f] = mm.NewFunction(f.Name, len(f.Params), numRet)
	}
	for _, f := range mod.Functions {
		if f.Entry() != nil {
			r.resolveFunction(f)
		}
	}
	return mm
}

func wordsFor(t ir.Type) int {
	if t.Size() == 0 {
		return 0
	}
	return (t.Size() + 7) / 8
}

func (r *Resolver) resolveFunction(f *ir.Function) {
	r.mf = r.funcs[f]
	r.blockMap = map[*ir.BasicBlock]*mir.BasicBlock{}
	r.valueMap = map[ir.Value]mir.Value{}
	r.slots = map[*ir.AllocaInst]int{}

	for i, p := range f.Params {
		r.valueMap[p] = r.mf.Params[i]
	}
	for _, bb := range f.Blocks {
		r.blockMap[bb] = r.mf.NewBlock()
	}

	// Pass 1: reserve frame slots for every alloca and a destination
	// register (or register chain, for multi-word results) for every
	// other instruction result, ahead of lowering any instruction body.
	// This lets phi incoming values and loop back-edges reference
	// registers for instructions the walk has not reached yet, the same
	// problem valueMap solves in Resolver.cc one instruction at a time
	// because that walk never crosses a back edge without a phi.
	for _, bb := range f.Blocks {
		for _, inst := range bb.Insts {
			if alloca, ok := inst.(*ir.AllocaInst); ok {
				r.reserveSlot(alloca)
				continue
			}
			if _, ok := inst.(*ir.GEPInst); ok {
				continue // materialized lazily by materializeGEP on first use
			}
			res := inst.Result()
			if res == nil {
				continue
			}
			r.valueMap[res] = r.allocDest(res.Type())
		}
	}

	// Pass 2: lower every instruction body using the fully populated
	// valueMap and slot table.
	for _, bb := range f.Blocks {
		mbb := r.blockMap[bb]
		for _, inst := range bb.Insts {
			r.lower(mbb, inst)
		}
	}
}

func (r *Resolver) allocDest(t ir.Type) *mir.Register {
	n := wordsFor(t)
	if n == 0 {
		n = 1
	}
	first := r.mf.SSARegs.New()
	for k := 1; k < n; k++ {
		r.mf.SSARegs.New()
	}
	return first
}

func (r *Resolver) reserveSlot(a *ir.AllocaInst) {
	size := a.AllocType.Size()
	align := a.AllocType.Align()
	off := alignUp(r.mf.FrameSize, align)
	r.slots[a] = off
	r.mf.FrameSize = off + size
}

func alignUp(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}

// lower appends the MIR form of inst to mbb.
func (r *Resolver) lower(mbb *mir.BasicBlock, inst ir.Instruction) {
	switch i := inst.(type) {
	case *ir.AllocaInst:
		r.lowerAlloca(mbb, i)
	case *ir.LoadInst:
		r.lowerLoad(mbb, i)
	case *ir.StoreInst:
		r.lowerStore(mbb, i)
	case *ir.GEPInst:
		// GEP by itself computes an address but does not touch memory;
		// only materialize it into a register if some later, non-memory
		// use forces it (checked lazily via resolveValue), so skip here.
	case *ir.BinaryInst:
		r.lowerBinary(mbb, i)
	case *ir.CompareInst:
		r.lowerCompare(mbb, i)
	case *ir.CallInst:
		r.lowerCall(mbb, i)
	case *ir.PhiInst:
		r.lowerPhi(mbb, i)
	case *ir.SelectInst:
		r.lowerSelect(mbb, i)
	case *ir.ConvertInst:
		r.lowerConvert(mbb, i)
	case *ir.ReturnInst:
		r.lowerReturn(mbb, i)
	case *ir.GotoInst:
		mbb.PushBack(mir.NewJumpInst(r.blockMap[i.Target]))
	case *ir.BranchInst:
		r.lowerBranch(mbb, i)
	default:
		panic(fmt.Sprintf("codegen: unhandled ir instruction %T", inst))
	}
}

func (r *Resolver) dest(res ir.Value) *mir.Register {
	return r.valueMap[res].(*mir.Register)
}

// resolveValue lowers an arbitrary ir.Value reference to an mir.Value
// operand, materializing constants and addresses as needed. Multi-word
// values resolve to their first register; callers that need the whole
// chain walk it with Register.Next().
func (r *Resolver) resolveValue(v ir.Value) mir.Value {
	switch x := v.(type) {
	case nil:
		return mir.Undef()
	case *ir.IntConstant:
		return &mir.Constant{Val: x.Val, Bytes: x.Ty.Size()}
	case *ir.FloatConstant:
		bytes := 4
		if x.Ty.Precision == ir.Double {
			bytes = 8
		}
		return &mir.Constant{Val: x.Bits, Bytes: bytes}
	case *ir.NullConstant:
		return &mir.Constant{Val: 0, Bytes: 8}
	case *ir.UndefConstant:
		return mir.Undef()
	case *ir.GlobalVariable:
		return r.globals[x]
	case *ir.Function:
		return &mir.CalleeRef{Name: x.Name}
	case *ir.ForeignFunction:
		return r.foreign[x]
	default:
		if mv, ok := r.valueMap[v]; ok {
			return mv
		}
		panic(fmt.Sprintf("codegen: no register allocated for %v", v))
	}
}

// resolveOperand is resolveValue extended to cover the three value kinds
// that need a basic block to materialize into: a GEP address taken as a
// plain pointer value, an alloca taken as a plain pointer value, and a
// record constant.
func (r *Resolver) resolveOperand(mbb *mir.BasicBlock, v ir.Value) mir.Value {
	switch x := v.(type) {
	case *ir.GEPInst:
		return r.materializeGEP(mbb, x)
	case *ir.AllocaInst:
		return r.materializeAlloca(mbb, x)
	case *ir.RecordConstant:
		return r.materializeRecordConstant(mbb, x)
	default:
		return r.resolveValue(v)
	}
}

// resolveToRegister is resolveValue, but forces the result into a register
// (materializing a constant or a folded address with a CopyInst/LEAInst
// first), for operand positions MIR requires a register in (a memory
// address base, a dynamic GEP index, an indirect call callee).
func (r *Resolver) resolveToRegister(mbb *mir.BasicBlock, v ir.Value) *mir.Register {
	if gep, ok := v.(*ir.GEPInst); ok {
		return r.materializeGEP(mbb, gep)
	}
	if alloca, ok := v.(*ir.AllocaInst); ok {
		return r.materializeAlloca(mbb, alloca)
	}
	if rec, ok := v.(*ir.RecordConstant); ok {
		return r.materializeRecordConstant(mbb, rec)
	}
	mv := r.resolveValue(v)
	if reg, ok := mv.(*mir.Register); ok {
		return reg
	}
	width := v.Type().Size()
	dest := r.mf.SSARegs.New()
	mbb.PushBack(mir.NewCopyInst(dest, mv, width))
	return dest
}

func (r *Resolver) materializeAlloca(mbb *mir.BasicBlock, a *ir.AllocaInst) *mir.Register {
	if existing, ok := r.valueMap[a]; ok {
		return existing.(*mir.Register)
	}
	dest := r.mf.SSARegs.New()
	addr := mir.MemoryAddress{Base: r.mf.FramePtr, ConstOffset: r.slots[a]}
	mbb.PushBack(mir.NewLEAInst(dest, addr))
	r.valueMap[a] = dest
	return dest
}

func (r *Resolver) lowerAlloca(mbb *mir.BasicBlock, a *ir.AllocaInst) {
	r.materializeAlloca(mbb, a)
}

// materializeRecordConstant lowers a record (struct or array) constant into
// a chain of consecutive registers, one 8-byte slice of the constant's
// flattened byte image per register, each written by its own MIR copy
// (spec.md §4.6: "Record and array constants lower to a sequence of MIR copy
// instructions, one per 8-byte slice"). The returned register is the first
// of the chain; later slices sit at Register.Next() of it, the same
// multi-word convention allocDest uses for ordinary multi-word results.
func (r *Resolver) materializeRecordConstant(mbb *mir.BasicBlock, rec *ir.RecordConstant) *mir.Register {
	buf := flattenConstant(rec)
	n := (len(buf) + 7) / 8
	if n == 0 {
		n = 1
	}
	first := r.mf.SSARegs.New()
	for k := 0; k < n; k++ {
		dest := first
		if k > 0 {
			dest = r.mf.SSARegs.New()
		}
		off := k * 8
		width := len(buf) - off
		if width > 8 {
			width = 8
		}
		mbb.PushBack(mir.NewCopyInst(dest, &mir.Constant{Val: wordAt(buf, off), Bytes: width}, width))
	}
	return first
}

// flattenConstant lays out c's byte image into a buffer of c.Type().Size()
// bytes, little-endian, recursing through struct members (at their declared
// offsets) and array elements; null/undef constants contribute their
// all-zero region implicitly.
func flattenConstant(c ir.Constant) []byte {
	buf := make([]byte, c.Type().Size())
	writeConstant(buf, 0, c)
	return buf
}

func writeConstant(buf []byte, offset int, c ir.Constant) {
	switch x := c.(type) {
	case *ir.IntConstant:
		putLittleEndian(buf[offset:], x.Val, x.Ty.Size())
	case *ir.FloatConstant:
		putLittleEndian(buf[offset:], x.Bits, x.Ty.Size())
	case *ir.NullConstant, *ir.UndefConstant:
		// buf is already zeroed.
	case *ir.RecordConstant:
		switch t := x.Ty.(type) {
		case *ir.StructType:
			for i, m := range t.Members {
				writeConstant(buf, offset+m.Offset, x.Elements[i])
			}
		case *ir.ArrayType:
			for i, el := range x.Elements {
				writeConstant(buf, offset+i*t.Elem.Size(), el)
			}
		}
	}
}

func putLittleEndian(buf []byte, v uint64, n int) {
	for i := 0; i < n && i < len(buf); i++ {
		buf[i] = byte(v >> (8 * i))
	}
}

func wordAt(buf []byte, offset int) uint64 {
	var v uint64
	for i := 0; i < 8 && offset+i < len(buf); i++ {
		v |= uint64(buf[offset+i]) << (8 * i)
	}
	return v
}

// computeAddress folds a (possibly nested) GEP chain into a MemoryAddress,
// mirroring computeAddress/computeGEP in Resolver.cc: constant indices
// accumulate into ConstOffset; at most one dynamic index per address is
// carried directly as DynOffset/Scale, a second one forces the first to be
// materialized into a new base register via LEA. A folded constant offset
// exceeding the target's immediate limit is likewise flushed into the base.
func (r *Resolver) computeAddress(mbb *mir.BasicBlock, v ir.Value) mir.MemoryAddress {
	gep, ok := v.(*ir.GEPInst)
	if !ok {
		return mir.MemoryAddress{Base: r.resolveToRegister(mbb, v)}
	}
	addr := r.computeAddress(mbb, gep.Base)
	curType := gep.BaseType
	for _, idx := range gep.Indices {
		if idx.Value == nil {
			off, next := memberOffset(curType, idx.Const)
			addr.ConstOffset += off
			curType = next
			continue
		}
		if addr.DynOffset != nil {
			addr = mir.MemoryAddress{Base: r.flushAddress(mbb, addr)}
		}
		addr.DynOffset = r.resolveToRegister(mbb, idx.Value)
		addr.Scale = elementType(curType).Size()
		curType = elementType(curType)
	}
	if addr.ConstOffset > r.ti.ImmediateOffsetLimit {
		base := r.flushAddress(mbb, addr)
		addr = mir.MemoryAddress{Base: base}
	}
	return addr
}

// flushAddress materializes a partial address into a fresh base register
// via LEA, used when folding hits the dynamic-index or immediate-offset
// limit and must start a new base.
func (r *Resolver) flushAddress(mbb *mir.BasicBlock, addr mir.MemoryAddress) *mir.Register {
	dest := r.mf.SSARegs.New()
	mbb.PushBack(mir.NewLEAInst(dest, addr))
	return dest
}

func (r *Resolver) materializeGEP(mbb *mir.BasicBlock, g *ir.GEPInst) *mir.Register {
	if existing, ok := r.valueMap[g]; ok {
		if reg, ok := existing.(*mir.Register); ok {
			return reg
		}
	}
	addr := r.computeAddress(mbb, g)
	dest := r.mf.SSARegs.New()
	mbb.PushBack(mir.NewLEAInst(dest, addr))
	r.valueMap[g] = dest
	return dest
}

// memberOffset returns the byte offset of field idx within an
// aggregate/array of type t, and the element type at that position.
func memberOffset(t ir.Type, idx int) (int, ir.Type) {
	switch tt := t.(type) {
	case *ir.StructType:
		return tt.Members[idx].Offset, tt.Members[idx].Type
	case *ir.ArrayType:
		return idx * tt.Elem.Size(), tt.Elem
	default:
		return 0, t
	}
}

func elementType(t ir.Type) ir.Type {
	if at, ok := t.(*ir.ArrayType); ok {
		return at.Elem
	}
	return t
}

func (r *Resolver) lowerLoad(mbb *mir.BasicBlock, i *ir.LoadInst) {
	addr := r.computeAddress(mbb, i.Address)
	dest := r.dest(i.Result())
	mbb.PushBack(mir.NewLoadInst(dest, addr, i.LoadTy.Size()))
}

func (r *Resolver) lowerStore(mbb *mir.BasicBlock, i *ir.StoreInst) {
	addr := r.computeAddress(mbb, i.Address)
	val := r.resolveOperand(mbb, i.Val)
	mbb.PushBack(mir.NewStoreInst(addr, val, i.Val.Type().Size()))
}

var binOpMap = map[ir.BinaryOp]mir.ArithOp{
	ir.OpAdd:  mir.ArithAdd,
	ir.OpSub:  mir.ArithSub,
	ir.OpMul:  mir.ArithMul,
	ir.OpUDiv: mir.ArithUDiv,
	ir.OpSDiv: mir.ArithSDiv,
	ir.OpURem: mir.ArithURem,
	ir.OpSRem: mir.ArithSRem,
	ir.OpShl:  mir.ArithShl,
	ir.OpLShr: mir.ArithLShr,
	ir.OpAShr: mir.ArithAShr,
	ir.OpAnd:  mir.ArithAnd,
	ir.OpOr:   mir.ArithOr,
	ir.OpXor:  mir.ArithXor,
	ir.OpFAdd: mir.ArithFAdd,
	ir.OpFSub: mir.ArithFSub,
	ir.OpFMul: mir.ArithFMul,
	ir.OpFDiv: mir.ArithFDiv,
}

func (r *Resolver) lowerBinary(mbb *mir.BasicBlock, i *ir.BinaryInst) {
	lhs := r.resolveOperand(mbb, i.LHS)
	rhs := r.resolveOperand(mbb, i.RHS)
	dest := r.dest(i.Result())
	mbb.PushBack(mir.NewArithInst(dest, binOpMap[i.Op], lhs, rhs, i.Ty.Size()))
}

var cmpPredMap = map[ir.CmpPred]mir.Condition{
	ir.CmpEq:  mir.CondEq,
	ir.CmpNe:  mir.CondNe,
	ir.CmpULt: mir.CondULt,
	ir.CmpULe: mir.CondULe,
	ir.CmpUGt: mir.CondUGt,
	ir.CmpUGe: mir.CondUGe,
	ir.CmpSLt: mir.CondSLt,
	ir.CmpSLe: mir.CondSLe,
	ir.CmpSGt: mir.CondSGt,
	ir.CmpSGe: mir.CondSGe,
}

func (r *Resolver) lowerCompare(mbb *mir.BasicBlock, i *ir.CompareInst) {
	lhs := r.resolveOperand(mbb, i.LHS)
	rhs := r.resolveOperand(mbb, i.RHS)
	dest := r.dest(i.Result())
	mbb.PushBack(mir.NewCompareInst(dest, cmpPredMap[i.Pred], lhs, rhs))
}

func (r *Resolver) lowerCall(mbb *mir.BasicBlock, i *ir.CallInst) {
	var callee mir.Value
	switch c := i.Callee.(type) {
	case *ir.Function:
		callee = &mir.CalleeRef{Name: c.Name}
	case *ir.ForeignFunction:
		callee = r.foreign[c]
	default:
		callee = r.resolveToRegister(mbb, i.Callee)
	}
	args := make([]mir.Value, len(i.Args))
	for k, a := range i.Args {
		args[k] = r.resolveOperand(mbb, a)
	}
	var dest *mir.Register
	numDests := 0
	if i.HasResult {
		dest = r.dest(i.Result())
		numDests = wordsFor(i.Ty)
	}
	width := 0
	if i.HasResult {
		width = i.Ty.Size()
	}
	call := mir.NewCallInst(dest, numDests, callee, args, width)
	mbb.PushBack(call)
}

func (r *Resolver) lowerPhi(mbb *mir.BasicBlock, i *ir.PhiInst) {
	dest := r.dest(i.Result())
	incoming := make([]mir.PhiIncoming, len(i.Incoming))
	for k, in := range i.Incoming {
		incoming[k] = mir.PhiIncoming{Block: r.blockMap[in.Block], Value: r.resolveOperand(mbb, in.Value)}
	}
	mbb.PushBack(mir.NewPhiInst(dest, i.Ty.Size(), incoming))
}

func (r *Resolver) lowerSelect(mbb *mir.BasicBlock, i *ir.SelectInst) {
	flag := r.resolveOperand(mbb, i.Cond)
	then := r.resolveOperand(mbb, i.Then)
	els := r.resolveOperand(mbb, i.Else)
	dest := r.dest(i.Result())
	mbb.PushBack(mir.NewSelectInst(dest, mir.CondNe, flag, then, els, i.Ty.Size()))
}

var convOpMap = map[ir.ConvOp]mir.ConvOp{
	ir.OpTrunc:   mir.ConvTrunc,
	ir.OpZExt:    mir.ConvZExt,
	ir.OpSExt:    mir.ConvSExt,
	ir.OpBitcast: mir.ConvBitcast,
}

func (r *Resolver) lowerConvert(mbb *mir.BasicBlock, i *ir.ConvertInst) {
	src := r.resolveOperand(mbb, i.Src)
	dest := r.dest(i.Result())
	mbb.PushBack(mir.NewConvertInst(dest, convOpMap[i.Op], src, i.Ty.Size()))
}

func (r *Resolver) lowerReturn(mbb *mir.BasicBlock, i *ir.ReturnInst) {
	if i.Val == nil {
		mbb.PushBack(mir.NewReturnInst(nil))
		return
	}
	mbb.PushBack(mir.NewReturnInst([]mir.Value{r.resolveOperand(mbb, i.Val)}))
}

func (r *Resolver) lowerBranch(mbb *mir.BasicBlock, i *ir.BranchInst) {
	flag := r.resolveOperand(mbb, i.Cond)
	mbb.PushBack(mir.NewTestInst(flag))
	mbb.PushBack(mir.NewCondJumpInst(mir.CondNe, flag, r.blockMap[i.IfTrue], r.blockMap[i.IfFalse]))
}
