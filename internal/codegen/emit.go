package codegen

import (
	"encoding/binary"
	"fmt"

	"scatha/internal/mir"
)

// Program is the result of assembling one MIR module: a flat byte stream
// plus the symbol and unresolved-reference tables a linker needs to patch
// it, matching spec.md §4.9's assembler contract. This package does not
// implement the virtual machine the stream ultimately targets; a record's
// byte shape is only required to be stable and self-describing enough for
// internal/driver's archive writers and this package's own tests to round
// trip, not to match any particular VM's real opcode encoding.
type Program struct {
	Code []byte
	// Symbols maps every function name defined in this module to its byte
	// offset into Code.
	Symbols map[string]int
	// Unresolved lists every call target this module does not itself
	// define (other functions, foreign functions), by the byte offset at
	// which the call's tagged callee-name operand begins.
	Unresolved []UnresolvedRef
}

// UnresolvedRef is one call site whose target is not defined in this
// module and must be patched in by the linker.
type UnresolvedRef struct {
	Symbol string
	Offset int
}

// opcode tags one assembled instruction record; values are assigned in
// declaration order and carry no meaning outside this package.
type opcode uint8

const (
	opCopy opcode = iota
	opCondCopy
	opArith
	opCompare
	opTest
	opLoad
	opStore
	opLEA
	opCall
	opReturn
	opJump
	opCondJump
	opTerminate
)

// Emit assembles m into a Program, linearizing each function's blocks with
// a greedy fall-through-minimizing order, then encoding one record per
// instruction (spec.md §4.9). Every function must already be in the
// hardware register phase.
func Emit(m *mir.Module) (*Program, error) {
	p := &Program{Symbols: map[string]int{}}
	for _, f := range m.Functions {
		requirePhase(f, mir.PhaseHardware, "Emit")
		p.Symbols[f.Name] = len(p.Code)
		if err := emitFunction(p, f); err != nil {
			return nil, fmt.Errorf("emit %s: %w", f.Name, err)
		}
	}
	return p, nil
}

// emitFunction linearizes f's blocks and appends one record per
// instruction to p.Code, recording any call whose callee this module does
// not define as an unresolved reference.
func emitFunction(p *Program, f *mir.Function) error {
	order := linearize(f)
	offsets := map[*mir.BasicBlock]int{}
	// Every intra-function jump target is reserved as an 8-byte zeroed
	// slot as it's encountered and patched in a second pass once every
	// block's final offset is known, since a jump may target a block that
	// has not been emitted yet.
	type pendingJump struct {
		codeOffset int
		target     *mir.BasicBlock
	}
	var pending []pendingJump

	for _, bb := range order {
		offsets[bb] = len(p.Code)
		for _, inst := range bb.Insts {
			switch x := inst.(type) {
			case *mir.JumpInst:
				if bb, ok := x.Target.(*mir.BasicBlock); ok {
					emitByte(p, opJump)
					pending = append(pending, pendingJump{reserveOffset(p), bb})
				} else {
					emitCallTarget(p, opJump, x.Target, f)
				}
			case *mir.CondJumpInst:
				emitByte(p, opCondJump)
				emitString(p, string(x.Cond))
				emitValue(p, x.Flag, f)
				pending = append(pending, pendingJump{reserveOffset(p), x.IfTrue})
				pending = append(pending, pendingJump{reserveOffset(p), x.IfFalse})
			default:
				if err := emitInstruction(p, inst, f); err != nil {
					return err
				}
			}
		}
	}
	for _, pj := range pending {
		binary.LittleEndian.PutUint64(p.Code[pj.codeOffset:], uint64(offsets[pj.target]))
	}
	return nil
}

// linearize orders f's blocks so that every JumpInst's target immediately
// follows it when possible, minimizing emitted unconditional jumps; any
// block order satisfying "at most one jump per terminator" is a valid
// choice per spec.md §4.9, so ties are broken by original block order.
func linearize(f *mir.Function) []*mir.BasicBlock {
	placed := map[*mir.BasicBlock]bool{}
	var order []*mir.BasicBlock
	for _, bb := range f.Blocks {
		if placed[bb] {
			continue
		}
		cur := bb
		for cur != nil && !placed[cur] {
			order = append(order, cur)
			placed[cur] = true
			next := fallthroughTarget(cur)
			if next == nil || placed[next] {
				break
			}
			cur = next
		}
	}
	return order
}

func fallthroughTarget(bb *mir.BasicBlock) *mir.BasicBlock {
	switch t := bb.Terminator().(type) {
	case *mir.JumpInst:
		if target, ok := t.Target.(*mir.BasicBlock); ok {
			return target
		}
	}
	return nil
}

func emitByte(p *Program, b opcode) { p.Code = append(p.Code, byte(b)) }

func emitString(p *Program, s string) {
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(s)))
	p.Code = append(p.Code, lenBuf[:]...)
	p.Code = append(p.Code, s...)
}

func emitInt(p *Program, n int) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(n))
	p.Code = append(p.Code, buf[:]...)
}

// reserveOffset appends an 8-byte zeroed slot and returns its byte offset,
// to be patched with a resolved block offset once every block's final
// position is known.
func reserveOffset(p *Program) int {
	off := len(p.Code)
	emitInt(p, 0)
	return off
}

func emitRegister(p *Program, r *mir.Register) {
	var buf [1]byte
	buf[0] = byte(r.Kind)
	p.Code = append(p.Code, buf[:]...)
	emitInt(p, r.Index)
}

// emitValue encodes a register, constant or symbolic reference as one
// tagged operand.
func emitValue(p *Program, v mir.Value, f *mir.Function) {
	switch x := v.(type) {
	case *mir.Register:
		emitByte(p, 0)
		emitRegister(p, x)
	case *mir.Constant:
		emitByte(p, 1)
		emitInt(p, int(x.Val))
		emitInt(p, x.Bytes)
	case *mir.GlobalRef:
		emitByte(p, 2)
		emitString(p, x.Name)
	case *mir.CalleeRef:
		emitByte(p, 3)
		emitString(p, x.Name)
	default:
		emitByte(p, 255)
	}
}

func emitAddress(p *Program, a mir.MemoryAddress) {
	hasBase := a.Base != nil
	p.Code = append(p.Code, boolByte(hasBase))
	if hasBase {
		emitRegister(p, a.Base)
	} else {
		emitString(p, a.Global.Name)
	}
	p.Code = append(p.Code, boolByte(a.DynOffset != nil))
	if a.DynOffset != nil {
		emitRegister(p, a.DynOffset)
	}
	emitInt(p, a.Scale)
	emitInt(p, a.ConstOffset)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// emitCallTarget records op followed by a tagged callee value, flagging an
// unresolved reference for any direct callee this module does not itself
// define (its name is not one of f.Module's own function names).
func emitCallTarget(p *Program, op opcode, callee mir.Value, f *mir.Function) {
	emitByte(p, op)
	ref, ok := callee.(*mir.CalleeRef)
	if !ok {
		emitValue(p, callee, f)
		return
	}
	defined := false
	for _, other := range f.Module.Functions {
		if other.Name == ref.Name {
			defined = true
			break
		}
	}
	if !defined {
		p.Unresolved = append(p.Unresolved, UnresolvedRef{Symbol: ref.Name, Offset: len(p.Code)})
	}
	emitValue(p, callee, f)
}

func emitInstruction(p *Program, inst mir.Instruction, f *mir.Function) error {
	switch x := inst.(type) {
	case *mir.CopyInst:
		emitByte(p, opCopy)
		emitRegister(p, x.Dest())
		emitValue(p, x.Src, f)
		emitInt(p, x.ByteWidth())
	case *mir.CondCopyInst:
		emitByte(p, opCondCopy)
		emitRegister(p, x.Dest())
		emitString(p, string(x.Cond))
		emitValue(p, x.Flag, f)
		emitValue(p, x.Src, f)
		emitInt(p, x.ByteWidth())
	case *mir.ArithInst:
		emitByte(p, opArith)
		emitRegister(p, x.Dest())
		emitString(p, string(x.Op))
		emitValue(p, x.LHS, f)
		emitValue(p, x.RHS, f)
		emitInt(p, x.ByteWidth())
	case *mir.CompareInst:
		emitByte(p, opCompare)
		emitRegister(p, x.Dest())
		emitString(p, string(x.Cond))
		emitValue(p, x.LHS, f)
		emitValue(p, x.RHS, f)
	case *mir.TestInst:
		emitByte(p, opTest)
		emitValue(p, x.Operand, f)
	case *mir.LoadInst:
		emitByte(p, opLoad)
		emitRegister(p, x.Dest())
		emitAddress(p, x.Address)
		emitInt(p, x.ByteWidth())
	case *mir.StoreInst:
		emitByte(p, opStore)
		emitAddress(p, x.Address)
		emitValue(p, x.Val, f)
		emitInt(p, x.ByteWidth())
	case *mir.LEAInst:
		emitByte(p, opLEA)
		emitRegister(p, x.Dest())
		emitAddress(p, x.Address)
	case *mir.CallInst:
		emitCallTarget(p, opCall, x.Callee, f)
		emitInt(p, x.RegisterOffset)
		emitInt(p, len(x.Args))
		for _, a := range x.Args {
			emitValue(p, a, f)
		}
		emitInt(p, x.NumDests())
	case *mir.ReturnInst:
		emitByte(p, opReturn)
		emitInt(p, len(x.Vals))
		for _, v := range x.Vals {
			emitValue(p, v, f)
		}
	default:
		return fmt.Errorf("codegen: unhandled mir instruction %T", inst)
	}
	return nil
}
