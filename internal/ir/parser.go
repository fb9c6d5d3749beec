package ir

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"

	scerrors "scatha/internal/errors"
	"scatha/internal/irtext"
)

// ParseModule parses the textual IR format (see Print) back into a Module.
// It implements the round-trip law of spec.md §6/§8: Parse(Print(m)) is
// structurally equivalent to m. Syntax errors are returned as a
// scerrors.IssueList so callers can render them with a scerrors.Reporter
// (spec.md §7, "Parsing (IR text)").
func ParseModule(ctx *Context, filename string, r io.Reader) (*Module, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	ast, err := irtext.ParseModuleFile(filename, string(src))
	if err != nil {
		issues := scerrors.FromParticiple(err)
		issues[0].Pos.Filename = filename
		return nil, issues
	}
	return build(ctx, ast)
}

type builder struct {
	ctx      *Context
	structs  map[string]*irtext.StructDecl
	resolved map[string]*StructType
}

func build(ctx *Context, ast *irtext.ModuleFile) (*Module, error) {
	b := &builder{ctx: ctx, structs: map[string]*irtext.StructDecl{}, resolved: map[string]*StructType{}}
	for _, d := range ast.Decls {
		if d.Struct != nil {
			name := trimSigil(d.Struct.Name)
			if _, dup := b.structs[name]; dup {
				return nil, scerrors.IssueList{{
					Level: scerrors.LevelError, Code: scerrors.ErrorRedeclaration,
					Message: fmt.Sprintf("redeclaration of struct type @%s", name),
					Pos:     scerrors.FromLexer(d.Struct.Pos), Length: len(name) + 1,
				}}
			}
			b.structs[name] = d.Struct
		}
	}

	m := NewModule(ctx, ast.Name)
	seen := map[string]bool{}
	redecl := func(name string, pos lexer.Position) error {
		if seen[name] {
			return scerrors.IssueList{{
				Level: scerrors.LevelError, Code: scerrors.ErrorRedeclaration,
				Message: fmt.Sprintf("redeclaration of @%s", name),
				Pos:     scerrors.FromLexer(pos), Length: len(name) + 1,
			}}
		}
		seen[name] = true
		return nil
	}

	for _, d := range ast.Decls {
		switch {
		case d.Global != nil:
			if err := redecl(trimSigil(d.Global.Name), d.Global.Pos); err != nil {
				return nil, err
			}
			g, err := b.buildGlobal(d.Global)
			if err != nil {
				return nil, err
			}
			m.Globals = append(m.Globals, g)
		case d.Declare != nil:
			if err := redecl(trimSigil(d.Declare.Name), d.Declare.Pos); err != nil {
				return nil, err
			}
			f, err := b.buildDeclare(d.Declare)
			if err != nil {
				return nil, err
			}
			m.ForeignFunctions = append(m.ForeignFunctions, f)
		case d.Function != nil:
			if err := redecl(trimSigil(d.Function.Name), d.Function.Pos); err != nil {
				return nil, err
			}
			if _, err := b.buildFunction(m, d.Function); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func trimSigil(s string) string {
	if len(s) > 0 && (s[0] == '@' || s[0] == '%') {
		return s[1:]
	}
	return s
}

func (b *builder) resolveStruct(name string) (*StructType, error) {
	if st, ok := b.resolved[name]; ok {
		return st, nil
	}
	decl, ok := b.structs[name]
	if !ok {
		return nil, scerrors.IssueList{{
			Level: scerrors.LevelError, Code: scerrors.ErrorUndeclaredSymbol,
			Message: fmt.Sprintf("reference to undeclared struct type @%s", name),
		}}
	}
	members := make([]StructMember, len(decl.Members))
	for i, mt := range decl.Members {
		ty, err := b.buildType(mt)
		if err != nil {
			return nil, err
		}
		members[i] = StructMember{Type: ty}
	}
	st := b.ctx.NamedStruct(name, members)
	b.resolved[name] = st
	return st, nil
}

func (b *builder) buildType(t *irtext.TypeAST) (Type, error) {
	switch {
	case t.Array != nil:
		elem, err := b.buildType(t.Array.Elem)
		if err != nil {
			return nil, err
		}
		count, err := strconv.Atoi(t.Array.Count)
		if err != nil {
			return nil, err
		}
		return b.ctx.ArrayType(elem, count), nil
	case t.Anon != nil:
		members := make([]StructMember, len(t.Anon.Members))
		for i, mt := range t.Anon.Members {
			ty, err := b.buildType(mt)
			if err != nil {
				return nil, err
			}
			members[i] = StructMember{Type: ty}
		}
		return b.ctx.AnonymousStruct(members), nil
	case t.Struct != "":
		return b.resolveStruct(trimSigil(t.Struct))
	default:
		return b.scalarType(t.Name)
	}
}

func (b *builder) scalarType(name string) (Type, error) {
	switch name {
	case "ptr":
		return b.ctx.PtrType(), nil
	case "void":
		return b.ctx.VoidType(), nil
	case "f32":
		return b.ctx.FloatType(Single), nil
	case "f64":
		return b.ctx.FloatType(Double), nil
	}
	if strings.HasPrefix(name, "i") {
		if bits, err := strconv.Atoi(name[1:]); err == nil {
			return b.ctx.IntType(bits), nil
		}
	}
	return nil, fmt.Errorf("ir: unknown scalar type %q", name)
}

func (b *builder) buildGlobal(g *irtext.GlobalDecl) (*GlobalVariable, error) {
	ty, err := b.buildType(g.Type)
	if err != nil {
		return nil, err
	}
	gv := &GlobalVariable{Name: trimSigil(g.Name), Ty: ty, Constant: g.Kind == "const"}
	if g.Init != nil {
		c, err := b.buildConstant(g.Init, ty)
		if err != nil {
			return nil, err
		}
		gv.Initializer = c
	}
	return gv, nil
}

func (b *builder) buildConstant(v *irtext.ValueRef, ty Type) (Constant, error) {
	switch {
	case v.Float != "":
		bits, err := strconv.ParseUint(v.Float[len("f0x"):], 16, 64)
		if err != nil {
			return nil, err
		}
		ft, ok := ty.(*FloatType)
		if !ok {
			return nil, fmt.Errorf("ir: float literal with non-float type %s", ty.String())
		}
		return b.ctx.FloatConstant(bits, ft.Precision), nil
	case v.Int != "":
		n, err := strconv.ParseUint(v.Int, 0, 64)
		if err != nil {
			return nil, err
		}
		it, ok := ty.(*IntType)
		if !ok {
			return nil, fmt.Errorf("ir: integer literal with non-integer type %s", ty.String())
		}
		return b.ctx.IntConstant(n, it.Bits), nil
	case v.Null:
		return b.ctx.NullConstant(ty), nil
	case v.Undef:
		return b.ctx.Undef(ty), nil
	default:
		return nil, fmt.Errorf("ir: value is not a compile-time constant")
	}
}

func (b *builder) buildDeclare(d *irtext.DeclareDecl) (*ForeignFunction, error) {
	params := make([]Type, len(d.Params))
	for i, pt := range d.Params {
		ty, err := b.buildType(pt)
		if err != nil {
			return nil, err
		}
		params[i] = ty
	}
	ret, err := b.buildType(d.Ret)
	if err != nil {
		return nil, err
	}
	return &ForeignFunction{Name: trimSigil(d.Name), ParamTypes: params, RetType: ret}, nil
}

// funcBuilder holds the per-function state needed while converting a
// function body: the value map from source register text to the Value it
// resolved to, and deferred operand fixups for forward references (phi
// incoming values and branch/goto targets across not-yet-built blocks).
type funcBuilder struct {
	*builder
	module *Module
	f      *Function
	values map[string]Value
	blocks map[string]*BasicBlock
}

func (b *builder) buildFunction(m *Module, fn *irtext.FunctionDecl) (*Function, error) {
	params := make([]*Parameter, len(fn.Params))
	for i, p := range fn.Params {
		ty, err := b.buildType(p.Type)
		if err != nil {
			return nil, err
		}
		param := &Parameter{Name: trimSigil(p.Name), Ty: ty}
		if p.Attr != nil {
			if p.Attr.ByVal != nil {
				bv, err := b.buildType(p.Attr.ByVal)
				if err != nil {
					return nil, err
				}
				param.ByVal = bv
			}
			if p.Attr.ValRet != nil {
				vr, err := b.buildType(p.Attr.ValRet)
				if err != nil {
					return nil, err
				}
				param.ValRet = vr
			}
		}
		params[i] = param
	}
	ret, err := b.buildType(fn.Ret)
	if err != nil {
		return nil, err
	}
	f := m.NewFunction(trimSigil(fn.Name), params, ret)

	fb := &funcBuilder{builder: b, module: m, f: f, values: map[string]Value{}, blocks: map[string]*BasicBlock{}}
	for _, p := range f.Params {
		fb.values["%"+p.Name] = p
	}
	for _, bl := range fn.Blocks {
		fb.blocks[bl.Label] = f.NewBlock(bl.Label)
	}
	for _, bl := range fn.Blocks {
		bb := fb.blocks[bl.Label]
		bld := NewBuilder(b.ctx, f, bb)
		for _, inst := range bl.Insts {
			if err := fb.buildInst(bld, inst); err != nil {
				return nil, fmt.Errorf("function @%s: %w", f.Name, err)
			}
		}
	}
	// Predecessor edges are wired by Builder.Goto/Branch as each terminator
	// is built; nothing further to fix up.
	return f, nil
}

func (fb *funcBuilder) resolveValue(v *irtext.ValueRef, ty Type) (Value, error) {
	switch {
	case v.Reg != "":
		val, ok := fb.values[v.Reg]
		if !ok {
			return nil, scerrors.IssueList{{
				Level: scerrors.LevelError, Code: scerrors.ErrorUndeclaredSymbol,
				Message: fmt.Sprintf("reference to undefined value %s", v.Reg),
				Pos:     scerrors.FromLexer(v.Pos), Length: len(v.Reg),
			}}
		}
		return val, nil
	case v.Global != "":
		return fb.lookupSymbol(trimSigil(v.Global), v.Pos)
	case v.Float != "":
		bits, err := strconv.ParseUint(v.Float[len("f0x"):], 16, 64)
		if err != nil {
			return nil, err
		}
		ft, ok := ty.(*FloatType)
		if !ok {
			return nil, fmt.Errorf("float literal with non-float type %s", ty.String())
		}
		return fb.ctx.FloatConstant(bits, ft.Precision), nil
	case v.Int != "":
		n, err := strconv.ParseUint(v.Int, 0, 64)
		if err != nil {
			return nil, err
		}
		it, ok := ty.(*IntType)
		if !ok {
			return nil, fmt.Errorf("integer literal with non-integer type %s", ty.String())
		}
		return fb.ctx.IntConstant(n, it.Bits), nil
	case v.Null:
		return fb.ctx.NullConstant(ty), nil
	case v.Undef:
		return fb.ctx.Undef(ty), nil
	}
	return nil, fmt.Errorf("empty value reference")
}

// lookupSymbol resolves a global reference (function, foreign function, or
// global variable) against the enclosing module's symbol table. pos is the
// position of the referencing token, used only to annotate a failure.
func (fb *funcBuilder) lookupSymbol(name string, pos lexer.Position) (Value, error) {
	if fb.module == nil {
		return nil, fmt.Errorf("reference to @%s outside a module context", name)
	}
	for _, fn := range fb.module.Functions {
		if fn.Name == name {
			return fn, nil
		}
	}
	for _, ff := range fb.module.ForeignFunctions {
		if ff.Name == name {
			return ff, nil
		}
	}
	for _, g := range fb.module.Globals {
		if g.Name == name {
			return g, nil
		}
	}
	return nil, scerrors.IssueList{{
		Level: scerrors.LevelError, Code: scerrors.ErrorUndeclaredSymbol,
		Message: fmt.Sprintf("reference to undeclared symbol @%s", name),
		Pos:     scerrors.FromLexer(pos), Length: len(name) + 1,
	}}
}

func (fb *funcBuilder) buildInst(bld *Builder, inst *irtext.InstAST) error {
	switch {
	case inst.Alloca != nil:
		ty, err := fb.buildType(inst.Alloca.Type)
		if err != nil {
			return err
		}
		i := bld.Alloca(ty)
		fb.bind(inst.Result, i)
	case inst.Load != nil:
		ty, err := fb.buildType(inst.Load.Type)
		if err != nil {
			return err
		}
		addr, err := fb.resolveValue(inst.Load.Address, fb.ctx.PtrType())
		if err != nil {
			return err
		}
		i := bld.Load(addr, ty)
		fb.bind(inst.Result, i)
	case inst.Store != nil:
		addr, err := fb.resolveValue(inst.Store.Address, fb.ctx.PtrType())
		if err != nil {
			return err
		}
		val, err := fb.resolveValue(inst.Store.Val, fb.ctx.IntType(64))
		if err != nil {
			return err
		}
		bld.Store(addr, val)
	case inst.GEP != nil:
		baseTy, err := fb.buildType(inst.GEP.BaseType)
		if err != nil {
			return err
		}
		base, err := fb.resolveValue(inst.GEP.Base, fb.ctx.PtrType())
		if err != nil {
			return err
		}
		indices := make([]GEPIndex, len(inst.GEP.Indices))
		for n, ix := range inst.GEP.Indices {
			if ix.Const != "" {
				c, err := strconv.Atoi(ix.Const)
				if err != nil {
					return err
				}
				indices[n] = GEPIndex{Const: c}
			} else {
				v, err := fb.resolveValue(ix.Dyn, fb.ctx.IntType(64))
				if err != nil {
					return err
				}
				indices[n] = GEPIndex{Value: v}
			}
		}
		i := bld.GEP(base, baseTy, indices)
		fb.bind(inst.Result, i)
	case inst.Cmp != nil:
		ty, err := fb.buildType(inst.Cmp.Type)
		if err != nil {
			return err
		}
		lhs, err := fb.resolveValue(inst.Cmp.LHS, ty)
		if err != nil {
			return err
		}
		rhs, err := fb.resolveValue(inst.Cmp.RHS, ty)
		if err != nil {
			return err
		}
		i := bld.Compare(CmpPred(inst.Cmp.Pred), lhs, rhs)
		fb.bind(inst.Result, i)
	case inst.Binary != nil:
		ty, err := fb.buildType(inst.Binary.Type)
		if err != nil {
			return err
		}
		lhs, err := fb.resolveValue(inst.Binary.LHS, ty)
		if err != nil {
			return err
		}
		rhs, err := fb.resolveValue(inst.Binary.RHS, ty)
		if err != nil {
			return err
		}
		i := bld.Binary(BinaryOp(inst.Binary.Op), lhs, rhs, ty)
		fb.bind(inst.Result, i)
	case inst.Call != nil:
		var ty Type
		var err error
		if !inst.Call.Void {
			ty, err = fb.buildType(inst.Call.Type)
		} else {
			ty = fb.ctx.VoidType()
		}
		if err != nil {
			return err
		}
		callee, err := fb.resolveValue(inst.Call.Callee, fb.ctx.PtrType())
		if err != nil {
			return err
		}
		args := make([]Value, len(inst.Call.Args))
		for n, a := range inst.Call.Args {
			v, err := fb.resolveValue(a, fb.ctx.IntType(64))
			if err != nil {
				return err
			}
			args[n] = v
		}
		i := bld.Call(callee, args, ty)
		if !inst.Call.Void {
			fb.bind(inst.Result, i)
		}
	case inst.Phi != nil:
		ty, err := fb.buildType(inst.Phi.Type)
		if err != nil {
			return err
		}
		i := bld.Phi(ty)
		fb.bind(inst.Result, i)
		for _, pair := range inst.Phi.Pairs {
			pred, ok := fb.blocks[pair.Label]
			if !ok {
				return scerrors.IssueList{{
					Level: scerrors.LevelError, Code: scerrors.ErrorUnknownBlock,
					Message: fmt.Sprintf("phi references unknown block %s", pair.Label),
					Pos:     scerrors.FromLexer(inst.Pos), Length: len(pair.Label),
				}}
			}
			v, err := fb.resolveValue(pair.Val, ty)
			if err != nil {
				return err
			}
			i.AddIncoming(pred, v)
		}
	case inst.Select != nil:
		ty, err := fb.buildType(inst.Select.Type)
		if err != nil {
			return err
		}
		cond, err := fb.resolveValue(inst.Select.Cond, fb.ctx.IntType(1))
		if err != nil {
			return err
		}
		then, err := fb.resolveValue(inst.Select.Then, ty)
		if err != nil {
			return err
		}
		els, err := fb.resolveValue(inst.Select.Else, ty)
		if err != nil {
			return err
		}
		i := bld.Select(cond, then, els, ty)
		fb.bind(inst.Result, i)
	case inst.Convert != nil:
		ty, err := fb.buildType(inst.Convert.Type)
		if err != nil {
			return err
		}
		src, err := fb.resolveValue(inst.Convert.Src, fb.ctx.IntType(64))
		if err != nil {
			return err
		}
		i := bld.Convert(ConvOp(inst.Convert.Op), src, ty)
		fb.bind(inst.Result, i)
	case inst.Return != nil:
		var val Value
		if inst.Return.Val != nil {
			v, err := fb.resolveValue(inst.Return.Val, fb.f.RetType)
			if err != nil {
				return err
			}
			val = v
		}
		bld.Return(val)
	case inst.Goto != nil:
		target, ok := fb.blocks[inst.Goto.Target]
		if !ok {
			return scerrors.IssueList{{
				Level: scerrors.LevelError, Code: scerrors.ErrorUnknownBlock,
				Message: fmt.Sprintf("goto references unknown block %s", inst.Goto.Target),
				Pos:     scerrors.FromLexer(inst.Pos), Length: len(inst.Goto.Target),
			}}
		}
		bld.Goto(target)
	case inst.Branch != nil:
		cond, err := fb.resolveValue(inst.Branch.Cond, fb.ctx.IntType(1))
		if err != nil {
			return err
		}
		ifTrue, ok := fb.blocks[inst.Branch.IfTrue]
		if !ok {
			return scerrors.IssueList{{
				Level: scerrors.LevelError, Code: scerrors.ErrorUnknownBlock,
				Message: fmt.Sprintf("branch references unknown block %s", inst.Branch.IfTrue),
				Pos:     scerrors.FromLexer(inst.Pos), Length: len(inst.Branch.IfTrue),
			}}
		}
		ifFalse, ok := fb.blocks[inst.Branch.IfFalse]
		if !ok {
			return scerrors.IssueList{{
				Level: scerrors.LevelError, Code: scerrors.ErrorUnknownBlock,
				Message: fmt.Sprintf("branch references unknown block %s", inst.Branch.IfFalse),
				Pos:     scerrors.FromLexer(inst.Pos), Length: len(inst.Branch.IfFalse),
			}}
		}
		bld.Branch(cond, ifTrue, ifFalse)
	default:
		return fmt.Errorf("empty instruction")
	}
	return nil
}

func (fb *funcBuilder) bind(reg string, v Value) {
	if reg != "" {
		fb.values[reg] = v
	}
}
