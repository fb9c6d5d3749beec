package ir

// Value is implemented by every IR value kind: instructions, basic blocks
// (as branch targets), parameters, constants, global variables, and
// functions. Every value carries a type and a use set.
type Value interface {
	Type() Type
	Uses() []*Use
	addUse(u *Use)
	removeUse(u *Use)
}

// Use records that Value is used as an operand of User inside Block. The
// invariant enforced by every mutator in this package: for every
// instruction I and operand v, I is in uses(v) iff v is in operands(I).
type Use struct {
	Value Value
	User  Instruction
}

// valueBase is embedded by every concrete Value to provide the use-set
// bookkeeping uniformly.
type valueBase struct {
	uses []*Use
}

func (b *valueBase) Uses() []*Use { return b.uses }

func (b *valueBase) addUse(u *Use) {
	b.uses = append(b.uses, u)
}

func (b *valueBase) removeUse(u *Use) {
	for i, x := range b.uses {
		if x == u {
			b.uses = append(b.uses[:i], b.uses[i+1:]...)
			return
		}
	}
}

// ReplaceAllUsesWith rewrites every current user of v to use repl instead.
// The use set is snapshotted before iterating, since rewriting a user
// mutates v's use set as a side effect (spec: "must be safe for use while
// iterating because users mutate the use set").
func ReplaceAllUsesWith(v Value, repl Value) {
	snapshot := append([]*Use(nil), v.Uses()...)
	for _, u := range snapshot {
		u.User.ReplaceOperand(v, repl)
	}
}

// Constant is the marker interface for compile-time constant values.
type Constant interface {
	Value
	isConstant()
}

type constBase struct{ valueBase }

func (constBase) isConstant() {}

// IntConstant is an interned integer constant.
type IntConstant struct {
	constBase
	Val uint64
	Ty  *IntType
}

func (c *IntConstant) Type() Type { return c.Ty }

// FloatConstant is an interned floating constant, stored as raw bits.
type FloatConstant struct {
	constBase
	Bits uint64
	Ty   *FloatType
}

func (c *FloatConstant) Type() Type { return c.Ty }

// NullConstant is the interned null pointer (or null-typed) constant.
type NullConstant struct {
	constBase
	Ty Type
}

func (c *NullConstant) Type() Type { return c.Ty }

// UndefConstant represents an unspecified value of a given type.
type UndefConstant struct {
	constBase
	Ty Type
}

func (c *UndefConstant) Type() Type { return c.Ty }

// RecordConstant is an aggregate constant (struct or array) built from
// element constants.
type RecordConstant struct {
	constBase
	Ty       Type
	Elements []Constant
}

func (c *RecordConstant) Type() Type { return c.Ty }

// Parameter is a function parameter value.
type Parameter struct {
	valueBase
	Name string
	Ty   Type
	// ByVal/ValRet mirror the textual-format parameter attributes of
	// spec.md §6: byval(<type>) / valret(<type>).
	ByVal Type
	ValRet Type
}

func (p *Parameter) Type() Type { return p.Ty }

// GlobalVariable is a named, module-owned storage location; other globals
// and functions reference it by non-owning pointer.
type GlobalVariable struct {
	valueBase
	Name        string
	Ty          Type
	Constant    bool
	Initializer Constant
}

func (g *GlobalVariable) Type() Type { return g.Ty }

// ForeignFunction declares a callable resolved externally at link time (see
// internal/ffi); it carries no basic blocks.
type ForeignFunction struct {
	valueBase
	Name       string
	ParamTypes []Type
	RetType    Type
}

func (f *ForeignFunction) Type() Type { return f.RetType }
