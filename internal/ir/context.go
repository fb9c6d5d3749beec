// Package ir implements the SSA intermediate representation: the Context
// that interns types and constants, the module/function/block/instruction
// CFG, and the textual format that can print and parse a module back.
package ir

import "fmt"

// Context is the process-wide interner for a single compilation. Every
// method returns the same pointer for structurally equal keys; the Context
// is the sole owner of the types and constants it returns.
type Context struct {
	ints    map[int]*IntType
	floats  map[FloatPrecision]*FloatType
	ptr     *PointerType
	anon    map[string]*StructType
	named   map[string]*StructType
	arrays  map[arrayKey]*ArrayType

	intConsts   map[intConstKey]*IntConstant
	floatConsts map[floatConstKey]*FloatConstant
	nullConsts  map[Type]*NullConstant
	undefs      map[Type]*UndefConstant
	records     map[string]*RecordConstant
}

type arrayKey struct {
	elem  Type
	count int
}

type intConstKey struct {
	value uint64
	bits  int
}

type floatConstKey struct {
	bits  uint64
	prec  FloatPrecision
}

// NewContext creates an empty, ready-to-use interning context.
func NewContext() *Context {
	return &Context{
		ints:        make(map[int]*IntType),
		floats:      make(map[FloatPrecision]*FloatType),
		anon:        make(map[string]*StructType),
		named:       make(map[string]*StructType),
		arrays:      make(map[arrayKey]*ArrayType),
		intConsts:   make(map[intConstKey]*IntConstant),
		floatConsts: make(map[floatConstKey]*FloatConstant),
		nullConsts:  make(map[Type]*NullConstant),
		undefs:      make(map[Type]*UndefConstant),
		records:     make(map[string]*RecordConstant),
	}
}

// IntType returns the unique integral type of the given bit width.
func (c *Context) IntType(bits int) *IntType {
	if t, ok := c.ints[bits]; ok {
		return t
	}
	t := &IntType{Bits: bits}
	c.ints[bits] = t
	return t
}

// FloatType returns the unique floating type of the given precision.
func (c *Context) FloatType(prec FloatPrecision) *FloatType {
	if t, ok := c.floats[prec]; ok {
		return t
	}
	t := &FloatType{Precision: prec}
	c.floats[prec] = t
	return t
}

// PtrType returns the unique opaque pointer type.
func (c *Context) PtrType() *PointerType {
	if c.ptr == nil {
		c.ptr = &PointerType{}
	}
	return c.ptr
}

// VoidType returns the unique void type. Void carries no per-context state,
// so all contexts share the single package-level instance (see voidSingleton
// in instructions.go) rather than allocating one per Context.
func (c *Context) VoidType() *VoidType {
	return voidSingleton
}

func structKey(members []StructMember) string {
	s := ""
	for _, m := range members {
		s += m.Type.String() + ";"
	}
	return s
}

// AnonymousStruct returns the unique anonymous struct type for the given
// ordered member list; two structurally identical anonymous structs are the
// same object.
func (c *Context) AnonymousStruct(members []StructMember) *StructType {
	key := structKey(members)
	if t, ok := c.anon[key]; ok {
		return t
	}
	t := newStructType("", members)
	c.anon[key] = t
	return t
}

// NamedStruct returns the unique struct type for the given name, creating it
// on first use. A later call with the same name returns the existing type
// unchanged; its members argument is ignored.
func (c *Context) NamedStruct(name string, members []StructMember) *StructType {
	if t, ok := c.named[name]; ok {
		return t
	}
	t := newStructType(name, members)
	c.named[name] = t
	return t
}

// ArrayType returns the unique array type of the given element type and
// element count.
func (c *Context) ArrayType(elem Type, count int) *ArrayType {
	key := arrayKey{elem: elem, count: count}
	if t, ok := c.arrays[key]; ok {
		return t
	}
	t := &ArrayType{Elem: elem, Count: count}
	c.arrays[key] = t
	return t
}

// IntConstant returns the unique integer constant of the given bit width.
func (c *Context) IntConstant(value uint64, bits int) *IntConstant {
	key := intConstKey{value: value, bits: bits}
	if v, ok := c.intConsts[key]; ok {
		return v
	}
	v := &IntConstant{Val: value, Ty: c.IntType(bits)}
	c.intConsts[key] = v
	return v
}

// FloatConstant returns the unique floating constant of the given precision.
func (c *Context) FloatConstant(bits uint64, prec FloatPrecision) *FloatConstant {
	key := floatConstKey{bits: bits, prec: prec}
	if v, ok := c.floatConsts[key]; ok {
		return v
	}
	v := &FloatConstant{Bits: bits, Ty: c.FloatType(prec)}
	c.floatConsts[key] = v
	return v
}

// NullConstant returns the unique null-pointer constant of the given type.
func (c *Context) NullConstant(ty Type) *NullConstant {
	if v, ok := c.nullConsts[ty]; ok {
		return v
	}
	v := &NullConstant{Ty: ty}
	c.nullConsts[ty] = v
	return v
}

// Undef returns the unique undef value of the given type.
func (c *Context) Undef(ty Type) *UndefConstant {
	if v, ok := c.undefs[ty]; ok {
		return v
	}
	v := &UndefConstant{Ty: ty}
	c.undefs[ty] = v
	return v
}

// RecordConstant returns the unique aggregate constant for the given type
// and elements.
func (c *Context) RecordConstant(ty Type, elements []Constant) *RecordConstant {
	key := ty.String()
	for _, e := range elements {
		key += fmt.Sprintf("|%p", e)
	}
	if v, ok := c.records[key]; ok {
		return v
	}
	v := &RecordConstant{Ty: ty, Elements: elements}
	c.records[key] = v
	return v
}
