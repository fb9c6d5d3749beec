package ir

import (
	"fmt"
	"strings"
)

// Type is implemented by every IR type variant: integral, floating, pointer,
// void, struct, and array. Equality of interned types is pointer equality.
type Type interface {
	String() string
	Size() int
	Align() int
}

// FloatPrecision distinguishes single- and double-precision floating types.
type FloatPrecision int

const (
	Single FloatPrecision = iota
	Double
)

// IntType is an integral type of a given bit width; signedness is a property
// of operations, not of the type itself.
type IntType struct{ Bits int }

func (t *IntType) String() string { return fmt.Sprintf("i%d", t.Bits) }
func (t *IntType) Size() int      { return (t.Bits + 7) / 8 }
func (t *IntType) Align() int {
	switch {
	case t.Bits <= 8:
		return 1
	case t.Bits <= 16:
		return 2
	case t.Bits <= 32:
		return 4
	default:
		return 8
	}
}

// FloatType is a floating-point type of a given precision.
type FloatType struct{ Precision FloatPrecision }

func (t *FloatType) String() string {
	if t.Precision == Single {
		return "f32"
	}
	return "f64"
}
func (t *FloatType) Size() int {
	if t.Precision == Single {
		return 4
	}
	return 8
}
func (t *FloatType) Align() int { return t.Size() }

// PointerType is the single opaque pointer type.
type PointerType struct{}

func (t *PointerType) String() string { return "ptr" }
func (t *PointerType) Size() int      { return 8 }
func (t *PointerType) Align() int     { return 8 }

// VoidType has no values.
type VoidType struct{}

func (t *VoidType) String() string { return "void" }
func (t *VoidType) Size() int      { return 0 }
func (t *VoidType) Align() int     { return 1 }

// StructMember is one ordered field of a struct type, carrying the byte
// offset derived from the preceding members plus padding.
type StructMember struct {
	Type   Type
	Offset int
}

// StructType is an ordered list of members with derived size and alignment;
// it may be named or anonymous.
type StructType struct {
	Name    string
	Members []StructMember
	size    int
	align   int
}

func newStructType(name string, members []StructMember) *StructType {
	offset := 0
	align := 1
	laidOut := make([]StructMember, len(members))
	for i, m := range members {
		a := m.Type.Align()
		if a > align {
			align = a
		}
		offset = alignUp(offset, a)
		laidOut[i] = StructMember{Type: m.Type, Offset: offset}
		offset += m.Type.Size()
	}
	size := alignUp(offset, align)
	return &StructType{Name: name, Members: laidOut, size: size, align: align}
}

func alignUp(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}

func (t *StructType) String() string {
	if t.Name != "" {
		return "@" + t.Name
	}
	parts := make([]string, len(t.Members))
	for i, m := range t.Members {
		parts[i] = m.Type.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
func (t *StructType) Size() int  { return t.size }
func (t *StructType) Align() int { return t.align }

// ArrayType is a fixed-length sequence of one element type.
type ArrayType struct {
	Elem  Type
	Count int
}

func (t *ArrayType) String() string { return fmt.Sprintf("[%s x %d]", t.Elem.String(), t.Count) }
func (t *ArrayType) Size() int      { return t.Elem.Size() * t.Count }
func (t *ArrayType) Align() int     { return t.Elem.Align() }
