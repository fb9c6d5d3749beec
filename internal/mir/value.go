package mir

// Value is implemented by every operand kind an MIR instruction can
// reference: registers, constants, undef, and (for control-flow operands)
// basic blocks and callee references.
type Value interface {
	isValue()
}

// Constant is an interned-free literal value of a fixed byte width (MIR has
// no structural interning like internal/ir.Context; constants are created
// directly by the resolver as it lowers IR constants).
type Constant struct {
	Val   uint64
	Bytes int
}

func (*Constant) isValue() {}

// UndefValue is the MIR counterpart of ir.UndefConstant: an unspecified
// value of no particular fixed width, lowered from ir.UndefConstant.
type UndefValue struct{}

func (*UndefValue) isValue() {}

var theUndef = &UndefValue{}

// Undef returns the single shared undef value.
func Undef() *UndefValue { return theUndef }

// CalleeRef identifies a call target resolved at link time: a module-local
// function by name, or a foreign function by name. It carries no operand
// identity of its own (it is not a Register), so calls reference it as a
// distinguished field rather than through the generic operand list.
type CalleeRef struct {
	Name    string
	Foreign bool
}

func (*CalleeRef) isValue() {}

// GlobalRef identifies a module-level storage location by name, resolved
// to a concrete address at link time the same way a CalleeRef is.
type GlobalRef struct {
	Name string
}

func (*GlobalRef) isValue() {}

func (*BasicBlock) isValue() {}
