package irtext

import "github.com/alecthomas/participle/v2/lexer"

// ModuleFile is the root grammar production: a module name followed by an
// unordered sequence of struct-type, global, foreign-declaration and
// function declarations, mirroring ir.Print's output order without
// requiring it (struct types may be referenced before their declaration).
type ModuleFile struct {
	Name  string  `"module" @Ident`
	Decls []*Decl `@@*`
}

type Decl struct {
	Struct   *StructDecl   `  @@`
	Global   *GlobalDecl   `| @@`
	Declare  *DeclareDecl  `| @@`
	Function *FunctionDecl `| @@`
}

// StructDecl declares a named aggregate type: "type @Name = { i32, ptr }".
type StructDecl struct {
	Pos     lexer.Position
	Name    string     `"type" @At "="`
	Members []*TypeAST `"{" ( @@ ( "," @@ )* )? "}"`
}

// GlobalDecl declares a module-owned storage location: "global @g i32" or
// "const @g i32 = 1".
type GlobalDecl struct {
	Pos  lexer.Position
	Kind string    `@( "global" | "const" )`
	Name string    `@At`
	Type *TypeAST  `@@`
	Init *ValueRef `( "=" @@ )?`
}

// DeclareDecl declares an externally-resolved callee:
// "declare @memcpy(ptr, ptr, i64) -> void".
type DeclareDecl struct {
	Pos    lexer.Position
	Name   string     `"declare" @At`
	Params []*TypeAST `"(" ( @@ ( "," @@ )* )? ")"`
	Ret    *TypeAST   `"->" @@`
}

// FunctionDecl declares a defined function with a body.
type FunctionDecl struct {
	Pos    lexer.Position
	Name   string      `"function" @At`
	Params []*ParamAST `"(" ( @@ ( "," @@ )* )? ")"`
	Ret    *TypeAST    `"->" @@`
	Blocks []*BlockAST `"{" @@* "}"`
}

type ParamAST struct {
	Name string     `@Reg`
	Type *TypeAST   `@@`
	Attr *ParamAttr `@@?`
}

type ParamAttr struct {
	ByVal  *TypeAST `  "byval" "(" @@ ")"`
	ValRet *TypeAST `| "valret" "(" @@ ")"`
}

type BlockAST struct {
	Label string     `@Ident ":"`
	Insts []*InstAST `@@*`
}

// TypeAST is the grammar for the type production: arrays, anonymous
// structs, named structs (captured as an At token, e.g. "@Point"), and
// bare identifiers for scalar types ("i32", "f64", "ptr", "void").
type TypeAST struct {
	Array  *ArrayTypeAST  `  @@`
	Anon   *AnonStructAST `| @@`
	Struct string         `| @At`
	Name   string         `| @Ident`
}

type ArrayTypeAST struct {
	Elem  *TypeAST `"[" @@`
	Count string   `"x" @Int "]"`
}

type AnonStructAST struct {
	Members []*TypeAST `"{" ( @@ ( "," @@ )* )? "}"`
}

// ValueRef is any operand reference: an SSA/parameter register, a global or
// function symbol, an integer literal, or a null/undef constant.
type ValueRef struct {
	Pos    lexer.Position
	Reg    string `  @Reg`
	Global string `| @At`
	Float  string `| @Float`
	Int    string `| @Int`
	Null   bool   `| @"null"`
	Undef  bool   `| @"undef"`
}

// GEPIndexAST is one index of a getelementptr: a constant literal or a
// dynamic value reference.
type GEPIndexAST struct {
	Const string    `  @Int`
	Dyn   *ValueRef `| @@`
}

type AllocaAST struct {
	Type *TypeAST `"alloca" @@`
}

type LoadAST struct {
	Type    *TypeAST  `"load" @@ ","`
	Address *ValueRef `@@`
}

type StoreAST struct {
	Address *ValueRef `"store" @@ ","`
	Val     *ValueRef `@@`
}

type GEPAST struct {
	BaseType *TypeAST       `"getelementptr" @@ ","`
	Base     *ValueRef      `@@`
	Indices  []*GEPIndexAST `( "," @@ )*`
}

type BinaryAST struct {
	Op  string    `@( "add" | "sub" | "mul" | "udiv" | "sdiv" | "urem" | "srem" | "shl" | "lshr" | "ashr" | "and" | "or" | "xor" | "fadd" | "fsub" | "fmul" | "fdiv" )`
	Type *TypeAST `@@`
	LHS *ValueRef `@@ ","`
	RHS *ValueRef `@@`
}

type CmpAST struct {
	Pred string    `"cmp" @( "eq" | "ne" | "ult" | "ule" | "ugt" | "uge" | "slt" | "sle" | "sgt" | "sge" )`
	Type *TypeAST  `@@`
	LHS  *ValueRef `@@ ","`
	RHS  *ValueRef `@@`
}

type CallAST struct {
	Void   bool        `"call" ( @"void"`
	Type   *TypeAST    `| @@ )`
	Callee *ValueRef   `@@`
	Args   []*ValueRef `"(" ( @@ ( "," @@ )* )? ")"`
}

type PhiPairAST struct {
	Label string    `"[" @Ident ":"`
	Val   *ValueRef `@@ "]"`
}

type PhiAST struct {
	Type  *TypeAST      `"phi" @@`
	Pairs []*PhiPairAST `@@*`
}

type SelectAST struct {
	Type *TypeAST  `"select" @@`
	Cond *ValueRef `@@ ","`
	Then *ValueRef `@@ ","`
	Else *ValueRef `@@`
}

type ConvertAST struct {
	Op   string    `@( "trunc" | "zext" | "sext" | "bitcast" )`
	Src  *ValueRef `@@ "to"`
	Type *TypeAST  `@@`
}

type ReturnAST struct {
	Val *ValueRef `"return" @@?`
}

type GotoAST struct {
	Target string `"goto" @Ident`
}

type BranchAST struct {
	Cond    *ValueRef `"branch" @@ ","`
	IfTrue  string    `@Ident ","`
	IfFalse string    `@Ident`
}

// InstAST is the top-level instruction alternation, with an optional
// leading "%reg =" result binding.
type InstAST struct {
	Pos     lexer.Position
	Result  string      `( @Reg "=" )?`
	Alloca  *AllocaAST  `( @@`
	Load    *LoadAST    `| @@`
	Store   *StoreAST   `| @@`
	GEP     *GEPAST     `| @@`
	Cmp     *CmpAST     `| @@`
	Binary  *BinaryAST  `| @@`
	Call    *CallAST    `| @@`
	Phi     *PhiAST     `| @@`
	Select  *SelectAST  `| @@`
	Convert *ConvertAST `| @@`
	Return  *ReturnAST  `| @@`
	Goto    *GotoAST    `| @@`
	Branch  *BranchAST  `| @@ )`
}
