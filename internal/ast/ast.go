// Package ast defines the typed Abstract Syntax Tree built by the
// parser, folded by internal/fold, and walked by internal/codegen.
//
// Rather than one heap node type carrying an operator tag and three
// child slots, this tree uses a sum type with a per-variant payload:
// every expression and statement shape gets its own struct, and the
// lvalue/rvalue flag on IDENT/DEREF is carried as an explicit field
// rather than inferred. internal/codegen and internal/fold consume
// these nodes with a type switch, the idiomatic Go equivalent of an
// Accept/Visitor double dispatch (see DESIGN.md for why a type switch
// replaces visitor interfaces here).
package ast

import "github.com/cwj-lang/cwj/internal/sym"
import "github.com/cwj-lang/cwj/internal/types"

// Expr is any node that produces a value (or, for an lvalue Ident/Deref,
// an address in place of a loaded value).
type Expr interface {
	exprNode()
	Line() int
}

// Stmt is any node executed for effect.
type Stmt interface {
	stmtNode()
	Line() int
}

type Base struct{ line int }

func (b Base) Line() int { return b.line }

func NewBase(line int) Base { return Base{line: line} }

// ---- Expressions --------------------------------------------------

// IntLit is an integer (or character) literal. Integer literals carry
// type INT and character literals type CHAR; ModifyType does not
// narrow an INT to a CHAR.
type IntLit struct {
	Base
	Value int64
	Type  types.Primitive
}

func (IntLit) exprNode() {}

// StrLit is a string literal, already registered as a global with an
// autogenerated label by the parser.
type StrLit struct {
	Base
	Label int
	Text  string
	Type  types.Primitive
}

func (StrLit) exprNode() {}

// Ident loads (Rvalue true) or names the address of (Rvalue false) a
// variable. A bare use in an expression context is an rvalue; the
// target of ASSIGN, the operand of address-of, and the target of a
// compound-assignment variant are lvalues.
type Ident struct {
	Base
	Sym    *sym.Symbol
	Rvalue bool
	Type   types.Primitive
}

func (Ident) exprNode() {}

// BinOp enumerates the arithmetic, bitwise, comparison, and logical
// binary operator vocabulary.
type BinOp int

const (
	ADD BinOp = iota
	SUBTRACT
	MULTIPLY
	DIVIDE
	OR
	XOR
	AND
	EQ
	NE
	LT
	GT
	LE
	GE
	LSHIFT
	RSHIFT
	LOGOR
	LOGAND
)

type Binary struct {
	Base
	Op          BinOp
	Left, Right Expr
	Type        types.Primitive
}

func (Binary) exprNode() {}

// UnaryOp enumerates the unary operator vocabulary:
// negate/invert/lognot/tobool/deref/address-of plus pre/post inc/dec.
type UnaryOp int

const (
	NEGATE UnaryOp = iota
	INVERT
	LOGNOT
	TOBOOL
	DEREF
	ADDR
	PREINC
	PREDEC
	POSTINC
	POSTDEC
)

type Unary struct {
	Base
	Op     UnaryOp
	Operand Expr
	Rvalue  bool // meaningful only for DEREF: false when it is an assignment target
	Type    types.Primitive
}

func (Unary) exprNode() {}

// Widen zero/sign-extends Operand to Type. Emitted only by ModifyType.
type Widen struct {
	Base
	Operand Expr
	Type    types.Primitive
}

func (Widen) exprNode() {}

// Scale multiplies Operand (an integer index) by Size, the pointed-to
// type's byte size. Emitted only by ModifyType, and only when that size
// is greater than 1.
type Scale struct {
	Base
	Operand Expr
	Size    int
	Type    types.Primitive
}

func (Scale) exprNode() {}

// Cast is an explicit `(type) expr`.
type Cast struct {
	Base
	Operand Expr
	Type    types.Primitive
}

func (Cast) exprNode() {}

// Assign models `lhs = rhs` (and is also the desugaring target for
// `+=`/`-=`/`*=`/`/=`, which the parser expands to `lhs = lhs OP rhs`
// before ModifyType coerces the right side). Target is an lvalue Ident,
// an lvalue Unary{Op: DEREF} or an lvalue Member.
type Assign struct {
	Base
	Value  Expr
	Target Expr
	Type   types.Primitive
}

func (Assign) exprNode() {}

// Ternary is `cond ? then : els`.
type Ternary struct {
	Base
	Cond, Then, Else Expr
	Type             types.Primitive
}

func (Ternary) exprNode() {}

// FuncCall's Args are in source order: Args[0] is evaluated first, but
// the back-end copies them into ABI slots from the last argument to
// the first (internal/codegen owns that ordering).
type FuncCall struct {
	Base
	Sym  *sym.Symbol
	Args []Expr
	Type types.Primitive
}

func (FuncCall) exprNode() {}

// Member is `base.field` or `base->field`, resolved by the parser
// against the base's struct/union descriptor: Field is the declaring
// struct's own *sym.Symbol for that field, whose Pos is the field's
// byte offset and whose Type is the field's declared type (Member's
// own Type). Arrow records whether Operand is a pointer needing no
// address-of step (the pointer's value is already the struct's
// address) or names the struct directly (its own address must be
// taken). Rvalue follows Ident's convention: true loads the field's
// value, false produces the field's address for an assignment target.
type Member struct {
	Base
	Operand Expr
	Field   *sym.Symbol
	Arrow   bool
	Rvalue  bool
	Type    types.Primitive
}

func (Member) exprNode() {}

// ---- Statements -----------------------------------------------------

// Glue sequences two sub-trees with no value of its own. A chain of
// statements is a left-leaning spine of Glue nodes (Left holds the
// statements so far, Right the next one); internal/ast.Dump flattens
// it back into a list.
type Glue struct {
	Base
	Left, Right Stmt
}

func (Glue) stmtNode() {}

// ExprStmt wraps an expression evaluated for its side effect
// (assignment, function call, pre/post inc-dec) and discarded.
type ExprStmt struct {
	Base
	X Expr
}

func (ExprStmt) stmtNode() {}

type If struct {
	Base
	Cond       Expr
	Then, Else Stmt // Else may be nil
}

func (If) stmtNode() {}

type While struct {
	Base
	Cond Expr
	Body Stmt
}

func (While) stmtNode() {}

type Return struct {
	Base
	Value Expr // nil for a void function
}

func (Return) stmtNode() {}

type Break struct{ Base }

func (Break) stmtNode() {}

type Continue struct{ Base }

func (Continue) stmtNode() {}

// Case is one arm of a Switch: IsDefault marks the `default:` arm, in
// which case Value is unused.
type Case struct {
	Base
	Value     int64
	IsDefault bool
	Body      Stmt
}

func (Case) stmtNode() {}

type Switch struct {
	Base
	Selector Expr
	Cases    []*Case
}

func (Switch) stmtNode() {}

// Function carries a function's body and end-label-bearing symbol; its
// postamble defines Sym's end label so every Return jumps to one shared
// epilogue.
type Function struct {
	Base
	Sym  *sym.Symbol
	Body Stmt
}

func (Function) stmtNode() {}

// TypeOf returns the result type an already-built expression node
// carries. internal/parse uses it to drive ModifyType at each binary
// operator, assignment, and return site, since those are the only
// places a type mismatch can first be observed.
func TypeOf(e Expr) types.Primitive {
	switch v := e.(type) {
	case IntLit:
		return v.Type
	case StrLit:
		return v.Type
	case Ident:
		return v.Type
	case Binary:
		return v.Type
	case Unary:
		return v.Type
	case Widen:
		return v.Type
	case Scale:
		return v.Type
	case Cast:
		return v.Type
	case Assign:
		return v.Type
	case Ternary:
		return v.Type
	case FuncCall:
		return v.Type
	case Member:
		return v.Type
	}
	return types.NONE
}
