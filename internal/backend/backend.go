// Package backend defines the fixed set of primitive operations the
// generic code generator (internal/codegen) drives, and the register
// bookkeeping those primitives need. A Backend owns target-specific
// concerns only: instruction selection, register allocation, and frame
// layout. Everything about control-flow shape, label numbering, and
// AST traversal order lives in internal/codegen instead.
package backend

import (
	"github.com/cwj-lang/cwj/internal/ast"
	"github.com/cwj-lang/cwj/internal/sym"
	"github.com/cwj-lang/cwj/internal/types"
)

// Reg identifies a value held live in a back-end register (or, after a
// spill, in the scratch frame slot the back-end remembers for it). Its
// meaning is opaque outside the owning Backend.
type Reg int

// NoReg is returned by primitives that produce no value (stores,
// jumps, labels).
const NoReg Reg = -1

// Backend is the fixed vocabulary of primitive operations a target
// must provide. Every
// method that "returns a register" either allocates a fresh one or
// reuses one of its operands', per the target's own convention; the
// generic code generator never inspects register identity, only
// threads the returned Reg into the next primitive call.
type Backend interface {
	// Preamble/postamble bracket the whole translation unit's output.
	Preamble()
	Postamble()

	// Register lifetime.
	FreeAllRegisters(keep Reg)

	// Literals and storage.
	LoadInt(val int64, t types.Primitive) Reg
	LoadGlobalStr(label int) Reg
	LoadGlobal(s *sym.Symbol) Reg
	LoadLocal(s *sym.Symbol) Reg
	Store(r Reg, s *sym.Symbol) Reg
	StoreDeref(valReg, ptrReg Reg, t types.Primitive) Reg
	Address(s *sym.Symbol) Reg
	Deref(ptrReg Reg, t types.Primitive) Reg

	// Arithmetic and bitwise, left OP right -> result register.
	Add(l, r Reg) Reg
	Sub(l, r Reg) Reg
	Mul(l, r Reg) Reg
	Div(l, r Reg) Reg
	Or(l, r Reg) Reg
	Xor(l, r Reg) Reg
	And(l, r Reg) Reg
	ShiftLeft(l, r Reg) Reg
	ShiftRight(l, r Reg) Reg
	Negate(r Reg) Reg
	Invert(r Reg) Reg
	LogNot(r Reg) Reg
	// ToBool normalises r to 0/1 for use as an ordinary value (e.g. the
	// operand of an assignment or a further expression).
	ToBool(r Reg) Reg
	// JumpIfFalse tests r and branches to falseLabel when it is zero;
	// used when a TOBOOL-wrapped condition drives IF/WHILE control
	// flow instead of producing a 0/1 value.
	JumpIfFalse(r Reg, falseLabel int)

	// Comparisons: two lowerings, one for a branch target and one for
	// a materialised 0/1 value.
	CompareAndSet(op ast.BinOp, l, r Reg) Reg
	CompareAndJump(op ast.BinOp, l, r Reg, falseLabel int)

	// Widen/scale.
	Widen(r Reg, from, to types.Primitive) Reg
	ScaleConst(r Reg, factor int) Reg

	// Control flow.
	Label(n int)
	Jump(n int)

	// Functions.
	FuncPreamble(fn *sym.Symbol)
	FuncPostamble(fn *sym.Symbol)
	CopyArg(r Reg, position int)
	Call(fn *sym.Symbol, numArgs int) Reg
	Return(fn *sym.Symbol, r Reg)

	// Data section.
	GlobalSym(s *sym.Symbol)
	GlobalStr(label int, text string, appendTo bool)
	GlobalStrEnd()

	// Switch statement: table of (value, label) pairs plus a default.
	Switch(selector Reg, cases []SwitchCase, defaultLabel int)
}

// SwitchCase is one (value, target label) entry in a SWITCH's jump
// table, in source order.
type SwitchCase struct {
	Value int64
	Label int
}
