// Package codegen walks the typed, folded AST and drives a
// internal/backend.Backend through it. Every concern that is not a
// single target instruction lives here: label numbering, register
// free/reuse discipline between statements, the comparison and
// boolean dual-lowering (CompareAndJump/JumpIfFalse for control flow,
// CompareAndSet/ToBool for a value), short-circuit &&/|| evaluation,
// and frame-slot assignment for locals and parameters.
//
// A single struct walks the tree and emits into a Backend-shaped sink,
// generalised from "interpret expression, push bytecode" to "lower
// expression, call Backend primitive, thread back a Reg".
package codegen

import (
	"fmt"

	"github.com/cwj-lang/cwj/internal/ast"
	"github.com/cwj-lang/cwj/internal/backend"
	"github.com/cwj-lang/cwj/internal/diag"
	"github.com/cwj-lang/cwj/internal/sym"
	"github.com/cwj-lang/cwj/internal/types"
)

// Generator owns the monotonic label counter and the current
// function's merge-temp pool; everything else is threaded through
// explicit parameters (ctx for break/continue targets) rather than
// mutable generator state, per Design Note 9.5's rejection of global
// context.
type Generator struct {
	be       backend.Backend
	labelNxt int
	pool     *tempPool
}

func New(be backend.Backend) *Generator { return &Generator{be: be} }

func (g *Generator) label() int {
	g.labelNxt++
	return g.labelNxt
}

// ctx carries the BREAK/CONTINUE targets in effect at a given point in
// the statement tree. A SWITCH rebinds breakLabel without touching
// continueLabel; a WHILE/FOR rebinds both.
type ctx struct {
	breakLabel, continueLabel   int
	hasBreak, hasContinue       bool
}

// GenUnit emits the whole translation unit: the data section built
// from tab's surviving globals, then one function body per Function
// node in funcs, in source order.
func (g *Generator) GenUnit(tab *sym.Table, funcs []ast.Stmt) {
	g.be.Preamble()
	g.genGlobals(tab)
	for _, f := range funcs {
		fn, ok := f.(ast.Function)
		if !ok {
			continue
		}
		g.genFunction(tab, fn)
	}
	g.be.Postamble()
}

func (g *Generator) genGlobals(tab *sym.Table) {
	for s := tab.Globals.Head(); s != nil; s = s.Next {
		if s.Struct == sym.FuncType || s.Class == sym.Extern {
			continue // prototypes and extern declarations claim no storage here
		}
		if s.IsStrLit {
			g.be.GlobalStr(s.Pos, s.Text, false)
			continue
		}
		g.be.GlobalSym(s)
	}
	g.be.GlobalStrEnd()
}

// maxMergeTemps bounds how many hidden merge-point locals (used to
// join a ternary's or a short-circuited &&/||'s two branches into one
// value without relying on a register surviving across a jump) a
// single function may need live at once. Nesting deeper than this
// inside one function is rare enough that four slots, reused
// round-robin, comfortably covers it; internal/backend/x86_64's
// frame-size estimate already budgets headroom for exactly this.
const maxMergeTemps = 4

type tempPool struct {
	syms []*sym.Symbol
	next int
}

func (t *tempPool) take() *sym.Symbol {
	s := t.syms[t.next%len(t.syms)]
	t.next++
	return s
}

// assignFrameOffsets gives every parameter and local variable
// belonging to fn a distinct 8-byte-aligned negative frame-relative
// slot -- the convention internal/backend/x86_64 and
// internal/backend/m6809 share for N(%rbp)/N,S addressing.
// internal/backend/qbe ignores Pos entirely, addressing locals by
// symbol name instead, so this pass is harmless overhead there.
//
// This lives in codegen rather than in a Backend implementation
// because it is the one piece of "frame layout" both register-based
// back-ends need identically; see DESIGN.md for why that outweighs
// keeping it strictly inside Backend.
func assignFrameOffsets(tab *sym.Table, fn *sym.Symbol) *tempPool {
	offset := 0
	alloc := func(size int) int {
		if size < 8 {
			size = 8
		}
		offset -= size
		return offset
	}
	for p := fn.Member; p != nil; p = p.Next {
		p.Pos = alloc(p.Size)
	}
	for l := tab.Locals.Head(); l != nil; l = l.Next {
		if l.Class != sym.Local {
			continue // Param-class clones duplicate fn.Member and are never referenced
		}
		l.Pos = alloc(l.Size)
	}
	pool := &tempPool{}
	for i := 0; i < maxMergeTemps; i++ {
		pool.syms = append(pool.syms, &sym.Symbol{
			Name: fmt.Sprintf("__merge%d", i), Type: types.LONG, Class: sym.Local,
			Size: 8, Pos: alloc(8),
		})
	}
	return pool
}

func (g *Generator) genFunction(tab *sym.Table, fn ast.Function) {
	fn.Sym.Pos = g.label() // the shared end/return label every RETURN jumps to
	g.pool = assignFrameOffsets(tab, fn.Sym)
	g.be.FuncPreamble(fn.Sym)
	g.genStmt(fn.Body, fn.Sym, ctx{})
	g.be.FreeAllRegisters(backend.NoReg)
	g.be.FuncPostamble(fn.Sym)
}

// ---- Statements -----------------------------------------------------

func (g *Generator) genStmt(s ast.Stmt, fn *sym.Symbol, c ctx) {
	switch n := s.(type) {
	case nil:
		return
	case ast.Glue:
		g.genStmt(n.Left, fn, c)
		g.be.FreeAllRegisters(backend.NoReg)
		g.genStmt(n.Right, fn, c)
	case ast.ExprStmt:
		g.genExpr(n.X)
	case ast.If:
		g.genIf(n, fn, c)
	case ast.While:
		g.genWhile(n, fn, c)
	case ast.Return:
		g.genReturn(n, fn)
	case ast.Break:
		if !c.hasBreak {
			diag.SemanticFatalf(n.Line(), "break statement not within a loop or switch")
		}
		g.be.Jump(c.breakLabel)
	case ast.Continue:
		if !c.hasContinue {
			diag.SemanticFatalf(n.Line(), "continue statement not within a loop")
		}
		g.be.Jump(c.continueLabel)
	case ast.Switch:
		g.genSwitch(n, fn, c)
	default:
		panic(fmt.Sprintf("codegen: unhandled statement %T", s))
	}
}

func (g *Generator) genIf(n ast.If, fn *sym.Symbol, c ctx) {
	falseLabel := g.label()
	g.genJumpIfFalse(n.Cond, falseLabel)
	g.be.FreeAllRegisters(backend.NoReg)
	g.genStmt(n.Then, fn, c)
	g.be.FreeAllRegisters(backend.NoReg)
	if n.Else != nil {
		endLabel := g.label()
		g.be.Jump(endLabel)
		g.be.Label(falseLabel)
		g.genStmt(n.Else, fn, c)
		g.be.Label(endLabel)
		return
	}
	g.be.Label(falseLabel)
}

func (g *Generator) genWhile(n ast.While, fn *sym.Symbol, outer ctx) {
	top := g.label()
	end := g.label()
	g.be.Label(top)
	g.genJumpIfFalse(n.Cond, end)
	g.be.FreeAllRegisters(backend.NoReg)
	inner := ctx{breakLabel: end, hasBreak: true, continueLabel: top, hasContinue: true}
	g.genStmt(n.Body, fn, inner)
	g.be.FreeAllRegisters(backend.NoReg)
	g.be.Jump(top)
	g.be.Label(end)
}

func (g *Generator) genReturn(n ast.Return, fn *sym.Symbol) {
	if n.Value == nil {
		g.be.Return(fn, backend.NoReg)
		return
	}
	g.be.Return(fn, g.genExpr(n.Value))
}

func (g *Generator) genSwitch(n ast.Switch, fn *sym.Symbol, outer ctx) {
	sel := g.genExpr(n.Selector)
	g.be.FreeAllRegisters(backend.NoReg)

	endLabel := g.label()
	caseLabels := make([]int, len(n.Cases))
	var table []backend.SwitchCase
	defaultLabel := g.label() // used only if the switch carries no explicit default
	target := defaultLabel
	for i, c := range n.Cases {
		caseLabels[i] = g.label()
		if c.IsDefault {
			target = caseLabels[i]
			continue
		}
		table = append(table, backend.SwitchCase{Value: c.Value, Label: caseLabels[i]})
	}

	g.be.Switch(sel, table, target)

	inner := ctx{breakLabel: endLabel, hasBreak: true, continueLabel: outer.continueLabel, hasContinue: outer.hasContinue}
	haveDefault := false
	for i, c := range n.Cases {
		g.be.Label(caseLabels[i])
		if c.IsDefault {
			haveDefault = true
		}
		g.genStmt(c.Body, fn, inner)
		g.be.FreeAllRegisters(backend.NoReg)
	}
	if !haveDefault {
		g.be.Label(defaultLabel)
	}
	g.be.Label(endLabel)
}

// ---- Conditions: the comparison/boolean dual lowering ----------------

func isComparison(op ast.BinOp) bool { return op >= ast.EQ && op <= ast.GE }

// genJumpIfFalse lowers cond for control flow: it emits whatever code
// is needed to evaluate cond and branch to falseLabel exactly when
// cond is false, recursing through TOBOOL/LOGNOT/LOGAND/LOGOR so that
// && and || short-circuit via jumps instead of ever materialising an
// intermediate 0/1 value.
func (g *Generator) genJumpIfFalse(e ast.Expr, falseLabel int) {
	switch n := e.(type) {
	case ast.Unary:
		switch n.Op {
		case ast.TOBOOL:
			g.genJumpIfFalse(n.Operand, falseLabel)
			return
		case ast.LOGNOT:
			g.genJumpIfTrue(n.Operand, falseLabel)
			return
		}
	case ast.Binary:
		switch {
		case isComparison(n.Op):
			l := g.genExpr(n.Left)
			r := g.genExpr(n.Right)
			g.be.CompareAndJump(n.Op, l, r, falseLabel)
			return
		case n.Op == ast.LOGAND:
			g.genJumpIfFalse(n.Left, falseLabel)
			g.be.FreeAllRegisters(backend.NoReg)
			g.genJumpIfFalse(n.Right, falseLabel)
			return
		case n.Op == ast.LOGOR:
			pass := g.label()
			g.genJumpIfTrue(n.Left, pass)
			g.be.FreeAllRegisters(backend.NoReg)
			g.genJumpIfFalse(n.Right, falseLabel)
			g.be.Label(pass)
			return
		}
	}
	g.be.JumpIfFalse(g.genExpr(e), falseLabel)
}

// genJumpIfTrue is genJumpIfFalse's mirror image, needed so LOGOR's
// left-hand short-circuit ("if the left side is already true, skip
// evaluating the right") can be expressed without a dedicated
// jump-if-true Backend primitive: the fallback path synthesises one
// from JumpIfFalse plus an unconditional Jump.
func (g *Generator) genJumpIfTrue(e ast.Expr, trueLabel int) {
	switch n := e.(type) {
	case ast.Unary:
		switch n.Op {
		case ast.TOBOOL:
			g.genJumpIfTrue(n.Operand, trueLabel)
			return
		case ast.LOGNOT:
			g.genJumpIfFalse(n.Operand, trueLabel)
			return
		}
	case ast.Binary:
		switch {
		case isComparison(n.Op):
			l := g.genExpr(n.Left)
			r := g.genExpr(n.Right)
			fail := g.label()
			g.be.CompareAndJump(n.Op, l, r, fail)
			g.be.Jump(trueLabel)
			g.be.Label(fail)
			return
		case n.Op == ast.LOGOR:
			g.genJumpIfTrue(n.Left, trueLabel)
			g.be.FreeAllRegisters(backend.NoReg)
			g.genJumpIfTrue(n.Right, trueLabel)
			return
		case n.Op == ast.LOGAND:
			fail := g.label()
			g.genJumpIfFalse(n.Left, fail)
			g.be.FreeAllRegisters(backend.NoReg)
			g.genJumpIfTrue(n.Right, trueLabel)
			g.be.Label(fail)
			return
		}
	}
	r := g.genExpr(e)
	skip := g.label()
	g.be.JumpIfFalse(r, skip)
	g.be.Jump(trueLabel)
	g.be.Label(skip)
}

// ---- Expressions -------------------------------------------------------

func (g *Generator) loadSym(s *sym.Symbol) backend.Reg {
	if s.Class == sym.Local || s.Class == sym.Param {
		return g.be.LoadLocal(s)
	}
	return g.be.LoadGlobal(s)
}

func (g *Generator) genExpr(e ast.Expr) backend.Reg {
	switch n := e.(type) {
	case ast.IntLit:
		return g.be.LoadInt(n.Value, n.Type)
	case ast.StrLit:
		return g.be.LoadGlobalStr(n.Label)
	case ast.Ident:
		if !n.Rvalue {
			return g.be.Address(n.Sym)
		}
		return g.loadSym(n.Sym)
	case ast.Binary:
		return g.genBinary(n)
	case ast.Unary:
		return g.genUnary(n)
	case ast.Widen:
		return g.be.Widen(g.genExpr(n.Operand), ast.TypeOf(n.Operand), n.Type)
	case ast.Scale:
		return g.be.ScaleConst(g.genExpr(n.Operand), n.Size)
	case ast.Cast:
		return g.genExpr(n.Operand) // a Reg carries no static type; Type only guided Widen/Scale upstream
	case ast.Assign:
		return g.genAssign(n)
	case ast.Ternary:
		return g.genTernary(n)
	case ast.FuncCall:
		return g.genCall(n)
	case ast.Member:
		addr := g.genMemberAddr(n)
		if !n.Rvalue {
			return addr
		}
		return g.be.Deref(addr, n.Type)
	}
	panic(fmt.Sprintf("codegen: unhandled expression %T", e))
}

// genAddrOf computes the address of an lvalue expression restricted to
// the same two shapes the parser accepts as an address-of/assignment
// target: a bare identifier, or a chain of member accesses rooted at
// one.
func (g *Generator) genAddrOf(e ast.Expr) backend.Reg {
	switch v := e.(type) {
	case ast.Ident:
		return g.be.Address(v.Sym)
	case ast.Member:
		return g.genMemberAddr(v)
	}
	panic(fmt.Sprintf("codegen: cannot take the address of %T", e))
}

// genMemberAddr computes base.field's/base->field's address: the
// base's address (or, for ->, the base's pointer value directly) plus
// Field's byte offset. A chain like a.b.c composes by nesting
// genMemberAddr/genAddrOf calls, each returning the address one level
// up needs as its own base.
func (g *Generator) genMemberAddr(n ast.Member) backend.Reg {
	var base backend.Reg
	if n.Arrow {
		base = g.genExpr(n.Operand)
	} else {
		base = g.genAddrOf(n.Operand)
	}
	if n.Field.Pos == 0 {
		return base
	}
	return g.be.Add(base, g.be.LoadInt(int64(n.Field.Pos), types.LONG))
}

func (g *Generator) genBinary(n ast.Binary) backend.Reg {
	switch {
	case n.Op == ast.LOGAND || n.Op == ast.LOGOR:
		return g.genLogicalValue(n)
	case isComparison(n.Op):
		l := g.genExpr(n.Left)
		r := g.genExpr(n.Right)
		return g.be.CompareAndSet(n.Op, l, r)
	}
	l := g.genExpr(n.Left)
	r := g.genExpr(n.Right)
	switch n.Op {
	case ast.ADD:
		return g.be.Add(l, r)
	case ast.SUBTRACT:
		return g.be.Sub(l, r)
	case ast.MULTIPLY:
		return g.be.Mul(l, r)
	case ast.DIVIDE:
		return g.be.Div(l, r)
	case ast.OR:
		return g.be.Or(l, r)
	case ast.XOR:
		return g.be.Xor(l, r)
	case ast.AND:
		return g.be.And(l, r)
	case ast.LSHIFT:
		return g.be.ShiftLeft(l, r)
	case ast.RSHIFT:
		return g.be.ShiftRight(l, r)
	}
	panic(fmt.Sprintf("codegen: unhandled binary operator %v", n.Op))
}

// genLogicalValue lowers && / || used as an ordinary value (not an
// IF/WHILE condition, which genJumpIfFalse handles without ever
// producing a register). It still short-circuits, joining the two
// possible outcomes through a hidden per-function merge slot instead
// of assuming a register survives across the jump -- the only join
// technique that stays correct across all three back-ends, including
// the register-free SSA one.
func (g *Generator) genLogicalValue(n ast.Binary) backend.Reg {
	tmp := g.pool.take()
	shortLabel := g.label()
	endLabel := g.label()

	if n.Op == ast.LOGAND {
		g.genJumpIfFalse(n.Left, shortLabel)
	} else {
		g.genJumpIfTrue(n.Left, shortLabel)
	}
	g.be.FreeAllRegisters(backend.NoReg)
	g.be.Store(g.be.ToBool(g.genExpr(n.Right)), tmp)
	g.be.FreeAllRegisters(backend.NoReg)
	g.be.Jump(endLabel)

	g.be.Label(shortLabel)
	shortValue := int64(0)
	if n.Op == ast.LOGOR {
		shortValue = 1
	}
	g.be.Store(g.be.LoadInt(shortValue, types.INT), tmp)
	g.be.FreeAllRegisters(backend.NoReg)

	g.be.Label(endLabel)
	return g.be.LoadLocal(tmp)
}

func (g *Generator) genUnary(n ast.Unary) backend.Reg {
	switch n.Op {
	case ast.NEGATE:
		return g.be.Negate(g.genExpr(n.Operand))
	case ast.INVERT:
		return g.be.Invert(g.genExpr(n.Operand))
	case ast.LOGNOT:
		return g.be.LogNot(g.genExpr(n.Operand))
	case ast.TOBOOL:
		return g.be.ToBool(g.genExpr(n.Operand))
	case ast.ADDR:
		return g.genAddrOf(n.Operand)
	case ast.DEREF:
		return g.be.Deref(g.genExpr(n.Operand), n.Type)
	case ast.PREINC, ast.PREDEC, ast.POSTINC, ast.POSTDEC:
		return g.genIncDec(n)
	}
	panic(fmt.Sprintf("codegen: unhandled unary operator %v", n.Op))
}

// stepFor returns the amount ++/-- changes a value of type t by: 1 for
// plain integers, the pointee size for a pointer, matching the scaling
// ModifyType applies to ordinary pointer arithmetic.
func stepFor(t types.Primitive) int64 {
	if !types.PtrType(t) {
		return 1
	}
	if sz := types.PointedToSize(t, 0); sz > 1 {
		return int64(sz)
	}
	return 1
}

func (g *Generator) genIncDec(n ast.Unary) backend.Reg {
	delta := stepFor(ast.TypeOf(n.Operand))
	if n.Op == ast.PREDEC || n.Op == ast.POSTDEC {
		delta = -delta
	}

	switch target := n.Operand.(type) {
	case ast.Ident:
		old := g.loadSym(target.Sym)
		updated := g.be.Add(old, g.be.LoadInt(delta, target.Type))
		g.be.Store(updated, target.Sym)
		if n.Op == ast.PREINC || n.Op == ast.PREDEC {
			return updated
		}
		return old
	case ast.Unary:
		if target.Op != ast.DEREF {
			break
		}
		ptr := g.genExpr(target.Operand)
		old := g.be.Deref(ptr, target.Type)
		updated := g.be.Add(old, g.be.LoadInt(delta, target.Type))
		// Deref above consumed ptr's register to hold the loaded value,
		// so the store-back needs the address recomputed.
		g.be.StoreDeref(updated, g.genExpr(target.Operand), target.Type)
		if n.Op == ast.PREINC || n.Op == ast.PREDEC {
			return updated
		}
		return old
	case ast.Member:
		addr := g.genMemberAddr(target)
		old := g.be.Deref(addr, target.Type)
		updated := g.be.Add(old, g.be.LoadInt(delta, target.Type))
		// Deref above consumed addr's register to hold the loaded value,
		// so the store-back needs the address recomputed.
		g.be.StoreDeref(updated, g.genMemberAddr(target), target.Type)
		if n.Op == ast.PREINC || n.Op == ast.PREDEC {
			return updated
		}
		return old
	}
	panic("codegen: ++/-- operand is not an lvalue")
}

func (g *Generator) genAssign(n ast.Assign) backend.Reg {
	val := g.genExpr(n.Value)
	switch target := n.Target.(type) {
	case ast.Ident:
		return g.be.Store(val, target.Sym)
	case ast.Unary:
		if target.Op != ast.DEREF {
			break
		}
		return g.be.StoreDeref(val, g.genExpr(target.Operand), target.Type)
	case ast.Member:
		return g.be.StoreDeref(val, g.genMemberAddr(target), target.Type)
	}
	panic("codegen: assignment target is not an lvalue")
}

// genTernary joins its two branches through the same hidden-local
// technique as genLogicalValue, for the same reason: nothing in the
// Backend contract guarantees a register computed on one side of a
// jump is nameable on the other.
func (g *Generator) genTernary(n ast.Ternary) backend.Reg {
	tmp := g.pool.take()
	elseLabel := g.label()
	endLabel := g.label()

	g.genJumpIfFalse(n.Cond, elseLabel)
	g.be.Store(g.genExpr(n.Then), tmp)
	g.be.FreeAllRegisters(backend.NoReg)
	g.be.Jump(endLabel)

	g.be.Label(elseLabel)
	g.be.Store(g.genExpr(n.Else), tmp)
	g.be.FreeAllRegisters(backend.NoReg)

	g.be.Label(endLabel)
	return g.be.LoadLocal(tmp)
}

// genCall evaluates arguments left-to-right (source order, for correct
// side-effect ordering) then copies them into ABI slots from last to
// first, matching FuncCall's documented Args convention.
func (g *Generator) genCall(n ast.FuncCall) backend.Reg {
	regs := make([]backend.Reg, len(n.Args))
	for i, a := range n.Args {
		regs[i] = g.genExpr(a)
	}
	for i := len(regs) - 1; i >= 0; i-- {
		g.be.CopyArg(regs[i], i)
	}
	return g.be.Call(n.Sym, len(n.Args))
}
