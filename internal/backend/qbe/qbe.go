// Package qbe emits QBE intermediate-representation text instead of
// target assembly. QBE performs its own register allocation, so this
// back-end never spills: every Backend method that computes a new
// value returns it in a freshly numbered SSA temporary
// (`%t0`, `%t1`, ...) and never reuses one (Store and StoreDeref
// return the register they were given), which is also what makes
// this the simplest of the three back-ends and a useful check that
// internal/backend's interface does not leak x86-64-specific
// assumptions.
package qbe

import (
	"fmt"
	"io"

	"github.com/cwj-lang/cwj/internal/ast"
	"github.com/cwj-lang/cwj/internal/backend"
	"github.com/cwj-lang/cwj/internal/sym"
	"github.com/cwj-lang/cwj/internal/types"
)

type Backend struct {
	w       io.Writer
	temps   int
	curFunc *sym.Symbol
}

func New(w io.Writer) *Backend { return &Backend{w: w} }

func (b *Backend) emit(format string, args ...any) { fmt.Fprintf(b.w, format+"\n", args...) }

func (b *Backend) fresh() backend.Reg {
	r := backend.Reg(b.temps)
	b.temps++
	return r
}

func (b *Backend) name(r backend.Reg) string { return fmt.Sprintf("%%t%d", r) }

func qbeType(t types.Primitive) string {
	switch types.Size(t) {
	case 1:
		return "b"
	case 4:
		return "w"
	default:
		return "l"
	}
}

func (b *Backend) Preamble()  {}
func (b *Backend) Postamble() {}

func (b *Backend) FreeAllRegisters(keep backend.Reg) {} // QBE owns liveness; nothing to free here

func (b *Backend) LoadInt(val int64, t types.Primitive) backend.Reg {
	r := b.fresh()
	b.emit("\t%s =l copy %d", b.name(r), val)
	return r
}

func (b *Backend) LoadGlobalStr(label int) backend.Reg {
	r := b.fresh()
	b.emit("\t%s =l copy $L%d", b.name(r), label)
	return r
}

func (b *Backend) LoadGlobal(s *sym.Symbol) backend.Reg {
	r := b.fresh()
	b.emit("\t%s =%s load%s $%s", b.name(r), qbeType(s.Type), qbeType(s.Type), s.Name)
	return r
}

func (b *Backend) LoadLocal(s *sym.Symbol) backend.Reg {
	r := b.fresh()
	b.emit("\t%s =%s load%s %%%s", b.name(r), qbeType(s.Type), qbeType(s.Type), s.Name)
	return r
}

func (b *Backend) Store(r backend.Reg, s *sym.Symbol) backend.Reg {
	dest := "$" + s.Name
	if s.Class == sym.Local || s.Class == sym.Param {
		dest = "%" + s.Name
	}
	b.emit("\tstore%s %s, %s", qbeType(s.Type), b.name(r), dest)
	return r
}

func (b *Backend) StoreDeref(valReg, ptrReg backend.Reg, t types.Primitive) backend.Reg {
	b.emit("\tstore%s %s, %s", qbeType(t), b.name(valReg), b.name(ptrReg))
	return valReg
}

func (b *Backend) Address(s *sym.Symbol) backend.Reg {
	r := b.fresh()
	src := "$" + s.Name
	if s.Class == sym.Local || s.Class == sym.Param {
		src = "%" + s.Name
	}
	b.emit("\t%s =l copy %s", b.name(r), src)
	return r
}

func (b *Backend) Deref(ptrReg backend.Reg, t types.Primitive) backend.Reg {
	r := b.fresh()
	b.emit("\t%s =%s load%s %s", b.name(r), qbeType(t), qbeType(t), b.name(ptrReg))
	return r
}

func (b *Backend) binop(op string, l, r backend.Reg) backend.Reg {
	out := b.fresh()
	b.emit("\t%s =l %s %s, %s", b.name(out), op, b.name(l), b.name(r))
	return out
}

func (b *Backend) Add(l, r backend.Reg) backend.Reg        { return b.binop("add", l, r) }
func (b *Backend) Sub(l, r backend.Reg) backend.Reg        { return b.binop("sub", l, r) }
func (b *Backend) Mul(l, r backend.Reg) backend.Reg        { return b.binop("mul", l, r) }
func (b *Backend) Div(l, r backend.Reg) backend.Reg        { return b.binop("div", l, r) }
func (b *Backend) Or(l, r backend.Reg) backend.Reg         { return b.binop("or", l, r) }
func (b *Backend) Xor(l, r backend.Reg) backend.Reg        { return b.binop("xor", l, r) }
func (b *Backend) And(l, r backend.Reg) backend.Reg        { return b.binop("and", l, r) }
func (b *Backend) ShiftLeft(l, r backend.Reg) backend.Reg  { return b.binop("shl", l, r) }
func (b *Backend) ShiftRight(l, r backend.Reg) backend.Reg { return b.binop("sar", l, r) }

func (b *Backend) Negate(r backend.Reg) backend.Reg {
	out := b.fresh()
	b.emit("\t%s =l neg %s", b.name(out), b.name(r))
	return out
}

func (b *Backend) Invert(r backend.Reg) backend.Reg {
	out := b.fresh()
	b.emit("\t%s =l xor %s, -1", b.name(out), b.name(r))
	return out
}

func (b *Backend) LogNot(r backend.Reg) backend.Reg {
	out := b.fresh()
	b.emit("\t%s =l ceql %s, 0", b.name(out), b.name(r))
	return out
}

func (b *Backend) ToBool(r backend.Reg) backend.Reg {
	out := b.fresh()
	b.emit("\t%s =l cnel %s, 0", b.name(out), b.name(r))
	return out
}

func (b *Backend) JumpIfFalse(r backend.Reg, falseLabel int) {
	cont := b.fresh()
	b.emit("\tjnz %s, @cont%d, @L%d", b.name(r), int(cont), falseLabel)
	b.emit("@cont%d", int(cont))
}

func compareOp(op ast.BinOp) string {
	switch op {
	case ast.EQ:
		return "ceql"
	case ast.NE:
		return "cnel"
	case ast.LT:
		return "csltl"
	case ast.GT:
		return "csgtl"
	case ast.LE:
		return "cslel"
	case ast.GE:
		return "csgel"
	}
	panic("qbe: compareOp on non-comparison op")
}

func (b *Backend) CompareAndSet(op ast.BinOp, l, r backend.Reg) backend.Reg {
	out := b.fresh()
	b.emit("\t%s =l %s %s, %s", b.name(out), compareOp(op), b.name(l), b.name(r))
	return out
}

func (b *Backend) CompareAndJump(op ast.BinOp, l, r backend.Reg, falseLabel int) {
	cond := b.fresh()
	b.emit("\t%s =l %s %s, %s", b.name(cond), compareOp(op), b.name(l), b.name(r))
	cont := b.fresh()
	b.emit("\tjnz %s, @cont%d, @L%d", b.name(cond), int(cont), falseLabel)
	b.emit("@cont%d", int(cont))
}

func (b *Backend) Widen(r backend.Reg, from, to types.Primitive) backend.Reg {
	out := b.fresh()
	b.emit("\t%s =l extsw %s", b.name(out), b.name(r))
	return out
}

func (b *Backend) ScaleConst(r backend.Reg, factor int) backend.Reg {
	out := b.fresh()
	b.emit("\t%s =l mul %s, %d", b.name(out), b.name(r), factor)
	return out
}

func (b *Backend) Label(n int) { b.emit("@L%d", n) }
func (b *Backend) Jump(n int)  { b.emit("\tjmp @L%d", n) }

func (b *Backend) FuncPreamble(fn *sym.Symbol) {
	b.curFunc = fn
	b.emit("export function l $%s(%s) {", fn.Name, qbeParamList(fn))
	b.emit("@start")
}

func qbeParamList(fn *sym.Symbol) string {
	out := ""
	for p := fn.Member; p != nil; p = p.Next {
		if out != "" {
			out += ", "
		}
		out += fmt.Sprintf("%s %%%s", qbeType(p.Type), p.Name)
	}
	return out
}

func (b *Backend) FuncPostamble(fn *sym.Symbol) {
	b.emit("@L%d", fn.Pos)
	b.emit("\tret 0")
	b.emit("}")
	b.curFunc = nil
}

func (b *Backend) CopyArg(r backend.Reg, position int) {} // QBE call passes SSA values directly

func (b *Backend) Call(fn *sym.Symbol, numArgs int) backend.Reg {
	r := b.fresh()
	b.emit("\t%s =l call $%s(...)", b.name(r), fn.Name)
	return r
}

func (b *Backend) Return(fn *sym.Symbol, r backend.Reg) {
	if r == backend.NoReg {
		b.emit("\tjmp @L%d", fn.Pos)
		return
	}
	b.emit("\tret %s", b.name(r))
}

func (b *Backend) GlobalSym(s *sym.Symbol) {
	b.emit("data $%s = { %s %d }", s.Name, qbeType(s.Type), 0)
}

func (b *Backend) GlobalStr(label int, text string, appendTo bool) {
	b.emit("data $L%d = { b %q, b 0 }", label, text)
}

func (b *Backend) GlobalStrEnd() {}

func (b *Backend) Switch(selector backend.Reg, cases []backend.SwitchCase, defaultLabel int) {
	for _, c := range cases {
		hit := b.fresh()
		b.emit("\t%s =l ceql %s, %d", b.name(hit), b.name(selector), c.Value)
		next := b.fresh()
		b.emit("\tjnz %s, @L%d, @miss%d", b.name(hit), c.Label, int(next))
		b.emit("@miss%d", int(next))
	}
	b.emit("\tjmp @L%d", defaultLabel)
}
