// Package m6809 is a secondary back-end targeting the Motorola 6809:
// an 8-bit CPU with exactly two usable 16-bit accumulators (A/B, paired
// as D, and X as a second value-holding register alongside D). Unlike
// internal/backend/x86_64, this allocator does not spill — the 6809
// has too little register file for a frame-slot spill to be worth
// modelling — so a third live value is a developer error in the
// generic code generator, not a code path this back-end degrades
// through silently.
package m6809

import (
	"fmt"
	"io"

	"github.com/cwj-lang/cwj/internal/ast"
	"github.com/cwj-lang/cwj/internal/backend"
	"github.com/cwj-lang/cwj/internal/sym"
	"github.com/cwj-lang/cwj/internal/types"
)

// regName is indexed by backend.Reg: 0 is D (the accumulator pair),
// 1 is X (the index register repurposed as a second value holder).
var regName = [2]string{"D", "X"}

const numRegs = 2

type Backend struct {
	w       io.Writer
	free    [numRegs]bool
	curFunc *sym.Symbol
}

func New(w io.Writer) *Backend {
	b := &Backend{w: w}
	b.free = [numRegs]bool{true, true}
	return b
}

func (b *Backend) emit(format string, args ...any) { fmt.Fprintf(b.w, format+"\n", args...) }

// alloc returns the lowest-index free register. Requesting a third
// concurrently live value panics: spilling is not implemented for this
// target, so a generic code generator path that needs 3 live registers
// at once on the 6809 is a bug in that path, not a runtime condition to
// recover from.
func (b *Backend) alloc() backend.Reg {
	for i, free := range b.free {
		if free {
			b.free[i] = false
			return backend.Reg(i)
		}
	}
	panic("m6809: more than 2 live values requested; this back-end does not spill")
}

func (b *Backend) free1(r backend.Reg) {
	if r == backend.NoReg {
		return
	}
	b.free[r] = true
}

func (b *Backend) FreeAllRegisters(keep backend.Reg) {
	for i := range b.free {
		if backend.Reg(i) != keep {
			b.free[i] = true
		}
	}
}

func (b *Backend) Preamble()  {}
func (b *Backend) Postamble() {}

func (b *Backend) LoadInt(val int64, t types.Primitive) backend.Reg {
	r := b.alloc()
	b.emit("\tLD%s\t#%d", regName[r], val)
	return r
}

func (b *Backend) LoadGlobalStr(label int) backend.Reg {
	r := b.alloc()
	b.emit("\tLD%s\t#L%d", regName[r], label)
	return r
}

func (b *Backend) LoadGlobal(s *sym.Symbol) backend.Reg {
	r := b.alloc()
	b.emit("\tLD%s\t%s", regName[r], s.Name)
	return r
}

func (b *Backend) LoadLocal(s *sym.Symbol) backend.Reg {
	r := b.alloc()
	b.emit("\tLD%s\t%d,S", regName[r], s.Pos)
	return r
}

func (b *Backend) Store(r backend.Reg, s *sym.Symbol) backend.Reg {
	loc := s.Name
	if s.Class == sym.Local || s.Class == sym.Param {
		loc = fmt.Sprintf("%d,S", s.Pos)
	}
	b.emit("\tST%s\t%s", regName[r], loc)
	return r
}

func (b *Backend) StoreDeref(valReg, ptrReg backend.Reg, t types.Primitive) backend.Reg {
	b.emit("\tST%s\t[%s]", regName[valReg], regName[ptrReg])
	b.free1(ptrReg)
	return valReg
}

func (b *Backend) Address(s *sym.Symbol) backend.Reg {
	r := b.alloc()
	if s.Class == sym.Local || s.Class == sym.Param {
		b.emit("\tLEA%s\t%d,S", regName[r][:1], s.Pos)
	} else {
		b.emit("\tLD%s\t#%s", regName[r], s.Name)
	}
	return r
}

func (b *Backend) Deref(ptrReg backend.Reg, t types.Primitive) backend.Reg {
	b.emit("\tLD%s\t[%s]", regName[ptrReg], regName[ptrReg])
	return ptrReg
}

func (b *Backend) binop(mnemonic string, l, r backend.Reg) backend.Reg {
	b.emit("\t%s%s\t%s", mnemonic, regName[l], regName[r])
	b.free1(r)
	return l
}

func (b *Backend) Add(l, r backend.Reg) backend.Reg { return b.binop("ADD", l, r) }
func (b *Backend) Sub(l, r backend.Reg) backend.Reg { return b.binop("SUB", l, r) }
func (b *Backend) Mul(l, r backend.Reg) backend.Reg { return b.binop("MUL", l, r) }

func (b *Backend) Div(l, r backend.Reg) backend.Reg {
	b.emit("\t; software divide routine: D = D / %s", regName[r])
	b.emit("\tJSR\t__divide")
	b.free1(r)
	return l
}

func (b *Backend) Or(l, r backend.Reg) backend.Reg        { return b.binop("OR", l, r) }
func (b *Backend) Xor(l, r backend.Reg) backend.Reg       { return b.binop("EOR", l, r) }
func (b *Backend) And(l, r backend.Reg) backend.Reg       { return b.binop("AND", l, r) }
func (b *Backend) ShiftLeft(l, r backend.Reg) backend.Reg { return b.binop("LSL", l, r) }
func (b *Backend) ShiftRight(l, r backend.Reg) backend.Reg { return b.binop("LSR", l, r) }

func (b *Backend) Negate(r backend.Reg) backend.Reg {
	b.emit("\tNEG%s", regName[r])
	return r
}

func (b *Backend) Invert(r backend.Reg) backend.Reg {
	b.emit("\tCOM%s", regName[r])
	return r
}

func (b *Backend) LogNot(r backend.Reg) backend.Reg {
	b.emit("\tCMP%s\t#0", regName[r])
	b.emit("\tBEQ\t1f")
	b.emit("\tLD%s\t#0", regName[r])
	b.emit("\tBRA\t2f")
	b.emit("1:\tLD%s\t#1", regName[r])
	b.emit("2:")
	return r
}

func (b *Backend) ToBool(r backend.Reg) backend.Reg {
	b.emit("\tCMP%s\t#0", regName[r])
	b.emit("\tBEQ\t1f")
	b.emit("\tLD%s\t#1", regName[r])
	b.emit("\tBRA\t2f")
	b.emit("1:\tLD%s\t#0", regName[r])
	b.emit("2:")
	return r
}

func (b *Backend) JumpIfFalse(r backend.Reg, falseLabel int) {
	b.emit("\tCMP%s\t#0", regName[r])
	b.emit("\tBEQ\tL%d", falseLabel)
	b.free1(r)
}

func condBranch(op ast.BinOp) string {
	switch op {
	case ast.EQ:
		return "BNE"
	case ast.NE:
		return "BEQ"
	case ast.LT:
		return "BGE"
	case ast.GT:
		return "BLE"
	case ast.LE:
		return "BGT"
	case ast.GE:
		return "BLT"
	}
	panic("m6809: condBranch on non-comparison op")
}

func (b *Backend) CompareAndSet(op ast.BinOp, l, r backend.Reg) backend.Reg {
	b.emit("\tCMP%s\t%s", regName[l], regName[r])
	inv := condBranch(op)
	b.emit("\t%s\t1f", inv)
	b.emit("\tLD%s\t#1", regName[l])
	b.emit("\tBRA\t2f")
	b.emit("1:\tLD%s\t#0", regName[l])
	b.emit("2:")
	b.free1(r)
	return l
}

func (b *Backend) CompareAndJump(op ast.BinOp, l, r backend.Reg, falseLabel int) {
	b.emit("\tCMP%s\t%s", regName[l], regName[r])
	b.emit("\t%s\tL%d", condBranch(op), falseLabel)
	b.free1(l)
	b.free1(r)
}

func (b *Backend) Widen(r backend.Reg, from, to types.Primitive) backend.Reg { return r }

func (b *Backend) ScaleConst(r backend.Reg, factor int) backend.Reg {
	switch factor {
	case 2:
		b.emit("\tLSL%s", regName[r])
	case 4:
		b.emit("\tLSL%s\n\tLSL%s", regName[r], regName[r])
	case 8:
		b.emit("\tLSL%s\n\tLSL%s\n\tLSL%s", regName[r], regName[r], regName[r])
	default:
		b.emit("\t; scale by %d has no cheap shift form on this target", factor)
		b.emit("\tJSR\t__mul16")
	}
	return r
}

func (b *Backend) Label(n int) { b.emit("L%d:", n) }
func (b *Backend) Jump(n int)  { b.emit("\tJMP\tL%d", n) }

func (b *Backend) FuncPreamble(fn *sym.Symbol) {
	b.curFunc = fn
	b.emit("%s:", fn.Name)
	b.emit("\tPSHS\tU")
	b.emit("\tTFR\tS,U")
}

func (b *Backend) FuncPostamble(fn *sym.Symbol) {
	b.emit("L%d:", fn.Pos)
	b.emit("\tPULS\tU,PC")
	b.curFunc = nil
}

func (b *Backend) CopyArg(r backend.Reg, position int) {
	b.emit("\tPSHS\t%s", regName[r]) // 6809 has no call-register ABI; args go on the stack
	b.free1(r)
}

func (b *Backend) Call(fn *sym.Symbol, numArgs int) backend.Reg {
	b.emit("\tJSR\t%s", fn.Name)
	return b.alloc()
}

func (b *Backend) Return(fn *sym.Symbol, r backend.Reg) {
	if r != backend.NoReg && r != 0 {
		b.emit("\tTFR\t%s,D", regName[r])
	}
	b.emit("\tJMP\tL%d", fn.Pos)
}

func (b *Backend) GlobalSym(s *sym.Symbol) {
	b.emit("%s:\tRMB\t%d", s.Name, s.Size)
}

func (b *Backend) GlobalStr(label int, text string, appendTo bool) {
	if !appendTo {
		b.emit("L%d:", label)
	}
	b.emit("\tFCN\t%q", text)
}

func (b *Backend) GlobalStrEnd() {}

func (b *Backend) Switch(selector backend.Reg, cases []backend.SwitchCase, defaultLabel int) {
	for _, c := range cases {
		b.emit("\tCMP%s\t#%d", regName[selector], c.Value)
		b.emit("\tBEQ\tL%d", c.Label)
	}
	b.emit("\tJMP\tL%d", defaultLabel)
}
