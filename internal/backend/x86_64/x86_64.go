// Package x86_64 is the canonical target back-end: a four
// general-purpose-register allocator with spill-to-frame-slot, System V
// argument passing, and AT&T-syntax assembly text output.
//
// Shaped after a VM's execution-time-state-owning struct (there, a
// value stack and instruction pointer; here, a register free-list and
// frame cursor) whose run loop is a big switch on opcode — the model
// for this back-end's own per-primitive-operation dispatch, and for a
// stack's push/pop discipline, which this allocator's alloc/free
// free-list mirrors.
package x86_64

import (
	"fmt"
	"io"

	"github.com/cwj-lang/cwj/internal/ast"
	"github.com/cwj-lang/cwj/internal/backend"
	"github.com/cwj-lang/cwj/internal/sym"
	"github.com/cwj-lang/cwj/internal/types"
)

// reg64/reg32/reg8 are indexed by physical slot (phys(r) of a
// backend.Reg), not by the logical Reg itself; the 64/32/8-bit views are
// needed because loads/stores size to the operand's type.
var reg64 = [4]string{"%r8", "%r9", "%r10", "%r11"}
var reg32 = [4]string{"%r8d", "%r9d", "%r10d", "%r11d"}
var reg8 = [4]string{"%r8b", "%r9b", "%r10b", "%r11b"}

// argReg64 is the System V integer argument-register order for the
// first six arguments; CopyArg pushes further arguments on the stack,
// and FuncPreamble copies only the first six into the callee's frame.
var argReg64 = [6]string{"%rdi", "%rsi", "%rdx", "%rcx", "%r8", "%r9"}

const numRegs = 4

// Backend implements backend.Backend, writing AT&T assembly to w.
//
// A backend.Reg is a logical value identity, handed out by alloc in
// strictly increasing order; it is never reused for a second, unrelated
// value the way a bare physical-register index would be. owner maps a
// resident logical register to the physical slot (0..numRegs-1)
// currently holding it; spillSlot maps one that has been evicted to
// its scratch frame offset instead. A physical slot holds at most one
// logical register at a time (physOwner tracks which, or NoReg when
// free), so alloc/reload never confuse one logical value's spill
// record for another's, even after the physical slot they once shared
// has been handed to something else entirely.
type Backend struct {
	w          io.Writer
	physOwner  [numRegs]backend.Reg // logical reg resident in each physical slot, or NoReg
	owner      map[backend.Reg]int  // logical reg -> physical slot, while resident
	spillSlot  map[backend.Reg]int  // logical reg -> scratch frame offset, while spilled
	nextReg    backend.Reg
	spillNext  int
	localBase  int // current function's running negative-offset cursor
	curFunc    *sym.Symbol
	labelCount int
}

func New(w io.Writer) *Backend {
	b := &Backend{w: w, owner: map[backend.Reg]int{}, spillSlot: map[backend.Reg]int{}}
	b.freeAll()
	return b
}

func (b *Backend) emit(format string, args ...any) {
	fmt.Fprintf(b.w, format+"\n", args...)
}

func (b *Backend) freeAll() {
	for i := range b.physOwner {
		b.physOwner[i] = backend.NoReg
	}
}

func (b *Backend) FreeAllRegisters(keep backend.Reg) {
	for i, r := range b.physOwner {
		if r != keep {
			b.physOwner[i] = backend.NoReg
		}
	}
	for r := range b.owner {
		if r != keep {
			delete(b.owner, r)
		}
	}
	for r := range b.spillSlot {
		if r != keep {
			delete(b.spillSlot, r)
		}
	}
}

// spill evicts the logical register resident in physical slot phys to
// a fresh scratch frame slot, freeing phys for a new tenant.
func (b *Backend) spill(phys int) {
	victim := b.physOwner[phys]
	b.spillNext -= 8
	slot := b.spillNext
	b.spillSlot[victim] = slot
	b.emit("\tmovq\t%s, %d(%%rbp)", reg64[phys], slot)
	delete(b.owner, victim)
	b.physOwner[phys] = backend.NoReg
}

// alloc mints a fresh logical register and binds it to a free physical
// slot, spilling slot 0's current tenant first if all four are busy.
// The new logical register never aliases a still-live earlier one, so
// a later reload of that earlier register cannot clobber the value
// this call's caller is about to load into its physical slot.
func (b *Backend) alloc() backend.Reg {
	phys := -1
	for i, r := range b.physOwner {
		if r == backend.NoReg {
			phys = i
			break
		}
	}
	if phys == -1 {
		phys = 0
		b.spill(0)
	}
	r := b.nextReg
	b.nextReg++
	b.owner[r] = phys
	b.physOwner[phys] = r
	return r
}

// reload ensures r is resident in some physical register, reloading it
// from its scratch slot (spilling another tenant first if necessary)
// when it is not. A no-op for a register that was never spilled.
func (b *Backend) reload(r backend.Reg) {
	if _, resident := b.owner[r]; resident {
		return
	}
	slot, spilled := b.spillSlot[r]
	if !spilled {
		return
	}
	phys := -1
	for i, o := range b.physOwner {
		if o == backend.NoReg {
			phys = i
			break
		}
	}
	if phys == -1 {
		phys = 0
		b.spill(0)
	}
	b.emit("\tmovq\t%d(%%rbp), %s", slot, reg64[phys])
	delete(b.spillSlot, r)
	b.owner[r] = phys
	b.physOwner[phys] = r
}

// phys returns r's current physical slot. Every caller reloads r first,
// so r is always resident by the time phys is consulted.
func (b *Backend) phys(r backend.Reg) int {
	p, ok := b.owner[r]
	if !ok {
		panic(fmt.Sprintf("x86_64: register %d used without reload", r))
	}
	return p
}

func (b *Backend) free1(r backend.Reg) {
	if r == backend.NoReg {
		return
	}
	if p, ok := b.owner[r]; ok {
		b.physOwner[p] = backend.NoReg
		delete(b.owner, r)
	}
	delete(b.spillSlot, r)
}

// ---- Preamble / postamble -------------------------------------------

func (b *Backend) Preamble() {
	b.emit("\t.text")
}

func (b *Backend) Postamble() {}

// ---- Literals and storage --------------------------------------------

func (b *Backend) LoadInt(val int64, t types.Primitive) backend.Reg {
	r := b.alloc()
	b.emit("\tmovq\t$%d, %s", val, reg64[b.phys(r)])
	return r
}

func (b *Backend) LoadGlobalStr(label int) backend.Reg {
	r := b.alloc()
	b.emit("\tleaq\tL%d(%%rip), %s", label, reg64[b.phys(r)])
	return r
}

func (b *Backend) LoadGlobal(s *sym.Symbol) backend.Reg {
	r := b.alloc()
	b.emit("\t%s\t%s(%%rip), %s", loadOp(s.Type), s.Name, b.regFor(r, s.Type))
	return r
}

func (b *Backend) LoadLocal(s *sym.Symbol) backend.Reg {
	r := b.alloc()
	b.emit("\t%s\t%d(%%rbp), %s", loadOp(s.Type), s.Pos, b.regFor(r, s.Type))
	return r
}

func (b *Backend) Store(r backend.Reg, s *sym.Symbol) backend.Reg {
	b.reload(r)
	loc := fmt.Sprintf("%s(%%rip)", s.Name)
	if s.Class == sym.Local || s.Class == sym.Param {
		loc = fmt.Sprintf("%d(%%rbp)", s.Pos)
	}
	b.emit("\t%s\t%s, %s", storeOp(s.Type), b.regFor(r, s.Type), loc)
	return r
}

func (b *Backend) StoreDeref(valReg, ptrReg backend.Reg, t types.Primitive) backend.Reg {
	b.reload(valReg)
	b.reload(ptrReg)
	b.emit("\t%s\t%s, (%s)", storeOp(t), b.regFor(valReg, t), reg64[b.phys(ptrReg)])
	b.free1(ptrReg)
	return valReg
}

func (b *Backend) Address(s *sym.Symbol) backend.Reg {
	r := b.alloc()
	if s.Class == sym.Local || s.Class == sym.Param {
		b.emit("\tleaq\t%d(%%rbp), %s", s.Pos, reg64[b.phys(r)])
	} else {
		b.emit("\tleaq\t%s(%%rip), %s", s.Name, reg64[b.phys(r)])
	}
	return r
}

func (b *Backend) Deref(ptrReg backend.Reg, t types.Primitive) backend.Reg {
	b.reload(ptrReg)
	b.emit("\t%s\t(%s), %s", loadOp(t), reg64[b.phys(ptrReg)], b.regFor(ptrReg, t))
	return ptrReg
}

func loadOp(t types.Primitive) string {
	switch types.Size(t) {
	case 1:
		return "movzbq"
	case 4:
		return "movslq"
	default:
		return "movq"
	}
}

func storeOp(t types.Primitive) string {
	switch types.Size(t) {
	case 1:
		return "movb"
	case 4:
		return "movl"
	default:
		return "movq"
	}
}

func (b *Backend) regFor(r backend.Reg, t types.Primitive) string {
	p := b.phys(r)
	switch types.Size(t) {
	case 1:
		return reg8[p]
	case 4:
		return reg32[p]
	default:
		return reg64[p]
	}
}

// ---- Arithmetic --------------------------------------------------------

func (b *Backend) binop(mnemonic string, l, r backend.Reg) backend.Reg {
	b.reload(l)
	b.reload(r)
	b.emit("\t%s\t%s, %s", mnemonic, reg64[b.phys(r)], reg64[b.phys(l)])
	b.free1(r)
	return l
}

func (b *Backend) Add(l, r backend.Reg) backend.Reg { return b.binop("addq", l, r) }
func (b *Backend) Sub(l, r backend.Reg) backend.Reg { return b.binop("subq", l, r) }
func (b *Backend) Mul(l, r backend.Reg) backend.Reg { return b.binop("imulq", l, r) }

func (b *Backend) Div(l, r backend.Reg) backend.Reg {
	b.reload(l)
	b.reload(r)
	b.emit("\tmovq\t%s, %%rax", reg64[b.phys(l)])
	b.emit("\tcqto")
	b.emit("\tidivq\t%s", reg64[b.phys(r)])
	b.emit("\tmovq\t%%rax, %s", reg64[b.phys(l)])
	b.free1(r)
	return l
}

func (b *Backend) Or(l, r backend.Reg) backend.Reg        { return b.binop("orq", l, r) }
func (b *Backend) Xor(l, r backend.Reg) backend.Reg       { return b.binop("xorq", l, r) }
func (b *Backend) And(l, r backend.Reg) backend.Reg       { return b.binop("andq", l, r) }
func (b *Backend) ShiftLeft(l, r backend.Reg) backend.Reg { return b.shift("shlq", l, r) }
func (b *Backend) ShiftRight(l, r backend.Reg) backend.Reg { return b.shift("sarq", l, r) }

func (b *Backend) shift(mnemonic string, l, r backend.Reg) backend.Reg {
	b.reload(l)
	b.reload(r)
	b.emit("\tmovq\t%s, %%rcx", reg64[b.phys(r)])
	b.emit("\t%s\t%%cl, %s", mnemonic, reg64[b.phys(l)])
	b.free1(r)
	return l
}

func (b *Backend) Negate(r backend.Reg) backend.Reg {
	b.reload(r)
	b.emit("\tnegq\t%s", reg64[b.phys(r)])
	return r
}

func (b *Backend) Invert(r backend.Reg) backend.Reg {
	b.reload(r)
	b.emit("\tnotq\t%s", reg64[b.phys(r)])
	return r
}

func (b *Backend) LogNot(r backend.Reg) backend.Reg {
	b.reload(r)
	p := b.phys(r)
	b.emit("\ttestq\t%s, %s", reg64[p], reg64[p])
	b.emit("\tsete\t%s", reg8[p])
	b.emit("\tmovzbq\t%s, %s", reg8[p], reg64[p])
	return r
}

func (b *Backend) ToBool(r backend.Reg) backend.Reg {
	b.reload(r)
	p := b.phys(r)
	b.emit("\ttestq\t%s, %s", reg64[p], reg64[p])
	b.emit("\tsetne\t%s", reg8[p])
	b.emit("\tmovzbq\t%s, %s", reg8[p], reg64[p])
	return r
}

func (b *Backend) JumpIfFalse(r backend.Reg, falseLabel int) {
	b.reload(r)
	p := b.phys(r)
	b.emit("\ttestq\t%s, %s", reg64[p], reg64[p])
	b.emit("\tjz\tL%d", falseLabel)
	b.free1(r)
}

// ---- Comparisons --------------------------------------------------------

func setcc(op ast.BinOp) string {
	switch op {
	case ast.EQ:
		return "sete"
	case ast.NE:
		return "setne"
	case ast.LT:
		return "setl"
	case ast.GT:
		return "setg"
	case ast.LE:
		return "setle"
	case ast.GE:
		return "setge"
	}
	panic("x86_64: setcc on non-comparison op")
}

// jcc is the jump-if-FALSE mnemonic for op: CompareAndJump branches to
// falseLabel when the comparison does NOT hold, so it negates.
func jcc(op ast.BinOp) string {
	switch op {
	case ast.EQ:
		return "jne"
	case ast.NE:
		return "je"
	case ast.LT:
		return "jge"
	case ast.GT:
		return "jle"
	case ast.LE:
		return "jg"
	case ast.GE:
		return "jl"
	}
	panic("x86_64: jcc on non-comparison op")
}

func (b *Backend) CompareAndSet(op ast.BinOp, l, r backend.Reg) backend.Reg {
	b.reload(l)
	b.reload(r)
	pl, pr := b.phys(l), b.phys(r)
	b.emit("\tcmpq\t%s, %s", reg64[pr], reg64[pl])
	b.emit("\t%s\t%s", setcc(op), reg8[pl])
	b.emit("\tmovzbq\t%s, %s", reg8[pl], reg64[pl])
	b.free1(r)
	return l
}

func (b *Backend) CompareAndJump(op ast.BinOp, l, r backend.Reg, falseLabel int) {
	b.reload(l)
	b.reload(r)
	b.emit("\tcmpq\t%s, %s", reg64[b.phys(r)], reg64[b.phys(l)])
	b.emit("\t%s\tL%d", jcc(op), falseLabel)
	b.free1(l)
	b.free1(r)
}

// ---- Widen / scale -------------------------------------------------------

func (b *Backend) Widen(r backend.Reg, from, to types.Primitive) backend.Reg {
	return r // operands already live in 64-bit registers
}

func (b *Backend) ScaleConst(r backend.Reg, factor int) backend.Reg {
	b.reload(r)
	p := b.phys(r)
	switch factor {
	case 2:
		b.emit("\tshlq\t$1, %s", reg64[p])
	case 4:
		b.emit("\tshlq\t$2, %s", reg64[p])
	case 8:
		b.emit("\tshlq\t$3, %s", reg64[p])
	default:
		b.emit("\timulq\t$%d, %s, %s", factor, reg64[p], reg64[p])
	}
	return r
}

// ---- Control flow --------------------------------------------------------

func (b *Backend) Label(n int) { b.emit("L%d:", n) }
func (b *Backend) Jump(n int)  { b.emit("\tjmp\tL%d", n) }

// ---- Functions ------------------------------------------------------------

func (b *Backend) FuncPreamble(fn *sym.Symbol) {
	b.curFunc = fn
	b.localBase = 0
	b.spillNext = 0
	b.nextReg = 0
	name := fn.Name
	if name == "main" {
		b.emit("\t.globl\tmain")
	}
	b.emit("%s:", name)
	b.emit("\tpushq\t%%rbp")
	b.emit("\tmovq\t%%rsp, %%rbp")
	b.emit("\tsubq\t$%d, %%rsp", frameSize(fn))

	pos := 0
	for p := fn.Member; p != nil; p = p.Next {
		if pos < len(argReg64) {
			b.emit("\tmovq\t%s, %d(%%rbp)", argReg64[pos], p.Pos)
		}
		pos++
	}
}

// frameSize rounds a rough estimate of this function's local-frame
// requirement up to 16 bytes, matching the System V stack-alignment
// rule; cggetlocaloffset-style per-declaration placement happens
// during parsing (internal/parse assigns sym.Symbol.Pos), so this is a
// single pass over locals to find the lowest offset used.
func frameSize(fn *sym.Symbol) int {
	lowest := 0
	count := 0
	for p := fn.Member; p != nil; p = p.Next {
		count++
	}
	needed := count*8 + 64 // generous fixed pad for spills/locals
	if needed > lowest {
		lowest = needed
	}
	return alignTo16(lowest)
}

func alignTo16(n int) int { return (n + 15) &^ 15 }

func (b *Backend) FuncPostamble(fn *sym.Symbol) {
	b.emit("L%d:", fn.Pos) // the function's shared end/return label
	b.emit("\tmovq\t%%rbp, %%rsp")
	b.emit("\tpopq\t%%rbp")
	b.emit("\tret")
	b.curFunc = nil
}

func (b *Backend) CopyArg(r backend.Reg, position int) {
	b.reload(r)
	p := b.phys(r)
	if position < len(argReg64) {
		b.emit("\tmovq\t%s, %s", reg64[p], argReg64[position])
	} else {
		b.emit("\tpushq\t%s", reg64[p])
	}
	b.free1(r)
}

func (b *Backend) Call(fn *sym.Symbol, numArgs int) backend.Reg {
	b.emit("\tcall\t%s", fn.Name)
	r := b.alloc()
	b.emit("\tmovq\t%%rax, %s", reg64[b.phys(r)])
	return r
}

func (b *Backend) Return(fn *sym.Symbol, r backend.Reg) {
	if r != backend.NoReg {
		b.reload(r)
		b.emit("\tmovq\t%s, %%rax", reg64[b.phys(r)])
	}
	b.emit("\tjmp\tL%d", fn.Pos)
}

// ---- Data section ---------------------------------------------------------

func (b *Backend) GlobalSym(s *sym.Symbol) {
	b.emit("\t.data")
	b.emit("\t.globl\t%s", s.Name)
	size := s.Size
	if s.Struct == sym.ArrayType && s.Count > 0 {
		size *= s.Count
	}
	if len(s.Inits) == 0 {
		b.emit("%s:\n\t.zero\t%d", s.Name, size)
		return
	}
	b.emit("%s:", s.Name)
	for _, v := range s.Inits {
		switch types.Size(s.Type) {
		case 1:
			b.emit("\t.byte\t%d", v)
		case 4:
			b.emit("\t.long\t%d", v)
		default:
			b.emit("\t.quad\t%d", v)
		}
	}
}

func (b *Backend) GlobalStr(label int, text string, appendTo bool) {
	if !appendTo {
		b.emit("\t.data")
		b.emit("L%d:", label)
	}
	b.emit("\t.asciz\t%q", text)
}

func (b *Backend) GlobalStrEnd() {}

// ---- Switch ----------------------------------------------------------------

func (b *Backend) Switch(selector backend.Reg, cases []backend.SwitchCase, defaultLabel int) {
	b.reload(selector)
	tableLabel := b.labelCount
	b.labelCount++
	b.emit("\tmovq\t%s, %%rdi", reg64[b.phys(selector)])
	b.emit("\tleaq\tLswitch%d(%%rip), %%rsi", tableLabel)
	b.emit("\tcall\t__switch")
	b.free1(selector)

	b.emit("\t.data")
	b.emit("Lswitch%d:", tableLabel)
	b.emit("\t.quad\t%d", len(cases))
	for _, c := range cases {
		b.emit("\t.quad\t%d, L%d", c.Value, c.Label)
	}
	b.emit("\t.quad\tL%d", defaultLabel)
	b.emit("\t.text")
}
