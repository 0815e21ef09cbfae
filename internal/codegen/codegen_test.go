package codegen

import (
	"fmt"
	"strings"
	"testing"

	"github.com/cwj-lang/cwj/internal/ast"
	"github.com/cwj-lang/cwj/internal/backend"
	"github.com/cwj-lang/cwj/internal/fold"
	"github.com/cwj-lang/cwj/internal/parse"
	"github.com/cwj-lang/cwj/internal/scan"
	"github.com/cwj-lang/cwj/internal/sym"
	"github.com/cwj-lang/cwj/internal/types"
)

// fakeBackend records every call it receives, in order, as a short
// opcode string, so a test can assert on emitted shape without parsing
// real assembly. Every Reg-returning method hands back a fresh,
// monotonically increasing Reg so calls remain distinguishable.
type fakeBackend struct {
	calls []string
	next  backend.Reg
}

func (f *fakeBackend) reg() backend.Reg {
	r := f.next
	f.next++
	return r
}

func (f *fakeBackend) log(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeBackend) Preamble()  { f.log("PREAMBLE") }
func (f *fakeBackend) Postamble() { f.log("POSTAMBLE") }

func (f *fakeBackend) FreeAllRegisters(keep backend.Reg) { f.log("FREEALL") }

func (f *fakeBackend) LoadInt(val int64, t types.Primitive) backend.Reg {
	f.log("LOADINT %d", val)
	return f.reg()
}
func (f *fakeBackend) LoadGlobalStr(label int) backend.Reg {
	f.log("LOADSTR L%d", label)
	return f.reg()
}
func (f *fakeBackend) LoadGlobal(s *sym.Symbol) backend.Reg {
	f.log("LOADGLOBAL %s", s.Name)
	return f.reg()
}
func (f *fakeBackend) LoadLocal(s *sym.Symbol) backend.Reg {
	f.log("LOADLOCAL %s", s.Name)
	return f.reg()
}
func (f *fakeBackend) Store(r backend.Reg, s *sym.Symbol) backend.Reg {
	f.log("STORE %s", s.Name)
	return r
}
func (f *fakeBackend) StoreDeref(valReg, ptrReg backend.Reg, t types.Primitive) backend.Reg {
	f.log("STOREDEREF")
	return valReg
}
func (f *fakeBackend) Address(s *sym.Symbol) backend.Reg {
	f.log("ADDRESS %s", s.Name)
	return f.reg()
}
func (f *fakeBackend) Deref(ptrReg backend.Reg, t types.Primitive) backend.Reg {
	f.log("DEREF")
	return f.reg()
}

func (f *fakeBackend) Add(l, r backend.Reg) backend.Reg { f.log("ADD"); return f.reg() }
func (f *fakeBackend) Sub(l, r backend.Reg) backend.Reg { f.log("SUB"); return f.reg() }
func (f *fakeBackend) Mul(l, r backend.Reg) backend.Reg { f.log("MUL"); return f.reg() }
func (f *fakeBackend) Div(l, r backend.Reg) backend.Reg { f.log("DIV"); return f.reg() }
func (f *fakeBackend) Or(l, r backend.Reg) backend.Reg  { f.log("OR"); return f.reg() }
func (f *fakeBackend) Xor(l, r backend.Reg) backend.Reg { f.log("XOR"); return f.reg() }
func (f *fakeBackend) And(l, r backend.Reg) backend.Reg { f.log("AND"); return f.reg() }
func (f *fakeBackend) ShiftLeft(l, r backend.Reg) backend.Reg  { f.log("SHL"); return f.reg() }
func (f *fakeBackend) ShiftRight(l, r backend.Reg) backend.Reg { f.log("SHR"); return f.reg() }
func (f *fakeBackend) Negate(r backend.Reg) backend.Reg        { f.log("NEGATE"); return f.reg() }
func (f *fakeBackend) Invert(r backend.Reg) backend.Reg        { f.log("INVERT"); return f.reg() }
func (f *fakeBackend) LogNot(r backend.Reg) backend.Reg        { f.log("LOGNOT"); return f.reg() }
func (f *fakeBackend) ToBool(r backend.Reg) backend.Reg        { f.log("TOBOOL"); return f.reg() }
func (f *fakeBackend) JumpIfFalse(r backend.Reg, falseLabel int) {
	f.log("JUMPIFFALSE L%d", falseLabel)
}

func (f *fakeBackend) CompareAndSet(op ast.BinOp, l, r backend.Reg) backend.Reg {
	f.log("COMPARESET")
	return f.reg()
}
func (f *fakeBackend) CompareAndJump(op ast.BinOp, l, r backend.Reg, falseLabel int) {
	f.log("COMPAREJUMP L%d", falseLabel)
}

func (f *fakeBackend) Widen(r backend.Reg, from, to types.Primitive) backend.Reg {
	f.log("WIDEN")
	return f.reg()
}
func (f *fakeBackend) ScaleConst(r backend.Reg, factor int) backend.Reg {
	f.log("SCALE x%d", factor)
	return f.reg()
}

func (f *fakeBackend) Label(n int) { f.log("LABEL L%d", n) }
func (f *fakeBackend) Jump(n int)  { f.log("JUMP L%d", n) }

func (f *fakeBackend) FuncPreamble(fn *sym.Symbol)  { f.log("FUNCPREAMBLE %s", fn.Name) }
func (f *fakeBackend) FuncPostamble(fn *sym.Symbol) { f.log("FUNCPOSTAMBLE %s", fn.Name) }
func (f *fakeBackend) CopyArg(r backend.Reg, position int) { f.log("COPYARG %d", position) }
func (f *fakeBackend) Call(fn *sym.Symbol, numArgs int) backend.Reg {
	f.log("CALL %s", fn.Name)
	return f.reg()
}
func (f *fakeBackend) Return(fn *sym.Symbol, r backend.Reg) { f.log("RETURN") }

func (f *fakeBackend) GlobalSym(s *sym.Symbol)                       { f.log("GLOBALSYM %s", s.Name) }
func (f *fakeBackend) GlobalStr(label int, text string, appendTo bool) { f.log("GLOBALSTR L%d %q", label, text) }
func (f *fakeBackend) GlobalStrEnd()                                 { f.log("GLOBALSTREND") }

func (f *fakeBackend) Switch(selector backend.Reg, cases []backend.SwitchCase, defaultLabel int) {
	f.log("SWITCH default=L%d cases=%d", defaultLabel, len(cases))
}

func compileSrc(t *testing.T, src string) (*fakeBackend, *sym.Table, []ast.Stmt) {
	t.Helper()
	tab := sym.NewTable()
	p := parse.New(scan.New(strings.NewReader(src)), tab)
	funcs := p.ParseUnit()
	for i, f := range funcs {
		if fn, ok := f.(ast.Function); ok {
			fn.Body = fold.Stmt(fn.Body)
			funcs[i] = fn
		}
	}
	fb := &fakeBackend{}
	New(fb).GenUnit(tab, funcs)
	return fb, tab, funcs
}

func joined(calls []string) string { return strings.Join(calls, "\n") }

func TestGenUnitBracketsWithPreambleAndPostamble(t *testing.T) {
	fb, _, _ := compileSrc(t, `int f() { return 1; }`)
	if fb.calls[0] != "PREAMBLE" {
		t.Fatalf("expected PREAMBLE first, got %q", fb.calls[0])
	}
	if fb.calls[len(fb.calls)-1] != "POSTAMBLE" {
		t.Fatalf("expected POSTAMBLE last, got %q", fb.calls[len(fb.calls)-1])
	}
}

func TestIfWithComparisonEmitsCompareAndJumpNotToBool(t *testing.T) {
	fb, _, _ := compileSrc(t, `
		int f(int x) {
			if (x < 5) { return 1; }
			return 0;
		}
	`)
	out := joined(fb.calls)
	if !strings.Contains(out, "COMPAREJUMP") {
		t.Fatalf("expected a COMPAREJUMP for the if condition, got:\n%s", out)
	}
	if strings.Contains(out, "TOBOOL") {
		t.Fatalf("comparison condition should not materialise a 0/1 value, got:\n%s", out)
	}
}

func TestIfWithoutComparisonSkipsToBoolAndJumpsDirectly(t *testing.T) {
	fb, _, _ := compileSrc(t, `
		int f(int x) {
			if (x) { return 1; }
			return 0;
		}
	`)
	out := joined(fb.calls)
	if strings.Contains(out, "TOBOOL") {
		t.Fatalf("TOBOOL-wrapped condition used for control flow should unwrap to JUMPIFFALSE, not call ToBool:\n%s", out)
	}
	if !strings.Contains(out, "JUMPIFFALSE") {
		t.Fatalf("expected JUMPIFFALSE, got:\n%s", out)
	}
}

func TestLogicalAndInConditionShortCircuitsWithoutToBool(t *testing.T) {
	fb, _, _ := compileSrc(t, `
		int f(int a, int b) {
			if (a < 1 && b < 2) { return 1; }
			return 0;
		}
	`)
	out := joined(fb.calls)
	if n := strings.Count(out, "COMPAREJUMP"); n != 2 {
		t.Fatalf("expected two COMPAREJUMP calls (one per operand), got %d:\n%s", n, out)
	}
	if strings.Contains(out, "TOBOOL") {
		t.Fatalf("&& in a condition context should never materialise a 0/1 value:\n%s", out)
	}
}

func TestLogicalAndAsValueUsesMergeSlotAndToBool(t *testing.T) {
	fb, _, _ := compileSrc(t, `
		int f(int a, int b) {
			int c;
			c = a < 1 && b < 2;
			return c;
		}
	`)
	out := joined(fb.calls)
	if !strings.Contains(out, "TOBOOL") {
		t.Fatalf("&& used as a plain value must normalise the true branch to 0/1, got:\n%s", out)
	}
	if !strings.Contains(out, "LOADLOCAL __merge0") {
		t.Fatalf("expected the result reloaded from the first merge slot, got:\n%s", out)
	}
}

func TestForLoopLowersToLabelledWhileLoop(t *testing.T) {
	fb, _, _ := compileSrc(t, `
		int f() {
			int i;
			int sum;
			for (i = 0; i < 10; i = i + 1) {
				sum = sum + i;
			}
			return sum;
		}
	`)
	out := joined(fb.calls)
	if strings.Count(out, "LABEL") < 2 {
		t.Fatalf("expected a loop-top and a loop-end label, got:\n%s", out)
	}
	if !strings.Contains(out, "JUMP L") {
		t.Fatalf("expected an unconditional jump back to the loop top, got:\n%s", out)
	}
}

func TestBreakOutsideLoopIsSemanticFatal(t *testing.T) {
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected a panic for break outside a loop or switch")
		}
		if !strings.Contains(fmt.Sprint(r), "break") {
			t.Fatalf("expected a break-related diagnostic, got %v", r)
		}
	}()
	tab := sym.NewTable()
	fn := &sym.Symbol{Name: "f"}
	g := New(&fakeBackend{})
	g.pool = assignFrameOffsets(tab, fn)
	g.genStmt(ast.Break{Base: ast.NewBase(1)}, fn, ctx{})
}

func TestSwitchEmitsOneLabelPerCaseAndADefault(t *testing.T) {
	fb, _, _ := compileSrc(t, `
		int f(int x) {
			switch (x) {
			case 1: return 10;
			case 2: return 20;
			default: return 0;
			}
			return 0;
		}
	`)
	out := joined(fb.calls)
	if !strings.Contains(out, "SWITCH") {
		t.Fatalf("expected a SWITCH call, got:\n%s", out)
	}
	if n := strings.Count(out, "RETURN"); n != 4 {
		t.Fatalf("expected four RETURNs (one per arm plus the trailing return), got %d:\n%s", n, out)
	}
}

func TestTernaryUsesMergeSlotLikeLogicalValue(t *testing.T) {
	fb, _, _ := compileSrc(t, `
		int f(int a) {
			int c;
			c = a ? 1 : 2;
			return c;
		}
	`)
	out := joined(fb.calls)
	if !strings.Contains(out, "STORE __merge0") {
		t.Fatalf("expected both ternary arms to store into the same merge slot, got:\n%s", out)
	}
	if strings.Count(out, "STORE __merge0") != 2 {
		t.Fatalf("expected exactly two stores into the merge slot (then and else), got:\n%s", out)
	}
}

func TestCallCopiesArgsLastToFirst(t *testing.T) {
	fb, _, _ := compileSrc(t, `
		int g(int a, int b) { return a; }
		int f() { return g(1, 2); }
	`)
	out := joined(fb.calls)
	lines := fb.calls
	var i1, i0 int = -1, -1
	for i, l := range lines {
		if l == "COPYARG 1" {
			i1 = i
		}
		if l == "COPYARG 0" {
			i0 = i
		}
	}
	if i1 == -1 || i0 == -1 {
		t.Fatalf("expected both COPYARG 0 and COPYARG 1, got:\n%s", out)
	}
	if i1 > i0 {
		t.Fatalf("expected COPYARG 1 (last argument) before COPYARG 0 (first), got:\n%s", out)
	}
}

func TestGlobalStringLiteralEmitsTextIntoDataSection(t *testing.T) {
	fb, _, _ := compileSrc(t, `
		int f() {
			char *p;
			p = "hello";
			return 0;
		}
	`)
	out := joined(fb.calls)
	if !strings.Contains(out, `GLOBALSTR L0 "hello"`) {
		t.Fatalf("expected the string literal's text emitted by label, got:\n%s", out)
	}
}

// Invariant: the monotonic counter behind g.label() is never reset or
// reused mid-unit, across a whole translation unit spanning several
// functions -- no id reaches LABEL twice, and every label of a function
// is greater than every label of the functions before it. Within one
// function LABEL order need not be allocation order: a switch allocates
// its end label before its case labels and places it after them.
func TestLabelIdsAreStrictlyIncreasing(t *testing.T) {
	fb, _, _ := compileSrc(t, `
		int f(int x) {
			if (x < 1) { return 1; }
			while (x < 10) { x = x + 1; }
			return 0;
		}
		int g(int y) {
			switch (y) {
				case 1: return 1;
				default: return 0;
			}
		}
	`)
	seen := map[int]bool{}
	prevFuncMax, curMax := -1, -1
	for _, call := range fb.calls {
		if strings.HasPrefix(call, "FUNCPREAMBLE") {
			prevFuncMax = curMax
			continue
		}
		var n int
		if _, err := fmt.Sscanf(call, "LABEL L%d", &n); err != nil {
			continue
		}
		if seen[n] {
			t.Fatalf("label id %d was emitted twice:\n%s", n, joined(fb.calls))
		}
		if n <= prevFuncMax {
			t.Fatalf("label id %d is not above %d, the largest id of an earlier function:\n%s", n, prevFuncMax, joined(fb.calls))
		}
		seen[n] = true
		if n > curMax {
			curMax = n
		}
	}
	if len(seen) == 0 {
		t.Fatal("expected at least one LABEL call")
	}
}
