package parse

import (
	"strings"
	"testing"

	"github.com/cwj-lang/cwj/internal/ast"
	"github.com/cwj-lang/cwj/internal/scan"
	"github.com/cwj-lang/cwj/internal/sym"
)

func parseSrc(t *testing.T, src string) ([]ast.Stmt, *sym.Table) {
	t.Helper()
	tab := sym.NewTable()
	p := New(scan.New(strings.NewReader(src)), tab)
	return p.ParseUnit(), tab
}

func TestSimpleFunctionDefinition(t *testing.T) {
	funcs, _ := parseSrc(t, `int add(int a, int b) { return a + b; }`)
	if len(funcs) != 1 {
		t.Fatalf("got %d functions, want 1", len(funcs))
	}
	fn, ok := funcs[0].(ast.Function)
	if !ok {
		t.Fatalf("expected ast.Function, got %T", funcs[0])
	}
	if fn.Sym.Name != "add" {
		t.Fatalf("got name %q, want add", fn.Sym.Name)
	}
	ret, ok := fn.Body.(ast.Return)
	if !ok {
		t.Fatalf("expected ast.Return body, got %T", fn.Body)
	}
	if _, ok := ret.Value.(ast.Binary); !ok {
		t.Fatalf("expected binary return value, got %T", ret.Value)
	}
}

func TestPrototypeThenDefinitionSharesSymbol(t *testing.T) {
	funcs, tab := parseSrc(t, `
		int f(int x);
		int f(int x) { return x; }
	`)
	if len(funcs) != 1 {
		t.Fatalf("got %d functions, want 1 (prototype adds none)", len(funcs))
	}
	if tab.Globals.Find("f", -1) == nil {
		t.Fatal("expected f registered as a global")
	}
}

func TestPrecedenceClimbsMultiplyOverAdd(t *testing.T) {
	funcs, _ := parseSrc(t, `int f() { return 1 + 2 * 3; }`)
	fn := funcs[0].(ast.Function)
	ret := fn.Body.(ast.Return)
	top := ret.Value.(ast.Binary)
	if top.Op != ast.ADD {
		t.Fatalf("expected top-level ADD, got %v", top.Op)
	}
	if _, ok := top.Right.(ast.Binary); !ok {
		t.Fatalf("expected MULTIPLY nested on the right, got %T", top.Right)
	}
}

func TestAssignmentIsRightAssociative(t *testing.T) {
	funcs, _ := parseSrc(t, `
		int f() {
			int a; int b; int c;
			a = b = c;
			return a;
		}
	`)
	fn := funcs[0].(ast.Function)
	// Body is a Glue chain; walk to the assignment ExprStmt.
	var assign ast.Assign
	var walk func(ast.Stmt)
	walk = func(s ast.Stmt) {
		switch v := s.(type) {
		case ast.Glue:
			walk(v.Left)
			walk(v.Right)
		case ast.ExprStmt:
			if a, ok := v.X.(ast.Assign); ok {
				assign = a
			}
		}
	}
	walk(fn.Body)
	if assign.Value == nil {
		t.Fatal("expected to find the outer assignment")
	}
	if _, ok := assign.Value.(ast.Assign); !ok {
		t.Fatalf("expected nested assignment as value, got %T", assign.Value)
	}
}

func TestForLoopDesugarsToGlueWhileGlue(t *testing.T) {
	funcs, _ := parseSrc(t, `
		int f() {
			int i;
			for (i = 0; i < 10; i = i + 1) {
				i = i;
			}
			return i;
		}
	`)
	fn := funcs[0].(ast.Function)
	body := fn.Body.(ast.Glue)   // GLUE(for-glue, return); the declaration adds no node
	forGlue := body.Left.(ast.Glue) // GLUE(init, WHILE(...))
	if _, ok := forGlue.Left.(ast.ExprStmt); !ok {
		t.Fatalf("expected the for-loop init as the left child, got %T", forGlue.Left)
	}
	loop, ok := forGlue.Right.(ast.While)
	if !ok {
		t.Fatalf("expected ast.While, got %T", forGlue.Right)
	}
	if _, ok := loop.Body.(ast.Glue); !ok {
		t.Fatalf("expected loop body glued with post-expression, got %T", loop.Body)
	}
}

func TestIfWithoutComparisonGetsToboolWrapped(t *testing.T) {
	funcs, _ := parseSrc(t, `
		int f(int x) {
			if (x) { return 1; }
			return 0;
		}
	`)
	fn := funcs[0].(ast.Function)
	ifStmt := fn.Body.(ast.Glue).Left.(ast.If)
	if _, ok := ifStmt.Cond.(ast.Unary); !ok {
		t.Fatalf("expected TOBOOL-wrapped condition, got %T", ifStmt.Cond)
	}
}

func TestIfWithComparisonIsNotWrapped(t *testing.T) {
	funcs, _ := parseSrc(t, `
		int f(int x) {
			if (x < 5) { return 1; }
			return 0;
		}
	`)
	fn := funcs[0].(ast.Function)
	ifStmt := fn.Body.(ast.Glue).Left.(ast.If)
	if _, ok := ifStmt.Cond.(ast.Binary); !ok {
		t.Fatalf("expected bare comparison, got %T", ifStmt.Cond)
	}
}

func TestSizeofYieldsConstantIntLit(t *testing.T) {
	funcs, _ := parseSrc(t, `int f() { return sizeof(long); }`)
	fn := funcs[0].(ast.Function)
	ret := fn.Body.(ast.Return)
	lit, ok := ret.Value.(ast.IntLit)
	if !ok || lit.Value != 8 {
		t.Fatalf("expected IntLit(8), got %#v", ret.Value)
	}
}

func TestSwitchStatementCasesAndDefault(t *testing.T) {
	funcs, _ := parseSrc(t, `
		int f(int x) {
			switch (x) {
			case 1: return 10;
			case 2: return 20;
			default: return 0;
			}
		}
	`)
	fn := funcs[0].(ast.Function)
	sw := fn.Body.(ast.Switch)
	if len(sw.Cases) != 3 {
		t.Fatalf("got %d cases, want 3", len(sw.Cases))
	}
	if !sw.Cases[2].IsDefault {
		t.Fatal("expected third arm to be default")
	}
}
