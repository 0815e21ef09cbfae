package sym

import (
	"testing"

	"github.com/cwj-lang/cwj/internal/types"
)

func TestAppendAndFind(t *testing.T) {
	tab := NewTable()
	tab.Append(&tab.Globals, "x", types.INT, nil, Global, 4)
	tab.Append(&tab.Globals, "y", types.LONG, nil, Global, 8)

	if got := tab.Find("x"); got == nil || got.Type != types.INT {
		t.Fatalf("Find(x) = %+v, want INT symbol", got)
	}
	if got := tab.Find("missing"); got != nil {
		t.Fatalf("Find(missing) = %+v, want nil", got)
	}
}

func TestResolutionOrderParamsBeforeLocalsBeforeGlobals(t *testing.T) {
	tab := NewTable()
	tab.Append(&tab.Globals, "v", types.INT, nil, Global, 4)
	tab.Append(&tab.Locals, "v", types.CHAR, nil, Local, 1)

	fn := &Symbol{Name: "f"}
	fn.AddMember(&Symbol{Name: "v", Type: types.LONG, Class: Param})
	tab.CurrentFunc = fn

	got := tab.Find("v")
	if got.Type != types.LONG {
		t.Fatalf("expected parameter shadowing, got type %v", got.Type)
	}
}

func TestFreeLocalSyms(t *testing.T) {
	tab := NewTable()
	tab.Append(&tab.Locals, "a", types.INT, nil, Local, 4)
	tab.CurrentFunc = &Symbol{Name: "f"}

	tab.FreeLocalSyms()

	if tab.Locals.Head() != nil {
		t.Fatal("expected locals cleared")
	}
	if tab.CurrentFunc != nil {
		t.Fatal("expected current function cleared")
	}
}

func TestFreeStaticSyms(t *testing.T) {
	tab := NewTable()
	tab.Append(&tab.Globals, "a", types.INT, nil, Global, 4)
	tab.Append(&tab.Globals, "b", types.INT, nil, Static, 4)
	tab.Append(&tab.Globals, "c", types.INT, nil, Global, 4)

	tab.FreeStaticSyms()

	var names []string
	for s := tab.Globals.Head(); s != nil; s = s.Next {
		names = append(names, s.Name)
	}
	if len(names) != 2 || names[0] != "a" || names[1] != "c" {
		t.Fatalf("got %v, want [a c]", names)
	}
}

func TestCopyFuncParams(t *testing.T) {
	tab := NewTable()
	fn := &Symbol{Name: "add"}
	fn.AddMember(&Symbol{Name: "a", Type: types.INT, Class: Param})
	fn.AddMember(&Symbol{Name: "b", Type: types.INT, Class: Param})

	tab.CopyFuncParams(fn)

	if tab.Params.Find("a", -1) == nil || tab.Params.Find("b", -1) == nil {
		t.Fatal("expected both params copied")
	}
	if tab.Locals.Find("a", -1) == nil {
		t.Fatal("expected params also visible as locals")
	}
	if tab.Params.Find("b", -1).Pos != 1 {
		t.Fatalf("expected second param position 1, got %d", tab.Params.Find("b", -1).Pos)
	}
}
