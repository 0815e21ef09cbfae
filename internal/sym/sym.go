// Package sym implements the compiler's symbol tables: eight singly
// linked lists (globals, locals, params, members, structs, unions,
// enums, typedefs), each with O(1) append via a head/tail pair.
package sym

import "github.com/cwj-lang/cwj/internal/types"

type StructuralType int

const (
	Scalar StructuralType = iota
	ArrayType
	FuncType
)

type StorageClass int

const (
	Global StorageClass = iota
	Local
	Param
	Extern
	Static
	StructTag
	UnionTag
	Member
	EnumType
	EnumVal
	Typedef
)

// Symbol is a node in one of the Table's linked lists. It plays three
// roles depending on StorageClass: a variable/function/array binding, a
// struct/union/enum type descriptor (Member heads the member sub-list),
// or a parameter/member of some other Symbol (Member heads that list
// too, e.g. a function's parameter list).
type Symbol struct {
	Name    string
	Type    types.Primitive
	CType   *Symbol // struct/union descriptor, for STRUCT/UNION members
	Struct  StructuralType
	Class   StorageClass
	Size     int // byte size of one element
	Count    int // element count (arrays) or parameter count (functions)
	Pos      int // end-label (functions), frame-relative offset (locals/params), or byte offset (struct/union members)
	Inits    []int64
	IsStrLit bool   // true for the autogenerated static backing a string literal
	Text     string // the string literal's text, when IsStrLit is set
	Next    *Symbol // next in the owning list
	Member  *Symbol // head of this symbol's own child list (params/fields/enum values)
	tail    *Symbol // tail of the Member list, for O(1) append
}

// AddMember appends child to sym's member list in O(1).
func (sym *Symbol) AddMember(child *Symbol) {
	if sym.Member == nil {
		sym.Member = child
	} else {
		sym.tail.Next = child
	}
	sym.tail = child
}

// List is one of the eight linked lists a symbol Table owns.
type List struct {
	head, tail *Symbol
}

func (l *List) Append(s *Symbol) {
	if l.head == nil {
		l.head = s
	} else {
		l.tail.Next = s
	}
	l.tail = s
}

func (l *List) Head() *Symbol { return l.head }

// Find performs a linear search by name. If class >= 0 only symbols of
// that StorageClass match.
func (l *List) Find(name string, class int) *Symbol {
	for s := l.head; s != nil; s = s.Next {
		if s.Name == name && (class < 0 || int(s.Class) == class) {
			return s
		}
	}
	return nil
}

func (l *List) reset() { l.head, l.tail = nil, nil }

// Table bundles the eight lists that make up a translation unit's
// symbol state, plus the function currently being parsed (needed to
// resolve parameter names before the local list, per Find's
// resolution order).
type Table struct {
	Globals, Locals, Params, Members, Structs, Unions, Enums, Typedefs List
	CurrentFunc                                                        *Symbol
}

func NewTable() *Table { return &Table{} }

// Append creates a new Symbol and appends it to the given list.
func (t *Table) Append(l *List, name string, typ types.Primitive, ctype *Symbol, class StorageClass, size int) *Symbol {
	s := &Symbol{Name: name, Type: typ, CType: ctype, Class: class, Size: size}
	l.Append(s)
	return s
}

// Find resolves an identifier by searching, in order: if inside a
// function body, the current function's parameter list, then locals,
// then globals.
func (t *Table) Find(name string) *Symbol {
	if t.CurrentFunc != nil {
		for p := t.CurrentFunc.Member; p != nil; p = p.Next {
			if p.Name == name {
				return p
			}
		}
	}
	if s := t.Locals.Find(name, -1); s != nil {
		return s
	}
	return t.Globals.Find(name, -1)
}

// CopyFuncParams clones fn's parameter sub-list into the current
// local/param lists on entering the function body, so that parameter
// names resolve identically to locals inside codegen.
func (t *Table) CopyFuncParams(fn *Symbol) {
	pos := 0
	for p := fn.Member; p != nil; p = p.Next {
		clone := &Symbol{Name: p.Name, Type: p.Type, CType: p.CType, Class: Param, Size: p.Size, Pos: pos}
		t.Params.Append(clone)
		t.Locals.Append(clone)
		pos++
	}
	t.CurrentFunc = fn
}

// FreeLocalSyms truncates the local and parameter lists and clears the
// current-function pointer, ready for the next function definition.
func (t *Table) FreeLocalSyms() {
	t.Locals.reset()
	t.Params.reset()
	t.CurrentFunc = nil
}

// FreeStaticSyms removes class-Static entries from the global list.
// They are file-scoped only; they must not survive to the next
// translation unit.
func (t *Table) FreeStaticSyms() {
	var kept []*Symbol
	for s := t.Globals.head; s != nil; s = s.Next {
		if s.Class != Static {
			kept = append(kept, s)
		}
	}
	t.Globals.reset()
	for _, s := range kept {
		s.Next = nil
		t.Globals.Append(s)
	}
}
