package ast

import (
	"testing"

	"github.com/cwj-lang/cwj/internal/types"
)

func intLit(v int64, t types.Primitive) Expr {
	return IntLit{Base: NewBase(1), Value: v, Type: t}
}

func TestModifyTypeWidensSmallerIntToLarger(t *testing.T) {
	tree := intLit(5, types.CHAR)
	got := ModifyType(tree, types.CHAR, types.INT, NoOp, 0)
	w, ok := got.(Widen)
	if !ok {
		t.Fatalf("ModifyType(CHAR -> INT) = %T, want Widen", got)
	}
	if w.Type != types.INT {
		t.Errorf("widen target type = %v, want INT", w.Type)
	}
}

func TestModifyTypeRejectsNarrowing(t *testing.T) {
	tree := intLit(5, types.LONG)
	if got := ModifyType(tree, types.LONG, types.CHAR, NoOp, 0); got != nil {
		t.Errorf("ModifyType(LONG -> CHAR) = %v, want nil (narrowing is never implicit)", got)
	}
}

func TestModifyTypeSameIntTypeIsIdentity(t *testing.T) {
	tree := intLit(5, types.INT)
	got := ModifyType(tree, types.INT, types.INT, NoOp, 0)
	if got != tree {
		t.Errorf("ModifyType(INT -> INT) = %v, want tree unchanged", got)
	}
}

// ModifyType's pointer-arithmetic boundary: an int added to/subtracted
// from a pointer must scale by the pointee size when it is greater
// than one byte, and otherwise still widen to the pointer's own width
// rather than pass through unchanged -- a future backend with a true
// int/long width distinction would silently treat an unwrapped tree
// as still carrying the narrower type.
func TestModifyTypePointerArithmeticScalesWhenPointeeSizeAboveOne(t *testing.T) {
	tree := intLit(3, types.INT)
	ptrType := types.PointerTo(types.LONG)
	got := ModifyType(tree, types.INT, ptrType, OpAdd, 8)
	s, ok := got.(Scale)
	if !ok {
		t.Fatalf("ModifyType(int + long*) = %T, want Scale", got)
	}
	if s.Size != 8 {
		t.Errorf("scale size = %d, want 8", s.Size)
	}
	if s.Type != ptrType {
		t.Errorf("scale result type = %v, want %v", s.Type, ptrType)
	}
}

func TestModifyTypePointerArithmeticWidensWhenPointeeSizeIsOne(t *testing.T) {
	tree := intLit(3, types.INT)
	ptrType := types.PointerTo(types.CHAR)
	got := ModifyType(tree, types.INT, ptrType, OpAdd, 1)
	w, ok := got.(Widen)
	if !ok {
		t.Fatalf("ModifyType(int + char*) = %T, want Widen, not the bare tree", got)
	}
	if w.Type != ptrType {
		t.Errorf("widen result type = %v, want %v", w.Type, ptrType)
	}
	if w.Operand != tree {
		t.Error("Widen must wrap the original tree, not a copy")
	}
}

func TestModifyTypeCompoundAssignPointerArithmeticAlsoWidens(t *testing.T) {
	tree := intLit(1, types.INT)
	ptrType := types.PointerTo(types.CHAR)
	for _, op := range []ModifyOp{OpAsPlus, OpAsMinus} {
		got := ModifyType(tree, types.INT, ptrType, op, 1)
		if _, ok := got.(Widen); !ok {
			t.Errorf("ModifyType with op %v on a byte pointer = %T, want Widen", op, got)
		}
	}
}

func TestModifyTypeSamePointerTypeIsIdentity(t *testing.T) {
	pt := types.PointerTo(types.INT)
	tree := Ident{Base: NewBase(1), Type: pt, Rvalue: true}
	got := ModifyType(tree, pt, pt, NoOp, 0)
	if got != tree {
		t.Errorf("ModifyType(T* -> T*) = %v, want tree unchanged", got)
	}
}

func TestModifyTypeVoidPointerCoercesToAnyPointer(t *testing.T) {
	voidPtr := types.PointerTo(types.VOID)
	intPtr := types.PointerTo(types.INT)
	tree := Ident{Base: NewBase(1), Type: voidPtr, Rvalue: true}
	got := ModifyType(tree, voidPtr, intPtr, NoOp, 0)
	if got != tree {
		t.Errorf("ModifyType(void* -> int*) = %v, want tree unchanged", got)
	}
}

func TestModifyTypeMismatchedPointersRejected(t *testing.T) {
	tree := Ident{Base: NewBase(1), Type: types.PointerTo(types.INT), Rvalue: true}
	if got := ModifyType(tree, types.PointerTo(types.INT), types.PointerTo(types.LONG), NoOp, 0); got != nil {
		t.Errorf("ModifyType(int* -> long*) = %v, want nil", got)
	}
}

func TestModifyTypeStructLikeNeverCoerces(t *testing.T) {
	tree := intLit(0, types.STRUCT)
	if got := ModifyType(tree, types.STRUCT, types.INT, NoOp, 0); got != nil {
		t.Errorf("ModifyType(STRUCT -> INT) = %v, want nil", got)
	}
}
