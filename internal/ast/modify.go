package ast

import "github.com/cwj-lang/cwj/internal/types"

// ModifyOp identifies the caller context ModifyType is coercing for:
// plain assignment, pointer-arithmetic addition/subtraction, their
// compound-assignment variants, comparison, and the two logical
// operators.
type ModifyOp int

const (
	NoOp ModifyOp = iota // plain assignment / return / argument coercion
	OpAdd
	OpSubtract
	OpAsPlus
	OpAsMinus
	OpCompare // EQ..GE
	OpLogOr
	OpLogAnd
)

func baseOf(t types.Primitive) types.Primitive { return t &^ 0xF }

func isStructLike(t types.Primitive) bool {
	return baseOf(t) == types.STRUCT || baseOf(t) == types.UNION
}

// ModifyType is the single choke-point for implicit coercion and
// pointer scaling. tree already has type ltype; the
// caller wants it compatible with rtype under the given op. It returns
// the (possibly Widen/Scale-wrapped) tree, or nil if no coercion rule
// applies — the caller reports that as a fatal type error citing the
// node's source line.
//
// pointedToSize is the byte size of *rtype's pointee, needed only for
// the integer-plus-pointer scaling rule; pass 0 when rtype is not a
// pointer to a sized type.
func ModifyType(tree Expr, ltype, rtype types.Primitive, op ModifyOp, pointedToSize int) Expr {
	if isStructLike(ltype) || isStructLike(rtype) {
		return nil // struct/union coercion not implemented
	}

	if types.IntType(ltype) && types.IntType(rtype) {
		if ltype == rtype {
			return tree
		}
		if types.Size(rtype) > types.Size(ltype) {
			return Widen{Base: asBase(tree), Operand: tree, Type: rtype}
		}
		return nil
	}

	if types.PtrType(ltype) && types.PtrType(rtype) {
		if op == OpCompare {
			return tree
		}
		if ltype == rtype || ltype == types.PointerTo(types.VOID) {
			return tree
		}
		return nil
	}

	if (op == OpAdd || op == OpSubtract || op == OpAsPlus || op == OpAsMinus) &&
		types.IntType(ltype) && types.PtrType(rtype) {
		if pointedToSize > 1 {
			return Scale{Base: asBase(tree), Operand: tree, Size: pointedToSize, Type: rtype}
		}
		return Widen{Base: asBase(tree), Operand: tree, Type: rtype}
	}

	if op == OpLogOr || op == OpLogAnd {
		lok := types.IntType(ltype) || types.PtrType(ltype)
		rok := types.IntType(rtype) || types.PtrType(rtype)
		if lok && rok {
			return tree
		}
	}

	return nil
}

func asBase(e Expr) Base { return Base{line: e.Line()} }
