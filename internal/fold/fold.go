// Package fold implements a constant-folding optimiser: a pure,
// post-order AST rewrite that collapses binary/unary operations over
// integer literals.
package fold

import "github.com/cwj-lang/cwj/internal/ast"

// Expr folds e and returns the (possibly replaced) tree.
func Expr(e ast.Expr) ast.Expr {
	switch n := e.(type) {
	case ast.Binary:
		n.Left = Expr(n.Left)
		n.Right = Expr(n.Right)
		if l, lok := n.Left.(ast.IntLit); lok {
			if r, rok := n.Right.(ast.IntLit); rok {
				if folded, ok := foldBinary(n.Op, l.Value, r.Value); ok {
					return ast.IntLit{Value: folded, Type: n.Type}
				}
			}
		}
		return n
	case ast.Unary:
		n.Operand = Expr(n.Operand)
		if lit, ok := n.Operand.(ast.IntLit); ok {
			switch n.Op {
			case ast.INVERT:
				return ast.IntLit{Value: ^lit.Value, Type: n.Type}
			case ast.LOGNOT:
				v := int64(0)
				if lit.Value == 0 {
					v = 1
				}
				return ast.IntLit{Value: v, Type: n.Type}
			}
		}
		return n
	case ast.Widen:
		n.Operand = Expr(n.Operand)
		if lit, ok := n.Operand.(ast.IntLit); ok {
			return ast.IntLit{Value: lit.Value, Type: n.Type}
		}
		return n
	case ast.Scale:
		n.Operand = Expr(n.Operand)
		return n
	case ast.Cast:
		n.Operand = Expr(n.Operand)
		return n
	case ast.Assign:
		n.Value = Expr(n.Value)
		return n
	case ast.Ternary:
		n.Cond = Expr(n.Cond)
		n.Then = Expr(n.Then)
		n.Else = Expr(n.Else)
		return n
	case ast.FuncCall:
		for i, a := range n.Args {
			n.Args[i] = Expr(a)
		}
		return n
	case ast.Member:
		n.Operand = Expr(n.Operand)
		return n
	default:
		return e
	}
}

// foldBinary computes op applied to a and b for the four arithmetic
// operators. Division by zero aborts folding for that node (the caller
// leaves the tree unfolded) rather than panicking at compile time; a
// division trap belongs at runtime, not in the optimiser.
func foldBinary(op ast.BinOp, a, b int64) (int64, bool) {
	switch op {
	case ast.ADD:
		return a + b, true
	case ast.SUBTRACT:
		return a - b, true
	case ast.MULTIPLY:
		return a * b, true
	case ast.DIVIDE:
		if b == 0 {
			return 0, false
		}
		return a / b, true
	}
	return 0, false
}

// Stmt folds every expression reachable from s, recursing into nested
// statements.
func Stmt(s ast.Stmt) ast.Stmt {
	switch n := s.(type) {
	case ast.Glue:
		n.Left = Stmt(n.Left)
		n.Right = Stmt(n.Right)
		return n
	case ast.ExprStmt:
		n.X = Expr(n.X)
		return n
	case ast.If:
		n.Cond = Expr(n.Cond)
		n.Then = Stmt(n.Then)
		if n.Else != nil {
			n.Else = Stmt(n.Else)
		}
		return n
	case ast.While:
		n.Cond = Expr(n.Cond)
		n.Body = Stmt(n.Body)
		return n
	case ast.Return:
		if n.Value != nil {
			n.Value = Expr(n.Value)
		}
		return n
	case ast.Switch:
		n.Selector = Expr(n.Selector)
		for _, c := range n.Cases {
			c.Body = Stmt(c.Body)
		}
		return n
	case ast.Function:
		n.Body = Stmt(n.Body)
		return n
	default:
		return s
	}
}
