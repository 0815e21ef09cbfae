package ast

import (
	"fmt"
	"io"
	"strings"
)

// Dump prints a textual, indentation-based rendering of n to w:
// operator names, symbol names, literal values, scale sizes and cast
// targets, rvalue markers, with Glue resetting indentation so a
// statement sequence reads as a flat list rather than a deep
// left-leaning spine.
func Dump(w io.Writer, n any) {
	dump(w, n, 0)
}

func indent(w io.Writer, depth int) {
	fmt.Fprint(w, strings.Repeat("  ", depth))
}

func dump(w io.Writer, n any, depth int) {
	switch v := n.(type) {
	case Glue:
		dump(w, v.Left, depth)
		dump(w, v.Right, depth)
	case Function:
		indent(w, depth)
		fmt.Fprintf(w, "FUNCTION %s\n", v.Sym.Name)
		dump(w, v.Body, depth+1)
	case ExprStmt:
		indent(w, depth)
		fmt.Fprint(w, "EXPRSTMT ")
		dumpExpr(w, v.X, 0)
		fmt.Fprintln(w)
	case If:
		indent(w, depth)
		fmt.Fprint(w, "IF ")
		dumpExpr(w, v.Cond, 0)
		fmt.Fprintln(w)
		dump(w, v.Then, depth+1)
		if v.Else != nil {
			indent(w, depth)
			fmt.Fprintln(w, "ELSE")
			dump(w, v.Else, depth+1)
		}
	case While:
		indent(w, depth)
		fmt.Fprint(w, "WHILE ")
		dumpExpr(w, v.Cond, 0)
		fmt.Fprintln(w)
		dump(w, v.Body, depth+1)
	case Return:
		indent(w, depth)
		fmt.Fprint(w, "RETURN")
		if v.Value != nil {
			fmt.Fprint(w, " ")
			dumpExpr(w, v.Value, 0)
		}
		fmt.Fprintln(w)
	case Break:
		indent(w, depth)
		fmt.Fprintln(w, "BREAK")
	case Continue:
		indent(w, depth)
		fmt.Fprintln(w, "CONTINUE")
	case Switch:
		indent(w, depth)
		fmt.Fprint(w, "SWITCH ")
		dumpExpr(w, v.Selector, 0)
		fmt.Fprintln(w)
		for _, c := range v.Cases {
			indent(w, depth+1)
			if c.IsDefault {
				fmt.Fprintln(w, "DEFAULT")
			} else {
				fmt.Fprintf(w, "CASE %d\n", c.Value)
			}
			dump(w, c.Body, depth+2)
		}
	default:
		indent(w, depth)
		fmt.Fprintf(w, "%T\n", n)
	}
}

func dumpExpr(w io.Writer, e Expr, _ int) {
	switch v := e.(type) {
	case IntLit:
		fmt.Fprintf(w, "INTLIT(%d:%s)", v.Value, v.Type)
	case StrLit:
		fmt.Fprintf(w, "STRLIT(L%d,%q)", v.Label, v.Text)
	case Ident:
		marker := "rvalue"
		if !v.Rvalue {
			marker = "lvalue"
		}
		fmt.Fprintf(w, "IDENT(%s,%s)", v.Sym.Name, marker)
	case Binary:
		fmt.Fprintf(w, "(")
		dumpExpr(w, v.Left, 0)
		fmt.Fprintf(w, " %s ", binOpName(v.Op))
		dumpExpr(w, v.Right, 0)
		fmt.Fprintf(w, ")")
	case Unary:
		fmt.Fprintf(w, "%s(", unaryOpName(v.Op))
		dumpExpr(w, v.Operand, 0)
		fmt.Fprintf(w, ")")
	case Widen:
		fmt.Fprintf(w, "WIDEN(")
		dumpExpr(w, v.Operand, 0)
		fmt.Fprintf(w, "->%s)", v.Type)
	case Scale:
		fmt.Fprintf(w, "SCALE(")
		dumpExpr(w, v.Operand, 0)
		fmt.Fprintf(w, ",x%d)", v.Size)
	case Cast:
		fmt.Fprintf(w, "CAST(%s,", v.Type)
		dumpExpr(w, v.Operand, 0)
		fmt.Fprintf(w, ")")
	case Assign:
		dumpExpr(w, v.Target, 0)
		fmt.Fprintf(w, " = ")
		dumpExpr(w, v.Value, 0)
	case Ternary:
		dumpExpr(w, v.Cond, 0)
		fmt.Fprintf(w, " ? ")
		dumpExpr(w, v.Then, 0)
		fmt.Fprintf(w, " : ")
		dumpExpr(w, v.Else, 0)
	case FuncCall:
		name := "?"
		if v.Sym != nil {
			name = v.Sym.Name
		}
		fmt.Fprintf(w, "CALL %s(", name)
		for i, a := range v.Args {
			if i > 0 {
				fmt.Fprint(w, ", ")
			}
			dumpExpr(w, a, 0)
		}
		fmt.Fprintf(w, ")")
	default:
		fmt.Fprintf(w, "%T", e)
	}
}

func binOpName(op BinOp) string {
	names := [...]string{"+", "-", "*", "/", "|", "^", "&", "==", "!=", "<", ">", "<=", ">=", "<<", ">>", "||", "&&"}
	if int(op) < len(names) {
		return names[op]
	}
	return "?"
}

func unaryOpName(op UnaryOp) string {
	names := [...]string{"NEGATE", "INVERT", "LOGNOT", "TOBOOL", "DEREF", "ADDR", "PREINC", "PREDEC", "POSTINC", "POSTDEC"}
	if int(op) < len(names) {
		return names[op]
	}
	return "?"
}
