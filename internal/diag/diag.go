// Package diag defines the diagnostic error types raised across the
// compiler pipeline. Every diagnostic is fatal: the scanner, parser,
// type engine and back-end all signal failure by panicking one of these
// values, and only the pipeline's entry points recover them
// (compiler.CompileFile, compiler.DumpAST, compiler.DumpSymbols and
// cmd/cwj's inspect loader).
package diag

import "fmt"

// SyntaxError reports a lexical or syntactic problem: bad characters,
// unterminated literals, unexpected tokens.
type SyntaxError struct {
	Line    int
	Message string
}

func (e SyntaxError) Error() string {
	return fmt.Sprintf("%s on line %d", e.Message, e.Line)
}

// SemanticError reports a type, symbol-table or back-end problem:
// undeclared identifiers, incompatible types, register exhaustion.
type SemanticError struct {
	Line    int
	Message string
}

func (e SemanticError) Error() string {
	return fmt.Sprintf("%s on line %d", e.Message, e.Line)
}

// Fatalf panics with a SyntaxError built from format and args.
func Fatalf(line int, format string, args ...any) {
	panic(SyntaxError{Line: line, Message: fmt.Sprintf(format, args...)})
}

// SemanticFatalf panics with a SemanticError built from format and args.
func SemanticFatalf(line int, format string, args ...any) {
	panic(SemanticError{Line: line, Message: fmt.Sprintf(format, args...)})
}
