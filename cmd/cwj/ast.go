package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/cwj-lang/cwj/internal/compiler"
)

type astCmd struct{}

func (*astCmd) Name() string     { return "ast" }
func (*astCmd) Synopsis() string { return "dump the parsed AST of a source file" }
func (*astCmd) Usage() string    { return "ast file\n" }
func (*astCmd) SetFlags(*flag.FlagSet) {}

func (*astCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "ast: expected exactly one file")
		return subcommands.ExitUsageError
	}
	if err := compiler.DumpAST(args[0], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "ast: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type symtabCmd struct{}

func (*symtabCmd) Name() string     { return "symtab" }
func (*symtabCmd) Synopsis() string { return "dump the global symbol table of a source file" }
func (*symtabCmd) Usage() string    { return "symtab file\n" }
func (*symtabCmd) SetFlags(*flag.FlagSet) {}

func (*symtabCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "symtab: expected exactly one file")
		return subcommands.ExitUsageError
	}
	if err := compiler.DumpSymbols(args[0], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "symtab: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
