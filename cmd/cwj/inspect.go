package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/subcommands"

	"github.com/cwj-lang/cwj/internal/ast"
	"github.com/cwj-lang/cwj/internal/diag"
	"github.com/cwj-lang/cwj/internal/parse"
	"github.com/cwj-lang/cwj/internal/scan"
	"github.com/cwj-lang/cwj/internal/sym"
)

// inspectCmd is a readline-backed shell over an already-parsed
// translation unit, so a user can page through symbols and function
// bodies without re-running the compiler per query.
type inspectCmd struct{}

func (*inspectCmd) Name() string     { return "inspect" }
func (*inspectCmd) Synopsis() string { return "interactively browse a source file's symbol table and AST" }
func (*inspectCmd) Usage() string {
	return `inspect file
  Commands: sym <name>, ast <function>, list globals, quit
`
}
func (*inspectCmd) SetFlags(*flag.FlagSet) {}

func (*inspectCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "inspect: expected exactly one file")
		return subcommands.ExitUsageError
	}

	funcs, tab, err := inspectParse(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "inspect: %v\n", err)
		return subcommands.ExitFailure
	}

	rl, err := readline.New("cwj> ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "inspect: %v\n", err)
		return subcommands.ExitFailure
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err == io.EOF || err == readline.ErrInterrupt {
			return subcommands.ExitSuccess
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "inspect: %v\n", err)
			return subcommands.ExitFailure
		}
		runInspectCommand(strings.TrimSpace(line), tab, funcs)
	}
}

func inspectParse(path string) (funcs []ast.Stmt, tab *sym.Table, err error) {
	defer func() {
		if r := recover(); r != nil {
			switch v := r.(type) {
			case diag.SyntaxError:
				err = v
			case diag.SemanticError:
				err = v
			default:
				panic(r)
			}
		}
	}()
	src, openErr := os.Open(path)
	if openErr != nil {
		return nil, nil, openErr
	}
	defer src.Close()
	tab = sym.NewTable()
	p := parse.New(scan.New(src), tab)
	funcs = p.ParseUnit()
	return funcs, tab, nil
}

func runInspectCommand(line string, tab *sym.Table, funcs []ast.Stmt) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	switch fields[0] {
	case "quit", "exit":
		os.Exit(0)
	case "list":
		if len(fields) == 2 && fields[1] == "globals" {
			for s := tab.Globals.Head(); s != nil; s = s.Next {
				fmt.Printf("%-20s %s\n", s.Name, s.Type)
			}
			return
		}
		fmt.Println("usage: list globals")
	case "sym":
		if len(fields) != 2 {
			fmt.Println("usage: sym <name>")
			return
		}
		s := tab.Globals.Find(fields[1], -1)
		if s == nil {
			fmt.Printf("no such symbol: %s\n", fields[1])
			return
		}
		fmt.Printf("name=%s type=%s size=%d count=%d\n", s.Name, s.Type, s.Size, s.Count)
	case "ast":
		if len(fields) != 2 {
			fmt.Println("usage: ast <function>")
			return
		}
		for _, fn := range funcs {
			f, ok := fn.(ast.Function)
			if ok && f.Sym.Name == fields[1] {
				ast.Dump(os.Stdout, f)
				return
			}
		}
		fmt.Printf("no such function: %s\n", fields[1])
	default:
		fmt.Printf("unknown command: %s\n", fields[0])
	}
}
