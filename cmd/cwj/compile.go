package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/subcommands"

	"github.com/cwj-lang/cwj/internal/compiler"
)

type compileCmd struct {
	verbose     bool
	compileOnly bool
	asmOnly     bool
	outfile     string
	includeDir  string
	target      string
}

func (*compileCmd) Name() string     { return "compile" }
func (*compileCmd) Synopsis() string { return "preprocess, compile, assemble and link one or more source files" }
func (*compileCmd) Usage() string {
	return `compile [-v] [-c] [-S] [-o outfile] [-t target] file...
  Runs the pipeline over each file: cpp, scan/parse/codegen, as, cc.
`
}

func (c *compileCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.verbose, "v", false, "log pipeline progress to stderr")
	f.BoolVar(&c.compileOnly, "c", false, "compile and assemble only, do not link")
	f.BoolVar(&c.asmOnly, "S", false, "stop after generating assembly, keep the .s file")
	f.StringVar(&c.outfile, "o", "", "output file (executable, or object when -c, or assembly when -S)")
	f.StringVar(&c.includeDir, "I", "/usr/local/include", "system include directory passed to cpp -isystem")
	f.StringVar(&c.target, "t", string(compiler.X86_64), "target back-end: x86_64, qbe, or m6809")
}

func (c *compileCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	files := f.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "compile: no input files")
		return subcommands.ExitUsageError
	}
	if c.outfile != "" && len(files) > 1 && (c.compileOnly || c.asmOnly) {
		fmt.Fprintln(os.Stderr, "compile: -o cannot name a single output for multiple -c/-S inputs")
		return subcommands.ExitUsageError
	}

	target := compiler.Target(c.target)
	var objFiles []string

	for _, src := range files {
		base := strings.TrimSuffix(src, filepath.Ext(src))
		preprocessed := base + ".i"
		asmFile := base + ".s"
		objFile := base + ".o"

		if err := compiler.Preprocess(src, c.includeDir, preprocessed); err != nil {
			fmt.Fprintf(os.Stderr, "compile: %v\n", err)
			return subcommands.ExitFailure
		}
		defer os.Remove(preprocessed)

		if c.asmOnly && c.outfile != "" {
			asmFile = c.outfile
		}
		if err := compiler.CompileFile(preprocessed, asmFile, target, c.verbose); err != nil {
			fmt.Fprintf(os.Stderr, "compile: %v\n", err)
			return subcommands.ExitFailure
		}
		if c.asmOnly {
			continue
		}

		if c.compileOnly && c.outfile != "" {
			objFile = c.outfile
		}
		if err := compiler.Assemble(asmFile, objFile); err != nil {
			fmt.Fprintf(os.Stderr, "compile: %v\n", err)
			return subcommands.ExitFailure
		}
		os.Remove(asmFile)
		if c.compileOnly {
			continue
		}
		objFiles = append(objFiles, objFile)
	}

	if c.asmOnly || c.compileOnly {
		return subcommands.ExitSuccess
	}

	exe := c.outfile
	if exe == "" {
		exe = "a.out"
	}
	if err := compiler.Link(exe, objFiles); err != nil {
		fmt.Fprintf(os.Stderr, "compile: %v\n", err)
		return subcommands.ExitFailure
	}
	for _, o := range objFiles {
		os.Remove(o)
	}
	return subcommands.ExitSuccess
}
