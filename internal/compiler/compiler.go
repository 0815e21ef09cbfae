// Package compiler drives one translation unit end to end: scan,
// parse, fold, generate. A Unit bundles the per-file state the pipeline
// needs (the symbol table, the chosen back-end, an optional verbose
// logger) and is built fresh for every input file, so nothing survives
// across files by accident -- the single-threaded, no-shared-state
// resource model a tutorial compiler can get away with, where the
// teacher's own ASTCompiler instead keeps instruction state in fields
// reset by hand between runs.
package compiler

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"

	"github.com/cwj-lang/cwj/internal/ast"
	"github.com/cwj-lang/cwj/internal/backend"
	"github.com/cwj-lang/cwj/internal/backend/m6809"
	"github.com/cwj-lang/cwj/internal/backend/qbe"
	"github.com/cwj-lang/cwj/internal/backend/x86_64"
	"github.com/cwj-lang/cwj/internal/codegen"
	"github.com/cwj-lang/cwj/internal/diag"
	"github.com/cwj-lang/cwj/internal/fold"
	"github.com/cwj-lang/cwj/internal/parse"
	"github.com/cwj-lang/cwj/internal/scan"
	"github.com/cwj-lang/cwj/internal/sym"
)

// Target names a back-end selectable from the command line.
type Target string

const (
	X86_64 Target = "x86_64"
	QBE    Target = "qbe"
	M6809  Target = "m6809"
)

func newBackend(target Target, w io.Writer) (backend.Backend, error) {
	switch target {
	case X86_64, "":
		return x86_64.New(w), nil
	case QBE:
		return qbe.New(w), nil
	case M6809:
		return m6809.New(w), nil
	}
	return nil, fmt.Errorf("unknown target %q", target)
}

// Unit is the per-file context threaded through scan/parse/codegen.
// Constructed fresh by CompileFile and discarded after; this is the
// whole of this compiler's "reset state between translation units"
// story, expressed as a value going out of scope rather than a global
// table being cleared.
type Unit struct {
	Table  *sym.Table
	Target Target
	Verbose bool
	log    *log.Logger
}

func newUnit(target Target, verbose bool) *Unit {
	var l *log.Logger
	if verbose {
		l = log.New(os.Stderr, "cwj: ", 0)
	}
	return &Unit{Table: sym.NewTable(), Target: target, Verbose: verbose, log: l}
}

func (u *Unit) logf(format string, args ...any) {
	if u.log != nil {
		u.log.Printf(format, args...)
	}
}

// CompileFile runs the pipeline against srcPath and writes the chosen
// back-end's textual output to outPath. Every diagnostic the pipeline
// raises is a panic (diag.SyntaxError or diag.SemanticError);
// CompileFile recovers it, turning the first diagnostic into the
// returned error and ending the compile. On failure the partially
// written output file is closed and removed before the error is
// returned.
func CompileFile(srcPath, outPath string, target Target, verbose bool) (err error) {
	u := newUnit(target, verbose)

	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("cwj: %w", err)
	}
	defer src.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("cwj: %w", err)
	}
	succeeded := false
	defer func() {
		out.Close()
		if !succeeded {
			os.Remove(outPath)
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			switch v := r.(type) {
			case diag.SyntaxError:
				err = v
			case diag.SemanticError:
				err = v
			default:
				panic(r) // not one of ours: a real bug, let it crash
			}
		}
	}()

	be, err := newBackend(target, out)
	if err != nil {
		return err
	}

	u.logf("parsing %s", srcPath)
	p := parse.New(scan.New(src), u.Table)
	funcs := p.ParseUnit()
	u.logf("parsed %d top level declaration(s)", len(funcs))

	for i, f := range funcs {
		fn, ok := f.(ast.Function)
		if !ok {
			continue
		}
		fn.Body = fold.Stmt(fn.Body)
		funcs[i] = fn
	}

	gen := codegen.New(be)
	gen.GenUnit(u.Table, funcs)
	for _, f := range funcs {
		if fn, ok := f.(ast.Function); ok {
			u.logf("generated function %s", fn.Sym.Name)
		}
	}

	u.Table.FreeStaticSyms()
	succeeded = true
	return nil
}

// DumpAST parses srcPath and writes its textual AST dump to w, for the
// `cwj ast` subcommand.
func DumpAST(srcPath string, w io.Writer) (err error) {
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
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("cwj: %w", err)
	}
	defer src.Close()

	tab := sym.NewTable()
	p := parse.New(scan.New(src), tab)
	for _, f := range p.ParseUnit() {
		ast.Dump(w, f)
	}
	return nil
}

// DumpSymbols parses srcPath and writes a flat listing of its global
// symbol table to w, for the `cwj symtab` subcommand.
func DumpSymbols(srcPath string, w io.Writer) (err error) {
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
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("cwj: %w", err)
	}
	defer src.Close()

	tab := sym.NewTable()
	p := parse.New(scan.New(src), tab)
	p.ParseUnit()

	for s := tab.Globals.Head(); s != nil; s = s.Next {
		fmt.Fprintf(w, "%-5s %-20s %s\n", classString(s.Class), s.Name, s.Type)
	}
	return nil
}

func classString(c sym.StorageClass) string {
	names := map[sym.StorageClass]string{
		sym.Global: "glob", sym.Local: "local", sym.Param: "param",
		sym.Extern: "extern", sym.Static: "static", sym.StructTag: "struct",
		sym.UnionTag: "union", sym.Member: "member", sym.EnumType: "enum",
		sym.EnumVal: "enumval", sym.Typedef: "typedef",
	}
	if n, ok := names[c]; ok {
		return n
	}
	return "?"
}

// MaxLinkObjects is the maximum object-file count per link.
const MaxLinkObjects = 100

// Preprocess runs the pipeline's preprocessor pipe for one input file,
// `cpp -nostdinc -isystem <includeDir> srcPath`, redirecting its
// stdout to outPath, invoked as an opaque external process this repo
// never inspects.
func Preprocess(srcPath, includeDir, outPath string) error {
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("cwj: %w", err)
	}
	defer out.Close()
	return runExternal(out, "cpp", "-nostdinc", "-isystem", includeDir, srcPath)
}

// Assemble runs `as -o objFile asmFile`, the pinned argv shape for the
// assembly step.
func Assemble(asmFile, objFile string) error {
	return runExternal(os.Stdout, "as", "-o", objFile, asmFile)
}

// Link runs `cc -o exeFile obj1 obj2 …`, the pinned argv shape for the
// link step. It refuses more than MaxLinkObjects inputs.
func Link(exeFile string, objFiles []string) error {
	if len(objFiles) > MaxLinkObjects {
		return fmt.Errorf("cwj: %d object files exceeds the %d-file link limit", len(objFiles), MaxLinkObjects)
	}
	args := append([]string{"-o", exeFile}, objFiles...)
	return runExternal(os.Stdout, "cc", args...)
}

func runExternal(stdout io.Writer, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return nil
}
