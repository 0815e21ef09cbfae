// Command cwj is the compiler's thin driver: it invokes the pipeline
// per input file and shells out to cpp/as/cc for the stages this
// repository treats as opaque external processes. Verb dispatch uses
// github.com/google/subcommands, with one file per verb
// (compile/ast/symtab/inspect).
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&compileCmd{}, "")
	subcommands.Register(&astCmd{}, "")
	subcommands.Register(&symtabCmd{}, "")
	subcommands.Register(&inspectCmd{}, "")

	flag.Parse()
	ctx := context.Background()
	os.Exit(int(subcommands.Execute(ctx)))
}
