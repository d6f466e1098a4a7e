// Package main implements the mwtest executable, used to list and run
// black-box test batches locally or on a build farm.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/subcommands"
)

// Version is the version info of this command. It is filled in at build time.
var Version = "<unknown>"

// doMain implements the main body of the program. It's a separate function
// so that its deferred functions run before os.Exit makes the program exit
// immediately.
func doMain() int {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(newListCmd(os.Stdout), "")
	subcommands.Register(&runCmd{}, "")
	subcommands.Register(&serverCmd{}, "internal")
	subcommands.Register(&wrapCmd{}, "internal")

	flag.Parse()

	// a signal cancels the run context; the scheduler reports everything
	// still in flight as never run before the process exits
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return int(subcommands.Execute(ctx))
}

func main() {
	os.Exit(doMain())
}
