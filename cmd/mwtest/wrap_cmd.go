package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/google/subcommands"

	"github.com/phaseq/mwtest/service/farm"
)

// wrapCmd implements the hidden wrapper mode every farm job runs through:
// it executes the real user command, captures its output and exit code and
// emits them as one sentinel line the submitting client can recognize.
type wrapCmd struct{}

func (*wrapCmd) Name() string     { return "wrap" }
func (*wrapCmd) Synopsis() string { return "farm job wrapper (internal)" }
func (*wrapCmd) Usage() string {
	return `Usage: wrap <queue-id> <command> [arg]...

Description:
    Internal mode executed on farm workers during distributed runs. Not
    meant to be invoked manually.
`
}

func (*wrapCmd) SetFlags(_ *flag.FlagSet) {}

func (*wrapCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "wrap needs a queue id and a command")
		return subcommands.ExitUsageError
	}
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid queue id %q: %v\n", args[0], err)
		return subcommands.ExitUsageError
	}
	return subcommands.ExitStatus(farm.Wrap(os.Stdout, id, args[1:]))
}
