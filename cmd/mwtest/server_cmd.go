package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/phaseq/mwtest/service/farm"
)

// serverCmd implements the hidden relay mode the farm console runs: it
// announces a loopback port on stdout and forwards every received request
// line as one farm submission.
type serverCmd struct {
	submit string
}

func (*serverCmd) Name() string     { return "server" }
func (*serverCmd) Synopsis() string { return "farm submission relay (internal)" }
func (*serverCmd) Usage() string {
	return `Usage: server [flag]...

Description:
    Internal mode launched by the farm console during distributed runs. Not
    meant to be invoked manually.
`
}

func (sc *serverCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&sc.submit, "submit", "", "per-job farm submission tool (default: the built-in one)")
}

func (sc *serverCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	config := farm.DefaultConfig()
	if sc.submit != "" {
		config.SubmitCommand = sc.submit
	}
	if err := farm.Serve(config, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
