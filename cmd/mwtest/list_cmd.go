package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/subcommands"

	"github.com/phaseq/mwtest"
	"github.com/phaseq/mwtest/service/resolver"
)

// listCmd implements subcommands.Command to support listing applications and
// their selected test ids.
type listCmd struct {
	paths  pathFlags
	filter string
	id     string
	stdout io.Writer
}

var _ = subcommands.Command(&listCmd{})

// newListCmd returns a new listCmd that writes to stdout.
func newListCmd(stdout io.Writer) *listCmd {
	return &listCmd{stdout: stdout}
}

func (*listCmd) Name() string     { return "list" }
func (*listCmd) Synopsis() string { return "list registered applications or selected tests" }
func (*listCmd) Usage() string {
	return `Usage: list [flag]... [app]...

Description:
    Without arguments, list every registered test application. With
    application names, list the selected test ids one per line, in the form
    the run command accepts back.

Flag:
`
}

func (lc *listCmd) SetFlags(f *flag.FlagSet) {
	lc.paths.SetFlags(f)
	f.StringVar(&lc.filter, "filter", "", "comma-separated substrings; every test id containing one of them is selected")
	f.StringVar(&lc.id, "id", "", "select exactly one test id")
}

func (lc *listCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	config := mwtest.DefaultConfig()
	if err := lc.paths.apply(config); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return subcommands.ExitFailure
	}
	service, err := mwtest.New(config, mwtest.WithOutput(lc.stdout))
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return subcommands.ExitFailure
	}

	var lines []string
	if len(f.Args()) == 0 {
		lines, err = service.RegisteredApps(ctx)
	} else {
		filter := resolver.Filter{ID: lc.id}
		if lc.filter != "" {
			filter.Substrings = strings.Split(lc.filter, ",")
		}
		lines, err = service.List(ctx, f.Args(), filter)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return subcommands.ExitFailure
	}
	for _, line := range lines {
		fmt.Fprintln(lc.stdout, line)
	}
	return subcommands.ExitSuccess
}
