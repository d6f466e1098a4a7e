package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/subcommands"

	"github.com/phaseq/mwtest"
	"github.com/phaseq/mwtest/policy"
	"github.com/phaseq/mwtest/service/report"
	"github.com/phaseq/mwtest/service/resolver"
	"github.com/phaseq/mwtest/service/scheduler"
)

// runCmd implements subcommands.Command to execute a test selection.
type runCmd struct {
	paths          pathFlags
	filter         string
	id             string
	distributed    bool
	localParallel  bool
	workers        int
	repeat         int
	repeatIfFailed int
	verbose        bool
	quiet          bool
	traceFile      string
}

// pathFlags are the location flags shared between run and list.
type pathFlags struct {
	configDir    string
	buildDir     string
	testcasesDir string
	outputDir    string
	preset       string
	build        string
}

func (p *pathFlags) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.configDir, "config-dir", "", "directory holding the apps/build/preset documents (default: the executable's directory)")
	f.StringVar(&p.buildDir, "build-dir", "", "path to the build directory")
	f.StringVar(&p.testcasesDir, "testcases-dir", "", "path to the testcases directory")
	f.StringVar(&p.outputDir, "output-dir", "test_output", "path to the output directory")
	f.StringVar(&p.preset, "preset", "ci", "name of the preset describing what tests to run")
	f.StringVar(&p.build, "build", "dev", "name of the build layout document")
}

func (p *pathFlags) apply(config *mwtest.Config) error {
	baseURL := p.configDir
	if baseURL == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to locate executable: %w", err)
		}
		baseURL = filepath.Dir(exe)
	}
	outputDir, err := filepath.Abs(p.outputDir)
	if err != nil {
		return err
	}
	config.Resolver.BaseURL = baseURL
	config.Resolver.BuildDir = p.buildDir
	config.Resolver.TestcasesDir = p.testcasesDir
	config.Resolver.ArtifactsDir = outputDir
	config.Resolver.Preset = p.preset
	config.Resolver.Build = p.build
	return nil
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "run tests" }
func (*runCmd) Usage() string {
	return `Usage: run [flag]... <app>...

Description:
    Run the tests of one or more registered applications ("all" selects
    every application the preset knows).

Flag:
`
}

func (rc *runCmd) SetFlags(f *flag.FlagSet) {
	rc.paths.SetFlags(f)
	f.StringVar(&rc.filter, "filter", "", "comma-separated substrings; every test id containing one of them is selected")
	f.StringVar(&rc.id, "id", "", "select exactly one test id")
	f.BoolVar(&rc.distributed, "xge", false, "run tests on the build farm")
	f.BoolVar(&rc.localParallel, "local-parallel", false, "run tests locally in parallel")
	f.IntVar(&rc.workers, "workers", 0, "local worker count (0 selects the logical core count)")
	f.IntVar(&rc.repeat, "repeat", 1, "run the whole selection this many times")
	f.IntVar(&rc.repeatIfFailed, "repeat-if-failed", 0, "re-run a failing test up to this many extra times")
	f.BoolVar(&rc.verbose, "verbose", false, "show full test results also on success")
	f.BoolVar(&rc.quiet, "quiet", false, "don't report succeeded tests")
	f.StringVar(&rc.traceFile, "trace-file", "", "write an execution trace to this file")
}

func (rc *runCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if len(f.Args()) == 0 {
		fmt.Fprintln(os.Stderr, "you have to run at least one test application")
		return subcommands.ExitUsageError
	}
	if rc.distributed && rc.localParallel {
		fmt.Fprintln(os.Stderr, "-xge and -local-parallel are mutually exclusive")
		return subcommands.ExitUsageError
	}

	config := mwtest.DefaultConfig()
	if err := rc.paths.apply(config); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return subcommands.ExitFailure
	}
	config.Resolver.Repeat = rc.repeat
	config.Scheduler.Workers = rc.workers
	config.Scheduler.Retry = policy.Retry{MaxRepeats: rc.repeatIfFailed}
	switch {
	case rc.distributed:
		config.Scheduler.Mode = scheduler.ModeDistributed
	case rc.localParallel:
		config.Scheduler.Mode = scheduler.ModePool
	default:
		config.Scheduler.Mode = scheduler.ModeSequential
	}
	switch {
	case rc.verbose:
		config.Verbosity = report.Verbose
	case rc.quiet:
		config.Verbosity = report.Quiet
	}

	var options []mwtest.Option
	if rc.traceFile != "" {
		options = append(options, mwtest.WithTracing("mwtest", Version, rc.traceFile))
	}
	service, err := mwtest.New(config, options...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return subcommands.ExitFailure
	}

	passed, err := service.Run(ctx, f.Args(), rc.makeFilter())
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return subcommands.ExitFailure
	}
	if !passed {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (rc *runCmd) makeFilter() resolver.Filter {
	filter := resolver.Filter{ID: rc.id}
	if rc.filter != "" {
		filter.Substrings = strings.Split(rc.filter, ",")
	}
	return filter
}
