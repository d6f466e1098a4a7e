package mwtest

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/phaseq/mwtest/model"
	"github.com/phaseq/mwtest/service/artifacts"
	"github.com/phaseq/mwtest/service/report"
	"github.com/phaseq/mwtest/service/resolver"
	"github.com/phaseq/mwtest/service/scheduler"
)

// Service is the high-level façade: it wires the resolver, scheduler,
// artifact store and reporter into one pipeline.
type Service struct {
	config   *Config
	resolver *resolver.Resolver
	store    *artifacts.Store
	out      io.Writer

	schedulerOptions []scheduler.Option
}

// New creates a service from the supplied configuration.
func New(config *Config, options ...Option) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	s := &Service{
		config:   config,
		resolver: resolver.New(config.Resolver),
		store:    artifacts.New(),
		out:      os.Stdout,
	}
	for _, option := range options {
		option(s)
	}
	return s, nil
}

// RegisteredApps lists every test application the configuration knows.
func (s *Service) RegisteredApps(ctx context.Context) ([]string, error) {
	return s.resolver.RegisteredApps(ctx)
}

// List resolves the selection and returns one line per selected test, in the
// form the run command accepts back.
func (s *Service) List(ctx context.Context, apps []string, filter resolver.Filter) ([]string, error) {
	groups, err := s.resolver.Resolve(ctx, apps, filter)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, group := range groups {
		for _, id := range group.TestIDs {
			lines = append(lines, fmt.Sprintf("%s --id %q", group.AppName, id.DisplayID))
		}
	}
	return lines, nil
}

// Run resolves the selection, executes it through the configured backend and
// renders the report. It returns whether the run passed: every selected test
// succeeded at least once and instable tests do not fail the run.
func (s *Service) Run(ctx context.Context, apps []string, filter resolver.Filter) (bool, error) {
	groups, err := s.resolver.Resolve(ctx, apps, filter)
	if err != nil {
		return false, err
	}

	artifactsDir := s.config.Resolver.ArtifactsDir
	if artifactsDir != "" {
		fmt.Fprintf(s.out, "Test artifacts will be written to %v\n", artifactsDir)
		if err := s.store.Prepare(ctx, artifactsDir); err != nil {
			return false, err
		}
	}

	reporter := report.New(report.Config{
		Verbosity:    s.config.Verbosity,
		ArtifactsDir: artifactsDir,
	}, countTests(groups), s.out)

	options := append([]scheduler.Option{scheduler.WithFinalizer(s.store)}, s.schedulerOptions...)
	sched := scheduler.New(s.config.Scheduler, s.resolver.CommandFor(), reporter, options...)

	state, runErr := sched.Run(ctx, groups)
	success, err := reporter.Finish(ctx, state)
	if runErr != nil {
		return false, runErr
	}
	return success, err
}

func countTests(groups []*model.Group) int {
	total := 0
	for _, group := range groups {
		total += len(group.TestIDs)
	}
	return total
}
