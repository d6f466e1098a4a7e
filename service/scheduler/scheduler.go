// Package scheduler orchestrates one run: it selects the execution backend
// per configuration, streams raw completions through artifact finalization
// and the retry policy, and emits one outcome per attempt to the sink.
package scheduler

import (
	"context"
	"fmt"
	"strconv"

	"github.com/phaseq/mwtest/model"
	"github.com/phaseq/mwtest/policy"
	"github.com/phaseq/mwtest/service/farm"
	"github.com/phaseq/mwtest/service/runner"
	"github.com/phaseq/mwtest/tracing"
)

// Sink receives every finalized attempt outcome, including outcomes of
// attempts that are later retried.
type Sink interface {
	Handle(outcome model.Outcome)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(outcome model.Outcome)

// Handle implements Sink.
func (f SinkFunc) Handle(outcome model.Outcome) { f(outcome) }

// Finalizer turns a raw completion into a finalized result: artifact
// placement, diff augmentation, temp dir removal.
type Finalizer interface {
	Finalize(ctx context.Context, group *model.Group, id model.TestID, invocation model.Invocation, success bool, output string) model.ExecutionResult
}

// passthrough finalizes without touching the filesystem; used when no
// artifact store is configured.
type passthrough struct{}

func (passthrough) Finalize(_ context.Context, _ *model.Group, _ model.TestID, _ model.Invocation, success bool, output string) model.ExecutionResult {
	return model.ExecutionResult{Success: success, Output: output}
}

// Option customises a scheduler.
type Option func(*Scheduler)

// WithInvoker substitutes process execution; used by tests.
func WithInvoker(invoke runner.Invoker) Option {
	return func(s *Scheduler) { s.invoke = invoke }
}

// WithFinalizer installs the artifact finalizer.
func WithFinalizer(finalize Finalizer) Option {
	return func(s *Scheduler) { s.finalize = finalize }
}

// Scheduler drives one run end to end. It owns backend selection, the retry
// loop and the farm drain loop; classification state accumulates across all
// attempts and is returned from Run.
type Scheduler struct {
	config     Config
	commandFor runner.CommandFor
	invoke     runner.Invoker
	finalize   Finalizer
	sink       Sink

	// newFarmClient is swapped by tests.
	newFarmClient func() (farmClient, error)
}

// New creates a scheduler. A nil sink discards outcomes.
func New(config Config, commandFor runner.CommandFor, sink Sink, options ...Option) *Scheduler {
	if sink == nil {
		sink = SinkFunc(func(model.Outcome) {})
	}
	s := &Scheduler{
		config:     config,
		commandFor: commandFor,
		finalize:   passthrough{},
		sink:       sink,
	}
	s.newFarmClient = func() (farmClient, error) {
		return farm.NewClient(s.config.Farm)
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Run executes all groups through the configured backend and returns the
// accumulated classification state. Every test id yields at least one
// outcome; a failing id yields one outcome per attempt.
func (s *Scheduler) Run(ctx context.Context, groups []*model.Group) (*policy.State, error) {
	state := policy.NewState()
	ctx, span := tracing.StartSpan(ctx, "run", "INTERNAL")
	span.WithAttributes(map[string]string{"mode": string(s.config.Mode)})
	var err error
	defer func() { tracing.EndSpan(span, err) }()

	switch s.config.Mode {
	case ModeDistributed:
		err = s.runDistributed(ctx, groups, state)
	case ModePool:
		err = s.runLocal(ctx, runner.NewPool(s.config.Workers, s.commandFor, s.invoke), groups, state)
	default:
		err = s.runLocal(ctx, runner.NewSequential(s.commandFor, s.invoke), groups, state)
	}
	return state, err
}

// runLocal streams one group at a time through a local backend. Failed ids
// within the retry budget are collected and re-run in rounds; each round
// issues fresh invocations, so every attempt gets its own temp dir.
func (s *Scheduler) runLocal(ctx context.Context, backend runner.Backend, groups []*model.Group, state *policy.State) error {
	for _, group := range groups {
		groupCtx, span := tracing.StartSpan(ctx, "group", "INTERNAL")
		span.WithAttributes(map[string]string{"app": group.AppName, "tests": strconv.Itoa(len(group.TestIDs))})

		pending := group.TestIDs
		for len(pending) > 0 && groupCtx.Err() == nil {
			round := *group
			round.TestIDs = pending
			var retries []model.TestID
			for completion := range backend.Run(groupCtx, &round) {
				outcome := s.finalizeCompletion(groupCtx, group, completion)
				state.Record(group.AppName, completion.TestID, outcome.Result.Success)
				s.sink.Handle(outcome)
				if !outcome.Result.Success && s.config.Retry.ShouldRetry(state.Counts(group.AppName, completion.TestID).Failures) {
					retries = append(retries, completion.TestID)
				}
			}
			pending = retries
		}
		tracing.EndSpan(span, groupCtx.Err())
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// finalizeCompletion hands a raw completion to the finalizer and wraps it
// into an outcome.
func (s *Scheduler) finalizeCompletion(ctx context.Context, group *model.Group, completion runner.Completion) model.Outcome {
	output := completion.Output
	if completion.Err != nil && output == "" {
		output = fmt.Sprintf("failed to execute process: %v", completion.Err)
	}
	result := s.finalize.Finalize(ctx, group, completion.TestID, completion.Invocation, completion.Success(), output)
	return model.Outcome{AppName: group.AppName, TestID: completion.TestID, Result: result}
}
