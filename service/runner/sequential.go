package runner

import (
	"context"

	"github.com/phaseq/mwtest/model"
)

// Sequential executes one subprocess per test id, in list order, blocking
// until each exits.
type Sequential struct {
	commandFor CommandFor
	invoke     Invoker
}

// NewSequential creates the sequential backend.
func NewSequential(commandFor CommandFor, invoke Invoker) *Sequential {
	if invoke == nil {
		invoke = Invoke
	}
	return &Sequential{commandFor: commandFor, invoke: invoke}
}

// Run implements Backend.
func (s *Sequential) Run(ctx context.Context, group *model.Group) <-chan Completion {
	out := make(chan Completion)
	go func() {
		defer close(out)
		for _, id := range group.TestIDs {
			completion := s.runOne(ctx, id, group)
			select {
			case out <- completion:
			case <-ctx.Done():
				return
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
	return out
}

func (s *Sequential) runOne(ctx context.Context, id model.TestID, group *model.Group) Completion {
	invocation, err := s.commandFor(id, group)
	if err != nil {
		return Completion{TestID: id, ExitCode: LaunchFailureExitCode, Err: err}
	}
	exitCode, output, err := s.invoke(ctx, invocation)
	return Completion{TestID: id, Invocation: invocation, ExitCode: exitCode, Output: output, Err: err}
}
