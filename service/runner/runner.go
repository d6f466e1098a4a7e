// Package runner provides the local execution backends. All backends share
// one contract: consume a group, produce one raw completion per test id.
// Completion order is deterministic for the sequential backend and
// unconstrained for the pool.
package runner

import (
	"context"

	"github.com/phaseq/mwtest/model"
)

// Completion is one raw backend result, not yet correlated with retry state
// or artifact placement.
type Completion struct {
	TestID     model.TestID
	Invocation model.Invocation
	ExitCode   int
	Output     string
	// Err is set when the invocation never started.
	Err error
}

// Success reports whether the invocation ran and exited zero.
func (c Completion) Success() bool { return c.Err == nil && c.ExitCode == 0 }

// CommandFor maps a test id within its group to a concrete invocation. The
// invocation resolver supplies the implementation.
type CommandFor func(id model.TestID, group *model.Group) (model.Invocation, error)

// Backend executes all test ids of one group. The returned channel is
// closed once every id produced a completion or the context was cancelled.
type Backend interface {
	Run(ctx context.Context, group *model.Group) <-chan Completion
}
