package runner

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"golang.org/x/sync/errgroup"

	"github.com/phaseq/mwtest/model"
)

// Pool executes invocations of parallel groups on a fixed-size local worker
// pool; completions are delivered in arbitrary order as workers finish.
// Groups not marked parallel run synchronously through the sequential path
// instead. Workers never install signal handlers; interruption is the
// coordinator's job and arrives through the context.
type Pool struct {
	workers    int
	commandFor CommandFor
	invoke     Invoker
	sequential *Sequential
}

// NewPool creates the pool backend. A non-positive worker count selects the
// host's logical core count.
func NewPool(workers int, commandFor CommandFor, invoke Invoker) *Pool {
	if invoke == nil {
		invoke = Invoke
	}
	if workers <= 0 {
		workers = logicalCores()
	}
	return &Pool{
		workers:    workers,
		commandFor: commandFor,
		invoke:     invoke,
		sequential: NewSequential(commandFor, invoke),
	}
}

// Workers returns the pool size.
func (p *Pool) Workers() int { return p.workers }

// Run implements Backend.
func (p *Pool) Run(ctx context.Context, group *model.Group) <-chan Completion {
	if !group.Parallel {
		return p.sequential.Run(ctx, group)
	}

	out := make(chan Completion)
	jobs := make(chan model.TestID)

	g, workerCtx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		g.Go(func() error {
			for id := range jobs {
				invocation, err := p.commandFor(id, group)
				var completion Completion
				if err != nil {
					completion = Completion{TestID: id, ExitCode: LaunchFailureExitCode, Err: err}
				} else {
					exitCode, output, invErr := p.invoke(workerCtx, invocation)
					completion = Completion{TestID: id, Invocation: invocation, ExitCode: exitCode, Output: output, Err: invErr}
				}
				select {
				case out <- completion:
				case <-workerCtx.Done():
					return workerCtx.Err()
				}
			}
			return nil
		})
	}

	go func() {
		defer close(jobs)
		for _, id := range group.TestIDs {
			select {
			case jobs <- id:
			case <-workerCtx.Done():
				return
			}
		}
	}()

	go func() {
		_ = g.Wait()
		close(out)
	}()
	return out
}

func logicalCores() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}
