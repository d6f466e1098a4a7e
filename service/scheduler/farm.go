package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/phaseq/mwtest/model"
	"github.com/phaseq/mwtest/policy"
	"github.com/phaseq/mwtest/service/correlator"
	"github.com/phaseq/mwtest/service/farm"
)

// farmClient is the subset of the farm client the drain loop needs; tests
// substitute a scripted implementation.
type farmClient interface {
	Start(ctx context.Context) error
	Enqueue(id uint64, caption string, argv []string, dir string, local bool) error
	Poll(timeout time.Duration) (*farm.Result, error)
	Done() bool
	Close() []uint64
}

// runDistributed enqueues every invocation of every group up front, then
// drains results until nothing is pending or the farm stops delivering.
// Groups not marked distributed are still enqueued, flagged to run locally
// constrained. A retry is a brand-new submission with its own queue id and a
// fresh invocation.
func (s *Scheduler) runDistributed(ctx context.Context, groups []*model.Group, state *policy.State) error {
	client, err := s.newFarmClient()
	if err != nil {
		return err
	}
	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("failed to start farm session: %w", err)
	}

	pending := correlator.New()
	var runErr error
	for _, group := range groups {
		for _, id := range group.TestIDs {
			if runErr = s.submit(client, pending, group, id, state); runErr != nil {
				break
			}
		}
		if runErr != nil {
			break
		}
	}

	for runErr == nil && pending.Len() > 0 {
		if ctx.Err() != nil {
			runErr = ctx.Err()
			break
		}
		result, err := client.Poll(s.config.PollTimeout)
		if err != nil {
			runErr = err
			break
		}
		if result == nil {
			// nothing completed within the whole poll window; the farm is
			// not making progress, give up and report the remainder as
			// never run
			log.Printf("scheduler: no farm result within %v, abandoning %d pending invocations", s.config.PollTimeout, pending.Len())
			break
		}
		resolved, ok := pending.Resolve(result.ID)
		if !ok {
			log.Printf("scheduler: discarding result for unknown queue id %d", result.ID)
			continue
		}
		success := result.ExitCode == 0
		res := s.finalize.Finalize(ctx, resolved.Group, resolved.TestID, resolved.Invocation, success, result.Output)
		state.Record(resolved.Group.AppName, resolved.TestID, res.Success)
		s.sink.Handle(model.Outcome{AppName: resolved.Group.AppName, TestID: resolved.TestID, Result: res})
		if !res.Success && s.config.Retry.ShouldRetry(state.Counts(resolved.Group.AppName, resolved.TestID).Failures) {
			if err := s.submit(client, pending, resolved.Group, resolved.TestID, state); err != nil {
				runErr = err
				break
			}
		}
	}

	// every invocation still in flight at teardown is reported as never run
	abandoned := client.Close()
	for _, queueID := range abandoned {
		if resolved, ok := pending.Resolve(queueID); ok {
			s.reportAbandoned(ctx, resolved, state)
		}
	}
	for _, resolved := range pending.Drain() {
		s.reportAbandoned(ctx, resolved, state)
	}
	return runErr
}

// submit resolves one invocation and enqueues it on the farm. A command that
// cannot be resolved is a final failure; the farm never sees it.
func (s *Scheduler) submit(client farmClient, pending *correlator.Correlator, group *model.Group, id model.TestID, state *policy.State) error {
	invocation, err := s.commandFor(id, group)
	if err != nil {
		state.Record(group.AppName, id, false)
		s.sink.Handle(model.Outcome{
			AppName: group.AppName,
			TestID:  id,
			Result:  model.ExecutionResult{Output: fmt.Sprintf("failed to resolve command: %v", err)},
		})
		return nil
	}
	queueID := pending.Submit(id, group, invocation)
	return client.Enqueue(queueID, id.DisplayID, invocation.Argv, invocation.Dir, !group.Distributed)
}

func (s *Scheduler) reportAbandoned(ctx context.Context, resolved correlator.Pending, state *policy.State) {
	res := s.finalize.Finalize(ctx, resolved.Group, resolved.TestID, resolved.Invocation, false, farm.LaunchFailureOutput)
	state.Record(resolved.Group.AppName, resolved.TestID, false)
	s.sink.Handle(model.Outcome{AppName: resolved.Group.AppName, TestID: resolved.TestID, Result: res})
}
