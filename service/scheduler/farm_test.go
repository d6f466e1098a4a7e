package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phaseq/mwtest/model"
	"github.com/phaseq/mwtest/policy"
	"github.com/phaseq/mwtest/service/farm"
)

type scriptedJob struct {
	ID      uint64
	Caption string
	Argv    []string
	Dir     string
	Local   bool
}

// scriptedFarm plays the farm side in-process: each enqueue may immediately
// produce a scripted result, and Poll hands results back one at a time.
type scriptedFarm struct {
	mu       sync.Mutex
	started  bool
	closed   bool
	jobs     []scriptedJob
	results  []*farm.Result
	inFlight map[uint64]bool
	// respond generates the result for one submission; nil leaves the job
	// in flight forever.
	respond func(job scriptedJob) *farm.Result
	// pollErr is returned once the scripted results run out.
	pollErr error
}

func newScriptedFarm(respond func(job scriptedJob) *farm.Result) *scriptedFarm {
	return &scriptedFarm{respond: respond, inFlight: map[uint64]bool{}}
}

func (f *scriptedFarm) Start(context.Context) error {
	f.started = true
	return nil
}

func (f *scriptedFarm) Enqueue(id uint64, caption string, argv []string, dir string, local bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job := scriptedJob{ID: id, Caption: caption, Argv: argv, Dir: dir, Local: local}
	f.jobs = append(f.jobs, job)
	f.inFlight[id] = true
	if f.respond != nil {
		if result := f.respond(job); result != nil {
			f.results = append(f.results, result)
		}
	}
	return nil
}

func (f *scriptedFarm) Poll(time.Duration) (*farm.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.results) == 0 {
		return nil, f.pollErr
	}
	result := f.results[0]
	f.results = f.results[1:]
	delete(f.inFlight, result.ID)
	return result, nil
}

func (f *scriptedFarm) Done() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inFlight) == 0 && len(f.results) == 0
}

func (f *scriptedFarm) Close() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	var abandoned []uint64
	for id := range f.inFlight {
		abandoned = append(abandoned, id)
	}
	sort.Slice(abandoned, func(i, j int) bool { return abandoned[i] < abandoned[j] })
	return abandoned
}

func newDistributedScheduler(sink Sink, client farmClient, retry policy.Retry) *Scheduler {
	config := DefaultConfig()
	config.Mode = ModeDistributed
	config.Retry = retry
	s := New(config, commandFor, sink)
	s.newFarmClient = func() (farmClient, error) { return client, nil }
	return s
}

func TestRunDistributed_RoundTrip(t *testing.T) {
	client := newScriptedFarm(func(job scriptedJob) *farm.Result {
		return &farm.Result{ID: job.ID, ExitCode: 0, Output: job.Caption + " passed"}
	})
	sink := &collector{}
	s := newDistributedScheduler(sink, client, policy.Retry{})

	groups := []*model.Group{
		{AppName: "demo", TestIDs: testIDs("a", "b"), Distributed: true},
		{AppName: "pinned", TestIDs: testIDs("c")},
	}
	state, err := s.Run(context.Background(), groups)
	require.NoError(t, err)

	require.Len(t, client.jobs, 3)
	assert.Equal(t, "a", client.jobs[0].Caption)
	assert.False(t, client.jobs[0].Local)
	// groups not marked distributed still go through the farm, pinned local
	assert.True(t, client.jobs[2].Local)
	// queue ids are strictly increasing
	for i := 1; i < len(client.jobs); i++ {
		assert.Greater(t, client.jobs[i].ID, client.jobs[i-1].ID)
	}

	assert.ElementsMatch(t, []string{"a", "b", "c"}, sink.names())
	assert.True(t, state.Success())
	assert.True(t, client.closed)
}

func TestRunDistributed_RetryGetsNewQueueID(t *testing.T) {
	attempts := map[string]int{}
	client := newScriptedFarm(nil)
	client.respond = func(job scriptedJob) *farm.Result {
		name := job.Caption
		attempts[name]++
		exitCode := 0
		if name == "b" && attempts[name] == 1 {
			exitCode = 1
		}
		return &farm.Result{ID: job.ID, ExitCode: exitCode, Output: "out"}
	}
	sink := &collector{}
	s := newDistributedScheduler(sink, client, policy.Retry{MaxRepeats: 1})

	group := &model.Group{AppName: "demo", TestIDs: testIDs("a", "b"), Distributed: true}
	state, err := s.Run(context.Background(), []*model.Group{group})
	require.NoError(t, err)

	// b was submitted twice, under distinct queue ids
	require.Len(t, client.jobs, 3)
	assert.Equal(t, []string{"a", "b", "b"}, []string{client.jobs[0].Caption, client.jobs[1].Caption, client.jobs[2].Caption})
	assert.NotEqual(t, client.jobs[1].ID, client.jobs[2].ID)

	assert.Equal(t, policy.Instable, state.Classify(group.AppName, group.TestIDs[1]))
	assert.True(t, state.Success())
}

func TestRunDistributed_AbandonedReportedAsNeverRun(t *testing.T) {
	// only the first submission ever completes
	client := newScriptedFarm(func(job scriptedJob) *farm.Result {
		if job.ID == 0 {
			return &farm.Result{ID: job.ID, ExitCode: 0, Output: "ok"}
		}
		return nil
	})
	client.pollErr = farm.ErrConsoleClosed
	sink := &collector{}
	s := newDistributedScheduler(sink, client, policy.Retry{})

	group := &model.Group{AppName: "demo", TestIDs: testIDs("a", "b", "c"), Distributed: true}
	state, err := s.Run(context.Background(), []*model.Group{group})
	assert.ErrorIs(t, err, farm.ErrConsoleClosed)

	require.Len(t, sink.outcomes, 3)
	synthetic := 0
	for _, outcome := range sink.outcomes {
		if outcome.Result.Output == farm.LaunchFailureOutput {
			synthetic++
			assert.False(t, outcome.Result.Success)
		}
	}
	assert.Equal(t, 2, synthetic)
	assert.False(t, state.Success())
}

func TestRunDistributed_PollTimeoutAbandonsPending(t *testing.T) {
	// only the first job ever completes; subsequent polls time out
	client := newScriptedFarm(func(job scriptedJob) *farm.Result {
		if job.Caption == "a" {
			return &farm.Result{ID: job.ID, ExitCode: 0, Output: "ok"}
		}
		return nil
	})
	sink := &collector{}
	s := newDistributedScheduler(sink, client, policy.Retry{})

	group := &model.Group{AppName: "demo", TestIDs: testIDs("a", "b", "c"), Distributed: true}
	state, err := s.Run(context.Background(), []*model.Group{group})
	require.NoError(t, err)

	require.Len(t, sink.outcomes, 3)
	synthetic := 0
	for _, outcome := range sink.outcomes {
		if outcome.Result.Output == farm.LaunchFailureOutput {
			synthetic++
			assert.False(t, outcome.Result.Success)
		}
	}
	assert.Equal(t, 2, synthetic)
	assert.True(t, client.closed)
	assert.False(t, state.Success())
}

func TestRunDistributed_CommandErrorNeverReachesFarm(t *testing.T) {
	client := newScriptedFarm(func(job scriptedJob) *farm.Result {
		return &farm.Result{ID: job.ID, ExitCode: 0, Output: "ok"}
	})
	sink := &collector{}
	config := DefaultConfig()
	config.Mode = ModeDistributed
	failingCommandFor := func(id model.TestID, group *model.Group) (model.Invocation, error) {
		if id.DisplayID == "broken" {
			return model.Invocation{}, fmt.Errorf("no template for %s", id.DisplayID)
		}
		return commandFor(id, group)
	}
	s := New(config, failingCommandFor, sink)
	s.newFarmClient = func() (farmClient, error) { return client, nil }

	group := &model.Group{AppName: "demo", TestIDs: testIDs("broken", "ok"), Distributed: true}
	state, err := s.Run(context.Background(), []*model.Group{group})
	require.NoError(t, err)

	require.Len(t, client.jobs, 1)
	assert.Equal(t, "ok", client.jobs[0].Caption)
	assert.ElementsMatch(t, []string{"broken", "ok"}, sink.names())
	assert.False(t, state.Success())
}
