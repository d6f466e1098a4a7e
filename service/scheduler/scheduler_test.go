package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phaseq/mwtest/model"
	"github.com/phaseq/mwtest/policy"
	"github.com/phaseq/mwtest/service/runner"
)

// fakeApp scripts per-test behaviour: the exit code of attempt n is
// exitCodes[min(n, len-1)].
type fakeApp struct {
	mu       sync.Mutex
	attempts map[string]int
	// exitCodes per display id; missing ids always succeed
	exitCodes map[string][]int
}

func newFakeApp(exitCodes map[string][]int) *fakeApp {
	return &fakeApp{attempts: map[string]int{}, exitCodes: exitCodes}
}

func (a *fakeApp) invoke(_ context.Context, invocation model.Invocation) (int, string, error) {
	name := invocation.Argv[1]
	a.mu.Lock()
	attempt := a.attempts[name]
	a.attempts[name]++
	a.mu.Unlock()

	codes, ok := a.exitCodes[name]
	if !ok {
		return 0, name + " ran", nil
	}
	if attempt >= len(codes) {
		attempt = len(codes) - 1
	}
	return codes[attempt], name + " ran", nil
}

func (a *fakeApp) attemptCount(name string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attempts[name]
}

func commandFor(id model.TestID, _ *model.Group) (model.Invocation, error) {
	return model.Invocation{Argv: []string{"app", id.DisplayID}, Dir: "."}, nil
}

// collector is a test sink recording outcomes in arrival order.
type collector struct {
	mu       sync.Mutex
	outcomes []model.Outcome
}

func (c *collector) Handle(outcome model.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, outcome)
}

func (c *collector) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var names []string
	for _, o := range c.outcomes {
		names = append(names, o.TestID.DisplayID)
	}
	return names
}

func testIDs(names ...string) []model.TestID {
	ids := make([]model.TestID, 0, len(names))
	for _, name := range names {
		ids = append(ids, model.TestID{DisplayID: name, RelPath: name + ".tst"})
	}
	return ids
}

func TestRun_SequentialThreeTestScenario(t *testing.T) {
	// A always passes, B always fails, C fails once then passes
	app := newFakeApp(map[string][]int{
		"B": {1},
		"C": {1, 0},
	})
	config := DefaultConfig()
	config.Retry = policy.Retry{MaxRepeats: 2}

	sink := &collector{}
	s := New(config, commandFor, sink, WithInvoker(app.invoke))
	group := &model.Group{AppName: "demo", TestIDs: testIDs("A", "B", "C")}

	state, err := s.Run(context.Background(), []*model.Group{group})
	require.NoError(t, err)

	// round 1: A B C; round 2: B C; round 3: B
	assert.Equal(t, []string{"A", "B", "C", "B", "C", "B"}, sink.names())
	assert.Equal(t, 1, app.attemptCount("A"))
	assert.Equal(t, 3, app.attemptCount("B"))
	assert.Equal(t, 2, app.attemptCount("C"))

	assert.Equal(t, policy.Passed, state.Classify(group.AppName, group.TestIDs[0]))
	assert.Equal(t, policy.Failed, state.Classify(group.AppName, group.TestIDs[1]))
	assert.Equal(t, policy.Instable, state.Classify(group.AppName, group.TestIDs[2]))
	assert.False(t, state.Success())
}

func TestRun_RetryBudgetBoundsAttempts(t *testing.T) {
	for _, maxRepeats := range []int{0, 1, 3} {
		t.Run(fmt.Sprintf("maxRepeats=%d", maxRepeats), func(t *testing.T) {
			app := newFakeApp(map[string][]int{"F": {1}})
			config := DefaultConfig()
			config.Retry = policy.Retry{MaxRepeats: maxRepeats}

			sink := &collector{}
			s := New(config, commandFor, sink, WithInvoker(app.invoke))
			group := &model.Group{AppName: "demo", TestIDs: testIDs("F")}

			state, err := s.Run(context.Background(), []*model.Group{group})
			require.NoError(t, err)
			assert.Equal(t, maxRepeats+1, app.attemptCount("F"))
			assert.Len(t, sink.outcomes, maxRepeats+1)
			assert.Equal(t, policy.Failed, state.Classify(group.AppName, group.TestIDs[0]))
		})
	}
}

func TestRun_InstableRunStillSucceeds(t *testing.T) {
	app := newFakeApp(map[string][]int{"C": {1, 0}})
	config := DefaultConfig()
	config.Retry = policy.Retry{MaxRepeats: 1}

	sink := &collector{}
	s := New(config, commandFor, sink, WithInvoker(app.invoke))
	group := &model.Group{AppName: "demo", TestIDs: testIDs("C")}

	state, err := s.Run(context.Background(), []*model.Group{group})
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "C"}, sink.names())
	assert.False(t, sink.outcomes[0].Result.Success)
	assert.True(t, sink.outcomes[1].Result.Success)
	assert.Equal(t, policy.Instable, state.Classify(group.AppName, group.TestIDs[0]))
	assert.True(t, state.Success())
}

func TestRun_PoolDeliversEveryResult(t *testing.T) {
	app := newFakeApp(nil)
	config := DefaultConfig()
	config.Mode = ModePool
	config.Workers = 4

	sink := &collector{}
	s := New(config, commandFor, sink, WithInvoker(app.invoke))
	names := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	group := &model.Group{AppName: "demo", TestIDs: testIDs(names...), Parallel: true}

	state, err := s.Run(context.Background(), []*model.Group{group})
	require.NoError(t, err)
	// unordered completion: exactly one outcome per id
	assert.ElementsMatch(t, names, sink.names())
	assert.True(t, state.Success())
}

func TestRun_PoolRoutesNonParallelGroupsInOrder(t *testing.T) {
	app := newFakeApp(nil)
	config := DefaultConfig()
	config.Mode = ModePool
	config.Workers = 4

	sink := &collector{}
	s := New(config, commandFor, sink, WithInvoker(app.invoke))
	group := &model.Group{AppName: "demo", TestIDs: testIDs("a", "b", "c")}

	_, err := s.Run(context.Background(), []*model.Group{group})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, sink.names())
}

func TestRun_LaunchFailureProducesFailedOutcome(t *testing.T) {
	invoke := func(context.Context, model.Invocation) (int, string, error) {
		return runner.LaunchFailureExitCode, "", fmt.Errorf("no such binary")
	}
	config := DefaultConfig()

	sink := &collector{}
	s := New(config, commandFor, sink, WithInvoker(invoke))
	group := &model.Group{AppName: "demo", TestIDs: testIDs("x")}

	state, err := s.Run(context.Background(), []*model.Group{group})
	require.NoError(t, err)
	require.Len(t, sink.outcomes, 1)
	assert.False(t, sink.outcomes[0].Result.Success)
	assert.Contains(t, sink.outcomes[0].Result.Output, "no such binary")
	assert.False(t, state.Success())
}
