// Package correlator links raw backend results back to their test context.
// It issues opaque, strictly increasing queue ids on submission and resolves
// each exactly once when its result is observed.
package correlator

import (
	"sort"
	"sync"

	"github.com/phaseq/mwtest/model"
)

// Pending is one submitted invocation awaiting its result. Exactly one live
// entry exists per queue id.
type Pending struct {
	QueueID    uint64
	TestID     model.TestID
	Group      *model.Group
	Invocation model.Invocation
}

// Correlator tracks pending invocations. The coordinator is the sole
// submitter and remover; the lock exists because a flake-triggered
// resubmission inspects the map from the reader goroutine.
type Correlator struct {
	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]Pending
}

// New returns an empty correlator.
func New() *Correlator {
	return &Correlator{pending: make(map[uint64]Pending)}
}

// Submit stores the invocation context and returns its queue id.
func (c *Correlator) Submit(id model.TestID, group *model.Group, invocation model.Invocation) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	queueID := c.nextID
	c.nextID++
	c.pending[queueID] = Pending{QueueID: queueID, TestID: id, Group: group, Invocation: invocation}
	return queueID
}

// Resolve removes and returns the pending invocation for the given queue id.
// The second return is false when the id is unknown or already resolved.
func (c *Correlator) Resolve(queueID uint64) (Pending, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[queueID]
	if ok {
		delete(c.pending, queueID)
	}
	return p, ok
}

// Len returns the number of unresolved invocations.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Drain removes and returns all unresolved invocations, ordered by queue id.
func (c *Correlator) Drain() []Pending {
	c.mu.Lock()
	defer c.mu.Unlock()
	remaining := make([]Pending, 0, len(c.pending))
	for _, p := range c.pending {
		remaining = append(remaining, p)
	}
	c.pending = make(map[uint64]Pending)
	sort.Slice(remaining, func(i, j int) bool { return remaining[i].QueueID < remaining[j].QueueID })
	return remaining
}
