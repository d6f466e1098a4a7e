// Package policy bounds how often a failing invocation is resubmitted and
// accumulates per-test attempt counts across one run.  It is deliberately
// decoupled from the execution backends: they report raw results, the
// scheduler consults the policy, and the sink receives the final
// classification.
package policy

import (
	"sort"
	"sync"

	"github.com/phaseq/mwtest/model"
)

// Classification of a test id at the end of a run.
type Classification int

const (
	// Passed: never failed.
	Passed Classification = iota
	// Failed: failed at least once and never succeeded.
	Failed
	// Instable: failed at least once and later succeeded within the same run.
	Instable
)

// Retry bounds resubmissions of genuinely failing invocations. Infrastructure
// flakes are resubmitted upstream and never reach this policy.
type Retry struct {
	// MaxRepeats is the number of re-enqueues allowed per test id; an
	// always-failing test runs MaxRepeats+1 times in total.
	MaxRepeats int
}

// ShouldRetry reports whether a failed test id may be re-enqueued given the
// number of failures observed so far.
func (r Retry) ShouldRetry(failures int) bool {
	return failures <= r.MaxRepeats
}

// Counts holds the per-test attempt tally.
type Counts struct {
	Failures  int
	Successes int
}

// stateKey identifies one test within one application. Two applications may
// select the same display id; their tallies must never merge.
type stateKey struct {
	appName string
	id      model.TestID
}

// State accumulates (failureCount, successCount) per (app, test id) across
// all attempts of one run.
type State struct {
	mu     sync.Mutex
	counts map[stateKey]*Counts
}

// NewState returns an empty accumulator.
func NewState() *State {
	return &State{
		counts: make(map[stateKey]*Counts),
	}
}

// Record adds one observed attempt outcome.
func (s *State) Record(appName string, id model.TestID, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := stateKey{appName: appName, id: id}
	c, ok := s.counts[key]
	if !ok {
		c = &Counts{}
		s.counts[key] = c
	}
	if success {
		c.Successes++
	} else {
		c.Failures++
	}
}

// Counts returns the tally for one test id of one application.
func (s *State) Counts(appName string, id model.TestID) Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.counts[stateKey{appName: appName, id: id}]; ok {
		return *c
	}
	return Counts{}
}

// Classify derives the final classification for one test id of one
// application.
func (s *State) Classify(appName string, id model.TestID) Classification {
	return classify(s.Counts(appName, id))
}

func classify(c Counts) Classification {
	switch {
	case c.Failures == 0:
		return Passed
	case c.Successes > 0:
		return Instable
	default:
		return Failed
	}
}

// Entry pairs a test id with its tally for summary listings.
type Entry struct {
	AppName string
	TestID  model.TestID
	Counts  Counts
}

// Success reports whether the whole run passed: no test id ended up Failed.
// Instable tests do not fail the run.
func (s *State) Success() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.counts {
		if c.Failures > 0 && c.Successes == 0 {
			return false
		}
	}
	return true
}

// ByClassification lists all test ids with the given classification, sorted
// by app name then display id.
func (s *State) ByClassification(class Classification) []Entry {
	s.mu.Lock()
	var entries []Entry
	for key, c := range s.counts {
		if classify(*c) != class {
			continue
		}
		entries = append(entries, Entry{AppName: key.appName, TestID: key.id, Counts: *c})
	}
	s.mu.Unlock()
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].AppName != entries[j].AppName {
			return entries[i].AppName < entries[j].AppName
		}
		return entries[i].TestID.DisplayID < entries[j].TestID.DisplayID
	})
	return entries
}
