package scheduler

import (
	"fmt"
	"time"

	"github.com/phaseq/mwtest/policy"
	"github.com/phaseq/mwtest/service/farm"
)

// Mode selects the execution backend for a run.
type Mode string

const (
	// ModeSequential runs every invocation in list order, one at a time.
	ModeSequential Mode = "sequential"
	// ModePool runs parallel groups on a fixed-size local worker pool.
	ModePool Mode = "pool"
	// ModeDistributed delegates invocations to the farm console.
	ModeDistributed Mode = "distributed"
)

// Config holds scheduler settings.
type Config struct {
	// Mode selects the backend; defaults to sequential.
	Mode Mode `json:"mode" yaml:"mode"`
	// Workers sizes the pool backend; non-positive selects the host's
	// logical core count.
	Workers int `json:"workers" yaml:"workers"`
	// Retry bounds re-enqueues of genuinely failing invocations.
	Retry policy.Retry `json:"retry" yaml:"retry"`
	// PollTimeout bounds one farm poll. A poll that elapses without any
	// completion ends the run; everything still pending is reported as
	// never run.
	PollTimeout time.Duration `json:"pollTimeout" yaml:"pollTimeout"`
	// Farm configures the distributed client.
	Farm farm.Config `json:"farm" yaml:"farm"`
}

// DefaultConfig returns scheduler settings with documented defaults.
func DefaultConfig() Config {
	return Config{
		Mode:        ModeSequential,
		PollTimeout: 6 * time.Minute,
		Farm:        farm.DefaultConfig(),
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeSequential, ModePool, ModeDistributed:
	default:
		return fmt.Errorf("unknown scheduler mode %q", c.Mode)
	}
	if c.PollTimeout <= 0 {
		return fmt.Errorf("pollTimeout must be positive, got %v", c.PollTimeout)
	}
	return nil
}
