package mwtest

import (
	"fmt"

	"github.com/phaseq/mwtest/service/report"
	"github.com/phaseq/mwtest/service/resolver"
	"github.com/phaseq/mwtest/service/scheduler"
)

// Config is a serialisable representation of the engine configuration. It can
// be populated from JSON or YAML; the zero-value inherits every nested
// package default via DefaultConfig.
type Config struct {
	Resolver  resolver.Config  `json:"resolver" yaml:"resolver"`
	Scheduler scheduler.Config `json:"scheduler" yaml:"scheduler"`
	Verbosity report.Verbosity `json:"verbosity" yaml:"verbosity"`
}

// DefaultConfig returns a Config populated with the package defaults.
// Callers may modify the returned struct before passing it to New.
func DefaultConfig() *Config {
	return &Config{
		Resolver:  resolver.DefaultConfig(),
		Scheduler: scheduler.DefaultConfig(),
		Verbosity: report.Normal,
	}
}

// Validate returns an error describing the first invalid setting, or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if err := c.Resolver.Validate(); err != nil {
		return fmt.Errorf("resolver: %w", err)
	}
	if err := c.Scheduler.Validate(); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	return nil
}
