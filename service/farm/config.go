package farm

import (
	"fmt"
	"os"
	"time"
)

// Config represents farm client configuration.
type Config struct {
	// ConsoleCommand is the distributed execution tool that owns remote
	// process launches.
	ConsoleCommand string `json:"console" yaml:"console"`
	// Profile is an optional console profile document.
	Profile string `json:"profile,omitempty" yaml:"profile,omitempty"`
	// OpenMonitor asks the console to open its progress monitor.
	OpenMonitor bool `json:"openMonitor" yaml:"openMonitor"`
	// SubmitCommand is the per-job submission tool invoked by the server
	// relay.
	SubmitCommand string `json:"submit" yaml:"submit"`
	// FlakeSignature is the transient-fault substring; results carrying it
	// are discarded and their invocation is resubmitted verbatim. The
	// default is the only signature the farm tool is known to emit; override
	// it when the tool version changes.
	FlakeSignature string `json:"flakeSignature" yaml:"flakeSignature"`
	// PollInterval bounds one wait increment inside Poll.
	PollInterval time.Duration `json:"pollInterval" yaml:"pollInterval"`
	// SelfExecutable re-invokes this engine in server and wrap mode; it
	// defaults to the running binary.
	SelfExecutable string `json:"-" yaml:"-"`
	// QueueBuffer sizes the reader-to-coordinator result queue.
	QueueBuffer int `json:"queueBuffer" yaml:"queueBuffer"`
}

// DefaultConfig returns the default farm configuration.
func DefaultConfig() Config {
	return Config{
		ConsoleCommand: "xgConsole",
		SubmitCommand:  "xgSubmit",
		FlakeSignature: "Cannot get file record: Null position",
		PollInterval:   10 * time.Millisecond,
		QueueBuffer:    100,
	}
}

// Validate returns an error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c.ConsoleCommand == "" {
		return fmt.Errorf("farm.console must not be empty")
	}
	if c.SubmitCommand == "" {
		return fmt.Errorf("farm.submit must not be empty")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("farm.pollInterval must be > 0")
	}
	return nil
}

// init fills derived defaults.
func (c *Config) init() error {
	if c.PollInterval == 0 {
		c.PollInterval = DefaultConfig().PollInterval
	}
	if c.QueueBuffer == 0 {
		c.QueueBuffer = DefaultConfig().QueueBuffer
	}
	if c.SelfExecutable == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to locate own executable: %w", err)
		}
		c.SelfExecutable = exe
	}
	return c.Validate()
}

// consoleArgv builds the console child command line; the console re-invokes
// this engine in server mode.
func (c *Config) consoleArgv() []string {
	argv := []string{c.ConsoleCommand}
	if c.Profile != "" {
		argv = append(argv, "/profile="+c.Profile)
	}
	argv = append(argv, fmt.Sprintf("/command=%s server", c.SelfExecutable))
	if c.OpenMonitor {
		argv = append(argv, "/openmonitor")
	}
	return argv
}
