package runner

import (
	"bytes"
	"context"
	"errors"
	"os/exec"

	"github.com/phaseq/mwtest/internal/sanitize"
	"github.com/phaseq/mwtest/model"
)

// LaunchFailureExitCode is reported when a process could not be started or
// was torn down before delivering an exit status.
const LaunchFailureExitCode = -7787

// Invoker executes one invocation, blocking until the process exits, and
// returns its exit code and sanitized combined stdout+stderr. Backends take
// it as a dependency so tests can substitute process execution.
type Invoker func(ctx context.Context, invocation model.Invocation) (int, string, error)

// Invoke is the production invoker. The spawned process joins the caller's
// context: cancellation kills it. Interrupt handling stays with the
// coordinator; no signal handlers are installed here.
func Invoke(ctx context.Context, invocation model.Invocation) (int, string, error) {
	cmd := exec.CommandContext(ctx, invocation.Argv[0], invocation.Argv[1:]...)
	cmd.Dir = invocation.Dir
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	output := sanitize.Output(buf.Bytes())
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), output, nil
		}
		return LaunchFailureExitCode, output, err
	}
	return 0, output, nil
}
