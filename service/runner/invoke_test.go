package runner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phaseq/mwtest/model"
)

func TestInvoke_Success(t *testing.T) {
	exitCode, output, err := Invoke(context.Background(), model.Invocation{
		Argv: []string{"sh", "-c", "echo hello"},
		Dir:  t.TempDir(),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, exitCode)
	assert.Equal(t, "hello\n", output)
}

func TestInvoke_NonZeroExit(t *testing.T) {
	exitCode, output, err := Invoke(context.Background(), model.Invocation{
		Argv: []string{"sh", "-c", "echo oops >&2; exit 3"},
		Dir:  t.TempDir(),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, exitCode)
	assert.Contains(t, output, "oops")
}

func TestInvoke_CombinedOutput(t *testing.T) {
	exitCode, output, err := Invoke(context.Background(), model.Invocation{
		Argv: []string{"sh", "-c", "echo out; echo err >&2"},
		Dir:  t.TempDir(),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, exitCode)
	assert.Contains(t, output, "out")
	assert.Contains(t, output, "err")
}

func TestInvoke_LaunchFailure(t *testing.T) {
	exitCode, _, err := Invoke(context.Background(), model.Invocation{
		Argv: []string{"/nonexistent/test-binary"},
		Dir:  t.TempDir(),
	})
	assert.Error(t, err)
	assert.Equal(t, LaunchFailureExitCode, exitCode)
}

func TestInvoke_WorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	_, output, err := Invoke(context.Background(), model.Invocation{
		Argv: []string{"pwd"},
		Dir:  dir,
	})
	require.NoError(t, err)
	assert.Contains(t, output, dir)
}
