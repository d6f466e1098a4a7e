package farm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/phaseq/mwtest/internal/sanitize"
)

// WrapExitCode is reported when the wrapped process never ran.
const WrapExitCode = -7787

// Wrap implements the self-invoked wrap mode every farm job runs through.
// It executes the real user command, captures combined stdout+stderr and
// the exit code, and emits exactly one sentinel-prefixed result line; the
// line surfaces through the console's aggregated output back to the
// client's reader. The returned value is the wrapped process's exit code,
// which the wrapper must itself exit with.
func Wrap(stdout io.Writer, id uint64, argv []string) int {
	if len(argv) == 0 {
		report(stdout, id, WrapExitCode, "no command to wrap")
		return WrapExitCode
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			report(stdout, id, WrapExitCode, fmt.Sprintf("failed to execute process: %v", err))
			return WrapExitCode
		}
	}
	output := sanitize.Output(append(outBuf.Bytes(), errBuf.Bytes()...))
	report(stdout, id, exitCode, output)
	return exitCode
}

func report(stdout io.Writer, id uint64, exitCode int, output string) {
	result := Result{ID: id, ExitCode: exitCode, Output: output}
	data, err := json.Marshal(&result)
	if err != nil {
		// output is sanitized UTF-8, marshalling cannot realistically fail
		return
	}
	fmt.Fprintf(stdout, "%s%s\n", sentinelPrefix, data)
}
