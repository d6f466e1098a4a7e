package farm

import (
	"encoding/json"
	"strings"
)

// Wire constants shared by the client and the self-invoked server and wrap
// modes. Both ends are the same executable, so these are deliberately not
// configurable.
const (
	// handshakePrefix precedes the ephemeral port number on the first line
	// the server writes to its stdout.
	handshakePrefix = "port: "
	// sentinelPrefix marks result lines within the console's aggregated
	// output stream.
	sentinelPrefix = "mwt "
	// doneMarker ends a relay session.
	doneMarker = "done"
)

// Submission modes.
const (
	ModeLocal  = "local"
	ModeRemote = "remote"
)

// Request is one job submission relayed to the farm console, serialized as
// a single JSON line on the control socket.
type Request struct {
	ID      uint64   `json:"id"`
	Mode    string   `json:"mode"`
	Caption string   `json:"caption"`
	Dir     string   `json:"cwd"`
	Args    []string `json:"argv"`
}

// Local reports whether the submission must stay on this machine.
func (r *Request) Local() bool { return r.Mode == ModeLocal }

// Result is the outcome of one wrapped job, emitted by wrap mode as a
// sentinel-prefixed line and read back from the console's output.
type Result struct {
	ID       uint64 `json:"id"`
	ExitCode int    `json:"exitCode"`
	Output   string `json:"output"`
}

// parseResultLine decodes a sentinel-prefixed console output line. The
// second return is false for non-sentinel lines and for the done marker.
func parseResultLine(line string) (*Result, bool) {
	if !strings.HasPrefix(line, sentinelPrefix) {
		return nil, false
	}
	payload := line[len(sentinelPrefix):]
	if payload == doneMarker {
		return nil, false
	}
	var result Result
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		// aggregated output may interleave arbitrary job text
		return nil, false
	}
	return &result, true
}
