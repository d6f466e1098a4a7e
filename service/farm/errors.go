package farm

import "errors"

var (
	// ErrHandshake: the console exited before announcing the server port.
	ErrHandshake = errors.New("farm console exited before handshake")
	// ErrConsoleClosed: the console output stream ended while invocations
	// were still pending.
	ErrConsoleClosed = errors.New("farm console output closed unexpectedly")
	// ErrSocketClosed: the control socket failed mid-session.
	ErrSocketClosed = errors.New("farm control socket closed unexpectedly")
	// ErrNotConnected: enqueue or poll before a successful Start.
	ErrNotConnected = errors.New("farm client is not connected")
)

// LaunchFailureOutput is the fixed message attached to synthetic results
// for invocations abandoned at shutdown.
const LaunchFailureOutput = "Failed to start!"
