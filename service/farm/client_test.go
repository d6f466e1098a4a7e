package farm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConsole substitutes the farm-console child: the test scripts its
// aggregated output through a pipe and plays the farm side of the control
// socket itself.
type fakeConsole struct {
	out      *io.PipeReader
	writer   *io.PipeWriter
	killOnce sync.Once
	killed   bool
}

func newFakeConsole() *fakeConsole {
	r, w := io.Pipe()
	return &fakeConsole{out: r, writer: w}
}

func (c *fakeConsole) Output() io.Reader { return c.out }

func (c *fakeConsole) Kill() error {
	c.killOnce.Do(func() {
		c.killed = true
		_ = c.writer.Close()
	})
	return nil
}

func (c *fakeConsole) Wait() error {
	// the child has exited; its aggregated output reaches EOF
	_ = c.writer.Close()
	return nil
}

// print writes one line into the scripted console output.
func (c *fakeConsole) print(format string, args ...interface{}) {
	fmt.Fprintf(c.writer, format+"\n", args...)
}

// farmHarness wires a client to a fake console and a test-owned relay
// socket.
type farmHarness struct {
	t           *testing.T
	client      *Client
	console     *fakeConsole
	listener    net.Listener
	conn        net.Conn
	submissions chan Request
	raw         chan string
}

func newFarmHarness(t *testing.T, config Config) *farmHarness {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	h := &farmHarness{
		t:           t,
		console:     newFakeConsole(),
		listener:    listener,
		submissions: make(chan Request, 16),
		raw:         make(chan string, 16),
	}

	config.SelfExecutable = "/bin/mwtest"
	client, err := NewClient(config)
	require.NoError(t, err)
	client.startConsole = func([]string) (console, error) { return h.console, nil }
	h.client = client

	// farm side: accept the client's control connection, record every
	// submitted line
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		h.conn = conn
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			line := scanner.Text()
			h.raw <- line
			var request Request
			if json.Unmarshal([]byte(line), &request) == nil {
				h.submissions <- request
			}
		}
	}()

	// scripted handshake
	port := listener.Addr().(*net.TCPAddr).Port
	go h.console.print("%s%d", handshakePrefix, port)

	require.NoError(t, client.Start(context.Background()))
	return h
}

func (h *farmHarness) nextSubmission() Request {
	h.t.Helper()
	select {
	case request := <-h.submissions:
		return request
	case <-time.After(5 * time.Second):
		h.t.Fatal("timed out waiting for submission")
		return Request{}
	}
}

func (h *farmHarness) nextRawLine() string {
	h.t.Helper()
	select {
	case line := <-h.raw:
		return line
	case <-time.After(5 * time.Second):
		h.t.Fatal("timed out waiting for raw line")
		return ""
	}
}

func (h *farmHarness) respond(id uint64, exitCode int, output string) {
	result := Result{ID: id, ExitCode: exitCode, Output: output}
	data, _ := json.Marshal(&result)
	h.console.print("%s%s", sentinelPrefix, data)
}

func (h *farmHarness) tearDown() {
	_ = h.console.Kill()
	_ = h.listener.Close()
}

func TestClient_EnqueuePollRoundTrip(t *testing.T) {
	h := newFarmHarness(t, DefaultConfig())
	defer h.tearDown()

	require.NoError(t, h.client.Enqueue(0, "test a", []string{"app", "--id", "a"}, "/work", false))
	require.NoError(t, h.client.Enqueue(1, "test b", []string{"app", "--id", "b"}, "/work", true))

	first := h.nextSubmission()
	assert.Equal(t, ModeRemote, first.Mode)
	assert.Equal(t, "/work", first.Dir)
	// submission wraps the command in a self re-invocation
	assert.Equal(t, []string{"/bin/mwtest", "wrap", "0", "app", "--id", "a"}, first.Args)

	second := h.nextSubmission()
	assert.Equal(t, ModeLocal, second.Mode)

	h.respond(1, 0, "b passed")
	h.respond(0, 1, "a failed")

	got := map[uint64]*Result{}
	for i := 0; i < 2; i++ {
		result, err := h.client.Poll(5 * time.Second)
		require.NoError(t, err)
		require.NotNil(t, result)
		got[result.ID] = result
	}
	assert.Equal(t, 0, got[1].ExitCode)
	assert.Equal(t, 1, got[0].ExitCode)
	assert.True(t, h.client.Done())

	abandoned := h.client.Close()
	assert.Empty(t, abandoned)
	assert.Equal(t, StateClosed, h.client.State())
}

func TestClient_PollTimeout(t *testing.T) {
	h := newFarmHarness(t, DefaultConfig())
	defer h.tearDown()

	require.NoError(t, h.client.Enqueue(0, "t", []string{"app"}, ".", false))
	h.nextSubmission()

	started := time.Now()
	result, err := h.client.Poll(50 * time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.GreaterOrEqual(t, time.Since(started), 50*time.Millisecond)

	h.client.Close()
}

func TestClient_FlakeResubmitsVerbatim(t *testing.T) {
	h := newFarmHarness(t, DefaultConfig())
	defer h.tearDown()

	require.NoError(t, h.client.Enqueue(0, "t", []string{"app"}, ".", false))
	original := h.nextRawLine()

	// infra fault: discarded, original message resubmitted verbatim
	h.respond(0, 1, "IncrediBuild: Cannot get file record: Null position")
	resubmitted := h.nextRawLine()
	assert.Equal(t, original, resubmitted)
	assert.Equal(t, 1, h.client.PendingCount())

	h.respond(0, 0, "passed")
	result, err := h.client.Poll(5 * time.Second)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 0, result.ExitCode)

	h.client.Close()
}

func TestClient_CloseReportsAbandoned(t *testing.T) {
	h := newFarmHarness(t, DefaultConfig())
	defer h.tearDown()

	require.NoError(t, h.client.Enqueue(0, "a", []string{"app"}, ".", false))
	require.NoError(t, h.client.Enqueue(1, "b", []string{"app"}, ".", false))
	h.nextSubmission()
	h.nextSubmission()

	abandoned := h.client.Close()
	assert.Equal(t, []uint64{0, 1}, abandoned)
	assert.True(t, h.console.killed)
	assert.Equal(t, StateClosed, h.client.State())
}

func TestClient_CloseReturnsWithUnpolledResults(t *testing.T) {
	config := DefaultConfig()
	config.QueueBuffer = 1
	h := newFarmHarness(t, config)
	defer h.tearDown()

	// more completed results than the result queue can buffer, none polled:
	// the reader ends up blocked publishing the overflow
	for id := uint64(0); id < 2; id++ {
		require.NoError(t, h.client.Enqueue(id, "t", []string{"app"}, ".", false))
		h.nextSubmission()
		h.respond(id, 0, "ok")
	}

	require.Eventually(t, func() bool { return h.client.PendingCount() == 0 }, time.Second, 5*time.Millisecond)

	closed := make(chan []uint64, 1)
	go func() { closed <- h.client.Close() }()
	select {
	case abandoned := <-closed:
		assert.Empty(t, abandoned)
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return while results were left unpolled")
	}
	assert.Equal(t, StateClosed, h.client.State())
}

func TestClient_HandshakeFailure(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	config := DefaultConfig()
	config.SelfExecutable = "/bin/mwtest"
	client, err := NewClient(config)
	require.NoError(t, err)

	c := newFakeConsole()
	client.startConsole = func([]string) (console, error) { return c, nil }

	// console exits before announcing a port
	go func() {
		c.print("starting up")
		_ = c.writer.Close()
	}()

	err = client.Start(context.Background())
	assert.ErrorIs(t, err, ErrHandshake)
	assert.Equal(t, StateDisconnected, client.State())
}

func TestClient_ConsoleDiesMidSession(t *testing.T) {
	h := newFarmHarness(t, DefaultConfig())
	defer h.tearDown()

	require.NoError(t, h.client.Enqueue(0, "t", []string{"app"}, ".", false))
	h.nextSubmission()

	// console output ends while the invocation is still pending
	_ = h.console.writer.Close()

	_, err := h.client.Poll(5 * time.Second)
	assert.ErrorIs(t, err, ErrConsoleClosed)

	h.client.Close()
}
