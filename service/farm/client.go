// Package farm delegates test invocations to an external distributed
// execution tool (the farm console). The client owns the console child
// process, a loopback control socket and one background reader goroutine;
// it exposes the enqueue/poll/close protocol to the scheduler. The console
// re-invokes this same engine in server mode (socket-to-farm relay) and
// wraps every job in wrap mode (result capture), so all three ends agree on
// the wire format in protocol.go.
package farm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"time"

	"github.com/phaseq/mwtest/internal/clock"
	"github.com/phaseq/mwtest/service/messaging/memory"
)

// State of the client connection.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDraining
	StateClosed
)

// maxLineSize bounds one console output or socket line; captured test
// output travels inside result lines and can be large.
const maxLineSize = 16 * 1024 * 1024

// console abstracts the farm-console child process so tests can substitute
// a scripted output stream.
type console interface {
	Output() io.Reader
	Kill() error
	Wait() error
}

type execConsole struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
}

func startConsoleProcess(argv []string) (console, error) {
	cmd := exec.Command(argv[0], argv[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to launch farm console: %w", err)
	}
	return &execConsole{cmd: cmd, stdout: stdout}, nil
}

func (c *execConsole) Output() io.Reader { return c.stdout }

func (c *execConsole) Kill() error { return c.cmd.Process.Kill() }

func (c *execConsole) Wait() error { return c.cmd.Wait() }

// Client implements the submit/poll/resubmit protocol against the farm
// console. One background reader goroutine is the sole writer of completed
// results; the coordinator is the sole submitter. The pending map is the
// only contested state: a flake-triggered resubmission reads it from the
// reader side.
type Client struct {
	config Config

	console console
	conn    net.Conn

	mu      sync.Mutex
	pending map[uint64][]byte

	writeMu sync.Mutex

	results  *memory.Queue[Result]
	readerWg sync.WaitGroup

	// lifetime is cancelled by Close so that the reader never stays blocked
	// publishing into a full result queue nobody will drain.
	lifetime context.Context
	cancel   context.CancelFunc

	state   atomic.Int32
	closing atomic.Bool

	fatalOnce sync.Once
	fatal     atomic.Value // error

	// startConsole is swapped by tests.
	startConsole func(argv []string) (console, error)
}

// NewClient creates a farm client; Start establishes the session.
func NewClient(config Config) (*Client, error) {
	if err := config.init(); err != nil {
		return nil, err
	}
	lifetime, cancel := context.WithCancel(context.Background())
	return &Client{
		config:       config,
		pending:      make(map[uint64][]byte),
		results:      memory.NewQueue[Result](memory.Config{QueueBuffer: config.QueueBuffer}),
		lifetime:     lifetime,
		cancel:       cancel,
		startConsole: startConsoleProcess,
	}, nil
}

// State returns the current connection state.
func (c *Client) State() State { return State(c.state.Load()) }

func (c *Client) setState(s State) { c.state.Store(int32(s)) }

// Start launches the farm console, completes the port handshake, connects
// the control socket and starts the background result reader. Handshake
// failure is fatal for the whole distributed session.
func (c *Client) Start(ctx context.Context) error {
	c.setState(StateConnecting)
	child, err := c.startConsole(c.config.consoleArgv())
	if err != nil {
		c.setState(StateDisconnected)
		return err
	}
	c.console = child

	scanner := bufio.NewScanner(child.Output())
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	port, err := c.awaitHandshake(scanner)
	if err != nil {
		_ = child.Kill()
		_ = child.Wait()
		c.setState(StateDisconnected)
		return err
	}

	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		_ = child.Kill()
		_ = child.Wait()
		c.setState(StateDisconnected)
		return fmt.Errorf("failed to connect to farm server: %w", err)
	}
	c.conn = conn
	c.setState(StateConnected)

	c.readerWg.Add(1)
	go c.readLoop(scanner)
	return nil
}

// awaitHandshake scans console output for the server's port line.
func (c *Client) awaitHandshake(scanner *bufio.Scanner) (int, error) {
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, handshakePrefix) {
			continue
		}
		port, err := strconv.Atoi(strings.TrimSpace(line[len(handshakePrefix):]))
		if err != nil {
			return 0, fmt.Errorf("malformed handshake line %q: %w", line, err)
		}
		return port, nil
	}
	return 0, ErrHandshake
}

// Enqueue submits one invocation. The raw serialized message is retained
// until its result is observed so that transient farm faults can resubmit
// it verbatim.
func (c *Client) Enqueue(id uint64, caption string, argv []string, dir string, local bool) error {
	if c.State() != StateConnected {
		return ErrNotConnected
	}
	mode := ModeRemote
	if local {
		mode = ModeLocal
	}
	wrapped := append([]string{c.config.SelfExecutable, "wrap", strconv.FormatUint(id, 10)}, argv...)
	request := Request{ID: id, Mode: mode, Caption: caption, Dir: dir, Args: wrapped}
	line, err := json.Marshal(&request)
	if err != nil {
		return fmt.Errorf("failed to encode farm request: %w", err)
	}
	c.mu.Lock()
	c.pending[id] = line
	c.mu.Unlock()
	if err := c.send(line); err != nil {
		c.setFatal(fmt.Errorf("%w: %v", ErrSocketClosed, err))
		return err
	}
	return nil
}

func (c *Client) send(line []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write(append(line, '\n')); err != nil {
		return err
	}
	return nil
}

// readLoop scans the console's aggregated output for sentinel result lines.
// It is the only goroutine publishing to the result queue.
func (c *Client) readLoop(scanner *bufio.Scanner) {
	defer c.readerWg.Done()
	for scanner.Scan() {
		result, ok := parseResultLine(scanner.Text())
		if !ok {
			continue
		}
		if c.isFlake(result) {
			c.resubmit(result.ID)
			continue
		}
		c.mu.Lock()
		_, known := c.pending[result.ID]
		delete(c.pending, result.ID)
		c.mu.Unlock()
		if !known {
			// duplicate delivery or foreign id in aggregated output
			continue
		}
		if err := c.results.Publish(c.lifetime, result); err != nil {
			// Close cancelled the lifetime; nobody will drain the queue
			return
		}
	}
	if !c.closing.Load() && c.PendingCount() > 0 {
		c.setFatal(ErrConsoleClosed)
	}
}

func (c *Client) isFlake(result *Result) bool {
	return c.config.FlakeSignature != "" && strings.Contains(result.Output, c.config.FlakeSignature)
}

// resubmit replays the stored message for a transiently failed invocation.
// The result is infrastructure noise: no retry budget is consumed and the
// caller never observes it.
func (c *Client) resubmit(id uint64) {
	c.mu.Lock()
	raw, ok := c.pending[id]
	c.mu.Unlock()
	if !ok {
		return
	}
	log.Printf("farm: transient fault for invocation %d, resubmitting", id)
	if err := c.send(raw); err != nil {
		c.setFatal(fmt.Errorf("%w: %v", ErrSocketClosed, err))
	}
}

// Poll returns the next buffered result. It waits in small increments until
// a result arrives, no invocations remain pending, or the timeout elapses;
// nil without error means timeout or exhaustion.
func (c *Client) Poll(timeout time.Duration) (*Result, error) {
	deadline := clock.Now().Add(timeout)
	for {
		if err := c.fatalErr(); err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.config.PollInterval)
		result, err := c.results.Consume(ctx)
		cancel()
		if err == nil {
			return result, nil
		}
		if c.Done() {
			return nil, nil
		}
		if !clock.Now().Before(deadline) {
			return nil, nil
		}
	}
}

// Done reports whether no work remains: nothing pending, nothing buffered.
func (c *Client) Done() bool {
	return c.PendingCount() == 0 && c.results.Size() == 0
}

// PendingCount returns the number of in-flight invocations.
func (c *Client) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close tears the session down: half-close then close the socket, forcibly
// terminate the console if invocations are still pending (abandoning their
// remote jobs), and join the reader unconditionally. It returns the queue
// ids abandoned in-flight; the scheduler reports each as a synthetic
// "Failed to start!" result.
func (c *Client) Close() []uint64 {
	if c.State() == StateClosed {
		return nil
	}
	c.closing.Store(true)
	c.cancel()
	c.setState(StateDraining)

	if c.conn != nil {
		if tcp, ok := c.conn.(*net.TCPConn); ok {
			_ = tcp.CloseWrite()
		}
		_ = c.conn.Close()
	}

	c.mu.Lock()
	abandoned := make([]uint64, 0, len(c.pending))
	for id := range c.pending {
		abandoned = append(abandoned, id)
	}
	c.pending = make(map[uint64][]byte)
	c.mu.Unlock()
	sort.Slice(abandoned, func(i, j int) bool { return abandoned[i] < abandoned[j] })

	if c.console != nil {
		if len(abandoned) > 0 {
			_ = c.console.Kill()
		}
		_ = c.console.Wait()
	}
	c.readerWg.Wait()
	c.setState(StateClosed)
	return abandoned
}

func (c *Client) setFatal(err error) {
	c.fatalOnce.Do(func() {
		c.fatal.Store(err)
	})
}

func (c *Client) fatalErr() error {
	if err, ok := c.fatal.Load().(error); ok {
		return err
	}
	return nil
}
