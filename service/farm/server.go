package farm

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os/exec"
	"strings"
)

// Serve implements the self-invoked server mode the farm console runs. It
// binds a loopback listener on an ephemeral port, announces the port as the
// first line on stdout, accepts exactly one inbound connection (the
// console's control channel) and relays every received line as one farm job
// submission. A `local` submission is constrained to this machine;
// everything else is distributable.
func Serve(config Config, stdout io.Writer) error {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to bind relay listener: %w", err)
	}
	defer listener.Close()

	port := listener.Addr().(*net.TCPAddr).Port
	if _, err := fmt.Fprintf(stdout, "%s%d\n", handshakePrefix, port); err != nil {
		return err
	}

	conn, err := listener.Accept()
	if err != nil {
		return fmt.Errorf("failed to accept control connection: %w", err)
	}
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		request, err := decodeRequest(line)
		if err != nil {
			continue
		}
		if err := submit(config, request, stdout); err != nil {
			fmt.Fprintf(stdout, "failed to submit job %d: %v\n", request.ID, err)
		}
	}
	// tell the console-side reader the relay is finished
	fmt.Fprintf(stdout, "%s%s\n", sentinelPrefix, doneMarker)
	return scanner.Err()
}

func decodeRequest(line []byte) (*Request, error) {
	request := &Request{}
	if err := json.Unmarshal(line, request); err != nil {
		return nil, err
	}
	if len(request.Args) == 0 {
		return nil, fmt.Errorf("request %d carries no command", request.ID)
	}
	return request, nil
}

// submit runs one submission tool invocation. The tool only queues the job
// on the farm and exits; the job itself completes long after.
func submit(config Config, request *Request, stdout io.Writer) error {
	argv := submitArgv(config, request)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = request.Dir
	cmd.Stdout = stdout
	cmd.Stderr = stdout
	return cmd.Run()
}

func submitArgv(config Config, request *Request) []string {
	argv := []string{config.SubmitCommand, "/caption=" + captionArg(request.Caption)}
	if request.Local() {
		argv = append(argv, "/allowremote=off")
	}
	argv = append(argv, "/command")
	return append(argv, request.Args...)
}

// captionArg makes a caption safe for the submission tool's flag syntax.
func captionArg(caption string) string {
	return strings.ReplaceAll(caption, " ", "_")
}
