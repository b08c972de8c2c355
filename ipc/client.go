package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Send delivers one command to the daemon socket and returns its reply.
// One line out, one line in, connection closed.
func Send(ctx context.Context, path string, cmd Command) (Response, error) {
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return Response{}, fmt.Errorf("failed to connect to daemon at %s: %w", path, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(connTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetDeadline(deadline)

	line, err := json.Marshal(cmd)
	if err != nil {
		return Response{}, fmt.Errorf("failed to encode command: %w", err)
	}
	if _, err := conn.Write(append(line, '\n')); err != nil {
		return Response{}, fmt.Errorf("failed to send command: %w", err)
	}

	raw, err := readLine(bufio.NewReaderSize(conn, 4096), maxCommandLine)
	if err != nil {
		return Response{}, fmt.Errorf("failed to read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Response{}, fmt.Errorf("malformed response: %w", err)
	}
	return resp, nil
}
