package niri

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// maxResponseLine bounds a single compositor response.
const maxResponseLine = 1 << 20

// DiscoverSocket locates the compositor socket: $NIRI_SOCKET, then the
// conventional niri-$WAYLAND_DISPLAY.sock under the runtime dir, then any
// *.sock in the niri runtime subdirectory.
func DiscoverSocket() (string, error) {
	if path := os.Getenv("NIRI_SOCKET"); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		return "", fmt.Errorf("XDG_RUNTIME_DIR not set and NIRI_SOCKET missing")
	}
	niriDir := filepath.Join(runtimeDir, "niri")

	if display := os.Getenv("WAYLAND_DISPLAY"); display != "" {
		path := filepath.Join(niriDir, "niri-"+display+".sock")
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	entries, err := os.ReadDir(niriDir)
	if err != nil {
		return "", fmt.Errorf("no niri socket found: %w", err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".sock") {
			return filepath.Join(niriDir, entry.Name()), nil
		}
	}
	return "", fmt.Errorf("no niri socket found under %s", niriDir)
}

// Client is a lazily-connecting compositor client. One request is in
// flight at a time; any I/O error drops the stream so the next call
// redials.
type Client struct {
	logger  *slog.Logger
	path    string
	timeout time.Duration

	nextID atomic.Uint64

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

// NewClient constructs a client for the socket at path. No connection is
// attempted until the first request.
func NewClient(logger *slog.Logger, path string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		logger:  logger.With("component", "niri"),
		path:    path,
		timeout: timeout,
	}
}

// Workspaces returns the compositor's current workspaces.
func (c *Client) Workspaces(ctx context.Context) ([]Workspace, error) {
	result, err := c.call(ctx, MethodWorkspaces, nil)
	if err != nil {
		return nil, err
	}

	var workspaces []Workspace
	if err := json.Unmarshal(result, &workspaces); err != nil {
		return nil, fmt.Errorf("failed to decode workspaces: %w", err)
	}
	return workspaces, nil
}

// FocusWorkspace focuses the workspace at idx.
func (c *Client) FocusWorkspace(ctx context.Context, idx uint32) error {
	_, err := c.call(ctx, MethodAction, FocusWorkspaceAction(idx))
	return err
}

// FocusWorkspaceByName focuses the named workspace.
func (c *Client) FocusWorkspaceByName(ctx context.Context, name string) error {
	_, err := c.call(ctx, MethodAction, FocusWorkspaceAction(name))
	return err
}

// Version returns the compositor version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	result, err := c.call(ctx, MethodVersion, nil)
	if err != nil {
		return "", err
	}

	var info VersionInfo
	if err := json.Unmarshal(result, &info); err != nil {
		return "", fmt.Errorf("failed to decode version: %w", err)
	}
	return info.Version, nil
}

// Close drops the compositor connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropLocked()
}

func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	line, err := json.Marshal(Request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnLocked(ctx); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetDeadline(deadline)

	if _, err := c.conn.Write(append(line, '\n')); err != nil {
		c.dropLocked()
		return nil, fmt.Errorf("failed to write request: %w", err)
	}

	raw, err := c.reader.ReadBytes('\n')
	if err != nil {
		c.dropLocked()
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		c.dropLocked()
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.ID != id {
		c.dropLocked()
		return nil, fmt.Errorf("response id %d does not match request id %d", resp.ID, id)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("compositor error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	return resp.Result, nil
}

func (c *Client) ensureConnLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "unix", c.path)
	if err != nil {
		return fmt.Errorf("failed to connect to compositor at %s: %w", c.path, err)
	}

	c.conn = conn
	c.reader = bufio.NewReaderSize(conn, maxResponseLine)
	c.logger.Debug("connected to compositor", "path", c.path)
	return nil
}

func (c *Client) dropLocked() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	return err
}
