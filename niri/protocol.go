// Package niri speaks the niri compositor IPC: line-oriented JSON-RPC
// over a unix socket.
package niri

import "encoding/json"

// JSON-RPC methods understood by the compositor.
const (
	MethodWorkspaces  = "workspaces"
	MethodAction      = "action"
	MethodVersion     = "version"
	MethodEventStream = "event_stream"
)

// Request is one JSON-RPC request line.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Response is one JSON-RPC response line.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the error member of a failed response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Workspace is the compositor's view of one workspace.
type Workspace struct {
	ID        uint64 `json:"id"`
	Idx       uint32 `json:"idx"`
	Name      string `json:"name"`
	IsActive  bool   `json:"is_active"`
	IsFocused bool   `json:"is_focused"`
}

// VersionInfo is the result of the version method.
type VersionInfo struct {
	Version string `json:"version"`
}

// FocusWorkspaceAction builds the action params focusing a workspace by
// index or name.
func FocusWorkspaceAction(reference any) map[string]any {
	return map[string]any{
		"action":    "focus-workspace",
		"reference": reference,
	}
}
