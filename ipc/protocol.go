// Package ipc implements the line-oriented JSON command protocol and the
// unix-socket command server.
package ipc

import (
	"encoding/json"
	"fmt"
)

// DefaultStep is the percentage-point step applied when an up/down
// command carries no explicit amount.
const DefaultStep = 5.0

// Command types.
const (
	CommandVolume      = "volume"
	CommandBrightness  = "brightness"
	CommandPower       = "power"
	CommandShowPopup   = "show-popup"
	CommandHidePopup   = "hide-popup"
	CommandTogglePopup = "toggle-popup"
	CommandStatus      = "status"
	CommandPing        = "ping"
)

// Volume and brightness action kinds.
const (
	ActionSet        = "set"
	ActionUp         = "up"
	ActionDown       = "down"
	ActionMute       = "mute"
	ActionUnmute     = "unmute"
	ActionToggleMute = "toggle-mute"
)

// Response status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusStatus  = "status"
	StatusPong    = "pong"
)

// Command is one request line. Action is left raw because its shape
// depends on Type: an object for volume/brightness, a bare string for
// power, absent otherwise.
type Command struct {
	Type   string          `json:"type"`
	Popup  string          `json:"popup,omitempty"`
	Action json.RawMessage `json:"action,omitempty"`
}

// LevelAction is the decoded volume or brightness action.
type LevelAction struct {
	Action string   `json:"action"`
	Level  *float64 `json:"level,omitempty"`
	Amount *float64 `json:"amount,omitempty"`
}

// Step returns the explicit amount, or fallback when none was given.
func (a LevelAction) Step(fallback float64) float64 {
	if a.Amount != nil {
		return *a.Amount
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultStep
}

// VolumeAction decodes the action of a volume command.
func (c Command) VolumeAction() (LevelAction, error) {
	action, err := c.levelAction()
	if err != nil {
		return LevelAction{}, err
	}
	switch action.Action {
	case ActionSet, ActionUp, ActionDown, ActionMute, ActionUnmute, ActionToggleMute:
		return action, nil
	default:
		return LevelAction{}, fmt.Errorf("unknown volume action %q", action.Action)
	}
}

// BrightnessAction decodes the action of a brightness command.
func (c Command) BrightnessAction() (LevelAction, error) {
	action, err := c.levelAction()
	if err != nil {
		return LevelAction{}, err
	}
	switch action.Action {
	case ActionSet, ActionUp, ActionDown:
		return action, nil
	default:
		return LevelAction{}, fmt.Errorf("unknown brightness action %q", action.Action)
	}
}

// PowerAction decodes the bare-string action of a power command.
func (c Command) PowerAction() (string, error) {
	if len(c.Action) == 0 {
		return "", fmt.Errorf("power command is missing an action")
	}
	var action string
	if err := json.Unmarshal(c.Action, &action); err != nil {
		return "", fmt.Errorf("power action must be a string: %w", err)
	}
	return action, nil
}

func (c Command) levelAction() (LevelAction, error) {
	if len(c.Action) == 0 {
		return LevelAction{}, fmt.Errorf("%s command is missing an action", c.Type)
	}
	var action LevelAction
	if err := json.Unmarshal(c.Action, &action); err != nil {
		return LevelAction{}, fmt.Errorf("malformed %s action: %w", c.Type, err)
	}
	if action.Action == ActionSet && action.Level == nil {
		return LevelAction{}, fmt.Errorf("set action requires a level")
	}
	return action, nil
}

// NewLevelCommand builds a volume or brightness command.
func NewLevelCommand(cmdType string, action LevelAction) (Command, error) {
	raw, err := json.Marshal(action)
	if err != nil {
		return Command{}, fmt.Errorf("failed to encode action: %w", err)
	}
	return Command{Type: cmdType, Action: raw}, nil
}

// NewPowerCommand builds a power command with a bare-string action.
func NewPowerCommand(action string) (Command, error) {
	raw, err := json.Marshal(action)
	if err != nil {
		return Command{}, fmt.Errorf("failed to encode action: %w", err)
	}
	return Command{Type: CommandPower, Action: raw}, nil
}

// NewPopupCommand builds a show/hide/toggle popup command.
func NewPopupCommand(cmdType, popup string) Command {
	return Command{Type: cmdType, Popup: popup}
}

// Response is one reply line.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Version string `json:"version,omitempty"`
	Uptime  uint64 `json:"uptime,omitempty"`
}

// Success is the bare success response.
func Success() Response {
	return Response{Status: StatusSuccess}
}

// SuccessMessage is a success response with detail.
func SuccessMessage(msg string) Response {
	return Response{Status: StatusSuccess, Message: msg}
}

// Error is an error response. The connection stays usable; only the
// command failed.
func Error(msg string) Response {
	return Response{Status: StatusError, Message: msg}
}

// Errorf is Error with formatting.
func Errorf(format string, args ...any) Response {
	return Error(fmt.Sprintf(format, args...))
}

// Pong answers a ping.
func Pong() Response {
	return Response{Status: StatusPong}
}

// StatusResponse reports daemon version and uptime in seconds.
func StatusResponse(version string, uptimeSeconds uint64) Response {
	return Response{Status: StatusStatus, Version: version, Uptime: uptimeSeconds}
}
