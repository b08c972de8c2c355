// Package backend implements the per-subsystem control adapters. Every
// adapter owns a cached last-known-good snapshot that stays readable
// whether or not the external service is reachable, and publishes exactly
// one event per externally-visible state change.
//
// Mutations are optimistic: the cache is updated and the event published
// even when propagating the change to the external service fails. The
// published events, not the external service, are what the rest of the
// shell reacts to.
package backend

import (
	"errors"
	"fmt"
)

// ErrorKind classifies adapter failures.
type ErrorKind int

const (
	// KindUnavailable: the subsystem is absent on this host.
	KindUnavailable ErrorKind = iota
	// KindConnection: the external service could not be reached.
	KindConnection
	// KindProtocol: the external service answered with something
	// unintelligible.
	KindProtocol
	// KindExecution: an external call failed after the cache was
	// already updated.
	KindExecution
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindConnection:
		return "connection"
	case KindProtocol:
		return "protocol"
	case KindExecution:
		return "execution"
	default:
		return "unknown"
	}
}

// Error is the typed error returned at every adapter boundary. Adapters
// never panic on external failure; all I/O errors are wrapped here.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// IsUnavailable reports whether err is an adapter error caused by an
// absent subsystem or connection.
func IsUnavailable(err error) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind == KindUnavailable || be.Kind == KindConnection
	}
	return false
}

// Status is the adapter connection state. Cache reads are valid in every
// state; no state is terminal.
type Status int

const (
	StatusUnconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusUnconnected:
		return "unconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// PowerAction is a power/session management request.
type PowerAction string

const (
	PowerShutdown  PowerAction = "shutdown"
	PowerReboot    PowerAction = "reboot"
	PowerSuspend   PowerAction = "suspend"
	PowerHibernate PowerAction = "hibernate"
	PowerLock      PowerAction = "lock"
)

// ParsePowerAction maps a wire tag to a PowerAction.
func ParsePowerAction(s string) (PowerAction, error) {
	switch PowerAction(s) {
	case PowerShutdown, PowerReboot, PowerSuspend, PowerHibernate, PowerLock:
		return PowerAction(s), nil
	default:
		return "", fmt.Errorf("unknown power action %q", s)
	}
}

// clampPercent bounds a percentage-style level to [0, 100].
func clampPercent(level float64) float64 {
	if level < 0 {
		return 0
	}
	if level > 100 {
		return 100
	}
	return level
}
