package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	logindService    = "org.freedesktop.login1"
	logindPath       = "/org/freedesktop/login1"
	logindManagerIfc = "org.freedesktop.login1.Manager"
	logindSessionIfc = "org.freedesktop.login1.Session"

	// logind resolves this path to the caller's own session.
	logindAutoSession = dbus.ObjectPath("/org/freedesktop/login1/session/auto")
)

// sessionManager abstracts logind power and session operations.
type sessionManager interface {
	Do(ctx context.Context, action PowerAction) error
	Can(ctx context.Context, action PowerAction) (string, error)
}

// PowerControl executes power and session actions through logind. Unlike
// the other adapters it is pass-through: there is no meaningful cache, and
// Execute without a connection fails.
type PowerControl struct {
	logger *slog.Logger

	mu      sync.Mutex
	status  Status
	conn    *dbus.Conn
	service sessionManager
}

// NewPowerControl constructs the adapter. Construction never fails.
func NewPowerControl(logger *slog.Logger) *PowerControl {
	return &PowerControl{logger: logger.With("adapter", "power")}
}

// Connect establishes the system bus connection. Idempotent.
func (p *PowerControl) Connect(ctx context.Context) error {
	p.mu.Lock()
	if p.status == StatusConnected {
		p.mu.Unlock()
		return nil
	}
	p.status = StatusConnecting
	p.mu.Unlock()

	conn, err := dialSystemBus(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.status = StatusUnconnected
		return newError(KindConnection, "power connect", err)
	}
	p.conn = conn
	p.service = &logindManager{conn: conn}
	p.status = StatusConnected
	p.logger.Debug("connected to logind")
	return nil
}

// IsAvailable reports whether logind is reachable.
func (p *PowerControl) IsAvailable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status == StatusConnected
}

// Execute runs a power action. Destructive actions are never simulated
// against a cache; without a connection this fails with Unavailable.
func (p *PowerControl) Execute(ctx context.Context, action PowerAction) error {
	p.mu.Lock()
	service := p.service
	p.mu.Unlock()
	if service == nil {
		return newError(KindUnavailable, "power "+string(action), nil)
	}

	p.logger.Info("executing power action", "action", string(action))
	if err := service.Do(ctx, action); err != nil {
		p.setUnconnected()
		return newError(KindExecution, "power "+string(action), err)
	}
	return nil
}

// CanExecute reports whether logind permits the action for this user.
func (p *PowerControl) CanExecute(ctx context.Context, action PowerAction) (bool, error) {
	p.mu.Lock()
	service := p.service
	p.mu.Unlock()
	if service == nil {
		return false, newError(KindUnavailable, "power can "+string(action), nil)
	}

	result, err := service.Can(ctx, action)
	if err != nil {
		return false, newError(KindExecution, "power can "+string(action), err)
	}
	return result == "yes" || result == "challenge", nil
}

// Close releases the system bus connection.
func (p *PowerControl) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
	p.service = nil
	p.status = StatusUnconnected
}

func (p *PowerControl) setUnconnected() {
	p.mu.Lock()
	p.status = StatusUnconnected
	p.mu.Unlock()
}

type logindManager struct {
	conn *dbus.Conn
}

func (l *logindManager) Do(ctx context.Context, action PowerAction) error {
	if action == PowerLock {
		obj := l.conn.Object(logindService, logindAutoSession)
		return obj.CallWithContext(ctx, logindSessionIfc+".Lock", 0).Err
	}

	method, err := logindMethod(action)
	if err != nil {
		return err
	}
	obj := l.conn.Object(logindService, logindPath)
	// The boolean asks logind to use polkit interactive authorization.
	return obj.CallWithContext(ctx, logindManagerIfc+"."+method, 0, true).Err
}

func (l *logindManager) Can(ctx context.Context, action PowerAction) (string, error) {
	if action == PowerLock {
		return "yes", nil
	}

	method, err := logindMethod(action)
	if err != nil {
		return "", err
	}
	var result string
	obj := l.conn.Object(logindService, logindPath)
	if err := obj.CallWithContext(ctx, logindManagerIfc+".Can"+method, 0).Store(&result); err != nil {
		return "", err
	}
	return result, nil
}

func logindMethod(action PowerAction) (string, error) {
	switch action {
	case PowerShutdown:
		return "PowerOff", nil
	case PowerReboot:
		return "Reboot", nil
	case PowerSuspend:
		return "Suspend", nil
	case PowerHibernate:
		return "Hibernate", nil
	default:
		return "", fmt.Errorf("unknown power action %q", action)
	}
}
