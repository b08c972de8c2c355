package backend

import (
	"context"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/amiya-sh/amiya/events"
)

// volumeApplier propagates volume changes to the audio server. The cache
// and published events are authoritative either way.
type volumeApplier interface {
	ApplyVolume(ctx context.Context, level float64, muted bool) error
}

// AudioControl manages system volume and mute state. The cache starts at
// a neutral 50% unmuted and stays serviceable without a connection.
type AudioControl struct {
	logger *slog.Logger
	bus    *events.Bus

	mu     sync.Mutex
	status Status

	// conn tracks session-bus reachability for IsAvailable; no applier is
	// wired to it yet, so mutations stop at the cache and the bus.
	conn    *dbus.Conn
	applier volumeApplier
	volume  float64
	muted   bool
}

// NewAudioControl constructs the adapter. Construction never fails; no
// connection is attempted until Connect.
func NewAudioControl(logger *slog.Logger, bus *events.Bus) *AudioControl {
	return &AudioControl{
		logger: logger.With("adapter", "audio"),
		bus:    bus,
		volume: 50.0,
	}
}

// Connect establishes the session bus connection. Idempotent; a failed
// attempt leaves the adapter unconnected and retryable.
func (a *AudioControl) Connect(ctx context.Context) error {
	a.mu.Lock()
	if a.status == StatusConnected {
		a.mu.Unlock()
		return nil
	}
	a.status = StatusConnecting
	a.mu.Unlock()

	conn, err := dialSessionBus(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.status = StatusUnconnected
		return newError(KindConnection, "audio connect", err)
	}
	a.conn = conn
	a.status = StatusConnected
	a.logger.Debug("connected to session bus")
	return nil
}

// IsAvailable reports whether the external audio service is reachable.
func (a *AudioControl) IsAvailable() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status == StatusConnected
}

// Volume returns the cached volume level.
func (a *AudioControl) Volume() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.volume
}

// Muted returns the cached mute state.
func (a *AudioControl) Muted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.muted
}

// SetVolume sets the volume, clamped to [0, 100], and publishes a single
// VolumeChanged event. Propagation failures are logged, never returned.
func (a *AudioControl) SetVolume(ctx context.Context, level float64) error {
	level = clampPercent(level)

	a.mu.Lock()
	a.volume = level
	muted := a.muted
	applier := a.applier
	a.mu.Unlock()

	a.apply(ctx, applier, level, muted)
	a.bus.Publish(events.VolumeChanged{Level: level, Muted: muted})
	return nil
}

// IncreaseVolume raises the volume by step percentage points.
func (a *AudioControl) IncreaseVolume(ctx context.Context, step float64) error {
	return a.SetVolume(ctx, a.Volume()+step)
}

// DecreaseVolume lowers the volume by step percentage points.
func (a *AudioControl) DecreaseVolume(ctx context.Context, step float64) error {
	return a.SetVolume(ctx, a.Volume()-step)
}

// SetMute sets the mute state and publishes a single VolumeChanged event.
func (a *AudioControl) SetMute(ctx context.Context, muted bool) error {
	a.mu.Lock()
	a.muted = muted
	level := a.volume
	applier := a.applier
	a.mu.Unlock()

	a.apply(ctx, applier, level, muted)
	a.bus.Publish(events.VolumeChanged{Level: level, Muted: muted})
	return nil
}

// ToggleMute flips the mute state.
func (a *AudioControl) ToggleMute(ctx context.Context) error {
	return a.SetMute(ctx, !a.Muted())
}

// Close releases the session bus connection.
func (a *AudioControl) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil {
		a.conn.Close()
		a.conn = nil
	}
	a.status = StatusUnconnected
}

func (a *AudioControl) apply(ctx context.Context, applier volumeApplier, level float64, muted bool) {
	if applier == nil {
		return
	}
	if err := applier.ApplyVolume(ctx, level, muted); err != nil {
		a.logger.Warn("failed to propagate volume change", "level", level, "muted", muted, "error", err)
		a.mu.Lock()
		a.status = StatusUnconnected
		a.mu.Unlock()
	}
}
