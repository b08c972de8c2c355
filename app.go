package amiya

import (
	"context"
	"log/slog"
	"time"

	"github.com/amiya-sh/amiya/backend"
	"github.com/amiya-sh/amiya/config"
	"github.com/amiya-sh/amiya/events"
	"github.com/amiya-sh/amiya/niri"
)

// AppState owns the event bus and one handle per backend adapter.
// Construction cannot fail; connections are established asynchronously by
// ConnectAll and every adapter degrades to its cache when its backend is
// missing.
type AppState struct {
	logger *slog.Logger
	bus    *events.Bus

	Version   string
	StartTime time.Time

	connectTimeout time.Duration

	audio     *backend.AudioControl
	backlight *backend.BacklightControl
	battery   *backend.BatteryControl
	bluetooth *backend.BluetoothControl
	network   *backend.NetworkControl
	media     *backend.MediaControl
	power     *backend.PowerControl

	// nil when no compositor socket was found at startup.
	niri *niri.Client
}

// NewAppState constructs every adapter and locates the compositor socket.
func NewAppState(logger *slog.Logger, cfg *config.Config, bus *events.Bus) *AppState {
	state := &AppState{
		logger:         logger,
		bus:            bus,
		Version:        Version,
		StartTime:      time.Now(),
		connectTimeout: cfg.ConnectTimeout(),
		audio:          backend.NewAudioControl(logger, bus),
		backlight:      backend.NewBacklightControl(logger, bus),
		battery:        backend.NewBatteryControl(logger, bus),
		bluetooth:      backend.NewBluetoothControl(logger, bus),
		network:        backend.NewNetworkControl(logger, bus),
		media:          backend.NewMediaControl(logger, bus),
		power:          backend.NewPowerControl(logger),
	}

	if path, err := niri.DiscoverSocket(); err != nil {
		logger.Info("no compositor socket found, workspace features disabled", "error", err)
	} else {
		state.niri = niri.NewClient(logger, path, state.connectTimeout)
	}

	return state
}

// ConnectAll starts one detached connection attempt per adapter and
// returns immediately. A subsystem that is missing on this host is
// logged and skipped; the adapter keeps serving its cache.
func (s *AppState) ConnectAll(ctx context.Context) {
	type connector struct {
		name    string
		connect func(context.Context) error
	}

	for _, c := range []connector{
		{name: "audio", connect: s.audio.Connect},
		{name: "backlight", connect: s.backlight.Connect},
		{name: "battery", connect: s.battery.Connect},
		{name: "bluetooth", connect: s.bluetooth.Connect},
		{name: "network", connect: s.network.Connect},
		{name: "media", connect: s.media.Connect},
		{name: "power", connect: s.power.Connect},
	} {
		go func(c connector) {
			connectCtx, cancel := context.WithTimeout(ctx, s.connectTimeout)
			defer cancel()

			if err := c.connect(connectCtx); err != nil {
				if backend.IsUnavailable(err) {
					s.logger.Info("backend unavailable", "backend", c.name, "error", err)
				} else {
					s.logger.Warn("backend connection failed", "backend", c.name, "error", err)
				}
			}
		}(c)
	}
}

// RunBatteryRefresh re-reads the battery periodically until ctx is done.
func (s *AppState) RunBatteryRefresh(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refreshCtx, cancel := context.WithTimeout(ctx, s.connectTimeout)
			err := s.battery.Refresh(refreshCtx)
			cancel()
			if err != nil && !backend.IsUnavailable(err) {
				s.logger.Debug("battery refresh failed", "error", err)
			}
		}
	}
}

// Close releases every adapter connection.
func (s *AppState) Close() {
	s.audio.Close()
	s.battery.Close()
	s.bluetooth.Close()
	s.network.Close()
	s.media.Close()
	s.power.Close()
	if s.niri != nil {
		s.niri.Close()
	}
}

// Audio returns the audio adapter and whether its backend is reachable.
func (s *AppState) Audio() (*backend.AudioControl, bool) {
	return s.audio, s.audio.IsAvailable()
}

// Backlight returns the backlight adapter and whether a device was found.
func (s *AppState) Backlight() (*backend.BacklightControl, bool) {
	return s.backlight, s.backlight.IsAvailable()
}

// Battery returns the battery adapter and whether a battery was found.
func (s *AppState) Battery() (*backend.BatteryControl, bool) {
	return s.battery, s.battery.IsAvailable()
}

// Bluetooth returns the bluetooth adapter and whether an adapter was
// found.
func (s *AppState) Bluetooth() (*backend.BluetoothControl, bool) {
	return s.bluetooth, s.bluetooth.IsAvailable()
}

// Network returns the network adapter and whether a wifi device was
// found.
func (s *AppState) Network() (*backend.NetworkControl, bool) {
	return s.network, s.network.IsAvailable()
}

// Media returns the media adapter and whether a player is active.
func (s *AppState) Media() (*backend.MediaControl, bool) {
	return s.media, s.media.IsAvailable()
}

// Power returns the power adapter and whether logind is reachable.
func (s *AppState) Power() (*backend.PowerControl, bool) {
	return s.power, s.power.IsAvailable()
}

// Niri returns the compositor client, nil when no socket was found.
func (s *AppState) Niri() (*niri.Client, bool) {
	return s.niri, s.niri != nil
}
