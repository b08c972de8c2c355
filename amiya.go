// Package amiya is the desktop-shell daemon core: it owns the event bus,
// the backend adapters, the compositor client and the control socket, and
// exposes a localhost status surface.
package amiya

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/amiya-sh/amiya/config"
	"github.com/amiya-sh/amiya/events"
	"github.com/amiya-sh/amiya/ipc"
	"github.com/amiya-sh/amiya/logging"
	"github.com/amiya-sh/amiya/metrics"
	"github.com/amiya-sh/amiya/niri"
	"github.com/amiya-sh/amiya/sysmon"
)

// Version is reported by the status command and the web surface.
const Version = "0.3.0"

// Run starts the daemon and blocks until SIGINT or SIGTERM.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	slog.SetDefault(logger)

	fileCfg := config.LoadFile(logger, cfg.FilePath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.New(logger, cfg.EventBusCapacity)
	defer bus.Close()

	state := NewAppState(logger, cfg, bus)
	defer state.Close()
	state.ConnectAll(ctx)

	registry := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(logger, bus, registry)
	if err != nil {
		return fmt.Errorf("failed to start metrics collector: %w", err)
	}
	defer collector.Close()

	server, err := ipc.NewServer(logger, bus, ipc.ServerConfig{
		Path:           ipc.SocketPath(cfg.SocketDir),
		Version:        Version,
		StartTime:      state.StartTime,
		Audio:          state.audio,
		Brightness:     state.backlight,
		Power:          state.power,
		VolumeStep:     fileCfg.VolumeStep,
		BrightnessStep: fileCfg.BrightnessStep,
		Commands:       metrics.CommandCounter(registry),
	})
	if err != nil {
		return fmt.Errorf("failed to create command server: %w", err)
	}
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start command server: %w", err)
	}
	defer server.Shutdown()

	sampler := sysmon.New(logger, bus, cfg.SampleInterval(), cfg.TemperatureInterval())
	go sampler.Run(ctx)

	go state.RunBatteryRefresh(ctx, cfg.BatteryRefreshInterval())

	if client, ok := state.Niri(); ok {
		poller := niri.NewPoller(logger, bus, client, cfg.WorkspacePollInterval())
		go poller.Run(ctx)
	}

	var web *WebServer
	if cfg.WebEnabled {
		web = NewWebServer(logger, state, bus, registry, cfg.WebAddrPort().String())
		web.Start()
	}

	logger.Info("daemon started",
		"version", Version,
		"socket", ipc.SocketPath(cfg.SocketDir),
	)

	<-ctx.Done()
	logger.Info("shutting down")

	if web != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		web.Shutdown(shutdownCtx)
		cancel()
	}
	return nil
}
