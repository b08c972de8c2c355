package niri

import (
	"context"
	"log/slog"
	"time"

	"github.com/amiya-sh/amiya/events"
)

// workspaceSource is what the poller needs from the client.
type workspaceSource interface {
	Workspaces(ctx context.Context) ([]Workspace, error)
}

// Poller periodically queries the compositor for workspaces and publishes
// the result. Query failures are logged at debug and polling continues;
// the client redials on its own.
type Poller struct {
	logger   *slog.Logger
	bus      *events.Bus
	source   workspaceSource
	interval time.Duration

	lastFocused uint32
	hasFocused  bool
}

// NewPoller constructs a poller over source.
func NewPoller(logger *slog.Logger, bus *events.Bus, source workspaceSource, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Poller{
		logger:   logger.With("component", "niri-poller"),
		bus:      bus,
		source:   source,
		interval: interval,
	}
}

// Run polls until ctx is done. An immediate first poll precedes the
// ticker so subscribers see workspaces without waiting one interval.
func (p *Poller) Run(ctx context.Context) {
	p.poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	workspaces, err := p.source.Workspaces(ctx)
	if err != nil {
		p.logger.Debug("workspace query failed", "error", err)
		return
	}

	infos := make([]events.WorkspaceInfo, 0, len(workspaces))
	focused := uint32(0)
	hasFocused := false
	for _, ws := range workspaces {
		// The compositor's idx is the stable user-facing identity; its
		// internal id changes across restarts.
		infos = append(infos, events.WorkspaceInfo{
			ID:      ws.Idx,
			Name:    ws.Name,
			Active:  ws.IsActive,
			Focused: ws.IsFocused,
		})
		if ws.IsFocused {
			focused = ws.Idx
			hasFocused = true
		}
	}

	p.bus.Publish(events.WorkspacesUpdated{Workspaces: infos})

	if hasFocused && (!p.hasFocused || focused != p.lastFocused) {
		p.bus.Publish(events.WorkspaceChanged{ID: focused})
	}
	p.lastFocused = focused
	p.hasFocused = hasFocused
}
