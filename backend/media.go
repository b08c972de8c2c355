package backend

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/amiya-sh/amiya/events"
)

const (
	mprisPrefix    = "org.mpris.MediaPlayer2."
	mprisPath      = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	mprisRootIfc   = "org.mpris.MediaPlayer2"
	mprisPlayerIfc = "org.mpris.MediaPlayer2.Player"
)

// TrackInfo is the cached now-playing metadata.
type TrackInfo struct {
	Title  string
	Artist string
	Album  string
}

// MediaSnapshot is the full cached media state.
type MediaSnapshot struct {
	Player  string
	Track   TrackInfo
	Playing bool
	Volume  float64
}

// mediaService abstracts MPRIS players on the session bus.
type mediaService interface {
	ListPlayers(ctx context.Context) ([]string, error)
	Identity(ctx context.Context, busName string) (string, error)
	Command(ctx context.Context, busName, method string) error
	PlaybackStatus(ctx context.Context, busName string) (string, error)
	Metadata(ctx context.Context, busName string) (TrackInfo, error)
	Volume(ctx context.Context, busName string) (float64, error)
	SetVolume(ctx context.Context, busName string, volume float64) error
}

// MediaControl drives MPRIS2 media players. The first discovered player
// becomes active; no player means a cache-only adapter.
type MediaControl struct {
	logger *slog.Logger
	bus    *events.Bus

	mu       sync.Mutex
	status   Status
	conn     *dbus.Conn
	service  mediaService
	players  []string
	active   string
	identity string
	track    TrackInfo
	playing  bool
	volume   float64
}

// NewMediaControl constructs the adapter. Construction never fails.
func NewMediaControl(logger *slog.Logger, bus *events.Bus) *MediaControl {
	return &MediaControl{
		logger: logger.With("adapter", "media"),
		bus:    bus,
		volume: 1.0,
	}
}

// Connect discovers MPRIS players on the session bus and seeds the cache
// from the first one. Idempotent.
func (m *MediaControl) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.status == StatusConnected {
		m.mu.Unlock()
		return nil
	}
	m.status = StatusConnecting
	m.mu.Unlock()

	conn, err := dialSessionBus(ctx)
	if err != nil {
		m.setUnconnected()
		return newError(KindConnection, "media connect", err)
	}

	service := &mprisClient{conn: conn}
	players, err := service.ListPlayers(ctx)
	if err != nil {
		conn.Close()
		m.setUnconnected()
		return newError(KindProtocol, "media connect", err)
	}

	m.mu.Lock()
	m.conn = conn
	m.service = service
	m.players = players
	m.status = StatusConnected
	m.mu.Unlock()

	if len(players) > 0 {
		if err := m.SetActivePlayer(ctx, players[0]); err != nil {
			m.logger.Debug("failed to activate first player", "player", players[0], "error", err)
		}
	}
	m.logger.Debug("connected", "players", len(players))
	return nil
}

// IsAvailable reports whether the session bus is connected and at least
// one player is known.
func (m *MediaControl) IsAvailable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status == StatusConnected && m.active != ""
}

// Players returns the known player bus names.
func (m *MediaControl) Players() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.players))
	copy(out, m.players)
	return out
}

// Snapshot returns the cached media state. Player is the human-readable
// identity, empty when no player is active.
func (m *MediaControl) Snapshot() MediaSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MediaSnapshot{
		Player:  m.identity,
		Track:   m.track,
		Playing: m.playing,
		Volume:  m.volume,
	}
}

// SetActivePlayer switches the active player, re-reads its state and
// publishes a single MediaPlayerChanged event.
func (m *MediaControl) SetActivePlayer(ctx context.Context, busName string) error {
	service := m.currentService()

	identity := strings.TrimPrefix(busName, mprisPrefix)
	if service != nil && busName != "" {
		if id, err := service.Identity(ctx, busName); err == nil && id != "" {
			identity = id
		}
	}

	m.mu.Lock()
	m.active = busName
	m.identity = identity
	m.mu.Unlock()

	if service != nil && busName != "" {
		m.refreshPlayback(ctx, service, busName)
	}

	m.bus.Publish(events.MediaPlayerChanged{Player: identity})
	return nil
}

// RefreshPlayers re-lists the players. When the active player vanished the
// first remaining one takes over (or none), publishing MediaPlayerChanged.
func (m *MediaControl) RefreshPlayers(ctx context.Context) error {
	service := m.currentService()
	if service == nil {
		return newError(KindUnavailable, "media players", nil)
	}

	players, err := service.ListPlayers(ctx)
	if err != nil {
		m.setUnconnected()
		return newError(KindExecution, "media players", err)
	}

	m.mu.Lock()
	m.players = players
	active := m.active
	m.mu.Unlock()

	stillPresent := false
	for _, p := range players {
		if p == active {
			stillPresent = true
			break
		}
	}
	if stillPresent {
		return nil
	}

	next := ""
	if len(players) > 0 {
		next = players[0]
	}
	return m.SetActivePlayer(ctx, next)
}

// Play starts playback and publishes a single MediaPlaybackChanged event.
func (m *MediaControl) Play(ctx context.Context) error { return m.setPlaying(ctx, "Play", true) }

// Pause pauses playback and publishes a single MediaPlaybackChanged event.
func (m *MediaControl) Pause(ctx context.Context) error { return m.setPlaying(ctx, "Pause", false) }

// Stop stops playback and publishes a single MediaPlaybackChanged event.
func (m *MediaControl) Stop(ctx context.Context) error { return m.setPlaying(ctx, "Stop", false) }

// PlayPause toggles playback and publishes a single MediaPlaybackChanged
// event.
func (m *MediaControl) PlayPause(ctx context.Context) error {
	m.mu.Lock()
	playing := m.playing
	m.mu.Unlock()
	return m.setPlaying(ctx, "PlayPause", !playing)
}

// Next skips forward, re-reads the metadata and publishes a single
// MediaTrackChanged event.
func (m *MediaControl) Next(ctx context.Context) error { return m.skip(ctx, "Next") }

// Previous skips backward, re-reads the metadata and publishes a single
// MediaTrackChanged event.
func (m *MediaControl) Previous(ctx context.Context) error { return m.skip(ctx, "Previous") }

// SetVolume sets the player volume, clamped to [0, 1], and publishes a
// single MediaVolumeChanged event.
func (m *MediaControl) SetVolume(ctx context.Context, volume float64) error {
	if volume < 0 {
		volume = 0
	}
	if volume > 1 {
		volume = 1
	}

	m.mu.Lock()
	m.volume = volume
	service := m.service
	active := m.active
	m.mu.Unlock()

	if service != nil && active != "" {
		if err := service.SetVolume(ctx, active, volume); err != nil {
			m.logger.Warn("failed to set player volume", "player", active, "volume", volume, "error", err)
		}
	}
	m.bus.Publish(events.MediaVolumeChanged{Volume: volume})
	return nil
}

// Close releases the session bus connection.
func (m *MediaControl) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.service = nil
	m.status = StatusUnconnected
}

func (m *MediaControl) setPlaying(ctx context.Context, method string, playing bool) error {
	m.mu.Lock()
	m.playing = playing
	service := m.service
	active := m.active
	m.mu.Unlock()

	if service != nil && active != "" {
		if err := service.Command(ctx, active, method); err != nil {
			m.logger.Warn("media command failed", "method", method, "player", active, "error", err)
		}
	}
	m.bus.Publish(events.MediaPlaybackChanged{Playing: playing})
	return nil
}

func (m *MediaControl) skip(ctx context.Context, method string) error {
	service := m.currentService()

	m.mu.Lock()
	active := m.active
	m.mu.Unlock()

	if service != nil && active != "" {
		if err := service.Command(ctx, active, method); err != nil {
			m.logger.Warn("media command failed", "method", method, "player", active, "error", err)
		}
		if track, err := service.Metadata(ctx, active); err == nil {
			m.mu.Lock()
			m.track = track
			m.mu.Unlock()
		}
	}

	m.mu.Lock()
	track := m.track
	m.mu.Unlock()
	m.bus.Publish(events.MediaTrackChanged{
		Title:  track.Title,
		Artist: track.Artist,
		Album:  track.Album,
	})
	return nil
}

// refreshPlayback seeds the cache from the player without publishing.
func (m *MediaControl) refreshPlayback(ctx context.Context, service mediaService, busName string) {
	playing := false
	if status, err := service.PlaybackStatus(ctx, busName); err == nil {
		playing = status == "Playing"
	}
	track, _ := service.Metadata(ctx, busName)
	volume := 1.0
	if v, err := service.Volume(ctx, busName); err == nil {
		volume = v
	}

	m.mu.Lock()
	m.playing = playing
	m.track = track
	m.volume = volume
	m.mu.Unlock()
}

func (m *MediaControl) currentService() mediaService {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.service
}

func (m *MediaControl) setUnconnected() {
	m.mu.Lock()
	m.status = StatusUnconnected
	m.mu.Unlock()
}

type mprisClient struct {
	conn *dbus.Conn
}

func (c *mprisClient) ListPlayers(ctx context.Context) ([]string, error) {
	var names []string
	obj := c.conn.BusObject()
	err := obj.CallWithContext(ctx, "org.freedesktop.DBus.ListNames", 0).Store(&names)
	if err != nil {
		return nil, fmt.Errorf("failed to list bus names: %w", err)
	}

	var players []string
	for _, name := range names {
		if strings.HasPrefix(name, mprisPrefix) {
			players = append(players, name)
		}
	}
	return players, nil
}

func (c *mprisClient) Identity(ctx context.Context, busName string) (string, error) {
	var identity string
	obj := c.conn.Object(busName, mprisPath)
	if err := getProperty(obj, mprisRootIfc+".Identity", &identity); err != nil {
		return "", fmt.Errorf("failed to read Identity: %w", err)
	}
	return identity, nil
}

func (c *mprisClient) Command(ctx context.Context, busName, method string) error {
	obj := c.conn.Object(busName, mprisPath)
	return obj.CallWithContext(ctx, mprisPlayerIfc+"."+method, 0).Err
}

func (c *mprisClient) PlaybackStatus(ctx context.Context, busName string) (string, error) {
	var status string
	obj := c.conn.Object(busName, mprisPath)
	if err := getProperty(obj, mprisPlayerIfc+".PlaybackStatus", &status); err != nil {
		return "", fmt.Errorf("failed to read PlaybackStatus: %w", err)
	}
	return status, nil
}

func (c *mprisClient) Metadata(ctx context.Context, busName string) (TrackInfo, error) {
	var meta map[string]dbus.Variant
	obj := c.conn.Object(busName, mprisPath)
	if err := getProperty(obj, mprisPlayerIfc+".Metadata", &meta); err != nil {
		return TrackInfo{}, fmt.Errorf("failed to read Metadata: %w", err)
	}

	var track TrackInfo
	if v, ok := meta["xesam:title"]; ok {
		v.Store(&track.Title)
	}
	if v, ok := meta["xesam:album"]; ok {
		v.Store(&track.Album)
	}
	if v, ok := meta["xesam:artist"]; ok {
		var artists []string
		if err := v.Store(&artists); err == nil && len(artists) > 0 {
			track.Artist = strings.Join(artists, ", ")
		}
	}
	return track, nil
}

func (c *mprisClient) Volume(ctx context.Context, busName string) (float64, error) {
	var volume float64
	obj := c.conn.Object(busName, mprisPath)
	if err := getProperty(obj, mprisPlayerIfc+".Volume", &volume); err != nil {
		return 0, fmt.Errorf("failed to read Volume: %w", err)
	}
	return volume, nil
}

func (c *mprisClient) SetVolume(ctx context.Context, busName string, volume float64) error {
	obj := c.conn.Object(busName, mprisPath)
	return obj.SetProperty(mprisPlayerIfc+".Volume", dbus.MakeVariant(volume))
}
