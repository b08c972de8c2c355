package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/amiya-sh/amiya/backend"
	"github.com/amiya-sh/amiya/events"
)

const (
	// One command per connection; a client that stalls past this is cut.
	connTimeout = 5 * time.Second

	// Commands are small; anything longer is garbage.
	maxCommandLine = 64 * 1024
)

// SocketPath resolves the daemon control socket. The runtime directory is
// $XDG_RUNTIME_DIR, then $TMPDIR, then /tmp; dir overrides the resolution
// when non-empty.
func SocketPath(dir string) string {
	if dir == "" {
		dir = runtimeDir()
	}
	return filepath.Join(dir, "amiya", "amiya.sock")
}

func runtimeDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir
	}
	if dir := os.Getenv("TMPDIR"); dir != "" {
		return dir
	}
	return "/tmp"
}

// AudioController is what the server needs from the audio adapter.
type AudioController interface {
	SetVolume(ctx context.Context, level float64) error
	IncreaseVolume(ctx context.Context, step float64) error
	DecreaseVolume(ctx context.Context, step float64) error
	SetMute(ctx context.Context, muted bool) error
	ToggleMute(ctx context.Context) error
}

// BrightnessController is what the server needs from the backlight
// adapter.
type BrightnessController interface {
	SetBrightness(ctx context.Context, level float64) error
	IncreaseBrightness(ctx context.Context, step float64) error
	DecreaseBrightness(ctx context.Context, step float64) error
}

// PowerController is what the server needs from the power adapter.
type PowerController interface {
	Execute(ctx context.Context, action backend.PowerAction) error
}

// ServerConfig carries the server dependencies. Nil controllers yield
// error responses for their commands; everything else keeps working.
type ServerConfig struct {
	Path      string
	Version   string
	StartTime time.Time

	Audio      AudioController
	Brightness BrightnessController
	Power      PowerController

	// Step sizes applied when up/down commands omit an amount.
	VolumeStep     float64
	BrightnessStep float64

	// Optional counter with labels (command, outcome).
	Commands *prometheus.CounterVec
}

// Server accepts one command per connection on a unix socket: read one
// line, answer one line, close.
type Server struct {
	logger *slog.Logger
	bus    *events.Bus
	cfg    ServerConfig

	listener net.Listener
	wg       sync.WaitGroup

	mu      sync.Mutex
	visible map[events.PopupType]bool
}

// NewServer constructs the command server.
func NewServer(logger *slog.Logger, bus *events.Bus, cfg ServerConfig) (*Server, error) {
	if bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("socket path is required")
	}
	if cfg.StartTime.IsZero() {
		cfg.StartTime = time.Now()
	}
	return &Server{
		logger:  logger.With("component", "ipc"),
		bus:     bus,
		cfg:     cfg,
		visible: make(map[events.PopupType]bool),
	}, nil
}

// Start binds the socket and begins accepting. A stale socket from a
// previous run is removed before binding.
func (s *Server) Start() error {
	dir := filepath.Dir(s.cfg.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create socket directory %s: %w", dir, err)
	}
	if err := os.Remove(s.cfg.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale socket %s: %w", s.cfg.Path, err)
	}

	listener, err := net.Listen("unix", s.cfg.Path)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.cfg.Path, err)
	}
	s.listener = listener

	s.wg.Add(1)
	go s.acceptLoop()

	s.logger.Info("command server listening", "path", s.cfg.Path)
	return nil
}

// Shutdown stops accepting, waits for in-flight connections and removes
// the socket.
func (s *Server) Shutdown() {
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	if err := os.Remove(s.cfg.Path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove socket", "path", s.cfg.Path, "error", err)
	}
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Warn("accept failed", "error", err)
			}
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(connTimeout))

	reader := bufio.NewReaderSize(conn, 4096)
	line, err := readLine(reader, maxCommandLine)
	if err != nil {
		s.logger.Debug("failed to read command", "error", err)
		return
	}

	var resp Response
	var cmd Command
	if err := json.Unmarshal(line, &cmd); err != nil {
		resp = Errorf("malformed command: %v", err)
		s.countCommand("malformed", resp)
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), connTimeout)
		resp = s.dispatch(ctx, cmd)
		cancel()
		s.countCommand(cmd.Type, resp)
	}

	out, err := json.Marshal(resp)
	if err != nil {
		s.logger.Warn("failed to encode response", "error", err)
		return
	}
	if _, err := conn.Write(append(out, '\n')); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

// readLine reads up to and including a newline, failing when the line
// exceeds max bytes.
func readLine(reader *bufio.Reader, max int) ([]byte, error) {
	var line []byte
	for {
		chunk, err := reader.ReadSlice('\n')
		line = append(line, chunk...)
		if err == nil {
			return line, nil
		}
		if err == bufio.ErrBufferFull {
			if len(line) > max {
				return nil, fmt.Errorf("command exceeds %d bytes", max)
			}
			continue
		}
		return nil, err
	}
}

func (s *Server) dispatch(ctx context.Context, cmd Command) Response {
	switch cmd.Type {
	case CommandVolume:
		return s.handleVolume(ctx, cmd)
	case CommandBrightness:
		return s.handleBrightness(ctx, cmd)
	case CommandPower:
		return s.handlePower(ctx, cmd)
	case CommandShowPopup, CommandHidePopup, CommandTogglePopup:
		return s.handlePopup(cmd)
	case CommandStatus:
		uptime := uint64(time.Since(s.cfg.StartTime).Seconds())
		return StatusResponse(s.cfg.Version, uptime)
	case CommandPing:
		return Pong()
	default:
		return Errorf("unknown command type %q", cmd.Type)
	}
}

func (s *Server) handleVolume(ctx context.Context, cmd Command) Response {
	if s.cfg.Audio == nil {
		return Error("audio control not available")
	}
	action, err := cmd.VolumeAction()
	if err != nil {
		return Error(err.Error())
	}

	switch action.Action {
	case ActionSet:
		err = s.cfg.Audio.SetVolume(ctx, *action.Level)
	case ActionUp:
		err = s.cfg.Audio.IncreaseVolume(ctx, action.Step(s.cfg.VolumeStep))
	case ActionDown:
		err = s.cfg.Audio.DecreaseVolume(ctx, action.Step(s.cfg.VolumeStep))
	case ActionMute:
		err = s.cfg.Audio.SetMute(ctx, true)
	case ActionUnmute:
		err = s.cfg.Audio.SetMute(ctx, false)
	case ActionToggleMute:
		err = s.cfg.Audio.ToggleMute(ctx)
	}
	if err != nil {
		return Errorf("volume %s failed: %v", action.Action, err)
	}
	return SuccessMessage("Volume adjusted")
}

func (s *Server) handleBrightness(ctx context.Context, cmd Command) Response {
	if s.cfg.Brightness == nil {
		return Error("brightness control not available")
	}
	action, err := cmd.BrightnessAction()
	if err != nil {
		return Error(err.Error())
	}

	switch action.Action {
	case ActionSet:
		err = s.cfg.Brightness.SetBrightness(ctx, *action.Level)
	case ActionUp:
		err = s.cfg.Brightness.IncreaseBrightness(ctx, action.Step(s.cfg.BrightnessStep))
	case ActionDown:
		err = s.cfg.Brightness.DecreaseBrightness(ctx, action.Step(s.cfg.BrightnessStep))
	}
	if err != nil {
		return Errorf("brightness %s failed: %v", action.Action, err)
	}
	return SuccessMessage("Brightness adjusted")
}

func (s *Server) handlePower(ctx context.Context, cmd Command) Response {
	if s.cfg.Power == nil {
		return Error("power control not available")
	}
	raw, err := cmd.PowerAction()
	if err != nil {
		return Error(err.Error())
	}
	action, err := backend.ParsePowerAction(raw)
	if err != nil {
		return Error(err.Error())
	}
	if err := s.cfg.Power.Execute(ctx, action); err != nil {
		return Errorf("power %s failed: %v", action, err)
	}
	return Success()
}

// handlePopup tracks visibility server-side so toggle alternates even
// though the UI layer only observes events.
func (s *Server) handlePopup(cmd Command) Response {
	popup := events.PopupType(cmd.Popup)
	if !popup.Valid() {
		return Errorf("unknown popup %q", cmd.Popup)
	}

	s.mu.Lock()
	show := false
	switch cmd.Type {
	case CommandShowPopup:
		show = true
	case CommandHidePopup:
		show = false
	case CommandTogglePopup:
		show = !s.visible[popup]
	}
	s.visible[popup] = show
	s.mu.Unlock()

	if show {
		s.bus.Publish(events.PopupRequested{Popup: popup})
		return SuccessMessage(fmt.Sprintf("Showing %s popup", popup))
	}
	s.bus.Publish(events.PopupClosed{Popup: popup})
	return SuccessMessage(fmt.Sprintf("Hiding %s popup", popup))
}

func (s *Server) countCommand(cmdType string, resp Response) {
	if s.cfg.Commands == nil {
		return
	}
	outcome := "success"
	if resp.Status == StatusError {
		outcome = "error"
	}
	s.cfg.Commands.WithLabelValues(cmdType, outcome).Inc()
}
