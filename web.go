package amiya

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/chasefleming/elem-go"
	"github.com/chasefleming/elem-go/attrs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/amiya-sh/amiya/events"
)

// WebServer is the localhost status surface: a status page, an SSE event
// stream, health and metrics. It is observe-only; control goes through
// the command socket.
type WebServer struct {
	logger   *slog.Logger
	state    *AppState
	bus      *events.Bus
	registry *prometheus.Registry
	server   *http.Server
}

// NewWebServer constructs the status server listening on addr.
func NewWebServer(logger *slog.Logger, state *AppState, bus *events.Bus, registry *prometheus.Registry, addr string) *WebServer {
	ws := &WebServer{
		logger:   logger.With("component", "web"),
		state:    state,
		bus:      bus,
		registry: registry,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", ws.handleIndex)
	mux.HandleFunc("/events", ws.handleSSE)
	mux.HandleFunc("/health", ws.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	ws.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return ws
}

// Start begins serving in the background.
func (ws *WebServer) Start() {
	go func() {
		ws.logger.Info("status server listening", "addr", ws.server.Addr)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ws.logger.Error("status server failed", "error", err)
		}
	}()
}

// Shutdown stops the server, waiting for in-flight requests.
func (ws *WebServer) Shutdown(ctx context.Context) {
	if err := ws.server.Shutdown(ctx); err != nil {
		ws.logger.Warn("status server shutdown failed", "error", err)
	}
}

func (ws *WebServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	var rows []elem.Node
	row := func(name string, available bool, detail string) {
		class := "missing"
		status := "unavailable"
		if available {
			class = "ok"
			status = "connected"
		}
		rows = append(rows, elem.Tr(nil,
			elem.Td(nil, elem.Text(name)),
			elem.Td(attrs.Props{attrs.Class: class}, elem.Text(status)),
			elem.Td(nil, elem.Text(detail)),
		))
	}

	audio, audioOK := ws.state.Audio()
	row("audio", audioOK, fmt.Sprintf("volume %.0f%%, muted %v", audio.Volume(), audio.Muted()))

	backlight, backlightOK := ws.state.Backlight()
	row("backlight", backlightOK, fmt.Sprintf("brightness %.0f%%", backlight.Brightness()))

	battery, batteryOK := ws.state.Battery()
	info := battery.Info()
	row("battery", batteryOK, fmt.Sprintf("%.0f%% (%s)", info.Percentage, info.State))

	bluetooth, bluetoothOK := ws.state.Bluetooth()
	row("bluetooth", bluetoothOK, fmt.Sprintf("powered %v, %d devices", bluetooth.Powered(), len(bluetooth.Devices())))

	network, networkOK := ws.state.Network()
	row("wifi", networkOK, fmt.Sprintf("enabled %v, %d networks", network.WifiEnabled(), len(network.Networks())))

	media, mediaOK := ws.state.Media()
	snap := media.Snapshot()
	mediaDetail := "no player"
	if snap.Player != "" {
		mediaDetail = fmt.Sprintf("%s, playing %v", snap.Player, snap.Playing)
	}
	row("media", mediaOK, mediaDetail)

	_, powerOK := ws.state.Power()
	row("power", powerOK, "")

	_, niriOK := ws.state.Niri()
	row("compositor", niriOK, "")

	page := elem.Html(nil,
		elem.Head(nil,
			elem.Title(nil, elem.Text("amiya")),
			elem.Style(nil, elem.Text(`
				body { font-family: system-ui; max-width: 700px; margin: 40px auto; padding: 0 20px; }
				h1 { color: #333; }
				table { width: 100%; border-collapse: collapse; }
				td { border-bottom: 1px solid #ddd; padding: 8px 12px; }
				.ok { color: #2e7d32; }
				.missing { color: #c62828; }
				.meta { color: #666; font-size: 0.9em; margin-top: 24px; }
			`)),
		),
		elem.Body(nil,
			elem.H1(nil, elem.Text("amiya")),
			elem.Table(nil, rows...),
			elem.Div(attrs.Props{attrs.Class: "meta"},
				elem.Text(fmt.Sprintf("version %s, up %s, %d bus subscribers",
					ws.state.Version,
					time.Since(ws.state.StartTime).Round(time.Second),
					ws.bus.SubscriberCount(),
				)),
			),
		),
	)

	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, page.Render()); err != nil {
		ws.logger.Debug("failed to write status page", "error", err)
	}
}

// sseEnvelope is one SSE data payload.
type sseEnvelope struct {
	Type string       `json:"type"`
	Data events.Event `json:"data"`
}

// handleSSE streams bus events as JSON envelopes. Each client gets its
// own bus subscription, so a slow client only loses its own events.
func (ws *WebServer) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := ws.bus.Subscribe()
	defer sub.Close()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			payload, err := json.Marshal(sseEnvelope{Type: ev.Type(), Data: ev})
			if err != nil {
				ws.logger.Debug("failed to encode event", "type", ev.Type(), "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"version": ws.state.Version,
		"uptime":  uint64(time.Since(ws.state.StartTime).Seconds()),
	})
}
