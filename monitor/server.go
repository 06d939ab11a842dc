package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/3dti-go/binaural/result"
	"github.com/gorilla/websocket"
)

// ErrUnsupportedPlatform is returned when browser opening is not supported.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// StatsSource is the read-only view the monitor dashboards poll every
// tick. core.Core satisfies this directly (ActiveSourceCount,
// ActiveImageCount, Reporter, Profiler are all exported core.Core methods)
// without core importing monitor, keeping C12 out of the real-time
// dependency graph (spec.md §2: "required by tests, not by real-time
// path").
type StatsSource interface {
	ActiveSourceCount() int
	ActiveImageCount() int
	Reporter() *result.Reporter
	Profiler() *result.Profiler
}

// ProbePayload is one profiler probe's snapshot for JSON serialization.
type ProbePayload struct {
	Name        string  `json:"name"`
	AverageUs   float64 `json:"averageUs"`
	SampleCount int64   `json:"sampleCount"`
}

// Message is a websocket envelope, {type, payload}.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// StatePayload is the periodic pipeline snapshot pushed to clients.
type StatePayload struct {
	ActiveSources  int            `json:"activeSources"`
	ActiveImages   int            `json:"activeImages"`
	LastResultCode string         `json:"lastResultCode"`
	FirstErrorCode string         `json:"firstErrorCode,omitempty"`
	HasFirstError  bool           `json:"hasFirstError"`
	Probes         []ProbePayload `json:"probes"`
}

// Server serves the C12 monitor dashboard: a single HTML page plus a
// websocket feed of periodic StatePayload snapshots.
type Server struct {
	stats StatsSource
	port  int
	hub   *Hub

	mu         sync.RWMutex
	httpServer *http.Server
}

// NewServer creates a monitor server polling stats for snapshots.
func NewServer(stats StatsSource, port int) *Server {
	return &Server{stats: stats, port: port, hub: NewHub()}
}

// Start runs the HTTP+websocket server; blocks until it stops or errors.
func (s *Server) Start() error {
	go s.hub.Run()
	go s.broadcastLoop()

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/api/state", s.handleAPIState)

	s.mu.Lock()
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	slog.Info("monitor server starting", "port", s.port, "url", fmt.Sprintf("http://localhost:%d", s.port))
	return srv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.httpServer
	s.mu.RUnlock()
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

func (s *Server) snapshot() StatePayload {
	p := s.stats.Profiler()
	var probes []ProbePayload
	for _, name := range p.Names() {
		avg, ok := p.Average(name)
		if !ok {
			continue
		}
		probes = append(probes, ProbePayload{
			Name:        name,
			AverageUs:   float64(avg.Microseconds()),
			SampleCount: p.SampleCount(name),
		})
	}

	last := s.stats.Reporter().LastResult()
	state := StatePayload{
		ActiveSources:  s.stats.ActiveSourceCount(),
		ActiveImages:   s.stats.ActiveImageCount(),
		LastResultCode: last.Code.String(),
		Probes:         probes,
	}
	if first, ok := s.stats.Reporter().FirstError(); ok {
		state.HasFirstError = true
		state.FirstErrorCode = first.Code.String()
	}
	return state
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(dashboardHTML))
}

//nolint:gochecknoglobals // websocket upgrader configuration
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // local-development dashboard, not exposed publicly
	},
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("monitor websocket upgrade failed", "error", err)
		return
	}

	client := &Client{hub: s.hub, conn: conn, send: make(chan []byte, 256)}
	s.hub.register <- client

	s.sendState(client)

	go client.writePump()
	client.readPump(nil)
}

func (s *Server) sendState(client *Client) {
	msg := Message{Type: "state", Payload: s.snapshot()}
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("monitor: failed to marshal state", "error", err)
		return
	}
	client.send <- data
}

func (s *Server) broadcastLoop() {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		if s.hub.ClientCount() == 0 {
			continue
		}
		msg := Message{Type: "state", Payload: s.snapshot()}
		data, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		s.hub.Broadcast(data)
	}
}

func (s *Server) handleAPIState(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.snapshot())
}

// OpenBrowser opens the default browser to url.
func OpenBrowser(url string) error {
	ctx := context.Background()
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "linux":
		cmd = exec.CommandContext(ctx, "xdg-open", url)
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", url)
	case "windows":
		cmd = exec.CommandContext(ctx, "cmd", "/c", "start", url)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedPlatform, runtime.GOOS)
	}

	return cmd.Start()
}

const dashboardHTML = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>binaural monitor</title></head>
<body>
<h1>binaural core monitor</h1>
<pre id="state">connecting...</pre>
<script>
const ws = new WebSocket("ws://" + location.host + "/ws");
ws.onmessage = (ev) => {
  const msg = JSON.parse(ev.data);
  if (msg.type === "state") {
    document.getElementById("state").textContent = JSON.stringify(msg.payload, null, 2);
  }
};
</script>
</body>
</html>`
