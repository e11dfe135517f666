package webmonitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/anusha9573/SmartRefridgerator/internal/inventory"
	"github.com/anusha9573/SmartRefridgerator/internal/journal"
	"github.com/anusha9573/SmartRefridgerator/internal/logger"
	"github.com/anusha9573/SmartRefridgerator/internal/metrics"
	"github.com/anusha9573/SmartRefridgerator/internal/pipeline"
)

// Deps are the collaborators the monitor reads from. Only Ledger is required.
type Deps struct {
	Ledger  inventory.Ledger
	Journal *journal.Journal
	Metrics *metrics.Metrics
	WebRTC  http.Handler // answers /api/webrtc/offer when set
}

// Server serves the web monitor endpoints. It is also a pipeline.Sink.
type Server struct {
	cfg     Config
	deps    Deps
	monitor *Monitor
	frames  *FrameBroadcaster
	events  *EventBroadcaster
	status  *StatusBroadcaster
}

// NewServer returns a configured monitor server with its broadcasters running.
func NewServer(cfg Config, deps Deps) *Server {
	cfg = cfg.withDefaults()
	monitor := NewMonitor(cfg.HistorySize, deps.Metrics)

	frames := NewFrameBroadcaster(cfg.JPEGQuality, cfg.OverlayHeader)
	frames.Start()
	status := NewStatusBroadcaster(monitor, cfg.StatusInterval)
	status.Start()

	return &Server{
		cfg:     cfg,
		deps:    deps,
		monitor: monitor,
		frames:  frames,
		events:  NewEventBroadcaster(deps.Metrics),
		status:  status,
	}
}

// Publish records a frame result and forwards it to connected clients.
func (s *Server) Publish(res pipeline.Result) {
	s.monitor.Record(res)
	s.frames.Offer(res)
	s.events.Broadcast(res.Events)
}

// Monitor returns the server's monitor state.
func (s *Server) Monitor() *Monitor {
	return s.monitor
}

// Close stops the broadcasters and disconnects streaming clients.
func (s *Server) Close() error {
	s.frames.Stop()
	s.status.Stop()
	s.events.Stop()
	return nil
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/stream", s.handleStream)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/status/stream", s.handleStatusStream)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/events/stream", s.handleEventsStream)
	mux.HandleFunc("/api/inventory", s.handleInventory)
	mux.HandleFunc("/api/inventory/{name}", s.handleInventoryItem)
	mux.HandleFunc("/api/journal/start", s.handleJournalStart)
	mux.HandleFunc("/api/journal/stop", s.handleJournalStop)
	mux.HandleFunc("/api/journal/status", s.handleJournalStatus)
	mux.HandleFunc("/api/webrtc/offer", s.handleWebRTCOffer)

	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id, frameCh := s.frames.Subscribe()
	defer s.frames.Unsubscribe(id)
	s.trackClient(+1)
	defer s.trackClient(-1)
	streamMJPEGFromChannel(r.Context(), w, frameCh)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.monitor.Snapshot())
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	id, ch := s.status.Subscribe()
	defer s.status.Unsubscribe(id)
	s.trackClient(+1)
	defer s.trackClient(-1)
	streamEventsFromChannel(r.Context(), w, ch, wantsProtobuf(r))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"events": s.monitor.History()})
}

func (s *Server) handleEventsStream(w http.ResponseWriter, r *http.Request) {
	id, ch := s.events.Subscribe()
	defer s.events.Unsubscribe(id)
	s.trackClient(+1)
	defer s.trackClient(-1)
	streamEventsFromChannel(r.Context(), w, ch, wantsProtobuf(r))
}

func (s *Server) handleInventory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.LedgerTimeout)
	defer cancel()

	items, err := s.deps.Ledger.List(ctx)
	if err != nil {
		logger.Warn("WebMonitor", "List inventory: %v", err)
		writeJSONWithStatus(w, map[string]any{"error": "inventory unavailable"}, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]any{"items": items, "timestamp": float64(time.Now().Unix())})
}

func (s *Server) handleInventoryItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := r.PathValue("name")
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.LedgerTimeout)
	defer cancel()

	rec, ok, err := s.deps.Ledger.Find(ctx, name)
	if err != nil {
		logger.Warn("WebMonitor", "Find %q: %v", name, err)
		writeJSONWithStatus(w, map[string]any{"error": "inventory unavailable"}, http.StatusServiceUnavailable)
		return
	}
	if !ok {
		writeJSONWithStatus(w, map[string]any{"error": fmt.Sprintf("%s not found", name)}, http.StatusNotFound)
		return
	}
	writeJSON(w, rec)
}

func (s *Server) handleJournalStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.deps.Journal == nil {
		writeJSONWithStatus(w, map[string]any{"error": "journal is not configured"}, http.StatusBadRequest)
		return
	}

	filename, err := s.deps.Journal.Start(r.URL.Query().Get("file"))
	if err != nil {
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]any{
		"status":     "recording",
		"file":       filename,
		"started_at": float64(time.Now().Unix()),
	})
}

func (s *Server) handleJournalStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.deps.Journal == nil {
		writeJSONWithStatus(w, map[string]any{"error": "journal is not configured"}, http.StatusBadRequest)
		return
	}

	filename, err := s.deps.Journal.Stop()
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, journal.ErrNotRecording) {
			status = http.StatusBadRequest
		}
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, status)
		return
	}
	writeJSON(w, map[string]any{
		"status":     "stopped",
		"file":       filename,
		"stats":      s.deps.Journal.Status(),
		"stopped_at": float64(time.Now().Unix()),
	})
}

func (s *Server) handleJournalStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Journal == nil {
		writeJSON(w, journal.Status{})
		return
	}
	writeJSON(w, s.deps.Journal.Status())
}

func (s *Server) handleWebRTCOffer(w http.ResponseWriter, r *http.Request) {
	if s.deps.WebRTC == nil {
		writeJSONWithStatus(w, map[string]any{"error": "WebRTC is disabled"}, http.StatusServiceUnavailable)
		return
	}
	s.deps.WebRTC.ServeHTTP(w, r)
}

func (s *Server) trackClient(delta int64) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.MonitorClients.Add(delta)
	}
}

func wantsProtobuf(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/protobuf") ||
		strings.Contains(accept, "application/x-protobuf")
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":"%s"}`, err.Error())
	}
}
