package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anusha9573/SmartRefridgerator/pkg/types"
)

// Metrics holds all application metrics
type Metrics struct {
	// Frame loop counters
	FramesRead      atomic.Uint64
	FramesProcessed atomic.Uint64
	FramesSkipped   atomic.Uint64 // detector error or empty result

	// Error counters
	CaptureErrors atomic.Uint64
	DetectErrors  atomic.Uint64
	LedgerErrors  atomic.Uint64
	LedgerRetries atomic.Uint64

	// Crossing and ledger outcomes
	CrossingsAdded   atomic.Uint64
	CrossingsRemoved atomic.Uint64
	LedgerUpdates    atomic.Uint64
	NoopRemovals     atomic.Uint64 // removal of an item the ledger never had

	// Latency tracking
	FrameLatencyMs   atomic.Uint64 // capture to end of processing
	ProcessLatencyMs atomic.Uint64 // detection plus reconciliation

	// Client tracking
	MonitorClients atomic.Int64
	WebRTCClients  atomic.Int64
	WebRTCTotal    atomic.Uint64
	EventsDropped  atomic.Uint64 // events not delivered to slow clients

	// Journal state
	JournalActive atomic.Uint64 // 0 = inactive, 1 = active
	JournalEvents atomic.Uint64
	JournalBytes  atomic.Uint64

	quantity *prometheus.GaugeVec
	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		quantity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fridge_inventory_quantity",
			Help: "Ledger quantity after the last reconciliation, per item",
		}, []string{"item"}),
	}
	m.register()
	return m
}

func (m *Metrics) register() {
	counters := []struct {
		name, help string
		v          *atomic.Uint64
	}{
		{"fridge_frames_read_total", "Total frames read from the source", &m.FramesRead},
		{"fridge_frames_processed_total", "Total frames reconciled", &m.FramesProcessed},
		{"fridge_frames_skipped_total", "Frames skipped because detection produced no result", &m.FramesSkipped},
		{"fridge_capture_errors_total", "Total capture failures", &m.CaptureErrors},
		{"fridge_detect_errors_total", "Total detector errors", &m.DetectErrors},
		{"fridge_ledger_errors_total", "Ledger updates that failed after retries", &m.LedgerErrors},
		{"fridge_ledger_retries_total", "Ledger calls retried", &m.LedgerRetries},
		{"fridge_crossings_added_total", "Crossings classified as added", &m.CrossingsAdded},
		{"fridge_crossings_removed_total", "Crossings classified as removed", &m.CrossingsRemoved},
		{"fridge_ledger_updates_total", "Ledger records changed", &m.LedgerUpdates},
		{"fridge_noop_removals_total", "Removals ignored because the item was not in inventory", &m.NoopRemovals},
		{"fridge_frame_latency_ms", "Frame latency from capture to end of processing in milliseconds", &m.FrameLatencyMs},
		{"fridge_process_latency_ms", "Detection and reconciliation latency in milliseconds", &m.ProcessLatencyMs},
		{"fridge_webrtc_clients_total", "Total WebRTC clients connected", &m.WebRTCTotal},
		{"fridge_events_dropped_total", "Events dropped for slow clients", &m.EventsDropped},
		{"fridge_journal_active", "Journal recording (0=inactive, 1=active)", &m.JournalActive},
		{"fridge_journal_events", "Events written to the current journal", &m.JournalEvents},
		{"fridge_journal_bytes", "Bytes written to the current journal", &m.JournalBytes},
	}
	for _, c := range counters {
		v := c.v
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: c.name, Help: c.help},
			func() float64 { return float64(v.Load()) },
		))
	}

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "fridge_monitor_clients",
			Help: "Connected web monitor stream clients",
		},
		func() float64 { return float64(m.MonitorClients.Load()) },
	))
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "fridge_webrtc_clients",
			Help: "Connected WebRTC data channel clients",
		},
		func() float64 { return float64(m.WebRTCClients.Load()) },
	))
	m.registry.MustRegister(m.quantity)
}

// ObserveEvent records a crossing event and its ledger outcome
func (m *Metrics) ObserveEvent(ev types.CrossingEvent) {
	switch ev.Direction {
	case types.Added:
		m.CrossingsAdded.Add(1)
	case types.Removed:
		m.CrossingsRemoved.Add(1)
	}
	if ev.Skipped {
		m.NoopRemovals.Add(1)
		return
	}
	m.LedgerUpdates.Add(1)
	m.quantity.WithLabelValues(ev.Label).Set(float64(ev.Quantity))
}

// SetQuantity publishes a ledger quantity, used when seeding from List
func (m *Metrics) SetQuantity(item string, q int) {
	m.quantity.WithLabelValues(item).Set(float64(q))
}

// UpdateFrameLatency updates the frame latency
func (m *Metrics) UpdateFrameLatency(captureTime time.Time) {
	m.FrameLatencyMs.Store(uint64(time.Since(captureTime).Milliseconds()))
}

// UpdateProcessLatency updates the processing latency
func (m *Metrics) UpdateProcessLatency(d time.Duration) {
	m.ProcessLatencyMs.Store(uint64(d.Milliseconds()))
}

// Registry exposes the registry for tests and extra collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer serves /metrics on its own mux
func (m *Metrics) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
