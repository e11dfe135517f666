package webmonitor

import (
	"sync"
	"time"

	"github.com/anusha9573/SmartRefridgerator/internal/metrics"
	"github.com/anusha9573/SmartRefridgerator/internal/pipeline"
	"github.com/anusha9573/SmartRefridgerator/pkg/types"
)

// Monitor keeps the latest frame summary and recent crossing events.
type Monitor struct {
	startTime   time.Time
	metrics     *metrics.Metrics
	historySize int

	mu           sync.Mutex
	version      int
	latest       *FrameSummary
	history      []types.CrossingEvent // newest first
	line         float64
	lastFrameAt  time.Time
	fps          float64
	framesSeen   uint64
	skippedSeen  uint64
	addedSeen    uint64
	removedSeen  uint64
	detectionCnt int
}

// NewMonitor creates a Monitor. m may be nil, in which case counters are
// derived from published results only.
func NewMonitor(historySize int, m *metrics.Metrics) *Monitor {
	if historySize <= 0 {
		historySize = DefaultConfig().HistorySize
	}
	return &Monitor{
		startTime:   time.Now(),
		metrics:     m,
		historySize: historySize,
	}
}

// Record stores one frame result.
func (m *Monitor) Record(res pipeline.Result) {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.lastFrameAt.IsZero() {
		if dt := now.Sub(m.lastFrameAt).Seconds(); dt > 0 {
			inst := 1 / dt
			if m.fps == 0 {
				m.fps = inst
			} else {
				m.fps = 0.9*m.fps + 0.1*inst
			}
		}
	}
	m.lastFrameAt = now
	m.framesSeen++
	m.line = float64(res.Line)

	m.version++
	ts := res.Frame.Timestamp
	if ts.IsZero() {
		ts = now
	}
	m.latest = &FrameSummary{
		FrameNumber:   res.Frame.FrameNum,
		Timestamp:     float64(ts.UnixNano()) / 1e9,
		NumDetections: len(res.Detections),
		Counts:        copyCounts(res.Counts),
		Detections:    append([]types.Detection(nil), res.Detections...),
		Skipped:       res.Skipped,
		Version:       m.version,
	}
	if res.Skipped {
		m.skippedSeen++
	} else {
		m.detectionCnt = len(res.Detections)
	}

	for _, ev := range res.Events {
		switch ev.Direction {
		case types.Added:
			m.addedSeen++
		case types.Removed:
			m.removedSeen++
		}
		m.history = append([]types.CrossingEvent{ev}, m.history...)
	}
	if len(m.history) > m.historySize {
		m.history = m.history[:m.historySize]
	}
}

// Snapshot returns the current status payload.
func (m *Monitor) Snapshot() StatusPayload {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := MonitorStats{
		FramesRead:       m.framesSeen,
		FramesProcessed:  m.framesSeen - m.skippedSeen,
		FramesSkipped:    m.skippedSeen,
		CurrentFPS:       m.fps,
		DetectionCount:   m.detectionCnt,
		Line:             m.line,
		CrossingsAdded:   m.addedSeen,
		CrossingsRemoved: m.removedSeen,
		UptimeSeconds:    time.Since(m.startTime).Seconds(),
	}
	if m.metrics != nil {
		stats.FramesRead = m.metrics.FramesRead.Load()
		stats.FramesProcessed = m.metrics.FramesProcessed.Load()
		stats.FramesSkipped = m.metrics.FramesSkipped.Load()
		stats.CrossingsAdded = m.metrics.CrossingsAdded.Load()
		stats.CrossingsRemoved = m.metrics.CrossingsRemoved.Load()
		stats.LedgerErrors = m.metrics.LedgerErrors.Load()
	}

	var latest *FrameSummary
	if m.latest != nil {
		cp := *m.latest
		latest = &cp
	}
	history := make([]types.CrossingEvent, len(m.history))
	copy(history, m.history)

	return StatusPayload{
		Monitor:      stats,
		LatestFrame:  latest,
		EventHistory: history,
		Timestamp:    float64(time.Now().Unix()),
	}
}

// History returns recent crossing events, newest first.
func (m *Monitor) History() []types.CrossingEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.CrossingEvent, len(m.history))
	copy(out, m.history)
	return out
}

func copyCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
