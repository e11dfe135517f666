package webmonitor

import "github.com/anusha9573/SmartRefridgerator/pkg/types"

// MonitorStats is the frame loop summary shown on the status page.
type MonitorStats struct {
	FramesRead       uint64  `json:"frames_read"`
	FramesProcessed  uint64  `json:"frames_processed"`
	FramesSkipped    uint64  `json:"frames_skipped"`
	CurrentFPS       float64 `json:"current_fps"`
	DetectionCount   int     `json:"detection_count"`
	Line             float64 `json:"line"`
	CrossingsAdded   uint64  `json:"crossings_added"`
	CrossingsRemoved uint64  `json:"crossings_removed"`
	LedgerErrors     uint64  `json:"ledger_errors"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
}

// FrameSummary describes the most recent frame result.
type FrameSummary struct {
	FrameNumber   uint64            `json:"frame_number"`
	Timestamp     float64           `json:"timestamp"`
	NumDetections int               `json:"num_detections"`
	Counts        map[string]int    `json:"counts"`
	Detections    []types.Detection `json:"detections"`
	Skipped       bool              `json:"skipped"`
	Version       int               `json:"version"`
}

// StatusPayload is the body of /api/status and each /api/status/stream event.
type StatusPayload struct {
	Monitor      MonitorStats          `json:"monitor"`
	LatestFrame  *FrameSummary         `json:"latest_frame"`
	EventHistory []types.CrossingEvent `json:"event_history"`
	Timestamp    float64               `json:"timestamp"`
}
