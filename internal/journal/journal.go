// Package journal records crossing events to JSON-lines files on demand.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/anusha9573/SmartRefridgerator/internal/logger"
	"github.com/anusha9573/SmartRefridgerator/internal/metrics"
	"github.com/anusha9573/SmartRefridgerator/pkg/types"
)

var (
	ErrAlreadyRecording = errors.New("already recording")
	ErrNotRecording     = errors.New("not recording")
)

// Journal writes events from a buffered channel on a background goroutine.
type Journal struct {
	mu           sync.RWMutex
	basePath     string
	file         *os.File
	enc          *json.Encoder
	filename     string
	recording    bool
	eventCount   uint64
	bytesWritten uint64
	dropped      atomic.Uint64
	startTime    time.Time

	events  chan types.CrossingEvent
	done    chan struct{}
	wg      sync.WaitGroup
	metrics *metrics.Metrics
}

// New creates a journal writing under basePath.
func New(basePath string, m *metrics.Metrics) *Journal {
	return &Journal{
		basePath: basePath,
		metrics:  m,
	}
}

// Start opens a new journal file. An empty filename gets a timestamped name.
func (j *Journal) Start(filename string) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.recording {
		return "", ErrAlreadyRecording
	}
	if filename == "" {
		filename = fmt.Sprintf("events_%s.jsonl", time.Now().Format("20060102_150405"))
	}
	filename = filepath.Base(filename)

	if err := os.MkdirAll(j.basePath, 0o755); err != nil {
		return "", errors.Wrap(err, "create journal directory")
	}
	path := filepath.Join(j.basePath, filename)
	file, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, "create journal file")
	}

	j.file = file
	j.enc = json.NewEncoder(&countingWriter{j: j})
	j.filename = path
	j.recording = true
	j.eventCount = 0
	j.bytesWritten = 0
	j.dropped.Store(0)
	j.startTime = time.Now()
	j.events = make(chan types.CrossingEvent, 256)
	j.done = make(chan struct{})

	j.wg.Add(1)
	go j.writeEvents(j.events, j.done)

	if j.metrics != nil {
		j.metrics.JournalActive.Store(1)
		j.metrics.JournalEvents.Store(0)
		j.metrics.JournalBytes.Store(0)
	}
	logger.Info("Journal", "Recording events to %s", path)
	return path, nil
}

// Stop drains pending events and closes the file.
func (j *Journal) Stop() (string, error) {
	j.mu.Lock()
	if !j.recording {
		j.mu.Unlock()
		return "", ErrNotRecording
	}
	j.recording = false
	close(j.done)
	j.mu.Unlock()

	j.wg.Wait()

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.metrics != nil {
		j.metrics.JournalActive.Store(0)
	}
	path := j.filename
	if j.file == nil {
		return path, nil
	}
	err := j.file.Sync()
	if cerr := j.file.Close(); err == nil {
		err = cerr
	}
	j.file = nil
	logger.Info("Journal", "Stopped %s (%d events, %d bytes)", path, j.eventCount, j.bytesWritten)
	return path, errors.Wrap(err, "close journal file")
}

// Send queues an event. It never blocks: when not recording, or when the
// buffer is full, the event is dropped and false is returned.
func (j *Journal) Send(ev types.CrossingEvent) bool {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if !j.recording {
		return false
	}
	select {
	case j.events <- ev:
		return true
	default:
		j.dropped.Add(1)
		return false
	}
}

func (j *Journal) writeEvents(events <-chan types.CrossingEvent, done <-chan struct{}) {
	defer j.wg.Done()
	for {
		select {
		case ev := <-events:
			j.write(ev)
		case <-done:
			for {
				select {
				case ev := <-events:
					j.write(ev)
				default:
					return
				}
			}
		}
	}
}

func (j *Journal) write(ev types.CrossingEvent) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.enc == nil || j.file == nil {
		return
	}
	if err := j.enc.Encode(ev); err != nil {
		logger.Warn("Journal", "Failed to write event %s: %v", ev.ID, err)
		return
	}
	j.eventCount++
	if j.metrics != nil {
		j.metrics.JournalEvents.Store(j.eventCount)
		j.metrics.JournalBytes.Store(j.bytesWritten)
	}
}

// countingWriter is only used while j.mu is held by write.
type countingWriter struct {
	j *Journal
}

func (w *countingWriter) Write(p []byte) (int, error) {
	n, err := w.j.file.Write(p)
	w.j.bytesWritten += uint64(n)
	return n, err
}

// IsRecording reports whether a journal file is open.
func (j *Journal) IsRecording() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.recording
}

// Status returns the current journal status
func (j *Journal) Status() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var duration time.Duration
	if j.recording {
		duration = time.Since(j.startTime)
	}
	return Status{
		Recording:    j.recording,
		Filename:     j.filename,
		EventCount:   j.eventCount,
		BytesWritten: j.bytesWritten,
		Dropped:      j.dropped.Load(),
		DurationMs:   duration.Milliseconds(),
		StartTime:    j.startTime,
	}
}

// Close stops recording if active.
func (j *Journal) Close() error {
	if j.IsRecording() {
		_, err := j.Stop()
		return err
	}
	return nil
}

// Status holds the current journal status
type Status struct {
	Recording    bool      `json:"recording"`
	Filename     string    `json:"filename"`
	EventCount   uint64    `json:"event_count"`
	BytesWritten uint64    `json:"bytes_written"`
	Dropped      uint64    `json:"dropped"`
	DurationMs   int64     `json:"duration_ms"`
	StartTime    time.Time `json:"start_time"`
}
