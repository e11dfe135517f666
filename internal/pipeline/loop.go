package pipeline

import (
	"context"
	"image"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/anusha9573/SmartRefridgerator/internal/crossing"
	"github.com/anusha9573/SmartRefridgerator/internal/detect"
	"github.com/anusha9573/SmartRefridgerator/internal/logger"
	"github.com/anusha9573/SmartRefridgerator/internal/metrics"
	"github.com/anusha9573/SmartRefridgerator/internal/overlay"
	"github.com/anusha9573/SmartRefridgerator/pkg/types"
)

// ErrCapture marks a frame that could not be obtained. It ends the loop.
var ErrCapture = errors.New("pipeline: capture failed")

// Source yields frames. Read returns io.EOF when a finite source is exhausted.
type Source interface {
	Read(ctx context.Context) (types.Frame, error)
	Close() error
}

// Detector returns the detections of one frame. detect.ErrNoResult, or any
// other error, skips the frame.
type Detector interface {
	Detect(ctx context.Context, frame types.Frame) ([]types.Detection, error)
}

// Display shows an annotated frame and reports whether the user asked to stop.
type Display interface {
	Show(img image.Image) (stop bool, err error)
	Close() error
}

// Sink receives every frame result. Publish must not block the loop.
type Sink interface {
	Publish(res Result)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(res Result)

// Publish implements Sink.
func (f SinkFunc) Publish(res Result) { f(res) }

// Result is one iteration of the loop.
type Result struct {
	Frame      types.Frame
	Detections []types.Detection
	Counts     map[string]int
	Events     []types.CrossingEvent
	Line       crossing.Line
	Skipped    bool // detection produced no result
}

// Scene converts the result into an overlay scene.
func (r Result) Scene(header bool) overlay.Scene {
	return overlay.Scene{
		Frame:      r.Frame,
		Detections: r.Detections,
		Counts:     r.Counts,
		Line:       float64(r.Line),
		Header:     header,
	}
}

// heightHinter is implemented by sources that know their frame height before
// the first read.
type heightHinter interface {
	Height() int
}

// LoopConfig wires a Loop.
type LoopConfig struct {
	Source    Source
	Detector  Detector
	Processor *Processor
	Display   Display // nil runs headless
	Sinks     []Sink
	Metrics   *metrics.Metrics
	Closers   []func() error // released after the source and display, in order
}

// Loop is the sequential frame loop.
type Loop struct {
	cfg       LoopConfig
	closeOnce sync.Once
	closeErr  error
}

// NewLoop returns a Loop over cfg.
func NewLoop(cfg LoopConfig) *Loop {
	return &Loop{cfg: cfg}
}

// Run processes frames until the context is cancelled, the display asks to
// stop, the source ends, or capture fails. Resources are released before Run
// returns, on every path.
func (l *Loop) Run(ctx context.Context) (err error) {
	defer func() {
		err = multierr.Append(err, l.Close())
	}()

	p := l.cfg.Processor
	if h, ok := l.cfg.Source.(heightHinter); ok {
		if height := h.Height(); height > 0 {
			p.SetLine(height)
		}
	}

	for {
		if ctx.Err() != nil {
			logger.Info("Pipeline", "Stop requested, leaving frame loop")
			return nil
		}

		stop, stepErr := l.step(ctx)
		if stepErr != nil {
			return stepErr
		}
		if stop {
			return nil
		}
	}
}

func (l *Loop) step(ctx context.Context) (stop bool, err error) {
	m := l.cfg.Metrics
	p := l.cfg.Processor

	frame, err := l.cfg.Source.Read(ctx)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		logger.Info("Pipeline", "Source exhausted")
		return true, nil
	case ctx.Err() != nil:
		return true, nil
	default:
		if m != nil {
			m.CaptureErrors.Add(1)
		}
		logger.Error("Pipeline", "Failed to capture frame, exiting: %v", err)
		return true, &captureError{cause: err}
	}
	if m != nil {
		m.FramesRead.Add(1)
	}

	start := time.Now()
	res := Result{Frame: frame}
	if !p.lineSet {
		p.SetLine(frame.Height)
	}
	res.Line = p.line

	dets, err := l.cfg.Detector.Detect(ctx, frame)
	if err != nil {
		if ctx.Err() != nil {
			return true, nil
		}
		if errors.Is(err, detect.ErrNoResult) {
			logger.Warn("Pipeline", "No results returned from model (frame %d)", frame.FrameNum)
		} else {
			logger.Error("Pipeline", "Detection failed on frame %d: %v", frame.FrameNum, err)
			if m != nil {
				m.DetectErrors.Add(1)
			}
		}
		if m != nil {
			m.FramesSkipped.Add(1)
		}
		res.Skipped = true
		return l.emit(res)
	}

	res.Detections = dets
	res.Counts = detect.CountByLabel(dets)
	events, err := p.Process(ctx, frame.Meta(), dets)
	if err != nil && ctx.Err() != nil {
		return true, nil
	}
	res.Events = events

	if m != nil {
		m.FramesProcessed.Add(1)
		m.UpdateProcessLatency(time.Since(start))
		if !frame.Timestamp.IsZero() {
			m.UpdateFrameLatency(frame.Timestamp)
		}
	}
	return l.emit(res)
}

func (l *Loop) emit(res Result) (stop bool, err error) {
	for _, s := range l.cfg.Sinks {
		s.Publish(res)
	}
	if l.cfg.Display == nil {
		return false, nil
	}
	stop, err = l.cfg.Display.Show(overlay.Render(res.Scene(false)))
	if err != nil {
		logger.Warn("Pipeline", "Display failed: %v", err)
	}
	return stop, nil
}

// Close releases the source, the display and every extra closer exactly once.
func (l *Loop) Close() error {
	l.closeOnce.Do(func() {
		var errs error
		if l.cfg.Source != nil {
			errs = multierr.Append(errs, errors.Wrap(l.cfg.Source.Close(), "close source"))
		}
		if l.cfg.Display != nil {
			errs = multierr.Append(errs, errors.Wrap(l.cfg.Display.Close(), "close display"))
		}
		for _, c := range l.cfg.Closers {
			errs = multierr.Append(errs, c())
		}
		l.closeErr = errs
		logger.Info("Pipeline", "Resources released")
	})
	return l.closeErr
}

type captureError struct {
	cause error
}

func (e *captureError) Error() string {
	return ErrCapture.Error() + ": " + e.cause.Error()
}

func (e *captureError) Is(target error) bool {
	return target == ErrCapture
}

func (e *captureError) Unwrap() error {
	return e.cause
}
