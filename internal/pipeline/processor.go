// Package pipeline turns per-frame detections into crossing events and
// drives the capture, detect, reconcile and display loop.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/anusha9573/SmartRefridgerator/internal/crossing"
	"github.com/anusha9573/SmartRefridgerator/internal/detect"
	"github.com/anusha9573/SmartRefridgerator/internal/inventory"
	"github.com/anusha9573/SmartRefridgerator/internal/logger"
	"github.com/anusha9573/SmartRefridgerator/internal/metrics"
	"github.com/anusha9573/SmartRefridgerator/internal/tracker"
	"github.com/anusha9573/SmartRefridgerator/pkg/types"
)

// Reconciler applies a crossing to the ledger.
type Reconciler interface {
	Apply(ctx context.Context, label string, dir types.Direction, count int) (inventory.Result, error)
}

// Processor owns the per-process tracking state: positions, the reference
// line and the reconciler. It is not safe for concurrent use.
type Processor struct {
	tracker    *tracker.Tracker
	reconciler Reconciler
	metrics    *metrics.Metrics
	ratio      float64

	line    crossing.Line
	lineSet bool

	newID func() string
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithLineRatio places the reference line at ratio*height instead of mid-height.
func WithLineRatio(ratio float64) ProcessorOption {
	return func(p *Processor) { p.ratio = ratio }
}

// WithMetrics records crossings and ledger outcomes.
func WithMetrics(m *metrics.Metrics) ProcessorOption {
	return func(p *Processor) { p.metrics = m }
}

// WithEventIDs overrides event ID generation.
func WithEventIDs(fn func() string) ProcessorOption {
	return func(p *Processor) { p.newID = fn }
}

// NewProcessor returns a Processor with an empty tracker and no reference line.
func NewProcessor(rec Reconciler, opts ...ProcessorOption) *Processor {
	p := &Processor{
		tracker:    tracker.New(),
		reconciler: rec,
		ratio:      crossing.DefaultRatio,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetLine fixes the reference line from the frame height. Only the first call
// has an effect.
func (p *Processor) SetLine(height int) crossing.Line {
	if !p.lineSet {
		p.line = crossing.LineFromHeight(height, p.ratio)
		p.lineSet = true
		logger.Info("Pipeline", "Reference line at y=%.0f (frame height %d)", float64(p.line), height)
	}
	return p.line
}

// Line returns the reference line and whether it has been set.
func (p *Processor) Line() (crossing.Line, bool) {
	return p.line, p.lineSet
}

// Positions returns a copy of the tracked centers.
func (p *Processor) Positions() map[string]float64 {
	return p.tracker.Snapshot()
}

// Process runs one frame's detections through tracking, classification and
// reconciliation, in detection order. The reference line comes from the
// first frame with a positive height; until then positions are tracked but
// nothing is classified.
//
// Every instance of a label updates the same tracked position. A crossing is
// reconciled with the number of boxes of that label in this frame. Ledger
// failures do not stop the frame: they are logged, the event is dropped and
// the combined error is returned with the events that did apply.
func (p *Processor) Process(ctx context.Context, meta types.FrameMeta, dets []types.Detection) ([]types.CrossingEvent, error) {
	if !p.lineSet && meta.Height > 0 {
		p.SetLine(meta.Height)
	}
	ts := meta.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	counts := detect.CountByLabel(dets)
	var (
		events []types.CrossingEvent
		errs   error
	)
	for _, d := range dets {
		cur := d.Box.CenterY()
		prev, ok := p.tracker.Update(d.Label, cur)
		dir := types.None
		if p.lineSet {
			dir = p.line.Classify(prev, ok, cur)
		}
		if dir == types.None {
			continue
		}

		count := counts[d.Label]
		logger.Info("Pipeline", "Object: %s, Movement: %s, Count: %d", d.Label, dir, count)

		res, err := p.reconciler.Apply(ctx, d.Label, dir, count)
		if err != nil {
			if ctx.Err() != nil {
				return events, multierr.Append(errs, err)
			}
			if p.metrics != nil {
				p.metrics.LedgerErrors.Add(1)
			}
			logger.Error("Pipeline", "Reconcile %s %s x%d failed: %v", dir, d.Label, count, err)
			errs = multierr.Append(errs, errors.Wrapf(err, "frame %d", meta.FrameNum))
			continue
		}

		ev := types.CrossingEvent{
			ID:          p.newID(),
			Label:       d.Label,
			Direction:   dir,
			Count:       count,
			FrameNum:    meta.FrameNum,
			Timestamp:   ts,
			Quantity:    res.Quantity,
			Skipped:     res.Skipped,
			PrevCenterY: prev,
			CenterY:     cur,
		}
		if p.metrics != nil {
			p.metrics.ObserveEvent(ev)
		}
		events = append(events, ev)
	}
	return events, errs
}
