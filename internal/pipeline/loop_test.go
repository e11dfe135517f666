package pipeline

import (
	"context"
	"image"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"

	"github.com/anusha9573/SmartRefridgerator/internal/detect"
	"github.com/anusha9573/SmartRefridgerator/internal/inventory"
	"github.com/anusha9573/SmartRefridgerator/internal/metrics"
	"github.com/anusha9573/SmartRefridgerator/pkg/types"
)

// scriptedSource returns one frame per scripted entry, then the final error.
type scriptedSource struct {
	frames []types.Frame
	err    error
	height int
	closed int
}

func (s *scriptedSource) Read(ctx context.Context) (types.Frame, error) {
	if len(s.frames) == 0 {
		if s.err != nil {
			return types.Frame{}, s.err
		}
		return types.Frame{}, io.EOF
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	return f, nil
}

func (s *scriptedSource) Close() error {
	s.closed++
	return nil
}

type heightSource struct {
	*scriptedSource
}

func (h heightSource) Height() int { return h.height }

// scriptedDetector returns detections keyed by frame number.
type scriptedDetector struct {
	byFrame map[uint64][]types.Detection
	fail    map[uint64]error
}

func (d *scriptedDetector) Detect(_ context.Context, f types.Frame) ([]types.Detection, error) {
	if err, ok := d.fail[f.FrameNum]; ok {
		return nil, err
	}
	return d.byFrame[f.FrameNum], nil
}

type recordingSink struct {
	mu      sync.Mutex
	results []Result
}

func (s *recordingSink) Publish(r Result) {
	s.mu.Lock()
	s.results = append(s.results, r)
	s.mu.Unlock()
}

type stopDisplay struct {
	stopAfter int
	shown     int
	closed    int
}

func (d *stopDisplay) Show(image.Image) (bool, error) {
	d.shown++
	return d.stopAfter > 0 && d.shown >= d.stopAfter, nil
}

func (d *stopDisplay) Close() error {
	d.closed++
	return nil
}

func frames(n int) []types.Frame {
	out := make([]types.Frame, n)
	for i := range out {
		out[i] = types.Frame{FrameNum: uint64(i + 1), Width: 320, Height: 200}
	}
	return out
}

func TestLoopRunsUntilSourceEnds(t *testing.T) {
	ledger := inventory.NewMemoryLedger()
	src := &scriptedSource{frames: frames(3)}
	sink := &recordingSink{}
	m := metrics.New()
	ledgerClosed := 0

	loop := NewLoop(LoopConfig{
		Source: src,
		Detector: &scriptedDetector{byFrame: map[uint64][]types.Detection{
			1: {det("eggs", 40, 60)},
			2: {det("eggs", 140, 160)},
			3: {det("eggs", 150, 170)},
		}},
		Processor: NewProcessor(inventory.NewReconciler(ledger), WithMetrics(m)),
		Sinks:     []Sink{sink},
		Metrics:   m,
		Closers:   []func() error{func() error { ledgerClosed++; return nil }},
	})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sink.results) != 3 {
		t.Fatalf("sink got %d results", len(sink.results))
	}
	if n := len(sink.results[1].Events); n != 1 {
		t.Fatalf("frame 2 events = %d, want 1", n)
	}
	if sink.results[1].Line != 100 {
		t.Fatalf("line = %v", sink.results[1].Line)
	}
	requireQuantity(t, ledger, "eggs", 1)
	if src.closed != 1 || ledgerClosed != 1 {
		t.Fatalf("closed source=%d ledger=%d, want 1 each", src.closed, ledgerClosed)
	}
	if m.FramesRead.Load() != 3 || m.FramesProcessed.Load() != 3 {
		t.Fatalf("frames read=%d processed=%d", m.FramesRead.Load(), m.FramesProcessed.Load())
	}

	// A second Close is a no-op.
	if err := loop.Close(); err != nil || src.closed != 1 {
		t.Fatalf("second Close err=%v closed=%d", err, src.closed)
	}
}

func TestLoopCaptureFailureIsFatal(t *testing.T) {
	boom := errors.New("device unplugged")
	src := &scriptedSource{frames: frames(1), err: boom}
	display := &stopDisplay{}
	ledgerClosed := 0

	loop := NewLoop(LoopConfig{
		Source:    src,
		Detector:  &scriptedDetector{},
		Processor: NewProcessor(inventory.NewReconciler(inventory.NewMemoryLedger())),
		Display:   display,
		Closers:   []func() error{func() error { ledgerClosed++; return nil }},
	})

	err := loop.Run(context.Background())
	if !errors.Is(err, ErrCapture) {
		t.Fatalf("err = %v, want ErrCapture", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want cause %v", err, boom)
	}
	if src.closed != 1 || display.closed != 1 || ledgerClosed != 1 {
		t.Fatalf("teardown source=%d display=%d ledger=%d", src.closed, display.closed, ledgerClosed)
	}
}

func TestLoopSkipsFramesWithoutResult(t *testing.T) {
	ledger := inventory.NewMemoryLedger()
	sink := &recordingSink{}
	m := metrics.New()
	p := NewProcessor(inventory.NewReconciler(ledger))

	loop := NewLoop(LoopConfig{
		Source: &scriptedSource{frames: frames(4)},
		Detector: &scriptedDetector{
			byFrame: map[uint64][]types.Detection{
				1: {det("milk", 40, 60)},
				4: {det("milk", 140, 160)},
			},
			fail: map[uint64]error{
				2: detect.ErrNoResult,
				3: errors.New("inference crashed"),
			},
		},
		Processor: p,
		Sinks:     []Sink{sink},
		Metrics:   m,
	})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !sink.results[1].Skipped || !sink.results[2].Skipped {
		t.Fatalf("frames 2 and 3 not marked skipped")
	}
	if m.FramesSkipped.Load() != 2 || m.DetectErrors.Load() != 1 {
		t.Fatalf("skipped=%d detectErrors=%d", m.FramesSkipped.Load(), m.DetectErrors.Load())
	}
	// Skipped frames leave tracking alone, so frame 4 still sees the frame 1 position.
	if len(sink.results[3].Events) != 1 {
		t.Fatalf("frame 4 events = %+v", sink.results[3].Events)
	}
	requireQuantity(t, ledger, "milk", 1)
}

func TestLoopStopsOnDisplayRequest(t *testing.T) {
	src := &scriptedSource{frames: frames(10)}
	display := &stopDisplay{stopAfter: 2}

	loop := NewLoop(LoopConfig{
		Source:    src,
		Detector:  &scriptedDetector{},
		Processor: NewProcessor(inventory.NewReconciler(inventory.NewMemoryLedger())),
		Display:   display,
	})
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if display.shown != 2 {
		t.Fatalf("shown = %d, want 2", display.shown)
	}
	if len(src.frames) != 8 {
		t.Fatalf("frames left = %d, want 8", len(src.frames))
	}
	if display.closed != 1 || src.closed != 1 {
		t.Fatalf("teardown display=%d source=%d", display.closed, src.closed)
	}
}

func TestLoopStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &scriptedSource{frames: frames(5)}

	loop := NewLoop(LoopConfig{
		Source:    src,
		Detector:  &scriptedDetector{},
		Processor: NewProcessor(inventory.NewReconciler(inventory.NewMemoryLedger())),
	})
	if err := loop.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(src.frames) != 5 || src.closed != 1 {
		t.Fatalf("frames left=%d closed=%d", len(src.frames), src.closed)
	}
}

func TestLoopUsesSourceHeightHint(t *testing.T) {
	p := NewProcessor(inventory.NewReconciler(inventory.NewMemoryLedger()))
	loop := NewLoop(LoopConfig{
		Source:    heightSource{&scriptedSource{height: 480}},
		Detector:  &scriptedDetector{},
		Processor: p,
	})
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if line, ok := p.Line(); !ok || line != 240 {
		t.Fatalf("line = %v, %v; want 240", line, ok)
	}
}

func TestLoopCombinesTeardownErrors(t *testing.T) {
	loop := NewLoop(LoopConfig{
		Source:    &scriptedSource{},
		Detector:  &scriptedDetector{},
		Processor: NewProcessor(inventory.NewReconciler(inventory.NewMemoryLedger())),
		Closers: []func() error{
			func() error { return errors.New("ledger close failed") },
			func() error { return errors.New("journal close failed") },
		},
	})
	err := loop.Run(context.Background())
	if err == nil {
		t.Fatalf("expected teardown error")
	}
	for _, want := range []string{"ledger close failed", "journal close failed"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("err %q missing %q", err, want)
		}
	}
}
