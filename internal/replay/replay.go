// Package replay feeds recorded detections through the frame loop.
//
// Input is JSON lines, one frame per line:
//
//	{"frame": 12, "width": 640, "height": 480, "timestamp": "2024-05-01T10:00:00Z",
//	 "detections": [{"label": "milk", "confidence": 0.91, "box": {"x_min": 10, "y_min": 40, "x_max": 80, "y_max": 160}}]}
//
// A line without a "detections" key, or with "detections": null, stands for a
// frame where the detector returned no result.
package replay

import (
	"bufio"
	"bytes"
	"context"
	"image"
	"image/color"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/anusha9573/SmartRefridgerator/internal/detect"
	"github.com/anusha9573/SmartRefridgerator/internal/logger"
	"github.com/anusha9573/SmartRefridgerator/pkg/types"
)

const (
	defaultWidth  = 640
	defaultHeight = 480
)

// Player is both the frame source and the detector for a replay file.
type Player struct {
	closer io.Closer
	sc     *bufio.Scanner
	pace   time.Duration
	blank  bool

	line    int
	lastNum uint64

	mu      sync.Mutex
	pending map[uint64]frameDetections

	closeOnce sync.Once
}

type frameDetections struct {
	dets []types.Detection
	ok   bool
}

// Option configures a Player.
type Option func(*Player)

// WithPace sleeps between frames to approximate a live feed.
func WithPace(d time.Duration) Option {
	return func(p *Player) { p.pace = d }
}

// WithBlankFrames attaches a blank image of the frame size to every frame so
// the overlay and preview have something to draw on.
func WithBlankFrames() Option {
	return func(p *Player) { p.blank = true }
}

// New reads frames from r.
func New(r io.Reader, opts ...Option) *Player {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	p := &Player{sc: sc, pending: make(map[uint64]frameDetections)}
	if c, ok := r.(io.Closer); ok {
		p.closer = c
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Open reads frames from a file.
func Open(path string, opts ...Option) (*Player, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "replay: open")
	}
	logger.Info("Replay", "Replaying detections from %s", path)
	return New(f, opts...), nil
}

// Read returns the next frame, or io.EOF when the input is exhausted.
func (p *Player) Read(ctx context.Context) (types.Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return types.Frame{}, err
		}
		if !p.sc.Scan() {
			if err := p.sc.Err(); err != nil {
				return types.Frame{}, errors.Wrap(err, "replay: read")
			}
			return types.Frame{}, io.EOF
		}
		p.line++
		raw := p.sc.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		if !gjson.ValidBytes(raw) {
			return types.Frame{}, errors.Errorf("replay: line %d is not valid JSON", p.line)
		}

		frame, dets, ok := p.parse(gjson.ParseBytes(raw))
		p.mu.Lock()
		p.pending[frame.FrameNum] = frameDetections{dets: dets, ok: ok}
		p.mu.Unlock()

		if p.pace > 0 {
			select {
			case <-ctx.Done():
				return types.Frame{}, ctx.Err()
			case <-time.After(p.pace):
			}
		}
		return frame, nil
	}
}

func (p *Player) parse(doc gjson.Result) (types.Frame, []types.Detection, bool) {
	num := p.lastNum + 1
	if v := doc.Get("frame"); v.Exists() {
		num = v.Uint()
	}
	p.lastNum = num

	frame := types.Frame{
		FrameNum:  num,
		Timestamp: time.Now(),
		Width:     defaultWidth,
		Height:    defaultHeight,
	}
	if v := doc.Get("width"); v.Exists() {
		frame.Width = int(v.Int())
	}
	if v := doc.Get("height"); v.Exists() {
		frame.Height = int(v.Int())
	}
	if v := doc.Get("timestamp"); v.Exists() {
		if ts, err := time.Parse(time.RFC3339Nano, v.String()); err == nil {
			frame.Timestamp = ts
		}
	}
	if p.blank {
		frame.Image = blankImage(frame.Width, frame.Height)
	}

	list := doc.Get("detections")
	if !list.Exists() || list.Type == gjson.Null {
		return frame, nil, false
	}
	dets := []types.Detection{}
	list.ForEach(func(_, d gjson.Result) bool {
		dets = append(dets, types.Detection{
			Label:      d.Get("label").String(),
			Confidence: d.Get("confidence").Float(),
			Box: types.Box{
				XMin: d.Get("box.x_min").Float(),
				YMin: d.Get("box.y_min").Float(),
				XMax: d.Get("box.x_max").Float(),
				YMax: d.Get("box.y_max").Float(),
			},
		})
		return true
	})
	return frame, dets, true
}

// Detect returns the detections recorded for frame.
func (p *Player) Detect(ctx context.Context, frame types.Frame) ([]types.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	fd, found := p.pending[frame.FrameNum]
	delete(p.pending, frame.FrameNum)
	p.mu.Unlock()

	if !found || !fd.ok {
		return nil, detect.ErrNoResult
	}
	return fd.dets, nil
}

// Close closes the underlying reader when it is closable.
func (p *Player) Close() error {
	var err error
	p.closeOnce.Do(func() {
		if p.closer != nil {
			err = p.closer.Close()
		}
	})
	return err
}

func blankImage(w, h int) image.Image {
	if w <= 0 || h <= 0 {
		w, h = defaultWidth, defaultHeight
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	gray := color.RGBA{R: 32, G: 32, B: 32, A: 255}
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = gray.R, gray.G, gray.B, gray.A
	}
	return img
}
