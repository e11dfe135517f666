// Package yolo runs a YOLOv8 ONNX model through the OpenCV DNN module.
package yolo

import (
	"context"
	"image"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/anusha9573/SmartRefridgerator/internal/detect"
	"github.com/anusha9573/SmartRefridgerator/internal/logger"
	"github.com/anusha9573/SmartRefridgerator/pkg/types"
)

// Config for the detector
type Config struct {
	ModelPath      string  `yaml:"model"`
	LabelsPath     string  `yaml:"names"`
	InputSize      int     `yaml:"input_size"`      // Square model input, 640 for stock YOLOv8
	ScoreThreshold float32 `yaml:"score_threshold"` // Minimum class score kept before NMS
	NMSThreshold   float32 `yaml:"nms_threshold"`   // IoU threshold for NMS
}

// DefaultConfig returns default detector settings
func DefaultConfig() Config {
	return Config{
		ModelPath:      "best.onnx",
		LabelsPath:     "best.names",
		InputSize:      640,
		ScoreThreshold: 0.25,
		NMSThreshold:   0.45,
	}
}

// Detector owns a loaded network. Detect serializes access to it.
type Detector struct {
	cfg    Config
	labels detect.Labels
	post   detect.Postprocessor

	mu  sync.Mutex
	net gocv.Net
}

// New loads the model and its labels.
func New(cfg Config, post ...detect.Postprocessor) (*Detector, error) {
	if cfg.InputSize <= 0 {
		cfg.InputSize = 640
	}
	labels, err := detect.LoadLabels(cfg.LabelsPath)
	if err != nil {
		return nil, err
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, errors.Errorf("yolo: failed to load model %s", cfg.ModelPath)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, errors.Wrap(err, "yolo: set backend")
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, errors.Wrap(err, "yolo: set target")
	}

	logger.Info("Detector", "Loaded %s (%d classes, input %dx%d)",
		cfg.ModelPath, len(labels), cfg.InputSize, cfg.InputSize)

	return &Detector{
		cfg:    cfg,
		labels: labels,
		post:   detect.Chain(post...),
		net:    net,
	}, nil
}

// Labels returns the class names of the loaded model.
func (d *Detector) Labels() detect.Labels {
	return d.labels
}

// Detect runs inference on one frame. Boxes are returned in frame pixels.
func (d *Detector) Detect(ctx context.Context, frame types.Frame) ([]types.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if frame.Image == nil {
		return nil, detect.ErrNoResult
	}

	img, err := gocv.ImageToMatRGB(frame.Image)
	if err != nil {
		return nil, errors.Wrap(err, "yolo: convert frame")
	}
	defer img.Close()

	size := image.Pt(d.cfg.InputSize, d.cfg.InputSize)
	blob := gocv.BlobFromImage(img, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	d.mu.Unlock()
	defer out.Close()

	dims := out.Size()
	if len(dims) != 3 {
		return nil, errors.Wrapf(detect.ErrNoResult, "unexpected output dims %v", dims)
	}
	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrap(err, "yolo: read output")
	}

	cands, err := detect.DecodeYOLOv8(data, dims[1], dims[2], d.cfg.ScoreThreshold)
	if err != nil {
		return nil, err
	}
	if len(cands) == 0 {
		return []types.Detection{}, nil
	}

	rects := make([]image.Rectangle, len(cands))
	scores := make([]float32, len(cands))
	for i, c := range cands {
		rects[i] = c.Box.Rect()
		scores[i] = c.Score
	}
	keep := gocv.NMSBoxes(rects, scores, d.cfg.ScoreThreshold, d.cfg.NMSThreshold)

	w, h := img.Cols(), img.Rows()
	sx := float64(w) / float64(d.cfg.InputSize)
	sy := float64(h) / float64(d.cfg.InputSize)

	dets := make([]types.Detection, 0, len(keep))
	for _, idx := range keep {
		c := cands[idx]
		dets = append(dets, types.Detection{
			Label:      d.labels.Name(c.ClassID),
			Confidence: float64(c.Score),
			Box:        detect.Scale(c.Box, sx, sy, w, h),
		})
	}
	return d.post(dets), nil
}

// Close releases the network.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
