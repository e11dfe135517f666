// Package shm reads frames and detections that a separate detector daemon
// publishes through POSIX shared memory.
package shm

import (
	"bytes"
	"image"
	"image/jpeg"
	"time"

	"github.com/pkg/errors"

	"github.com/anusha9573/SmartRefridgerator/pkg/types"
)

// Frame formats written by the daemon.
const (
	FormatJPEG = 0
	FormatNV12 = 1
	FormatRGB  = 2

	MaxFrameSize = 1920 * 1080 * 3 / 2
)

// ErrUnavailable means the shared memory segments cannot be used.
var ErrUnavailable = errors.New("shm: shared memory unavailable")

// Config names the segments.
type Config struct {
	FrameName     string        `yaml:"frame_name"`
	DetectionName string        `yaml:"detection_name"`
	PollInterval  time.Duration `yaml:"poll_interval"`
}

// DefaultConfig returns the daemon's default segment names.
func DefaultConfig() Config {
	return Config{
		FrameName:     "/fridge_camera_frame",
		DetectionName: "/fridge_camera_detections",
		PollInterval:  5 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FrameName == "" {
		c.FrameName = d.FrameName
	}
	if c.DetectionName == "" {
		c.DetectionName = d.DetectionName
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	return c
}

// RawDetection is one detection as laid out by the daemon: a named class
// and an x, y, w, h box in frame pixels.
type RawDetection struct {
	ClassName  string
	Confidence float32
	X, Y, W, H int
}

// ToDetections converts daemon detections, dropping unnamed or empty boxes.
func ToDetections(raw []RawDetection) []types.Detection {
	out := make([]types.Detection, 0, len(raw))
	for _, r := range raw {
		if r.ClassName == "" || r.W <= 0 || r.H <= 0 {
			continue
		}
		out = append(out, types.Detection{
			Label:      r.ClassName,
			Confidence: float64(r.Confidence),
			Box: types.Box{
				XMin: float64(r.X),
				YMin: float64(r.Y),
				XMax: float64(r.X + r.W),
				YMax: float64(r.Y + r.H),
			},
		})
	}
	return out
}

func decodeImage(format int, data []byte, width, height int) (image.Image, error) {
	switch format {
	case FormatJPEG:
		img, err := jpeg.Decode(bytes.NewReader(data))
		return img, errors.Wrap(err, "decode jpeg")
	case FormatNV12:
		return nv12ToYCbCr(data, width, height)
	case FormatRGB:
		return rgbToRGBA(data, width, height)
	default:
		return nil, errors.Errorf("unsupported frame format %d", format)
	}
}

// nv12ToYCbCr deinterleaves the NV12 chroma plane into a 4:2:0 YCbCr image.
func nv12ToYCbCr(data []byte, width, height int) (*image.YCbCr, error) {
	if width <= 0 || height <= 0 || width%2 != 0 || height%2 != 0 {
		return nil, errors.Errorf("nv12: bad dimensions %dx%d", width, height)
	}
	ySize := width * height
	if len(data) < ySize+ySize/2 {
		return nil, errors.Errorf("nv12: %d bytes for %dx%d", len(data), width, height)
	}

	img := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio420)
	copy(img.Y, data[:ySize])
	uv := data[ySize : ySize+ySize/2]
	for i := 0; i < len(img.Cb); i++ {
		img.Cb[i] = uv[2*i]
		img.Cr[i] = uv[2*i+1]
	}
	return img, nil
}

func rgbToRGBA(data []byte, width, height int) (*image.RGBA, error) {
	if width <= 0 || height <= 0 || len(data) < width*height*3 {
		return nil, errors.Errorf("rgb: %d bytes for %dx%d", len(data), width, height)
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i, j := 0, 0; i < width*height*3; i, j = i+3, j+4 {
		img.Pix[j] = data[i]
		img.Pix[j+1] = data[i+1]
		img.Pix[j+2] = data[i+2]
		img.Pix[j+3] = 0xff
	}
	return img, nil
}
