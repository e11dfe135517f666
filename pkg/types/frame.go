package types

import (
	"image"
	"time"
)

// Frame is a single captured video frame with metadata
type Frame struct {
	Image     image.Image // Decoded pixels (nil when the source only carries detections)
	Timestamp time.Time   // Frame capture timestamp
	FrameNum  uint64      // Sequential frame number
	Width     int         // Frame width
	Height    int         // Frame height
}

// Meta returns the frame metadata without pixels
func (f Frame) Meta() FrameMeta {
	return FrameMeta{
		FrameNum:  f.FrameNum,
		Timestamp: f.Timestamp,
		Width:     f.Width,
		Height:    f.Height,
	}
}

// FrameMeta identifies a frame without carrying its pixel buffer
type FrameMeta struct {
	FrameNum  uint64
	Timestamp time.Time
	Width     int
	Height    int
}

// Box is an axis-aligned bounding box in frame pixel space
type Box struct {
	XMin float64 `json:"x_min"`
	YMin float64 `json:"y_min"`
	XMax float64 `json:"x_max"`
	YMax float64 `json:"y_max"`
}

// CenterY returns the vertical center of the box
func (b Box) CenterY() float64 {
	return (b.YMin + b.YMax) / 2
}

// Rect rounds the box to an integer rectangle
func (b Box) Rect() image.Rectangle {
	return image.Rect(int(b.XMin), int(b.YMin), int(b.XMax), int(b.YMax))
}

// Detection is one model-reported object in a single frame
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}
