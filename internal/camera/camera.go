// Package camera captures frames from a local video device or file and shows
// annotated frames in a preview window.
package camera

import (
	"context"
	"image"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/anusha9573/SmartRefridgerator/internal/logger"
	"github.com/anusha9573/SmartRefridgerator/pkg/types"
)

// KeyEscape stops the preview loop
const KeyEscape = 27

// ErrNotOpened is returned when the device could not be opened
var ErrNotOpened = errors.New("camera: unable to read camera feed")

// Webcam wraps an OpenCV capture device.
type Webcam struct {
	device string
	cap    *gocv.VideoCapture
	mat    gocv.Mat

	frameNum  uint64
	closeOnce sync.Once
}

// Open opens a numeric device index ("0") or a file/stream path.
func Open(device string) (*Webcam, error) {
	var (
		cap *gocv.VideoCapture
		err error
	)
	if id, convErr := strconv.Atoi(device); convErr == nil {
		cap, err = gocv.VideoCaptureDevice(id)
	} else {
		cap, err = gocv.VideoCaptureFile(device)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "camera: open %s", device)
	}
	if !cap.IsOpened() {
		cap.Close()
		return nil, errors.Wrap(ErrNotOpened, device)
	}

	w := &Webcam{device: device, cap: cap, mat: gocv.NewMat()}
	logger.Info("Camera", "Opened %s (%dx%d)", device, w.width(), w.Height())
	return w, nil
}

// Height reports the capture height the device advertises.
func (w *Webcam) Height() int {
	return int(w.cap.Get(gocv.VideoCaptureFrameHeight))
}

func (w *Webcam) width() int {
	return int(w.cap.Get(gocv.VideoCaptureFrameWidth))
}

// Read grabs the next frame.
func (w *Webcam) Read(ctx context.Context) (types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return types.Frame{}, err
	}
	if ok := w.cap.Read(&w.mat); !ok || w.mat.Empty() {
		return types.Frame{}, errors.Errorf("camera: failed to capture frame from %s", w.device)
	}
	img, err := w.mat.ToImage()
	if err != nil {
		return types.Frame{}, errors.Wrap(err, "camera: convert frame")
	}

	w.frameNum++
	return types.Frame{
		Image:     img,
		Timestamp: time.Now(),
		FrameNum:  w.frameNum,
		Width:     w.mat.Cols(),
		Height:    w.mat.Rows(),
	}, nil
}

// Close releases the device. Safe to call more than once.
func (w *Webcam) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.mat.Close()
		err = w.cap.Close()
		logger.Info("Camera", "Released %s", w.device)
	})
	return err
}

// Window is an OpenCV preview window.
type Window struct {
	win       *gocv.Window
	closeOnce sync.Once
}

// NewWindow creates a named preview window.
func NewWindow(title string) *Window {
	return &Window{win: gocv.NewWindow(title)}
}

// Show displays img and polls the keyboard once. It reports stop=true when
// ESC was pressed.
func (w *Window) Show(img image.Image) (stop bool, err error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return false, errors.Wrap(err, "camera: convert preview")
	}
	defer mat.Close()

	w.win.IMShow(mat)
	if w.win.WaitKey(1)%256 == KeyEscape {
		logger.Info("Camera", "Escape hit, closing...")
		return true, nil
	}
	return false, nil
}

// Close destroys the window.
func (w *Window) Close() error {
	var err error
	w.closeOnce.Do(func() { err = w.win.Close() })
	return err
}
