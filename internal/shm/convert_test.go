package shm

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/anusha9573/SmartRefridgerator/pkg/types"
)

func TestToDetections(t *testing.T) {
	got := ToDetections([]RawDetection{
		{ClassName: "milk", Confidence: 0.5, X: 10, Y: 20, W: 30, H: 40},
		{ClassName: "", Confidence: 0.9, X: 1, Y: 1, W: 1, H: 1},
		{ClassName: "eggs", Confidence: 0.7, X: 0, Y: 0, W: 0, H: 5},
	})
	want := []types.Detection{{
		Label:      "milk",
		Confidence: 0.5,
		Box:        types.Box{XMin: 10, YMin: 20, XMax: 40, YMax: 60},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ToDetections mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeNV12(t *testing.T) {
	// 2x2 frame: 4 luma bytes then one interleaved Cb/Cr pair.
	img, err := decodeImage(FormatNV12, []byte{10, 20, 30, 40, 100, 200}, 2, 2)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ycc := img.(*image.YCbCr)
	if ycc.Y[3] != 40 || ycc.Cb[0] != 100 || ycc.Cr[0] != 200 {
		t.Fatalf("planes Y=%v Cb=%v Cr=%v", ycc.Y, ycc.Cb, ycc.Cr)
	}

	if _, err := decodeImage(FormatNV12, []byte{1, 2, 3}, 2, 2); err == nil {
		t.Fatalf("short buffer accepted")
	}
	if _, err := decodeImage(FormatNV12, make([]byte, 16), 3, 3); err == nil {
		t.Fatalf("odd dimensions accepted")
	}
}

func TestDecodeRGBAndJPEG(t *testing.T) {
	img, err := decodeImage(FormatRGB, []byte{1, 2, 3, 4, 5, 6}, 2, 1)
	if err != nil {
		t.Fatalf("rgb: %v", err)
	}
	if c := img.At(1, 0).(color.RGBA); c != (color.RGBA{R: 4, G: 5, B: 6, A: 255}) {
		t.Fatalf("pixel = %v", c)
	}

	src := image.NewGray(image.Rect(0, 0, 8, 4))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	img, err = decodeImage(FormatJPEG, buf.Bytes(), 8, 4)
	if err != nil {
		t.Fatalf("jpeg: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 8 || b.Dy() != 4 {
		t.Fatalf("bounds = %v", b)
	}

	if _, err := decodeImage(99, nil, 1, 1); err == nil {
		t.Fatalf("unknown format accepted")
	}
}

func TestConfigDefaults(t *testing.T) {
	c := Config{FrameName: "/custom"}.withDefaults()
	if c.FrameName != "/custom" || c.DetectionName != DefaultConfig().DetectionName || c.PollInterval <= 0 {
		t.Fatalf("config = %+v", c)
	}
}
