// Package overlay draws the reference line, detection boxes and per-label
// counts onto a frame.
package overlay

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/anusha9573/SmartRefridgerator/pkg/types"
)

var (
	Red   = color.RGBA{R: 255, A: 255}
	Green = color.RGBA{G: 255, A: 255}
	White = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Black = color.RGBA{A: 255}
)

// Thickness of the reference line and box outlines in pixels
const Thickness = 2

// Scene is everything drawn on one frame.
type Scene struct {
	Frame      types.Frame
	Detections []types.Detection
	Counts     map[string]int
	Line       float64
	Header     bool
}

// Render returns an annotated copy of the scene's frame. A frame without
// pixels is drawn on a black canvas of its size.
func Render(s Scene) *image.RGBA {
	w, h := s.Frame.Width, s.Frame.Height
	if s.Frame.Image != nil {
		b := s.Frame.Image.Bounds()
		w, h = b.Dx(), b.Dy()
	}
	if w <= 0 || h <= 0 {
		w, h = 640, 480
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if s.Frame.Image != nil {
		draw.Draw(dst, dst.Bounds(), s.Frame.Image, s.Frame.Image.Bounds().Min, draw.Src)
	} else {
		draw.Draw(dst, dst.Bounds(), image.NewUniform(Black), image.Point{}, draw.Src)
	}

	HLine(dst, int(s.Line), Red, Thickness)

	for _, d := range s.Detections {
		r := d.Box.Rect()
		Rect(dst, r, Green, Thickness)
		caption := fmt.Sprintf("%s: %d", d.Label, s.Counts[d.Label])
		y := r.Min.Y - 10
		if y < 13 {
			y = r.Max.Y + 13
		}
		Text(dst, r.Min.X, y, caption, Green)
	}

	if s.Header {
		ts := s.Frame.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		stats := fmt.Sprintf("Frame: %d  Time: %s", s.Frame.FrameNum, ts.Format("2006/01/02 15:04:05"))
		TextWithBackground(dst, 10, 10, stats, White, Black, 2)
	}
	return dst
}

// HLine draws a full-width horizontal line centered on y.
func HLine(dst draw.Image, y int, c color.Color, thickness int) {
	b := dst.Bounds()
	r := image.Rect(b.Min.X, y-thickness/2, b.Max.X, y-thickness/2+thickness).Intersect(b)
	draw.Draw(dst, r, image.NewUniform(c), image.Point{}, draw.Src)
}

// Rect draws the outline of r.
func Rect(dst draw.Image, r image.Rectangle, c color.Color, thickness int) {
	u := image.NewUniform(c)
	b := dst.Bounds()
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+thickness),
		image.Rect(r.Min.X, r.Max.Y-thickness, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+thickness, r.Max.Y),
		image.Rect(r.Max.X-thickness, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(b), u, image.Point{}, draw.Src)
	}
}

// Text draws s with its baseline at (x, y).
func Text(dst draw.Image, x, y int, s string, c color.Color) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// TextWithBackground draws s inside a filled box whose top-left corner is (x, y).
func TextWithBackground(dst draw.Image, x, y int, s string, fg, bg color.Color, pad int) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, s).Ceil()
	m := face.Metrics()
	height := (m.Ascent + m.Descent).Ceil()

	box := image.Rect(x, y, x+width+2*pad, y+height+2*pad).Intersect(dst.Bounds())
	draw.Draw(dst, box, image.NewUniform(bg), image.Point{}, draw.Src)
	Text(dst, x+pad, y+pad+m.Ascent.Ceil(), s, fg)
}

// JPEG encodes img at the given quality.
func JPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
