// Package detect holds the model-independent half of object detection:
// class labels, raw YOLOv8 output decoding and detection post-processing.
package detect

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/anusha9573/SmartRefridgerator/pkg/types"
)

// ErrNoResult is returned by a detector that produced no result for a frame.
// Callers skip the frame instead of treating it as "nothing visible".
var ErrNoResult = errors.New("detect: no result returned from model")

// Labels maps class indices to names.
type Labels []string

// Name returns the label for id, or "class_<id>" when id is out of range.
func (l Labels) Name(id int) string {
	if id >= 0 && id < len(l) {
		return l[id]
	}
	return fmt.Sprintf("class_%d", id)
}

// ReadLabels parses one class name per line. Blank lines and lines starting
// with '#' are ignored.
func ReadLabels(r io.Reader) (Labels, error) {
	var out Labels
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "detect: read labels")
	}
	if len(out) == 0 {
		return nil, errors.New("detect: labels file is empty")
	}
	return out, nil
}

// LoadLabels reads a names file from disk.
func LoadLabels(path string) (Labels, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "detect: open labels")
	}
	defer f.Close()
	return ReadLabels(f)
}

// Candidate is a decoded, pre-NMS prediction in model input coordinates.
type Candidate struct {
	ClassID int
	Score   float32
	Box     types.Box
}

// DecodeYOLOv8 decodes a YOLOv8 detection head of shape [1, 4+classes, n]
// stored channel-major in data. Rows are (cx, cy, w, h, class scores...).
// Candidates whose best class score is below minScore are dropped.
func DecodeYOLOv8(data []float32, channels, n int, minScore float32) ([]Candidate, error) {
	if channels <= 4 || n <= 0 {
		return nil, errors.Errorf("detect: invalid output shape [%d, %d]", channels, n)
	}
	if len(data) < channels*n {
		return nil, errors.Errorf("detect: output has %d values, want %d", len(data), channels*n)
	}

	at := func(c, i int) float32 { return data[c*n+i] }

	var out []Candidate
	for i := 0; i < n; i++ {
		best, bestScore := -1, float32(0)
		for c := 4; c < channels; c++ {
			if s := at(c, i); s > bestScore {
				best, bestScore = c-4, s
			}
		}
		if best < 0 || bestScore < minScore {
			continue
		}
		cx, cy, w, h := at(0, i), at(1, i), at(2, i), at(3, i)
		out = append(out, Candidate{
			ClassID: best,
			Score:   bestScore,
			Box: types.Box{
				XMin: float64(cx - w/2),
				YMin: float64(cy - h/2),
				XMax: float64(cx + w/2),
				YMax: float64(cy + h/2),
			},
		})
	}
	return out, nil
}

// Scale maps a box from model input space to frame space and clips it.
func Scale(b types.Box, sx, sy float64, width, height int) types.Box {
	clip := func(v, hi float64) float64 {
		return max(0, min(v, hi))
	}
	return types.Box{
		XMin: clip(b.XMin*sx, float64(width)),
		YMin: clip(b.YMin*sy, float64(height)),
		XMax: clip(b.XMax*sx, float64(width)),
		YMax: clip(b.YMax*sy, float64(height)),
	}
}

// Postprocessor filters or rewrites a frame's detections.
type Postprocessor func([]types.Detection) []types.Detection

// NewScoreFilter drops detections below conf.
func NewScoreFilter(conf float64) Postprocessor {
	return func(in []types.Detection) []types.Detection {
		out := make([]types.Detection, 0, len(in))
		for _, d := range in {
			if d.Confidence >= conf {
				out = append(out, d)
			}
		}
		return out
	}
}

// NewAreaFilter drops detections whose box area is below area pixels.
func NewAreaFilter(area float64) Postprocessor {
	return func(in []types.Detection) []types.Detection {
		out := make([]types.Detection, 0, len(in))
		for _, d := range in {
			if (d.Box.XMax-d.Box.XMin)*(d.Box.YMax-d.Box.YMin) >= area {
				out = append(out, d)
			}
		}
		return out
	}
}

// NewLabelFilter keeps only the listed labels. An empty list keeps everything.
func NewLabelFilter(labels []string) Postprocessor {
	allow := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		allow[l] = struct{}{}
	}
	return func(in []types.Detection) []types.Detection {
		if len(allow) == 0 {
			return in
		}
		out := make([]types.Detection, 0, len(in))
		for _, d := range in {
			if _, ok := allow[d.Label]; ok {
				out = append(out, d)
			}
		}
		return out
	}
}

// Chain applies postprocessors in order.
func Chain(pps ...Postprocessor) Postprocessor {
	return func(in []types.Detection) []types.Detection {
		for _, pp := range pps {
			in = pp(in)
		}
		return in
	}
}

// CountByLabel returns how many boxes of each label are in dets.
func CountByLabel(dets []types.Detection) map[string]int {
	counts := make(map[string]int, len(dets))
	for _, d := range dets {
		counts[d.Label]++
	}
	return counts
}

// SortedLabels returns the keys of counts in lexical order.
func SortedLabels(counts map[string]int) []string {
	out := make([]string, 0, len(counts))
	for k := range counts {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
