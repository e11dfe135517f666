package detect

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/anusha9573/SmartRefridgerator/pkg/types"
)

func TestReadLabels(t *testing.T) {
	labels, err := ReadLabels(strings.NewReader("# fridge classes\nmilk\n\n eggs \napple\n"))
	if err != nil {
		t.Fatalf("ReadLabels: %v", err)
	}
	if diff := cmp.Diff(Labels{"milk", "eggs", "apple"}, labels); diff != "" {
		t.Fatalf("labels mismatch (-want +got):\n%s", diff)
	}
	if got := labels.Name(1); got != "eggs" {
		t.Fatalf("Name(1) = %q", got)
	}
	if got := labels.Name(7); got != "class_7" {
		t.Fatalf("Name(7) = %q", got)
	}

	if _, err := ReadLabels(strings.NewReader("\n# only comments\n")); err == nil {
		t.Fatalf("expected error for empty labels")
	}
}

func TestDecodeYOLOv8(t *testing.T) {
	// 2 classes, 3 candidates, channel-major.
	const n = 3
	data := []float32{
		// cx
		100, 200, 300,
		// cy
		100, 50, 300,
		// w
		20, 10, 40,
		// h
		40, 10, 60,
		// class 0
		0.9, 0.1, 0.2,
		// class 1
		0.05, 0.2, 0.7,
	}

	got, err := DecodeYOLOv8(data, 6, n, 0.25)
	if err != nil {
		t.Fatalf("DecodeYOLOv8: %v", err)
	}
	want := []Candidate{
		{ClassID: 0, Score: 0.9, Box: types.Box{XMin: 90, YMin: 80, XMax: 110, YMax: 120}},
		{ClassID: 1, Score: 0.7, Box: types.Box{XMin: 280, YMin: 270, XMax: 320, YMax: 330}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("candidates mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeYOLOv8RejectsBadShape(t *testing.T) {
	if _, err := DecodeYOLOv8(make([]float32, 10), 4, 2, 0.1); err == nil {
		t.Fatalf("expected error for 4 channels")
	}
	if _, err := DecodeYOLOv8(make([]float32, 10), 6, 3, 0.1); err == nil {
		t.Fatalf("expected error for short buffer")
	}
}

func TestScale(t *testing.T) {
	b := Scale(types.Box{XMin: -5, YMin: 10, XMax: 320, YMax: 700}, 2, 0.75, 600, 480)
	want := types.Box{XMin: 0, YMin: 7.5, XMax: 600, YMax: 480}
	if b != want {
		t.Fatalf("Scale = %+v, want %+v", b, want)
	}
}

func TestPostprocessors(t *testing.T) {
	dets := []types.Detection{
		{Label: "milk", Confidence: 0.9, Box: types.Box{XMax: 100, YMax: 100}},
		{Label: "eggs", Confidence: 0.3, Box: types.Box{XMax: 100, YMax: 100}},
		{Label: "milk", Confidence: 0.8, Box: types.Box{XMax: 5, YMax: 5}},
		{Label: "apple", Confidence: 0.95, Box: types.Box{XMax: 50, YMax: 50}},
	}

	pp := Chain(NewScoreFilter(0.5), NewAreaFilter(100), NewLabelFilter([]string{"milk", "eggs"}))
	got := pp(dets)
	if len(got) != 1 || got[0].Label != "milk" || got[0].Confidence != 0.9 {
		t.Fatalf("chained filters = %+v", got)
	}

	if got := NewLabelFilter(nil)(dets); len(got) != len(dets) {
		t.Fatalf("empty label filter dropped detections: %d", len(got))
	}
}

func TestCountByLabel(t *testing.T) {
	dets := []types.Detection{{Label: "milk"}, {Label: "eggs"}, {Label: "milk"}}
	counts := CountByLabel(dets)
	if diff := cmp.Diff(map[string]int{"milk": 2, "eggs": 1}, counts); diff != "" {
		t.Fatalf("counts mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"eggs", "milk"}, SortedLabels(counts)); diff != "" {
		t.Fatalf("sorted labels mismatch (-want +got):\n%s", diff)
	}
}
