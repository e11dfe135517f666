package journal

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"

	"github.com/anusha9573/SmartRefridgerator/internal/metrics"
	"github.com/anusha9573/SmartRefridgerator/pkg/types"
)

func TestJournalRecordsEvents(t *testing.T) {
	dir := t.TempDir()
	m := metrics.New()
	j := New(dir, m)

	if j.Send(types.CrossingEvent{ID: "early"}) {
		t.Fatalf("Send accepted an event while not recording")
	}

	path, err := j.Start("session.jsonl")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if path != filepath.Join(dir, "session.jsonl") {
		t.Fatalf("path = %q", path)
	}
	if _, err := j.Start(""); !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("second Start err = %v", err)
	}
	if m.JournalActive.Load() != 1 {
		t.Fatalf("JournalActive not set")
	}

	for _, ev := range []types.CrossingEvent{
		{ID: "a", Label: "milk", Direction: types.Added, Count: 1, Quantity: 1},
		{ID: "b", Label: "milk", Direction: types.Removed, Count: 1, Quantity: 0},
	} {
		if !j.Send(ev) {
			t.Fatalf("Send %s dropped", ev.ID)
		}
	}

	if _, err := j.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, err := j.Stop(); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("second Stop err = %v", err)
	}

	st := j.Status()
	if st.Recording || st.EventCount != 2 || st.BytesWritten == 0 {
		t.Fatalf("status = %+v", st)
	}
	if m.JournalActive.Load() != 0 || m.JournalEvents.Load() != 2 {
		t.Fatalf("metrics active=%d events=%d", m.JournalActive.Load(), m.JournalEvents.Load())
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer f.Close()

	var got []types.CrossingEvent
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev types.CrossingEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("decode line %q: %v", sc.Text(), err)
		}
		got = append(got, ev)
	}
	if len(got) != 2 || got[1].Direction != types.Removed || got[0].Label != "milk" {
		t.Fatalf("journal contents = %+v", got)
	}
}

func TestJournalStripsDirectories(t *testing.T) {
	dir := t.TempDir()
	j := New(dir, nil)
	path, err := j.Start("../../escape.jsonl")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer j.Close()
	if filepath.Dir(path) != dir {
		t.Fatalf("journal escaped base path: %s", path)
	}
}
