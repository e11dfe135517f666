package tracker

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestUpdateFirstSight(t *testing.T) {
	tr := New()
	prev, ok := tr.Update("milk", 120)
	if ok {
		t.Fatalf("first Update returned ok=true (prev=%v)", prev)
	}
	if y, ok := tr.Position("milk"); !ok || y != 120 {
		t.Fatalf("Position = %v,%v want 120,true", y, ok)
	}
}

func TestUpdateReturnsPreviousAndOverwrites(t *testing.T) {
	tr := New()
	tr.Update("milk", 50)

	prev, ok := tr.Update("milk", 150)
	if !ok || prev != 50 {
		t.Fatalf("Update = %v,%v want 50,true", prev, ok)
	}

	prev, ok = tr.Update("milk", 90)
	if !ok || prev != 150 {
		t.Fatalf("Update = %v,%v want 150,true", prev, ok)
	}
}

func TestLabelsAreIndependent(t *testing.T) {
	tr := New()
	tr.Update("milk", 10)
	tr.Update("eggs", 20)
	tr.Update("milk", 30)

	want := map[string]float64{"milk": 30, "eggs": 20}
	if diff := cmp.Diff(want, tr.Snapshot()); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
	if tr.Len() != 2 {
		t.Fatalf("Len = %d, want 2", tr.Len())
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := New()
	tr.Update("milk", 10)
	snap := tr.Snapshot()
	snap["milk"] = 999
	if y, _ := tr.Position("milk"); y != 10 {
		t.Fatalf("snapshot mutation leaked into tracker: %v", y)
	}
}
