// Package tracker keeps the last observed vertical center per detection label.
//
// Every physical instance of a class collapses onto a single tracked point:
// two apples in view share one position. A Tracker is not safe for concurrent
// use; the frame loop owns it and calls Update sequentially.
package tracker

// Tracker maps a label to its last observed vertical center.
type Tracker struct {
	positions map[string]float64
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{positions: make(map[string]float64)}
}

// Update records centerY for label and returns the previously recorded center.
// ok is false on the first observation of label.
func (t *Tracker) Update(label string, centerY float64) (prev float64, ok bool) {
	prev, ok = t.positions[label]
	t.positions[label] = centerY
	return prev, ok
}

// Position returns the last recorded center for label.
func (t *Tracker) Position(label string) (float64, bool) {
	y, ok := t.positions[label]
	return y, ok
}

// Len returns the number of distinct labels seen.
func (t *Tracker) Len() int {
	return len(t.positions)
}

// Snapshot copies the current positions.
func (t *Tracker) Snapshot() map[string]float64 {
	out := make(map[string]float64, len(t.positions))
	for k, v := range t.positions {
		out[k] = v
	}
	return out
}
