package types

import (
	"fmt"
	"time"
)

// Direction is the outcome of classifying a reference line crossing
type Direction int

const (
	None    Direction = iota // No crossing this frame
	Added                    // Moved from above the line to at/below it
	Removed                  // Moved from below the line to at/above it
)

// String returns the lowercase name used in logs and JSON payloads
func (d Direction) String() string {
	switch d {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case None:
		return "none"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// MarshalText encodes the direction as its name
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes a direction name
func (d *Direction) UnmarshalText(text []byte) error {
	switch string(text) {
	case "added":
		*d = Added
	case "removed":
		*d = Removed
	case "none", "":
		*d = None
	default:
		return fmt.Errorf("unknown direction %q", string(text))
	}
	return nil
}

// CrossingEvent is a classified reference line crossing for one label in one frame
type CrossingEvent struct {
	ID          string    `json:"id"`
	Label       string    `json:"label"`
	Direction   Direction `json:"direction"`
	Count       int       `json:"count"`        // Boxes of this label in the frame
	FrameNum    uint64    `json:"frame_number"` // Frame the crossing was observed in
	Timestamp   time.Time `json:"timestamp"`
	Quantity    int       `json:"quantity"` // Ledger quantity after reconciliation
	Skipped     bool      `json:"skipped"`  // Removal of an item the ledger never had
	PrevCenterY float64   `json:"prev_center_y"`
	CenterY     float64   `json:"center_y"`
}

// InventoryRecord is the persisted quantity of one item
type InventoryRecord struct {
	Name     string  `json:"name" bson:"name"`
	Quantity int     `json:"quantity" bson:"quantity"`
	Unit     *string `json:"unit" bson:"unit"`
}
