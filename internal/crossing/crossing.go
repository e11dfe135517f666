// Package crossing decides whether a tracked point crossed the horizontal
// reference line between two consecutive observations.
package crossing

import (
	"github.com/anusha9573/SmartRefridgerator/pkg/types"
)

// DefaultRatio places the reference line at mid-height.
const DefaultRatio = 0.5

// Line is the fixed horizontal reference coordinate in frame pixel space.
// Image Y grows downwards, so "below the line" means a larger Y.
type Line float64

// LineFromHeight derives the reference line from the frame height.
// A ratio outside (0, 1) falls back to DefaultRatio, which yields height/2
// with integer division.
func LineFromHeight(height int, ratio float64) Line {
	if ratio <= 0 || ratio >= 1 || ratio == DefaultRatio {
		return Line(height / 2)
	}
	return Line(int(float64(height) * ratio))
}

// Classify applies the straddle test to one step of history.
//
// Without a previous position nothing is emitted. Downward motion from above
// the line to at/below it is Added; upward motion from below to at/above it is
// Removed. Only the two endpoints are compared, so a crossing that skips over
// the line between frames is still detected.
func Classify(prev float64, hasPrev bool, cur float64, line Line) types.Direction {
	if !hasPrev {
		return types.None
	}
	l := float64(line)
	switch {
	case prev < l && l <= cur:
		return types.Added
	case prev > l && l >= cur:
		return types.Removed
	default:
		return types.None
	}
}

// Classify is a convenience wrapper over the package-level Classify.
func (l Line) Classify(prev float64, hasPrev bool, cur float64) types.Direction {
	return Classify(prev, hasPrev, cur, l)
}
