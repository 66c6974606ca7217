package outline

import "math"

// Scroll anchor tuning.
const (
	AnchorRatio      = 0.1
	AnchorMin        = 56.0
	AnchorMax        = 84.0
	AnchorHysteresis = 6.0
)

// Position ties an entry id to the top offset of its rendered element.
type Position struct {
	ID  string
	Top float64
}

// AnchorLine returns the offset from the viewport top that a heading must reach
// to become active.
func AnchorLine(viewportHeight float64) float64 {
	line := viewportHeight * AnchorRatio
	line = math.Max(AnchorMin, math.Min(AnchorMax, line))
	return line + AnchorHysteresis
}

// ComputeActive picks the active entry. A selection inside a heading wins;
// otherwise the last heading scrolled past the anchor line is active, falling
// back to the first entry. It returns false when there are no positions.
func ComputeActive(positions []Position, selectionID string, viewportHeight float64) (string, bool) {
	if len(positions) == 0 {
		return "", false
	}
	if selectionID != "" {
		for _, pos := range positions {
			if pos.ID == selectionID {
				return pos.ID, true
			}
		}
	}
	anchor := AnchorLine(viewportHeight)
	active := ""
	for _, pos := range positions {
		if pos.Top <= anchor {
			active = pos.ID
			continue
		}
		break
	}
	if active == "" {
		active = positions[0].ID
	}
	return active, true
}
