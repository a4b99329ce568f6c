package automation

import (
	"math"
	"strconv"
)

// LineageKey is the payload key carrying automation lineage metadata.
const LineageKey = "_automation"

type Lineage struct {
	ParentEventID string `json:"parentEventId,omitempty"`
	Depth         int    `json:"depth"`
}

// ExtractLineage reads lineage from an event payload. Missing or malformed
// metadata is depth 0.
func ExtractLineage(payload map[string]interface{}) Lineage {
	raw, ok := payload[LineageKey].(map[string]interface{})
	if !ok {
		return Lineage{}
	}

	lineage := Lineage{}
	if parent, ok := raw["parentEventId"].(string); ok {
		lineage.ParentEventID = parent
	}

	switch d := raw["depth"].(type) {
	case string:
		if n, err := strconv.Atoi(d); err == nil {
			lineage.Depth = n
		}
	default:
		if f, ok := toFloat(d); ok && !math.IsNaN(f) {
			lineage.Depth = int(f)
		}
	}
	if lineage.Depth < 0 {
		lineage.Depth = 0
	}
	return lineage
}

// Exceeds reports whether an event at this depth must not be processed.
func (l Lineage) Exceeds(maxDepth int) bool {
	return maxDepth > 0 && l.Depth >= maxDepth
}

// Child is the lineage an event emitted by an action of eventID carries.
func (l Lineage) Child(eventID string) Lineage {
	return Lineage{ParentEventID: eventID, Depth: l.Depth + 1}
}
