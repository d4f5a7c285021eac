package audit

import (
	"fmt"
	"strings"
)

// NoEvidenceSummary is the summary text for a dimension without findings.
const NoEvidenceSummary = "No evidence collected for this dimension."

// SummarizeEvidence renders the findings for one dimension as the text
// block handed to assessors.
func SummarizeEvidence(ev EvidenceMap, dimensionID string) string {
	items := ev[dimensionID]
	if len(items) == 0 {
		return NoEvidenceSummary
	}
	lines := make([]string, 0, len(items))
	for _, e := range items {
		status := "NOT FOUND"
		if e.Found {
			status = "FOUND"
		}
		lines = append(lines, fmt.Sprintf("- [%s] %s\n  Location: %s\n  Rationale: %s\n  Confidence: %.2f",
			status, e.Goal, e.Location, e.Rationale, e.Confidence))
	}
	return strings.Join(lines, "\n")
}

// MissingEvidence returns the ids of dimensions with no evidence entry,
// in rubric order.
func MissingEvidence(dims []Dimension, ev EvidenceMap) []string {
	var missing []string
	for _, d := range dims {
		if !ev.Has(d.ID) {
			missing = append(missing, d.ID)
		}
	}
	return missing
}

// ZeroConfidence lists every zero-confidence item, keyed by its map key,
// in key order.
func ZeroConfidence(ev EvidenceMap) []KeyedEvidence {
	var out []KeyedEvidence
	for _, k := range ev.Keys() {
		for _, e := range ev[k] {
			if e.Confidence == 0 {
				out = append(out, KeyedEvidence{Key: k, Evidence: e})
			}
		}
	}
	return out
}

// KeyedEvidence pairs an evidence item with its map key.
type KeyedEvidence struct {
	Key      string
	Evidence Evidence
}
