package orchestrate

import "auditor/internal/audit"

// Decision is the router's choice after the investigation barrier.
type Decision string

const (
	DecisionError Decision = "error"
	DecisionJudge Decision = "judge"
)

// Route selects the next stage from the merged evidence. Only a clone
// failure halts the run; missing or low-confidence evidence still goes to
// the judges.
func Route(ev audit.EvidenceMap) Decision {
	if ev.Has(audit.KeyCloneFailure) {
		return DecisionError
	}
	return DecisionJudge
}

// explain returns a short reason for the decision, used in logs and events.
func explain(d Decision, ev audit.EvidenceMap) string {
	if d == DecisionError {
		for _, e := range ev[audit.KeyCloneFailure] {
			if e.Rationale != "" {
				return e.Rationale
			}
		}
		return "repository could not be acquired"
	}
	if ev.Has(audit.KeyDocFailure) {
		return "document unavailable, judging on repository evidence"
	}
	return "evidence collected"
}
