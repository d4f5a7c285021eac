package justice

import (
	"math"
	"strings"

	"auditor/internal/audit"
)

// Rule constants.
const (
	neutralScore  = 3
	securityCap   = 3
	evidenceCap   = 2
	generousFloor = 4
	adversaryMax  = 2
	dissentSpread = 2
	excerptRunes  = 150
)

// RemediationFallback is used when no Pragmatic opinion exists.
const RemediationFallback = "No Pragmatic opinion available; review manually."

// architectureDimensions are resolved with Pragmatic weighting.
var architectureDimensions = map[string]bool{
	"graph_orchestration":           true,
	"state_management_rigor":        true,
	"safe_tool_engineering":         true,
	"structured_output_enforcement": true,
}

// securityKeywords mark an Adversarial argument as reporting a confirmed
// vulnerability. Matched case-insensitively as substrings.
var securityKeywords = []string{
	"os.system",
	"shell injection",
	"unsanitized",
	"security negligence",
	"command injection",
	"arbitrary code",
	"security flaw",
	"vulnerability",
}

// IsArchitecture reports whether the dimension uses Pragmatic weighting.
func IsArchitecture(dimensionID string) bool {
	return architectureDimensions[dimensionID]
}

// ArchitectureDimensions returns the weighted dimension ids, sorted.
func ArchitectureDimensions() []string {
	return []string{
		"graph_orchestration",
		"safe_tool_engineering",
		"state_management_rigor",
		"structured_output_enforcement",
	}
}

// MentionsSecurityViolation reports whether argument names a security
// violation keyword.
func MentionsSecurityViolation(argument string) bool {
	lower := strings.ToLower(argument)
	for _, kw := range securityKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// round is round-half-to-even, matching the rounding used for every
// baseline and overall score.
func round(x float64) int {
	return int(math.RoundToEven(x))
}

func round2(x float64) float64 {
	return math.RoundToEven(x*100) / 100
}

func clamp(score int) int {
	if score < audit.MinScore {
		return audit.MinScore
	}
	if score > audit.MaxScore {
		return audit.MaxScore
	}
	return score
}

// baseline computes rule 1. scores holds one slot per persona in
// canonical order, with neutralScore substituted for missing personas.
func baseline(dimensionID string, scores [3]int, pragmatic *audit.Opinion) (int, bool) {
	mean := float64(scores[0]+scores[1]+scores[2]) / 3
	if IsArchitecture(dimensionID) && pragmatic != nil {
		return round(float64(pragmatic.Score)*0.5 + mean*0.5), true
	}
	return round(mean), false
}

// securityCapApplies is rule 2.
func securityCapApplies(adversarial *audit.Opinion) bool {
	return adversarial != nil &&
		adversarial.Score <= adversaryMax &&
		MentionsSecurityViolation(adversarial.Argument)
}

// evidenceOverrules is rule 3: every recorded item is not-found and the
// Generous score is high.
func evidenceOverrules(evidence []audit.Evidence, generous *audit.Opinion) bool {
	if len(evidence) == 0 || generous == nil || generous.Score < generousFloor {
		return false
	}
	for _, e := range evidence {
		if e.Found {
			return false
		}
	}
	return true
}

func excerpt(s string) string {
	r := []rune(s)
	if len(r) > excerptRunes {
		r = r[:excerptRunes]
	}
	return string(r)
}
