// Package justice resolves assessor opinions into final verdicts with a
// fixed, ordered rule pipeline. Resolve is pure: identical inputs always
// produce byte-identical output.
package justice

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"auditor/internal/audit"
)

// Input is everything the resolver reads. It is never mutated.
type Input struct {
	Target     string
	Dimensions []audit.Dimension
	Opinions   []audit.Opinion
	Evidence   audit.EvidenceMap
}

// Ruling records how one dimension was resolved.
type Ruling struct {
	DimensionID       string
	Baseline          int
	Weighted          bool
	SecurityCapped    bool
	EvidenceOverruled bool
	Spread            int
	Dropped           []audit.Opinion
}

// Resolution is the resolver output. Omitted lists rubric dimensions
// that received no opinion and therefore have no verdict.
type Resolution struct {
	Report  audit.FinalReport
	Rulings []Ruling
	Omitted []string
}

// Resolve groups opinions by dimension id and resolves each group.
// Verdicts follow rubric order; opinions for ids outside the rubric come
// last, sorted by id.
func Resolve(in Input) Resolution {
	grouped := make(map[string][]audit.Opinion)
	for _, o := range in.Opinions {
		grouped[o.DimensionID] = append(grouped[o.DimensionID], o)
	}

	names := make(map[string]string, len(in.Dimensions))
	var order []string
	var omitted []string
	for _, d := range in.Dimensions {
		if _, seen := names[d.ID]; seen {
			continue
		}
		names[d.ID] = d.Name
		if len(grouped[d.ID]) == 0 {
			omitted = append(omitted, d.ID)
			continue
		}
		order = append(order, d.ID)
	}
	var extra []string
	for id := range grouped {
		if _, known := names[id]; !known {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	order = append(order, extra...)

	var res Resolution
	res.Omitted = omitted
	verdicts := make([]audit.CriterionVerdict, 0, len(order))
	for _, id := range order {
		name := names[id]
		if name == "" {
			name = id
		}
		v, r := ResolveDimension(id, name, grouped[id], in.Evidence[id])
		verdicts = append(verdicts, v)
		res.Rulings = append(res.Rulings, r)
	}

	overall := OverallScore(verdicts)
	res.Report = audit.FinalReport{
		Target:           in.Target,
		ExecutiveSummary: ExecutiveSummary(in.Target, overall, len(verdicts)),
		OverallScore:     overall,
		Criteria:         verdicts,
		RemediationPlan:  RemediationPlan(verdicts),
	}
	return res
}

// ResolveDimension applies the rules, in order, to one dimension's
// opinions: baseline, security cap, evidence supremacy, clamp, dissent,
// remediation.
func ResolveDimension(id, name string, opinions []audit.Opinion, evidence []audit.Evidence) (audit.CriterionVerdict, Ruling) {
	present, dropped := canonical(opinions)
	ruling := Ruling{DimensionID: id, Dropped: dropped}

	var byPersona [3]*audit.Opinion
	for i := range present {
		byPersona[present[i].Persona.Rank()] = &present[i]
	}
	var scores [3]int
	for i, o := range byPersona {
		scores[i] = neutralScore
		if o != nil {
			scores[i] = o.Score
		}
	}
	adversarial, generous, pragmatic := byPersona[0], byPersona[1], byPersona[2]

	score, weighted := baseline(id, scores, pragmatic)
	ruling.Baseline = score
	ruling.Weighted = weighted

	if securityCapApplies(adversarial) && score > securityCap {
		score = securityCap
		ruling.SecurityCapped = true
	}
	if evidenceOverrules(evidence, generous) && score > evidenceCap {
		score = evidenceCap
		ruling.EvidenceOverruled = true
	}
	final := clamp(score)

	ruling.Spread = spread(present)
	var dissent string
	if ruling.Spread > dissentSpread {
		dissent = dissentSummary(present, final)
	}

	remediation := RemediationFallback
	if pragmatic != nil {
		remediation = pragmatic.Argument
	}

	return audit.CriterionVerdict{
		DimensionID:   id,
		DimensionName: name,
		FinalScore:    final,
		Opinions:      present,
		Dissent:       dissent,
		Remediation:   remediation,
	}, ruling
}

// canonical orders opinions by persona rank and keeps one per persona.
// Opinions with unknown personas and later duplicates are dropped.
func canonical(opinions []audit.Opinion) (present, dropped []audit.Opinion) {
	sorted := make([]audit.Opinion, len(opinions))
	copy(sorted, opinions)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Persona.Rank() != b.Persona.Rank() {
			return a.Persona.Rank() < b.Persona.Rank()
		}
		if a.Score != b.Score {
			return a.Score < b.Score
		}
		if a.Argument != b.Argument {
			return a.Argument < b.Argument
		}
		return slices.Compare(a.CitedEvidence, b.CitedEvidence) < 0
	})

	var seen [3]bool
	for _, o := range sorted {
		rank := o.Persona.Rank()
		if rank < 0 || seen[rank] {
			dropped = append(dropped, o)
			continue
		}
		seen[rank] = true
		o.CitedEvidence = append([]string(nil), o.CitedEvidence...)
		present = append(present, o)
	}
	return present, dropped
}

func spread(present []audit.Opinion) int {
	if len(present) == 0 {
		return 0
	}
	lo, hi := present[0].Score, present[0].Score
	for _, o := range present[1:] {
		lo = min(lo, o.Score)
		hi = max(hi, o.Score)
	}
	return hi - lo
}

func dissentSummary(present []audit.Opinion, final int) string {
	lines := make([]string, 0, len(present)+1)
	for _, o := range present {
		lines = append(lines, fmt.Sprintf("- %s scored %d/5: %s...", o.Persona, o.Score, excerpt(o.Argument)))
	}
	lines = append(lines, fmt.Sprintf("\nChief Justice final ruling: %d/5", final))
	return strings.Join(lines, "\n")
}

// OverallScore is the mean final score rounded to two decimals, or 0
// when there are no verdicts.
func OverallScore(verdicts []audit.CriterionVerdict) float64 {
	if len(verdicts) == 0 {
		return 0
	}
	sum := 0
	for _, v := range verdicts {
		sum += v.FinalScore
	}
	return round2(float64(sum) / float64(len(verdicts)))
}

// NoRemediations is the plan text when every verdict scores 4 or more.
const NoRemediations = "No critical remediations required."

// RemediationPlan collects remediation notes for verdicts scoring below 4.
func RemediationPlan(verdicts []audit.CriterionVerdict) string {
	var items []string
	for _, v := range verdicts {
		if v.FinalScore < 4 {
			items = append(items, fmt.Sprintf("### %s (Score: %d/5)\n%s", v.DimensionName, v.FinalScore, v.Remediation))
		}
	}
	if len(items) == 0 {
		return NoRemediations
	}
	return strings.Join(items, "\n\n")
}

// ExecutiveSummary is the narrative opening of the report.
func ExecutiveSummary(target string, overall float64, criteria int) string {
	return fmt.Sprintf("Audit of %s completed. Overall score: %.2f/5 across %d criteria. "+
		"Final scores were resolved with fixed rules: confirmed security violations cap a criterion at 3, "+
		"generous scores unsupported by any found evidence are overruled to 2, and architecture criteria "+
		"weight the Pragmatic assessment at one half.", target, overall, criteria)
}
