// Package audit holds the records that flow through an audit run: rubric
// dimensions, investigator evidence, assessor opinions and the resolved
// verdicts, plus the RunState that the engine threads through the stages.
package audit

import (
	"fmt"
	"sort"
)

// ArtifactTag names which artifact a dimension is evaluated against.
type ArtifactTag string

const (
	ArtifactRepo      ArtifactTag = "github_repo"
	ArtifactDocReport ArtifactTag = "pdf_report"
	ArtifactDocImages ArtifactTag = "pdf_images"
)

// IsDocument reports whether the tag targets the report document.
func (a ArtifactTag) IsDocument() bool {
	return a == ArtifactDocReport || a == ArtifactDocImages
}

// Sentinel evidence keys. Either key replaces per-dimension data when an
// investigator could not acquire its artifact at all.
const (
	KeyCloneFailure = "clone_failure"
	KeyDocFailure   = "doc_failure"
)

// IsSentinelKey reports whether key is one of the reserved failure keys.
func IsSentinelKey(key string) bool {
	return key == KeyCloneFailure || key == KeyDocFailure
}

// Location tags for degraded records.
const (
	LocationParseError    = "parse_error"
	LocationAssessorError = "assessor_error"
)

// Dimension is one rubric criterion. Signals and Concepts are optional
// hints used by the offline interpreter.
type Dimension struct {
	ID             string      `json:"id" yaml:"id"`
	Name           string      `json:"name" yaml:"name"`
	TargetArtifact ArtifactTag `json:"target_artifact" yaml:"target_artifact"`
	Instruction    string      `json:"instruction" yaml:"instruction"`
	SuccessPattern string      `json:"success_pattern" yaml:"success_pattern"`
	FailurePattern string      `json:"failure_pattern" yaml:"failure_pattern"`
	Signals        []string    `json:"signals,omitempty" yaml:"signals,omitempty"`
	Concepts       []string    `json:"concepts,omitempty" yaml:"concepts,omitempty"`
}

// Evidence is a factual, non-evaluative finding about one dimension.
// An empty Content means no content was extracted.
type Evidence struct {
	Goal       string  `json:"goal"`
	Found      bool    `json:"found"`
	Content    string  `json:"content,omitempty"`
	Location   string  `json:"location"`
	Rationale  string  `json:"rationale"`
	Confidence float64 `json:"confidence"`
}

// Validate checks the confidence range.
func (e Evidence) Validate() error {
	if e.Confidence < 0 || e.Confidence > 1 {
		return fmt.Errorf("evidence %q: confidence %v outside [0,1]", e.Goal, e.Confidence)
	}
	return nil
}

// ParseFailure is the degraded record produced when an interpreter could
// not turn its facts into structured evidence.
func ParseFailure(goal string, err error) Evidence {
	return Evidence{
		Goal:       goal,
		Found:      false,
		Location:   LocationParseError,
		Rationale:  fmt.Sprintf("structured evidence could not be produced: %v", err),
		Confidence: 0,
	}
}

// EvidenceMap maps a dimension id (or sentinel key) to its findings.
type EvidenceMap map[string][]Evidence

// Clone returns a deep copy.
func (m EvidenceMap) Clone() EvidenceMap {
	if m == nil {
		return EvidenceMap{}
	}
	out := make(EvidenceMap, len(m))
	for k, v := range m {
		items := make([]Evidence, len(v))
		copy(items, v)
		out[k] = items
	}
	return out
}

// Count returns the total number of evidence items.
func (m EvidenceMap) Count() int {
	n := 0
	for _, v := range m {
		n += len(v)
	}
	return n
}

// Keys returns the map keys in sorted order.
func (m EvidenceMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether key is present.
func (m EvidenceMap) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// Persona tags the three assessor perspectives. The set is closed.
type Persona string

const (
	Adversarial Persona = "Adversarial"
	Generous    Persona = "Generous"
	Pragmatic   Persona = "Pragmatic"
)

// Opinion is one persona's scored judgment on one dimension.
type Opinion struct {
	Persona       Persona  `json:"judge"`
	DimensionID   string   `json:"criterion_id"`
	Score         int      `json:"score"`
	Argument      string   `json:"argument"`
	CitedEvidence []string `json:"cited_evidence"`
}

// Validate checks the persona tag and score range.
func (o Opinion) Validate() error {
	if !o.Persona.Valid() {
		return fmt.Errorf("opinion: unknown persona %q", o.Persona)
	}
	if o.Score < MinScore || o.Score > MaxScore {
		return fmt.Errorf("opinion %s/%s: score %d outside [%d,%d]", o.Persona, o.DimensionID, o.Score, MinScore, MaxScore)
	}
	return nil
}

// FallbackOpinion is the degraded opinion recorded when an assessor could
// not produce a structured one.
func FallbackOpinion(p Persona, dimensionID string, attempts int, err error) Opinion {
	return Opinion{
		Persona:       p,
		DimensionID:   dimensionID,
		Score:         MinScore,
		Argument:      fmt.Sprintf("Assessor failed to produce structured output after %d attempts: %v", attempts, err),
		CitedEvidence: []string{LocationAssessorError},
	}
}

// IsFallback reports whether o was produced by FallbackOpinion.
func (o Opinion) IsFallback() bool {
	return len(o.CitedEvidence) == 1 && o.CitedEvidence[0] == LocationAssessorError
}

// Score bounds shared by opinions and verdicts.
const (
	MinScore = 1
	MaxScore = 5
)

// CriterionVerdict is the resolved ruling for one dimension. An empty
// Dissent means no dissent was required.
type CriterionVerdict struct {
	DimensionID   string    `json:"dimension_id"`
	DimensionName string    `json:"dimension_name"`
	FinalScore    int       `json:"final_score"`
	Opinions      []Opinion `json:"judge_opinions"`
	Dissent       string    `json:"dissent_summary,omitempty"`
	Remediation   string    `json:"remediation"`
}

// FinalReport is the terminal output of a completed run.
type FinalReport struct {
	Target           string             `json:"repo_url"`
	ExecutiveSummary string             `json:"executive_summary"`
	OverallScore     float64            `json:"overall_score"`
	Criteria         []CriterionVerdict `json:"criteria"`
	RemediationPlan  string             `json:"remediation_plan"`
}
