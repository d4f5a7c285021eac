package audit

import "errors"

var (
	// ErrReportSealed is returned when a final report is set twice.
	ErrReportSealed = errors.New("audit: final report already set")

	// ErrDimensionsSealed is returned when dimensions are loaded twice.
	ErrDimensionsSealed = errors.New("audit: dimensions already loaded")
)

// MergeEvidence is the evidence field reducer: a key-wise union of patch
// into dst. Writers own disjoint keys; a collision (only expected on the
// sentinel keys) appends so no update is lost.
func MergeEvidence(dst, patch EvidenceMap) EvidenceMap {
	if dst == nil {
		dst = EvidenceMap{}
	}
	for k, items := range patch {
		merged := make([]Evidence, 0, len(dst[k])+len(items))
		merged = append(merged, dst[k]...)
		merged = append(merged, items...)
		dst[k] = merged
	}
	return dst
}

// AppendOpinions is the opinions field reducer.
func AppendOpinions(dst, patch []Opinion) []Opinion {
	return append(dst, patch...)
}

// RunState is the engine-owned record of a run. Only the engine holds a
// live RunState; branches work on Snapshots and return patches.
type RunState struct {
	RunID   string
	Target  string
	DocPath string

	dimensions []Dimension
	loaded     bool
	evidence   EvidenceMap
	opinions   []Opinion
	report     *FinalReport
}

// NewRunState creates an empty state for one run.
func NewRunState(runID, target, docPath string) *RunState {
	return &RunState{
		RunID:    runID,
		Target:   target,
		DocPath:  docPath,
		evidence: EvidenceMap{},
	}
}

// LoadContext records the rubric dimensions and resets evidence and
// opinions. Dimensions are write-once.
func (s *RunState) LoadContext(dims []Dimension) error {
	if s.loaded {
		return ErrDimensionsSealed
	}
	s.dimensions = cloneDimensions(dims)
	s.loaded = true
	s.evidence = EvidenceMap{}
	s.opinions = nil
	return nil
}

// ApplyEvidence merges an investigator patch.
func (s *RunState) ApplyEvidence(patch EvidenceMap) {
	s.evidence = MergeEvidence(s.evidence, patch)
}

// ApplyOpinions appends an assessor patch.
func (s *RunState) ApplyOpinions(patch []Opinion) {
	s.opinions = AppendOpinions(s.opinions, patch)
}

// SetReport stores the final report. It can be set only once.
func (s *RunState) SetReport(r FinalReport) error {
	if s.report != nil {
		return ErrReportSealed
	}
	cp := r
	cp.Criteria = cloneVerdicts(r.Criteria)
	s.report = &cp
	return nil
}

// Report returns a copy of the final report, if one was produced.
func (s *RunState) Report() (FinalReport, bool) {
	if s.report == nil {
		return FinalReport{}, false
	}
	cp := *s.report
	cp.Criteria = cloneVerdicts(s.report.Criteria)
	return cp, true
}

// Dimensions returns a copy of the loaded dimensions.
func (s *RunState) Dimensions() []Dimension { return cloneDimensions(s.dimensions) }

// Evidence returns a copy of the merged evidence.
func (s *RunState) Evidence() EvidenceMap { return s.evidence.Clone() }

// Opinions returns a copy of the collected opinions.
func (s *RunState) Opinions() []Opinion { return cloneOpinions(s.opinions) }

// Snapshot is an independent, read-only copy of a RunState.
type Snapshot struct {
	RunID      string
	Target     string
	DocPath    string
	Dimensions []Dimension
	Evidence   EvidenceMap
	Opinions   []Opinion
}

// Snapshot returns a deep copy that shares no mutable data with s.
func (s *RunState) Snapshot() Snapshot {
	return Snapshot{
		RunID:      s.RunID,
		Target:     s.Target,
		DocPath:    s.DocPath,
		Dimensions: s.Dimensions(),
		Evidence:   s.Evidence(),
		Opinions:   s.Opinions(),
	}
}

// DimensionsFor returns the dimensions whose target matches keep.
func (s Snapshot) DimensionsFor(keep func(ArtifactTag) bool) []Dimension {
	var out []Dimension
	for _, d := range s.Dimensions {
		if keep(d.TargetArtifact) {
			out = append(out, d)
		}
	}
	return out
}

func cloneDimensions(in []Dimension) []Dimension {
	if in == nil {
		return nil
	}
	out := make([]Dimension, len(in))
	for i, d := range in {
		d.Signals = append([]string(nil), d.Signals...)
		d.Concepts = append([]string(nil), d.Concepts...)
		out[i] = d
	}
	return out
}

func cloneOpinions(in []Opinion) []Opinion {
	if in == nil {
		return nil
	}
	out := make([]Opinion, len(in))
	for i, o := range in {
		o.CitedEvidence = append([]string(nil), o.CitedEvidence...)
		out[i] = o
	}
	return out
}

func cloneVerdicts(in []CriterionVerdict) []CriterionVerdict {
	if in == nil {
		return nil
	}
	out := make([]CriterionVerdict, len(in))
	for i, v := range in {
		v.Opinions = cloneOpinions(v.Opinions)
		out[i] = v
	}
	return out
}
