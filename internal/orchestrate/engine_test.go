package orchestrate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"auditor/internal/audit"
	"auditor/internal/logging"
	"auditor/internal/rubric"
	"auditor/pkg/framework"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubInvestigator struct {
	name  string
	calls atomic.Int32
	fn    func(ctx context.Context, snap audit.Snapshot) audit.EvidenceMap
}

func (s *stubInvestigator) Name() string { return s.name }

func (s *stubInvestigator) Investigate(ctx context.Context, snap audit.Snapshot) audit.EvidenceMap {
	s.calls.Add(1)
	return s.fn(ctx, snap)
}

type stubAssessor struct {
	persona audit.Persona
	calls   atomic.Int32
	score   func(dim audit.Dimension, summary string) int
	panicOn string
}

func (s *stubAssessor) Persona() audit.Persona { return s.persona }

func (s *stubAssessor) Assess(_ context.Context, dim audit.Dimension, summary string) audit.Opinion {
	s.calls.Add(1)
	if dim.ID == s.panicOn {
		panic("model exploded")
	}
	score := 3
	if s.score != nil {
		score = s.score(dim, summary)
	}
	// Persona and dimension are deliberately wrong: the engine must fix them.
	return audit.Opinion{Persona: "Bogus", DimensionID: "bogus", Score: score, Argument: string(s.persona) + " on " + dim.ID}
}

type fixture struct {
	repo, doc *stubInvestigator
	assessors []*stubAssessor
	trace     *framework.TraceCollector
	dims      []audit.Dimension
	logger    *slog.Logger
}

func newFixture() *fixture {
	f := &fixture{
		dims: []audit.Dimension{
			{ID: "graph_orchestration", Name: "Graph", TargetArtifact: audit.ArtifactRepo},
			{ID: "git_forensic_analysis", Name: "Git", TargetArtifact: audit.ArtifactRepo},
			{ID: "theoretical_depth", Name: "Theory", TargetArtifact: audit.ArtifactDocReport},
		},
		trace:  &framework.TraceCollector{},
		logger: logging.Discard(),
	}
	f.repo = &stubInvestigator{name: "repo", fn: func(_ context.Context, snap audit.Snapshot) audit.EvidenceMap {
		out := audit.EvidenceMap{}
		for _, d := range snap.DimensionsFor(func(t audit.ArtifactTag) bool { return t == audit.ArtifactRepo }) {
			out[d.ID] = []audit.Evidence{{Goal: d.Name, Found: true, Location: "src/graph.py", Confidence: 0.9}}
		}
		return out
	}}
	f.doc = &stubInvestigator{name: "doc", fn: func(_ context.Context, snap audit.Snapshot) audit.EvidenceMap {
		out := audit.EvidenceMap{}
		for _, d := range snap.DimensionsFor(audit.ArtifactTag.IsDocument) {
			out[d.ID] = []audit.Evidence{{Goal: d.Name, Found: false, Location: "report.md", Confidence: 0.4}}
		}
		return out
	}}
	for _, p := range audit.PersonaTags() {
		f.assessors = append(f.assessors, &stubAssessor{persona: p})
	}
	return f
}

func (f *fixture) engine(t *testing.T) *Engine {
	t.Helper()
	var assessors []Assessor
	for _, a := range f.assessors {
		assessors = append(assessors, a)
	}
	e, err := New(Config{
		Rubric:    rubric.Static{Rubric: &rubric.Rubric{Dimensions: f.dims}},
		Repo:      f.repo,
		Doc:       f.doc,
		Assessors: assessors,
		Observer:  f.trace,
		Logger:    f.logger,
		NewRunID:  func() string { return "run-1" },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func (f *fixture) assessorCalls() int32 {
	var n int32
	for _, a := range f.assessors {
		n += a.calls.Load()
	}
	return n
}

func TestEngine_CompletesRun(t *testing.T) {
	f := newFixture()
	res, err := f.engine(t).Run(context.Background(), "https://github.com/acme/agent", "report.md")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Halted || res.Report == nil {
		t.Fatalf("expected a report, got halted=%v reason=%q", res.Halted, res.Reason)
	}
	if res.Decision != DecisionJudge {
		t.Errorf("Decision = %s", res.Decision)
	}
	if len(res.Report.Criteria) > len(f.dims) {
		t.Errorf("%d verdicts for %d dimensions", len(res.Report.Criteria), len(f.dims))
	}
	for _, v := range res.Report.Criteria {
		if v.FinalScore < audit.MinScore || v.FinalScore > audit.MaxScore {
			t.Errorf("%s: score %d out of range", v.DimensionID, v.FinalScore)
		}
	}
	if len(res.Opinions) != 3*len(f.dims) {
		t.Errorf("expected %d opinions, got %d", 3*len(f.dims), len(res.Opinions))
	}
	for _, o := range res.Opinions {
		if !o.Persona.Valid() || o.DimensionID == "bogus" {
			t.Errorf("opinion not normalized: %+v", o)
		}
	}
	if res.Evidence.Count() != 3 {
		t.Errorf("expected union of 3 evidence items, got %d", res.Evidence.Count())
	}

	wantStages := []string{StageContext, StageAggregate, StageRoute, StageSynthesis}
	if diff := cmp.Diff(wantStages, f.trace.Stages()); diff != "" {
		t.Errorf("stage order mismatch (-want +got):\n%s", diff)
	}
	if n := len(f.trace.EventsOfType(framework.EventBarrierClosed)); n != 2 {
		t.Errorf("expected 2 barriers, got %d", n)
	}
	if n := len(f.trace.EventsOfType(framework.EventRunComplete)); n != 1 {
		t.Errorf("expected run_complete once, got %d", n)
	}
}

func TestEngine_CloneFailureHalts(t *testing.T) {
	f := newFixture()
	f.repo.fn = func(_ context.Context, snap audit.Snapshot) audit.EvidenceMap {
		return audit.EvidenceMap{audit.KeyCloneFailure: {{
			Goal: "Repository Clone", Location: snap.Target, Rationale: "Clone failed: 404", Confidence: 1,
		}}}
	}

	res, err := f.engine(t).Run(context.Background(), "https://github.com/acme/missing", "report.md")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Halted || res.Report != nil || res.Decision != DecisionError {
		t.Fatalf("expected halt without report, got %+v", res)
	}
	if res.Reason != "Clone failed: 404" {
		t.Errorf("Reason = %q", res.Reason)
	}
	if got := f.assessorCalls(); got != 0 {
		t.Errorf("assessors called %d times after clone failure", got)
	}
	// The doc branch still completed and its evidence was merged.
	if !res.Evidence.Has("theoretical_depth") {
		t.Error("doc evidence missing from halted run")
	}
	if len(f.trace.EventsOfType(framework.EventRunHalted)) != 1 {
		t.Error("expected run_halted event")
	}
	if diff := cmp.Diff([]string{StageContext, StageAggregate, StageRoute, StageError}, f.trace.Stages()); diff != "" {
		t.Errorf("stage order mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_DocFailureIsSoft(t *testing.T) {
	f := newFixture()
	f.doc.fn = func(_ context.Context, snap audit.Snapshot) audit.EvidenceMap {
		return audit.EvidenceMap{audit.KeyDocFailure: {{Goal: "Document Ingestion", Location: snap.DocPath, Confidence: 1}}}
	}

	res, err := f.engine(t).Run(context.Background(), "t", "missing.pdf")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Halted || res.Report == nil {
		t.Fatal("doc failure must not halt the run")
	}
	for _, key := range []string{audit.KeyDocFailure, "graph_orchestration", "git_forensic_analysis"} {
		if !res.Evidence.Has(key) {
			t.Errorf("evidence union missing %q", key)
		}
	}
	if len(res.Report.Criteria) != len(f.dims) {
		t.Errorf("judges should still rule on every dimension, got %d verdicts", len(res.Report.Criteria))
	}
}

func TestEngine_InvestigatorPanicBecomesSentinel(t *testing.T) {
	f := newFixture()
	f.repo.fn = func(context.Context, audit.Snapshot) audit.EvidenceMap { panic("git segfault") }

	res, err := f.engine(t).Run(context.Background(), "https://github.com/acme/agent", "report.md")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Halted {
		t.Fatal("a repo investigator fault is an acquisition failure")
	}
	items := res.Evidence[audit.KeyCloneFailure]
	if len(items) != 1 || items[0].Location != "https://github.com/acme/agent" || items[0].Confidence != 1 {
		t.Errorf("unexpected sentinel: %+v", items)
	}
	if n := len(f.trace.EventsOfType(framework.EventBranchFault)); n != 1 {
		t.Errorf("expected 1 branch fault, got %d", n)
	}
}

func TestEngine_AssessorPanicDegradesToFallback(t *testing.T) {
	f := newFixture()
	f.assessors[0].panicOn = "git_forensic_analysis"

	res, err := f.engine(t).Run(context.Background(), "t", "d")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Report == nil {
		t.Fatal("expected a report")
	}
	var fallbacks []string
	for _, o := range res.Opinions {
		if o.Persona == audit.Adversarial && o.IsFallback() {
			fallbacks = append(fallbacks, o.DimensionID)
		}
	}
	if diff := cmp.Diff([]string{"git_forensic_analysis", "theoretical_depth"}, fallbacks); diff != "" {
		t.Errorf("fallback opinions mismatch (-want +got):\n%s", diff)
	}
	if len(res.Opinions) != 9 {
		t.Errorf("expected 9 opinions, got %d", len(res.Opinions))
	}
}

func TestEngine_RubricFailureStopsBeforeStages(t *testing.T) {
	f := newFixture()
	f.dims = nil

	_, err := f.engine(t).Run(context.Background(), "t", "d")
	if !errors.Is(err, ErrRubric) || !errors.Is(err, rubric.ErrEmptyRubric) {
		t.Fatalf("got %v, want ErrRubric wrapping ErrEmptyRubric", err)
	}
	if f.repo.calls.Load() != 0 || f.doc.calls.Load() != 0 {
		t.Error("investigators ran despite rubric failure")
	}
}

func TestEngine_InvestigatorsRunConcurrently(t *testing.T) {
	f := newFixture()
	arrived := make(chan struct{}, 2)
	release := make(chan struct{})
	rendezvous := func(next func(context.Context, audit.Snapshot) audit.EvidenceMap) func(context.Context, audit.Snapshot) audit.EvidenceMap {
		return func(ctx context.Context, snap audit.Snapshot) audit.EvidenceMap {
			arrived <- struct{}{}
			<-release
			return next(ctx, snap)
		}
	}
	f.repo.fn = rendezvous(f.repo.fn)
	f.doc.fn = rendezvous(f.doc.fn)

	e := f.engine(t)
	done := make(chan *Result, 1)
	go func() {
		res, _ := e.Run(context.Background(), "t", "d")
		done <- res
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-arrived:
		case <-time.After(2 * time.Second):
			t.Fatal("investigators did not run concurrently")
		}
	}
	close(release)
	if res := <-done; res == nil || res.Report == nil {
		t.Fatal("run did not complete")
	}
}

func TestEngine_BranchesGetIndependentSnapshots(t *testing.T) {
	f := newFixture()
	inner := f.repo.fn
	f.repo.fn = func(ctx context.Context, snap audit.Snapshot) audit.EvidenceMap {
		out := inner(ctx, snap)
		snap.Dimensions[0].ID = "tampered"
		return out
	}

	res, err := f.engine(t).Run(context.Background(), "t", "d")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Dimensions[0].ID != "graph_orchestration" {
		t.Errorf("engine state tampered through snapshot: %s", res.Dimensions[0].ID)
	}
	for _, o := range res.Opinions {
		if o.DimensionID == "tampered" {
			t.Fatal("assessors saw another branch's mutation")
		}
	}
}

func TestEngine_ScoresFlowIntoResolver(t *testing.T) {
	f := newFixture()
	scores := map[audit.Persona]int{audit.Adversarial: 2, audit.Generous: 5, audit.Pragmatic: 3}
	for _, a := range f.assessors {
		s := scores[a.persona]
		a.score = func(audit.Dimension, string) int { return s }
	}

	res, err := f.engine(t).Run(context.Background(), "t", "d")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	byID := map[string]audit.CriterionVerdict{}
	for _, v := range res.Report.Criteria {
		byID[v.DimensionID] = v
	}
	// theoretical_depth: every item not found and Generous=5 -> capped at 2.
	if got := byID["theoretical_depth"].FinalScore; got != 2 {
		t.Errorf("theoretical_depth = %d, want 2", got)
	}
	// graph_orchestration: 0.5*3 + 0.5*3.33 = 3.17 -> 3, dissent spread 3.
	if v := byID["graph_orchestration"]; v.FinalScore != 3 || v.Dissent == "" {
		t.Errorf("graph_orchestration = %d dissent=%q", v.FinalScore, v.Dissent)
	}
}

func TestNew_Validation(t *testing.T) {
	repo := &stubInvestigator{name: "repo"}
	doc := &stubInvestigator{name: "doc"}
	prov := rubric.File("")

	cases := []struct {
		name      string
		assessors []Assessor
		want      error
	}{
		{"missing", []Assessor{&stubAssessor{persona: audit.Adversarial}}, ErrMissingAssessor},
		{"duplicate", []Assessor{
			&stubAssessor{persona: audit.Adversarial},
			&stubAssessor{persona: audit.Adversarial},
		}, ErrDuplicateAssessor},
		{"unknown", []Assessor{&stubAssessor{persona: "Judge"}}, ErrMissingAssessor},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(Config{Rubric: prov, Repo: repo, Doc: doc, Assessors: tc.assessors})
			if !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}
	if _, err := New(Config{Rubric: prov, Repo: repo}); !errors.Is(err, ErrNoInvestigator) {
		t.Errorf("got %v, want ErrNoInvestigator", err)
	}
}

type logRecord struct {
	Level     string `json:"level"`
	Msg       string `json:"msg"`
	Dimension string `json:"dimension"`
	Rationale string `json:"rationale"`
}

// captureLogs returns a logger writing JSON lines and a func decoding
// the records written so far.
func captureLogs(t *testing.T) (*slog.Logger, func() []logRecord) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logger, func() []logRecord {
		var out []logRecord
		dec := json.NewDecoder(bytes.NewReader(buf.Bytes()))
		for dec.More() {
			var r logRecord
			if err := dec.Decode(&r); err != nil {
				t.Fatalf("decode log line: %v", err)
			}
			out = append(out, r)
		}
		return out
	}
}

func warnings(records []logRecord, msg string) []logRecord {
	var out []logRecord
	for _, r := range records {
		if r.Level == "WARN" && r.Msg == msg {
			out = append(out, r)
		}
	}
	return out
}

func TestEngine_ErrorStageLogsZeroConfidenceEvidence(t *testing.T) {
	f := newFixture()
	logger, records := captureLogs(t)
	f.logger = logger
	f.repo.fn = func(_ context.Context, snap audit.Snapshot) audit.EvidenceMap {
		return audit.EvidenceMap{audit.KeyCloneFailure: {{
			Goal: "Repository Clone", Location: snap.Target, Rationale: "Clone failed: 404", Confidence: 1,
		}}}
	}
	f.doc.fn = func(context.Context, audit.Snapshot) audit.EvidenceMap {
		return audit.EvidenceMap{
			"theoretical_depth": {
				{Goal: "Depth", Location: audit.LocationParseError, Rationale: "interpreter returned prose", Confidence: 0},
				{Goal: "Depth", Location: "report.md", Rationale: "terms listed", Confidence: 0.6},
			},
			"report_accuracy": {
				{Goal: "Paths", Location: audit.LocationParseError, Rationale: "no paths parsed", Confidence: 0},
			},
		}
	}

	res, err := f.engine(t).Run(context.Background(), "https://github.com/acme/missing", "report.md")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Halted {
		t.Fatal("expected a halted run")
	}

	got := warnings(records(), "zero-confidence evidence")
	want := []logRecord{
		{Level: "WARN", Msg: "zero-confidence evidence", Dimension: "report_accuracy", Rationale: "no paths parsed"},
		{Level: "WARN", Msg: "zero-confidence evidence", Dimension: "theoretical_depth", Rationale: "interpreter returned prose"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("zero-confidence warnings mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_CompletedRunDoesNotLogErrorStage(t *testing.T) {
	f := newFixture()
	logger, records := captureLogs(t)
	f.logger = logger
	f.doc.fn = func(context.Context, audit.Snapshot) audit.EvidenceMap {
		return audit.EvidenceMap{"theoretical_depth": {{Goal: "Depth", Location: audit.LocationParseError, Confidence: 0}}}
	}

	if _, err := f.engine(t).Run(context.Background(), "t", "d"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := warnings(records(), "zero-confidence evidence"); len(got) != 0 {
		t.Errorf("error stage logged on a completed run: %+v", got)
	}
}

func TestSynthesize_LogsOmittedDimensions(t *testing.T) {
	logger, records := captureLogs(t)
	state := audit.NewRunState("run-1", "t", "d")
	dims := newFixture().dims
	if err := state.LoadContext(dims); err != nil {
		t.Fatal(err)
	}
	// No assessor ruled on theoretical_depth.
	for _, id := range []string{"graph_orchestration", "git_forensic_analysis"} {
		var patch []audit.Opinion
		for _, p := range audit.PersonaTags() {
			patch = append(patch, audit.Opinion{Persona: p, DimensionID: id, Score: 4, Argument: "ok"})
		}
		state.ApplyOpinions(patch)
	}

	res, err := synthesize(logger, state)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if diff := cmp.Diff([]string{"theoretical_depth"}, res.Omitted); diff != "" {
		t.Errorf("Omitted mismatch (-want +got):\n%s", diff)
	}
	if len(res.Report.Criteria) != 2 {
		t.Errorf("expected 2 verdicts, got %d", len(res.Report.Criteria))
	}
	got := warnings(records(), "dimension received no opinions, omitted from report")
	if len(got) != 1 || got[0].Dimension != "theoretical_depth" {
		t.Errorf("omission warnings = %+v", got)
	}
	if _, sealed := state.Report(); !sealed {
		t.Error("report not sealed into state")
	}
}
