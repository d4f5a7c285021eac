package wiring

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"auditor/internal/audit"
	"auditor/internal/config"
	"auditor/internal/logging"
	"auditor/internal/orchestrate"
	"auditor/internal/rubric"
	"auditor/internal/store"
	"auditor/pkg/framework"
)

const graphSource = `from typing import Annotated, TypedDict
import operator
import tempfile
import subprocess

from langgraph.graph import StateGraph


class AgentState(TypedDict):
    evidences: Annotated[dict, operator.ior]
    opinions: Annotated[list, operator.add]


def clone(url):
    with tempfile.TemporaryDirectory() as tmp:
        subprocess.run(["git", "clone", url, tmp], check=True)


builder = StateGraph(AgentState)
builder.add_edge("start", "repo_investigator")
builder.add_edge("start", "doc_analyst")
builder.add_edge("repo_investigator", "evidence_aggregator")
builder.add_edge("doc_analyst", "evidence_aggregator")
`

const reportDoc = `# Architecture Report

We use Dialectical Synthesis across three judges and Fan-In / Fan-Out for the
detectives. The Metacognition layer reviews the judges.

See src/graph.py for the StateGraph wiring.

![flow diagram](diagram.png)
`

func writeFixture(root, rel, body string) {
	path := filepath.Join(root, rel)
	gomega.Expect(os.MkdirAll(filepath.Dir(path), 0o755)).To(gomega.Succeed())
	gomega.Expect(os.WriteFile(path, []byte(body), 0o644)).To(gomega.Succeed())
}

func testConfig(out string) config.Config {
	cfg := config.Default()
	cfg.AllowLocal = true
	cfg.OutputDir = out
	cfg.Formats = []string{"markdown", "json"}
	return cfg
}

var _ = ginkgo.Describe("Audit", func() {
	var (
		ctx   context.Context
		cfg   config.Config
		deps  Deps
		mem   *store.MemStore
		trace *framework.TraceCollector
		repo  string
		doc   string
		out   string
	)

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		tmp := ginkgo.GinkgoT().TempDir()
		repo = filepath.Join(tmp, "repo")
		out = filepath.Join(tmp, "out")
		writeFixture(repo, "src/graph.py", graphSource)
		doc = filepath.Join(tmp, "report.md")
		writeFixture(tmp, "report.md", reportDoc)

		cfg = testConfig(out)
		model, err := NewModel(ctx, cfg)
		gomega.Expect(err).To(gomega.Succeed())
		mem = store.NewMemStore()
		trace = &framework.TraceCollector{}
		deps = Deps{
			Model:    model,
			Store:    mem,
			Observer: trace,
			Logger:   logging.Discard(),
			Now:      func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) },
		}
	})

	// BDD: Given a local repository and a Markdown report, When the audit runs, Then a report is written and archived.
	ginkgo.It("completes, writes reports and archives verdicts", func() {
		outcome, err := Audit(ctx, cfg, deps, repo, doc)
		gomega.Expect(err).To(gomega.Succeed())
		gomega.Expect(outcome.Completed()).To(gomega.BeTrue())
		gomega.Expect(outcome.Result.Halted).To(gomega.BeFalse())

		r, err := rubric.Default()
		gomega.Expect(err).To(gomega.Succeed())
		gomega.Expect(outcome.Result.Report.Criteria).To(gomega.HaveLen(len(r.Ordered())))
		score := outcome.Result.Report.OverallScore
		gomega.Expect(score).To(gomega.BeNumerically(">=", 1))
		gomega.Expect(score).To(gomega.BeNumerically("<=", 5))

		md, err := os.ReadFile(filepath.Join(out, "audit_report.md"))
		gomega.Expect(err).To(gomega.Succeed())
		gomega.Expect(string(md)).To(gomega.ContainSubstring("## Executive Summary"))
		gomega.Expect(string(md)).To(gomega.ContainSubstring(outcome.Artifact.Digest))
		gomega.Expect(filepath.Join(out, "audit_report.json")).To(gomega.BeARegularFile())

		for _, e := range outcome.Emitted {
			gomega.Expect(e.Err).NotTo(gomega.HaveOccurred(), e.Sink)
		}

		gomega.Expect(outcome.Archived).To(gomega.BeTrue())
		run, err := mem.GetRun(ctx, outcome.Result.RunID)
		gomega.Expect(err).To(gomega.Succeed())
		gomega.Expect(run.Status).To(gomega.Equal(store.StatusCompleted))
		gomega.Expect(run.Digest).To(gomega.Equal(outcome.Artifact.Digest))
		gomega.Expect(run.Verdicts).To(gomega.HaveLen(len(outcome.Result.Report.Criteria)))
	})

	// BDD: Given the same inputs twice, When both audits run, Then the report digests match.
	ginkgo.It("produces identical digests for identical inputs", func() {
		first, err := Audit(ctx, cfg, deps, repo, doc)
		gomega.Expect(err).To(gomega.Succeed())
		second, err := Audit(ctx, cfg, deps, repo, doc)
		gomega.Expect(err).To(gomega.Succeed())
		gomega.Expect(second.Result.RunID).NotTo(gomega.Equal(first.Result.RunID))
		gomega.Expect(second.Artifact.Digest).To(gomega.Equal(first.Artifact.Digest))
	})

	// BDD: Given a target on a host outside the allowlist, When the audit runs, Then it halts without a report.
	ginkgo.It("halts on acquisition failure and archives the halt", func() {
		outcome, err := Audit(ctx, cfg, deps, "https://example.org/acme/agent", doc)
		gomega.Expect(err).To(gomega.Succeed())
		gomega.Expect(outcome.Completed()).To(gomega.BeFalse())
		gomega.Expect(outcome.Result.Halted).To(gomega.BeTrue())
		gomega.Expect(outcome.Result.Decision).To(gomega.Equal(orchestrate.DecisionError))
		gomega.Expect(outcome.Emitted).To(gomega.BeEmpty())
		gomega.Expect(filepath.Join(out, "audit_report.md")).NotTo(gomega.BeAnExistingFile())

		runs, err := mem.ListRuns(ctx, store.Filter{Status: store.StatusHalted})
		gomega.Expect(err).To(gomega.Succeed())
		gomega.Expect(runs).To(gomega.HaveLen(1))
		gomega.Expect(runs[0].Reason).NotTo(gomega.BeEmpty())

		var halted bool
		for _, e := range trace.Events() {
			if e.Type == framework.EventRunHalted {
				halted = true
			}
		}
		gomega.Expect(halted).To(gomega.BeTrue())
	})

	// BDD: Given an unreadable rubric path, When the audit runs, Then it fails before any stage.
	ginkgo.It("fails on a missing rubric", func() {
		cfg.Rubric = filepath.Join(out, "absent.yaml")
		_, err := Audit(ctx, cfg, deps, repo, doc)
		gomega.Expect(err).To(gomega.HaveOccurred())
		runs, _ := mem.ListRuns(ctx, store.Filter{})
		gomega.Expect(runs).To(gomega.BeEmpty())
	})

	// BDD: Given no backing model, When the engine is built, Then construction fails.
	ginkgo.It("requires a backing model", func() {
		deps.Model = nil
		_, err := NewEngine(cfg, deps)
		gomega.Expect(err).To(gomega.HaveOccurred())
	})
})

var _ = ginkgo.Describe("NewModel", func() {
	ginkgo.It("rejects an llm adapter without a key", func() {
		cfg := config.Default()
		cfg.Adapter = config.AdapterLLM
		_, err := NewModel(context.Background(), cfg)
		gomega.Expect(err).To(gomega.HaveOccurred())
	})

	ginkgo.It("rejects unknown adapters", func() {
		cfg := config.Default()
		cfg.Adapter = "oracle"
		_, err := NewModel(context.Background(), cfg)
		gomega.Expect(err).To(gomega.MatchError(config.ErrInvalid))
	})
})

var _ = ginkgo.Describe("Resolve", func() {
	// BDD: Given opinions and evidence as JSON, When resolved, Then verdicts follow the rubric and score the dimension.
	ginkgo.It("resolves opinions without running investigators", func() {
		body := `{
  "target": "https://github.com/acme/agent",
  "dimensions": [{"id": "graph_orchestration", "name": "Graph Orchestration", "target_artifact": "github_repo"}],
  "opinions": [
    {"judge": "Adversarial", "criterion_id": "graph_orchestration", "score": 2, "argument": "Linear.", "cited_evidence": []},
    {"judge": "Generous", "criterion_id": "graph_orchestration", "score": 4, "argument": "Fan-out exists.", "cited_evidence": []},
    {"judge": "Pragmatic", "criterion_id": "graph_orchestration", "score": 3, "argument": "Works.", "cited_evidence": []}
  ],
  "evidence": {}
}`
		req, err := DecodeResolveRequest(strings.NewReader(body))
		gomega.Expect(err).To(gomega.Succeed())
		res, err := Resolve(config.Default(), req)
		gomega.Expect(err).To(gomega.Succeed())
		gomega.Expect(res.Report.Criteria).To(gomega.HaveLen(1))
		gomega.Expect(res.Report.Criteria[0].DimensionID).To(gomega.Equal("graph_orchestration"))
		gomega.Expect(res.Report.Criteria[0].FinalScore).To(gomega.BeNumerically(">=", 1))
	})

	ginkgo.It("falls back to the configured rubric", func() {
		res, err := Resolve(config.Default(), ResolveRequest{Target: "t"})
		gomega.Expect(err).To(gomega.Succeed())
		gomega.Expect(res.Omitted).NotTo(gomega.BeEmpty())
		gomega.Expect(res.Report.Criteria).To(gomega.BeEmpty())
	})

	// BDD: Given opinions scored outside 1..5, When resolved, Then the request is rejected before any rule runs.
	ginkgo.It("rejects out-of-range scores and unknown personas", func() {
		req := ResolveRequest{
			Target:     "t",
			Dimensions: []audit.Dimension{{ID: "graph_orchestration", Name: "Graph Orchestration", TargetArtifact: audit.ArtifactRepo}},
			Opinions: []audit.Opinion{
				{Persona: audit.Adversarial, DimensionID: "graph_orchestration", Score: -7},
				{Persona: audit.Generous, DimensionID: "graph_orchestration", Score: 42},
				{Persona: "Bailiff", DimensionID: "graph_orchestration", Score: 3},
			},
		}
		_, err := Resolve(config.Default(), req)
		gomega.Expect(err).To(gomega.MatchError(ErrInvalidRequest))
		gomega.Expect(err.Error()).To(gomega.ContainSubstring("opinions[0]"))
		gomega.Expect(err.Error()).To(gomega.ContainSubstring("opinions[1]"))
		gomega.Expect(err.Error()).To(gomega.ContainSubstring("Bailiff"))
	})

	ginkgo.It("rejects evidence confidence outside 0..1", func() {
		req := ResolveRequest{
			Target: "t",
			Evidence: audit.EvidenceMap{
				"graph_orchestration": {{Goal: "StateGraph", Found: true, Confidence: 1.5}},
			},
		}
		_, err := Resolve(config.Default(), req)
		gomega.Expect(err).To(gomega.MatchError(ErrInvalidRequest))
		gomega.Expect(err.Error()).To(gomega.ContainSubstring("evidence[graph_orchestration][0]"))
	})

	ginkgo.It("rejects supplied dimensions that are not a valid rubric", func() {
		req := ResolveRequest{
			Target: "t",
			Dimensions: []audit.Dimension{
				{ID: "a", Name: "A", TargetArtifact: audit.ArtifactRepo},
				{ID: "a", Name: "Again", TargetArtifact: audit.ArtifactRepo},
			},
		}
		_, err := Resolve(config.Default(), req)
		gomega.Expect(err).To(gomega.MatchError(ErrInvalidRequest))
		gomega.Expect(err).To(gomega.MatchError(rubric.ErrDuplicateID))
	})

	ginkgo.It("rejects unknown fields", func() {
		_, err := DecodeResolveRequest(strings.NewReader(`{"verdicts": []}`))
		gomega.Expect(err).To(gomega.HaveOccurred())
	})
})

var _ = ginkgo.Describe("RunRecord", func() {
	ginkgo.It("records halted runs without verdicts", func() {
		res := &orchestrate.Result{RunID: "r1", Target: "t", Halted: true, Reason: "clone failed"}
		run := RunRecord(res, nil)
		gomega.Expect(run.Status).To(gomega.Equal(store.StatusHalted))
		gomega.Expect(run.Reason).To(gomega.Equal("clone failed"))
		gomega.Expect(run.Verdicts).To(gomega.BeEmpty())
	})

	ginkgo.It("records completed runs with the report JSON", func() {
		rep := &audit.FinalReport{Target: "t", OverallScore: 4, Criteria: []audit.CriterionVerdict{{DimensionID: "d", FinalScore: 4}}}
		res := &orchestrate.Result{RunID: "r2", Target: "t", Report: rep}
		run := RunRecord(res, nil)
		gomega.Expect(run.Status).To(gomega.Equal(store.StatusCompleted))
		gomega.Expect(run.OverallScore).To(gomega.Equal(4.0))
		gomega.Expect(run.Verdicts).To(gomega.HaveLen(1))
		gomega.Expect(run.Report).To(gomega.BeEmpty())
		gomega.Expect(run.Digest).To(gomega.BeEmpty())
	})
})
