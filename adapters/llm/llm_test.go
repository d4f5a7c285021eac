package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"auditor/internal/assess"
	"auditor/internal/audit"
	"auditor/internal/investigate"
	"auditor/internal/logging"
)

// stubGenerator replays canned replies and records prompts.
type stubGenerator struct {
	replies []string
	err     error
	systems []string
	prompts []string
}

func (s *stubGenerator) Generate(_ context.Context, system, prompt string) (string, error) {
	s.systems = append(s.systems, system)
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	if len(s.replies) == 0 {
		return "", ErrEmptyResponse
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r, nil
}

var dim = audit.Dimension{
	ID:             "graph_orchestration",
	Name:           "Graph Orchestration",
	TargetArtifact: audit.ArtifactRepo,
	Instruction:    "Check the graph wiring.",
	SuccessPattern: "Parallel fan-out with an aggregator.",
}

func TestCleanJSON(t *testing.T) {
	tests := []struct{ in, want string }{
		{`{"a":1}`, `{"a":1}`},
		{"  {\"a\":1}\n", `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```\n", `{"a":1}`},
		{"", ""},
	}
	for _, tt := range tests {
		if got := string(cleanJSON([]byte(tt.in))); got != tt.want {
			t.Errorf("cleanJSON(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestJudge(t *testing.T) {
	gen := &stubGenerator{replies: []string{"```json\n{\"score\": 4, \"argument\": \"solid\", \"cited_evidence\": [\"src/graph.py:20\"]}\n```"}}
	persona, _ := audit.ConfigFor(audit.Pragmatic)

	got, err := New(gen).Judge(context.Background(), persona, dim, "- [FOUND] graph\n  Location: src/graph.py:20")
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	want := audit.Opinion{
		Persona:       audit.Pragmatic,
		DimensionID:   "graph_orchestration",
		Score:         4,
		Argument:      "solid",
		CitedEvidence: []string{"src/graph.py:20"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("opinion mismatch (-want +got):\n%s", diff)
	}
	if !strings.HasPrefix(gen.systems[0], "You are the Tech Lead.") {
		t.Errorf("system = %q", gen.systems[0])
	}
	for _, want := range []string{"Graph Orchestration (graph_orchestration)", "Success pattern (score 5): Parallel fan-out", "- [FOUND] graph"} {
		if !strings.Contains(gen.prompts[0], want) {
			t.Errorf("prompt missing %q:\n%s", want, gen.prompts[0])
		}
	}
}

func TestJudge_BadReplies(t *testing.T) {
	persona, _ := audit.ConfigFor(audit.Adversarial)
	for _, reply := range []string{"I think it deserves a 4.", `{"argument": "no score"}`, "   "} {
		gen := &stubGenerator{replies: []string{reply}}
		if _, err := New(gen).Judge(context.Background(), persona, dim, "x"); err == nil {
			t.Errorf("reply %q: expected an error", reply)
		}
	}
	gen := &stubGenerator{err: errors.New("quota exceeded")}
	if _, err := New(gen).Judge(context.Background(), persona, dim, "x"); err == nil || !strings.Contains(err.Error(), "quota") {
		t.Errorf("err = %v", err)
	}
}

func TestInterpret(t *testing.T) {
	gen := &stubGenerator{replies: []string{
		`{"found": true, "content": "StateGraph(...)", "location": "src/graph.py:20", "rationale": "graph built", "confidence": 0.8}`,
		`{"found": false, "location": "report.md", "rationale": "no diagram", "confidence": 0.6}`,
	}}
	m := New(gen)

	ev, err := m.InterpretRepo(context.Background(), dim, investigate.RepoFacts{Files: []string{"src/graph.py"}})
	if err != nil {
		t.Fatalf("InterpretRepo: %v", err)
	}
	want := audit.Evidence{
		Goal:       "Graph Orchestration",
		Found:      true,
		Content:    "StateGraph(...)",
		Location:   "src/graph.py:20",
		Rationale:  "graph built",
		Confidence: 0.8,
	}
	if diff := cmp.Diff(want, ev); diff != "" {
		t.Errorf("evidence mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(gen.prompts[0], `"src/graph.py"`) {
		t.Error("facts were not included in the prompt")
	}

	ev, err = m.InterpretDoc(context.Background(), dim, investigate.DocFacts{Path: "report.md"})
	if err != nil || ev.Found || ev.Confidence != 0.6 {
		t.Errorf("InterpretDoc = %+v, %v", ev, err)
	}
}

func TestInterpret_MissingFields(t *testing.T) {
	gen := &stubGenerator{replies: []string{`{"location": "x", "rationale": "y"}`}}
	_, err := New(gen).InterpretRepo(context.Background(), dim, investigate.RepoFacts{})
	if err == nil {
		t.Fatal("expected an error for a reply without found/confidence")
	}
}

func TestModelThroughAssessor(t *testing.T) {
	gen := &stubGenerator{replies: []string{
		"Sure! Here is my verdict.",
		`{"score": 2, "argument": "edges are sequential", "cited_evidence": []}`,
	}}
	a, err := assess.New(audit.Adversarial, New(gen))
	if err != nil {
		t.Fatal(err)
	}
	op := a.WithLogger(logging.Discard()).Assess(context.Background(), dim, "summary")
	if op.Score != 2 || op.IsFallback() {
		t.Errorf("opinion = %+v, want the retried reply", op)
	}
	if len(gen.prompts) != 2 {
		t.Errorf("model calls = %d, want 2", len(gen.prompts))
	}
}

func TestNewGemini_RequiresKey(t *testing.T) {
	if _, err := NewGemini(context.Background(), "", ""); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("err = %v, want ErrNoAPIKey", err)
	}
}
