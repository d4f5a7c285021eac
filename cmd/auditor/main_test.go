package main

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

type cliResult struct {
	code   int
	stdout string
	stderr string
}

func run(t *testing.T, args ...string) cliResult {
	t.Helper()
	var out, errOut bytes.Buffer
	code := execute(args, &out, &errOut)
	return cliResult{code: code, stdout: out.String(), stderr: errOut.String()}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

// fixture lays out a small local repository and a Markdown report.
func fixture(t *testing.T) (repo, doc, db, out string) {
	t.Helper()
	dir := t.TempDir()
	repo = filepath.Join(dir, "repo")
	writeFile(t, filepath.Join(repo, "src", "graph.py"), "from langgraph.graph import StateGraph\n\nbuilder = StateGraph(dict)\nbuilder.add_edge(\"a\", \"b\")\n")
	doc = filepath.Join(dir, "report.md")
	writeFile(t, doc, "# Report\n\nDialectical Synthesis via three judges. See src/graph.py.\n")
	return repo, doc, filepath.Join(dir, "auditor.db"), filepath.Join(dir, "out")
}

var overallRe = regexp.MustCompile(`Overall Score: \d\.\d\d/5`)

func TestRubricBuiltin(t *testing.T) {
	res := run(t, "rubric")
	if res.code != exitOK {
		t.Fatalf("exit %d: %s", res.code, res.stderr)
	}
	for _, want := range []string{"git_forensic_analysis", "graph_orchestration", "Rubric builtin"} {
		if !strings.Contains(res.stdout, want) {
			t.Errorf("output missing %q:\n%s", want, res.stdout)
		}
	}
}

func TestRubricInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rubric.yaml")
	writeFile(t, path, "dimensions:\n  - id: a\n    name: A\n    target_artifact: github_repo\n  - id: a\n    name: Again\n    target_artifact: github_repo\n")
	if res := run(t, "rubric", path); res.code != exitFailed {
		t.Errorf("duplicate ids: exit %d, want %d", res.code, exitFailed)
	}
	if res := run(t, "rubric", filepath.Join(t.TempDir(), "absent.yaml")); res.code != exitFailed {
		t.Errorf("missing file: exit %d, want %d", res.code, exitFailed)
	}
}

func TestAuditCompletes(t *testing.T) {
	repo, doc, db, out := fixture(t)
	res := run(t, "audit", repo, "--doc", doc, "--allow-local", "--db", db, "--out", out, "--format", "markdown,json")
	if res.code != exitOK {
		t.Fatalf("exit %d\nstdout:\n%s\nstderr:\n%s", res.code, res.stdout, res.stderr)
	}
	if !overallRe.MatchString(res.stdout) {
		t.Errorf("missing overall score line:\n%s", res.stdout)
	}
	for _, name := range []string{"audit_report.md", "audit_report.json"} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}

	hist := run(t, "history", "--db", db)
	if hist.code != exitOK {
		t.Fatalf("history exit %d: %s", hist.code, hist.stderr)
	}
	if !strings.Contains(hist.stdout, "completed") {
		t.Errorf("history does not list the run:\n%s", hist.stdout)
	}
}

func TestAuditHalts(t *testing.T) {
	_, doc, db, out := fixture(t)
	res := run(t, "audit", "https://example.org/acme/agent", "--doc", doc, "--db", db, "--out", out)
	if res.code != exitHalted {
		t.Fatalf("exit %d, want %d\n%s%s", res.code, exitHalted, res.stdout, res.stderr)
	}
	if !strings.Contains(res.stdout, "Audit halted") {
		t.Errorf("missing halt message:\n%s", res.stdout)
	}
	if overallRe.MatchString(res.stdout) {
		t.Error("halted run printed an overall score")
	}
	if _, err := os.Stat(filepath.Join(out, "audit_report.md")); err == nil {
		t.Error("halted run wrote a report")
	}
}

func TestAuditRequiresDoc(t *testing.T) {
	if res := run(t, "audit", "https://github.com/acme/agent"); res.code != exitFailed {
		t.Errorf("exit %d, want %d", res.code, exitFailed)
	}
}

func TestAuditInvalidConfig(t *testing.T) {
	repo, doc, db, _ := fixture(t)
	cfg := filepath.Join(t.TempDir(), "auditor.yaml")
	writeFile(t, cfg, "adapter: oracle\n")
	res := run(t, "audit", repo, "--doc", doc, "--allow-local", "--db", db, "--config", cfg)
	if res.code != exitFailed {
		t.Errorf("exit %d, want %d", res.code, exitFailed)
	}
	if !strings.Contains(res.stderr, "unknown adapter") {
		t.Errorf("stderr = %q", res.stderr)
	}
}

func TestAuditFlagOverridesConfig(t *testing.T) {
	repo, doc, db, out := fixture(t)
	cfg := filepath.Join(t.TempDir(), "auditor.yaml")
	writeFile(t, cfg, "adapter: oracle\n")
	res := run(t, "audit", repo, "--doc", doc, "--allow-local", "--db", db, "--out", out, "--format", "markdown", "--config", cfg, "--adapter", "heuristic")
	if res.code != exitOK {
		t.Fatalf("exit %d: %s", res.code, res.stderr)
	}
}

func TestResolve(t *testing.T) {
	input := filepath.Join(t.TempDir(), "opinions.json")
	writeFile(t, input, `{
  "target": "https://github.com/acme/agent",
  "dimensions": [{"id": "graph_orchestration", "name": "Graph Orchestration", "target_artifact": "github_repo"}],
  "opinions": [
    {"judge": "Adversarial", "criterion_id": "graph_orchestration", "score": 3, "argument": "Adequate.", "cited_evidence": []},
    {"judge": "Generous", "criterion_id": "graph_orchestration", "score": 4, "argument": "Good.", "cited_evidence": []},
    {"judge": "Pragmatic", "criterion_id": "graph_orchestration", "score": 4, "argument": "Works.", "cited_evidence": []}
  ],
  "evidence": {}
}`)
	res := run(t, "resolve", "-f", input, "--explain")
	if res.code != exitOK {
		t.Fatalf("exit %d: %s", res.code, res.stderr)
	}
	for _, want := range []string{"Graph Orchestration", "graph_orchestration: baseline", "Overall Score: "} {
		if !strings.Contains(res.stdout, want) {
			t.Errorf("output missing %q:\n%s", want, res.stdout)
		}
	}

	res = run(t, "resolve", "-f", input, "--json")
	if res.code != exitOK || !strings.Contains(res.stdout, `"repo_url"`) {
		t.Errorf("json output: exit %d\n%s", res.code, res.stdout)
	}
}

func TestResolveRejectsInvalidOpinions(t *testing.T) {
	input := filepath.Join(t.TempDir(), "opinions.json")
	writeFile(t, input, `{
  "target": "https://github.com/acme/agent",
  "dimensions": [{"id": "graph_orchestration", "name": "Graph Orchestration", "target_artifact": "github_repo"}],
  "opinions": [
    {"judge": "Adversarial", "criterion_id": "graph_orchestration", "score": -7, "argument": "No.", "cited_evidence": []},
    {"judge": "Generous", "criterion_id": "graph_orchestration", "score": 42, "argument": "Yes.", "cited_evidence": []},
    {"judge": "Pragmatic", "criterion_id": "graph_orchestration", "score": 0, "argument": "Maybe.", "cited_evidence": []}
  ],
  "evidence": {}
}`)
	res := run(t, "resolve", "-f", input)
	if res.code != exitFailed {
		t.Fatalf("exit %d, want %d\n%s", res.code, exitFailed, res.stdout)
	}
	if !strings.Contains(res.stderr, "outside [1,5]") {
		t.Errorf("stderr = %q", res.stderr)
	}
	if strings.Contains(res.stdout, "Overall Score") {
		t.Error("rejected input still printed a score")
	}
}

func TestHistoryUnknownRun(t *testing.T) {
	db := filepath.Join(t.TempDir(), "auditor.db")
	if res := run(t, "history", "missing-run", "--db", db); res.code != exitFailed {
		t.Errorf("exit %d, want %d", res.code, exitFailed)
	}
	res := run(t, "history", "--db", db)
	if res.code != exitOK || !strings.Contains(res.stdout, "No archived runs") {
		t.Errorf("empty history: exit %d\n%s", res.code, res.stdout)
	}
}
