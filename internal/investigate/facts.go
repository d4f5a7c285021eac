// Package investigate gathers factual evidence about the audit target: the
// repository (clone, history, file list, code structure) and the report
// document (text, retrieval, path mentions, concept depth). Interpretation
// of those facts into per-dimension Evidence is delegated to an Interpreter.
package investigate

import (
	"context"
	"strings"

	"auditor/internal/audit"
)

// RepoFacts is everything the repository scan observed.
type RepoFacts struct {
	Target  string    `json:"target"`
	Local   bool      `json:"local"`
	Files   []string  `json:"files"`
	History History   `json:"history"`
	Code    CodeFacts `json:"code"`
}

// Signal evaluates one rubric signal against the repository facts. A
// leading "!" negates it. The returned findings support the answer.
func (f RepoFacts) Signal(name string) (bool, []Finding) {
	if neg, ok := strings.CutPrefix(name, "!"); ok {
		fired, findings := f.Signal(neg)
		return !fired, findings
	}
	if name == SignalAtomicHistory {
		return f.History.Pattern == PatternAtomic, nil
	}
	return f.Code.Signal(name)
}

// DocFacts is everything the document scan observed, with the excerpts
// most relevant to the dimension being interpreted.
type DocFacts struct {
	Path     string                  `json:"path"`
	Format   string                  `json:"format"`
	Words    int                     `json:"words"`
	Chunks   int                     `json:"chunks"`
	Excerpts []string                `json:"relevant_excerpts"`
	Paths    []string                `json:"file_paths_mentioned"`
	Verified []string                `json:"verified_paths,omitempty"`
	Missing  []string                `json:"missing_paths,omitempty"`
	Concepts map[string]ConceptDepth `json:"concept_depth"`
	Diagrams []string                `json:"diagram_mentions,omitempty"`
}

// Doc signal names.
const (
	SignalPathsMentioned   = "paths_mentioned"
	SignalDiagramReference = "diagram_reference"
)

// Signal evaluates one rubric signal against the document facts.
func (f DocFacts) Signal(name string) bool {
	if neg, ok := strings.CutPrefix(name, "!"); ok {
		return !f.Signal(neg)
	}
	switch name {
	case SignalPathsMentioned:
		return len(f.Paths) > 0 && len(f.Missing) == 0
	case SignalDiagramReference:
		return len(f.Diagrams) > 0
	}
	return false
}

// Interpreter turns facts into one Evidence record for a dimension. A
// returned error is recorded as a parse_error Evidence by the caller.
type Interpreter interface {
	InterpretRepo(ctx context.Context, dim audit.Dimension, facts RepoFacts) (audit.Evidence, error)
	InterpretDoc(ctx context.Context, dim audit.Dimension, facts DocFacts) (audit.Evidence, error)
}

// interpret calls fn and converts failures into the degraded record. The
// goal always names the dimension.
func interpret(dim audit.Dimension, fn func() (audit.Evidence, error)) (ev audit.Evidence) {
	goal := dim.Name
	if goal == "" {
		goal = dim.ID
	}
	defer func() {
		if r := recover(); r != nil {
			ev = audit.ParseFailure(goal, panicError{r})
		}
	}()
	ev, err := fn()
	if err == nil {
		err = ev.Validate()
	}
	if err != nil {
		return audit.ParseFailure(goal, err)
	}
	if ev.Goal == "" {
		ev.Goal = goal
	}
	return ev
}

type panicError struct{ v any }

func (p panicError) Error() string { return "interpreter panic: " + stringify(p.v) }

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case error:
		return x.Error()
	}
	return "unknown"
}
