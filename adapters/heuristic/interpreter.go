package heuristic

import (
	"context"
	"fmt"
	"strings"

	"auditor/internal/audit"
	"auditor/internal/investigate"
)

// Interpreter evaluates a dimension's Signals and Concepts against scan
// facts. It implements investigate.Interpreter.
type Interpreter struct {
	rules InterpretRules
}

// NewInterpreter returns an interpreter using rules.
func NewInterpreter(rules Rules) *Interpreter {
	return &Interpreter{rules: rules.Interpret}
}

var _ investigate.Interpreter = (*Interpreter)(nil)

// InterpretRepo reports a repository dimension as found when every signal
// fires. Without signals it only records that the repository was read.
func (in *Interpreter) InterpretRepo(_ context.Context, dim audit.Dimension, facts investigate.RepoFacts) (audit.Evidence, error) {
	if len(dim.Signals) == 0 {
		return audit.Evidence{
			Goal:       dim.Name,
			Found:      len(facts.Files) > 0,
			Location:   facts.Target,
			Rationale:  fmt.Sprintf("no signals configured; %d files scanned", len(facts.Files)),
			Confidence: in.rules.UnconfiguredConfidence,
		}, nil
	}

	var parts, cites []string
	all := true
	for _, sig := range dim.Signals {
		fired, findings := facts.Signal(sig)
		all = all && fired
		parts = append(parts, describeSignal(sig, fired, findings, facts))
		for _, f := range findings {
			cites = append(cites, f.String())
		}
	}

	loc := facts.Target
	if len(cites) > 0 {
		loc = cites[0]
	}
	return audit.Evidence{
		Goal:       dim.Name,
		Found:      all,
		Content:    truncate(strings.Join(cites, ", "), in.rules.ExcerptRunes),
		Location:   loc,
		Rationale:  strings.Join(parts, "; "),
		Confidence: in.rules.SignalConfidence,
	}, nil
}

func describeSignal(sig string, fired bool, findings []investigate.Finding, facts investigate.RepoFacts) string {
	name := strings.TrimPrefix(sig, "!")
	// Report the raw presence, not the negated requirement.
	present := fired
	if name != sig {
		present = !fired
	}
	state := "absent"
	if present {
		state = "present"
	}
	switch name {
	case investigate.SignalAtomicHistory:
		return fmt.Sprintf("%s: %s (%d commits, %s)", name, state, facts.History.Count, facts.History.Pattern)
	case investigate.SignalPersonaSeparation:
		return fmt.Sprintf("%s: %s (%s)", name, state, strings.Join(facts.Code.Personas, ", "))
	}
	if len(findings) == 0 {
		return name + ": " + state
	}
	return fmt.Sprintf("%s: %s (%s %s)", name, state, findings[0], findings[0].Text)
}

// InterpretDoc reports a document dimension as found when every signal
// fires and, if concepts are configured, at least one is explained at the
// required depth.
func (in *Interpreter) InterpretDoc(_ context.Context, dim audit.Dimension, facts investigate.DocFacts) (audit.Evidence, error) {
	var parts []string
	found := true
	for _, sig := range dim.Signals {
		fired := facts.Signal(sig)
		found = found && fired
		parts = append(parts, fmt.Sprintf("%s: %t", sig, fired))
	}
	if sig := investigate.SignalPathsMentioned; contains(dim.Signals, sig) && len(facts.Missing) > 0 {
		parts = append(parts, "unverified paths: "+strings.Join(facts.Missing, ", "))
	}

	confidence := in.rules.SignalConfidence
	if len(dim.Concepts) > 0 {
		confidence = in.rules.ConceptConfidence
		deep := 0
		var states []string
		for _, c := range dim.Concepts {
			cd := facts.Concepts[c]
			depth := cd.Depth
			if depth == "" {
				depth = investigate.DepthAbsent
			}
			if depth == in.rules.RequiredDepth {
				deep++
			}
			states = append(states, c+": "+depth)
		}
		found = found && deep > 0
		parts = append(parts, fmt.Sprintf("concepts %d/%d %s (%s)", deep, len(dim.Concepts), in.rules.RequiredDepth, strings.Join(states, ", ")))
	}
	if len(dim.Signals) == 0 && len(dim.Concepts) == 0 {
		found = len(facts.Excerpts) > 0
		confidence = in.rules.UnconfiguredConfidence
		parts = append(parts, fmt.Sprintf("no signals configured; %d words read", facts.Words))
	}

	content := ""
	if len(facts.Excerpts) > 0 {
		content = truncate(facts.Excerpts[0], in.rules.ExcerptRunes)
	}
	return audit.Evidence{
		Goal:       dim.Name,
		Found:      found,
		Content:    content,
		Location:   facts.Path,
		Rationale:  strings.Join(parts, "; "),
		Confidence: confidence,
	}, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
