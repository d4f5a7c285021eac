// Package heuristic is the deterministic, offline backing model: an
// investigate.Interpreter that reads rubric signals off scan facts, and an
// assess.Judge that scores evidence summaries per persona. Its rules live
// in the embedded heuristics.yaml.
package heuristic

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed heuristics.yaml
var heuristicsYAML []byte

// Rules is the parsed heuristics.yaml.
type Rules struct {
	Interpret InterpretRules `yaml:"interpret"`
	Judge     JudgeRules     `yaml:"judge"`
}

type InterpretRules struct {
	SignalConfidence       float64 `yaml:"signal_confidence"`
	ConceptConfidence      float64 `yaml:"concept_confidence"`
	UnconfiguredConfidence float64 `yaml:"unconfigured_confidence"`
	ExcerptRunes           int     `yaml:"excerpt_runes"`
	RequiredDepth          string  `yaml:"required_depth"`
}

type JudgeRules struct {
	Baseline         Baseline                     `yaml:"baseline"`
	StrongConfidence float64                      `yaml:"strong_confidence"`
	SecurityMarkers  []string                     `yaml:"security_markers"`
	Arguments        map[string]ArgumentTemplates `yaml:"arguments"`
	Remediation      string                       `yaml:"remediation"`
}

type Baseline struct {
	AllFound   int `yaml:"all_found"`
	SomeFound  int `yaml:"some_found"`
	NoneFound  int `yaml:"none_found"`
	NoEvidence int `yaml:"no_evidence"`
}

// ArgumentTemplates hold the persona's argument per outcome. Placeholders
// {dimension}, {found} and {total} are substituted.
type ArgumentTemplates struct {
	Strong   string `yaml:"strong"`
	Partial  string `yaml:"partial"`
	None     string `yaml:"none"`
	Empty    string `yaml:"empty"`
	Security string `yaml:"security"`
}

// DefaultRules returns the embedded rules.
func DefaultRules() Rules {
	r, err := ParseRules(heuristicsYAML)
	if err != nil {
		panic(fmt.Sprintf("load heuristics.yaml: %v", err))
	}
	return r
}

// ParseRules decodes a heuristics document.
func ParseRules(data []byte) (Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Rules{}, fmt.Errorf("parse heuristics: %w", err)
	}
	for _, p := range []string{"Adversarial", "Generous", "Pragmatic"} {
		if _, ok := r.Judge.Arguments[p]; !ok {
			return Rules{}, fmt.Errorf("parse heuristics: no arguments for %s", p)
		}
	}
	return r, nil
}

func fill(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, 2*len(vars))
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
