package heuristic

import (
	"bufio"
	"context"
	"regexp"
	"strconv"
	"strings"

	"auditor/internal/assess"
	"auditor/internal/audit"
)

// Judge scores an evidence summary from a persona's point of view. It
// implements assess.Judge.
type Judge struct {
	rules JudgeRules
}

// NewJudge returns a judge using rules.
func NewJudge(rules Rules) *Judge {
	return &Judge{rules: rules.Judge}
}

var _ assess.Judge = (*Judge)(nil)

// tally is what a judge reads back from an evidence summary.
type tally struct {
	total, found, parseErrors int
	confidence               float64
	locations                []string
	security                 bool
}

var (
	headerRe     = regexp.MustCompile(`^- \[(FOUND|NOT FOUND)\] `)
	locationRe   = regexp.MustCompile(`^\s+Location: (.*)$`)
	confidenceRe = regexp.MustCompile(`^\s+Confidence: ([0-9.]+)$`)
)

func (j *Judge) read(summary string) tally {
	var t tally
	lower := strings.ToLower(summary)
	for _, m := range j.rules.SecurityMarkers {
		if strings.Contains(lower, strings.ToLower(m)) {
			t.security = true
			break
		}
	}
	sc := bufio.NewScanner(strings.NewReader(summary))
	for sc.Scan() {
		line := sc.Text()
		if m := headerRe.FindStringSubmatch(line); m != nil {
			t.total++
			if m[1] == "FOUND" {
				t.found++
			}
			continue
		}
		if m := locationRe.FindStringSubmatch(line); m != nil {
			loc := strings.TrimSpace(m[1])
			if loc == audit.LocationParseError {
				t.parseErrors++
			} else if loc != "" {
				t.locations = append(t.locations, loc)
			}
			continue
		}
		if m := confidenceRe.FindStringSubmatch(line); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				t.confidence += v
			}
		}
	}
	return t
}

// Judge implements assess.Judge.
func (j *Judge) Judge(_ context.Context, persona audit.PersonaConfig, dim audit.Dimension, summary string) (audit.Opinion, error) {
	t := j.read(summary)
	args := j.rules.Arguments[string(persona.Tag)]
	base := j.rules.Baseline

	var score int
	var tmpl string
	switch {
	case t.total == 0 || t.parseErrors == t.total:
		score, tmpl = base.NoEvidence, args.Empty
	case t.found == t.total:
		score, tmpl = base.AllFound, args.Strong
		if t.confidence/float64(t.total) >= j.rules.StrongConfidence {
			score++
		}
	case t.found > 0:
		score, tmpl = base.SomeFound, args.Partial
	default:
		score, tmpl = base.NoneFound, args.None
	}
	score = clamp(score + persona.Bias)

	if t.security {
		tmpl = args.Security
		if persona.Tag == audit.Adversarial {
			score = audit.MinScore
		}
	}

	name := dim.Name
	if name == "" {
		name = dim.ID
	}
	argument := fill(tmpl, map[string]string{
		"dimension": name,
		"found":     strconv.Itoa(t.found),
		"total":     strconv.Itoa(t.total),
	})
	if persona.Tag == audit.Pragmatic {
		remedy := dim.SuccessPattern
		if remedy == "" {
			remedy = dim.Instruction
		}
		if remedy != "" {
			argument += " " + fill(j.rules.Remediation, map[string]string{"remedy": remedy})
		}
	}

	cites := t.locations
	if cites == nil {
		cites = []string{}
	}
	return audit.Opinion{
		Persona:       persona.Tag,
		DimensionID:   dim.ID,
		Score:         score,
		Argument:      argument,
		CitedEvidence: cites,
	}, nil
}

func clamp(score int) int {
	return max(audit.MinScore, min(audit.MaxScore, score))
}
