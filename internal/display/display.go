// Package display provides human-readable names for machine codes.
//
// Rule: code is for machines, words are for humans.
// Use these functions in CLI output, markdown reports and logs.
// Keep raw codes for JSON fields, map keys and equality comparisons.
package display

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"auditor/internal/audit"
)

// --- Personas ---

// Persona returns "Prosecutor (Adversarial)" for a persona tag. Unknown
// tags are returned as-is.
func Persona(p audit.Persona) string {
	if cfg, ok := audit.ConfigFor(p); ok {
		return cfg.Title + " (" + string(p) + ")"
	}
	return string(p)
}

// PersonaTitle returns the courtroom title alone, "Defense" for Generous.
func PersonaTitle(p audit.Persona) string {
	if cfg, ok := audit.ConfigFor(p); ok {
		return cfg.Title
	}
	return string(p)
}

// --- Artifacts ---

var artifacts = map[audit.ArtifactTag]string{
	audit.ArtifactRepo:      "Repository",
	audit.ArtifactDocReport: "Report",
	audit.ArtifactDocImages: "Report Diagrams",
}

// Artifact returns the human name for a target artifact tag.
func Artifact(a audit.ArtifactTag) string {
	if name, ok := artifacts[a]; ok {
		return name
	}
	return string(a)
}

// --- Stages ---

var stages = map[string]string{
	"context":     "Load Rubric",
	"investigate": "Investigate",
	"aggregate":   "Aggregate Evidence",
	"route":       "Route",
	"error":       "Hard Stop",
	"judge":       "Judicial Review",
	"synthesis":   "Chief Justice",
}

// Stage returns the human name for an engine stage.
func Stage(code string) string {
	if name, ok := stages[code]; ok {
		return name
	}
	return code
}

// StagePath joins stage names with arrows.
// ["context", "route"] -> "Load Rubric → Route"
func StagePath(codes []string) string {
	names := make([]string, len(codes))
	for i, c := range codes {
		names[i] = Stage(c)
	}
	return strings.Join(names, " → ")
}

// --- Scores ---

var scoreLabels = [...]string{"", "Failing", "Weak", "Adequate", "Strong", "Exemplary"}

// ScoreLabel names a 1..5 verdict score.
func ScoreLabel(s int) string {
	if s < audit.MinScore || s > audit.MaxScore {
		return "Unscored"
	}
	return scoreLabels[s]
}

var (
	badgeBase = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	badgeLow  = badgeBase.Foreground(lipgloss.Color("15")).Background(lipgloss.Color("1"))
	badgeMid  = badgeBase.Foreground(lipgloss.Color("0")).Background(lipgloss.Color("3"))
	badgeHigh = badgeBase.Foreground(lipgloss.Color("0")).Background(lipgloss.Color("2"))
	dimmed    = lipgloss.NewStyle().Faint(true)
)

// ScoreBadge renders "4/5 Strong" as a colored terminal badge. Colors are
// dropped automatically when the output is not a terminal.
func ScoreBadge(s int) string {
	style := badgeMid
	switch {
	case s <= 2:
		style = badgeLow
	case s >= 4:
		style = badgeHigh
	}
	return style.Render(strings.TrimSpace(scoreText(s) + " " + ScoreLabel(s)))
}

// Faint renders s de-emphasized.
func Faint(s string) string { return dimmed.Render(s) }

func scoreText(s int) string {
	if s < audit.MinScore || s > audit.MaxScore {
		return "-/5"
	}
	return string(rune('0'+s)) + "/5"
}
