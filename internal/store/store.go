// Package store archives audit runs and their per-criterion verdicts.
// The persistence facade is Store; implementations are SQLite (SqlStore)
// and in-memory (MemStore).
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"auditor/internal/audit"
)

// DefaultDBPath is the default relative path for the archive.
const DefaultDBPath = ".auditor/auditor.db"

var (
	ErrRunNotFound = errors.New("store: run not found")
	ErrInvalidRun  = errors.New("store: invalid run")
)

// Status is the terminal state of an archived run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusHalted    Status = "halted"
)

// Run is one archived audit.
type Run struct {
	ID           string          `json:"id"`
	Target       string          `json:"target"`
	DocPath      string          `json:"doc_path,omitempty"`
	Status       Status          `json:"status"`
	Reason       string          `json:"reason,omitempty"`
	OverallScore float64         `json:"overall_score"`
	Digest       string          `json:"digest,omitempty"`
	Report       json.RawMessage `json:"report,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   time.Time       `json:"finished_at"`
	// Verdicts is filled by GetRun; ListRuns leaves it empty.
	Verdicts []Verdict `json:"verdicts,omitempty"`
}

// Verdict is one archived criterion result, in report order.
type Verdict struct {
	DimensionID   string          `json:"dimension_id"`
	DimensionName string          `json:"dimension_name"`
	FinalScore    int             `json:"final_score"`
	Dissent       string          `json:"dissent,omitempty"`
	Remediation   string          `json:"remediation"`
	Opinions      []audit.Opinion `json:"opinions"`
}

// VerdictsFrom converts report criteria into archive rows.
func VerdictsFrom(criteria []audit.CriterionVerdict) []Verdict {
	out := make([]Verdict, len(criteria))
	for i, c := range criteria {
		out[i] = Verdict{
			DimensionID:   c.DimensionID,
			DimensionName: c.DimensionName,
			FinalScore:    c.FinalScore,
			Dissent:       c.Dissent,
			Remediation:   c.Remediation,
			Opinions:      c.Opinions,
		}
	}
	return out
}

// Filter narrows ListRuns. Zero values match everything; Limit <= 0 means
// no limit.
type Filter struct {
	Target string
	Status Status
	Limit  int
}

// Store is the persistence facade used by the CLI and the MCP server.
type Store interface {
	// SaveRun inserts or replaces a run together with its verdicts.
	SaveRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context, f Filter) ([]Run, error)
	Close() error
}

func validate(run *Run) error {
	switch {
	case run == nil:
		return ErrInvalidRun
	case run.ID == "":
		return errors.Join(ErrInvalidRun, errors.New("missing id"))
	case run.Status != StatusCompleted && run.Status != StatusHalted:
		return errors.Join(ErrInvalidRun, errors.New("unknown status "+string(run.Status)))
	}
	seen := make(map[string]bool, len(run.Verdicts))
	for _, v := range run.Verdicts {
		if seen[v.DimensionID] {
			return errors.Join(ErrInvalidRun, errors.New("duplicate verdict "+v.DimensionID))
		}
		seen[v.DimensionID] = true
	}
	return nil
}
