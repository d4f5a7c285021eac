package investigate

import (
	"context"
	"fmt"
	"log/slog"

	"auditor/internal/audit"
	"auditor/internal/logging"
)

// RepoInvestigator acquires the target repository and produces one
// Evidence per github_repo dimension.
type RepoInvestigator struct {
	Acquire     AcquireConfig
	Interpreter Interpreter
	Scanner     *CodeScanner
	Logger      *slog.Logger
}

// NewRepoInvestigator returns a repo investigator using interp.
func NewRepoInvestigator(cfg AcquireConfig, interp Interpreter) *RepoInvestigator {
	return &RepoInvestigator{
		Acquire:     cfg,
		Interpreter: interp,
		Scanner:     NewCodeScanner(),
		Logger:      logging.New("investigate.repo"),
	}
}

// Name implements orchestrate.Investigator.
func (r *RepoInvestigator) Name() string { return "repo" }

// Investigate implements orchestrate.Investigator. Acquisition failure
// yields the single-key clone_failure map.
func (r *RepoInvestigator) Investigate(ctx context.Context, snap audit.Snapshot) audit.EvidenceMap {
	log := r.logger().With(slog.String("run_id", snap.RunID))
	facts, err := r.Gather(ctx, snap.Target)
	if err != nil {
		log.Warn("repository acquisition failed", "target", snap.Target, "error", err)
		return CloneFailure(snap.Target, err)
	}
	log.Info("repository scanned",
		"files", len(facts.Files),
		"commits", facts.History.Count,
		"pattern", facts.History.Pattern,
		"parsed", facts.Code.FilesParsed)

	out := audit.EvidenceMap{}
	for _, d := range snap.DimensionsFor(func(t audit.ArtifactTag) bool { return t == audit.ArtifactRepo }) {
		if ctx.Err() != nil {
			out[d.ID] = []audit.Evidence{audit.ParseFailure(d.Name, ctx.Err())}
			continue
		}
		ev := interpret(d, func() (audit.Evidence, error) {
			return r.Interpreter.InterpretRepo(ctx, d, facts)
		})
		out[d.ID] = []audit.Evidence{ev}
	}
	return out
}

// Gather acquires the target and collects its facts. The checkout is
// removed before Gather returns.
func (r *RepoInvestigator) Gather(ctx context.Context, target string) (RepoFacts, error) {
	co, err := Acquire(ctx, target, r.Acquire)
	if err != nil {
		return RepoFacts{}, err
	}
	defer co.Close()

	files, err := ListFiles(co.Dir)
	if err != nil {
		return RepoFacts{}, err
	}
	scanner := r.Scanner
	if scanner == nil {
		scanner = NewCodeScanner()
	}
	return RepoFacts{
		Target:  target,
		Local:   co.Local,
		Files:   files,
		History: ReadHistory(ctx, r.Acquire.Git, co.Dir),
		Code:    scanner.Scan(ctx, co.Dir, files),
	}, nil
}

func (r *RepoInvestigator) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return logging.New("investigate.repo")
}

// CloneFailure is the sentinel evidence for an unretrievable repository.
func CloneFailure(target string, err error) audit.EvidenceMap {
	return audit.EvidenceMap{audit.KeyCloneFailure: {{
		Goal:       "Repository Clone",
		Found:      false,
		Location:   target,
		Rationale:  fmt.Sprintf("Clone failed: %v", err),
		Confidence: 1.0,
	}}}
}

// DocFailure is the sentinel evidence for an unreadable report document.
func DocFailure(path string, err error) audit.EvidenceMap {
	return audit.EvidenceMap{audit.KeyDocFailure: {{
		Goal:       "Document Ingestion",
		Found:      false,
		Location:   path,
		Rationale:  fmt.Sprintf("Document ingestion failed: %v", err),
		Confidence: 1.0,
	}}}
}
