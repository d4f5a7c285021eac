// Package wiring is the composition root: it builds the engine and its
// collaborators from a Config, runs audits, emits reports and archives
// the outcome.
package wiring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"auditor/adapters/heuristic"
	"auditor/adapters/llm"
	"auditor/internal/assess"
	"auditor/internal/audit"
	"auditor/internal/config"
	"auditor/internal/investigate"
	"auditor/internal/justice"
	"auditor/internal/logging"
	"auditor/internal/orchestrate"
	"auditor/internal/report"
	"auditor/internal/rubric"
	"auditor/internal/store"
	"auditor/pkg/framework"
)

// Model is a backing model: it interprets facts and judges dimensions.
type Model interface {
	investigate.Interpreter
	assess.Judge
}

// NewModel returns the adapter named by cfg.Adapter.
func NewModel(ctx context.Context, cfg config.Config) (Model, error) {
	switch cfg.Adapter {
	case config.AdapterHeuristic, "":
		rules := heuristic.DefaultRules()
		return heuristicModel{
			interp: heuristic.NewInterpreter(rules),
			judge:  heuristic.NewJudge(rules),
		}, nil
	case config.AdapterLLM:
		gen, err := llm.NewGemini(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		return llm.New(gen), nil
	}
	return nil, fmt.Errorf("%w: unknown adapter %q", config.ErrInvalid, cfg.Adapter)
}

type heuristicModel struct {
	interp *heuristic.Interpreter
	judge  *heuristic.Judge
}

func (m heuristicModel) InterpretRepo(ctx context.Context, dim audit.Dimension, facts investigate.RepoFacts) (audit.Evidence, error) {
	return m.interp.InterpretRepo(ctx, dim, facts)
}

func (m heuristicModel) InterpretDoc(ctx context.Context, dim audit.Dimension, facts investigate.DocFacts) (audit.Evidence, error) {
	return m.interp.InterpretDoc(ctx, dim, facts)
}

func (m heuristicModel) Judge(ctx context.Context, persona audit.PersonaConfig, dim audit.Dimension, summary string) (audit.Opinion, error) {
	return m.judge.Judge(ctx, persona, dim, summary)
}

// Deps are the collaborators of an audit beyond its configuration. Nil
// fields are optional.
type Deps struct {
	Model    Model
	Store    store.Store
	Observer framework.Observer
	// Out receives the terminal report when "terminal" is a format.
	Out    io.Writer
	Logger *slog.Logger
	Now    func() time.Time
}

// NewEngine assembles the fixed-topology engine from cfg and deps.
func NewEngine(cfg config.Config, deps Deps) (*orchestrate.Engine, error) {
	if deps.Model == nil {
		return nil, errors.New("wiring: no backing model")
	}
	acq := investigate.AcquireConfig{
		AllowedHosts: cfg.AllowedHosts,
		AllowLocal:   cfg.AllowLocal,
		Depth:        cfg.CloneDepth,
		Timeout:      cfg.CloneTimeout,
	}
	repo := investigate.NewRepoInvestigator(acq, deps.Model)
	doc := investigate.NewDocInvestigator(deps.Model)
	doc.AllowLocal = cfg.AllowLocal
	doc.PDFToText = cfg.PDFToText

	var assessors []orchestrate.Assessor
	for _, a := range assess.Panel(deps.Model) {
		assessors = append(assessors, a)
	}
	return orchestrate.New(orchestrate.Config{
		Rubric:    rubric.File(cfg.Rubric),
		Repo:      repo,
		Doc:       doc,
		Assessors: assessors,
		Observer:  deps.Observer,
		Parallel:  cfg.Parallel,
		Logger:    deps.Logger,
	})
}

// Outcome is everything one audit produced.
type Outcome struct {
	Result   *orchestrate.Result
	Artifact *report.Artifact // nil when the run halted
	Emitted  []report.Emitted
	Archived bool
}

// Completed reports whether the run produced a final report.
func (o *Outcome) Completed() bool { return o != nil && o.Artifact != nil }

// Audit runs one audit end to end. The error is non-nil only for
// configuration and rubric failures; a halted run is a normal Outcome.
func Audit(ctx context.Context, cfg config.Config, deps Deps, target, docPath string) (*Outcome, error) {
	log := deps.Logger
	if log == nil {
		log = logging.New("wiring")
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	eng, err := NewEngine(cfg, deps)
	if err != nil {
		return nil, err
	}
	res, err := eng.Run(ctx, target, docPath)
	if err != nil {
		return nil, err
	}
	out := &Outcome{Result: res}

	if res.Report != nil {
		art, err := report.Build(report.Meta{
			RunID:       res.RunID,
			Target:      res.Target,
			DocPath:     res.DocPath,
			GeneratedAt: now().UTC(),
		}, res.Report, res.Evidence)
		if err != nil {
			return nil, err
		}
		out.Artifact = art
		sinks, err := report.NewSinks(cfg.Formats, cfg.OutputDir, deps.Out)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
		}
		out.Emitted = report.EmitAll(ctx, art, sinks, log)
	}

	if deps.Store != nil {
		if err := deps.Store.SaveRun(ctx, RunRecord(res, out.Artifact)); err != nil {
			log.Warn("archive run failed", "run_id", res.RunID, "error", err)
		} else {
			out.Archived = true
		}
	}
	return out, nil
}

// RunRecord converts a run result into its archive form. art may be nil
// for halted runs.
func RunRecord(res *orchestrate.Result, art *report.Artifact) *store.Run {
	run := &store.Run{
		ID:         res.RunID,
		Target:     res.Target,
		DocPath:    res.DocPath,
		Status:     store.StatusHalted,
		Reason:     res.Reason,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	}
	if res.Report == nil {
		return run
	}
	run.Status = store.StatusCompleted
	run.Reason = ""
	run.OverallScore = res.Report.OverallScore
	run.Verdicts = store.VerdictsFrom(res.Report.Criteria)
	if art != nil {
		run.Digest = art.Digest
		if data, err := json.Marshal(res.Report); err == nil {
			run.Report = data
		}
	}
	return run
}

// ResolveRequest is the input of the pure resolution path. When
// Dimensions is empty the configured rubric supplies them.
type ResolveRequest struct {
	Target     string            `json:"target"`
	Dimensions []audit.Dimension `json:"dimensions,omitempty"`
	Opinions   []audit.Opinion   `json:"opinions"`
	Evidence   audit.EvidenceMap `json:"evidence"`
}

// ErrInvalidRequest wraps every problem found in a ResolveRequest.
var ErrInvalidRequest = errors.New("wiring: invalid resolve request")

// Validate checks supplied dimensions as a rubric, every opinion's persona
// and score, and every evidence item's confidence. All problems are
// reported together.
func (req ResolveRequest) Validate() error {
	var errs []error
	if len(req.Dimensions) > 0 {
		r := rubric.Rubric{Dimensions: req.Dimensions}
		if err := r.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	for i, op := range req.Opinions {
		if err := op.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("opinions[%d]: %w", i, err))
		}
	}
	for _, key := range req.Evidence.Keys() {
		for i, ev := range req.Evidence[key] {
			if err := ev.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("evidence[%s][%d]: %w", key, i, err))
			}
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidRequest, errors.Join(errs...))
}

// Resolve runs the deterministic resolver over already collected opinions
// and evidence. No investigator or judge is involved. Invalid records are
// rejected before any rule runs.
func Resolve(cfg config.Config, req ResolveRequest) (justice.Resolution, error) {
	if err := req.Validate(); err != nil {
		return justice.Resolution{}, err
	}
	dims := req.Dimensions
	if len(dims) == 0 {
		loaded, err := rubric.File(cfg.Rubric).Load()
		if err != nil {
			return justice.Resolution{}, err
		}
		dims = loaded
	}
	return justice.Resolve(justice.Input{
		Target:     req.Target,
		Dimensions: dims,
		Opinions:   req.Opinions,
		Evidence:   req.Evidence,
	}), nil
}

// DecodeResolveRequest reads a ResolveRequest from JSON.
func DecodeResolveRequest(r io.Reader) (ResolveRequest, error) {
	var req ResolveRequest
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("decode resolve request: %w", err)
	}
	return req, nil
}
