// Package orchestrate runs the fixed audit topology:
//
//	CONTEXT -> {repo || doc} -> JOIN -> ROUTE -> ERROR
//	                                          -> {adversarial || generous || pragmatic} -> JOIN -> SYNTHESIS
//
// The engine owns the only live RunState. Branches receive snapshots and
// return patches which the engine merges one at a time.
package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"auditor/internal/audit"
	"auditor/internal/justice"
	"auditor/internal/logging"
	"auditor/internal/rubric"
	"auditor/pkg/framework"
)

// Stage names, as they appear in events and spans.
const (
	StageContext     = "context"
	StageInvestigate = "investigate"
	StageAggregate   = "aggregate"
	StageRoute       = "route"
	StageError       = "error"
	StageJudge       = "judge"
	StageSynthesis   = "synthesis"
)

var (
	ErrRubric            = errors.New("orchestrate: rubric unavailable")
	ErrMissingAssessor   = errors.New("orchestrate: missing assessor")
	ErrDuplicateAssessor = errors.New("orchestrate: duplicate assessor")
	ErrNoInvestigator    = errors.New("orchestrate: investigator not configured")
)

// Investigator gathers evidence for one artifact. It must not panic or
// return an error: acquisition failures are reported as a sentinel-keyed
// map and interpretation failures as parse_error records.
type Investigator interface {
	Name() string
	Investigate(ctx context.Context, snap audit.Snapshot) audit.EvidenceMap
}

// Assessor produces one persona's opinion on one dimension. Implementations
// handle their own retry and always return an opinion.
type Assessor interface {
	Persona() audit.Persona
	Assess(ctx context.Context, dim audit.Dimension, summary string) audit.Opinion
}

// Config wires an Engine.
type Config struct {
	Rubric    rubric.Provider
	Repo      Investigator
	Doc       Investigator
	Assessors []Assessor
	Observer  framework.Observer
	// Parallel bounds concurrently running branches per barrier. Zero runs
	// every branch at once.
	Parallel int
	Logger   *slog.Logger
	Tracer   trace.Tracer
	NewRunID func() string
}

// Engine executes audit runs. It is safe to call Run concurrently; each run
// has its own state.
type Engine struct {
	rubric    rubric.Provider
	repo      Investigator
	doc       Investigator
	assessors [3]Assessor
	observer  framework.Observer
	parallel  int
	log       *slog.Logger
	tracer    trace.Tracer
	newRunID  func() string
}

// New validates cfg and returns an Engine. Exactly one assessor per persona
// is required.
func New(cfg Config) (*Engine, error) {
	if cfg.Rubric == nil {
		return nil, fmt.Errorf("%w: no provider", ErrRubric)
	}
	if cfg.Repo == nil || cfg.Doc == nil {
		return nil, ErrNoInvestigator
	}
	e := &Engine{
		rubric:   cfg.Rubric,
		repo:     cfg.Repo,
		doc:      cfg.Doc,
		observer: cfg.Observer,
		parallel: cfg.Parallel,
		log:      cfg.Logger,
		tracer:   cfg.Tracer,
		newRunID: cfg.NewRunID,
	}
	for _, a := range cfg.Assessors {
		rank := a.Persona().Rank()
		if rank < 0 {
			return nil, fmt.Errorf("%w: unknown persona %q", ErrMissingAssessor, a.Persona())
		}
		if e.assessors[rank] != nil {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAssessor, a.Persona())
		}
		e.assessors[rank] = a
	}
	for i, a := range e.assessors {
		if a == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingAssessor, audit.PersonaTags()[i])
		}
	}
	if e.log == nil {
		e.log = logging.New("engine")
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer("auditor/orchestrate")
	}
	if e.newRunID == nil {
		e.newRunID = NewRunID
	}
	return e, nil
}

// NewRunID returns a fresh random run id.
func NewRunID() string { return uuid.NewString() }

// Result is the outcome of one run. Report is nil when the run halted.
type Result struct {
	RunID      string
	Target     string
	DocPath    string
	Decision   Decision
	Halted     bool
	Reason     string
	Dimensions []audit.Dimension
	Evidence   audit.EvidenceMap
	Opinions   []audit.Opinion
	Report     *audit.FinalReport
	Resolution *justice.Resolution

	Investigation framework.JoinStats
	Judgement     framework.JoinStats
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Run executes one audit. The returned error is non-nil only when the
// rubric cannot be loaded; every other failure is carried in the Result.
func (e *Engine) Run(ctx context.Context, target, docPath string) (*Result, error) {
	runID := e.newRunID()
	log := e.log.With(slog.String("run_id", runID))
	res := &Result{RunID: runID, Target: target, DocPath: docPath, StartedAt: time.Now().UTC()}

	ctx, span := e.tracer.Start(ctx, "audit.run", trace.WithAttributes(
		attribute.String("audit.run_id", runID),
		attribute.String("audit.target", target),
	))
	defer span.End()

	state := audit.NewRunState(runID, target, docPath)

	// CONTEXT
	if err := e.stage(ctx, runID, StageContext, func(context.Context) error {
		dims, err := e.rubric.Load()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrRubric, err)
		}
		if err := state.LoadContext(dims); err != nil {
			return err
		}
		log.Info("rubric loaded", "dimensions", len(dims))
		return nil
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	res.Dimensions = state.Dimensions()

	// INVESTIGATE -> JOIN
	stats, err := e.investigate(ctx, state)
	if err != nil {
		return nil, err
	}
	res.Investigation = stats
	_ = e.stage(ctx, runID, StageAggregate, func(context.Context) error {
		aggregate(log, state)
		return nil
	})

	// ROUTE
	var decision Decision
	_ = e.stage(ctx, runID, StageRoute, func(context.Context) error {
		ev := state.Evidence()
		decision = Route(ev)
		res.Reason = explain(decision, ev)
		framework.Emit(e.observer, framework.Event{
			Type:     framework.EventRoute,
			RunID:    runID,
			Stage:    StageRoute,
			Metadata: map[string]any{"decision": string(decision), "reason": res.Reason},
		})
		log.Info("routed", "decision", decision, "reason", res.Reason)
		return nil
	})
	res.Decision = decision
	span.SetAttributes(attribute.String("audit.decision", string(decision)))

	if decision == DecisionError {
		_ = e.stage(ctx, runID, StageError, func(context.Context) error {
			handleError(log, state)
			return nil
		})
		res.Halted = true
		res.Evidence = state.Evidence()
		res.FinishedAt = time.Now().UTC()
		framework.Emit(e.observer, framework.Event{
			Type:     framework.EventRunHalted,
			RunID:    runID,
			Elapsed:  res.FinishedAt.Sub(res.StartedAt),
			Metadata: map[string]any{"reason": res.Reason},
		})
		span.SetStatus(codes.Error, "halted: "+res.Reason)
		return res, nil
	}

	// JUDGE -> JOIN
	stats, err = e.judge(ctx, state)
	if err != nil {
		return nil, err
	}
	res.Judgement = stats

	// SYNTHESIS
	if err := e.stage(ctx, runID, StageSynthesis, func(context.Context) error {
		resolution, err := synthesize(log, state)
		if err != nil {
			return err
		}
		res.Resolution = &resolution
		return nil
	}); err != nil {
		span.RecordError(err)
		return nil, err
	}

	report, _ := state.Report()
	res.Report = &report
	res.Evidence = state.Evidence()
	res.Opinions = state.Opinions()
	res.FinishedAt = time.Now().UTC()
	span.SetAttributes(attribute.Float64("audit.overall_score", report.OverallScore))

	framework.Emit(e.observer, framework.Event{
		Type:    framework.EventRunComplete,
		RunID:   runID,
		Elapsed: res.FinishedAt.Sub(res.StartedAt),
		Metadata: map[string]any{
			"overall_score": report.OverallScore,
			"criteria":      len(report.Criteria),
		},
	})
	log.Info("run complete", "overall_score", report.OverallScore, "criteria", len(report.Criteria))
	return res, nil
}

// stage runs fn as a sequential stage with enter/exit events and a span.
func (e *Engine) stage(ctx context.Context, runID, name string, fn func(context.Context) error) error {
	ctx, span := e.tracer.Start(ctx, "stage."+name)
	defer span.End()

	start := time.Now()
	framework.Emit(e.observer, framework.Event{Type: framework.EventStageEnter, RunID: runID, Stage: name})
	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	framework.Emit(e.observer, framework.Event{
		Type:    framework.EventStageExit,
		RunID:   runID,
		Stage:   name,
		Elapsed: time.Since(start),
		Error:   err,
	})
	return err
}
