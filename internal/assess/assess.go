// Package assess wraps a backing Judge into an orchestrate.Assessor for one
// persona: the judge is called at most Attempts times and a structured
// fallback opinion replaces the answer when every attempt fails.
package assess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"auditor/internal/audit"
	"auditor/internal/logging"
	"auditor/pkg/framework"
)

// Attempts is the total number of judge calls per dimension: the first
// call plus exactly one retry.
const Attempts = 2

// ErrUnknownPersona is returned by New for a tag outside the closed set.
var ErrUnknownPersona = errors.New("assess: unknown persona")

// Judge produces a scored opinion for one dimension from the persona's
// point of view. Any returned error, or an opinion whose score is outside
// [1,5], counts as a failed attempt.
type Judge interface {
	Judge(ctx context.Context, persona audit.PersonaConfig, dim audit.Dimension, summary string) (audit.Opinion, error)
}

// JudgeFunc adapts a function to Judge.
type JudgeFunc func(ctx context.Context, persona audit.PersonaConfig, dim audit.Dimension, summary string) (audit.Opinion, error)

func (f JudgeFunc) Judge(ctx context.Context, p audit.PersonaConfig, dim audit.Dimension, summary string) (audit.Opinion, error) {
	return f(ctx, p, dim, summary)
}

// Assessor is the per-persona assessor used by the engine.
type Assessor struct {
	persona audit.PersonaConfig
	judge   Judge
	logger  *slog.Logger
}

// New returns the assessor for persona backed by judge.
func New(persona audit.Persona, judge Judge) (*Assessor, error) {
	cfg, ok := audit.ConfigFor(persona)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPersona, persona)
	}
	return &Assessor{persona: cfg, judge: judge, logger: logging.New("assess")}, nil
}

// Panel returns one assessor per persona, in canonical order, sharing judge.
func Panel(judge Judge) []*Assessor {
	out := make([]*Assessor, 0, 3)
	for _, p := range audit.PersonaTags() {
		a, _ := New(p, judge)
		out = append(out, a)
	}
	return out
}

// WithLogger replaces the assessor's logger.
func (a *Assessor) WithLogger(l *slog.Logger) *Assessor {
	a.logger = l
	return a
}

// Persona implements orchestrate.Assessor.
func (a *Assessor) Persona() audit.Persona { return a.persona.Tag }

// Assess implements orchestrate.Assessor. It never fails: after Attempts
// failed calls it returns audit.FallbackOpinion.
func (a *Assessor) Assess(ctx context.Context, dim audit.Dimension, summary string) audit.Opinion {
	var last error
	op, used, err := framework.Retry(ctx, Attempts, func(ctx context.Context, attempt int) (audit.Opinion, error) {
		op, err := a.call(ctx, dim, summary)
		if err != nil {
			last = err
			a.logger.Debug("judge attempt failed",
				"persona", a.persona.Tag, "dimension", dim.ID, "attempt", attempt, "error", err)
		}
		return op, err
	})
	if err == nil {
		if used > 1 {
			a.logger.Info("judge recovered on retry", "persona", a.persona.Tag, "dimension", dim.ID)
		}
		return op
	}
	if last == nil {
		last = err
	}
	a.logger.Warn("judge failed, recording fallback opinion",
		"persona", a.persona.Tag, "dimension", dim.ID, "error", last)
	return audit.FallbackOpinion(a.persona.Tag, dim.ID, Attempts, last)
}

func (a *Assessor) call(ctx context.Context, dim audit.Dimension, summary string) (op audit.Opinion, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("judge panic: %v", r)
		}
	}()
	op, err = a.judge.Judge(ctx, a.persona, dim, summary)
	if err != nil {
		return audit.Opinion{}, err
	}
	op.Persona = a.persona.Tag
	op.DimensionID = dim.ID
	if op.CitedEvidence == nil {
		op.CitedEvidence = []string{}
	}
	if err := op.Validate(); err != nil {
		return audit.Opinion{}, err
	}
	return op, nil
}
