package orchestrate

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"auditor/internal/audit"
	"auditor/internal/justice"
	"auditor/pkg/framework"
)

// investigate is the two-way evidence barrier.
func (e *Engine) investigate(ctx context.Context, state *audit.RunState) (framework.JoinStats, error) {
	fan := framework.FanOut[audit.Snapshot, audit.EvidenceMap]{
		Name:     StageInvestigate,
		RunID:    state.RunID,
		Observer: e.observer,
		Limit:    e.parallel,
		Branches: []framework.Branch[audit.Snapshot, audit.EvidenceMap]{
			e.investigatorBranch(e.repo, audit.KeyCloneFailure, "Repository Clone", state.Target),
			e.investigatorBranch(e.doc, audit.KeyDocFailure, "Document Ingestion", state.DocPath),
		},
	}
	return fan.Join(ctx, state.Snapshot, func(_ string, patch audit.EvidenceMap) {
		state.ApplyEvidence(patch)
	})
}

// investigatorBranch wraps inv so that an escaped panic still yields the
// investigator's hard-failure sentinel.
func (e *Engine) investigatorBranch(inv Investigator, sentinel, goal, location string) framework.Branch[audit.Snapshot, audit.EvidenceMap] {
	return framework.Branch[audit.Snapshot, audit.EvidenceMap]{
		Name: inv.Name(),
		Run: func(ctx context.Context, snap audit.Snapshot) audit.EvidenceMap {
			ctx, span := e.tracer.Start(ctx, "branch."+inv.Name(), trace.WithAttributes(
				attribute.String("audit.branch", inv.Name()),
			))
			defer span.End()
			ev := inv.Investigate(ctx, snap)
			span.SetAttributes(attribute.Int("audit.evidence_items", ev.Count()))
			return ev
		},
		Recover: func(fault error) audit.EvidenceMap {
			return audit.EvidenceMap{sentinel: {{
				Goal:       goal,
				Found:      false,
				Location:   location,
				Rationale:  fmt.Sprintf("investigator fault: %v", fault),
				Confidence: 1.0,
			}}}
		},
	}
}

// judge is the three-way opinion barrier. Each persona assesses every
// dimension of the same snapshot.
func (e *Engine) judge(ctx context.Context, state *audit.RunState) (framework.JoinStats, error) {
	branches := make([]framework.Branch[audit.Snapshot, []audit.Opinion], 0, len(e.assessors))
	for _, a := range e.assessors {
		branches = append(branches, e.assessorBranch(a))
	}
	fan := framework.FanOut[audit.Snapshot, []audit.Opinion]{
		Name:     StageJudge,
		RunID:    state.RunID,
		Observer: e.observer,
		Limit:    e.parallel,
		Branches: branches,
	}
	return fan.Join(ctx, state.Snapshot, func(_ string, patch []audit.Opinion) {
		state.ApplyOpinions(patch)
	})
}

func (e *Engine) assessorBranch(a Assessor) framework.Branch[audit.Snapshot, []audit.Opinion] {
	persona := a.Persona()
	// Run and Recover execute on the same goroutine, so Recover can see
	// how far Run got.
	var (
		dims []audit.Dimension
		out  []audit.Opinion
	)
	return framework.Branch[audit.Snapshot, []audit.Opinion]{
		Name: string(persona),
		Run: func(ctx context.Context, snap audit.Snapshot) []audit.Opinion {
			ctx, span := e.tracer.Start(ctx, "branch."+string(persona), trace.WithAttributes(
				attribute.String("audit.branch", string(persona)),
			))
			defer span.End()

			dims = snap.Dimensions
			out = make([]audit.Opinion, 0, len(dims))
			for _, d := range dims {
				op := a.Assess(ctx, d, audit.SummarizeEvidence(snap.Evidence, d.ID))
				op.Persona = persona
				op.DimensionID = d.ID
				out = append(out, op)
			}
			return out
		},
		Recover: func(fault error) []audit.Opinion {
			patch := append([]audit.Opinion(nil), out...)
			for _, d := range dims[len(out):] {
				op := audit.FallbackOpinion(persona, d.ID, 1, fault)
				op.Argument = fmt.Sprintf("Assessor fault: %v", fault)
				patch = append(patch, op)
			}
			return patch
		},
	}
}

// aggregate runs once after the investigation barrier.
func aggregate(log *slog.Logger, state *audit.RunState) {
	ev := state.Evidence()
	log.Info("evidence aggregated", "items", ev.Count(), "keys", len(ev))
	if missing := audit.MissingEvidence(state.Dimensions(), ev); len(missing) > 0 {
		log.Warn("missing evidence for dimensions", "dimensions", missing)
	}
}

// handleError is the terminal stage for unrecoverable acquisition failure.
func handleError(log *slog.Logger, state *audit.RunState) {
	for _, z := range audit.ZeroConfidence(state.Evidence()) {
		log.Warn("zero-confidence evidence", "dimension", z.Key, "rationale", z.Evidence.Rationale)
	}
	for _, e := range state.Evidence()[audit.KeyCloneFailure] {
		log.Error("repository acquisition failed", "location", e.Location, "rationale", e.Rationale)
	}
}

// synthesize resolves the joined opinions and seals the report. Dimensions
// without opinions and dropped opinions are logged as warnings.
func synthesize(log *slog.Logger, state *audit.RunState) (justice.Resolution, error) {
	resolution := justice.Resolve(justice.Input{
		Target:     state.Target,
		Dimensions: state.Dimensions(),
		Opinions:   state.Opinions(),
		Evidence:   state.Evidence(),
	})
	for _, id := range resolution.Omitted {
		log.Warn("dimension received no opinions, omitted from report", "dimension", id)
	}
	for _, r := range resolution.Rulings {
		for _, o := range r.Dropped {
			log.Warn("duplicate or unknown opinion dropped", "dimension", r.DimensionID, "judge", o.Persona)
		}
	}
	if err := state.SetReport(resolution.Report); err != nil {
		return justice.Resolution{}, err
	}
	return resolution, nil
}
