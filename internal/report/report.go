// Package report renders a resolved audit into its output artifacts:
// Markdown, JSON, PDF and a terminal view. Every artifact carries the
// content digest of the Markdown body, so identical verdicts produce
// identical fingerprints across runs.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"auditor/internal/audit"
	"auditor/internal/display"
	"auditor/internal/format"
)

// Title heads every Markdown report.
const Title = "Automaton Auditor: Audit Report"

var ErrNoReport = errors.New("report: run produced no final report")

// Meta describes the run an artifact belongs to. Meta never enters the
// digested body.
type Meta struct {
	RunID       string    `json:"run_id"`
	Target      string    `json:"target"`
	DocPath     string    `json:"doc_path,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Artifact is a rendered report ready for the sinks.
type Artifact struct {
	Meta     Meta              `json:"meta"`
	Report   audit.FinalReport `json:"report"`
	Evidence audit.EvidenceMap `json:"evidence,omitempty"`
	// Body is the Markdown without the footer; Digest is computed over it.
	Body   []byte `json:"-"`
	Digest string `json:"digest"`
}

// Build renders the Markdown body and digests it.
func Build(meta Meta, rep *audit.FinalReport, ev audit.EvidenceMap) (*Artifact, error) {
	if rep == nil {
		return nil, ErrNoReport
	}
	body := Markdown(*rep, meta.DocPath)
	digest, err := Digest(body)
	if err != nil {
		return nil, err
	}
	return &Artifact{Meta: meta, Report: *rep, Evidence: ev, Body: body, Digest: digest}, nil
}

// Digest returns the CIDv1 (raw codec, sha2-256) of data.
func Digest(data []byte) (string, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("digest: %w", err)
	}
	return cid.NewCidV1(cid.Raw, mh).String(), nil
}

// VerifyDigest reports whether digest matches data.
func VerifyDigest(data []byte, digest string) bool {
	want, err := Digest(data)
	return err == nil && want == digest
}

// Markdown renders the report body. The output depends only on its
// arguments.
func Markdown(rep audit.FinalReport, docPath string) []byte {
	var b strings.Builder
	line := func(s ...string) {
		for _, x := range s {
			b.WriteString(x)
			b.WriteByte('\n')
		}
	}

	line("# "+Title, "")
	line("**Target:** "+rep.Target, "")
	if docPath != "" {
		line("**Report document:** "+docPath, "")
	}
	line("## Executive Summary", "", rep.ExecutiveSummary, "")
	line(fmt.Sprintf("**Overall Score: %s**", format.Overall(rep.OverallScore)), "")

	if len(rep.Criteria) > 0 {
		tbl := format.NewTable(format.Markdown)
		tbl.Header("Criterion", "Score", "Rating", "Dissent")
		for _, c := range rep.Criteria {
			tbl.Row(c.DimensionName, format.Score(c.FinalScore), display.ScoreLabel(c.FinalScore), format.BoolMark(c.Dissent != ""))
		}
		line(tbl.String(), "")
	}
	line("---", "", "## Criterion Breakdown", "")

	for _, c := range rep.Criteria {
		line("### "+c.DimensionName, fmt.Sprintf("**Final Score: %s**", format.Score(c.FinalScore)), "")
		for _, op := range c.Opinions {
			cites := "none"
			if len(op.CitedEvidence) > 0 {
				cites = strings.Join(op.CitedEvidence, ", ")
			}
			line(fmt.Sprintf("#### %s: Score %s", display.Persona(op.Persona), format.Score(op.Score)),
				op.Argument, "",
				"*Cited evidence: "+cites+"*", "")
		}
		if c.Dissent != "" {
			line("#### Dissent Summary", c.Dissent, "")
		}
		line("#### Remediation", c.Remediation, "", "---", "")
	}

	line("## Remediation Plan", "", rep.RemediationPlan)
	return []byte(b.String())
}

// Document returns the full Markdown: body plus a footer naming the run
// and the digest.
func (a *Artifact) Document() []byte {
	footer := fmt.Sprintf("\n---\n\n*Run %s, generated %s. Content digest: `%s`*\n",
		a.Meta.RunID, a.Meta.GeneratedAt.UTC().Format(time.RFC3339), a.Digest)
	out := make([]byte, 0, len(a.Body)+len(footer))
	out = append(out, a.Body...)
	return append(out, footer...)
}

// JSON renders the artifact as indented JSON.
func (a *Artifact) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return append(data, '\n'), nil
}

// Sink publishes an artifact. Emit returns where it went, or "" for
// streams.
type Sink interface {
	Name() string
	Emit(ctx context.Context, a *Artifact) (string, error)
}

// Emitted records one sink's outcome.
type Emitted struct {
	Sink     string
	Location string
	Err      error
}

// EmitAll runs every sink in order. A failing sink is logged and recorded
// but does not stop the others.
func EmitAll(ctx context.Context, a *Artifact, sinks []Sink, logger *slog.Logger) []Emitted {
	out := make([]Emitted, 0, len(sinks))
	for _, s := range sinks {
		loc, err := s.Emit(ctx, a)
		if err != nil {
			logger.Warn("report sink failed", "sink", s.Name(), "error", err)
		} else if loc != "" {
			logger.Info("report written", "sink", s.Name(), "path", loc)
		}
		out = append(out, Emitted{Sink: s.Name(), Location: loc, Err: err})
	}
	return out
}
