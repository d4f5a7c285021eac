package investigate

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"auditor/internal/audit"
	"auditor/internal/logging"
)

// DocInvestigator ingests the report document and produces one Evidence
// per document-targeted dimension.
type DocInvestigator struct {
	// AllowLocal enables cross-checking mentioned paths against a local
	// target directory.
	AllowLocal  bool
	PDFToText   string
	Interpreter Interpreter
	Concepts    []string
	TopK        int
	Logger      *slog.Logger
}

// NewDocInvestigator returns a document investigator using interp.
func NewDocInvestigator(interp Interpreter) *DocInvestigator {
	return &DocInvestigator{
		Interpreter: interp,
		Concepts:    DefaultConcepts,
		TopK:        DefaultTopK,
		Logger:      logging.New("investigate.doc"),
	}
}

// Name implements orchestrate.Investigator.
func (d *DocInvestigator) Name() string { return "doc" }

// Investigate implements orchestrate.Investigator. A missing or unreadable
// document yields the single-key doc_failure map.
func (d *DocInvestigator) Investigate(ctx context.Context, snap audit.Snapshot) audit.EvidenceMap {
	log := d.logger().With(slog.String("run_id", snap.RunID))
	doc, err := Ingest(ctx, snap.DocPath, d.PDFToText)
	if err != nil {
		log.Warn("document ingestion failed", "path", snap.DocPath, "error", err)
		return DocFailure(snap.DocPath, err)
	}
	base := d.Analyze(doc, snap.Target)
	log.Info("document analyzed",
		"format", base.Format,
		"words", base.Words,
		"chunks", base.Chunks,
		"paths", len(base.Paths),
		"missing_paths", len(base.Missing))

	chunks := ChunkText(doc.Text, DefaultChunkWords, DefaultChunkOverlap)
	out := audit.EvidenceMap{}
	for _, dim := range snap.DimensionsFor(audit.ArtifactTag.IsDocument) {
		if ctx.Err() != nil {
			out[dim.ID] = []audit.Evidence{audit.ParseFailure(dim.Name, ctx.Err())}
			continue
		}
		facts := base
		facts.Excerpts = Query(chunks, dimensionQuery(dim), d.TopK)
		if len(dim.Concepts) > 0 {
			facts.Concepts = AnalyzeConcepts(doc.Text, dim.Concepts)
		}
		ev := interpret(dim, func() (audit.Evidence, error) {
			return d.Interpreter.InterpretDoc(ctx, dim, facts)
		})
		out[dim.ID] = []audit.Evidence{ev}
	}
	return out
}

// Analyze collects the dimension-independent facts of a document. When
// target is a local directory and AllowLocal is set, each mentioned path
// is checked for existence under it.
func (d *DocInvestigator) Analyze(doc *Document, target string) DocFacts {
	concepts := d.Concepts
	if len(concepts) == 0 {
		concepts = DefaultConcepts
	}
	facts := DocFacts{
		Path:     doc.Path,
		Format:   doc.Format,
		Words:    len(strings.Fields(doc.Text)),
		Chunks:   len(ChunkText(doc.Text, DefaultChunkWords, DefaultChunkOverlap)),
		Paths:    FilePaths(doc.Text),
		Concepts: AnalyzeConcepts(doc.Text, concepts),
		Diagrams: DiagramMentions(doc.Text),
	}
	if !d.AllowLocal || !isDir(target) {
		return facts
	}
	for _, p := range facts.Paths {
		rel := strings.TrimPrefix(p, "./")
		if _, err := os.Stat(filepath.Join(target, filepath.FromSlash(rel))); err == nil {
			facts.Verified = append(facts.Verified, p)
		} else {
			facts.Missing = append(facts.Missing, p)
		}
	}
	return facts
}

func (d *DocInvestigator) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return logging.New("investigate.doc")
}

func dimensionQuery(dim audit.Dimension) string {
	parts := []string{dim.Name, dim.Instruction}
	parts = append(parts, dim.Concepts...)
	return strings.Join(parts, " ")
}

func isDir(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
