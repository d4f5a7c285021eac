package report

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
)

// Output formats accepted by NewSinks.
const (
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
	FormatPDF      = "pdf"
	FormatTerminal = "terminal"
)

// BaseName is the file stem of written reports.
const BaseName = "audit_report"

// NewSinks builds the sinks for the named formats. File sinks write under
// dir; the terminal sink writes to w.
func NewSinks(formats []string, dir string, w io.Writer) ([]Sink, error) {
	var sinks []Sink
	for _, f := range formats {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case FormatMarkdown, "md":
			sinks = append(sinks, MarkdownSink{Dir: dir})
		case FormatJSON:
			sinks = append(sinks, JSONSink{Dir: dir})
		case FormatPDF:
			sinks = append(sinks, &PDFSink{Dir: dir})
		case FormatTerminal:
			sinks = append(sinks, TerminalSink{W: w})
		case "":
		default:
			return nil, fmt.Errorf("report: unknown format %q", f)
		}
	}
	return sinks, nil
}

func writeFile(dir, name string, data []byte) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return path, nil
}

// MarkdownSink writes audit_report.md.
type MarkdownSink struct{ Dir string }

func (MarkdownSink) Name() string { return FormatMarkdown }

func (s MarkdownSink) Emit(_ context.Context, a *Artifact) (string, error) {
	return writeFile(s.Dir, BaseName+".md", a.Document())
}

// JSONSink writes audit_report.json.
type JSONSink struct{ Dir string }

func (JSONSink) Name() string { return FormatJSON }

func (s JSONSink) Emit(_ context.Context, a *Artifact) (string, error) {
	data, err := a.JSON()
	if err != nil {
		return "", err
	}
	return writeFile(s.Dir, BaseName+".json", data)
}

// TerminalSink renders the Markdown for a terminal with glamour.
type TerminalSink struct {
	W     io.Writer
	Width int
}

func (TerminalSink) Name() string { return FormatTerminal }

func (s TerminalSink) Emit(_ context.Context, a *Artifact) (string, error) {
	out, err := RenderTerminal(a.Document(), s.Width)
	if err != nil {
		return "", err
	}
	_, err = io.WriteString(s.W, out)
	return "", err
}

// RenderTerminal styles Markdown for terminal display, wrapped at width
// (80 when zero).
func RenderTerminal(md []byte, width int) (string, error) {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("terminal renderer: %w", err)
	}
	out, err := r.Render(string(md))
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return out, nil
}
