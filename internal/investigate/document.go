package investigate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/net/html"
)

// Document formats.
const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
	FormatText     = "text"
	FormatPDF      = "pdf"
)

// Document is the extracted plain text of a report.
type Document struct {
	Path   string
	Format string
	Text   string
}

// FormatFor maps a file extension to a document format.
func FormatFor(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return FormatMarkdown, nil
	case ".html", ".htm":
		return FormatHTML, nil
	case ".txt", ".text":
		return FormatText, nil
	case ".pdf":
		return FormatPDF, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedDocument, filepath.Ext(path))
}

// Ingest reads the document at path and extracts its text. pdftotext names
// the external converter used for PDFs; "pdftotext" when empty.
func Ingest(ctx context.Context, path, pdftotext string) (*Document, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no path given", ErrDocumentMissing)
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDocumentMissing, path)
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrUnsupportedDocument, path)
	}
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}

	var body string
	switch format {
	case FormatPDF:
		body, err = pdfText(ctx, pdftotext, path)
	default:
		var data []byte
		data, err = os.ReadFile(path)
		if err != nil {
			break
		}
		switch format {
		case FormatMarkdown:
			body = MarkdownText(data)
		case FormatHTML:
			body, err = HTMLText(bytes.NewReader(data))
		default:
			body = string(data)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("extract %s text: %w", format, err)
	}
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDocument, path)
	}
	return &Document{Path: path, Format: format, Text: body}, nil
}

// MarkdownText returns the readable text of a Markdown document, one block
// per line, including code blocks.
func MarkdownText(src []byte) string {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))
	var buf bytes.Buffer
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock {
				buf.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			buf.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(node.Value)
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				buf.Write(seg.Value(src))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

// HTMLText returns the visible text of an HTML document. Script and style
// contents are dropped.
func HTMLText(r io.Reader) (string, error) {
	z := html.NewTokenizer(r)
	var buf bytes.Buffer
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return buf.String(), nil
			}
			return "", z.Err()
		case html.StartTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "noscript":
				skip++
			case "p", "div", "br", "li", "h1", "h2", "h3", "h4", "h5", "h6", "tr", "pre":
				buf.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "noscript":
				if skip > 0 {
					skip--
				}
			}
		case html.TextToken:
			if skip == 0 {
				buf.Write(z.Text())
				buf.WriteByte(' ')
			}
		}
	}
}

func pdfText(ctx context.Context, bin, path string) (string, error) {
	if bin == "" {
		bin = "pdftotext"
	}
	cmd := exec.CommandContext(ctx, bin, "-layout", "-enc", "UTF-8", path, "-")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("%s not found on PATH", bin)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s: %s", bin, msg)
		}
		return "", err
	}
	return string(out), nil
}
