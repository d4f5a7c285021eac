package report

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const pageStyle = `<style>
body { font-family: sans-serif; margin: 2em; line-height: 1.4; }
table { border-collapse: collapse; }
th, td { border: 1px solid #999; padding: 4px 8px; }
code { background: #f2f2f2; }
</style>`

// HTML converts the artifact's Markdown document to a standalone page.
func HTML(a *Artifact) ([]byte, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	var body bytes.Buffer
	if err := md.Convert(a.Document(), &body); err != nil {
		return nil, fmt.Errorf("markdown to html: %w", err)
	}
	var out bytes.Buffer
	out.WriteString("<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>")
	out.WriteString(Title)
	out.WriteString("</title>")
	out.WriteString(pageStyle)
	out.WriteString("</head><body>")
	out.Write(body.Bytes())
	out.WriteString("</body></html>")
	return out.Bytes(), nil
}

// PDFSink prints the HTML rendering through headless Chrome and writes
// audit_report.pdf.
type PDFSink struct {
	Dir string
	// ExecPath overrides the browser binary; empty uses chromedp's lookup.
	ExecPath string
	Timeout  time.Duration
}

func (*PDFSink) Name() string { return FormatPDF }

func (s *PDFSink) Emit(ctx context.Context, a *Artifact) (string, error) {
	html, err := HTML(a)
	if err != nil {
		return "", err
	}
	pdf, err := s.print(ctx, string(html))
	if err != nil {
		return "", err
	}
	return writeFile(s.Dir, BaseName+".pdf", pdf)
}

func (s *PDFSink) print(ctx context.Context, html string) ([]byte, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	if s.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(s.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	var pdf []byte
	err := chromedp.Run(browserCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdf, _, err = page.PrintToPDF().WithPrintBackground(true).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("print pdf: %w", err)
	}
	return pdf, nil
}
