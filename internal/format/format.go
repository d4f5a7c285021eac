// Package format renders tables for reports and CLI output. Callers build
// a table once through TableBuilder and get it back as box-drawn ASCII or
// as a GitHub-flavoured Markdown table.
package format

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Mode selects the rendering.
type Mode int

const (
	ASCII    Mode = iota // box-drawn terminal table
	Markdown             // pipe table for .md reports
)

// ColumnAlign is the horizontal alignment of a column.
type ColumnAlign int

const (
	AlignDefault ColumnAlign = iota
	AlignLeft
	AlignCenter
	AlignRight
)

// ColumnConfig formats one column. Number is 1-based; MaxWidth 0 means
// unlimited.
type ColumnConfig struct {
	Number   int
	Align    ColumnAlign
	MaxWidth int
}

// TableBuilder accumulates rows and renders them in its Mode.
type TableBuilder interface {
	Header(cols ...string)
	// Row appends a data row; values are printed with fmt.Sprint.
	Row(vals ...any)
	Footer(vals ...any)
	Columns(cfgs ...ColumnConfig)
	// Len is the number of data rows appended so far.
	Len() int
	String() string
}

// NewTable returns an empty table rendered in m.
func NewTable(m Mode) TableBuilder {
	w := table.NewWriter()
	if m == ASCII {
		style := table.StyleLight
		style.Format.Header = text.FormatDefault
		style.Format.Footer = text.FormatDefault
		w.SetStyle(style)
	}
	return &prettyTable{w: w, mode: m}
}

type prettyTable struct {
	w    table.Writer
	mode Mode
	rows int
}

func (p *prettyTable) Header(cols ...string) {
	row := make(table.Row, len(cols))
	for i, c := range cols {
		row[i] = c
	}
	p.w.AppendHeader(row)
}

func (p *prettyTable) Row(vals ...any) {
	p.w.AppendRow(table.Row(vals))
	p.rows++
}

func (p *prettyTable) Footer(vals ...any) {
	p.w.AppendFooter(table.Row(vals))
}

func (p *prettyTable) Columns(cfgs ...ColumnConfig) {
	out := make([]table.ColumnConfig, 0, len(cfgs))
	for _, c := range cfgs {
		out = append(out, table.ColumnConfig{
			Number:   c.Number,
			Align:    align(c.Align),
			WidthMax: c.MaxWidth,
		})
	}
	p.w.SetColumnConfigs(out)
}

func (p *prettyTable) Len() int { return p.rows }

func (p *prettyTable) String() string {
	if p.mode == Markdown {
		return p.w.RenderMarkdown()
	}
	return p.w.Render()
}

func align(a ColumnAlign) text.Align {
	switch a {
	case AlignLeft:
		return text.AlignLeft
	case AlignCenter:
		return text.AlignCenter
	case AlignRight:
		return text.AlignRight
	}
	return text.AlignDefault
}
