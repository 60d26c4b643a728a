// Package table renders input-event rows as fixed-width markdown
// tables suitable for pasting into bug reports.
package table

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// Column headers, also the keys of a Row.
const (
	ColNumber      = "Number"
	ColKind        = "Kind"
	ColSynth       = "Synth"
	ColState       = "State"
	ColKeyCode     = "KeyCode"
	ColKey         = "Key"
	ColLocation    = "Location"
	ColText        = "Text"
	ColModifiers   = "Modifiers"
	ColKeyNoMod    = "Key (no modifiers)"
	ColTextAllMods = "Text (all modifiers)"
	ColScancode    = "Scancode"
)

// Column is one table column. A column's rendered width is the larger
// of its configured width and its header length; zero means the header
// sets the width. ExtendedWidth leaves room for long Unidentified(..)
// names on layouts that produce them.
type Column struct {
	Header        string
	Width         int
	ExtendedWidth int
	UseExtended   bool
	Enabled       bool
}

func (c Column) width() int {
	w := c.Width
	if c.UseExtended {
		w = c.ExtendedWidth
	}
	if h := runewidth.StringWidth(c.Header); h > w {
		w = h
	}
	return w
}

// Row maps column headers to cell values. Missing cells render empty.
type Row map[string]string

// Clone returns a copy of the row.
func (r Row) Clone() Row {
	c := make(Row, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

// Table is an ordered set of columns; it formats rows but holds none.
type Table struct {
	columns []Column
}

// New returns a table over a copy of the given columns.
func New(columns []Column) *Table {
	cols := make([]Column, len(columns))
	copy(cols, columns)
	return &Table{columns: cols}
}

// Options adjusts the default column set.
type Options struct {
	// ExtendedWidths switches every column with a larger extended
	// width to it.
	ExtendedWidths bool
	// ShowScancode enables the Scancode column.
	ShowScancode bool
	// Disabled lists column headers to drop from output.
	Disabled []string
}

// Default returns the standard event-table columns.
func Default() *Table {
	return Build(Options{})
}

// Build returns the standard event-table columns with options applied.
func Build(o Options) *Table {
	cols := []Column{
		{Header: ColNumber, Enabled: true},
		{Header: ColKind, Width: 6, Enabled: true},
		{Header: ColSynth, Width: 5, Enabled: true},
		{Header: ColState, Width: 8, Enabled: true},
		{Header: ColKeyCode, Width: 20, ExtendedWidth: 37, Enabled: true},
		{Header: ColKey, Width: 25, ExtendedWidth: 42, UseExtended: true, Enabled: true},
		{Header: ColLocation, Enabled: true},
		{Header: ColText, Width: 12, Enabled: true},
		{Header: ColModifiers, Width: 11, ExtendedWidth: 11, Enabled: true},
		{Header: ColKeyNoMod, Width: 25, ExtendedWidth: 42, Enabled: true},
		{Header: ColTextAllMods, Enabled: true},
		{Header: ColScancode, Enabled: o.ShowScancode},
	}
	for i := range cols {
		if o.ExtendedWidths && cols[i].ExtendedWidth > cols[i].Width {
			cols[i].UseExtended = true
		}
		for _, d := range o.Disabled {
			if cols[i].Header == d {
				cols[i].Enabled = false
			}
		}
	}
	return New(cols)
}

// Columns returns a copy of the column set.
func (t *Table) Columns() []Column {
	cols := make([]Column, len(t.columns))
	copy(cols, t.columns)
	return cols
}

// EnabledHeaders returns the headers of enabled columns, in order.
func (t *Table) EnabledHeaders() []string {
	var hs []string
	for _, c := range t.columns {
		if c.Enabled {
			hs = append(hs, c.Header)
		}
	}
	return hs
}

// Cells flattens a row into enabled-column order.
func (t *Table) Cells(r Row) []string {
	var cells []string
	for _, c := range t.columns {
		if c.Enabled {
			cells = append(cells, r[c.Header])
		}
	}
	return cells
}

// HeaderLine renders the markdown header row.
func (t *Table) HeaderLine() string {
	var b strings.Builder
	for _, c := range t.columns {
		if !c.Enabled {
			continue
		}
		b.WriteString("| ")
		b.WriteString(runewidth.FillRight(c.Header, c.width()))
		b.WriteString(" ")
	}
	b.WriteString("|")
	return b.String()
}

// SeparatorLine renders the markdown separator row.
func (t *Table) SeparatorLine() string {
	var b strings.Builder
	for _, c := range t.columns {
		if !c.Enabled {
			continue
		}
		b.WriteString("| ")
		b.WriteString(strings.Repeat("-", c.width()))
		b.WriteString(" ")
	}
	b.WriteString("|")
	return b.String()
}

// RowLine renders one row. Cells wider than their column stretch it;
// nothing is truncated.
func (t *Table) RowLine(r Row) string {
	var b strings.Builder
	for _, c := range t.columns {
		if !c.Enabled {
			continue
		}
		b.WriteString("| ")
		b.WriteString(runewidth.FillRight(r[c.Header], c.width()))
		b.WriteString(" ")
	}
	b.WriteString("|")
	return b.String()
}

// Render produces the complete markdown table for the rows.
func (t *Table) Render(rows []Row) string {
	lines := make([]string, 0, len(rows)+2)
	lines = append(lines, t.HeaderLine(), t.SeparatorLine())
	for _, r := range rows {
		lines = append(lines, t.RowLine(r))
	}
	return strings.Join(lines, "\n")
}
