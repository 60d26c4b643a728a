package table

import (
	"fmt"
	"io"
)

// Printer receives table output as it is produced. UpdateRow replaces
// the most recently emitted row, which repeat counting relies on.
type Printer interface {
	BeginTable(t *Table)
	PrintRow(t *Table, row Row)
	UpdateRow(t *Table, row Row)
}

// StreamPrinter writes markdown tables to a writer as rows arrive.
// With inplace set (stdout on a terminal), the newline after a row is
// held back until the next row starts, so an update can rewrite the
// row with a carriage return. Without inplace every update prints as
// its own line.
type StreamPrinter struct {
	w       io.Writer
	inplace bool
	pending bool
}

func NewStreamPrinter(w io.Writer, inplace bool) *StreamPrinter {
	return &StreamPrinter{w: w, inplace: inplace}
}

func (p *StreamPrinter) endLine() {
	if p.pending {
		fmt.Fprint(p.w, "\n")
		p.pending = false
	}
}

func (p *StreamPrinter) BeginTable(t *Table) {
	p.endLine()
	fmt.Fprintln(p.w)
	fmt.Fprintln(p.w, t.HeaderLine())
	fmt.Fprintln(p.w, t.SeparatorLine())
}

func (p *StreamPrinter) PrintRow(t *Table, row Row) {
	p.endLine()
	if p.inplace {
		fmt.Fprint(p.w, t.RowLine(row))
		p.pending = true
		return
	}
	fmt.Fprintln(p.w, t.RowLine(row))
}

func (p *StreamPrinter) UpdateRow(t *Table, row Row) {
	if !p.inplace {
		fmt.Fprintln(p.w, t.RowLine(row))
		return
	}
	fmt.Fprint(p.w, "\r", t.RowLine(row))
	p.pending = true
}
