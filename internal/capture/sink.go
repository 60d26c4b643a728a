package capture

import (
	"time"

	"github.com/google/uuid"

	"github.com/stlalpha/keytrace/internal/table"
)

// FinalizedTable is a completed capture session.
type FinalizedTable struct {
	ID       uuid.UUID
	Rows     []table.Row
	Started  time.Time
	Ended    time.Time
	Markdown string
}

// Sink receives recorder output as it is produced. Calls arrive on the
// goroutine driving the recorder; sinks that cross goroutines do their
// own locking.
type Sink interface {
	// TableStarted announces a fresh, empty table.
	TableStarted(id uuid.UUID)
	// RowAppended delivers a newly numbered row.
	RowAppended(row table.Row)
	// RowUpdated replaces the row at index, used for repeat counting.
	RowUpdated(index int, row table.Row)
	// TableFinalized delivers a completed table.
	TableFinalized(t FinalizedTable)
	// ModeChanged reports a manual/automatic mode switch.
	ModeChanged(manual bool)
}

type nopSink struct{}

func (nopSink) TableStarted(uuid.UUID)        {}
func (nopSink) RowAppended(table.Row)         {}
func (nopSink) RowUpdated(int, table.Row)     {}
func (nopSink) TableFinalized(FinalizedTable) {}
func (nopSink) ModeChanged(bool)              {}

// MultiSink fans recorder callbacks out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) TableStarted(id uuid.UUID) {
	for _, s := range m {
		s.TableStarted(id)
	}
}

func (m MultiSink) RowAppended(row table.Row) {
	for _, s := range m {
		s.RowAppended(row)
	}
}

func (m MultiSink) RowUpdated(index int, row table.Row) {
	for _, s := range m {
		s.RowUpdated(index, row)
	}
}

func (m MultiSink) TableFinalized(t FinalizedTable) {
	for _, s := range m {
		s.TableFinalized(t)
	}
}

func (m MultiSink) ModeChanged(manual bool) {
	for _, s := range m {
		s.ModeChanged(manual)
	}
}

// PrinterSink streams rows through a table.Printer as they arrive, for
// plain (non-TUI) operation where finalized tables are already on the
// output by the time they complete.
type PrinterSink struct {
	tbl     *table.Table
	printer table.Printer
}

func NewPrinterSink(t *table.Table, p table.Printer) *PrinterSink {
	return &PrinterSink{tbl: t, printer: p}
}

func (s *PrinterSink) TableStarted(uuid.UUID) {
	s.printer.BeginTable(s.tbl)
}

func (s *PrinterSink) RowAppended(row table.Row) {
	s.printer.PrintRow(s.tbl, row)
}

func (s *PrinterSink) RowUpdated(_ int, row table.Row) {
	s.printer.UpdateRow(s.tbl, row)
}

func (s *PrinterSink) TableFinalized(FinalizedTable) {}
func (s *PrinterSink) ModeChanged(bool)              {}
