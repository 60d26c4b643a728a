// Package web serves an HTML live view of the capture: the current
// table updating over SSE, with finalized tables stacked below it for
// copying into bug reports.
package web

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stlalpha/keytrace/internal/capture"
	"github.com/stlalpha/keytrace/internal/table"
)

// maxFinalized bounds how many completed tables the view remembers.
const maxFinalized = 100

// State is the shared view model behind the web server. Recorders feed
// it through per-source sinks; browsers read it over SSE and the JSON
// API. All methods are safe for concurrent use.
type State struct {
	tbl *table.Table

	mu        sync.Mutex
	live      map[string]*liveTable
	finalized []finalizedEntry
	manual    bool
	subs      map[chan []byte]struct{}
}

type liveTable struct {
	ID   uuid.UUID
	Rows []table.Row
}

type finalizedEntry struct {
	Source string
	capture.FinalizedTable
}

// NewState returns an empty view model rendering rows through the
// given column set.
func NewState(tbl *table.Table) *State {
	return &State{
		tbl:  tbl,
		live: make(map[string]*liveTable),
		subs: make(map[chan []byte]struct{}),
	}
}

// Sink returns a capture sink feeding this state, with rows tagged by
// source ("local", or an SSH session id).
func (st *State) Sink(source string) capture.Sink {
	return &sourceSink{st: st, source: source}
}

// DropSource forgets a source's live table, for ended SSH sessions.
// Its finalized tables stay visible.
func (st *State) DropSource(source string) {
	st.mu.Lock()
	delete(st.live, source)
	msg := st.liveEventLocked(source, &liveTable{})
	st.mu.Unlock()
	st.broadcast(msg)
}

type sourceSink struct {
	st     *State
	source string
}

func (s *sourceSink) TableStarted(id uuid.UUID) {
	st := s.st
	st.mu.Lock()
	lt := &liveTable{ID: id}
	st.live[s.source] = lt
	msg := st.liveEventLocked(s.source, lt)
	st.mu.Unlock()
	st.broadcast(msg)
}

func (s *sourceSink) RowAppended(row table.Row) {
	st := s.st
	st.mu.Lock()
	lt := st.live[s.source]
	if lt == nil {
		lt = &liveTable{}
		st.live[s.source] = lt
	}
	lt.Rows = append(lt.Rows, row.Clone())
	msg := st.liveEventLocked(s.source, lt)
	st.mu.Unlock()
	st.broadcast(msg)
}

func (s *sourceSink) RowUpdated(index int, row table.Row) {
	st := s.st
	st.mu.Lock()
	lt := st.live[s.source]
	if lt == nil || index < 0 || index >= len(lt.Rows) {
		st.mu.Unlock()
		return
	}
	lt.Rows[index] = row.Clone()
	msg := st.liveEventLocked(s.source, lt)
	st.mu.Unlock()
	st.broadcast(msg)
}

func (s *sourceSink) TableFinalized(t capture.FinalizedTable) {
	st := s.st
	st.mu.Lock()
	entry := finalizedEntry{Source: s.source, FinalizedTable: t}
	// Newest first.
	st.finalized = append([]finalizedEntry{entry}, st.finalized...)
	if len(st.finalized) > maxFinalized {
		st.finalized = st.finalized[:maxFinalized]
	}
	msg := mustJSON(event{
		Type:  "finalized",
		Table: st.tableJSONLocked(entry, true),
	})
	st.mu.Unlock()
	st.broadcast(msg)
}

func (s *sourceSink) ModeChanged(manual bool) {
	st := s.st
	st.mu.Lock()
	st.manual = manual
	msg := mustJSON(event{Type: "mode", Manual: &manual})
	st.mu.Unlock()
	st.broadcast(msg)
}

// event is the SSE wire format.
type event struct {
	Type    string      `json:"type"`
	Source  string      `json:"source,omitempty"`
	ID      string      `json:"id,omitempty"`
	Headers []string    `json:"headers,omitempty"`
	Rows    [][]string  `json:"rows,omitempty"`
	Table   *tableJSON  `json:"table,omitempty"`
	Tables  []tableJSON `json:"tables,omitempty"`
	Manual  *bool       `json:"manual,omitempty"`
}

type tableJSON struct {
	ID       string     `json:"id"`
	Source   string     `json:"source"`
	Live     bool       `json:"live,omitempty"`
	Started  time.Time  `json:"started"`
	Ended    time.Time  `json:"ended"`
	RowCount int        `json:"row_count"`
	Headers  []string   `json:"headers,omitempty"`
	Rows     [][]string `json:"rows,omitempty"`
	Markdown string     `json:"markdown,omitempty"`
}

func (st *State) cells(rows []table.Row) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = st.tbl.Cells(r)
	}
	return out
}

func (st *State) liveEventLocked(source string, lt *liveTable) []byte {
	id := ""
	if lt.ID != (uuid.UUID{}) {
		id = lt.ID.String()
	}
	return mustJSON(event{
		Type:    "live",
		Source:  source,
		ID:      id,
		Headers: st.tbl.EnabledHeaders(),
		Rows:    st.cells(lt.Rows),
	})
}

func (st *State) tableJSONLocked(e finalizedEntry, full bool) *tableJSON {
	t := &tableJSON{
		ID:       e.ID.String(),
		Source:   e.Source,
		Started:  e.Started,
		Ended:    e.Ended,
		RowCount: len(e.Rows),
	}
	if full {
		t.Headers = st.tbl.EnabledHeaders()
		t.Rows = st.cells(e.Rows)
		t.Markdown = e.Markdown
	}
	return t
}

// snapshot renders the full state as one SSE event, sent to every new
// subscriber so a reloaded page catches up.
func (st *State) snapshot() []byte {
	st.mu.Lock()
	defer st.mu.Unlock()
	ev := event{Type: "snapshot", Manual: &st.manual, Headers: st.tbl.EnabledHeaders()}
	for _, e := range st.finalized {
		ev.Tables = append(ev.Tables, *st.tableJSONLocked(e, true))
	}
	for source, lt := range st.live {
		ev.Tables = append(ev.Tables, tableJSON{
			ID:       lt.ID.String(),
			Source:   source,
			Live:     true,
			RowCount: len(lt.Rows),
			Rows:     st.cells(lt.Rows),
		})
	}
	return mustJSON(ev)
}

// Tables lists finalized tables, newest first.
func (st *State) Tables() []tableJSON {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]tableJSON, 0, len(st.finalized))
	for _, e := range st.finalized {
		out = append(out, *st.tableJSONLocked(e, false))
	}
	return out
}

// Markdown returns a finalized table's markdown rendition by id.
func (st *State) Markdown(id string) (string, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, e := range st.finalized {
		if e.ID.String() == id {
			return e.Markdown, true
		}
	}
	return "", false
}

func (st *State) subscribe() chan []byte {
	ch := make(chan []byte, 64)
	st.mu.Lock()
	st.subs[ch] = struct{}{}
	st.mu.Unlock()
	return ch
}

func (st *State) unsubscribe(ch chan []byte) {
	st.mu.Lock()
	delete(st.subs, ch)
	st.mu.Unlock()
}

// broadcast fans an event out to subscribers, dropping it for any
// subscriber too far behind to keep up.
func (st *State) broadcast(msg []byte) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for ch := range st.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
