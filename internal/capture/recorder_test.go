package capture

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stlalpha/keytrace/internal/keys"
	"github.com/stlalpha/keytrace/internal/table"
)

// recordingSink remembers every callback in order.
type recordingSink struct {
	started   int
	rows      []table.Row
	updates   []int
	finalized []FinalizedTable
	modes     []bool
}

func (s *recordingSink) TableStarted(uuid.UUID)    { s.started++ }
func (s *recordingSink) RowAppended(row table.Row) { s.rows = append(s.rows, row.Clone()) }
func (s *recordingSink) RowUpdated(i int, row table.Row) {
	s.updates = append(s.updates, i)
	s.rows = append(s.rows, row.Clone())
}
func (s *recordingSink) TableFinalized(t FinalizedTable) { s.finalized = append(s.finalized, t) }
func (s *recordingSink) ModeChanged(m bool)              { s.modes = append(s.modes, m) }

func (s *recordingSink) lastRow(t *testing.T) table.Row {
	t.Helper()
	if len(s.rows) == 0 {
		t.Fatal("no rows recorded")
	}
	return s.rows[len(s.rows)-1]
}

// fakeClock hands out a controllable time.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestRecorder(o Options) (*Recorder, *recordingSink, *fakeClock) {
	sink := &recordingSink{}
	clock := &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	o.Sink = sink
	o.Clock = clock.now
	return New(o), sink, clock
}

func pressRelease(r *Recorder, c keys.Code) {
	r.DeviceKey(DeviceKey{Code: c, State: Pressed})
	r.DeviceKey(DeviceKey{Code: c, State: Released})
}

func TestRecorder_NumbersRows(t *testing.T) {
	r, sink, _ := newTestRecorder(Options{Manual: true})

	r.Key(KeyInput{Code: keys.KeyA, Logical: keys.Character("a"), Text: "a"})
	r.Key(KeyInput{Code: keys.KeyZ, Logical: keys.Character("z"), Text: "z"})
	r.Paste("hello")

	for i, row := range sink.rows {
		if got := row[table.ColNumber]; got != []string{"0", "1", "2"}[i] {
			t.Errorf("row %d: Number = %q", i, got)
		}
	}
	if sink.rows[2][table.ColKind] != "Paste" || sink.rows[2][table.ColText] != `"hello"` {
		t.Errorf("paste row: %v", sink.rows[2])
	}
}

func TestRecorder_AutoFinalizeOnAllReleased(t *testing.T) {
	r, sink, _ := newTestRecorder(Options{})
	r.SetDeviceTracking(true)

	r.DeviceKey(DeviceKey{Code: keys.KeyA, State: Pressed})
	r.DeviceKey(DeviceKey{Code: keys.KeyZ, State: Pressed})
	r.DeviceKey(DeviceKey{Code: keys.KeyA, State: Released})
	if len(sink.finalized) != 0 {
		t.Fatal("finalized with a key still held")
	}
	r.DeviceKey(DeviceKey{Code: keys.KeyZ, State: Released})
	if len(sink.finalized) != 1 {
		t.Fatalf("expected 1 finalized table, got %d", len(sink.finalized))
	}

	f := sink.finalized[0]
	if len(f.Rows) != 4 {
		t.Errorf("expected 4 rows, got %d", len(f.Rows))
	}
	if f.Markdown == "" || f.ID == (uuid.UUID{}) {
		t.Error("finalized table missing markdown or id")
	}
	// A fresh table begins numbered from zero.
	if sink.started != 2 {
		t.Errorf("expected 2 TableStarted calls, got %d", sink.started)
	}
	pressRelease(r, keys.KeyA)
	if got := sink.finalized[1].Rows[0][table.ColNumber]; got != "0" {
		t.Errorf("new table first row Number = %q", got)
	}
}

func TestRecorder_HeldModifiersBlockFinalize(t *testing.T) {
	r, sink, _ := newTestRecorder(Options{})
	r.SetDeviceTracking(true)

	r.SetModifiers(keys.ModShift)
	pressRelease(r, keys.KeyA)
	if len(sink.finalized) != 0 {
		t.Fatal("finalized with shift still held")
	}
	r.SetModifiers(0)
	if len(sink.finalized) != 1 {
		t.Fatalf("expected finalize once shift released, got %d", len(sink.finalized))
	}
}

func TestRecorder_ModifierRows(t *testing.T) {
	r, sink, _ := newTestRecorder(Options{Manual: true})

	// An empty modifier set before any event stays silent.
	r.SetModifiers(0)
	if len(sink.rows) != 0 {
		t.Fatal("empty modifier change on empty table produced a row")
	}

	r.SetModifiers(keys.ModShift | keys.ModControl)
	row := sink.lastRow(t)
	if row[table.ColKind] != "ModC" || row[table.ColModifiers] != "CO|SH" {
		t.Errorf("modifier row: %v", row)
	}

	// Unchanged set appends nothing.
	n := len(sink.rows)
	r.SetModifiers(keys.ModShift | keys.ModControl)
	if len(sink.rows) != n {
		t.Error("unchanged modifier set produced a row")
	}

	// AltGr participates in layout resolution only.
	r.SetModifiers(keys.ModShift | keys.ModControl | keys.ModAltGr)
	if len(sink.rows) != n {
		t.Error("AltGr alone produced a modifier row")
	}

	r.SetModifiers(0)
	if got := sink.lastRow(t)[table.ColModifiers]; got != "" {
		t.Errorf("cleared modifier row shows %q", got)
	}
}

func TestRecorder_RepeatRowsUpdateInPlace(t *testing.T) {
	r, sink, _ := newTestRecorder(Options{Manual: true})
	r.SetDeviceTracking(true)

	r.DeviceKey(DeviceKey{Code: keys.KeyA, State: Pressed})
	r.DeviceKey(DeviceKey{Code: keys.KeyA, State: Repeat})
	row := sink.lastRow(t)
	if row[table.ColState] != "Rpt    1" || row[table.ColNumber] != "1" {
		t.Fatalf("first repeat row: %v", row)
	}

	r.DeviceKey(DeviceKey{Code: keys.KeyA, State: Repeat})
	r.DeviceKey(DeviceKey{Code: keys.KeyA, State: Repeat})
	row = sink.lastRow(t)
	if row[table.ColState] != "Rpt    3" {
		t.Errorf("third repeat state: %q", row[table.ColState])
	}
	// The updates landed on the same row, keeping its number.
	if len(sink.updates) != 2 || sink.updates[0] != 1 || sink.updates[1] != 1 {
		t.Errorf("update indexes: %v", sink.updates)
	}
	if row[table.ColNumber] != "1" {
		t.Errorf("repeat row renumbered to %q", row[table.ColNumber])
	}

	// Release seals the row; the next repeat cycle starts fresh.
	r.DeviceKey(DeviceKey{Code: keys.KeyA, State: Released})
	r.DeviceKey(DeviceKey{Code: keys.KeyA, State: Pressed})
	r.DeviceKey(DeviceKey{Code: keys.KeyA, State: Repeat})
	if got := sink.lastRow(t)[table.ColState]; got != "Rpt    1" {
		t.Errorf("repeat after release: %q", got)
	}
}

func TestRecorder_TermRepeat(t *testing.T) {
	r, sink, _ := newTestRecorder(Options{Manual: true})

	k := KeyInput{Code: keys.KeyA, Logical: keys.Character("a"), Text: "a"}
	r.Key(k)
	k.Repeat = true
	r.Key(k)
	r.Key(k)
	row := sink.lastRow(t)
	if row[table.ColState] != "Rpt    2" || row[table.ColKind] != "Term" {
		t.Errorf("term repeat row: %v", row)
	}
	// Device and terminal repeats of the same code count separately.
	r.DeviceKey(DeviceKey{Code: keys.KeyA, State: Repeat})
	if got := sink.lastRow(t)[table.ColState]; got != "Rpt    1" {
		t.Errorf("device repeat after term repeats: %q", got)
	}
}

func TestRecorder_FocusRows(t *testing.T) {
	r, sink, _ := newTestRecorder(Options{Manual: true})

	// Focus changes on an empty table stay silent.
	r.Focus(false)
	r.Focus(true)
	if len(sink.rows) != 0 {
		t.Fatalf("focus rows on empty table: %v", sink.rows)
	}

	r.Key(KeyInput{Code: keys.Enter, Logical: keys.Named("Enter")})
	r.Focus(false)
	row := sink.lastRow(t)
	if row[table.ColKind] != "Focus" || row[table.ColState] != "Lost" {
		t.Errorf("focus row: %v", row)
	}
	r.Focus(true)
	if got := sink.lastRow(t)[table.ColState]; got != "Received" {
		t.Errorf("focus regained state: %q", got)
	}
}

func TestRecorder_UnfocusedDeviceEvents(t *testing.T) {
	r, sink, _ := newTestRecorder(Options{Manual: true})
	r.SetDeviceTracking(true)

	r.DeviceKey(DeviceKey{Code: keys.KeyA, State: Pressed})
	r.Focus(false)

	// Focus loss synthesizes a release for the held key.
	synth := sink.lastRow(t)
	if synth[table.ColKind] != "Term" || synth[table.ColSynth] != "true" ||
		synth[table.ColState] != "Released" || synth[table.ColKeyCode] != "KeyA" {
		t.Errorf("synthetic release row: %v", synth)
	}

	// While a key is still held, new presses keep recording and
	// counting even without focus.
	r.DeviceKey(DeviceKey{Code: keys.KeyZ, State: Pressed})
	if got := sink.lastRow(t)[table.ColKeyCode]; got != "KeyZ" {
		t.Errorf("press while unfocused with a key held: %q", got)
	}
	if got := len(r.Held()); got != 2 {
		t.Errorf("held after unfocused press: %d", got)
	}
	// The releases completing the held keys still land.
	r.DeviceKey(DeviceKey{Code: keys.KeyA, State: Released})
	r.DeviceKey(DeviceKey{Code: keys.KeyZ, State: Released})
	if got := sink.lastRow(t)[table.ColState]; got != "Released" {
		t.Errorf("release while unfocused: %q", got)
	}
	// With nothing held anymore, unfocused events are dropped.
	n := len(sink.rows)
	r.DeviceKey(DeviceKey{Code: keys.KeyA, State: Pressed})
	if len(sink.rows) != n {
		t.Error("recorded a device press while unfocused with nothing held")
	}
}

func TestRecorder_SeedPressed(t *testing.T) {
	r, sink, _ := newTestRecorder(Options{})
	r.SetDeviceTracking(true)

	r.SeedPressed([]keys.Code{keys.KeyA})
	if len(sink.rows) != 0 {
		t.Fatal("seeding emitted rows")
	}
	// The seeded key's release balances the count instead of going
	// negative and wedging finalization.
	r.DeviceKey(DeviceKey{Code: keys.KeyZ, State: Pressed})
	r.DeviceKey(DeviceKey{Code: keys.KeyZ, State: Released})
	if len(sink.finalized) != 0 {
		t.Fatal("finalized while seeded key still held")
	}
	r.DeviceKey(DeviceKey{Code: keys.KeyA, State: Released})
	if len(sink.finalized) != 1 {
		t.Fatalf("expected finalize after seeded release, got %d", len(sink.finalized))
	}
}

func TestRecorder_MiddleClick(t *testing.T) {
	r, sink, _ := newTestRecorder(Options{})
	r.SetDeviceTracking(true)

	// Automatic + empty table: switch to manual.
	r.MiddleClick()
	if !r.Manual() || len(sink.modes) != 1 || !sink.modes[0] {
		t.Fatalf("expected switch to manual, modes=%v", sink.modes)
	}

	// Manual + empty table: back to automatic.
	r.MiddleClick()
	if r.Manual() {
		t.Fatal("expected switch back to automatic")
	}

	// Automatic + content + held key: reset counts so finalize fires.
	r.DeviceKey(DeviceKey{Code: keys.KeyA, State: Pressed})
	r.SetModifiers(keys.ModShift)
	r.MiddleClick()
	if len(sink.finalized) != 1 {
		t.Fatalf("expected forced finalize, got %d", len(sink.finalized))
	}
	if r.Manual() {
		t.Error("forced finalize should not change mode")
	}

	// Manual + content: finalize and stay manual.
	r.MiddleClick()
	r.Key(KeyInput{Code: keys.KeyA, Logical: keys.Character("a"), Text: "a"})
	r.MiddleClick()
	if len(sink.finalized) != 2 {
		t.Fatalf("expected manual finalize, got %d", len(sink.finalized))
	}
	if !r.Manual() {
		t.Error("manual finalize should stay in manual mode")
	}
}

func TestRecorder_IdleFinalize(t *testing.T) {
	r, sink, clock := newTestRecorder(Options{IdleTimeout: 500 * time.Millisecond})

	// No deadline while the table is empty.
	if _, ok := r.IdleDeadline(); ok {
		t.Fatal("idle deadline on empty table")
	}

	r.Key(KeyInput{Code: keys.KeyA, Logical: keys.Character("a"), Text: "a"})
	dl, ok := r.IdleDeadline()
	if !ok || !dl.Equal(clock.t.Add(500*time.Millisecond)) {
		t.Fatalf("idle deadline = %v, %v", dl, ok)
	}

	clock.advance(300 * time.Millisecond)
	if r.CheckIdle() {
		t.Fatal("finalized before the deadline")
	}
	// Another event pushes the deadline out.
	r.Key(KeyInput{Code: keys.KeyZ, Logical: keys.Character("z"), Text: "z"})
	clock.advance(300 * time.Millisecond)
	if r.CheckIdle() {
		t.Fatal("finalized before the refreshed deadline")
	}
	clock.advance(300 * time.Millisecond)
	if !r.CheckIdle() {
		t.Fatal("expected idle finalize")
	}
	if len(sink.finalized) != 1 {
		t.Fatalf("finalized tables: %d", len(sink.finalized))
	}

	// Device tracking disables the idle finalizer.
	r.SetDeviceTracking(true)
	r.DeviceKey(DeviceKey{Code: keys.KeyA, State: Pressed})
	if _, ok := r.IdleDeadline(); ok {
		t.Error("idle deadline while device tracking")
	}
}

func TestMultiSink_FansOut(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	r := New(Options{Sink: MultiSink{a, b}, Manual: true})
	r.Key(KeyInput{Code: keys.KeyA, Logical: keys.Character("a"), Text: "a"})
	if a.started != 1 || b.started != 1 || len(a.rows) != 1 || len(b.rows) != 1 {
		t.Errorf("fan-out: a=%d/%d b=%d/%d", a.started, len(a.rows), b.started, len(b.rows))
	}
}
