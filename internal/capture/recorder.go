// Package capture accumulates input events into tables, numbers them,
// merges key repeats, and decides when a table is complete.
package capture

import (
	"fmt"
	"sort"
	"strconv"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/stlalpha/keytrace/internal/keys"
	"github.com/stlalpha/keytrace/internal/table"
)

// KeyState is the press state of a device key event.
type KeyState int

const (
	Pressed KeyState = iota
	Released
	Repeat
)

func (s KeyState) String() string {
	switch s {
	case Released:
		return "Released"
	case Repeat:
		return "Repeat"
	default:
		return "Pressed"
	}
}

// KeyInput is a terminal key event after layout resolution.
type KeyInput struct {
	Code        keys.Code
	Logical     keys.Logical
	Location    keys.Location
	Text        string
	NoModKey    keys.Logical
	AllModsText string
	Scancode    uint32
	Synthetic   bool
	Released    bool
	Repeat      bool
}

// DeviceKey is a raw device key event.
type DeviceKey struct {
	Code     keys.Code
	Scancode uint32
	State    KeyState
}

// Options configure a Recorder. Zero fields get working defaults.
type Options struct {
	Table       *table.Table
	Sink        Sink
	Manual      bool
	IdleTimeout time.Duration
	Clock       func() time.Time
}

type repeatKey struct {
	device bool
	code   keys.Code
}

// Recorder owns one capture session at a time. It is not safe for
// concurrent use; drive it from a single goroutine and deliver device
// events into that goroutine.
type Recorder struct {
	tbl         *table.Table
	sink        Sink
	now         func() time.Time
	idleTimeout time.Duration

	id           uuid.UUID
	started      time.Time
	rows         []table.Row
	eventNumber  int
	pressedCount int
	pressed      map[keys.Code]struct{}
	repeatRows   map[repeatKey]int
	repeatCounts map[repeatKey]int
	mods         keys.Modifiers
	manual       bool
	focused      bool
	tracked      bool
	lastEvent    time.Time
	finalized    int
}

// New returns a recorder with a fresh table started.
func New(o Options) *Recorder {
	if o.Table == nil {
		o.Table = table.Default()
	}
	if o.Sink == nil {
		o.Sink = nopSink{}
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 500 * time.Millisecond
	}
	r := &Recorder{
		tbl:         o.Table,
		sink:        o.Sink,
		now:         o.Clock,
		idleTimeout: o.IdleTimeout,
		manual:      o.Manual,
		focused:     true,
		pressed:     make(map[keys.Code]struct{}),
	}
	r.begin()
	return r
}

func (r *Recorder) begin() {
	r.id = uuid.New()
	r.started = r.now()
	r.rows = nil
	r.eventNumber = 0
	r.repeatRows = make(map[repeatKey]int)
	r.repeatCounts = make(map[repeatKey]int)
	r.sink.TableStarted(r.id)
}

// Manual reports whether table termination is operator-controlled.
func (r *Recorder) Manual() bool { return r.manual }

// TableID returns the current table's identifier.
func (r *Recorder) TableID() uuid.UUID { return r.id }

// Finalized returns how many tables have been completed.
func (r *Recorder) Finalized() int { return r.finalized }

// Mods returns the last recorded modifier set.
func (r *Recorder) Mods() keys.Modifiers { return r.mods }

// DeviceTracking reports whether key releases are observable.
func (r *Recorder) DeviceTracking() bool { return r.tracked }

// Held returns the device-observed held keys, sorted.
func (r *Recorder) Held() []keys.Code {
	out := make([]keys.Code, 0, len(r.pressed))
	for c := range r.pressed {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// appendRow stamps the event number on the row, stores it and hands it
// to the sink. Every appended row consumes one number.
func (r *Recorder) appendRow(row table.Row) {
	row[table.ColNumber] = strconv.Itoa(r.eventNumber)
	r.eventNumber++
	r.rows = append(r.rows, row)
	r.sink.RowAppended(row)
}

func (r *Recorder) touch() { r.lastEvent = r.now() }

// Key records a terminal key event.
func (r *Recorder) Key(k KeyInput) {
	row := table.Row{
		table.ColKind:        "Term",
		table.ColLocation:    k.Location.String(),
		table.ColText:        niceText(k.Text),
		table.ColTextAllMods: niceText(k.AllModsText),
	}
	if k.Synthetic {
		row[table.ColSynth] = "true"
	}
	if k.Code != 0 {
		row[table.ColKeyCode] = k.Code.String()
	}
	if !k.Logical.IsZero() {
		row[table.ColKey] = k.Logical.String()
	}
	if !k.NoModKey.IsZero() {
		row[table.ColKeyNoMod] = k.NoModKey.String()
	}
	if k.Scancode != 0 {
		row[table.ColScancode] = fmt.Sprintf("0x%X", k.Scancode)
	}

	rk := repeatKey{code: k.Code}
	switch {
	case k.Repeat && k.Code != 0:
		r.repeatStep(rk, row)
	default:
		if k.Released {
			row[table.ColState] = "Released"
			delete(r.repeatRows, rk)
			delete(r.repeatCounts, rk)
		} else {
			row[table.ColState] = "Pressed"
		}
		r.appendRow(row)
	}
	r.touch()
	r.maybeFinalize()
}

// repeatStep appends a repeat row on the first repeat of a key and
// rewrites that row in place on subsequent ones.
func (r *Recorder) repeatStep(rk repeatKey, row table.Row) {
	if idx, ok := r.repeatRows[rk]; ok {
		r.repeatCounts[rk]++
		row[table.ColNumber] = r.rows[idx][table.ColNumber]
		row[table.ColState] = fmt.Sprintf("Rpt %4d", r.repeatCounts[rk])
		r.rows[idx] = row
		r.sink.RowUpdated(idx, row)
		return
	}
	r.repeatCounts[rk] = 1
	row[table.ColState] = "Rpt    1"
	r.appendRow(row)
	r.repeatRows[rk] = len(r.rows) - 1
}

// DeviceKey records a raw device key event. Device events are dropped
// while the terminal is unfocused unless keys are still held, so the
// releases that complete a table always register.
func (r *Recorder) DeviceKey(d DeviceKey) {
	if !r.focused && r.pressedCount <= 0 {
		return
	}
	row := table.Row{
		table.ColKind:    "Device",
		table.ColKeyCode: d.Code.String(),
	}
	if d.Scancode != 0 {
		row[table.ColScancode] = fmt.Sprintf("0x%X", d.Scancode)
	}
	rk := repeatKey{device: true, code: d.Code}
	switch d.State {
	case Repeat:
		r.repeatStep(rk, row)
	case Released:
		if _, held := r.pressed[d.Code]; held {
			delete(r.pressed, d.Code)
			r.pressedCount--
		}
		delete(r.repeatRows, rk)
		delete(r.repeatCounts, rk)
		row[table.ColState] = "Released"
		r.appendRow(row)
	default:
		if _, held := r.pressed[d.Code]; !held {
			r.pressed[d.Code] = struct{}{}
			r.pressedCount++
		}
		row[table.ColState] = "Pressed"
		r.appendRow(row)
	}
	r.touch()
	r.maybeFinalize()
}

// SetModifiers records a modifier-state change. An empty set before
// the first event produces no row.
func (r *Recorder) SetModifiers(m keys.Modifiers) {
	m &^= keys.ModAltGr
	if m == r.mods {
		return
	}
	r.mods = m
	if m != 0 || r.eventNumber != 0 {
		r.appendRow(table.Row{
			table.ColKind:      "ModC",
			table.ColModifiers: m.String(),
		})
	}
	r.touch()
	r.maybeFinalize()
}

// Paste records an out-of-band text delivery. The text is always
// quoted so whitespace and control characters survive the table.
func (r *Recorder) Paste(text string) {
	r.appendRow(table.Row{
		table.ColKind: "Paste",
		table.ColText: strconv.Quote(text),
	})
	r.touch()
	r.maybeFinalize()
}

// Focus records a focus change. Focus rows only appear once a table
// has content. Losing focus while device keys are held synthesizes one
// release row per held key, the way windowing systems do so observers
// are not left with stuck keys; the device-tracked held state is
// untouched, since the real releases are still coming.
func (r *Recorder) Focus(gained bool) {
	if r.eventNumber > 0 {
		state := "Lost"
		if gained {
			state = "Received"
		}
		r.appendRow(table.Row{
			table.ColKind:  "Focus",
			table.ColState: state,
		})
	}
	r.focused = gained
	if !gained {
		for _, c := range r.Held() {
			r.Key(KeyInput{
				Code:      c,
				Location:  keys.LocationOf(c),
				Synthetic: true,
				Released:  true,
			})
		}
	}
	r.touch()
	r.maybeFinalize()
}

// SeedPressed marks keys that were already held when capture started,
// without emitting rows, so their releases balance out.
func (r *Recorder) SeedPressed(codes []keys.Code) {
	for _, c := range codes {
		if _, held := r.pressed[c]; !held {
			r.pressed[c] = struct{}{}
			r.pressedCount++
		}
	}
}

// SetDeviceTracking switches between device-observed release tracking
// and the idle-timeout finalizer. Turning tracking off forgets held
// state, since nothing can observe the releases anymore.
func (r *Recorder) SetDeviceTracking(on bool) {
	if r.tracked == on {
		return
	}
	r.tracked = on
	if !on {
		r.pressed = make(map[keys.Code]struct{})
		r.pressedCount = 0
		r.mods = 0
	}
}

// MiddleClick terminates the current table, or toggles between manual
// and automatic mode when the table is empty.
func (r *Recorder) MiddleClick() {
	if r.manual {
		if r.eventNumber == 0 {
			r.setManual(false)
		} else {
			r.finalize()
			r.resetInput()
		}
		return
	}
	if r.eventNumber == 0 {
		r.setManual(true)
		return
	}
	r.resetInput()
	if r.tracked {
		r.maybeFinalize()
	} else {
		r.finalize()
	}
}

func (r *Recorder) resetInput() {
	r.pressedCount = 0
	r.pressed = make(map[keys.Code]struct{})
	r.mods = 0
}

func (r *Recorder) setManual(m bool) {
	r.manual = m
	r.sink.ModeChanged(m)
}

func (r *Recorder) maybeFinalize() {
	if r.manual || !r.tracked {
		return
	}
	if r.pressedCount == 0 && r.mods == 0 && r.eventNumber != 0 {
		r.finalize()
	}
}

func (r *Recorder) finalize() {
	rows := make([]table.Row, len(r.rows))
	copy(rows, r.rows)
	f := FinalizedTable{
		ID:       r.id,
		Rows:     rows,
		Started:  r.started,
		Ended:    r.now(),
		Markdown: r.tbl.Render(rows),
	}
	r.finalized++
	r.sink.TableFinalized(f)
	r.begin()
}

// IdleDeadline returns when the current table will finalize for lack
// of events. It only applies in automatic mode without device
// tracking, where key releases are invisible.
func (r *Recorder) IdleDeadline() (time.Time, bool) {
	if r.manual || r.tracked || r.eventNumber == 0 {
		return time.Time{}, false
	}
	return r.lastEvent.Add(r.idleTimeout), true
}

// CheckIdle finalizes the table when its idle deadline has passed.
func (r *Recorder) CheckIdle() bool {
	dl, ok := r.IdleDeadline()
	if !ok || r.now().Before(dl) {
		return false
	}
	r.finalize()
	return true
}

// niceText leaves printable text alone and quotes anything with
// control characters in it.
func niceText(s string) string {
	if s == "" {
		return ""
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return strconv.Quote(s)
		}
	}
	return s
}
