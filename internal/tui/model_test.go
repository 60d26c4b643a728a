package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/stlalpha/keytrace/internal/capture"
	"github.com/stlalpha/keytrace/internal/device"
	"github.com/stlalpha/keytrace/internal/keymap"
	"github.com/stlalpha/keytrace/internal/keys"
	"github.com/stlalpha/keytrace/internal/table"
)

func newTestModel(t *testing.T, manual bool) *Model {
	t.Helper()
	km, err := keymap.New("us")
	if err != nil {
		t.Fatal(err)
	}
	return NewModel(Options{Keymap: km, Manual: manual})
}

func keyMsg(runes string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(runes)}
}

func deviceKey(code keys.Code, value int32) DeviceMsg {
	return DeviceMsg{Event: device.Event{
		Type: device.EventKey,
		Key:  device.KeyEvent{Code: code, Value: value},
	}}
}

func attach(held ...keys.Code) DeviceMsg {
	return DeviceMsg{Event: device.Event{Type: device.EventAttach, Held: held}}
}

func TestModel_TerminalKeyBecomesRow(t *testing.T) {
	m := newTestModel(t, true)

	m.Update(keyMsg("a"))
	if len(m.liveRows) != 1 {
		t.Fatalf("live rows: %d", len(m.liveRows))
	}
	row := m.liveRows[0]
	if row[table.ColKind] != "Term" || row[table.ColKey] != `Character("a")` {
		t.Errorf("row: %v", row)
	}
	if row[table.ColKeyCode] != "KeyA" {
		t.Errorf("attributed code: %q", row[table.ColKeyCode])
	}
	if row[table.ColState] != "Pressed" {
		t.Errorf("state: %q", row[table.ColState])
	}
}

func TestModel_TerminalOnlyRepeat(t *testing.T) {
	m := newTestModel(t, true)

	m.Update(keyMsg("a"))
	m.Update(keyMsg("a"))
	if len(m.liveRows) != 2 {
		t.Fatalf("live rows: %d", len(m.liveRows))
	}
	if got := m.liveRows[1][table.ColState]; got != "Rpt    1" {
		t.Errorf("second press state: %q", got)
	}
	// A different key breaks the run.
	m.Update(keyMsg("b"))
	if got := m.liveRows[2][table.ColState]; got != "Pressed" {
		t.Errorf("new key state: %q", got)
	}
}

func TestModel_DeviceRepeatNeedsHeldKey(t *testing.T) {
	m := newTestModel(t, true)
	m.Update(attach())

	// Terminal press without the device holding the key: a re-press,
	// not autorepeat.
	m.Update(keyMsg("a"))
	m.Update(keyMsg("a"))
	last := m.liveRows[len(m.liveRows)-1]
	if last[table.ColState] != "Pressed" {
		t.Errorf("untracked repeat state: %q", last[table.ColState])
	}

	// With the device reporting the key down, the repeat is real.
	m.Update(deviceKey(keys.KeyA, device.ValuePress))
	m.Update(keyMsg("a"))
	m.Update(keyMsg("a"))
	last = m.liveRows[len(m.liveRows)-1]
	if last[table.ColState] != "Rpt    1" {
		t.Errorf("tracked repeat state: %q", last[table.ColState])
	}
}

func TestModel_DeviceLifecycleFinalizesTable(t *testing.T) {
	m := newTestModel(t, false)
	m.Update(attach())
	if !m.rec.DeviceTracking() {
		t.Fatal("tracking not enabled on attach")
	}

	m.Update(deviceKey(keys.KeyA, device.ValuePress))
	m.Update(keyMsg("a"))
	if m.tables != 0 {
		t.Fatal("finalized early")
	}
	m.Update(deviceKey(keys.KeyA, device.ValueRelease))
	if m.tables != 1 {
		t.Fatalf("tables = %d", m.tables)
	}
	if len(m.liveRows) != 0 {
		t.Errorf("live rows after finalize: %d", len(m.liveRows))
	}

	// Detach falls back to terminal-only operation.
	m.Update(DeviceMsg{Event: device.Event{Type: device.EventDetach}})
	if m.rec.DeviceTracking() {
		t.Error("tracking still on after last detach")
	}
}

func TestModel_DeviceModifierRows(t *testing.T) {
	m := newTestModel(t, true)
	m.Update(attach())

	m.Update(deviceKey(keys.ShiftLeft, device.ValuePress))
	var modRow table.Row
	for _, r := range m.liveRows {
		if r[table.ColKind] == "ModC" {
			modRow = r
		}
	}
	if modRow == nil || modRow[table.ColModifiers] != "SH" {
		t.Fatalf("modifier row: %v (rows %v)", modRow, m.liveRows)
	}
	// The shift press itself is also a device row.
	found := false
	for _, r := range m.liveRows {
		if r[table.ColKind] == "Device" && r[table.ColKeyCode] == "ShiftLeft" {
			found = true
		}
	}
	if !found {
		t.Error("no device row for the modifier key")
	}
}

func TestModel_MiddleClickTogglesManual(t *testing.T) {
	m := newTestModel(t, false)

	m.Update(tea.MouseMsg{Action: tea.MouseActionPress, Button: tea.MouseButtonMiddle})
	if !m.manual {
		t.Fatal("expected manual mode")
	}
	if !strings.Contains(m.title(), "Manual Mode") {
		t.Errorf("title: %q", m.title())
	}
	m.Update(tea.MouseMsg{Action: tea.MouseActionPress, Button: tea.MouseButtonMiddle})
	if m.manual {
		t.Fatal("expected automatic mode")
	}
	if m.title() != baseTitle {
		t.Errorf("title: %q", m.title())
	}
}

func TestModel_DeviceMiddleButton(t *testing.T) {
	m := newTestModel(t, false)
	m.Update(attach())
	m.Update(deviceKey(keys.BtnMiddle, device.ValuePress))
	if !m.manual {
		t.Error("device middle button should toggle mode")
	}
	// Button events never become rows.
	if len(m.liveRows) != 0 {
		t.Errorf("button produced rows: %v", m.liveRows)
	}
}

func TestModel_RightButtonResetsCompose(t *testing.T) {
	km, err := keymap.New("us-intl")
	if err != nil {
		t.Fatal(err)
	}
	m := NewModel(Options{Keymap: km, Manual: true})
	m.Update(attach())

	// Backquote is a dead key on us-intl.
	m.Update(deviceKey(41, device.ValuePress))
	if km.Pending() == 0 {
		t.Fatal("expected pending dead key")
	}
	m.Update(tea.MouseMsg{Action: tea.MouseActionPress, Button: tea.MouseButtonRight})
	if km.Pending() != 0 {
		t.Error("right click should reset compose state")
	}
}

func TestModel_PasteRow(t *testing.T) {
	m := newTestModel(t, true)
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("hello world"), Paste: true})
	row := m.liveRows[0]
	if row[table.ColKind] != "Paste" || row[table.ColText] != `"hello world"` {
		t.Errorf("paste row: %v", row)
	}
}

func TestModel_CtrlC(t *testing.T) {
	auto := newTestModel(t, false)
	_, cmd := auto.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("ctrl+c in automatic mode should quit")
	}
	if msg := cmd(); msg != tea.Quit() {
		t.Errorf("expected quit, got %T", msg)
	}

	manual := newTestModel(t, true)
	manual.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if len(manual.liveRows) != 1 {
		t.Fatalf("ctrl+c in manual mode should record, rows=%d", len(manual.liveRows))
	}
	row := manual.liveRows[0]
	if row[table.ColKey] != `Character("c")` || row[table.ColText] != `"\x03"` {
		t.Errorf("ctrl+c row: %v", row)
	}
}

func TestModel_FocusRows(t *testing.T) {
	m := newTestModel(t, true)
	m.Update(keyMsg("a"))
	m.Update(tea.BlurMsg{})
	row := m.liveRows[len(m.liveRows)-1]
	if row[table.ColKind] != "Focus" || row[table.ColState] != "Lost" {
		t.Errorf("blur row: %v", row)
	}
	m.Update(tea.FocusMsg{})
	row = m.liveRows[len(m.liveRows)-1]
	if row[table.ColState] != "Received" {
		t.Errorf("focus row: %v", row)
	}
}

func TestModel_ViewShowsLiveTable(t *testing.T) {
	m := newTestModel(t, true)
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m.Update(keyMsg("x"))

	view := m.View()
	if !strings.Contains(view, "| Number") {
		t.Error("view missing table header")
	}
	if !strings.Contains(view, `Character("x")`) {
		t.Error("view missing live row")
	}
	if !strings.Contains(view, "LATIN SMALL LETTER X") {
		t.Error("view missing rune name detail")
	}
}

func TestModel_AttachSeedsHeldKeys(t *testing.T) {
	m := newTestModel(t, false)
	m.Update(attach(keys.KeyA, keys.ShiftLeft))

	if got := len(m.rec.Held()); got != 2 {
		t.Fatalf("held after attach: %d", got)
	}
	if m.devMods != keys.ModShift {
		t.Errorf("devMods = %v", m.devMods)
	}
	// Releasing the seeded keys closes out cleanly without going
	// negative.
	m.Update(deviceKey(keys.KeyA, device.ValueRelease))
	m.Update(deviceKey(keys.ShiftLeft, device.ValueRelease))
	if m.tables != 1 {
		t.Errorf("tables = %d", m.tables)
	}
}

var _ capture.Sink = (*Model)(nil)
