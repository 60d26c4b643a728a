// Package tui is the interactive front end: a bubbletea program that
// records terminal and device input events into tables, shows the
// in-progress table live, and commits finalized tables to the terminal
// scrollback as markdown.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"golang.org/x/text/unicode/runenames"

	"github.com/stlalpha/keytrace/internal/capture"
	"github.com/stlalpha/keytrace/internal/device"
	"github.com/stlalpha/keytrace/internal/keymap"
	"github.com/stlalpha/keytrace/internal/keys"
	"github.com/stlalpha/keytrace/internal/table"
)

const baseTitle = "keytrace"

// DeviceMsg delivers one device-monitor event into the update loop.
// Whoever runs the program forwards monitor events with Program.Send.
type DeviceMsg struct {
	Event device.Event
}

// idleMsg fires when the current table may have gone idle. The
// generation guards against ticks scheduled for an earlier table.
type idleMsg struct {
	gen int
}

// Options configure a Model.
type Options struct {
	Table       *table.Table
	Keymap      *keymap.Keymap
	Manual      bool
	IdleTimeout time.Duration
	// ExtraSink additionally receives recorder output, e.g. the web
	// view. May be nil.
	ExtraSink capture.Sink
}

// Model is the bubbletea model. It is also the recorder's sink: the
// recorder runs synchronously inside Update, so sink callbacks mutate
// the model directly and queue commands for the update loop to return.
type Model struct {
	rec *capture.Recorder
	tbl *table.Table
	km  *keymap.Keymap

	spin       spinner.Model
	spinActive bool

	liveRows    []table.Row
	manual      bool
	deviceCount int
	devMods     keys.Modifiers
	lastTerm    keys.Code
	lastRune    rune
	tables      int
	width       int
	height      int

	pending []tea.Cmd
	idleGen int
}

// NewModel builds the model and starts its recorder.
func NewModel(o Options) *Model {
	m := &Model{
		tbl:    o.Table,
		km:     o.Keymap,
		manual: o.Manual,
		spin:   spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
	if m.tbl == nil {
		m.tbl = table.Default()
	}
	var sink capture.Sink = m
	if o.ExtraSink != nil {
		sink = capture.MultiSink{m, o.ExtraSink}
	}
	m.rec = capture.New(capture.Options{
		Table:       m.tbl,
		Sink:        sink,
		Manual:      o.Manual,
		IdleTimeout: o.IdleTimeout,
	})
	return m
}

// Recorder exposes the model's recorder, for tests and for seeding.
func (m *Model) Recorder() *capture.Recorder { return m.rec }

func (m *Model) title() string {
	if m.manual {
		return baseTitle + " - Manual Mode"
	}
	return baseTitle
}

func (m *Model) Init() tea.Cmd {
	return tea.SetWindowTitle(m.title())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Paste {
			m.rec.Paste(string(msg.Runes))
			return m, m.afterEvent()
		}
		if msg.Type == tea.KeyCtrlC && !m.rec.Manual() {
			return m, tea.Quit
		}
		in := m.translateKey(msg, m.devMods)
		if in.Code != 0 && in.Code == m.lastTerm {
			// No releases arrive from the terminal, so a key seen
			// again unreleased is autorepeat. With a device attached
			// the held set must confirm it.
			in.Repeat = !m.rec.DeviceTracking() || m.heldByDevice(in.Code)
		}
		m.lastTerm = in.Code
		if r := firstRune(in.Text); r != 0 {
			m.lastRune = r
		}
		m.rec.Key(in)
		return m, m.afterEvent()

	case tea.MouseMsg:
		if msg.Action == tea.MouseActionPress {
			switch msg.Button {
			case tea.MouseButtonMiddle:
				m.rec.MiddleClick()
			case tea.MouseButtonRight:
				m.km.ResetCompose()
			}
		}
		return m, m.afterEvent()

	case tea.FocusMsg:
		m.rec.Focus(true)
		return m, m.afterEvent()

	case tea.BlurMsg:
		m.rec.Focus(false)
		return m, m.afterEvent()

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case DeviceMsg:
		m.handleDevice(msg.Event)
		return m, m.afterEvent()

	case idleMsg:
		if msg.gen == m.idleGen {
			m.rec.CheckIdle()
		}
		return m, m.afterEvent()

	case spinner.TickMsg:
		if !m.spinActive {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

// handleDevice feeds one monitor event into the recorder.
func (m *Model) handleDevice(ev device.Event) {
	switch ev.Type {
	case device.EventAttach:
		m.deviceCount++
		m.rec.SetDeviceTracking(true)
		m.rec.SeedPressed(ev.Held)
		for _, c := range ev.Held {
			m.applyModifier(c, true)
		}
		if m.devMods != 0 {
			m.rec.SetModifiers(m.devMods &^ keys.ModAltGr)
		}

	case device.EventDetach:
		m.deviceCount--
		if m.deviceCount <= 0 {
			m.deviceCount = 0
			m.devMods = 0
			m.rec.SetDeviceTracking(false)
		}

	case device.EventKey:
		k := ev.Key
		if k.Code.IsButton() {
			if k.Value != device.ValuePress {
				return
			}
			switch k.Code {
			case keys.BtnMiddle:
				m.rec.MiddleClick()
			case keys.BtnRight:
				m.km.ResetCompose()
			}
			return
		}
		if keys.IsModifier(k.Code) && k.Value != device.ValueRepeat {
			m.applyModifier(k.Code, k.Value == device.ValuePress)
			m.rec.SetModifiers(m.devMods &^ keys.ModAltGr)
		} else if k.Value == device.ValuePress {
			// Advance CapsLock and dead-key state; the terminal
			// delivers the composed text separately.
			m.km.Resolve(k.Code, m.devMods)
		}
		if k.Value != device.ValueRepeat && k.Code == m.lastTerm {
			// A fresh press or a release means the next terminal
			// event for this key is not autorepeat.
			m.lastTerm = 0
		}
		m.rec.DeviceKey(capture.DeviceKey{
			Code:     k.Code,
			Scancode: k.Scancode,
			State:    keyState(k.Value),
		})
	}
}

// applyModifier maintains the device-observed modifier set. The right
// alt key carries the AltGr bit on layouts with a third level.
func (m *Model) applyModifier(c keys.Code, pressed bool) {
	bit := keys.ModifierBit(c)
	if bit == 0 {
		return
	}
	if c == keys.AltRight && m.km.HasAltGr() {
		bit |= keys.ModAltGr
	}
	if pressed {
		m.devMods |= bit
	} else {
		m.devMods &^= bit
	}
}

func (m *Model) heldByDevice(c keys.Code) bool {
	for _, h := range m.rec.Held() {
		if h == c {
			return true
		}
	}
	return false
}

// afterEvent drains sink-queued commands and re-arms the idle timer.
func (m *Model) afterEvent() tea.Cmd {
	cmds := m.pending
	m.pending = nil

	if dl, ok := m.rec.IdleDeadline(); ok {
		m.idleGen++
		gen := m.idleGen
		cmds = append(cmds, tea.Tick(time.Until(dl), func(time.Time) tea.Msg {
			return idleMsg{gen: gen}
		}))
	}

	active := len(m.liveRows) > 0
	if active && !m.spinActive {
		m.spinActive = true
		cmds = append(cmds, m.spin.Tick)
	} else if !active {
		m.spinActive = false
	}

	if len(cmds) == 0 {
		return nil
	}
	return tea.Batch(cmds...)
}

// capture.Sink implementation. The recorder calls these synchronously
// from inside Update.

func (m *Model) TableStarted(uuid.UUID) {
	m.liveRows = nil
	m.lastTerm = 0
}

func (m *Model) RowAppended(row table.Row) {
	m.liveRows = append(m.liveRows, row.Clone())
}

func (m *Model) RowUpdated(index int, row table.Row) {
	if index >= 0 && index < len(m.liveRows) {
		m.liveRows[index] = row.Clone()
	}
}

func (m *Model) TableFinalized(t capture.FinalizedTable) {
	m.tables++
	m.pending = append(m.pending, tea.Println(t.Markdown+"\n"))
}

func (m *Model) ModeChanged(manual bool) {
	m.manual = manual
	m.pending = append(m.pending, tea.SetWindowTitle(m.title()))
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(detailStyle.Render(m.detailLine()))
	b.WriteString("\n")
	b.WriteString(headerStyle.Render(m.tbl.HeaderLine()))
	b.WriteString("\n")
	b.WriteString(m.tbl.SeparatorLine())
	b.WriteString("\n")

	rows := m.liveRows
	// Leave room for the status, detail and header lines.
	if m.height > 5 && len(rows) > m.height-5 {
		rows = rows[len(rows)-(m.height-5):]
	}
	for _, r := range rows {
		b.WriteString(m.tbl.RowLine(r))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) statusLine() string {
	mode := modeAutoStyle.Render("AUTO")
	if m.manual {
		mode = modeManualStyle.Render("MANUAL")
	}
	spin := " "
	if m.spinActive {
		spin = m.spin.View()
	}
	status := fmt.Sprintf(" %s devices:%d tables:%d layout:%s  middle-click: finalize/mode, right-click: reset compose, ctrl+c: quit",
		spin, m.deviceCount, m.tables, m.km.LayoutName())
	return titleStyle.Render(baseTitle) + mode + statusStyle.Render(status)
}

// detailLine names the last typed character, which is handy when the
// table shows an unexpected glyph.
func (m *Model) detailLine() string {
	var parts []string
	if m.lastRune != 0 {
		parts = append(parts, fmt.Sprintf("U+%04X %s", m.lastRune, runenames.Name(m.lastRune)))
	}
	if p := m.km.Pending(); p != 0 {
		parts = append(parts, fmt.Sprintf("dead key pending: %q", p))
	}
	if m.km.CapsOn() {
		parts = append(parts, "caps")
	}
	if m.devMods != 0 {
		parts = append(parts, "mods: "+m.devMods.String())
	}
	if len(parts) == 0 {
		return "type to record events"
	}
	return strings.Join(parts, "  ")
}

func keyState(value int32) capture.KeyState {
	switch value {
	case device.ValueRelease:
		return capture.Released
	case device.ValueRepeat:
		return capture.Repeat
	default:
		return capture.Pressed
	}
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}
