package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/stlalpha/keytrace/internal/capture"
	"github.com/stlalpha/keytrace/internal/keys"
)

// typeNames maps bubbletea's named key types onto the UI Events names
// the table uses, so terminal rows line up with device rows and with
// what windowing libraries report.
var typeNames = map[tea.KeyType]string{
	tea.KeyEnter:     "Enter",
	tea.KeyTab:       "Tab",
	tea.KeyShiftTab:  "Tab",
	tea.KeyBackspace: "Backspace",
	tea.KeyEsc:       "Escape",
	tea.KeyUp:        "ArrowUp",
	tea.KeyDown:      "ArrowDown",
	tea.KeyLeft:      "ArrowLeft",
	tea.KeyRight:     "ArrowRight",
	tea.KeyHome:      "Home",
	tea.KeyEnd:       "End",
	tea.KeyPgUp:      "PageUp",
	tea.KeyPgDown:    "PageDown",
	tea.KeyInsert:    "Insert",
	tea.KeyDelete:    "Delete",
	tea.KeyF1:        "F1",
	tea.KeyF2:        "F2",
	tea.KeyF3:        "F3",
	tea.KeyF4:        "F4",
	tea.KeyF5:        "F5",
	tea.KeyF6:        "F6",
	tea.KeyF7:        "F7",
	tea.KeyF8:        "F8",
	tea.KeyF9:        "F9",
	tea.KeyF10:       "F10",
	tea.KeyF11:       "F11",
	tea.KeyF12:       "F12",
	tea.KeyF13:       "F13",
	tea.KeyF14:       "F14",
	tea.KeyF15:       "F15",
	tea.KeyF16:       "F16",
	tea.KeyF17:       "F17",
	tea.KeyF18:       "F18",
	tea.KeyF19:       "F19",
	tea.KeyF20:       "F20",
}

// translateKey turns a terminal key event into a table row input,
// attributing a physical key through the layout's reverse index where
// one exists. mods is the device-observed modifier set, empty when no
// device is readable.
func (m *Model) translateKey(msg tea.KeyMsg, mods keys.Modifiers) capture.KeyInput {
	var in capture.KeyInput
	switch {
	case msg.Type == tea.KeyRunes, msg.Type == tea.KeySpace:
		text := string(msg.Runes)
		if msg.Type == tea.KeySpace {
			text = " "
		}
		in.Logical = keys.Character(text)
		in.Text = text
	case typeNames[msg.Type] != "":
		in.Logical = keys.Named(typeNames[msg.Type])
	case msg.Type >= tea.KeyCtrlA && msg.Type <= tea.KeyCtrlZ:
		// Terminals fold ctrl+letter into a control character; undo
		// the fold for the Key column and keep the raw byte as text.
		letter := string(rune('a' + msg.Type - tea.KeyCtrlA))
		in.Logical = keys.Character(letter)
		in.Text = string(rune(msg.Type))
	default:
		in.Logical = keys.Named(msg.String())
	}

	in.Code = m.km.CodeFor(in.Logical)
	if in.Code != 0 {
		in.Location = keys.LocationOf(in.Code)
		in.NoModKey = m.km.Unmodified(in.Code)
		in.AllModsText = m.km.TextAllMods(in.Code, mods)
	}
	return in
}
