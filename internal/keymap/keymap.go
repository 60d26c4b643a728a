// Package keymap resolves physical key codes to logical keys and text
// through layered keyboard layouts, including dead-key composition.
package keymap

import (
	"fmt"
	"sort"
	"strings"

	"github.com/stlalpha/keytrace/internal/keys"
)

// value is what one key produces at one shift level: either text or a
// dead key, never both.
type value struct {
	text string
	dead rune
}

// entry holds a key's four levels: base, shift, altgr, shift+altgr.
// For letter entries only the base and altgr levels are stored; the
// shifted forms are derived by case mapping so CapsLock behaves.
type entry struct {
	levels [4]value
	letter bool
}

type namedKey struct {
	name string
	text string
}

// Layout is an immutable keyboard layout.
type Layout struct {
	name    string
	altGr   bool
	entries map[keys.Code]entry
	named   map[keys.Code]namedKey
	compose map[rune]map[rune]string
	reverse map[string]keys.Code
}

// Name returns the layout identifier, e.g. "us".
func (l *Layout) Name() string { return l.name }

func (l *Layout) lookup(code keys.Code, mods keys.Modifiers, caps bool) value {
	e, ok := l.entries[code]
	if !ok {
		return value{}
	}
	shift := mods.Has(keys.ModShift)
	if e.letter {
		shift = shift != caps
	}
	idx := 0
	if l.altGr && mods.Has(keys.ModAltGr) {
		idx |= 2
	}
	if shift {
		idx |= 1
	}
	v := e.levels[idx]
	if v == (value{}) && e.letter && idx&1 == 1 {
		// Letters derive their shifted form from the unshifted level.
		v = e.levels[idx&^1]
	}
	if v == (value{}) && idx >= 2 {
		// No third-level symbol: fall back to the plain levels.
		v = e.levels[idx&1]
		if v == (value{}) && e.letter {
			v = e.levels[0]
		}
	}
	if e.letter && shift && v.text != "" {
		v.text = strings.ToUpper(v.text)
	}
	return v
}

// Keymap is a layout plus the mutable state a real keyboard carries:
// CapsLock and a pending dead key.
type Keymap struct {
	layout  *Layout
	caps    bool
	pending rune
}

// New returns a keymap for the named layout.
func New(name string) (*Keymap, error) {
	l, ok := layouts[name]
	if !ok {
		return nil, fmt.Errorf("unknown keyboard layout %q (have: %s)", name, strings.Join(Layouts(), ", "))
	}
	return &Keymap{layout: l}, nil
}

// Layouts lists the available layout names.
func Layouts() []string {
	names := make([]string, 0, len(layouts))
	for name := range layouts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LayoutName returns the active layout's identifier.
func (k *Keymap) LayoutName() string { return k.layout.name }

// HasAltGr reports whether the layout carries a third symbol level on
// the right alt key.
func (k *Keymap) HasAltGr() bool { return k.layout.altGr }

// CapsOn reports the tracked CapsLock state.
func (k *Keymap) CapsOn() bool { return k.caps }

// Pending returns the dead key awaiting composition, or 0.
func (k *Keymap) Pending() rune { return k.pending }

// ResetCompose drops any pending dead key.
func (k *Keymap) ResetCompose() { k.pending = 0 }

// Lookup resolves a key press to its logical key and text without
// touching CapsLock or dead-key state.
func (k *Keymap) Lookup(code keys.Code, mods keys.Modifiers) (keys.Logical, string) {
	if bit := keys.ModifierBit(code); bit != 0 {
		return keys.Named(k.modifierName(code, bit)), ""
	}
	if nk, ok := k.layout.named[code]; ok {
		return keys.Named(nk.name), nk.text
	}
	v := k.layout.lookup(code, mods, k.caps)
	switch {
	case v.dead != 0:
		return keys.DeadKey(v.dead), ""
	case v.text != "":
		return keys.Character(v.text), v.text
	default:
		return keys.Named(fmt.Sprintf("Unidentified(0x%X)", uint16(code))), ""
	}
}

func (k *Keymap) modifierName(code keys.Code, bit keys.Modifiers) string {
	switch bit {
	case keys.ModShift:
		return "Shift"
	case keys.ModControl:
		return "Control"
	case keys.ModSuper:
		return "Super"
	case keys.ModAlt:
		if k.layout.altGr && code == keys.AltRight {
			return "AltGraph"
		}
		return "Alt"
	}
	return "Unidentified"
}

// Resolve is Lookup plus state transitions: CapsLock toggles, a dead
// key becomes pending, and a pending dead key combines with the next
// character. Call it once per key press.
func (k *Keymap) Resolve(code keys.Code, mods keys.Modifiers) (keys.Logical, string) {
	if code == keys.CapsLock {
		k.caps = !k.caps
		return keys.Named("CapsLock"), ""
	}
	l, text := k.Lookup(code, mods)
	if l.IsDead() {
		k.pending = l.Dead()
		return l, ""
	}
	if k.pending != 0 && text != "" {
		composed := k.layout.composeText(k.pending, text)
		k.pending = 0
		return keys.Character(composed), composed
	}
	return l, text
}

func (l *Layout) composeText(dead rune, base string) string {
	if m := l.compose[dead]; m != nil {
		if out, ok := m[firstRune(base)]; ok {
			return out
		}
	}
	// Uncombinable pair: emit the diacritic followed by the text.
	return string(dead) + base
}

// Unmodified resolves a key as if no modifiers were held, for the
// "Key (no modifiers)" column.
func (k *Keymap) Unmodified(code keys.Code) keys.Logical {
	l, _ := k.Lookup(code, 0)
	return l
}

// TextAllMods resolves the text a key produces with every held
// modifier applied, including Control combinations that yield control
// characters.
func (k *Keymap) TextAllMods(code keys.Code, mods keys.Modifiers) string {
	_, text := k.Lookup(code, mods&^keys.ModControl)
	if !mods.Has(keys.ModControl) || len(text) == 0 {
		return text
	}
	r := firstRune(text)
	switch {
	case r >= 'a' && r <= 'z':
		return string(rune(r - 'a' + 1))
	case r >= 'A' && r <= 'Z':
		return string(rune(r - 'A' + 1))
	case r == '[':
		return "\x1b"
	case r == '\\':
		return "\x1c"
	case r == ']':
		return "\x1d"
	case r == '^':
		return "\x1e"
	case r == '_':
		return "\x1f"
	case r == ' ':
		return "\x00"
	}
	return text
}

// CodeFor returns the physical key that produces the given logical key
// on this layout, or 0 when none does. Character lookups match the
// base and shift levels.
func (k *Keymap) CodeFor(l keys.Logical) keys.Code {
	if t := l.Text(); t != "" {
		return k.layout.reverse[t]
	}
	return k.layout.reverse[l.String()]
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}
