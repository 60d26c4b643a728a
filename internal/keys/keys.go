// Package keys defines the shared vocabulary for physical key codes,
// logical keys, key locations and modifier state used throughout
// keytrace.
package keys

import "fmt"

// Code is a physical key or button code in the Linux input
// subsystem's numbering.
type Code uint16

// String returns the display name for the code, or an
// Unidentified(0x..) form for codes without one.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Unidentified(0x%X)", uint16(c))
}

// Known reports whether the code has a display name.
func (c Code) Known() bool {
	_, ok := codeNames[c]
	return ok
}

// IsButton reports whether the code is a pointer button rather than a
// keyboard key.
func (c Code) IsButton() bool {
	return c >= 0x100 && c < 0x160
}

// Location describes where on the keyboard a key sits, for keys that
// exist in more than one place.
type Location int

const (
	LocationStandard Location = iota
	LocationLeft
	LocationRight
	LocationNumpad
)

func (l Location) String() string {
	switch l {
	case LocationLeft:
		return "Left"
	case LocationRight:
		return "Right"
	case LocationNumpad:
		return "Numpad"
	default:
		return "Standard"
	}
}

// LocationOf returns the location of a physical key code.
func LocationOf(c Code) Location {
	switch c {
	case ControlLeft, ShiftLeft, AltLeft, SuperLeft:
		return LocationLeft
	case ControlRight, ShiftRight, AltRight, SuperRight:
		return LocationRight
	case 55, 71, 72, 73, 74, 75, 76, 77, 78, 79, 80, 81, 82, 83, 96, 98, 117, 121:
		return LocationNumpad
	default:
		return LocationStandard
	}
}

// Modifiers is a bit set of held modifier keys.
type Modifiers uint8

const (
	ModAlt Modifiers = 1 << iota
	ModControl
	ModShift
	ModSuper

	// ModAltGr marks the right alt key on layouts where it selects a
	// third symbol level. It participates in layout resolution only
	// and is never rendered by String.
	ModAltGr
)

// Has reports whether all modifiers in m2 are held.
func (m Modifiers) Has(m2 Modifiers) bool { return m&m2 == m2 }

// String renders the held modifiers in the two-letter pipe-separated
// form used in event tables ("AL|CO|SH|SU"). Empty set renders as "".
func (m Modifiers) String() string {
	var s string
	add := func(tag string) {
		if s != "" {
			s += "|"
		}
		s += tag
	}
	if m.Has(ModAlt) {
		add("AL")
	}
	if m.Has(ModControl) {
		add("CO")
	}
	if m.Has(ModShift) {
		add("SH")
	}
	if m.Has(ModSuper) {
		add("SU")
	}
	return s
}

// ModifierBit returns the modifier contributed by a physical key, or 0
// for non-modifier keys.
func ModifierBit(c Code) Modifiers {
	switch c {
	case AltLeft, AltRight:
		return ModAlt
	case ControlLeft, ControlRight:
		return ModControl
	case ShiftLeft, ShiftRight:
		return ModShift
	case SuperLeft, SuperRight:
		return ModSuper
	default:
		return 0
	}
}

// IsModifier reports whether the physical key is a modifier.
func IsModifier(c Code) bool { return ModifierBit(c) != 0 }

// Logical is the layout-resolved meaning of a key press: a named key,
// a produced character, or a dead key awaiting composition. The zero
// value is an unidentified key.
type Logical struct {
	name string
	text string
	dead rune
}

// Named returns a logical key known by name (Enter, F1, Shift, ...).
func Named(name string) Logical { return Logical{name: name} }

// Character returns a logical key that produces text.
func Character(text string) Logical { return Logical{text: text} }

// DeadKey returns a logical dead key carrying the diacritic it will
// apply.
func DeadKey(r rune) Logical { return Logical{dead: r} }

// Text returns the character text, or "" for named, dead and
// unidentified keys.
func (l Logical) Text() string { return l.text }

// IsDead reports whether the key is a dead key.
func (l Logical) IsDead() bool { return l.dead != 0 }

// Dead returns the diacritic of a dead key, or 0.
func (l Logical) Dead() rune { return l.dead }

// IsZero reports whether the key is unidentified.
func (l Logical) IsZero() bool { return l == Logical{} }

func (l Logical) String() string {
	switch {
	case l.dead != 0:
		return fmt.Sprintf("Dead(%q)", l.dead)
	case l.text != "":
		return fmt.Sprintf("Character(%q)", l.text)
	case l.name != "":
		return l.name
	default:
		return "Unidentified"
	}
}
