package keymap

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/stlalpha/keytrace/internal/keys"
)

var layouts = map[string]*Layout{
	"us":      layoutUS(),
	"us-intl": layoutUSIntl(),
}

func chars(base, shift string) entry {
	return entry{levels: [4]value{{text: base}, {text: shift}}}
}

func letter(s string) entry {
	return entry{letter: true, levels: [4]value{{text: s}}}
}

// addRow fills entries for a contiguous run of key codes from two
// parallel strings, one rune per key. Letters get case-derived shift
// levels; everything else takes the shifted rune literally.
func addRow(e map[keys.Code]entry, start keys.Code, base, shift string) {
	baseRunes := []rune(base)
	shiftRunes := []rune(shift)
	for i, r := range baseRunes {
		code := start + keys.Code(i)
		if unicode.IsLetter(r) {
			e[code] = letter(string(r))
		} else {
			e[code] = chars(string(r), string(shiftRunes[i]))
		}
	}
}

func usEntries() map[keys.Code]entry {
	e := make(map[keys.Code]entry)
	addRow(e, 2, "1234567890-=", "!@#$%^&*()_+")
	addRow(e, 16, "qwertyuiop[]", "QWERTYUIOP{}")
	addRow(e, 30, "asdfghjkl;'", "ASDFGHJKL:\"")
	addRow(e, 44, "zxcvbnm,./", "ZXCVBNM<>?")
	e[41] = chars("`", "~")
	e[43] = chars("\\", "|")
	e[57] = chars(" ", " ")
	e[86] = chars("\\", "|")

	// Numpad, assuming NumLock on. The shift level repeats the base
	// since shift has no effect there.
	for code, s := range map[keys.Code]string{
		55: "*", 74: "-", 78: "+", 98: "/",
		71: "7", 72: "8", 73: "9",
		75: "4", 76: "5", 77: "6",
		79: "1", 80: "2", 81: "3",
		82: "0", 83: ".", 117: "=", 121: ",",
	} {
		e[code] = chars(s, s)
	}
	return e
}

func namedKeys() map[keys.Code]namedKey {
	n := map[keys.Code]namedKey{
		1:   {"Escape", "\x1b"},
		14:  {"Backspace", "\x08"},
		15:  {"Tab", "\t"},
		28:  {"Enter", "\r"},
		58:  {"CapsLock", ""},
		69:  {"NumLock", ""},
		70:  {"ScrollLock", ""},
		96:  {"Enter", "\r"},
		99:  {"PrintScreen", ""},
		102: {"Home", ""},
		103: {"ArrowUp", ""},
		104: {"PageUp", ""},
		105: {"ArrowLeft", ""},
		106: {"ArrowRight", ""},
		107: {"End", ""},
		108: {"ArrowDown", ""},
		109: {"PageDown", ""},
		110: {"Insert", ""},
		111: {"Delete", "\x7f"},
		113: {"AudioVolumeMute", ""},
		114: {"AudioVolumeDown", ""},
		115: {"AudioVolumeUp", ""},
		116: {"Power", ""},
		119: {"Pause", ""},
		127: {"ContextMenu", ""},
	}
	for i := 0; i < 10; i++ {
		n[keys.Code(59+i)] = namedKey{fmt.Sprintf("F%d", i+1), ""}
	}
	n[87] = namedKey{"F11", ""}
	n[88] = namedKey{"F12", ""}
	for i := 0; i < 12; i++ {
		n[keys.Code(183+i)] = namedKey{fmt.Sprintf("F%d", i+13), ""}
	}
	return n
}

func layoutUS() *Layout {
	l := &Layout{
		name:    "us",
		entries: usEntries(),
		named:   namedKeys(),
	}
	l.buildReverse()
	return l
}

func layoutUSIntl() *Layout {
	e := usEntries()
	e[41] = entry{levels: [4]value{{dead: '`'}, {dead: '~'}}}
	e[40] = entry{levels: [4]value{{dead: '\''}, {dead: '"'}}}
	e[7] = entry{levels: [4]value{{text: "6"}, {dead: '^'}}}

	for code, s := range map[keys.Code]string{
		16: "ä", 17: "å", 18: "é", 19: "®", 20: "þ",
		21: "ü", 22: "ú", 23: "í", 24: "ó", 25: "ö",
		30: "á", 31: "ß", 32: "ð", 38: "ø",
		44: "æ", 46: "©", 49: "ñ", 50: "µ",
		2: "¡", 53: "¿",
	} {
		ent := e[code]
		ent.levels[2] = value{text: s}
		e[code] = ent
	}
	ent := e[31]
	ent.levels[3] = value{text: "§"}
	e[31] = ent

	l := &Layout{
		name:    "us-intl",
		altGr:   true,
		entries: e,
		named:   namedKeys(),
		compose: intlCompose(),
	}
	l.buildReverse()
	return l
}

func intlCompose() map[rune]map[rune]string {
	pairs := map[rune]string{
		'`':  "aàeèiìoòuù",
		'\'': "aácçeéiíoóuúyý",
		'"':  "aäeëiïoöuüyÿ",
		'^':  "aâeêiîoôuû",
		'~':  "aãnñoõ",
	}
	m := make(map[rune]map[rune]string)
	for dead, s := range pairs {
		t := map[rune]string{' ': string(dead)}
		rs := []rune(s)
		for i := 0; i < len(rs); i += 2 {
			t[rs[i]] = string(rs[i+1])
			t[unicode.ToUpper(rs[i])] = strings.ToUpper(string(rs[i+1]))
		}
		m[dead] = t
	}
	return m
}

// buildReverse indexes produced text and key names back to codes for
// terminal-event attribution. Lower codes win ties, keeping main-row
// keys ahead of their numpad twins.
func (l *Layout) buildReverse() {
	l.reverse = make(map[string]keys.Code)
	codes := make([]keys.Code, 0, len(l.entries)+len(l.named))
	for c := range l.entries {
		codes = append(codes, c)
	}
	for c := range l.named {
		if _, dup := l.entries[c]; !dup {
			codes = append(codes, c)
		}
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })

	add := func(s string, c keys.Code) {
		if s == "" {
			return
		}
		if _, taken := l.reverse[s]; !taken {
			l.reverse[s] = c
		}
	}
	for _, c := range codes {
		if nk, ok := l.named[c]; ok {
			add(nk.name, c)
		}
		if e, ok := l.entries[c]; ok {
			for idx, v := range e.levels {
				add(v.text, c)
				if e.letter && idx == 0 {
					add(strings.ToUpper(v.text), c)
				}
			}
		}
	}
}
