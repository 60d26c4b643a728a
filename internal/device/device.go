// Package device discovers Linux input devices under /dev/input,
// reads their raw key events, and tracks hotplug. On platforms without
// evdev the package compiles to a monitor that never finds a device,
// and capture degrades to terminal-only operation.
package device

import (
	"strings"

	"github.com/stlalpha/keytrace/internal/keys"
)

// Kind classifies an input device by its reported capabilities.
type Kind int

const (
	KindKeyboard Kind = iota
	KindMouse
)

func (k Kind) String() string {
	switch k {
	case KindMouse:
		return "mouse"
	default:
		return "keyboard"
	}
}

// Device is one attached input device.
type Device struct {
	Path string
	Name string
	Kind Kind
}

// Key event values in the input subsystem's encoding.
const (
	ValueRelease int32 = 0
	ValuePress   int32 = 1
	ValueRepeat  int32 = 2
)

// KeyEvent is one raw key or button event. Scancode is the hardware
// scancode the device reported alongside the event, or 0.
type KeyEvent struct {
	Code     keys.Code
	Value    int32
	Scancode uint32
}

// EventType discriminates monitor events.
type EventType int

const (
	// EventKey is a key or button event from an attached device.
	EventKey EventType = iota
	// EventAttach reports a newly attached device. Held lists the keys
	// the device reported as already down at attach time.
	EventAttach
	// EventDetach reports a removed or failed device.
	EventDetach
)

// Event is one message from the device monitor.
type Event struct {
	Type   EventType
	Device Device
	Key    KeyEvent
	Held   []keys.Code
}

// Filter selects devices by name substring. An empty include list
// admits everything; exclude wins over include.
type Filter struct {
	Include []string
	Exclude []string
}

// Match reports whether a device name passes the filter.
func (f Filter) Match(name string) bool {
	lower := strings.ToLower(name)
	for _, pat := range f.Exclude {
		if pat != "" && strings.Contains(lower, strings.ToLower(pat)) {
			return false
		}
	}
	if len(f.Include) == 0 {
		return true
	}
	for _, pat := range f.Include {
		if strings.Contains(lower, strings.ToLower(pat)) {
			return true
		}
	}
	return false
}

// Event type and code constants from input-event-codes.h, limited to
// what the reader needs.
const (
	evSyn uint16 = 0x00
	evKey uint16 = 0x01
	evMsc uint16 = 0x04

	synReport uint16 = 0x00
	mscScan   uint16 = 0x04

	keyMax = 0x2ff
)

// grouper pairs MSC_SCAN scancodes with the EV_KEY event they precede.
// The kernel delivers the scancode first, then the key event, then a
// SYN_REPORT closing the frame.
type grouper struct {
	scancode uint32
}

// feed consumes one raw event and returns the key event it completes,
// if any.
func (g *grouper) feed(typ, code uint16, value int32) (KeyEvent, bool) {
	switch typ {
	case evMsc:
		if code == mscScan {
			g.scancode = uint32(value)
		}
	case evKey:
		ev := KeyEvent{Code: keys.Code(code), Value: value, Scancode: g.scancode}
		g.scancode = 0
		return ev, true
	case evSyn:
		if code == synReport {
			g.scancode = 0
		}
	}
	return KeyEvent{}, false
}
