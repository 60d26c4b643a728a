//go:build !linux

package device

import (
	"errors"

	"github.com/stlalpha/keytrace/internal/keys"
)

// Only Linux exposes evdev. Elsewhere the monitor finds nothing and
// capture runs terminal-only.

func enumeratePaths() []string { return nil }

type reader struct {
	device Device
	held   []keys.Code
}

func openReader(string) (*reader, error) {
	return nil, errors.New("input devices not supported on this platform")
}

func (r *reader) run(func(KeyEvent)) {}
func (r *reader) close()             {}
