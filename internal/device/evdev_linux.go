//go:build linux

package device

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/stlalpha/keytrace/internal/keys"
	"github.com/stlalpha/keytrace/internal/logging"
)

// struct input_event on 64-bit: two 8-byte time fields, then
// type/code/value.
const eventSize = 24

// ioctl request numbers for the evdev "read" ioctls: _IOC(_IOC_READ,
// 'E', nr, size).
func eviocg(nr, size uintptr) uintptr {
	return 2<<30 | size<<16 | 'E'<<8 | nr
}

func ioctl(fd uintptr, req uintptr, buf []byte) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 {
		return errno
	}
	return nil
}

func hasBit(bits []byte, n int) bool {
	if n/8 >= len(bits) {
		return false
	}
	return bits[n/8]&(1<<(n%8)) != 0
}

// enumeratePaths lists the evdev character devices.
func enumeratePaths() []string {
	matches, err := filepath.Glob(inputDir + "/event*")
	if err != nil {
		return nil
	}
	sort.Strings(matches)
	return matches
}

// reader owns one open device node.
type reader struct {
	device Device
	held   []keys.Code
	file   *os.File
}

// openReader opens and classifies a device node. Devices that cannot
// produce key events are rejected.
func openReader(path string) (*reader, error) {
	// Non-blocking so reads go through the runtime poller and Close
	// unblocks them.
	f, err := os.OpenFile(path, os.O_RDONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil, err
	}
	r, err := classify(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func classify(f *os.File, path string) (*reader, error) {
	fd := f.Fd()

	// Supported event types.
	var types [4]byte
	if err := ioctl(fd, eviocg(0x20, uintptr(len(types))), types[:]); err != nil {
		return nil, fmt.Errorf("EVIOCGBIT: %w", err)
	}
	if !hasBit(types[:], int(evKey)) {
		return nil, errors.New("no key events")
	}

	// Key capability bitmap decides keyboard vs mouse.
	var caps [keyMax/8 + 1]byte
	if err := ioctl(fd, eviocg(0x20+uintptr(evKey), uintptr(len(caps))), caps[:]); err != nil {
		return nil, fmt.Errorf("EVIOCGBIT EV_KEY: %w", err)
	}
	kind, ok := kindOf(caps[:])
	if !ok {
		return nil, errors.New("neither keyboard nor mouse")
	}

	var nameBuf [256]byte
	name := "unknown"
	if err := ioctl(fd, eviocg(0x06, uintptr(len(nameBuf))), nameBuf[:]); err == nil {
		name = strings.TrimRight(string(nameBuf[:]), "\x00")
	}

	// Keys already down at attach time, so their releases balance.
	var down [keyMax/8 + 1]byte
	var held []keys.Code
	if err := ioctl(fd, eviocg(0x18, uintptr(len(down))), down[:]); err == nil {
		for code := 0; code <= keyMax; code++ {
			if hasBit(down[:], code) {
				held = append(held, keys.Code(code))
			}
		}
	}

	return &reader{
		device: Device{Path: path, Name: name, Kind: kind},
		held:   held,
		file:   f,
	}, nil
}

// kindOf classifies by capability: anything with a left mouse button
// is a mouse, anything with the letter-key block is a keyboard.
func kindOf(caps []byte) (Kind, bool) {
	if hasBit(caps, int(keys.BtnLeft)) {
		return KindMouse, true
	}
	for c := keys.KeyA; c <= keys.KeyZ; c++ {
		if !hasBit(caps, int(c)) {
			return 0, false
		}
	}
	return KindKeyboard, true
}

// run reads events until the device fails or is closed, handing each
// completed key event to emit.
func (r *reader) run(emit func(KeyEvent)) {
	buf := make([]byte, eventSize*64)
	var g grouper
	for {
		n, err := r.file.Read(buf)
		if err != nil {
			if !errors.Is(err, os.ErrClosed) {
				logging.Debug("reading %s: %v", r.device.Path, err)
			}
			return
		}
		for off := 0; off+eventSize <= n; off += eventSize {
			typ := binary.LittleEndian.Uint16(buf[off+16:])
			code := binary.LittleEndian.Uint16(buf[off+18:])
			value := int32(binary.LittleEndian.Uint32(buf[off+20:]))
			if ev, ok := g.feed(typ, code, value); ok {
				emit(ev)
			}
		}
	}
}

func (r *reader) close() {
	r.file.Close()
}
