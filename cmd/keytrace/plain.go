package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/stlalpha/keytrace/internal/capture"
	"github.com/stlalpha/keytrace/internal/config"
	"github.com/stlalpha/keytrace/internal/device"
	"github.com/stlalpha/keytrace/internal/keymap"
	"github.com/stlalpha/keytrace/internal/keys"
	"github.com/stlalpha/keytrace/internal/table"
)

// runPlain streams markdown rows straight to stdout as device events
// arrive. Terminal input is left alone, so the mode works in pipes and
// over plain consoles; repeat rows rewrite in place only when stdout
// is a terminal.
func runPlain(cfg *config.Config, tbl *table.Table, km *keymap.Keymap, mon *device.Monitor, extra capture.Sink) error {
	inplace := term.IsTerminal(int(os.Stdout.Fd()))
	var sink capture.Sink = capture.NewPrinterSink(tbl, table.NewStreamPrinter(os.Stdout, inplace))
	if extra != nil {
		sink = capture.MultiSink{sink, extra}
	}
	rec := capture.New(capture.Options{
		Table:       tbl,
		Sink:        sink,
		Manual:      cfg.Capture.Manual,
		IdleTimeout: cfg.Capture.IdleTimeout.Duration,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var events <-chan device.Event
	if mon != nil {
		events = mon.Events()
	} else {
		log.Printf("WARN: device capture disabled; plain mode will record nothing")
	}

	// The idle finalizer only matters when nothing reports releases.
	idle := time.NewTicker(100 * time.Millisecond)
	defer idle.Stop()

	feed := deviceFeed{rec: rec, km: km}
	for {
		select {
		case sig := <-sigCh:
			if sig == os.Interrupt && rec.Manual() {
				// Interrupt is ignored in manual mode; middle click or
				// SIGTERM ends the session.
				continue
			}
			return nil
		case <-idle.C:
			rec.CheckIdle()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			feed.apply(ev)
		}
	}
}

// deviceFeed applies monitor events to a recorder, maintaining the
// device count, the device-observed modifier set, and the mouse
// shortcuts. It is the plain-mode twin of the TUI's device handling.
type deviceFeed struct {
	rec     *capture.Recorder
	km      *keymap.Keymap
	mods    keys.Modifiers
	devices int
}

func (f *deviceFeed) apply(ev device.Event) {
	switch ev.Type {
	case device.EventAttach:
		f.devices++
		f.rec.SetDeviceTracking(true)
		f.rec.SeedPressed(ev.Held)
		for _, c := range ev.Held {
			f.applyModifier(c, true)
		}
		if f.mods != 0 {
			f.rec.SetModifiers(f.mods &^ keys.ModAltGr)
		}

	case device.EventDetach:
		f.devices--
		if f.devices <= 0 {
			f.devices = 0
			f.mods = 0
			f.rec.SetDeviceTracking(false)
		}

	case device.EventKey:
		k := ev.Key
		if k.Code.IsButton() {
			if k.Value != device.ValuePress {
				return
			}
			switch k.Code {
			case keys.BtnMiddle:
				f.rec.MiddleClick()
			case keys.BtnRight:
				f.km.ResetCompose()
			}
			return
		}
		if keys.IsModifier(k.Code) && k.Value != device.ValueRepeat {
			f.applyModifier(k.Code, k.Value == device.ValuePress)
			f.rec.SetModifiers(f.mods &^ keys.ModAltGr)
		} else if k.Value == device.ValuePress {
			// Advance CapsLock and dead-key state.
			f.km.Resolve(k.Code, f.mods)
		}
		f.rec.DeviceKey(capture.DeviceKey{
			Code:     k.Code,
			Scancode: k.Scancode,
			State:    keyState(k.Value),
		})
	}
}

func (f *deviceFeed) applyModifier(c keys.Code, pressed bool) {
	bit := keys.ModifierBit(c)
	if bit == 0 {
		return
	}
	if c == keys.AltRight && f.km.HasAltGr() {
		bit |= keys.ModAltGr
	}
	if pressed {
		f.mods |= bit
	} else {
		f.mods &^= bit
	}
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
