// keytrace opens a terminal "window", captures keyboard and mouse
// input from the terminal and from raw input devices, and prints the
// observed event sequence as markdown tables for pasting into bug
// reports.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/stlalpha/keytrace/internal/capture"
	"github.com/stlalpha/keytrace/internal/config"
	"github.com/stlalpha/keytrace/internal/device"
	"github.com/stlalpha/keytrace/internal/keymap"
	"github.com/stlalpha/keytrace/internal/logging"
	"github.com/stlalpha/keytrace/internal/table"
	"github.com/stlalpha/keytrace/internal/tui"
	"github.com/stlalpha/keytrace/internal/web"
)

// version is stamped by the release build.
var version = "dev"

var (
	configPath  = flag.String("config", "", "path to config file (default: user config dir)")
	plainMode   = flag.Bool("plain", false, "no TUI: stream markdown rows to stdout as device events arrive")
	manualMode  = flag.Bool("manual", false, "start in manual mode (middle click finalizes tables)")
	layoutName  = flag.String("layout", "", "keyboard layout for device key resolution (us, us-intl)")
	webAddr     = flag.String("web", "", "serve the HTML live view on this address")
	listenAddr  = flag.String("listen", "", "serve the TUI over SSH on this address")
	listDevices = flag.Bool("list-devices", false, "print detected input devices and exit")
	debugFlag   = flag.Bool("debug", false, "enable debug logging")
	showVersion = flag.Bool("version", false, "print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("keytrace %s\n", version)
		return
	}

	path := *configPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			log.Fatalf("FATAL: %v", err)
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("FATAL: loading config: %v", err)
	}

	// Flags override the file.
	if *manualMode {
		cfg.Capture.Manual = true
	}
	if *layoutName != "" {
		cfg.Capture.Layout = *layoutName
	}
	if *debugFlag {
		cfg.Log.Debug = true
	}
	if *webAddr != "" {
		cfg.Web.Enabled = true
		cfg.Web.Addr = *webAddr
	}
	logging.DebugEnabled = cfg.Log.Debug

	km, err := keymap.New(cfg.Capture.Layout)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	tbl := table.Build(cfg.TableOptions())

	if *listDevices {
		printDevices(cfg)
		return
	}

	// In TUI modes the log would scribble over the display, so it goes
	// to the file alone; plain and serve modes log to stderr as well.
	tuiOnTerminal := !*plainMode && *listenAddr == ""
	if tuiOnTerminal {
		if cfg.Log.File != "" {
			f, err := tea.LogToFile(cfg.Log.File, "keytrace")
			if err != nil {
				log.Fatalf("FATAL: opening log file: %v", err)
			}
			defer f.Close()
		} else {
			log.SetOutput(io.Discard)
		}
	} else if closer, err := logging.Setup(cfg.Log.File); err != nil {
		log.Fatalf("FATAL: %v", err)
	} else if closer != nil {
		defer closer.Close()
	}

	var webState *web.State
	if cfg.Web.Enabled {
		webState = web.NewState(tbl)
		srv := web.NewServer(cfg.Web.Addr, webState)
		if err := srv.Start(cfg.Web.OpenBrowser); err != nil {
			log.Fatalf("FATAL: %v", err)
		}
		defer srv.Shutdown()
	}

	if *listenAddr != "" {
		if err := runSSH(cfg, *listenAddr, webState); err != nil {
			log.Fatalf("FATAL: %v", err)
		}
		return
	}

	// Device capture feeds the local modes only.
	var mon *device.Monitor
	if cfg.Devices.Enabled {
		mon = device.NewMonitor(cfg.DeviceOptions())
		mon.Start()
		defer mon.Stop()
	}

	var extra capture.Sink
	if webState != nil {
		extra = webState.Sink("local")
	}

	if *plainMode {
		err = runPlain(cfg, tbl, km, mon, extra)
	} else {
		err = runTUI(cfg, tbl, km, mon, extra)
	}
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
}

func runTUI(cfg *config.Config, tbl *table.Table, km *keymap.Keymap, mon *device.Monitor, extra capture.Sink) error {
	model := tui.NewModel(tui.Options{
		Table:       tbl,
		Keymap:      km,
		Manual:      cfg.Capture.Manual,
		IdleTimeout: cfg.Capture.IdleTimeout.Duration,
		ExtraSink:   extra,
	})
	p := tea.NewProgram(model,
		tea.WithMouseCellMotion(),
		tea.WithReportFocus(),
	)
	if mon != nil {
		go func() {
			for ev := range mon.Events() {
				p.Send(tui.DeviceMsg{Event: ev})
			}
		}()
	}
	_, err := p.Run()
	return err
}

// printDevices lists what the monitor can see, reusing the table
// renderer so the output pastes cleanly too.
func printDevices(cfg *config.Config) {
	mon := device.NewMonitor(cfg.DeviceOptions())
	mon.Start()
	defer mon.Stop()

	devs := mon.Devices()
	tbl := table.New([]table.Column{
		{Header: "Path", Width: 20, Enabled: true},
		{Header: "Name", Width: 36, Enabled: true},
		{Header: "Kind", Width: 8, Enabled: true},
	})
	fmt.Println(tbl.HeaderLine())
	fmt.Println(tbl.SeparatorLine())
	for _, d := range devs {
		fmt.Println(tbl.RowLine(table.Row{
			"Path": d.Path,
			"Name": d.Name,
			"Kind": d.Kind.String(),
		}))
	}
	if len(devs) == 0 {
		fmt.Fprintln(os.Stderr, "no readable input devices (permissions? non-Linux?); capture will be terminal-only")
	}
}
