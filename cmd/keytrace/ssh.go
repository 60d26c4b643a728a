package main

import (
	"log"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gliderlabs/ssh"

	"github.com/stlalpha/keytrace/internal/capture"
	"github.com/stlalpha/keytrace/internal/config"
	"github.com/stlalpha/keytrace/internal/keymap"
	"github.com/stlalpha/keytrace/internal/sshserver"
	"github.com/stlalpha/keytrace/internal/table"
	"github.com/stlalpha/keytrace/internal/tui"
	"github.com/stlalpha/keytrace/internal/web"
)

// runSSH hosts the TUI for remote terminals. Each session gets its own
// recorder and keymap; tables print into that session's scrollback.
// Local device capture is not attached to remote sessions; a remote
// operator inspects their own terminal's events, nothing more.
func runSSH(cfg *config.Config, addr string, webState *web.State) error {
	hostKeyPath, err := config.HostKeyPath()
	if err != nil {
		return err
	}

	srv, err := sshserver.NewServer(sshserver.Config{
		Addr:        addr,
		HostKeyPath: hostKeyPath,
		SessionHandler: func(sess ssh.Session, id string) {
			runSession(cfg, webState, sess, id)
		},
	})
	if err != nil {
		return err
	}
	return srv.ListenAndServe()
}

func runSession(cfg *config.Config, webState *web.State, sess ssh.Session, id string) {
	km, err := keymap.New(cfg.Capture.Layout)
	if err != nil {
		log.Printf("ERROR: session %s: %v", id, err)
		sess.Exit(1)
		return
	}

	var extra capture.Sink
	if webState != nil {
		source := "ssh:" + id[:8]
		extra = webState.Sink(source)
		defer webState.DropSource(source)
	}

	model := tui.NewModel(tui.Options{
		Table:       table.Build(cfg.TableOptions()),
		Keymap:      km,
		Manual:      cfg.Capture.Manual,
		IdleTimeout: cfg.Capture.IdleTimeout.Duration,
		ExtraSink:   extra,
	})

	p := tea.NewProgram(model,
		tea.WithInput(sess),
		tea.WithOutput(sess),
		tea.WithMouseCellMotion(),
		tea.WithReportFocus(),
	)

	pty, winCh, _ := sess.Pty()
	go func() {
		p.Send(tea.WindowSizeMsg{Width: pty.Window.Width, Height: pty.Window.Height})
		for w := range winCh {
			p.Send(tea.WindowSizeMsg{Width: w.Width, Height: w.Height})
		}
	}()

	if _, err := p.Run(); err != nil {
		log.Printf("ERROR: session %s: %v", id, err)
	}
}
