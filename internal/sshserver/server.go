// Package sshserver exposes the keytrace TUI to remote terminals over
// SSH. Sessions are unauthenticated, the way public demo servers are:
// the tool records only what the connecting terminal sends it. A PTY
// is required; without one there is nothing to capture.
package sshserver

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/gliderlabs/ssh"
	"github.com/google/uuid"
	gossh "golang.org/x/crypto/ssh"

	"github.com/stlalpha/keytrace/internal/logging"
)

// Config configures the server.
type Config struct {
	Addr        string
	HostKeyPath string
	// SessionHandler runs one PTY-backed session; it is called from
	// the session's goroutine and returns when the session ends.
	SessionHandler func(sess ssh.Session, sessionID string)
}

// Server is a gliderlabs/ssh server wrapper enforcing the PTY
// requirement and host-key handling.
type Server struct {
	cfg Config
	srv *ssh.Server
}

// NewServer loads (or creates) the host key and builds the server.
func NewServer(cfg Config) (*Server, error) {
	signer, err := loadOrCreateHostKey(cfg.HostKeyPath)
	if err != nil {
		return nil, err
	}
	log.Printf("INFO: SSH host key fingerprint: %s", gossh.FingerprintSHA256(signer.PublicKey()))

	s := &Server{cfg: cfg}
	s.srv = &ssh.Server{
		Addr:    cfg.Addr,
		Handler: s.handle,
	}
	s.srv.AddHostKey(signer)
	return s, nil
}

// ListenAndServe runs the accept loop until Close.
func (s *Server) ListenAndServe() error {
	log.Printf("INFO: SSH server listening on %s", s.cfg.Addr)
	return s.srv.ListenAndServe()
}

// Close stops the server and its sessions.
func (s *Server) Close() error {
	return s.srv.Close()
}

func (s *Server) handle(sess ssh.Session) {
	id := uuid.New().String()
	log.Printf("INFO: SSH session %s from %s (user %q)", id, sess.RemoteAddr(), sess.User())

	_, _, isPty := sess.Pty()
	if !isPty {
		fmt.Fprintln(sess, "keytrace needs a PTY to capture key events; reconnect with `ssh -t`.")
		sess.Exit(1)
		return
	}

	s.cfg.SessionHandler(sess, id)
	logging.Debug("SSH session %s ended", id)
}

// loadOrCreateHostKey reads the PEM host key, generating an ed25519
// key on first run.
func loadOrCreateHostKey(path string) (gossh.Signer, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		data, err = generateHostKey(path)
	}
	if err != nil {
		return nil, fmt.Errorf("host key %s: %w", path, err)
	}
	signer, err := gossh.ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("parsing host key %s: %w", path, err)
	}
	return signer, nil
}

func generateHostKey(path string) ([]byte, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	block, err := gossh.MarshalPrivateKey(priv, "")
	if err != nil {
		return nil, err
	}
	data := pem.EncodeToMemory(block)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return nil, err
	}
	log.Printf("INFO: generated SSH host key at %s", path)
	return data, nil
}
