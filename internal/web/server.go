package web

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/pkg/browser"

	"github.com/stlalpha/keytrace/internal/logging"
)

// Server exposes a State over HTTP: the live page, an SSE stream, and
// a small JSON API for pulling finalized tables.
type Server struct {
	state *State
	http  *http.Server
	ln    net.Listener
}

// NewServer builds a server for addr; call Start to begin listening.
func NewServer(addr string, state *State) *Server {
	s := &Server{state: state}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /api/tables", s.handleTables)
	mux.HandleFunc("GET /api/tables/{id}/markdown", s.handleMarkdown)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})
	s.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving in the background and optionally opens the
// page in the local browser.
func (s *Server) Start(openBrowser bool) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("web listen on %s: %w", s.http.Addr, err)
	}
	s.ln = ln
	url := "http://" + ln.Addr().String() + "/"
	log.Printf("INFO: web view on %s", url)

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("ERROR: web server: %v", err)
		}
	}()

	if openBrowser {
		if err := browser.OpenURL(url); err != nil {
			log.Printf("WARN: opening browser: %v", err)
		}
	}
	return nil
}

// Addr returns the bound address after Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.http.Addr
	}
	return s.ln.Addr().String()
}

// Shutdown stops the server, waiting briefly for handlers to drain.
func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		logging.Debug("web shutdown: %v", err)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexPage)
}

// handleEvents is the SSE stream. Every subscriber first gets a full
// snapshot, then deltas as they happen.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.state.subscribe()
	defer s.state.unsubscribe(ch)

	writeEvent := func(msg []byte) bool {
		if _, err := fmt.Fprintf(w, "data: %s\n\n", msg); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}
	if !writeEvent(s.state.snapshot()) {
		return
	}

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case msg := <-ch:
			if !writeEvent(msg) {
				return
			}
		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(mustJSON(s.state.Tables()))
}

func (s *Server) handleMarkdown(w http.ResponseWriter, r *http.Request) {
	md, ok := s.state.Markdown(r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	fmt.Fprintln(w, md)
}
