package server

import (
	_ "embed"
	"errors"
	"fmt"
	"net/http"

	"github.com/Tyrowin/groupchat/internal/chat"
	"github.com/google/uuid"
)

//go:embed static/index.html
var chatPage []byte

// WebSocketHandler upgrades a request to a chat connection and runs the
// participant's session until the connection ends.
//
// The participant name comes from the "name" query parameter; requests
// without one are rejected before the upgrade.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "Missing name query parameter.", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	log := s.log.With("session", uuid.NewString(), "participant", name, "remote", r.RemoteAddr)
	handle := newWSHandle(conn, s.handleOptions, log)

	if err := s.hub.Join(r.Context(), name, handle); err != nil {
		if errors.Is(err, chat.ErrIdentifierTaken) || errors.Is(err, chat.ErrInvalidIdentifier) {
			log.Info("Join rejected", "error", err)
		} else {
			log.Warn("Join failed", "error", err)
		}
		_ = handle.Close()
		return
	}

	s.hub.RunSession(r.Context(), name, handle)
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "groupchat server is running!")
}

// PageHandler serves the browser chat client.
func PageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(chatPage)
}
