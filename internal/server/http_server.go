package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Tyrowin/groupchat/internal/chat"
	"github.com/Tyrowin/groupchat/internal/config"
	"github.com/gorilla/websocket"
)

// Server ties the HTTP listener to a chat.Hub.
type Server struct {
	hub           *chat.Hub
	log           *slog.Logger
	upgrader      websocket.Upgrader
	handleOptions HandleOptions
	http          *http.Server
}

// New builds a Server for cfg. Shutdown also closes hub.
func New(cfg config.Config, hub *chat.Hub, log *slog.Logger) *Server {
	origins := newOriginPolicy(cfg.Origins(), log)

	s := &Server{
		hub: hub,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
		handleOptions: HandleOptions{
			MaxMessageSize: cfg.MaxMessageSize,
			SendBuffer:     cfg.SendBuffer,
			RateBurst:      cfg.RateLimit.Burst,
			RateInterval:   cfg.RateLimit.RefillInterval,
		},
	}
	s.http = CreateServer(cfg.Addr, s.Routes())
	return s
}

// CreateServer creates and configures an HTTP server with the specified address and handler.
// It sets reasonable timeout values for production use.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// ListenAndServe blocks until the server stops. A graceful Shutdown is not
// reported as an error.
func (s *Server) ListenAndServe() error {
	s.log.Info("Server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections, then closes every chat session and
// waits for them to finish or for ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server...")

	// Hijacked WebSocket connections are not tracked by http.Server; the hub
	// closes those.
	httpErr := s.http.Shutdown(ctx)
	if httpErr != nil {
		s.log.Warn("HTTP server shutdown error", "error", httpErr)
	}

	hubErr := s.hub.Close(ctx)
	if err := errors.Join(httpErr, hubErr); err != nil {
		return err
	}

	s.log.Info("Server shutdown completed")
	return nil
}
