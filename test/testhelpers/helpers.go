// Package testhelpers provides common utilities for the groupchat integration tests.
//
// It starts real chat servers on httptest listeners, dials participants over
// WebSocket and reads the plain-text frames the hub produces, so the test
// files can focus on the behaviour they check.
package testhelpers

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/groupchat/internal/chat"
	"github.com/Tyrowin/groupchat/internal/config"
	"github.com/Tyrowin/groupchat/internal/server"
	"github.com/gorilla/websocket"
)

// TestOrigin is the Origin header sent by DialParticipant.
const TestOrigin = "http://localhost:8000"

// ChatServer is a running groupchat server backed by httptest.
type ChatServer struct {
	HTTP   *httptest.Server
	Server *server.Server
	Hub    *chat.Hub
}

// StartChatServer starts a server with test-friendly defaults. customize may
// adjust the configuration before the server is built.
func StartChatServer(t *testing.T, customize func(cfg *config.Config)) *ChatServer {
	t.Helper()

	cfg := config.Default()
	cfg.RateLimit.Burst = 1000
	cfg.SendTimeout = time.Second
	if customize != nil {
		customize(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Invalid test configuration: %v", err)
	}

	log := slog.New(slog.DiscardHandler)
	hub := chat.NewHub(chat.NewRegistry(), log, chat.Options{
		SendTimeout:     cfg.SendTimeout,
		FanoutWorkers:   cfg.FanoutWorkers,
		DuplicatePolicy: chat.DuplicatePolicy(cfg.DuplicatePolicy),
	})
	srv := server.New(cfg, hub, log)
	testServer := httptest.NewServer(srv.Routes())
	t.Cleanup(testServer.Close)

	return &ChatServer{HTTP: testServer, Server: srv, Hub: hub}
}

// WebSocketURL returns the chat endpoint for name, with name query-escaped.
func (c *ChatServer) WebSocketURL(name string) string {
	u := "ws" + strings.TrimPrefix(c.HTTP.URL, "http") + "/ws"
	if name == "" {
		return u
	}
	return u + "?name=" + url.QueryEscape(name)
}

// Dial opens a WebSocket connection with the given Origin header. The
// handshake response is returned for status checks.
func Dial(rawURL, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(rawURL, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// DialParticipant connects as name and waits for the participant's own join
// notice, so the caller knows the hub has registered it.
func DialParticipant(t *testing.T, c *ChatServer, name string) *websocket.Conn {
	t.Helper()

	conn, _, err := Dial(c.WebSocketURL(name), TestOrigin)
	if err != nil {
		t.Fatalf("Failed to connect %q: %v", name, err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	ExpectText(t, conn, name+" has joined the chat!")
	return conn
}

// SendText writes one text frame.
func SendText(t *testing.T, conn *websocket.Conn, text string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		t.Fatalf("Failed to send %q: %v", text, err)
	}
}

// ReadText reads the next frame as text, failing the test after timeout.
func ReadText(t *testing.T, conn *websocket.Conn, timeout time.Duration) string {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	messageType, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	if messageType != websocket.TextMessage {
		t.Fatalf("Expected text frame, got type %d", messageType)
	}
	return string(payload)
}

// ExpectText reads the next frame and checks it equals expected.
func ExpectText(t *testing.T, conn *websocket.Conn, expected string) {
	t.Helper()
	if got := ReadText(t, conn, 2*time.Second); got != expected {
		t.Fatalf("Expected message %q, got %q", expected, got)
	}
}

// ExpectNoMessage checks that nothing arrives within timeout. A timed-out
// read leaves conn unreadable, so this must be the last read on conn.
func ExpectNoMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, payload, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("Expected no message, but received %q", payload)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return
	}
	t.Fatalf("Unexpected error while waiting for absence of message: %v", err)
}

// ExpectClosed reads until the server closes the connection.
func ExpectClosed(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	if err := conn.SetReadDeadline(deadline); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			t.Fatalf("Connection still open after %s", timeout)
		}
		return
	}
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// WaitFor polls cond until it holds or timeout expires.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Condition not met within %s", timeout)
}
