package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/groupchat/internal/chat"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// HandleOptions are the per-connection limits applied to every chat connection.
type HandleOptions struct {
	MaxMessageSize int64
	SendBuffer     int
	RateBurst      int
	RateInterval   time.Duration
}

// wsHandle adapts a WebSocket connection to chat.Handle. Reads happen on the
// session goroutine; writes are serialized through a buffered queue drained
// by a dedicated write pump.
type wsHandle struct {
	conn           *websocket.Conn
	send           chan []byte
	done           chan struct{}
	pumpDone       chan struct{}
	closeOnce      sync.Once
	maxMessageSize int64
	limiter        *rate.Limiter
	log            *slog.Logger
}

// newWSHandle wraps conn and starts its write pump.
func newWSHandle(conn *websocket.Conn, opts HandleOptions, log *slog.Logger) *wsHandle {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	conn.SetReadLimit(opts.MaxMessageSize)

	h := &wsHandle{
		conn:           conn,
		send:           make(chan []byte, opts.SendBuffer),
		done:           make(chan struct{}),
		pumpDone:       make(chan struct{}),
		maxMessageSize: opts.MaxMessageSize,
		limiter:        newRateLimiter(opts.RateBurst, opts.RateInterval),
		log:            log,
	}
	h.setupReadConnection()
	go h.writePump()
	return h
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (h *wsHandle) setupReadConnection() {
	if err := h.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		h.log.Warn("Error setting initial read deadline", "error", err)
	}
	h.conn.SetPongHandler(func(string) error {
		if err := h.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			h.log.Warn("Error setting read deadline in pong handler", "error", err)
		}
		return nil
	})
}

// Receive returns the next text frame. Binary frames and frames over the
// rate limit are dropped.
func (h *wsHandle) Receive(ctx context.Context) (string, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = h.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		messageType, payload, err := h.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", classifyReadError(err, h.maxMessageSize)
		}

		if messageType != websocket.TextMessage {
			h.log.Debug("Ignoring non-text frame", "type", messageType)
			continue
		}

		if !h.limiter.Allow() {
			h.log.Warn("Rate limit exceeded; discarding message", "burst", h.limiter.Burst())
			continue
		}

		return string(payload), nil
	}
}

// Send queues text for the write pump.
func (h *wsHandle) Send(ctx context.Context, text string) error {
	select {
	case <-h.done:
		return chat.ErrHandleClosed
	case <-h.pumpDone:
		return chat.ErrHandleClosed
	default:
	}

	select {
	case h.send <- []byte(text):
		return nil
	case <-h.done:
		return chat.ErrHandleClosed
	case <-h.pumpDone:
		return chat.ErrHandleClosed
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", chat.ErrSendTimeout, ctx.Err())
	}
}

// Close stops the write pump, which sends a close frame, then closes the
// connection. Safe to call more than once.
func (h *wsHandle) Close() error {
	var err error
	h.closeOnce.Do(func() {
		close(h.done)
		<-h.pumpDone
		if closeErr := h.conn.Close(); !isExpectedCloseError(closeErr) {
			err = closeErr
		}
	})
	return err
}

func (h *wsHandle) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(h.pumpDone)
	}()

	for h.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (h *wsHandle) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message := <-h.send:
		if !h.writeTextMessage(message) {
			// Unblock the reader so the session ends.
			_ = h.conn.Close()
			return false
		}
		return true
	case <-ticker.C:
		return h.handlePing()
	case <-h.done:
		h.writeCloseMessage()
		return false
	}
}

// writeTextMessage writes one message as its own frame.
func (h *wsHandle) writeTextMessage(message []byte) bool {
	if err := h.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		h.log.Warn("Error setting write deadline", "error", err)
		return false
	}
	if err := h.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			h.log.Warn("Error writing message", "error", err)
		}
		return false
	}
	return true
}

// writeCloseMessage sends a close frame to the client
func (h *wsHandle) writeCloseMessage() {
	if err := h.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := h.conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
		if !isExpectedCloseError(err) {
			h.log.Debug("Error writing close message", "error", err)
		}
	}
}

// handlePing sends a ping message to keep the connection alive
func (h *wsHandle) handlePing() bool {
	if err := h.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		h.log.Warn("Error setting write deadline for ping", "error", err)
		return false
	}
	if err := h.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		h.log.Warn("Error writing ping message", "error", err)
		_ = h.conn.Close()
		return false
	}
	return true
}
