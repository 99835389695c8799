package server

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Tyrowin/groupchat/internal/chat"
	"github.com/gorilla/websocket"
)

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}

// classifyReadError maps a read failure onto chat.ErrDisconnected when the
// peer simply went away, and wraps it otherwise.
func classifyReadError(err error, maxMessageSize int64) error {
	if errors.Is(err, websocket.ErrReadLimit) {
		return fmt.Errorf("message exceeded maximum size of %d bytes: %w", maxMessageSize, err)
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
		websocket.CloseAbnormalClosure) {
		return fmt.Errorf("%w: %v", chat.ErrDisconnected, err)
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || isExpectedCloseError(err) {
		return fmt.Errorf("%w: %v", chat.ErrDisconnected, err)
	}

	return fmt.Errorf("websocket read: %w", err)
}
