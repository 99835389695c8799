//go:generate go run go.uber.org/mock/mockgen -source=handle.go -destination=../mocks/mock_handle.go -package=mocks
package chat

import "context"

// Handle is one participant's connection as seen by the Hub.
//
// Receive blocks until the next inbound text message. It returns
// ErrDisconnected when the remote end closed the connection; any other error
// is a transport failure. Both end the session.
//
// Send must be safe for concurrent use. Close must be idempotent.
//
// Handles are compared with == by the Registry, so implementations should be
// pointer types.
type Handle interface {
	Receive(ctx context.Context) (string, error)
	Send(ctx context.Context, text string) error
	Close() error
}
