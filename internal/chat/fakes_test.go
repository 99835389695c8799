package chat

import (
	"context"
	"sync"
	"sync/atomic"
)

// fakeHandle is an in-memory Handle. Inbound messages are pushed with say,
// outbound ones are collected in order.
type fakeHandle struct {
	mu       sync.Mutex
	received []string
	sendErr  error

	inbound    chan string
	closed     chan struct{}
	closeOnce  sync.Once
	closeCalls atomic.Int32
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{
		inbound: make(chan string, 64),
		closed:  make(chan struct{}),
	}
}

func (f *fakeHandle) Receive(ctx context.Context) (string, error) {
	select {
	case text := <-f.inbound:
		return text, nil
	case <-f.closed:
		return "", ErrDisconnected
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (f *fakeHandle) Send(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.received = append(f.received, text)
	return nil
}

func (f *fakeHandle) Close() error {
	f.closeCalls.Add(1)
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeHandle) say(text string) {
	f.inbound <- text
}

func (f *fakeHandle) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.received...)
}

func (f *fakeHandle) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

// stuckHandle never accepts a message before its context expires.
type stuckHandle struct {
	*fakeHandle
	attempts atomic.Int32
}

func (s *stuckHandle) Send(ctx context.Context, _ string) error {
	s.attempts.Add(1)
	<-ctx.Done()
	return ErrSendTimeout
}

// ignoringHandle blocks in Receive until released, whatever Close says.
type ignoringHandle struct {
	release   chan struct{}
	receiving atomic.Bool
}

func (i *ignoringHandle) Receive(context.Context) (string, error) {
	i.receiving.Store(true)
	<-i.release
	return "", ErrDisconnected
}

func (i *ignoringHandle) Send(context.Context, string) error { return nil }

func (i *ignoringHandle) Close() error { return nil }
