package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DuplicatePolicy decides what Join does with a name that is already taken.
type DuplicatePolicy string

const (
	// DuplicateReplace hands the name to the newcomer and closes the previous
	// connection.
	DuplicateReplace DuplicatePolicy = "replace"
	// DuplicateReject refuses the newcomer with ErrIdentifierTaken.
	DuplicateReject DuplicatePolicy = "reject"
)

// Options tunes broadcast behaviour. The zero value gives sequential fan-out
// without a per-send deadline and the replace policy.
type Options struct {
	// SendTimeout bounds each per-participant send. Zero disables the bound.
	SendTimeout time.Duration

	// FanoutWorkers above one delivers a broadcast to that many participants
	// concurrently.
	FanoutWorkers int

	DuplicatePolicy DuplicatePolicy
}

// Hub announces joins and leaves, relays chat lines and runs sessions on top
// of a Registry. A Hub is safe for concurrent use by any number of sessions.
type Hub struct {
	registry *Registry
	log      *slog.Logger
	opts     Options

	mu       sync.Mutex
	closed   bool
	sessions sync.WaitGroup
}

// NewHub creates a Hub broadcasting to the participants held by registry.
func NewHub(registry *Registry, log *slog.Logger, opts Options) *Hub {
	if opts.DuplicatePolicy == "" {
		opts.DuplicatePolicy = DuplicateReplace
	}
	if opts.FanoutWorkers < 1 {
		opts.FanoutWorkers = 1
	}
	return &Hub{
		registry: registry,
		log:      log,
		opts:     opts,
	}
}

// Registry returns the registry the hub broadcasts to.
func (h *Hub) Registry() *Registry {
	return h.registry
}

func joinNotice(id string) string {
	return id + " has joined the chat!"
}

func leaveNotice(id string) string {
	return id + " has left the chat!"
}

func chatLine(id, text string) string {
	return id + ": " + text
}

// Join registers handle under id and announces the newcomer to everyone,
// the newcomer included. On error nothing is registered and the caller owns
// the handle.
func (h *Hub) Join(ctx context.Context, id string, handle Handle) error {
	if id == "" {
		return ErrInvalidIdentifier
	}
	if h.isClosed() {
		return ErrHubClosed
	}

	switch h.opts.DuplicatePolicy {
	case DuplicateReject:
		if !h.registry.AddIfAbsent(id, handle) {
			return fmt.Errorf("%w: %q", ErrIdentifierTaken, id)
		}
	default:
		if prev, replaced := h.registry.Swap(id, handle); replaced && prev != handle {
			h.log.Info("Participant name reused, closing previous connection", "participant", id)
			if err := prev.Close(); err != nil {
				h.log.Debug("Closing displaced handle failed", "participant", id, "error", err)
			}
		}
	}

	h.log.Info("Participant joined", "participant", id, "count", h.registry.Len())
	h.broadcast(ctx, joinNotice(id))
	return nil
}

// Leave removes id and tells the remaining participants. It always
// broadcasts, even when id was not registered.
func (h *Hub) Leave(ctx context.Context, id string) {
	h.registry.Remove(id)
	h.log.Info("Participant left", "participant", id, "count", h.registry.Len())
	h.broadcast(ctx, leaveNotice(id))
}

// Relay broadcasts a chat line from id to every registered participant.
func (h *Hub) Relay(ctx context.Context, id, text string) {
	h.broadcast(ctx, chatLine(id, text))
}

// SendTo delivers text to a single participant.
func (h *Hub) SendTo(ctx context.Context, id, text string) error {
	handle, ok := h.registry.Get(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownParticipant, id)
	}
	if err := h.send(ctx, handle, text); err != nil {
		return fmt.Errorf("send to %q: %w", id, err)
	}
	return nil
}

// Members lists the names currently registered.
func (h *Hub) Members() []string {
	return h.registry.Members()
}

// RunSession relays every message received on handle until the transport
// disconnects or fails, then removes the participant, announces the leave
// and closes the handle. It returns once the session is over.
//
// A session whose name was taken over by a newer connection ends without a
// leave notice, since the name is still present.
func (h *Hub) RunSession(ctx context.Context, id string, handle Handle) {
	if !h.track() {
		h.endSession(context.WithoutCancel(ctx), id, handle)
		_ = handle.Close()
		return
	}
	defer h.sessions.Done()

	defer func() {
		if err := handle.Close(); err != nil {
			h.log.Debug("Closing handle failed", "participant", id, "error", err)
		}
	}()
	defer h.endSession(context.WithoutCancel(ctx), id, handle)

	for {
		text, err := handle.Receive(ctx)
		if err != nil {
			if errors.Is(err, ErrDisconnected) {
				h.log.Debug("Participant disconnected", "participant", id)
			} else {
				h.log.Warn("Receive failed, ending session", "participant", id, "error", err)
			}
			return
		}
		h.Relay(ctx, id, text)
	}
}

func (h *Hub) endSession(ctx context.Context, id string, handle Handle) {
	if !h.registry.RemoveIf(id, handle) {
		h.log.Debug("Session ended after its name was released", "participant", id)
		return
	}
	h.log.Info("Participant left", "participant", id, "count", h.registry.Len())
	h.broadcast(ctx, leaveNotice(id))
}

// Close refuses further joins, closes every registered handle and waits for
// the running sessions to return. It gives up when ctx is done.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	members := h.registry.Snapshot()
	for _, m := range members {
		if err := m.Handle.Close(); err != nil {
			h.log.Debug("Closing handle failed", "participant", m.ID, "error", err)
		}
	}
	h.log.Info("Closed participant connections", "count", len(members))

	done := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		h.log.Warn("Hub close timed out, some sessions may still be running")
		return ctx.Err()
	}
}

func (h *Hub) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// track counts a new session unless the hub is closing.
func (h *Hub) track() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.sessions.Add(1)
	return true
}

// broadcast sends text to a snapshot of the registry. Failed sends are
// logged and skipped. It returns after every send has finished.
func (h *Hub) broadcast(ctx context.Context, text string) {
	members := h.registry.Snapshot()

	if h.opts.FanoutWorkers <= 1 || len(members) <= 1 {
		for _, m := range members {
			h.deliver(ctx, m, text)
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(h.opts.FanoutWorkers)
	for _, m := range members {
		g.Go(func() error {
			h.deliver(ctx, m, text)
			return nil
		})
	}
	_ = g.Wait()
}

func (h *Hub) deliver(ctx context.Context, m Member, text string) {
	if err := h.send(ctx, m.Handle, text); err != nil {
		// Handles are already closed while the hub shuts down.
		level := slog.LevelWarn
		if h.isClosed() {
			level = slog.LevelDebug
		}
		h.log.Log(ctx, level, "Broadcast send failed, skipping participant", "participant", m.ID, "error", err)
	}
}

func (h *Hub) send(ctx context.Context, handle Handle, text string) error {
	if h.opts.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.SendTimeout)
		defer cancel()
	}
	return handle.Send(ctx, text)
}
