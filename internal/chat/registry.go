package chat

import (
	"slices"
	"sync"

	"github.com/samber/lo"
)

// Member is a registry entry as returned by Snapshot.
type Member struct {
	ID     string
	Handle Handle
}

// Registry maps participant identifiers to their handles. All methods are
// safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]Handle
}

func NewRegistry() *Registry {
	return &Registry{
		handles: make(map[string]Handle),
	}
}

// Add inserts or overwrites the handle registered for id.
func (r *Registry) Add(id string, handle Handle) {
	r.Swap(id, handle)
}

// Swap registers handle under id and returns the handle it replaced, if any.
func (r *Registry) Swap(id string, handle Handle) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.handles[id]
	r.handles[id] = handle
	return prev, ok
}

// AddIfAbsent registers handle under id only when id is free.
func (r *Registry) AddIfAbsent(id string, handle Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handles[id]; exists {
		return false
	}
	r.handles[id] = handle
	return true
}

// Remove deletes id. Removing an absent id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.handles, id)
}

// RemoveIf deletes id only while it still maps to handle, so a session that
// was displaced by a newer connection cannot evict its successor.
func (r *Registry) RemoveIf(id string, handle Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.handles[id]
	if !ok || current != handle {
		return false
	}
	delete(r.handles, id)
	return true
}

func (r *Registry) Get(id string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handle, ok := r.handles[id]
	return handle, ok
}

// Snapshot copies the current membership. The result is detached from the
// registry and may be iterated while other sessions join or leave.
func (r *Registry) Snapshot() []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.MapToSlice(r.handles, func(id string, handle Handle) Member {
		return Member{ID: id, Handle: handle}
	})
}

// Members returns the registered identifiers in lexical order.
func (r *Registry) Members() []string {
	r.mu.RLock()
	ids := lo.Keys(r.handles)
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.handles)
}
