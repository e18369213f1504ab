package registry

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 32

// Directory maps a user to the handle of their current connection.
type Directory[H comparable] interface {
	// Register records h as the current handle for userID, shadowing any
	// previous one. It returns the shadowed handle, if there was one.
	Register(userID string, h H) (prev H, replaced bool)

	// Lookup returns the current handle for userID.
	Lookup(userID string) (H, bool)

	// Unregister removes the entry for userID only if it still holds h.
	Unregister(userID string, h H) bool

	// Len returns the number of registered users.
	Len() int

	// Users returns the registered user IDs.
	Users() []string
}

var _ Directory[int] = (*Registry[int])(nil)

// Registry is a Directory split into independently locked shards, so lookups
// for unrelated users never wait on each other.
type Registry[H comparable] struct {
	shards [shardCount]shard[H]
}

type shard[H comparable] struct {
	mu      sync.RWMutex
	entries map[string]H
}

// New creates an empty registry.
func New[H comparable]() *Registry[H] {
	r := &Registry[H]{}
	for i := range r.shards {
		r.shards[i].entries = make(map[string]H)
	}
	return r
}

func (r *Registry[H]) shardFor(userID string) *shard[H] {
	return &r.shards[xxhash.Sum64String(userID)%shardCount]
}

// Register records h as the current handle for userID.
func (r *Registry[H]) Register(userID string, h H) (H, bool) {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.entries[userID]
	s.entries[userID] = h
	if ok && prev == h {
		var zero H
		return zero, false
	}
	return prev, ok
}

// Lookup returns the current handle for userID.
func (r *Registry[H]) Lookup(userID string) (H, bool) {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.entries[userID]
	return h, ok
}

// Unregister removes the entry for userID if it still holds h. A stale
// handle leaves a newer registration untouched.
func (r *Registry[H]) Unregister(userID string, h H) bool {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.entries[userID]
	if !ok || cur != h {
		return false
	}
	delete(s.entries, userID)
	return true
}

// Len returns the number of registered users.
func (r *Registry[H]) Len() int {
	n := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

// Users returns a snapshot of the registered user IDs.
func (r *Registry[H]) Users() []string {
	ids := make([]string, 0)
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for id := range s.entries {
			ids = append(ids, id)
		}
		s.mu.RUnlock()
	}
	return ids
}
