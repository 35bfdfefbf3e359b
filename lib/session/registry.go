// Package session tracks the live telnet sessions of one server process.
package session

import (
	"sort"
	"sync"

	"github.com/sourcemud/mud-telnet/lib/util"
)

// Member is a live session as seen by the registry. Send must be safe to
// call from any goroutine; implementations serialize it with the
// session's own reactor.
type Member interface {
	ID() string
	RemoteAddr() string
	Send(text string) error
	Close() error
}

// Registry manages all live sessions with unique IDs.
// Safe for concurrent access.
type Registry interface {
	// Register adds a session.
	// Returns ErrDuplicateID if the ID is already in use.
	Register(m Member) error

	// Unregister removes a session by ID.
	// Returns ErrSessionNotFound if the session does not exist.
	Unregister(id string) error

	// Get returns a session by ID, or nil if not found.
	Get(id string) Member

	// All returns the registered IDs in sorted order.
	All() []string

	// Count returns the number of live sessions.
	Count() int

	// Broadcast sends text to every session except the one with ID
	// except. It returns how many sessions accepted the text.
	Broadcast(text, except string) int

	// Close disconnects every member and empties the registry.
	Close() error
}

// RegistryImpl is the map-backed Registry used by the server.
type RegistryImpl struct {
	mu       sync.RWMutex
	sessions map[string]Member
}

// NewRegistry creates an empty session registry.
func NewRegistry() *RegistryImpl {
	return &RegistryImpl{
		sessions: make(map[string]Member),
	}
}

// Register adds a session to the registry.
func (r *RegistryImpl) Register(m Member) error {
	if m == nil {
		return util.ErrSessionNotFound
	}

	id := m.ID()
	if id == "" {
		return util.ErrSessionNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; exists {
		return util.ErrDuplicateID
	}
	r.sessions[id] = m
	return nil
}

// Unregister removes a session from the registry by ID.
func (r *RegistryImpl) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; !exists {
		return util.ErrSessionNotFound
	}
	delete(r.sessions, id)
	return nil
}

// Get returns a session by ID, or nil if not found.
func (r *RegistryImpl) Get(id string) Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Has returns true if a session with the given ID exists.
func (r *RegistryImpl) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.sessions[id]
	return exists
}

// All returns all registered session IDs, sorted.
func (r *RegistryImpl) All() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Count returns the number of live sessions.
func (r *RegistryImpl) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Broadcast sends text to every session but except.
// The member list is copied first so Send never runs under the registry
// lock; a member whose Send unregisters itself cannot deadlock.
func (r *RegistryImpl) Broadcast(text, except string) int {
	targets := r.snapshot(except)

	sent := 0
	for _, m := range targets {
		if err := m.Send(text); err == nil {
			sent++
		}
	}
	return sent
}

// Close disconnects every member and empties the registry. Members are
// closed without the lock held, since closing one may unregister it or
// broadcast a departure. Individual close errors are ignored.
func (r *RegistryImpl) Close() error {
	r.mu.Lock()
	sessions := make([]Member, 0, len(r.sessions))
	for _, m := range r.sessions {
		sessions = append(sessions, m)
	}
	r.sessions = make(map[string]Member)
	r.mu.Unlock()

	for _, m := range sessions {
		_ = m.Close()
	}
	return nil
}

func (r *RegistryImpl) snapshot(except string) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Member, 0, len(r.sessions))
	for id, m := range r.sessions {
		if id != except {
			out = append(out, m)
		}
	}
	return out
}

var _ Registry = (*RegistryImpl)(nil)
