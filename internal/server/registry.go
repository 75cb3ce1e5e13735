package server

import (
	"slices"
	"sync"
)

// Registry maps usernames to live sessions. It is the only state shared
// between connection handlers; every operation holds its mutex, and
// snapshots are copies, so callers never see the underlying map.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	order    []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Register adds s under s.Username. It fails with ErrUsernameTaken, leaving
// the existing session untouched, if the name is already in use.
func (r *Registry) Register(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.Username]; exists {
		return ErrUsernameTaken
	}
	r.sessions[s.Username] = s
	r.order = append(r.order, s.Username)
	return nil
}

// Unregister removes the session registered under username. It reports
// whether a session was removed; removing an absent name is a no-op.
func (r *Registry) Unregister(username string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[username]
	if !ok {
		return nil, false
	}
	r.removeLocked(username)
	return s, true
}

// Remove unregisters s only if it is still the session registered under its
// username, so a stale failure cannot evict a newer session that reused the name.
func (r *Registry) Remove(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.sessions[s.Username]; !ok || current != s {
		return false
	}
	r.removeLocked(s.Username)
	return true
}

func (r *Registry) removeLocked(username string) {
	delete(r.sessions, username)
	if i := slices.Index(r.order, username); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
}

// Lookup returns the session registered under username.
func (r *Registry) Lookup(username string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[username]
	return s, ok
}

// Snapshot returns the registered sessions in registration order as of a
// single point in time.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, 0, len(r.order))
	for _, name := range r.order {
		sessions = append(sessions, r.sessions[name])
	}
	return sessions
}

// Usernames returns the registered usernames in registration order.
func (r *Registry) Usernames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.order)
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

// Clear removes every session and returns them in registration order.
func (r *Registry) Clear() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions := make([]*Session, 0, len(r.order))
	for _, name := range r.order {
		sessions = append(sessions, r.sessions[name])
	}
	r.sessions = make(map[string]*Session)
	r.order = nil
	return sessions
}
