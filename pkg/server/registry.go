package server

import "github.com/google/uuid"

// Registry maps identified participants to their live sessions. It
// carries no lock of its own: every access happens under the engine
// mutex, the same critical section that mutates the state aggregate.
type Registry struct {
	sessions map[uuid.UUID]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[uuid.UUID]*Session)}
}

// Add registers the session for id, replacing any previous entry.
// The replaced session, if any, is returned so the caller can close it.
func (r *Registry) Add(id uuid.UUID, s *Session) *Session {
	prev := r.sessions[id]
	if prev == s {
		return nil
	}
	r.sessions[id] = s
	return prev
}

// Remove drops the entry for id, but only if it still points at s.
// A stale disconnect must not unregister a replacement session.
func (r *Registry) Remove(id uuid.UUID, s *Session) bool {
	if cur, ok := r.sessions[id]; ok && cur == s {
		delete(r.sessions, id)
		return true
	}
	return false
}

// Get returns the session for id.
func (r *Registry) Get(id uuid.UUID) (*Session, bool) {
	s, ok := r.sessions[id]
	return s, ok
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	return len(r.sessions)
}

// ForEach visits every registered session.
func (r *Registry) ForEach(fn func(id uuid.UUID, s *Session)) {
	for id, s := range r.sessions {
		fn(id, s)
	}
}
