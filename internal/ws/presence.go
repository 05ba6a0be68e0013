package ws

import (
	"sync"
	"time"

	"chatwire/internal/domain"
)

// Registry tracks which connections are currently authenticated. It is the
// single source of truth for "who is online" for the lifetime of the
// process; a restart empties it.
//
// Entries are appended unconditionally: the same email logged in from two
// connections appears twice, and nothing deduplicates that.
type Registry struct {
	mu       sync.Mutex
	sessions []domain.Session
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Add appends a session for the given connection and returns it.
func (r *Registry) Add(connectionID, email string) domain.Session {
	session := domain.Session{
		ConnectionID: connectionID,
		Email:        email,
		LoginAt:      time.Now().UTC(),
	}

	r.mu.Lock()
	r.sessions = append(r.sessions, session)
	r.mu.Unlock()
	return session
}

// Remove drops every session owned by the given connection. Removing a
// connection with no sessions is a no-op.
func (r *Registry) Remove(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.sessions[:0]
	for _, session := range r.sessions {
		if session.ConnectionID != connectionID {
			kept = append(kept, session)
		}
	}
	r.sessions = kept
}

// Snapshot returns the roster in insertion order.
func (r *Registry) Snapshot() []domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Session, len(r.sessions))
	copy(out, r.sessions)
	return out
}
