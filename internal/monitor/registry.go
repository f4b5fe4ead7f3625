package monitor

import (
	"errors"
	"sort"
	"sync"
)

// ErrAlreadyMonitored is returned by Start when mint has an active session.
var ErrAlreadyMonitored = errors.New("monitor: session already active")

// Registry tracks active sessions by mint. Safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) add(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.Mint]; ok {
		return ErrAlreadyMonitored
	}
	r.sessions[s.Mint] = s
	return nil
}

// remove deletes the entry for s.Mint only if it is still s.
func (r *Registry) remove(s *Session) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[s.Mint]; ok && cur == s {
		delete(r.sessions, s.Mint)
	}
	return len(r.sessions)
}

// Get returns the active session for mint.
func (r *Registry) Get(mint string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[mint]
	return s, ok
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Mints returns the monitored mints, sorted.
func (r *Registry) Mints() []string {
	r.mu.Lock()
	out := make([]string, 0, len(r.sessions))
	for m := range r.sessions {
		out = append(out, m)
	}
	r.mu.Unlock()
	sort.Strings(out)
	return out
}
