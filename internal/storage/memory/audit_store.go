package memory

import (
	"context"
	"sync"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/storage"
)

// AuditStore is an in-memory implementation of storage.AuditStore.
type AuditStore struct {
	mu      sync.RWMutex
	entries []*domain.AuditEntry // append order
	ids     map[string]struct{}
}

// NewAuditStore creates a new in-memory audit store.
func NewAuditStore() *AuditStore {
	return &AuditStore{ids: make(map[string]struct{})}
}

// Compile-time interface check.
var _ storage.AuditStore = (*AuditStore)(nil)

// Append adds an entry. Returns ErrDuplicateKey if id exists.
func (s *AuditStore) Append(_ context.Context, e *domain.AuditEntry) error {
	if e == nil || e.ID == "" || e.Event == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ids[e.ID]; exists {
		return storage.ErrDuplicateKey
	}
	c := *e
	c.Detail = make(map[string]any, len(e.Detail))
	for k, v := range e.Detail {
		c.Detail[k] = v
	}
	s.entries = append(s.entries, &c)
	s.ids[e.ID] = struct{}{}
	return nil
}

// ListByUser returns the newest entries first.
func (s *AuditStore) ListByUser(_ context.Context, userID string, limit int) ([]*domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.AuditEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if e.UserID != userID {
			continue
		}
		c := *e
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Events returns the event kinds in append order, for tests and diagnostics.
func (s *AuditStore) Events() []domain.AuditEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AuditEvent, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Event
	}
	return out
}
