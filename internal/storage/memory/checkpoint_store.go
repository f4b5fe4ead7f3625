package memory

import (
	"context"
	"sort"
	"sync"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/storage"
)

// CheckpointStore is an in-memory implementation of storage.CheckpointStore.
type CheckpointStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.CheckpointResult // keyed by session id
}

// NewCheckpointStore creates a new in-memory checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{data: make(map[string][]*domain.CheckpointResult)}
}

// Compile-time interface check.
var _ storage.CheckpointStore = (*CheckpointStore)(nil)

// Insert adds a checkpoint result. Returns ErrDuplicateKey for a repeated (session, index).
func (s *CheckpointStore) Insert(_ context.Context, r *domain.CheckpointResult) error {
	if r == nil || r.SessionID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.data[r.SessionID] {
		if existing.Index == r.Index {
			return storage.ErrDuplicateKey
		}
	}
	c := *r
	s.data[r.SessionID] = append(s.data[r.SessionID], &c)
	return nil
}

// GetBySession returns results ordered by index.
func (s *CheckpointStore) GetBySession(_ context.Context, sessionID string) ([]*domain.CheckpointResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.CheckpointResult, 0, len(s.data[sessionID]))
	for _, r := range s.data[sessionID] {
		c := *r
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}
