package memory

import (
	"context"
	"sort"
	"sync"

	"solana-entry-gate/internal/storage"
)

// ProcessedTokenStore is an in-memory implementation of storage.ProcessedTokenStore.
type ProcessedTokenStore struct {
	mu    sync.RWMutex
	mints map[string]bool
}

// NewProcessedTokenStore creates a new in-memory processed token store.
func NewProcessedTokenStore() *ProcessedTokenStore {
	return &ProcessedTokenStore{mints: make(map[string]bool)}
}

// Compile-time interface check.
var _ storage.ProcessedTokenStore = (*ProcessedTokenStore)(nil)

// Add records mint as processed.
func (s *ProcessedTokenStore) Add(_ context.Context, mint string) error {
	if mint == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mints[mint] = true
	return nil
}

// Contains reports whether mint was processed.
func (s *ProcessedTokenStore) Contains(_ context.Context, mint string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mints[mint], nil
}

// All returns every processed mint, sorted.
func (s *ProcessedTokenStore) All(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.mints))
	for m := range s.mints {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}
