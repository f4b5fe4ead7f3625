package memory

import (
	"context"
	"sort"
	"sync"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/storage"
)

// RiskResultStore is an in-memory implementation of storage.RiskResultStore.
type RiskResultStore struct {
	mu   sync.RWMutex
	rows map[string][]*domain.RiskCheckRecord // keyed by mint
	evs  map[string]struct{}
}

// NewRiskResultStore creates a new in-memory risk result store.
func NewRiskResultStore() *RiskResultStore {
	return &RiskResultStore{
		rows: make(map[string][]*domain.RiskCheckRecord),
		evs:  make(map[string]struct{}),
	}
}

// Compile-time interface check.
var _ storage.RiskResultStore = (*RiskResultStore)(nil)

// InsertEvaluation writes one row per check. Returns ErrDuplicateKey if the
// evaluation id was already written.
func (s *RiskResultStore) InsertEvaluation(_ context.Context, e *domain.RiskEvaluation) error {
	if e == nil || e.ID == "" || e.Mint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.evs[e.ID]; exists {
		return storage.ErrDuplicateKey
	}
	s.evs[e.ID] = struct{}{}
	for _, rec := range e.Records() {
		r := rec
		s.rows[e.Mint] = append(s.rows[e.Mint], &r)
	}
	return nil
}

// GetByMint returns rows ordered by evaluation time, then check name.
func (s *RiskResultStore) GetByMint(_ context.Context, mint string) ([]*domain.RiskCheckRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.RiskCheckRecord, 0, len(s.rows[mint]))
	for _, r := range s.rows[mint] {
		c := *r
		out = append(out, &c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].EvaluatedAt.Equal(out[j].EvaluatedAt) {
			return out[i].EvaluatedAt.Before(out[j].EvaluatedAt)
		}
		return out[i].Result.Check < out[j].Result.Check
	})
	return out, nil
}
