package memory

import (
	"context"
	"sort"
	"sync"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/storage"
)

// PositionStore is an in-memory implementation of storage.PositionStore.
type PositionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Position // keyed by id
}

// NewPositionStore creates a new in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		data: make(map[string]*domain.Position),
	}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

// Insert adds a new position. Returns ErrDuplicateKey if id exists.
func (s *PositionStore) Insert(_ context.Context, p *domain.Position) error {
	if p == nil || p.ID == "" || p.UserID == "" || p.Mint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[p.ID]; exists {
		return storage.ErrDuplicateKey
	}
	// one open position per (user, mint)
	if p.Status == domain.PositionOpen {
		for _, other := range s.data {
			if other.UserID == p.UserID && other.Mint == p.Mint && other.Status == domain.PositionOpen {
				return storage.ErrDuplicateKey
			}
		}
	}
	s.data[p.ID] = clonePosition(p)
	return nil
}

// Update overwrites an existing position. Returns ErrNotFound if missing.
func (s *PositionStore) Update(_ context.Context, p *domain.Position) error {
	if p == nil || p.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.data[p.ID]
	if !ok || existing.UserID != p.UserID {
		return storage.ErrNotFound
	}
	s.data[p.ID] = clonePosition(p)
	return nil
}

// GetByID retrieves a position. Returns ErrNotFound if not exists.
func (s *PositionStore) GetByID(_ context.Context, userID, id string) (*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.data[id]
	if !ok || p.UserID != userID {
		return nil, storage.ErrNotFound
	}
	return clonePosition(p), nil
}

// GetOpenByMint retrieves the open position for mint.
func (s *PositionStore) GetOpenByMint(_ context.Context, userID, mint string) (*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.data {
		if p.UserID == userID && p.Mint == mint && p.Status == domain.PositionOpen {
			return clonePosition(p), nil
		}
	}
	return nil, storage.ErrNotFound
}

// ListByUser returns positions newest first.
func (s *PositionStore) ListByUser(_ context.Context, userID string, status domain.PositionStatus) ([]*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Position
	for _, p := range s.data {
		if p.UserID != userID {
			continue
		}
		if status != "" && p.Status != status {
			continue
		}
		out = append(out, clonePosition(p))
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func clonePosition(p *domain.Position) *domain.Position {
	c := *p
	if p.ExitPrice != nil {
		v := *p.ExitPrice
		c.ExitPrice = &v
	}
	if p.ClosedAt != nil {
		v := *p.ClosedAt
		c.ClosedAt = &v
	}
	return &c
}
