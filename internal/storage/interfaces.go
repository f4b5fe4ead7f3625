package storage

import (
	"context"

	"solana-entry-gate/internal/domain"
)

// PositionStore provides access to positions storage. All reads are scoped to a user.
type PositionStore interface {
	// Insert adds a new position. Returns ErrDuplicateKey if the id exists.
	Insert(ctx context.Context, p *domain.Position) error

	// Update overwrites the mutable fields of an existing position.
	// Returns ErrNotFound if it does not exist.
	Update(ctx context.Context, p *domain.Position) error

	// GetByID retrieves a position. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, userID, id string) (*domain.Position, error)

	// GetOpenByMint retrieves the open position for mint. Returns ErrNotFound if none.
	GetOpenByMint(ctx context.Context, userID, mint string) (*domain.Position, error)

	// ListByUser returns positions newest first. An empty status matches all.
	ListByUser(ctx context.Context, userID string, status domain.PositionStatus) ([]*domain.Position, error)
}

// AuditStore is an append-only audit log.
type AuditStore interface {
	// Append adds an entry. Returns ErrDuplicateKey if the id exists.
	Append(ctx context.Context, e *domain.AuditEntry) error

	// ListByUser returns the newest entries first, at most limit (0 means all).
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.AuditEntry, error)
}

// RiskResultStore holds per-check risk gate rows for analytics.
type RiskResultStore interface {
	// InsertEvaluation writes one row per check result.
	InsertEvaluation(ctx context.Context, e *domain.RiskEvaluation) error

	// GetByMint returns rows for mint ordered by evaluation time, then check name.
	GetByMint(ctx context.Context, mint string) ([]*domain.RiskCheckRecord, error)
}

// CheckpointStore holds monitor checkpoint results for analytics.
type CheckpointStore interface {
	// Insert adds one checkpoint result.
	Insert(ctx context.Context, r *domain.CheckpointResult) error

	// GetBySession returns results for a session ordered by index.
	GetBySession(ctx context.Context, sessionID string) ([]*domain.CheckpointResult, error)
}

// ProcessedTokenStore persists the set of mints that were already attempted,
// so restarts do not re-enter a token.
type ProcessedTokenStore interface {
	// Add records mint as processed. Adding twice is not an error.
	Add(ctx context.Context, mint string) error

	// Contains reports whether mint was processed.
	Contains(ctx context.Context, mint string) (bool, error)

	// All returns every processed mint (for warming the in-memory set).
	All(ctx context.Context) ([]string, error)
}
