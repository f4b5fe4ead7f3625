package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/storage"
)

// AuditStore implements storage.AuditStore using PostgreSQL.
type AuditStore struct {
	pool *Pool
}

// NewAuditStore creates a new AuditStore.
func NewAuditStore(pool *Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AuditStore = (*AuditStore)(nil)

// Append adds an entry. Returns ErrDuplicateKey if id exists.
func (s *AuditStore) Append(ctx context.Context, e *domain.AuditEntry) (err error) {
	if e == nil || e.ID == "" || e.Event == "" {
		return storage.ErrInvalidInput
	}
	defer observeQuery("append_audit", time.Now(), &err)

	detail := e.Detail
	if detail == nil {
		detail = map[string]any{}
	}
	raw, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("marshal audit detail: %w", err)
	}

	query := `
		INSERT INTO audit_log (id, user_id, event, mint, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.pool.Exec(ctx, query, e.ID, e.UserID, string(e.Event), e.Mint, raw, e.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListByUser returns the newest entries first, at most limit (0 means all).
func (s *AuditStore) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.AuditEntry, error) {
	query := `
		SELECT id::text, user_id, event, mint, detail, created_at
		FROM audit_log
		WHERE user_id = $1
		ORDER BY created_at DESC, id ASC
	`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []*domain.AuditEntry
	for rows.Next() {
		var (
			e     domain.AuditEntry
			event string
			raw   []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &event, &e.Mint, &raw, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		e.Event = domain.AuditEvent(event)
		if err := json.Unmarshal(raw, &e.Detail); err != nil {
			return nil, fmt.Errorf("decode audit detail: %w", err)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit rows: %w", err)
	}
	return out, nil
}
