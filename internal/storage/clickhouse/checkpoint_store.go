package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/storage"
)

// CheckpointStore implements storage.CheckpointStore using ClickHouse.
type CheckpointStore struct {
	conn *Conn
}

// NewCheckpointStore creates a new CheckpointStore.
func NewCheckpointStore(conn *Conn) *CheckpointStore {
	return &CheckpointStore{conn: conn}
}

// Compile-time interface check.
var _ storage.CheckpointStore = (*CheckpointStore)(nil)

// Insert adds one checkpoint result.
func (s *CheckpointStore) Insert(ctx context.Context, r *domain.CheckpointResult) (err error) {
	if r == nil || r.SessionID == "" {
		return storage.ErrInvalidInput
	}
	defer observeQuery("insert_checkpoint", time.Now(), &err)

	query := `
		INSERT INTO monitor_checkpoints (
			session_id, mint, checkpoint_index, offset_ms,
			passed, reason, route_available,
			price_impact_pct, liquidity_usd, liquidity_drop_pct,
			max_drop_pct, max_impact_pct, checked_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	err = s.conn.Exec(ctx, query,
		r.SessionID, r.Mint, uint8(r.Index), uint32(r.Offset.Milliseconds()),
		boolToUInt8(r.Passed), r.Reason, boolToUInt8(r.RouteAvailable),
		r.PriceImpactPct, r.LiquidityUSD, r.LiquidityDropPct,
		r.MaxDropPct, r.MaxImpactPct, r.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	return nil
}

// GetBySession returns results for a session ordered by index. FINAL collapses
// replaced rows.
func (s *CheckpointStore) GetBySession(ctx context.Context, sessionID string) ([]*domain.CheckpointResult, error) {
	query := `
		SELECT
			session_id, mint, checkpoint_index, offset_ms,
			passed, reason, route_available,
			price_impact_pct, liquidity_usd, liquidity_drop_pct,
			max_drop_pct, max_impact_pct, checked_at
		FROM monitor_checkpoints FINAL
		WHERE session_id = ?
		ORDER BY checkpoint_index ASC
	`

	rows, err := s.conn.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query checkpoints: %w", err)
	}
	defer rows.Close()

	var out []*domain.CheckpointResult
	for rows.Next() {
		var (
			r              domain.CheckpointResult
			index          uint8
			offsetMs       uint32
			passed, routed uint8
		)
		if err := rows.Scan(
			&r.SessionID, &r.Mint, &index, &offsetMs,
			&passed, &r.Reason, &routed,
			&r.PriceImpactPct, &r.LiquidityUSD, &r.LiquidityDropPct,
			&r.MaxDropPct, &r.MaxImpactPct, &r.CheckedAt,
		); err != nil {
			return nil, fmt.Errorf("scan checkpoint row: %w", err)
		}
		r.Index = int(index)
		r.Offset = time.Duration(offsetMs) * time.Millisecond
		r.Passed = passed == 1
		r.RouteAvailable = routed == 1
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoint rows: %w", err)
	}
	return out, nil
}
