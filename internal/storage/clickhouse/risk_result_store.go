package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/storage"
)

// RiskResultStore implements storage.RiskResultStore using ClickHouse.
type RiskResultStore struct {
	conn *Conn
}

// NewRiskResultStore creates a new RiskResultStore.
func NewRiskResultStore(conn *Conn) *RiskResultStore {
	return &RiskResultStore{conn: conn}
}

// Compile-time interface check.
var _ storage.RiskResultStore = (*RiskResultStore)(nil)

// InsertEvaluation writes one row per check in a single batch.
func (s *RiskResultStore) InsertEvaluation(ctx context.Context, e *domain.RiskEvaluation) (err error) {
	if e == nil || e.ID == "" || e.Mint == "" {
		return storage.ErrInvalidInput
	}
	records := e.Records()
	if len(records) == 0 {
		return nil
	}
	defer observeQuery("insert_risk_results", time.Now(), &err)

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO risk_check_results (
			evaluation_id, mint, check_name,
			passed, penalty, hard_block, reason, details,
			admitted, total_penalty, evaluated_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range records {
		details, err := json.Marshal(r.Result.Details)
		if err != nil {
			return fmt.Errorf("marshal details for %s: %w", r.Result.Check, err)
		}
		err = batch.Append(
			r.EvaluationID, r.Mint, r.Result.Check,
			boolToUInt8(r.Result.Passed), int32(r.Result.Penalty), boolToUInt8(r.Result.HardBlock),
			r.Result.Reason, string(details),
			boolToUInt8(r.Admitted), int32(r.TotalPenalty), r.EvaluatedAt,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByMint returns rows for mint ordered by evaluation time, then check name.
func (s *RiskResultStore) GetByMint(ctx context.Context, mint string) ([]*domain.RiskCheckRecord, error) {
	query := `
		SELECT
			evaluation_id, mint, check_name,
			passed, penalty, hard_block, reason, details,
			admitted, total_penalty, evaluated_at
		FROM risk_check_results
		WHERE mint = ?
		ORDER BY evaluated_at ASC, check_name ASC
	`

	rows, err := s.conn.Query(ctx, query, mint)
	if err != nil {
		return nil, fmt.Errorf("query risk results: %w", err)
	}
	defer rows.Close()

	var out []*domain.RiskCheckRecord
	for rows.Next() {
		var (
			r                          domain.RiskCheckRecord
			passed, hardBlock, admitted uint8
			penalty, total             int32
			details                    string
		)
		if err := rows.Scan(
			&r.EvaluationID, &r.Mint, &r.Result.Check,
			&passed, &penalty, &hardBlock, &r.Result.Reason, &details,
			&admitted, &total, &r.EvaluatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan risk result row: %w", err)
		}
		r.Result.Passed = passed == 1
		r.Result.HardBlock = hardBlock == 1
		r.Result.Penalty = int(penalty)
		r.Admitted = admitted == 1
		r.TotalPenalty = int(total)
		if details != "" && details != "null" {
			if err := json.Unmarshal([]byte(details), &r.Result.Details); err != nil {
				return nil, fmt.Errorf("decode details: %w", err)
			}
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate risk result rows: %w", err)
	}
	return out, nil
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
