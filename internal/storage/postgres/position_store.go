package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/observability"
	"solana-entry-gate/internal/storage"
)

// PositionStore implements storage.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *Pool
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(pool *Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

// Decimal columns are written as text and read back with ::text so values
// round-trip exactly.
const positionColumns = `
	id, user_id, mint, symbol, name, decimals,
	entry_price::text, entry_price_usd::text, token_amount::text, token_amount_raw,
	entry_sol::text, entry_tx, entry_liquidity_usd,
	take_profit_pct, stop_loss_pct, status,
	exit_price::text, exit_reason, exit_tx,
	needs_reconciliation, needs_review,
	opened_at, closed_at, created_at, updated_at
`

// Insert adds a new position. Returns ErrDuplicateKey if id exists or the user
// already holds an open position in the mint.
func (s *PositionStore) Insert(ctx context.Context, p *domain.Position) (err error) {
	defer observeQuery("insert_position", time.Now(), &err)

	query := `
		INSERT INTO positions (
			id, user_id, mint, symbol, name, decimals,
			entry_price, entry_price_usd, token_amount, token_amount_raw,
			entry_sol, entry_tx, entry_liquidity_usd,
			take_profit_pct, stop_loss_pct, status,
			exit_price, exit_reason, exit_tx,
			needs_reconciliation, needs_review,
			opened_at, closed_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13,
			$14, $15, $16,
			$17, $18, $19,
			$20, $21,
			$22, $23, $24, $25
		)
	`

	_, err = s.pool.Exec(ctx, query,
		p.ID, p.UserID, p.Mint, p.Symbol, p.Name, p.Decimals,
		p.EntryPrice.String(), p.EntryPriceUSD.String(), p.TokenAmount.String(), p.TokenAmountRaw,
		p.EntrySOL.String(), p.EntryTx, p.EntryLiquidityUSD,
		p.TakeProfitPct, p.StopLossPct, string(p.Status),
		decimalPtrText(p.ExitPrice), p.ExitReason, p.ExitTx,
		p.NeedsReconciliation, p.NeedsReview,
		p.OpenedAt, p.ClosedAt, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

// Update overwrites the mutable fields of a position. Returns ErrNotFound if missing.
func (s *PositionStore) Update(ctx context.Context, p *domain.Position) (err error) {
	defer observeQuery("update_position", time.Now(), &err)

	query := `
		UPDATE positions SET
			symbol = $3, name = $4, status = $5,
			exit_price = $6, exit_reason = $7, exit_tx = $8,
			needs_reconciliation = $9, needs_review = $10,
			closed_at = $11, updated_at = $12
		WHERE id = $1 AND user_id = $2
	`

	tag, err := s.pool.Exec(ctx, query,
		p.ID, p.UserID,
		p.Symbol, p.Name, string(p.Status),
		decimalPtrText(p.ExitPrice), p.ExitReason, p.ExitTx,
		p.NeedsReconciliation, p.NeedsReview,
		p.ClosedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByID retrieves a position. Returns ErrNotFound if not exists.
func (s *PositionStore) GetByID(ctx context.Context, userID, id string) (*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE id = $1 AND user_id = $2`

	p, err := scanPosition(s.pool.QueryRow(ctx, query, id, userID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position by id: %w", err)
	}
	return p, nil
}

// GetOpenByMint retrieves the open position for mint. Returns ErrNotFound if none.
func (s *PositionStore) GetOpenByMint(ctx context.Context, userID, mint string) (*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions
		WHERE user_id = $1 AND mint = $2 AND status = 'open'
		LIMIT 1`

	p, err := scanPosition(s.pool.QueryRow(ctx, query, userID, mint))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get open position by mint: %w", err)
	}
	return p, nil
}

// ListByUser returns positions newest first. An empty status matches all.
func (s *PositionStore) ListByUser(ctx context.Context, userID string, status domain.PositionStatus) ([]*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions
		WHERE user_id = $1 AND ($2::text = '' OR status = $2::text)
		ORDER BY created_at DESC, id ASC`

	rows, err := s.pool.Query(ctx, query, userID, string(status))
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position rows: %w", err)
	}
	return out, nil
}

// scanPosition scans a single row into a Position.
func scanPosition(row pgx.Row) (*domain.Position, error) {
	var p domain.Position
	var status string
	var entryPrice, entryPriceUSD, tokenAmount, entrySOL string
	var exitPrice *string

	err := row.Scan(
		&p.ID, &p.UserID, &p.Mint, &p.Symbol, &p.Name, &p.Decimals,
		&entryPrice, &entryPriceUSD, &tokenAmount, &p.TokenAmountRaw,
		&entrySOL, &p.EntryTx, &p.EntryLiquidityUSD,
		&p.TakeProfitPct, &p.StopLossPct, &status,
		&exitPrice, &p.ExitReason, &p.ExitTx,
		&p.NeedsReconciliation, &p.NeedsReview,
		&p.OpenedAt, &p.ClosedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Status = domain.PositionStatus(status)

	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&p.EntryPrice, entryPrice},
		{&p.EntryPriceUSD, entryPriceUSD},
		{&p.TokenAmount, tokenAmount},
		{&p.EntrySOL, entrySOL},
	} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return nil, fmt.Errorf("parse numeric %q: %w", f.src, err)
		}
	}
	if exitPrice != nil {
		v, err := decimal.NewFromString(*exitPrice)
		if err != nil {
			return nil, fmt.Errorf("parse exit_price %q: %w", *exitPrice, err)
		}
		p.ExitPrice = &v
	}
	return &p, nil
}

func decimalPtrText(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func observeQuery(op string, start time.Time, err *error) {
	observability.RecordDBQuery("postgres", op, time.Since(start).Seconds(), *err)
}
