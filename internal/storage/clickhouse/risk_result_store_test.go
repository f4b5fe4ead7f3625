package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/storage"
)

func TestRiskResultStore_InsertAndGetByMint(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRiskResultStore(conn)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	decision := domain.Aggregate([]domain.RiskCheckResult{
		{Check: "liquidity_floor", Passed: true, Reason: "ok"},
		{
			Check:     "capital_stress",
			Passed:    false,
			HardBlock: true,
			Reason:    "simulated exit loss 52.0%",
			Details:   map[string]any{"loss_pct": 52.0},
		},
	}, 50)
	eval := &domain.RiskEvaluation{
		ID:          "eval-1",
		UserID:      "u1",
		Mint:        "MintA",
		Venue:       domain.VenueRaydium,
		Decision:    decision,
		EvaluatedAt: at,
	}
	require.NoError(t, store.InsertEvaluation(ctx, eval))

	rows, err := store.GetByMint(ctx, "MintA")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "capital_stress", rows[0].Result.Check)
	assert.True(t, rows[0].Result.HardBlock)
	assert.False(t, rows[0].Admitted)
	assert.Equal(t, 52.0, rows[0].Result.Details["loss_pct"])
	assert.Equal(t, "liquidity_floor", rows[1].Result.Check)
	assert.True(t, rows[1].Result.Passed)
	assert.True(t, rows[1].EvaluatedAt.Equal(at))

	other, err := store.GetByMint(ctx, "MintB")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestRiskResultStore_InvalidInput(t *testing.T) {
	store := NewRiskResultStore(nil)
	err := store.InsertEvaluation(context.Background(), &domain.RiskEvaluation{})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
