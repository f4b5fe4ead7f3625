package risk

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-entry-gate/internal/domain"
)

func TestSimulateExitLoss(t *testing.T) {
	tests := []struct {
		name      string
		liquidity float64
		trade     float64
		withdraw  float64
		fee       float64
		want      float64
	}{
		{name: "forty thousand pool, one SOL", liquidity: 40_000, trade: 150, withdraw: 0.5, want: 0.029339},
		{name: "trade equals reserve", liquidity: 400, trade: 100, withdraw: 0.5, want: 0.75},
		{name: "fees compound per leg", liquidity: 400, trade: 100, withdraw: 0.5, fee: 0.5, want: 0.9375},
		{name: "zero reserve loses everything", liquidity: 0, trade: 150, withdraw: 0.5, want: 1},
		{name: "full withdrawal loses everything", liquidity: 40_000, trade: 150, withdraw: 1, want: 1},
		{name: "no trade, no loss", liquidity: 40_000, trade: 0, withdraw: 0.5, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SimulateExitLoss(tt.liquidity, tt.trade, tt.withdraw, tt.fee)
			assert.InDelta(t, tt.want, got, 1e-6)
		})
	}
}

func TestStressConfig_GradeBoundaries(t *testing.T) {
	cfg := StressConfig{}.withDefaults()
	tests := []struct {
		loss        float64
		wantBlock   bool
		wantPenalty int
	}{
		{loss: 0, wantPenalty: 0},
		{loss: 0.25, wantPenalty: 0},
		{loss: 0.2500001, wantPenalty: 15},
		{loss: 0.40, wantPenalty: 15},
		{loss: 0.4000001, wantBlock: true},
		{loss: 1, wantBlock: true},
	}
	for _, tt := range tests {
		block, penalty := cfg.grade(tt.loss)
		assert.Equal(t, tt.wantBlock, block, "loss %v", tt.loss)
		assert.Equal(t, tt.wantPenalty, penalty, "loss %v", tt.loss)
	}
}

func TestCapitalStress_Run(t *testing.T) {
	tests := []struct {
		name        string
		liquidity   float64
		venue       domain.Venue
		market      *fakeMarket
		wantPassed  bool
		wantBlock   bool
		wantPenalty int
	}{
		{name: "deep pool passes", liquidity: 40_000, market: &fakeMarket{solUSD: 150}, wantPassed: true},
		{name: "thin pool penalized", liquidity: 3_080, market: &fakeMarket{solUSD: 150}, wantPenalty: 15},
		{name: "shallow pool blocked", liquidity: 1_000, market: &fakeMarket{solUSD: 150}, wantBlock: true},
		{name: "missing liquidity degrades", liquidity: 0, market: &fakeMarket{solUSD: 150},
			wantPassed: true, wantPenalty: DefaultDataUnavailablePenalty},
		{name: "price feed down degrades", liquidity: 40_000, market: &fakeMarket{err: errUpstream},
			wantPassed: true, wantPenalty: DefaultDataUnavailablePenalty},
		{name: "fair launch exempt", liquidity: 1_000, venue: domain.VenuePumpFun, market: &fakeMarket{solUSD: 150},
			wantPassed: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := pooledCandidate()
			c.LiquidityUSD = tt.liquidity
			if tt.venue != "" {
				c.Venue = tt.venue
			}
			check := NewCapitalStress(tt.market, decimal.NewFromInt(1), StressConfig{})

			res := check.Run(context.Background(), c)

			assert.Equal(t, CheckCapitalStress, res.Check)
			assert.Equal(t, tt.wantPassed, res.Passed, res.Reason)
			assert.Equal(t, tt.wantBlock, res.HardBlock, res.Reason)
			assert.Equal(t, tt.wantPenalty, res.Penalty, res.Reason)
		})
	}
}

func TestCapitalStress_ReportsProjection(t *testing.T) {
	c := pooledCandidate()
	res := NewCapitalStress(&fakeMarket{solUSD: 150}, decimal.NewFromInt(1), StressConfig{}).Run(context.Background(), c)

	require.True(t, res.Passed)
	assert.Equal(t, 150.0, res.Details["trade_usd"])
	assert.InDelta(t, 0.029339, res.Details["projected_loss"], 1e-6)
	assert.Contains(t, res.Reason, "after 50% liquidity withdrawal")
}
