package risk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"solana-entry-gate/internal/walletgraph"
)

var deployerNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// token is a launch from ageDays ago whose liquidity lasted lifespan (zero
// while still live).
func token(ageDays int, lifespan time.Duration, rugged bool) walletgraph.DeployedToken {
	return walletgraph.DeployedToken{
		Mint:              "Old",
		CreatedAt:         deployerNow.Add(-time.Duration(ageDays) * 24 * time.Hour),
		LiquidityLifespan: lifespan,
		Rugged:            rugged,
	}
}

func TestDeployerBehavior_Thresholds(t *testing.T) {
	tests := []struct {
		name        string
		tokens      []walletgraph.DeployedToken
		wantBlock   bool
		wantPenalty int
		wantReason  string
	}{
		{name: "first launch", wantReason: "deployer history clean"},
		{
			name:       "three launches in 24h",
			tokens:     []walletgraph.DeployedToken{token(0, 0, false), token(0, 0, false), token(0, 0, false)},
			wantBlock:  true,
			wantReason: "launched 3 tokens in 24h",
		},
		{
			name:        "two launches in 24h",
			tokens:      []walletgraph.DeployedToken{token(0, 0, false), token(0, 0, false), token(5, 0, false)},
			wantPenalty: 10,
			wantReason:  "2 tokens in 24h",
		},
		{
			name:       "average lifespan under five minutes",
			tokens:     []walletgraph.DeployedToken{token(10, 3*time.Minute, false), token(12, 5*time.Minute, false)},
			wantBlock:  true,
			wantReason: "average liquidity lifespan 4m0s",
		},
		{
			name:       "average lifespan exactly five minutes",
			tokens:     []walletgraph.DeployedToken{token(10, 4*time.Minute, false), token(12, 6*time.Minute, false)},
			wantReason: "deployer history clean",
		},
		{
			name: "live pools do not count toward lifespan",
			tokens: []walletgraph.DeployedToken{
				token(10, time.Hour, false), token(12, 0, false), token(14, 0, false),
			},
			wantReason: "deployer history clean",
		},
		{
			name: "rug ratio above half",
			tokens: []walletgraph.DeployedToken{
				token(10, 0, true), token(11, 0, true), token(12, 0, true), token(13, 0, false), token(14, 0, false),
			},
			wantBlock:  true,
			wantReason: "rug ratio 60%",
		},
		{
			name:        "rug ratio exactly half",
			tokens:      []walletgraph.DeployedToken{token(10, 0, true), token(11, 0, false)},
			wantPenalty: 15,
			wantReason:  "rug ratio 50%",
		},
		{
			name: "rug ratio exactly a fifth",
			tokens: []walletgraph.DeployedToken{
				token(10, 0, true), token(11, 0, false), token(12, 0, false), token(13, 0, false), token(14, 0, false),
			},
			wantReason: "deployer history clean",
		},
		{
			name:        "serial and rugged penalties add up",
			tokens:      []walletgraph.DeployedToken{token(0, 0, true), token(0, 0, false), token(9, 0, false)},
			wantPenalty: 25,
			wantReason:  "2 tokens in 24h, rug ratio 33%",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &fakeGraph{history: &walletgraph.DeployerHistory{Deployer: "Deployer", Tokens: tt.tokens}}
			check := NewDeployerBehavior(g, DeployerConfig{})
			check.now = func() time.Time { return deployerNow }

			res := check.Run(context.Background(), pooledCandidate())

			assert.Equal(t, CheckDeployerBehavior, res.Check)
			assert.Equal(t, tt.wantBlock, res.HardBlock, res.Reason)
			assert.Equal(t, tt.wantPenalty, res.Penalty, res.Reason)
			assert.Equal(t, !tt.wantBlock && tt.wantPenalty == 0, res.Passed, res.Reason)
			assert.Contains(t, res.Reason, tt.wantReason)
		})
	}
}

func TestDeployerBehavior_Degrades(t *testing.T) {
	t.Run("history unavailable", func(t *testing.T) {
		res := NewDeployerBehavior(&fakeGraph{historyErr: errUpstream}, DeployerConfig{}).
			Run(context.Background(), pooledCandidate())
		assert.True(t, res.Passed)
		assert.Equal(t, DefaultDataUnavailablePenalty, res.Penalty)
	})

	t.Run("deployer unknown", func(t *testing.T) {
		c := pooledCandidate()
		c.Deployer = ""
		res := NewDeployerBehavior(&fakeGraph{}, DeployerConfig{DataUnavailablePenalty: 7}).Run(context.Background(), c)
		assert.True(t, res.Passed)
		assert.Equal(t, 7, res.Penalty)
		assert.Contains(t, res.Reason, "deployer unknown")
	})
}
