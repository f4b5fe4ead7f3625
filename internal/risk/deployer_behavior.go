package risk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/walletgraph"
)

// DeployerConfig tunes the deployer behavior check.
type DeployerConfig struct {
	MaxTokens24h         int           // hard block at or above; default 3
	MinLiquidityLifespan time.Duration // hard block when the average is shorter; default 5m
	MaxRugRatio          float64       // hard block above; default 0.50
	WarnRugRatio         float64       // penalty above; default 0.20
	SerialPenalty        int           // two launches in 24h; default 10
	RugPenalty           int           // default 15

	DataUnavailablePenalty int
}

func (c DeployerConfig) withDefaults() DeployerConfig {
	if c.MaxTokens24h <= 0 {
		c.MaxTokens24h = 3
	}
	if c.MinLiquidityLifespan <= 0 {
		c.MinLiquidityLifespan = 5 * time.Minute
	}
	if c.MaxRugRatio <= 0 {
		c.MaxRugRatio = 0.50
	}
	if c.WarnRugRatio <= 0 {
		c.WarnRugRatio = 0.20
	}
	if c.SerialPenalty <= 0 {
		c.SerialPenalty = 10
	}
	if c.RugPenalty <= 0 {
		c.RugPenalty = 15
	}
	c.DataUnavailablePenalty = orPenalty(c.DataUnavailablePenalty)
	return c
}

var errNoDeployer = errors.New("deployer unknown")

// DeployerBehavior scores the deployer's launch history.
type DeployerBehavior struct {
	graph walletgraph.Client
	cfg   DeployerConfig
	now   func() time.Time
}

// NewDeployerBehavior creates the check.
func NewDeployerBehavior(graph walletgraph.Client, cfg DeployerConfig) *DeployerBehavior {
	return &DeployerBehavior{graph: graph, cfg: cfg.withDefaults(), now: time.Now}
}

// Name implements Check.
func (d *DeployerBehavior) Name() string { return CheckDeployerBehavior }

// Run implements Check.
func (d *DeployerBehavior) Run(ctx context.Context, c domain.Candidate) domain.RiskCheckResult {
	if c.Venue.IsFairLaunch() {
		return exempt(CheckDeployerBehavior, c.Venue)
	}
	if c.Deployer == "" {
		return degraded(CheckDeployerBehavior, d.cfg.DataUnavailablePenalty,
			fmt.Errorf("%w: %w", domain.ErrDataUnavailable, errNoDeployer))
	}

	hist, err := d.graph.DeployerHistory(ctx, c.Deployer)
	if err != nil {
		return degraded(CheckDeployerBehavior, d.cfg.DataUnavailablePenalty, err)
	}

	recent := hist.TokensSince(d.now().Add(-24 * time.Hour))
	avg, hasLifespan := hist.AvgLiquidityLifespan()
	rug := hist.RugRatio()

	details := map[string]any{
		"deployer":       c.Deployer,
		"tokens_total":   len(hist.Tokens),
		"tokens_24h":     recent,
		"rug_ratio":      rug,
		"has_lifespan":   hasLifespan,
		"avg_lifespan_s": avg.Seconds(),
	}

	switch {
	case recent >= d.cfg.MaxTokens24h:
		return blocked(CheckDeployerBehavior,
			fmt.Sprintf("deployer launched %d tokens in 24h", recent), details)
	case hasLifespan && avg < d.cfg.MinLiquidityLifespan:
		return blocked(CheckDeployerBehavior,
			fmt.Sprintf("average liquidity lifespan %s", avg.Round(time.Second)), details)
	case rug > d.cfg.MaxRugRatio:
		return blocked(CheckDeployerBehavior,
			fmt.Sprintf("rug ratio %.0f%%", rug*100), details)
	}

	penalty := 0
	var reasons []string
	if recent >= 2 {
		penalty += d.cfg.SerialPenalty
		reasons = append(reasons, fmt.Sprintf("%d tokens in 24h", recent))
	}
	if rug > d.cfg.WarnRugRatio {
		penalty += d.cfg.RugPenalty
		reasons = append(reasons, fmt.Sprintf("rug ratio %.0f%%", rug*100))
	}
	if penalty > 0 {
		return penalized(CheckDeployerBehavior, penalty, "deployer history: "+strings.Join(reasons, ", "), details)
	}
	return passed(CheckDeployerBehavior, "deployer history clean", details)
}
