package risk

import (
	"context"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/marketdata"
)

// StressConfig holds the capital-preservation policy constants.
type StressConfig struct {
	WithdrawFraction float64 // instantaneous liquidity pulled; default 0.50
	BlockLoss        float64 // hard block above; default 0.40
	WarnLoss         float64 // penalty above; default 0.25
	WarnPenalty      int     // default 15
	FeeFraction      float64 // per-leg swap fee; default 0

	DataUnavailablePenalty int
}

// DefaultStressConfig returns the default policy.
func DefaultStressConfig() StressConfig {
	return StressConfig{
		WithdrawFraction: 0.50,
		BlockLoss:        0.40,
		WarnLoss:         0.25,
		WarnPenalty:      15,
	}
}

func (c StressConfig) withDefaults() StressConfig {
	d := DefaultStressConfig()
	if c.WithdrawFraction <= 0 || c.WithdrawFraction >= 1 {
		c.WithdrawFraction = d.WithdrawFraction
	}
	if c.BlockLoss <= 0 {
		c.BlockLoss = d.BlockLoss
	}
	if c.WarnLoss <= 0 {
		c.WarnLoss = d.WarnLoss
	}
	if c.WarnPenalty <= 0 {
		c.WarnPenalty = d.WarnPenalty
	}
	c.DataUnavailablePenalty = orPenalty(c.DataUnavailablePenalty)
	return c
}

// SimulateExitLoss projects the round-trip loss of a tradeUSD position after
// withdrawFraction of a constant-product pool is pulled. The quote-side
// reserve is half the pool value; entry and exit each slip x/(R+x).
func SimulateExitLoss(liquidityUSD, tradeUSD, withdrawFraction, feeFraction float64) float64 {
	if tradeUSD <= 0 {
		return 0
	}
	reserve := liquidityUSD / 2 * (1 - withdrawFraction)
	if reserve <= 0 {
		return 1
	}
	slip := tradeUSD / (reserve + tradeUSD)
	kept := math.Pow(1-slip, 2) * math.Pow(1-feeFraction, 2)
	return 1 - kept
}

// CapitalStress simulates a liquidity withdrawal and blocks entries whose
// exit would lose too much.
type CapitalStress struct {
	market marketdata.Client
	buySOL decimal.Decimal
	cfg    StressConfig
}

// NewCapitalStress creates the check for a buy of buySOL.
func NewCapitalStress(market marketdata.Client, buySOL decimal.Decimal, cfg StressConfig) *CapitalStress {
	return &CapitalStress{market: market, buySOL: buySOL, cfg: cfg.withDefaults()}
}

// Name implements Check.
func (s *CapitalStress) Name() string { return CheckCapitalStress }

// Run implements Check.
func (s *CapitalStress) Run(ctx context.Context, c domain.Candidate) domain.RiskCheckResult {
	if c.Venue.IsFairLaunch() {
		return exempt(CheckCapitalStress, c.Venue)
	}
	if c.LiquidityUSD <= 0 {
		return degraded(CheckCapitalStress, s.cfg.DataUnavailablePenalty,
			fmt.Errorf("%w: no liquidity figure", domain.ErrDataUnavailable))
	}

	solUSD, err := s.market.SOLPriceUSD(ctx)
	if err != nil {
		return degraded(CheckCapitalStress, s.cfg.DataUnavailablePenalty, err)
	}

	tradeUSD := s.buySOL.InexactFloat64() * solUSD
	loss := SimulateExitLoss(c.LiquidityUSD, tradeUSD, s.cfg.WithdrawFraction, s.cfg.FeeFraction)

	details := map[string]any{
		"liquidity_usd":     c.LiquidityUSD,
		"trade_usd":         tradeUSD,
		"sol_price_usd":     solUSD,
		"withdraw_fraction": s.cfg.WithdrawFraction,
		"projected_loss":    loss,
	}
	reason := fmt.Sprintf("projected exit loss %.1f%% after %.0f%% liquidity withdrawal",
		loss*100, s.cfg.WithdrawFraction*100)

	switch block, penalty := s.cfg.grade(loss); {
	case block:
		return blocked(CheckCapitalStress, reason, details)
	case penalty > 0:
		return penalized(CheckCapitalStress, penalty, reason, details)
	}
	return passed(CheckCapitalStress, reason, details)
}

// grade maps a projected loss to the policy. Both limits are exclusive.
func (c StressConfig) grade(loss float64) (block bool, penalty int) {
	switch {
	case loss > c.BlockLoss:
		return true, 0
	case loss > c.WarnLoss:
		return false, c.WarnPenalty
	}
	return false, 0
}
