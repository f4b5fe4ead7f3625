package risk

import (
	"context"
	"fmt"

	"solana-entry-gate/internal/domain"
)

// LiquidityFloor rejects pools too thin to exit.
type LiquidityFloor struct {
	HardMinUSD  float64 // hard block below; default 1,000
	SoftMinUSD  float64 // penalty below; default 5,000
	SoftPenalty int     // default 20
}

// NewLiquidityFloor creates the check. Zero values take the defaults.
func NewLiquidityFloor(hardMinUSD, softMinUSD float64) *LiquidityFloor {
	if hardMinUSD <= 0 {
		hardMinUSD = 1000
	}
	if softMinUSD <= 0 {
		softMinUSD = 5000
	}
	return &LiquidityFloor{HardMinUSD: hardMinUSD, SoftMinUSD: softMinUSD, SoftPenalty: 20}
}

// Name implements Check.
func (l *LiquidityFloor) Name() string { return CheckLiquidityFloor }

// Run implements Check.
func (l *LiquidityFloor) Run(_ context.Context, c domain.Candidate) domain.RiskCheckResult {
	if c.Venue.IsFairLaunch() {
		return exempt(CheckLiquidityFloor, c.Venue)
	}

	details := map[string]any{
		"liquidity_usd": c.LiquidityUSD,
		"hard_min_usd":  l.HardMinUSD,
		"soft_min_usd":  l.SoftMinUSD,
	}
	switch {
	case c.LiquidityUSD < l.HardMinUSD:
		return blocked(CheckLiquidityFloor,
			fmt.Sprintf("liquidity $%.0f below hard floor $%.0f", c.LiquidityUSD, l.HardMinUSD), details)
	case c.LiquidityUSD < l.SoftMinUSD:
		return penalized(CheckLiquidityFloor, l.SoftPenalty,
			fmt.Sprintf("liquidity $%.0f below soft floor $%.0f", c.LiquidityUSD, l.SoftMinUSD), details)
	}
	return passed(CheckLiquidityFloor, fmt.Sprintf("liquidity $%.0f", c.LiquidityUSD), details)
}

// Tradability hard-blocks tokens the feed reports as not buyable, not
// sellable or not tradeable. It applies to every venue.
type Tradability struct{}

// Name implements Check.
func (Tradability) Name() string { return CheckTradability }

// Run implements Check.
func (Tradability) Run(_ context.Context, c domain.Candidate) domain.RiskCheckResult {
	details := map[string]any{
		"can_buy":      c.CanBuy,
		"can_sell":     c.CanSell,
		"is_tradeable": c.IsTradeable,
	}
	switch {
	case !c.CanSell:
		return blocked(CheckTradability, "token cannot be sold (honeypot)", details)
	case !c.CanBuy:
		return blocked(CheckTradability, "token cannot be bought", details)
	case !c.IsTradeable:
		return blocked(CheckTradability, "token not tradeable", details)
	}
	return passed(CheckTradability, "tradeable", details)
}
