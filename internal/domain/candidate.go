package domain

import "time"

// Candidate represents a token proposed for entry by the discovery feed.
// Immutable once queued; recorded in the dedup set after its execution attempt.
type Candidate struct {
	Address      string  // token mint address (base58, unique)
	Symbol       string  // display only, may be a placeholder
	Name         string  // display only, may be a placeholder
	LiquidityUSD float64 // pool liquidity at discovery, quote-currency value
	RiskScore    float64 // score computed by the discovery feed
	CanBuy       bool
	CanSell      bool
	IsTradeable  bool
	Venue        Venue

	Deployer     string // deployer wallet (optional)
	PoolCreator  string // liquidity pool creator (optional)
	PoolAddress  string // pool account (optional)
	DiscoveredAt time.Time
}

// HasPlaceholderIdentity reports whether symbol or name still need reconciliation
// from authoritative metadata.
func (c *Candidate) HasPlaceholderIdentity() bool {
	return isPlaceholder(c.Symbol) || isPlaceholder(c.Name)
}

func isPlaceholder(s string) bool {
	switch s {
	case "", "UNKNOWN", "Unknown", "???", "N/A":
		return true
	}
	return false
}
