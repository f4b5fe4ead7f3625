package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus is the lifecycle status of a position.
type PositionStatus string

const (
	PositionPending PositionStatus = "pending"
	PositionOpen    PositionStatus = "open"
	PositionClosed  PositionStatus = "closed"
)

// Exit reason codes
const (
	ExitReasonEmergency  = "emergency"
	ExitReasonManual     = "manual"
	ExitReasonTakeProfit = "take_profit"
	ExitReasonStopLoss   = "stop_loss"
)

// Position is the durable record of a completed entry.
// Corresponds to positions table in PostgreSQL.
type Position struct {
	ID       string // deterministic hash of user, mint and entry signature
	UserID   string
	Mint     string
	Symbol   string
	Name     string
	Decimals int

	// Entry, derived from the confirmed transaction
	EntryPrice        decimal.Decimal // SOL per token
	EntryPriceUSD     decimal.Decimal
	TokenAmount       decimal.Decimal // human units
	TokenAmountRaw    string          // smallest units
	EntrySOL          decimal.Decimal // SOL spent including fees
	EntryTx           string
	EntryLiquidityUSD float64

	TakeProfitPct float64
	StopLossPct   float64
	Status        PositionStatus

	// Exit
	ExitPrice  *decimal.Decimal
	ExitReason string
	ExitTx     string

	NeedsReconciliation bool // bookkeeping degraded after a confirmed trade
	NeedsReview         bool // on-chain result looked implausible

	OpenedAt  time.Time
	ClosedAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Close marks the position closed. It returns false if it was already closed.
func (p *Position) Close(price decimal.Decimal, reason, tx string, at time.Time) bool {
	if p.Status == PositionClosed {
		return false
	}
	p.Status = PositionClosed
	p.ExitPrice = &price
	p.ExitReason = reason
	p.ExitTx = tx
	p.ClosedAt = &at
	p.UpdatedAt = at
	return true
}

// RealizedReturn is exit price over entry price minus one.
// Returns zero if the position has no exit price.
func (p *Position) RealizedReturn() decimal.Decimal {
	if p.ExitPrice == nil || p.EntryPrice.IsZero() {
		return decimal.Zero
	}
	return p.ExitPrice.Div(p.EntryPrice).Sub(decimal.NewFromInt(1))
}
