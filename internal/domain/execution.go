package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// WrappedSOLMint is the wrapped SOL mint used as the native side of swaps.
const WrappedSOLMint = "So11111111111111111111111111111111111111112"

// SOLDecimals is the lamport scale of native SOL.
const SOLDecimals = 9

// ExecutionConfig holds caller-supplied trade parameters. Immutable per attempt.
type ExecutionConfig struct {
	BuyAmountSOL        decimal.Decimal
	SlippageBps         int
	PriorityFeeLamports uint64
	MaxRetries          int
	TakeProfitPct       float64 // carried to the persisted position
	StopLossPct         float64 // carried to the persisted position
}

// QuoteRequest asks the router for a swap of Amount raw units of InputMint.
type QuoteRequest struct {
	InputMint   string
	OutputMint  string
	Amount      uint64
	SlippageBps int
}

// Quote is a router price/route estimate. Valid only for TTL after FetchedAt.
type Quote struct {
	InputMint            string
	OutputMint           string
	InAmount             uint64 // raw smallest units
	OutAmount            uint64 // raw smallest units
	OtherAmountThreshold uint64 // minimum out after slippage
	PriceImpactPct       float64
	SlippageBps          int
	Route                []string // venue labels along the route
	FetchedAt            time.Time
	TTL                  time.Duration
	Raw                  json.RawMessage // router response, handed back on build
}

// Expired reports whether the quote is past its TTL.
func (q *Quote) Expired(now time.Time) bool {
	if q.TTL <= 0 {
		return false
	}
	return now.Sub(q.FetchedAt) > q.TTL
}

// UnsignedTx is a router-built transaction awaiting signature.
type UnsignedTx struct {
	Payload              []byte // serialized versioned transaction
	LastValidBlockHeight uint64
}

// ExecutionState is a state of the execution state machine.
type ExecutionState string

const (
	StateQuoting    ExecutionState = "QUOTING"
	StateBuilding   ExecutionState = "BUILDING"
	StateSigning    ExecutionState = "SIGNING"
	StateSubmitted  ExecutionState = "SUBMITTED"
	StateConfirming ExecutionState = "CONFIRMING"
	StateSuccess    ExecutionState = "SUCCESS"
	StateFailed     ExecutionState = "FAILED"
	StateNoRoute    ExecutionState = "NO_ROUTE"
)

// IsTerminal reports whether no further transition is possible.
func (s ExecutionState) IsTerminal() bool {
	return s == StateSuccess || s == StateFailed || s == StateNoRoute
}
