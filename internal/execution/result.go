package execution

import (
	"time"

	"github.com/shopspring/decimal"

	"solana-entry-gate/internal/domain"
)

// Direction of a trade.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// Transition is one state change of an execution.
type Transition struct {
	From domain.ExecutionState
	To   domain.ExecutionState
	At   time.Time
	Note string
}

// Result is the outcome of one Buy or Sell.
type Result struct {
	Direction   Direction
	Mint        string
	State       domain.ExecutionState
	Transitions []Transition
	Reason      string
	Err         error

	Quote     *domain.Quote
	Signature string
	// Confirmed is set once the network reports the signature confirmed,
	// even if settlement later fails.
	Confirmed bool

	Decimals       int
	TokenAmountRaw decimal.Decimal // absolute token delta, smallest units
	TokenAmount    decimal.Decimal // human units
	SOLAmount      decimal.Decimal // spent on buy, received on sell
	Price          decimal.Decimal // SOL per token from the confirmed delta
	Anomalies      []string

	// Position is set on a successful buy.
	Position *domain.Position

	StartedAt  time.Time
	FinishedAt time.Time
}

// Succeeded reports whether the execution reached SUCCESS.
func (r *Result) Succeeded() bool { return r.State == domain.StateSuccess }

func (r *Result) transition(to domain.ExecutionState, at time.Time, note string) {
	r.Transitions = append(r.Transitions, Transition{From: r.State, To: to, At: at, Note: note})
	r.State = to
}

// States returns the visited states in order, starting with the first.
func (r *Result) States() []domain.ExecutionState {
	out := make([]domain.ExecutionState, 0, len(r.Transitions))
	for _, t := range r.Transitions {
		out = append(out, t.To)
	}
	return out
}
