package api

import (
	"time"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/execution"
	"solana-entry-gate/internal/orchestrator"
)

type checkResponse struct {
	Check     string         `json:"check"`
	Passed    bool           `json:"passed"`
	Penalty   int            `json:"penalty"`
	HardBlock bool           `json:"hard_block"`
	Reason    string         `json:"reason"`
	Details   map[string]any `json:"details,omitempty"`
}

type decisionResponse struct {
	Admitted     bool            `json:"admitted"`
	HardBlocked  bool            `json:"hard_blocked"`
	BlockedBy    []string        `json:"blocked_by,omitempty"`
	TotalPenalty int             `json:"total_penalty"`
	Threshold    int             `json:"threshold"`
	Reason       string          `json:"reason"`
	Checks       []checkResponse `json:"checks"`
}

func newDecisionResponse(d domain.AggregateDecision) decisionResponse {
	out := decisionResponse{
		Admitted:     d.Admitted,
		HardBlocked:  d.HardBlocked,
		BlockedBy:    d.BlockedBy,
		TotalPenalty: d.TotalPenalty,
		Threshold:    d.Threshold,
		Reason:       d.Reason,
		Checks:       make([]checkResponse, 0, len(d.Results)),
	}
	for _, r := range d.Results {
		out.Checks = append(out.Checks, checkResponse{
			Check:     r.Check,
			Passed:    r.Passed,
			Penalty:   r.Penalty,
			HardBlock: r.HardBlock,
			Reason:    r.Reason,
			Details:   r.Details,
		})
	}
	return out
}

type queueResult struct {
	Mint         string `json:"mint"`
	Enqueued     bool   `json:"enqueued"`
	Admitted     bool   `json:"admitted"`
	TotalPenalty int    `json:"total_penalty"`
	Reason       string `json:"reason"`
}

func newQueueResult(r orchestrator.ProcessResult) queueResult {
	return queueResult{
		Mint:         r.Mint,
		Enqueued:     r.Enqueued,
		Admitted:     r.Decision.Admitted,
		TotalPenalty: r.Decision.TotalPenalty,
		Reason:       r.Reason,
	}
}

type tradeResponse struct {
	Direction   string   `json:"direction"`
	Mint        string   `json:"mint"`
	State       string   `json:"state"`
	Reason      string   `json:"reason"`
	Error       string   `json:"error,omitempty"`
	Signature   string   `json:"signature,omitempty"`
	States      []string `json:"states"`
	TokenAmount string   `json:"token_amount,omitempty"`
	SOLAmount   string   `json:"sol_amount,omitempty"`
	Price       string   `json:"price,omitempty"`
	Anomalies   []string `json:"anomalies,omitempty"`
}

func newTradeResponse(r *execution.Result) tradeResponse {
	out := tradeResponse{
		Direction: string(r.Direction),
		Mint:      r.Mint,
		State:     string(r.State),
		Reason:    r.Reason,
		Signature: r.Signature,
		Anomalies: r.Anomalies,
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	for _, s := range r.States() {
		out.States = append(out.States, string(s))
	}
	if r.Succeeded() {
		out.TokenAmount = r.TokenAmount.String()
		out.SOLAmount = r.SOLAmount.String()
		out.Price = r.Price.String()
	}
	return out
}

type executionResponse struct {
	tradeResponse
	Source              string            `json:"source"`
	BookkeepingDegraded bool              `json:"bookkeeping_degraded"`
	MonitorStarted      bool              `json:"monitor_started"`
	Position            *positionResponse `json:"position,omitempty"`
}

func newExecutionResponse(out *orchestrator.ExecutionOutcome) executionResponse {
	resp := executionResponse{
		Source:              out.Source,
		BookkeepingDegraded: out.BookkeepingDegraded,
		MonitorStarted:      out.MonitorStarted,
	}
	if out.Result != nil {
		resp.tradeResponse = newTradeResponse(out.Result)
	}
	if out.Position != nil {
		p := newPositionResponse(out.Position)
		resp.Position = &p
	}
	return resp
}

type positionResponse struct {
	ID                  string     `json:"id"`
	Mint                string     `json:"mint"`
	Symbol              string     `json:"symbol"`
	Name                string     `json:"name"`
	Status              string     `json:"status"`
	EntryPrice          string     `json:"entry_price"`
	EntryPriceUSD       string     `json:"entry_price_usd"`
	TokenAmount         string     `json:"token_amount"`
	EntrySOL            string     `json:"entry_sol"`
	EntryTx             string     `json:"entry_tx"`
	TakeProfitPct       float64    `json:"take_profit_pct"`
	StopLossPct         float64    `json:"stop_loss_pct"`
	ExitPrice           string     `json:"exit_price,omitempty"`
	ExitReason          string     `json:"exit_reason,omitempty"`
	ExitTx              string     `json:"exit_tx,omitempty"`
	Return              string     `json:"return,omitempty"`
	NeedsReconciliation bool       `json:"needs_reconciliation"`
	NeedsReview         bool       `json:"needs_review"`
	OpenedAt            time.Time  `json:"opened_at"`
	ClosedAt            *time.Time `json:"closed_at,omitempty"`
}

func newPositionResponse(p *domain.Position) positionResponse {
	out := positionResponse{
		ID:                  p.ID,
		Mint:                p.Mint,
		Symbol:              p.Symbol,
		Name:                p.Name,
		Status:              string(p.Status),
		EntryPrice:          p.EntryPrice.String(),
		EntryPriceUSD:       p.EntryPriceUSD.String(),
		TokenAmount:         p.TokenAmount.String(),
		EntrySOL:            p.EntrySOL.String(),
		EntryTx:             p.EntryTx,
		TakeProfitPct:       p.TakeProfitPct,
		StopLossPct:         p.StopLossPct,
		ExitReason:          p.ExitReason,
		ExitTx:              p.ExitTx,
		NeedsReconciliation: p.NeedsReconciliation,
		NeedsReview:         p.NeedsReview,
		OpenedAt:            p.OpenedAt,
		ClosedAt:            p.ClosedAt,
	}
	if p.ExitPrice != nil {
		out.ExitPrice = p.ExitPrice.String()
		out.Return = p.RealizedReturn().String()
	}
	return out
}
