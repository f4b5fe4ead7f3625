package orchestrator

import (
	"context"

	"github.com/sirupsen/logrus"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/observability"
	"solana-entry-gate/internal/observation"
)

// Admit runs the risk gate for c.
func (o *Orchestrator) Admit(ctx context.Context, c domain.Candidate) domain.AggregateDecision {
	observability.RecordCandidateReceived()
	return o.gate.Evaluate(ctx, c)
}

// ProcessResult is the outcome of Process for one candidate.
type ProcessResult struct {
	Mint        string                   `json:"mint"`
	Decision    domain.AggregateDecision `json:"decision"`
	Observation *observation.Outcome     `json:"observation,omitempty"`
	Enqueued    bool                     `json:"enqueued"`
	Reason      string                   `json:"reason"`
}

// Process admits c, observes it when configured and enqueues it.
func (o *Orchestrator) Process(ctx context.Context, c domain.Candidate) ProcessResult {
	res := ProcessResult{Mint: c.Address}
	log := o.logger.WithField("mint", c.Address)

	res.Decision = o.Admit(ctx, c)
	if !res.Decision.Admitted {
		res.Reason = res.Decision.Reason
		log.WithFields(logrus.Fields{
			"penalty": res.Decision.TotalPenalty,
			"reason":  res.Decision.Reason,
		}).Info("candidate rejected by risk gate")
		return res
	}

	if o.observer != nil {
		var initial *domain.Quote
		if o.quoter != nil {
			q, err := o.quoter.Quote(ctx, o.buyQuoteRequest(c.Address))
			if err != nil {
				log.WithError(err).Debug("initial quote for observation failed")
			} else {
				initial = q
			}
		}
		out := o.observer.Observe(ctx, c, initial)
		res.Observation = &out
		o.appendAudit(ctx, domain.AuditObservation, c.Address, map[string]any{
			"stable":           out.Stable,
			"skipped":          out.Skipped,
			"reason":           out.Reason,
			"liquidity_change": out.LiquidityChange,
			"quote_deviation":  out.QuoteDeviation,
		})
		if !out.Stable && o.abortOnInstability {
			res.Reason = "unstable: " + out.Reason
			log.WithField("reason", out.Reason).Info("candidate dropped after observation")
			return res
		}
		if ctx.Err() != nil {
			res.Reason = "cancelled"
			return res
		}
	}

	if o.Enqueue(c) == 0 {
		res.Reason = "already queued or processed"
		return res
	}
	res.Enqueued = true
	res.Reason = "enqueued"
	return res
}

func (o *Orchestrator) buyQuoteRequest(mint string) domain.QuoteRequest {
	lamports := o.execCfg.BuyAmountSOL.Shift(domain.SOLDecimals).Floor()
	return domain.QuoteRequest{
		InputMint:   domain.WrappedSOLMint,
		OutputMint:  mint,
		Amount:      uint64(lamports.IntPart()),
		SlippageBps: o.execCfg.SlippageBps,
	}
}
