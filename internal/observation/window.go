// Package observation re-validates liquidity and quote stability shortly
// before entry.
package observation

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/marketdata"
	"solana-entry-gate/internal/observability"
)

// Quoter fetches a fresh quote for the same trade.
type Quoter interface {
	Quote(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error)
}

// Config tunes the window.
type Config struct {
	Delay              time.Duration // default 3s
	HighLiquidityUSD   float64       // skip at or above; default 100,000
	MaxLiquidityChange float64       // relative; default 0.15
	MaxQuoteDeviation  float64       // relative; default 0.10
}

// Outcome is the result of one observation.
type Outcome struct {
	Stable  bool
	Skipped bool
	Reason  string

	InitialLiquidityUSD float64
	CurrentLiquidityUSD float64
	LiquidityChange     float64 // relative, signed
	QuoteDeviation      float64 // relative, signed
	Quote               *domain.Quote
}

// Window waits, then compares fresh liquidity and quote figures to the ones
// seen at admission.
type Window struct {
	market marketdata.Client
	quoter Quoter
	cfg    Config
	logger *logrus.Entry
	after  func(time.Duration) <-chan time.Time
}

// New creates a Window. quoter may be nil when no quote comparison is wanted.
func New(market marketdata.Client, quoter Quoter, cfg Config, logger *logrus.Entry) *Window {
	if cfg.Delay <= 0 {
		cfg.Delay = 3 * time.Second
	}
	if cfg.HighLiquidityUSD <= 0 {
		cfg.HighLiquidityUSD = 100_000
	}
	if cfg.MaxLiquidityChange <= 0 {
		cfg.MaxLiquidityChange = 0.15
	}
	if cfg.MaxQuoteDeviation <= 0 {
		cfg.MaxQuoteDeviation = 0.10
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Window{
		market: market,
		quoter: quoter,
		cfg:    cfg,
		logger: logger.WithField("component", "observation"),
		after:  time.After,
	}
}

// Observe runs the window for c. Data failures are recorded in Reason and
// leave the outcome stable; only cancellation yields an unstable outcome
// without a measurement.
func (w *Window) Observe(ctx context.Context, c domain.Candidate, initial *domain.Quote) Outcome {
	out := w.observe(ctx, c, initial)

	label := "stable"
	switch {
	case out.Skipped:
		label = "skipped"
	case !out.Stable:
		label = "unstable"
	}
	observability.RecordObservation(label)
	w.logger.WithFields(logrus.Fields{
		"mint":             c.Address,
		"stable":           out.Stable,
		"skipped":          out.Skipped,
		"liquidity_change": out.LiquidityChange,
		"quote_deviation":  out.QuoteDeviation,
	}).Info(out.Reason)
	return out
}

func (w *Window) observe(ctx context.Context, c domain.Candidate, initial *domain.Quote) Outcome {
	out := Outcome{InitialLiquidityUSD: c.LiquidityUSD}

	switch {
	case c.Venue.IsFairLaunch():
		out.Stable, out.Skipped = true, true
		out.Reason = "skipped: fair-launch venue"
		return out
	case c.LiquidityUSD >= w.cfg.HighLiquidityUSD:
		out.Stable, out.Skipped = true, true
		out.Reason = fmt.Sprintf("skipped: liquidity $%.0f", c.LiquidityUSD)
		return out
	}

	select {
	case <-ctx.Done():
		out.Reason = "observation cancelled"
		return out
	case <-w.after(w.cfg.Delay):
	}

	out.Stable = true
	var notes []string

	pair, err := w.market.Pair(ctx, c.Address)
	if err != nil {
		notes = append(notes, "liquidity unavailable: "+err.Error())
	} else {
		out.CurrentLiquidityUSD = pair.LiquidityUSD
		if c.LiquidityUSD > 0 {
			out.LiquidityChange = (pair.LiquidityUSD - c.LiquidityUSD) / c.LiquidityUSD
			if math.Abs(out.LiquidityChange) > w.cfg.MaxLiquidityChange {
				out.Stable = false
				notes = append(notes, fmt.Sprintf("liquidity moved %+.1f%%", out.LiquidityChange*100))
			}
		}
	}

	if initial != nil && w.quoter != nil && initial.OutAmount > 0 {
		fresh, err := w.quoter.Quote(ctx, domain.QuoteRequest{
			InputMint:   initial.InputMint,
			OutputMint:  initial.OutputMint,
			Amount:      initial.InAmount,
			SlippageBps: initial.SlippageBps,
		})
		if err != nil {
			notes = append(notes, "quote unavailable: "+err.Error())
		} else {
			out.Quote = fresh
			out.QuoteDeviation = (float64(fresh.OutAmount) - float64(initial.OutAmount)) / float64(initial.OutAmount)
			if math.Abs(out.QuoteDeviation) > w.cfg.MaxQuoteDeviation {
				out.Stable = false
				notes = append(notes, fmt.Sprintf("quote output moved %+.1f%%", out.QuoteDeviation*100))
			}
		}
	}

	switch {
	case len(notes) == 0:
		out.Reason = "stable"
	case out.Stable:
		out.Reason = "stable (best effort): " + strings.Join(notes, "; ")
	default:
		out.Reason = "unstable: " + strings.Join(notes, "; ")
	}
	return out
}
