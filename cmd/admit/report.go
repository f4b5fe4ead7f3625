package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"solana-entry-gate/internal/domain"
)

func parseBuyAmount(s string) (decimal.Decimal, error) {
	amt, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("buy_amount_sol %q: %w", s, err)
	}
	if !amt.IsPositive() {
		return decimal.Zero, fmt.Errorf("buy_amount_sol must be positive, got %s", amt)
	}
	return amt, nil
}

// writeReport renders the per-check results and the verdict.
func writeReport(w io.Writer, c domain.Candidate, d domain.AggregateDecision) error {
	fmt.Fprintf(w, "Candidate %s (%s) on %s, liquidity $%.0f\n\n", c.Address, c.Symbol, c.Venue, c.LiquidityUSD)

	table := tablewriter.NewWriter(w)
	table.Header("Check", "Passed", "Penalty", "Hard block", "Reason")
	for _, r := range d.Results {
		if err := table.Append(
			r.Check,
			yesNo(r.Passed),
			strconv.Itoa(r.Penalty),
			yesNo(r.HardBlock),
			r.Reason,
		); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	verdict := "REJECTED"
	if d.Admitted {
		verdict = "ADMITTED"
	}
	_, err := fmt.Fprintf(w, "\n%s: penalty %d / threshold %d. %s\n", verdict, d.TotalPenalty, d.Threshold, d.Reason)
	return err
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
