package domain

import (
	"sort"
	"strings"
	"time"
)

// RiskCheckResult is the output of one risk heuristic. Never mutated after creation.
type RiskCheckResult struct {
	Check     string         // check name
	Passed    bool           // heuristic passed
	Penalty   int            // additive soft-risk score, 0-100
	HardBlock bool           // vetoes admission regardless of total penalty
	Reason    string         // human-readable
	Details   map[string]any // heuristic-specific data
}

// AggregateDecision is derived from a set of RiskCheckResults.
type AggregateDecision struct {
	Admitted     bool
	HardBlocked  bool
	BlockedBy    []string // checks that reported a hard block
	TotalPenalty int
	Threshold    int
	Reason       string
	Results      []RiskCheckResult // sorted by check name
}

// Aggregate folds results into a decision. The outcome does not depend on the
// order of results.
func Aggregate(results []RiskCheckResult, threshold int) AggregateDecision {
	sorted := make([]RiskCheckResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Check < sorted[j].Check
	})

	d := AggregateDecision{
		Threshold: threshold,
		Results:   sorted,
	}
	for _, r := range sorted {
		d.TotalPenalty += r.Penalty
		if r.HardBlock {
			d.HardBlocked = true
			d.BlockedBy = append(d.BlockedBy, r.Check)
		}
	}

	switch {
	case d.HardBlocked:
		d.Reason = "hard block: " + strings.Join(d.BlockedBy, ", ")
	case d.TotalPenalty > threshold:
		d.Reason = "penalty above threshold"
	default:
		d.Admitted = true
		d.Reason = "admitted"
	}
	return d
}

// RiskEvaluation is one persisted run of the risk gate.
type RiskEvaluation struct {
	ID          string
	UserID      string
	Mint        string
	Venue       Venue
	Decision    AggregateDecision
	EvaluatedAt time.Time
}

// RiskCheckRecord is one analytics row: a check result with its evaluation context.
type RiskCheckRecord struct {
	EvaluationID string
	Mint         string
	Admitted     bool
	TotalPenalty int
	Result       RiskCheckResult
	EvaluatedAt  time.Time
}

// Records flattens the evaluation into one row per check.
func (e *RiskEvaluation) Records() []RiskCheckRecord {
	out := make([]RiskCheckRecord, 0, len(e.Decision.Results))
	for _, r := range e.Decision.Results {
		out = append(out, RiskCheckRecord{
			EvaluationID: e.ID,
			Mint:         e.Mint,
			Admitted:     e.Decision.Admitted,
			TotalPenalty: e.Decision.TotalPenalty,
			Result:       r,
			EvaluatedAt:  e.EvaluatedAt,
		})
	}
	return out
}
