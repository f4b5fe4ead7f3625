// Package risk runs independent risk heuristics against a candidate and folds
// their results into one admission decision.
package risk

import (
	"context"
	"fmt"

	"solana-entry-gate/internal/domain"
)

// Check names.
const (
	CheckWalletCluster    = "wallet_cluster"
	CheckDeployerBehavior = "deployer_behavior"
	CheckCapitalStress    = "capital_stress"
	CheckLiquidityFloor   = "liquidity_floor"
	CheckTradability      = "tradability"
)

// DefaultDataUnavailablePenalty is charged when a check cannot reach its data.
const DefaultDataUnavailablePenalty = 10

// Check is one risk heuristic. Run never returns an error: upstream failures
// degrade to a passing result with the data-unavailable penalty.
type Check interface {
	Name() string
	Run(ctx context.Context, c domain.Candidate) domain.RiskCheckResult
}

func passed(name, reason string, details map[string]any) domain.RiskCheckResult {
	return domain.RiskCheckResult{Check: name, Passed: true, Reason: reason, Details: details}
}

func penalized(name string, penalty int, reason string, details map[string]any) domain.RiskCheckResult {
	return domain.RiskCheckResult{Check: name, Passed: false, Penalty: penalty, Reason: reason, Details: details}
}

func blocked(name, reason string, details map[string]any) domain.RiskCheckResult {
	return domain.RiskCheckResult{Check: name, Passed: false, HardBlock: true, Reason: reason, Details: details}
}

// degraded is the result for a check whose data source failed.
func degraded(name string, penalty int, err error) domain.RiskCheckResult {
	return domain.RiskCheckResult{
		Check:   name,
		Passed:  true,
		Penalty: penalty,
		Reason:  fmt.Sprintf("data unavailable: %v", err),
		Details: map[string]any{"data_unavailable": true, "error": err.Error()},
	}
}

// exempt is the neutral result for checks that do not apply to fair-launch venues.
func exempt(name string, venue domain.Venue) domain.RiskCheckResult {
	return domain.RiskCheckResult{
		Check:   name,
		Passed:  true,
		Reason:  "exempt: fair-launch venue " + venue.String(),
		Details: map[string]any{"exempt": true, "venue": venue.String()},
	}
}

func orPenalty(p int) int {
	if p <= 0 {
		return DefaultDataUnavailablePenalty
	}
	return p
}
