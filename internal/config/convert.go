package config

import (
	"github.com/shopspring/decimal"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/risk"
	"solana-entry-gate/internal/upstream"
)

// Upstream converts a service section into an HTTP client config.
func (s ServiceConfig) Upstream(service string) upstream.Config {
	return upstream.Config{
		Service:    service,
		BaseURL:    s.BaseURL,
		APIKey:     s.APIKey,
		Timeout:    s.Timeout.Duration,
		RetryCount: s.RetryCount,
		RPS:        s.RPS,
		Burst:      s.Burst,
	}
}

// Domain returns the per-trade parameters. Call after Validate.
func (e ExecutionConfig) Domain() domain.ExecutionConfig {
	amount, _ := decimal.NewFromString(e.BuyAmountSOL)
	return domain.ExecutionConfig{
		BuyAmountSOL:        amount,
		SlippageBps:         e.SlippageBps,
		PriorityFeeLamports: e.PriorityFeeLamports,
		MaxRetries:          e.MaxRetries,
		TakeProfitPct:       e.TakeProfitPct,
		StopLossPct:         e.StopLossPct,
	}
}

// FeeReserve returns the SOL kept back on top of the buy amount.
func (e ExecutionConfig) FeeReserve() decimal.Decimal {
	d, _ := decimal.NewFromString(e.FeeReserveSOL)
	return d
}

// Policy maps the risk section onto the built-in check tunables.
func (r RiskConfig) Policy() risk.Policy {
	return risk.Policy{
		Cluster: risk.ClusterConfig{
			MaxSharedFraction:      r.ClusterMaxSharedFrac,
			FreshWarnFraction:      r.FreshWalletWarnFrac,
			FreshBlockFraction:     r.FreshWalletBlockFrac,
			EarlyBuyers:            r.EarlyBuyers,
			DataUnavailablePenalty: r.DataUnavailablePenalty,
		},
		Deployer: risk.DeployerConfig{
			MaxTokens24h:           r.DeployerMaxTokens24h,
			MinLiquidityLifespan:   r.DeployerMinLiqLifespan.Duration,
			MaxRugRatio:            r.DeployerMaxRugRatio,
			DataUnavailablePenalty: r.DataUnavailablePenalty,
		},
		Stress: risk.StressConfig{
			WithdrawFraction:       r.StressWithdrawFrac,
			BlockLoss:              r.StressBlockLoss,
			WarnLoss:               r.StressWarnLoss,
			WarnPenalty:            r.StressWarnPenalty,
			FeeFraction:            r.StressFeeFrac,
			DataUnavailablePenalty: r.DataUnavailablePenalty,
		},
		LiquidityHardMin: r.LiquidityHardMinUSD,
		LiquiditySoftMin: r.LiquiditySoftMinUSD,
	}
}

// Schedule converts the checkpoint list. Empty means the monitor default.
func (m MonitorConfig) Schedule() []domain.CheckpointSpec {
	if len(m.Checkpoints) == 0 {
		return nil
	}
	out := make([]domain.CheckpointSpec, 0, len(m.Checkpoints))
	for _, cp := range m.Checkpoints {
		out = append(out, domain.CheckpointSpec{
			Offset:       cp.Offset.Duration,
			MaxDropPct:   cp.MaxDropPct,
			MaxImpactPct: cp.MaxImpactPct,
		})
	}
	return out
}
