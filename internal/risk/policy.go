package risk

import (
	"github.com/shopspring/decimal"

	"solana-entry-gate/internal/marketdata"
	"solana-entry-gate/internal/walletgraph"
)

// Policy collects the tunables of every built-in check.
type Policy struct {
	Cluster          ClusterConfig
	Deployer         DeployerConfig
	Stress           StressConfig
	LiquidityHardMin float64
	LiquiditySoftMin float64
}

// NewChecks builds the five built-in checks.
func NewChecks(p Policy, graph walletgraph.Client, market marketdata.Client, buySOL decimal.Decimal) []Check {
	return []Check{
		NewWalletCluster(graph, p.Cluster),
		NewDeployerBehavior(graph, p.Deployer),
		NewCapitalStress(market, buySOL, p.Stress),
		NewLiquidityFloor(p.LiquidityHardMin, p.LiquiditySoftMin),
		Tradability{},
	}
}
