package risk

import (
	"context"
	"fmt"
	"time"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/walletgraph"
)

// ClusterConfig tunes the wallet cluster check.
type ClusterConfig struct {
	MaxSharedFraction  float64       // hard block above; default 0.40
	FreshWarnFraction  float64       // penalty above; default 0.50
	FreshBlockFraction float64       // hard block above; default 0.80
	FreshWalletAge     time.Duration // funded more recently counts as fresh; default 24h
	FreshPenalty       int           // default 20
	EarlyBuyers        int           // default 10
	AncestorDepth      int           // default 2

	DataUnavailablePenalty int
}

func (c ClusterConfig) withDefaults() ClusterConfig {
	if c.MaxSharedFraction <= 0 {
		c.MaxSharedFraction = 0.40
	}
	if c.FreshWarnFraction <= 0 {
		c.FreshWarnFraction = 0.50
	}
	if c.FreshBlockFraction <= 0 {
		c.FreshBlockFraction = 0.80
	}
	if c.FreshWalletAge <= 0 {
		c.FreshWalletAge = 24 * time.Hour
	}
	if c.FreshPenalty <= 0 {
		c.FreshPenalty = 20
	}
	if c.EarlyBuyers <= 0 {
		c.EarlyBuyers = 10
	}
	if c.AncestorDepth <= 0 {
		c.AncestorDepth = 2
	}
	c.DataUnavailablePenalty = orPenalty(c.DataUnavailablePenalty)
	return c
}

// WalletCluster detects coordinated wallets: early buyers, the deployer and
// the pool creator funded from one source, or a buyer set of fresh wallets.
type WalletCluster struct {
	graph walletgraph.Client
	cfg   ClusterConfig
	now   func() time.Time
}

// NewWalletCluster creates the check.
func NewWalletCluster(graph walletgraph.Client, cfg ClusterConfig) *WalletCluster {
	return &WalletCluster{graph: graph, cfg: cfg.withDefaults(), now: time.Now}
}

// Name implements Check.
func (w *WalletCluster) Name() string { return CheckWalletCluster }

// Run implements Check.
func (w *WalletCluster) Run(ctx context.Context, c domain.Candidate) domain.RiskCheckResult {
	if c.Venue.IsFairLaunch() {
		return exempt(CheckWalletCluster, c.Venue)
	}

	buyers, err := w.graph.EarlyBuyers(ctx, c.Address, w.cfg.EarlyBuyers)
	if err != nil {
		return degraded(CheckWalletCluster, w.cfg.DataUnavailablePenalty, err)
	}

	wallets := uniqueWallets(c.Deployer, c.PoolCreator, buyers)
	if len(wallets) < 2 {
		return degraded(CheckWalletCluster, w.cfg.DataUnavailablePenalty,
			fmt.Errorf("%w: %d wallets to analyze", domain.ErrDataUnavailable, len(wallets)))
	}

	funding, err := w.graph.FundingAncestors(ctx, wallets, w.cfg.AncestorDepth)
	if err != nil {
		return degraded(CheckWalletCluster, w.cfg.DataUnavailablePenalty, err)
	}

	ancestor, shared := largestCluster(wallets, funding)
	sharedFrac := float64(shared) / float64(len(wallets))

	fresh, known := 0, 0
	now := w.now()
	for _, b := range buyers {
		f, ok := funding[b.Address]
		if !ok || f.FundedAt.IsZero() {
			continue
		}
		known++
		if now.Sub(f.FundedAt) < w.cfg.FreshWalletAge {
			fresh++
		}
	}
	freshFrac := 0.0
	if known > 0 {
		freshFrac = float64(fresh) / float64(known)
	}

	details := map[string]any{
		"wallets_analyzed":      len(wallets),
		"largest_cluster":       shared,
		"common_ancestor":       ancestor,
		"shared_fraction":       sharedFrac,
		"fresh_wallets":         fresh,
		"buyers_with_funding":   known,
		"fresh_wallet_fraction": freshFrac,
	}

	switch {
	case shared >= 2 && sharedFrac > w.cfg.MaxSharedFraction:
		return blocked(CheckWalletCluster,
			fmt.Sprintf("%.0f%% of wallets share funding source %s", sharedFrac*100, ancestor), details)
	case freshFrac > w.cfg.FreshBlockFraction:
		return blocked(CheckWalletCluster,
			fmt.Sprintf("%.0f%% of early buyers are fresh wallets", freshFrac*100), details)
	case freshFrac > w.cfg.FreshWarnFraction:
		return penalized(CheckWalletCluster, w.cfg.FreshPenalty,
			fmt.Sprintf("%.0f%% of early buyers are fresh wallets", freshFrac*100), details)
	}
	return passed(CheckWalletCluster, "no funding cluster detected", details)
}

func uniqueWallets(deployer, poolCreator string, buyers []walletgraph.Buyer) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(addr string) {
		if addr == "" || seen[addr] {
			return
		}
		seen[addr] = true
		out = append(out, addr)
	}
	add(deployer)
	add(poolCreator)
	for _, b := range buyers {
		add(b.Address)
	}
	return out
}

// largestCluster returns the ancestor shared by the most analyzed wallets.
// Ties break on the lexically smaller address so the result is stable.
func largestCluster(wallets []string, funding map[string]walletgraph.Funding) (string, int) {
	counts := make(map[string]int)
	for _, w := range wallets {
		seen := make(map[string]bool)
		for _, a := range funding[w].Ancestors {
			if a == "" || seen[a] {
				continue
			}
			seen[a] = true
			counts[a]++
		}
	}

	best, bestN := "", 0
	for a, n := range counts {
		if n > bestN || (n == bestN && a < best) {
			best, bestN = a, n
		}
	}
	return best, bestN
}
