package risk

import (
	"context"
	"errors"
	"time"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/marketdata"
	"solana-entry-gate/internal/walletgraph"
)

var errUpstream = errors.New("upstream down")

type fakeGraph struct {
	buyers     []walletgraph.Buyer
	buyersErr  error
	funding    map[string]walletgraph.Funding
	fundingErr error
	history    *walletgraph.DeployerHistory
	historyErr error
}

func (f *fakeGraph) FundingAncestors(_ context.Context, wallets []string, _ int) (map[string]walletgraph.Funding, error) {
	if f.fundingErr != nil {
		return nil, f.fundingErr
	}
	out := make(map[string]walletgraph.Funding)
	for _, w := range wallets {
		if fd, ok := f.funding[w]; ok {
			out[w] = fd
		}
	}
	return out, nil
}

func (f *fakeGraph) EarlyBuyers(_ context.Context, _ string, n int) ([]walletgraph.Buyer, error) {
	if f.buyersErr != nil {
		return nil, f.buyersErr
	}
	if len(f.buyers) > n {
		return f.buyers[:n], nil
	}
	return f.buyers, nil
}

func (f *fakeGraph) DeployerHistory(_ context.Context, _ string) (*walletgraph.DeployerHistory, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history, nil
}

type fakeMarket struct {
	solUSD float64
	err    error
}

func (f *fakeMarket) Pair(_ context.Context, mint string) (*marketdata.Pair, error) {
	return &marketdata.Pair{Mint: mint}, nil
}

func (f *fakeMarket) SOLPriceUSD(context.Context) (float64, error) {
	return f.solUSD, f.err
}

// staticCheck returns a fixed result, optionally after a delay or with a panic.
type staticCheck struct {
	name   string
	result domain.RiskCheckResult
	delay  time.Duration
	panics bool
}

func (s staticCheck) Name() string { return s.name }

func (s staticCheck) Run(ctx context.Context, _ domain.Candidate) domain.RiskCheckResult {
	if s.panics {
		panic("boom")
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			// ignore cancellation to exercise the aggregator's own timeout
			time.Sleep(s.delay)
		}
	}
	return s.result
}

func pooledCandidate() domain.Candidate {
	return domain.Candidate{
		Address:      "Mint1111111111111111111111111111111111111111",
		Symbol:       "TEST",
		LiquidityUSD: 40000,
		CanBuy:       true,
		CanSell:      true,
		IsTradeable:  true,
		Venue:        domain.VenueRaydium,
		Deployer:     "Deployer",
		PoolCreator:  "Creator",
	}
}
