package observation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/marketdata"
)

type fakeMarket struct {
	liquidity float64
	err       error
}

func (f *fakeMarket) Pair(_ context.Context, mint string) (*marketdata.Pair, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &marketdata.Pair{Mint: mint, LiquidityUSD: f.liquidity}, nil
}

func (f *fakeMarket) SOLPriceUSD(context.Context) (float64, error) { return 150, nil }

type fakeQuoter struct {
	out   uint64
	err   error
	calls int
}

func (f *fakeQuoter) Quote(_ context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Quote{InputMint: req.InputMint, OutputMint: req.OutputMint, InAmount: req.Amount, OutAmount: f.out}, nil
}

func instant(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func newWindow(m *fakeMarket, q Quoter) *Window {
	w := New(m, q, Config{}, nil)
	w.after = instant
	return w
}

func candidate(liq float64, venue domain.Venue) domain.Candidate {
	return domain.Candidate{Address: "MintA", LiquidityUSD: liq, Venue: venue}
}

func initialQuote() *domain.Quote {
	return &domain.Quote{InputMint: domain.WrappedSOLMint, OutputMint: "MintA", InAmount: 1e8, OutAmount: 1_000_000}
}

func TestObserve_SkipsFairLaunchAndDeepPools(t *testing.T) {
	m := &fakeMarket{err: errors.New("must not be called")}
	w := newWindow(m, nil)

	out := w.Observe(context.Background(), candidate(5000, domain.VenuePumpFun), nil)
	assert.True(t, out.Stable)
	assert.True(t, out.Skipped)

	out = w.Observe(context.Background(), candidate(100_000, domain.VenueRaydium), nil)
	assert.True(t, out.Stable)
	assert.True(t, out.Skipped)
}

func TestObserve_Stable(t *testing.T) {
	q := &fakeQuoter{out: 1_050_000}
	w := newWindow(&fakeMarket{liquidity: 42000}, q)

	out := w.Observe(context.Background(), candidate(40000, domain.VenueRaydium), initialQuote())
	assert.True(t, out.Stable)
	assert.False(t, out.Skipped)
	assert.InDelta(t, 0.05, out.LiquidityChange, 1e-9)
	assert.InDelta(t, 0.05, out.QuoteDeviation, 1e-9)
	require.NotNil(t, out.Quote)
	assert.Equal(t, 1, q.calls)
}

func TestObserve_LiquidityDropUnstable(t *testing.T) {
	w := newWindow(&fakeMarket{liquidity: 30000}, nil)

	out := w.Observe(context.Background(), candidate(40000, domain.VenueOrca), nil)
	assert.False(t, out.Stable)
	assert.Contains(t, out.Reason, "liquidity moved -25.0%")
}

func TestObserve_QuoteDeviationUnstable(t *testing.T) {
	w := newWindow(&fakeMarket{liquidity: 40000}, &fakeQuoter{out: 850_000})

	out := w.Observe(context.Background(), candidate(40000, domain.VenueMeteora), initialQuote())
	assert.False(t, out.Stable)
	assert.Contains(t, out.Reason, "quote output moved")
}

func TestObserve_DataFailureIsBestEffort(t *testing.T) {
	w := newWindow(&fakeMarket{err: domain.ErrDataUnavailable}, &fakeQuoter{err: domain.ErrNoRoute})

	out := w.Observe(context.Background(), candidate(40000, domain.VenueRaydium), initialQuote())
	assert.True(t, out.Stable)
	assert.Contains(t, out.Reason, "liquidity unavailable")
	assert.Contains(t, out.Reason, "quote unavailable")
}

func TestObserve_Cancelled(t *testing.T) {
	w := New(&fakeMarket{liquidity: 40000}, nil, Config{Delay: time.Hour}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := w.Observe(ctx, candidate(40000, domain.VenueRaydium), nil)
	assert.False(t, out.Stable)
	assert.Equal(t, "observation cancelled", out.Reason)
}
