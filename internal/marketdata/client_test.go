package marketdata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/upstream"
)

const mint = "7GCihgDB8fe6KNjn2MYtkzZcRjQy3t9GHdC8uHYmW2hr"

func newClient(t *testing.T, h http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewHTTPClient(Options{HTTP: upstream.Config{
		BaseURL:    srv.URL,
		Timeout:    2 * time.Second,
		RetryCount: 0,
	}})
}

func TestPair_PicksDeepestSolanaPool(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest/dex/tokens/"+mint, r.URL.Path)
		w.Write([]byte(`{"pairs":[
			{"chainId":"solana","dexId":"orca","pairAddress":"A","baseToken":{"address":"` + mint + `"},"priceUsd":"0.010","priceNative":"0.00005","liquidity":{"usd":12000}},
			{"chainId":"solana","dexId":"raydium","pairAddress":"B","baseToken":{"address":"` + mint + `"},"priceUsd":"0.011","priceNative":"0.000055","liquidity":{"usd":40000}},
			{"chainId":"ethereum","dexId":"uniswap","pairAddress":"C","baseToken":{"address":"` + mint + `"},"priceUsd":"0.5","liquidity":{"usd":900000}},
			{"chainId":"solana","dexId":"meteora","pairAddress":"D","baseToken":{"address":"Other"},"priceUsd":"9","liquidity":{"usd":800000}},
			{"chainId":"solana","dexId":"pumpfun","pairAddress":"E","baseToken":{"address":"` + mint + `"},"priceUsd":"0.02"}
		]}`))
	})

	p, err := c.Pair(context.Background(), mint)
	require.NoError(t, err)
	assert.Equal(t, "B", p.PairAddress)
	assert.Equal(t, "raydium", p.DexID)
	assert.Equal(t, 40000.0, p.LiquidityUSD)
	assert.InDelta(t, 0.011, p.PriceUSD, 1e-12)
	assert.InDelta(t, 0.000055, p.PriceNative, 1e-12)
}

func TestPair_NoPairs(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"schemaVersion":"1.0.0","pairs":null}`))
	})

	_, err := c.Pair(context.Background(), mint)
	assert.True(t, errors.Is(err, domain.ErrDataUnavailable))
}

func TestPair_UpstreamFailureIsDataUnavailable(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.Pair(context.Background(), mint)
	assert.True(t, errors.Is(err, domain.ErrDataUnavailable))
	assert.True(t, errors.Is(err, domain.ErrTransientNetwork))
}

func TestSOLPriceUSD_Cached(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/latest/dex/tokens/"+domain.WrappedSOLMint, r.URL.Path)
		w.Write([]byte(`{"pairs":[{"chainId":"solana","baseToken":{"address":"` + domain.WrappedSOLMint + `"},"priceUsd":"150.25","liquidity":{"usd":5000000}}]}`))
	})

	p, err := c.SOLPriceUSD(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 150.25, p)

	_, err = c.SOLPriceUSD(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
