// Package marketdata fetches pool liquidity and prices from a DexScreener style API.
package marketdata

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/upstream"
)

// Pair is the deepest pool found for a token.
type Pair struct {
	Mint         string
	PairAddress  string
	DexID        string
	LiquidityUSD float64
	PriceUSD     float64
	PriceNative  float64 // quote token per base token, SOL for SOL pairs
	FetchedAt    time.Time
}

// Client provides liquidity and price data.
type Client interface {
	// Pair returns the highest-liquidity pair for mint.
	Pair(ctx context.Context, mint string) (*Pair, error)
	// SOLPriceUSD returns the current SOL price in USD.
	SOLPriceUSD(ctx context.Context) (float64, error)
}

// HTTPClient implements Client.
type HTTPClient struct {
	http     *upstream.Client
	chainID  string
	priceTTL time.Duration

	mu        sync.Mutex
	solPrice  float64
	solPriced time.Time
}

// Options configures an HTTPClient.
type Options struct {
	HTTP upstream.Config
	// ChainID filters pairs; default "solana".
	ChainID string
	// SOLPriceTTL caches the SOL price; default 30s.
	SOLPriceTTL time.Duration
}

// NewHTTPClient creates an HTTPClient.
func NewHTTPClient(opts Options) *HTTPClient {
	if opts.HTTP.Service == "" {
		opts.HTTP.Service = "marketdata"
	}
	if opts.ChainID == "" {
		opts.ChainID = "solana"
	}
	if opts.SOLPriceTTL <= 0 {
		opts.SOLPriceTTL = 30 * time.Second
	}
	return &HTTPClient{
		http:     upstream.New(opts.HTTP),
		chainID:  opts.ChainID,
		priceTTL: opts.SOLPriceTTL,
	}
}

type tokensResponse struct {
	Pairs []pairJSON `json:"pairs"`
}

type pairJSON struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	PairAddress string `json:"pairAddress"`
	BaseToken   struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceNative string `json:"priceNative"`
	PriceUsd    string `json:"priceUsd"`
	Liquidity   *struct {
		Usd float64 `json:"usd"`
	} `json:"liquidity"`
}

// Pair implements Client.
func (c *HTTPClient) Pair(ctx context.Context, mint string) (*Pair, error) {
	var resp tokensResponse
	if err := c.http.Get(ctx, "pair", "/latest/dex/tokens/"+url.PathEscape(mint), nil, &resp); err != nil {
		return nil, fmt.Errorf("pair %s: %w: %w", mint, domain.ErrDataUnavailable, err)
	}

	var best *pairJSON
	for i := range resp.Pairs {
		p := &resp.Pairs[i]
		if p.ChainID != "" && p.ChainID != c.chainID {
			continue
		}
		// the token must be the base side for priceUsd to be its price
		if p.BaseToken.Address != "" && p.BaseToken.Address != mint {
			continue
		}
		if p.Liquidity == nil {
			continue
		}
		if best == nil || p.Liquidity.Usd > best.Liquidity.Usd {
			best = p
		}
	}
	if best == nil {
		return nil, fmt.Errorf("pair %s: %w: no pairs", mint, domain.ErrDataUnavailable)
	}

	return &Pair{
		Mint:         mint,
		PairAddress:  best.PairAddress,
		DexID:        best.DexID,
		LiquidityUSD: best.Liquidity.Usd,
		PriceUSD:     parseFloat(best.PriceUsd),
		PriceNative:  parseFloat(best.PriceNative),
		FetchedAt:    time.Now(),
	}, nil
}

// SOLPriceUSD implements Client. The price is cached for SOLPriceTTL.
func (c *HTTPClient) SOLPriceUSD(ctx context.Context) (float64, error) {
	c.mu.Lock()
	if c.solPrice > 0 && time.Since(c.solPriced) < c.priceTTL {
		p := c.solPrice
		c.mu.Unlock()
		return p, nil
	}
	c.mu.Unlock()

	pair, err := c.Pair(ctx, domain.WrappedSOLMint)
	if err != nil {
		return 0, err
	}
	if pair.PriceUSD <= 0 {
		return 0, fmt.Errorf("sol price: %w: non-positive price", domain.ErrDataUnavailable)
	}

	c.mu.Lock()
	c.solPrice = pair.PriceUSD
	c.solPriced = time.Now()
	c.mu.Unlock()
	return pair.PriceUSD, nil
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

var _ Client = (*HTTPClient)(nil)
