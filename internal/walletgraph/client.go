// Package walletgraph queries a wallet funding-graph service.
package walletgraph

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/upstream"
)

// Funding describes where a wallet's SOL came from.
type Funding struct {
	Wallet    string
	Ancestors []string // nearest first
	FundedAt  time.Time
}

// Buyer is an early buyer of a token.
type Buyer struct {
	Address    string
	FirstBuyAt time.Time
}

// DeployedToken is one token launched by a deployer.
type DeployedToken struct {
	Mint              string
	CreatedAt         time.Time
	LiquidityLifespan time.Duration // zero while liquidity is still live
	Rugged            bool
}

// DeployerHistory lists the tokens a wallet has deployed.
type DeployerHistory struct {
	Deployer string
	Tokens   []DeployedToken
}

// TokensSince counts tokens created at or after t.
func (h *DeployerHistory) TokensSince(t time.Time) int {
	n := 0
	for _, tok := range h.Tokens {
		if !tok.CreatedAt.Before(t) {
			n++
		}
	}
	return n
}

// AvgLiquidityLifespan averages lifespans of tokens whose liquidity ended.
// ok is false when no token has a recorded lifespan.
func (h *DeployerHistory) AvgLiquidityLifespan() (avg time.Duration, ok bool) {
	var total time.Duration
	n := 0
	for _, tok := range h.Tokens {
		if tok.LiquidityLifespan > 0 {
			total += tok.LiquidityLifespan
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return total / time.Duration(n), true
}

// RugRatio is the fraction of deployed tokens flagged rugged.
func (h *DeployerHistory) RugRatio() float64 {
	if len(h.Tokens) == 0 {
		return 0
	}
	rugged := 0
	for _, tok := range h.Tokens {
		if tok.Rugged {
			rugged++
		}
	}
	return float64(rugged) / float64(len(h.Tokens))
}

// Client queries the wallet graph.
type Client interface {
	FundingAncestors(ctx context.Context, wallets []string, depth int) (map[string]Funding, error)
	EarlyBuyers(ctx context.Context, mint string, n int) ([]Buyer, error)
	DeployerHistory(ctx context.Context, deployer string) (*DeployerHistory, error)
}

// HTTPClient implements Client over the graph service REST API.
type HTTPClient struct {
	http *upstream.Client
}

// NewHTTPClient creates an HTTPClient.
func NewHTTPClient(cfg upstream.Config) *HTTPClient {
	if cfg.Service == "" {
		cfg.Service = "walletgraph"
	}
	return &HTTPClient{http: upstream.New(cfg)}
}

type fundingRequest struct {
	Wallets []string `json:"wallets"`
	Depth   int      `json:"depth"`
}

type fundingResponse struct {
	Wallets map[string]struct {
		Ancestors []string   `json:"ancestors"`
		FundedAt  *time.Time `json:"funded_at"`
	} `json:"wallets"`
}

// FundingAncestors implements Client.
func (c *HTTPClient) FundingAncestors(ctx context.Context, wallets []string, depth int) (map[string]Funding, error) {
	if len(wallets) == 0 {
		return map[string]Funding{}, nil
	}
	var resp fundingResponse
	if err := c.http.Post(ctx, "funding", "/v1/funding-ancestors", fundingRequest{Wallets: wallets, Depth: depth}, &resp); err != nil {
		return nil, fmt.Errorf("funding ancestors: %w: %w", domain.ErrDataUnavailable, err)
	}

	out := make(map[string]Funding, len(resp.Wallets))
	for addr, w := range resp.Wallets {
		f := Funding{Wallet: addr, Ancestors: w.Ancestors}
		if w.FundedAt != nil {
			f.FundedAt = *w.FundedAt
		}
		out[addr] = f
	}
	return out, nil
}

type buyersResponse struct {
	Buyers []struct {
		Address    string    `json:"address"`
		FirstBuyAt time.Time `json:"first_buy_at"`
	} `json:"buyers"`
}

// EarlyBuyers implements Client.
func (c *HTTPClient) EarlyBuyers(ctx context.Context, mint string, n int) ([]Buyer, error) {
	var resp buyersResponse
	path := "/v1/tokens/" + url.PathEscape(mint) + "/early-buyers"
	if err := c.http.Get(ctx, "early_buyers", path, map[string]string{"limit": strconv.Itoa(n)}, &resp); err != nil {
		return nil, fmt.Errorf("early buyers: %w: %w", domain.ErrDataUnavailable, err)
	}

	buyers := make([]Buyer, 0, len(resp.Buyers))
	for _, b := range resp.Buyers {
		if b.Address == "" {
			continue
		}
		buyers = append(buyers, Buyer{Address: b.Address, FirstBuyAt: b.FirstBuyAt})
		if len(buyers) == n {
			break
		}
	}
	return buyers, nil
}

type historyResponse struct {
	Tokens []struct {
		Mint                 string    `json:"mint"`
		CreatedAt            time.Time `json:"created_at"`
		LiquidityLifespanSec float64   `json:"liquidity_lifespan_sec"`
		Rugged               bool      `json:"rugged"`
	} `json:"tokens"`
}

// DeployerHistory implements Client.
func (c *HTTPClient) DeployerHistory(ctx context.Context, deployer string) (*DeployerHistory, error) {
	var resp historyResponse
	if err := c.http.Get(ctx, "deployer_history", "/v1/deployers/"+url.PathEscape(deployer)+"/history", nil, &resp); err != nil {
		return nil, fmt.Errorf("deployer history: %w: %w", domain.ErrDataUnavailable, err)
	}

	h := &DeployerHistory{Deployer: deployer, Tokens: make([]DeployedToken, 0, len(resp.Tokens))}
	for _, t := range resp.Tokens {
		h.Tokens = append(h.Tokens, DeployedToken{
			Mint:              t.Mint,
			CreatedAt:         t.CreatedAt,
			LiquidityLifespan: time.Duration(t.LiquidityLifespanSec * float64(time.Second)),
			Rugged:            t.Rugged,
		})
	}
	return h, nil
}

var _ Client = (*HTTPClient)(nil)
