// Package aggregator is a client for a Jupiter v6 style swap router.
package aggregator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/upstream"
)

// Router error codes that mean "no liquidity path right now".
var noRouteCodes = map[string]bool{
	"COULD_NOT_FIND_ANY_ROUTE": true,
	"NO_ROUTES_FOUND":          true,
	"TOKEN_NOT_TRADABLE":       true,
}

// Options configures a Client.
type Options struct {
	HTTP upstream.Config
	// TokenHTTP serves token metadata. Zero value reuses HTTP.
	TokenHTTP upstream.Config
	// TokenPath is the metadata path prefix, the mint is appended.
	TokenPath string
	// QuoteTTL stamps returned quotes.
	QuoteTTL time.Duration
}

// Client implements the execution router over HTTP.
type Client struct {
	http      *upstream.Client
	tokens    *upstream.Client
	tokenPath string
	quoteTTL  time.Duration
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.HTTP.Service == "" {
		opts.HTTP.Service = "aggregator"
	}
	c := &Client{
		http:      upstream.New(opts.HTTP),
		tokenPath: opts.TokenPath,
		quoteTTL:  opts.QuoteTTL,
	}
	if opts.TokenHTTP.BaseURL != "" {
		if opts.TokenHTTP.Service == "" {
			opts.TokenHTTP.Service = "aggregator_tokens"
		}
		c.tokens = upstream.New(opts.TokenHTTP)
	} else {
		c.tokens = c.http
	}
	if c.tokenPath == "" {
		c.tokenPath = "/tokens/v1/token/"
	}
	if c.quoteTTL <= 0 {
		c.quoteTTL = 20 * time.Second
	}
	return c
}

type quoteResponse struct {
	InputMint            string      `json:"inputMint"`
	InAmount             string      `json:"inAmount"`
	OutputMint           string      `json:"outputMint"`
	OutAmount            string      `json:"outAmount"`
	OtherAmountThreshold string      `json:"otherAmountThreshold"`
	SlippageBps          int         `json:"slippageBps"`
	PriceImpactPct       string      `json:"priceImpactPct"`
	RoutePlan            []routeStep `json:"routePlan"`
}

type routeStep struct {
	SwapInfo struct {
		AmmKey string `json:"ammKey"`
		Label  string `json:"label"`
	} `json:"swapInfo"`
	Percent int `json:"percent"`
}

type errorResponse struct {
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode"`
}

// Quote fetches a swap quote.
func (c *Client) Quote(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
	if req.Amount == 0 {
		return nil, fmt.Errorf("quote: amount must be positive")
	}
	query := map[string]string{
		"inputMint":   req.InputMint,
		"outputMint":  req.OutputMint,
		"amount":      strconv.FormatUint(req.Amount, 10),
		"slippageBps": strconv.Itoa(req.SlippageBps),
	}

	var raw json.RawMessage
	if err := c.http.Get(ctx, "quote", "/quote", query, &raw); err != nil {
		return nil, mapRouterError("quote", err)
	}

	var resp quoteResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: quote: %w", domain.ErrMalformedResponse, err)
	}
	return c.toQuote(resp, raw)
}

func (c *Client) toQuote(resp quoteResponse, raw json.RawMessage) (*domain.Quote, error) {
	in, err := parseAmount("inAmount", resp.InAmount)
	if err != nil {
		return nil, err
	}
	out, err := parseAmount("outAmount", resp.OutAmount)
	if err != nil {
		return nil, err
	}
	if out == 0 || len(resp.RoutePlan) == 0 {
		return nil, fmt.Errorf("quote: %w: empty route", domain.ErrNoRoute)
	}
	threshold := out
	if resp.OtherAmountThreshold != "" {
		if threshold, err = parseAmount("otherAmountThreshold", resp.OtherAmountThreshold); err != nil {
			return nil, err
		}
	}

	var impact float64
	if resp.PriceImpactPct != "" {
		frac, err := strconv.ParseFloat(resp.PriceImpactPct, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: quote: priceImpactPct %q", domain.ErrMalformedResponse, resp.PriceImpactPct)
		}
		// router reports a fraction
		impact = frac * 100
	}

	labels := make([]string, 0, len(resp.RoutePlan))
	for _, step := range resp.RoutePlan {
		labels = append(labels, step.SwapInfo.Label)
	}

	return &domain.Quote{
		InputMint:            resp.InputMint,
		OutputMint:           resp.OutputMint,
		InAmount:             in,
		OutAmount:            out,
		OtherAmountThreshold: threshold,
		PriceImpactPct:       impact,
		SlippageBps:          resp.SlippageBps,
		Route:                labels,
		FetchedAt:            time.Now(),
		TTL:                  c.quoteTTL,
		Raw:                  raw,
	}, nil
}

func parseAmount(field, s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: quote: %s %q", domain.ErrMalformedResponse, field, s)
	}
	return n, nil
}

type swapRequest struct {
	QuoteResponse             json.RawMessage `json:"quoteResponse"`
	UserPublicKey             string          `json:"userPublicKey"`
	WrapAndUnwrapSol          bool            `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit   bool            `json:"dynamicComputeUnitLimit"`
	PrioritizationFeeLamports uint64          `json:"prioritizationFeeLamports,omitempty"`
}

type swapResponse struct {
	SwapTransaction      string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// BuildTransaction asks the router to build an unsigned swap transaction for quote.
func (c *Client) BuildTransaction(ctx context.Context, quote *domain.Quote, wallet string, priorityFeeLamports uint64) (*domain.UnsignedTx, error) {
	if quote == nil || len(quote.Raw) == 0 {
		return nil, fmt.Errorf("build: quote has no router payload")
	}

	body := swapRequest{
		QuoteResponse:             quote.Raw,
		UserPublicKey:             wallet,
		WrapAndUnwrapSol:          true,
		DynamicComputeUnitLimit:   true,
		PrioritizationFeeLamports: priorityFeeLamports,
	}
	var resp swapResponse
	if err := c.http.Post(ctx, "swap", "/swap", body, &resp); err != nil {
		return nil, mapRouterError("build", err)
	}
	if resp.SwapTransaction == "" {
		return nil, fmt.Errorf("%w: build: empty swapTransaction", domain.ErrMalformedResponse)
	}
	payload, err := base64.StdEncoding.DecodeString(resp.SwapTransaction)
	if err != nil {
		return nil, fmt.Errorf("%w: build: swapTransaction: %w", domain.ErrMalformedResponse, err)
	}
	return &domain.UnsignedTx{Payload: payload, LastValidBlockHeight: resp.LastValidBlockHeight}, nil
}

type tokenResponse struct {
	Address  string `json:"address"`
	Decimals *int   `json:"decimals"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
}

// TokenDecimals returns the router's view of the token's decimals.
func (c *Client) TokenDecimals(ctx context.Context, mint string) (int, error) {
	var resp tokenResponse
	if err := c.tokens.Get(ctx, "token", c.tokenPath+url.PathEscape(mint), nil, &resp); err != nil {
		if se, ok := upstream.AsStatus(err); ok && se.Code == 404 {
			return 0, fmt.Errorf("token %s: %w", mint, domain.ErrDecimalsUnavailable)
		}
		return 0, err
	}
	if resp.Decimals == nil || *resp.Decimals < 0 || *resp.Decimals > 18 {
		return 0, fmt.Errorf("token %s: %w", mint, domain.ErrDecimalsUnavailable)
	}
	return *resp.Decimals, nil
}

// mapRouterError turns router 4xx error codes into ErrNoRoute.
func mapRouterError(op string, err error) error {
	se, ok := upstream.AsStatus(err)
	if !ok {
		return err
	}
	var body errorResponse
	if jsonErr := json.Unmarshal(se.Body, &body); jsonErr == nil {
		if noRouteCodes[body.ErrorCode] || strings.Contains(strings.ToLower(body.Error), "no route") {
			return fmt.Errorf("%s: %w: %s", op, domain.ErrNoRoute, body.ErrorCode)
		}
	}
	return err
}
