// Package upstream wraps resty with rate limiting and the pipeline's error
// taxonomy for the HTTP data services (router, market data, wallet graph).
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/observability"
)

// Config configures a Client.
type Config struct {
	// Service labels metrics, e.g. "aggregator".
	Service      string
	BaseURL      string
	APIKey       string
	APIKeyHeader string // default "x-api-key"
	Timeout      time.Duration
	RetryCount   int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
	// RPS <= 0 disables the limiter.
	RPS   float64
	Burst int
}

// StatusError is a non-retryable HTTP error response.
type StatusError struct {
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	body := string(e.Body)
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("http %d: %s", e.Code, body)
}

// Client is a rate-limited resty client.
type Client struct {
	rc      *resty.Client
	limiter *rate.Limiter
	service string
}

// New creates a Client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 500 * time.Millisecond
	}
	if cfg.RetryMaxWait <= 0 {
		cfg.RetryMaxWait = 5 * time.Second
	}
	if cfg.APIKeyHeader == "" {
		cfg.APIKeyHeader = "x-api-key"
	}

	rc := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(cfg.RetryMaxWait).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return isRetryable(resp.StatusCode())
		}).
		SetRetryAfter(func(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
			if resp != nil && resp.StatusCode() == http.StatusTooManyRequests {
				if s, err := strconv.Atoi(resp.Header().Get("Retry-After")); err == nil && s > 0 {
					return time.Duration(s) * time.Second, nil
				}
			}
			// zero falls back to resty's exponential backoff
			return 0, nil
		})
	if cfg.APIKey != "" {
		rc.SetHeader(cfg.APIKeyHeader, cfg.APIKey)
	}

	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}

	return &Client{rc: rc, limiter: limiter, service: cfg.Service}
}

func isRetryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// Get issues GET path with query params and decodes the JSON body into out.
func (c *Client) Get(ctx context.Context, op, path string, query map[string]string, out any) error {
	return c.do(ctx, op, func(r *resty.Request) (*resty.Response, error) {
		if len(query) > 0 {
			r.SetQueryParams(query)
		}
		return r.Get(path)
	}, out)
}

// Post issues POST path with a JSON body and decodes the JSON response into out.
func (c *Client) Post(ctx context.Context, op, path string, body, out any) error {
	return c.do(ctx, op, func(r *resty.Request) (*resty.Response, error) {
		return r.SetHeader("Content-Type", "application/json").SetBody(body).Post(path)
	}, out)
}

func (c *Client) do(ctx context.Context, op string, send func(*resty.Request) (*resty.Response, error), out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s %s: rate limiter: %w", c.service, op, err)
		}
	}

	start := time.Now()
	resp, err := send(c.rc.R().SetContext(ctx))
	observability.RecordExternalCall(c.service, op, time.Since(start).Seconds())

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s %s: %w", c.service, op, ctxErr)
		}
		return fmt.Errorf("%w: %s %s: %w", domain.ErrTransientNetwork, c.service, op, err)
	}

	code := resp.StatusCode()
	if isRetryable(code) {
		return fmt.Errorf("%w: %s %s: http %d after retries", domain.ErrTransientNetwork, c.service, op, code)
	}
	if code < 200 || code >= 300 {
		return fmt.Errorf("%s %s: %w", c.service, op, &StatusError{Code: code, Body: resp.Body()})
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%w: %s %s: %w", domain.ErrMalformedResponse, c.service, op, err)
	}
	return nil
}

// AsStatus extracts a StatusError from err.
func AsStatus(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
