// Package stub provides scripted Router and Signer implementations and a
// builder for confirmed swap transactions, for tests.
package stub

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/solana"
)

// Swap returns the input and output mints of a transaction built by Router.
func Swap(tx *domain.UnsignedTx) (input, output string) {
	payload := string(tx.Payload)
	if i := strings.IndexByte(payload, ':'); i >= 0 {
		payload = payload[:i]
	}
	input, output, _ = strings.Cut(payload, ">")
	return input, output
}

// Router implements execution.Router with canned responses.
type Router struct {
	mu sync.Mutex

	// QuoteFunc overrides the default quote; nil returns a quote at Rate.
	QuoteFunc func(req domain.QuoteRequest) (*domain.Quote, error)
	// Rate is output units per input unit for the default quote.
	Rate           float64
	PriceImpactPct float64
	BuildErr       error
	Decimals       map[string]int // missing mints fail with ErrDecimalsUnavailable

	quotes []domain.QuoteRequest
	builds int
}

// NewRouter creates a Router quoting at rate.
func NewRouter(rate float64) *Router {
	return &Router{Rate: rate, Decimals: make(map[string]int)}
}

// Quote implements execution.Router.
func (r *Router) Quote(_ context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
	r.mu.Lock()
	r.quotes = append(r.quotes, req)
	fn := r.QuoteFunc
	r.mu.Unlock()

	if fn != nil {
		return fn(req)
	}
	return r.DefaultQuote(req)
}

// DefaultQuote prices req at Rate without recording it.
func (r *Router) DefaultQuote(req domain.QuoteRequest) (*domain.Quote, error) {
	r.mu.Lock()
	rate, impact := r.Rate, r.PriceImpactPct
	r.mu.Unlock()

	out := uint64(float64(req.Amount) * rate)
	if out == 0 {
		return nil, fmt.Errorf("%w: zero output", domain.ErrNoRoute)
	}
	return &domain.Quote{
		InputMint:            req.InputMint,
		OutputMint:           req.OutputMint,
		InAmount:             req.Amount,
		OutAmount:            out,
		OtherAmountThreshold: out * uint64(10000-req.SlippageBps) / 10000,
		PriceImpactPct:       impact,
		SlippageBps:          req.SlippageBps,
		Route:                []string{"stub"},
		FetchedAt:            time.Now(),
		TTL:                  time.Minute,
	}, nil
}

// BuildTransaction implements execution.Router.
func (r *Router) BuildTransaction(_ context.Context, q *domain.Quote, wallet string, _ uint64) (*domain.UnsignedTx, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builds++
	if r.BuildErr != nil {
		return nil, r.BuildErr
	}
	return &domain.UnsignedTx{Payload: []byte(q.InputMint + ">" + q.OutputMint + ":" + wallet)}, nil
}

// TokenDecimals implements execution.Router.
func (r *Router) TokenDecimals(_ context.Context, mint string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.Decimals[mint]
	if !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrDecimalsUnavailable, mint)
	}
	return d, nil
}

// Quotes returns every quote request received.
func (r *Router) Quotes() []domain.QuoteRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.QuoteRequest, len(r.quotes))
	copy(out, r.quotes)
	return out
}

// Builds returns how many transactions were built.
func (r *Router) Builds() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.builds
}

// Signer implements wallet.Signer. Each call returns the next signature
// "sig-1", "sig-2"... and invokes OnSend, if set, with it and the transaction.
type Signer struct {
	Wallet string
	Err    error
	// Hold keeps each call inside SignAndSend for the duration.
	Hold time.Duration
	// OnSend sees each signature before it is returned.
	OnSend func(sig string, tx *domain.UnsignedTx)

	calls    atomic.Int64
	inFlight atomic.Int64
	maxSeen  atomic.Int64
}

// PublicKey implements wallet.Signer.
func (s *Signer) PublicKey() string { return s.Wallet }

// SignAndSend implements wallet.Signer.
func (s *Signer) SignAndSend(ctx context.Context, tx *domain.UnsignedTx) (string, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		seen := s.maxSeen.Load()
		if n <= seen || s.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	id := s.calls.Add(1)
	if s.Hold > 0 {
		select {
		case <-time.After(s.Hold):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if s.Err != nil {
		return "", s.Err
	}
	sig := "sig-" + strconv.FormatInt(id, 10)
	if s.OnSend != nil {
		s.OnSend(sig, tx)
	}
	return sig, nil
}

// Calls returns the number of SignAndSend calls.
func (s *Signer) Calls() int { return int(s.calls.Load()) }

// MaxConcurrent returns the most calls seen inside SignAndSend at once.
func (s *Signer) MaxConcurrent() int { return int(s.maxSeen.Load()) }

// Fill describes the balance changes of a confirmed swap.
type Fill struct {
	Wallet        string
	Mint          string
	Decimals      int
	PreLamports   uint64
	PostLamports  uint64
	PreTokenRaw   uint64
	PostTokenRaw  uint64
	OmitTokenRows bool
	BlockTime     int64
}

// Transaction builds a confirmed transaction carrying f.
func (f Fill) Transaction(sig string) *solana.Transaction {
	meta := &solana.TransactionMeta{
		Fee:          5000,
		PreBalances:  []uint64{f.PreLamports},
		PostBalances: []uint64{f.PostLamports},
	}
	if !f.OmitTokenRows {
		row := func(raw uint64) solana.TokenBalance {
			return solana.TokenBalance{
				AccountIndex: 1,
				Mint:         f.Mint,
				Owner:        f.Wallet,
				UITokenAmount: solana.UITokenAmount{
					Amount:   strconv.FormatUint(raw, 10),
					Decimals: f.Decimals,
				},
			}
		}
		meta.PreTokenBalances = []solana.TokenBalance{row(f.PreTokenRaw)}
		meta.PostTokenBalances = []solana.TokenBalance{row(f.PostTokenRaw)}
	}
	return &solana.Transaction{
		Signature: sig,
		BlockTime: f.BlockTime,
		Meta:      meta,
		Message:   &solana.TransactionMessage{AccountKeys: []string{f.Wallet}},
	}
}

// Confirmed is a confirmed signature status.
func Confirmed() *solana.SignatureStatus {
	return &solana.SignatureStatus{ConfirmationStatus: solana.CommitmentConfirmed}
}

// Processed is a not-yet-confirmed signature status.
func Processed() *solana.SignatureStatus {
	return &solana.SignatureStatus{ConfirmationStatus: solana.CommitmentProcessed}
}
