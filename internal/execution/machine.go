// Package execution drives a swap through quote, build, sign, submit and
// confirm, and derives the fill from the confirmed balance delta.
package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/idhash"
	"solana-entry-gate/internal/observability"
	"solana-entry-gate/internal/solana"
	"solana-entry-gate/internal/wallet"
)

// Router quotes and builds swaps.
type Router interface {
	Quote(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error)
	BuildTransaction(ctx context.Context, quote *domain.Quote, wallet string, priorityFeeLamports uint64) (*domain.UnsignedTx, error)
	TokenDecimals(ctx context.Context, mint string) (int, error)
}

// DecimalsSource resolves a mint's scale from chain state.
type DecimalsSource interface {
	Decimals(ctx context.Context, mint string) (int, error)
}

// PriceSource provides the SOL/USD rate for USD entry prices.
type PriceSource interface {
	SOLPriceUSD(ctx context.Context) (float64, error)
}

// priceLookupTimeout bounds the USD price read after a confirmed buy.
const priceLookupTimeout = 5 * time.Second

// Options configures a Machine.
type Options struct {
	Router   Router
	Signer   wallet.Signer
	RPC      solana.RPCClient
	Decimals DecimalsSource // optional mint-account fallback
	Prices   PriceSource    // optional
	UserID   string

	PollInterval        time.Duration // default 2s
	MaxPollAttempts     int           // default 20
	TxFetchAttempts     int           // default 5
	TxFetchInterval     time.Duration // default 1s
	MaxPriceDeviation   float64       // effective vs quoted price ratio; default 10
	DefaultSellDecimals int           // default 6

	Logger *logrus.Entry
	Now    func() time.Time
}

// Machine executes trades for one wallet. SIGNING is serialized across all
// callers so entries and exits never interleave on the signer.
type Machine struct {
	router   Router
	signer   wallet.Signer
	rpc      solana.RPCClient
	decimals DecimalsSource
	prices   PriceSource
	userID   string

	pollInterval    time.Duration
	maxPolls        int
	txFetchAttempts int
	txFetchInterval time.Duration
	maxDeviation    float64
	sellDecimals    int

	signMu sync.Mutex

	logger *logrus.Entry
	now    func() time.Time
	wait   func(ctx context.Context, d time.Duration) error
}

// NewMachine creates a Machine.
func NewMachine(opts Options) *Machine {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.MaxPollAttempts <= 0 {
		opts.MaxPollAttempts = 20
	}
	if opts.TxFetchAttempts <= 0 {
		opts.TxFetchAttempts = 5
	}
	if opts.TxFetchInterval <= 0 {
		opts.TxFetchInterval = time.Second
	}
	if opts.MaxPriceDeviation <= 1 {
		opts.MaxPriceDeviation = 10
	}
	if opts.DefaultSellDecimals <= 0 {
		opts.DefaultSellDecimals = 6
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Machine{
		router:          opts.Router,
		signer:          opts.Signer,
		rpc:             opts.RPC,
		decimals:        opts.Decimals,
		prices:          opts.Prices,
		userID:          opts.UserID,
		pollInterval:    opts.PollInterval,
		maxPolls:        opts.MaxPollAttempts,
		txFetchAttempts: opts.TxFetchAttempts,
		txFetchInterval: opts.TxFetchInterval,
		maxDeviation:    opts.MaxPriceDeviation,
		sellDecimals:    opts.DefaultSellDecimals,
		logger:          opts.Logger.WithField("component", "execution"),
		now:             opts.Now,
		wait:            sleepCtx,
	}
}

// Wallet returns the signer's public key, or "" with no signer.
func (m *Machine) Wallet() string {
	if m.signer == nil {
		return ""
	}
	return m.signer.PublicKey()
}

// Buy spends cfg.BuyAmountSOL on c.Address.
func (m *Machine) Buy(ctx context.Context, c domain.Candidate, cfg domain.ExecutionConfig) *Result {
	res := m.begin(DirectionBuy, c.Address)
	defer m.finish(res)

	lamports := cfg.BuyAmountSOL.Shift(domain.SOLDecimals).Floor()
	if !lamports.IsPositive() {
		m.fail(res, domain.StateFailed, fmt.Errorf("buy amount %s SOL", cfg.BuyAmountSOL), "invalid buy amount")
		return res
	}

	decimals, decErr := m.resolveDecimals(ctx, c.Address)

	req := domain.QuoteRequest{
		InputMint:   domain.WrappedSOLMint,
		OutputMint:  c.Address,
		Amount:      uint64(lamports.IntPart()),
		SlippageBps: cfg.SlippageBps,
	}
	tx, ok := m.execute(ctx, res, req, cfg.PriorityFeeLamports, cfg.MaxRetries)
	if !ok {
		return res
	}

	if decErr != nil {
		d, found := decimalsFromTx(tx, c.Address)
		if !found {
			m.fail(res, domain.StateFailed, fmt.Errorf("%w: %v", domain.ErrDecimalsUnavailable, decErr), "token decimals unavailable")
			return res
		}
		decimals = d
	}

	delta := tx.TokenDelta(m.signer.PublicKey(), c.Address)
	if !delta.Found || !delta.Raw.IsPositive() {
		observability.RecordCorruptionFlag()
		m.fail(res, domain.StateFailed,
			fmt.Errorf("%w: token delta %s on buy", domain.ErrCorruption, delta.Raw), "implausible on-chain result")
		return res
	}
	if delta.Decimals != decimals {
		res.Anomalies = append(res.Anomalies,
			fmt.Sprintf("decimals %d resolved, %d in transaction", decimals, delta.Decimals))
		decimals = delta.Decimals
	}

	spent, ok := lamportsSpent(tx, m.signer.PublicKey())
	if !ok {
		res.Anomalies = append(res.Anomalies, "wallet SOL delta unavailable, using quoted input")
		spent = decimal.NewFromUint64(res.Quote.InAmount)
	}

	res.Decimals = decimals
	res.TokenAmountRaw = delta.Raw
	res.TokenAmount = delta.Raw.Shift(int32(-decimals))
	res.SOLAmount = spent.Shift(-domain.SOLDecimals)
	res.Price = res.SOLAmount.DivRound(res.TokenAmount, 18)
	m.checkDeviation(res, decimals)

	now := m.now().UTC()
	opened := now
	if tx.BlockTime > 0 {
		opened = time.Unix(tx.BlockTime, 0).UTC()
	}
	p := &domain.Position{
		ID:                idhash.PositionID(m.userID, c.Address, res.Signature),
		UserID:            m.userID,
		Mint:              c.Address,
		Symbol:            c.Symbol,
		Name:              c.Name,
		Decimals:          decimals,
		EntryPrice:        res.Price,
		TokenAmount:       res.TokenAmount,
		TokenAmountRaw:    res.TokenAmountRaw.String(),
		EntrySOL:          res.SOLAmount,
		EntryTx:           res.Signature,
		EntryLiquidityUSD: c.LiquidityUSD,
		TakeProfitPct:     cfg.TakeProfitPct,
		StopLossPct:       cfg.StopLossPct,
		Status:            domain.PositionPending,
		NeedsReview:       len(res.Anomalies) > 0,
		OpenedAt:          opened,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if m.prices != nil {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), priceLookupTimeout)
		usd, err := m.prices.SOLPriceUSD(pctx)
		cancel()
		if err == nil {
			p.EntryPriceUSD = res.Price.Mul(decimal.NewFromFloat(usd))
		}
	}
	res.Position = p

	m.succeed(res)
	return res
}

// SellRequest describes an exit.
type SellRequest struct {
	Mint string
	// AmountRaw is the held amount in smallest units; zero if unknown.
	AmountRaw uint64
	// Amount in human units, used when AmountRaw is zero.
	Amount decimal.Decimal
	// HeldRaw caps a converted amount at the known balance; zero if unknown.
	HeldRaw             uint64
	SlippageBps         int
	PriorityFeeLamports uint64
	MaxRetries          int
}

// Sell swaps the requested amount of req.Mint back to SOL.
func (m *Machine) Sell(ctx context.Context, req SellRequest) *Result {
	res := m.begin(DirectionSell, req.Mint)
	defer m.finish(res)

	raw, decimals, known := m.sellAmount(ctx, req, res)
	if raw == 0 {
		m.fail(res, domain.StateFailed, errors.New("nothing to sell"), "zero sell amount")
		return res
	}

	quoteReq := domain.QuoteRequest{
		InputMint:   req.Mint,
		OutputMint:  domain.WrappedSOLMint,
		Amount:      raw,
		SlippageBps: req.SlippageBps,
	}
	tx, ok := m.execute(ctx, res, quoteReq, req.PriorityFeeLamports, req.MaxRetries)
	if !ok {
		return res
	}

	delta := tx.TokenDelta(m.signer.PublicKey(), req.Mint)
	sold := delta.Raw.Neg()
	if delta.Found {
		decimals, known = delta.Decimals, true
	}
	if !delta.Found || !sold.IsPositive() {
		res.Anomalies = append(res.Anomalies, "token delta missing on sell, using requested amount")
		sold = decimal.NewFromUint64(raw)
	}
	if !known {
		res.Anomalies = append(res.Anomalies, fmt.Sprintf("decimals defaulted to %d", decimals))
	}

	received, ok := lamportsReceived(tx, m.signer.PublicKey())
	if !ok {
		res.Anomalies = append(res.Anomalies, "wallet SOL delta unavailable, using quoted output")
		received = decimal.NewFromUint64(res.Quote.OutAmount)
	}

	res.Decimals = decimals
	res.TokenAmountRaw = sold
	res.TokenAmount = sold.Shift(int32(-decimals))
	res.SOLAmount = received.Shift(-domain.SOLDecimals)
	res.Price = res.SOLAmount.DivRound(res.TokenAmount, 18)

	m.succeed(res)
	return res
}

// sellAmount picks the raw amount to sell. A known raw amount wins; otherwise
// the human amount is scaled by the resolved decimals, or the conservative
// default, and clamped to the known balance.
func (m *Machine) sellAmount(ctx context.Context, req SellRequest, res *Result) (raw uint64, decimals int, known bool) {
	decimals, err := m.resolveDecimals(ctx, req.Mint)
	known = err == nil
	if !known {
		decimals = m.sellDecimals
	}
	if req.AmountRaw > 0 {
		return req.AmountRaw, decimals, known
	}

	scaled := req.Amount.Shift(int32(decimals)).Floor()
	if !scaled.IsPositive() {
		return 0, decimals, known
	}
	if req.HeldRaw > 0 && scaled.GreaterThan(decimal.NewFromUint64(req.HeldRaw)) {
		res.Anomalies = append(res.Anomalies, "sell amount clamped to held balance")
		return req.HeldRaw, decimals, known
	}
	return uint64(scaled.IntPart()), decimals, known
}

// execute runs QUOTING through CONFIRMING and returns the confirmed
// transaction. On failure res is already terminal.
func (m *Machine) execute(ctx context.Context, res *Result, req domain.QuoteRequest, fee uint64, retries int) (*solana.Transaction, bool) {
	if m.signer == nil {
		m.fail(res, domain.StateFailed, fmt.Errorf("%w: no signer", domain.ErrPrerequisite), "signer not connected")
		return nil, false
	}
	walletAddr := m.signer.PublicKey()

	m.enter(res, domain.StateQuoting, "")
	quote, err := withRetry(ctx, m, retries, func() (*domain.Quote, error) {
		return m.router.Quote(ctx, req)
	})
	if err != nil {
		if errors.Is(err, domain.ErrNoRoute) || errors.Is(err, domain.ErrMalformedResponse) {
			m.fail(res, domain.StateNoRoute, err, "no route")
		} else {
			m.fail(res, domain.StateFailed, err, "quote failed")
		}
		return nil, false
	}
	res.Quote = quote

	m.enter(res, domain.StateBuilding, "")
	if quote.Expired(m.now()) {
		fresh, err := m.router.Quote(ctx, req)
		if err != nil {
			m.fail(res, domain.StateFailed, err, "re-quote of expired quote failed")
			return nil, false
		}
		quote = fresh
		res.Quote = fresh
	}
	unsigned, err := withRetry(ctx, m, retries, func() (*domain.UnsignedTx, error) {
		return m.router.BuildTransaction(ctx, quote, walletAddr, fee)
	})
	if err != nil {
		m.fail(res, domain.StateFailed, err, "build failed")
		return nil, false
	}

	m.enter(res, domain.StateSigning, "")
	m.signMu.Lock()
	sig, err := m.signer.SignAndSend(ctx, unsigned)
	m.signMu.Unlock()
	if err != nil {
		if errors.Is(err, domain.ErrUserRejected) {
			m.fail(res, domain.StateFailed, err, "user rejected signing")
		} else {
			m.fail(res, domain.StateFailed, err, "signing failed")
		}
		return nil, false
	}
	res.Signature = sig

	// The transaction is broadcast: settle it even if the caller goes away.
	// The poll budget still bounds how long that takes.
	settle := context.WithoutCancel(ctx)

	m.enter(res, domain.StateSubmitted, sig)
	m.enter(res, domain.StateConfirming, "")
	if err := m.awaitConfirmation(settle, sig); err != nil {
		m.fail(res, domain.StateFailed, err, "confirmation failed")
		return nil, false
	}
	res.Confirmed = true

	tx, err := m.fetchTransaction(settle, sig)
	if err != nil {
		m.fail(res, domain.StateFailed, err, "confirmed transaction unavailable")
		return nil, false
	}
	if tx.Meta != nil && tx.Meta.Err != nil {
		m.fail(res, domain.StateFailed, fmt.Errorf("transaction error: %v", tx.Meta.Err), "transaction failed on chain")
		return nil, false
	}
	return tx, true
}

func (m *Machine) checkDeviation(res *Result, decimals int) {
	q := res.Quote
	if q == nil || q.OutAmount == 0 || res.Price.IsZero() {
		return
	}
	quoted := decimal.NewFromUint64(q.InAmount).Shift(-domain.SOLDecimals).
		DivRound(decimal.NewFromUint64(q.OutAmount).Shift(int32(-decimals)), 18)
	if quoted.IsZero() {
		return
	}
	ratio, _ := res.Price.Div(quoted).Float64()
	if ratio > m.maxDeviation || ratio < 1/m.maxDeviation {
		res.Anomalies = append(res.Anomalies,
			fmt.Sprintf("effective price %s deviates %.1fx from quoted %s", res.Price, ratio, quoted))
	}
}

func (m *Machine) begin(dir Direction, mint string) *Result {
	return &Result{Direction: dir, Mint: mint, StartedAt: m.now()}
}

func (m *Machine) enter(res *Result, state domain.ExecutionState, note string) {
	res.transition(state, m.now(), note)
	m.logger.WithFields(logrus.Fields{
		"mint":      res.Mint,
		"direction": res.Direction,
		"state":     state,
	}).Debug("execution transition")
}

func (m *Machine) fail(res *Result, state domain.ExecutionState, err error, reason string) {
	res.Err = err
	res.Reason = reason
	res.transition(state, m.now(), reason)
}

func (m *Machine) succeed(res *Result) {
	res.Reason = "confirmed"
	if len(res.Anomalies) > 0 {
		res.Reason = "confirmed with anomalies"
	}
	res.transition(domain.StateSuccess, m.now(), "")
}

func (m *Machine) finish(res *Result) {
	res.FinishedAt = m.now()
	observability.RecordExecution(string(res.Direction), string(res.State), res.FinishedAt.Sub(res.StartedAt).Seconds())

	entry := m.logger.WithFields(logrus.Fields{
		"mint":      res.Mint,
		"direction": res.Direction,
		"state":     res.State,
		"signature": res.Signature,
	})
	switch {
	case res.Succeeded():
		entry.WithFields(logrus.Fields{
			"price":     res.Price.String(),
			"tokens":    res.TokenAmount.String(),
			"sol":       res.SOLAmount.String(),
			"anomalies": res.Anomalies,
		}).Info("execution succeeded")
	case res.State == domain.StateNoRoute:
		entry.WithError(res.Err).Warn("execution found no route")
	default:
		entry.WithError(res.Err).Warn("execution failed: " + res.Reason)
	}
}

func lamportsSpent(tx *solana.Transaction, wallet string) (decimal.Decimal, bool) {
	d, ok := tx.LamportDelta(wallet)
	if !ok || d >= 0 {
		return decimal.Zero, false
	}
	return decimal.NewFromInt(-d), true
}

func lamportsReceived(tx *solana.Transaction, wallet string) (decimal.Decimal, bool) {
	d, ok := tx.LamportDelta(wallet)
	if !ok || d <= 0 {
		return decimal.Zero, false
	}
	return decimal.NewFromInt(d), true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
