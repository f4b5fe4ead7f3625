package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-entry-gate/internal/domain"
	execstub "solana-entry-gate/internal/execution/stub"
	"solana-entry-gate/internal/idhash"
	"solana-entry-gate/internal/solana"
	"solana-entry-gate/internal/solana/stub"
)

const (
	testWallet = "Wa11et1111111111111111111111111111111111111"
	testMint   = "Mint111111111111111111111111111111111111111"
	testUser   = "user-1"
)

type harness struct {
	m      *Machine
	router *execstub.Router
	signer *execstub.Signer
	rpc    *stub.RPCClient

	mu       sync.Mutex
	fill     execstub.Fill
	statuses []*solana.SignatureStatus
	noTx     bool
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{
		router:   execstub.NewRouter(81),
		signer:   &execstub.Signer{Wallet: testWallet},
		rpc:      stub.NewRPCClient(),
		statuses: []*solana.SignatureStatus{execstub.Processed(), execstub.Confirmed()},
		fill: execstub.Fill{
			Wallet:       testWallet,
			Mint:         testMint,
			Decimals:     6,
			PreLamports:  1_000_000_000,
			PostLamports: 899_995_000,
			PostTokenRaw: 8_100_123_456,
			BlockTime:    1_700_000_000,
		},
	}
	h.router.Decimals[testMint] = 6
	h.signer.OnSend = func(sig string, _ *domain.UnsignedTx) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.rpc.SetStatuses(sig, h.statuses...)
		if !h.noTx {
			h.rpc.AddTransaction(h.fill.Transaction(sig))
		}
	}

	opts := Options{
		Router:          h.router,
		Signer:          h.signer,
		RPC:             h.rpc,
		UserID:          testUser,
		MaxPollAttempts: 5,
		TxFetchAttempts: 2,
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.m = NewMachine(opts)
	h.m.wait = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return h
}

func buyConfig() domain.ExecutionConfig {
	return domain.ExecutionConfig{
		BuyAmountSOL:  decimal.RequireFromString("0.1"),
		SlippageBps:   300,
		TakeProfitPct: 50,
		StopLossPct:   20,
	}
}

func candidate() domain.Candidate {
	return domain.Candidate{Address: testMint, Symbol: "TEST", Name: "Test Token", LiquidityUSD: 40_000}
}

type fixedPrice float64

func (p fixedPrice) SOLPriceUSD(context.Context) (float64, error) { return float64(p), nil }

type decimalsFunc func(mint string) (int, error)

func (f decimalsFunc) Decimals(_ context.Context, mint string) (int, error) { return f(mint) }

func TestBuy_Success(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Prices = fixedPrice(150) })

	res := h.m.Buy(context.Background(), candidate(), buyConfig())

	require.True(t, res.Succeeded(), "reason=%s err=%v", res.Reason, res.Err)
	assert.Equal(t, []domain.ExecutionState{
		domain.StateQuoting, domain.StateBuilding, domain.StateSigning,
		domain.StateSubmitted, domain.StateConfirming, domain.StateSuccess,
	}, res.States())
	assert.Equal(t, "sig-1", res.Signature)
	assert.True(t, res.Confirmed)
	assert.Empty(t, res.Anomalies)

	quotes := h.router.Quotes()
	require.Len(t, quotes, 1)
	assert.Equal(t, domain.WrappedSOLMint, quotes[0].InputMint)
	assert.Equal(t, testMint, quotes[0].OutputMint)
	assert.Equal(t, uint64(100_000_000), quotes[0].Amount)
	assert.Equal(t, 300, quotes[0].SlippageBps)

	p := res.Position
	require.NotNil(t, p)
	assert.Equal(t, idhash.PositionID(testUser, testMint, "sig-1"), p.ID)
	assert.Equal(t, domain.PositionPending, p.Status)
	assert.Equal(t, "8100123456", p.TokenAmountRaw)
	assert.True(t, p.TokenAmount.Equal(decimal.RequireFromString("8100.123456")))
	assert.True(t, p.EntrySOL.Equal(decimal.RequireFromString("0.100005")), p.EntrySOL.String())
	assert.Equal(t, 6, p.Decimals)
	assert.Equal(t, 40_000.0, p.EntryLiquidityUSD)
	assert.Equal(t, 50.0, p.TakeProfitPct)
	assert.Equal(t, time.Unix(1_700_000_000, 0).UTC(), p.OpenedAt)
	assert.False(t, p.NeedsReview)
	assert.True(t, p.EntryPriceUSD.Equal(p.EntryPrice.Mul(decimal.NewFromInt(150))))
}

func TestBuy_NoRoute(t *testing.T) {
	h := newHarness(t, nil)
	h.router.QuoteFunc = func(domain.QuoteRequest) (*domain.Quote, error) {
		return nil, fmt.Errorf("%w: no pool", domain.ErrNoRoute)
	}

	res := h.m.Buy(context.Background(), candidate(), buyConfig())

	assert.Equal(t, domain.StateNoRoute, res.State)
	assert.Equal(t, "no route", res.Reason)
	assert.Equal(t, 0, h.signer.Calls())
	assert.Nil(t, res.Position)
}

func TestBuy_QuoteRetriesTransientErrors(t *testing.T) {
	h := newHarness(t, nil)
	calls := 0
	h.router.QuoteFunc = func(req domain.QuoteRequest) (*domain.Quote, error) {
		calls++
		if calls < 3 {
			return nil, fmt.Errorf("%w: 503", domain.ErrTransientNetwork)
		}
		return h.router.DefaultQuote(req)
	}
	cfg := buyConfig()
	cfg.MaxRetries = 2

	res := h.m.Buy(context.Background(), candidate(), cfg)

	require.True(t, res.Succeeded(), res.Reason)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 1, h.signer.Calls())
}

func TestBuy_UserRejected(t *testing.T) {
	h := newHarness(t, nil)
	h.signer.Err = fmt.Errorf("%w: declined in wallet", domain.ErrUserRejected)

	res := h.m.Buy(context.Background(), candidate(), buyConfig())

	assert.Equal(t, domain.StateFailed, res.State)
	assert.Equal(t, "user rejected signing", res.Reason)
	assert.ErrorIs(t, res.Err, domain.ErrUserRejected)
	assert.Empty(t, res.Signature)
	assert.Equal(t, domain.StateSigning, res.Transitions[len(res.Transitions)-1].From)
}

func TestBuy_ConfirmationTimeout(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.MaxPollAttempts = 3 })
	h.statuses = []*solana.SignatureStatus{execstub.Processed()}

	res := h.m.Buy(context.Background(), candidate(), buyConfig())

	assert.Equal(t, domain.StateFailed, res.State)
	assert.ErrorIs(t, res.Err, domain.ErrConfirmationTimeout)
	assert.Equal(t, 3, h.rpc.StatusCalls("sig-1"))
	assert.False(t, res.Confirmed)
	assert.Equal(t, "sig-1", res.Signature)
}

func TestBuy_CallerCancelledAfterBroadcastStillSettles(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Prices = fixedPrice(150) })
	h.statuses = []*solana.SignatureStatus{nil, execstub.Processed(), execstub.Confirmed()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	send := h.signer.OnSend
	h.signer.OnSend = func(sig string, tx *domain.UnsignedTx) {
		cancel()
		send(sig, tx)
	}

	res := h.m.Buy(ctx, candidate(), buyConfig())

	require.True(t, res.Succeeded(), "reason=%s err=%v", res.Reason, res.Err)
	assert.True(t, res.Confirmed)
	assert.Equal(t, "sig-1", res.Signature)
	assert.Equal(t, 3, h.rpc.StatusCalls("sig-1"))
	require.NotNil(t, res.Position)
	assert.True(t, res.Position.EntryPriceUSD.IsPositive())
}

func TestSell_CallerCancelledAfterBroadcastStillSettles(t *testing.T) {
	h := newHarness(t, nil)
	h.fill = sellFill()
	h.router.Rate = 0.012

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	send := h.signer.OnSend
	h.signer.OnSend = func(sig string, tx *domain.UnsignedTx) {
		cancel()
		send(sig, tx)
	}

	res := h.m.Sell(ctx, SellRequest{Mint: testMint, AmountRaw: 8_100_123_456, SlippageBps: 1500})

	require.True(t, res.Succeeded(), "reason=%s err=%v", res.Reason, res.Err)
	assert.Equal(t, "sig-1", res.Signature)
}

func TestBuy_StatusErrorFailsFast(t *testing.T) {
	h := newHarness(t, nil)
	h.statuses = []*solana.SignatureStatus{{Err: map[string]any{"InstructionError": []any{2, "Custom"}}}}

	res := h.m.Buy(context.Background(), candidate(), buyConfig())

	assert.Equal(t, domain.StateFailed, res.State)
	assert.Equal(t, "confirmation failed", res.Reason)
	assert.Equal(t, 1, h.rpc.StatusCalls("sig-1"))
}

func TestBuy_TransactionMetaError(t *testing.T) {
	h := newHarness(t, nil)
	h.signer.OnSend = func(sig string, _ *domain.UnsignedTx) {
		h.rpc.SetStatuses(sig, execstub.Confirmed())
		tx := h.fill.Transaction(sig)
		tx.Meta.Err = "SlippageToleranceExceeded"
		h.rpc.AddTransaction(tx)
	}

	res := h.m.Buy(context.Background(), candidate(), buyConfig())

	assert.Equal(t, domain.StateFailed, res.State)
	assert.Equal(t, "transaction failed on chain", res.Reason)
	assert.True(t, res.Confirmed)
}

func TestBuy_ConfirmedTransactionUnavailable(t *testing.T) {
	h := newHarness(t, nil)
	h.noTx = true

	res := h.m.Buy(context.Background(), candidate(), buyConfig())

	assert.Equal(t, domain.StateFailed, res.State)
	assert.ErrorIs(t, res.Err, domain.ErrDataUnavailable)
}

func TestBuy_ZeroTokenDeltaIsCorruption(t *testing.T) {
	h := newHarness(t, nil)
	h.fill.PostTokenRaw = 0

	res := h.m.Buy(context.Background(), candidate(), buyConfig())

	assert.Equal(t, domain.StateFailed, res.State)
	assert.ErrorIs(t, res.Err, domain.ErrCorruption)
	assert.Equal(t, "implausible on-chain result", res.Reason)
	assert.Nil(t, res.Position)
}

func TestBuy_PriceDeviationFlagsReview(t *testing.T) {
	h := newHarness(t, nil)
	h.fill.PostTokenRaw = 100

	res := h.m.Buy(context.Background(), candidate(), buyConfig())

	require.True(t, res.Succeeded())
	require.NotEmpty(t, res.Anomalies)
	assert.Contains(t, res.Anomalies[0], "deviates")
	assert.Equal(t, "confirmed with anomalies", res.Reason)
	assert.True(t, res.Position.NeedsReview)
}

func TestBuy_DecimalsFromMintAccount(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Decimals = decimalsFunc(func(string) (int, error) { return 6, nil })
	})
	delete(h.router.Decimals, testMint)

	res := h.m.Buy(context.Background(), candidate(), buyConfig())

	require.True(t, res.Succeeded())
	assert.Equal(t, 6, res.Decimals)
	assert.Empty(t, res.Anomalies)
}

func TestBuy_DecimalsFromTransactionMetadata(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Decimals = decimalsFunc(func(string) (int, error) { return 0, errors.New("account not found") })
	})
	delete(h.router.Decimals, testMint)

	res := h.m.Buy(context.Background(), candidate(), buyConfig())

	require.True(t, res.Succeeded(), res.Reason)
	assert.Equal(t, 6, res.Decimals)
}

func TestBuy_DecimalsUnavailable(t *testing.T) {
	h := newHarness(t, nil)
	delete(h.router.Decimals, testMint)
	h.signer.OnSend = func(sig string, _ *domain.UnsignedTx) {
		h.rpc.SetStatuses(sig, execstub.Confirmed())
		tx := h.fill.Transaction(sig)
		tx.Meta.PreTokenBalances = nil
		tx.Meta.PostTokenBalances = nil
		h.rpc.AddTransaction(tx)
	}

	res := h.m.Buy(context.Background(), candidate(), buyConfig())

	assert.Equal(t, domain.StateFailed, res.State)
	assert.ErrorIs(t, res.Err, domain.ErrDecimalsUnavailable)
	assert.Equal(t, "token decimals unavailable", res.Reason)
}

func TestBuy_DecimalsMismatchIsAnomaly(t *testing.T) {
	h := newHarness(t, nil)
	h.router.Decimals[testMint] = 9

	res := h.m.Buy(context.Background(), candidate(), buyConfig())

	require.True(t, res.Succeeded())
	assert.Equal(t, 6, res.Decimals)
	assert.NotEmpty(t, res.Anomalies)
	assert.True(t, res.Position.NeedsReview)
}

func TestBuy_ExpiredQuoteIsRefetchedOnce(t *testing.T) {
	h := newHarness(t, nil)
	calls := 0
	h.router.QuoteFunc = func(req domain.QuoteRequest) (*domain.Quote, error) {
		calls++
		q := &domain.Quote{
			InputMint:  req.InputMint,
			OutputMint: req.OutputMint,
			InAmount:   req.Amount,
			OutAmount:  8_100_000_000,
			FetchedAt:  time.Now(),
			TTL:        time.Minute,
		}
		if calls == 1 {
			q.FetchedAt = time.Now().Add(-time.Hour)
		}
		return q, nil
	}

	res := h.m.Buy(context.Background(), candidate(), buyConfig())

	require.True(t, res.Succeeded())
	assert.Equal(t, 2, calls)
	assert.False(t, res.Quote.Expired(time.Now()))
}

func TestBuy_InvalidAmount(t *testing.T) {
	h := newHarness(t, nil)
	cfg := buyConfig()
	cfg.BuyAmountSOL = decimal.Zero

	res := h.m.Buy(context.Background(), candidate(), cfg)

	assert.Equal(t, domain.StateFailed, res.State)
	assert.Equal(t, "invalid buy amount", res.Reason)
	assert.Empty(t, h.router.Quotes())
}

func TestBuy_NoSigner(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Signer = nil })

	res := h.m.Buy(context.Background(), candidate(), buyConfig())

	assert.ErrorIs(t, res.Err, domain.ErrPrerequisite)
	assert.Equal(t, "", h.m.Wallet())
}

func sellFill() execstub.Fill {
	return execstub.Fill{
		Wallet:       testWallet,
		Mint:         testMint,
		Decimals:     6,
		PreLamports:  899_995_000,
		PostLamports: 997_000_000,
		PreTokenRaw:  8_100_123_456,
		PostTokenRaw: 0,
	}
}

func TestSell_RawAmount(t *testing.T) {
	h := newHarness(t, nil)
	h.fill = sellFill()
	h.router.Rate = 0.012

	res := h.m.Sell(context.Background(), SellRequest{Mint: testMint, AmountRaw: 8_100_123_456, SlippageBps: 500})

	require.True(t, res.Succeeded(), res.Reason)
	quotes := h.router.Quotes()
	require.Len(t, quotes, 1)
	assert.Equal(t, testMint, quotes[0].InputMint)
	assert.Equal(t, domain.WrappedSOLMint, quotes[0].OutputMint)
	assert.Equal(t, uint64(8_100_123_456), quotes[0].Amount)

	assert.Equal(t, "8100123456", res.TokenAmountRaw.String())
	assert.True(t, res.SOLAmount.Equal(decimal.RequireFromString("0.097005")), res.SOLAmount.String())
	assert.Nil(t, res.Position)
}

func TestSell_HumanAmountDefaultsDecimalsAndClamps(t *testing.T) {
	h := newHarness(t, nil)
	delete(h.router.Decimals, testMint)
	h.router.Rate = 0.012
	h.fill = sellFill()
	h.fill.OmitTokenRows = true

	res := h.m.Sell(context.Background(), SellRequest{
		Mint:    testMint,
		Amount:  decimal.RequireFromString("9000"),
		HeldRaw: 8_100_123_456,
	})

	require.True(t, res.Succeeded(), res.Reason)
	assert.Equal(t, uint64(8_100_123_456), h.router.Quotes()[0].Amount)
	assert.Equal(t, 6, res.Decimals)
	assert.Contains(t, res.Anomalies, "sell amount clamped to held balance")
	assert.Contains(t, res.Anomalies, "decimals defaulted to 6")
}

func TestSell_ZeroAmount(t *testing.T) {
	h := newHarness(t, nil)

	res := h.m.Sell(context.Background(), SellRequest{Mint: testMint})

	assert.Equal(t, domain.StateFailed, res.State)
	assert.Equal(t, "zero sell amount", res.Reason)
	assert.Equal(t, 0, h.signer.Calls())
}

func TestSigningIsSerialized(t *testing.T) {
	h := newHarness(t, nil)
	h.signer.Hold = 20 * time.Millisecond
	h.router.Rate = 0.012

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				h.m.Buy(context.Background(), candidate(), buyConfig())
			} else {
				h.m.Sell(context.Background(), SellRequest{Mint: testMint, AmountRaw: 1000})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, h.signer.Calls())
	assert.Equal(t, 1, h.signer.MaxConcurrent())
}
