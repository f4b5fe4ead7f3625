package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/execution"
	execstub "solana-entry-gate/internal/execution/stub"
	"solana-entry-gate/internal/marketdata"
	"solana-entry-gate/internal/monitor"
	"solana-entry-gate/internal/notify"
	"solana-entry-gate/internal/observation"
	"solana-entry-gate/internal/solana"
	"solana-entry-gate/internal/solana/stub"
	"solana-entry-gate/internal/storage/memory"
)

const (
	testWallet = "Wa11et1111111111111111111111111111111111111"
	testUser   = "user-1"
	mintA      = "MintA11111111111111111111111111111111111111"
	mintB      = "MintB11111111111111111111111111111111111111"

	boughtRaw = 8_100_123_456
)

func candidate(mint string) domain.Candidate {
	return domain.Candidate{
		Address:      mint,
		Symbol:       "TEST",
		Name:         "Test Token",
		LiquidityUSD: 40_000,
		CanBuy:       true,
		CanSell:      true,
		IsTradeable:  true,
	}
}

type fakeGate struct {
	mu        sync.Mutex
	decisions map[string]domain.AggregateDecision
	calls     int
}

func (g *fakeGate) Evaluate(_ context.Context, c domain.Candidate) domain.AggregateDecision {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if d, ok := g.decisions[c.Address]; ok {
		return d
	}
	return domain.AggregateDecision{Admitted: true, Threshold: 65, Reason: "admitted"}
}

type fixedObserver struct {
	out   observation.Outcome
	calls atomic.Int64
}

func (f *fixedObserver) Observe(context.Context, domain.Candidate, *domain.Quote) observation.Outcome {
	f.calls.Add(1)
	return f.out
}

// countingExecutor records concurrency and start times of Buy calls.
type countingExecutor struct {
	*execution.Machine

	mu       sync.Mutex
	starts   []time.Time
	inFlight int
	maxSeen  int
}

func (e *countingExecutor) Buy(ctx context.Context, c domain.Candidate, cfg domain.ExecutionConfig) *execution.Result {
	e.mu.Lock()
	e.starts = append(e.starts, time.Now())
	e.inFlight++
	if e.inFlight > e.maxSeen {
		e.maxSeen = e.inFlight
	}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.inFlight--
		e.mu.Unlock()
	}()
	return e.Machine.Buy(ctx, c, cfg)
}

func (e *countingExecutor) buys() []time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]time.Time(nil), e.starts...)
}

func (e *countingExecutor) maxConcurrent() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxSeen
}

// flakyPositions fails writes while failing is set. beforeWrite, if set
// before the orchestrator runs, sees every write first.
type flakyPositions struct {
	*memory.PositionStore
	failing     atomic.Bool
	beforeWrite func(p *domain.Position)
}

func (f *flakyPositions) Insert(ctx context.Context, p *domain.Position) error {
	if f.beforeWrite != nil {
		f.beforeWrite(p)
	}
	if f.failing.Load() {
		return context.DeadlineExceeded
	}
	return f.PositionStore.Insert(ctx, p)
}

func (f *flakyPositions) Update(ctx context.Context, p *domain.Position) error {
	if f.beforeWrite != nil {
		f.beforeWrite(p)
	}
	if f.failing.Load() {
		return context.DeadlineExceeded
	}
	return f.PositionStore.Update(ctx, p)
}

type fakeSupervisor struct {
	mu        sync.Mutex
	started   []*domain.Position
	cancelled []string
	onExit    monitor.ExitFunc
}

func (s *fakeSupervisor) Start(_ context.Context, p *domain.Position, onExit monitor.ExitFunc) (*monitor.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.started = append(s.started, &cp)
	s.onExit = onExit
	return &monitor.Session{Mint: p.Mint}, nil
}

func (s *fakeSupervisor) Cancel(mint string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, mint)
	return true
}

func (s *fakeSupervisor) Active() []string { return nil }

type recordingSender struct {
	mu     sync.Mutex
	titles []string
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
	return nil
}

func (r *recordingSender) Name() string { return "recording" }

func (r *recordingSender) Titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.titles...)
}

type fixedMarket struct {
	mu        sync.Mutex
	liquidity float64
}

func (m *fixedMarket) set(v float64) {
	m.mu.Lock()
	m.liquidity = v
	m.mu.Unlock()
}

func (m *fixedMarket) Pair(_ context.Context, mint string) (*marketdata.Pair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &marketdata.Pair{Mint: mint, LiquidityUSD: m.liquidity}, nil
}

func (m *fixedMarket) SOLPriceUSD(context.Context) (float64, error) { return 150, nil }

type env struct {
	orch      *Orchestrator
	opts      Options
	rpc       *stub.RPCClient
	router    *execstub.Router
	signer    *execstub.Signer
	exec      *countingExecutor
	gate      *fakeGate
	positions *flakyPositions
	audit     *memory.AuditStore
	processed *memory.ProcessedTokenStore
	sent      *recordingSender
	market    *fixedMarket
	hook      *test.Hook
}

// fill scripts the confirmed transaction for each signed swap.
func (e *env) fill(sig string, tx *domain.UnsignedTx) {
	input, output := execstub.Swap(tx)
	f := execstub.Fill{Wallet: testWallet, Decimals: 6}
	if input == domain.WrappedSOLMint {
		f.Mint = output
		f.PreLamports, f.PostLamports = 2_000_000_000, 1_899_995_000
		f.PreTokenRaw, f.PostTokenRaw = 0, boughtRaw
	} else {
		f.Mint = input
		f.PreLamports, f.PostLamports = 1_000_000_000, 1_097_005_000
		f.PreTokenRaw, f.PostTokenRaw = boughtRaw, 0
	}
	e.rpc.SetStatuses(sig, &solana.SignatureStatus{ConfirmationStatus: solana.CommitmentConfirmed})
	e.rpc.AddTransaction(f.Transaction(sig))
}

func newEnv(t *testing.T, mutate func(*env, *Options)) *env {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	entry := logrus.NewEntry(logger)

	e := &env{
		rpc:       stub.NewRPCClient(),
		router:    execstub.NewRouter(81),
		signer:    &execstub.Signer{Wallet: testWallet},
		gate:      &fakeGate{decisions: make(map[string]domain.AggregateDecision)},
		positions: &flakyPositions{PositionStore: memory.NewPositionStore()},
		audit:     memory.NewAuditStore(),
		processed: memory.NewProcessedTokenStore(),
		sent:      &recordingSender{},
		market:    &fixedMarket{liquidity: 40_000},
		hook:      hook,
	}
	e.signer.OnSend = e.fill
	e.rpc.Balances[testWallet] = 2_000_000_000

	machine := execution.NewMachine(execution.Options{
		Router:          e.router,
		Signer:          e.signer,
		RPC:             e.rpc,
		UserID:          testUser,
		PollInterval:    time.Millisecond,
		MaxPollAttempts: 5,
		TxFetchInterval: time.Millisecond,
		Logger:          entry,
	})
	e.exec = &countingExecutor{Machine: machine}

	opts := Options{
		Gate:      e.gate,
		Executor:  e.exec,
		Balances:  e.rpc,
		Positions: e.positions,
		Audit:     e.audit,
		Processed: e.processed,
		Notifier:  notify.NewNotifier(entry, e.sent),
		UserID:    testUser,
		Execution: domain.ExecutionConfig{
			BuyAmountSOL: decimal.RequireFromString("0.1"),
			SlippageBps:  300,
		},
		Cooldown: 10 * time.Millisecond,
		Logger:   entry,
	}
	if mutate != nil {
		mutate(e, &opts)
	}
	e.opts = opts
	e.orch = New(opts)
	return e
}

// realMonitor wires a monitor with one fast checkpoint against e's router and market.
func realMonitor(t *testing.T, e *env) *monitor.Monitor {
	t.Helper()
	mon, err := monitor.New(monitor.Options{
		Quoter:   e.router,
		Market:   e.market,
		Registry: monitor.NewRegistry(),
		Schedule: []domain.CheckpointSpec{
			{Offset: 20 * time.Millisecond, MaxDropPct: 20, MaxImpactPct: 15},
		},
		ProbeTimeout: time.Second,
		Audit:        e.audit,
		UserID:       testUser,
	})
	if err != nil {
		t.Fatal(err)
	}
	return mon
}

// sellQuotes counts quote requests that sell mint.
func (e *env) sellQuotes(mint string) int {
	n := 0
	for _, q := range e.router.Quotes() {
		if q.InputMint == mint {
			n++
		}
	}
	return n
}

func hasEvent(events []domain.AuditEvent, want domain.AuditEvent) bool {
	for _, ev := range events {
		if ev == want {
			return true
		}
	}
	return false
}
