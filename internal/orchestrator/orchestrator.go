// Package orchestrator sequences candidates through the risk gate, the
// observation window and a single-flight execution queue, and owns position
// persistence and exits.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/execution"
	"solana-entry-gate/internal/monitor"
	"solana-entry-gate/internal/notify"
	"solana-entry-gate/internal/observation"
	"solana-entry-gate/internal/storage"
)

// Gate evaluates a candidate against the risk checks.
type Gate interface {
	Evaluate(ctx context.Context, c domain.Candidate) domain.AggregateDecision
}

// Observer re-validates a candidate shortly before entry.
type Observer interface {
	Observe(ctx context.Context, c domain.Candidate, initial *domain.Quote) observation.Outcome
}

// Quoter fetches the admission-time quote the observer compares against.
type Quoter interface {
	Quote(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error)
}

// Executor runs trades for the configured wallet.
type Executor interface {
	Buy(ctx context.Context, c domain.Candidate, cfg domain.ExecutionConfig) *execution.Result
	Sell(ctx context.Context, req execution.SellRequest) *execution.Result
	Wallet() string
}

// Supervisor runs post-entry monitoring sessions.
type Supervisor interface {
	Start(ctx context.Context, p *domain.Position, onExit monitor.ExitFunc) (*monitor.Session, error)
	Cancel(mint string) bool
	Active() []string
}

// Metadata replaces placeholder token identity with on-chain values.
type Metadata interface {
	Reconcile(ctx context.Context, c domain.Candidate) (symbol, name string)
}

// BalanceSource reports the wallet's lamport balance.
type BalanceSource interface {
	GetBalance(ctx context.Context, pubkey string) (uint64, error)
}

// Options configures an Orchestrator.
type Options struct {
	Gate       Gate
	Observer   Observer // optional; nil skips observation
	Quoter     Quoter   // optional; initial quote for observation
	Executor   Executor
	Supervisor Supervisor    // optional; nil disables monitoring
	Metadata   Metadata      // optional
	Balances   BalanceSource // optional; nil skips the balance prerequisite

	Positions storage.PositionStore
	Audit     storage.AuditStore
	Processed storage.ProcessedTokenStore
	Notifier  *notify.Notifier // optional

	UserID    string
	Execution domain.ExecutionConfig

	Cooldown           time.Duration   // default 10s
	AbortOnInstability bool            // drop candidates the observer marks unstable
	FeeReserveSOL      decimal.Decimal // kept on top of the buy amount; default 0.01
	ExitSlippageBps    int             // for emergency and manual exits; default 1500

	Logger *logrus.Entry
	Now    func() time.Time
}

// Orchestrator is the single-flight entry pipeline for one user and wallet.
type Orchestrator struct {
	gate       Gate
	observer   Observer
	quoter     Quoter
	executor   Executor
	supervisor Supervisor
	metadata   Metadata
	balances   BalanceSource

	positions storage.PositionStore
	audit     storage.AuditStore
	processed storage.ProcessedTokenStore
	notifier  *notify.Notifier

	userID             string
	execCfg            domain.ExecutionConfig
	cooldown           time.Duration
	abortOnInstability bool
	feeReserve         decimal.Decimal
	exitSlippageBps    int

	// mu guards the queue, the dedup sets, status, the reconciliation lists
	// and exit claims.
	mu            sync.Mutex
	queue         []domain.Candidate
	queued        map[string]struct{}
	processedSet  map[string]struct{}
	current       string
	executing     bool
	lastFinished  time.Time
	pendingRecon  []*domain.Position
	unsettled     []UnsettledTrade
	exiting       map[string]*exitClaim
	wake          chan struct{}
	started       bool
	baseCtx       context.Context
	workerStopped chan struct{}

	// execMu makes executions single-flight across the worker and ExecuteImmediate.
	execMu sync.Mutex

	logger *logrus.Entry
	now    func() time.Time
}

// New creates an Orchestrator. Call Start to run the queue worker.
func New(opts Options) *Orchestrator {
	if opts.Cooldown <= 0 {
		opts.Cooldown = 10 * time.Second
	}
	if opts.FeeReserveSOL.IsZero() {
		opts.FeeReserveSOL = decimal.RequireFromString("0.01")
	}
	if opts.ExitSlippageBps <= 0 {
		opts.ExitSlippageBps = 1500
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		gate:               opts.Gate,
		observer:           opts.Observer,
		quoter:             opts.Quoter,
		executor:           opts.Executor,
		supervisor:         opts.Supervisor,
		metadata:           opts.Metadata,
		balances:           opts.Balances,
		positions:          opts.Positions,
		audit:              opts.Audit,
		processed:          opts.Processed,
		notifier:           opts.Notifier,
		userID:             opts.UserID,
		execCfg:            opts.Execution,
		cooldown:           opts.Cooldown,
		abortOnInstability: opts.AbortOnInstability,
		feeReserve:         opts.FeeReserveSOL,
		exitSlippageBps:    opts.ExitSlippageBps,
		queued:             make(map[string]struct{}),
		processedSet:       make(map[string]struct{}),
		exiting:            make(map[string]*exitClaim),
		wake:               make(chan struct{}, 1),
		baseCtx:            context.Background(),
		logger:             opts.Logger.WithField("component", "orchestrator"),
		now:                opts.Now,
	}
}

// Start loads the processed set and runs the queue worker until ctx ends.
// Monitors started afterwards live under ctx.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return nil
	}
	o.started = true
	o.baseCtx = ctx
	o.workerStopped = make(chan struct{})
	o.mu.Unlock()

	if o.processed != nil {
		mints, err := o.processed.All(ctx)
		if err != nil {
			o.logger.WithError(err).Warn("load processed tokens, starting with an empty set")
		}
		o.mu.Lock()
		for _, m := range mints {
			o.processedSet[m] = struct{}{}
		}
		o.mu.Unlock()
		o.logger.WithField("count", len(mints)).Info("processed token set loaded")
	}

	go o.run(ctx)
	return nil
}

// Wait blocks until the worker started by Start has exited.
func (o *Orchestrator) Wait() {
	o.mu.Lock()
	done := o.workerStopped
	o.mu.Unlock()
	if done != nil {
		<-done
	}
}

// QueueLength returns the number of waiting candidates.
func (o *Orchestrator) QueueLength() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// IsExecuting reports whether an entry is in flight.
func (o *Orchestrator) IsExecuting() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.executing
}

// CurrentToken returns the mint being executed, or "".
func (o *Orchestrator) CurrentToken() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Status is a point-in-time view of the orchestrator.
type Status struct {
	QueueLength           int      `json:"queue_length"`
	IsExecuting           bool     `json:"is_executing"`
	CurrentToken          string   `json:"current_token"`
	Queued                []string `json:"queued"`
	ActiveMonitors        []string `json:"active_monitors"`
	PendingReconciliation int      `json:"pending_reconciliation"`
	UnsettledTrades       int      `json:"unsettled_trades"`
	Wallet                string   `json:"wallet"`
}

// Status returns the current status.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	st := Status{
		QueueLength:           len(o.queue),
		IsExecuting:           o.executing,
		CurrentToken:          o.current,
		Queued:                make([]string, 0, len(o.queue)),
		PendingReconciliation: len(o.pendingRecon),
		UnsettledTrades:       len(o.unsettled),
	}
	for _, c := range o.queue {
		st.Queued = append(st.Queued, c.Address)
	}
	o.mu.Unlock()

	st.ActiveMonitors = []string{}
	if o.supervisor != nil {
		st.ActiveMonitors = o.supervisor.Active()
	}
	if o.executor != nil {
		st.Wallet = o.executor.Wallet()
	}
	return st
}

// Positions lists the user's positions, newest first. An empty status matches all.
func (o *Orchestrator) Positions(ctx context.Context, status domain.PositionStatus) ([]*domain.Position, error) {
	return o.positions.ListByUser(ctx, o.userID, status)
}

// CancelMonitor aborts the monitor for mint. It reports whether one was active.
func (o *Orchestrator) CancelMonitor(mint string) bool {
	if o.supervisor == nil {
		return false
	}
	return o.supervisor.Cancel(mint)
}

// ExecutionConfig returns the default trade parameters.
func (o *Orchestrator) ExecutionConfig() domain.ExecutionConfig {
	return o.execCfg
}
