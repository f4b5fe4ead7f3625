// Package monitor supervises freshly opened positions for a short window and
// raises an emergency exit when the sell side deteriorates.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/marketdata"
	"solana-entry-gate/internal/observability"
	"solana-entry-gate/internal/storage"
)

// Quoter prices the exit swap.
type Quoter interface {
	Quote(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error)
}

// ExitFunc receives the emergency exit event. It runs on the session's
// goroutine and is called at most once per session.
type ExitFunc func(ctx context.Context, ev domain.EmergencyExitEvent)

// Options configures a Monitor.
type Options struct {
	Quoter   Quoter
	Market   marketdata.Client
	Registry *Registry // required

	Schedule     []domain.CheckpointSpec // default DefaultSchedule()
	ProbeTimeout time.Duration           // per checkpoint; default 10s
	SlippageBps  int                     // for the probe quote; default 500

	Checkpoints storage.CheckpointStore // optional
	Audit       storage.AuditStore      // optional
	UserID      string

	Logger *logrus.Entry
	Now    func() time.Time
}

// Monitor starts and cancels supervision sessions.
type Monitor struct {
	quoter       Quoter
	market       marketdata.Client
	registry     *Registry
	schedule     []domain.CheckpointSpec
	probeTimeout time.Duration
	slippageBps  int
	checkpoints  storage.CheckpointStore
	audit        storage.AuditStore
	userID       string
	logger       *logrus.Entry
	now          func() time.Time
}

// New creates a Monitor. It fails on an invalid schedule.
func New(opts Options) (*Monitor, error) {
	if opts.Registry == nil {
		return nil, errors.New("monitor: registry is required")
	}
	if len(opts.Schedule) == 0 {
		opts.Schedule = DefaultSchedule()
	}
	if err := ValidateSchedule(opts.Schedule); err != nil {
		return nil, err
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 10 * time.Second
	}
	if opts.SlippageBps <= 0 {
		opts.SlippageBps = 500
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	schedule := make([]domain.CheckpointSpec, len(opts.Schedule))
	copy(schedule, opts.Schedule)

	return &Monitor{
		quoter:       opts.Quoter,
		market:       opts.Market,
		registry:     opts.Registry,
		schedule:     schedule,
		probeTimeout: opts.ProbeTimeout,
		slippageBps:  opts.SlippageBps,
		checkpoints:  opts.Checkpoints,
		audit:        opts.Audit,
		userID:       opts.UserID,
		logger:       opts.Logger.WithField("component", "monitor"),
		now:          opts.Now,
	}, nil
}

// Start launches a detached session for p. The position is copied; later
// changes to p are not seen. ctx bounds the whole session.
func (m *Monitor) Start(ctx context.Context, p *domain.Position, onExit ExitFunc) (*Session, error) {
	if p == nil || p.Mint == "" {
		return nil, errors.New("monitor: position without mint")
	}
	if _, err := strconv.ParseUint(p.TokenAmountRaw, 10, 64); err != nil {
		return nil, fmt.Errorf("monitor: position %s raw amount %q: %w", p.ID, p.TokenAmountRaw, err)
	}

	s := newSession(uuid.NewString(), *p, m.now())
	if err := m.registry.add(s); err != nil {
		return nil, fmt.Errorf("%w: %s", err, p.Mint)
	}
	observability.UpdateActiveMonitors(m.registry.Len())

	m.logger.WithFields(logrus.Fields{
		"mint":        s.Mint,
		"session":     s.ID,
		"checkpoints": len(m.schedule),
	}).Info("monitor started")

	go m.run(ctx, s, onExit)
	return s, nil
}

// Cancel aborts the active session for mint. It reports whether one existed.
func (m *Monitor) Cancel(mint string) bool {
	s, ok := m.registry.Get(mint)
	if !ok {
		return false
	}
	s.Abort()
	m.logger.WithFields(logrus.Fields{"mint": mint, "session": s.ID}).Info("monitor cancelled")
	return true
}

// Active returns the mints under supervision.
func (m *Monitor) Active() []string {
	return m.registry.Mints()
}

func (m *Monitor) run(ctx context.Context, s *Session, onExit ExitFunc) {
	log := m.logger.WithFields(logrus.Fields{"mint": s.Mint, "session": s.ID})
	defer func() {
		observability.UpdateActiveMonitors(m.registry.remove(s))
		close(s.done)
	}()

	for i, cp := range m.schedule {
		if !m.waitUntil(ctx, s, s.BoughtAt.Add(cp.Offset)) {
			log.WithField("checkpoint", label(cp.Offset)).Info("monitor ended before checkpoint")
			return
		}

		res := m.probe(ctx, s, i, cp)
		if s.Aborted() {
			log.WithField("checkpoint", label(cp.Offset)).Debug("discarding checkpoint result after abort")
			return
		}
		s.record(res)
		m.store(ctx, res)

		log.WithFields(logrus.Fields{
			"checkpoint":   label(cp.Offset),
			"passed":       res.Passed,
			"impact_pct":   res.PriceImpactPct,
			"liquidity":    res.LiquidityUSD,
			"drop_pct":     res.LiquidityDropPct,
			"route":        res.RouteAvailable,
			"check_reason": res.Reason,
		}).Info("checkpoint evaluated")

		if !res.Passed {
			m.trigger(ctx, s, res, onExit)
			return
		}
	}
	log.Info("monitor completed, all checkpoints passed")
}

// waitUntil blocks until at, an abort, or ctx ends. It returns false unless
// the deadline was reached with the session still live.
func (m *Monitor) waitUntil(ctx context.Context, s *Session, at time.Time) bool {
	if s.Aborted() {
		return false
	}
	d := at.Sub(m.now())
	if d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-s.abort:
			return false
		case <-ctx.Done():
			return false
		}
	}
	return !s.Aborted() && ctx.Err() == nil
}

// probe runs the sell quote and the liquidity read concurrently under the
// probe timeout and judges them against cp.
func (m *Monitor) probe(ctx context.Context, s *Session, index int, cp domain.CheckpointSpec) domain.CheckpointResult {
	res := domain.CheckpointResult{
		SessionID:    s.ID,
		Mint:         s.Mint,
		Index:        index,
		Offset:       cp.Offset,
		MaxDropPct:   cp.MaxDropPct,
		MaxImpactPct: cp.MaxImpactPct,
	}

	pctx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	var (
		quote    *domain.Quote
		quoteErr error
		pair     *marketdata.Pair
		pairErr  error
	)
	raw, _ := strconv.ParseUint(s.position.TokenAmountRaw, 10, 64)

	var g errgroup.Group
	g.Go(func() error {
		if m.quoter == nil {
			quoteErr = errors.New("no quoter configured")
			return nil
		}
		quote, quoteErr = m.quoter.Quote(pctx, domain.QuoteRequest{
			InputMint:   s.Mint,
			OutputMint:  domain.WrappedSOLMint,
			Amount:      raw,
			SlippageBps: m.slippageBps,
		})
		return nil
	})
	g.Go(func() error {
		if m.market == nil {
			pairErr = errors.New("no market data configured")
			return nil
		}
		pair, pairErr = m.market.Pair(pctx, s.Mint)
		return nil
	})
	_ = g.Wait()
	res.CheckedAt = m.now()

	var notes []string
	failed := false

	switch {
	case quoteErr == nil && quote != nil:
		res.RouteAvailable = true
		res.PriceImpactPct = quote.PriceImpactPct
		if quote.PriceImpactPct > cp.MaxImpactPct {
			failed = true
			notes = append(notes, fmt.Sprintf("price impact %.2f%% exceeds %.2f%%", quote.PriceImpactPct, cp.MaxImpactPct))
		}
	case errors.Is(quoteErr, domain.ErrNoRoute), errors.Is(quoteErr, domain.ErrMalformedResponse):
		failed = true
		notes = append(notes, "sell route disappeared")
	default:
		// transient failure or probe timeout: no evidence either way
		notes = append(notes, "sell quote unavailable")
		m.logger.WithError(quoteErr).WithField("mint", s.Mint).Warn("checkpoint sell quote failed")
	}

	if pairErr == nil && pair != nil {
		res.LiquidityUSD = pair.LiquidityUSD
		if entry := s.position.EntryLiquidityUSD; entry > 0 {
			res.LiquidityDropPct = (entry - pair.LiquidityUSD) / entry * 100
			if res.LiquidityDropPct > cp.MaxDropPct {
				failed = true
				notes = append(notes, fmt.Sprintf("liquidity dropped %.2f%% (max %.2f%%)", res.LiquidityDropPct, cp.MaxDropPct))
			}
		}
	} else {
		notes = append(notes, "liquidity unavailable")
		m.logger.WithError(pairErr).WithField("mint", s.Mint).Warn("checkpoint liquidity read failed")
	}

	res.Passed = !failed
	res.Reason = "ok"
	if len(notes) > 0 {
		res.Reason = strings.Join(notes, "; ")
	}
	return res
}

func (m *Monitor) store(ctx context.Context, res domain.CheckpointResult) {
	if m.checkpoints == nil {
		return
	}
	if err := m.checkpoints.Insert(ctx, &res); err != nil {
		m.logger.WithError(err).WithField("mint", res.Mint).Warn("persist checkpoint result")
	}
}

// trigger fires onExit for the first failing checkpoint of s only.
func (m *Monitor) trigger(ctx context.Context, s *Session, res domain.CheckpointResult, onExit ExitFunc) {
	if s.Aborted() || !s.exitTriggered.CompareAndSwap(false, true) {
		return
	}
	observability.RecordCheckpointFailure(label(res.Offset))

	ev := domain.EmergencyExitEvent{
		SessionID:   s.ID,
		Mint:        s.Mint,
		Checkpoint:  res,
		TriggeredAt: m.now(),
	}

	m.logger.WithFields(logrus.Fields{
		"mint":       s.Mint,
		"session":    s.ID,
		"checkpoint": label(res.Offset),
		"reason":     res.Reason,
	}).Error("checkpoint failed, triggering emergency exit")

	if m.audit != nil {
		entry := &domain.AuditEntry{
			ID:     uuid.NewString(),
			UserID: m.userID,
			Event:  domain.AuditMonitorCheckpointFailed,
			Mint:   s.Mint,
			Detail: map[string]any{
				"session_id":         s.ID,
				"position_id":        s.position.ID,
				"checkpoint":         label(res.Offset),
				"reason":             res.Reason,
				"route_available":    res.RouteAvailable,
				"price_impact_pct":   res.PriceImpactPct,
				"liquidity_usd":      res.LiquidityUSD,
				"liquidity_drop_pct": res.LiquidityDropPct,
			},
			CreatedAt: ev.TriggeredAt,
		}
		if err := m.audit.Append(ctx, entry); err != nil {
			m.logger.WithError(err).WithField("mint", s.Mint).Error("append checkpoint failure audit")
		}
	}

	if onExit != nil {
		onExit(ctx, ev)
	}
}
