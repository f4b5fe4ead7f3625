package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/observability"
	"solana-entry-gate/internal/storage"
)

// DefaultThreshold is the maximum admissible total penalty.
const DefaultThreshold = 65

// Options configures an Aggregator.
type Options struct {
	Checks    []Check
	Threshold int // default DefaultThreshold
	// CheckTimeout bounds each check; default 8s.
	CheckTimeout time.Duration
	// Concurrency caps checks in flight; <= 0 runs all at once.
	Concurrency            int
	DataUnavailablePenalty int

	UserID  string
	Audit   storage.AuditStore      // optional
	Results storage.RiskResultStore // optional
	Logger  *logrus.Entry
	Now     func() time.Time
}

// Aggregator runs the checks concurrently and folds the results.
type Aggregator struct {
	checks      []Check
	threshold   int
	timeout     time.Duration
	concurrency int
	penalty     int

	userID  string
	audit   storage.AuditStore
	results storage.RiskResultStore
	logger  *logrus.Entry
	now     func() time.Time
}

// NewAggregator creates an Aggregator.
func NewAggregator(opts Options) *Aggregator {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = 8 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Aggregator{
		checks:      opts.Checks,
		threshold:   opts.Threshold,
		timeout:     opts.CheckTimeout,
		concurrency: opts.Concurrency,
		penalty:     orPenalty(opts.DataUnavailablePenalty),
		userID:      opts.UserID,
		audit:       opts.Audit,
		results:     opts.Results,
		logger:      opts.Logger.WithField("component", "risk"),
		now:         opts.Now,
	}
}

// Threshold returns the configured penalty threshold.
func (a *Aggregator) Threshold() int { return a.threshold }

// Evaluate runs every check and returns the aggregate decision. The decision
// is audited and its rows written to the results store; persistence failures
// are logged and do not change the decision.
func (a *Aggregator) Evaluate(ctx context.Context, c domain.Candidate) domain.AggregateDecision {
	start := time.Now()
	results := a.runAll(ctx, c)
	decision := domain.Aggregate(results, a.threshold)

	logger := a.logger.WithFields(logrus.Fields{
		"mint":  c.Address,
		"venue": c.Venue,
	})
	for _, r := range decision.Results {
		observability.RecordRiskCheck(r.Check, r.Passed, r.HardBlock)
		logger.WithFields(logrus.Fields{
			"check":      r.Check,
			"passed":     r.Passed,
			"penalty":    r.Penalty,
			"hard_block": r.HardBlock,
			"details":    r.Details,
		}).Info(r.Reason)
	}
	logger.WithFields(logrus.Fields{
		"admitted":      decision.Admitted,
		"total_penalty": decision.TotalPenalty,
		"threshold":     decision.Threshold,
	}).Info("risk decision: " + decision.Reason)
	observability.RecordRiskDecision(decision.Admitted, decision.HardBlocked, time.Since(start).Seconds())

	a.persist(ctx, c, decision)
	return decision
}

// runAll fans the checks out. Each result lands in its own slot so no locking
// is needed; the group never returns an error.
func (a *Aggregator) runAll(ctx context.Context, c domain.Candidate) []domain.RiskCheckResult {
	results := make([]domain.RiskCheckResult, len(a.checks))

	var g errgroup.Group
	if a.concurrency > 0 {
		g.SetLimit(a.concurrency)
	}
	for i, check := range a.checks {
		i, check := i, check
		g.Go(func() error {
			results[i] = a.runOne(ctx, check, c)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// runOne runs check under the per-check timeout. A timeout or panic degrades
// to the data-unavailable penalty; a check that ignores its context is left
// to finish in the background and its late result is dropped.
func (a *Aggregator) runOne(ctx context.Context, check Check, c domain.Candidate) domain.RiskCheckResult {
	name := check.Name()
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	done := make(chan domain.RiskCheckResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				a.logger.WithField("check", name).WithField("panic", p).Error("risk check panicked")
				done <- degraded(name, a.penalty, fmt.Errorf("check panicked: %v", p))
			}
		}()
		r := check.Run(ctx, c)
		r.Check = name
		done <- r
	}()

	select {
	case r := <-done:
		return r
	case <-ctx.Done():
		return degraded(name, a.penalty, fmt.Errorf("%w: %v", domain.ErrDataUnavailable, ctx.Err()))
	}
}

func (a *Aggregator) persist(ctx context.Context, c domain.Candidate, d domain.AggregateDecision) {
	now := a.now().UTC()
	evalID := uuid.NewString()

	if a.audit != nil {
		checks := make([]map[string]any, 0, len(d.Results))
		for _, r := range d.Results {
			checks = append(checks, map[string]any{
				"check":      r.Check,
				"passed":     r.Passed,
				"penalty":    r.Penalty,
				"hard_block": r.HardBlock,
				"reason":     r.Reason,
				"details":    r.Details,
			})
		}
		entry := &domain.AuditEntry{
			ID:     uuid.NewString(),
			UserID: a.userID,
			Event:  domain.AuditRiskDecision,
			Mint:   c.Address,
			Detail: map[string]any{
				"evaluation_id": evalID,
				"admitted":      d.Admitted,
				"hard_blocked":  d.HardBlocked,
				"blocked_by":    d.BlockedBy,
				"total_penalty": d.TotalPenalty,
				"threshold":     d.Threshold,
				"reason":        d.Reason,
				"checks":        checks,
			},
			CreatedAt: now,
		}
		if err := a.audit.Append(ctx, entry); err != nil {
			a.logger.WithError(err).WithField("mint", c.Address).Error("append risk audit entry")
		}
	}

	if a.results != nil {
		eval := &domain.RiskEvaluation{
			ID:          evalID,
			UserID:      a.userID,
			Mint:        c.Address,
			Venue:       c.Venue,
			Decision:    d,
			EvaluatedAt: now,
		}
		if err := a.results.InsertEvaluation(ctx, eval); err != nil {
			a.logger.WithError(err).WithField("mint", c.Address).Error("store risk check results")
		}
	}
}
