package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/execution"
	"solana-entry-gate/internal/observability"
	"solana-entry-gate/internal/storage"
)

// ExecutionOutcome is the result of one entry attempt.
type ExecutionOutcome struct {
	Mint   string                `json:"mint"`
	Source string                `json:"source"` // "queue" or "immediate"
	Result *execution.Result     `json:"-"`
	State  domain.ExecutionState `json:"state"`
	Reason string                `json:"reason"`
	Err    error                 `json:"-"`

	Position *domain.Position `json:"position,omitempty"`
	// BookkeepingDegraded means the trade confirmed but the position could
	// not be persisted; it is held for reconciliation.
	BookkeepingDegraded bool `json:"bookkeeping_degraded"`
	MonitorStarted      bool `json:"monitor_started"`
}

// Succeeded reports whether the entry confirmed.
func (out *ExecutionOutcome) Succeeded() bool { return out.State == domain.StateSuccess }

// ExecuteImmediate enters c now, bypassing the queue and the cooldown but not
// the single-flight lock. A zero cfg uses the configured defaults.
func (o *Orchestrator) ExecuteImmediate(ctx context.Context, c domain.Candidate, cfg domain.ExecutionConfig) (*ExecutionOutcome, error) {
	if c.Address == "" {
		return nil, fmt.Errorf("%w: empty token address", storage.ErrInvalidInput)
	}
	if cfg.BuyAmountSOL.IsZero() {
		cfg = o.execCfg
	}
	if err := o.ValidatePrerequisites(ctx, cfg); err != nil {
		return nil, err
	}

	if err := o.claim(c.Address); err != nil {
		return nil, err
	}
	o.markProcessed(ctx, c.Address)

	out := o.execute(ctx, c, cfg, "immediate")
	return out, nil
}

// claim takes mint out of the queue for an immediate entry. It fails if mint
// was already processed or is executing.
func (o *Orchestrator) claim(mint string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.processedSet[mint]; ok || o.current == mint {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyProcessed, mint)
	}
	if _, ok := o.queued[mint]; ok {
		delete(o.queued, mint)
		for i, c := range o.queue {
			if c.Address == mint {
				o.queue = append(o.queue[:i], o.queue[i+1:]...)
				break
			}
		}
	}
	o.processedSet[mint] = struct{}{}
	return nil
}

// execute runs one entry under execMu and handles everything after it:
// metadata, persistence, monitoring, audit and notification.
func (o *Orchestrator) execute(ctx context.Context, c domain.Candidate, cfg domain.ExecutionConfig, source string) *ExecutionOutcome {
	o.execMu.Lock()
	defer o.execMu.Unlock()

	o.setExecuting(c.Address)
	defer o.finishExecuting()

	o.retryReconciliation(ctx)

	log := o.logger.WithFields(logrus.Fields{"mint": c.Address, "source": source})
	log.Info("executing entry")

	res := o.executor.Buy(ctx, c, cfg)
	if res.Signature != "" {
		// Broadcast: the bookkeeping below outlives the caller.
		ctx = context.WithoutCancel(ctx)
	}
	out := &ExecutionOutcome{
		Mint:   c.Address,
		Source: source,
		Result: res,
		State:  res.State,
		Reason: res.Reason,
		Err:    res.Err,
	}
	o.appendAudit(ctx, domain.AuditExecutionResult, c.Address, executionDetail(res, source))

	if errors.Is(res.Err, domain.ErrCorruption) || len(res.Anomalies) > 0 {
		o.appendAudit(ctx, domain.AuditCorruptionFlagged, c.Address, map[string]any{
			"signature": res.Signature,
			"anomalies": res.Anomalies,
			"error":     errString(res.Err),
		})
	}

	if !res.Succeeded() {
		if res.Signature != "" {
			out.BookkeepingDegraded = true
			o.holdUnsettled(ctx, res, source)
			_ = o.notifier.Emergency(ctx, "Entry needs review",
				fmt.Sprintf("%s: transaction %s was broadcast but %s (confirmed=%t). Check the wallet.",
					c.Address, res.Signature, res.Reason, res.Confirmed))
		} else {
			_ = o.notifier.Warning(ctx, "Entry failed", fmt.Sprintf("%s %s: %s", c.Symbol, c.Address, res.Reason))
		}
		return out
	}

	p := res.Position
	if o.metadata != nil && c.HasPlaceholderIdentity() {
		p.Symbol, p.Name = o.metadata.Reconcile(ctx, c)
	}

	// p may be held for reconciliation after this; report a copy
	entered := o.activate(ctx, p, out, log)
	out.Position = &entered

	_ = o.notifier.Info(ctx, "Entered "+entered.Symbol,
		fmt.Sprintf("%s %s tokens for %s SOL at %s SOL/token (tx %s)",
			entered.Mint, entered.TokenAmount, entered.EntrySOL, entered.EntryPrice, entered.EntryTx))
	return out
}

// activate stores p as pending, starts its monitor and then marks it open.
// The exit claim on the mint is held throughout, so an early emergency exit
// waits until the position is open. It returns p as activated.
func (o *Orchestrator) activate(ctx context.Context, p *domain.Position, out *ExecutionOutcome, log *logrus.Entry) domain.Position {
	release, err := o.lockMint(ctx, p.Mint, false, false)
	if err != nil {
		log.WithError(err).Error("claim exit lock")
	} else {
		defer release()
	}

	p.Status = domain.PositionPending
	insertErr := o.insertPosition(ctx, p)

	if o.supervisor != nil {
		if _, err := o.supervisor.Start(o.monitorContext(), p, o.handleEmergency); err != nil {
			log.WithError(err).Error("start monitor")
		} else {
			out.MonitorStarted = true
		}
	}

	p.Status = domain.PositionOpen
	p.UpdatedAt = o.now().UTC()
	if insertErr == nil {
		insertErr = o.positions.Update(ctx, p)
	}
	if insertErr != nil {
		out.BookkeepingDegraded = true
		p.NeedsReconciliation = true
	}
	activated := *p
	if insertErr != nil {
		o.degrade(ctx, p, insertErr)
	}
	return activated
}

func (o *Orchestrator) setExecuting(mint string) {
	o.mu.Lock()
	o.executing = true
	o.current = mint
	length := len(o.queue)
	o.mu.Unlock()
	observability.UpdateQueue(length, true)
}

func (o *Orchestrator) finishExecuting() {
	o.mu.Lock()
	o.executing = false
	o.current = ""
	o.lastFinished = o.now()
	length := len(o.queue)
	o.mu.Unlock()
	observability.UpdateQueue(length, false)
}

func (o *Orchestrator) monitorContext() context.Context {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.baseCtx
}

// insertPosition stores p. A duplicate id means an earlier attempt already
// stored it.
func (o *Orchestrator) insertPosition(ctx context.Context, p *domain.Position) error {
	err := o.positions.Insert(ctx, p)
	if errors.Is(err, storage.ErrDuplicateKey) {
		return nil
	}
	return err
}

// upsertPosition updates p, or inserts it if it was never stored.
func (o *Orchestrator) upsertPosition(ctx context.Context, p *domain.Position) error {
	err := o.positions.Update(ctx, p)
	if errors.Is(err, storage.ErrNotFound) {
		return o.insertPosition(ctx, p)
	}
	return err
}

func (o *Orchestrator) appendAudit(ctx context.Context, event domain.AuditEvent, mint string, detail map[string]any) {
	if o.audit == nil {
		return
	}
	e := &domain.AuditEntry{
		ID:        uuid.NewString(),
		UserID:    o.userID,
		Event:     event,
		Mint:      mint,
		Detail:    detail,
		CreatedAt: o.now().UTC(),
	}
	if err := o.audit.Append(ctx, e); err != nil {
		o.logger.WithError(err).WithFields(logrus.Fields{"event": event, "mint": mint}).Error("append audit entry")
	}
}

func executionDetail(res *execution.Result, source string) map[string]any {
	states := make([]string, 0, len(res.Transitions))
	for _, s := range res.States() {
		states = append(states, string(s))
	}
	d := map[string]any{
		"direction": string(res.Direction),
		"source":    source,
		"state":     string(res.State),
		"reason":    res.Reason,
		"signature": res.Signature,
		"states":    states,
	}
	if res.Err != nil {
		d["error"] = res.Err.Error()
	}
	if res.Succeeded() {
		d["price"] = res.Price.String()
		d["token_amount"] = res.TokenAmount.String()
		d["sol_amount"] = res.SOLAmount.String()
	}
	return d
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
