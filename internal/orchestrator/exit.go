package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/execution"
	"solana-entry-gate/internal/observability"
	"solana-entry-gate/internal/storage"
)

// handleEmergency sells the whole position after a failed checkpoint. It runs
// on the monitor's goroutine and does not take execMu. It waits for any other
// exit of the same mint and then works on a fresh read of the position.
func (o *Orchestrator) handleEmergency(ctx context.Context, ev domain.EmergencyExitEvent) {
	log := o.logger.WithFields(logrus.Fields{
		"mint":       ev.Mint,
		"session":    ev.SessionID,
		"checkpoint": ev.Checkpoint.Index,
	})

	release, err := o.lockMint(ctx, ev.Mint, true, false)
	if err != nil {
		log.WithError(err).Error("emergency exit: waiting for exit claim")
		_ = o.notifier.Emergency(context.WithoutCancel(ctx), "Emergency exit failed",
			fmt.Sprintf("%s: %s, and the exit was abandoned: %v", ev.Mint, ev.Checkpoint.Reason, err))
		return
	}
	defer release()

	p, _, err := o.openPosition(ctx, ev.Mint)
	if err != nil {
		if o.alreadyClosed(ctx, ev.Mint) {
			log.Info("emergency exit skipped, position already closed")
			return
		}
		log.WithError(err).Error("emergency exit: no open position")
		_ = o.notifier.Emergency(ctx, "Emergency exit failed",
			fmt.Sprintf("%s: %s, and no open position was found: %v", ev.Mint, ev.Checkpoint.Reason, err))
		return
	}

	log.WithField("reason", ev.Checkpoint.Reason).Error("emergency exit started")
	res := o.sell(ctx, p)
	if res.Signature != "" {
		ctx = context.WithoutCancel(ctx)
	}
	observability.RecordEmergencyExit(string(res.State))

	detail := map[string]any{
		"position_id": p.ID,
		"session_id":  ev.SessionID,
		"checkpoint":  ev.Checkpoint.Index,
		"trigger":     ev.Checkpoint.Reason,
		"state":       string(res.State),
		"reason":      res.Reason,
		"signature":   res.Signature,
	}

	if !res.Succeeded() {
		if res.Signature != "" {
			o.holdUnsettled(ctx, res, "emergency")
		}
		p.NeedsReview = true
		p.UpdatedAt = o.now().UTC()
		o.savePosition(ctx, p)
		detail["error"] = errString(res.Err)
		o.appendAudit(ctx, domain.AuditEmergencyExit, p.Mint, detail)
		log.WithError(res.Err).Error("emergency exit failed, position left open for review")
		_ = o.notifier.Emergency(ctx, "Emergency exit failed",
			fmt.Sprintf("%s %s: %s. Sell failed (%s). Position flagged for review.",
				p.Symbol, p.Mint, ev.Checkpoint.Reason, res.Reason))
		return
	}

	p.Close(res.Price, domain.ExitReasonEmergency, res.Signature, o.now().UTC())
	o.savePosition(ctx, p)
	detail["exit_price"] = res.Price.String()
	detail["sol_received"] = res.SOLAmount.String()
	detail["return"] = p.RealizedReturn().String()
	o.appendAudit(ctx, domain.AuditEmergencyExit, p.Mint, detail)

	log.WithFields(logrus.Fields{
		"exit_price": res.Price.String(),
		"sol":        res.SOLAmount.String(),
	}).Warn("emergency exit completed")
	_ = o.notifier.Emergency(ctx, "Emergency exit "+p.Symbol,
		fmt.Sprintf("%s: %s. Sold %s tokens for %s SOL (tx %s).",
			p.Mint, ev.Checkpoint.Reason, res.TokenAmount, res.SOLAmount, res.Signature))
}

// CloseManual cancels monitoring for mint and sells the whole position. It
// fails with ErrExitInProgress while another exit of mint is selling.
func (o *Orchestrator) CloseManual(ctx context.Context, mint string) (*execution.Result, error) {
	release, err := o.lockMint(ctx, mint, true, true)
	if err != nil {
		return nil, fmt.Errorf("close: %w", err)
	}
	defer release()

	p, pending, err := o.openPosition(ctx, mint)
	if err != nil {
		return nil, err
	}
	o.CancelMonitor(mint)

	res := o.sell(ctx, p)
	if res.Signature != "" {
		ctx = context.WithoutCancel(ctx)
	}
	if !res.Succeeded() {
		if pending {
			o.holdPending(p)
		}
		if res.Signature != "" {
			o.holdUnsettled(ctx, res, "manual")
			_ = o.notifier.Emergency(ctx, "Close needs review",
				fmt.Sprintf("%s %s: sell %s was broadcast but %s (confirmed=%t). Check the wallet.",
					p.Symbol, mint, res.Signature, res.Reason, res.Confirmed))
		} else {
			_ = o.notifier.Warning(ctx, "Close failed", fmt.Sprintf("%s %s: %s", p.Symbol, mint, res.Reason))
		}
		return res, fmt.Errorf("close %s: %s: %w", mint, res.Reason, res.Err)
	}

	p.Close(res.Price, domain.ExitReasonManual, res.Signature, o.now().UTC())
	o.savePosition(ctx, p)
	o.appendAudit(ctx, domain.AuditPositionClosed, mint, map[string]any{
		"position_id":  p.ID,
		"exit_reason":  domain.ExitReasonManual,
		"exit_price":   res.Price.String(),
		"sol_received": res.SOLAmount.String(),
		"signature":    res.Signature,
		"return":       p.RealizedReturn().String(),
	})
	_ = o.notifier.Info(ctx, "Closed "+p.Symbol,
		fmt.Sprintf("%s: sold %s tokens for %s SOL (tx %s)", mint, res.TokenAmount, res.SOLAmount, res.Signature))
	return res, nil
}

// exitClaim serializes exits and position bookkeeping for one mint.
type exitClaim struct {
	done    chan struct{}
	selling bool
}

// lockMint takes the exit claim for mint, waiting for the current holder.
// selling marks a claim held across a sell. With failFast set, a selling
// holder yields ErrExitInProgress instead of a wait.
func (o *Orchestrator) lockMint(ctx context.Context, mint string, selling, failFast bool) (release func(), err error) {
	for {
		o.mu.Lock()
		held, busy := o.exiting[mint]
		if !busy {
			release = o.claimLocked(mint, selling)
			o.mu.Unlock()
			return release, nil
		}
		o.mu.Unlock()
		if failFast && held.selling {
			return nil, fmt.Errorf("%s: %w", mint, domain.ErrExitInProgress)
		}

		select {
		case <-held.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// tryLockMint takes a bookkeeping claim for mint without waiting.
func (o *Orchestrator) tryLockMint(mint string) (release func(), ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.exiting[mint]; busy {
		return nil, false
	}
	return o.claimLocked(mint, false), true
}

func (o *Orchestrator) claimLocked(mint string, selling bool) func() {
	c := &exitClaim{done: make(chan struct{}), selling: selling}
	o.exiting[mint] = c
	return func() {
		o.mu.Lock()
		delete(o.exiting, mint)
		o.mu.Unlock()
		close(c.done)
	}
}

// alreadyClosed reports whether the store holds a closed position for mint.
func (o *Orchestrator) alreadyClosed(ctx context.Context, mint string) bool {
	closed, err := o.positions.ListByUser(ctx, o.userID, domain.PositionClosed)
	if err != nil {
		return false
	}
	for _, p := range closed {
		if p.Mint == mint {
			return true
		}
	}
	return false
}

// openPosition finds the open position for mint in the store, or in the
// reconciliation list when it was never stored. pending reports the latter.
func (o *Orchestrator) openPosition(ctx context.Context, mint string) (*domain.Position, bool, error) {
	p, err := o.positions.GetOpenByMint(ctx, o.userID, mint)
	if err == nil {
		return p, false, nil
	}
	if held := o.takePending(mint); held != nil {
		return held, true, nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, fmt.Errorf("open position for %s: %w", mint, storage.ErrNotFound)
	}
	return nil, false, fmt.Errorf("load position %s: %w", mint, err)
}

func (o *Orchestrator) sell(ctx context.Context, p *domain.Position) *execution.Result {
	raw, _ := strconv.ParseUint(p.TokenAmountRaw, 10, 64)
	return o.executor.Sell(ctx, execution.SellRequest{
		Mint:                p.Mint,
		AmountRaw:           raw,
		Amount:              p.TokenAmount,
		HeldRaw:             raw,
		SlippageBps:         o.exitSlippageBps,
		PriorityFeeLamports: o.execCfg.PriorityFeeLamports,
		MaxRetries:          o.execCfg.MaxRetries,
	})
}

// savePosition writes p back, inserting it if it was never stored. A stored
// closed position is never reopened. On failure p joins the reconciliation
// list.
func (o *Orchestrator) savePosition(ctx context.Context, p *domain.Position) {
	if p.Status != domain.PositionClosed {
		if cur, err := o.positions.GetByID(ctx, o.userID, p.ID); err == nil && cur.Status == domain.PositionClosed {
			o.logger.WithFields(logrus.Fields{"mint": p.Mint, "position_id": p.ID}).
				Warn("position already closed, dropping stale update")
			return
		}
	}
	p.NeedsReconciliation = false
	err := o.upsertPosition(ctx, p)
	if err == nil {
		return
	}
	p.NeedsReconciliation = true
	o.holdPending(p)
	o.logger.WithError(err).WithFields(logrus.Fields{
		"mint":        p.Mint,
		"position_id": p.ID,
		"status":      p.Status,
	}).Error("persist position update, held for reconciliation")
	o.appendAudit(ctx, domain.AuditReconciliationRequired, p.Mint, map[string]any{
		"position_id": p.ID,
		"status":      string(p.Status),
		"error":       err.Error(),
	})
}
