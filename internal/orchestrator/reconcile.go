package orchestrator

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/execution"
	"solana-entry-gate/internal/observability"
)

// UnsettledTrade is a broadcast transaction whose outcome could not be
// settled into a position change. An operator has to check it on chain.
type UnsettledTrade struct {
	Mint      string                `json:"mint"`
	Direction execution.Direction   `json:"direction"`
	Source    string                `json:"source"`
	Signature string                `json:"signature"`
	Confirmed bool                  `json:"confirmed"`
	State     domain.ExecutionState `json:"state"`
	Reason    string                `json:"reason"`
	At        time.Time             `json:"at"`
}

// holdUnsettled records a failed result that carries a signature.
func (o *Orchestrator) holdUnsettled(ctx context.Context, res *execution.Result, source string) {
	t := UnsettledTrade{
		Mint:      res.Mint,
		Direction: res.Direction,
		Source:    source,
		Signature: res.Signature,
		Confirmed: res.Confirmed,
		State:     res.State,
		Reason:    res.Reason,
		At:        o.now().UTC(),
	}

	o.mu.Lock()
	o.unsettled = append(o.unsettled, t)
	n := o.backlogLocked()
	o.mu.Unlock()
	observability.UpdateReconciliationPending(n)

	o.logger.WithError(res.Err).WithFields(logrus.Fields{
		"mint":      t.Mint,
		"direction": t.Direction,
		"signature": t.Signature,
		"confirmed": t.Confirmed,
	}).Error("broadcast transaction not settled, held for review")

	o.appendAudit(ctx, domain.AuditReconciliationRequired, t.Mint, map[string]any{
		"signature": t.Signature,
		"direction": string(t.Direction),
		"source":    source,
		"confirmed": t.Confirmed,
		"state":     string(t.State),
		"reason":    t.Reason,
		"error":     errString(res.Err),
	})
}

// UnsettledTrades returns the broadcast transactions held for review.
func (o *Orchestrator) UnsettledTrades() []UnsettledTrade {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]UnsettledTrade, len(o.unsettled))
	copy(out, o.unsettled)
	return out
}

// degrade records a confirmed position that could not be persisted.
func (o *Orchestrator) degrade(ctx context.Context, p *domain.Position, cause error) {
	p.NeedsReconciliation = true
	o.holdPending(p)

	o.logger.WithError(cause).WithFields(logrus.Fields{
		"mint":        p.Mint,
		"position_id": p.ID,
		"signature":   p.EntryTx,
	}).Error("trade succeeded but position was not persisted, held for reconciliation")

	o.appendAudit(ctx, domain.AuditReconciliationRequired, p.Mint, map[string]any{
		"position_id": p.ID,
		"signature":   p.EntryTx,
		"error":       cause.Error(),
	})
}

// holdPending adds p to the reconciliation list. p must not be shared
// afterwards except through that list.
func (o *Orchestrator) holdPending(p *domain.Position) {
	o.mu.Lock()
	o.pendingRecon = append(o.pendingRecon, p)
	n := o.backlogLocked()
	o.mu.Unlock()
	observability.UpdateReconciliationPending(n)
}

// PendingReconciliation returns copies of positions awaiting persistence.
func (o *Orchestrator) PendingReconciliation() []domain.Position {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]domain.Position, len(o.pendingRecon))
	for i, p := range o.pendingRecon {
		out[i] = *p
	}
	return out
}

// retryReconciliation tries to persist held positions again. Each entry stays
// in the list until a copy of it is stored, and a mint with an exit in
// progress is left for a later pass.
func (o *Orchestrator) retryReconciliation(ctx context.Context) {
	o.mu.Lock()
	held := make([]*domain.Position, len(o.pendingRecon))
	copy(held, o.pendingRecon)
	o.mu.Unlock()

	for _, p := range held {
		o.retryHeld(ctx, p)
	}

	o.mu.Lock()
	n := o.backlogLocked()
	o.mu.Unlock()
	observability.UpdateReconciliationPending(n)
}

func (o *Orchestrator) retryHeld(ctx context.Context, held *domain.Position) {
	release, ok := o.tryLockMint(held.Mint)
	if !ok {
		return
	}
	defer release()

	o.mu.Lock()
	if !o.isHeldLocked(held) {
		o.mu.Unlock()
		return
	}
	p := *held
	o.mu.Unlock()

	p.NeedsReconciliation = false
	if err := o.upsertPosition(ctx, &p); err != nil {
		o.logger.WithError(err).WithFields(logrus.Fields{"mint": p.Mint, "position_id": p.ID}).
			Warn("reconciliation retry failed")
		return
	}

	o.mu.Lock()
	for i, q := range o.pendingRecon {
		if q == held {
			o.pendingRecon = append(o.pendingRecon[:i], o.pendingRecon[i+1:]...)
			break
		}
	}
	o.mu.Unlock()
	o.logger.WithFields(logrus.Fields{"mint": p.Mint, "position_id": p.ID}).Info("reconciled position")
}

func (o *Orchestrator) isHeldLocked(p *domain.Position) bool {
	for _, q := range o.pendingRecon {
		if q == p {
			return true
		}
	}
	return false
}

// takePending removes and returns the held open position for mint, if any.
// Callers hold the exit claim for mint.
func (o *Orchestrator) takePending(mint string) *domain.Position {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, p := range o.pendingRecon {
		if p.Mint == mint && p.Status == domain.PositionOpen {
			o.pendingRecon = append(o.pendingRecon[:i], o.pendingRecon[i+1:]...)
			n := o.backlogLocked()
			observability.UpdateReconciliationPending(n)
			return p
		}
	}
	return nil
}

func (o *Orchestrator) backlogLocked() int {
	return len(o.pendingRecon) + len(o.unsettled)
}
