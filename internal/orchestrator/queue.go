package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/observability"
)

// Enqueue appends candidates not already queued, executing or processed, and
// returns how many were accepted. The dedup check and insert are atomic.
func (o *Orchestrator) Enqueue(candidates ...domain.Candidate) int {
	o.mu.Lock()
	accepted := 0
	for _, c := range candidates {
		if c.Address == "" || c.Address == o.current {
			continue
		}
		if _, ok := o.queued[c.Address]; ok {
			continue
		}
		if _, ok := o.processedSet[c.Address]; ok {
			continue
		}
		o.queue = append(o.queue, c)
		o.queued[c.Address] = struct{}{}
		accepted++
	}
	length, executing := len(o.queue), o.executing
	o.mu.Unlock()

	observability.UpdateQueue(length, executing)
	if accepted > 0 {
		o.logger.WithFields(logrus.Fields{
			"accepted":     accepted,
			"queue_length": length,
		}).Info("candidates enqueued")
		select {
		case o.wake <- struct{}{}:
		default:
		}
	}
	return accepted
}

func (o *Orchestrator) run(ctx context.Context) {
	defer close(o.workerStopped)
	defer o.logger.Info("queue worker stopped")
	o.logger.Info("queue worker started")

	for {
		if !o.waitCooldown(ctx) {
			return
		}
		c, ok := o.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-o.wake:
			}
			continue
		}
		o.attemptQueued(ctx, c)
	}
}

// pop takes the queue head and marks it current.
func (o *Orchestrator) pop() (domain.Candidate, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.queue) == 0 {
		return domain.Candidate{}, false
	}
	c := o.queue[0]
	o.queue = o.queue[1:]
	delete(o.queued, c.Address)
	o.current = c.Address
	return c, true
}

// waitCooldown sleeps until Cooldown has passed since the last completed
// execution. It returns false if ctx ended.
func (o *Orchestrator) waitCooldown(ctx context.Context) bool {
	o.mu.Lock()
	last := o.lastFinished
	o.mu.Unlock()

	if !last.IsZero() {
		if remaining := o.cooldown - o.now().Sub(last); remaining > 0 {
			t := time.NewTimer(remaining)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return false
			case <-t.C:
			}
		}
	}
	return ctx.Err() == nil
}

// attemptQueued validates prerequisites, marks c processed and executes it.
// A candidate failing prerequisites is dropped without being marked, so it
// can be enqueued again once the wallet is ready.
func (o *Orchestrator) attemptQueued(ctx context.Context, c domain.Candidate) {
	log := o.logger.WithField("mint", c.Address)

	if err := o.ValidatePrerequisites(ctx, o.execCfg); err != nil {
		o.clearCurrent()
		log.WithError(err).Warn("prerequisites not met, dropping candidate")
		_ = o.notifier.Warning(ctx, "Entry skipped", c.Symbol+" ("+c.Address+"): "+err.Error())
		return
	}

	o.markProcessed(ctx, c.Address)

	out := o.execute(ctx, c, o.execCfg, "queue")
	if out.Err != nil && !errors.Is(out.Err, domain.ErrNoRoute) {
		log.WithError(out.Err).Warn("queued entry did not complete")
	}
}

func (o *Orchestrator) markProcessed(ctx context.Context, mint string) {
	o.mu.Lock()
	o.processedSet[mint] = struct{}{}
	o.mu.Unlock()

	if o.processed == nil {
		return
	}
	if err := o.processed.Add(ctx, mint); err != nil {
		o.logger.WithError(err).WithField("mint", mint).Error("persist processed token")
	}
}

func (o *Orchestrator) clearCurrent() {
	o.mu.Lock()
	o.current = ""
	length := len(o.queue)
	o.mu.Unlock()
	observability.UpdateQueue(length, false)
}
