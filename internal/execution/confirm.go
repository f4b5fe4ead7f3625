package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/observability"
	"solana-entry-gate/internal/solana"
)

// awaitConfirmation polls the signature until it is confirmed or finalized,
// fails on chain, or the poll budget runs out.
func (m *Machine) awaitConfirmation(ctx context.Context, sig string) error {
	for attempt := 1; attempt <= m.maxPolls; attempt++ {
		start := time.Now()
		statuses, err := m.rpc.GetSignatureStatuses(ctx, []string{sig})
		observability.RecordRPCLatency("getSignatureStatuses", time.Since(start).Seconds())

		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.WithError(err).WithField("attempt", attempt).Warn("signature status poll failed")
		case len(statuses) > 0 && statuses[0] != nil:
			st := statuses[0]
			if st.Err != nil {
				return fmt.Errorf("transaction error: %v", st.Err)
			}
			if st.IsConfirmed() {
				return nil
			}
		}

		if attempt == m.maxPolls {
			break
		}
		if err := m.wait(ctx, m.pollInterval); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: %s after %d polls", domain.ErrConfirmationTimeout, sig, m.maxPolls)
}

// fetchTransaction reads the confirmed transaction, retrying while the node
// has not indexed it yet.
func (m *Machine) fetchTransaction(ctx context.Context, sig string) (*solana.Transaction, error) {
	var lastErr error
	for attempt := 1; attempt <= m.txFetchAttempts; attempt++ {
		start := time.Now()
		tx, err := m.rpc.GetTransaction(ctx, sig)
		observability.RecordRPCLatency("getTransaction", time.Since(start).Seconds())
		if err == nil && tx != nil {
			return tx, nil
		}
		if err != nil {
			lastErr = err
		}
		if attempt == m.txFetchAttempts {
			break
		}
		if err := m.wait(ctx, m.txFetchInterval); err != nil {
			return nil, err
		}
	}
	if lastErr == nil {
		lastErr = errors.New("transaction not found")
	}
	return nil, fmt.Errorf("%w: get transaction %s: %v", domain.ErrDataUnavailable, sig, lastErr)
}

// withRetry retries fn on transient network errors, up to retries extra
// attempts with linear backoff.
func withRetry[T any](ctx context.Context, m *Machine, retries int, fn func() (T, error)) (T, error) {
	var (
		v   T
		err error
	)
	for attempt := 0; attempt <= retries; attempt++ {
		v, err = fn()
		if err == nil || !errors.Is(err, domain.ErrTransientNetwork) || attempt == retries {
			return v, err
		}
		m.logger.WithError(err).WithField("attempt", attempt+1).Warn("transient error, retrying")
		if werr := m.wait(ctx, time.Duration(attempt+1)*500*time.Millisecond); werr != nil {
			return v, werr
		}
	}
	return v, err
}
