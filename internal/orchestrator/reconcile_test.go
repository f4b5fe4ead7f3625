package orchestrator

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/storage"
)

func degradedEntry(t *testing.T, e *env, mint string) {
	t.Helper()
	e.positions.failing.Store(true)
	out, err := e.orch.ExecuteImmediate(context.Background(), candidate(mint), domain.ExecutionConfig{})
	require.NoError(t, err)
	require.True(t, out.BookkeepingDegraded)
	e.positions.failing.Store(false)
}

func TestRetryReconciliation_HeldPositionReachableDuringRetry(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	degradedEntry(t, e, mintA)

	writing, proceed := make(chan struct{}), make(chan struct{})
	var once sync.Once
	e.positions.beforeWrite = func(p *domain.Position) {
		if p.Mint == mintA && p.Status == domain.PositionOpen {
			once.Do(func() {
				close(writing)
				<-proceed
			})
		}
	}

	retried := make(chan struct{})
	go func() {
		defer close(retried)
		e.orch.retryReconciliation(ctx)
	}()
	<-writing

	// the entry stays held while its write is in flight
	held := e.orch.PendingReconciliation()
	require.Len(t, held, 1)
	assert.True(t, held[0].NeedsReconciliation)

	closeErr := make(chan error, 1)
	go func() {
		_, err := e.orch.CloseManual(ctx, mintA)
		closeErr <- err
	}()
	close(proceed)
	<-retried
	require.NoError(t, <-closeErr)

	assert.Empty(t, e.orch.PendingReconciliation())
	assert.Equal(t, 0, e.orch.Status().PendingReconciliation)
	closed, err := e.positions.ListByUser(ctx, testUser, domain.PositionClosed)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, domain.ExitReasonManual, closed[0].ExitReason)
	assert.False(t, closed[0].NeedsReconciliation)
}

func TestRetryReconciliation_FailureKeepsEntry(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	degradedEntry(t, e, mintA)

	e.positions.failing.Store(true)
	e.orch.retryReconciliation(ctx)

	held := e.orch.PendingReconciliation()
	require.Len(t, held, 1)
	assert.True(t, held[0].NeedsReconciliation)
	_, err := e.positions.GetOpenByMint(ctx, testUser, mintA)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRetryReconciliation_SkipsMintWithExitInProgress(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	degradedEntry(t, e, mintA)

	release, ok := e.orch.tryLockMint(mintA)
	require.True(t, ok)
	e.orch.retryReconciliation(ctx)
	assert.Len(t, e.orch.PendingReconciliation(), 1)
	_, err := e.positions.GetOpenByMint(ctx, testUser, mintA)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	release()
	e.orch.retryReconciliation(ctx)
	assert.Empty(t, e.orch.PendingReconciliation())
	stored, err := e.positions.GetOpenByMint(ctx, testUser, mintA)
	require.NoError(t, err)
	assert.False(t, stored.NeedsReconciliation)
}

func TestLockMint_FailFastOnlyAgainstSellingHolder(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	release, err := e.orch.lockMint(ctx, mintA, true, false)
	require.NoError(t, err)
	_, err = e.orch.lockMint(ctx, mintA, true, true)
	assert.ErrorIs(t, err, domain.ErrExitInProgress)
	_, ok := e.orch.tryLockMint(mintA)
	assert.False(t, ok)
	release()

	release, ok = e.orch.tryLockMint(mintA)
	require.True(t, ok)
	got := make(chan error, 1)
	go func() {
		r, err := e.orch.lockMint(ctx, mintA, true, true)
		if err == nil {
			r()
		}
		got <- err
	}()
	release()
	assert.NoError(t, <-got)

	cctx, cancel := context.WithCancel(ctx)
	release, ok = e.orch.tryLockMint(mintA)
	require.True(t, ok)
	defer release()
	cancel()
	_, err = e.orch.lockMint(cctx, mintA, false, false)
	assert.ErrorIs(t, err, context.Canceled)
}
