package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/storage"
)

func testPosition(id, user, mint string, created time.Time) *domain.Position {
	return &domain.Position{
		ID:             id,
		UserID:         user,
		Mint:           mint,
		Symbol:         "TKN",
		Decimals:       6,
		EntryPrice:     decimal.RequireFromString("0.00002"),
		TokenAmount:    decimal.RequireFromString("5000"),
		TokenAmountRaw: "5000000000",
		EntrySOL:       decimal.RequireFromString("0.1"),
		EntryTx:        "sig-" + id,
		Status:         domain.PositionOpen,
		OpenedAt:       created,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

func TestPositionStore_InsertAndGet(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()
	now := time.Now()

	if err := store.Insert(ctx, testPosition("p1", "u1", "MintA", now)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "u1", "p1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !got.TokenAmount.Equal(decimal.RequireFromString("5000")) {
		t.Errorf("TokenAmount mismatch: got %s", got.TokenAmount)
	}

	if _, err := store.GetByID(ctx, "u2", "p1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for other user, got %v", err)
	}
}

func TestPositionStore_DuplicateKey(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()
	p := testPosition("p1", "u1", "MintA", time.Now())

	if err := store.Insert(ctx, p); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if err := store.Insert(ctx, p); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestPositionStore_UpdateAndOpenLookup(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()
	now := time.Now()
	p := testPosition("p1", "u1", "MintA", now)

	if err := store.Insert(ctx, p); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	open, err := store.GetOpenByMint(ctx, "u1", "MintA")
	if err != nil || open.ID != "p1" {
		t.Fatalf("GetOpenByMint: got %v, %v", open, err)
	}

	p.Close(decimal.RequireFromString("0.00001"), domain.ExitReasonEmergency, "exit-sig", now.Add(time.Minute))
	if err := store.Update(ctx, p); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if _, err := store.GetOpenByMint(ctx, "u1", "MintA"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected no open position after close, got %v", err)
	}

	got, _ := store.GetByID(ctx, "u1", "p1")
	if got.Status != domain.PositionClosed || got.ExitReason != domain.ExitReasonEmergency {
		t.Errorf("unexpected stored state: %s %s", got.Status, got.ExitReason)
	}

	// stored copy is isolated from caller mutation
	*p.ExitPrice = decimal.NewFromInt(99)
	got, _ = store.GetByID(ctx, "u1", "p1")
	if got.ExitPrice.Equal(decimal.NewFromInt(99)) {
		t.Error("store shares ExitPrice pointer with caller")
	}

	missing := testPosition("nope", "u1", "MintB", now)
	if err := store.Update(ctx, missing); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPositionStore_ListByUser(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()
	base := time.Now()

	store.Insert(ctx, testPosition("old", "u1", "MintA", base))
	store.Insert(ctx, testPosition("new", "u1", "MintB", base.Add(time.Hour)))
	store.Insert(ctx, testPosition("other", "u2", "MintC", base))
	closed := testPosition("closed", "u1", "MintD", base.Add(2*time.Hour))
	closed.Status = domain.PositionClosed
	store.Insert(ctx, closed)

	all, _ := store.ListByUser(ctx, "u1", "")
	if len(all) != 3 || all[0].ID != "closed" || all[2].ID != "old" {
		t.Fatalf("unexpected order: %v", ids(all))
	}

	open, _ := store.ListByUser(ctx, "u1", domain.PositionOpen)
	if len(open) != 2 || open[0].ID != "new" {
		t.Errorf("unexpected open list: %v", ids(open))
	}
}

func ids(ps []*domain.Position) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}

func TestPositionStore_InvalidInput(t *testing.T) {
	store := NewPositionStore()
	if err := store.Insert(context.Background(), &domain.Position{ID: "x"}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
