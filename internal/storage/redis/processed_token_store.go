package redis

import (
	"context"
	"fmt"
	"time"

	"solana-entry-gate/internal/observability"
	"solana-entry-gate/internal/storage"
)

// ProcessedTokenStore keeps processed mints in a Redis set scoped to one user.
type ProcessedTokenStore struct {
	c   *Client
	key string
}

// NewProcessedTokenStore creates a store under <prefix>:processed:<userID>.
func NewProcessedTokenStore(c *Client, userID string) *ProcessedTokenStore {
	return &ProcessedTokenStore{c: c, key: c.key("processed", userID)}
}

// Compile-time interface check.
var _ storage.ProcessedTokenStore = (*ProcessedTokenStore)(nil)

// Add records mint as processed.
func (s *ProcessedTokenStore) Add(ctx context.Context, mint string) (err error) {
	if mint == "" {
		return storage.ErrInvalidInput
	}
	defer observe("sadd", time.Now(), &err)

	if err = s.c.rdb.SAdd(ctx, s.key, mint).Err(); err != nil {
		return fmt.Errorf("redis: add processed %s: %w", mint, err)
	}
	return nil
}

// Contains reports whether mint was processed.
func (s *ProcessedTokenStore) Contains(ctx context.Context, mint string) (ok bool, err error) {
	defer observe("sismember", time.Now(), &err)

	ok, err = s.c.rdb.SIsMember(ctx, s.key, mint).Result()
	if err != nil {
		return false, fmt.Errorf("redis: check processed %s: %w", mint, err)
	}
	return ok, nil
}

// All returns every processed mint in no particular order.
func (s *ProcessedTokenStore) All(ctx context.Context) (mints []string, err error) {
	defer observe("smembers", time.Now(), &err)

	mints, err = s.c.rdb.SMembers(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list processed: %w", err)
	}
	return mints, nil
}

func observe(op string, start time.Time, err *error) {
	observability.RecordDBQuery("redis", op, time.Since(start).Seconds(), *err)
}
