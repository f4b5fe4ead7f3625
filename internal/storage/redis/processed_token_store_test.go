package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"solana-entry-gate/internal/storage"
)

func setupTestClient(t *testing.T) (*Client, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	c, err := New(ctx, ClientConfig{Addr: fmt.Sprintf("%s:%s", host, port.Port()), KeyPrefix: "test"})
	require.NoError(t, err)

	return c, func() {
		_ = c.Close()
		_ = container.Terminate(ctx)
	}
}

func TestProcessedTokenStore(t *testing.T) {
	c, cleanup := setupTestClient(t)
	defer cleanup()

	ctx := context.Background()
	store := NewProcessedTokenStore(c, "user-1")
	other := NewProcessedTokenStore(c, "user-2")

	ok, err := store.Contains(ctx, "MintA")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Add(ctx, "MintA"))
	require.NoError(t, store.Add(ctx, "MintA"))
	require.NoError(t, store.Add(ctx, "MintB"))

	ok, err = store.Contains(ctx, "MintA")
	require.NoError(t, err)
	assert.True(t, ok)

	all, err := store.All(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"MintA", "MintB"}, all)

	ok, err = other.Contains(ctx, "MintA")
	require.NoError(t, err)
	assert.False(t, ok, "sets are scoped per user")

	assert.ErrorIs(t, store.Add(ctx, ""), storage.ErrInvalidInput)
}

func TestClientKey(t *testing.T) {
	c := &Client{prefix: "entrygate"}
	assert.Equal(t, "entrygate:processed:u1", c.key("processed", "u1"))
}
