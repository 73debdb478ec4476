package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"marketplace-offer-service/internal/config"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestIdempotencyStore(t *testing.T, ttl time.Duration) *IdempotencyStore {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping Redis integration test")
	}

	cfg := &config.Config{}
	cfg.Redis.Addr = addr
	client := NewClient(cfg)
	t.Cleanup(func() { client.Close() })
	require.NoError(t, PingRedis(context.Background(), client))

	return NewIdempotencyStore(IdempotencyStoreParams{RedisClient: client, TTL: ttl, Logger: zerolog.Nop()})
}

func TestIdempotencyStoreRecallUnknownKey(t *testing.T) {
	store := newTestIdempotencyStore(t, time.Minute)

	_, found, err := store.Recall(context.Background(), uuid.NewString())
	require.NoError(t, err)
	require.False(t, found)
}

func TestIdempotencyStoreFirstRecordWins(t *testing.T) {
	store := newTestIdempotencyStore(t, time.Minute)
	ctx := context.Background()
	key := uuid.NewString()

	first, second := uuid.New(), uuid.New()
	require.NoError(t, store.Remember(ctx, key, first))
	require.NoError(t, store.Remember(ctx, key, second))

	got, found, err := store.Recall(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, first, got)
}

func TestIdempotencyStoreExpires(t *testing.T) {
	store := newTestIdempotencyStore(t, time.Second)
	ctx := context.Background()
	key := uuid.NewString()

	require.NoError(t, store.Remember(ctx, key, uuid.New()))
	require.Eventually(t, func() bool {
		_, found, err := store.Recall(ctx, key)
		return err == nil && !found
	}, 3*time.Second, 100*time.Millisecond)
}
