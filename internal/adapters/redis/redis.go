package redis

import (
	"context"
	"time"

	"marketplace-offer-service/internal/config"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

// NewClient creates a Redis client from the Redis section of the configuration.
// Context deadlines bound network I/O, so a caller's send timeout also caps a stalled command.
func NewClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:                  cfg.Redis.Addr,
		Password:              cfg.Redis.Password,
		DB:                    cfg.Redis.DB,
		PoolSize:              cfg.Redis.PoolSize,
		DialTimeout:           cfg.Redis.DialTimeout,
		ReadTimeout:           cfg.Redis.ReadTimeout,
		WriteTimeout:          cfg.Redis.WriteTimeout,
		MaxRetries:            cfg.Redis.MaxRetries,
		ContextTimeoutEnabled: true,
	})
}

// PingRedis tests the Redis connection
func PingRedis(ctx context.Context, client *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	return client.Ping(ctx).Err()
}
