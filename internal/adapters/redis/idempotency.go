package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace-offer-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const idempotencyKeyPrefix = "offers:idempotency:"

// IdempotencyStore records which offer an idempotency key produced
type IdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

type IdempotencyStoreParams struct {
	RedisClient *redis.Client
	TTL         time.Duration
	Logger      zerolog.Logger
}

var _ outbound.IdempotencyStore = (*IdempotencyStore)(nil)

func NewIdempotencyStore(params IdempotencyStoreParams) *IdempotencyStore {
	return &IdempotencyStore{
		client: params.RedisClient,
		ttl:    params.TTL,
		logger: params.Logger.With().Str("component", "idempotency_store").Logger(),
	}
}

// Recall returns the offer recorded for key
func (s *IdempotencyStore) Recall(ctx context.Context, key string) (uuid.UUID, bool, error) {
	raw, err := s.client.Get(ctx, idempotencyKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to read idempotency key: %w", err)
	}

	offerID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("corrupt idempotency record for %q: %w", key, err)
	}
	return offerID, true, nil
}

// Remember stores offerID under key. An existing record wins.
func (s *IdempotencyStore) Remember(ctx context.Context, key string, offerID uuid.UUID) error {
	stored, err := s.client.SetNX(ctx, idempotencyKeyPrefix+key, offerID.String(), s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to write idempotency key: %w", err)
	}
	if !stored {
		s.logger.Debug().Str("idempotency_key", key).Msg("Idempotency key already recorded")
	}
	return nil
}
