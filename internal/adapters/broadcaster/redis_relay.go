package broadcaster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"marketplace-offer-service/internal/domain/event"
	"marketplace-offer-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	RelayConnID   = "redis-relay"
	GlobalChannel = "offers:global"
)

// ItemChannel returns the Redis channel carrying events for one item
func ItemChannel(itemID uuid.UUID) string {
	return fmt.Sprintf("offers:item:%s", itemID.String())
}

// RelayedEnvelope is an envelope as read back from Redis
type RelayedEnvelope struct {
	Type      event.Type      `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

// RedisRelay is a firehose hub connection that republishes every envelope on Redis
// pub/sub for consumers outside this process.
type RedisRelay struct {
	client *redis.Client
	logger zerolog.Logger

	mu     sync.Mutex
	closed bool
}

type RedisRelayParams struct {
	RedisClient *redis.Client
	Logger      zerolog.Logger
}

var _ outbound.Conn = (*RedisRelay)(nil)

func NewRedisRelay(params RedisRelayParams) *RedisRelay {
	return &RedisRelay{
		client: params.RedisClient,
		logger: params.Logger.With().Str("component", "redis_relay").Logger(),
	}
}

func (r *RedisRelay) ID() string {
	return RelayConnID
}

// Send publishes env on its item channel, or the global channel for global events.
// Redis failures and stalls past the hub's send deadline are logged and the envelope is
// dropped; only a closed relay reports an error.
func (r *RedisRelay) Send(ctx context.Context, env event.Envelope) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return errors.New("relay closed")
	}

	channelName := GlobalChannel
	if !env.Global() {
		channelName = ItemChannel(env.ItemID())
	}

	eventJSON, err := json.Marshal(env)
	if err != nil {
		r.logger.Error().Err(err).Str("event_type", string(env.Type)).Msg("Failed to marshal event")
		return nil
	}

	result := r.client.Publish(ctx, channelName, eventJSON)
	if err := result.Err(); err != nil {
		r.logger.Error().
			Err(err).
			Str("channel_name", channelName).
			Str("event_type", string(env.Type)).
			Bool("deadline_exceeded", ctx.Err() != nil).
			Msg("Failed to publish to Redis, dropping event")
		return nil
	}

	r.logger.Debug().
		Str("event_type", string(env.Type)).
		Str("channel_name", channelName).
		Int64("subscriber_count", result.Val()).
		Msg("Relayed event")
	return nil
}

func (r *RedisRelay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		r.logger.Warn().Msg("Redis relay closed")
	}
	return nil
}

// Listen subscribes to the given Redis channels and decodes relayed envelopes until ctx is done
func (r *RedisRelay) Listen(ctx context.Context, channels ...string) (<-chan RelayedEnvelope, error) {
	pubsub := r.client.Subscribe(ctx, channels...)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to Redis channels: %w", err)
	}

	out := make(chan RelayedEnvelope, 64)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env RelayedEnvelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					r.logger.Error().Err(err).Str("channel_name", msg.Channel).Msg("Failed to unmarshal Redis message")
					continue
				}
				select {
				case out <- env:
				default:
					r.logger.Warn().Str("channel_name", msg.Channel).Msg("Listener channel full, dropping event")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
