package broadcaster

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"testing"
	"time"

	"marketplace-offer-service/internal/adapters/hub"
	"marketplace-offer-service/internal/domain/event"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestItemChannel(t *testing.T) {
	itemID := uuid.MustParse("7f1c2a9e-5b3d-4c1e-9a2f-0d6e8b4c3a21")
	require.Equal(t, "offers:item:7f1c2a9e-5b3d-4c1e-9a2f-0d6e8b4c3a21", ItemChannel(itemID))
}

func newTestRelay(t *testing.T) *RedisRelay {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping Redis relay test")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return NewRedisRelay(RedisRelayParams{RedisClient: client, Logger: zerolog.Nop()})
}

func TestRedisRelayRepublishesItemEvents(t *testing.T) {
	relay := newTestRelay(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	itemID := uuid.New()
	messages, err := relay.Listen(ctx, ItemChannel(itemID), GlobalChannel)
	require.NoError(t, err)

	at := time.UnixMilli(1_700_000_000_000)
	require.NoError(t, relay.Send(ctx, event.Wrap(event.PriceUpdate{ItemID: itemID, NewPrice: decimal.RequireFromString("60.00")}, at)))
	require.NoError(t, relay.Send(ctx, event.Wrap(event.ItemListed{ItemID: uuid.New(), Name: "Lamp", Price: decimal.RequireFromString("10.00")}, at)))

	first := <-messages
	require.Equal(t, event.TypePriceUpdate, first.Type)
	require.Equal(t, at.UnixMilli(), first.Timestamp)

	var update event.PriceUpdate
	require.NoError(t, json.Unmarshal(first.Payload, &update))
	require.Equal(t, itemID, update.ItemID)
	require.True(t, update.NewPrice.Equal(decimal.RequireFromString("60.00")))

	second := <-messages
	require.Equal(t, event.TypeItemListed, second.Type)
}

func TestRedisRelayClosedRejectsSends(t *testing.T) {
	relay := NewRedisRelay(RedisRelayParams{RedisClient: redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), Logger: zerolog.Nop()})
	require.Equal(t, RelayConnID, relay.ID())
	require.NoError(t, relay.Close())
	require.Error(t, relay.Send(context.Background(), event.Wrap(event.ItemListed{ItemID: uuid.New()}, time.Now())))
}

// stalledRedis accepts connections and never answers, so every command hangs until its deadline
func stalledRedis(t *testing.T) *redis.Client {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		var held []net.Conn
		defer func() {
			for _, conn := range held {
				conn.Close()
			}
		}()
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			held = append(held, conn)
		}
	}()

	client := redis.NewClient(&redis.Options{
		Addr:                  listener.Addr().String(),
		ContextTimeoutEnabled: true,
		MaxRetries:            -1,
		DialTimeout:           time.Second,
		ReadTimeout:           5 * time.Second,
		WriteTimeout:          5 * time.Second,
	})
	t.Cleanup(func() {
		client.Close()
		listener.Close()
	})
	return client
}

func (r *RedisRelay) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func TestRedisRelayStalledPublishDropsEvent(t *testing.T) {
	relay := NewRedisRelay(RedisRelayParams{RedisClient: stalledRedis(t), Logger: zerolog.Nop()})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, relay.Send(ctx, event.Wrap(event.ItemListed{ItemID: uuid.New()}, time.Now())))
	require.False(t, relay.isClosed())
}

func TestRedisRelayStaysRegisteredWhileRedisStalls(t *testing.T) {
	h := hub.New(hub.Params{MailboxSize: 1, SendTimeout: 50 * time.Millisecond, Logger: zerolog.Nop()})
	hubCtx, stopHub := context.WithCancel(context.Background())
	go h.Run(hubCtx)
	t.Cleanup(func() {
		stopHub()
		<-h.Done()
	})

	relay := NewRedisRelay(RedisRelayParams{RedisClient: stalledRedis(t), Logger: zerolog.Nop()})
	ctx := context.Background()
	require.NoError(t, h.Register(ctx, relay, true))

	itemID := uuid.New()
	for i := 0; i < 20; i++ {
		h.Publish(event.PriceUpdate{ItemID: itemID, NewPrice: decimal.RequireFromString("70.00")})
	}
	time.Sleep(300 * time.Millisecond)

	require.False(t, relay.isClosed(), "relay survives stalled publishes and a full mailbox")
	require.ErrorIs(t, h.Register(ctx, NewRedisRelay(RedisRelayParams{RedisClient: stalledRedis(t), Logger: zerolog.Nop()}), true),
		hub.ErrConnectionAlreadyRegistered)
}
