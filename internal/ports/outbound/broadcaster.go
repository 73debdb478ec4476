package outbound

import (
	"context"

	"marketplace-offer-service/internal/domain/event"

	"github.com/google/uuid"
)

//go:generate mockgen -source=broadcaster.go -destination=mock_broadcaster.go -package=outbound

// EventPublisher accepts domain events after a commit.
// Publish must never block the caller.
type EventPublisher interface {
	Publish(e event.Event)
}

// Conn is a live connection the hub delivers envelopes to
type Conn interface {
	ID() string
	Send(ctx context.Context, env event.Envelope) error
	Close() error
}

// Broadcaster is the subscription control surface used by transports
type Broadcaster interface {
	EventPublisher

	// Register makes conn known to the hub. A firehose connection receives every event.
	Register(ctx context.Context, conn Conn, firehose bool) error

	// Subscribe starts delivering events for itemID to the connection
	Subscribe(ctx context.Context, connID string, itemID uuid.UUID) error

	// Unsubscribe stops delivering events for itemID; the connection stays registered
	Unsubscribe(ctx context.Context, connID string, itemID uuid.UUID) error

	// OnConnectionClosed drops the connection and every subscription it holds
	OnConnectionClosed(ctx context.Context, connID string) error
}
