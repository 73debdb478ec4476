package outbound

import (
	"context"

	"marketplace-offer-service/internal/domain/item"
	"marketplace-offer-service/internal/domain/offer"
	"marketplace-offer-service/internal/domain/shared"

	"github.com/google/uuid"
)

//go:generate mockgen -source=repositories.go -destination=mock_repositories.go -package=outbound

// Tx is the set of store operations available inside one transaction.
// Every method returns shared errors (ErrItemNotFound, ErrStoreTimeout, ...) rather than driver errors.
type Tx interface {
	// GetItem loads an item and locks its row until the transaction ends
	GetItem(ctx context.Context, id uuid.UUID) (item.Item, error)

	// GetOffer loads an offer by ID
	GetOffer(ctx context.Context, id uuid.UUID) (offer.Offer, error)

	// GetUser loads a user by ID
	GetUser(ctx context.Context, id uuid.UUID) (shared.User, error)

	// ListPendingOffersForItem returns every PENDING offer on the item, oldest first
	ListPendingOffersForItem(ctx context.Context, itemID uuid.UUID) ([]offer.Offer, error)

	// InsertOffer persists a new offer
	InsertOffer(ctx context.Context, o offer.Offer) error

	// UpdateOfferStatus writes the status and updated_at of an offer snapshot
	UpdateOfferStatus(ctx context.Context, o offer.Offer) error

	// UpdateItemCurrentPrice writes the current price and updated_at of an item snapshot
	UpdateItemCurrentPrice(ctx context.Context, it item.Item) error

	// UpdateItemAvailability writes the available flag and updated_at of an item snapshot
	UpdateItemAvailability(ctx context.Context, it item.Item) error
}

// Store is the transactional store behind the offer engine and the catalog
type Store interface {
	// WithTransaction runs fn inside one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// GetItem retrieves an item by ID without locking it
	GetItem(ctx context.Context, id uuid.UUID) (item.Item, error)

	// GetOffer retrieves an offer by ID
	GetOffer(ctx context.Context, id uuid.UUID) (offer.Offer, error)

	// GetUser retrieves a user by ID
	GetUser(ctx context.Context, id uuid.UUID) (shared.User, error)

	// CreateItem persists a new item
	CreateItem(ctx context.Context, it item.Item) error

	// ListItems lists items newest first, optionally only the available ones
	ListItems(ctx context.Context, availableOnly bool) ([]item.Item, error)

	// FindItemByName returns the newest item whose name matches, ignoring case
	FindItemByName(ctx context.Context, name string) (item.Item, error)

	// UpdateItemDetails writes the name, description and updated_at of an item snapshot.
	// Price, current price and availability are left untouched.
	UpdateItemDetails(ctx context.Context, it item.Item) error

	// CreateUser persists a new user
	CreateUser(ctx context.Context, user shared.User) error

	// ListUsers lists every user, oldest first
	ListUsers(ctx context.Context) ([]shared.User, error)

	// ListOffersForItem lists offers on an item by amount descending, optionally filtered by status
	ListOffersForItem(ctx context.Context, itemID uuid.UUID, status *offer.Status) ([]offer.Offer, error)

	// ListOffersForUser lists a user's offers newest first
	ListOffersForUser(ctx context.Context, userID uuid.UUID) ([]offer.Offer, error)

	// ListOffers lists every offer newest first, optionally filtered by status
	ListOffers(ctx context.Context, status *offer.Status) ([]offer.Offer, error)

	// Close releases the underlying connections
	Close() error
}

// IdempotencyStore remembers which offer a client-supplied idempotency key produced
type IdempotencyStore interface {
	// Recall returns the offer ID recorded for key, if any
	Recall(ctx context.Context, key string) (uuid.UUID, bool, error)

	// Remember records offerID for key unless the key is already taken
	Remember(ctx context.Context, key string, offerID uuid.UUID) error
}
