package inbound

import (
	"context"

	"marketplace-offer-service/internal/domain/item"
	"marketplace-offer-service/internal/domain/offer"
	"marketplace-offer-service/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=offer_service.go -destination=mock_offer_service.go -package=inbound

// OfferService defines the bidding operations
type OfferService interface {
	// SubmitBid places a new offer and makes it the leading offer on the item
	SubmitBid(ctx context.Context, req SubmitBidRequest) (offer.Offer, error)

	// AcceptOffer accepts a pending offer and closes the item
	AcceptOffer(ctx context.Context, offerID uuid.UUID) (offer.Offer, error)

	// RejectOffer rejects a pending offer
	RejectOffer(ctx context.Context, offerID uuid.UUID) (offer.Offer, error)

	// GetOffer retrieves an offer by ID
	GetOffer(ctx context.Context, offerID uuid.UUID) (offer.Offer, error)

	// ListOffersForItem retrieves the offers on an item, optionally filtered by status
	ListOffersForItem(ctx context.Context, itemID uuid.UUID, status *offer.Status) ([]offer.Offer, error)

	// ListOffersForUser retrieves the offers a user has placed
	ListOffersForUser(ctx context.Context, userID uuid.UUID) ([]offer.Offer, error)

	// ListOffers retrieves every offer, optionally filtered by status
	ListOffers(ctx context.Context, status *offer.Status) ([]offer.Offer, error)
}

// CatalogService defines item and user operations
type CatalogService interface {
	CreateItem(ctx context.Context, req CreateItemRequest) (item.Item, error)
	GetItem(ctx context.Context, itemID uuid.UUID) (item.Item, error)
	ListItems(ctx context.Context, availableOnly bool) ([]item.Item, error)
	FindItemByName(ctx context.Context, name string) (item.Item, error)
	UpdateItem(ctx context.Context, itemID uuid.UUID, req UpdateItemRequest) (item.Item, error)
	CreateUser(ctx context.Context, req CreateUserRequest) (shared.User, error)
	GetUser(ctx context.Context, userID uuid.UUID) (shared.User, error)
	ListUsers(ctx context.Context) ([]shared.User, error)
}

// request to submit a bid
type SubmitBidRequest struct {
	ItemID         uuid.UUID       `json:"item_id"`
	UserID         uuid.UUID       `json:"user_id"`
	Amount         decimal.Decimal `json:"amount"`
	Message        string          `json:"message"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// request to list a new item
type CreateItemRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
}

// request to edit an item's listing text; nil fields are left as they are
type UpdateItemRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// request to create a user
type CreateUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}
