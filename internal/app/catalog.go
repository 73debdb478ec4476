package app

import (
	"context"
	"strings"
	"time"

	"marketplace-offer-service/internal/domain/event"
	"marketplace-offer-service/internal/domain/item"
	"marketplace-offer-service/internal/domain/shared"
	"marketplace-offer-service/internal/ports/inbound"
	"marketplace-offer-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CatalogService implements item and user management
type CatalogService struct {
	store     outbound.Store
	publisher outbound.EventPublisher
	now       func() time.Time
	logger    zerolog.Logger
}

type CatalogServiceParams struct {
	Store     outbound.Store
	Publisher outbound.EventPublisher
	Clock     func() time.Time
	Logger    zerolog.Logger
}

var _ inbound.CatalogService = (*CatalogService)(nil)

// NewCatalogService creates a new catalog service
func NewCatalogService(params CatalogServiceParams) *CatalogService {
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &CatalogService{
		store:     params.Store,
		publisher: params.Publisher,
		now:       clock,
		logger:    params.Logger.With().Str("component", "catalog_service").Logger(),
	}
}

// CreateItem lists a new item and announces it to every watcher
func (service *CatalogService) CreateItem(ctx context.Context, req inbound.CreateItemRequest) (item.Item, error) {
	service.logger.Info().
		Str("name", req.Name).
		Str("price", req.Price.String()).
		Msg("Attempting to create item")

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return item.Item{}, shared.ErrNameRequired
	}
	if !req.Price.IsPositive() {
		return item.Item{}, shared.ErrPriceNotPositive
	}
	if shared.ExceedsScale(req.Price) {
		return item.Item{}, shared.ErrPricePrecision
	}
	if shared.ExceedsMax(req.Price) {
		return item.Item{}, shared.ErrPriceTooLarge
	}

	created := item.New(name, strings.TrimSpace(req.Description), req.Price, service.now())
	if err := service.store.CreateItem(ctx, created); err != nil {
		service.logger.Error().Err(err).Str("item_id", created.ID.String()).Msg("Failed to create item")
		return item.Item{}, err
	}

	service.logger.Info().
		Str("item_id", created.ID.String()).
		Str("name", created.Name).
		Msg("Item created successfully")

	if service.publisher != nil {
		service.publisher.Publish(event.ItemListed{
			ItemID: created.ID,
			Name:   created.Name,
			Price:  created.Price,
		})
	}
	return created, nil
}

// GetItem retrieves an item by ID
func (service *CatalogService) GetItem(ctx context.Context, itemID uuid.UUID) (item.Item, error) {
	if itemID == uuid.Nil {
		return item.Item{}, shared.ErrItemIDRequired
	}
	return service.store.GetItem(ctx, itemID)
}

// ListItems lists items, newest first
func (service *CatalogService) ListItems(ctx context.Context, availableOnly bool) ([]item.Item, error) {
	return service.store.ListItems(ctx, availableOnly)
}

// FindItemByName returns the newest item whose name matches, ignoring case and surrounding spaces
func (service *CatalogService) FindItemByName(ctx context.Context, name string) (item.Item, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return item.Item{}, shared.ErrNameRequired
	}
	return service.store.FindItemByName(ctx, name)
}

// UpdateItem edits an item's name and description. Prices and availability belong
// to the offer engine and cannot be changed here.
func (service *CatalogService) UpdateItem(ctx context.Context, itemID uuid.UUID, req inbound.UpdateItemRequest) (item.Item, error) {
	if itemID == uuid.Nil {
		return item.Item{}, shared.ErrItemIDRequired
	}
	if req.Name == nil && req.Description == nil {
		return item.Item{}, shared.ErrInvalidRequest
	}

	current, err := service.store.GetItem(ctx, itemID)
	if err != nil {
		return item.Item{}, err
	}

	name, description := current.Name, current.Description
	if req.Name != nil {
		name = strings.TrimSpace(*req.Name)
		if name == "" {
			return item.Item{}, shared.ErrNameRequired
		}
	}
	if req.Description != nil {
		description = strings.TrimSpace(*req.Description)
	}

	if err := service.store.UpdateItemDetails(ctx, current.WithDetails(name, description, service.now())); err != nil {
		service.logger.Error().Err(err).Str("item_id", itemID.String()).Msg("Failed to update item")
		return item.Item{}, err
	}

	service.logger.Info().
		Str("item_id", itemID.String()).
		Str("name", name).
		Msg("Item updated successfully")

	// Re-read so the returned snapshot carries any price change made meanwhile.
	return service.store.GetItem(ctx, itemID)
}

// CreateUser registers a new user
func (service *CatalogService) CreateUser(ctx context.Context, req inbound.CreateUserRequest) (shared.User, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return shared.User{}, shared.ErrUsernameRequired
	}

	now := service.now()
	user := shared.User{
		ID:        uuid.New(),
		Username:  username,
		Email:     strings.TrimSpace(req.Email),
		FullName:  strings.TrimSpace(req.FullName),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := service.store.CreateUser(ctx, user); err != nil {
		service.logger.Error().Err(err).Str("username", username).Msg("Failed to create user")
		return shared.User{}, err
	}

	service.logger.Info().
		Str("user_id", user.ID.String()).
		Str("username", user.Username).
		Msg("User created successfully")
	return user, nil
}

// GetUser retrieves a user by ID
func (service *CatalogService) GetUser(ctx context.Context, userID uuid.UUID) (shared.User, error) {
	if userID == uuid.Nil {
		return shared.User{}, shared.ErrUserIDRequired
	}
	return service.store.GetUser(ctx, userID)
}

// ListUsers lists every registered user
func (service *CatalogService) ListUsers(ctx context.Context) ([]shared.User, error) {
	return service.store.ListUsers(ctx)
}
