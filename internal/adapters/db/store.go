package db

import (
	"context"
	"database/sql"

	"marketplace-offer-service/internal/domain/item"
	"marketplace-offer-service/internal/domain/offer"
	"marketplace-offer-service/internal/domain/shared"
	"marketplace-offer-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store is the PostgreSQL implementation of outbound.Store
type Store struct {
	conn   *Connection
	items  *ItemRepository
	offers *OfferRepository
	users  *UserRepository
	logger zerolog.Logger
}

type StoreParams struct {
	Conn   *Connection
	Logger zerolog.Logger
}

var _ outbound.Store = (*Store)(nil)

// NewStore creates a store whose repositories run directly on the connection pool
func NewStore(params StoreParams) *Store {
	db := params.Conn.GetDB()
	return &Store{
		conn:   params.Conn,
		items:  NewItemRepository(db),
		offers: NewOfferRepository(db),
		users:  NewUserRepository(db),
		logger: params.Logger.With().Str("component", "postgres_store").Logger(),
	}
}

// WithTransaction runs fn in a READ COMMITTED transaction. Item reads through the Tx
// take a row lock, which serializes writers on the same item.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx outbound.Tx) error) error {
	opts := &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	err := s.conn.ExecuteTransaction(ctx, opts, func(tx *sql.Tx) error {
		return fn(ctx, newTxStore(tx))
	})
	if err != nil {
		translated := translateError(err, nil)
		if shared.KindOf(translated) == shared.KindInternal {
			s.logger.Error().Err(err).Msg("Transaction failed")
		}
		return translated
	}
	return nil
}

func (s *Store) GetItem(ctx context.Context, id uuid.UUID) (item.Item, error) {
	return s.items.GetByID(ctx, id, false)
}

func (s *Store) GetOffer(ctx context.Context, id uuid.UUID) (offer.Offer, error) {
	return s.offers.GetByID(ctx, id)
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (shared.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *Store) CreateItem(ctx context.Context, it item.Item) error {
	return s.items.Create(ctx, it)
}

func (s *Store) ListItems(ctx context.Context, availableOnly bool) ([]item.Item, error) {
	return s.items.List(ctx, availableOnly)
}

func (s *Store) FindItemByName(ctx context.Context, name string) (item.Item, error) {
	return s.items.FindByName(ctx, name)
}

func (s *Store) UpdateItemDetails(ctx context.Context, it item.Item) error {
	return s.items.UpdateDetails(ctx, it)
}

func (s *Store) CreateUser(ctx context.Context, user shared.User) error {
	return s.users.Create(ctx, user)
}

func (s *Store) ListUsers(ctx context.Context) ([]shared.User, error) {
	return s.users.List(ctx)
}

func (s *Store) ListOffersForItem(ctx context.Context, itemID uuid.UUID, status *offer.Status) ([]offer.Offer, error) {
	return s.offers.GetByItemID(ctx, itemID, status)
}

func (s *Store) ListOffersForUser(ctx context.Context, userID uuid.UUID) ([]offer.Offer, error) {
	return s.offers.GetByUserID(ctx, userID)
}

func (s *Store) ListOffers(ctx context.Context, status *offer.Status) ([]offer.Offer, error) {
	return s.offers.List(ctx, status)
}

// Close closes the connection pool
func (s *Store) Close() error {
	return s.conn.Close()
}

// txStore implements outbound.Tx over one *sql.Tx
type txStore struct {
	items  *ItemRepository
	offers *OfferRepository
	users  *UserRepository
}

func newTxStore(tx *sql.Tx) *txStore {
	return &txStore{
		items:  NewItemRepository(tx),
		offers: NewOfferRepository(tx),
		users:  NewUserRepository(tx),
	}
}

func (t *txStore) GetItem(ctx context.Context, id uuid.UUID) (item.Item, error) {
	return t.items.GetByID(ctx, id, true)
}

func (t *txStore) GetOffer(ctx context.Context, id uuid.UUID) (offer.Offer, error) {
	return t.offers.GetByID(ctx, id)
}

func (t *txStore) GetUser(ctx context.Context, id uuid.UUID) (shared.User, error) {
	return t.users.GetByID(ctx, id)
}

func (t *txStore) ListPendingOffersForItem(ctx context.Context, itemID uuid.UUID) ([]offer.Offer, error) {
	return t.offers.GetPendingByItemID(ctx, itemID)
}

func (t *txStore) InsertOffer(ctx context.Context, o offer.Offer) error {
	return t.offers.Create(ctx, o)
}

func (t *txStore) UpdateOfferStatus(ctx context.Context, o offer.Offer) error {
	return t.offers.UpdateStatus(ctx, o)
}

func (t *txStore) UpdateItemCurrentPrice(ctx context.Context, it item.Item) error {
	return t.items.UpdateCurrentPrice(ctx, it)
}

func (t *txStore) UpdateItemAvailability(ctx context.Context, it item.Item) error {
	return t.items.UpdateAvailability(ctx, it)
}
