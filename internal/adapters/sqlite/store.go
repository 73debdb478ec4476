// Package sqlite provides a SQLite-backed implementation of the offer store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"marketplace-offer-service/internal/domain/item"
	"marketplace-offer-service/internal/domain/offer"
	"marketplace-offer-service/internal/domain/shared"
	"marketplace-offer-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// Store persists items, offers and users in SQLite. SQLite allows one writer at a time,
// so the store keeps a single connection and transactions queue for it.
type Store struct {
	sqlDB  *sql.DB
	logger zerolog.Logger
}

var _ outbound.Store = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func formatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(shared.MaxAmountScale)
}

// Open opens a SQLite store at path and applies embedded migrations.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)

	if err := applyMigrations(cleanPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	dsn := cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	return &Store{
		sqlDB:  sqlDB,
		logger: logger.With().Str("component", "sqlite_store").Str("path", cleanPath).Logger(),
	}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// WithTransaction runs fn in one transaction on the store's single connection.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx outbound.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return translateError(fmt.Errorf("begin transaction: %w", err), nil)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, txStore{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			s.logger.Error().Err(rbErr).Msg("Rollback failed")
		}
		return translateError(err, nil)
	}

	if err := tx.Commit(); err != nil {
		return translateError(fmt.Errorf("commit transaction: %w", err), nil)
	}
	return nil
}

func (s *Store) GetItem(ctx context.Context, id uuid.UUID) (item.Item, error) {
	return getItem(ctx, s.sqlDB, id)
}

func (s *Store) GetOffer(ctx context.Context, id uuid.UUID) (offer.Offer, error) {
	return getOffer(ctx, s.sqlDB, id)
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (shared.User, error) {
	return getUser(ctx, s.sqlDB, id)
}

// CreateItem inserts one item.
func (s *Store) CreateItem(ctx context.Context, it item.Item) error {
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO items (id, name, description, price, current_price, available, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		it.ID.String(),
		it.Name,
		it.Description,
		formatAmount(it.Price),
		formatAmount(it.CurrentPrice),
		it.Available,
		toMillis(it.CreatedAt),
		toMillis(it.UpdatedAt),
	)
	if err != nil {
		return translateError(fmt.Errorf("create item: %w", err), nil)
	}
	return nil
}

// ListItems lists items newest first.
func (s *Store) ListItems(ctx context.Context, availableOnly bool) ([]item.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items`
	if availableOnly {
		query += ` WHERE available = 1`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.sqlDB.QueryContext(ctx, query)
	if err != nil {
		return nil, translateError(fmt.Errorf("list items: %w", err), nil)
	}
	defer rows.Close()

	items := make([]item.Item, 0)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(fmt.Errorf("iterate items: %w", err), nil)
	}
	return items, nil
}

// FindItemByName returns the newest item whose name matches, ignoring case.
func (s *Store) FindItemByName(ctx context.Context, name string) (item.Item, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE LOWER(name) = LOWER(?) ORDER BY created_at DESC LIMIT 1`,
		name)
	it, err := scanItem(row)
	if err != nil {
		return item.Item{}, translateError(fmt.Errorf("find item: %w", err), shared.ErrItemNotFound)
	}
	return it, nil
}

// UpdateItemDetails rewrites an item's name and description.
func (s *Store) UpdateItemDetails(ctx context.Context, it item.Item) error {
	return execOne(ctx, s.sqlDB, shared.ErrItemNotFound,
		`UPDATE items SET name = ?, description = ?, updated_at = ? WHERE id = ?`,
		it.Name, it.Description, toMillis(it.UpdatedAt), it.ID.String())
}

// CreateUser inserts one user.
func (s *Store) CreateUser(ctx context.Context, user shared.User) error {
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO users (id, username, email, full_name, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID.String(),
		user.Username,
		user.Email,
		user.FullName,
		toMillis(user.CreatedAt),
		toMillis(user.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.ErrUsernameTaken
		}
		return translateError(fmt.Errorf("create user: %w", err), nil)
	}
	return nil
}

// ListUsers lists every user, oldest first.
func (s *Store) ListUsers(ctx context.Context) ([]shared.User, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC, username ASC`)
	if err != nil {
		return nil, translateError(fmt.Errorf("list users: %w", err), nil)
	}
	defer rows.Close()

	users := make([]shared.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(fmt.Errorf("iterate users: %w", err), nil)
	}
	return users, nil
}

// ListOffersForItem lists offers on an item, highest amount first.
func (s *Store) ListOffersForItem(ctx context.Context, itemID uuid.UUID, status *offer.Status) ([]offer.Offer, error) {
	if status != nil {
		return listOffers(ctx, s.sqlDB,
			`SELECT `+offerColumns+` FROM offers WHERE item_id = ? AND status = ?
			 ORDER BY CAST(offer_amount AS REAL) DESC, created_at ASC`,
			itemID.String(), string(*status))
	}
	return listOffers(ctx, s.sqlDB,
		`SELECT `+offerColumns+` FROM offers WHERE item_id = ?
		 ORDER BY CAST(offer_amount AS REAL) DESC, created_at ASC`,
		itemID.String())
}

// ListOffersForUser lists a user's offers, newest first.
func (s *Store) ListOffersForUser(ctx context.Context, userID uuid.UUID) ([]offer.Offer, error) {
	return listOffers(ctx, s.sqlDB,
		`SELECT `+offerColumns+` FROM offers WHERE user_id = ? ORDER BY created_at DESC`,
		userID.String())
}

// ListOffers lists every offer, newest first.
func (s *Store) ListOffers(ctx context.Context, status *offer.Status) ([]offer.Offer, error) {
	if status != nil {
		return listOffers(ctx, s.sqlDB,
			`SELECT `+offerColumns+` FROM offers WHERE status = ? ORDER BY created_at DESC`,
			string(*status))
	}
	return listOffers(ctx, s.sqlDB, `SELECT `+offerColumns+` FROM offers ORDER BY created_at DESC`)
}

// txStore implements outbound.Tx. The single connection already excludes other
// writers, so item reads need no explicit lock.
type txStore struct {
	q querier
}

func (t txStore) GetItem(ctx context.Context, id uuid.UUID) (item.Item, error) {
	return getItem(ctx, t.q, id)
}

func (t txStore) GetOffer(ctx context.Context, id uuid.UUID) (offer.Offer, error) {
	return getOffer(ctx, t.q, id)
}

func (t txStore) GetUser(ctx context.Context, id uuid.UUID) (shared.User, error) {
	return getUser(ctx, t.q, id)
}

func (t txStore) ListPendingOffersForItem(ctx context.Context, itemID uuid.UUID) ([]offer.Offer, error) {
	return listOffers(ctx, t.q,
		`SELECT `+offerColumns+` FROM offers WHERE item_id = ? AND status = ? ORDER BY created_at ASC`,
		itemID.String(), string(offer.StatusPending))
}

func (t txStore) InsertOffer(ctx context.Context, o offer.Offer) error {
	_, err := t.q.ExecContext(
		ctx,
		`INSERT INTO offers (id, item_id, user_id, offer_amount, status, message, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID.String(),
		o.ItemID.String(),
		o.UserID.String(),
		formatAmount(o.Amount),
		string(o.Status),
		o.Message,
		toMillis(o.CreatedAt),
		toMillis(o.UpdatedAt),
	)
	if err != nil {
		return translateError(fmt.Errorf("insert offer: %w", err), nil)
	}
	return nil
}

func (t txStore) UpdateOfferStatus(ctx context.Context, o offer.Offer) error {
	return execOne(ctx, t.q, shared.ErrOfferNotFound,
		`UPDATE offers SET status = ?, updated_at = ? WHERE id = ?`,
		string(o.Status), toMillis(o.UpdatedAt), o.ID.String())
}

func (t txStore) UpdateItemCurrentPrice(ctx context.Context, it item.Item) error {
	return execOne(ctx, t.q, shared.ErrItemNotFound,
		`UPDATE items SET current_price = ?, updated_at = ? WHERE id = ?`,
		formatAmount(it.CurrentPrice), toMillis(it.UpdatedAt), it.ID.String())
}

func (t txStore) UpdateItemAvailability(ctx context.Context, it item.Item) error {
	return execOne(ctx, t.q, shared.ErrItemNotFound,
		`UPDATE items SET available = ?, updated_at = ? WHERE id = ?`,
		it.Available, toMillis(it.UpdatedAt), it.ID.String())
}
