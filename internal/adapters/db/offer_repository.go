package db

import (
	"context"
	"database/sql"
	"fmt"

	"marketplace-offer-service/internal/domain/offer"
	"marketplace-offer-service/internal/domain/shared"

	"github.com/google/uuid"
)

const offerColumns = `id, item_id, user_id, offer_amount, status, message, created_at, updated_at`

// OfferRepository reads and writes offers
type OfferRepository struct {
	q querier
}

// NewOfferRepository creates a new offer repository
func NewOfferRepository(q querier) *OfferRepository {
	return &OfferRepository{q: q}
}

// Create inserts a new offer
func (r *OfferRepository) Create(ctx context.Context, o offer.Offer) error {
	query := `
		INSERT INTO offers (id, item_id, user_id, offer_amount, status, message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.q.ExecContext(ctx, query,
		o.ID,
		o.ItemID,
		o.UserID,
		o.Amount,
		string(o.Status),
		o.Message,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		return translateError(fmt.Errorf("failed to create offer: %w", err), nil)
	}

	return nil
}

// GetByID retrieves an offer by ID
func (r *OfferRepository) GetByID(ctx context.Context, id uuid.UUID) (offer.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE id = $1`

	o, err := scanOffer(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return offer.Offer{}, shared.ErrOfferNotFound
		}
		return offer.Offer{}, translateError(fmt.Errorf("failed to get offer: %w", err), nil)
	}

	return o, nil
}

// GetPendingByItemID retrieves the pending offers on an item, oldest first
func (r *OfferRepository) GetPendingByItemID(ctx context.Context, itemID uuid.UUID) ([]offer.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE item_id = $1 AND status = $2 ORDER BY created_at ASC`
	return r.list(ctx, query, itemID, string(offer.StatusPending))
}

// GetByItemID retrieves the offers on an item, highest amount first
func (r *OfferRepository) GetByItemID(ctx context.Context, itemID uuid.UUID, status *offer.Status) ([]offer.Offer, error) {
	if status != nil {
		query := `SELECT ` + offerColumns + ` FROM offers WHERE item_id = $1 AND status = $2 ORDER BY offer_amount DESC, created_at ASC`
		return r.list(ctx, query, itemID, string(*status))
	}
	query := `SELECT ` + offerColumns + ` FROM offers WHERE item_id = $1 ORDER BY offer_amount DESC, created_at ASC`
	return r.list(ctx, query, itemID)
}

// GetByUserID retrieves the offers a user placed, newest first
func (r *OfferRepository) GetByUserID(ctx context.Context, userID uuid.UUID) ([]offer.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE user_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, userID)
}

// List retrieves every offer newest first, optionally only those with the given status
func (r *OfferRepository) List(ctx context.Context, status *offer.Status) ([]offer.Offer, error) {
	if status != nil {
		query := `SELECT ` + offerColumns + ` FROM offers WHERE status = $1 ORDER BY created_at DESC`
		return r.list(ctx, query, string(*status))
	}
	query := `SELECT ` + offerColumns + ` FROM offers ORDER BY created_at DESC`
	return r.list(ctx, query)
}

// UpdateStatus updates the status of an offer
func (r *OfferRepository) UpdateStatus(ctx context.Context, o offer.Offer) error {
	query := `UPDATE offers SET status = $2, updated_at = $3 WHERE id = $1`

	result, err := r.q.ExecContext(ctx, query, o.ID, string(o.Status), o.UpdatedAt)
	if err != nil {
		return translateError(fmt.Errorf("failed to update offer: %w", err), nil)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return shared.ErrOfferNotFound
	}

	return nil
}

func (r *OfferRepository) list(ctx context.Context, query string, args ...any) ([]offer.Offer, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateError(fmt.Errorf("failed to list offers: %w", err), nil)
	}
	defer rows.Close()

	offers := make([]offer.Offer, 0)
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan offer: %w", err)
		}
		offers = append(offers, o)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(fmt.Errorf("failed to iterate offers: %w", err), nil)
	}

	return offers, nil
}

func scanOffer(row rowScanner) (offer.Offer, error) {
	var (
		o      offer.Offer
		status string
	)
	err := row.Scan(
		&o.ID,
		&o.ItemID,
		&o.UserID,
		&o.Amount,
		&status,
		&o.Message,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return offer.Offer{}, err
	}
	o.Status = offer.Status(status)
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return o, nil
}
