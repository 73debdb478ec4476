package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"marketplace-offer-service/internal/domain/item"
	"marketplace-offer-service/internal/domain/offer"
	"marketplace-offer-service/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	itemColumns  = `id, name, description, price, current_price, available, created_at, updated_at`
	offerColumns = `id, item_id, user_id, offer_amount, status, message, created_at, updated_at`
	userColumns  = `id, username, email, full_name, created_at, updated_at`
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func getItem(ctx context.Context, q querier, id uuid.UUID) (item.Item, error) {
	row := q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id.String())
	it, err := scanItem(row)
	if err != nil {
		return item.Item{}, translateError(fmt.Errorf("get item: %w", err), shared.ErrItemNotFound)
	}
	return it, nil
}

func getOffer(ctx context.Context, q querier, id uuid.UUID) (offer.Offer, error) {
	row := q.QueryRowContext(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = ?`, id.String())
	o, err := scanOffer(row)
	if err != nil {
		return offer.Offer{}, translateError(fmt.Errorf("get offer: %w", err), shared.ErrOfferNotFound)
	}
	return o, nil
}

func getUser(ctx context.Context, q querier, id uuid.UUID) (shared.User, error) {
	row := q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id.String())
	user, err := scanUser(row)
	if err != nil {
		return shared.User{}, translateError(fmt.Errorf("get user: %w", err), shared.ErrUserNotFound)
	}
	return user, nil
}

func scanUser(row rowScanner) (shared.User, error) {
	var (
		user      shared.User
		rawID     string
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(&rawID, &user.Username, &user.Email, &user.FullName, &createdAt, &updatedAt)
	if err != nil {
		return shared.User{}, err
	}
	user.ID, err = uuid.Parse(rawID)
	if err != nil {
		return shared.User{}, fmt.Errorf("parse user id: %w", err)
	}
	user.CreatedAt = fromMillis(createdAt)
	user.UpdatedAt = fromMillis(updatedAt)
	return user, nil
}

func listOffers(ctx context.Context, q querier, query string, args ...any) ([]offer.Offer, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateError(fmt.Errorf("list offers: %w", err), nil)
	}
	defer rows.Close()

	offers := make([]offer.Offer, 0)
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		offers = append(offers, o)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(fmt.Errorf("iterate offers: %w", err), nil)
	}
	return offers, nil
}

// execOne runs an UPDATE that must touch exactly one row; notFound is returned otherwise.
func execOne(ctx context.Context, q querier, notFound error, query string, args ...any) error {
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return translateError(fmt.Errorf("update: %w", err), nil)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

func scanItem(row rowScanner) (item.Item, error) {
	var (
		it           item.Item
		rawID        string
		price        string
		currentPrice string
		available    int64
		createdAt    int64
		updatedAt    int64
	)
	if err := row.Scan(&rawID, &it.Name, &it.Description, &price, &currentPrice, &available, &createdAt, &updatedAt); err != nil {
		return item.Item{}, err
	}

	var err error
	if it.ID, err = uuid.Parse(rawID); err != nil {
		return item.Item{}, fmt.Errorf("parse item id: %w", err)
	}
	if it.Price, err = decimal.NewFromString(price); err != nil {
		return item.Item{}, fmt.Errorf("parse item price: %w", err)
	}
	if it.CurrentPrice, err = decimal.NewFromString(currentPrice); err != nil {
		return item.Item{}, fmt.Errorf("parse item current price: %w", err)
	}
	it.Available = available != 0
	it.CreatedAt = fromMillis(createdAt)
	it.UpdatedAt = fromMillis(updatedAt)
	return it, nil
}

func scanOffer(row rowScanner) (offer.Offer, error) {
	var (
		o         offer.Offer
		rawID     string
		rawItem   string
		rawUser   string
		amount    string
		status    string
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&rawID, &rawItem, &rawUser, &amount, &status, &o.Message, &createdAt, &updatedAt); err != nil {
		return offer.Offer{}, err
	}

	var err error
	if o.ID, err = uuid.Parse(rawID); err != nil {
		return offer.Offer{}, fmt.Errorf("parse offer id: %w", err)
	}
	if o.ItemID, err = uuid.Parse(rawItem); err != nil {
		return offer.Offer{}, fmt.Errorf("parse offer item id: %w", err)
	}
	if o.UserID, err = uuid.Parse(rawUser); err != nil {
		return offer.Offer{}, fmt.Errorf("parse offer user id: %w", err)
	}
	if o.Amount, err = decimal.NewFromString(amount); err != nil {
		return offer.Offer{}, fmt.Errorf("parse offer amount: %w", err)
	}
	o.Status = offer.Status(status)
	o.CreatedAt = fromMillis(createdAt)
	o.UpdatedAt = fromMillis(updatedAt)
	return o, nil
}
