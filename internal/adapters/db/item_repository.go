package db

import (
	"context"
	"database/sql"
	"fmt"

	"marketplace-offer-service/internal/domain/item"
	"marketplace-offer-service/internal/domain/shared"

	"github.com/google/uuid"
)

const itemColumns = `id, name, description, price, current_price, available, created_at, updated_at`

// ItemRepository reads and writes items
type ItemRepository struct {
	q querier
}

// NewItemRepository creates a new item repository
func NewItemRepository(q querier) *ItemRepository {
	return &ItemRepository{q: q}
}

// Create creates a new item
func (r *ItemRepository) Create(ctx context.Context, it item.Item) error {
	query := `
		INSERT INTO items (id, name, description, price, current_price, available, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.q.ExecContext(ctx, query,
		it.ID,
		it.Name,
		it.Description,
		it.Price,
		it.CurrentPrice,
		it.Available,
		it.CreatedAt,
		it.UpdatedAt,
	)
	if err != nil {
		return translateError(fmt.Errorf("failed to create item: %w", err), nil)
	}

	return nil
}

// GetByID retrieves an item by ID. With forUpdate the row stays locked until the transaction ends.
func (r *ItemRepository) GetByID(ctx context.Context, id uuid.UUID, forUpdate bool) (item.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	it, err := scanItem(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return item.Item{}, shared.ErrItemNotFound
		}
		return item.Item{}, translateError(fmt.Errorf("failed to get item: %w", err), nil)
	}

	return it, nil
}

// List lists items newest first
func (r *ItemRepository) List(ctx context.Context, availableOnly bool) ([]item.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items`
	if availableOnly {
		query += ` WHERE available = TRUE`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, translateError(fmt.Errorf("failed to list items: %w", err), nil)
	}
	defer rows.Close()

	items := make([]item.Item, 0)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(fmt.Errorf("failed to iterate items: %w", err), nil)
	}

	return items, nil
}

// FindByName retrieves the newest item whose name matches, ignoring case
func (r *ItemRepository) FindByName(ctx context.Context, name string) (item.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE LOWER(name) = LOWER($1) ORDER BY created_at DESC LIMIT 1`

	it, err := scanItem(r.q.QueryRowContext(ctx, query, name))
	if err != nil {
		if err == sql.ErrNoRows {
			return item.Item{}, shared.ErrItemNotFound
		}
		return item.Item{}, translateError(fmt.Errorf("failed to find item: %w", err), nil)
	}

	return it, nil
}

// UpdateDetails updates the name and description of an item
func (r *ItemRepository) UpdateDetails(ctx context.Context, it item.Item) error {
	query := `UPDATE items SET name = $2, description = $3, updated_at = $4 WHERE id = $1`
	return r.exec(ctx, query, it.ID, it.Name, it.Description, it.UpdatedAt)
}

// UpdateCurrentPrice updates the current price of an item
func (r *ItemRepository) UpdateCurrentPrice(ctx context.Context, it item.Item) error {
	query := `UPDATE items SET current_price = $2, updated_at = $3 WHERE id = $1`
	return r.exec(ctx, query, it.ID, it.CurrentPrice, it.UpdatedAt)
}

// UpdateAvailability updates the available flag of an item
func (r *ItemRepository) UpdateAvailability(ctx context.Context, it item.Item) error {
	query := `UPDATE items SET available = $2, updated_at = $3 WHERE id = $1`
	return r.exec(ctx, query, it.ID, it.Available, it.UpdatedAt)
}

func (r *ItemRepository) exec(ctx context.Context, query string, args ...any) error {
	result, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return translateError(fmt.Errorf("failed to update item: %w", err), nil)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return shared.ErrItemNotFound
	}

	return nil
}

func scanItem(row rowScanner) (item.Item, error) {
	var it item.Item
	err := row.Scan(
		&it.ID,
		&it.Name,
		&it.Description,
		&it.Price,
		&it.CurrentPrice,
		&it.Available,
		&it.CreatedAt,
		&it.UpdatedAt,
	)
	if err != nil {
		return item.Item{}, err
	}
	it.CreatedAt = it.CreatedAt.UTC()
	it.UpdatedAt = it.UpdatedAt.UTC()
	return it, nil
}
