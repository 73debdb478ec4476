package db

import (
	"context"
	"database/sql"
	"fmt"

	"marketplace-offer-service/internal/domain/shared"

	"github.com/google/uuid"
)

const userColumns = `id, username, email, full_name, created_at, updated_at`

// UserRepository reads and writes users
type UserRepository struct {
	q querier
}

// NewUserRepository creates a new user repository
func NewUserRepository(q querier) *UserRepository {
	return &UserRepository{q: q}
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (shared.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return shared.User{}, shared.ErrUserNotFound
		}
		return shared.User{}, translateError(fmt.Errorf("failed to get user: %w", err), nil)
	}

	return user, nil
}

// List retrieves every user, oldest first
func (r *UserRepository) List(ctx context.Context) ([]shared.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at ASC, username ASC`

	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, translateError(fmt.Errorf("failed to list users: %w", err), nil)
	}
	defer rows.Close()

	users := make([]shared.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(fmt.Errorf("failed to iterate users: %w", err), nil)
	}

	return users, nil
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user shared.User) error {
	query := `
		INSERT INTO users (id, username, email, full_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.q.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.FullName,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return shared.ErrUsernameTaken
		}
		return translateError(fmt.Errorf("failed to create user: %w", err), nil)
	}

	return nil
}

func scanUser(row rowScanner) (shared.User, error) {
	var user shared.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.FullName,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return shared.User{}, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return user, nil
}
