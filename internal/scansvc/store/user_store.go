package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/avvvet/csss-services/internal/scansvc/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserStore struct {
	db *pgxpool.Pool
}

func NewUserStore(db *pgxpool.Pool) *UserStore {
	return &UserStore{db: db}
}

const userColumns = `id, name, email, password, role, is_active, created_at, updated_at`

func (r *UserStore) CreateUser(ctx context.Context, user models.User) (int64, error) {
	var id int64

	query := `
        INSERT INTO users (name, email, password, role, is_active)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id;
    `

	err := r.db.QueryRow(ctx, query, user.Name, user.Email, user.Password, user.Role, user.IsActive).Scan(&id)
	if err != nil {
		if isUniqueViolation(err, "unique_user_email") {
			return 0, ErrDuplicateEmail
		}
		return 0, fmt.Errorf("could not create user: %w", err)
	}

	return id, nil
}

// GetByID returns nil, nil when the user does not exist.
func (r *UserStore) GetByID(ctx context.Context, id int64) (*models.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetByEmail returns nil, nil when the user does not exist.
func (r *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	return scanUser(row)
}

func scanUser(row pgx.Row) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.Password,
		&u.Role,
		&u.IsActive,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return u, nil
}
