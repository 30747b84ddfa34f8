package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/passvault/passvault/internal/models"
)

// PostgresUserRepository implements user lookups against PostgreSQL.
type PostgresUserRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresUserRepository creates a repository using the provided *sql.DB.
func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{DB: db}
}

// GetByLogin fetches a user by login.
func (r *PostgresUserRepository) GetByLogin(ctx context.Context, login string) (*models.User, error) {
	var user models.User
	err := r.DB.QueryRowContext(ctx, `
		SELECT login, password_hash, totp_enabled, totp_confirmed FROM users WHERE login = $1
	`, login).Scan(&user.Login, &user.PasswordHash, &user.TOTPEnabled, &user.TOTPConfirmed)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetByLogin: %w", err)
	}
	return &user, nil
}
