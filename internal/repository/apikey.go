package repository

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrKeyNotFound is returned when an API key does not exist.
var ErrKeyNotFound = errors.New("api key not found")

// PostgresAPIKeyRepository implements API key persistence against PostgreSQL.
type PostgresAPIKeyRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresAPIKeyRepository creates a repository using the provided *sql.DB.
func NewPostgresAPIKeyRepository(db *sql.DB) *PostgresAPIKeyRepository {
	return &PostgresAPIKeyRepository{DB: db}
}

// GetUserByKey resolves an API key to the owning user's login.
func (r *PostgresAPIKeyRepository) GetUserByKey(ctx context.Context, key string) (string, error) {
	var login string
	err := r.DB.QueryRowContext(ctx, `
		SELECT user_login FROM api_keys WHERE key = $1
	`, key).Scan(&login)
	if err == sql.ErrNoRows {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("GetUserByKey: %w", err)
	}
	return login, nil
}

// EnsureForUser returns the user's API key, generating and storing one if the
// user has none yet. Each user holds exactly one key.
func (r *PostgresAPIKeyRepository) EnsureForUser(ctx context.Context, login string) (string, error) {
	var key string
	err := r.DB.QueryRowContext(ctx, `
		SELECT key FROM api_keys WHERE user_login = $1
	`, login).Scan(&key)
	if err == nil {
		return key, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("EnsureForUser: %w", err)
	}

	key, err = generateKey()
	if err != nil {
		return "", err
	}
	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO api_keys (key, user_login) VALUES ($1, $2)
		ON CONFLICT (user_login) DO NOTHING
	`, key, login)
	if err != nil {
		return "", fmt.Errorf("EnsureForUser insert: %w", err)
	}

	// Another request may have won the insert race; read back the stored key.
	err = r.DB.QueryRowContext(ctx, `
		SELECT key FROM api_keys WHERE user_login = $1
	`, login).Scan(&key)
	if err != nil {
		return "", fmt.Errorf("EnsureForUser readback: %w", err)
	}
	return key, nil
}

// generateKey produces a 64-hex-character random API key.
func generateKey() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return hex.EncodeToString(raw), nil
}
