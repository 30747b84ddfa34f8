// Package repository provides persistence implementations for credentials,
// users, and API keys using a PostgreSQL database.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/passvault/passvault/internal/models"
)

// ErrNotFound is returned when a record does not exist or does not belong to
// the requesting owner.
var ErrNotFound = errors.New("record not found")

// PostgresCredentialRepository implements credential persistence against a
// PostgreSQL database. Every query is pre-filtered by owner; the crypto core
// never sees records of other users.
type PostgresCredentialRepository struct {
	// DB is the database handle for executing queries and transactions.
	DB *sql.DB
}

// NewPostgresCredentialRepository creates a repository using the provided *sql.DB.
func NewPostgresCredentialRepository(db *sql.DB) *PostgresCredentialRepository {
	return &PostgresCredentialRepository{DB: db}
}

// GetByID fetches a single credential by ID for the given owner.
func (r *PostgresCredentialRepository) GetByID(ctx context.Context, owner, id string) (*models.Credential, error) {
	var cred models.Credential
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, user_login, name, username, password, key_version FROM credentials
		WHERE user_login = $1 AND id = $2 AND deleted = false
	`, owner, id).Scan(&cred.ID, &cred.Owner, &cred.Name, &cred.Username, &cred.Envelope, &cred.KeyVersion)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return &cred, nil
}

// GetAllByOwner fetches all credentials belonging to the given owner.
func (r *PostgresCredentialRepository) GetAllByOwner(ctx context.Context, owner string) ([]models.Credential, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, user_login, name, username, password, key_version FROM credentials
		WHERE user_login = $1 AND deleted = false ORDER BY name
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("GetAllByOwner: %w", err)
	}
	defer rows.Close()
	return scanCredentials(rows)
}

// SearchByName fetches the owner's credentials whose name contains the query,
// case-insensitively.
func (r *PostgresCredentialRepository) SearchByName(ctx context.Context, owner, query string) ([]models.Credential, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, user_login, name, username, password, key_version FROM credentials
		WHERE user_login = $1 AND deleted = false AND name ILIKE '%' || $2 || '%' ORDER BY name
	`, owner, query)
	if err != nil {
		return nil, fmt.Errorf("SearchByName: %w", err)
	}
	defer rows.Close()
	return scanCredentials(rows)
}

// Create inserts a new credential record.
func (r *PostgresCredentialRepository) Create(ctx context.Context, cred models.Credential) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO credentials (id, user_login, name, username, password, key_version)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, cred.ID, cred.Owner, cred.Name, cred.Username, cred.Envelope, cred.KeyVersion)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// Update rewrites name, username, envelope, and key version of an existing
// record owned by cred.Owner.
func (r *PostgresCredentialRepository) Update(ctx context.Context, cred models.Credential) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE credentials SET name = $3, username = $4, password = $5, key_version = $6
		WHERE user_login = $1 AND id = $2 AND deleted = false
	`, cred.Owner, cred.ID, cred.Name, cred.Username, cred.Envelope, cred.KeyVersion)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateEnvelope persists a re-encrypted envelope and its key version in a
// single transaction, leaving the rest of the record untouched. Used by both
// auto-rekey-on-read and the bulk rekeyer; record-level atomicity keeps the
// stored key_version consistent with the stored envelope.
func (r *PostgresCredentialRepository) UpdateEnvelope(ctx context.Context, owner, id, envelope string, keyVersion int) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE credentials SET password = $3, key_version = $4
		WHERE user_login = $1 AND id = $2 AND deleted = false
	`, owner, id, envelope, keyVersion)
	if err != nil {
		return fmt.Errorf("UpdateEnvelope: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Delete soft-deletes a credential; the purge loop removes it for good later.
func (r *PostgresCredentialRepository) Delete(ctx context.Context, owner, id string) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE credentials SET deleted = true, deleted_at = $3
		WHERE user_login = $1 AND id = $2 AND deleted = false
	`, owner, id, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of live credential records across all owners.
func (r *PostgresCredentialRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM credentials WHERE deleted = false
	`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("Count: %w", err)
	}
	return count, nil
}

// CountWithVersion returns the number of live records stored at exactly the
// given key version.
func (r *PostgresCredentialRepository) CountWithVersion(ctx context.Context, version int) (int64, error) {
	var count int64
	err := r.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM credentials WHERE deleted = false AND key_version = $1
	`, version).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("CountWithVersion: %w", err)
	}
	return count, nil
}

// ListBelowVersion returns all live records whose key version is below the
// given version, across all owners. Administrative path for the bulk rekeyer.
func (r *PostgresCredentialRepository) ListBelowVersion(ctx context.Context, version int) ([]models.Credential, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, user_login, name, username, password, key_version FROM credentials
		WHERE deleted = false AND key_version < $1 ORDER BY id
	`, version)
	if err != nil {
		return nil, fmt.Errorf("ListBelowVersion: %w", err)
	}
	defer rows.Close()
	return scanCredentials(rows)
}

func scanCredentials(rows *sql.Rows) ([]models.Credential, error) {
	var creds []models.Credential
	for rows.Next() {
		var cred models.Credential
		if err := rows.Scan(&cred.ID, &cred.Owner, &cred.Name, &cred.Username, &cred.Envelope, &cred.KeyVersion); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		creds = append(creds, cred)
	}
	return creds, rows.Err()
}
