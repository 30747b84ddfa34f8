// Package service provides business logic for credential management and
// login verification, delegating persistence to repository interfaces and
// password protection to the crypto vault.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/passvault/passvault/internal/audit"
	"github.com/passvault/passvault/internal/crypto"
	"github.com/passvault/passvault/internal/models"
	"github.com/passvault/passvault/internal/repository"
	"go.uber.org/zap"
)

// ErrValidation is returned for malformed input, before anything reaches the
// crypto layer.
var ErrValidation = errors.New("validation failed")

// ErrNotFound mirrors the repository not-found error at the service boundary.
var ErrNotFound = repository.ErrNotFound

// Actor identifies who performs an operation, for audit events. IP is the
// client address, not stored with the record.
type Actor struct {
	Login string
	IP    string
}

// CredentialRepository defines the persistence operations needed by the
// CredentialService. Every method is pre-filtered by owner.
type CredentialRepository interface {
	GetByID(ctx context.Context, owner, id string) (*models.Credential, error)
	GetAllByOwner(ctx context.Context, owner string) ([]models.Credential, error)
	SearchByName(ctx context.Context, owner, query string) ([]models.Credential, error)
	Create(ctx context.Context, cred models.Credential) error
	Update(ctx context.Context, cred models.Credential) error
	UpdateEnvelope(ctx context.Context, owner, id, envelope string, keyVersion int) error
	Delete(ctx context.Context, owner, id string) error
}

// CredentialService implements credential CRUD and search with transparent
// envelope encryption and auto-rekey-on-read.
type CredentialService struct {
	repo   CredentialRepository
	vault  *crypto.Vault
	events audit.Recorder
	log    *zap.Logger
}

// NewCredentialService constructs a CredentialService.
func NewCredentialService(repo CredentialRepository, vault *crypto.Vault, events audit.Recorder, log *zap.Logger) *CredentialService {
	return &CredentialService{repo: repo, vault: vault, events: events, log: log}
}

// List returns all of the actor's credentials with passwords decrypted.
// Undecryptable envelopes yield the decryption-error sentinel instead of
// failing the request.
func (s *CredentialService) List(ctx context.Context, actor Actor) ([]models.DecryptedCredential, error) {
	creds, err := s.repo.GetAllByOwner(ctx, actor.Login)
	if err != nil {
		return nil, err
	}
	decrypted, ids := s.decryptAll(ctx, creds)
	s.events.CredentialAccessed(actor.Login, ids, actor.IP)
	return decrypted, nil
}

// Search returns the actor's credentials whose name matches the query,
// with passwords decrypted.
func (s *CredentialService) Search(ctx context.Context, actor Actor, query string) ([]models.DecryptedCredential, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: empty search query", ErrValidation)
	}
	creds, err := s.repo.SearchByName(ctx, actor.Login, query)
	if err != nil {
		return nil, err
	}
	decrypted, ids := s.decryptAll(ctx, creds)
	s.events.CredentialSearch(actor.Login, query, len(decrypted), actor.IP)
	s.events.CredentialAccessed(actor.Login, ids, actor.IP)
	return decrypted, nil
}

// Get returns a single credential with the password decrypted.
func (s *CredentialService) Get(ctx context.Context, actor Actor, id string) (*models.DecryptedCredential, error) {
	cred, err := s.repo.GetByID(ctx, actor.Login, id)
	if err != nil {
		return nil, err
	}
	decrypted := s.decryptOne(ctx, *cred)
	s.events.CredentialAccessed(actor.Login, []string{cred.ID}, actor.IP)
	return &decrypted, nil
}

// Create stores a new credential, encrypting the password under the current
// key version.
func (s *CredentialService) Create(ctx context.Context, actor Actor, name, username, password string) (*models.DecryptedCredential, error) {
	if name == "" || username == "" {
		return nil, fmt.Errorf("%w: name and username are required", ErrValidation)
	}
	envelope, version, err := s.vault.EncryptForStorage(password)
	if err != nil {
		return nil, err
	}
	cred := models.Credential{
		ID:         uuid.NewString(),
		Owner:      actor.Login,
		Name:       name,
		Username:   username,
		Envelope:   envelope,
		KeyVersion: version,
	}
	if err := s.repo.Create(ctx, cred); err != nil {
		return nil, err
	}
	s.events.CredentialCreated(actor.Login, name, actor.IP)
	return &models.DecryptedCredential{ID: cred.ID, Name: name, Username: username, Password: password}, nil
}

// Update rewrites an existing credential. The password is always re-encrypted
// under the current key version with a fresh salt, even when unchanged.
func (s *CredentialService) Update(ctx context.Context, actor Actor, id, name, username, password string) error {
	if name == "" || username == "" {
		return fmt.Errorf("%w: name and username are required", ErrValidation)
	}
	existing, err := s.repo.GetByID(ctx, actor.Login, id)
	if err != nil {
		return err
	}
	envelope, version, err := s.vault.EncryptForStorage(password)
	if err != nil {
		return err
	}
	existing.Name = name
	existing.Username = username
	existing.Envelope = envelope
	existing.KeyVersion = version
	if err := s.repo.Update(ctx, *existing); err != nil {
		return err
	}
	s.events.CredentialUpdated(actor.Login, id, name, actor.IP)
	return nil
}

// Delete removes a credential.
func (s *CredentialService) Delete(ctx context.Context, actor Actor, id string) error {
	cred, err := s.repo.GetByID(ctx, actor.Login, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, actor.Login, id); err != nil {
		return err
	}
	s.events.CredentialDeleted(actor.Login, id, cred.Name, actor.IP)
	return nil
}

func (s *CredentialService) decryptAll(ctx context.Context, creds []models.Credential) ([]models.DecryptedCredential, []string) {
	decrypted := make([]models.DecryptedCredential, 0, len(creds))
	ids := make([]string, 0, len(creds))
	for _, cred := range creds {
		decrypted = append(decrypted, s.decryptOne(ctx, cred))
		ids = append(ids, cred.ID)
	}
	return decrypted, ids
}

// decryptOne decrypts a credential's envelope, persisting the rekeyed
// envelope when the vault signals one. Decryption failure degrades to the
// sentinel value; rekey persistence failure is logged and swallowed, never
// affecting the returned plaintext.
func (s *CredentialService) decryptOne(ctx context.Context, cred models.Credential) models.DecryptedCredential {
	out := models.DecryptedCredential{ID: cred.ID, Name: cred.Name, Username: cred.Username}

	password, rekeyed, err := s.vault.DecryptFromStorage(cred.Envelope, cred.KeyVersion)
	if err != nil {
		s.log.Error("failed to decrypt credential envelope",
			zap.String("credential_id", cred.ID),
			zap.Int("key_version", cred.KeyVersion),
			zap.Error(err),
		)
		out.Password = crypto.DecryptionErrorSentinel
		return out
	}
	out.Password = password

	if rekeyed != nil {
		err := s.repo.UpdateEnvelope(ctx, cred.Owner, cred.ID, rekeyed.Envelope, rekeyed.KeyVersion)
		if err != nil {
			s.log.Warn("failed to persist rekeyed envelope",
				zap.String("credential_id", cred.ID),
				zap.Int("to_version", rekeyed.KeyVersion),
				zap.Error(err),
			)
		}
	}
	return out
}
