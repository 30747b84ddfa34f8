package service

import (
	"context"
	"errors"

	"github.com/passvault/passvault/internal/models"
	"github.com/passvault/passvault/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// UserRepository defines the persistence operations required by the
// authentication service.
type UserRepository interface {
	// GetByLogin fetches a user by login.
	GetByLogin(ctx context.Context, login string) (*models.User, error)
}

// AuthService verifies login credentials.
type AuthService struct {
	repo UserRepository
}

// NewAuthService constructs a new AuthService using the provided repository.
func NewAuthService(repo UserRepository) *AuthService {
	return &AuthService{repo: repo}
}

// VerifyUser checks login and password, returning the user on success.
// An unknown login and a wrong password both return (nil, nil): the caller
// must not be able to distinguish the two, to avoid account enumeration.
func (s *AuthService) VerifyUser(ctx context.Context, login, password string) (*models.User, error) {
	user, err := s.repo.GetByLogin(ctx, login)
	if errors.Is(err, repository.ErrNotFound) {
		// Burn comparable time so the miss is not observable.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)) != nil {
		return nil, nil
	}
	return user, nil
}

// dummyHash is a valid bcrypt hash of an unguessable value, used to equalize
// timing between unknown-user and wrong-password failures.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")
