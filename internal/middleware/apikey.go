// Package middleware provides HTTP middlewares for authentication, request
// logging, and API rate limiting.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/passvault/passvault/internal/audit"
	"github.com/passvault/passvault/internal/repository"
	"github.com/passvault/passvault/internal/throttle"
	"go.uber.org/zap"
)

type ctxKey string

const userKey ctxKey = "user"

// KeyResolver resolves an API key to the owning user's login.
type KeyResolver interface {
	GetUserByKey(ctx context.Context, key string) (string, error)
}

// APIKeyAuth enforces API-key authentication on every request it wraps.
//
// Clients present the key as "Authorization: Api-Key <key>". On success the
// owning user's login is stored in the request context as the authenticated
// user ID. Invalid and missing keys both yield 401 without revealing which
// part failed.
func APIKeyAuth(keys KeyResolver, events audit.Recorder, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}
			key, ok := strings.CutPrefix(header, "Api-Key ")
			if !ok || key == "" {
				http.Error(w, `invalid authorization header, expected "Api-Key <key>"`, http.StatusUnauthorized)
				return
			}

			login, err := keys.GetUserByKey(r.Context(), key)
			if err != nil {
				if errors.Is(err, repository.ErrKeyNotFound) {
					log.Warn("invalid api key attempt", zap.String("ip", throttle.ClientIP(r)))
					http.Error(w, "invalid api key", http.StatusUnauthorized)
					return
				}
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}

			events.APIKeyUsed(login, throttle.ClientIP(r))
			ctx := context.WithValue(r.Context(), userKey, login)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserIDFromContext extracts the authenticated user's login from the
// request context. Returns an empty string if not found.
func GetUserIDFromContext(ctx context.Context) string {
	val := ctx.Value(userKey)
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}
