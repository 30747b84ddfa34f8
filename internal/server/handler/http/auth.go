// Package http provides HTTP handlers for login and credential management.
package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/passvault/passvault/internal/audit"
	"github.com/passvault/passvault/internal/models"
	"github.com/passvault/passvault/internal/throttle"
	"github.com/passvault/passvault/internal/twofactor"
)

// AuthService defines the authentication operations required by the login
// handler.
type AuthService interface {
	// VerifyUser checks login and password; (nil, nil) means the attempt
	// failed without distinguishing why.
	VerifyUser(ctx context.Context, login, password string) (*models.User, error)
}

// KeyIssuer hands out the per-user API key after a successful login.
type KeyIssuer interface {
	EnsureForUser(ctx context.Context, login string) (string, error)
}

// AuthHandler handles login requests, guarded by the login throttle.
type AuthHandler struct {
	AuthService AuthService
	Keys        KeyIssuer
	Throttle    *throttle.LoginThrottle
	Events      audit.Recorder
}

// LoginRequest represents the JSON payload for login.
type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Login handles POST /api/login.
//
// The client fingerprint is checked against the login throttle first; locked
// clients get 423 without their credentials being examined. A failed attempt
// is recorded and answered with the remaining attempt count. Success clears
// the throttle state and returns the user's API key. When the user requires a
// second factor, the response says so and withholds the key until the
// (external) verification flow completes.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ip := throttle.ClientIP(r)
	fp := throttle.LoginFingerprint(ip, r.UserAgent())

	locked, err := h.Throttle.IsLocked(ctx, fp)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if locked {
		http.Error(w, "too many failed attempts, try again later", http.StatusLocked)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Login == "" || req.Password == "" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	user, err := h.AuthService.VerifyUser(ctx, req.Login, req.Password)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if user == nil {
		attempts, err := h.Throttle.RecordFailure(ctx, fp)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		h.Events.LoginFailed(fp, ip, attempts)
		remaining, _ := h.Throttle.RemainingAttempts(ctx, fp)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":             "invalid credentials",
			"remaining_attempts": remaining,
		})
		return
	}

	if err := h.Throttle.ClearOnSuccess(ctx, fp); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	settings := twofactor.Settings{Enabled: user.TOTPEnabled, Confirmed: user.TOTPConfirmed}
	if twofactor.RequiresSecondFactor(settings) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "second factor required",
			"user":   user.Login,
		})
		return
	}

	key, err := h.Keys.EnsureForUser(ctx, user.Login)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"user":    user.Login,
		"api_key": key,
	})
}
