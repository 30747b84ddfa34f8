package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/passvault/passvault/internal/middleware"
	"github.com/passvault/passvault/internal/models"
	"github.com/passvault/passvault/internal/service"
	"github.com/passvault/passvault/internal/throttle"
)

// CredentialService defines the credential operations required by the
// CredentialHandler.
type CredentialService interface {
	List(ctx context.Context, actor service.Actor) ([]models.DecryptedCredential, error)
	Search(ctx context.Context, actor service.Actor, query string) ([]models.DecryptedCredential, error)
	Get(ctx context.Context, actor service.Actor, id string) (*models.DecryptedCredential, error)
	Create(ctx context.Context, actor service.Actor, name, username, password string) (*models.DecryptedCredential, error)
	Update(ctx context.Context, actor service.Actor, id, name, username, password string) error
	Delete(ctx context.Context, actor service.Actor, id string) error
}

// CredentialHandler handles the credential CRUD and search endpoints.
type CredentialHandler struct {
	Service CredentialService
}

// CredentialRequest represents the JSON payload for create and update.
type CredentialRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// List handles GET /api/credentials. With a ?q= parameter it performs a
// case-insensitive name search; without one it lists all of the caller's
// credentials.
func (h *CredentialHandler) List(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(r)

	var (
		creds []models.DecryptedCredential
		err   error
	)
	if query := r.URL.Query().Get("q"); query != "" {
		creds, err = h.Service.Search(r.Context(), actor, query)
	} else {
		creds, err = h.Service.List(r.Context(), actor)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if creds == nil {
		creds = []models.DecryptedCredential{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(creds)
}

// Get handles GET /api/credentials/{id}.
func (h *CredentialHandler) Get(w http.ResponseWriter, r *http.Request) {
	cred, err := h.Service.Get(r.Context(), actorFromRequest(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(cred)
}

// Create handles POST /api/credentials.
func (h *CredentialHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	cred, err := h.Service.Create(r.Context(), actorFromRequest(r), req.Name, req.Username, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(cred)
}

// Update handles PUT /api/credentials/{id}.
func (h *CredentialHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req CredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	err := h.Service.Update(r.Context(), actorFromRequest(r), chi.URLParam(r, "id"), req.Name, req.Username, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Delete handles DELETE /api/credentials/{id}.
func (h *CredentialHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.Service.Delete(r.Context(), actorFromRequest(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
}

func actorFromRequest(r *http.Request) service.Actor {
	return service.Actor{
		Login: middleware.GetUserIDFromContext(r.Context()),
		IP:    throttle.ClientIP(r),
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
