package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/passvault/passvault/internal/models"
	"github.com/passvault/passvault/internal/service"
)

type mockCredentialService struct {
	ListFn   func(ctx context.Context, actor service.Actor) ([]models.DecryptedCredential, error)
	SearchFn func(ctx context.Context, actor service.Actor, query string) ([]models.DecryptedCredential, error)
	GetFn    func(ctx context.Context, actor service.Actor, id string) (*models.DecryptedCredential, error)
	CreateFn func(ctx context.Context, actor service.Actor, name, username, password string) (*models.DecryptedCredential, error)
	UpdateFn func(ctx context.Context, actor service.Actor, id, name, username, password string) error
	DeleteFn func(ctx context.Context, actor service.Actor, id string) error
}

func (m *mockCredentialService) List(ctx context.Context, actor service.Actor) ([]models.DecryptedCredential, error) {
	return m.ListFn(ctx, actor)
}

func (m *mockCredentialService) Search(ctx context.Context, actor service.Actor, query string) ([]models.DecryptedCredential, error) {
	return m.SearchFn(ctx, actor, query)
}

func (m *mockCredentialService) Get(ctx context.Context, actor service.Actor, id string) (*models.DecryptedCredential, error) {
	return m.GetFn(ctx, actor, id)
}

func (m *mockCredentialService) Create(ctx context.Context, actor service.Actor, name, username, password string) (*models.DecryptedCredential, error) {
	return m.CreateFn(ctx, actor, name, username, password)
}

func (m *mockCredentialService) Update(ctx context.Context, actor service.Actor, id, name, username, password string) error {
	return m.UpdateFn(ctx, actor, id, name, username, password)
}

func (m *mockCredentialService) Delete(ctx context.Context, actor service.Actor, id string) error {
	return m.DeleteFn(ctx, actor, id)
}

// withURLParam attaches a chi route parameter to the request, standing in for
// the router.
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestCredentialList(t *testing.T) {
	svc := &mockCredentialService{
		ListFn: func(_ context.Context, _ service.Actor) ([]models.DecryptedCredential, error) {
			return []models.DecryptedCredential{
				{ID: "c1", Name: "mail", Username: "a@b.com", Password: "pw"},
			}, nil
		},
	}
	handler := &CredentialHandler{Service: svc}

	r := httptest.NewRequest("GET", "/api/credentials", nil)
	w := httptest.NewRecorder()
	handler.List(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", w.Code)
	}
	var creds []models.DecryptedCredential
	if err := json.Unmarshal(w.Body.Bytes(), &creds); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(creds) != 1 || creds[0].Password != "pw" {
		t.Errorf("response = %+v; want one decrypted credential", creds)
	}
}

func TestCredentialListEmptyIsArray(t *testing.T) {
	svc := &mockCredentialService{
		ListFn: func(context.Context, service.Actor) ([]models.DecryptedCredential, error) {
			return nil, nil
		},
	}
	handler := &CredentialHandler{Service: svc}

	w := httptest.NewRecorder()
	handler.List(w, httptest.NewRequest("GET", "/api/credentials", nil))
	if body := bytes.TrimSpace(w.Body.Bytes()); string(body) != "[]" {
		t.Errorf("empty list body = %s; want []", body)
	}
}

func TestCredentialListWithQuerySearches(t *testing.T) {
	var gotQuery string
	svc := &mockCredentialService{
		SearchFn: func(_ context.Context, _ service.Actor, query string) ([]models.DecryptedCredential, error) {
			gotQuery = query
			return nil, nil
		},
	}
	handler := &CredentialHandler{Service: svc}

	w := httptest.NewRecorder()
	handler.List(w, httptest.NewRequest("GET", "/api/credentials?q=mail", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", w.Code)
	}
	if gotQuery != "mail" {
		t.Errorf("search query = %q; want mail", gotQuery)
	}
}

func TestCredentialGetByID(t *testing.T) {
	svc := &mockCredentialService{
		GetFn: func(_ context.Context, _ service.Actor, id string) (*models.DecryptedCredential, error) {
			if id != "c1" {
				return nil, service.ErrNotFound
			}
			return &models.DecryptedCredential{ID: "c1", Name: "mail", Password: "pw"}, nil
		},
	}
	handler := &CredentialHandler{Service: svc}

	r := withURLParam(httptest.NewRequest("GET", "/api/credentials/c1", nil), "id", "c1")
	w := httptest.NewRecorder()
	handler.Get(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", w.Code)
	}

	r = withURLParam(httptest.NewRequest("GET", "/api/credentials/missing", nil), "id", "missing")
	w = httptest.NewRecorder()
	handler.Get(w, r)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing id status = %d; want 404", w.Code)
	}
}

func TestCredentialCreate(t *testing.T) {
	svc := &mockCredentialService{
		CreateFn: func(_ context.Context, _ service.Actor, name, username, password string) (*models.DecryptedCredential, error) {
			return &models.DecryptedCredential{ID: "c1", Name: name, Username: username, Password: password}, nil
		},
	}
	handler := &CredentialHandler{Service: svc}

	body := bytes.NewBufferString(`{"name":"mail","username":"a@b.com","password":"Sup3r$ecret!"}`)
	w := httptest.NewRecorder()
	handler.Create(w, httptest.NewRequest("POST", "/api/credentials", body))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d; want 201", w.Code)
	}
	var created models.DecryptedCredential
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.Password != "Sup3r$ecret!" {
		t.Errorf("created password = %q; want original", created.Password)
	}
}

func TestCredentialCreateValidationError(t *testing.T) {
	svc := &mockCredentialService{
		CreateFn: func(context.Context, service.Actor, string, string, string) (*models.DecryptedCredential, error) {
			return nil, service.ErrValidation
		},
	}
	handler := &CredentialHandler{Service: svc}

	w := httptest.NewRecorder()
	handler.Create(w, httptest.NewRequest("POST", "/api/credentials", bytes.NewBufferString(`{}`)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d; want 400", w.Code)
	}

	w = httptest.NewRecorder()
	handler.Create(w, httptest.NewRequest("POST", "/api/credentials", bytes.NewBufferString("not json")))
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d; want 400", w.Code)
	}
}

func TestCredentialUpdateAndDelete(t *testing.T) {
	var updatedID, deletedID string
	svc := &mockCredentialService{
		UpdateFn: func(_ context.Context, _ service.Actor, id, _, _, _ string) error {
			updatedID = id
			return nil
		},
		DeleteFn: func(_ context.Context, _ service.Actor, id string) error {
			deletedID = id
			return nil
		},
	}
	handler := &CredentialHandler{Service: svc}

	body := bytes.NewBufferString(`{"name":"mail","username":"a","password":"pw"}`)
	r := withURLParam(httptest.NewRequest("PUT", "/api/credentials/c1", body), "id", "c1")
	w := httptest.NewRecorder()
	handler.Update(w, r)
	if w.Code != http.StatusOK || updatedID != "c1" {
		t.Errorf("Update status = %d, id = %q; want 200, c1", w.Code, updatedID)
	}

	r = withURLParam(httptest.NewRequest("DELETE", "/api/credentials/c1", nil), "id", "c1")
	w = httptest.NewRecorder()
	handler.Delete(w, r)
	if w.Code != http.StatusOK || deletedID != "c1" {
		t.Errorf("Delete status = %d, id = %q; want 200, c1", w.Code, deletedID)
	}
}
