package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/passvault/passvault/internal/audit"
	"github.com/passvault/passvault/internal/crypto"
	"github.com/passvault/passvault/internal/kvstore"
	"github.com/passvault/passvault/internal/middleware"
	"github.com/passvault/passvault/internal/models"
	"github.com/passvault/passvault/internal/repository"
	"github.com/passvault/passvault/internal/service"
	"github.com/passvault/passvault/internal/throttle"
	"go.uber.org/zap"
)

// stubCredentialRepo backs the real CredentialService in router tests.
type stubCredentialRepo struct {
	creds map[string]models.Credential
}

func (s *stubCredentialRepo) GetByID(_ context.Context, owner, id string) (*models.Credential, error) {
	cred, ok := s.creds[id]
	if !ok || cred.Owner != owner {
		return nil, repository.ErrNotFound
	}
	return &cred, nil
}

func (s *stubCredentialRepo) GetAllByOwner(_ context.Context, owner string) ([]models.Credential, error) {
	var out []models.Credential
	for _, cred := range s.creds {
		if cred.Owner == owner {
			out = append(out, cred)
		}
	}
	return out, nil
}

func (s *stubCredentialRepo) SearchByName(ctx context.Context, owner, _ string) ([]models.Credential, error) {
	return s.GetAllByOwner(ctx, owner)
}

func (s *stubCredentialRepo) Create(_ context.Context, cred models.Credential) error {
	s.creds[cred.ID] = cred
	return nil
}

func (s *stubCredentialRepo) Update(_ context.Context, cred models.Credential) error {
	s.creds[cred.ID] = cred
	return nil
}

func (s *stubCredentialRepo) UpdateEnvelope(_ context.Context, _, id, envelope string, keyVersion int) error {
	cred := s.creds[id]
	cred.Envelope = envelope
	cred.KeyVersion = keyVersion
	s.creds[id] = cred
	return nil
}

func (s *stubCredentialRepo) Delete(_ context.Context, _, id string) error {
	delete(s.creds, id)
	return nil
}

type stubKeyResolver struct{}

func (stubKeyResolver) GetUserByKey(_ context.Context, key string) (string, error) {
	if key != "alice-key" {
		return "", repository.ErrKeyNotFound
	}
	return "alice", nil
}

func newTestRouter(t *testing.T, repo *stubCredentialRepo) http.Handler {
	t.Helper()
	keys, err := crypto.NewKeyring(map[int][]byte{
		1: []byte("first-master-secret-0123456789abcdef"),
		2: []byte("second-master-secret-0123456789abcd"),
	}, 2, nil)
	if err != nil {
		t.Fatalf("NewKeyring error: %v", err)
	}
	vault := crypto.NewVault(keys, zap.NewNop())
	credService := service.NewCredentialService(repo, vault, audit.Nop{}, zap.NewNop())

	store := kvstore.NewMemoryStore()
	rateLimiter := throttle.NewAPIRateLimiter(store, audit.Nop{}, zap.NewNop(), throttle.RateLimitConfig{})
	authHandler := newAuthHandler(&mockAuthService{
		VerifyUserFn: func(context.Context, string, string) (*models.User, error) {
			return &models.User{Login: "alice"}, nil
		},
	})
	return NewRouter(
		authHandler,
		&CredentialHandler{Service: credService},
		stubKeyResolver{},
		middleware.WithRateLimit(rateLimiter, zap.NewNop()),
		audit.Nop{},
		zap.NewNop(),
	)
}

func apiRequest(method, target, apiKey string) *http.Request {
	r := httptest.NewRequest(method, target, nil)
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("User-Agent", "test-agent")
	r.RemoteAddr = "10.0.0.1:33000"
	if apiKey != "" {
		r.Header.Set("Authorization", "Api-Key "+apiKey)
	}
	return r
}

func TestRouterRequiresAPIKey(t *testing.T) {
	router := newTestRouter(t, &stubCredentialRepo{creds: map[string]models.Credential{}})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, apiRequest("GET", "/api/credentials", ""))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no key status = %d; want 401", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, apiRequest("GET", "/api/credentials", "wrong-key"))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong key status = %d; want 401", w.Code)
	}
}

func TestRouterCorruptEnvelopeStillServes(t *testing.T) {
	repo := &stubCredentialRepo{creds: map[string]models.Credential{
		"c1": {ID: "c1", Owner: "alice", Name: "bank", Username: "alice", Envelope: "Y29ycnVwdGVkLWVudmVsb3BlLWJ5dGVz", KeyVersion: 2},
	}}
	router := newTestRouter(t, repo)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, apiRequest("GET", "/api/credentials", "alice-key"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200 despite the corrupt envelope", w.Code)
	}
	var creds []models.DecryptedCredential
	if err := json.Unmarshal(w.Body.Bytes(), &creds); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(creds) != 1 || creds[0].Password != crypto.DecryptionErrorSentinel {
		t.Errorf("response = %+v; want the decryption-error sentinel", creds)
	}
}

func TestRouterAutoRekeysOnRead(t *testing.T) {
	keys, err := crypto.NewKeyring(map[int][]byte{
		1: []byte("first-master-secret-0123456789abcdef"),
		2: []byte("second-master-secret-0123456789abcd"),
	}, 2, nil)
	if err != nil {
		t.Fatalf("NewKeyring error: %v", err)
	}
	vault := crypto.NewVault(keys, zap.NewNop())
	oldEnvelope, err := vault.EncryptWithVersion("old-pw", 1)
	if err != nil {
		t.Fatalf("EncryptWithVersion error: %v", err)
	}
	repo := &stubCredentialRepo{creds: map[string]models.Credential{
		"c1": {ID: "c1", Owner: "alice", Name: "mail", Username: "a", Envelope: oldEnvelope, KeyVersion: 1},
	}}
	router := newTestRouter(t, repo)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, apiRequest("GET", "/api/credentials/c1", "alice-key"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", w.Code)
	}
	var cred models.DecryptedCredential
	if err := json.Unmarshal(w.Body.Bytes(), &cred); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if cred.Password != "old-pw" {
		t.Errorf("password = %q; want old-pw", cred.Password)
	}
	if stored := repo.creds["c1"]; stored.KeyVersion != 2 {
		t.Errorf("stored key version after read = %d; want 2", stored.KeyVersion)
	}
}

func TestRouterCreateThenSearchRoundTrip(t *testing.T) {
	repo := &stubCredentialRepo{creds: map[string]models.Credential{}}
	router := newTestRouter(t, repo)

	body := bytes.NewBufferString(`{"name":"mail","username":"a@b.com","password":"Sup3r$ecret!"}`)
	create := httptest.NewRequest("POST", "/api/credentials", body)
	create.Header.Set("Content-Type", "application/json")
	create.Header.Set("User-Agent", "test-agent")
	create.RemoteAddr = "10.0.0.1:33000"
	create.Header.Set("Authorization", "Api-Key alice-key")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, create)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d; want 201", w.Code)
	}

	// The stored record holds an envelope, never the plaintext.
	for _, cred := range repo.creds {
		if cred.Envelope == "Sup3r$ecret!" || cred.Envelope == "" {
			t.Fatalf("stored envelope = %q; plaintext must never be persisted", cred.Envelope)
		}
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, apiRequest("GET", "/api/credentials?q=mail", "alice-key"))
	if w.Code != http.StatusOK {
		t.Fatalf("search status = %d; want 200", w.Code)
	}
	var creds []models.DecryptedCredential
	if err := json.Unmarshal(w.Body.Bytes(), &creds); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(creds) != 1 || creds[0].Password != "Sup3r$ecret!" {
		t.Errorf("search result = %+v; want the decrypted original", creds)
	}
}

func TestRouterRateLimitHeaders(t *testing.T) {
	router := newTestRouter(t, &stubCredentialRepo{creds: map[string]models.Credential{}})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, apiRequest("GET", "/api/credentials", "alice-key"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", w.Code)
	}
	if w.Header().Get("X-RateLimit-Remaining-Minute") == "" {
		t.Error("missing X-RateLimit-Remaining-Minute header")
	}
	if w.Header().Get("X-RateLimit-Remaining-Hour") == "" {
		t.Error("missing X-RateLimit-Remaining-Hour header")
	}
}

func TestRouterRateLimitRejects(t *testing.T) {
	repo := &stubCredentialRepo{creds: map[string]models.Credential{}}
	keys, err := crypto.NewKeyring(map[int][]byte{1: []byte("first-master-secret-0123456789abcdef")}, 1, nil)
	if err != nil {
		t.Fatalf("NewKeyring error: %v", err)
	}
	credService := service.NewCredentialService(repo, crypto.NewVault(keys, zap.NewNop()), audit.Nop{}, zap.NewNop())
	rateLimiter := throttle.NewAPIRateLimiter(kvstore.NewMemoryStore(), audit.Nop{}, zap.NewNop(),
		throttle.RateLimitConfig{MaxPerMinute: 2, MaxPerHour: 100})
	router := NewRouter(
		newAuthHandler(&mockAuthService{VerifyUserFn: func(context.Context, string, string) (*models.User, error) {
			return nil, nil
		}}),
		&CredentialHandler{Service: credService},
		stubKeyResolver{},
		middleware.WithRateLimit(rateLimiter, zap.NewNop()),
		audit.Nop{},
		zap.NewNop(),
	)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, apiRequest("GET", "/api/credentials", "alice-key"))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d; want 200", i+1, w.Code)
		}
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, apiRequest("GET", "/api/credentials", "alice-key"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("over-limit status = %d; want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header on 429")
	}
}
