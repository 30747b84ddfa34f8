// Package http provides HTTP routing and middleware configuration
// for the passvault service.
package http

import (
	"net/http"

	"github.com/passvault/passvault/internal/audit"
	"github.com/passvault/passvault/internal/middleware"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs the HTTP handler serving the passvault API.
//
// Routes:
//
//	POST   /api/login                → authHandler.Login (throttled inside)
//	GET    /api/credentials[?q=...]  → credHandler.List / Search
//	POST   /api/credentials          → credHandler.Create
//	GET    /api/credentials/{id}     → credHandler.Get
//	PUT    /api/credentials/{id}     → credHandler.Update
//	DELETE /api/credentials/{id}     → credHandler.Delete
//
// Middleware chain (applied in order):
//  1. AllowContentType("application/json") — rejects non-JSON bodies
//  2. WithRequestLogging(logger)           — logs incoming requests
//  3. APIKeyAuth                           — credential routes only
//  4. rateLimit                            — credential routes only
func NewRouter(
	authHandler *AuthHandler,
	credHandler *CredentialHandler,
	keys middleware.KeyResolver,
	rateLimit func(http.Handler) http.Handler,
	events audit.Recorder,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Only allow requests with Content-Type: application/json
	r.Use(chiMiddleware.AllowContentType("application/json"))

	// Log each request and its metadata
	r.Use(middleware.WithRequestLogging(logger))

	// Mount API routes
	r.Route("/api", func(r chi.Router) {
		// Public endpoint; protected by the login throttle internally
		r.Post("/login", authHandler.Login)

		// Protected group: requires a valid API key, then the rate limiter
		r.Group(func(r chi.Router) {
			r.Use(middleware.APIKeyAuth(keys, events, logger))
			r.Use(rateLimit)

			r.Get("/credentials", credHandler.List)
			r.Post("/credentials", credHandler.Create)
			r.Get("/credentials/{id}", credHandler.Get)
			r.Put("/credentials/{id}", credHandler.Update)
			r.Delete("/credentials/{id}", credHandler.Delete)
		})
	})

	return r
}
