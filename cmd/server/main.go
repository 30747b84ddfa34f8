// Package main initializes and starts the passvault HTTP(S) server,
// setting up configuration, logging, database and Redis connections,
// the encryption keyring, repositories, services, and handlers.
package main

import (
	"cmp"
	"context"
	"fmt"
	"time"

	nethttp "net/http"

	"github.com/passvault/passvault/internal/audit"
	"github.com/passvault/passvault/internal/config"
	"github.com/passvault/passvault/internal/crypto"
	"github.com/passvault/passvault/internal/db"
	"github.com/passvault/passvault/internal/kvstore"
	"github.com/passvault/passvault/internal/logger"
	"github.com/passvault/passvault/internal/middleware"
	"github.com/passvault/passvault/internal/repository"
	"github.com/passvault/passvault/internal/server/handler/http"
	"github.com/passvault/passvault/internal/service"
	"github.com/passvault/passvault/internal/throttle"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	// Parse command-line and environment configuration.
	options := config.Parse()

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init("Info"); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log

	// Build the encryption keyring. Missing secrets are fatal at startup,
	// never per-request.
	masterKeys, err := options.MasterKeyBytes()
	if err != nil {
		zapLogger.Fatal("cannot parse master keys", zap.Error(err))
	}
	keyring, err := crypto.NewKeyring(masterKeys, options.CurrentKeyVersion, []byte(options.LegacySecret))
	if err != nil {
		zapLogger.Fatal("cannot init keyring", zap.Error(err))
	}
	for _, weak := range keyring.WeakSecrets() {
		zapLogger.Warn("master secret below recommended length", zap.Int("key_version", weak))
	}
	vault := crypto.NewVault(keyring, zapLogger)

	// Initialize PostgreSQL connection.
	postgresDB, err := db.InitPostgres(options.DatabaseDSN)
	if err != nil {
		zapLogger.Fatal("cannot init database", zap.Error(err))
	}

	// Purge soft-deleted credentials in the background.
	db.StartDeletedCredentialPurge(context.Background(), postgresDB,
		time.Hour,       // interval
		30*24*time.Hour, // retention: 30 days
		zapLogger,
	)

	// Throttle state lives in Redis when configured, in-process otherwise.
	var store kvstore.Store
	if options.RedisAddr != "" {
		store = kvstore.NewRedisStore(redis.NewClient(&redis.Options{Addr: options.RedisAddr}))
	} else {
		zapLogger.Warn("no redis configured, throttle state is process-local")
		store = kvstore.NewMemoryStore()
	}

	// Security event sink and the two request guards.
	events := audit.NewLog(zapLogger)
	loginThrottle := throttle.NewLoginThrottle(store, events, zapLogger, throttle.LoginConfig{
		MaxAttempts:     options.MaxLoginAttempts,
		LockoutDuration: options.LoginLockout(),
	})
	rateLimiter := throttle.NewAPIRateLimiter(store, events, zapLogger, throttle.RateLimitConfig{
		MaxPerMinute:    options.APIMaxPerMinute,
		MaxPerHour:      options.APIMaxPerHour,
		LockoutDuration: options.APILockout(),
	})

	// Initialize repositories.
	credRepo := repository.NewPostgresCredentialRepository(postgresDB)
	userRepo := repository.NewPostgresUserRepository(postgresDB)
	keyRepo := repository.NewPostgresAPIKeyRepository(postgresDB)

	// Initialize business-logic services.
	authService := service.NewAuthService(userRepo)
	credService := service.NewCredentialService(credRepo, vault, events, zapLogger)

	// Create HTTP handlers.
	authHandler := &http.AuthHandler{
		AuthService: authService,
		Keys:        keyRepo,
		Throttle:    loginThrottle,
		Events:      events,
	}
	credHandler := &http.CredentialHandler{Service: credService}

	// Build the router with middleware and routes.
	router := http.NewRouter(
		authHandler,
		credHandler,
		keyRepo,
		middleware.WithRateLimit(rateLimiter, zapLogger),
		events,
		zapLogger,
	)

	server := &nethttp.Server{
		Addr:    options.Addr,
		Handler: router,
	}

	if options.CertFile != "" && options.KeyFile != "" {
		zapLogger.Info("starting HTTPS server", zap.String("addr", options.Addr))
		if err := server.ListenAndServeTLS(options.CertFile, options.KeyFile); err != nil {
			zapLogger.Fatal("failed to start HTTPS server", zap.Error(err))
		}
		return
	}
	zapLogger.Info("starting HTTP server", zap.String("addr", options.Addr))
	if err := server.ListenAndServe(); err != nil {
		zapLogger.Fatal("failed to start HTTP server", zap.Error(err))
	}
}
