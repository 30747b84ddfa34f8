package throttle

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/passvault/passvault/internal/audit"
	"github.com/passvault/passvault/internal/kvstore"
	"go.uber.org/zap"
)

// Defaults for the login throttle. Implementations may expose them as
// configuration, but the shipped defaults are fixed.
const (
	DefaultMaxLoginAttempts = 3
	DefaultLoginLockout     = time.Hour
	DefaultAttemptTTL       = time.Hour
)

const (
	loginAttemptsPrefix = "login_attempts_"
	loginLockoutPrefix  = "login_lockout_"
)

// LoginConfig tunes the login throttle. Zero values fall back to the
// defaults above.
type LoginConfig struct {
	MaxAttempts     int
	LockoutDuration time.Duration
	AttemptTTL      time.Duration
}

// LoginThrottle is the per-fingerprint failed-login counter with a timed
// lockout. State transitions: Clean → Counting on the first failure, Counting
// → Locked on the Nth failure, Locked → Clean lazily on expiry or explicitly
// on a successful login.
type LoginThrottle struct {
	store  kvstore.Store
	clock  Clock
	log    *zap.Logger
	events audit.Recorder

	maxAttempts int
	lockout     time.Duration
	attemptTTL  time.Duration
}

// NewLoginThrottle constructs a login throttle over the given store.
func NewLoginThrottle(store kvstore.Store, events audit.Recorder, log *zap.Logger, cfg LoginConfig) *LoginThrottle {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxLoginAttempts
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = DefaultLoginLockout
	}
	if cfg.AttemptTTL <= 0 {
		cfg.AttemptTTL = DefaultAttemptTTL
	}
	return &LoginThrottle{
		store:       store,
		clock:       SystemClock{},
		log:         log,
		events:      events,
		maxAttempts: cfg.MaxAttempts,
		lockout:     cfg.LockoutDuration,
		attemptTTL:  cfg.AttemptTTL,
	}
}

// WithClock replaces the time source. For tests.
func (t *LoginThrottle) WithClock(clock Clock) *LoginThrottle {
	t.clock = clock
	return t
}

// IsLocked reports whether the fingerprint is currently locked out. An
// expired lockout found here self-heals: all counters for the fingerprint are
// cleared and false is returned. The Locked→Clean transition is evaluated
// lazily on check, never on a timer.
func (t *LoginThrottle) IsLocked(ctx context.Context, fingerprint string) (bool, error) {
	value, ok, err := t.store.Get(ctx, loginLockoutPrefix+fingerprint)
	if err != nil {
		return false, fmt.Errorf("login throttle: read lockout: %w", err)
	}
	if !ok {
		return false, nil
	}

	expiry, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		// Unreadable lockout entry; treat it as stale and clear it.
		t.log.Warn("clearing malformed login lockout entry", zap.Error(err))
		return false, t.ClearOnSuccess(ctx, fingerprint)
	}
	if t.clock.Now().Before(expiry) {
		return true, nil
	}
	return false, t.ClearOnSuccess(ctx, fingerprint)
}

// RecordFailure increments the failed-attempt counter and returns the count
// so far. Reaching the attempt limit sets the lockout and emits a security
// warning event.
func (t *LoginThrottle) RecordFailure(ctx context.Context, fingerprint string) (int, error) {
	attempts, err := t.store.IncrWithTTL(ctx, loginAttemptsPrefix+fingerprint, t.attemptTTL)
	if err != nil {
		return 0, fmt.Errorf("login throttle: record failure: %w", err)
	}

	if int(attempts) >= t.maxAttempts {
		expiry := t.clock.Now().Add(t.lockout)
		err := t.store.Set(ctx, loginLockoutPrefix+fingerprint, expiry.Format(time.RFC3339Nano), t.lockout)
		if err != nil {
			return int(attempts), fmt.Errorf("login throttle: set lockout: %w", err)
		}
		t.log.Warn("login lockout activated",
			zap.String("fingerprint", fingerprint),
			zap.Int64("attempts", attempts),
			zap.Time("locked_until", expiry),
		)
		t.events.LoginLocked(fingerprint, int(attempts))
	}
	return int(attempts), nil
}

// ClearOnSuccess removes both the attempt counter and any lockout entry for
// the fingerprint, returning it to the Clean state.
func (t *LoginThrottle) ClearOnSuccess(ctx context.Context, fingerprint string) error {
	err := t.store.Delete(ctx, loginAttemptsPrefix+fingerprint, loginLockoutPrefix+fingerprint)
	if err != nil {
		return fmt.Errorf("login throttle: clear: %w", err)
	}
	return nil
}

// RemainingAttempts returns how many failures are left before lockout,
// floored at zero.
func (t *LoginThrottle) RemainingAttempts(ctx context.Context, fingerprint string) (int, error) {
	value, ok, err := t.store.Get(ctx, loginAttemptsPrefix+fingerprint)
	if err != nil {
		return 0, fmt.Errorf("login throttle: read attempts: %w", err)
	}
	attempts := 0
	if ok {
		attempts, _ = strconv.Atoi(value)
	}
	if remaining := t.maxAttempts - attempts; remaining > 0 {
		return remaining, nil
	}
	return 0, nil
}
