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

// Defaults for the API rate limiter.
const (
	DefaultMaxPerMinute = int64(60)
	DefaultMaxPerHour   = int64(1000)
	DefaultAPILockout   = 5 * time.Minute
)

const (
	apiMinutePrefix  = "api_rate_limit_minute_"
	apiHourPrefix    = "api_rate_limit_hour_"
	apiLockoutPrefix = "api_rate_limit_lockout_"
)

// RateLimitConfig tunes the API rate limiter. Zero values fall back to the
// defaults above.
type RateLimitConfig struct {
	MaxPerMinute    int64
	MaxPerHour      int64
	LockoutDuration time.Duration
}

// APIRateLimiter enforces two independent calendar-window counters per client
// fingerprint: per-minute and per-hour, both bucketed by truncating the
// current time (not rolling windows). Exceeding either cap sets a short
// lockout entry that is separate from the bucket counters. Bucket keys expire
// naturally; there is no explicit clear for successful requests.
type APIRateLimiter struct {
	store  kvstore.Store
	clock  Clock
	log    *zap.Logger
	events audit.Recorder

	maxPerMinute int64
	maxPerHour   int64
	lockout      time.Duration
}

// NewAPIRateLimiter constructs a rate limiter over the given store.
func NewAPIRateLimiter(store kvstore.Store, events audit.Recorder, log *zap.Logger, cfg RateLimitConfig) *APIRateLimiter {
	if cfg.MaxPerMinute <= 0 {
		cfg.MaxPerMinute = DefaultMaxPerMinute
	}
	if cfg.MaxPerHour <= 0 {
		cfg.MaxPerHour = DefaultMaxPerHour
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = DefaultAPILockout
	}
	return &APIRateLimiter{
		store:        store,
		clock:        SystemClock{},
		log:          log,
		events:       events,
		maxPerMinute: cfg.MaxPerMinute,
		maxPerHour:   cfg.MaxPerHour,
		lockout:      cfg.LockoutDuration,
	}
}

// WithClock replaces the time source. For tests.
func (l *APIRateLimiter) WithClock(clock Clock) *APIRateLimiter {
	l.clock = clock
	return l
}

// CheckAndConsume admits or rejects one API request for the fingerprint.
// A locked fingerprint is rejected immediately without touching the bucket
// counters. Otherwise both bucket counters are read; if both are under their
// caps they are incremented atomically and the post-increment remainders are
// returned. If either cap is reached the counters are left untouched, the
// lockout entry is set, and (false, 0, 0) is returned.
func (l *APIRateLimiter) CheckAndConsume(ctx context.Context, fingerprint string) (bool, int64, int64, error) {
	locked, err := l.isLocked(ctx, fingerprint)
	if err != nil {
		return false, 0, 0, err
	}
	if locked {
		return false, 0, 0, nil
	}

	minuteKey := l.minuteKey(fingerprint)
	hourKey := l.hourKey(fingerprint)

	minuteCount, err := l.counter(ctx, minuteKey)
	if err != nil {
		return false, 0, 0, err
	}
	hourCount, err := l.counter(ctx, hourKey)
	if err != nil {
		return false, 0, 0, err
	}

	if minuteCount < l.maxPerMinute && hourCount < l.maxPerHour {
		newMinute, err := l.store.IncrWithTTL(ctx, minuteKey, time.Minute)
		if err != nil {
			return false, 0, 0, fmt.Errorf("rate limiter: increment minute bucket: %w", err)
		}
		newHour, err := l.store.IncrWithTTL(ctx, hourKey, time.Hour)
		if err != nil {
			return false, 0, 0, fmt.Errorf("rate limiter: increment hour bucket: %w", err)
		}
		return true, clampRemaining(l.maxPerMinute - newMinute), clampRemaining(l.maxPerHour - newHour), nil
	}

	if err := l.lockOut(ctx, fingerprint); err != nil {
		return false, 0, 0, err
	}
	l.log.Warn("api rate limit exceeded",
		zap.String("fingerprint", fingerprint),
		zap.Int64("minute_count", minuteCount),
		zap.Int64("hour_count", hourCount),
	)
	l.events.APIRateLimited(fingerprint, minuteCount, hourCount)
	return false, 0, 0, nil
}

// LockoutRemaining returns how long the fingerprint stays locked, or zero
// when it is not locked.
func (l *APIRateLimiter) LockoutRemaining(ctx context.Context, fingerprint string) (time.Duration, error) {
	value, ok, err := l.store.Get(ctx, apiLockoutPrefix+fingerprint)
	if err != nil {
		return 0, fmt.Errorf("rate limiter: read lockout: %w", err)
	}
	if !ok {
		return 0, nil
	}
	expiry, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return 0, nil
	}
	if remaining := expiry.Sub(l.clock.Now()); remaining > 0 {
		return remaining, nil
	}
	return 0, nil
}

func (l *APIRateLimiter) isLocked(ctx context.Context, fingerprint string) (bool, error) {
	_, ok, err := l.store.Get(ctx, apiLockoutPrefix+fingerprint)
	if err != nil {
		return false, fmt.Errorf("rate limiter: read lockout: %w", err)
	}
	return ok, nil
}

func (l *APIRateLimiter) lockOut(ctx context.Context, fingerprint string) error {
	expiry := l.clock.Now().Add(l.lockout)
	err := l.store.Set(ctx, apiLockoutPrefix+fingerprint, expiry.Format(time.RFC3339Nano), l.lockout)
	if err != nil {
		return fmt.Errorf("rate limiter: set lockout: %w", err)
	}
	return nil
}

func (l *APIRateLimiter) counter(ctx context.Context, key string) (int64, error) {
	value, ok, err := l.store.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("rate limiter: read counter: %w", err)
	}
	if !ok {
		return 0, nil
	}
	count, _ := strconv.ParseInt(value, 10, 64)
	return count, nil
}

// minuteKey buckets by the calendar minute, so the key (and its TTL) roll
// over at the minute boundary rather than sliding.
func (l *APIRateLimiter) minuteKey(fingerprint string) string {
	bucket := l.clock.Now().UTC().Truncate(time.Minute)
	return apiMinutePrefix + fingerprint + "_" + bucket.Format(time.RFC3339)
}

func (l *APIRateLimiter) hourKey(fingerprint string) string {
	bucket := l.clock.Now().UTC().Truncate(time.Hour)
	return apiHourPrefix + fingerprint + "_" + bucket.Format(time.RFC3339)
}

func clampRemaining(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
