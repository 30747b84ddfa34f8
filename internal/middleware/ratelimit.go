package middleware

import (
	"net/http"
	"strconv"

	"github.com/passvault/passvault/internal/throttle"
	"go.uber.org/zap"
)

// WithRateLimit applies the API rate limiter to every request it wraps.
// Admitted requests carry X-RateLimit-Remaining-Minute and
// X-RateLimit-Remaining-Hour headers; rejected ones get 429 with Retry-After.
// Must run after APIKeyAuth so the fingerprint includes the user identity.
func WithRateLimit(limiter *throttle.APIRateLimiter, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fp := throttle.APIFingerprint(
				throttle.ClientIP(r),
				r.UserAgent(),
				GetUserIDFromContext(r.Context()),
			)

			allowed, remMinute, remHour, err := limiter.CheckAndConsume(r.Context(), fp)
			if err != nil {
				log.Error("rate limiter unavailable", zap.Error(err))
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			if !allowed {
				if remaining, err := limiter.LockoutRemaining(r.Context(), fp); err == nil && remaining > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(remaining.Seconds())))
				}
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			w.Header().Set("X-RateLimit-Remaining-Minute", strconv.FormatInt(remMinute, 10))
			w.Header().Set("X-RateLimit-Remaining-Hour", strconv.FormatInt(remHour, 10))
			next.ServeHTTP(w, r)
		})
	}
}
