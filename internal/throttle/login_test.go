package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/passvault/passvault/internal/audit"
	"github.com/passvault/passvault/internal/kvstore"
	"go.uber.org/zap"
)

// recordingEvents captures emitted security events for assertions.
type recordingEvents struct {
	audit.Nop
	lockedFingerprints []string
	rateLimited        []string
}

func (r *recordingEvents) LoginLocked(fingerprint string, _ int) {
	r.lockedFingerprints = append(r.lockedFingerprints, fingerprint)
}

func (r *recordingEvents) APIRateLimited(fingerprint string, _, _ int64) {
	r.rateLimited = append(r.rateLimited, fingerprint)
}

func newLoginThrottleForTest(clock Clock) (*LoginThrottle, *recordingEvents) {
	events := &recordingEvents{}
	throttle := NewLoginThrottle(kvstore.NewMemoryStore(), events, zap.NewNop(), LoginConfig{}).WithClock(clock)
	return throttle, events
}

func TestLoginThrottleLocksAfterMaxFailures(t *testing.T) {
	ctx := context.Background()
	clock := NewFixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	throttle, events := newLoginThrottleForTest(clock)
	fp := LoginFingerprint("10.0.0.1", "test-agent")

	for attempt := 1; attempt <= 2; attempt++ {
		count, err := throttle.RecordFailure(ctx, fp)
		if err != nil {
			t.Fatalf("RecordFailure error: %v", err)
		}
		if count != attempt {
			t.Fatalf("attempt count = %d; want %d", count, attempt)
		}
		locked, err := throttle.IsLocked(ctx, fp)
		if err != nil || locked {
			t.Fatalf("locked after %d failures = %v, %v; want unlocked", attempt, locked, err)
		}
	}

	remaining, err := throttle.RemainingAttempts(ctx, fp)
	if err != nil || remaining != 1 {
		t.Fatalf("RemainingAttempts = %d, %v; want 1", remaining, err)
	}

	if _, err := throttle.RecordFailure(ctx, fp); err != nil {
		t.Fatalf("RecordFailure error: %v", err)
	}
	locked, err := throttle.IsLocked(ctx, fp)
	if err != nil {
		t.Fatalf("IsLocked error: %v", err)
	}
	if !locked {
		t.Error("not locked after reaching the attempt limit")
	}
	if len(events.lockedFingerprints) != 1 || events.lockedFingerprints[0] != fp {
		t.Errorf("locked events = %v; want one event for %s", events.lockedFingerprints, fp)
	}
	remaining, err = throttle.RemainingAttempts(ctx, fp)
	if err != nil || remaining != 0 {
		t.Errorf("RemainingAttempts while locked = %d, %v; want 0", remaining, err)
	}
}

func TestLoginThrottleLockoutExpiresLazily(t *testing.T) {
	ctx := context.Background()
	clock := NewFixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	throttle, _ := newLoginThrottleForTest(clock)
	fp := LoginFingerprint("10.0.0.1", "test-agent")

	for i := 0; i < DefaultMaxLoginAttempts; i++ {
		if _, err := throttle.RecordFailure(ctx, fp); err != nil {
			t.Fatalf("RecordFailure error: %v", err)
		}
	}
	if locked, _ := throttle.IsLocked(ctx, fp); !locked {
		t.Fatal("expected lockout")
	}

	clock.Advance(59 * time.Minute)
	if locked, _ := throttle.IsLocked(ctx, fp); !locked {
		t.Fatal("lockout lifted before its duration elapsed")
	}

	clock.Advance(2 * time.Minute)
	locked, err := throttle.IsLocked(ctx, fp)
	if err != nil {
		t.Fatalf("IsLocked error: %v", err)
	}
	if locked {
		t.Error("lockout survived past its expiry")
	}

	// The expired lockout self-heals: the counter is cleared, so a single new
	// failure starts over from one.
	count, err := throttle.RecordFailure(ctx, fp)
	if err != nil {
		t.Fatalf("RecordFailure error: %v", err)
	}
	if count != 1 {
		t.Errorf("attempt count after self-heal = %d; want 1", count)
	}
}

func TestLoginThrottleClearOnSuccess(t *testing.T) {
	ctx := context.Background()
	clock := NewFixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	throttle, _ := newLoginThrottleForTest(clock)
	fp := LoginFingerprint("10.0.0.1", "test-agent")

	for i := 0; i < DefaultMaxLoginAttempts; i++ {
		if _, err := throttle.RecordFailure(ctx, fp); err != nil {
			t.Fatalf("RecordFailure error: %v", err)
		}
	}
	if err := throttle.ClearOnSuccess(ctx, fp); err != nil {
		t.Fatalf("ClearOnSuccess error: %v", err)
	}
	if locked, _ := throttle.IsLocked(ctx, fp); locked {
		t.Error("still locked after ClearOnSuccess")
	}
	remaining, err := throttle.RemainingAttempts(ctx, fp)
	if err != nil || remaining != DefaultMaxLoginAttempts {
		t.Errorf("RemainingAttempts after clear = %d, %v; want %d", remaining, err, DefaultMaxLoginAttempts)
	}
}

func TestLoginThrottleIsolatesFingerprints(t *testing.T) {
	ctx := context.Background()
	clock := NewFixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	throttle, _ := newLoginThrottleForTest(clock)

	attacker := LoginFingerprint("10.0.0.1", "test-agent")
	bystander := LoginFingerprint("10.0.0.2", "test-agent")

	for i := 0; i < DefaultMaxLoginAttempts; i++ {
		if _, err := throttle.RecordFailure(ctx, attacker); err != nil {
			t.Fatalf("RecordFailure error: %v", err)
		}
	}
	if locked, _ := throttle.IsLocked(ctx, attacker); !locked {
		t.Error("attacker fingerprint not locked")
	}
	if locked, _ := throttle.IsLocked(ctx, bystander); locked {
		t.Error("unrelated fingerprint was locked")
	}
}

func TestLoginThrottleClearsMalformedLockout(t *testing.T) {
	ctx := context.Background()
	clock := NewFixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := kvstore.NewMemoryStore()
	throttle := NewLoginThrottle(store, audit.Nop{}, zap.NewNop(), LoginConfig{}).WithClock(clock)
	fp := LoginFingerprint("10.0.0.1", "test-agent")

	if err := store.Set(ctx, "login_lockout_"+fp, "garbage", time.Hour); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	locked, err := throttle.IsLocked(ctx, fp)
	if err != nil {
		t.Fatalf("IsLocked error: %v", err)
	}
	if locked {
		t.Error("malformed lockout entry treated as active")
	}
	if _, ok, _ := store.Get(ctx, "login_lockout_"+fp); ok {
		t.Error("malformed lockout entry was not cleared")
	}
}
