// Package audit emits structured security events: who touched which
// credentials, failed logins, lockouts, and rate-limit hits. Events carry
// actor identity and client fingerprints or IPs, never secret material.
package audit

import (
	"go.uber.org/zap"
)

// Event names, stable across the web UI and API surfaces.
const (
	EventCredentialCreated  = "credential.created"
	EventCredentialUpdated  = "credential.updated"
	EventCredentialDeleted  = "credential.deleted"
	EventCredentialAccessed = "credential.accessed"
	EventCredentialSearch   = "credential.search"
	EventLoginFailed        = "login.failed"
	EventLoginLocked        = "login.locked"
	EventAPIRateLimited     = "api.rate_limited"
	EventAPIKeyUsed         = "apikey.used"
)

// Recorder is the event sink consumed by the core. Implementations must not
// log plaintext passwords or master secrets.
type Recorder interface {
	CredentialCreated(actor, name, ip string)
	CredentialUpdated(actor, id, name, ip string)
	CredentialDeleted(actor, id, name, ip string)
	CredentialAccessed(actor string, ids []string, ip string)
	CredentialSearch(actor, query string, results int, ip string)
	LoginFailed(fingerprint, ip string, attempts int)
	LoginLocked(fingerprint string, attempts int)
	APIRateLimited(fingerprint string, minuteCount, hourCount int64)
	APIKeyUsed(actor, ip string)
}

// Log is the zap-backed Recorder used in production.
type Log struct {
	log *zap.Logger
}

// NewLog builds a Recorder writing to the "security" child of the given
// logger.
func NewLog(log *zap.Logger) *Log {
	return &Log{log: log.Named("security")}
}

func (l *Log) CredentialCreated(actor, name, ip string) {
	l.log.Info(EventCredentialCreated,
		zap.String("event", EventCredentialCreated),
		zap.String("actor", actor),
		zap.String("name", name),
		zap.String("ip", ip),
	)
}

func (l *Log) CredentialUpdated(actor, id, name, ip string) {
	l.log.Info(EventCredentialUpdated,
		zap.String("event", EventCredentialUpdated),
		zap.String("actor", actor),
		zap.String("credential_id", id),
		zap.String("name", name),
		zap.String("ip", ip),
	)
}

func (l *Log) CredentialDeleted(actor, id, name, ip string) {
	l.log.Info(EventCredentialDeleted,
		zap.String("event", EventCredentialDeleted),
		zap.String("actor", actor),
		zap.String("credential_id", id),
		zap.String("name", name),
		zap.String("ip", ip),
	)
}

func (l *Log) CredentialAccessed(actor string, ids []string, ip string) {
	l.log.Info(EventCredentialAccessed,
		zap.String("event", EventCredentialAccessed),
		zap.String("actor", actor),
		zap.Strings("credential_ids", ids),
		zap.String("ip", ip),
	)
}

func (l *Log) CredentialSearch(actor, query string, results int, ip string) {
	l.log.Info(EventCredentialSearch,
		zap.String("event", EventCredentialSearch),
		zap.String("actor", actor),
		zap.String("query", query),
		zap.Int("results", results),
		zap.String("ip", ip),
	)
}

func (l *Log) LoginFailed(fingerprint, ip string, attempts int) {
	l.log.Warn(EventLoginFailed,
		zap.String("event", EventLoginFailed),
		zap.String("fingerprint", fingerprint),
		zap.String("ip", ip),
		zap.Int("attempts", attempts),
	)
}

func (l *Log) LoginLocked(fingerprint string, attempts int) {
	l.log.Warn(EventLoginLocked,
		zap.String("event", EventLoginLocked),
		zap.String("fingerprint", fingerprint),
		zap.Int("attempts", attempts),
	)
}

func (l *Log) APIRateLimited(fingerprint string, minuteCount, hourCount int64) {
	l.log.Warn(EventAPIRateLimited,
		zap.String("event", EventAPIRateLimited),
		zap.String("fingerprint", fingerprint),
		zap.Int64("minute_count", minuteCount),
		zap.Int64("hour_count", hourCount),
	)
}

func (l *Log) APIKeyUsed(actor, ip string) {
	l.log.Info(EventAPIKeyUsed,
		zap.String("event", EventAPIKeyUsed),
		zap.String("actor", actor),
		zap.String("ip", ip),
	)
}

// Nop discards every event. Useful in tests.
type Nop struct{}

func (Nop) CredentialCreated(string, string, string)         {}
func (Nop) CredentialUpdated(string, string, string, string) {}
func (Nop) CredentialDeleted(string, string, string, string) {}
func (Nop) CredentialAccessed(string, []string, string)      {}
func (Nop) CredentialSearch(string, string, int, string)     {}
func (Nop) LoginFailed(string, string, int)                  {}
func (Nop) LoginLocked(string, int)                          {}
func (Nop) APIRateLimited(string, int64, int64)              {}
func (Nop) APIKeyUsed(string, string)                        {}
