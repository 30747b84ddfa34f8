// Package models defines the core data structures for users, credentials,
// and API keys.
package models

import "time"

// User represents an application user.
type User struct {
	// Login is the unique login name of the user.
	Login string
	// PasswordHash is the bcrypt hash of the user's login password.
	PasswordHash []byte
	// TOTPEnabled reports whether the user turned on two-factor auth.
	TOTPEnabled bool
	// TOTPConfirmed reports whether the user's TOTP device is confirmed.
	TOTPConfirmed bool
}

// Credential is a stored name/username/password record. The password is kept
// only as an encrypted envelope; the plaintext never touches the database.
type Credential struct {
	// ID is the opaque stable identifier of the record.
	ID string
	// Owner is the login of the user the record belongs to.
	Owner string
	// Name is the display name ("mail", "bank", ...).
	Name string
	// Username is the account name stored alongside the password.
	Username string
	// Envelope is the encrypted password: base64url(salt || ciphertext).
	// Only ever produced by the envelope cipher.
	Envelope string
	// KeyVersion identifies the master secret that produced Envelope.
	KeyVersion int
}

// DecryptedCredential is the API/UI representation of a credential with the
// password decrypted (or the decryption-error sentinel).
type DecryptedCredential struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// APIKey authenticates programmatic access for a single user.
type APIKey struct {
	// Key is the 64-hex-character secret presented by clients.
	Key string
	// UserLogin is the owner of the key.
	UserLogin string
	// CreatedAt is when the key was issued.
	CreatedAt time.Time
}
