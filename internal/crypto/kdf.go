package crypto

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// kdfIterations is fixed by code on purpose: callers must not be able
	// to downgrade the work factor.
	kdfIterations = 100000

	// keySize is the derived AES-256 key length in bytes.
	keySize = 32

	// SaltSize is the length of the random salt stored in every envelope.
	SaltSize = 16
)

// DeriveKey derives a 32-byte encryption key from a master secret and a salt
// using PBKDF2-HMAC-SHA256. Deterministic: the same inputs always produce the
// same key.
func DeriveKey(masterSecret, salt []byte) []byte {
	return pbkdf2.Key(masterSecret, salt, kdfIterations, keySize, sha256.New)
}
