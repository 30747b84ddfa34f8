// Package crypto implements the credential protection core: key derivation,
// the authenticated envelope format used to store passwords at rest, the
// versioned master-key registry, and the vault that ties them together.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

var (
	// ErrEncryption is returned when the cipher itself fails. Should not
	// occur in practice for well-formed keys.
	ErrEncryption = errors.New("encryption failed")

	// ErrDecryption is returned when an envelope cannot be authenticated:
	// wrong key, wrong key version, or corrupted data.
	ErrDecryption = errors.New("decryption failed")
)

// Seal encrypts plaintext under a key derived from masterSecret and a fresh
// random salt, and returns the serialized envelope:
//
//	base64url( salt[16] || nonce || ciphertext+tag )
//
// A new salt is generated on every call, so sealing the same plaintext twice
// yields different envelopes. Empty plaintext maps to an empty envelope and is
// never encrypted.
func Seal(plaintext string, masterSecret []byte) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("%w: generate salt: %v", ErrEncryption, err)
	}

	aead, err := newAEAD(DeriveKey(masterSecret, salt))
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("%w: generate nonce: %v", ErrEncryption, err)
	}

	combined := make([]byte, 0, SaltSize+len(nonce)+len(plaintext)+aead.Overhead())
	combined = append(combined, salt...)
	combined = append(combined, nonce...)
	combined = aead.Seal(combined, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(combined), nil
}

// Open decrypts an envelope produced by Seal. If the envelope does not
// authenticate under the salted, PBKDF2-derived key, one legacy format is
// attempted: base64url(nonce || ciphertext) under sha256(legacySecret), with
// no salt and no PBKDF2. This keeps pre-migration data readable. If both
// stages fail, ErrDecryption is returned.
func Open(envelope string, masterSecret, legacySecret []byte) (string, error) {
	if envelope == "" {
		return "", nil
	}

	combined, err := base64.URLEncoding.DecodeString(envelope)
	if err != nil {
		return openLegacy(envelope, legacySecret)
	}

	if len(combined) > SaltSize {
		salt := combined[:SaltSize]
		aead, err := newAEAD(DeriveKey(masterSecret, salt))
		if err == nil {
			if plaintext, err := openSealed(aead, combined[SaltSize:]); err == nil {
				return plaintext, nil
			}
		}
	}

	// Fall back to the single known legacy derivation. Do not guess further
	// formats.
	return openLegacy(envelope, legacySecret)
}

// openLegacy attempts the pre-versioning format: the key is a direct SHA-256
// of the legacy secret and the envelope carries no salt.
func openLegacy(envelope string, legacySecret []byte) (string, error) {
	combined, err := base64.URLEncoding.DecodeString(envelope)
	if err != nil {
		return "", fmt.Errorf("%w: invalid envelope encoding", ErrDecryption)
	}

	key := sha256.Sum256(legacySecret)
	aead, err := newAEAD(key[:])
	if err != nil {
		return "", err
	}
	plaintext, err := openSealed(aead, combined)
	if err != nil {
		return "", ErrDecryption
	}
	return plaintext, nil
}

func openSealed(aead cipher.AEAD, data []byte) (string, error) {
	if len(data) < aead.NonceSize() {
		return "", ErrDecryption
	}
	nonce, ciphertext := data[:aead.NonceSize()], data[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryption
	}
	return string(plaintext), nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: create cipher: %v", ErrEncryption, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: create AEAD: %v", ErrEncryption, err)
	}
	return aead, nil
}
