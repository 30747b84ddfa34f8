package crypto

import (
	"go.uber.org/zap"
)

// DecryptionErrorSentinel is the placeholder callers return to the UI/API
// layer when an envelope cannot be decrypted. A failed decrypt never crashes a
// request.
const DecryptionErrorSentinel = "[DECRYPTION_ERROR]"

// Rekeyed carries the replacement envelope produced by auto-rekey-on-read.
// The caller is expected to persist it; the read result does not depend on
// whether that persistence succeeds.
type Rekeyed struct {
	Envelope   string
	KeyVersion int
}

// Vault orchestrates encrypt-on-write and decrypt-with-auto-rekey-on-read for
// credential envelopes, using the keyring to resolve master secrets.
type Vault struct {
	keys *Keyring
	log  *zap.Logger
}

// NewVault constructs a Vault over the given keyring.
func NewVault(keys *Keyring, log *zap.Logger) *Vault {
	return &Vault{keys: keys, log: log}
}

// EncryptForStorage encrypts plaintext under the keyring's current version.
// The returned key version always matches the secret that produced the
// envelope.
func (v *Vault) EncryptForStorage(plaintext string) (string, int, error) {
	version, secret := v.keys.Current()
	envelope, err := Seal(plaintext, secret)
	if err != nil {
		return "", 0, err
	}
	return envelope, version, nil
}

// EncryptWithVersion encrypts plaintext under a specific registered version.
// Used by the bulk rekeyer, which may target a version other than current.
func (v *Vault) EncryptWithVersion(plaintext string, version int) (string, error) {
	secret, err := v.keys.Resolve(version)
	if err != nil {
		return "", err
	}
	return Seal(plaintext, secret)
}

// Decrypt opens an envelope under the secret registered for keyVersion,
// falling back to the legacy unsalted format. No rekeying is performed.
func (v *Vault) Decrypt(envelope string, keyVersion int) (string, error) {
	secret, err := v.keys.Resolve(keyVersion)
	if err != nil {
		return "", err
	}
	return Open(envelope, secret, v.keys.legacySecret())
}

// DecryptFromStorage decrypts a stored envelope. When the envelope's key
// version is behind the keyring's current version, the plaintext is
// transparently re-encrypted under the current version and returned alongside
// the plaintext so the caller can persist the updated record. If decryption
// fails, no rekey is attempted and the error is surfaced. If the re-encryption
// itself fails, the failure is logged and the plaintext is still returned:
// read success is independent of rekey success.
func (v *Vault) DecryptFromStorage(envelope string, keyVersion int) (string, *Rekeyed, error) {
	plaintext, err := v.Decrypt(envelope, keyVersion)
	if err != nil {
		return "", nil, err
	}

	current, secret := v.keys.Current()
	if keyVersion == current {
		return plaintext, nil, nil
	}

	fromVersion := keyVersion
	reencrypted, err := Seal(plaintext, secret)
	if err != nil {
		v.log.Warn("auto-rekey re-encryption failed",
			zap.Int("from_version", fromVersion),
			zap.Int("to_version", current),
			zap.Error(err),
		)
		return plaintext, nil, nil
	}

	v.log.Info("auto-rekeyed credential envelope on read",
		zap.Int("from_version", fromVersion),
		zap.Int("to_version", current),
	)
	return plaintext, &Rekeyed{Envelope: reencrypted, KeyVersion: current}, nil
}
