package crypto

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownKeyVersion is returned when an envelope references a key version
// the keyring cannot resolve.
var ErrUnknownKeyVersion = errors.New("unknown key version")

// recommendedSecretLen is the minimum master secret length that does not
// weaken the derived key.
const recommendedSecretLen = 32

// Keyring is the process-wide registry of master secrets by key version.
// It is immutable after construction except for appended versions: a version's
// secret is never mutated or removed while stored envelopes may reference it.
type Keyring struct {
	mu      sync.RWMutex
	secrets map[int][]byte
	current int
	legacy  []byte
}

// NewKeyring builds a keyring from a version→secret map and the designated
// current version. It fails fast on misconfiguration: an empty map, a current
// version with no secret, or a non-positive version number. legacySecret is
// used only for the pre-versioning envelope fallback; if nil, the secret of
// the lowest registered version is used.
func NewKeyring(secrets map[int][]byte, current int, legacySecret []byte) (*Keyring, error) {
	if len(secrets) == 0 {
		return nil, errors.New("keyring: no master secrets configured")
	}
	lowest := 0
	for version, secret := range secrets {
		if version < 1 {
			return nil, fmt.Errorf("keyring: invalid key version %d", version)
		}
		if len(secret) == 0 {
			return nil, fmt.Errorf("keyring: empty secret for version %d", version)
		}
		if lowest == 0 || version < lowest {
			lowest = version
		}
	}
	if _, ok := secrets[current]; !ok {
		return nil, fmt.Errorf("keyring: current version %d has no secret", current)
	}

	copied := make(map[int][]byte, len(secrets))
	for version, secret := range secrets {
		copied[version] = append([]byte(nil), secret...)
	}
	if legacySecret == nil {
		legacySecret = copied[lowest]
	}
	return &Keyring{secrets: copied, current: current, legacy: legacySecret}, nil
}

// Resolve returns the master secret registered for the given version.
func (k *Keyring) Resolve(version int) ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	secret, ok := k.secrets[version]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKeyVersion, version)
	}
	return secret, nil
}

// Current returns the version and secret used for all new encryptions.
func (k *Keyring) Current() (int, []byte) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.current, k.secrets[k.current]
}

// Rotate appends a new version and advances the current pointer to it.
// Existing versions are untouched; the new version must be strictly greater
// than every registered one so that "below current" always means "older key".
func (k *Keyring) Rotate(version int, secret []byte) error {
	if len(secret) == 0 {
		return fmt.Errorf("keyring: empty secret for version %d", version)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	for existing := range k.secrets {
		if version <= existing {
			return fmt.Errorf("keyring: version %d is not above existing version %d", version, existing)
		}
	}
	k.secrets[version] = append([]byte(nil), secret...)
	k.current = version
	return nil
}

// WeakSecrets returns the versions whose secrets are shorter than the
// recommended minimum, so startup code can warn about them.
func (k *Keyring) WeakSecrets() []int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	var weak []int
	for version, secret := range k.secrets {
		if len(secret) < recommendedSecretLen {
			weak = append(weak, version)
		}
	}
	return weak
}

func (k *Keyring) legacySecret() []byte {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.legacy
}
