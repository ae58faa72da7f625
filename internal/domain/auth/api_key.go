// Package auth validates the API keys that guard the decision API. Keys
// are seeded from configuration as hashes, never in the clear.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/alexedwards/argon2id"
)

// ErrInvalidKey is returned when an API key matches no configured hash.
var ErrInvalidKey = errors.New("invalid api key")

// Key is one configured API key: a display name and a stored hash in
// either SHA-256 hex or Argon2id PHC format.
type Key struct {
	Name string
	Hash string
}

// Keyring validates raw API keys against the configured set.
type Keyring struct {
	keys []Key
	// sha256Index maps SHA-256 hex hashes to key names for O(1) lookup.
	sha256Index map[string]string
}

// NewKeyring builds a keyring from the configured keys.
func NewKeyring(keys []Key) *Keyring {
	idx := make(map[string]string, len(keys))
	for _, k := range keys {
		if DetectHashType(k.Hash) == "sha256" {
			idx[strings.TrimPrefix(k.Hash, "sha256:")] = k.Name
		}
	}
	return &Keyring{keys: keys, sha256Index: idx}
}

// Empty reports whether no keys are configured. An empty keyring means
// the decision API runs unauthenticated (development mode).
func (r *Keyring) Empty() bool { return len(r.keys) == 0 }

// Validate checks a raw key and returns the name of the matching
// configured key. The SHA-256 index is the fast path; Argon2id hashes
// are verified by iteration.
func (r *Keyring) Validate(rawKey string) (string, error) {
	if name, ok := r.sha256Index[HashKey(rawKey)]; ok {
		return name, nil
	}

	for _, k := range r.keys {
		match, err := VerifyKey(rawKey, k.Hash)
		if err != nil {
			continue
		}
		if match {
			return k.Name, nil
		}
	}
	return "", ErrInvalidKey
}

// HashKey returns the SHA-256 hex hash of the raw key. Used for
// config-seeded keys where fast lookup matters more than stretching.
func HashKey(rawKey string) string {
	hash := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(hash[:])
}

// argon2idParams follows the OWASP minimum for Argon2id.
var argon2idParams = &argon2id.Params{
	Memory:      47 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// HashKeyArgon2id returns an Argon2id hash of the raw key in PHC format.
func HashKeyArgon2id(rawKey string) (string, error) {
	return argon2id.CreateHash(rawKey, argon2idParams)
}

// DetectHashType identifies the hash algorithm of a stored hash:
// "argon2id" for PHC format, "sha256" for prefixed or bare hex,
// "unknown" otherwise.
func DetectHashType(storedHash string) string {
	if strings.HasPrefix(storedHash, "$argon2id$") {
		return "argon2id"
	}
	if strings.HasPrefix(storedHash, "sha256:") {
		return "sha256"
	}
	if len(storedHash) == 64 && isHexString(storedHash) {
		return "sha256"
	}
	return "unknown"
}

func isHexString(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// VerifyKey verifies a raw key against a stored hash of either format.
// SHA-256 comparisons are constant time.
func VerifyKey(rawKey, storedHash string) (bool, error) {
	switch DetectHashType(storedHash) {
	case "argon2id":
		return argon2id.ComparePasswordAndHash(rawKey, storedHash)
	case "sha256":
		want := strings.TrimPrefix(storedHash, "sha256:")
		got := HashKey(rawKey)
		return subtle.ConstantTimeCompare([]byte(got), []byte(strings.ToLower(want))) == 1, nil
	default:
		return false, errors.New("unknown hash type")
	}
}
