package auth

import (
	"errors"
	"testing"
)

func TestKeyringValidateSHA256FastPath(t *testing.T) {
	ring := NewKeyring([]Key{
		{Name: "ci", Hash: HashKey("secret-one")},
		{Name: "ops", Hash: "sha256:" + HashKey("secret-two")},
	})

	name, err := ring.Validate("secret-one")
	if err != nil || name != "ci" {
		t.Fatalf("Validate = (%q, %v), want (ci, nil)", name, err)
	}
	name, err = ring.Validate("secret-two")
	if err != nil || name != "ops" {
		t.Fatalf("Validate = (%q, %v), want (ops, nil)", name, err)
	}

	if _, err := ring.Validate("wrong"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("wrong key: got %v, want ErrInvalidKey", err)
	}
}

func TestKeyringValidateArgon2id(t *testing.T) {
	hash, err := HashKeyArgon2id("hunter2")
	if err != nil {
		t.Fatalf("HashKeyArgon2id: %v", err)
	}
	ring := NewKeyring([]Key{{Name: "admin", Hash: hash}})

	name, err := ring.Validate("hunter2")
	if err != nil || name != "admin" {
		t.Fatalf("Validate = (%q, %v), want (admin, nil)", name, err)
	}
	if _, err := ring.Validate("hunter3"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("wrong key: got %v, want ErrInvalidKey", err)
	}
}

func TestDetectHashType(t *testing.T) {
	tests := []struct {
		hash string
		want string
	}{
		{"$argon2id$v=19$m=47104,t=1,p=1$abc$def", "argon2id"},
		{"sha256:" + HashKey("x"), "sha256"},
		{HashKey("x"), "sha256"},
		{"not-a-hash", "unknown"},
	}
	for _, tt := range tests {
		if got := DetectHashType(tt.hash); got != tt.want {
			t.Errorf("DetectHashType(%q) = %q, want %q", tt.hash, got, tt.want)
		}
	}
}

func TestEmptyKeyring(t *testing.T) {
	if !NewKeyring(nil).Empty() {
		t.Error("empty keyring not reported as empty")
	}
	if NewKeyring([]Key{{Name: "a", Hash: HashKey("k")}}).Empty() {
		t.Error("non-empty keyring reported as empty")
	}
}
