package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// defaultCost is bcrypt's work factor (2^cost rounds). 12 is around 250ms,
// which is fine once per magic-link request and far too slow to brute-force
// a leaked hash.
const defaultCost = 12

var errSecretMismatch = errors.New("auth: link secret does not match")

// SecretHasher hashes and verifies the random secret embedded in a magic
// link. Only the bcrypt hash is stored, so a copy of the magic_links table
// cannot be turned into working links.
type SecretHasher struct {
	cost int
}

func NewSecretHasher() *SecretHasher {
	return &SecretHasher{cost: defaultCost}
}

// newSecretHasherWithCost lets tests use bcrypt.MinCost.
func newSecretHasherWithCost(cost int) *SecretHasher {
	return &SecretHasher{cost: cost}
}

// Hash returns the bcrypt hash of secret. bcrypt ignores input past 72
// bytes, so longer secrets are refused rather than silently truncated.
func (h *SecretHasher) Hash(secret string) (string, error) {
	if len(secret) > 72 {
		return "", errors.New("auth: secret must be 72 bytes or fewer")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing secret: %w", err)
	}
	return string(hashed), nil
}

// Verify compares in constant time.
func (h *SecretHasher) Verify(hash, secret string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return errSecretMismatch
	}
	if err != nil {
		return fmt.Errorf("auth: comparing secret hash: %w", err)
	}
	return nil
}
