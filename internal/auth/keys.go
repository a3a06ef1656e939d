// Package auth derives purpose-specific keys from the master secret and
// signs the session tokens held by browsers.
package auth

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Key purposes. Each yields an independent key from the same master secret.
const (
	PurposeFieldCipher  = "warrantypanel field key"
	PurposeSessionToken = "warrantypanel session key"
)

// DeriveKey expands the master secret into a 32-byte key bound to purpose.
func DeriveKey(masterSecret []byte, purpose string) ([]byte, error) {
	if len(masterSecret) == 0 {
		return nil, fmt.Errorf("derive %q: empty master secret", purpose)
	}

	key := make([]byte, 32)
	r := hkdf.New(sha256.New, masterSecret, nil, []byte(purpose))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive %q: %w", purpose, err)
	}
	return key, nil
}
