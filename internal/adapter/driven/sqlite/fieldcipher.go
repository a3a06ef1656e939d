package sqlite

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/ericfisherdev/warrantypanel/internal/domain/model"
)

// FieldCipher seals individual credential values with AES-256-GCM. Every
// call to SealField draws a fresh random nonce, so equal plaintexts never
// produce equal ciphertexts.
type FieldCipher struct {
	aead cipher.AEAD
}

// NewFieldCipher creates a FieldCipher. key must be 32 bytes.
func NewFieldCipher(key []byte) (*FieldCipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("field cipher key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}

	return &FieldCipher{aead: gcm}, nil
}

// SealField encrypts plaintext and returns a base64-encoded string containing
// the nonce (12 bytes) prepended to the ciphertext. Empty input yields empty output.
func (c *FieldCipher) SealField(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	// Seal appends the ciphertext to nonce, producing: nonce || ciphertext || tag.
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// OpenField reverses SealField. Empty input yields empty output; anything
// that fails to decode or authenticate is a *model.DecryptionError.
func (c *FieldCipher) OpenField(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", &model.DecryptionError{Err: fmt.Errorf("base64 decode: %w", err)}
	}

	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize+c.aead.Overhead() {
		return "", &model.DecryptionError{Err: errors.New("ciphertext too short")}
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", &model.DecryptionError{Err: fmt.Errorf("gcm.Open: %w", err)}
	}

	return string(plaintext), nil
}
