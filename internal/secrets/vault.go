// Package secrets encrypts evidence attachments at rest.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

//nolint:gochecknoglobals // sentinel error
var ErrInvalidKey = errors.New("secrets: invalid encryption key")

//nolint:gochecknoglobals // sentinel error
var ErrCiphertextTooShort = errors.New("secrets: ciphertext too short")

// Vault encrypts/decrypts content using AES-256-GCM.
type Vault struct {
	aead cipher.AEAD
}

// NewVault creates a Vault with the given 32-byte encryption key.
func NewVault(key []byte) (*Vault, error) {
	if len(key) != 32 {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secrets.NewVault: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secrets.NewVault: %w", err)
	}

	return &Vault{aead: aead}, nil
}

// EncryptBytes returns nonce || ciphertext for the given plaintext.
func (v *Vault) EncryptBytes(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, v.aead.NonceSize(), v.aead.NonceSize()+len(plaintext)+v.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("secrets.EncryptBytes: generate nonce: %w", err)
	}

	// Seal appends to nonce, producing nonce || ciphertext.
	return v.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// DecryptBytes reverses EncryptBytes.
func (v *Vault) DecryptBytes(data []byte) ([]byte, error) {
	nonceSize := v.aead.NonceSize()
	if len(data) < nonceSize {
		return nil, ErrCiphertextTooShort
	}

	plaintext, err := v.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("secrets.DecryptBytes: %w", err)
	}
	return plaintext, nil
}
