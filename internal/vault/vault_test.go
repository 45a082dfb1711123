package vault

import (
	"errors"
	"testing"

	"github.com/quantleaf/optrader/internal/errs"
)

func testVault(t *testing.T) *Vault {
	t.Helper()
	v, err := NewWithKey([]byte("01234567890123456789012345678901"))
	if err != nil {
		t.Fatalf("NewWithKey: %v", err)
	}
	return v
}

func TestEncryptDecrypt_RoundTrips(t *testing.T) {
	v := testVault(t)
	plaintext := "sandbox-access-token-abc123"

	ciphertext, err := v.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if ciphertext == plaintext {
		t.Fatal("ciphertext must not equal plaintext")
	}

	got, err := v.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if got != plaintext {
		t.Fatalf("got %q, want %q", got, plaintext)
	}
}

func TestDecrypt_RotatedKeyRaisesDecryptionError(t *testing.T) {
	v1 := testVault(t)
	ciphertext, err := v1.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	v2, err := NewWithKey([]byte("99999999999999999999999999999999"))
	if err != nil {
		t.Fatalf("NewWithKey: %v", err)
	}
	_, err = v2.Decrypt(ciphertext)
	if !errs.IsKind(err, errs.KindDecryptionError) {
		t.Fatalf("expected KindDecryptionError, got %v", err)
	}
}

func TestNewWithKey_RejectsWrongLength(t *testing.T) {
	if _, err := NewWithKey([]byte("too-short")); err == nil {
		t.Fatal("expected an error for a non-32-byte key")
	}
}

func TestResolveKey_MissingEnvVarReturnsSentinel(t *testing.T) {
	t.Setenv("VAULT_ENCRYPTION_KEY", "")
	v := New()
	_, err := v.Encrypt("x")
	if !errors.Is(err, ErrKeyNotConfigured) {
		t.Fatalf("expected ErrKeyNotConfigured, got %v", err)
	}
}
