package security

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	apperrors "nebulaviz/internal/errors"
)

// MinKeyLength is the shortest key material accepted from a key file
const MinKeyLength = 16

// MaxKeyFileSize guards against pointing the key path at something that is not a key
const MaxKeyFileSize = 4096

// SymmetricKey holds key material read from a key file.
// It never prints its contents and must be wiped once the run ends.
type SymmetricKey struct {
	material []byte
}

// NewSymmetricKey copies material into a new key
func NewSymmetricKey(material []byte) (*SymmetricKey, error) {
	if len(material) < MinKeyLength {
		return nil, apperrors.NewKeyError(fmt.Sprintf("key material must be at least %d bytes", MinKeyLength), nil)
	}
	k := &SymmetricKey{material: make([]byte, len(material))}
	copy(k.material, material)
	return k, nil
}

// LoadKey reads a key file. A single trailing line ending is ignored so that
// text keys written by editors work.
func LoadKey(path string) (*SymmetricKey, error) {
	if path == "" {
		return nil, apperrors.NewKeyError("key file path is empty", nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, apperrors.NewKeyError("key file unreadable", err).WithContext("path", path)
	}
	if info.IsDir() {
		return nil, apperrors.NewKeyError("key path is a directory", nil).WithContext("path", path)
	}
	if info.Size() > MaxKeyFileSize {
		return nil, apperrors.NewKeyError("key file is too large", nil).WithContext("path", path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewKeyError("key file unreadable", err).WithContext("path", path)
	}
	defer zero(raw)

	material := bytes.TrimSuffix(raw, []byte("\n"))
	material = bytes.TrimSuffix(material, []byte("\r"))
	if len(material) == 0 {
		return nil, apperrors.NewKeyError("key file is empty", nil).WithContext("path", path)
	}
	if len(material) < MinKeyLength {
		return nil, apperrors.NewKeyError(
			fmt.Sprintf("key file is malformed: %d bytes, need at least %d", len(material), MinKeyLength), nil,
		).WithContext("path", path)
	}

	return NewSymmetricKey(material)
}

// GenerateKeyFile writes 32 random bytes, hex encoded, to path with owner-only permissions.
// An existing file is never overwritten.
func GenerateKeyFile(path string) error {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}
	defer zero(raw)

	encoded := make([]byte, hex.EncodedLen(len(raw))+1)
	defer zero(encoded)
	hex.Encode(encoded, raw)
	encoded[len(encoded)-1] = '\n'

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create key file: %w", err)
	}
	if _, err := f.Write(encoded); err != nil {
		f.Close()
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return f.Close()
}

// Len returns the key length in bytes
func (k *SymmetricKey) Len() int {
	if k == nil {
		return 0
	}
	return len(k.material)
}

// Wipe zeroes the key material
func (k *SymmetricKey) Wipe() {
	if k == nil {
		return
	}
	zero(k.material)
	k.material = nil
}

// String never reveals key material
func (k *SymmetricKey) String() string {
	return "[REDACTED]"
}

// GoString never reveals key material
func (k *SymmetricKey) GoString() string {
	return "security.SymmetricKey{[REDACTED]}"
}

// LogValue implements slog.LogValuer so keys cannot leak through structured logs
func (k *SymmetricKey) LogValue() slog.Value {
	return slog.StringValue("[REDACTED]")
}
