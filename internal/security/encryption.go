package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/scrypt"

	apperrors "nebulaviz/internal/errors"
	"nebulaviz/pkg/contracts"
)

// Envelope layout:
//
//	magic "NBLA" | version | logN | r | p | salt(32) | nonce(12) | ciphertext || tag(16)
//
// The 40-byte header is authenticated as GCM additional data, so tampering
// with the KDF parameters fails the same way a flipped ciphertext byte does.
const (
	envelopeMagic = "NBLA"
	saltSize      = 32
	nonceSize     = 12
	tagSize       = 16
	keySize       = 32
	headerSize    = len(envelopeMagic) + 4 + saltSize + nonceSize
)

// Bounds for scrypt parameters read back from an envelope.
const (
	minLogN = 10
	maxLogN = 20
	maxR    = 16
	maxP    = 4
)

// EncryptionConfig defines scrypt parameters for new envelopes. AES-256-GCM is fixed.
type EncryptionConfig struct {
	LogN uint8 // scrypt N = 1 << LogN
	R    uint8
	P    uint8
}

// DefaultEncryptionConfig returns N=32768, r=8, p=1
func DefaultEncryptionConfig() EncryptionConfig {
	return EncryptionConfig{LogN: 15, R: 8, P: 1}
}

// ValidateEncryptionConfig validates encryption configuration parameters
func ValidateEncryptionConfig(cfg EncryptionConfig) error {
	if cfg.LogN < minLogN || cfg.LogN > maxLogN {
		return fmt.Errorf("LogN must be between %d and %d", minLogN, maxLogN)
	}
	if cfg.R < 1 || cfg.R > maxR {
		return fmt.Errorf("R must be between 1 and %d", maxR)
	}
	if cfg.P < 1 || cfg.P > maxP {
		return fmt.Errorf("P must be between 1 and %d", maxP)
	}
	return nil
}

// Encrypt seals plaintext into an envelope under key
func Encrypt(plaintext []byte, key *SymmetricKey, cfg EncryptionConfig) ([]byte, error) {
	if key == nil || key.Len() == 0 {
		return nil, apperrors.NewKeyError("key is empty", nil)
	}
	if err := ValidateEncryptionConfig(cfg); err != nil {
		return nil, apperrors.NewConfigError("invalid encryption config", err)
	}

	header := make([]byte, headerSize)
	copy(header, envelopeMagic)
	header[4] = contracts.EnvelopeVersion
	header[5], header[6], header[7] = cfg.LogN, cfg.R, cfg.P
	salt := header[8 : 8+saltSize]
	nonce := header[8+saltSize:]
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	gcm, err := newGCM(key, salt, cfg)
	if err != nil {
		return nil, err
	}

	out := make([]byte, headerSize, headerSize+len(plaintext)+tagSize)
	copy(out, header)
	return gcm.Seal(out, nonce, plaintext, header), nil
}

// Decrypt opens an envelope and returns the plaintext in a SecureBuffer the caller must wipe.
// Any authentication or format failure is a DecryptionError.
func Decrypt(payload []byte, key *SymmetricKey) (*SecureBuffer, error) {
	if key == nil || key.Len() == 0 {
		return nil, apperrors.NewKeyError("key is empty", nil)
	}
	if len(payload) < headerSize+tagSize {
		return nil, apperrors.NewDecryptionError("payload is truncated", nil).
			WithContext("size", len(payload))
	}

	header := payload[:headerSize]
	if !SecureCompare(header[:4], []byte(envelopeMagic)) {
		return nil, apperrors.NewDecryptionError("payload is not an encrypted agenda", nil)
	}
	if header[4] != contracts.EnvelopeVersion {
		return nil, apperrors.NewDecryptionError(fmt.Sprintf("unsupported envelope version %d", header[4]), nil)
	}
	cfg := EncryptionConfig{LogN: header[5], R: header[6], P: header[7]}
	if err := ValidateEncryptionConfig(cfg); err != nil {
		return nil, apperrors.NewDecryptionError("envelope parameters out of range", err)
	}
	salt := header[8 : 8+saltSize]
	nonce := header[8+saltSize:]

	gcm, err := newGCM(key, salt, cfg)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, payload[headerSize:], header)
	if err != nil {
		return nil, apperrors.NewDecryptionError("authentication failed: wrong key or corrupted payload", err)
	}
	return NewSecureBuffer(plaintext), nil
}

// newGCM derives the AES key and zeroes it once the cipher is built
func newGCM(key *SymmetricKey, salt []byte, cfg EncryptionConfig) (cipher.AEAD, error) {
	derived, err := scrypt.Key(key.material, salt, 1<<cfg.LogN, int(cfg.R), int(cfg.P), keySize)
	if err != nil {
		return nil, apperrors.NewKeyError("key derivation failed", err)
	}
	defer zero(derived)

	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// SecureCompare performs constant-time comparison
func SecureCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
