// Package crypto seals secrets stored in the config file, such as storage
// passwords and the server API key.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// Prefix marks a sealed value in config.yml.
	Prefix = "enc:"

	SaltSize  = 16
	NonceSize = 12
	KeySize   = 32 // AES-256

	// MinPassphrase is the shortest passphrase Seal accepts.
	MinPassphrase = 8

	pbkdf2Iterations = 100000
)

var (
	ErrWeakPassphrase = fmt.Errorf("passphrase must be at least %d characters", MinPassphrase)

	// ErrDecryptionFailed is returned for a wrong passphrase or corrupted data.
	ErrDecryptionFailed = errors.New("decryption failed: wrong passphrase or corrupted data")

	ErrInvalidData = errors.New("invalid sealed value")
)

// IsSealed reports whether v was produced by Seal.
func IsSealed(v string) bool {
	return strings.HasPrefix(v, Prefix)
}

func deriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, KeySize, sha256.New)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Seal encrypts plaintext with AES-256-GCM under a key derived from
// passphrase. The result is Prefix followed by base64(salt|nonce|ciphertext).
func Seal(plaintext, passphrase string) (string, error) {
	if len(passphrase) < MinPassphrase {
		return "", ErrWeakPassphrase
	}

	buf := make([]byte, SaltSize+NonceSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	salt, nonce := buf[:SaltSize], buf[SaltSize:]

	gcm, err := newGCM(deriveKey(passphrase, salt))
	if err != nil {
		return "", err
	}
	sealed := gcm.Seal(buf, nonce, []byte(plaintext), nil)
	return Prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Values without Prefix are returned unchanged.
func Open(value, passphrase string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	combined, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, Prefix))
	if err != nil {
		return "", ErrInvalidData
	}
	// at least the 16-byte GCM tag after salt and nonce
	if len(combined) < SaltSize+NonceSize+16 {
		return "", ErrInvalidData
	}

	salt := combined[:SaltSize]
	nonce := combined[SaltSize : SaltSize+NonceSize]
	ciphertext := combined[SaltSize+NonceSize:]

	gcm, err := newGCM(deriveKey(passphrase, salt))
	if err != nil {
		return "", err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}
