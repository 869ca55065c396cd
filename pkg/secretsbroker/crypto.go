package secretsbroker

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2Iterations and saltSize tune the key-derivation work factor and
// the random salt embedded alongside each ciphertext.
const (
	PBKDF2Iterations = 600000
	saltSize         = 16
	keySize          = 32 // AES-256
)

// deriveKey runs PBKDF2-HMAC-SHA256 over masterKey and salt to produce an
// AES-256 key, per spec.md §4.6.
func deriveKey(masterKey string, salt []byte) []byte {
	return pbkdf2.Key([]byte(masterKey), salt, PBKDF2Iterations, keySize, sha256.New)
}

// encrypt returns salt||nonce||ciphertext, AES-256-GCM sealed with a key
// derived fresh from a random salt so two encryptions of the same
// plaintext never produce the same bytes.
func encrypt(masterKey, plaintext string) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("secretsbroker: salt generation failed: %w", err)
	}
	key := deriveKey(masterKey, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secretsbroker: cipher init failed: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secretsbroker: gcm init failed: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("secretsbroker: nonce generation failed: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	out := make([]byte, 0, len(salt)+len(nonce)+len(sealed))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

// decrypt reverses encrypt, returning an error (without detail — never
// distinguishing "wrong key" from "tampered ciphertext") on any failure.
func decrypt(masterKey string, ciphertext []byte) (string, error) {
	if len(ciphertext) < saltSize {
		return "", fmt.Errorf("secretsbroker: ciphertext too short")
	}
	salt := ciphertext[:saltSize]
	rest := ciphertext[saltSize:]
	key := deriveKey(masterKey, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("secretsbroker: cipher init failed: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("secretsbroker: gcm init failed: %w", err)
	}
	nonceSize := gcm.NonceSize()
	if len(rest) < nonceSize {
		return "", fmt.Errorf("secretsbroker: ciphertext too short")
	}
	nonce, sealed := rest[:nonceSize], rest[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("secretsbroker: decryption failed")
	}
	return string(plaintext), nil
}
