package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// At-rest envelope layout: base64( salt[16] || nonce[12] || ciphertext+tag ).
// The key is derived per value from the operator secret and the random salt,
// so two encryptions of the same plaintext never share key material.
const (
	encSaltSize   = 16
	encNonceSize  = 12
	encTagSize    = 16
	encKeySize    = 32
	encIterations = 100_000
)

// ErrDecrypt is returned for any undecryptable value: wrong secret, truncated
// input, or a failed authentication tag. Callers must treat it as an integrity
// failure, never as "no credential stored".
var ErrDecrypt = errors.New("cryptox: decryption failed")

// Encrypt seals plaintext under a key derived from secret with AES-256-GCM.
func Encrypt(plaintext, secret string) (string, error) {
	if secret == "" {
		return "", errors.New("cryptox: empty encryption secret")
	}

	salt := make([]byte, encSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("cryptox: generate salt: %w", err)
	}

	gcm, err := newGCM(secret, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, encNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("cryptox: generate nonce: %w", err)
	}

	buf := make([]byte, 0, encSaltSize+encNonceSize+len(plaintext)+encTagSize)
	buf = append(buf, salt...)
	buf = append(buf, nonce...)
	buf = gcm.Seal(buf, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(buf), nil
}

// Decrypt reverses Encrypt. It fails closed: any malformed, truncated or
// tampered value yields ErrDecrypt with no partial plaintext.
func Decrypt(value, secret string) (string, error) {
	if secret == "" {
		return "", errors.New("cryptox: empty encryption secret")
	}

	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return "", ErrDecrypt
	}
	if len(raw) < encSaltSize+encNonceSize+encTagSize {
		return "", ErrDecrypt
	}

	salt := raw[:encSaltSize]
	nonce := raw[encSaltSize : encSaltSize+encNonceSize]
	ciphertext := raw[encSaltSize+encNonceSize:]

	gcm, err := newGCM(secret, salt)
	if err != nil {
		return "", err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecrypt
	}

	return string(plaintext), nil
}

// IsEncrypted reports whether a stored value looks like an Encrypt envelope.
// Connection rows written before at-rest encryption existed hold raw provider
// tokens, so readers use this to decide whether Decrypt applies. Signed tokens
// (dotted JWT shapes) and values whose decoded bytes parse as JSON are plain.
func IsEncrypted(value string) bool {
	if value == "" || strings.Contains(value, ".") {
		return false
	}

	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return false
	}
	if len(raw) < encSaltSize+encNonceSize+encTagSize {
		return false
	}
	if json.Valid(raw) {
		return false
	}
	return true
}

func newGCM(secret string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(secret), salt, encIterations, encKeySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptox: create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptox: create gcm: %w", err)
	}
	return gcm, nil
}
