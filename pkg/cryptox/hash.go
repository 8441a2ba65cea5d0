package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	hashScheme     = "pbkdf2"
	hashSaltSize   = 16
	hashDigestSize = 32
	hashIterations = 100_000
)

// ErrHashMismatch is returned when a credential does not verify against its
// stored hash.
var ErrHashMismatch = errors.New("cryptox: credential does not match")

// ErrMalformedHash reports a stored hash that is neither the salted format nor
// a legacy digest. Treat it as an integrity failure, not a failed login.
var ErrMalformedHash = errors.New("cryptox: malformed stored hash")

// HashCredential produces a salted, iterated hash in the form
// "pbkdf2$<salt-hex>$<digest-hex>". All newly stored credentials use this
// format; the legacy unsalted digest is accepted on verification only.
func HashCredential(credential string) (string, error) {
	salt := make([]byte, hashSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("cryptox: generate salt: %w", err)
	}

	digest := pbkdf2.Key([]byte(credential), salt, hashIterations, hashDigestSize, sha256.New)

	return fmt.Sprintf("%s$%s$%s",
		hashScheme,
		hex.EncodeToString(salt),
		hex.EncodeToString(digest),
	), nil
}

// VerifyCredential compares a plaintext credential against a stored hash.
// Both the salted format and the legacy bare SHA-256 hex digest are supported.
// The comparison is constant-time over equal-length digests in both paths.
func VerifyCredential(credential, encoded string) error {
	if strings.HasPrefix(encoded, hashScheme+"$") {
		return verifySalted(credential, encoded)
	}
	return verifyLegacy(credential, encoded)
}

func verifySalted(credential, encoded string) error {
	parts := strings.Split(encoded, "$")
	if len(parts) != 3 || parts[0] != hashScheme {
		return ErrMalformedHash
	}

	salt, err := hex.DecodeString(parts[1])
	if err != nil {
		return ErrMalformedHash
	}
	expected, err := hex.DecodeString(parts[2])
	if err != nil || len(expected) != hashDigestSize {
		return ErrMalformedHash
	}

	computed := pbkdf2.Key([]byte(credential), salt, hashIterations, hashDigestSize, sha256.New)
	if subtle.ConstantTimeCompare(computed, expected) == 1 {
		return nil
	}
	return ErrHashMismatch
}

// verifyLegacy handles pre-migration rows: a single unsalted SHA-256 round
// stored as 64 hex characters.
func verifyLegacy(credential, encoded string) error {
	expected, err := hex.DecodeString(encoded)
	if err != nil || len(expected) != sha256.Size {
		return ErrMalformedHash
	}

	computed := sha256.Sum256([]byte(credential))
	if subtle.ConstantTimeCompare(computed[:], expected) == 1 {
		return nil
	}
	return ErrHashMismatch
}
