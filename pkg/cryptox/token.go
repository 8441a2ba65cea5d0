package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// Credential wire formats. These prefixes are part of the public contract and
// must not change: clients and stored rows both depend on them.
const (
	ClientIDPrefix     = "mcp_"
	AccessTokenPrefix  = "mcp_at_"
	RefreshTokenPrefix = "mcp_rt_"
	APIKeyPrefix       = "exa_"

	// APIKeyLookupLen is the number of leading characters stored alongside an
	// API key hash for indexed lookup.
	APIKeyLookupLen = 12
)

// Token size constants (in bytes before encoding).
const (
	TokenSize128 = 16
	TokenSize256 = 32
)

// GenerateToken creates a cryptographically secure random token of the given
// byte length, base64url-encoded without padding. Used for authorization codes
// and client secrets, where no recognisable prefix is wanted.
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("cryptox: token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cryptox: generate random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewClientID mints a first-party client identifier: "mcp_" + 32 hex chars.
func NewClientID() (string, error) {
	return prefixedHex(ClientIDPrefix, TokenSize128)
}

// NewAccessToken mints an opaque access token: "mcp_at_" + 64 hex chars.
func NewAccessToken() (string, error) {
	return prefixedHex(AccessTokenPrefix, TokenSize256)
}

// NewRefreshToken mints an opaque refresh token: "mcp_rt_" + 64 hex chars.
func NewRefreshToken() (string, error) {
	return prefixedHex(RefreshTokenPrefix, TokenSize256)
}

// NewAPIKey mints a static API key: "exa_" + 48 hex chars. Keys are issued out
// of band and only the prefix plus a salted hash are persisted.
func NewAPIKey() (string, error) {
	return prefixedHex(APIKeyPrefix, 24)
}

// APIKeyLookupPrefix returns the indexed lookup prefix for a presented key.
func APIKeyLookupPrefix(key string) string {
	if len(key) < APIKeyLookupLen {
		return key
	}
	return key[:APIKeyLookupLen]
}

// Fingerprint returns the deterministic SHA-256 digest of a token as 64 hex
// characters. Opaque tokens are stored and looked up by fingerprint so the
// plaintext never touches the database.
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func prefixedHex(prefix string, size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cryptox: generate random token: %w", err)
	}
	return prefix + hex.EncodeToString(buf), nil
}
