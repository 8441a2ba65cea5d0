package cryptox_test

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/werkenmetai/exact-mcp/pkg/cryptox"
)

func TestHashCredentialVerifies(t *testing.T) {
	t.Parallel()

	key, err := cryptox.NewAPIKey()
	require.NoError(t, err)

	hash, err := cryptox.HashCredential(key)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(hash, "pbkdf2$"))
	require.Len(t, strings.Split(hash, "$"), 3)

	require.NoError(t, cryptox.VerifyCredential(key, hash))
}

func TestVerifyCredentialRejectsWrongKey(t *testing.T) {
	t.Parallel()

	hash, err := cryptox.HashCredential("exa_correct-key")
	require.NoError(t, err)

	require.ErrorIs(t, cryptox.VerifyCredential("exa_wrong-key", hash), cryptox.ErrHashMismatch)
}

func TestVerifyCredentialRejectsAlteredHash(t *testing.T) {
	t.Parallel()

	hash, err := cryptox.HashCredential("exa_some-key")
	require.NoError(t, err)

	// Flip one hex character of the digest.
	last := hash[len(hash)-1]
	altered := hash[:len(hash)-1]
	if last == '0' {
		altered += "1"
	} else {
		altered += "0"
	}

	require.Error(t, cryptox.VerifyCredential("exa_some-key", altered))
}

func TestVerifyCredentialLegacyDigest(t *testing.T) {
	t.Parallel()

	key := "exa_legacy-key-value"
	sum := sha256.Sum256([]byte(key))
	legacy := hex.EncodeToString(sum[:])

	require.NoError(t, cryptox.VerifyCredential(key, legacy))
	require.ErrorIs(t, cryptox.VerifyCredential("exa_other", legacy), cryptox.ErrHashMismatch)
}

func TestVerifyCredentialMalformedHash(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, cryptox.VerifyCredential("key", "not-a-hash"), cryptox.ErrMalformedHash)
	require.ErrorIs(t, cryptox.VerifyCredential("key", "pbkdf2$zz$zz"), cryptox.ErrMalformedHash)
	require.ErrorIs(t, cryptox.VerifyCredential("key", "pbkdf2$00ff"), cryptox.ErrMalformedHash)
}

func TestCredentialFormats(t *testing.T) {
	t.Parallel()

	t.Run("client id", func(t *testing.T) {
		id, err := cryptox.NewClientID()
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(id, "mcp_"))
		require.Len(t, id, len("mcp_")+32)
	})

	t.Run("access and refresh tokens", func(t *testing.T) {
		at, err := cryptox.NewAccessToken()
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(at, "mcp_at_"))
		require.Len(t, at, len("mcp_at_")+64)

		rt, err := cryptox.NewRefreshToken()
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(rt, "mcp_rt_"))
		require.Len(t, rt, len("mcp_rt_")+64)
	})

	t.Run("api key lookup prefix", func(t *testing.T) {
		key, err := cryptox.NewAPIKey()
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(key, "exa_"))

		prefix := cryptox.APIKeyLookupPrefix(key)
		require.Len(t, prefix, 12)
		require.True(t, strings.HasPrefix(key, prefix))
	})

	t.Run("fingerprint is stable hex", func(t *testing.T) {
		fp := cryptox.Fingerprint("mcp_at_abc")
		require.Len(t, fp, 64)
		require.Equal(t, fp, cryptox.Fingerprint("mcp_at_abc"))
		require.NotEqual(t, fp, cryptox.Fingerprint("mcp_at_abd"))
	})
}
