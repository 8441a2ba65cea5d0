package cryptox_test

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/werkenmetai/exact-mcp/pkg/cryptox"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	t.Parallel()

	secret := "operator-master-secret"
	plaintext := "upstream-refresh-token-value-12345"

	encrypted, err := cryptox.Encrypt(plaintext, secret)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, encrypted)

	decrypted, err := cryptox.Decrypt(encrypted, secret)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

func TestEncryptProducesDistinctCiphertexts(t *testing.T) {
	t.Parallel()

	secret := "operator-master-secret"
	plaintext := "same-plaintext"

	first, err := cryptox.Encrypt(plaintext, secret)
	require.NoError(t, err)
	second, err := cryptox.Encrypt(plaintext, secret)
	require.NoError(t, err)

	require.NotEqual(t, first, second, "random salt and nonce must differ per encryption")

	for _, v := range []string{first, second} {
		out, err := cryptox.Decrypt(v, secret)
		require.NoError(t, err)
		require.Equal(t, plaintext, out)
	}
}

func TestDecryptFailsClosed(t *testing.T) {
	t.Parallel()

	secret := "operator-master-secret"
	encrypted, err := cryptox.Encrypt("sensitive", secret)
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := cryptox.Decrypt(encrypted, "a-different-secret")
		require.ErrorIs(t, err, cryptox.ErrDecrypt)
	})

	t.Run("tampered ciphertext", func(t *testing.T) {
		raw, decErr := base64.StdEncoding.DecodeString(encrypted)
		require.NoError(t, decErr)
		raw[len(raw)-1] ^= 0x01
		_, err := cryptox.Decrypt(base64.StdEncoding.EncodeToString(raw), secret)
		require.ErrorIs(t, err, cryptox.ErrDecrypt)
	})

	t.Run("truncated value", func(t *testing.T) {
		_, err := cryptox.Decrypt(encrypted[:12], secret)
		require.ErrorIs(t, err, cryptox.ErrDecrypt)
	})

	t.Run("not base64", func(t *testing.T) {
		_, err := cryptox.Decrypt("%%%not-base64%%%", secret)
		require.ErrorIs(t, err, cryptox.ErrDecrypt)
	})
}

func TestIsEncrypted(t *testing.T) {
	t.Parallel()

	encrypted, err := cryptox.Encrypt("token-value", "secret")
	require.NoError(t, err)

	t.Run("recognises encrypted envelope", func(t *testing.T) {
		require.True(t, cryptox.IsEncrypted(encrypted))
	})

	t.Run("rejects dotted token shapes", func(t *testing.T) {
		require.False(t, cryptox.IsEncrypted("eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxIn0.sig"))
	})

	t.Run("rejects short and non-base64 values", func(t *testing.T) {
		require.False(t, cryptox.IsEncrypted("plain-token"))
		require.False(t, cryptox.IsEncrypted(base64.StdEncoding.EncodeToString([]byte("tiny"))))
		require.False(t, cryptox.IsEncrypted(""))
	})

	t.Run("rejects base64 that decodes to JSON", func(t *testing.T) {
		payload := []byte(`{"access_token":"abc","expires_in":600,"padding":"xxxxxxxxxxxxxxxx"}`)
		require.False(t, cryptox.IsEncrypted(base64.StdEncoding.EncodeToString(payload)))
	})
}
