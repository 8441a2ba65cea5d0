package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/werkenmetai/exact-mcp/internal/auth/domain"
	"github.com/werkenmetai/exact-mcp/internal/auth/store"
	"github.com/werkenmetai/exact-mcp/pkg/idx"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()

	st, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())
	return st
}

func seedClient(t *testing.T, st *Store) domain.Client {
	t.Helper()

	c := domain.Client{
		ID:                      "mcp_" + idx.New().String(),
		Name:                    "test",
		RedirectURIs:            []string{"https://app.example.com/cb"},
		GrantTypes:              []string{"authorization_code", "refresh_token"},
		ResponseTypes:           []string{"code"},
		TokenEndpointAuthMethod: domain.AuthMethodNone,
		CreatedAt:               time.Now(),
	}
	require.NoError(t, st.Clients().CreateClient(context.Background(), c))
	return c
}

func TestMarkAuthorizationCodeUsedIsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	client := seedClient(t, st)

	code := domain.AuthorizationCode{
		ID:                  idx.New().String(),
		UserID:              "user-1",
		ClientID:            client.ID,
		CodeHash:            "hash-1",
		RedirectURI:         "https://app.example.com/cb",
		CodeChallenge:       "challenge",
		CodeChallengeMethod: "S256",
		ExpiresAt:           time.Now().Add(10 * time.Minute),
		CreatedAt:           time.Now(),
	}
	require.NoError(t, st.AuthorizationCodes().CreateAuthorizationCode(ctx, code))

	require.NoError(t, st.AuthorizationCodes().MarkAuthorizationCodeUsed(ctx, code.ID, time.Now()))

	// The second transition loses the race by definition.
	err := st.AuthorizationCodes().MarkAuthorizationCodeUsed(ctx, code.ID, time.Now())
	require.ErrorIs(t, err, store.ErrConflict)

	got, err := st.AuthorizationCodes().GetAuthorizationCodeByHash(ctx, "hash-1")
	require.NoError(t, err)
	require.NotNil(t, got.UsedAt)
}

func TestRevokeTokenByHashMatchesEitherHalf(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	client := seedClient(t, st)

	tok := domain.Token{
		ID:               idx.New().String(),
		ClientID:         client.ID,
		UserID:           "user-1",
		AccessTokenHash:  "access-hash",
		RefreshTokenHash: "refresh-hash",
		AccessExpiresAt:  time.Now().Add(time.Hour),
		RefreshExpiresAt: time.Now().Add(24 * time.Hour),
		CreatedAt:        time.Now(),
	}
	require.NoError(t, st.Tokens().CreateToken(ctx, tok))

	require.NoError(t, st.Tokens().RevokeTokenByHash(ctx, "refresh-hash", time.Now()))

	got, err := st.Tokens().GetTokenByAccessHash(ctx, "access-hash")
	require.NoError(t, err)
	require.NotNil(t, got.RevokedAt)

	// Unknown hashes are silently accepted.
	require.NoError(t, st.Tokens().RevokeTokenByHash(ctx, "no-such-hash", time.Now()))
}

func TestUpdateConnectionTokensIsConditional(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	readExpiry := time.Now().Add(time.Minute).UTC().Truncate(time.Second)
	conn := domain.Connection{
		ID:             idx.New().String(),
		UserID:         "user-1",
		AccessToken:    "enc-a",
		RefreshToken:   "enc-r",
		Region:         "nl",
		TokenExpiresAt: readExpiry,
		Status:         domain.ConnectionActive,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	require.NoError(t, st.Connections().CreateConnection(ctx, conn))

	newExpiry := time.Now().Add(10 * time.Minute)
	require.NoError(t, st.Connections().UpdateConnectionTokens(
		ctx, conn.ID, readExpiry, "enc-a2", "enc-r2", newExpiry,
	))

	// A write keyed on the stale expiry means another instance already
	// refreshed; it must not overwrite.
	err := st.Connections().UpdateConnectionTokens(
		ctx, conn.ID, readExpiry, "enc-a3", "enc-r3", time.Now().Add(20*time.Minute),
	)
	require.ErrorIs(t, err, store.ErrConflict)

	got, err := st.Connections().GetConnectionByID(ctx, conn.ID)
	require.NoError(t, err)
	require.Equal(t, "enc-a2", got.AccessToken)
	require.Equal(t, "enc-r2", got.RefreshToken)
	require.Zero(t, got.RetryCount)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	client := seedClient(t, st)

	boom := errors.New("boom")
	err := st.WithTx(ctx, func(tx store.Tx) error {
		tok := domain.Token{
			ID:               idx.New().String(),
			ClientID:         client.ID,
			UserID:           "user-1",
			AccessTokenHash:  "tx-access",
			RefreshTokenHash: "tx-refresh",
			AccessExpiresAt:  time.Now().Add(time.Hour),
			RefreshExpiresAt: time.Now().Add(24 * time.Hour),
			CreatedAt:        time.Now(),
		}
		if err := tx.Tokens().CreateToken(ctx, tok); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = st.Tokens().GetTokenByAccessHash(ctx, "tx-access")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestConnectionLookupByUser(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	conn := domain.Connection{
		ID:             idx.New().String(),
		UserID:         "user-9",
		TokenExpiresAt: time.Now().Add(time.Hour),
		Status:         domain.ConnectionActive,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	require.NoError(t, st.Connections().CreateConnection(ctx, conn))

	got, err := st.Connections().GetConnectionByUserID(ctx, "user-9")
	require.NoError(t, err)
	require.Equal(t, conn.ID, got.ID)

	_, err = st.Connections().GetConnectionByUserID(ctx, "nobody")
	require.ErrorIs(t, err, store.ErrNotFound)
}
