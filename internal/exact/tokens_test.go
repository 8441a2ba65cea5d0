package exact

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/werkenmetai/exact-mcp/internal/auth/domain"
	"github.com/werkenmetai/exact-mcp/internal/auth/store/drivers/sqlite"
	"github.com/werkenmetai/exact-mcp/pkg/cryptox"
	"github.com/werkenmetai/exact-mcp/pkg/idx"
	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-master-secret"

func newConnectionStore(t *testing.T, expiresAt time.Time) (*sqlite.Store, string) {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	encAccess, err := cryptox.Encrypt("upstream-access-token", testSecret)
	require.NoError(t, err)
	encRefresh, err := cryptox.Encrypt("upstream-refresh-token", testSecret)
	require.NoError(t, err)

	conn := domain.Connection{
		ID:             idx.New().String(),
		UserID:         "user-1",
		AccessToken:    encAccess,
		RefreshToken:   encRefresh,
		Region:         "nl",
		Division:       "123456",
		TokenExpiresAt: expiresAt,
		Status:         domain.ConnectionActive,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	require.NoError(t, st.Connections().CreateConnection(context.Background(), conn))
	return st, conn.ID
}

func TestTokenReturnsCachedWhenFresh(t *testing.T) {
	st, connID := newConnectionStore(t, time.Now().Add(time.Hour))

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	m := &TokenManager{
		Store:  st,
		Config: OAuthConfig{TokenURL: srv.URL},
		Secret: testSecret,
	}

	token, err := m.Token(context.Background(), connID)
	require.NoError(t, err)
	require.Equal(t, "upstream-access-token", token)
	require.Zero(t, calls.Load())
}

func TestTokenRefreshesNearExpiry(t *testing.T) {
	st, connID := newConnectionStore(t, time.Now().Add(time.Minute))

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		require.Equal(t, "upstream-refresh-token", r.Form.Get("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh-access","refresh_token":"fresh-refresh","expires_in":"600"}`))
	}))
	defer srv.Close()

	m := &TokenManager{
		Store:  st,
		Config: OAuthConfig{ClientID: "cid", ClientSecret: "csecret", TokenURL: srv.URL},
		Secret: testSecret,
	}

	token, err := m.Token(context.Background(), connID)
	require.NoError(t, err)
	require.Equal(t, "fresh-access", token)
	require.Equal(t, int32(1), calls.Load())

	// The stored row now holds the rotated pair, encrypted.
	conn, err := st.Connections().GetConnectionByID(context.Background(), connID)
	require.NoError(t, err)
	require.NotEqual(t, "fresh-access", conn.AccessToken)

	plain, err := cryptox.Decrypt(conn.AccessToken, testSecret)
	require.NoError(t, err)
	require.Equal(t, "fresh-access", plain)
	require.True(t, conn.TokenExpiresAt.After(time.Now().Add(5*time.Minute)))
	require.Zero(t, conn.RetryCount)

	// A follow-up call serves the fresh token from the store.
	token, err = m.Token(context.Background(), connID)
	require.NoError(t, err)
	require.Equal(t, "fresh-access", token)
	require.Equal(t, int32(1), calls.Load())
}

func TestTokenSingleFlight(t *testing.T) {
	st, connID := newConnectionStore(t, time.Now().Add(time.Minute))

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(100 * time.Millisecond) // widen the window so callers pile up
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"flight-access","refresh_token":"flight-refresh","expires_in":"600"}`))
	}))
	defer srv.Close()

	m := &TokenManager{
		Store:  st,
		Config: OAuthConfig{TokenURL: srv.URL},
		Secret: testSecret,
	}

	const callers = 10
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = m.Token(context.Background(), connID)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "flight-access", results[i])
	}
	require.Equal(t, int32(1), calls.Load(), "concurrent callers must share one refresh")
}

func TestTokenInvalidGrantIsTerminal(t *testing.T) {
	st, connID := newConnectionStore(t, time.Now().Add(time.Minute))

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	m := &TokenManager{
		Store:  st,
		Config: OAuthConfig{TokenURL: srv.URL},
		Secret: testSecret,
	}

	_, err := m.Token(context.Background(), connID)
	require.ErrorIs(t, err, ErrReauthRequired)
	require.Equal(t, int32(1), calls.Load(), "credential rejection must not be retried")

	conn, err := st.Connections().GetConnectionByID(context.Background(), connID)
	require.NoError(t, err)
	require.Equal(t, domain.ConnectionFailed, conn.Status)

	// Subsequent calls fail fast without touching the network.
	_, err = m.Token(context.Background(), connID)
	require.ErrorIs(t, err, ErrReauthRequired)
	require.Equal(t, int32(1), calls.Load())
}

func TestTokenTransientFailuresRetryThenSucceed(t *testing.T) {
	st, connID := newConnectionStore(t, time.Now().Add(time.Minute))

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"eventually","refresh_token":"eventually-r","expires_in":"600"}`))
	}))
	defer srv.Close()

	m := &TokenManager{
		Store:  st,
		Config: OAuthConfig{TokenURL: srv.URL},
		Secret: testSecret,
	}

	token, err := m.Token(context.Background(), connID)
	require.NoError(t, err)
	require.Equal(t, "eventually", token)
	require.Equal(t, int32(3), calls.Load())
}

func TestTokenRefreshExhaustionCountsRetries(t *testing.T) {
	st, connID := newConnectionStore(t, time.Now().Add(time.Minute))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m := &TokenManager{
		Store:  st,
		Config: OAuthConfig{TokenURL: srv.URL},
		Secret: testSecret,
	}

	_, err := m.Token(context.Background(), connID)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrReauthRequired)

	conn, err := st.Connections().GetConnectionByID(context.Background(), connID)
	require.NoError(t, err)
	require.Equal(t, domain.ConnectionActive, conn.Status)
	require.Equal(t, 1, conn.RetryCount)
}
