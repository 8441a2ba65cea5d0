package exact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"github.com/werkenmetai/exact-mcp/internal/auth/domain"
	"github.com/werkenmetai/exact-mcp/internal/auth/store"
	"github.com/werkenmetai/exact-mcp/pkg/cryptox"
	"github.com/werkenmetai/exact-mcp/pkg/slogx"
)

// Token manager defaults.
const (
	// DefaultRefreshBuffer is how much remaining lifetime triggers a proactive
	// refresh. Sized so a token handed out at the start of a long multi-step
	// conversation stays valid throughout.
	DefaultRefreshBuffer = 10 * time.Minute

	// DefaultRefreshTimeout caps one refresh attempt including backoff.
	DefaultRefreshTimeout = 30 * time.Second

	maxRefreshAttempts = 4

	// maxPersistedRetries is how many refresh rounds may exhaust their
	// attempts before the connection is marked failed for good.
	maxPersistedRetries = 3
)

// OAuthConfig carries the upstream provider's OAuth client credentials.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// TokenManager owns the provider credentials of connections. Token returns a
// valid upstream access token for a connection, refreshing it proactively and
// at most once regardless of how many callers ask concurrently.
type TokenManager struct {
	Store  store.Store
	Config OAuthConfig

	// Secret is the at-rest encryption secret for stored provider tokens.
	Secret string

	// Buffer is the remaining-lifetime threshold below which a refresh is
	// triggered. Defaults to DefaultRefreshBuffer.
	Buffer time.Duration

	// HTTPClient defaults to a client with DefaultRefreshTimeout.
	HTTPClient *http.Client

	group singleflight.Group
}

// Token returns a decrypted upstream access token for the connection,
// refreshing first when the cached one is close to expiry.
func (m *TokenManager) Token(ctx context.Context, connectionID string) (string, error) {
	conn, err := m.Store.Connections().GetConnectionByID(ctx, connectionID)
	if err != nil {
		return "", err
	}

	if conn.Status == domain.ConnectionFailed {
		return "", ErrReauthRequired
	}

	if m.fresh(conn) {
		return cryptox.Decrypt(conn.AccessToken, m.Secret)
	}

	// Refreshes run detached from the caller's deadline: an abandoned request
	// must not leave the shared credential state half-updated, and other
	// callers attached to the same flight still want the result.
	refreshCtx := context.WithoutCancel(ctx)

	token, err, _ := m.group.Do(connectionID, func() (any, error) {
		return m.refresh(refreshCtx, connectionID)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (m *TokenManager) fresh(conn domain.Connection) bool {
	buffer := m.Buffer
	if buffer <= 0 {
		buffer = DefaultRefreshBuffer
	}
	return time.Until(conn.TokenExpiresAt) > buffer
}

// refresh performs the actual upstream token refresh for one connection.
// Exactly one refresh per connection runs at a time; concurrent Token calls
// share this flight's result.
func (m *TokenManager) refresh(ctx context.Context, connectionID string) (string, error) {
	log := slogx.FromContext(ctx)

	// Reload inside the flight: a previous flight (or another instance) may
	// already have refreshed while we waited.
	conn, err := m.Store.Connections().GetConnectionByID(ctx, connectionID)
	if err != nil {
		return "", err
	}
	if conn.Status == domain.ConnectionFailed {
		return "", ErrReauthRequired
	}
	if m.fresh(conn) {
		return cryptox.Decrypt(conn.AccessToken, m.Secret)
	}

	refreshToken, err := cryptox.Decrypt(conn.RefreshToken, m.Secret)
	if err != nil {
		// Fail closed. A credential that cannot be decrypted is an integrity
		// incident, not a missing credential.
		log.Error("stored refresh token failed to decrypt", "connection_id", conn.ID)
		return "", err
	}

	grant, err := m.requestRefresh(ctx, refreshToken)
	if err != nil {
		return "", m.recordRefreshFailure(ctx, conn, err)
	}

	encAccess, err := cryptox.Encrypt(grant.AccessToken, m.Secret)
	if err != nil {
		return "", err
	}
	encRefresh, err := cryptox.Encrypt(grant.RefreshToken, m.Secret)
	if err != nil {
		return "", err
	}

	expiresAt := time.Now().Add(grant.lifetime())
	err = m.Store.Connections().UpdateConnectionTokens(
		ctx, conn.ID, conn.TokenExpiresAt, encAccess, encRefresh, expiresAt,
	)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Another instance rotated the credentials between our read and
			// write. Its result is authoritative; ours would orphan the chain.
			log.Info("refresh lost conditional update, reloading", "connection_id", conn.ID)
			current, err := m.Store.Connections().GetConnectionByID(ctx, conn.ID)
			if err != nil {
				return "", err
			}
			return cryptox.Decrypt(current.AccessToken, m.Secret)
		}
		return "", err
	}

	log.Info("upstream token refreshed", "connection_id", conn.ID, "expires_at", expiresAt)
	return grant.AccessToken, nil
}

// recordRefreshFailure updates the connection's health after a failed refresh
// round. A credential-level rejection is terminal immediately; transient
// exhaustion is terminal after maxPersistedRetries rounds.
func (m *TokenManager) recordRefreshFailure(ctx context.Context, conn domain.Connection, cause error) error {
	log := slogx.FromContext(ctx)

	if errors.Is(cause, ErrReauthRequired) {
		if err := m.Store.Connections().MarkConnectionFailed(ctx, conn.ID); err != nil {
			log.Error("failed to mark connection failed", "connection_id", conn.ID, "err", err)
		}
		return ErrReauthRequired
	}

	retries := conn.RetryCount + 1
	if retries >= maxPersistedRetries {
		if err := m.Store.Connections().MarkConnectionFailed(ctx, conn.ID); err != nil {
			log.Error("failed to mark connection failed", "connection_id", conn.ID, "err", err)
		}
		log.Warn("connection failed after repeated refresh exhaustion",
			"connection_id", conn.ID, "retries", retries)
		return ErrReauthRequired
	}

	if err := m.Store.Connections().SetConnectionRetryCount(ctx, conn.ID, retries); err != nil {
		log.Error("failed to persist retry count", "connection_id", conn.ID, "err", err)
	}
	return cause
}

type refreshGrant struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`

	// The provider serializes expires_in as a JSON string; json.Number accepts
	// both that and a plain number.
	ExpiresIn json.Number `json:"expires_in"`
}

func (g *refreshGrant) lifetime() time.Duration {
	secs, err := g.ExpiresIn.Int64()
	if err != nil || secs <= 0 {
		secs = 600
	}
	return time.Duration(secs) * time.Second
}

// requestRefresh exchanges the refresh token at the upstream token endpoint.
// Transient failures (network resets, timeouts, 5xx) are retried with
// exponential backoff; a credential rejection aborts immediately with
// ErrReauthRequired.
func (m *TokenManager) requestRefresh(ctx context.Context, refreshToken string) (*refreshGrant, error) {
	var grant *refreshGrant

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = DefaultRefreshTimeout

	operation := func() error {
		g, err := m.doRefreshRequest(ctx, refreshToken)
		if err != nil {
			if errors.Is(err, ErrReauthRequired) {
				return backoff.Permanent(err)
			}
			return err
		}
		grant = g
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, maxRefreshAttempts-1), ctx,
	))
	if err != nil {
		return nil, err
	}
	return grant, nil
}

func (m *TokenManager) doRefreshRequest(ctx context.Context, refreshToken string) (*refreshGrant, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", m.Config.ClientID)
	form.Set("client_secret", m.Config.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.Config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		var oauthErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &oauthErr)
		if oauthErr.Error == "invalid_grant" || oauthErr.Error == "invalid_client" {
			return nil, ErrReauthRequired
		}
		return nil, fmt.Errorf("exact: token refresh rejected: %s", strings.TrimSpace(string(body)))
	default:
		return nil, fmt.Errorf("exact: token endpoint returned %d", resp.StatusCode)
	}

	var grant refreshGrant
	if err := json.Unmarshal(body, &grant); err != nil {
		return nil, fmt.Errorf("exact: decode token response: %w", err)
	}
	if grant.AccessToken == "" || grant.RefreshToken == "" {
		return nil, fmt.Errorf("exact: token response missing credentials")
	}
	return &grant, nil
}

func (m *TokenManager) httpClient() *http.Client {
	if m.HTTPClient != nil {
		return m.HTTPClient
	}
	return &http.Client{Timeout: DefaultRefreshTimeout}
}
