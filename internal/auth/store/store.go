package store

import (
	"context"
	"errors"
	"time"

	"github.com/werkenmetai/exact-mcp/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrConflict reports a conditional update that matched zero rows: another
	// instance already performed the transition. Not retryable.
	ErrConflict = errors.New("store: conflict")
)

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this. Sub-repositories keep concerns tidy and testable.
type Store interface {
	Clients() Clients
	AuthorizationCodes() AuthorizationCodes
	Tokens() Tokens
	APIKeys() APIKeys
	Connections() Connections

	ApplyMigrations() error

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed. Use it for
	// multi-step transitions that must be atomic (code redemption, refresh
	// rotation).
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store scope.
type Tx interface {
	Clients() Clients
	AuthorizationCodes() AuthorizationCodes
	Tokens() Tokens
	APIKeys() APIKeys
	Connections() Connections
}

type Clients interface {
	// CreateClient inserts a new registration. Registrations are immutable.
	CreateClient(ctx context.Context, c domain.Client) error

	// GetClientByID fetches a client for authorization and token exchange.
	GetClientByID(ctx context.Context, id string) (domain.Client, error)
}

type AuthorizationCodes interface {
	// CreateAuthorizationCode stores a freshly minted code.
	CreateAuthorizationCode(ctx context.Context, code domain.AuthorizationCode) error

	// GetAuthorizationCodeByHash fetches a code by its hashed value when redeeming.
	GetAuthorizationCodeByHash(ctx context.Context, hash string) (domain.AuthorizationCode, error)

	// MarkAuthorizationCodeUsed consumes a code. The update is conditional on
	// used_at being null; ErrConflict means another exchange won the race.
	MarkAuthorizationCodeUsed(ctx context.Context, id string, at time.Time) error

	// DeleteExpiredAuthorizationCodes is housekeeping.
	DeleteExpiredAuthorizationCodes(ctx context.Context) error
}

type Tokens interface {
	// CreateToken stores a new access/refresh pair (hashes only).
	CreateToken(ctx context.Context, t domain.Token) error

	// GetTokenByAccessHash looks up a pair by access token fingerprint.
	GetTokenByAccessHash(ctx context.Context, hash string) (domain.Token, error)

	// GetTokenByRefreshHash looks up a pair by refresh token fingerprint.
	GetTokenByRefreshHash(ctx context.Context, hash string) (domain.Token, error)

	// RevokeTokenByHash revokes the pair whose access OR refresh fingerprint
	// matches hash. Revoking an unknown or already revoked token is not an
	// error: the revocation endpoint must not leak token existence.
	RevokeTokenByHash(ctx context.Context, hash string, at time.Time) error

	// RevokeTokenByID revokes a specific row (refresh rotation).
	RevokeTokenByID(ctx context.Context, id string, at time.Time) error

	// DeleteExpiredTokens is housekeeping.
	DeleteExpiredTokens(ctx context.Context) error
}

type APIKeys interface {
	// CreateAPIKey stores a key record (prefix + salted hash).
	CreateAPIKey(ctx context.Context, k domain.APIKey) error

	// ListActiveAPIKeysByPrefix returns all non-revoked keys sharing the
	// lookup prefix. Verification of the full key happens in the service.
	ListActiveAPIKeysByPrefix(ctx context.Context, prefix string) ([]domain.APIKey, error)

	// TouchAPIKeyLastUsed records key usage. Best effort.
	TouchAPIKeyLastUsed(ctx context.Context, id string, at time.Time) error

	// RevokeAPIKey soft-revokes a key.
	RevokeAPIKey(ctx context.Context, id string, at time.Time) error
}

type Connections interface {
	// CreateConnection inserts a new user-upstream link.
	CreateConnection(ctx context.Context, c domain.Connection) error

	// GetConnectionByID fetches a connection row.
	GetConnectionByID(ctx context.Context, id string) (domain.Connection, error)

	// GetConnectionByUserID fetches the connection for a user.
	GetConnectionByUserID(ctx context.Context, userID string) (domain.Connection, error)

	// UpdateConnectionTokens persists refreshed credentials. The update is
	// conditional on token_expires_at still holding prevExpiresAt; ErrConflict
	// means another instance refreshed first and the caller should reload.
	UpdateConnectionTokens(ctx context.Context, id string, prevExpiresAt time.Time, accessToken, refreshToken string, expiresAt time.Time) error

	// SetConnectionRetryCount updates the transient-failure counter.
	SetConnectionRetryCount(ctx context.Context, id string, count int) error

	// MarkConnectionFailed moves a connection to its terminal failed state.
	MarkConnectionFailed(ctx context.Context, id string) error
}
