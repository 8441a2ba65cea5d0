package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/werkenmetai/exact-mcp/internal/auth/domain"
	"github.com/werkenmetai/exact-mcp/internal/auth/store"
	"github.com/werkenmetai/exact-mcp/pkg/cryptox"
	"github.com/werkenmetai/exact-mcp/pkg/idx"
	"github.com/werkenmetai/exact-mcp/pkg/slogx"
)

var (
	ErrInvalidGrant = errors.New("invalid_grant")
	ErrInvalidToken = errors.New("invalid_token")
)

// Default token lifetimes.
const (
	DefaultAccessTTL  = time.Hour
	DefaultRefreshTTL = 30 * 24 * time.Hour
)

// TokenService issues, rotates, revokes and validates first-party tokens.
// Tokens are opaque: the database holds fingerprints only.
type TokenService struct {
	Store      store.Store
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenPair is the result of a successful grant.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64
	Scope        []string
}

// ExchangeAuthorizationCode implements the authorization_code grant.
//
// Any defect in the presented code (unknown, expired, already used, redirect
// mismatch, PKCE failure) collapses into ErrInvalidGrant: the response must
// not reveal which check failed. Consuming the code and creating the token
// pair happen in one transaction, and mark-used is conditional so a code can
// be redeemed at most once across instances.
func (s *TokenService) ExchangeAuthorizationCode(
	ctx context.Context,
	clientID, clientSecret, code, redirectURI, codeVerifier string,
) (*TokenPair, error) {
	l := slogx.FromContext(ctx)
	now := time.Now()

	client, err := s.authenticateClient(ctx, clientID, clientSecret)
	if err != nil {
		return nil, err
	}

	code = strings.TrimSpace(code)
	if code == "" || redirectURI == "" || codeVerifier == "" {
		return nil, ErrInvalidGrant
	}

	var pair *TokenPair
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		authCode, err := tx.AuthorizationCodes().GetAuthorizationCodeByHash(ctx, cryptox.Fingerprint(code))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidGrant
			}
			return err
		}

		if authCode.ClientID != client.ID {
			return ErrInvalidGrant
		}
		if authCode.RedirectURI != redirectURI {
			return ErrInvalidGrant
		}
		if authCode.UsedAt != nil || now.After(authCode.ExpiresAt) {
			return ErrInvalidGrant
		}
		if !verifyCodeVerifier(authCode.CodeChallenge, codeVerifier) {
			return ErrInvalidGrant
		}

		if err := tx.AuthorizationCodes().MarkAuthorizationCodeUsed(ctx, authCode.ID, now); err != nil {
			if errors.Is(err, store.ErrConflict) {
				// Another exchange consumed the code between our read and write.
				return ErrInvalidGrant
			}
			return err
		}

		pair, err = s.issuePair(ctx, tx, client.ID, authCode.UserID, authCode.Scope, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	l.Info("authorization code exchanged", "client_id", client.ID)
	return pair, nil
}

// ExchangeRefreshToken implements the refresh_token grant with rotation: the
// presented pair is revoked and a fresh pair issued atomically. A refresh
// token is therefore usable exactly once.
func (s *TokenService) ExchangeRefreshToken(
	ctx context.Context,
	clientID, clientSecret, refreshToken string,
) (*TokenPair, error) {
	l := slogx.FromContext(ctx)
	now := time.Now()

	client, err := s.authenticateClient(ctx, clientID, clientSecret)
	if err != nil {
		return nil, err
	}

	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, ErrInvalidGrant
	}

	var pair *TokenPair
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		current, err := tx.Tokens().GetTokenByRefreshHash(ctx, cryptox.Fingerprint(refreshToken))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidGrant
			}
			return err
		}

		if current.ClientID != client.ID {
			return ErrInvalidGrant
		}
		if !current.RefreshValid(now) {
			return ErrInvalidGrant
		}

		if err := tx.Tokens().RevokeTokenByID(ctx, current.ID, now); err != nil {
			return err
		}

		pair, err = s.issuePair(ctx, tx, client.ID, current.UserID, current.Scope, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	l.Info("refresh token rotated", "client_id", client.ID)
	return pair, nil
}

// Revoke invalidates the pair whose access or refresh token matches the
// presented value. Unknown and already revoked tokens are silently accepted:
// revocation must not be usable as an existence oracle.
func (s *TokenService) Revoke(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	return s.Store.Tokens().RevokeTokenByHash(ctx, cryptox.Fingerprint(token), time.Now())
}

// ValidateAccessToken resolves a presented bearer token to its record.
// Unknown, revoked and expired tokens all return ErrInvalidToken.
func (s *TokenService) ValidateAccessToken(ctx context.Context, token string) (domain.Token, error) {
	token = strings.TrimSpace(token)
	if !strings.HasPrefix(token, cryptox.AccessTokenPrefix) {
		return domain.Token{}, ErrInvalidToken
	}

	record, err := s.Store.Tokens().GetTokenByAccessHash(ctx, cryptox.Fingerprint(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Token{}, ErrInvalidToken
		}
		return domain.Token{}, err
	}

	if !record.AccessValid(time.Now()) {
		return domain.Token{}, ErrInvalidToken
	}
	return record, nil
}

// authenticateClient resolves and, for confidential clients, authenticates the
// caller. Failures are indistinguishable between unknown client and bad
// secret.
func (s *TokenService) authenticateClient(ctx context.Context, clientID, clientSecret string) (domain.Client, error) {
	client, err := s.Store.Clients().GetClientByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Client{}, ErrInvalidClient
		}
		return domain.Client{}, err
	}

	if client.Public() {
		return client, nil
	}

	if clientSecret == "" || cryptox.VerifyCredential(clientSecret, client.SecretHash) != nil {
		return domain.Client{}, ErrInvalidClient
	}
	return client, nil
}

func (s *TokenService) issuePair(
	ctx context.Context,
	tx store.Tx,
	clientID, userID string,
	scope []string,
	now time.Time,
) (*TokenPair, error) {
	accessToken, err := cryptox.NewAccessToken()
	if err != nil {
		return nil, err
	}
	refreshToken, err := cryptox.NewRefreshToken()
	if err != nil {
		return nil, err
	}

	accessTTL := s.AccessTTL
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	refreshTTL := s.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}

	record := domain.Token{
		ID:               idx.New().String(),
		ClientID:         clientID,
		UserID:           userID,
		AccessTokenHash:  cryptox.Fingerprint(accessToken),
		RefreshTokenHash: cryptox.Fingerprint(refreshToken),
		Scope:            scope,
		AccessExpiresAt:  now.Add(accessTTL),
		RefreshExpiresAt: now.Add(refreshTTL),
		CreatedAt:        now,
	}
	if err := tx.Tokens().CreateToken(ctx, record); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(accessTTL.Seconds()),
		Scope:        scope,
	}, nil
}

// verifyCodeVerifier checks the S256 PKCE binding: the challenge recorded at
// authorization time must equal base64url(sha256(verifier)).
func verifyCodeVerifier(challenge, verifier string) bool {
	if challenge == "" || verifier == "" {
		return false
	}
	sum := sha256.Sum256([]byte(verifier))
	computed := base64.RawURLEncoding.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}
