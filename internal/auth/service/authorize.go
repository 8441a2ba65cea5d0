package service

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/werkenmetai/exact-mcp/internal/auth/domain"
	"github.com/werkenmetai/exact-mcp/internal/auth/store"
	"github.com/werkenmetai/exact-mcp/pkg/cryptox"
	"github.com/werkenmetai/exact-mcp/pkg/idx"
	"github.com/werkenmetai/exact-mcp/pkg/slogx"
)

var (
	ErrInvalidRequest          = errors.New("invalid_request")
	ErrInvalidClient           = errors.New("invalid_client")
	ErrUnsupportedResponseType = errors.New("unsupported_response_type")
)

// DefaultCodeTTL bounds the window between login approval and token exchange.
const DefaultCodeTTL = 10 * time.Minute

// AuthorizeService validates authorization requests and issues single-use
// authorization codes once the login surface has authenticated the user.
type AuthorizeService struct {
	Store   store.Store
	CodeTTL time.Duration
}

// AuthorizeRequest carries the query parameters of an authorization request.
type AuthorizeRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               []string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// ValidateRequest checks the request against the registered client before any
// redirect happens. PKCE is mandatory for every client and only S256 is
// accepted: plain would leave the code bound to a guessable secret.
func (s *AuthorizeService) ValidateRequest(ctx context.Context, req AuthorizeRequest) (domain.Client, error) {
	client, err := s.Store.Clients().GetClientByID(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Client{}, ErrInvalidClient
		}
		return domain.Client{}, err
	}

	// Exact string match only. No prefix or wildcard matching.
	if !slices.Contains(client.RedirectURIs, req.RedirectURI) {
		return domain.Client{}, ErrInvalidRequest
	}

	if req.ResponseType != "code" {
		return domain.Client{}, ErrUnsupportedResponseType
	}

	if req.CodeChallenge == "" {
		return domain.Client{}, ErrInvalidRequest
	}
	if req.CodeChallengeMethod != "" && req.CodeChallengeMethod != "S256" {
		return domain.Client{}, ErrInvalidRequest
	}

	return client, nil
}

// IssueAuthorizationCode mints a single-use code after the user approved the
// request on the login surface. The code itself is returned once; only its
// fingerprint is stored.
func (s *AuthorizeService) IssueAuthorizationCode(ctx context.Context, userID string, req AuthorizeRequest) (string, error) {
	l := slogx.FromContext(ctx)

	if _, err := s.ValidateRequest(ctx, req); err != nil {
		return "", err
	}

	code, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}

	ttl := s.CodeTTL
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}

	now := time.Now()
	record := domain.AuthorizationCode{
		ID:                  idx.New().String(),
		UserID:              userID,
		ClientID:            req.ClientID,
		CodeHash:            cryptox.Fingerprint(code),
		RedirectURI:         req.RedirectURI,
		Scope:               req.Scope,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: "S256",
		ExpiresAt:           now.Add(ttl),
		CreatedAt:           now,
	}

	if err := s.Store.AuthorizationCodes().CreateAuthorizationCode(ctx, record); err != nil {
		l.Error("failed to persist authorization code", "error", err)
		return "", err
	}

	l.Info("authorization code issued",
		"client_id", req.ClientID,
		"user_id", userID,
	)
	return code, nil
}
