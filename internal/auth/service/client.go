package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/werkenmetai/exact-mcp/internal/auth/domain"
	"github.com/werkenmetai/exact-mcp/internal/auth/store"
	"github.com/werkenmetai/exact-mcp/pkg/cryptox"
	"github.com/werkenmetai/exact-mcp/pkg/slogx"
)

var (
	ErrInvalidRedirectURI    = errors.New("invalid_redirect_uri")
	ErrInvalidClientMetadata = errors.New("invalid_client_metadata")
)

// ClientService handles dynamic client registration. Registrations are
// immutable: there is no update or delete path.
type ClientService struct {
	Store store.Store
}

// RegisterClientRequest carries the subset of RFC 7591 metadata we accept.
type RegisterClientRequest struct {
	Name                    string
	RedirectURIs            []string
	GrantTypes              []string
	ResponseTypes           []string
	TokenEndpointAuthMethod string
}

// RegisterClientResponse is the one-time registration result. Secret is
// plaintext and never recoverable afterwards; only its hash is stored.
type RegisterClientResponse struct {
	Client domain.Client
	Secret string
}

// RegisterClient validates the metadata and persists a new client.
//
// Redirect URIs must be HTTPS, except loopback hosts (localhost, 127.0.0.1,
// [::1]) which may use HTTP for local development flows. Confidential clients
// (token_endpoint_auth_method other than "none") receive a generated secret.
func (s *ClientService) RegisterClient(ctx context.Context, req RegisterClientRequest) (*RegisterClientResponse, error) {
	l := slogx.FromContext(ctx)

	if len(req.RedirectURIs) == 0 {
		return nil, ErrInvalidRedirectURI
	}
	for _, uri := range req.RedirectURIs {
		if err := validateRedirectURI(uri); err != nil {
			return nil, err
		}
	}

	authMethod := req.TokenEndpointAuthMethod
	if authMethod == "" {
		authMethod = domain.AuthMethodNone
	}
	switch authMethod {
	case domain.AuthMethodNone, domain.AuthMethodBasic, domain.AuthMethodPost:
	default:
		return nil, ErrInvalidClientMetadata
	}

	grantTypes := req.GrantTypes
	if len(grantTypes) == 0 {
		grantTypes = []string{"authorization_code", "refresh_token"}
	}
	for _, gt := range grantTypes {
		if gt != "authorization_code" && gt != "refresh_token" {
			return nil, ErrInvalidClientMetadata
		}
	}

	responseTypes := req.ResponseTypes
	if len(responseTypes) == 0 {
		responseTypes = []string{"code"}
	}
	for _, rt := range responseTypes {
		if rt != "code" {
			return nil, ErrInvalidClientMetadata
		}
	}

	clientID, err := cryptox.NewClientID()
	if err != nil {
		return nil, err
	}

	var (
		secret     string
		secretHash string
	)
	if authMethod != domain.AuthMethodNone {
		secret, err = cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return nil, err
		}
		secretHash, err = cryptox.HashCredential(secret)
		if err != nil {
			return nil, err
		}
	}

	client := domain.Client{
		ID:                      clientID,
		Name:                    strings.TrimSpace(req.Name),
		SecretHash:              secretHash,
		RedirectURIs:            req.RedirectURIs,
		GrantTypes:              grantTypes,
		ResponseTypes:           responseTypes,
		TokenEndpointAuthMethod: authMethod,
		CreatedAt:               time.Now(),
	}

	if err := s.Store.Clients().CreateClient(ctx, client); err != nil {
		l.Error("failed to persist client registration", "error", err)
		return nil, err
	}

	l.Info("client registered",
		"client_id", client.ID,
		"name", client.Name,
		"confidential", secretHash != "",
	)

	return &RegisterClientResponse{Client: client, Secret: secret}, nil
}

func validateRedirectURI(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || u.Fragment != "" {
		return ErrInvalidRedirectURI
	}

	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if isLoopback(u.Hostname()) {
			return nil
		}
	}
	return ErrInvalidRedirectURI
}

func isLoopback(host string) bool {
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
