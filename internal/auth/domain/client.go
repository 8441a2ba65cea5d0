package domain

import "time"

// Token endpoint authentication methods.
const (
	AuthMethodNone  = "none"
	AuthMethodBasic = "client_secret_basic"
	AuthMethodPost  = "client_secret_post"
)

// Client is a registered application allowed to request first-party tokens.
// Registration is immutable: rows are never updated or deleted.
type Client struct {
	ID                      string
	Name                    string
	SecretHash              string // empty for public clients
	RedirectURIs            []string
	GrantTypes              []string
	ResponseTypes           []string
	TokenEndpointAuthMethod string
	CreatedAt               time.Time
}

// Public reports whether the client authenticates without a secret.
func (c Client) Public() bool {
	return c.SecretHash == "" || c.TokenEndpointAuthMethod == AuthMethodNone
}
