package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/werkenmetai/exact-mcp/internal/auth/service"
	"github.com/werkenmetai/exact-mcp/pkg/cryptox"
	"github.com/werkenmetai/exact-mcp/pkg/httpx"
)

// Identity is the resolved caller of an authenticated request.
type Identity struct {
	UserID string
	Scope  []string

	// Method records which credential type authenticated the request:
	// "bearer" or "api_key".
	Method string
}

type identityKey struct{}

// IdentityFromContext returns the authenticated caller, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

var errUnauthorized = &OAuth2Error{
	StatusCode:  http.StatusUnauthorized,
	Code:        "invalid_token",
	Description: "missing or invalid credentials",
}

// Authenticate resolves the request's credential to an identity. Both
// first-party bearer tokens and static API keys are accepted, dispatched on
// the credential's prefix. Unknown, revoked and expired credentials all
// produce the same 401.
func Authenticate(tokens *service.TokenService, apiKeys *service.APIKeyService) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			raw = strings.TrimSpace(raw)
			if raw == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
				errUnauthorized.WriteError(w)
				return
			}

			ctx := r.Context()

			var identity Identity
			switch {
			case strings.HasPrefix(raw, cryptox.APIKeyPrefix):
				key, err := apiKeys.Authenticate(ctx, raw)
				if err != nil {
					errUnauthorized.WriteError(w)
					return
				}
				identity = Identity{UserID: key.UserID, Method: "api_key"}
			default:
				record, err := tokens.ValidateAccessToken(ctx, raw)
				if err != nil {
					errUnauthorized.WriteError(w)
					return
				}
				identity = Identity{UserID: record.UserID, Scope: record.Scope, Method: "bearer"}
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, identityKey{}, identity)))
		})
	}
}
