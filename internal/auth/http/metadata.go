package http

import (
	"net/http"

	"github.com/werkenmetai/exact-mcp/pkg/httpx"
)

// MetadataHandler serves GET /.well-known/oauth-authorization-server per
// RFC 8414. The document is static per deployment, so it is cacheable.
type MetadataHandler struct {
	Issuer string
}

func (h *MetadataHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"issuer":                                h.Issuer,
		"authorization_endpoint":                h.Issuer + "/authorize",
		"token_endpoint":                        h.Issuer + "/token",
		"registration_endpoint":                 h.Issuer + "/register",
		"revocation_endpoint":                   h.Issuer + "/revoke",
		"response_types_supported":              []string{"code"},
		"grant_types_supported":                 []string{"authorization_code", "refresh_token"},
		"code_challenge_methods_supported":      []string{"S256"},
		"token_endpoint_auth_methods_supported": []string{"none", "client_secret_basic", "client_secret_post"},
	})
}

// ProtectedResourceHandler serves GET /.well-known/oauth-protected-resource
// per RFC 9728, pointing resource clients at the authorization server.
type ProtectedResourceHandler struct {
	Issuer string
}

func (h *ProtectedResourceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"resource":              h.Issuer,
		"authorization_servers": []string{h.Issuer},
		"bearer_methods_supported": []string{
			"header",
		},
	})
}
