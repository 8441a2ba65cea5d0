package http

import (
	"log/slog"
	"net/http"

	"github.com/werkenmetai/exact-mcp/internal/auth/service"
	"github.com/werkenmetai/exact-mcp/internal/auth/store"
	"github.com/werkenmetai/exact-mcp/pkg/httpx"
	"github.com/werkenmetai/exact-mcp/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	issuer   string
	loginURL string
	logger   *slog.Logger
	store    store.Store

	ClientService    *service.ClientService
	AuthorizeService *service.AuthorizeService
	TokenService     *service.TokenService
	APIKeyService    *service.APIKeyService
}

func NewRouter(issuer, loginURL string, st store.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:      http.NewServeMux(),
		issuer:   issuer,
		loginURL: loginURL,
		logger:   logger,
		store:    st,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.handle("POST /register", &RegisterHandler{ClientService: r.ClientService}, httpx.StrictLimit)
	r.handle("GET /authorize", &AuthorizeHandler{AuthorizeService: r.AuthorizeService, LoginURL: r.loginURL}, httpx.ModerateLimit)
	r.handle("POST /token", &TokenHandler{TokenService: r.TokenService}, httpx.ModerateLimit)
	r.handle("POST /revoke", &RevokeHandler{TokenService: r.TokenService}, httpx.ModerateLimit)

	r.handle("GET /.well-known/oauth-authorization-server", &MetadataHandler{Issuer: r.issuer}, httpx.PublicLimit)
	r.handle("GET /.well-known/oauth-protected-resource", &ProtectedResourceHandler{Issuer: r.issuer}, httpx.PublicLimit)

	r.handle("GET /livez", &LivezHandler{Store: r.store}, httpx.PublicLimit)
}

func (r *Router) handle(pattern string, h http.Handler, limit httpx.RateLimitConfig) {
	chain := append([]httpx.Middleware{httpx.RateLimitByIP(limit)}, r.middlewares...)
	r.Mux.Handle(pattern, httpx.Chain(h, chain...))
}
