package http

import (
	"net/http"

	"github.com/werkenmetai/exact-mcp/internal/auth/service"
	"github.com/werkenmetai/exact-mcp/pkg/slogx"
)

// RevokeHandler serves POST /revoke per RFC 7009. Revocation always returns
// 200, whether or not the token existed: the endpoint must not be usable to
// probe for live tokens.
type RevokeHandler struct {
	TokenService *service.TokenService
}

func (h *RevokeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if err := r.ParseForm(); err != nil {
		errInvalidBody.WriteError(w)
		return
	}

	if err := h.TokenService.Revoke(ctx, r.Form.Get("token")); err != nil {
		// Still 200: a storage hiccup must not leak token state either.
		log.Error("token revocation failed", "err", err)
	}

	w.WriteHeader(http.StatusOK)
}
