package http

import (
	"net/http"

	"github.com/werkenmetai/exact-mcp/internal/auth/store"
	"github.com/werkenmetai/exact-mcp/pkg/httpx"
)

// LivezHandler serves GET /livez.
type LivezHandler struct {
	Store store.Store
}

func (h *LivezHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
		})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
