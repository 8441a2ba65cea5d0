package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/werkenmetai/exact-mcp/internal/auth/service"
	"github.com/werkenmetai/exact-mcp/pkg/httpx"
	"github.com/werkenmetai/exact-mcp/pkg/slogx"
)

// RegisterHandler serves POST /register, the RFC 7591 dynamic client
// registration endpoint.
type RegisterHandler struct {
	ClientService *service.ClientService
}

type registerRequest struct {
	ClientName              string   `json:"client_name"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
}

type registerResponse struct {
	ClientID                string   `json:"client_id"`
	ClientSecret            string   `json:"client_secret,omitempty"`
	ClientName              string   `json:"client_name"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
}

func (h *RegisterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errInvalidBody.WriteError(w)
		return
	}

	resp, err := h.ClientService.RegisterClient(ctx, service.RegisterClientRequest{
		Name:                    req.ClientName,
		RedirectURIs:            req.RedirectURIs,
		GrantTypes:              req.GrantTypes,
		ResponseTypes:           req.ResponseTypes,
		TokenEndpointAuthMethod: req.TokenEndpointAuthMethod,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRedirectURI):
			errInvalidRedirectURI.WriteError(w)
		case errors.Is(err, service.ErrInvalidClientMetadata):
			errInvalidClientMetadata.WriteError(w)
		default:
			log.Error("client registration failed", "err", err)
			errServerError.WriteError(w)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, registerResponse{
		ClientID:                resp.Client.ID,
		ClientSecret:            resp.Secret,
		ClientName:              resp.Client.Name,
		RedirectURIs:            resp.Client.RedirectURIs,
		GrantTypes:              resp.Client.GrantTypes,
		ResponseTypes:           resp.Client.ResponseTypes,
		TokenEndpointAuthMethod: resp.Client.TokenEndpointAuthMethod,
	})
}
