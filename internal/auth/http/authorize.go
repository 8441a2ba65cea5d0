package http

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/werkenmetai/exact-mcp/internal/auth/service"
	"github.com/werkenmetai/exact-mcp/pkg/httpx"
)

// AuthorizeHandler serves GET /authorize. It validates the request against the
// registered client and redirects to the external login surface, which
// authenticates the user and calls back into the service to mint the code.
type AuthorizeHandler struct {
	AuthorizeService *service.AuthorizeService
	LoginURL         string
}

func (h *AuthorizeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	req := service.AuthorizeRequest{
		ResponseType:        q.Get("response_type"),
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		Scope:               httpx.ParseSpaceDelimitedFields(q.Get("scope")),
		State:               q.Get("state"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
	}

	// Validation failures must NOT redirect: an unvalidated redirect_uri is an
	// open redirect. Errors render as a structured 400 instead.
	if _, err := h.AuthorizeService.ValidateRequest(ctx, req); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidClient):
			errUnknownClient.WriteError(w)
		case errors.Is(err, service.ErrUnsupportedResponseType):
			errUnsupportedResponseType.WriteError(w)
		case errors.Is(err, service.ErrInvalidRequest):
			errInvalidRequest.WriteError(w)
		default:
			errServerError.WriteError(w)
		}
		return
	}

	login, err := url.Parse(h.LoginURL)
	if err != nil {
		errServerError.WriteError(w)
		return
	}

	params := login.Query()
	params.Set("response_type", req.ResponseType)
	params.Set("client_id", req.ClientID)
	params.Set("redirect_uri", req.RedirectURI)
	params.Set("scope", q.Get("scope"))
	params.Set("state", req.State)
	params.Set("code_challenge", req.CodeChallenge)
	params.Set("code_challenge_method", "S256")
	login.RawQuery = params.Encode()

	http.Redirect(w, r, login.String(), http.StatusFound)
}
