package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/werkenmetai/exact-mcp/internal/auth/service"
	"github.com/werkenmetai/exact-mcp/pkg/httpx"
	"github.com/werkenmetai/exact-mcp/pkg/slogx"
)

// TokenHandler serves POST /token. It accepts both form-encoded bodies per
// RFC 6749 and JSON bodies, since several MCP clients send JSON.
type TokenHandler struct {
	TokenService *service.TokenService
}

type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	Code         string `json:"code"`
	RedirectURI  string `json:"redirect_uri"`
	CodeVerifier string `json:"code_verifier"`
	RefreshToken string `json:"refresh_token"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
}

func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, ok := parseTokenRequest(r)
	if !ok {
		errInvalidBody.WriteError(w)
		return
	}

	// Basic auth takes precedence over body credentials.
	if id, secret, ok := r.BasicAuth(); ok {
		req.ClientID = id
		req.ClientSecret = secret
	}

	switch req.GrantType {
	case "authorization_code":
		h.handleAuthorizationCodeGrant(w, r, req)
	case "refresh_token":
		h.handleRefreshGrant(w, r, req)
	default:
		errUnsupportedGrantType.WriteError(w)
	}
}

func parseTokenRequest(r *http.Request) (tokenRequest, bool) {
	var req tokenRequest

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, false
		}
		return req, true
	}

	if err := r.ParseForm(); err != nil {
		return req, false
	}
	req.GrantType = r.Form.Get("grant_type")
	req.Code = r.Form.Get("code")
	req.RedirectURI = r.Form.Get("redirect_uri")
	req.CodeVerifier = r.Form.Get("code_verifier")
	req.RefreshToken = r.Form.Get("refresh_token")
	req.ClientID = r.Form.Get("client_id")
	req.ClientSecret = r.Form.Get("client_secret")
	return req, true
}

func (h *TokenHandler) handleAuthorizationCodeGrant(w http.ResponseWriter, r *http.Request, req tokenRequest) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if req.Code == "" || req.RedirectURI == "" || req.ClientID == "" {
		errInvalidRequest.WriteError(w)
		return
	}
	if req.CodeVerifier == "" {
		(&OAuth2Error{
			StatusCode:  http.StatusBadRequest,
			Code:        "invalid_grant",
			Description: "code_verifier is required",
		}).WriteError(w)
		return
	}

	pair, err := h.TokenService.ExchangeAuthorizationCode(
		ctx, req.ClientID, req.ClientSecret, req.Code, req.RedirectURI, req.CodeVerifier,
	)
	if err != nil {
		writeGrantError(w, log, err, "authorization_code grant failed")
		return
	}

	writeTokenResponse(w, pair)
}

func (h *TokenHandler) handleRefreshGrant(w http.ResponseWriter, r *http.Request, req tokenRequest) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if req.RefreshToken == "" || req.ClientID == "" {
		errInvalidRequest.WriteError(w)
		return
	}

	pair, err := h.TokenService.ExchangeRefreshToken(ctx, req.ClientID, req.ClientSecret, req.RefreshToken)
	if err != nil {
		writeGrantError(w, log, err, "refresh grant failed")
		return
	}

	writeTokenResponse(w, pair)
}

func writeGrantError(w http.ResponseWriter, log *slog.Logger, err error, msg string) {
	switch {
	case errors.Is(err, service.ErrInvalidClient):
		errInvalidClient.WriteError(w)
	case errors.Is(err, service.ErrInvalidGrant):
		errInvalidGrant.WriteError(w)
	default:
		log.Error(msg, "err", err)
		errServerError.WriteError(w)
	}
}

func writeTokenResponse(w http.ResponseWriter, pair *service.TokenPair) {
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
		Scope:        strings.Join(pair.Scope, " "),
	})
}
