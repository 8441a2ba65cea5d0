package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/werkenmetai/exact-mcp/pkg/httpx"
)

// OAuth2Error is a standard OAuth2 error response per RFC 6749 section 5.2.
type OAuth2Error struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *OAuth2Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WriteError writes the error as an OAuth2-compliant JSON response.
func (e *OAuth2Error) WriteError(w http.ResponseWriter) {
	httpx.NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             e.Code,
		"error_description": e.Description,
	})
}

var (
	errInvalidRequest = &OAuth2Error{
		StatusCode:  http.StatusBadRequest,
		Code:        "invalid_request",
		Description: "the request is malformed or missing required parameters",
	}

	errInvalidClient = &OAuth2Error{
		StatusCode:  http.StatusUnauthorized,
		Code:        "invalid_client",
		Description: "invalid client",
	}

	// The 401 invalid_client above is a token-endpoint response. On the
	// authorize endpoint an unknown client is a plain caller error.
	errUnknownClient = &OAuth2Error{
		StatusCode:  http.StatusBadRequest,
		Code:        "invalid_client",
		Description: "unknown client",
	}

	errInvalidGrant = &OAuth2Error{
		StatusCode:  http.StatusUnauthorized,
		Code:        "invalid_grant",
		Description: "invalid credentials",
	}

	errUnsupportedGrantType = &OAuth2Error{
		StatusCode:  http.StatusBadRequest,
		Code:        "unsupported_grant_type",
		Description: "grant type not supported",
	}

	errUnsupportedResponseType = &OAuth2Error{
		StatusCode:  http.StatusBadRequest,
		Code:        "unsupported_response_type",
		Description: "only the code response type is supported",
	}

	errInvalidRedirectURI = &OAuth2Error{
		StatusCode:  http.StatusBadRequest,
		Code:        "invalid_redirect_uri",
		Description: "redirect URIs must be HTTPS, or HTTP on loopback hosts",
	}

	errInvalidClientMetadata = &OAuth2Error{
		StatusCode:  http.StatusBadRequest,
		Code:        "invalid_client_metadata",
		Description: "unsupported client metadata",
	}

	errInvalidBody = &OAuth2Error{
		StatusCode:  http.StatusBadRequest,
		Code:        "invalid_request",
		Description: "request body could not be parsed",
	}

	errServerError = &OAuth2Error{
		StatusCode:  http.StatusInternalServerError,
		Code:        "server_error",
		Description: "internal server error",
	}
)
