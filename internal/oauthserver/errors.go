package oauthserver

import (
	"encoding/json"
	"net/http"
	"net/url"
)

// Stable OAuth 2.0 error codes,.
const (
	ErrInvalidRequest = "invalid_request"
	ErrInvalidClient = "invalid_client"
	ErrInvalidGrant = "invalid_grant"
	ErrUnauthorizedClient = "unauthorized_client"
	ErrUnsupportedGrantType = "unsupported_grant_type"
	ErrUnsupportedResponseType = "unsupported_response_type"
	ErrInvalidScope = "invalid_scope"
	ErrAccessDenied = "access_denied"
	ErrServerError = "server_error"
)

type oauthErrorDoc struct {
	Error string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// tokenError writes a 400 (or the given status) JSON OAuth error document
// to the token endpoint,.
func tokenError(w http.ResponseWriter, code string, description string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(oauthErrorDoc{Error: code, ErrorDescription: description})
}

// redirectError 302s back to redirectURI with an OAuth error in the query
// string, preserving state when the original request carried one.
func redirectError(w http.ResponseWriter, r *http.Request, redirectURI, code, description, state string) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		http.Error(w, "invalid redirect target", http.StatusInternalServerError)
		return
	}
	q := u.Query()
	q.Set("error", code)
	if description != "" {
		q.Set("error_description", description)
	}
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusFound)
}

// cancelURI builds the "cancel requested" redirect target shown on
// rendered authorize pages.
func cancelURI(redirectURI, state string) string {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return redirectURI
	}
	q := u.Query()
	q.Set("error", ErrAccessDenied)
	q.Set("error_description", "Cancel requested")
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
