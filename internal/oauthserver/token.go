package oauthserver

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/WAGO/tp-firmware-sdk-sub000/internal/settings"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType string `json:"token_type"`
	ExpiresIn uint32 `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	PasswordExpired bool `json:"password_expired,omitempty"`
}

func writeTokenResponse(w http.ResponseWriter, resp tokenResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// HandleToken implements the /token endpoint's grant_type dispatch.
func (s *Server) HandleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		w.WriteHeader(http.StatusUnsupportedMediaType)
		return
	}
	if err := r.ParseForm(); err != nil {
		tokenError(w, ErrInvalidRequest, "could not parse request body", http.StatusBadRequest)
		return
	}

	switch r.PostForm.Get("grant_type") {
	case settings.GrantAuthorizationCode:
		s.handleAuthCodeGrant(w, r)
	case settings.GrantRefreshToken:
		s.handleRefreshTokenGrant(w, r)
	case settings.GrantPassword:
		s.handlePasswordGrant(w, r)
	default:
		tokenError(w, ErrUnsupportedGrantType, "", http.StatusBadRequest)
	}
}

func (s *Server) handleAuthCodeGrant(w http.ResponseWriter, r *http.Request) {
	code := r.PostForm.Get("code")
	clientID := r.PostForm.Get("client_id")
	if code == "" || clientID == "" {
		tokenError(w, ErrInvalidRequest, "code and client_id are required", http.StatusBadRequest)
		return
	}
	client, err := s.Settings.GetClient(clientID)
	if err != nil {
		tokenError(w, ErrInvalidClient, "unknown client", http.StatusBadRequest)
		return
	}
	if !client.HasGrantType(settings.GrantAuthorizationCode) {
		tokenError(w, ErrUnauthorizedClient, "client is not permitted to use the authorization_code grant", http.StatusBadRequest)
		return
	}

	result := s.Tokens.ValidateAuthCode(code, r.PostForm.Get("code_verifier"))
	if !result.Valid || result.Expired {
		tokenError(w, ErrInvalidGrant, "Invalid authorization code", http.StatusBadRequest)
		return
	}
	if result.ClientID != clientID {
		tokenError(w, ErrInvalidGrant, "authorization code was not issued to this client", http.StatusBadRequest)
		return
	}

	accessToken, err := s.Tokens.GenerateAccessToken(s.uintSetting(settings.KeyAccessTokenLifetime), clientID, result.UserName, result.Scopes)
	if err != nil {
		s.Logger.Error("token: failed to mint access token", "err", err)
		tokenError(w, ErrServerError, "", http.StatusInternalServerError)
		return
	}

	resp := tokenResponse{
		AccessToken: accessToken,
		TokenType: "Bearer",
		ExpiresIn: s.uintSetting(settings.KeyAccessTokenLifetime),
	}
	if isLocalhost(r) {
		refreshToken, err := s.Tokens.GenerateRefreshToken(s.uintSetting(settings.KeyRefreshTokenLifetime), clientID, result.UserName, result.Scopes)
		if err != nil {
			s.Logger.Error("token: failed to mint refresh token", "err", err)
			tokenError(w, ErrServerError, "", http.StatusInternalServerError)
			return
		}
		resp.RefreshToken = refreshToken
	}
	writeTokenResponse(w, resp)
}

func (s *Server) handleRefreshTokenGrant(w http.ResponseWriter, r *http.Request) {
	if !isLocalhost(r) {
		tokenError(w, ErrInvalidGrant, "Not allowed from non-localhost", http.StatusForbidden)
		return
	}
	refreshToken := r.PostForm.Get("refresh_token")
	if refreshToken == "" {
		tokenError(w, ErrInvalidRequest, "refresh_token is required", http.StatusBadRequest)
		return
	}
	result := s.Tokens.ValidateRefreshToken(refreshToken)
	if !result.Valid || result.Expired {
		tokenError(w, ErrInvalidGrant, "Refresh token is invalid or has expired", http.StatusBadRequest)
		return
	}
	if rawScope := r.PostForm.Get("scope"); rawScope != "" {
		if !scopesEqual(splitScopes(rawScope), result.Scopes) {
			tokenError(w, ErrInvalidScope, "requested scope does not match the original grant", http.StatusBadRequest)
			return
		}
	}

	accessToken, err := s.Tokens.GenerateAccessToken(s.uintSetting(settings.KeyAccessTokenLifetime), result.ClientID, result.UserName, result.Scopes)
	if err != nil {
		s.Logger.Error("token: failed to mint access token", "err", err)
		tokenError(w, ErrServerError, "", http.StatusInternalServerError)
		return
	}
	writeTokenResponse(w, tokenResponse{
		AccessToken: accessToken,
		TokenType: "Bearer",
		ExpiresIn: s.uintSetting(settings.KeyAccessTokenLifetime),
	})
}

func (s *Server) handlePasswordGrant(w http.ResponseWriter, r *http.Request) {
	if !isLocalhost(r) {
		tokenError(w, ErrInvalidGrant, "Not allowed from non-localhost", http.StatusForbidden)
		return
	}
	clientID := r.PostForm.Get("client_id")
	client, err := s.Settings.GetClient(clientID)
	if err != nil || !client.HasGrantType(settings.GrantPassword) {
		tokenError(w, ErrInvalidClient, "unknown client or client not permitted to use the password grant", http.StatusBadRequest)
		return
	}

	scopes := splitScopes(r.PostForm.Get("scope"))
	if !s.scopesAllowed(scopes) {
		tokenError(w, ErrInvalidScope, "requested scope is empty or unrecognized", http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("username") == "" || r.PostForm.Get("password") == "" {
		tokenError(w, ErrInvalidRequest, "username and password are required", http.StatusBadRequest)
		return
	}

	authRes, err := s.Auth.Authenticate(r.Context(), r.PostForm, scopes)
	if err != nil {
		s.Logger.Error("token: password grant authenticate failed", "err", err)
		tokenError(w, ErrServerError, "", http.StatusInternalServerError)
		return
	}
	switch {
	case authRes.Unauthorized:
		tokenError(w, ErrInvalidScope, "user is not authorized for the requested scope", http.StatusBadRequest)
		return
	case !authRes.Success || s.Auth.AdminHasNoPassword(r.Context()):
		// Authentication failure and an admin account without a password
		// are deliberately indistinguishable to the caller.
		tokenError(w, ErrInvalidGrant, "Authentication failed", http.StatusBadRequest)
		return
	case authRes.Expired:
		tokenError(w, ErrInvalidGrant, "Password expired", http.StatusBadRequest)
		return
	}

	accessToken, err := s.Tokens.GenerateAccessToken(s.uintSetting(settings.KeyAccessTokenLifetime), clientID, authRes.UserName, scopes)
	if err != nil {
		s.Logger.Error("token: failed to mint access token", "err", err)
		tokenError(w, ErrServerError, "", http.StatusInternalServerError)
		return
	}
	refreshToken, err := s.Tokens.GenerateRefreshToken(s.uintSetting(settings.KeyRefreshTokenLifetime), clientID, authRes.UserName, scopes)
	if err != nil {
		s.Logger.Error("token: failed to mint refresh token", "err", err)
		tokenError(w, ErrServerError, "", http.StatusInternalServerError)
		return
	}

	writeTokenResponse(w, tokenResponse{
		AccessToken: accessToken,
		TokenType: "Bearer",
		ExpiresIn: s.uintSetting(settings.KeyAccessTokenLifetime),
		RefreshToken: refreshToken,
	})
}
