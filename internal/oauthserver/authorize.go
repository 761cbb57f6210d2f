package oauthserver

import (
	"net/http"
	"net/url"

	"github.com/WAGO/tp-firmware-sdk-sub000/internal/authn"
	"github.com/WAGO/tp-firmware-sdk-sub000/internal/settings"
	"github.com/WAGO/tp-firmware-sdk-sub000/internal/webui"
)

// HandleAuthorize implements the /authorize endpoint's state table.
func (s *Server) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid_request", http.StatusBadRequest)
		return
	}

	clientID := r.Form.Get("client_id")
	if clientID == "" {
		http.Error(w, "invalid_request: missing client_id", http.StatusBadRequest)
		return
	}
	client, err := s.Settings.GetClient(clientID)
	if err != nil {
		http.Error(w, "invalid_request: unknown client_id", http.StatusBadRequest)
		return
	}

	state := r.Form.Get("state")

	if !client.HasGrantType(settings.GrantAuthorizationCode) {
		redirectError(w, r, client.RedirectURI, ErrUnauthorizedClient, "Client is not permitted to use the authorization_code grant", state)
		return
	}
	if r.Form.Get("response_type") != "code" {
		redirectError(w, r, client.RedirectURI, ErrUnsupportedResponseType, "response_type must be \"code\"", state)
		return
	}
	if r.Form.Get("code_challenge_method") != "S256" {
		redirectError(w, r, client.RedirectURI, ErrInvalidRequest, "code_challenge_method must be \"S256\"", state)
		return
	}
	codeChallenge := r.Form.Get("code_challenge")
	if codeChallenge == "" {
		redirectError(w, r, client.RedirectURI, ErrInvalidRequest, "missing code_challenge", state)
		return
	}
	scopes := splitScopes(r.Form.Get("scope"))
	if !s.scopesAllowed(scopes) {
		redirectError(w, r, client.RedirectURI, ErrInvalidScope, "requested scope is empty or unrecognized", state)
		return
	}

	cancel := cancelURI(client.RedirectURI, state)
	ctx := r.Context()

	if s.Auth.AdminHasNoPassword(ctx) {
		if r.Method == http.MethodGet {
			s.UI.RenderPage(w, r, http.StatusOK, webui.PagePasswordSetup, webui.PageData{
				UserName: "admin", CancelURI: cancel, ContinueURI: r.URL.String(),
				SilentModeEnabled: s.silentModeEnabled(), PageTitle: "Set admin password",
			})
			return
		}
		if authn.HasFormPasswordChangeData(r.Form) {
			res := <-s.Auth.PasswordChange(ctx, r.Form)
			if !res.Success {
				s.UI.RenderError(w, r, http.StatusBadRequest, webui.PagePasswordSetup, webui.ErrInvalidNewPassword, res.Message, webui.PageData{
					UserName: r.Form.Get("username"), CancelURI: cancel, ContinueURI: r.URL.String(),
					SilentModeEnabled: s.silentModeEnabled(),
				})
				return
			}
			s.UI.RenderPage(w, r, http.StatusOK, webui.PageLogin, webui.PageData{
				ClientName: client.Label, CancelURI: cancel, ContinueURI: r.URL.String(),
				SuccessMessage: "Successfully updated password", SilentModeEnabled: s.silentModeEnabled(),
			})
			return
		}
	}

	if r.Method == http.MethodGet {
		s.UI.RenderPage(w, r, http.StatusOK, webui.PageLogin, webui.PageData{
			ClientName: client.Label, CancelURI: cancel, ContinueURI: r.URL.String(),
			SilentModeEnabled: s.silentModeEnabled(), PageTitle: "Sign in",
		})
		return
	}

	if authn.HasFormPasswordChangeData(r.Form) {
		authRes, err := s.Auth.Authenticate(ctx, r.Form, nil)
		if err != nil {
			s.Logger.Error("authorize: authenticate for password change failed", "err", err)
			s.UI.RenderError(w, r, http.StatusInternalServerError, webui.PageLogin, webui.ErrInternal, "internal error", webui.PageData{CancelURI: cancel, ContinueURI: r.URL.String()})
			return
		}
		if !authRes.Success {
			s.UI.RenderError(w, r, http.StatusBadRequest, webui.PageLogin, webui.ErrInvalidUsernameOrPassword, "invalid username or password", webui.PageData{
				ClientName: client.Label, CancelURI: cancel, ContinueURI: r.URL.String(), SilentModeEnabled: s.silentModeEnabled(),
			})
			return
		}
		res := <-s.Auth.PasswordChange(ctx, r.Form)
		if !res.Success {
			s.UI.RenderError(w, r, http.StatusBadRequest, webui.PagePasswordChange, webui.ErrInvalidNewPassword, res.Message, webui.PageData{
				UserName: authRes.UserName, CancelURI: cancel, ContinueURI: r.URL.String(), SilentModeEnabled: s.silentModeEnabled(),
			})
			return
		}
		s.UI.RenderPage(w, r, http.StatusOK, webui.PageLogin, webui.PageData{
			ClientName: client.Label, CancelURI: cancel, ContinueURI: r.URL.String(),
			SuccessMessage: "Successfully updated password", SilentModeEnabled: s.silentModeEnabled(),
		})
		return
	}

	if !authn.HasFormAuthData(r.Form) {
		s.UI.RenderError(w, r, http.StatusBadRequest, webui.PageLogin, webui.ErrInvalidRequest, "missing credentials", webui.PageData{
			ClientName: client.Label, CancelURI: cancel, ContinueURI: r.URL.String(), SilentModeEnabled: s.silentModeEnabled(),
		})
		return
	}

	authRes, err := s.Auth.Authenticate(ctx, r.Form, scopes)
	if err != nil {
		s.Logger.Error("authorize: authenticate failed", "err", err)
		s.UI.RenderError(w, r, http.StatusInternalServerError, webui.PageLogin, webui.ErrInternal, "internal error", webui.PageData{CancelURI: cancel, ContinueURI: r.URL.String()})
		return
	}

	switch {
	case authRes.Unauthorized:
		redirectError(w, r, client.RedirectURI, ErrAccessDenied, "user is not authorized for the requested scope", state)
		return
	case !authRes.Success:
		s.UI.RenderError(w, r, http.StatusBadRequest, webui.PageLogin, webui.ErrInvalidUsernameOrPassword, "invalid username or password", webui.PageData{
			ClientName: client.Label, CancelURI: cancel, ContinueURI: r.URL.String(), SilentModeEnabled: s.silentModeEnabled(),
		})
		return
	case authRes.Expired:
		s.UI.RenderPage(w, r, http.StatusOK, webui.PagePasswordChange, webui.PageData{
			UserName: authRes.UserName, CancelURI: cancel, ContinueURI: r.URL.String(),
			InfoMessage: "Your password is expired. A password change is required.", SilentModeEnabled: s.silentModeEnabled(),
		})
		return
	}

	code, err := s.Tokens.GenerateAuthCode(s.uintSetting(settings.KeyAuthCodeLifetime), clientID, authRes.UserName, scopes, codeChallenge)
	if err != nil {
		s.Logger.Error("authorize: failed to mint auth code", "err", err)
		redirectError(w, r, client.RedirectURI, ErrServerError, "failed to mint authorization code", state)
		return
	}
	redirectCode(w, r, client.RedirectURI, code, state)
}

// redirectCode builds the "code issued" redirect:
// "redirect_uri?code=...&state=...".
func redirectCode(w http.ResponseWriter, r *http.Request, redirectURI, code, state string) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		http.Error(w, "invalid redirect target", http.StatusInternalServerError)
		return
	}
	q := u.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusFound)
}
