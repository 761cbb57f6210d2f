package oauthserver

import (
	"net/http"

	"github.com/WAGO/tp-firmware-sdk-sub000/internal/authn"
	"github.com/WAGO/tp-firmware-sdk-sub000/internal/webui"
)

// HandlePasswordChange implements the standalone /password_change endpoint.
func (s *Server) HandlePasswordChange(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handlePasswordChangeGet(w, r)
	case http.MethodPost:
		s.handlePasswordChangePost(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handlePasswordChangeGet(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid_request", http.StatusBadRequest)
		return
	}
	username := r.Form.Get("username")
	if username == "" {
		http.Error(w, "invalid_request: missing username", http.StatusBadRequest)
		return
	}
	s.UI.RenderPage(w, r, http.StatusOK, webui.PagePasswordChange, webui.PageData{
		UserName: username, SilentModeEnabled: s.silentModeEnabled(), PageTitle: "Change password",
	})
}

func (s *Server) handlePasswordChangePost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid_request", http.StatusBadRequest)
		return
	}
	if !authn.HasFormPasswordChangeData(r.Form) {
		s.UI.RenderError(w, r, http.StatusBadRequest, webui.PagePasswordChange, webui.ErrInvalidRequest, "missing required fields", webui.PageData{
			UserName: r.Form.Get("username"), SilentModeEnabled: s.silentModeEnabled(),
		})
		return
	}

	ctx := r.Context()
	authRes, err := s.Auth.Authenticate(ctx, r.Form, nil)
	if err != nil {
		s.Logger.Error("password_change: authenticate failed", "err", err)
		s.UI.RenderError(w, r, http.StatusInternalServerError, webui.PagePasswordChange, webui.ErrInternal, "internal error", webui.PageData{})
		return
	}
	if !authRes.Success {
		s.UI.RenderError(w, r, http.StatusBadRequest, webui.PagePasswordChange, webui.ErrInvalidUsernameOrPassword, "invalid username or password", webui.PageData{
			UserName: r.Form.Get("username"), SilentModeEnabled: s.silentModeEnabled(),
		})
		return
	}

	res := <-s.Auth.PasswordChange(ctx, r.Form)
	if !res.Success {
		s.UI.RenderError(w, r, http.StatusBadRequest, webui.PagePasswordChange, webui.ErrInvalidNewPassword, res.Message, webui.PageData{
			UserName: authRes.UserName, SilentModeEnabled: s.silentModeEnabled(),
		})
		return
	}
	s.UI.RenderPage(w, r, http.StatusOK, webui.PageConfirmation, webui.PageData{
		UserName: authRes.UserName, SuccessMessage: "Password changed successfully", SilentModeEnabled: s.silentModeEnabled(),
	})
}
