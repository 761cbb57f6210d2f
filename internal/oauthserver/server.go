// Package oauthserver wires the settings store, token handler, and
// authenticator into the four HTTP endpoints: authorize, token, verify,
// and password_change.
package oauthserver

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/WAGO/tp-firmware-sdk-sub000/internal/authn"
	"github.com/WAGO/tp-firmware-sdk-sub000/internal/settings"
	"github.com/WAGO/tp-firmware-sdk-sub000/internal/tokens"
	"github.com/WAGO/tp-firmware-sdk-sub000/internal/webui"
)

// Server holds the collaborators every handler needs. They are concrete
// types; tests substitute in-memory fakes for PAM/RPC through the
// authn.Authenticator's backend interfaces.
type Server struct {
	Settings *settings.Store
	Tokens *tokens.Handler
	Auth *authn.Authenticator
	UI *webui.Helper
	Logger *slog.Logger

	// PageTitle/FaviconHref/ServiceName etc. are supplied through the
	// webui.Helper's own Config at construction, not duplicated here.
}

// New constructs a Server from its four collaborators.
func New(store *settings.Store, tok *tokens.Handler, auth *authn.Authenticator, ui *webui.Helper, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{Settings: store, Tokens: tok, Auth: auth, UI: ui, Logger: logger}
}

// isLocalhost reports whether r originated from the loopback interface —
// the trust boundary refresh-token, password, and verify requests are
// gated behind.
func isLocalhost(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) uintSetting(key string) uint32 {
	v, err := strconv.ParseUint(s.Settings.GetGlobalSetting(key), 10, 32)
	if err != nil {
		return 0
	}
	return uint32(v)
}

func (s *Server) silentModeEnabled() bool {
	return s.Settings.GetGlobalSetting(settings.KeySilentModeEnabled) == "true"
}

func splitScopes(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	return strings.Fields(raw)
}

func joinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}

func scopesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]bool, len(a))
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		if !seen[s] {
			return false
		}
	}
	return true
}

// scopesAllowed reports whether every scope in requested is a member of
// the store's scope universe.
func (s *Server) scopesAllowed(requested []string) bool {
	if len(requested) == 0 {
		return false
	}
	for _, sc := range requested {
		if !s.Settings.ScopeAllowed(sc) {
			return false
		}
	}
	return true
}
