// Package settings implements the authorization server's configuration
// store: global settings, OAuth clients, and resource servers, loaded from
// disk and validated as a unit, with atomic rewrite on write and
// snapshot/restore semantics on reload.
package settings

import "fmt"

// OAuthClient is a registered OAuth client, one file per client under the
// clients directory.
type OAuthClient struct {
	ID string
	Label string
	RedirectURI string
	GrantTypes map[string]bool
}

// HasGrantType reports whether the client is permitted to use grant.
func (c OAuthClient) HasGrantType(grant string) bool {
	return c.GrantTypes[grant]
}

// validate enforces the single cross-field invariant fixes for
// clients: authorization_code requires a non-empty redirect_uri.
func (c OAuthClient) validate() error {
	if c.HasGrantType(GrantAuthorizationCode) && c.RedirectURI == "" {
		return fmt.Errorf("client %q: redirect_uri is required when grant_types includes %q", c.ID, GrantAuthorizationCode)
	}
	return nil
}

// ResourceServer is a registered resource server, one file per server under
// the resource-servers directory.
type ResourceServer struct {
	ID string
	Label string
	Scopes []string
}

// ExposedScopes returns the scope strings this resource server contributes
// to the scope universe: the bare ID if it declares no scopes, else each
// scope namespaced as "id:scope".
func (rs ResourceServer) ExposedScopes() []string {
	if len(rs.Scopes) == 0 {
		return []string{rs.ID}
	}
	out := make([]string, len(rs.Scopes))
	for i, s := range rs.Scopes {
		out[i] = rs.ID + ":" + s
	}
	return out
}

// Recognized grant type strings.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken = "refresh_token"
	GrantPassword = "password"
)

// Recognized global setting keys.
const (
	KeyAuthCodeLifetime = "auth_code_lifetime"
	KeyAccessTokenLifetime = "access_token_lifetime"
	KeyRefreshTokenLifetime = "refresh_token_lifetime"
	KeySilentModeEnabled = "silent_mode_enabled"
	KeySystemUseNotification = "system_use_notification"
)

// defaultGlobals is the compile-time default table consulted to fill
// missing keys on load (load step 2).
var defaultGlobals = map[string]string{
	KeyAuthCodeLifetime: "60",
	KeyAccessTokenLifetime: "300",
	KeyRefreshTokenLifetime: "3600",
	KeySilentModeEnabled: "false",
	KeySystemUseNotification: "",
}

var recognizedGlobalKeys = map[string]bool{
	KeyAuthCodeLifetime: true,
	KeyAccessTokenLifetime: true,
	KeyRefreshTokenLifetime: true,
	KeySilentModeEnabled: true,
	KeySystemUseNotification: true,
}
