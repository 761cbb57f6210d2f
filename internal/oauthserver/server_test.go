package oauthserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WAGO/tp-firmware-sdk-sub000/internal/authn"
	"github.com/WAGO/tp-firmware-sdk-sub000/internal/settings"
	"github.com/WAGO/tp-firmware-sdk-sub000/internal/tokens"
	"github.com/WAGO/tp-firmware-sdk-sub000/internal/webui"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestServer(t *testing.T) (*Server, *authn.InMemoryBackend) {
	t.Helper()
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "authd.conf"), strings.Join([]string{
		"auth_code_lifetime = 60",
		"access_token_lifetime = 300",
		"refresh_token_lifetime = 3600",
		"silent_mode_enabled = false",
	}, "\n"))
	writeFile(t, filepath.Join(dir, "clients", "c1.conf"), strings.Join([]string{
		"label = Dashboard",
		"redirect_uri = https://client.example/back",
		"grant_types = authorization_code;refresh_token;password",
	}, "\n"))
	writeFile(t, filepath.Join(dir, "resource_servers", "rs.conf"), strings.Join([]string{
		"label = Resource Server",
		"scopes = s;t",
	}, "\n"))

	store, err := settings.New(settings.Paths{
		ConfigFile: filepath.Join(dir, "authd.conf"),
		ClientsDir: filepath.Join(dir, "clients"),
		ResourceServersDir: filepath.Join(dir, "resource_servers"),
	}, nil)
	require.NoError(t, err)

	backend := authn.NewInMemoryBackend()
	require.NoError(t, backend.AddUser("admin", "adminpw", nil))
	require.NoError(t, backend.AddUser("alice", "pw", []string{"rs_s"}))
	require.NoError(t, backend.AddUser("bob", "pw", []string{"rs_s"}))
	backend.SetExpired("bob", true)
	authenticator := authn.New(backend, backend, backend)

	tok, err := tokens.New(time.Hour, nil, nil)
	require.NoError(t, err)

	ui, err := webui.Load(filepath.Join("..", "webui", "testdata"), webui.Config{
		Hostname: "ctrl-01", ServiceName: "authd", ServiceVersion: "1.0.0", APIVersion: "v1",
		SystemNotificationFile: filepath.Join(dir, "no-such-file"),
		SystemUseNotificationSetting: func() string {
			return store.GetGlobalSetting(settings.KeySystemUseNotification)
		},
	})
	require.NoError(t, err)

	return New(store, tok, authenticator, ui, nil), backend
}

func asForm(values map[string]string) url.Values {
	v := url.Values{}
	for k, val := range values {
		v.Set(k, val)
	}
	return v
}

func localRequest(method, target string, body url.Values) *http.Request {
	var r *http.Request
	if body != nil {
		r = httptest.NewRequest(method, target, strings.NewReader(body.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	r.RemoteAddr = "127.0.0.1:12345"
	return r
}

// S1: happy authorize -> token.
func TestScenarioHappyAuthorizeToToken(t *testing.T) {
	s, _ := newTestServer(t)

	authURL := "/authorize?client_id=c1&response_type=code&code_challenge_method=S256" +
		"&code_challenge=JBbiqONGWPaAmwXk_8bT6UnlPfrn65D32eZlJS-zGG0&scope=rs:s&state=xyz"
	w := httptest.NewRecorder()
	s.HandleAuthorize(w, localRequest(http.MethodGet, authURL, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Sign in")

	w = httptest.NewRecorder()
	loginReq := localRequest(http.MethodPost, authURL, asForm(map[string]string{"username": "alice", "password": "pw"}))
	s.HandleAuthorize(w, loginReq)
	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	code := loc.Query().Get("code")
	require.NotEmpty(t, code)
	assert.Equal(t, "xyz", loc.Query().Get("state"))

	w = httptest.NewRecorder()
	tokenReq := localRequest(http.MethodPost, "/token", asForm(map[string]string{
		"grant_type": "authorization_code", "code": code, "client_id": "c1", "code_verifier": "test-verifier",
	}))
	s.HandleToken(w, tokenReq)
	require.Equal(t, http.StatusOK, w.Code)

	var resp tokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.EqualValues(t, 300, resp.ExpiresIn)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
}

// S2: replay of the same auth code is rejected.
func TestScenarioReplayRejected(t *testing.T) {
	s, _ := newTestServer(t)
	code := issueAuthCode(t, s, "xyz")

	form := asForm(map[string]string{
		"grant_type": "authorization_code", "code": code, "client_id": "c1", "code_verifier": "test-verifier",
	})
	w := httptest.NewRecorder()
	s.HandleToken(w, localRequest(http.MethodPost, "/token", form))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	s.HandleToken(w, localRequest(http.MethodPost, "/token", form))
	require.Equal(t, http.StatusBadRequest, w.Code)
	var doc oauthErrorDoc
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, ErrInvalidGrant, doc.Error)
	assert.Equal(t, "Invalid authorization code", doc.ErrorDescription)
}

// S3: non-localhost refresh_token requests are rejected.
func TestScenarioNonLocalhostRefreshRejected(t *testing.T) {
	s, _ := newTestServer(t)
	form := asForm(map[string]string{"grant_type": "refresh_token", "refresh_token": "whatever"})
	r := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.RemoteAddr = "203.0.113.5:4444"

	w := httptest.NewRecorder()
	s.HandleToken(w, r)
	require.Equal(t, http.StatusForbidden, w.Code)
	var doc oauthErrorDoc
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, ErrInvalidGrant, doc.Error)
	assert.Equal(t, "Not allowed from non-localhost", doc.ErrorDescription)
}

// S4: expired password forces a change page.
func TestScenarioExpiredPasswordForcesChange(t *testing.T) {
	s, _ := newTestServer(t)

	authURL := "/authorize?client_id=c1&response_type=code&code_challenge_method=S256" +
		"&code_challenge=JBbiqONGWPaAmwXk_8bT6UnlPfrn65D32eZlJS-zGG0&scope=rs:s"
	w := httptest.NewRecorder()
	s.HandleAuthorize(w, localRequest(http.MethodPost, authURL, asForm(map[string]string{"username": "bob", "password": "pw"})))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Your password is expired. A password change is required.")
}

// S5: scope not in any resource server redirects invalid_scope.
func TestScenarioScopeMismatch(t *testing.T) {
	s, _ := newTestServer(t)
	authURL := "/authorize?client_id=c1&response_type=code&code_challenge_method=S256" +
		"&code_challenge=JBbiqONGWPaAmwXk_8bT6UnlPfrn65D32eZlJS-zGG0&scope=rs:unknown&state=xyz"
	w := httptest.NewRecorder()
	s.HandleAuthorize(w, localRequest(http.MethodGet, authURL, nil))
	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "invalid_scope", loc.Query().Get("error"))
	assert.Equal(t, "xyz", loc.Query().Get("state"))
}

// S6: a settings write that breaks the relational invariant is rejected
// atomically (delegated straight to the settings store; oauthserver does
// not re-implement this, it only depends on the store's guarantee).
func TestScenarioSettingsWriteRejectedAtomically(t *testing.T) {
	s, _ := newTestServer(t)
	ok, verrs := s.Settings.SetGlobalConfig(map[string]string{settings.KeyAuthCodeLifetime: "200"})
	assert.False(t, ok)
	assert.Contains(t, verrs, settings.KeyAuthCodeLifetime)
	assert.Equal(t, "60", s.Settings.GetGlobalSetting(settings.KeyAuthCodeLifetime))
}

// /verify rejects non-localhost requests with 403.
func TestVerifyRejectsNonLocalhost(t *testing.T) {
	s, _ := newTestServer(t)
	r := httptest.NewRequest(http.MethodPost, "/verify", strings.NewReader("token=x"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.RemoteAddr = "203.0.113.5:4444"

	w := httptest.NewRecorder()
	s.HandleVerify(w, r)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestVerifyActiveToken(t *testing.T) {
	s, _ := newTestServer(t)
	code := issueAuthCode(t, s, "")
	w := httptest.NewRecorder()
	s.HandleToken(w, localRequest(http.MethodPost, "/token", asForm(map[string]string{
		"grant_type": "authorization_code", "code": code, "client_id": "c1", "code_verifier": "test-verifier",
	})))
	var resp tokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	w = httptest.NewRecorder()
	s.HandleVerify(w, localRequest(http.MethodPost, "/verify", asForm(map[string]string{"token": resp.AccessToken})))
	require.Equal(t, http.StatusOK, w.Code)
	var doc introspectionDoc
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.True(t, doc.Active)
	assert.Equal(t, "alice", doc.Username)
}

func TestPasswordGrantLocalhostOnly(t *testing.T) {
	s, _ := newTestServer(t)
	form := asForm(map[string]string{
		"grant_type": "password", "client_id": "c1", "scope": "rs:s", "username": "alice", "password": "pw",
	})
	w := httptest.NewRecorder()
	s.HandleToken(w, localRequest(http.MethodPost, "/token", form))
	require.Equal(t, http.StatusOK, w.Code)
	var resp tokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
}

func TestPasswordGrantWrongCredentials(t *testing.T) {
	s, _ := newTestServer(t)
	form := asForm(map[string]string{
		"grant_type": "password", "client_id": "c1", "scope": "rs:s", "username": "alice", "password": "wrong",
	})
	w := httptest.NewRecorder()
	s.HandleToken(w, localRequest(http.MethodPost, "/token", form))
	require.Equal(t, http.StatusBadRequest, w.Code)
	var doc oauthErrorDoc
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, ErrInvalidGrant, doc.Error)
}

func TestTokenRejectsWrongContentType(t *testing.T) {
	s, _ := newTestServer(t)
	r := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(`{"grant_type":"password"}`))
	r.Header.Set("Content-Type", "application/json")
	r.RemoteAddr = "127.0.0.1:1"

	w := httptest.NewRecorder()
	s.HandleToken(w, r)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

// issueAuthCode drives the GET+POST /authorize happy path and returns the
// minted code, for tests that only care about the token endpoint.
func issueAuthCode(t *testing.T, s *Server, state string) string {
	t.Helper()
	authURL := "/authorize?client_id=c1&response_type=code&code_challenge_method=S256" +
		"&code_challenge=JBbiqONGWPaAmwXk_8bT6UnlPfrn65D32eZlJS-zGG0&scope=rs:s"
	if state != "" {
		authURL += "&state=" + state
	}
	w := httptest.NewRecorder()
	s.HandleAuthorize(w, localRequest(http.MethodPost, authURL, asForm(map[string]string{"username": "alice", "password": "pw"})))
	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	return loc.Query().Get("code")
}
