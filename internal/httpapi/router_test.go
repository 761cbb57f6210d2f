package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gosundheit "github.com/AppsFlyer/go-sundheit"
	"github.com/AppsFlyer/go-sundheit/checks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WAGO/tp-firmware-sdk-sub000/internal/authn"
	"github.com/WAGO/tp-firmware-sdk-sub000/internal/oauthserver"
	"github.com/WAGO/tp-firmware-sdk-sub000/internal/settings"
	"github.com/WAGO/tp-firmware-sdk-sub000/internal/tokens"
	"github.com/WAGO/tp-firmware-sdk-sub000/internal/webui"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "authd.conf"), []byte(strings.Join([]string{
		"auth_code_lifetime = 60", "access_token_lifetime = 300", "refresh_token_lifetime = 3600",
	}, "\n")), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "clients"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "resource_servers"), 0o755))

	store, err := settings.New(settings.Paths{
		ConfigFile: filepath.Join(dir, "authd.conf"), ClientsDir: filepath.Join(dir, "clients"),
		ResourceServersDir: filepath.Join(dir, "resource_servers"),
	}, nil)
	require.NoError(t, err)

	tok, err := tokens.New(time.Hour, nil, nil)
	require.NoError(t, err)

	backend := authn.NewInMemoryBackend()
	auth := authn.New(backend, backend, backend)

	ui, err := webui.Load(filepath.Join("..", "webui", "testdata"), webui.Config{SystemNotificationFile: filepath.Join(dir, "missing")})
	require.NoError(t, err)

	srv := oauthserver.New(store, tok, auth, ui, nil)
	return NewRouter(srv, Config{BasePath: "/auth", Registry: prometheus.NewRegistry()}, nil)
}

func TestRouterMountsEndpoints(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/authorize?client_id=missing", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/verify", strings.NewReader("token=x")))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouterHealthz(t *testing.T) {
	router := newTestRouter(t)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouterHealthzReportsUnhealthy(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "authd.conf"), []byte(""), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "clients"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "resource_servers"), 0o755))
	store, err := settings.New(settings.Paths{
		ConfigFile: filepath.Join(dir, "authd.conf"), ClientsDir: filepath.Join(dir, "clients"),
		ResourceServersDir: filepath.Join(dir, "resource_servers"),
	}, nil)
	require.NoError(t, err)
	tok, err := tokens.New(time.Hour, nil, nil)
	require.NoError(t, err)
	backend := authn.NewInMemoryBackend()
	auth := authn.New(backend, backend, backend)
	ui, err := webui.Load(filepath.Join("..", "webui", "testdata"), webui.Config{SystemNotificationFile: filepath.Join(dir, "missing")})
	require.NoError(t, err)
	srv := oauthserver.New(store, tok, auth, ui, nil)

	health := gosundheit.New()
	health.RegisterCheck(
		&checks.CustomCheck{
			CheckName: "always-fails",
			CheckFunc: func(_ context.Context) (details interface{}, err error) {
				return nil, assert.AnError
			},
		},
		gosundheit.InitiallyPassing(false),
	)

	router := NewRouter(srv, Config{HealthChecker: health}, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
