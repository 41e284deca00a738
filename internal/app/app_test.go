package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
	_ "github.com/odyssey-erp/odyssey-quotes/internal/testing/guard"
)

func TestInTestModeFromGuard(t *testing.T) {
	RefreshTestMode()
	assert.True(t, InTestMode())
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, CacheBackendMemory, cfg.PermissionCacheBackend)
	assert.Equal(t, 30, cfg.QuoteValidityDays)
	assert.Equal(t, 10*time.Minute, cfg.PublicCacheTTL)
	assert.False(t, cfg.IsProduction())
}

func TestConfigValidate(t *testing.T) {
	base := func() Config {
		return Config{
			SessionSecret:          "s",
			CSRFSecret:             "c",
			JWTSecret:              "j",
			PermissionCacheBackend: " Memory ",
			QuoteValidityDays:      30,
		}
	}
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing jwt secret", mutate: func(c *Config) { c.JWTSecret = "" }, wantErr: true},
		{name: "unknown backend", mutate: func(c *Config) { c.PermissionCacheBackend = "memcached" }, wantErr: true},
		{name: "zero validity", mutate: func(c *Config) { c.QuoteValidityDays = 0 }, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, CacheBackendMemory, cfg.PermissionCacheBackend)
		})
	}
}

func TestSharedPermissionCache(t *testing.T) {
	assert.True(t, (&Config{PermissionCacheBackend: CacheBackendRedis}).SharedPermissionCache())
	assert.False(t, (&Config{PermissionCacheBackend: CacheBackendMemory}).SharedPermissionCache())
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cfg := &Config{AppRequestTimeout: time.Second, PublicRateLimit: 10}
	return NewRouter(RouterParams{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config:         cfg,
		SessionManager: shared.NewSessionManager(client, "odyssey_session", "secret", time.Hour, false),
		CSRFManager:    shared.NewCSRFManager("csrf"),
	})
}

func TestRouterHealthz(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestCSRFOnlyGuardsCookieRequests(t *testing.T) {
	router := newTestRouter(t)
	cases := []struct {
		name   string
		cookie bool
		bearer bool
		want   int
	}{
		{name: "cookie without token", cookie: true, want: http.StatusForbidden},
		{name: "bearer with cookie", cookie: true, bearer: true, want: http.StatusNotFound},
		{name: "no credentials", want: http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/quotations/", nil)
			if tc.cookie {
				req.AddCookie(&http.Cookie{Name: "odyssey_session", Value: "abc"})
			}
			if tc.bearer {
				req.Header.Set("Authorization", "Bearer token")
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}
