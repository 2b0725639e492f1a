package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"courier/internal/app"
	"courier/internal/domain"
	"courier/internal/services/identity"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("COURIER_AUTH_JWT_SECRET", "test-secret")

	cfg, err := app.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "courier", cfg.Auth.Issuer)
	assert.Equal(t, time.Hour, cfg.Purge.Interval)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Database.URL)
	assert.Empty(t, cfg.Redis.URL)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("COURIER_AUTH_JWT_SECRET", "test-secret")
	t.Setenv("COURIER_HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("COURIER_PURGE_INTERVAL", "5m")
	t.Setenv("COURIER_LOG_ENV", "production")

	cfg, err := app.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Addr)
	assert.Equal(t, 5*time.Minute, cfg.Purge.Interval)
	assert.Equal(t, "production", cfg.Log.Env)
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "courier.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
auth:
  jwt_secret: from-file
http:
  allowed_origins: ["https://chat.example"]
roster:
  teams:
    core: [alice, bob]
  admins: [root]
`), 0o600))

	cfg, err := app.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
	assert.Equal(t, []string{"https://chat.example"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, map[domain.TeamID][]domain.UserID{"core": {"alice", "bob"}}, cfg.Roster.TeamMap())
	assert.Equal(t, []domain.UserID{"root"}, cfg.Roster.AdminIDs())
}

func TestConfig_Validate(t *testing.T) {
	valid := app.Config{
		HTTP:  app.HTTPConfig{Addr: ":8080"},
		Auth:  app.AuthConfig{JWTSecret: "s"},
		Purge: app.PurgeConfig{Interval: time.Minute},
	}
	require.NoError(t, valid.Validate())

	noSecret := valid
	noSecret.Auth.JWTSecret = "  "
	assert.Error(t, noSecret.Validate())

	noInterval := valid
	noInterval.Purge.Interval = 0
	assert.Error(t, noInterval.Validate())
}

func TestNewServer_InMemory(t *testing.T) {
	cfg := &app.Config{
		HTTP:   app.HTTPConfig{Addr: ":0"},
		Auth:   app.AuthConfig{JWTSecret: "wire-test", Issuer: "courier"},
		Purge:  app.PurgeConfig{Interval: time.Minute},
		Roster: app.RosterConfig{Teams: map[string][]string{"core": {"alice", "bob"}}},
	}
	srv, err := app.NewServer(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/conversations", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	members, err := srv.Stores.Roster.TeamMembers(context.Background(), "core")
	require.NoError(t, err)
	assert.Equal(t, []domain.UserID{"alice", "bob"}, members)

	n, err := srv.PurgeOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewClient_Defaults(t *testing.T) {
	home := filepath.Join(t.TempDir(), "courier")
	c, err := app.NewClient(app.ClientConfig{Home: home}, nil)
	require.NoError(t, err)

	info, err := os.Stat(home)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, identity.DefaultDeviceID, c.Config().DeviceID)
	assert.Error(t, c.Online(), "no server configured")

	c, err = app.NewClient(app.ClientConfig{
		Home:      home,
		ServerURL: "http://127.0.0.1:1",
		Token:     "t",
		UserID:    "alice",
	}, nil)
	require.NoError(t, err)
	assert.NoError(t, c.Online())
}
