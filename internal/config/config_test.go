package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-azure-oauth2-client/internal/config"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := config.Parse()
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.GetPort())
	require.Equal(t, 10*time.Minute, cfg.GetStateTTL())
	require.Equal(t, 30*time.Second, cfg.GetHTTPTimeout())
	require.Equal(t, "https://login.microsoftonline.com", cfg.GetLoginBaseURL())
	require.Equal(t, "https://graph.microsoft.com", cfg.GetGraphBaseURL())
	require.Equal(t, "openid profile email User.Read", cfg.GetDefaultScope())
	require.Equal(t, 100*time.Millisecond, cfg.GetRefreshInterval())
	require.Equal(t, config.StorageDriverMemory, cfg.GetStorageDriver())
	require.Equal(t, "DEV", cfg.GetEnv())
	require.Zero(t, cfg.GetRefreshSchedule())
	require.Equal(t, 5*time.Second, cfg.GetClientCacheTTL())
}

func TestParse_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("BASE_URL", "https://app.example.com/")
	t.Setenv("STATE_TTL", "5m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("CLIENT_CACHE_TTL", "0")

	cfg, err := config.Parse()
	require.NoError(t, err)

	require.Equal(t, ":9090", cfg.GetPort())
	require.Equal(t, "https://app.example.com", cfg.GetBaseURL())
	require.Equal(t, 5*time.Minute, cfg.GetStateTTL())
	require.True(t, cfg.GetAllowedOrigins().IsAllowedOrigin("https://b.example.com"))
	require.False(t, cfg.GetAllowedOrigins().IsAllowedOrigin("https://c.example.com"))
	require.Equal(t, config.StorageDriverSQLite, cfg.GetStorageDriver())
	require.Equal(t, 3, cfg.GetRedisDB())
	require.Zero(t, cfg.GetClientCacheTTL())
}

func TestSecretKey(t *testing.T) {
	t.Setenv("SECRET_KEY", "zz")
	cfg, err := config.Parse()
	require.NoError(t, err)
	_, err = cfg.GetSecretKey()
	require.Error(t, err)

	t.Setenv("SECRET_KEY", "00ff")
	cfg, err = config.Parse()
	require.NoError(t, err)
	key, err := cfg.GetSecretKey()
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0xff}, key)
}
