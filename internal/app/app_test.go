package app_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-azure-oauth2-client/internal/app"
	"github.com/jrsteele09/go-azure-oauth2-client/internal/config"
	apperrors "github.com/jrsteele09/go-azure-oauth2-client/internal/errors"
	"github.com/jrsteele09/go-azure-oauth2-client/oauthmodel"
	"github.com/jrsteele09/go-azure-oauth2-client/states"
)

const registrations = `
clients:
  - client_id: app-1
    client_secret: secret
    tenant_id: contoso.onmicrosoft.com
`

func setupApp(t *testing.T, env map[string]string) *app.App {
	t.Helper()
	dir := t.TempDir()
	clientsFile := filepath.Join(dir, "clients.yaml")
	require.NoError(t, os.WriteFile(clientsFile, []byte(registrations), 0o600))

	t.Setenv("ENV", "TEST")
	t.Setenv("CLIENTS_FILE", clientsFile)
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "data", "test.db"))
	for k, v := range env {
		t.Setenv(k, v)
	}

	cfg, err := config.Parse()
	require.NoError(t, err)

	a, err := app.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })
	require.NoError(t, a.Bootstrap(context.Background()))
	return a
}

func TestNew_Drivers(t *testing.T) {
	for _, driver := range []string{config.StorageDriverMemory, config.StorageDriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			a := setupApp(t, map[string]string{"STORAGE_DRIVER": driver})
			ctx := context.Background()

			c, err := a.Clients.FindValid(ctx)
			require.NoError(t, err)
			require.Equal(t, "app-1", c.ClientID)

			authURL, err := a.Auth.GenerateAuthorizationURL(ctx, oauthmodel.AuthorizationRequest{})
			require.NoError(t, err)
			require.Contains(t, authURL, "https://login.microsoftonline.com/contoso.onmicrosoft.com/oauth2/v2.0/authorize?")
			require.Contains(t, authURL, "redirect_uri=http%3A%2F%2Flocalhost%3A8080%2Fazure%2Foauth2%2Fcallback")
		})
	}
}

func TestBootstrap_Idempotent(t *testing.T) {
	a := setupApp(t, map[string]string{"STORAGE_DRIVER": config.StorageDriverSQLite})

	require.NoError(t, a.Bootstrap(context.Background()))
	applied, err := a.Migrate(context.Background())
	require.NoError(t, err)
	require.Empty(t, applied)

	all, err := a.Clients.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestNew_SealedSecrets(t *testing.T) {
	a := setupApp(t, map[string]string{
		"STORAGE_DRIVER": config.StorageDriverSQLite,
		"SECRET_KEY":     "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f",
	})

	c, err := a.Clients.FindByClientID(context.Background(), "app-1")
	require.NoError(t, err)
	require.Equal(t, "secret", c.ClientSecret)
}

func TestNew_ClientCacheDisabled(t *testing.T) {
	a := setupApp(t, map[string]string{
		"STORAGE_DRIVER":   config.StorageDriverSQLite,
		"CLIENT_CACHE_TTL": "0",
	})
	ctx := context.Background()

	c, err := a.Clients.FindValid(ctx)
	require.NoError(t, err)

	// A second process sharing the database marks the registration invalid.
	cfg, err := config.Parse()
	require.NoError(t, err)
	other, err := app.New(ctx, cfg)
	require.NoError(t, err)
	defer other.Close()
	c.IsValid = false
	require.NoError(t, other.Clients.Update(ctx, c))

	_, err = a.Clients.FindValid(ctx)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestNew_InvalidConfiguration(t *testing.T) {
	tests := map[string]map[string]string{
		"unknown driver":      {"STORAGE_DRIVER": "mongo"},
		"unknown state store": {"STATE_STORE": "etcd"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			cfg, err := config.Parse()
			require.NoError(t, err)

			_, err = app.New(context.Background(), cfg)
			require.ErrorIs(t, err, apperrors.ErrConfiguration)
		})
	}

	t.Run("bad secret key", func(t *testing.T) {
		t.Setenv("SECRET_KEY", "abcd")
		cfg, err := config.Parse()
		require.NoError(t, err)
		_, err = app.New(context.Background(), cfg)
		require.Error(t, err)
	})
}

func TestRunJobs_Cleanup(t *testing.T) {
	a := setupApp(t, map[string]string{"SCHEDULE_CLEANUP": "10ms"})
	ctx := context.Background()

	c, err := a.Clients.FindValid(ctx)
	require.NoError(t, err)
	expired := func() *states.State {
		return &states.State{ClientID: c.ID, State: "expired", ExpiresTime: time.Now().Add(-time.Minute)}
	}
	require.NoError(t, a.States.Create(ctx, expired()))
	require.ErrorIs(t, a.States.Create(ctx, expired()), apperrors.ErrDuplicate)

	jobCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- a.RunJobs(jobCtx) }()

	// The token can be reused once the scheduled cleanup has deleted it.
	require.Eventually(t, func() bool {
		return a.States.Create(ctx, expired()) == nil
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
