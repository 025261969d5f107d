package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const registrations = `
clients:
  - client_id: app-1
    client_secret: secret
    tenant_id: contoso.onmicrosoft.com
    name: Contoso
`

type testFixture struct {
	dir string
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ENV_FILE", filepath.Join(dir, "missing.env"))
	t.Setenv("ENV", "TEST")
	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "cli.db"))
	t.Setenv("CLIENTS_FILE", "")
	return &testFixture{dir: dir}
}

func (f *testFixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCommands_Migrate(t *testing.T) {
	f := setupTestFixture(t)

	out, err := f.run(t, "migrate")
	require.NoError(t, err)
	require.Contains(t, out, "Applied")

	out, err = f.run(t, "migrate")
	require.NoError(t, err)
	require.Contains(t, out, "No pending migrations.")
}

func TestCommands_ClientsImportAndList(t *testing.T) {
	f := setupTestFixture(t)
	file := filepath.Join(f.dir, "clients.yaml")
	require.NoError(t, os.WriteFile(file, []byte(registrations), 0o600))

	out, err := f.run(t, "clients", "import", file)
	require.NoError(t, err)
	require.Contains(t, out, "1 created, 0 updated")

	out, err = f.run(t, "clients", "import", file)
	require.NoError(t, err)
	require.Contains(t, out, "0 created, 1 updated")

	out, err = f.run(t, "clients", "list")
	require.NoError(t, err)
	require.Contains(t, out, "CLIENT ID")
	require.Contains(t, out, "app-1")
	require.Contains(t, out, "contoso.onmicrosoft.com")
	require.Contains(t, out, "Contoso")
	require.NotContains(t, out, "secret")
}

func TestCommands_Maintenance(t *testing.T) {
	f := setupTestFixture(t)

	out, err := f.run(t, "states", "cleanup")
	require.NoError(t, err)
	require.Contains(t, out, "Removed 0 states")

	out, err = f.run(t, "tokens", "refresh-expired")
	require.NoError(t, err)
	require.Contains(t, out, "Refreshed 0 tokens")

	_, err = f.run(t, "tokens", "refresh", "unknown-oid")
	require.Error(t, err)

	_, err = f.run(t, "users", "show", "unknown-oid")
	require.Error(t, err)
}

func TestCommands_Args(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.run(t, "clients", "import")
	require.Error(t, err)

	_, err = f.run(t, "users", "show")
	require.Error(t, err)
}
