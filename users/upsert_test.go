package users_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-azure-oauth2-client/clients"
	apperrors "github.com/jrsteele09/go-azure-oauth2-client/internal/errors"
	"github.com/jrsteele09/go-azure-oauth2-client/internal/utils"
	"github.com/jrsteele09/go-azure-oauth2-client/oauth2"
	"github.com/jrsteele09/go-azure-oauth2-client/storage/memstore"
	"github.com/jrsteele09/go-azure-oauth2-client/users"
)

type testFixture struct {
	repo     users.Repo
	clientID int64
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	store := memstore.New()
	c := &clients.Client{ClientID: "app", ClientSecret: "s", TenantID: "t", IsValid: true}
	require.NoError(t, store.Clients().Create(context.Background(), c))
	return &testFixture{repo: store.Users(), clientID: c.ID}
}

func (f *testFixture) upsert(t *testing.T, payload oauth2.Payload) *users.User {
	t.Helper()
	u, err := users.Upsert(context.Background(), f.repo, payload, f.clientID, testNow)
	require.NoError(t, err)
	require.NoError(t, f.repo.Save(context.Background(), u))
	return u
}

func TestUpsert_CreatesThenUpdates(t *testing.T) {
	f := setupTestFixture(t)

	created := f.upsert(t, oauth2.Payload{"id": "abc", "access_token": "t", "expires_in": 100})
	require.NotZero(t, created.ID)
	require.Equal(t, f.clientID, created.ClientID)
	require.Equal(t, "t", created.AccessToken)
	require.Equal(t, 100, created.ExpiresIn)

	updated := f.upsert(t, oauth2.Payload{"id": "abc", "displayName": "X"})
	require.Equal(t, created.ID, updated.ID)
	require.Equal(t, "X", utils.Value(updated.DisplayName))
	require.Equal(t, "t", updated.AccessToken, "absent keys leave fields untouched")
	require.Equal(t, oauth2.Payload{"id": "abc", "displayName": "X"}, updated.RawData)

	stored, err := f.repo.FindByObjectID(context.Background(), "abc")
	require.NoError(t, err)
	require.Equal(t, "t", stored.AccessToken)
	require.Equal(t, "X", utils.Value(stored.DisplayName))
}

func TestUpsert_ObjectIDKeys(t *testing.T) {
	f := setupTestFixture(t)

	require.Equal(t, "from-oid", f.upsert(t, oauth2.Payload{"oid": "from-oid"}).ObjectID)
	require.Equal(t, "from-object-id", f.upsert(t, oauth2.Payload{"objectId": "from-object-id"}).ObjectID)
	require.Equal(t, "from-id", f.upsert(t, oauth2.Payload{"id": "from-id", "oid": "ignored"}).ObjectID)
}

func TestUpsert_RequiresObjectID(t *testing.T) {
	f := setupTestFixture(t)

	payloads := []oauth2.Payload{
		{},
		{"access_token": "t"},
		{"displayName": "X", "mail": "x@y"},
		{"id": ""},
	}
	for _, p := range payloads {
		_, err := users.Upsert(context.Background(), f.repo, p, f.clientID, testNow)
		require.ErrorIs(t, err, apperrors.ErrValidation)
	}
}
