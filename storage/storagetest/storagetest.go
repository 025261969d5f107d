// Package storagetest holds behaviour tests shared by every storage backend.
package storagetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-azure-oauth2-client/clients"
	apperrors "github.com/jrsteele09/go-azure-oauth2-client/internal/errors"
	"github.com/jrsteele09/go-azure-oauth2-client/internal/utils"
	"github.com/jrsteele09/go-azure-oauth2-client/oauth2"
	"github.com/jrsteele09/go-azure-oauth2-client/states"
	"github.com/jrsteele09/go-azure-oauth2-client/users"
)

// Repos is one backend's set of repositories, freshly emptied for each test.
type Repos struct {
	Clients clients.Repo
	States  states.Repo
	Users   users.Repo
}

// Factory builds an empty backend for a single test.
type Factory func(t *testing.T) Repos

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newClient(clientID, tenantID string, valid bool) *clients.Client {
	return &clients.Client{
		ClientID:     clientID,
		ClientSecret: "secret-" + clientID,
		TenantID:     tenantID,
		IsValid:      valid,
		CreateTime:   now,
		UpdateTime:   now,
	}
}

// Run executes the full backend suite.
func Run(t *testing.T, factory Factory) {
	t.Run("clients", func(t *testing.T) { RunClients(t, factory) })
	t.Run("states", func(t *testing.T) { RunStates(t, factory) })
	t.Run("users", func(t *testing.T) { RunUsers(t, factory) })
	t.Run("cascade", func(t *testing.T) { RunCascade(t, factory) })
}

func RunClients(t *testing.T, factory Factory) {
	ctx := context.Background()

	t.Run("FindValid returns lowest valid id", func(t *testing.T) {
		r := factory(t)
		invalid := newClient("c0", "t0", false)
		require.NoError(t, r.Clients.Create(ctx, invalid))
		first := newClient("c1", "t1", true)
		require.NoError(t, r.Clients.Create(ctx, first))
		require.NoError(t, r.Clients.Create(ctx, newClient("c2", "t2", true)))

		got, err := r.Clients.FindValid(ctx)
		require.NoError(t, err)
		require.Equal(t, "c1", got.ClientID)
		require.True(t, got.IsValid)
		require.Equal(t, "secret-c1", got.ClientSecret)
	})

	t.Run("FindValid with none valid", func(t *testing.T) {
		r := factory(t)
		require.NoError(t, r.Clients.Create(ctx, newClient("c0", "t0", false)))

		_, err := r.Clients.FindValid(ctx)
		require.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("FindByTenantID skips invalid", func(t *testing.T) {
		r := factory(t)
		require.NoError(t, r.Clients.Create(ctx, newClient("c0", "shared", false)))
		require.NoError(t, r.Clients.Create(ctx, newClient("c1", "shared", true)))

		got, err := r.Clients.FindByTenantID(ctx, "shared")
		require.NoError(t, err)
		require.Equal(t, "c1", got.ClientID)

		_, err = r.Clients.FindByTenantID(ctx, "other")
		require.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("FindByClientID and update", func(t *testing.T) {
		r := factory(t)
		c := newClient("c1", "t1", true)
		c.Scope = utils.Ptr("User.Read offline_access")
		require.NoError(t, r.Clients.Create(ctx, c))
		require.NotZero(t, c.ID)

		got, err := r.Clients.FindByClientID(ctx, "c1")
		require.NoError(t, err)
		require.Equal(t, c.ID, got.ID)
		require.Equal(t, "User.Read offline_access", utils.Value(got.Scope))
		require.Nil(t, got.RedirectURI)

		got.IsValid = false
		got.RedirectURI = utils.Ptr("https://app.example.com/callback")
		require.NoError(t, r.Clients.Update(ctx, got))

		reloaded, err := r.Clients.Get(ctx, c.ID)
		require.NoError(t, err)
		require.False(t, reloaded.IsValid)
		require.Equal(t, "https://app.example.com/callback", utils.Value(reloaded.RedirectURI))

		all, err := r.Clients.FindAllValid(ctx)
		require.NoError(t, err)
		require.Empty(t, all)

		list, err := r.Clients.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
	})

	t.Run("duplicate client id", func(t *testing.T) {
		r := factory(t)
		require.NoError(t, r.Clients.Create(ctx, newClient("c1", "t1", true)))
		err := r.Clients.Create(ctx, newClient("c1", "t2", true))
		require.ErrorIs(t, err, apperrors.ErrDuplicate)
	})
}

func RunStates(t *testing.T, factory Factory) {
	ctx := context.Background()

	setup := func(t *testing.T) (Repos, *clients.Client) {
		r := factory(t)
		c := newClient("c1", "t1", true)
		require.NoError(t, r.Clients.Create(ctx, c))
		return r, c
	}

	t.Run("create and find valid", func(t *testing.T) {
		r, c := setup(t)
		s := states.New(c.ID, "tok-valid", now, states.DefaultTTL)
		s.SessionID = utils.Ptr("sess-1")
		s.CodeChallenge = utils.Ptr("challenge")
		s.CodeChallengeMethod = utils.Ptr(string(oauth2.CodeMethodTypeS256))
		require.NoError(t, r.States.Create(ctx, s))
		require.NotZero(t, s.ID)

		got, err := r.States.FindValid(ctx, "tok-valid", now)
		require.NoError(t, err)
		require.Equal(t, c.ID, got.ClientID)
		require.Equal(t, "sess-1", utils.Value(got.SessionID))
		require.Equal(t, "challenge", utils.Value(got.CodeChallenge))
		require.True(t, got.ExpiresTime.Equal(now.Add(states.DefaultTTL)))
	})

	t.Run("expired, used and unknown look the same", func(t *testing.T) {
		r, c := setup(t)
		require.NoError(t, r.States.Create(ctx, states.New(c.ID, "tok-expired", now.Add(-time.Hour), time.Minute)))
		used := states.New(c.ID, "tok-used", now, time.Minute)
		require.NoError(t, r.States.Create(ctx, used))
		ok, err := r.States.MarkUsed(ctx, "tok-used", now)
		require.NoError(t, err)
		require.True(t, ok)

		for _, token := range []string{"tok-expired", "tok-used", "tok-unknown"} {
			_, err := r.States.FindValid(ctx, token, now)
			require.ErrorIs(t, err, apperrors.ErrNotFound, token)
		}
	})

	t.Run("mark used once", func(t *testing.T) {
		r, c := setup(t)
		require.NoError(t, r.States.Create(ctx, states.New(c.ID, "tok", now, time.Minute)))

		ok, err := r.States.MarkUsed(ctx, "tok", now)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = r.States.MarkUsed(ctx, "tok", now)
		require.NoError(t, err)
		require.False(t, ok)

		ok, err = r.States.MarkUsed(ctx, "missing", now)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("mark used rejects expired", func(t *testing.T) {
		r, c := setup(t)
		require.NoError(t, r.States.Create(ctx, states.New(c.ID, "tok", now, time.Minute)))

		ok, err := r.States.MarkUsed(ctx, "tok", now.Add(2*time.Minute))
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("concurrent mark used has one winner", func(t *testing.T) {
		r, c := setup(t)
		require.NoError(t, r.States.Create(ctx, states.New(c.ID, "tok", now, time.Minute)))

		var winners atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := r.States.MarkUsed(ctx, "tok", now)
				if err == nil && ok {
					winners.Add(1)
				}
			}()
		}
		wg.Wait()
		require.Equal(t, int32(1), winners.Load())
	})

	t.Run("cleanup removes used and expired", func(t *testing.T) {
		r, c := setup(t)
		require.NoError(t, r.States.Create(ctx, states.New(c.ID, "valid", now, time.Minute)))
		require.NoError(t, r.States.Create(ctx, states.New(c.ID, "expired", now.Add(-time.Hour), time.Minute)))
		require.NoError(t, r.States.Create(ctx, states.New(c.ID, "used", now, time.Minute)))
		_, err := r.States.MarkUsed(ctx, "used", now)
		require.NoError(t, err)

		removed, err := r.States.CleanupExpired(ctx, now)
		require.NoError(t, err)
		require.Equal(t, 2, removed)

		_, err = r.States.FindValid(ctx, "valid", now)
		require.NoError(t, err)

		removed, err = r.States.CleanupExpired(ctx, now)
		require.NoError(t, err)
		require.Zero(t, removed)
	})

	t.Run("duplicate token", func(t *testing.T) {
		r, c := setup(t)
		require.NoError(t, r.States.Create(ctx, states.New(c.ID, "tok", now, time.Minute)))
		require.Error(t, r.States.Create(ctx, states.New(c.ID, "tok", now, time.Minute)))
	})
}

func RunUsers(t *testing.T, factory Factory) {
	ctx := context.Background()

	setup := func(t *testing.T) (Repos, *clients.Client) {
		r := factory(t)
		c := newClient("c1", "t1", true)
		require.NoError(t, r.Clients.Create(ctx, c))
		return r, c
	}

	t.Run("save and find", func(t *testing.T) {
		r, c := setup(t)
		u, err := users.Upsert(ctx, r.Users, oauth2.Payload{
			"id":                "abc",
			"userPrincipalName": "ada@contoso.com",
			"mail":              "ada@contoso.com",
			"displayName":       "Ada",
			"access_token":      "at",
			"refresh_token":     "rt",
			"expires_in":        3600,
		}, c.ID, now)
		require.NoError(t, err)
		require.NoError(t, r.Users.Save(ctx, u))
		require.NotZero(t, u.ID)

		got, err := r.Users.FindByObjectID(ctx, "abc")
		require.NoError(t, err)
		require.Equal(t, u.ID, got.ID)
		require.Equal(t, "at", got.AccessToken)
		require.Equal(t, "rt", utils.Value(got.RefreshToken))
		require.Equal(t, 3600, got.ExpiresIn)
		require.True(t, got.TokenExpiresTime.Equal(now.Add(time.Hour)))
		require.Equal(t, "Ada", got.RawData["displayName"])

		got, err = r.Users.FindByUserPrincipalName(ctx, "ada@contoso.com")
		require.NoError(t, err)
		require.Equal(t, "abc", got.ObjectID)

		got, err = r.Users.FindByMail(ctx, "ada@contoso.com")
		require.NoError(t, err)
		require.Equal(t, "abc", got.ObjectID)

		_, err = r.Users.FindByMail(ctx, "nobody@contoso.com")
		require.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("upsert updates the same record", func(t *testing.T) {
		r, c := setup(t)
		u, err := users.Upsert(ctx, r.Users, oauth2.Payload{"id": "abc", "access_token": "t", "expires_in": 100}, c.ID, now)
		require.NoError(t, err)
		require.NoError(t, r.Users.Save(ctx, u))

		u, err = users.Upsert(ctx, r.Users, oauth2.Payload{"id": "abc", "displayName": "X"}, c.ID, now)
		require.NoError(t, err)
		require.NoError(t, r.Users.Save(ctx, u))

		got, err := r.Users.FindByObjectID(ctx, "abc")
		require.NoError(t, err)
		require.Equal(t, "t", got.AccessToken)
		require.Equal(t, "X", utils.Value(got.DisplayName))
		require.Equal(t, 100, got.ExpiresIn)
	})

	t.Run("expired token users need a refresh token", func(t *testing.T) {
		r, c := setup(t)
		save := func(objectID string, expiresIn int, refresh *string) {
			u := &users.User{ClientID: c.ID, ObjectID: objectID, AccessToken: "at", RefreshToken: refresh, CreateTime: now, UpdateTime: now}
			u.SetExpiresIn(expiresIn, now)
			require.NoError(t, r.Users.Save(ctx, u))
		}
		save("expired-refreshable", -60, utils.Ptr("rt"))
		save("expired-no-refresh", -60, nil)
		save("fresh", 3600, utils.Ptr("rt"))

		found, err := r.Users.FindExpiredTokenUsers(ctx, now)
		require.NoError(t, err)
		require.Len(t, found, 1)
		require.Equal(t, "expired-refreshable", found[0].ObjectID)
	})

	t.Run("save requires an existing client", func(t *testing.T) {
		r, _ := setup(t)
		err := r.Users.Save(ctx, &users.User{ClientID: 999, ObjectID: "x", AccessToken: "at"})
		require.Error(t, err)
	})
}

func RunCascade(t *testing.T, factory Factory) {
	ctx := context.Background()
	r := factory(t)

	keep := newClient("keep", "t1", true)
	drop := newClient("drop", "t2", true)
	require.NoError(t, r.Clients.Create(ctx, keep))
	require.NoError(t, r.Clients.Create(ctx, drop))

	require.NoError(t, r.States.Create(ctx, states.New(keep.ID, "keep-state", now, time.Minute)))
	require.NoError(t, r.States.Create(ctx, states.New(drop.ID, "drop-state", now, time.Minute)))
	require.NoError(t, r.Users.Save(ctx, &users.User{ClientID: keep.ID, ObjectID: "keep-user", AccessToken: "at"}))
	require.NoError(t, r.Users.Save(ctx, &users.User{ClientID: drop.ID, ObjectID: "drop-user", AccessToken: "at"}))

	require.NoError(t, r.Clients.Delete(ctx, drop.ID))

	_, err := r.Clients.Get(ctx, drop.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = r.States.FindValid(ctx, "drop-state", now)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = r.Users.FindByObjectID(ctx, "drop-user")
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = r.States.FindValid(ctx, "keep-state", now)
	require.NoError(t, err)
	_, err = r.Users.FindByObjectID(ctx, "keep-user")
	require.NoError(t, err)
}
