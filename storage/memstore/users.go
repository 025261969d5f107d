package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	apperrors "github.com/jrsteele09/go-azure-oauth2-client/internal/errors"
	"github.com/jrsteele09/go-azure-oauth2-client/users"
)

var _ users.Repo = (*UserRepo)(nil)

type UserRepo struct {
	store *Store
}

func (r *UserRepo) FindByObjectID(_ context.Context, objectID string) (*users.User, error) {
	r.store.lock.RLock()
	defer r.store.lock.RUnlock()
	u, ok := r.store.users[objectID]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", apperrors.ErrNotFound, objectID)
	}
	return u.Copy(), nil
}

func (r *UserRepo) FindByUserPrincipalName(_ context.Context, upn string) (*users.User, error) {
	return r.first(func(u *users.User) bool { return u.UserPrincipalName != nil && *u.UserPrincipalName == upn }, upn)
}

func (r *UserRepo) FindByMail(_ context.Context, mail string) (*users.User, error) {
	return r.first(func(u *users.User) bool { return u.Mail != nil && *u.Mail == mail }, mail)
}

func (r *UserRepo) FindExpiredTokenUsers(_ context.Context, now time.Time) ([]*users.User, error) {
	return r.filter(func(u *users.User) bool { return u.IsTokenExpired(now) && u.HasRefreshToken() }), nil
}

func (r *UserRepo) Save(_ context.Context, user *users.User) error {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()
	if _, ok := r.store.clients[user.ClientID]; !ok {
		return fmt.Errorf("%w: client %d", apperrors.ErrNotFound, user.ClientID)
	}
	existing, ok := r.store.users[user.ObjectID]
	switch {
	case user.ID == 0 && ok:
		return fmt.Errorf("%w: user %s", apperrors.ErrDuplicate, user.ObjectID)
	case user.ID == 0:
		r.store.nextUserID++
		user.ID = r.store.nextUserID
	case !ok || existing.ID != user.ID:
		return fmt.Errorf("%w: user %d", apperrors.ErrNotFound, user.ID)
	}
	r.store.users[user.ObjectID] = user.Copy()
	return nil
}

func (r *UserRepo) first(match func(*users.User) bool, what string) (*users.User, error) {
	found := r.filter(match)
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: user %s", apperrors.ErrNotFound, what)
	}
	return found[0], nil
}

func (r *UserRepo) filter(match func(*users.User) bool) []*users.User {
	r.store.lock.RLock()
	defer r.store.lock.RUnlock()
	result := make([]*users.User, 0)
	for _, u := range r.store.users {
		if match(u) {
			result = append(result, u.Copy())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}
