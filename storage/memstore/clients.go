package memstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/jrsteele09/go-azure-oauth2-client/clients"
	apperrors "github.com/jrsteele09/go-azure-oauth2-client/internal/errors"
)

var _ clients.Repo = (*ClientRepo)(nil)

type ClientRepo struct {
	store *Store
}

func (r *ClientRepo) Create(_ context.Context, client *clients.Client) error {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()
	for _, c := range r.store.clients {
		if c.ClientID == client.ClientID {
			return fmt.Errorf("%w: client %s", apperrors.ErrDuplicate, client.ClientID)
		}
	}
	r.store.nextClientID++
	client.ID = r.store.nextClientID
	r.store.clients[client.ID] = client.Copy()
	return nil
}

func (r *ClientRepo) Update(_ context.Context, client *clients.Client) error {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()
	if _, ok := r.store.clients[client.ID]; !ok {
		return fmt.Errorf("%w: client %d", apperrors.ErrNotFound, client.ID)
	}
	for _, c := range r.store.clients {
		if c.ID != client.ID && c.ClientID == client.ClientID {
			return fmt.Errorf("%w: client %s", apperrors.ErrDuplicate, client.ClientID)
		}
	}
	r.store.clients[client.ID] = client.Copy()
	return nil
}

func (r *ClientRepo) Delete(_ context.Context, id int64) error {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()
	if _, ok := r.store.clients[id]; !ok {
		return fmt.Errorf("%w: client %d", apperrors.ErrNotFound, id)
	}
	delete(r.store.clients, id)
	for token, s := range r.store.states {
		if s.ClientID == id {
			delete(r.store.states, token)
		}
	}
	for objectID, u := range r.store.users {
		if u.ClientID == id {
			delete(r.store.users, objectID)
		}
	}
	return nil
}

func (r *ClientRepo) Get(_ context.Context, id int64) (*clients.Client, error) {
	r.store.lock.RLock()
	defer r.store.lock.RUnlock()
	c, ok := r.store.clients[id]
	if !ok {
		return nil, fmt.Errorf("%w: client %d", apperrors.ErrNotFound, id)
	}
	return c.Copy(), nil
}

func (r *ClientRepo) FindValid(_ context.Context) (*clients.Client, error) {
	return r.first(func(c *clients.Client) bool { return c.IsValid }, "no valid client")
}

func (r *ClientRepo) FindByClientID(_ context.Context, clientID string) (*clients.Client, error) {
	return r.first(func(c *clients.Client) bool { return c.ClientID == clientID }, "client "+clientID)
}

func (r *ClientRepo) FindByTenantID(_ context.Context, tenantID string) (*clients.Client, error) {
	return r.first(func(c *clients.Client) bool { return c.IsValid && c.TenantID == tenantID }, "tenant "+tenantID)
}

func (r *ClientRepo) FindAllValid(_ context.Context) ([]*clients.Client, error) {
	return r.filter(func(c *clients.Client) bool { return c.IsValid }), nil
}

func (r *ClientRepo) List(_ context.Context) ([]*clients.Client, error) {
	return r.filter(func(*clients.Client) bool { return true }), nil
}

func (r *ClientRepo) first(match func(*clients.Client) bool, what string) (*clients.Client, error) {
	found := r.filter(match)
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrNotFound, what)
	}
	return found[0], nil
}

// filter returns copies of the matching clients ordered by id.
func (r *ClientRepo) filter(match func(*clients.Client) bool) []*clients.Client {
	r.store.lock.RLock()
	defer r.store.lock.RUnlock()
	result := make([]*clients.Client, 0)
	for _, c := range r.store.clients {
		if match(c) {
			result = append(result, c.Copy())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}
