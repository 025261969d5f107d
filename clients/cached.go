package clients

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

const (
	cacheKeyValid  = "valid"
	cacheKeyTenant = "tenant:"
	cacheKeyClient = "client:"
)

// CachedRepo is a read-through cache in front of a Repo for the lookups made on every
// login. Any write through it flushes the whole cache. Concurrent misses for one key
// share a single load. Writes made elsewhere, by another process sharing the store,
// are only seen once the entry expires: until then FindValid and FindByTenantID may
// return a registration that has since been marked invalid. Keep ttl short.
type CachedRepo struct {
	Repo
	cache *gocache.Cache
	sf    singleflight.Group
}

var _ Repo = (*CachedRepo)(nil)

func NewCachedRepo(repo Repo, ttl time.Duration) *CachedRepo {
	return &CachedRepo{Repo: repo, cache: gocache.New(ttl, time.Minute)}
}

func (r *CachedRepo) FindValid(ctx context.Context) (*Client, error) {
	return r.lookup(cacheKeyValid, func() (*Client, error) { return r.Repo.FindValid(ctx) })
}

func (r *CachedRepo) FindByTenantID(ctx context.Context, tenantID string) (*Client, error) {
	return r.lookup(cacheKeyTenant+tenantID, func() (*Client, error) { return r.Repo.FindByTenantID(ctx, tenantID) })
}

func (r *CachedRepo) FindByClientID(ctx context.Context, clientID string) (*Client, error) {
	return r.lookup(cacheKeyClient+clientID, func() (*Client, error) { return r.Repo.FindByClientID(ctx, clientID) })
}

func (r *CachedRepo) Create(ctx context.Context, client *Client) error {
	defer r.cache.Flush()
	return r.Repo.Create(ctx, client)
}

func (r *CachedRepo) Update(ctx context.Context, client *Client) error {
	defer r.cache.Flush()
	return r.Repo.Update(ctx, client)
}

func (r *CachedRepo) Delete(ctx context.Context, id int64) error {
	defer r.cache.Flush()
	return r.Repo.Delete(ctx, id)
}

func (r *CachedRepo) lookup(key string, load func() (*Client, error)) (*Client, error) {
	if v, ok := r.cache.Get(key); ok {
		return v.(*Client).Copy(), nil
	}
	v, err, _ := r.sf.Do(key, func() (interface{}, error) {
		client, err := load()
		if err != nil {
			return nil, err
		}
		r.cache.SetDefault(key, client.Copy())
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Client).Copy(), nil
}
