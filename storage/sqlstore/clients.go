package sqlstore

import (
	"context"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-azure-oauth2-client/clients"
)

const clientColumns = `id, client_id, client_secret, tenant_id, name, scope, redirect_uri, is_valid, create_time, update_time`

var _ clients.Repo = (*ClientRepo)(nil)

type ClientRepo struct {
	store *Store
}

func (r *ClientRepo) Create(ctx context.Context, client *clients.Client) error {
	secret, err := r.store.sealer.Seal(client.ClientSecret)
	if err != nil {
		return errors.Wrap(err, "[ClientRepo.Create] seal secret")
	}
	err = r.store.queryRow(ctx, `INSERT INTO azure_oauth2_configs
		(client_id, client_secret, tenant_id, name, scope, redirect_uri, is_valid, create_time, update_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		client.ClientID, secret, client.TenantID, client.Name, client.Scope, client.RedirectURI,
		client.IsValid, toMillis(client.CreateTime), toMillis(client.UpdateTime),
	).Scan(&client.ID)
	return classify(err, "client "+client.ClientID)
}

func (r *ClientRepo) Update(ctx context.Context, client *clients.Client) error {
	secret, err := r.store.sealer.Seal(client.ClientSecret)
	if err != nil {
		return errors.Wrap(err, "[ClientRepo.Update] seal secret")
	}
	res, err := r.store.exec(ctx, `UPDATE azure_oauth2_configs SET
		client_id = $2, client_secret = $3, tenant_id = $4, name = $5, scope = $6, redirect_uri = $7,
		is_valid = $8, update_time = $9
		WHERE id = $1`,
		client.ID, client.ClientID, secret, client.TenantID, client.Name, client.Scope, client.RedirectURI,
		client.IsValid, toMillis(client.UpdateTime),
	)
	if err != nil {
		return classify(err, "client "+client.ClientID)
	}
	return notFoundIfNone(res, "client "+client.ClientID)
}

func (r *ClientRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.store.exec(ctx, `DELETE FROM azure_oauth2_configs WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "[ClientRepo.Delete]")
	}
	return notFoundIfNone(res, "client")
}

func (r *ClientRepo) Get(ctx context.Context, id int64) (*clients.Client, error) {
	return r.one(ctx, `SELECT `+clientColumns+` FROM azure_oauth2_configs WHERE id = $1`, "client", id)
}

func (r *ClientRepo) FindValid(ctx context.Context) (*clients.Client, error) {
	return r.one(ctx, `SELECT `+clientColumns+` FROM azure_oauth2_configs WHERE is_valid = TRUE ORDER BY id LIMIT 1`, "no valid client")
}

func (r *ClientRepo) FindByClientID(ctx context.Context, clientID string) (*clients.Client, error) {
	return r.one(ctx, `SELECT `+clientColumns+` FROM azure_oauth2_configs WHERE client_id = $1`, "client "+clientID, clientID)
}

func (r *ClientRepo) FindByTenantID(ctx context.Context, tenantID string) (*clients.Client, error) {
	return r.one(ctx, `SELECT `+clientColumns+` FROM azure_oauth2_configs
		WHERE tenant_id = $1 AND is_valid = TRUE ORDER BY id LIMIT 1`, "tenant "+tenantID, tenantID)
}

func (r *ClientRepo) FindAllValid(ctx context.Context) ([]*clients.Client, error) {
	return r.many(ctx, `SELECT `+clientColumns+` FROM azure_oauth2_configs WHERE is_valid = TRUE ORDER BY id`)
}

func (r *ClientRepo) List(ctx context.Context) ([]*clients.Client, error) {
	return r.many(ctx, `SELECT `+clientColumns+` FROM azure_oauth2_configs ORDER BY id`)
}

func (r *ClientRepo) one(ctx context.Context, query, what string, args ...any) (*clients.Client, error) {
	c, err := r.scan(r.store.queryRow(ctx, query, args...))
	if err != nil {
		return nil, classify(err, what)
	}
	return c, nil
}

func (r *ClientRepo) many(ctx context.Context, query string, args ...any) ([]*clients.Client, error) {
	rows, err := r.store.query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "[ClientRepo] query")
	}
	defer rows.Close()

	result := make([]*clients.Client, 0)
	for rows.Next() {
		c, err := r.scan(rows)
		if err != nil {
			return nil, errors.Wrap(err, "[ClientRepo] scan")
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (r *ClientRepo) scan(row scanner) (*clients.Client, error) {
	var (
		c                clients.Client
		created, updated int64
	)
	if err := row.Scan(&c.ID, &c.ClientID, &c.ClientSecret, &c.TenantID, &c.Name, &c.Scope, &c.RedirectURI,
		&c.IsValid, &created, &updated); err != nil {
		return nil, err
	}
	secret, err := r.store.sealer.Open(c.ClientSecret)
	if err != nil {
		return nil, err
	}
	c.ClientSecret = secret
	c.CreateTime = fromMillis(created)
	c.UpdateTime = fromMillis(updated)
	return &c, nil
}
