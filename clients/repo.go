package clients

import "context"

// Repo stores app registrations. Lookups that match nothing return an error
// wrapping errors.ErrNotFound.
type Repo interface {
	Create(ctx context.Context, client *Client) error
	Update(ctx context.Context, client *Client) error
	// Delete removes the registration together with its states and users.
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*Client, error)
	// FindValid returns the valid registration with the lowest id.
	FindValid(ctx context.Context) (*Client, error)
	FindByClientID(ctx context.Context, clientID string) (*Client, error)
	// FindByTenantID returns the lowest-id valid registration for the tenant.
	FindByTenantID(ctx context.Context, tenantID string) (*Client, error)
	FindAllValid(ctx context.Context) ([]*Client, error)
	List(ctx context.Context) ([]*Client, error)
}
