package clients

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	apperrors "github.com/jrsteele09/go-azure-oauth2-client/internal/errors"
	"github.com/jrsteele09/go-azure-oauth2-client/internal/utils"
)

// Registration is one entry of a registrations file:
//
//	clients:
//	  - client_id: 00000000-0000-0000-0000-000000000000
//	    client_secret: ${AZURE_CLIENT_SECRET}
//	    tenant_id: contoso.onmicrosoft.com
//	    scope: openid profile offline_access User.Read
//
// Values are expanded against the environment so secrets can stay out of the file.
type Registration struct {
	ClientID     string  `yaml:"client_id"`
	ClientSecret string  `yaml:"client_secret"`
	TenantID     string  `yaml:"tenant_id"`
	Name         *string `yaml:"name"`
	Scope        *string `yaml:"scope"`
	RedirectURI  *string `yaml:"redirect_uri"`
	Valid        *bool   `yaml:"valid"`
}

type registrationFile struct {
	Clients []Registration `yaml:"clients"`
}

// LoadFile reads registrations from a YAML file.
func LoadFile(path string) ([]Registration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "[clients.LoadFile] read %s", path)
	}
	var file registrationFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrapf(err, "[clients.LoadFile] parse %s", path)
	}
	for i := range file.Clients {
		file.Clients[i].expand()
	}
	return file.Clients, nil
}

func (r *Registration) expand() {
	r.ClientID = os.ExpandEnv(r.ClientID)
	r.ClientSecret = os.ExpandEnv(r.ClientSecret)
	r.TenantID = os.ExpandEnv(r.TenantID)
	for _, s := range []*string{r.Name, r.Scope, r.RedirectURI} {
		if s != nil {
			*s = os.ExpandEnv(*s)
		}
	}
}

func (r Registration) apply(c *Client) {
	c.ClientID = r.ClientID
	c.ClientSecret = r.ClientSecret
	c.TenantID = r.TenantID
	c.Name = copyString(r.Name)
	c.Scope = copyString(r.Scope)
	c.RedirectURI = copyString(r.RedirectURI)
	c.IsValid = utils.ValueOr(r.Valid, true)
}

// Sync creates or updates one registration per entry, matched on client id.
func Sync(ctx context.Context, repo Repo, registrations []Registration, now time.Time) (created, updated int, err error) {
	for _, reg := range registrations {
		existing, err := repo.FindByClientID(ctx, reg.ClientID)
		switch {
		case err == nil:
			reg.apply(existing)
			if err := existing.Validate(); err != nil {
				return created, updated, errors.Wrapf(err, "[clients.Sync] %s", reg.ClientID)
			}
			existing.UpdateTime = now
			if err := repo.Update(ctx, existing); err != nil {
				return created, updated, errors.Wrapf(err, "[clients.Sync] update %s", reg.ClientID)
			}
			updated++
		case apperrors.Is(err, apperrors.ErrNotFound):
			client := &Client{CreateTime: now, UpdateTime: now}
			reg.apply(client)
			if err := client.Validate(); err != nil {
				return created, updated, errors.Wrapf(err, "[clients.Sync] %s", reg.ClientID)
			}
			if err := repo.Create(ctx, client); err != nil {
				return created, updated, errors.Wrapf(err, "[clients.Sync] create %s", reg.ClientID)
			}
			created++
		default:
			return created, updated, errors.Wrapf(err, "[clients.Sync] find %s", reg.ClientID)
		}
	}
	return created, updated, nil
}
