package clients

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/go-azure-oauth2-client/internal/errors"
)

// Client is an Azure AD app registration the service authenticates users against.
// ClientID is the registration's application id and never changes once created.
type Client struct {
	ID           int64     `json:"id"`
	ClientID     string    `json:"clientId"`
	ClientSecret string    `json:"-"`
	TenantID     string    `json:"tenantId"`
	Name         *string   `json:"name,omitempty"`
	Scope        *string   `json:"scope,omitempty"`
	RedirectURI  *string   `json:"redirectUri,omitempty"`
	IsValid      bool      `json:"isValid"`
	CreateTime   time.Time `json:"createTime"`
	UpdateTime   time.Time `json:"updateTime"`
}

// EffectiveScope returns the registration's scope, or defaultScope when none is set.
func (c *Client) EffectiveScope(defaultScope string) string {
	if c.Scope != nil && strings.TrimSpace(*c.Scope) != "" {
		return *c.Scope
	}
	return defaultScope
}

// EffectiveRedirectURI returns the registration's redirect URI, or callbackURL when none is set.
func (c *Client) EffectiveRedirectURI(callbackURL string) string {
	if c.RedirectURI != nil && *c.RedirectURI != "" {
		return *c.RedirectURI
	}
	return callbackURL
}

// Validate checks the fields every token request needs.
func (c *Client) Validate() error {
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, "clientId")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "clientSecret")
	}
	if c.TenantID == "" {
		missing = append(missing, "tenantId")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: client missing %s", apperrors.ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}

// Copy returns a deep copy so stores never hand out shared pointers.
func (c *Client) Copy() *Client {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Name = copyString(c.Name)
	cp.Scope = copyString(c.Scope)
	cp.RedirectURI = copyString(c.RedirectURI)
	return &cp
}

func (c *Client) String() string {
	return fmt.Sprintf("AzureOAuth2Config[%d]:%s", c.ID, c.ClientID)
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
