// Package token performs the outbound calls to Azure AD and Microsoft Graph: the
// authorization code exchange, the refresh token exchange and the /me profile fetch.
package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	xoauth2 "golang.org/x/oauth2"

	"github.com/jrsteele09/go-azure-oauth2-client/clients"
	apperrors "github.com/jrsteele09/go-azure-oauth2-client/internal/errors"
	"github.com/jrsteele09/go-azure-oauth2-client/oauth2"
	"github.com/jrsteele09/go-azure-oauth2-client/oauthmodel"
)

const (
	DefaultLoginBaseURL = "https://login.microsoftonline.com"
	DefaultGraphBaseURL = "https://graph.microsoft.com"
	DefaultTimeout      = 30 * time.Second

	userInfoPath    = "/v1.0/me"
	maxResponseSize = 1 << 20
)

// Client talks to the Azure AD token endpoint and Graph.
type Client struct {
	httpClient   *http.Client
	loginBaseURL string
	graphBaseURL string
}

type ClientOption func(*Client)

// WithHTTPClient replaces the default client, e.g. to add retries or a custom transport.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithLoginBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.loginBaseURL = strings.TrimRight(baseURL, "/")
	}
}

func WithGraphBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.graphBaseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithTimeout bounds each outbound call.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient = &http.Client{Timeout: timeout, Transport: c.httpClient.Transport}
	}
}

func NewClient(options ...ClientOption) *Client {
	c := &Client{
		httpClient:   &http.Client{Timeout: DefaultTimeout},
		loginBaseURL: DefaultLoginBaseURL,
		graphBaseURL: DefaultGraphBaseURL,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// LoginBaseURL is the authority host the endpoints are built from.
func (c *Client) LoginBaseURL() string {
	return c.loginBaseURL
}

// Endpoint returns the v2.0 authorize and token URLs for a tenant.
func (c *Client) Endpoint(tenantID string) xoauth2.Endpoint {
	return Endpoint(c.loginBaseURL, tenantID)
}

// Endpoint returns the v2.0 authorize and token URLs for a tenant under loginBaseURL.
func Endpoint(loginBaseURL, tenantID string) xoauth2.Endpoint {
	base := fmt.Sprintf("%s/%s/oauth2/v2.0", strings.TrimRight(loginBaseURL, "/"), url.PathEscape(tenantID))
	return xoauth2.Endpoint{
		AuthURL:   base + "/authorize",
		TokenURL:  base + "/token",
		AuthStyle: xoauth2.AuthStyleInParams,
	}
}

// ExchangeCode redeems an authorization code. The response must carry an access token.
func (c *Client) ExchangeCode(ctx context.Context, client *clients.Client, code, redirectURI, codeVerifier string) (oauth2.Payload, error) {
	payload, err := c.postToken(ctx, client.TenantID, oauthmodel.TokenRequest{
		GrantType:    oauth2.AuthorizationCodeGrant,
		ClientID:     client.ClientID,
		ClientSecret: client.ClientSecret,
		Code:         code,
		RedirectURI:  redirectURI,
		CodeVerifier: codeVerifier,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Client.ExchangeCode]")
	}
	if _, ok := payload.String(oauth2.KeyAccessToken); !ok {
		return nil, fmt.Errorf("[Client.ExchangeCode] %w: response has no access_token", apperrors.ErrAPI)
	}
	return payload, nil
}

// Refresh redeems a refresh token. The registration's scope is sent when set.
func (c *Client) Refresh(ctx context.Context, client *clients.Client, refreshToken string) (oauth2.Payload, error) {
	req := oauthmodel.TokenRequest{
		GrantType:    oauth2.RefreshTokenGrant,
		ClientID:     client.ClientID,
		ClientSecret: client.ClientSecret,
		RefreshToken: refreshToken,
	}
	if client.Scope != nil {
		req.Scope = *client.Scope
	}
	payload, err := c.postToken(ctx, client.TenantID, req)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Refresh]")
	}
	return payload, nil
}

// FetchUserInfo reads the signed-in user's profile from Graph /v1.0/me.
func (c *Client) FetchUserInfo(ctx context.Context, accessToken string) (oauth2.Payload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.graphBaseURL+userInfoPath, nil)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.FetchUserInfo] NewRequest")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	payload, err := c.do(req)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.FetchUserInfo]")
	}
	return payload, nil
}

func (c *Client) postToken(ctx context.Context, tenantID string, tr oauthmodel.TokenRequest) (oauth2.Payload, error) {
	endpoint := c.Endpoint(tenantID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.TokenURL, strings.NewReader(tr.Form().Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "NewRequest")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return c.do(req)
}

// do sends the request and decodes the body as a provider payload. An "error" key is a
// failure whatever the HTTP status.
func (c *Client) do(req *http.Request) (oauth2.Payload, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", apperrors.ErrAPI, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", apperrors.ErrAPI, err)
	}

	payload, err := decodePayload(body)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid JSON response (status %d): %v", apperrors.ErrAPI, resp.StatusCode, err)
	}
	if code, description, ok := payload.ProviderError(); ok {
		return nil, &ProviderError{Status: resp.StatusCode, Code: code, Description: description}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status %d", apperrors.ErrAPI, resp.StatusCode)
	}
	return payload, nil
}

func decodePayload(body []byte) (oauth2.Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	payload, ok := raw.(map[string]any)
	if !ok {
		return nil, errors.Errorf("expected a JSON object, got %T", raw)
	}
	return payload, nil
}
