// Package idtoken verifies and decodes Azure AD v2.0 id tokens.
package idtoken

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/jrsteele09/go-azure-oauth2-client/clients"
	apperrors "github.com/jrsteele09/go-azure-oauth2-client/internal/errors"
)

// Claims are the id token claims the service reads.
type Claims struct {
	jwtlib.RegisteredClaims
	ObjectID          string `json:"oid,omitempty"`                // Azure AD object id of the user
	TenantID          string `json:"tid,omitempty"`                // Directory that issued the token
	PreferredUsername string `json:"preferred_username,omitempty"` // Usually the UPN
	Name              string `json:"name,omitempty"`
	Email             string `json:"email,omitempty"`
	Nonce             string `json:"nonce,omitempty"`
}

var guidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// Verifier checks id token signatures against the tenant's published keys.
type Verifier struct {
	loginBaseURL string
	keySet       oidc.KeySet
	nowTime      func() time.Time

	lock    sync.Mutex
	remotes map[string]oidc.KeySet
}

type Option func(*Verifier)

// WithKeySet uses fixed keys instead of fetching each tenant's JWKS.
func WithKeySet(keySet oidc.KeySet) Option {
	return func(v *Verifier) {
		v.keySet = keySet
	}
}

func WithNowTime(nowTime func() time.Time) Option {
	return func(v *Verifier) {
		v.nowTime = nowTime
	}
}

func NewVerifier(loginBaseURL string, options ...Option) *Verifier {
	v := &Verifier{
		loginBaseURL: strings.TrimRight(loginBaseURL, "/"),
		nowTime:      time.Now,
		remotes:      make(map[string]oidc.KeySet),
	}
	for _, opt := range options {
		opt(v)
	}
	return v
}

// Issuer is the v2.0 issuer for a tenant id.
func (v *Verifier) Issuer(tenantID string) string {
	return fmt.Sprintf("%s/%s/v2.0", v.loginBaseURL, tenantID)
}

// Verify checks signature, audience, expiry and issuer. For registrations using a
// domain name or a multi-tenant alias the issuer must match the token's own tid.
func (v *Verifier) Verify(ctx context.Context, client *clients.Client, rawIDToken string) (*Claims, error) {
	fixedIssuer := guidPattern.MatchString(client.TenantID)
	verifier := oidc.NewVerifier(v.Issuer(client.TenantID), v.keys(client.TenantID), &oidc.Config{
		ClientID:        client.ClientID,
		SkipIssuerCheck: !fixedIssuer,
		Now:             v.nowTime,
	})

	idToken, err := verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: id token: %v", apperrors.ErrAPI, err)
	}
	var claims Claims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: id token claims: %v", apperrors.ErrAPI, err)
	}
	if !fixedIssuer && (claims.TenantID == "" || idToken.Issuer != v.Issuer(claims.TenantID)) {
		return nil, fmt.Errorf("%w: id token issuer %q does not match tenant %q", apperrors.ErrAPI, idToken.Issuer, claims.TenantID)
	}
	return &claims, nil
}

func (v *Verifier) keys(tenantID string) oidc.KeySet {
	if v.keySet != nil {
		return v.keySet
	}
	v.lock.Lock()
	defer v.lock.Unlock()
	ks, ok := v.remotes[tenantID]
	if !ok {
		jwksURL := fmt.Sprintf("%s/%s/discovery/v2.0/keys", v.loginBaseURL, tenantID)
		ks = oidc.NewRemoteKeySet(context.Background(), jwksURL)
		v.remotes[tenantID] = ks
	}
	return ks
}

// Decode reads claims without verifying the signature. Only for display of tokens
// that were verified, or deliberately not verified, when stored.
func Decode(rawIDToken string) (*Claims, error) {
	var claims Claims
	if _, _, err := jwtlib.NewParser().ParseUnverified(rawIDToken, &claims); err != nil {
		return nil, errors.Wrap(err, "[idtoken.Decode] ParseUnverified")
	}
	return &claims, nil
}
