package oauthmodel

import (
	"net/url"

	"github.com/jrsteele09/go-azure-oauth2-client/oauth2"
)

// TokenRequest is the form body posted to the Azure AD token endpoint.
type TokenRequest struct {
	// GrantType selects the exchange.
	// Values: "authorization_code" or "refresh_token"
	GrantType oauth2.GrantType

	// ClientID and ClientSecret identify the app registration.
	// Security: ClientSecret is never logged
	ClientID     string
	ClientSecret string

	// Code is the authorization code received on the callback.
	// Required: authorization_code grant only
	Code string

	// RedirectURI must be identical to the one sent to the authorize endpoint.
	// Required: authorization_code grant only
	RedirectURI string

	// CodeVerifier is sent when the authorization request carried a code_challenge.
	CodeVerifier string

	// RefreshToken is the token being exchanged.
	// Required: refresh_token grant only
	RefreshToken string

	// Scope is sent on refresh when the registration defines one.
	Scope string
}

// Form encodes the request, omitting empty optional fields.
func (tr TokenRequest) Form() url.Values {
	form := url.Values{}
	form.Set("client_id", tr.ClientID)
	form.Set("client_secret", tr.ClientSecret)
	form.Set("grant_type", string(tr.GrantType))

	switch tr.GrantType {
	case oauth2.AuthorizationCodeGrant:
		form.Set("code", tr.Code)
		form.Set("redirect_uri", tr.RedirectURI)
		if tr.CodeVerifier != "" {
			form.Set("code_verifier", tr.CodeVerifier)
		}
	case oauth2.RefreshTokenGrant:
		form.Set("refresh_token", tr.RefreshToken)
		if tr.Scope != "" {
			form.Set("scope", tr.Scope)
		}
	}
	return form
}
