package oauth2

// ResponseType is the response_type sent to the Azure AD authorize endpoint.
type ResponseType string

const (
	// CodeResponseType requests an authorization code.
	// Used in: Authorization Code Flow (the only flow this client drives)
	// Example: /{tenant}/oauth2/v2.0/authorize?response_type=code&client_id=...
	CodeResponseType ResponseType = "code"
)

// ResponseModeType denotes how Azure AD returns the authorization response to the redirect URI.
type ResponseModeType string

const (
	// QueryResponseMode returns code and state in the callback query string.
	// Example: https://app.example.com/callback?code=ABC123&state=9f1c...
	// The callback handler reads both from r.URL.Query().
	QueryResponseMode ResponseModeType = "query"

	// FormPostResponseMode returns code and state as an auto-submitted POST body.
	// Not requested by this client; listed so callers can recognise the value.
	FormPostResponseMode ResponseModeType = "form_post"
)

// CodeMethodType represents the PKCE (Proof Key for Code Exchange) challenge method.
type CodeMethodType string

const (
	// CodeMethodTypeS256 indicates SHA-256 hashing is used for the code challenge.
	// Caller sends: code_challenge = BASE64URL(SHA256(code_verifier))
	// Azure AD validates: SHA256(code_verifier from token request) == code_challenge
	CodeMethodTypeS256 CodeMethodType = "S256"

	// CodeMethodTypePlain means no hashing: code_challenge == code_verifier.
	CodeMethodTypePlain CodeMethodType = "plain"
)

// Valid reports whether the method is one Azure AD accepts.
func (m CodeMethodType) Valid() bool {
	return m == CodeMethodTypeS256 || m == CodeMethodTypePlain
}

// GrantType represents the grant_type sent to the token endpoint.
type GrantType string

const (
	// AuthorizationCodeGrant exchanges an authorization code for tokens.
	// Form body: client_id, client_secret, code, redirect_uri, code_verifier (if PKCE)
	// Returns: access_token, id_token, refresh_token (with offline_access), expires_in, scope
	AuthorizationCodeGrant GrantType = "authorization_code"

	// RefreshTokenGrant exchanges a refresh token for a new access token.
	// Form body: client_id, client_secret, refresh_token, scope (if the registration sets one)
	// Returns: new access_token and usually a rotated refresh_token
	RefreshTokenGrant GrantType = "refresh_token"
)

// Well-known keys of token endpoint and Graph responses.
const (
	KeyAccessToken      = "access_token"
	KeyRefreshToken     = "refresh_token"
	KeyIDToken          = "id_token"
	KeyScope            = "scope"
	KeyExpiresIn        = "expires_in"
	KeyError            = "error"
	KeyErrorDescription = "error_description"
)
