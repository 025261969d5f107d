package oauthmodel

import (
	"github.com/jrsteele09/go-azure-oauth2-client/internal/utils"
	"github.com/jrsteele09/go-azure-oauth2-client/oauth2"
)

// AuthorizationRequest holds the caller's inputs for building an authorization URL.
// Every field is optional.
type AuthorizationRequest struct {
	// SessionID ties the state to the browser session that started the flow.
	SessionID *string

	// CodeChallenge is the PKCE challenge forwarded to Azure AD as given.
	// Example: "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	CodeChallenge *string

	// CodeChallengeMethod is "S256" or "plain". Omitted from the authorization URL when
	// not given, which Azure AD treats as plain. Ignored without a challenge.
	CodeChallengeMethod *string

	// TenantID selects the registration for a specific directory. Without it the
	// lowest-id valid registration is used.
	TenantID *string
}

// UsesPKCE reports whether a code challenge was supplied.
func (ar *AuthorizationRequest) UsesPKCE() bool {
	return utils.Value(ar.CodeChallenge) != ""
}

// Validate normalises empty PKCE fields to nil and rejects unknown methods.
func (ar *AuthorizationRequest) Validate() error {
	if utils.Value(ar.CodeChallenge) == "" {
		ar.CodeChallenge, ar.CodeChallengeMethod = nil, nil
		return nil
	}
	method := utils.Value(ar.CodeChallengeMethod)
	if method == "" {
		ar.CodeChallengeMethod = nil
		return nil
	}
	if !oauth2.CodeMethodType(method).Valid() {
		return ErrInvalidCodeChallengeMethod
	}
	return nil
}
