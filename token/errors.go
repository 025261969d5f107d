package token

import (
	"fmt"

	apperrors "github.com/jrsteele09/go-azure-oauth2-client/internal/errors"
)

// ProviderError is an error payload returned by Azure AD or Graph.
type ProviderError struct {
	Status      int    // HTTP status of the response
	Code        string // "error" field, e.g. invalid_grant
	Description string // "error_description" field
}

func (e *ProviderError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("oauth2 provider error: %s", e.Code)
	}
	return fmt.Sprintf("oauth2 provider error: %s: %s", e.Code, e.Description)
}

// Unwrap classifies every provider error as an API error.
func (e *ProviderError) Unwrap() error {
	return apperrors.ErrAPI
}
