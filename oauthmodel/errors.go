package oauthmodel

import (
	"fmt"

	apperrors "github.com/jrsteele09/go-azure-oauth2-client/internal/errors"
)

var (
	ErrInvalidCodeChallengeMethod = fmt.Errorf("%w: invalid code challenge method", apperrors.ErrValidation)
)
