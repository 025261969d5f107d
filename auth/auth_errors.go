package auth

import (
	"fmt"

	apperrors "github.com/jrsteele09/go-azure-oauth2-client/internal/errors"
)

var (
	NoValidConfigErr   = fmt.Errorf("%w: No valid Azure OAuth2 configuration found", apperrors.ErrConfiguration)
	StateConfigGoneErr = fmt.Errorf("%w: state references a missing configuration", apperrors.ErrConfiguration)
	InvalidStateErr    = apperrors.ErrInvalidState
	UserNotFoundErr    = apperrors.ErrUserNotFound
)
