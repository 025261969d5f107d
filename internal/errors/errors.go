package errors

import (
	"errors"
	"fmt"
)

// Error categories surfaced by the OAuth2 client
var (
	// ErrConfiguration means no usable client registration could be found.
	ErrConfiguration = errors.New("configuration error")

	// State errors
	ErrInvalidState = errors.New("Invalid or expired state")

	// User errors
	ErrUserNotFound = errors.New("user not found")

	// ErrAPI covers malformed provider responses, provider error payloads and transport failures.
	ErrAPI = errors.New("oauth2 api error")

	// ErrValidation is returned for payloads or requests missing required fields.
	ErrValidation = errors.New("validation error")

	// Storage errors
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate record")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
