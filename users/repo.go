package users

import (
	"context"
	"time"
)

// ObjectIDFinder is the lookup Upsert needs.
type ObjectIDFinder interface {
	FindByObjectID(ctx context.Context, objectID string) (*User, error)
}

// Repo stores users. Lookups that match nothing return an error wrapping errors.ErrNotFound.
type Repo interface {
	ObjectIDFinder
	FindByUserPrincipalName(ctx context.Context, upn string) (*User, error)
	FindByMail(ctx context.Context, mail string) (*User, error)

	// FindExpiredTokenUsers returns users whose token expired before now and who hold a
	// refresh token.
	FindExpiredTokenUsers(ctx context.Context, now time.Time) ([]*User, error)

	// Save inserts a user with a zero ID and updates it otherwise.
	Save(ctx context.Context, user *User) error
}
