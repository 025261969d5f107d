package users

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	apperrors "github.com/jrsteele09/go-azure-oauth2-client/internal/errors"
	"github.com/jrsteele09/go-azure-oauth2-client/oauth2"
)

// Upsert merges a provider payload into the user it identifies, creating the user bound
// to clientID when none exists. The result is not persisted; call Repo.Save.
func Upsert(ctx context.Context, finder ObjectIDFinder, payload oauth2.Payload, clientID int64, now time.Time) (*User, error) {
	objectID, ok := payload.ObjectID()
	if !ok {
		return nil, fmt.Errorf("%w: payload has no id, oid or objectId", apperrors.ErrValidation)
	}

	user, err := finder.FindByObjectID(ctx, objectID)
	switch {
	case err == nil:
	case apperrors.Is(err, apperrors.ErrNotFound):
		user = &User{ClientID: clientID, ObjectID: objectID, CreateTime: now}
	default:
		return nil, errors.Wrap(err, "[users.Upsert] FindByObjectID")
	}

	user.ApplyProfile(payload)
	user.ApplyTokens(payload, now)
	user.RawData = payload.Clone()
	user.UpdateTime = now
	return user, nil
}
