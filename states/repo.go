package states

import (
	"context"
	"time"
)

// Repo stores authorization states.
type Repo interface {
	// Create assigns the state an ID and persists it. A duplicate token is an error.
	Create(ctx context.Context, state *State) error

	// FindValid returns the unused, unexpired state for token. Missing, used and expired
	// states all produce the same not-found error.
	FindValid(ctx context.Context, token string, now time.Time) (*State, error)

	// MarkUsed consumes the state in a single conditional write. It reports true only
	// to the one caller that flipped an unused, unexpired state to used.
	MarkUsed(ctx context.Context, token string, now time.Time) (bool, error)

	// CleanupExpired deletes every state that is used or expired before now.
	CleanupExpired(ctx context.Context, now time.Time) (int, error)
}
