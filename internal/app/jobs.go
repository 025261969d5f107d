package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// RunJobs runs the scheduled token refresh and state cleanup until ctx is done. A zero
// interval disables its job; with both disabled RunJobs just waits for ctx.
func (a *App) RunJobs(ctx context.Context) error {
	refresh := ticker(a.Config.GetRefreshSchedule())
	defer refresh.stop()
	cleanup := ticker(a.Config.GetCleanupSchedule())
	defer cleanup.stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-refresh.c:
			a.Auth.RefreshExpiredTokens(ctx)
		case <-cleanup.c:
			if _, err := a.Auth.CleanupExpiredStates(ctx); err != nil {
				log.Err(err).Msg("scheduled state cleanup failed")
			}
		}
	}
}

type optionalTicker struct {
	c    <-chan time.Time
	stop func()
}

// ticker returns a ticker whose channel never fires for a non-positive interval.
func ticker(interval time.Duration) optionalTicker {
	if interval <= 0 {
		return optionalTicker{stop: func() {}}
	}
	t := time.NewTicker(interval)
	return optionalTicker{c: t.C, stop: t.Stop}
}
