package workflow

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/orgbot/internal/telemetry"
)

// RunJanitor deletes expired sessions every interval until ctx is done.
func (o *Orchestrator) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			o.sweep(ctx)
		case <-ctx.Done():
			zerolog.Ctx(ctx).Debug().Msg("Session janitor stopped")
			return
		}
	}
}

func (o *Orchestrator) sweep(ctx context.Context) int {
	count, err := o.sessions.DeleteExpired(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to delete expired sessions")
		return 0
	}
	if count > 0 {
		zerolog.Ctx(ctx).Info().Int("count", count).Msg("Deleted expired sessions")
		telemetry.GetMetrics().ExpiredSessionsDeletedTotal.Add(ctx, int64(count))
	}
	return count
}
