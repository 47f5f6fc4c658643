// Package jobs ticks the two maintenance sweeps: horizon plan generation and
// reservation archival. Both are idempotent, so the runner can fire them on
// any cadence; production deployments may also invoke them through the
// horizon/archive CLI commands from external cron.
package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/tablebook/internal/domain/booking"
	"github.com/example/tablebook/internal/lifecycle"
	"github.com/example/tablebook/internal/plans"
)

type Runner struct {
	Plans       *plans.Generator
	Lifecycle   *lifecycle.Manager
	Clock       booking.Clock
	Log         zerolog.Logger
	Interval    time.Duration
	HorizonDays int
}

func (r *Runner) Run(ctx context.Context) error {
	t := time.NewTicker(r.Interval)
	defer t.Stop()

	// kick immediately
	r.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	if err := r.Plans.GenerateHorizonAll(ctx, r.HorizonDays); err != nil {
		r.Log.Error().Err(err).Msg("horizon sweep finished with failures")
	}
	if _, err := r.Lifecycle.ArchiveElapsed(ctx, r.Clock.Now().UTC()); err != nil {
		r.Log.Error().Err(err).Msg("archival sweep finished with failures")
	}
}
