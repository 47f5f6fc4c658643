// Package lifecycle archives reservations whose service window has elapsed.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/tablebook/internal/domain/booking"
	"github.com/example/tablebook/internal/events"
	"github.com/example/tablebook/internal/store"
)

type Manager struct {
	Reservations store.Reservations
	Pub          events.Publisher
	Log          zerolog.Logger

	// ArchiveWaiting also sweeps waiting reservations whose time has passed
	// (no-show handling). Off by default.
	ArchiveWaiting bool
}

func (m *Manager) statuses() []booking.ReservationStatus {
	out := []booking.ReservationStatus{booking.StatusConfirmed}
	if m.ArchiveWaiting {
		out = append(out, booking.StatusWaiting)
	}
	return out
}

// ArchiveElapsed transitions every swept reservation whose service end is
// strictly before now to archived. Transitions are independent: one failure
// is logged and the sweep continues, and re-runs skip already-archived
// records. Returns how many reservations were archived.
func (m *Manager) ArchiveElapsed(ctx context.Context, now time.Time) (int, error) {
	elapsed, err := m.Reservations.ListElapsed(ctx, m.statuses(), now)
	if err != nil {
		return 0, fmt.Errorf("%w: list elapsed: %v", booking.ErrDependencyUnavailable, err)
	}

	var archived, failed int
	for _, rsv := range elapsed {
		if err := m.Reservations.ArchiveReservation(ctx, rsv.ID); err != nil {
			failed++
			m.Log.Error().Err(err).Str("reservation_id", rsv.ID.String()).Msg("archive failed")
			continue
		}
		archived++
		rsv.Status = booking.StatusArchived
		if m.Pub != nil {
			ev := events.FromReservation(events.TypeReservationArchived, rsv, now)
			if err := m.Pub.PublishReservation(ctx, ev); err != nil {
				m.Log.Warn().Err(err).Str("reservation_id", rsv.ID.String()).Msg("event publish failed")
			}
		}
	}
	m.Log.Info().Int("archived", archived).Int("failed", failed).Msg("archival sweep done")
	if failed > 0 {
		return archived, fmt.Errorf("archival sweep: %d of %d transitions failed", failed, len(elapsed))
	}
	return archived, nil
}
