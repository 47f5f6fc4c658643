// Package scheduler assigns reservation requests to tables without
// double-booking and drives the confirm/cancel transitions.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/tablebook/internal/domain/booking"
	"github.com/example/tablebook/internal/events"
	"github.com/example/tablebook/internal/plans"
	"github.com/example/tablebook/internal/store"
)

// maxCommitAttempts bounds re-evaluation after a concurrent writer wins the
// per-table exclusion. Each attempt re-reads the plan, so availability is
// re-judged on fresh state.
const maxCommitAttempts = 3

// Request is one incoming booking. Day names the calendar day and Minute the
// requested start as minutes from midnight, both interpreted in the
// restaurant's timezone.
type Request struct {
	RestaurantID     uuid.UUID
	Day              time.Time
	Minute           int
	PartySize        int
	Details          string
	UserID           uuid.UUID
	PreferredTableID *uuid.UUID
}

type Scheduler struct {
	Store store.Store
	Plans *plans.Generator
	Clock booking.Clock
	Pub   events.Publisher
	Log   zerolog.Logger

	// Defaults applied when the restaurant carries no override.
	ServiceMinutes     int
	GranularityMinutes int
}

func (s *Scheduler) serviceMinutes(rest booking.Restaurant) int {
	if rest.ServiceMinutes > 0 {
		return rest.ServiceMinutes
	}
	return s.ServiceMinutes
}

func (s *Scheduler) granularityMinutes(rest booking.Restaurant) int {
	if rest.GranularityMinutes > 0 {
		return rest.GranularityMinutes
	}
	return s.GranularityMinutes
}

// Schedule validates the request, picks a conflict-free table and commits the
// assignment atomically. On success the reservation is in status waiting.
func (s *Scheduler) Schedule(ctx context.Context, req Request) (booking.Reservation, error) {
	rest, err := s.Store.GetRestaurant(ctx, req.RestaurantID)
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			return booking.Reservation{}, fmt.Errorf("%w: unknown restaurant %s", booking.ErrValidation, req.RestaurantID)
		}
		return booking.Reservation{}, err
	}
	loc := rest.Location()
	serviceMin := s.serviceMinutes(rest)

	day := booking.LocalDate(req.Day, loc)
	start := day.Add(time.Duration(req.Minute) * time.Minute)
	end := start.Add(time.Duration(serviceMin) * time.Minute)

	if req.PartySize < 1 {
		return booking.Reservation{}, fmt.Errorf("%w: party size must be at least 1", booking.ErrValidation)
	}
	if req.Minute < 0 || req.Minute >= 24*60 {
		return booking.Reservation{}, fmt.Errorf("%w: time of day out of range", booking.ErrValidation)
	}
	if start.Before(s.Clock.Now()) {
		return booking.Reservation{}, fmt.Errorf("%w: requested time is in the past", booking.ErrValidation)
	}
	if err := s.checkOpeningHours(ctx, rest, day, req.Minute, serviceMin); err != nil {
		return booking.Reservation{}, err
	}

	iv := booking.Interval{Start: start, End: end}
	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		plan, err := s.Plans.EnsurePlan(ctx, rest.ID, day)
		if err != nil {
			return booking.Reservation{}, err
		}
		candidates, err := selectCandidates(plan, req)
		if err != nil {
			return booking.Reservation{}, err
		}

		conflicted := false
		for _, c := range candidates {
			if c.HasConflict(iv) {
				continue
			}
			now := s.Clock.Now()
			rsv := booking.Reservation{
				ID:           uuid.New(),
				RestaurantID: rest.ID,
				TableID:      c.TableID,
				UserID:       req.UserID,
				Date:         day,
				Start:        start,
				End:          end,
				PartySize:    req.PartySize,
				Details:      req.Details,
				Status:       booking.StatusWaiting,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			err := s.Store.CommitAssignment(ctx, rsv)
			if errors.Is(err, booking.ErrConflictRetry) {
				conflicted = true
				break
			}
			if err != nil {
				return booking.Reservation{}, err
			}
			s.publish(ctx, events.TypeReservationCreated, rsv)
			s.Log.Info().
				Str("reservation_id", rsv.ID.String()).
				Str("restaurant_id", rest.ID.String()).
				Int("table", c.Number).
				Time("start", start).
				Msg("reservation scheduled")
			return rsv, nil
		}
		if !conflicted {
			return booking.Reservation{}, booking.ErrNoAvailability
		}
	}
	return booking.Reservation{}, booking.ErrConflictRetry
}

// checkOpeningHours rejects requests outside the day's open windows. A
// missing opening-hours record means the restaurant is closed that weekday.
func (s *Scheduler) checkOpeningHours(ctx context.Context, rest booking.Restaurant, day time.Time, minute, serviceMin int) error {
	hours, err := s.Store.GetOpeningHours(ctx, rest.ID, day.Weekday())
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			return fmt.Errorf("%w: restaurant is closed on %s", booking.ErrValidation, day.Weekday())
		}
		return err
	}
	if hours.Closed {
		return fmt.Errorf("%w: restaurant is closed on %s", booking.ErrValidation, day.Weekday())
	}
	for _, w := range hours.Windows {
		if minute >= w.Start && minute+serviceMin <= w.End {
			return nil
		}
	}
	return fmt.Errorf("%w: requested time is outside opening hours", booking.ErrValidation)
}

// selectCandidates orders the plan's entries: a preferred table alone, or
// every entry with sufficient capacity, smallest table first, ties broken by
// ascending table number.
func selectCandidates(plan booking.TablePlan, req Request) ([]booking.PlanEntry, error) {
	if req.PreferredTableID != nil {
		entry, ok := plan.Entry(*req.PreferredTableID)
		if !ok {
			return nil, fmt.Errorf("%w: table %s is not in the plan", booking.ErrValidation, *req.PreferredTableID)
		}
		if entry.Capacity < req.PartySize {
			return nil, fmt.Errorf("%w: table %d seats %d, party is %d",
				booking.ErrValidation, entry.Number, entry.Capacity, req.PartySize)
		}
		return []booking.PlanEntry{entry}, nil
	}

	var out []booking.PlanEntry
	for _, e := range plan.Entries {
		if e.Capacity >= req.PartySize {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Capacity != out[j].Capacity {
			return out[i].Capacity < out[j].Capacity
		}
		return out[i].Number < out[j].Number
	})
	return out, nil
}

// Confirm moves a waiting reservation to confirmed.
func (s *Scheduler) Confirm(ctx context.Context, id uuid.UUID) (booking.Reservation, error) {
	rsv, err := s.Store.ConfirmReservation(ctx, id)
	if err != nil {
		return booking.Reservation{}, err
	}
	s.publish(ctx, events.TypeReservationConfirmed, rsv)
	return rsv, nil
}

// Cancel releases the table hold and marks the reservation canceled.
func (s *Scheduler) Cancel(ctx context.Context, id uuid.UUID) (booking.Reservation, error) {
	rsv, err := s.Store.CancelReservation(ctx, id)
	if err != nil {
		return booking.Reservation{}, err
	}
	s.publish(ctx, events.TypeReservationCanceled, rsv)
	return rsv, nil
}

// Slots returns the bookable start times for the date, derived purely from
// opening hours. Availability is not consulted here.
func (s *Scheduler) Slots(ctx context.Context, restaurantID uuid.UUID, date time.Time) ([]time.Time, error) {
	rest, err := s.Store.GetRestaurant(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	day := booking.LocalDate(date, rest.Location())
	hours, err := s.Store.GetOpeningHours(ctx, restaurantID, day.Weekday())
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return booking.GenerateSlots(hours, day, s.serviceMinutes(rest), s.granularityMinutes(rest)), nil
}

// Plan returns the occupancy ledger for the date, creating it on demand when
// the request falls outside the pre-generated horizon.
func (s *Scheduler) Plan(ctx context.Context, restaurantID uuid.UUID, date time.Time) (booking.TablePlan, error) {
	rest, err := s.Store.GetRestaurant(ctx, restaurantID)
	if err != nil {
		return booking.TablePlan{}, err
	}
	return s.Plans.EnsurePlan(ctx, restaurantID, booking.LocalDate(date, rest.Location()))
}

// Reservation looks up a single reservation.
func (s *Scheduler) Reservation(ctx context.Context, id uuid.UUID) (booking.Reservation, error) {
	return s.Store.GetReservation(ctx, id)
}

func (s *Scheduler) publish(ctx context.Context, eventType string, rsv booking.Reservation) {
	if s.Pub == nil {
		return
	}
	ev := events.FromReservation(eventType, rsv, s.Clock.Now())
	if err := s.Pub.PublishReservation(ctx, ev); err != nil {
		s.Log.Warn().Err(err).Str("event", eventType).Str("reservation_id", rsv.ID.String()).
			Msg("event publish failed")
	}
}
