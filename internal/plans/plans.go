// Package plans builds and maintains per-date table plans over a rolling
// horizon.
package plans

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/tablebook/internal/domain/booking"
	"github.com/example/tablebook/internal/store"
)

type Generator struct {
	Restaurants store.Restaurants
	Tables      store.Tables
	Plans       store.Plans
	Clock       booking.Clock
	Log         zerolog.Logger
}

// EnsurePlan returns the table plan for (restaurant, date), creating it from
// the current table set if it does not exist yet. Existing plans are returned
// unchanged, so regeneration never loses occupancy data.
func (g *Generator) EnsurePlan(ctx context.Context, restaurantID uuid.UUID, date time.Time) (booking.TablePlan, error) {
	rest, err := g.Restaurants.GetRestaurant(ctx, restaurantID)
	if err != nil {
		return booking.TablePlan{}, fmt.Errorf("restaurant %s: %w", restaurantID, err)
	}
	day := booking.NormalizeDate(date, rest.Location())

	plan, err := g.Plans.GetPlan(ctx, restaurantID, day)
	if err == nil {
		return plan, nil
	}
	if !errors.Is(err, booking.ErrNotFound) {
		return booking.TablePlan{}, err
	}

	tables, err := g.Tables.ListActiveTables(ctx, restaurantID)
	if err != nil {
		return booking.TablePlan{}, err
	}

	plan = booking.TablePlan{
		ID:           uuid.New(),
		RestaurantID: restaurantID,
		Date:         day,
	}
	for _, t := range tables {
		plan.Entries = append(plan.Entries, booking.PlanEntry{
			ID:       uuid.New(),
			TableID:  t.ID,
			Number:   t.Number,
			Capacity: t.Capacity,
			Shape:    t.Shape,
			Status:   booking.EntryAvailable,
		})
	}

	if err := g.Plans.CreatePlan(ctx, plan); err != nil {
		// Lost the creation race: someone else's plan is the plan.
		if errors.Is(err, booking.ErrAlreadyExists) {
			return g.Plans.GetPlan(ctx, restaurantID, day)
		}
		return booking.TablePlan{}, err
	}
	g.Log.Debug().
		Str("restaurant_id", restaurantID.String()).
		Str("date", day.Format("2006-01-02")).
		Int("tables", len(plan.Entries)).
		Msg("table plan created")
	return plan, nil
}

// GenerateHorizon ensures plans for [today, today+horizonDays). Failures are
// isolated per date; the sweep always visits every date and reports how many
// failed.
func (g *Generator) GenerateHorizon(ctx context.Context, restaurantID uuid.UUID, horizonDays int) error {
	now := g.Clock.Now()
	var failed int
	for i := 0; i < horizonDays; i++ {
		date := now.AddDate(0, 0, i)
		if _, err := g.EnsurePlan(ctx, restaurantID, date); err != nil {
			failed++
			g.Log.Error().Err(err).
				Str("restaurant_id", restaurantID.String()).
				Str("date", date.Format("2006-01-02")).
				Msg("horizon: plan generation failed")
		}
	}
	if failed > 0 {
		return fmt.Errorf("horizon for %s: %d of %d days failed", restaurantID, failed, horizonDays)
	}
	return nil
}

// GenerateHorizonAll runs the horizon sweep for every active restaurant. A
// restaurant's failure never aborts the others; the next daily run retries
// missing dates through EnsurePlan.
func (g *Generator) GenerateHorizonAll(ctx context.Context, horizonDays int) error {
	restaurants, err := g.Restaurants.ListActiveRestaurants(ctx)
	if err != nil {
		return fmt.Errorf("%w: list restaurants: %v", booking.ErrDependencyUnavailable, err)
	}
	var failed int
	for _, rest := range restaurants {
		if err := g.GenerateHorizon(ctx, rest.ID, horizonDays); err != nil {
			failed++
		}
	}
	g.Log.Info().
		Int("restaurants", len(restaurants)).
		Int("failed", failed).
		Int("horizon_days", horizonDays).
		Msg("horizon sweep done")
	if failed > 0 {
		return fmt.Errorf("horizon sweep: %d of %d restaurants had failures", failed, len(restaurants))
	}
	return nil
}
