// Package postgres implements store.Store on PostgreSQL via pgx. Writer
// exclusion per (restaurant, date, table) comes from row locks on plan_tables
// taken with FOR UPDATE NOWAIT.
package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/example/tablebook/internal/db"
	"github.com/example/tablebook/internal/domain/booking"
)

type Store struct {
	db *db.DB
}

func NewStore(d *db.DB) *Store { return &Store{db: d} }

func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if db.IsNotFound(err) {
		return booking.ErrNotFound
	}
	return err
}

func (s *Store) GetRestaurant(ctx context.Context, id uuid.UUID) (booking.Restaurant, error) {
	var r booking.Restaurant
	err := s.db.QueryRow(ctx, `
SELECT id, name, timezone, service_minutes, granularity_minutes, active, created_at
FROM restaurants
WHERE id=$1`, id).
		Scan(&r.ID, &r.Name, &r.Timezone, &r.ServiceMinutes, &r.GranularityMinutes, &r.Active, &r.CreatedAt)
	if err != nil {
		return booking.Restaurant{}, wrapErr(err)
	}
	return r, nil
}

func (s *Store) ListActiveRestaurants(ctx context.Context) ([]booking.Restaurant, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, name, timezone, service_minutes, granularity_minutes, active, created_at
FROM restaurants
WHERE active
ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []booking.Restaurant
	for rows.Next() {
		var r booking.Restaurant
		if err := rows.Scan(&r.ID, &r.Name, &r.Timezone, &r.ServiceMinutes, &r.GranularityMinutes, &r.Active, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ListActiveTables(ctx context.Context, restaurantID uuid.UUID) ([]booking.Table, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, restaurant_id, number, capacity, shape, status, created_at
FROM tables
WHERE restaurant_id=$1 AND status <> 'archived'
ORDER BY number ASC`, restaurantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []booking.Table
	for rows.Next() {
		var t booking.Table
		if err := rows.Scan(&t.ID, &t.RestaurantID, &t.Number, &t.Capacity, &t.Shape, &t.Status, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) GetOpeningHours(ctx context.Context, restaurantID uuid.UUID, weekday time.Weekday) (booking.OpeningHours, error) {
	var h booking.OpeningHours
	var wd int
	var windows string
	err := s.db.QueryRow(ctx, `
SELECT id, restaurant_id, weekday, closed, windows
FROM opening_hours
WHERE restaurant_id=$1 AND weekday=$2`, restaurantID, int(weekday)).
		Scan(&h.ID, &h.RestaurantID, &wd, &h.Closed, &windows)
	if err != nil {
		return booking.OpeningHours{}, wrapErr(err)
	}
	h.Weekday = time.Weekday(wd)
	h.Windows, err = booking.ParseWindows(windows)
	if err != nil {
		return booking.OpeningHours{}, err
	}
	return h, nil
}
