// Package store defines the persistence boundary of the booking engine.
// Implementations: postgres (production) and memory (tests, dev mode).
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/example/tablebook/internal/domain/booking"
)

type Restaurants interface {
	GetRestaurant(ctx context.Context, id uuid.UUID) (booking.Restaurant, error)
	ListActiveRestaurants(ctx context.Context) ([]booking.Restaurant, error)
}

type Tables interface {
	// ListActiveTables returns the restaurant's non-archived tables ordered by
	// table number.
	ListActiveTables(ctx context.Context, restaurantID uuid.UUID) ([]booking.Table, error)
}

type OpeningHours interface {
	// GetOpeningHours returns booking.ErrNotFound when no record exists for the
	// weekday; callers treat that as closed.
	GetOpeningHours(ctx context.Context, restaurantID uuid.UUID, weekday time.Weekday) (booking.OpeningHours, error)
}

type Plans interface {
	GetPlan(ctx context.Context, restaurantID uuid.UUID, date time.Time) (booking.TablePlan, error)

	// CreatePlan fails with booking.ErrAlreadyExists when a plan for the
	// (restaurant, date) key is already present.
	CreatePlan(ctx context.Context, plan booking.TablePlan) error

	// CommitAssignment appends rsv's interval to its table's plan entry and
	// persists the reservation, both or neither. The implementation serializes
	// writers per (restaurant, date, table) and re-checks interval overlap
	// under that exclusion; a lost race or a conflict found under the lock
	// surfaces as booking.ErrConflictRetry.
	CommitAssignment(ctx context.Context, rsv booking.Reservation) error
}

type Reservations interface {
	GetReservation(ctx context.Context, id uuid.UUID) (booking.Reservation, error)

	// ConfirmReservation moves waiting to confirmed. Confirming an already
	// confirmed reservation is a no-op; terminal states fail with
	// booking.ErrAlreadyFinalized.
	ConfirmReservation(ctx context.Context, id uuid.UUID) (booking.Reservation, error)

	// CancelReservation moves waiting or confirmed to canceled and releases
	// the table interval in the same atomic step.
	CancelReservation(ctx context.Context, id uuid.UUID) (booking.Reservation, error)

	// ListElapsed returns reservations in any of the given statuses whose
	// service end is strictly before now.
	ListElapsed(ctx context.Context, statuses []booking.ReservationStatus, now time.Time) ([]booking.Reservation, error)

	// ArchiveReservation moves the reservation to archived, leaving its
	// historical plan interval in place. Archiving an archived reservation is
	// a no-op so sweeps can be re-run.
	ArchiveReservation(ctx context.Context, id uuid.UUID) error
}

// Store is the full persistence surface.
type Store interface {
	Restaurants
	Tables
	OpeningHours
	Plans
	Reservations
}
