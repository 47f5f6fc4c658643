// Package events publishes reservation lifecycle events for downstream
// consumers (notification senders, analytics). Delivery is best-effort: a
// failed publish is logged by the caller and never fails the booking.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/example/tablebook/internal/domain/booking"
)

const (
	TypeReservationCreated   = "reservation.created"
	TypeReservationConfirmed = "reservation.confirmed"
	TypeReservationCanceled  = "reservation.canceled"
	TypeReservationArchived  = "reservation.archived"
)

type ReservationEvent struct {
	Type         string    `json:"type"`
	OccurredAt   time.Time `json:"occurred_at"`
	ID           uuid.UUID `json:"reservation_id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
	TableID      uuid.UUID `json:"table_id"`
	UserID       uuid.UUID `json:"user_id"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	PartySize    int       `json:"party_size"`
	Status       string    `json:"status"`
}

// FromReservation builds the event payload for a status change.
func FromReservation(eventType string, r booking.Reservation, at time.Time) ReservationEvent {
	return ReservationEvent{
		Type:         eventType,
		OccurredAt:   at,
		ID:           r.ID,
		RestaurantID: r.RestaurantID,
		TableID:      r.TableID,
		UserID:       r.UserID,
		Start:        r.Start,
		End:          r.End,
		PartySize:    r.PartySize,
		Status:       string(r.Status),
	}
}

type Publisher interface {
	PublishReservation(ctx context.Context, ev ReservationEvent) error
	Close() error
}

// Nop drops every event; used when no broker is configured.
type Nop struct{}

func (Nop) PublishReservation(context.Context, ReservationEvent) error { return nil }
func (Nop) Close() error                                               { return nil }
