package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/tablebook/internal/domain/booking"
)

const reservationCols = `id, restaurant_id, table_id, user_id, plan_date, start_at, end_at, party_size, details, status, created_at, updated_at`

func scanReservation(row interface{ Scan(...any) error }) (booking.Reservation, error) {
	var r booking.Reservation
	err := row.Scan(&r.ID, &r.RestaurantID, &r.TableID, &r.UserID, &r.Date,
		&r.Start, &r.End, &r.PartySize, &r.Details, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return booking.Reservation{}, wrapErr(err)
	}
	return r, nil
}

func (s *Store) GetReservation(ctx context.Context, id uuid.UUID) (booking.Reservation, error) {
	return scanReservation(s.db.QueryRow(ctx,
		`SELECT `+reservationCols+` FROM reservations WHERE id=$1`, id))
}

func (s *Store) ConfirmReservation(ctx context.Context, id uuid.UUID) (booking.Reservation, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return booking.Reservation{}, fmt.Errorf("%w: %v", booking.ErrDependencyUnavailable, err)
	}
	defer tx.Rollback(ctx)

	r, err := scanReservation(tx.QueryRow(ctx,
		`SELECT `+reservationCols+` FROM reservations WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return booking.Reservation{}, err
	}
	switch r.Status {
	case booking.StatusConfirmed:
		return r, tx.Commit(ctx)
	case booking.StatusWaiting:
	default:
		return booking.Reservation{}, booking.ErrAlreadyFinalized
	}

	if _, err := tx.Exec(ctx,
		`UPDATE reservations SET status='confirmed', updated_at=now() WHERE id=$1`, id); err != nil {
		return booking.Reservation{}, err
	}
	r.Status = booking.StatusConfirmed
	return r, tx.Commit(ctx)
}

func (s *Store) CancelReservation(ctx context.Context, id uuid.UUID) (booking.Reservation, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return booking.Reservation{}, fmt.Errorf("%w: %v", booking.ErrDependencyUnavailable, err)
	}
	defer tx.Rollback(ctx)

	r, err := scanReservation(tx.QueryRow(ctx,
		`SELECT `+reservationCols+` FROM reservations WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return booking.Reservation{}, err
	}
	if !r.Status.Active() {
		return booking.Reservation{}, booking.ErrAlreadyFinalized
	}

	if _, err := tx.Exec(ctx,
		`UPDATE reservations SET status='canceled', updated_at=now() WHERE id=$1`, id); err != nil {
		return booking.Reservation{}, err
	}

	// Release the hold and drop the entry back to available when nothing
	// active remains on it.
	var entryID uuid.UUID
	released := true
	err = tx.QueryRow(ctx,
		`DELETE FROM plan_intervals WHERE reservation_id=$1 RETURNING plan_table_id`, id).Scan(&entryID)
	if err != nil {
		if !isNoRows(err) {
			return booking.Reservation{}, err
		}
		released = false
	}
	if released {
		var stillHeld bool
		err = tx.QueryRow(ctx, `
SELECT EXISTS(
	SELECT 1
	FROM plan_intervals pi
	JOIN reservations res ON res.id = pi.reservation_id
	WHERE pi.plan_table_id=$1 AND res.status IN ('waiting','confirmed')
)`, entryID).Scan(&stillHeld)
		if err != nil {
			return booking.Reservation{}, err
		}
		if !stillHeld {
			if _, err := tx.Exec(ctx,
				`UPDATE plan_tables SET status='available' WHERE id=$1`, entryID); err != nil {
				return booking.Reservation{}, err
			}
		}
	}

	r.Status = booking.StatusCanceled
	return r, tx.Commit(ctx)
}

func isNoRows(err error) bool {
	return errors.Is(wrapErr(err), booking.ErrNotFound)
}

func (s *Store) ListElapsed(ctx context.Context, statuses []booking.ReservationStatus, now time.Time) ([]booking.Reservation, error) {
	set := make([]string, len(statuses))
	for i, st := range statuses {
		set[i] = string(st)
	}
	rows, err := s.db.Query(ctx, `
SELECT `+reservationCols+`
FROM reservations
WHERE status = ANY($1) AND end_at < $2
ORDER BY end_at ASC`, set, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []booking.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ArchiveReservation(ctx context.Context, id uuid.UUID) error {
	var updated uuid.UUID
	err := s.db.QueryRow(ctx, `
UPDATE reservations SET status='archived', updated_at=now()
WHERE id=$1 AND status IN ('waiting','confirmed')
RETURNING id`, id).Scan(&updated)
	if err == nil {
		return nil
	}
	if !isNoRows(err) {
		return err
	}

	// Nothing transitioned: distinguish re-run no-ops from real failures.
	var status booking.ReservationStatus
	if err := s.db.QueryRow(ctx, `SELECT status FROM reservations WHERE id=$1`, id).Scan(&status); err != nil {
		return wrapErr(err)
	}
	if status == booking.StatusArchived {
		return nil
	}
	return booking.ErrAlreadyFinalized
}
