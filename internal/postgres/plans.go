package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/tablebook/internal/db"
	"github.com/example/tablebook/internal/domain/booking"
)

const dateLayout = "2006-01-02"

func (s *Store) GetPlan(ctx context.Context, restaurantID uuid.UUID, date time.Time) (booking.TablePlan, error) {
	var p booking.TablePlan
	err := s.db.QueryRow(ctx, `
SELECT id, restaurant_id, plan_date, created_at
FROM table_plans
WHERE restaurant_id=$1 AND plan_date=$2::date`, restaurantID, date.Format(dateLayout)).
		Scan(&p.ID, &p.RestaurantID, &p.Date, &p.CreatedAt)
	if err != nil {
		return booking.TablePlan{}, wrapErr(err)
	}

	rows, err := s.db.Query(ctx, `
SELECT id, table_id, number, capacity, shape, status
FROM plan_tables
WHERE plan_id=$1
ORDER BY number ASC`, p.ID)
	if err != nil {
		return booking.TablePlan{}, err
	}
	defer rows.Close()

	byEntry := make(map[uuid.UUID]int)
	for rows.Next() {
		var e booking.PlanEntry
		if err := rows.Scan(&e.ID, &e.TableID, &e.Number, &e.Capacity, &e.Shape, &e.Status); err != nil {
			return booking.TablePlan{}, err
		}
		byEntry[e.ID] = len(p.Entries)
		p.Entries = append(p.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return booking.TablePlan{}, err
	}

	ivRows, err := s.db.Query(ctx, `
SELECT pi.plan_table_id, pi.reservation_id, pi.start_at, pi.end_at, r.status
FROM plan_intervals pi
JOIN reservations r ON r.id = pi.reservation_id
JOIN plan_tables pt ON pt.id = pi.plan_table_id
WHERE pt.plan_id=$1
ORDER BY pi.start_at ASC`, p.ID)
	if err != nil {
		return booking.TablePlan{}, err
	}
	defer ivRows.Close()

	for ivRows.Next() {
		var entryID uuid.UUID
		var iv booking.ReservationInterval
		if err := ivRows.Scan(&entryID, &iv.ReservationID, &iv.Start, &iv.End, &iv.Status); err != nil {
			return booking.TablePlan{}, err
		}
		if i, ok := byEntry[entryID]; ok {
			p.Entries[i].Intervals = append(p.Entries[i].Intervals, iv)
		}
	}
	return p, ivRows.Err()
}

func (s *Store) CreatePlan(ctx context.Context, plan booking.TablePlan) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", booking.ErrDependencyUnavailable, err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
INSERT INTO table_plans(id, restaurant_id, plan_date, created_at)
VALUES ($1,$2,$3::date,now())`,
		plan.ID, plan.RestaurantID, plan.Date.Format(dateLayout))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return booking.ErrAlreadyExists
		}
		return err
	}

	for _, e := range plan.Entries {
		if _, err := tx.Exec(ctx, `
INSERT INTO plan_tables(id, plan_id, table_id, number, capacity, shape, status)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			e.ID, plan.ID, e.TableID, e.Number, e.Capacity, e.Shape, e.Status); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// CommitAssignment runs the conflict check and the dual write in a single
// transaction, behind a FOR UPDATE NOWAIT lock on the table's plan entry.
func (s *Store) CommitAssignment(ctx context.Context, rsv booking.Reservation) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", booking.ErrDependencyUnavailable, err)
	}
	defer tx.Rollback(ctx)

	var entryID uuid.UUID
	err = tx.QueryRow(ctx, `
SELECT pt.id
FROM plan_tables pt
JOIN table_plans tp ON tp.id = pt.plan_id
WHERE tp.restaurant_id=$1 AND tp.plan_date=$2::date AND pt.table_id=$3
FOR UPDATE OF pt NOWAIT`,
		rsv.RestaurantID, rsv.Date.Format(dateLayout), rsv.TableID).Scan(&entryID)
	if err != nil {
		if db.IsLockUnavailable(err) {
			return booking.ErrConflictRetry
		}
		return wrapErr(err)
	}

	var conflict bool
	err = tx.QueryRow(ctx, `
SELECT EXISTS(
	SELECT 1
	FROM plan_intervals pi
	JOIN reservations r ON r.id = pi.reservation_id
	WHERE pi.plan_table_id=$1
	  AND r.status IN ('waiting','confirmed')
	  AND pi.start_at < $3 AND $2 < pi.end_at
)`, entryID, rsv.Start, rsv.End).Scan(&conflict)
	if err != nil {
		return err
	}
	if conflict {
		return booking.ErrConflictRetry
	}

	_, err = tx.Exec(ctx, `
INSERT INTO reservations(id, restaurant_id, table_id, user_id, plan_date, start_at, end_at, party_size, details, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5::date,$6,$7,$8,$9,$10,now(),now())`,
		rsv.ID, rsv.RestaurantID, rsv.TableID, rsv.UserID, rsv.Date.Format(dateLayout),
		rsv.Start, rsv.End, rsv.PartySize, rsv.Details, rsv.Status)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
INSERT INTO plan_intervals(id, plan_table_id, reservation_id, start_at, end_at)
VALUES ($1,$2,$3,$4,$5)`,
		uuid.New(), entryID, rsv.ID, rsv.Start, rsv.End)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `UPDATE plan_tables SET status='reserved' WHERE id=$1`, entryID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
