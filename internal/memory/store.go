// Package memory is the in-process store.Store implementation, used by tests
// and by dev mode.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/tablebook/internal/domain/booking"
)

type Store struct {
	mu           sync.RWMutex
	restaurants  map[uuid.UUID]booking.Restaurant
	tables       map[uuid.UUID][]booking.Table
	hours        map[string]booking.OpeningHours
	plans        map[string]*booking.TablePlan
	reservations map[uuid.UUID]*booking.Reservation

	// entryLocks serializes writers per (restaurant, date, table) with a
	// bounded wait, mirroring the row-lock discipline of the postgres store.
	lockMu     sync.Mutex
	entryLocks map[string]chan struct{}
	lockWait   time.Duration
}

func NewStore(lockWait time.Duration) *Store {
	if lockWait <= 0 {
		lockWait = 2 * time.Second
	}
	return &Store{
		restaurants:  make(map[uuid.UUID]booking.Restaurant),
		tables:       make(map[uuid.UUID][]booking.Table),
		hours:        make(map[string]booking.OpeningHours),
		plans:        make(map[string]*booking.TablePlan),
		reservations: make(map[uuid.UUID]*booking.Reservation),
		entryLocks:   make(map[string]chan struct{}),
		lockWait:     lockWait,
	}
}

func hoursKey(restaurantID uuid.UUID, wd time.Weekday) string {
	return fmt.Sprintf("%s|%d", restaurantID, wd)
}

func planKey(restaurantID uuid.UUID, date time.Time) string {
	return fmt.Sprintf("%s|%s", restaurantID, date.Format("2006-01-02"))
}

func entryKey(restaurantID uuid.UUID, date time.Time, tableID uuid.UUID) string {
	return fmt.Sprintf("%s|%s|%s", restaurantID, date.Format("2006-01-02"), tableID)
}

// Seed mutators. Restaurant/table/opening-hours records are owned by the
// external administration surface; these stand in for it.

func (s *Store) PutRestaurant(r booking.Restaurant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restaurants[r.ID] = r
}

func (s *Store) PutTable(t booking.Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.tables[t.RestaurantID]
	for i := range list {
		if list[i].ID == t.ID {
			list[i] = t
			return
		}
	}
	s.tables[t.RestaurantID] = append(list, t)
}

func (s *Store) PutOpeningHours(h booking.OpeningHours) error {
	if err := h.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hours[hoursKey(h.RestaurantID, h.Weekday)] = h
	return nil
}

func (s *Store) GetRestaurant(ctx context.Context, id uuid.UUID) (booking.Restaurant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.restaurants[id]
	if !ok {
		return booking.Restaurant{}, booking.ErrNotFound
	}
	return r, nil
}

func (s *Store) ListActiveRestaurants(ctx context.Context) ([]booking.Restaurant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []booking.Restaurant
	for _, r := range s.restaurants {
		if r.Active {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) ListActiveTables(ctx context.Context, restaurantID uuid.UUID) ([]booking.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []booking.Table
	for _, t := range s.tables[restaurantID] {
		if t.Status != booking.TableArchived {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (s *Store) GetOpeningHours(ctx context.Context, restaurantID uuid.UUID, weekday time.Weekday) (booking.OpeningHours, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hours[hoursKey(restaurantID, weekday)]
	if !ok {
		return booking.OpeningHours{}, booking.ErrNotFound
	}
	return h, nil
}

func copyPlan(p *booking.TablePlan) booking.TablePlan {
	out := *p
	out.Entries = make([]booking.PlanEntry, len(p.Entries))
	for i, e := range p.Entries {
		out.Entries[i] = e
		out.Entries[i].Intervals = append([]booking.ReservationInterval(nil), e.Intervals...)
	}
	return out
}

func (s *Store) GetPlan(ctx context.Context, restaurantID uuid.UUID, date time.Time) (booking.TablePlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plans[planKey(restaurantID, date)]
	if !ok {
		return booking.TablePlan{}, booking.ErrNotFound
	}
	return copyPlan(p), nil
}

func (s *Store) CreatePlan(ctx context.Context, plan booking.TablePlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := planKey(plan.RestaurantID, plan.Date)
	if _, ok := s.plans[key]; ok {
		return booking.ErrAlreadyExists
	}
	cp := copyPlan(&plan)
	s.plans[key] = &cp
	return nil
}

// acquireEntry takes the per-(restaurant, date, table) lock with a bounded
// wait. Callers must invoke the returned release func.
func (s *Store) acquireEntry(ctx context.Context, key string) (func(), error) {
	s.lockMu.Lock()
	ch, ok := s.entryLocks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.entryLocks[key] = ch
	}
	s.lockMu.Unlock()

	timer := time.NewTimer(s.lockWait)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-timer.C:
		return nil, booking.ErrConflictRetry
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Store) CommitAssignment(ctx context.Context, rsv booking.Reservation) error {
	release, err := s.acquireEntry(ctx, entryKey(rsv.RestaurantID, rsv.Date, rsv.TableID))
	if err != nil {
		return err
	}
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.plans[planKey(rsv.RestaurantID, rsv.Date)]
	if !ok {
		return fmt.Errorf("table plan: %w", booking.ErrNotFound)
	}
	var entry *booking.PlanEntry
	for i := range p.Entries {
		if p.Entries[i].TableID == rsv.TableID {
			entry = &p.Entries[i]
			break
		}
	}
	if entry == nil {
		return fmt.Errorf("plan entry for table %s: %w", rsv.TableID, booking.ErrNotFound)
	}
	if entry.HasConflict(booking.Interval{Start: rsv.Start, End: rsv.End}) {
		return booking.ErrConflictRetry
	}

	entry.Intervals = append(entry.Intervals, booking.ReservationInterval{
		ReservationID: rsv.ID,
		Start:         rsv.Start,
		End:           rsv.End,
		Status:        rsv.Status,
	})
	entry.Status = booking.EntryReserved
	cp := rsv
	s.reservations[rsv.ID] = &cp
	return nil
}

func (s *Store) GetReservation(ctx context.Context, id uuid.UUID) (booking.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reservations[id]
	if !ok {
		return booking.Reservation{}, booking.ErrNotFound
	}
	return *r, nil
}

// setIntervalStatus keeps the plan ledger's status snapshot in sync with the
// reservation record.
func (s *Store) setIntervalStatus(rsv *booking.Reservation, status booking.ReservationStatus) {
	p, ok := s.plans[planKey(rsv.RestaurantID, rsv.Date)]
	if !ok {
		return
	}
	for i := range p.Entries {
		e := &p.Entries[i]
		if e.TableID != rsv.TableID {
			continue
		}
		for j := range e.Intervals {
			if e.Intervals[j].ReservationID == rsv.ID {
				e.Intervals[j].Status = status
			}
		}
	}
}

func (s *Store) ConfirmReservation(ctx context.Context, id uuid.UUID) (booking.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return booking.Reservation{}, booking.ErrNotFound
	}
	switch r.Status {
	case booking.StatusConfirmed:
		return *r, nil
	case booking.StatusWaiting:
	default:
		return booking.Reservation{}, booking.ErrAlreadyFinalized
	}
	r.Status = booking.StatusConfirmed
	r.UpdatedAt = time.Now()
	s.setIntervalStatus(r, booking.StatusConfirmed)
	return *r, nil
}

func (s *Store) CancelReservation(ctx context.Context, id uuid.UUID) (booking.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return booking.Reservation{}, booking.ErrNotFound
	}
	if !r.Status.Active() {
		return booking.Reservation{}, booking.ErrAlreadyFinalized
	}
	r.Status = booking.StatusCanceled
	r.UpdatedAt = time.Now()

	// Release the hold: canceled intervals leave the ledger entirely.
	if p, ok := s.plans[planKey(r.RestaurantID, r.Date)]; ok {
		for i := range p.Entries {
			e := &p.Entries[i]
			if e.TableID != r.TableID {
				continue
			}
			kept := e.Intervals[:0]
			for _, iv := range e.Intervals {
				if iv.ReservationID != r.ID {
					kept = append(kept, iv)
				}
			}
			e.Intervals = kept
			if !entryHasActive(e) {
				e.Status = booking.EntryAvailable
			}
		}
	}
	return *r, nil
}

func entryHasActive(e *booking.PlanEntry) bool {
	for _, iv := range e.Intervals {
		if iv.Status.Active() {
			return true
		}
	}
	return false
}

func (s *Store) ListElapsed(ctx context.Context, statuses []booking.ReservationStatus, now time.Time) ([]booking.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	match := make(map[booking.ReservationStatus]bool, len(statuses))
	for _, st := range statuses {
		match[st] = true
	}
	var out []booking.Reservation
	for _, r := range s.reservations {
		if match[r.Status] && r.End.Before(now) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].End.Before(out[j].End) })
	return out, nil
}

func (s *Store) ArchiveReservation(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return booking.ErrNotFound
	}
	switch r.Status {
	case booking.StatusArchived:
		return nil
	case booking.StatusCanceled:
		return booking.ErrAlreadyFinalized
	}
	r.Status = booking.StatusArchived
	r.UpdatedAt = time.Now()
	// Historical occupancy stays in the plan; only the status flips.
	s.setIntervalStatus(r, booking.StatusArchived)
	return nil
}
