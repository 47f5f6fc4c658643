package booking

import (
	"time"

	"github.com/google/uuid"
)

type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Restaurant is a read-only input owned by restaurant administration.
// ServiceMinutes/GranularityMinutes of zero mean "use the configured default".
type Restaurant struct {
	ID                 uuid.UUID
	Name               string
	Timezone           string
	ServiceMinutes     int
	GranularityMinutes int
	Active             bool
	CreatedAt          time.Time
}

// Location resolves the restaurant's IANA timezone, falling back to UTC.
func (r Restaurant) Location() *time.Location {
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type TableStatus string

const (
	TableAvailable TableStatus = "available"
	TableArchived  TableStatus = "archived"
)

type Table struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
	Number       int
	Capacity     int
	Shape        string
	Status       TableStatus
	CreatedAt    time.Time
}

type EntryStatus string

const (
	EntryAvailable EntryStatus = "available"
	EntryOccupied  EntryStatus = "occupied"
	EntryReserved  EntryStatus = "reserved"
)

// TablePlan is the per-restaurant, per-date occupancy ledger. Date is always
// local midnight in the restaurant's timezone.
type TablePlan struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
	Date         time.Time
	Entries      []PlanEntry
	CreatedAt    time.Time
}

// Entry returns the plan entry for the given table, if present.
func (p TablePlan) Entry(tableID uuid.UUID) (PlanEntry, bool) {
	for _, e := range p.Entries {
		if e.TableID == tableID {
			return e, true
		}
	}
	return PlanEntry{}, false
}

// PlanEntry snapshots one table of the plan's restaurant plus its interval
// ledger for the plan's date.
type PlanEntry struct {
	ID        uuid.UUID
	TableID   uuid.UUID
	Number    int
	Capacity  int
	Shape     string
	Status    EntryStatus
	Intervals []ReservationInterval
}

// ReservationInterval is one table hold: [Start, End) plus the status of the
// reservation backing it. Only waiting/confirmed holds count for conflicts.
type ReservationInterval struct {
	ReservationID uuid.UUID
	Start         time.Time
	End           time.Time
	Status        ReservationStatus
}

type ReservationStatus string

const (
	StatusWaiting   ReservationStatus = "waiting"
	StatusConfirmed ReservationStatus = "confirmed"
	StatusCanceled  ReservationStatus = "canceled"
	StatusArchived  ReservationStatus = "archived"
)

// Active reports whether the status holds its table interval.
func (s ReservationStatus) Active() bool {
	return s == StatusWaiting || s == StatusConfirmed
}

// Terminal reports whether no further externally-triggered transition applies.
func (s ReservationStatus) Terminal() bool {
	return s == StatusCanceled || s == StatusArchived
}

type Reservation struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
	TableID      uuid.UUID
	UserID       uuid.UUID
	Date         time.Time
	Start        time.Time
	End          time.Time
	PartySize    int
	Details      string
	Status       ReservationStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NormalizeDate floors t to midnight in loc, so every wall-clock moment of one
// local day maps to the same plan date.
func NormalizeDate(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// LocalDate reads t's calendar fields and returns that day's midnight in loc.
// Use for user-supplied dates, where the named day is what the caller meant
// regardless of t's own location; NormalizeDate converts an instant instead.
func LocalDate(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
