package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/tablebook/internal/domain/booking"
	"github.com/example/tablebook/internal/events"
	"github.com/example/tablebook/internal/memory"
	"github.com/example/tablebook/internal/plans"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.ReservationEvent
}

func (p *recordingPublisher) PublishReservation(_ context.Context, ev events.ReservationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	store *memory.Store
	sched *Scheduler
	clock *fakeClock
	pub   *recordingPublisher
	rest  booking.Restaurant
	// tables by number
	tables map[int]booking.Table
}

// 2024-06-01 is a Saturday; the fixture restaurant serves 18:00-23:00 every
// day with 90 minute service and 30 minute granularity.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.NewStore(2 * time.Second)
	clock := &fakeClock{now: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
	pub := &recordingPublisher{}

	rest := booking.Restaurant{ID: uuid.New(), Name: "Chez Test", Timezone: "UTC", Active: true}
	st.PutRestaurant(rest)

	tables := make(map[int]booking.Table)
	for _, tt := range []struct{ number, seats int }{
		{1, 2}, {2, 4}, {3, 4}, {4, 6},
	} {
		tb := booking.Table{
			ID:           uuid.New(),
			RestaurantID: rest.ID,
			Number:       tt.number,
			Capacity:     tt.seats,
			Status:       booking.TableAvailable,
		}
		st.PutTable(tb)
		tables[tt.number] = tb
	}

	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		require.NoError(t, st.PutOpeningHours(booking.OpeningHours{
			ID:           uuid.New(),
			RestaurantID: rest.ID,
			Weekday:      wd,
			Windows:      []booking.Window{{Start: 18 * 60, End: 23 * 60}},
		}))
	}

	gen := &plans.Generator{
		Restaurants: st, Tables: st, Plans: st,
		Clock: clock, Log: zerolog.Nop(),
	}
	sched := &Scheduler{
		Store: st, Plans: gen, Clock: clock, Pub: pub, Log: zerolog.Nop(),
		ServiceMinutes: 90, GranularityMinutes: 30,
	}
	return &fixture{store: st, sched: sched, clock: clock, pub: pub, rest: rest, tables: tables}
}

func (f *fixture) request(minute, party int) Request {
	return Request{
		RestaurantID: f.rest.ID,
		Day:          time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Minute:       minute,
		PartySize:    party,
		UserID:       uuid.New(),
	}
}

func TestScheduleAssignsSmallestSufficientTable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rsv, err := f.sched.Schedule(ctx, f.request(19*60, 3))
	require.NoError(t, err)

	assert.Equal(t, booking.StatusWaiting, rsv.Status)
	assert.Equal(t, f.tables[2].ID, rsv.TableID, "capacity 4 beats capacity 6; table 1 is too small")
	assert.Equal(t, "19:00", rsv.Start.Format("15:04"))
	assert.Equal(t, "20:30", rsv.End.Format("15:04"))
	assert.Equal(t, []string{events.TypeReservationCreated}, f.pub.types())
}

func TestScheduleTieBreaksByTableNumber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.sched.Schedule(ctx, f.request(19*60, 3))
	require.NoError(t, err)
	second, err := f.sched.Schedule(ctx, f.request(19*60, 3))
	require.NoError(t, err)

	assert.Equal(t, f.tables[2].ID, first.TableID)
	assert.Equal(t, f.tables[3].ID, second.TableID)
}

func TestSchedulePreferredTable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.request(19*60, 2)
	tableID := f.tables[4].ID
	req.PreferredTableID = &tableID

	rsv, err := f.sched.Schedule(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, tableID, rsv.TableID)
}

// Date strings arrive parsed as UTC-midnight instants; for a restaurant west
// of UTC the named calendar day must still win over the instant's local day.
func TestScheduleUsesRestaurantCalendarDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ny := booking.Restaurant{ID: uuid.New(), Name: "West Side", Timezone: "America/New_York", Active: true}
	f.store.PutRestaurant(ny)
	f.store.PutTable(booking.Table{
		ID:           uuid.New(),
		RestaurantID: ny.ID,
		Number:       1,
		Capacity:     4,
		Status:       booking.TableAvailable,
	})
	// Saturdays only: sliding 2024-06-01 back to the previous local day
	// would land on a closed Friday.
	require.NoError(t, f.store.PutOpeningHours(booking.OpeningHours{
		ID:           uuid.New(),
		RestaurantID: ny.ID,
		Weekday:      time.Saturday,
		Windows:      []booking.Window{{Start: 18 * 60, End: 23 * 60}},
	}))

	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	slots, err := f.sched.Slots(ctx, ny.ID, day)
	require.NoError(t, err)
	assert.Len(t, slots, 8)

	rsv, err := f.sched.Schedule(ctx, Request{
		RestaurantID: ny.ID,
		Day:          day,
		Minute:       19 * 60,
		PartySize:    2,
		UserID:       uuid.New(),
	})
	require.NoError(t, err)

	loc := ny.Location()
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, loc), rsv.Date)
	assert.Equal(t, time.Date(2024, 6, 1, 19, 0, 0, 0, loc), rsv.Start)

	plan, err := f.sched.Plan(ctx, ny.ID, day)
	require.NoError(t, err)
	require.Len(t, plan.Entries, 1)
	require.Len(t, plan.Entries[0].Intervals, 1)
	assert.Equal(t, rsv.ID, plan.Entries[0].Intervals[0].ReservationID)
}

func TestScheduleValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  func() Request
	}{
		{"party size zero", func() Request { return f.request(19*60, 0) }},
		{"outside opening hours", func() Request { return f.request(9*60, 2) }},
		{"service overruns close", func() Request { return f.request(22*60+30, 2) }},
		{"in the past", func() Request {
			r := f.request(19*60, 2)
			r.Day = time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)
			return r
		}},
		{"unknown restaurant", func() Request {
			r := f.request(19*60, 2)
			r.RestaurantID = uuid.New()
			return r
		}},
		{"preferred table too small", func() Request {
			r := f.request(19*60, 4)
			id := f.tables[1].ID
			r.PreferredTableID = &id
			return r
		}},
		{"preferred table not in plan", func() Request {
			r := f.request(19*60, 2)
			id := uuid.New()
			r.PreferredTableID = &id
			return r
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.sched.Schedule(ctx, tt.req())
			assert.ErrorIs(t, err, booking.ErrValidation)
		})
	}
	assert.Empty(t, f.pub.types(), "rejected requests publish nothing")
}

func TestScheduleNoAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Four tables, four parties of two at the same time.
	for i := 0; i < 4; i++ {
		_, err := f.sched.Schedule(ctx, f.request(19*60, 2))
		require.NoError(t, err)
	}
	_, err := f.sched.Schedule(ctx, f.request(19*60, 2))
	assert.ErrorIs(t, err, booking.ErrNoAvailability)

	// A start of 20:30 abuts the 19:00 seatings, so the tables free up.
	_, err = f.sched.Schedule(ctx, f.request(20*60+30, 2))
	assert.NoError(t, err)
}

func TestScheduleAcceptsAbuttingInterval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tableID := f.tables[2].ID

	before := f.request(18*60, 3)
	before.PreferredTableID = &tableID
	_, err := f.sched.Schedule(ctx, before)
	require.NoError(t, err)

	// [18:00,19:30) then [19:30,21:00): touching, not overlapping.
	after := f.request(19*60+30, 3)
	after.PreferredTableID = &tableID
	_, err = f.sched.Schedule(ctx, after)
	assert.NoError(t, err)

	// [20:00,21:30) overlaps the second seating.
	overlapping := f.request(20*60, 3)
	overlapping.PreferredTableID = &tableID
	_, err = f.sched.Schedule(ctx, overlapping)
	assert.ErrorIs(t, err, booking.ErrNoAvailability)
}

func TestCancelRestoresAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tableID := f.tables[1].ID

	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	beforePlan, err := f.sched.Plan(ctx, f.rest.ID, day)
	require.NoError(t, err)

	req := f.request(19*60, 2)
	req.PreferredTableID = &tableID
	rsv, err := f.sched.Schedule(ctx, req)
	require.NoError(t, err)

	canceled, err := f.sched.Cancel(ctx, rsv.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCanceled, canceled.Status)

	afterPlan, err := f.sched.Plan(ctx, f.rest.ID, day)
	require.NoError(t, err)
	assert.Equal(t, beforePlan.Entries, afterPlan.Entries, "interval ledger back to pre-schedule state")

	// The slot is bookable again.
	_, err = f.sched.Schedule(ctx, req)
	assert.NoError(t, err)

	assert.Equal(t, []string{
		events.TypeReservationCreated,
		events.TypeReservationCanceled,
		events.TypeReservationCreated,
	}, f.pub.types())
}

func TestConfirmAndCancelTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rsv, err := f.sched.Schedule(ctx, f.request(19*60, 2))
	require.NoError(t, err)

	confirmed, err := f.sched.Confirm(ctx, rsv.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusConfirmed, confirmed.Status)

	// Confirming again is a no-op.
	again, err := f.sched.Confirm(ctx, rsv.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusConfirmed, again.Status)

	// Confirmed reservations can still be canceled.
	canceled, err := f.sched.Cancel(ctx, rsv.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCanceled, canceled.Status)

	_, err = f.sched.Confirm(ctx, rsv.ID)
	assert.ErrorIs(t, err, booking.ErrAlreadyFinalized)
	_, err = f.sched.Cancel(ctx, rsv.ID)
	assert.ErrorIs(t, err, booking.ErrAlreadyFinalized)
}

func TestConcurrentRequestsSameTable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tableID := f.tables[2].ID

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := f.request(19*60, 2)
			req.PreferredTableID = &tableID
			_, err := f.sched.Schedule(ctx, req)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, unavailable int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, booking.ErrNoAvailability):
			unavailable++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, unavailable)
}

func TestConcurrentRequestsKeepIntervalsDisjoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const workers = 8

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.sched.Schedule(ctx, f.request(19*60, 2))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok int
	for err := range errs {
		if err == nil {
			ok++
		}
	}
	assert.Equal(t, 4, ok, "one winner per table")

	plan, err := f.sched.Plan(ctx, f.rest.ID, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	for _, e := range plan.Entries {
		for i, a := range e.Intervals {
			for _, b := range e.Intervals[i+1:] {
				if !a.Status.Active() || !b.Status.Active() {
					continue
				}
				ivA := booking.Interval{Start: a.Start, End: a.End}
				ivB := booking.Interval{Start: b.Start, End: b.End}
				assert.False(t, ivA.Overlaps(ivB), "table %d holds overlapping intervals", e.Number)
			}
		}
	}
}

func TestSlots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	slots, err := f.sched.Slots(ctx, f.rest.ID, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, slots, 8)
	assert.Equal(t, "18:00", slots[0].Format("15:04"))
	assert.Equal(t, "21:30", slots[7].Format("15:04"))

	// Slot existence ignores occupancy.
	for i := 0; i < 4; i++ {
		_, err := f.sched.Schedule(ctx, f.request(19*60, 2))
		require.NoError(t, err)
	}
	again, err := f.sched.Slots(ctx, f.rest.ID, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, slots, again)
}
