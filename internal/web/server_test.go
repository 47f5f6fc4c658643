package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
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
	"github.com/example/tablebook/internal/scheduler"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type apiFixture struct {
	srv    *httptest.Server
	store  *memory.Store
	restID uuid.UUID
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	st := memory.NewStore(time.Second)
	restID := uuid.New()
	st.PutRestaurant(booking.Restaurant{
		ID: restID, Name: "Chez Test", Timezone: "UTC", Active: true,
	})
	for i, seats := range []int{2, 4, 6} {
		st.PutTable(booking.Table{
			ID: uuid.New(), RestaurantID: restID, Number: i + 1,
			Capacity: seats, Status: booking.TableAvailable,
		})
	}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		require.NoError(t, st.PutOpeningHours(booking.OpeningHours{
			RestaurantID: restID,
			Weekday:      wd,
			Windows:      []booking.Window{{Start: 18 * 60, End: 23 * 60}},
		}))
	}

	clock := fixedClock{t: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
	gen := &plans.Generator{
		Restaurants: st, Tables: st, Plans: st,
		Clock: clock, Log: zerolog.Nop(),
	}
	sched := &scheduler.Scheduler{
		Store: st, Plans: gen, Clock: clock,
		Pub: events.Nop{}, Log: zerolog.Nop(),
		ServiceMinutes: 90, GranularityMinutes: 30,
	}
	s := &Server{Sched: sched, Log: zerolog.Nop()}
	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)
	return &apiFixture{srv: srv, store: st, restID: restID}
}

func (f *apiFixture) postJSON(t *testing.T, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := http.Post(f.srv.URL+path, "application/json", &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, out.Bytes()
}

func (f *apiFixture) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, out.Bytes()
}

func (f *apiFixture) book(t *testing.T, tm string, party int) reservationDTO {
	t.Helper()
	resp, body := f.postJSON(t, "/reservations", map[string]any{
		"restaurant_id": f.restID,
		"date":          "2024-06-02",
		"time":          tm,
		"party_size":    party,
		"user_id":       uuid.New(),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var dto reservationDTO
	require.NoError(t, json.Unmarshal(body, &dto))
	return dto
}

func TestHealthz(t *testing.T) {
	f := newAPIFixture(t)
	resp, body := f.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok\n", string(body))
}

func TestCreateReservation(t *testing.T) {
	f := newAPIFixture(t)
	dto := f.book(t, "19:00", 3)

	assert.Equal(t, "waiting", dto.Status)
	assert.Equal(t, f.restID, dto.RestaurantID)
	assert.Equal(t, time.Date(2024, 6, 2, 19, 0, 0, 0, time.UTC), dto.Start.UTC())
	assert.Equal(t, time.Date(2024, 6, 2, 20, 30, 0, 0, time.UTC), dto.End.UTC())

	resp, body := f.get(t, "/reservations/"+dto.ID.String())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var got reservationDTO
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, dto.ID, got.ID)
}

func TestCreateReservationBadBody(t *testing.T) {
	f := newAPIFixture(t)

	cases := []map[string]any{
		{"date": "2024-06-02", "time": "19:00", "party_size": 2, "user_id": uuid.New()},
		{"restaurant_id": f.restID, "date": "June 2nd", "time": "19:00", "party_size": 2, "user_id": uuid.New()},
		{"restaurant_id": f.restID, "date": "2024-06-02", "time": "7pm", "party_size": 2, "user_id": uuid.New()},
	}
	for i, c := range cases {
		resp, body := f.postJSON(t, "/reservations", c)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "case %d: %s", i, body)
		var e errorBody
		require.NoError(t, json.Unmarshal(body, &e))
		assert.Equal(t, "invalid", e.Kind)
	}
}

func TestCreateReservationOutsideHours(t *testing.T) {
	f := newAPIFixture(t)
	resp, body := f.postJSON(t, "/reservations", map[string]any{
		"restaurant_id": f.restID,
		"date":          "2024-06-02",
		"time":          "12:00",
		"party_size":    2,
		"user_id":       uuid.New(),
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var e errorBody
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Equal(t, "invalid", e.Kind)
}

func TestCreateReservationNoAvailability(t *testing.T) {
	f := newAPIFixture(t)
	for i := 0; i < 3; i++ {
		f.book(t, "19:00", 2)
	}
	resp, body := f.postJSON(t, "/reservations", map[string]any{
		"restaurant_id": f.restID,
		"date":          "2024-06-02",
		"time":          "19:30",
		"party_size":    2,
		"user_id":       uuid.New(),
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	var e errorBody
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Equal(t, "no_availability", e.Kind)
}

func TestConfirmAndCancel(t *testing.T) {
	f := newAPIFixture(t)
	dto := f.book(t, "19:00", 2)

	resp, body := f.postJSON(t, "/reservations/"+dto.ID.String()+"/confirm", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var got reservationDTO
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "confirmed", got.Status)

	resp, body = f.postJSON(t, "/reservations/"+dto.ID.String()+"/cancel", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "canceled", got.Status)

	// Canceled is terminal.
	resp, body = f.postJSON(t, "/reservations/"+dto.ID.String()+"/confirm", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	var e errorBody
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Equal(t, "already_finalized", e.Kind)
}

func TestReservationNotFound(t *testing.T) {
	f := newAPIFixture(t)
	resp, body := f.get(t, "/reservations/"+uuid.NewString())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var e errorBody
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Equal(t, "not_found", e.Kind)

	resp, _ = f.get(t, "/reservations/not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSlotsEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	resp, body := f.get(t, fmt.Sprintf("/restaurants/%s/slots?date=2024-06-02", f.restID))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out struct {
		Date  string   `json:"date"`
		Slots []string `json:"slots"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "2024-06-02", out.Date)
	assert.Equal(t, []string{"18:00", "18:30", "19:00", "19:30", "20:00", "20:30", "21:00", "21:30"}, out.Slots)

	resp, _ = f.get(t, fmt.Sprintf("/restaurants/%s/slots", f.restID))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPlanEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	dto := f.book(t, "19:00", 2)

	resp, body := f.get(t, fmt.Sprintf("/restaurants/%s/plan?date=2024-06-02", f.restID))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out struct {
		RestaurantID uuid.UUID      `json:"restaurant_id"`
		Date         string         `json:"date"`
		Tables       []planEntryDTO `json:"tables"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, f.restID, out.RestaurantID)
	assert.Equal(t, "2024-06-02", out.Date)
	require.Len(t, out.Tables, 3)

	// Party of 2 lands on table 1, the smallest fit.
	assert.Equal(t, "reserved", out.Tables[0].Status)
	require.Len(t, out.Tables[0].Intervals, 1)
	assert.Equal(t, dto.ID, out.Tables[0].Intervals[0].ReservationID)
	assert.Empty(t, out.Tables[1].Intervals)
}
