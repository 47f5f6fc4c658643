// Package web is the JSON API over the booking engine. Routing and shaping
// only; all rules live in the scheduler and plan generator.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/tablebook/internal/domain/booking"
	"github.com/example/tablebook/internal/scheduler"
)

type Server struct {
	Sched *scheduler.Scheduler
	Log   zerolog.Logger
}

func (s *Server) Routes() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests)

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok\n")
	})

	r.GET("/restaurants/:id/slots", s.handleSlots)
	r.GET("/restaurants/:id/plan", s.handlePlan)

	r.POST("/reservations", s.handleSchedule)
	r.GET("/reservations/:id", s.handleGetReservation)
	r.POST("/reservations/:id/confirm", s.handleConfirm)
	r.POST("/reservations/:id/cancel", s.handleCancel)

	return r
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.Log.Info().
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Int("status", c.Writer.Status()).
		Dur("duration", time.Since(start)).
		Msg("request")
}

type errorBody struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

func writeErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, booking.ErrValidation):
		c.JSON(http.StatusBadRequest, errorBody{Kind: "invalid", Error: err.Error()})
	case errors.Is(err, booking.ErrNotFound):
		c.JSON(http.StatusNotFound, errorBody{Kind: "not_found", Error: err.Error()})
	case errors.Is(err, booking.ErrNoAvailability):
		c.JSON(http.StatusConflict, errorBody{Kind: "no_availability", Error: err.Error()})
	case errors.Is(err, booking.ErrConflictRetry):
		c.JSON(http.StatusConflict, errorBody{Kind: "conflict_retry", Error: err.Error()})
	case errors.Is(err, booking.ErrAlreadyFinalized):
		c.JSON(http.StatusConflict, errorBody{Kind: "already_finalized", Error: err.Error()})
	case errors.Is(err, booking.ErrDependencyUnavailable):
		c.JSON(http.StatusServiceUnavailable, errorBody{Kind: "unavailable", Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, errorBody{Kind: "internal", Error: err.Error()})
	}
}

func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

func parseMinute(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func (s *Server) handleSlots(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeErr(c, booking.ErrValidation)
		return
	}
	date, err := parseDate(c.Query("date"))
	if err != nil {
		writeErr(c, booking.ErrValidation)
		return
	}
	slots, err := s.Sched.Slots(c.Request.Context(), id, date)
	if err != nil {
		writeErr(c, err)
		return
	}
	out := make([]string, 0, len(slots))
	for _, t := range slots {
		out = append(out, t.Format("15:04"))
	}
	c.JSON(http.StatusOK, gin.H{"date": c.Query("date"), "slots": out})
}

type planEntryDTO struct {
	TableID   uuid.UUID     `json:"table_id"`
	Number    int           `json:"number"`
	Capacity  int           `json:"capacity"`
	Shape     string        `json:"shape"`
	Status    string        `json:"status"`
	Intervals []intervalDTO `json:"intervals"`
}

type intervalDTO struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	Status        string    `json:"status"`
}

func (s *Server) handlePlan(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeErr(c, booking.ErrValidation)
		return
	}
	date, err := parseDate(c.Query("date"))
	if err != nil {
		writeErr(c, booking.ErrValidation)
		return
	}
	plan, err := s.Sched.Plan(c.Request.Context(), id, date)
	if err != nil {
		writeErr(c, err)
		return
	}
	entries := make([]planEntryDTO, 0, len(plan.Entries))
	for _, e := range plan.Entries {
		dto := planEntryDTO{
			TableID:   e.TableID,
			Number:    e.Number,
			Capacity:  e.Capacity,
			Shape:     e.Shape,
			Status:    string(e.Status),
			Intervals: make([]intervalDTO, 0, len(e.Intervals)),
		}
		for _, iv := range e.Intervals {
			dto.Intervals = append(dto.Intervals, intervalDTO{
				ReservationID: iv.ReservationID,
				Start:         iv.Start,
				End:           iv.End,
				Status:        string(iv.Status),
			})
		}
		entries = append(entries, dto)
	}
	c.JSON(http.StatusOK, gin.H{
		"restaurant_id": plan.RestaurantID,
		"date":          plan.Date.Format("2006-01-02"),
		"tables":        entries,
	})
}

type scheduleRequest struct {
	RestaurantID uuid.UUID  `json:"restaurant_id" binding:"required"`
	Date         string     `json:"date" binding:"required"`
	Time         string     `json:"time" binding:"required"`
	PartySize    int        `json:"party_size" binding:"required"`
	Details      string     `json:"details"`
	UserID       uuid.UUID  `json:"user_id" binding:"required"`
	TableID      *uuid.UUID `json:"table_id"`
}

type reservationDTO struct {
	ID           uuid.UUID `json:"id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
	TableID      uuid.UUID `json:"table_id"`
	UserID       uuid.UUID `json:"user_id"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	PartySize    int       `json:"party_size"`
	Details      string    `json:"details"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

func toDTO(r booking.Reservation) reservationDTO {
	return reservationDTO{
		ID:           r.ID,
		RestaurantID: r.RestaurantID,
		TableID:      r.TableID,
		UserID:       r.UserID,
		Start:        r.Start,
		End:          r.End,
		PartySize:    r.PartySize,
		Details:      r.Details,
		Status:       string(r.Status),
		CreatedAt:    r.CreatedAt,
	}
}

func (s *Server) handleSchedule(c *gin.Context) {
	var body scheduleRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Kind: "invalid", Error: err.Error()})
		return
	}
	day, err := parseDate(body.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Kind: "invalid", Error: "date must be YYYY-MM-DD"})
		return
	}
	minute, err := parseMinute(body.Time)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Kind: "invalid", Error: "time must be HH:MM"})
		return
	}

	rsv, err := s.Sched.Schedule(c.Request.Context(), scheduler.Request{
		RestaurantID:     body.RestaurantID,
		Day:              day,
		Minute:           minute,
		PartySize:        body.PartySize,
		Details:          body.Details,
		UserID:           body.UserID,
		PreferredTableID: body.TableID,
	})
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, toDTO(rsv))
}

func (s *Server) handleGetReservation(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeErr(c, booking.ErrValidation)
		return
	}
	rsv, err := s.Sched.Reservation(c.Request.Context(), id)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, toDTO(rsv))
}

func (s *Server) handleConfirm(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeErr(c, booking.ErrValidation)
		return
	}
	rsv, err := s.Sched.Confirm(c.Request.Context(), id)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, toDTO(rsv))
}

func (s *Server) handleCancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeErr(c, booking.ErrValidation)
		return
	}
	rsv, err := s.Sched.Cancel(c.Request.Context(), id)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, toDTO(rsv))
}

// Start serves h until ctx is canceled, then shuts down gracefully.
func Start(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
