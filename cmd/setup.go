package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/tablebook/internal/config"
	"github.com/example/tablebook/internal/db"
	"github.com/example/tablebook/internal/domain/booking"
	"github.com/example/tablebook/internal/events"
	"github.com/example/tablebook/internal/lifecycle"
	"github.com/example/tablebook/internal/logging"
	"github.com/example/tablebook/internal/memory"
	"github.com/example/tablebook/internal/migrate"
	"github.com/example/tablebook/internal/plans"
	"github.com/example/tablebook/internal/postgres"
	"github.com/example/tablebook/internal/scheduler"
	"github.com/example/tablebook/internal/store"
)

// engine bundles the wired services plus their shared dependencies.
type engine struct {
	cfg   config.Config
	log   zerolog.Logger
	st    store.Store
	pub   events.Publisher
	plans *plans.Generator
	sched *scheduler.Scheduler
	lifec *lifecycle.Manager

	closers []func()
}

func (e *engine) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func buildEngine(ctx context.Context, dev, migrateUp bool) (*engine, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	log := logging.New(cfg.LogLevel, cfg.LogJSON)

	e := &engine{cfg: cfg, log: log}

	if dev {
		mem := memory.NewStore(cfg.ScheduleLockWait)
		seedDemo(mem)
		e.st = mem
		log.Warn().Msg("dev mode: in-memory store with demo data")
	} else {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
		d, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, d.Close)
		if err := d.Ping(ctx); err != nil {
			e.close()
			return nil, fmt.Errorf("db ping: %w", err)
		}
		if migrateUp {
			if err := migrate.Up(ctx, d, logging.WithComponent(log, "migrate")); err != nil {
				e.close()
				return nil, err
			}
		}
		e.st = postgres.NewStore(d)
	}

	e.pub = events.Publisher(events.Nop{})
	if cfg.AMQPURL != "" {
		pub, err := events.DialAMQP(cfg.AMQPURL, cfg.EventsExchange)
		if err != nil {
			e.close()
			return nil, err
		}
		e.pub = pub
		e.closers = append(e.closers, func() { _ = pub.Close() })
	}

	clock := booking.RealClock{}
	e.plans = &plans.Generator{
		Restaurants: e.st,
		Tables:      e.st,
		Plans:       e.st,
		Clock:       clock,
		Log:         logging.WithComponent(log, "plans"),
	}
	e.sched = &scheduler.Scheduler{
		Store:              e.st,
		Plans:              e.plans,
		Clock:              clock,
		Pub:                e.pub,
		Log:                logging.WithComponent(log, "scheduler"),
		ServiceMinutes:     cfg.ServiceMinutes,
		GranularityMinutes: cfg.GranularityMinutes,
	}
	e.lifec = &lifecycle.Manager{
		Reservations:   e.st,
		Pub:            e.pub,
		Log:            logging.WithComponent(log, "lifecycle"),
		ArchiveWaiting: cfg.ArchiveWaiting,
	}
	return e, nil
}

// seedDemo loads one restaurant so dev mode is bookable out of the box.
func seedDemo(st *memory.Store) {
	rid := uuid.New()
	st.PutRestaurant(booking.Restaurant{
		ID:       rid,
		Name:     "Demo Bistro",
		Timezone: "UTC",
		Active:   true,
	})
	caps := []int{2, 2, 4, 4, 6, 8}
	for i, c := range caps {
		st.PutTable(booking.Table{
			ID:           uuid.New(),
			RestaurantID: rid,
			Number:       i + 1,
			Capacity:     c,
			Shape:        "rect",
			Status:       booking.TableAvailable,
		})
	}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		_ = st.PutOpeningHours(booking.OpeningHours{
			ID:           uuid.New(),
			RestaurantID: rid,
			Weekday:      wd,
			Windows:      []booking.Window{{Start: 11 * 60, End: 15 * 60}, {Start: 18 * 60, End: 23 * 60}},
		})
	}
	fmt.Printf("demo restaurant: %s\n", rid)
}
