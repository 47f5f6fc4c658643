package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/tablebook/internal/domain/booking"
	"github.com/example/tablebook/internal/jobs"
	"github.com/example/tablebook/internal/logging"
	"github.com/example/tablebook/internal/web"
)

func newServerCmd() *cobra.Command {
	var (
		migrateUp bool
		dev       bool
	)

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the booking API + maintenance sweeps",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			e, err := buildEngine(ctx, dev, migrateUp)
			if err != nil {
				return err
			}
			defer e.close()

			runner := &jobs.Runner{
				Plans:       e.plans,
				Lifecycle:   e.lifec,
				Clock:       booking.RealClock{},
				Log:         logging.WithComponent(e.log, "jobs"),
				Interval:    e.cfg.JobInterval,
				HorizonDays: e.cfg.HorizonDays,
			}
			go func() { _ = runner.Run(ctx) }()

			ws := &web.Server{Sched: e.sched, Log: logging.WithComponent(e.log, "web")}
			e.log.Info().Str("addr", e.cfg.HTTPAddr).Msg("listening")
			return web.Start(ctx, e.cfg.HTTPAddr, ws.Routes())
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")
	cmd.Flags().BoolVar(&dev, "dev", false, "run against an in-memory store with demo data")
	return cmd
}
