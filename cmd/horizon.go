package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newHorizonCmd() *cobra.Command {
	var (
		days      int
		migrateUp bool
	)

	cmd := &cobra.Command{
		Use:   "horizon",
		Short: "Generate table plans for the rolling horizon (one shot, for external cron)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			e, err := buildEngine(ctx, false, migrateUp)
			if err != nil {
				return err
			}
			defer e.close()

			if days <= 0 {
				days = e.cfg.HorizonDays
			}
			return e.plans.GenerateHorizonAll(ctx, days)
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "horizon length in days (default HORIZON_DAYS)")
	cmd.Flags().BoolVar(&migrateUp, "migrate", false, "run database migrations first")
	return cmd
}
