package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Archive reservations whose service window has elapsed (one shot, for external cron)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			e, err := buildEngine(ctx, false, false)
			if err != nil {
				return err
			}
			defer e.close()

			n, err := e.lifec.ArchiveElapsed(ctx, time.Now().UTC())
			if err != nil {
				return err
			}
			e.log.Info().Int("archived", n).Msg("archive run complete")
			return nil
		},
	}
}
