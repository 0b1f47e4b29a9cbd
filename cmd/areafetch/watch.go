package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	natsadapter "github.com/samirrijal/eudrsat/internal/adapters/nats"
	"github.com/samirrijal/eudrsat/internal/core/domain"
	"github.com/samirrijal/eudrsat/internal/pkg/config"
)

func newWatchCmd() *cobra.Command {
	var session string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream fetch-cycle events",
		Long: `
Print fetch-cycle state transitions as they are published, one JSON
object per line. Without --session every session is shown.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load("eudrsat-areafetch")
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
			if err != nil {
				return fmt.Errorf("nats: %w", err)
			}
			defer sub.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			out := cmd.OutOrStdout()
			err = sub.SubscribeCycleEvents(ctx, session, func(_ context.Context, ev *domain.CycleEvent) error {
				return printJSON(out, ev)
			})
			if err != nil {
				return err
			}
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "only show this session")
	return cmd
}
