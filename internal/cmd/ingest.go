package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Consume the Jetstream firehose into the event store",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return a.ingester().Run(ctx)
		})
	},
}

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Classify stored events in cursor order and deliver accepted ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			p, err := a.poller(ctx)
			if err != nil {
				return err
			}
			return p.Run(ctx)
		})
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			srv, err := a.httpServer(ctx)
			if err != nil {
				return err
			}
			return serveHTTP(ctx, srv, cfg.Server.ShutdownTimeout, a.logger)
		})
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(serveCmd)
}
