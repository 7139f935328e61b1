package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	runNoIngest bool
	runNoPoll   bool
	runNoServe  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the ingester, poller and read API in one process",
	Long: `run starts every component against one shared store. The first
component to fail stops the others.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, runAll)
	},
}

func runAll(ctx context.Context, a *app) error {
	// Build everything before starting so a wiring error leaves nothing running.
	var tasks []func(context.Context) error

	if !runNoIngest {
		tasks = append(tasks, a.ingester().Run)
	}
	if !runNoPoll {
		p, err := a.poller(ctx)
		if err != nil {
			return err
		}
		tasks = append(tasks, p.Run)
	}
	if !runNoServe {
		srv, err := a.httpServer(ctx)
		if err != nil {
			return err
		}
		tasks = append(tasks, func(ctx context.Context) error {
			return serveHTTP(ctx, srv, a.cfg.Server.ShutdownTimeout, a.logger)
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		g.Go(func() error { return task(gctx) })
	}
	return g.Wait()
}

func init() {
	runCmd.Flags().BoolVar(&runNoIngest, "no-ingest", false, "do not start the firehose ingester")
	runCmd.Flags().BoolVar(&runNoPoll, "no-poll", false, "do not start the poller")
	runCmd.Flags().BoolVar(&runNoServe, "no-serve", false, "do not start the read API")
	rootCmd.AddCommand(runCmd)
}
