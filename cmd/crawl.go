package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/frontier-crawler/internal/control"
)

const drainTimeout = 30 * time.Second

// newCrawlCmd creates the 'crawl' subcommand. It seeds the frontier, blocks
// until the crawl drains or the process is interrupted, and prints the final
// counts. Interrupted items stay pending and are picked up by the next run.
func newCrawlCmd() *cobra.Command {
	var (
		maxDepth int
		reset    bool
	)
	cmd := &cobra.Command{
		Use:   "crawl <start-url>",
		Short: "Crawl from a seed URL until the frontier drains",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("max-depth") {
				maxDepth = cfg.Crawler.DefaultMaxDepth
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := buildApp(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
				defer cancel()
				if cerr := app.Close(closeCtx); cerr != nil {
					app.Logger().Warn("failed to close application", zap.Error(cerr))
				}
			}()

			ctrl := app.Controller()
			fmt.Fprintf(cmd.OutOrStdout(), "Starting crawl from %s with max depth %d\n", args[0], maxDepth)
			res, err := ctrl.EnqueueSeed(ctx, control.SeedRequest{URL: args[0], MaxDepth: maxDepth, Reset: reset})
			if err != nil {
				return fmt.Errorf("enqueue seed: %w", err)
			}
			if !res.Inserted {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is already in the frontier; resuming pending work\n", res.URL)
			}

			select {
			case <-ctrl.Done():
			case <-ctx.Done():
				fmt.Fprintln(cmd.OutOrStdout(), "Interrupted; pending items will be resumed on the next run")
			}

			status, err := ctrl.Status(context.WithoutCancel(ctx))
			if err != nil {
				return fmt.Errorf("read status: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pending=%d crawled=%d failed=%d\n",
				status.Pending, status.Crawled, status.Failed)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "maximum crawl depth (default crawler.default_max_depth)")
	cmd.Flags().BoolVar(&reset, "reset", false, "clear the frontier before seeding")
	return cmd
}
