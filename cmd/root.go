// Package cmd defines and implements the CLI commands for the frontier executable.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/frontier-crawler/internal/config"
	"github.com/JakeFAU/frontier-crawler/internal/server"
)

// buildApp is the application factory. It's a variable so tests can inject
// options such as a private Prometheus registry.
var buildApp = func(ctx context.Context, cfg *config.Config) (*server.App, error) {
	return server.Build(ctx, cfg, server.Options{})
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "frontier",
		Short: "A breadth-first, depth-bounded web crawler.",
		Long: `frontier crawls outward from a seed URL one depth level at a time,
recording every discovered URL in a persistent frontier. Media and web-support
assets are recorded but never fetched, and nothing beyond the requested depth
is ever enqueued.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "config file (YAML, TOML or JSON); CRAWLER_* env vars override it")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newResetCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("read --config flag: %w", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}
