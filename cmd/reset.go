package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/frontier-crawler/internal/logging"
	"github.com/JakeFAU/frontier-crawler/internal/server"
)

// newResetCmd creates the 'reset' subcommand, which deletes every work item in
// the configured store. It must not be run while a server uses the same store.
func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete every work item from the configured frontier store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			defer logger.Sync() //nolint:errcheck // best-effort flush

			store, err := server.OpenStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := store.Close(); cerr != nil {
					logger.Warn("frontier store close failed", zap.Error(cerr))
				}
			}()
			if err := store.Reset(cmd.Context()); err != nil {
				return fmt.Errorf("reset frontier: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "frontier cleared")
			return nil
		},
	}
}
