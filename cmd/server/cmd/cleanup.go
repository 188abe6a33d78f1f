package cmd

import (
	"fmt"
	"time"

	"github.com/Togather-Foundation/orbit/internal/config"
	"github.com/Togather-Foundation/orbit/internal/jobs"
	"github.com/spf13/cobra"
)

func newCleanupCommand(root *rootOptions) *cobra.Command {
	var window time.Duration
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired events now",
		Long: `Run one retention sweep: delete every event dated before today minus the retention
window, together with its participants and comments.

Examples:
  # Use RETENTION_WINDOW (default 72h)
  orbit cleanup

  # Keep only the last day
  orbit cleanup --window 24h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if window > 0 {
				cfg.Retention.Window = window
			}
			logger := config.NewLogger(cfg.Logging)

			a, err := openApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			deleted := a.sweeper.Run(cmd.Context(), jobs.TriggerCLI)
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d events dated before %s\n", deleted, a.events.RetentionCutoff())
			return nil
		},
	}
	cmd.Flags().DurationVar(&window, "window", 0, "retention window (default: RETENTION_WINDOW or 72h)")
	return cmd
}
