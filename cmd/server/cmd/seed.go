package cmd

import (
	"errors"
	"fmt"

	"github.com/Togather-Foundation/orbit/internal/config"
	"github.com/Togather-Foundation/orbit/internal/storage/sqlstore"
	"github.com/spf13/cobra"
)

func newSeedCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create or reset the administrator account",
		Long: `Create the account named by SEED_USERNAME with the password SEED_PASSWORD, or reset its
password when it already exists. Outside production the defaults are admin@admin.com / admin123.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if cfg.Seed.Username == "" || cfg.Seed.Password == "" {
				return errors.New("SEED_USERNAME and SEED_PASSWORD are required")
			}
			logger := config.NewLogger(cfg.Logging)

			if err := sqlstore.MigrateUp(cfg.Database.URL); err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			user, created, err := a.users.EnsureUser(cmd.Context(), cfg.Seed.Username, cfg.Seed.Password)
			if err != nil {
				return fmt.Errorf("seed user: %w", err)
			}
			action := "updated"
			if created {
				action = "created"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s user %q (id %d)\n", action, user.Username, user.ID)
			return nil
		},
	}
}
