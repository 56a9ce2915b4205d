package main

import (
	"github.com/spf13/cobra"

	"knowspace/api/internal/store"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			if reset {
				logger.Warn("rolling back all migrations")
				if err := store.ResetMigrations(ctx, cfg.DatabaseURL); err != nil {
					return err
				}
			}
			if err := store.ApplyMigrations(ctx, cfg.DatabaseURL); err != nil {
				return err
			}
			logger.Info("migrations applied")
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "roll every migration back before applying")
	return cmd
}
