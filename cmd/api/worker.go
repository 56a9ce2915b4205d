package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newWorkerCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume background jobs from the Redis queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			st, err := buildStack(cmd.Context(), cfg, logger)
			if err != nil {
				logger.Error("startup failed", zap.Error(err))
				return err
			}
			defer st.Close()

			return st.newWorker(logger).Run(cmd.Context())
		},
	}
}
