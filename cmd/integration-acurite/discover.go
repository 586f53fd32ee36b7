package main

import (
	"encoding/json"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newDiscoverCmd(logger zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Run a single discovery pass and print the resulting nodes as json",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s, err := setupService(ctx, logger)
			if err != nil {
				logger.Error().Err(err).Msg("failed to set up service")
				return err
			}
			defer s.close()

			if err := s.app.Start(ctx); err != nil {
				logger.Error().Err(err).Msg("failed to start controller")
			}

			err = s.app.ParameterHandler(ctx, s.params)

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(s.registry.Nodes()); encErr != nil {
				return encErr
			}

			if err != nil {
				logger.Error().Err(err).Msg("discovery failed")
				return err
			}

			logger.Info().Msg("job done")

			return nil
		},
	}
}
