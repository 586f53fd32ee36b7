package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/diwise/integration-acurite/internal/pkg/application"
	"github.com/diwise/integration-acurite/internal/pkg/infrastructure/router"
	"github.com/diwise/integration-acurite/internal/pkg/infrastructure/scheduler"
)

var (
	flagPort      string
	flagShortPoll time.Duration
	flagLongPoll  time.Duration
)

func newRunCmd(logger zerolog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the controller with periodic polling and an http api",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), logger)
		},
	}

	cmd.Flags().StringVar(&flagPort, "port", "", "Port for the http api (env: SERVICE_PORT)")
	cmd.Flags().DurationVar(&flagShortPoll, "short-poll", 0, "Short poll interval (env: SHORT_POLL_INTERVAL)")
	cmd.Flags().DurationVar(&flagLongPoll, "long-poll", 0, "Long poll interval (env: LONG_POLL_INTERVAL)")

	return cmd
}

func run(ctx context.Context, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := setupService(ctx, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to set up service")
		return err
	}
	defer s.close()

	if err := s.app.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to start controller")
	}

	if err := s.app.ParameterHandler(ctx, s.params); err != nil {
		if errors.Is(err, application.ErrConfig) {
			logger.Warn().Err(err).Msg("controller is waiting for configuration")
		} else {
			logger.Error().Err(err).Msg("initial discovery failed")
		}
	}

	cfg := scheduler.Config{
		ShortPoll: flagShortPoll,
		LongPoll:  flagLongPoll,
	}
	if cfg.ShortPoll <= 0 {
		cfg.ShortPoll = durationOrDefault(logger, "SHORT_POLL_INTERVAL", scheduler.DefaultShortPoll)
	}
	if cfg.LongPoll <= 0 {
		cfg.LongPoll = durationOrDefault(logger, "LONG_POLL_INTERVAL", scheduler.DefaultLongPoll)
	}
	go scheduler.Run(ctx, s.app, cfg, logger)

	port := flagOrEnv(logger, flagPort, "SERVICE_PORT", "8080")
	r := router.SetupRouter(chi.NewRouter(), logger, s.registry, s.app)

	errs := make(chan error, 1)
	go func() { errs <- r.Start(port) }()

	select {
	case err = <-errs:
		logger.Error().Err(err).Msg("http server stopped")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = r.Shutdown(shutdownCtx)
	}

	if stopErr := s.app.Stop(context.Background()); stopErr != nil {
		logger.Error().Err(stopErr).Msg("failed to stop controller")
	}

	return err
}
