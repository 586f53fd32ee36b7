package scheduler

import (
	"context"
	"time"

	"github.com/diwise/integration-acurite/internal/pkg/application/nodes"
	"github.com/rs/zerolog"
)

const (
	DefaultShortPoll time.Duration = 60 * time.Second
	DefaultLongPoll  time.Duration = 300 * time.Second
)

type Poller interface {
	Poll(ctx context.Context, kind nodes.PollKind) error
}

type Config struct {
	ShortPoll time.Duration
	LongPoll  time.Duration
}

// Run delivers short and long poll events to p until ctx is cancelled.
// Events are handled one at a time.
func Run(ctx context.Context, p Poller, cfg Config, logger zerolog.Logger) {
	if cfg.ShortPoll <= 0 {
		cfg.ShortPoll = DefaultShortPoll
	}
	if cfg.LongPoll <= 0 {
		cfg.LongPoll = DefaultLongPoll
	}

	logger.Info().
		Str("short_poll", cfg.ShortPoll.String()).
		Str("long_poll", cfg.LongPoll.String()).
		Msg("starting poll scheduler")

	short := time.NewTicker(cfg.ShortPoll)
	defer short.Stop()

	long := time.NewTicker(cfg.LongPoll)
	defer long.Stop()

	for {
		select {
		case <-short.C:
			poll(ctx, p, nodes.ShortPoll, logger)
		case <-long.C:
			poll(ctx, p, nodes.LongPoll, logger)
		case <-ctx.Done():
			logger.Info().Msg("stopping poll scheduler")
			return
		}
	}
}

func poll(ctx context.Context, p Poller, kind nodes.PollKind, logger zerolog.Logger) {
	if err := p.Poll(ctx, kind); err != nil {
		logger.Error().Err(err).Str("poll", string(kind)).Msg("poll failed")
	}
}
