package cli

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"

	"quizduel-service/internal/app"
)

// startInvitationSweeper expires stale pending invitations every interval.
func startInvitationSweeper(ctx context.Context, service *app.DuelService, interval, ttl time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			runCtx, cancel := context.WithTimeout(ctx, interval)
			defer cancel()
			if _, err := service.ExpireInvitations(runCtx, ttl); err != nil {
				log.Error().Err(err).Msg("invitation sweep failed")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, err
	}

	sched.Start()
	log.Info().Dur("interval", interval).Dur("ttl", ttl).Msg("invitation sweeper started")
	return sched, nil
}
