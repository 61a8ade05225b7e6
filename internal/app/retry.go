package app

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// RetryPolicy bounds retries of transient persistence failures.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 5, InitialInterval: 200 * time.Millisecond, MaxInterval: 5 * time.Second}
}

// Do runs op until it succeeds, the retry budget is spent or ctx is done.
func (p RetryPolicy) Do(ctx context.Context, what, roomID string, op func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	eb.MaxInterval = p.MaxInterval
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, p.MaxRetries), ctx)

	return backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		log.Warn().
			Err(err).
			Str("room_id", roomID).
			Str("op", what).
			Dur("retry_in", wait).
			Msg("transient failure, retrying")
	})
}
