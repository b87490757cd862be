package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sifthq/sift/pkg/inference"
)

// RetryPolicy retries transient failures with exponential backoff. The delay
// doubles after every failed attempt.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
}

// Do runs fn until it succeeds, fails permanently, the context ends or the
// attempts are exhausted.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	delay := p.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if !inference.IsRetryable(lastErr) {
			return lastErr
		}

		if attempt == attempts {
			break
		}

		log.Warn().
			Err(lastErr).
			Str("op", op).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("Transient failure, backing off")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
	}

	return fmt.Errorf("%s failed after %d attempts: %w", op, attempts, lastErr)
}
