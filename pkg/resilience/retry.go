package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/IAmMonkeyBoy/context-memory-store/pkg/memory"
)

// RetryConfig controls the bounded exponential backoff applied to external
// calls.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns the default retry policy: 3 attempts with
// 200ms initial backoff capped at 5s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
	}
}

// Retry runs fn until it succeeds, a permanent error is returned, or the
// attempt budget is exhausted. Backoff doubles each attempt up to the cap and
// the wait is abandoned as soon as ctx is cancelled.
func Retry(ctx context.Context, cfg RetryConfig, logger zerolog.Logger, op string, fn func(ctx context.Context) error) error {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultRetryConfig().MaxAttempts
	}

	var lastErr error
	backoff := cfg.InitialBackoff
	if backoff <= 0 {
		backoff = DefaultRetryConfig().InitialBackoff
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		var abort *abortError
		if errors.As(err, &abort) {
			return abort.err
		}
		if !memory.IsRetryable(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}

		logger.Debug().
			Str("operation", op).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Err(err).
			Msg("Retrying after transient error")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	return fmt.Errorf("%s: %d attempts exhausted: %w", op, maxAttempts, lastErr)
}
