package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/IAmMonkeyBoy/context-memory-store/internal/observability"
	"github.com/IAmMonkeyBoy/context-memory-store/pkg/memory"
)

// Config bundles the full resilience policy for one backend endpoint.
type Config struct {
	Retry          RetryConfig
	Breaker        BreakerConfig
	RequestTimeout time.Duration // per-attempt timeout; 0 disables
}

// DefaultConfig returns the default resilience policy.
func DefaultConfig() Config {
	return Config{
		Retry:          DefaultRetryConfig(),
		Breaker:        DefaultBreakerConfig(),
		RequestTimeout: 30 * time.Second,
	}
}

// Executor wraps external calls with a per-attempt timeout, bounded retry and
// a shared circuit breaker. One executor guards one backend endpoint and is
// shared by every project in the process.
type Executor struct {
	backend string
	breaker *Breaker
	cfg     Config
	logger  zerolog.Logger
}

// NewExecutor creates an executor for the named backend.
func NewExecutor(backend string, cfg Config, logger zerolog.Logger) *Executor {
	return &Executor{
		backend: backend,
		breaker: NewBreaker(backend, cfg.Breaker),
		cfg:     cfg,
		logger:  logger.With().Str("backend", backend).Logger(),
	}
}

// Breaker exposes the underlying breaker, mainly for health reporting.
func (e *Executor) Breaker() *Breaker {
	return e.breaker
}

// abortError stops the retry loop immediately while surfacing the wrapped
// error unchanged. An open breaker must not burn backoff time.
type abortError struct {
	err error
}

func (a *abortError) Error() string { return a.err.Error() }
func (a *abortError) Unwrap() error { return a.err }

// Do runs fn under the full policy. A timed-out attempt is treated exactly
// like any other transient failure. When the breaker is open, Do fails fast
// without consuming the caller's retry budget on the backend.
func (e *Executor) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return Retry(ctx, e.cfg.Retry, e.logger, op, func(ctx context.Context) error {
		if err := e.breaker.Allow(); err != nil {
			return &abortError{err: err}
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if e.cfg.RequestTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, e.cfg.RequestTimeout)
			defer cancel()
		}

		start := time.Now()
		err := fn(attemptCtx)
		if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = memory.NewTimeout(err, "%s timed out", op)
		}
		observability.RecordBackendRequest(e.backend, op, time.Since(start), err == nil)

		e.breaker.Record(err)
		return err
	})
}
