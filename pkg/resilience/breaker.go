package resilience

import (
	"sync"
	"time"

	"github.com/IAmMonkeyBoy/context-memory-store/pkg/memory"
)

// BreakerState is the circuit breaker state.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// BreakerConfig controls when a backend circuit opens and how long it stays
// open.
type BreakerConfig struct {
	FailureThreshold int           // consecutive failures before opening
	Cooldown         time.Duration // how long the open circuit fails fast
}

// DefaultBreakerConfig returns the default breaker policy: open after 5
// consecutive failures, cool down for 30s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	}
}

// Breaker is a per-backend circuit breaker. State is scoped to the backend
// endpoint, not to a project, so repeated failures against one backend
// protect every project at once.
type Breaker struct {
	name string
	cfg  BreakerConfig

	mu           sync.Mutex
	state        BreakerState
	failures     int
	openedAt     time.Time
	probing      bool
	onTransition func(name string, state BreakerState)

	now func() time.Time
}

// NewBreaker creates a closed breaker for the named backend.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultBreakerConfig().Cooldown
	}
	return &Breaker{
		name:  name,
		cfg:   cfg,
		state: BreakerClosed,
		now:   time.Now,
	}
}

// OnTransition registers a callback invoked whenever the breaker changes
// state, outside the breaker lock's critical work (used for metrics).
func (b *Breaker) OnTransition(fn func(name string, state BreakerState)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTransition = fn
}

// Allow reports whether a call may proceed. While open and inside the
// cooldown window it fails fast with DependencyUnavailable. After the
// cooldown a single probe call is let through (half-open).
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return nil
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return memory.NewUnavailable(nil, "%s circuit open, failing fast", b.name)
		}
		b.transition(BreakerHalfOpen)
		b.probing = true
		return nil
	default: // half-open
		if b.probing {
			return memory.NewUnavailable(nil, "%s circuit half-open, probe in flight", b.name)
		}
		b.probing = true
		return nil
	}
}

// Record feeds a call outcome back into the breaker.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen {
		b.probing = false
	}

	if err == nil {
		b.failures = 0
		if b.state != BreakerClosed {
			b.transition(BreakerClosed)
		}
		return
	}

	// Permanent errors say nothing about backend health.
	if !memory.IsRetryable(err) {
		return
	}

	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= b.cfg.FailureThreshold {
		b.openedAt = b.now()
		b.failures = 0
		if b.state != BreakerOpen {
			b.transition(BreakerOpen)
		} else {
			b.openedAt = b.now()
		}
	}
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Name returns the backend name this breaker guards.
func (b *Breaker) Name() string {
	return b.name
}

func (b *Breaker) transition(state BreakerState) {
	b.state = state
	if b.onTransition != nil {
		go b.onTransition(b.name, state)
	}
}
