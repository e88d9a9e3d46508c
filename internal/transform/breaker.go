package transform

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ahrav/go-dldprompt/internal/metrics"
)

// ErrCircuitOpen indicates the breaker is rejecting calls to a failing provider.
var ErrCircuitOpen = errors.New("transform circuit breaker open")

// BreakerState is the state of a circuit breaker.
type BreakerState int

// Breaker states.
const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a circuit breaker. A zero FailureThreshold disables it.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive provider failures that
	// opens the circuit.
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes that close it.
	SuccessThreshold int
	// OpenTimeout is how long the circuit stays open before probing.
	OpenTimeout time.Duration
	// HalfOpenProbes caps concurrent calls while half-open.
	HalfOpenProbes int
}

// Breaker defaults.
const (
	DefaultSuccessThreshold = 1
	DefaultOpenTimeout      = 30 * time.Second
	DefaultHalfOpenProbes   = 1
)

// Breaker trips after repeated provider failures and fails fast until the
// open timeout elapses.
type Breaker struct {
	cfg     BreakerConfig
	metrics metrics.Metrics
	now     func() time.Time

	mu        sync.Mutex
	state     BreakerState
	failures  int
	successes int
	probes    int
	openUntil time.Time
}

// NewBreaker builds a breaker with defaults filled in.
func NewBreaker(cfg BreakerConfig, m metrics.Metrics) *Breaker {
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultSuccessThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultOpenTimeout
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = DefaultHalfOpenProbes
	}
	return &Breaker{cfg: cfg, metrics: metrics.OrNoOp(m), now: time.Now}
}

// State returns the current state, moving an expired open circuit to half-open.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expireLocked()
	return b.state
}

// allow reserves a call slot. The returned flag marks a half-open probe.
func (b *Breaker) allow() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expireLocked()

	switch b.state {
	case BreakerOpen:
		return false, ErrCircuitOpen
	case BreakerHalfOpen:
		if b.probes >= b.cfg.HalfOpenProbes {
			return false, ErrCircuitOpen
		}
		b.probes++
		return true, nil
	default:
		return false, nil
	}
}

func (b *Breaker) record(probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if probe {
		b.probes--
	}

	if !tripsBreaker(err) {
		switch b.state {
		case BreakerHalfOpen:
			b.successes++
			if b.successes >= b.cfg.SuccessThreshold {
				b.setLocked(BreakerClosed)
			}
		case BreakerClosed:
			b.failures = 0
		}
		return
	}

	switch b.state {
	case BreakerHalfOpen:
		b.openLocked()
	case BreakerClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.openLocked()
		}
	}
}

func (b *Breaker) expireLocked() {
	if b.state == BreakerOpen && !b.now().Before(b.openUntil) {
		b.setLocked(BreakerHalfOpen)
	}
}

// openLocked opens the circuit for OpenTimeout plus up to 10% jitter so
// parallel workers do not probe in lockstep.
func (b *Breaker) openLocked() {
	jitter := time.Duration(rand.Int64N(int64(b.cfg.OpenTimeout)/10 + 1)) // #nosec G404 -- jitter only
	b.openUntil = b.now().Add(b.cfg.OpenTimeout + jitter)
	b.setLocked(BreakerOpen)
}

func (b *Breaker) setLocked(s BreakerState) {
	b.state = s
	b.failures = 0
	b.successes = 0
	b.metrics.SetGauge(metrics.TransformBreaker, nil, float64(s))
}

// tripsBreaker reports whether err counts against the provider. Caller
// cancellation, bad credentials, and malformed output do not.
func tripsBreaker(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	switch Classify(err).Type {
	case ErrorTypeProvider, ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeUnknown:
		return true
	default:
		return false
	}
}

// Middleware wraps next with the breaker.
func (b *Breaker) Middleware(next Transformer) Transformer {
	if b.cfg.FailureThreshold <= 0 {
		return next
	}
	return Func(func(ctx context.Context, text string, p Params) (string, error) {
		probe, err := b.allow()
		if err != nil {
			return "", &Error{Type: ErrorTypeProvider, Message: err.Error(), Cause: err}
		}
		out, err := next.Transform(ctx, text, p)
		b.record(probe, err)
		return out, err
	})
}

// NewBreakerMiddleware returns a middleware backed by a fresh breaker.
func NewBreakerMiddleware(cfg BreakerConfig, m metrics.Metrics) Middleware {
	return NewBreaker(cfg, m).Middleware
}
