package transform

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/ahrav/go-dldprompt/internal/metrics"
)

// RetryConfig bounds in-call retries of transient transform failures.
// MaxAttempts of 1 or less disables retrying.
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	UseJitter       bool
}

// Retry defaults.
const (
	DefaultRetryInitial    = 250 * time.Millisecond
	DefaultRetryMax        = 5 * time.Second
	DefaultRetryMultiplier = 2.0
)

// Backoff returns the delay before the given retry (1-based). With jitter
// the delay is drawn uniformly from [0, backoff].
func (c RetryConfig) Backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	d := c.InitialInterval
	if d <= 0 {
		d = time.Millisecond
	}
	mult := max(c.Multiplier, 1.0)
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * mult)
		if c.MaxInterval > 0 && d >= c.MaxInterval {
			d = c.MaxInterval
			break
		}
	}
	if c.UseJitter {
		d = time.Duration(rand.Int64N(int64(d) + 1)) // #nosec G404 -- jitter only
	}
	return d
}

// retryable reports whether a failure is worth retrying inside one call.
// Timeouts are left to the stage retry budget.
func retryable(err error) bool {
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	switch Classify(err).Type {
	case ErrorTypeRateLimit, ErrorTypeProvider:
		return true
	default:
		return false
	}
}

// NewRetryMiddleware retries rate-limited and unavailable-provider failures
// with exponential backoff. A provider Retry-After hint replaces the computed
// delay when it fits under MaxInterval.
func NewRetryMiddleware(cfg RetryConfig, m metrics.Metrics) Middleware {
	m = metrics.OrNoOp(m)
	return func(next Transformer) Transformer {
		if cfg.MaxAttempts <= 1 {
			return next
		}
		return Func(func(ctx context.Context, text string, p Params) (string, error) {
			var (
				out string
				err error
			)
			for attempt := 1; ; attempt++ {
				out, err = next.Transform(ctx, text, p)
				if err == nil || attempt >= cfg.MaxAttempts || !retryable(err) {
					return out, err
				}

				delay := cfg.Backoff(attempt)
				if ra := Classify(err).GetRetryAfter(); ra > 0 && (cfg.MaxInterval <= 0 || ra <= cfg.MaxInterval) {
					delay = ra
				}
				m.IncrementCounter(metrics.TransformRetries, map[string]string{"error_type": string(Classify(err).Type)}, 1)

				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return "", err
				case <-timer.C:
				}
			}
		})
	}
}
