package transform

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-dldprompt/internal/metrics"
)

// NewTimeoutMiddleware bounds every call by d. The call returns a timeout
// error at the deadline even if the wrapped transformer ignores ctx.
func NewTimeoutMiddleware(d time.Duration) Middleware {
	return func(next Transformer) Transformer {
		if d <= 0 {
			return next
		}
		return Func(func(ctx context.Context, text string, p Params) (string, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			type result struct {
				out string
				err error
			}
			done := make(chan result, 1)
			go func() {
				out, err := next.Transform(ctx, text, p)
				done <- result{out, err}
			}()

			select {
			case r := <-done:
				return r.out, r.err
			case <-ctx.Done():
				return "", &Error{
					Type:    ErrorTypeTimeout,
					Message: fmt.Sprintf("transform exceeded %s", d),
					Cause:   ctx.Err(),
				}
			}
		})
	}
}

// NewRateLimitMiddleware admits calls through a token bucket. A call waits for
// a token until its context ends, then fails with ErrRateLimitExceeded.
func NewRateLimitMiddleware(tokensPerSecond float64, burst int) Middleware {
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(tokensPerSecond), burst)
	return func(next Transformer) Transformer {
		if tokensPerSecond <= 0 {
			return next
		}
		return Func(func(ctx context.Context, text string, p Params) (string, error) {
			if err := limiter.Wait(ctx); err != nil {
				return "", &Error{Type: ErrorTypeRateLimit, Message: "waiting for rate limiter", Cause: errors.Join(ErrRateLimitExceeded, err)}
			}
			return next.Transform(ctx, text, p)
		})
	}
}

// LoggingMiddleware records structured logs and metrics for each call.
type LoggingMiddleware struct {
	logger  *slog.Logger
	metrics metrics.Metrics
	redact  bool
}

// NewLoggingMiddleware creates observability middleware. With redact set,
// prompt text is logged by length only.
func NewLoggingMiddleware(logger *slog.Logger, m metrics.Metrics, redact bool) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	lm := &LoggingMiddleware{logger: logger, metrics: metrics.OrNoOp(m), redact: redact}
	return lm.Middleware
}

// Middleware wraps next with logging.
func (m *LoggingMiddleware) Middleware(next Transformer) Transformer {
	return Func(func(ctx context.Context, text string, p Params) (string, error) {
		requestID := uuid.New().String()
		fields := []any{
			"request_id", requestID,
			"model", p.Model,
			"directives", len(p.Directives),
		}
		if m.redact {
			fields = append(fields, "text_length", len(text))
		} else {
			fields = append(fields, "text", text)
		}
		m.logger.Info("transform request started", fields...)

		start := time.Now()
		out, err := next.Transform(ctx, text, p)
		dur := time.Since(start)

		tags := map[string]string{"model": p.Model, "status": "ok"}
		if err != nil {
			te := Classify(err)
			tags["status"] = string(te.Type)
			m.logger.Warn("transform request failed",
				"request_id", requestID,
				"error_type", te.Type,
				"duration_ms", dur.Milliseconds(),
				"error", err)
		} else {
			m.logger.Info("transform request completed",
				"request_id", requestID,
				"duration_ms", dur.Milliseconds(),
				"output_length", len(out))
		}
		m.metrics.IncrementCounter(metrics.TransformRequests, tags, 1)
		m.metrics.RecordHistogram(metrics.TransformDurationMS, map[string]string{"model": p.Model}, float64(dur.Milliseconds()))
		return out, err
	})
}

// DefaultCacheTTL is used when NewCacheMiddleware receives a zero TTL.
const DefaultCacheTTL = 24 * time.Hour

// NewCacheMiddleware caches successful transform outputs in Redis, keyed by a
// hash of the text and parameters. Redis failures fall through to the
// wrapped transformer.
func NewCacheMiddleware(client redis.UniversalClient, prefix string, ttl time.Duration, logger *slog.Logger, m metrics.Metrics) Middleware {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if prefix == "" {
		prefix = "transform:cache"
	}
	if logger == nil {
		logger = slog.Default()
	}
	m = metrics.OrNoOp(m)
	return func(next Transformer) Transformer {
		return Func(func(ctx context.Context, text string, p Params) (string, error) {
			key := prefix + ":" + CacheKey(text, p)

			cached, err := client.Get(ctx, key).Result()
			switch {
			case err == nil:
				m.IncrementCounter(metrics.TransformCacheHits, map[string]string{"result": "hit"}, 1)
				return cached, nil
			case !errors.Is(err, redis.Nil):
				logger.Warn("transform cache read failed", "error", err)
			}
			m.IncrementCounter(metrics.TransformCacheHits, map[string]string{"result": "miss"}, 1)

			out, err := next.Transform(ctx, text, p)
			if err != nil {
				return "", err
			}
			if err := client.Set(ctx, key, out, ttl).Err(); err != nil {
				logger.Warn("transform cache write failed", "error", err)
			}
			return out, nil
		})
	}
}

// CacheKey derives a stable key from text and parameters.
func CacheKey(text string, p Params) string {
	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte{0})
	// Params contains only JSON-safe fields; map keys are emitted sorted.
	enc, _ := json.Marshal(p)
	h.Write(enc)
	return hex.EncodeToString(h.Sum(nil))
}
