package transform

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ahrav/go-dldprompt/internal/metrics"
)

// Provider names accepted by Build.
const (
	ProviderOpenAI = "openai"
	ProviderStub   = "stub"
)

// Options selects a provider and the middleware around it.
type Options struct {
	Provider        string
	OpenAI          OpenAIConfig
	Timeout         time.Duration
	TokensPerSecond float64
	Burst           int
	RedactPrompts   bool
	Retry           RetryConfig
	Breaker         BreakerConfig

	// CacheClient enables the response cache when non-nil.
	CacheClient redis.UniversalClient
	CachePrefix string
	CacheTTL    time.Duration

	Logger  *slog.Logger
	Metrics metrics.Metrics
}

// Build assembles a transformer with its middleware chain:
// logging, cache, retry, circuit breaker, timeout, rate limit, provider.
func Build(opts Options) (Transformer, error) {
	var provider Transformer
	switch opts.Provider {
	case ProviderOpenAI:
		o, err := NewOpenAI(opts.OpenAI)
		if err != nil {
			return nil, fmt.Errorf("build openai transformer: %w", err)
		}
		provider = o
	case ProviderStub, "":
		provider = Stub{}
	default:
		return nil, fmt.Errorf("unknown transform provider %q", opts.Provider)
	}

	mws := []Middleware{NewLoggingMiddleware(opts.Logger, opts.Metrics, opts.RedactPrompts)}
	if opts.CacheClient != nil {
		mws = append(mws, NewCacheMiddleware(opts.CacheClient, opts.CachePrefix, opts.CacheTTL, opts.Logger, opts.Metrics))
	}
	mws = append(mws,
		NewRetryMiddleware(opts.Retry, opts.Metrics),
		NewBreakerMiddleware(opts.Breaker, opts.Metrics),
		NewTimeoutMiddleware(opts.Timeout),
		NewRateLimitMiddleware(opts.TokensPerSecond, opts.Burst),
	)
	return Chain(provider, mws...), nil
}
