package config

import (
	"io"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/ahrav/go-dldprompt/internal/metrics"
	"github.com/ahrav/go-dldprompt/internal/transform"
)

// NewLogger builds the process logger from the observability section.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	return NewLogger(w, c.Observability.LogLevel, c.Observability.LogFormat)
}

// NewLogger returns a text or JSON slog logger at level.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// RedisOptions returns client options for the configured Redis server.
func (c *Config) RedisOptions() *redis.Options {
	return &redis.Options{
		Addr:     c.Knowledge.Redis.Addr,
		Password: c.Knowledge.Redis.Password,
		DB:       c.Knowledge.Redis.DB,
	}
}

// TransformOptions maps the transform section to transform.Build options.
// cache is used only when the response cache is enabled.
func (c *Config) TransformOptions(logger *slog.Logger, m metrics.Metrics, cache redis.UniversalClient) transform.Options {
	opts := transform.Options{
		Provider: c.Transform.Provider,
		OpenAI: transform.OpenAIConfig{
			APIKey:      c.Transform.APIKey,
			BaseURL:     c.Transform.BaseURL,
			Model:       c.Transform.Model,
			Temperature: c.Transform.Temperature,
		},
		Timeout:         c.Transform.Timeout,
		TokensPerSecond: c.Transform.TokensPerSecond,
		Burst:           c.Transform.Burst,
		RedactPrompts:   c.Transform.RedactPrompts,
		Retry: transform.RetryConfig{
			MaxAttempts:     c.Transform.Retry.MaxAttempts,
			InitialInterval: c.Transform.Retry.InitialInterval,
			MaxInterval:     c.Transform.Retry.MaxInterval,
			Multiplier:      c.Transform.Retry.Multiplier,
			UseJitter:       c.Transform.Retry.Jitter,
		},
		Breaker: transform.BreakerConfig(c.Transform.Breaker),
		Logger:  logger,
		Metrics: m,
	}
	if c.Transform.Cache.Enabled {
		opts.CacheClient = cache
		opts.CachePrefix = c.Transform.Cache.Prefix
		opts.CacheTTL = c.Transform.Cache.TTL
	}
	return opts
}
