// Package config loads the process configuration: a YAML file overlaid with
// DLDPROMPT_ environment variables on top of built-in defaults.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ahrav/go-dldprompt/internal/domain"
	"github.com/ahrav/go-dldprompt/internal/feedback"
	"github.com/ahrav/go-dldprompt/internal/generation"
	"github.com/ahrav/go-dldprompt/internal/orchestrator"
	"github.com/ahrav/go-dldprompt/internal/quality"
	"github.com/ahrav/go-dldprompt/internal/transform"
	"github.com/ahrav/go-dldprompt/internal/validation"
)

// ErrInvalidConfig indicates the loaded configuration failed validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Knowledge backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Defaults.
const (
	DefaultTransformTimeout = 30 * time.Second
	DefaultTokensPerSecond  = 2.0
	DefaultBurst            = 4
	DefaultCacheTTL         = 24 * time.Hour
	DefaultCachePrefix      = "dldprompt:transform:"
	DefaultRetryAttempts    = 3
	DefaultBreakerFailures  = 5
	DefaultRedisAddr        = "localhost:6379"
	DefaultRedisPrefix      = "dldprompt:"
	DefaultTemporalHost     = "localhost:7233"
	DefaultTemporalNS       = "default"
	DefaultTaskQueue        = "dldprompt"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
)

// TransformConfig selects the external prompt transformer.
type TransformConfig struct {
	Provider        string        `koanf:"provider"          validate:"oneof=stub openai"`
	Model           string        `koanf:"model"`
	APIKey          string        `koanf:"api_key"`
	BaseURL         string        `koanf:"base_url"          validate:"omitempty,url"`
	Temperature     float64       `koanf:"temperature"       validate:"gte=0,lte=2"`
	Timeout         time.Duration `koanf:"timeout"           validate:"gt=0"`
	TokensPerSecond float64       `koanf:"tokens_per_second" validate:"gte=0"`
	Burst           int           `koanf:"burst"             validate:"gte=0"`
	RedactPrompts   bool          `koanf:"redact_prompts"`
	Cache           CacheConfig   `koanf:"cache"`
	Retry           RetryConfig   `koanf:"retry"`
	Breaker         BreakerConfig `koanf:"breaker"`
}

// RetryConfig retries rate-limited and unavailable-provider calls in place.
type RetryConfig struct {
	MaxAttempts     int           `koanf:"max_attempts"     validate:"gte=0,lte=10"`
	InitialInterval time.Duration `koanf:"initial_interval" validate:"gte=0"`
	MaxInterval     time.Duration `koanf:"max_interval"     validate:"gte=0"`
	Multiplier      float64       `koanf:"multiplier"       validate:"gte=1"`
	Jitter          bool          `koanf:"jitter"`
}

// BreakerConfig opens a circuit after consecutive provider failures.
// FailureThreshold 0 disables the breaker.
type BreakerConfig struct {
	FailureThreshold int           `koanf:"failure_threshold" validate:"gte=0"`
	SuccessThreshold int           `koanf:"success_threshold" validate:"gte=0"`
	OpenTimeout      time.Duration `koanf:"open_timeout"      validate:"gte=0"`
	HalfOpenProbes   int           `koanf:"half_open_probes"  validate:"gte=0"`
}

// CacheConfig enables the Redis-backed transform response cache.
type CacheConfig struct {
	Enabled bool          `koanf:"enabled"`
	TTL     time.Duration `koanf:"ttl"     validate:"gte=0"`
	Prefix  string        `koanf:"prefix"`
}

// RedisConfig addresses a Redis server.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"     validate:"gte=0"`
	Prefix   string `koanf:"prefix"`
}

// KnowledgeConfig selects the knowledge store backend.
type KnowledgeConfig struct {
	Backend string `koanf:"backend" validate:"oneof=memory redis"`
	// SeedFile replaces the embedded seed when set.
	SeedFile string      `koanf:"seed_file"`
	Redis    RedisConfig `koanf:"redis"`
}

// TemporalConfig addresses the Temporal frontend.
type TemporalConfig struct {
	HostPort  string `koanf:"host_port"  validate:"required"`
	Namespace string `koanf:"namespace"  validate:"required"`
	TaskQueue string `koanf:"task_queue" validate:"required"`
}

// ObservabilityConfig controls logging and the metrics endpoint.
type ObservabilityConfig struct {
	LogLevel  string `koanf:"log_level"  validate:"oneof=debug info warn error"`
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`
	// MetricsAddr serves /metrics when non-empty, e.g. ":9090".
	MetricsAddr string `koanf:"metrics_addr"`
}

// Config is the full process configuration.
type Config struct {
	Pipeline      orchestrator.Config `koanf:"pipeline"`
	Quality       quality.Config      `koanf:"quality"`
	Validation    validation.Config   `koanf:"validation"`
	Generation    generation.Config   `koanf:"generation"`
	Transform     TransformConfig     `koanf:"transform"`
	Knowledge     KnowledgeConfig     `koanf:"knowledge"`
	Feedback      feedback.Config     `koanf:"feedback"`
	Temporal      TemporalConfig      `koanf:"temporal"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		Pipeline:   orchestrator.DefaultConfig(),
		Quality:    quality.DefaultConfig(),
		Validation: validation.DefaultConfig(),
		Generation: generation.DefaultConfig(),
		Transform: TransformConfig{
			Provider:        transform.ProviderStub,
			Timeout:         DefaultTransformTimeout,
			TokensPerSecond: DefaultTokensPerSecond,
			Burst:           DefaultBurst,
			Cache:           CacheConfig{TTL: DefaultCacheTTL, Prefix: DefaultCachePrefix},
			Retry: RetryConfig{
				MaxAttempts:     DefaultRetryAttempts,
				InitialInterval: transform.DefaultRetryInitial,
				MaxInterval:     transform.DefaultRetryMax,
				Multiplier:      transform.DefaultRetryMultiplier,
				Jitter:          true,
			},
			Breaker: BreakerConfig{
				FailureThreshold: DefaultBreakerFailures,
				SuccessThreshold: transform.DefaultSuccessThreshold,
				OpenTimeout:      transform.DefaultOpenTimeout,
				HalfOpenProbes:   transform.DefaultHalfOpenProbes,
			},
		},
		Knowledge: KnowledgeConfig{
			Backend: BackendMemory,
			Redis:   RedisConfig{Addr: DefaultRedisAddr, Prefix: DefaultRedisPrefix},
		},
		Feedback: feedback.DefaultConfig(),
		Temporal: TemporalConfig{
			HostPort:  DefaultTemporalHost,
			Namespace: DefaultTemporalNS,
			TaskQueue: DefaultTaskQueue,
		},
		Observability: ObservabilityConfig{LogLevel: DefaultLogLevel, LogFormat: DefaultLogFormat},
	}
}

// Settings returns the phase configuration for orchestrator.Build.
func (c *Config) Settings() orchestrator.Settings {
	return orchestrator.Settings{
		Run:        c.Pipeline,
		Validation: c.Validation,
		Generation: c.Generation,
		Quality:    c.Quality,
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := domain.ValidateStruct(c.Transform); err != nil {
		return fmt.Errorf("%w: transform: %w", ErrInvalidConfig, err)
	}
	if c.Transform.Provider == transform.ProviderOpenAI && c.Transform.APIKey == "" {
		return fmt.Errorf("%w: transform: %w", ErrInvalidConfig, transform.ErrMissingAPIKey)
	}
	if c.Transform.Cache.Enabled && c.Knowledge.Redis.Addr == "" {
		return fmt.Errorf("%w: transform cache requires knowledge.redis.addr", ErrInvalidConfig)
	}
	if err := domain.ValidateStruct(c.Knowledge); err != nil {
		return fmt.Errorf("%w: knowledge: %w", ErrInvalidConfig, err)
	}
	if c.Knowledge.Backend == BackendRedis && c.Knowledge.Redis.Addr == "" {
		return fmt.Errorf("%w: knowledge.redis.addr is required for the redis backend", ErrInvalidConfig)
	}
	if err := domain.ValidateStruct(c.Temporal); err != nil {
		return fmt.Errorf("%w: temporal: %w", ErrInvalidConfig, err)
	}
	if err := domain.ValidateStruct(c.Observability); err != nil {
		return fmt.Errorf("%w: observability: %w", ErrInvalidConfig, err)
	}

	checks := []struct {
		name string
		fn   func() error
	}{
		{"pipeline", c.Pipeline.Validate},
		{"quality", c.Quality.Validate},
		{"validation", c.Validation.Validate},
		{"generation", c.Generation.Validate},
		{"feedback", c.Feedback.Validate},
	}
	for _, chk := range checks {
		if err := chk.fn(); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, chk.name, err)
		}
	}
	return nil
}
