// Package worker wires the pipeline runtime from configuration and
// registers it with a Temporal worker. The CLI uses the same runtime for
// local runs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/ahrav/go-dldprompt/internal/config"
	"github.com/ahrav/go-dldprompt/internal/feedback"
	"github.com/ahrav/go-dldprompt/internal/knowledge"
	"github.com/ahrav/go-dldprompt/internal/metrics"
	"github.com/ahrav/go-dldprompt/internal/orchestrator"
	"github.com/ahrav/go-dldprompt/internal/transform"
	"github.com/ahrav/go-dldprompt/pkg/activity"
	"github.com/ahrav/go-dldprompt/pkg/events"
)

// Runtime holds every long-lived component of a pipeline process.
type Runtime struct {
	Config       *config.Config
	Logger       *slog.Logger
	Metrics      metrics.Metrics
	Store        knowledge.Store
	Events       events.EventSink
	Recorder     *feedback.Recorder
	Transformer  transform.Transformer
	Orchestrator *orchestrator.Orchestrator

	redis *redis.Client
}

// NewRuntime builds the runtime described by cfg. The knowledge store is
// seeded before the orchestrator is created. Call Close to flush pending
// feedback writes.
func NewRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger, m metrics.Metrics) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m = metrics.OrNoOp(m)
	rt := &Runtime{Config: cfg, Logger: logger, Metrics: m}

	if cfg.Knowledge.Backend == config.BackendRedis || cfg.Transform.Cache.Enabled {
		rt.redis = redis.NewClient(cfg.RedisOptions())
	}

	store, err := InitializeKnowledgeStore(ctx, cfg, rt.redisClient())
	if err != nil {
		rt.closeRedis()
		return nil, err
	}
	rt.Store = store

	tr, err := InitializeTransformer(cfg, logger, m, rt.redisClient())
	if err != nil {
		rt.closeRedis()
		return nil, err
	}
	rt.Transformer = tr

	rt.Events = events.NewLogEventSink(logger.With("component", "events"))
	rec, err := feedback.NewRecorder(store, rt.Events, cfg.Feedback, logger, m)
	if err != nil {
		rt.closeRedis()
		return nil, fmt.Errorf("feedback recorder: %w", err)
	}
	rt.Recorder = rec

	orch, err := orchestrator.Build(cfg.Settings(), store, rec, tr, logger, m)
	if err != nil {
		rt.closeRedis()
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	rt.Orchestrator = orch
	return rt, nil
}

// Activities returns the Temporal activity set for the runtime.
func (rt *Runtime) Activities() *orchestrator.Activities {
	return orchestrator.NewActivities(activity.NewBaseActivities(rt.Events), rt.Orchestrator)
}

// Close waits for pending feedback writes, bounded by ctx, and releases
// the Redis connection.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.Recorder != nil {
		if err := rt.Recorder.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close recorder: %w", err))
		}
	}
	if err := rt.closeRedis(); err != nil {
		errs = append(errs, fmt.Errorf("close redis: %w", err))
	}
	return errors.Join(errs...)
}

// redisClient keeps a nil client a nil interface.
func (rt *Runtime) redisClient() redis.UniversalClient {
	if rt.redis == nil {
		return nil
	}
	return rt.redis
}

func (rt *Runtime) closeRedis() error {
	if rt.redis == nil {
		return nil
	}
	err := rt.redis.Close()
	rt.redis = nil
	return err
}

// InitializeKnowledgeStore opens the configured backend and seeds it from
// knowledge.seed_file, or the built-in seed when unset.
func InitializeKnowledgeStore(ctx context.Context, cfg *config.Config, client redis.UniversalClient) (knowledge.Store, error) {
	var store knowledge.Store
	switch cfg.Knowledge.Backend {
	case config.BackendRedis:
		if client == nil {
			return nil, fmt.Errorf("%w: redis backend without a client", config.ErrInvalidConfig)
		}
		rs := knowledge.NewRedisStore(client, cfg.Knowledge.Redis.Prefix)
		if err := rs.Ping(ctx); err != nil {
			return nil, err
		}
		store = rs
	default:
		store = knowledge.NewInMemoryStore()
	}

	entries, err := LoadSeedEntries(cfg.Knowledge.SeedFile)
	if err != nil {
		return nil, err
	}
	if err := knowledge.Seed(ctx, store, entries); err != nil {
		return nil, fmt.Errorf("seed knowledge store: %w", err)
	}
	return store, nil
}

// LoadSeedEntries reads a YAML seed file, or returns the built-in seed when
// path is empty.
func LoadSeedEntries(path string) ([]knowledge.Entry, error) {
	if path == "" {
		return knowledge.DefaultSeed()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	entries, err := knowledge.LoadSeed(f)
	if err != nil {
		return nil, fmt.Errorf("load seed file %s: %w", path, err)
	}
	return entries, nil
}

// InitializeTransformer builds the configured transformer and its
// middleware chain. client backs the response cache when enabled.
func InitializeTransformer(cfg *config.Config, logger *slog.Logger, m metrics.Metrics, client redis.UniversalClient) (transform.Transformer, error) {
	tr, err := transform.Build(cfg.TransformOptions(logger, m, client))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize transformer: %w", err)
	}
	return tr, nil
}
