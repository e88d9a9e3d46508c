// Package feedback persists run records to the knowledge store in the
// background. Callers hand a record over and return immediately; write
// failures are retried a bounded number of times, then logged and counted.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ahrav/go-dldprompt/internal/domain"
	"github.com/ahrav/go-dldprompt/internal/knowledge"
	"github.com/ahrav/go-dldprompt/internal/metrics"
	"github.com/ahrav/go-dldprompt/pkg/activity"
	"github.com/ahrav/go-dldprompt/pkg/events"
)

// EventSource is the source name on emitted envelopes.
const EventSource = "feedback-recorder"

var (
	// ErrClosed is returned by Record after Close has been called.
	ErrClosed = errors.New("feedback recorder closed")

	// ErrInvalidConfig indicates a malformed recorder configuration.
	ErrInvalidConfig = errors.New("invalid feedback configuration")
)

// Defaults.
const (
	DefaultConcurrency = 4
	DefaultAttempts    = 3
	DefaultRetryDelay  = 100 * time.Millisecond
	DefaultTimeout     = 5 * time.Second
)

// Config bounds background persistence.
type Config struct {
	// Concurrency caps simultaneous store writes.
	Concurrency int `koanf:"concurrency" validate:"gte=1"`
	// Attempts is the number of append tries per record.
	Attempts   int           `koanf:"attempts"    validate:"gte=1"`
	RetryDelay time.Duration `koanf:"retry_delay" validate:"gte=0"`
	// Timeout bounds a single append call.
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// DefaultConfig returns the default recorder settings.
func DefaultConfig() Config {
	return Config{
		Concurrency: DefaultConcurrency,
		Attempts:    DefaultAttempts,
		RetryDelay:  DefaultRetryDelay,
		Timeout:     DefaultTimeout,
	}
}

// Validate checks the limits.
func (c Config) Validate() error {
	if err := domain.ValidateStruct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// RunRecorded is the payload of a feedback.run_recorded event.
type RunRecorded struct {
	RunID       string            `json:"run_id"`
	Fingerprint string            `json:"fingerprint"`
	Outcome     domain.Outcome    `json:"outcome"`
	Code        domain.ResultCode `json:"code"`
	Composite   float64           `json:"composite"`
	RetryCount  int               `json:"retry_count"`
}

// Recorder appends run records asynchronously.
type Recorder struct {
	activity.BaseActivities

	store   knowledge.Appender
	cfg     Config
	logger  *slog.Logger
	metrics metrics.Metrics

	sem      chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
	inFlight atomic.Int64
	failures atomic.Int64
}

// NewRecorder builds a recorder writing to store. sink may be nil.
func NewRecorder(store knowledge.Appender, sink events.EventSink, cfg Config, logger *slog.Logger, m metrics.Metrics) (*Recorder, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		BaseActivities: activity.NewBaseActivities(sink),
		store:          store,
		cfg:            cfg,
		logger:         logger,
		metrics:        metrics.OrNoOp(m),
		sem:            make(chan struct{}, cfg.Concurrency),
	}, nil
}

// Record schedules rec for persistence and returns without waiting. The
// write does not inherit ctx's cancellation: a run that was cancelled still
// has its record persisted.
func (r *Recorder) Record(ctx context.Context, rec domain.RunRecord) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.logger.Warn("feedback record dropped after close", "run_id", rec.RunID)
		return ErrClosed
	}

	r.wg.Add(1)
	r.metrics.SetGauge(metrics.FeedbackInFlight, nil, float64(r.inFlight.Add(1)))
	go func() {
		defer r.wg.Done()
		defer func() {
			r.metrics.SetGauge(metrics.FeedbackInFlight, nil, float64(r.inFlight.Add(-1)))
		}()
		r.persist(context.WithoutCancel(ctx), rec)
	}()
	return nil
}

func (r *Recorder) persist(ctx context.Context, rec domain.RunRecord) {
	r.sem <- struct{}{}
	defer func() { <-r.sem }()

	tags := map[string]string{"outcome": string(rec.Outcome)}
	var lastErr error
	for attempt := range r.cfg.Attempts {
		if attempt > 0 {
			time.Sleep(r.cfg.RetryDelay << (attempt - 1))
		}
		if lastErr = r.appendOnce(ctx, rec); lastErr == nil {
			r.metrics.IncrementCounter(metrics.FeedbackAppends, tags, 1)
			r.logger.Debug("run record persisted", "run_id", rec.RunID, "attempts", attempt+1)
			r.emit(ctx, rec)
			return
		}
		if errors.Is(lastErr, knowledge.ErrInvalidRecord) {
			break
		}
	}

	r.failures.Add(1)
	r.metrics.IncrementCounter(metrics.FeedbackFailures, tags, 1)
	r.logger.Error("run record not persisted",
		"run_id", rec.RunID,
		"fingerprint", rec.Fingerprint,
		"error", lastErr)
}

func (r *Recorder) appendOnce(ctx context.Context, rec domain.RunRecord) (err error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("append panicked: %v", p)
		}
	}()
	return r.store.Append(ctx, rec)
}

func (r *Recorder) emit(ctx context.Context, rec domain.RunRecord) {
	env, err := events.NewEnvelope(events.TypeRunRecorded, EventSource, rec.RunID, RunRecorded{
		RunID:       rec.RunID,
		Fingerprint: rec.Fingerprint,
		Outcome:     rec.Outcome,
		Code:        rec.Code,
		Composite:   rec.Score.Composite,
		RetryCount:  rec.RetryCount,
	})
	if err != nil {
		r.logger.Warn("run event not built", "run_id", rec.RunID, "error", err)
		return
	}
	r.EmitEventSafe(ctx, env, "run recorded")
}

// Failures returns the number of records that could not be persisted.
func (r *Recorder) Failures() int64 { return r.failures.Load() }

// Close stops accepting records and waits for pending writes until ctx ends.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("feedback drain: %w", ctx.Err())
	}
}
