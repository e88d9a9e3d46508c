package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-dldprompt/internal/domain"
	"github.com/ahrav/go-dldprompt/internal/knowledge"
	"github.com/ahrav/go-dldprompt/pkg/events"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// scriptedAppender fails the first failFirst calls, optionally blocking on
// gate before each call.
type scriptedAppender struct {
	failFirst int32
	calls     atomic.Int32
	gate      chan struct{}

	mu      sync.Mutex
	records []domain.RunRecord
}

var errStoreDown = fmt.Errorf("%w: connection refused", knowledge.ErrUnavailable)

func (a *scriptedAppender) Append(ctx context.Context, rec domain.RunRecord) error {
	if a.gate != nil {
		select {
		case <-a.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if a.calls.Add(1) <= a.failFirst {
		return errStoreDown
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
	return nil
}

func (a *scriptedAppender) stored() []domain.RunRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.RunRecord(nil), a.records...)
}

func testConfig() Config {
	return Config{Concurrency: 2, Attempts: 3, RetryDelay: time.Millisecond, Timeout: time.Second}
}

func record(id string) domain.RunRecord {
	return domain.RunRecord{
		RunID:       id,
		Fingerprint: "fp-" + id,
		Outcome:     domain.OutcomeAccepted,
		Code:        domain.CodeAccepted,
		Score:       domain.QualityScore{Composite: 0.85},
		RetryCount:  1,
		CreatedAt:   time.Unix(1700000000, 0).UTC(),
	}
}

func drain(t *testing.T, r *Recorder) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Close(ctx))
}

func TestRecorder_PersistsAndEmits(t *testing.T) {
	store := knowledge.NewInMemoryStore()
	sink := events.NewMemorySink()
	r, err := NewRecorder(store, sink, testConfig(), quietLogger(), nil)
	require.NoError(t, err)

	require.NoError(t, r.Record(context.Background(), record("run-1")))
	drain(t, r)

	require.Equal(t, 1, store.Len())
	assert.Equal(t, "run-1", store.Records()[0].RunID)

	evs := sink.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, events.TypeRunRecorded, evs[0].Type)
	assert.Equal(t, "run-1", evs[0].IdempotencyKey)
	assert.Equal(t, EventSource, evs[0].Source)

	var payload RunRecorded
	require.NoError(t, json.Unmarshal(evs[0].Payload, &payload))
	assert.Equal(t, domain.OutcomeAccepted, payload.Outcome)
	assert.InDelta(t, 0.85, payload.Composite, 1e-9)
	assert.Equal(t, 1, payload.RetryCount)
}

func TestRecorder_RepeatedRunIsStoredOnce(t *testing.T) {
	store := knowledge.NewInMemoryStore()
	r, err := NewRecorder(store, events.NewMemorySink(), testConfig(), quietLogger(), nil)
	require.NoError(t, err)

	require.NoError(t, r.Record(context.Background(), record("run-1")))
	require.NoError(t, r.Record(context.Background(), record("run-1")))
	drain(t, r)

	assert.Equal(t, 1, store.Len())
}

func TestRecorder_ReturnsBeforePersistence(t *testing.T) {
	store := &scriptedAppender{gate: make(chan struct{})}
	r, err := NewRecorder(store, nil, testConfig(), quietLogger(), nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- r.Record(context.Background(), record("run-1")) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a slow store")
	}
	assert.Empty(t, store.stored())

	close(store.gate)
	drain(t, r)
	assert.Len(t, store.stored(), 1)
}

func TestRecorder_RetriesTransientFailure(t *testing.T) {
	store := &scriptedAppender{failFirst: 2}
	r, err := NewRecorder(store, nil, testConfig(), quietLogger(), nil)
	require.NoError(t, err)

	require.NoError(t, r.Record(context.Background(), record("run-1")))
	drain(t, r)

	assert.Equal(t, int32(3), store.calls.Load())
	assert.Len(t, store.stored(), 1)
	assert.Zero(t, r.Failures())
}

func TestRecorder_SwallowsPersistentFailure(t *testing.T) {
	store := &scriptedAppender{failFirst: 100}
	sink := events.NewMemorySink()
	r, err := NewRecorder(store, sink, testConfig(), quietLogger(), nil)
	require.NoError(t, err)

	require.NoError(t, r.Record(context.Background(), record("run-1")))
	drain(t, r)

	assert.Equal(t, int32(3), store.calls.Load())
	assert.Equal(t, int64(1), r.Failures())
	assert.Empty(t, sink.Events())
}

func TestRecorder_InvalidRecordIsNotRetried(t *testing.T) {
	store := knowledge.NewInMemoryStore()
	r, err := NewRecorder(store, nil, testConfig(), quietLogger(), nil)
	require.NoError(t, err)

	require.NoError(t, r.Record(context.Background(), domain.RunRecord{RunID: "run-1"}))
	drain(t, r)

	assert.Zero(t, store.Len())
	assert.Equal(t, int64(1), r.Failures())
}

func TestRecorder_CancelledCallerStillPersists(t *testing.T) {
	store := knowledge.NewInMemoryStore()
	r, err := NewRecorder(store, nil, testConfig(), quietLogger(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := record("run-1")
	rec.Outcome, rec.Code = domain.OutcomeErrored, domain.CodeCancelled
	require.NoError(t, r.Record(ctx, rec))
	drain(t, r)

	require.Equal(t, 1, store.Len())
	assert.Equal(t, domain.CodeCancelled, store.Records()[0].Code)
}

func TestRecorder_ConcurrentRecords(t *testing.T) {
	store := knowledge.NewInMemoryStore()
	r, err := NewRecorder(store, nil, testConfig(), quietLogger(), nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, r.Record(context.Background(), record(fmt.Sprintf("run-%d", i))))
		}()
	}
	wg.Wait()
	drain(t, r)
	assert.Equal(t, 20, store.Len())
}

func TestRecorder_RecordAfterClose(t *testing.T) {
	r, err := NewRecorder(knowledge.NewInMemoryStore(), nil, testConfig(), quietLogger(), nil)
	require.NoError(t, err)
	drain(t, r)

	err = r.Record(context.Background(), record("late"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRecorder_CloseHonorsDeadline(t *testing.T) {
	store := &scriptedAppender{gate: make(chan struct{})}
	r, err := NewRecorder(store, nil, testConfig(), quietLogger(), nil)
	require.NoError(t, err)
	require.NoError(t, r.Record(context.Background(), record("run-1")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = r.Close(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	close(store.gate)
	drain(t, r)
}

func TestNewRecorder_Validation(t *testing.T) {
	_, err := NewRecorder(nil, nil, DefaultConfig(), nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg := DefaultConfig()
	cfg.Concurrency = 0
	_, err = NewRecorder(knowledge.NewInMemoryStore(), nil, cfg, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
