package events

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	e, err := NewEnvelope(TypeRunRecorded, "test", "run-1", map[string]int{"retries": 1})
	require.NoError(t, err)

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, TypeRunRecorded, e.Type)
	assert.Equal(t, SchemaVersion, e.Version)
	assert.Equal(t, "run-1", e.IdempotencyKey)
	assert.False(t, e.Timestamp.IsZero())
	assert.JSONEq(t, `{"retries":1}`, string(e.Payload))

	_, err = NewEnvelope(TypeRunRecorded, "test", "run-2", make(chan int))
	require.Error(t, err)
}

func TestMemorySink_DropsDuplicates(t *testing.T) {
	sink := NewMemorySink()
	ctx := context.Background()

	first, err := NewEnvelope(TypeRunRecorded, "test", "run-1", nil)
	require.NoError(t, err)
	again, err := NewEnvelope(TypeRunRecorded, "test", "run-1", nil)
	require.NoError(t, err)
	other, err := NewEnvelope(TypeRunRecorded, "test", "run-2", nil)
	require.NoError(t, err)

	require.NoError(t, sink.Append(ctx, first))
	require.NoError(t, sink.Append(ctx, again))
	require.NoError(t, sink.Append(ctx, other))

	got := sink.Events()
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, other.ID, got[1].ID)
}

func TestMemorySink_Concurrent(t *testing.T) {
	sink := NewMemorySink()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, _ := NewEnvelope(TypeRunRecorded, "test", string(rune('a'+i%5)), i)
			_ = sink.Append(context.Background(), e)
		}()
	}
	wg.Wait()
	assert.Len(t, sink.Events(), 5)
}

func TestLogEventSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogEventSink(slog.New(slog.NewJSONHandler(&buf, nil)))

	e, err := NewEnvelope(TypeRunRecorded, "test", "run-9", map[string]string{"code": "Accepted"})
	require.NoError(t, err)
	require.NoError(t, sink.Append(context.Background(), e))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, TypeRunRecorded, line["type"])
	assert.Equal(t, "run-9", line["idempotency_key"])

	assert.NoError(t, NewNoOpEventSink().Append(context.Background(), e))
}
