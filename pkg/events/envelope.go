// Package events defines the envelope and sink used to publish pipeline
// events to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the envelope schema version written by this module.
const SchemaVersion = "1.0.0"

// Event types.
const (
	TypeRunRecorded = "feedback.run_recorded"
)

// Envelope wraps an event payload with routing and idempotency metadata.
type Envelope struct {
	// ID uniquely identifies this emission.
	ID string `json:"id"`

	// Type routes the event, e.g. "feedback.run_recorded".
	Type string `json:"type"`

	// Source names the emitting component.
	Source string `json:"source"`

	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`

	// IdempotencyKey lets sinks drop duplicate emissions of the same event.
	// For run events it is the pipeline run id.
	IdempotencyKey string `json:"idempotency_key"`

	// WorkflowID and RunID are set when the event originates inside a
	// Temporal execution.
	WorkflowID string `json:"workflow_id,omitempty"`
	RunID      string `json:"run_id,omitempty"`

	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload into a new envelope.
func NewEnvelope(typ, source, idempotencyKey string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return Envelope{
		ID:             uuid.NewString(),
		Type:           typ,
		Source:         source,
		Version:        SchemaVersion,
		Timestamp:      time.Now().UTC(),
		IdempotencyKey: idempotencyKey,
		Payload:        raw,
	}, nil
}

// EventSink receives envelopes. Append should return quickly; callers treat
// failures as best-effort and never fail their primary operation on them.
type EventSink interface {
	Append(ctx context.Context, envelope Envelope) error
}

// NoOpEventSink discards every event.
type NoOpEventSink struct{}

// Append implements EventSink.
func (n *NoOpEventSink) Append(_ context.Context, _ Envelope) error { return nil }

// NewNoOpEventSink creates a sink that discards events.
func NewNoOpEventSink() EventSink { return &NoOpEventSink{} }

// LogEventSink writes each envelope as a structured log line.
type LogEventSink struct {
	logger *slog.Logger
}

// NewLogEventSink creates a sink that logs to logger, or slog.Default when nil.
func NewLogEventSink(logger *slog.Logger) *LogEventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEventSink{logger: logger}
}

// Append implements EventSink.
func (s *LogEventSink) Append(ctx context.Context, e Envelope) error {
	s.logger.InfoContext(ctx, "event",
		"id", e.ID,
		"type", e.Type,
		"source", e.Source,
		"idempotency_key", e.IdempotencyKey,
		"payload", string(e.Payload))
	return nil
}

// MemorySink keeps envelopes in memory and drops duplicates by idempotency
// key. It is safe for concurrent use.
type MemorySink struct {
	mu     sync.Mutex
	seen   map[string]struct{}
	events []Envelope
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{seen: make(map[string]struct{})}
}

// Append implements EventSink.
func (s *MemorySink) Append(_ context.Context, e Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := e.Type + "/" + e.IdempotencyKey
	if _, dup := s.seen[key]; dup && e.IdempotencyKey != "" {
		return nil
	}
	s.seen[key] = struct{}{}
	s.events = append(s.events, e)
	return nil
}

// Events returns a copy of the stored envelopes in append order.
func (s *MemorySink) Events() []Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Envelope(nil), s.events...)
}
