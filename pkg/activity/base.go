// Package activity holds the helpers shared by Temporal activity
// implementations: execution context lookup, logging that tolerates
// non-activity contexts, heartbeats and best-effort event emission.
package activity

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/ahrav/go-dldprompt/pkg/events"
)

// Event emission retry policy.
const (
	emitAttempts   = 2
	emitRetryDelay = 200 * time.Millisecond
)

// LocalWorkflowID is reported when code runs outside a Temporal activity.
const LocalWorkflowID = "local"

// WorkflowContext is the execution metadata of the current activity.
type WorkflowContext struct {
	WorkflowID string
	RunID      string
	ActivityID string
	Attempt    int32
}

// BaseActivities is embedded by activity structs.
type BaseActivities struct {
	eventSink events.EventSink
}

// NewBaseActivities creates a BaseActivities. sink may be nil.
func NewBaseActivities(sink events.EventSink) BaseActivities {
	return BaseActivities{eventSink: sink}
}

// GetWorkflowContext returns the activity's execution metadata, or
// LocalWorkflowID values when ctx is not an activity context.
func (b *BaseActivities) GetWorkflowContext(ctx context.Context) WorkflowContext {
	return WorkflowContextFrom(ctx)
}

// WorkflowContextFrom is GetWorkflowContext without a receiver.
// activity.GetInfo panics outside an activity context.
func WorkflowContextFrom(ctx context.Context) (wfCtx WorkflowContext) {
	defer func() {
		if recover() != nil {
			wfCtx = WorkflowContext{WorkflowID: LocalWorkflowID, RunID: LocalWorkflowID, ActivityID: LocalWorkflowID}
		}
	}()
	info := activity.GetInfo(ctx)
	return WorkflowContext{
		WorkflowID: info.WorkflowExecution.ID,
		RunID:      info.WorkflowExecution.RunID,
		ActivityID: info.ActivityID,
		Attempt:    info.Attempt,
	}
}

// EmitEventSafe appends envelope to the sink, retrying once after a short
// delay. Failures are logged and never returned.
func (b *BaseActivities) EmitEventSafe(ctx context.Context, envelope events.Envelope, description string) {
	if b.eventSink == nil {
		return
	}
	wf := WorkflowContextFrom(ctx)
	if envelope.WorkflowID == "" && wf.WorkflowID != LocalWorkflowID {
		envelope.WorkflowID, envelope.RunID = wf.WorkflowID, wf.RunID
	}

	var lastErr error
	for attempt := range emitAttempts {
		if attempt > 0 {
			select {
			case <-time.After(emitRetryDelay):
			case <-ctx.Done():
				SafeLogError(ctx, fmt.Sprintf("event emission cancelled: %s", description),
					"event_type", envelope.Type)
				return
			}
		}
		if err := b.eventSink.Append(ctx, envelope); err != nil {
			lastErr = err
			continue
		}
		SafeLog(ctx, fmt.Sprintf("event emitted: %s", description),
			"event_type", envelope.Type,
			"idempotency_key", envelope.IdempotencyKey)
		return
	}
	SafeLogError(ctx, fmt.Sprintf("failed to emit %s after %d attempts", description, emitAttempts),
		"event_type", envelope.Type,
		"error", lastErr)
}

// RecordHeartbeat records a heartbeat; a no-op outside an activity.
func (b *BaseActivities) RecordHeartbeat(ctx context.Context, details ...any) {
	RecordHeartbeat(ctx, details...)
}

// SafeLog logs at info level through the activity logger. Outside an
// activity context the call is dropped.
func SafeLog(ctx context.Context, msg string, keyvals ...any) {
	defer func() { _ = recover() }()
	activity.GetLogger(ctx).Info(msg, keyvals...)
}

// SafeLogError is SafeLog at error level.
func SafeLogError(ctx context.Context, msg string, keyvals ...any) {
	defer func() { _ = recover() }()
	activity.GetLogger(ctx).Error(msg, keyvals...)
}

// RecordHeartbeat records an activity heartbeat with details.
func RecordHeartbeat(ctx context.Context, details ...any) {
	defer func() { _ = recover() }()
	activity.RecordHeartbeat(ctx, details...)
}
