package workflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/ahrav/go-dldprompt/internal/domain"
	"github.com/ahrav/go-dldprompt/internal/feedback"
	"github.com/ahrav/go-dldprompt/internal/knowledge"
	"github.com/ahrav/go-dldprompt/internal/orchestrator"
	"github.com/ahrav/go-dldprompt/internal/transform"
	pkgactivity "github.com/ahrav/go-dldprompt/pkg/activity"
	"github.com/ahrav/go-dldprompt/pkg/events"
)

func runRequest() domain.RunRequest {
	return domain.RunRequest{Document: domain.Document{
		Name: "upf-selector",
		Sections: []domain.Section{
			{Title: "Architecture", Kind: domain.SectionNarrative,
				Body: "The SMF selects a UPF for each PDU session over N4."},
			{Title: "Functional Requirements", Kind: domain.SectionRequirement,
				Body: "The selector shall pick the UPF with the lowest load.\nSelection latency must stay below 5 ms."},
			{Title: "Interfaces", Kind: domain.SectionInterfaceSpec,
				Body: "N4 carries PFCP session establishment between SMF and UPF."},
			{Title: "Acceptance Criteria", Kind: domain.SectionRequirement,
				Body: "Selection completes in at most 5 ms for 1000 sessions."},
		},
	}}
}

func queryStatus(t *testing.T, env *testsuite.TestWorkflowEnvironment) Status {
	t.Helper()
	v, err := env.QueryWorkflow(QueryStatus)
	require.NoError(t, err)
	var s Status
	require.NoError(t, v.Get(&s))
	return s
}

func TestPromptWorkflow_RunsPipeline(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := knowledge.NewInMemoryStore()
	entries, err := knowledge.DefaultSeed()
	require.NoError(t, err)
	require.NoError(t, knowledge.Seed(context.Background(), store, entries))

	sink := events.NewMemorySink()
	rec, err := feedback.NewRecorder(store, sink, feedback.DefaultConfig(), logger, nil)
	require.NoError(t, err)
	orch, err := orchestrator.Build(orchestrator.DefaultSettings(), store, rec, transform.Stub{}, logger, nil)
	require.NoError(t, err)
	acts := orchestrator.NewActivities(pkgactivity.NewBaseActivities(sink), orch)

	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterActivityWithOptions(acts.RunPipeline, activity.RegisterOptions{Name: orchestrator.RunPipelineActivity})

	env.ExecuteWorkflow(PromptWorkflow, runRequest())
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var res domain.RunResult
	require.NoError(t, env.GetWorkflowResult(&res))
	assert.NotEmpty(t, res.Code)
	assert.Equal(t, res.Code, res.Record.Code)

	id, err := uuid.Parse(res.RunID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), id.Version(), "run id is derived from the workflow execution")

	status := queryStatus(t, env)
	assert.Equal(t, PhaseCompleted, status.Phase)
	assert.Equal(t, res.Code, status.Code)
	assert.Equal(t, res.RetryCount, status.RetryCount)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, rec.Close(ctx))
	records := store.Records()
	require.Len(t, records, 1)
	assert.Equal(t, res.RunID, records[0].RunID)
}

func TestPromptWorkflow_InvalidRequest(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	var calls atomic.Int32
	env.RegisterActivityWithOptions(func(context.Context, domain.RunRequest) (domain.RunResult, error) {
		calls.Add(1)
		return domain.RunResult{}, nil
	}, activity.RegisterOptions{Name: orchestrator.RunPipelineActivity})

	env.ExecuteWorkflow(PromptWorkflow, domain.RunRequest{})
	require.True(t, env.IsWorkflowCompleted())

	err := env.GetWorkflowError()
	require.Error(t, err)
	var appErr *temporal.ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, ErrTypeValidation, appErr.Type())
	assert.True(t, appErr.NonRetryable())
	assert.Zero(t, calls.Load(), "activity is never scheduled")
	assert.Equal(t, PhaseFailed, queryStatus(t, env).Phase)
}

func TestPromptWorkflow_LifecycleFailureIsAResult(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	want := domain.RunResult{
		RunID:   "run-1",
		Outcome: domain.OutcomeRejected,
		Code:    domain.CodeValidationBlocked,
	}
	env.RegisterActivityWithOptions(func(context.Context, domain.RunRequest) (domain.RunResult, error) {
		return want, nil
	}, activity.RegisterOptions{Name: orchestrator.RunPipelineActivity})

	env.ExecuteWorkflow(PromptWorkflow, runRequest())
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var got domain.RunResult
	require.NoError(t, env.GetWorkflowResult(&got))
	assert.Equal(t, domain.CodeValidationBlocked, got.Code)
	assert.Equal(t, domain.OutcomeRejected, got.Outcome)
}

func TestPromptWorkflow_ActivityRetries(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCalls int32
	}{
		{"transient failure is retried", errors.New("worker lost"), DefaultMaxAttempts},
		{"invalid request is not retried",
			temporal.NewApplicationError("bad request", orchestrator.ErrTypeInvalidRequest), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var suite testsuite.WorkflowTestSuite
			env := suite.NewTestWorkflowEnvironment()

			var calls atomic.Int32
			env.RegisterActivityWithOptions(func(context.Context, domain.RunRequest) (domain.RunResult, error) {
				calls.Add(1)
				return domain.RunResult{}, tt.err
			}, activity.RegisterOptions{Name: orchestrator.RunPipelineActivity})

			env.ExecuteWorkflow(PromptWorkflow, runRequest())
			require.True(t, env.IsWorkflowCompleted())
			require.Error(t, env.GetWorkflowError())
			assert.Equal(t, tt.wantCalls, calls.Load())
			assert.Equal(t, PhaseFailed, queryStatus(t, env).Phase)
		})
	}
}

func TestPromptWorkflow_Deterministic(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	fixed := domain.RunResult{RunID: "run-1", Outcome: domain.OutcomeAccepted, Code: domain.CodeAccepted, Composite: 0.85}

	var results []domain.RunResult
	for range 3 {
		env := suite.NewTestWorkflowEnvironment()
		env.RegisterActivityWithOptions(func(context.Context, domain.RunRequest) (domain.RunResult, error) {
			return fixed, nil
		}, activity.RegisterOptions{Name: orchestrator.RunPipelineActivity})
		env.ExecuteWorkflow(PromptWorkflow, runRequest())
		require.NoError(t, env.GetWorkflowError())

		var got domain.RunResult
		require.NoError(t, env.GetWorkflowResult(&got))
		results = append(results, got)
	}
	for i := 1; i < len(results); i++ {
		assert.Equal(t, results[0], results[i], "execution %d", i)
	}
}
