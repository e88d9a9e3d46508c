package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/ahrav/go-dldprompt/internal/domain"
	"github.com/ahrav/go-dldprompt/internal/orchestrator"
)

// QueryStatus is the query type answered by PromptWorkflow.
const QueryStatus = "status"

// Error types raised by the workflow.
const (
	ErrTypeValidation = "Validation"
)

// Workflow phases reported by QueryStatus.
const (
	PhaseScheduled = "scheduled"
	PhaseRunning   = "running"
	PhaseCompleted = "completed"
	PhaseFailed    = "failed"
)

// Activity defaults. The pipeline bounds its own transformer calls, so the
// start-to-close timeout covers a full run with every retry.
const (
	DefaultRunTimeout  = 10 * time.Minute
	DefaultMaxAttempts = 3
)

// Status is the answer to QueryStatus.
type Status struct {
	Phase      string            `json:"phase"`
	Code       domain.ResultCode `json:"code,omitempty"`
	Composite  float64           `json:"composite,omitempty"`
	RetryCount int               `json:"retry_count,omitempty"`
}

// PromptWorkflow runs one design document through the pipeline and returns
// the run result. Lifecycle failures such as ValidationBlocked or
// QualityRejected are results, not workflow errors; the workflow fails only
// when the request is malformed or the activity exhausts its retries.
func PromptWorkflow(ctx workflow.Context, req domain.RunRequest) (domain.RunResult, error) {
	const currentVersion = 1
	_ = workflow.GetVersion(ctx, "prompt.v", workflow.DefaultVersion, currentVersion)

	status := Status{Phase: PhaseScheduled}
	if err := workflow.SetQueryHandler(ctx, QueryStatus, func() (Status, error) {
		return status, nil
	}); err != nil {
		return domain.RunResult{}, err
	}

	if err := req.Validate(); err != nil {
		status.Phase = PhaseFailed
		return domain.RunResult{}, temporal.NewNonRetryableApplicationError(
			"invalid run request", ErrTypeValidation, err)
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: DefaultRunTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        time.Minute,
			MaximumAttempts:        DefaultMaxAttempts,
			NonRetryableErrorTypes: []string{orchestrator.ErrTypeInvalidRequest},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	status.Phase = PhaseRunning
	var res domain.RunResult
	if err := workflow.ExecuteActivity(ctx, orchestrator.RunPipelineActivity, req).Get(ctx, &res); err != nil {
		status.Phase = PhaseFailed
		return domain.RunResult{}, err
	}

	status = Status{
		Phase:      PhaseCompleted,
		Code:       res.Code,
		Composite:  res.Composite,
		RetryCount: res.RetryCount,
	}
	workflow.GetLogger(ctx).Info("prompt run completed",
		"run_id", res.RunID,
		"code", res.Code,
		"composite", res.Composite)
	return res, nil
}
