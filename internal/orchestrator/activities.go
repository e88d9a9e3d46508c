package orchestrator

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"

	"github.com/ahrav/go-dldprompt/internal/domain"
	"github.com/ahrav/go-dldprompt/pkg/activity"
)

// RunPipelineActivity is the registered name of Activities.RunPipeline.
const RunPipelineActivity = "RunPipeline"

// Error types reported to Temporal.
const (
	ErrTypeInvalidRequest = "InvalidRequest"
	ErrTypeRunFailed      = "RunFailed"
)

// Activities exposes the orchestrator as a Temporal activity.
type Activities struct {
	activity.BaseActivities
	orch *Orchestrator
}

// NewActivities creates the activity set around o.
func NewActivities(base activity.BaseActivities, o *Orchestrator) *Activities {
	return &Activities{BaseActivities: base, orch: o}
}

// RunPipeline runs one document. The run id is derived from the workflow
// execution when the request has none, so an activity retry of the same
// execution reports under the same id.
//
// Lifecycle failures are part of the result, not errors: the activity only
// fails for malformed requests, and those are not retried.
func (a *Activities) RunPipeline(ctx context.Context, req domain.RunRequest) (domain.RunResult, error) {
	wf := a.GetWorkflowContext(ctx)
	if req.RunID == "" && wf.WorkflowID != activity.LocalWorkflowID {
		req.RunID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(wf.WorkflowID+"/"+wf.RunID)).String()
	}
	activity.SafeLog(ctx, "pipeline run starting",
		"workflow_id", wf.WorkflowID,
		"run_id", req.RunID,
		"attempt", wf.Attempt)
	a.RecordHeartbeat(ctx, "running")

	res, err := a.orch.Run(ctx, req)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRequest) {
			return domain.RunResult{}, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidRequest, err)
		}
		return domain.RunResult{}, temporal.NewApplicationError(err.Error(), ErrTypeRunFailed, err)
	}

	activity.SafeLog(ctx, "pipeline run finished",
		"run_id", res.RunID,
		"code", res.Code,
		"composite", res.Composite,
		"retries", res.RetryCount)
	return res, nil
}
