package worker

import (
	"go.temporal.io/sdk/activity"
	sdkworker "go.temporal.io/sdk/worker"

	"github.com/ahrav/go-dldprompt/internal/orchestrator"
	"github.com/ahrav/go-dldprompt/internal/workflow"
)

// Registrar is the part of a Temporal worker used by RegisterAll.
type Registrar interface {
	RegisterWorkflow(w any)
	RegisterActivityWithOptions(a any, options activity.RegisterOptions)
}

var _ Registrar = sdkworker.Worker(nil)

// RegisterAll registers the prompt workflow and the pipeline activity with
// w. Call it once, before the worker starts.
func RegisterAll(w Registrar, rt *Runtime) {
	w.RegisterWorkflow(workflow.PromptWorkflow)
	w.RegisterActivityWithOptions(rt.Activities().RunPipeline, activity.RegisterOptions{
		Name: orchestrator.RunPipelineActivity,
	})
}
