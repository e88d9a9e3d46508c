// Package workflow defines the Temporal workflows of the prompt pipeline.
//
// A workflow delegates the run itself to the RunPipeline activity, so the
// orchestrator's retries, knowledge reads and transformer calls stay out of
// workflow code. Workflow code here must remain deterministic: no clocks,
// randomness or I/O outside workflow APIs.
package workflow
