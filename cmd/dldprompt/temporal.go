package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	sdkworker "go.temporal.io/sdk/worker"

	"github.com/ahrav/go-dldprompt/internal/config"
	"github.com/ahrav/go-dldprompt/internal/domain"
	"github.com/ahrav/go-dldprompt/internal/worker"
	"github.com/ahrav/go-dldprompt/internal/workflow"
)

var workflowID string

func init() {
	addRequestFlags(submitCmd)
	submitCmd.Flags().StringVar(&workflowID, "workflow-id", "", "workflow id (default: random)")
	addOutputFlags(submitCmd)
}

func dialTemporal(cfg *config.Config, logger *slog.Logger) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    tlog.NewStructuredLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create Temporal client: %w", err)
	}
	return c, nil
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a Temporal worker that executes prompt workflows",
	Long: `Run a Temporal worker on the configured task queue. The worker hosts the
PromptWorkflow and the RunPipeline activity and stops on SIGINT or SIGTERM,
flushing pending feedback writes before exit.

Examples:
  # Start a worker against a local Temporal server
  dldprompt worker

  # Use Redis for the knowledge store
  DLDPROMPT_KNOWLEDGE_BACKEND=redis dldprompt worker`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

func runWorker(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, shutdownMetrics := startMetrics(cfg, logger)
	rt, err := worker.NewRuntime(ctx, cfg, logger, m)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		if err := rt.Close(flushCtx); err != nil {
			logger.Warn("pending feedback not flushed", "error", err)
		}
		shutdownMetrics(flushCtx)
	}()

	c, err := dialTemporal(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	w := sdkworker.New(c, cfg.Temporal.TaskQueue, sdkworker.Options{})
	worker.RegisterAll(w, rt)
	logger.Info("worker configured",
		"task_queue", cfg.Temporal.TaskQueue,
		"namespace", cfg.Temporal.Namespace,
		"knowledge_backend", cfg.Knowledge.Backend,
		"transform_provider", cfg.Transform.Provider)

	workerErrors := make(chan error, 1)
	go func() {
		workerErrors <- w.Run(sdkworker.InterruptCh())
	}()

	select {
	case err := <-workerErrors:
		if err != nil {
			return fmt.Errorf("worker error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		w.Stop()
	}
	logger.Info("worker stopped")
	return nil
}

var submitCmd = &cobra.Command{
	Use:   "submit <design.md>",
	Short: "Submit a design document to a running worker and wait for the result",
	Long: `Start a PromptWorkflow for the document on the configured task queue and
wait for it to finish. Exit status follows the same result codes as run.

Examples:
  dldprompt submit design.md --workflow-id design-v2`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func runSubmit(cmd *cobra.Command, args []string) error {
	target, err := outputTarget()
	if err != nil {
		return err
	}
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req, err := buildRequest(ctx, args[0])
	if err != nil {
		return err
	}

	c, err := dialTemporal(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	id := workflowID
	if id == "" {
		id = "dldprompt-" + uuid.NewString()
	}
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                       id,
		TaskQueue:                cfg.Temporal.TaskQueue,
		WorkflowExecutionTimeout: workflow.DefaultRunTimeout * time.Duration(workflow.DefaultMaxAttempts+1),
	}, workflow.PromptWorkflow, req)
	if err != nil {
		return fmt.Errorf("start workflow: %w", err)
	}
	logger.Info("workflow started", "workflow_id", run.GetID(), "run_id", run.GetRunID())

	var res domain.RunResult
	if err := run.Get(ctx, &res); err != nil {
		return fmt.Errorf("workflow %s: %w", run.GetID(), err)
	}
	if err := writeResult(cmd.OutOrStdout(), res, target, logger); err != nil {
		return err
	}
	if code := res.Code.ExitCode(); code != 0 {
		return &exitError{code: code}
	}
	return nil
}
