// Package main implements the dldprompt CLI: run a design document through
// the prompt pipeline locally, submit it to a Temporal worker, run that
// worker, or seed the knowledge store.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ahrav/go-dldprompt/internal/config"
	"github.com/ahrav/go-dldprompt/internal/metrics"
)

var (
	// configPath points at an optional YAML config file.
	configPath string
	version    = "dev"
)

// exitError carries a process exit status out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func main() {
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			if ee.err != nil {
				fmt.Fprintln(os.Stderr, "Error:", ee.err)
			}
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dldprompt",
	Short: "Turn detailed design documents into coding-assistant prompts",
	Long: `dldprompt validates a detailed design document, generates a prompt from it
through a six-stage generation pipeline, scores the prompt on six quality
dimensions, and retries generation with corrective hints until the prompt is
accepted or the retry budget is spent.

Configuration is read from --config and DLDPROMPT_<SECTION>_<FIELD>
environment variables.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.AddCommand(runCmd, submitCmd, workerCmd, seedCmd)
}

// loadConfig loads configuration and the process logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// startMetrics serves /metrics when an address is configured and returns
// the collector plus a shutdown func. Without an address metrics are
// discarded.
func startMetrics(cfg *config.Config, logger *slog.Logger) (metrics.Metrics, func(context.Context)) {
	addr := cfg.Observability.MetricsAddr
	if addr == "" {
		return metrics.NewNoOpMetrics(), func(context.Context) {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("metrics server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return metrics.NewPrometheus("dldprompt", nil), func(ctx context.Context) {
		_ = srv.Shutdown(ctx)
	}
}
