package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-dldprompt/internal/codebase"
	"github.com/ahrav/go-dldprompt/internal/domain"
	"github.com/ahrav/go-dldprompt/internal/ingest"
	"github.com/ahrav/go-dldprompt/internal/output"
	"github.com/ahrav/go-dldprompt/internal/worker"
)

// flushTimeout bounds the wait for pending feedback writes on exit.
const flushTimeout = 10 * time.Second

var (
	projectDir      string
	conventionsFile string
	params          map[string]string
	outputPath      string
	promptOnly      bool
	formatName      string
)

func addRequestFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&projectDir, "project", "p", "", "existing codebase to scan for structure")
	cmd.Flags().StringVar(&conventionsFile, "conventions", "", "YAML file listing project conventions")
	cmd.Flags().StringToStringVar(&params, "param", nil, "transformation parameter key=value (repeatable)")
}

// addOutputFlags registers the flags that shape what a finished run prints.
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the result here instead of stdout")
	cmd.Flags().BoolVar(&promptOnly, "prompt-only", false, "print only the accepted prompt")
	cmd.Flags().StringVar(&formatName, "format", "",
		fmt.Sprintf("print only the accepted prompt, restructured for a target %v", output.Targets()))
	cmd.MarkFlagsMutuallyExclusive("prompt-only", "format")
}

func init() {
	addRequestFlags(runCmd)
	addOutputFlags(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run <design.md>",
	Short: "Run a design document through the pipeline in this process",
	Long: `Run a design document through validation, generation and the quality gate
without a Temporal server. The result is printed as JSON unless --prompt-only
or --format selects the accepted prompt alone. --format restructures the
prompt for markdown, cursor, json, text or template output.

The exit status reflects the result code:
  0 Accepted, 2 ValidationBlocked, 3 GenerationFailed, 4 QualityRejected,
  5 KnowledgeStoreUnavailable, 6 Cancelled, 1 any other error.

Examples:
  # Run a document with defaults
  dldprompt run design.md

  # Include the structure of an existing codebase
  dldprompt run design.md --project ./ran-scheduler --param target=cursor

  # Write the accepted prompt, structured for Cursor, to a file
  dldprompt run design.md --format cursor -o prompt.md`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
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

	m, shutdownMetrics := startMetrics(cfg, logger)
	rt, err := worker.NewRuntime(ctx, cfg, logger, m)
	if err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
		defer cancel()
		shutdownMetrics(shutdownCtx)
		return err
	}

	res, runErr := rt.Orchestrator.Run(ctx, req)

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()
	if err := rt.Close(flushCtx); err != nil {
		logger.Warn("pending feedback not flushed", "error", err)
	}
	shutdownMetrics(flushCtx)

	if runErr != nil {
		return runErr
	}
	if err := writeResult(cmd.OutOrStdout(), res, target, logger); err != nil {
		return err
	}
	if code := res.Code.ExitCode(); code != 0 {
		return &exitError{code: code}
	}
	return nil
}

// buildRequest ingests the document and gathers the optional inputs.
func buildRequest(ctx context.Context, docPath string) (domain.RunRequest, error) {
	doc, err := ingest.ParseFile(docPath)
	if err != nil {
		return domain.RunRequest{}, err
	}
	req := domain.RunRequest{Document: doc, Parameters: params}

	if projectDir != "" {
		facts, err := codebase.Scan(ctx, projectDir, codebase.DefaultOptions())
		if err != nil {
			return domain.RunRequest{}, fmt.Errorf("scan project: %w", err)
		}
		req.CodeFacts = facts
	}
	if conventionsFile != "" {
		conv, err := loadConventions(conventionsFile)
		if err != nil {
			return domain.RunRequest{}, err
		}
		req.Conventions = conv
	}
	return req, nil
}

// loadConventions reads a YAML list of {source, rule} items.
func loadConventions(path string) ([]domain.Convention, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read conventions: %w", err)
	}
	var conv []domain.Convention
	if err := yaml.Unmarshal(raw, &conv); err != nil {
		return nil, fmt.Errorf("parse conventions %s: %w", path, err)
	}
	for i := range conv {
		if conv[i].Source == "" {
			conv[i].Source = path
		}
	}
	return conv, nil
}

// outputTarget resolves --format. An empty target means the full result.
func outputTarget() (output.Target, error) {
	if formatName == "" {
		return "", nil
	}
	return output.ParseTarget(formatName)
}

// renderResult encodes res as selected by the output flags. A nil slice
// means there is nothing to print.
func renderResult(res domain.RunResult, target output.Target, logger *slog.Logger) ([]byte, error) {
	switch {
	case target != "":
		out, err := output.FormatRun(res, target)
		if errors.Is(err, output.ErrNoPrompt) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		v := out.Verification
		for _, issue := range v.Issues {
			logger.Warn("formatted prompt issue", "format", target, "issue", issue)
		}
		logger.Debug("formatted prompt", "format", target, "score", v.Score, "suggestions", v.Suggestions)
		return []byte(out.Content + "\n"), nil
	case promptOnly:
		if res.Prompt == "" {
			return nil, nil
		}
		return []byte(res.Prompt + "\n"), nil
	}
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return append(data, '\n'), nil
}

func writeResult(stdout io.Writer, res domain.RunResult, target output.Target, logger *slog.Logger) error {
	data, err := renderResult(res, target, logger)
	if err != nil {
		return err
	}
	if outputPath == "" {
		_, err := stdout.Write(data)
		return err
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write output: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	return nil
}
