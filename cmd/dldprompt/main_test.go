package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-dldprompt/internal/domain"
	"github.com/ahrav/go-dldprompt/internal/output"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestRunCommand_ValidationBlockedExitCode(t *testing.T) {
	doc := writeFile(t, "thin.md", "## Architecture\nThe AMF talks to the gNB over N2.\n")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"run", doc})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.Execute()
	require.Error(t, err)

	var ee *exitError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, domain.CodeValidationBlocked.ExitCode(), ee.code)

	var res domain.RunResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, domain.CodeValidationBlocked, res.Code)
	assert.True(t, res.Report.Blocking())
}

func TestLoadConventions(t *testing.T) {
	p := writeFile(t, "conventions.yaml", `
- rule: Use table-driven tests.
- source: team
  rule: Wrap errors with %w.
`)
	conv, err := loadConventions(p)
	require.NoError(t, err)
	require.Len(t, conv, 2)
	assert.Equal(t, p, conv[0].Source, "source defaults to the file")
	assert.Equal(t, "team", conv[1].Source)
	assert.Equal(t, "Wrap errors with %w.", conv[1].Rule)

	_, err = loadConventions(writeFile(t, "bad.yaml", "rule: [unterminated"))
	require.Error(t, err)
}

func TestExitError(t *testing.T) {
	inner := errors.New("boom")
	err := &exitError{code: 3, err: inner}
	assert.Equal(t, "boom", err.Error())
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "exit status 4", (&exitError{code: 4}).Error())
}

func TestRunCommand_RejectsUnknownFormat(t *testing.T) {
	doc := writeFile(t, "design.md", "## Architecture\nThe AMF talks to the gNB over N2.\n")

	rootCmd.SetArgs([]string{"run", doc, "--format", "docx"})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		formatName = ""
	})

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.ErrorIs(t, err, output.ErrUnknownTarget)
}

func TestWriteResult(t *testing.T) {
	accepted := domain.RunResult{
		RunID:   "run-1",
		Outcome: domain.OutcomeAccepted,
		Code:    domain.CodeAccepted,
		Prompt:  "## Requirements\n- The gNB shall schedule every slot.\n\n## Task\nImplement the scheduler.\n",
	}
	logger := slog.New(slog.DiscardHandler)

	tests := []struct {
		name       string
		res        domain.RunResult
		target     output.Target
		promptOnly bool
		check      func(t *testing.T, got string)
	}{
		{
			name: "full result as json",
			res:  accepted,
			check: func(t *testing.T, got string) {
				var res domain.RunResult
				require.NoError(t, json.Unmarshal([]byte(got), &res))
				assert.Equal(t, "run-1", res.RunID)
			},
		},
		{
			name:       "prompt only",
			res:        accepted,
			promptOnly: true,
			check: func(t *testing.T, got string) {
				assert.Equal(t, accepted.Prompt+"\n", got)
			},
		},
		{
			name:   "formatted prompt",
			res:    accepted,
			target: output.TargetMarkdown,
			check: func(t *testing.T, got string) {
				assert.True(t, strings.HasPrefix(got, "# System Context\n"))
				assert.Contains(t, got, "# Requirements\n\n- The gNB shall schedule every slot.")
			},
		},
		{
			name:   "formatted without a prompt writes nothing",
			res:    domain.RunResult{Code: domain.CodeQualityRejected},
			target: output.TargetCursor,
			check: func(t *testing.T, got string) {
				assert.Empty(t, got)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out")
			outputPath, promptOnly = path, tt.promptOnly
			t.Cleanup(func() { outputPath, promptOnly = "", false })

			var stdout bytes.Buffer
			require.NoError(t, writeResult(&stdout, tt.res, tt.target, logger))
			assert.Zero(t, stdout.Len(), "output file replaces stdout")

			got, err := os.ReadFile(path)
			require.NoError(t, err)
			tt.check(t, string(got))
		})
	}
}

func TestWriteResult_OutputError(t *testing.T) {
	outputPath = filepath.Join(t.TempDir(), "missing", "out.json")
	t.Cleanup(func() { outputPath = "" })

	err := writeResult(io.Discard, domain.RunResult{RunID: "run-1"}, "", slog.New(slog.DiscardHandler))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create output")
}
