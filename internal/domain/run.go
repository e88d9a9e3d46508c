package domain

import (
	"fmt"
	"time"
)

// Outcome is the terminal classification of a run.
type Outcome string

// Run outcomes.
const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
	OutcomeErrored  Outcome = "errored"
)

// ResultCode is the caller-facing code distinguishing terminal states.
type ResultCode string

// Result codes.
const (
	CodeAccepted                  ResultCode = "Accepted"
	CodeValidationBlocked         ResultCode = "ValidationBlocked"
	CodeGenerationFailed          ResultCode = "GenerationFailed"
	CodeQualityRejected           ResultCode = "QualityRejected"
	CodeKnowledgeStoreUnavailable ResultCode = "KnowledgeStoreUnavailable"
	CodeCancelled                 ResultCode = "Cancelled"
	CodeInternalError             ResultCode = "InternalError"
)

// ExitCode maps a result code to a process exit status.
func (c ResultCode) ExitCode() int {
	switch c {
	case CodeAccepted:
		return 0
	case CodeValidationBlocked:
		return 2
	case CodeGenerationFailed:
		return 3
	case CodeQualityRejected:
		return 4
	case CodeKnowledgeStoreUnavailable:
		return 5
	case CodeCancelled:
		return 6
	default:
		return 1
	}
}

// FileFact describes one file of the target codebase, as reported by an
// external scanner.
type FileFact struct {
	Path     string   `json:"path"`
	Language string   `json:"language,omitempty"`
	Symbols  []string `json:"symbols,omitempty"`
	Test     bool     `json:"test,omitempty"`
}

// CodeFacts are raw filesystem facts about the target codebase.
type CodeFacts struct {
	Root  string     `json:"root,omitempty"`
	Files []FileFact `json:"files,omitempty"`
}

// Convention is a project or team rule supplied by the caller.
type Convention struct {
	Source string `json:"source"`
	Rule   string `json:"rule" validate:"required"`
}

// Hint is the adjustment carried into a Generation retry. It names the
// lowest-scoring dimension of the previous attempt.
type Hint struct {
	Dimension   Dimension `json:"dimension"`
	Attempt     int       `json:"attempt"`
	Score       float64   `json:"score"`
	Suggestions []string  `json:"suggestions,omitempty"`
}

// RunRequest is the input to a single pipeline run.
type RunRequest struct {
	RunID       string            `json:"run_id,omitempty"     validate:"omitempty,uuid"`
	Document    Document          `json:"document"`
	CodeFacts   CodeFacts         `json:"code_facts"`
	Conventions []Convention      `json:"conventions,omitempty" validate:"dive"`
	Parameters  map[string]string `json:"parameters,omitempty"`
}

// Validate checks the request and its document.
func (r RunRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if err := r.Document.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

// RunRecord is the durable outcome of one run. Records are appended to the
// knowledge store and never modified afterwards.
type RunRecord struct {
	RunID             string       `json:"run_id"`
	Fingerprint       string       `json:"fingerprint"`
	Score             QualityScore `json:"score"`
	AcceptedFragments []Fragment   `json:"accepted_fragments,omitempty"`
	RetryCount        int          `json:"retry_count"`
	Outcome           Outcome      `json:"outcome"`
	Code              ResultCode   `json:"code"`
	Diagnostic        *Diagnostic  `json:"diagnostic,omitempty"`
	Hints             []Hint       `json:"hints,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
}

// LastHint returns the most recent corrective hint issued during the run.
func (r RunRecord) LastHint() (Hint, bool) {
	if len(r.Hints) == 0 {
		return Hint{}, false
	}
	return r.Hints[len(r.Hints)-1], true
}

// RunResult is returned to the caller as soon as the run reaches a terminal
// state. Artifact is set only for accepted runs.
type RunResult struct {
	RunID       string           `json:"run_id"`
	Outcome     Outcome          `json:"outcome"`
	Code        ResultCode       `json:"code"`
	Composite   float64          `json:"composite"`
	Score       QualityScore     `json:"score"`
	Artifact    *WorkingArtifact `json:"artifact,omitempty"`
	Prompt      string           `json:"prompt,omitempty"`
	Report      ValidationReport `json:"report"`
	Diagnostics []Diagnostic     `json:"diagnostics,omitempty"`
	RetryCount  int              `json:"retry_count"`
	States      []string         `json:"states,omitempty"`
	Record      RunRecord        `json:"record"`
}
