package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for domain validation.
var (
	// ErrInvalidDocument indicates the input document failed structural validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidRequest indicates a run request contains invalid data.
	ErrInvalidRequest = errors.New("invalid run request")

	// ErrInvalidWeights indicates dimension weights are malformed or do not sum to 1.0.
	ErrInvalidWeights = errors.New("invalid dimension weights")

	// ErrUnknownDimension indicates a dimension name outside the fixed set.
	ErrUnknownDimension = errors.New("unknown quality dimension")

	// ErrFragmentNotFound indicates an annotation targeted a missing fragment.
	ErrFragmentNotFound = errors.New("fragment not found")
)

// ErrorKind classifies a run failure. Kinds drive retry decisions and the
// caller-facing result code.
type ErrorKind string

const (
	// ErrorKindValidationBlocked marks a run halted by an error-severity finding.
	ErrorKindValidationBlocked ErrorKind = "ValidationBlocked"

	// ErrorKindGenerationStageFailed marks a failed generation sub-stage (retryable per group).
	ErrorKindGenerationStageFailed ErrorKind = "GenerationStageFailed"

	// ErrorKindExternalTransformTimeout marks a transform call that ran past its deadline (retryable).
	ErrorKindExternalTransformTimeout ErrorKind = "ExternalTransformTimeout"

	// ErrorKindExternalTransformFailure marks a transform call that failed (retryable).
	ErrorKindExternalTransformFailure ErrorKind = "ExternalTransformFailure"

	// ErrorKindKnowledgeStoreUnavailable marks a knowledge read that failed at run start.
	ErrorKindKnowledgeStoreUnavailable ErrorKind = "KnowledgeStoreUnavailable"

	// ErrorKindQualityRejected marks a run whose artifact did not pass the gate.
	ErrorKindQualityRejected ErrorKind = "QualityRejected"

	// ErrorKindCancelled marks a run cancelled by its caller between stages.
	ErrorKindCancelled ErrorKind = "Cancelled"

	// ErrorKindStageFault marks an unexpected stage failure such as a panic
	// or an undeclared output.
	ErrorKindStageFault ErrorKind = "StageFault"
)

// Retryable reports whether failures of this kind may be retried within the
// run's retry budget.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrorKindGenerationStageFailed, ErrorKindExternalTransformTimeout, ErrorKindExternalTransformFailure:
		return true
	default:
		return false
	}
}

// Diagnostic is the typed failure that crosses stage boundaries. Stages never
// return raw errors; they return diagnostics.
type Diagnostic struct {
	Kind       ErrorKind      `json:"kind"`
	Stage      string         `json:"stage,omitempty"`
	StageIndex int            `json:"stage_index,omitempty"`
	Message    string         `json:"message"`
	Retryable  bool           `json:"retryable"`
	Details    map[string]any `json:"details,omitempty"`
	Cause      error          `json:"-"`
}

// NewDiagnostic builds a diagnostic whose retryability follows its kind.
func NewDiagnostic(kind ErrorKind, stage, message string, cause error) *Diagnostic {
	return &Diagnostic{
		Kind:      kind,
		Stage:     stage,
		Message:   message,
		Retryable: kind.Retryable(),
		Cause:     cause,
	}
}

// Error returns the diagnostic with its kind, stage, and cause.
func (d *Diagnostic) Error() string {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(string(d.Kind))
	if d.Stage != "" {
		b.WriteByte(':')
		b.WriteString(d.Stage)
	}
	if d.StageIndex > 0 {
		fmt.Fprintf(&b, "#%d", d.StageIndex)
	}
	b.WriteString("] ")
	b.WriteString(d.Message)
	if d.Cause != nil {
		b.WriteString(": ")
		b.WriteString(d.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (d *Diagnostic) Unwrap() error { return d.Cause }

// ShouldRetry returns the explicit retry recommendation.
func (d *Diagnostic) ShouldRetry() bool { return d.Retryable }

// RootKind walks the cause chain and returns the kind of the innermost
// diagnostic. A generation failure caused by a transform timeout reports
// ErrorKindExternalTransformTimeout.
func (d *Diagnostic) RootKind() ErrorKind {
	kind := d.Kind
	var err error = d.Cause
	for err != nil {
		var inner *Diagnostic
		if !errors.As(err, &inner) {
			break
		}
		kind = inner.Kind
		err = inner.Cause
	}
	return kind
}

// GenerationStageFailed wraps cause as the failure of generation sub-stage
// index (1-based). The cause's retryability is preserved when it is itself a
// diagnostic; otherwise the failure is retryable at group granularity.
func GenerationStageFailed(index int, stage string, cause error) *Diagnostic {
	d := &Diagnostic{
		Kind:       ErrorKindGenerationStageFailed,
		Stage:      stage,
		StageIndex: index,
		Message:    fmt.Sprintf("generation sub-stage %d (%s) failed", index, stage),
		Retryable:  true,
		Cause:      cause,
	}
	var inner *Diagnostic
	if errors.As(cause, &inner) {
		d.Retryable = inner.Retryable
		d.Details = map[string]any{"cause_kind": string(inner.Kind)}
	}
	return d
}

// AsDiagnostic converts err into a diagnostic. Diagnostics in the chain are
// returned as-is; anything else becomes a StageFault attributed to stage.
func AsDiagnostic(err error, stage string) *Diagnostic {
	if err == nil {
		return nil
	}
	var d *Diagnostic
	if errors.As(err, &d) {
		if d.Stage == "" {
			cp := *d
			cp.Stage = stage
			return &cp
		}
		return d
	}
	return NewDiagnostic(ErrorKindStageFault, stage, "stage returned an error", err)
}
