package transform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ahrav/go-dldprompt/internal/domain"
)

// ErrorType categorizes transform failures.
type ErrorType string

const (
	// ErrorTypeTimeout indicates the call ran past its deadline.
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeRateLimit indicates a local or remote rate limit.
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeProvider indicates the provider failed or is unreachable.
	ErrorTypeProvider ErrorType = "provider_unavailable"

	// ErrorTypeAuth indicates rejected credentials.
	ErrorTypeAuth ErrorType = "authentication"

	// ErrorTypeInvalidResponse indicates an empty or malformed response.
	ErrorTypeInvalidResponse ErrorType = "invalid_response"

	// ErrorTypeUnknown indicates an unclassified error.
	ErrorTypeUnknown ErrorType = "unknown"
)

// Common transform errors.
var (
	// ErrEmptyResponse indicates the provider returned no text.
	ErrEmptyResponse = errors.New("transform returned empty response")

	// ErrRateLimitExceeded indicates the local limiter rejected the call.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrProviderUnavailable indicates the provider service is down or unreachable.
	ErrProviderUnavailable = errors.New("provider service unavailable")

	// ErrMissingAPIKey indicates the provider client was built without credentials.
	ErrMissingAPIKey = errors.New("transform provider api key missing")
)

// Error is the single structured failure channel of a transform call.
type Error struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code,omitempty"`
	RetryAfter int       `json:"retry_after,omitempty"`
	Cause      error     `json:"-"`
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("[%s:%d] %s", e.Type, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Cause }

// GetRetryAfter returns the provider's suggested backoff.
func (e *Error) GetRetryAfter() time.Duration {
	return time.Duration(e.RetryAfter) * time.Second
}

// Classify turns any transform error into an *Error. Typed errors are
// recognized first, then sentinels, then message patterns.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var te *Error
	if errors.As(err, &te) {
		return te
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Type: ErrorTypeTimeout, Message: "transform deadline exceeded", Cause: err}
	case errors.Is(err, ErrRateLimitExceeded):
		return &Error{Type: ErrorTypeRateLimit, Message: err.Error(), Cause: err}
	case errors.Is(err, ErrProviderUnavailable):
		return &Error{Type: ErrorTypeProvider, Message: err.Error(), Cause: err}
	case errors.Is(err, ErrEmptyResponse):
		return &Error{Type: ErrorTypeInvalidResponse, Message: err.Error(), Cause: err}
	case errors.Is(err, ErrMissingAPIKey):
		return &Error{Type: ErrorTypeAuth, Message: err.Error(), Cause: err}
	}

	type statusCoder interface{ StatusCode() int }
	if sc, ok := err.(statusCoder); ok {
		return fromStatus(sc.StatusCode(), err)
	}

	return classifyStringPattern(err)
}

func fromStatus(code int, err error) *Error {
	e := &Error{Message: err.Error(), StatusCode: code, Cause: err}
	switch {
	case code == http.StatusTooManyRequests:
		e.Type = ErrorTypeRateLimit
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		e.Type = ErrorTypeTimeout
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		e.Type = ErrorTypeAuth
	case code >= http.StatusInternalServerError:
		e.Type = ErrorTypeProvider
	default:
		e.Type = ErrorTypeUnknown
	}
	return e
}

func classifyStringPattern(err error) *Error {
	msg := strings.ToLower(err.Error())
	e := &Error{Message: err.Error(), Cause: err}
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		e.Type = ErrorTypeTimeout
	case strings.Contains(msg, "rate limit"):
		e.Type = ErrorTypeRateLimit
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "authentication"):
		e.Type = ErrorTypeAuth
	case strings.Contains(msg, "connection") || strings.Contains(msg, "unavailable"):
		e.Type = ErrorTypeProvider
	default:
		e.Type = ErrorTypeUnknown
	}
	return e
}

// ToDiagnostic converts a transform error into the diagnostic reported by
// the stage that called it. Timeouts map to ErrorKindExternalTransformTimeout,
// every other failure to ErrorKindExternalTransformFailure.
func ToDiagnostic(err error, stage string) *domain.Diagnostic {
	te := Classify(err)
	if te == nil {
		return nil
	}
	kind := domain.ErrorKindExternalTransformFailure
	if te.Type == ErrorTypeTimeout {
		kind = domain.ErrorKindExternalTransformTimeout
	}
	d := domain.NewDiagnostic(kind, stage, te.Message, te)
	d.Details = map[string]any{"transform_error": string(te.Type)}
	if te.StatusCode != 0 {
		d.Details["status_code"] = te.StatusCode
	}
	return d
}
