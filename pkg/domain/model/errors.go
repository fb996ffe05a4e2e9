package model

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
)

// Sentinel errors for external collaborator failures
var (
	// Transient: retried with backoff up to the configured budget
	ErrTimeout     = goerr.New("inference call timed out")
	ErrRateLimited = goerr.New("inference service rate limited")
	ErrUnavailable = goerr.New("inference service unavailable")

	// Structural: retried once with a stricter prompt, then fatal
	ErrMalformedOutput = goerr.New("model output failed schema validation")

	// Precondition: an orchestration bug, never retried
	ErrPrecondition = goerr.New("stage precondition violated")

	// ErrUnsupportedFormat is a classifier rejection of the image payload
	ErrUnsupportedFormat = goerr.New("unsupported image format")
)

// ErrorClass groups collaborator failures by their retry policy
type ErrorClass string

const (
	ErrorClassTransient    ErrorClass = "TRANSIENT"
	ErrorClassStructural   ErrorClass = "STRUCTURAL"
	ErrorClassPrecondition ErrorClass = "PRECONDITION"
	ErrorClassFatal        ErrorClass = "FATAL"
)

// Classify maps an error to its retry class. Context deadline expiry is
// treated as a timeout so a stage that overruns its per-call budget stays
// retryable.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPrecondition):
		return ErrorClassPrecondition
	case errors.Is(err, ErrMalformedOutput):
		return ErrorClassStructural
	case errors.Is(err, ErrTimeout),
		errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return ErrorClassTransient
	default:
		return ErrorClassFatal
	}
}

// FailureReason returns the short reason recorded in the stage history for
// the given error
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "Timeout"
	case errors.Is(err, ErrRateLimited):
		return "RateLimited"
	case errors.Is(err, ErrUnavailable):
		return "Unavailable"
	case errors.Is(err, ErrMalformedOutput):
		return "MalformedOutput"
	case errors.Is(err, ErrUnsupportedFormat):
		return "UnsupportedFormat"
	case errors.Is(err, ErrPrecondition):
		return "Precondition"
	default:
		return "Internal"
	}
}
