package shopscale

import (
	"context"
	"errors"
	"fmt"
)

// Error codes for specific failure types
const (
	ErrCodeExtraction       = "EXTRACTION_FAILURE"
	ErrCodeCatalog          = "CATALOG_FAILURE"
	ErrCodeInvalidDirective = "INVALID_DIRECTIVE"
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeConfiguration    = "CONFIGURATION_ERROR"
	ErrCodeCancelled        = "EXECUTION_CANCELLED"
	ErrCodeTimeout          = "EXECUTION_TIMEOUT"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodePending          = "EXECUTION_PENDING"
	ErrCodeCache            = "CACHE_ERROR"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// Pipeline stages used in Error.Stage.
const (
	StageInit       = "initialization"
	StageExtraction = "extraction"
	StageResolution = "resolution"
	StageRun        = "run"
	StageAsync      = "async"
)

// FailureReason distinguishes the ways a catalog lookup can fail.
type FailureReason string

const (
	ReasonTransport     FailureReason = "transport"
	ReasonStatus        FailureReason = "status"
	ReasonAuth          FailureReason = "auth"
	ReasonEmptyBody     FailureReason = "emptyBody"
	ReasonMalformedBody FailureReason = "malformedBody"
)

// Error is the error type returned across the shopscale pipeline.
type Error struct {
	Code    string        // A machine-readable error code (e.g., ErrCodeCatalog)
	Message string        // A human-readable message
	Stage   string        // The stage where the error occurred (e.g., "extraction")
	Reason  FailureReason // Set for catalog failures only
	Status  int           // Upstream HTTP status, when one was received
	Cause   error         // The underlying error, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	code := e.Code
	if e.Reason != "" {
		code = fmt.Sprintf("%s{%s}", e.Code, e.Reason)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Stage, code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Stage, code, e.Message)
}

// Unwrap returns the underlying cause of the error, allowing for error chaining.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error.
func NewError(code, stage, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Stage:   stage,
		Message: message,
		Cause:   cause,
	}
}

// Specific error constructors

func NewExtractionError(message string, cause error) *Error {
	return NewError(ErrCodeExtraction, StageExtraction, message, cause)
}

// NewCatalogError builds a CatalogFailure. status is 0 when no response was received.
func NewCatalogError(reason FailureReason, status int, message string, cause error) *Error {
	e := NewError(ErrCodeCatalog, StageResolution, message, cause)
	e.Reason = reason
	e.Status = status
	return e
}

func NewInvalidDirectiveError(index int, message string) *Error {
	return NewError(ErrCodeInvalidDirective, StageResolution, fmt.Sprintf("directive %d: %s", index, message), nil)
}

func NewValidationError(stage, message string, cause error) *Error {
	return NewError(ErrCodeValidation, stage, message, cause)
}

func NewConfigurationError(message string, cause error) *Error {
	return NewError(ErrCodeConfiguration, StageInit, message, cause)
}

func NewCancelledError(stage string, cause error) *Error {
	msg := "execution cancelled"
	if cause != nil && !errors.Is(cause, context.Canceled) {
		msg = fmt.Sprintf("execution cancelled: %v", cause)
	}
	return NewError(ErrCodeCancelled, stage, msg, cause)
}

func NewTimeoutError(stage string, cause error) *Error {
	return NewError(ErrCodeTimeout, stage, "execution timed out", cause)
}

func NewNotFoundError(stage, message string) *Error {
	return NewError(ErrCodeNotFound, stage, message, nil)
}

func NewCacheError(stage, operation string, cause error) *Error {
	return NewError(ErrCodeCache, stage, fmt.Sprintf("cache operation '%s' failed", operation), cause)
}

func NewInternalError(stage, message string, cause error) *Error {
	return NewError(ErrCodeInternal, stage, message, cause)
}

// IsCode reports whether err is, or wraps, an *Error with the given code.
func IsCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// CatalogReason returns the failure reason carried by a CatalogFailure anywhere in err's chain.
func CatalogReason(err error) (FailureReason, bool) {
	var e *Error
	if errors.As(err, &e) && e.Code == ErrCodeCatalog {
		return e.Reason, true
	}
	return "", false
}

// ContextError maps a context termination to the matching pipeline error, or
// returns nil when ctx is still live.
func ContextError(ctx context.Context, stage string) error {
	switch err := ctx.Err(); {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return NewTimeoutError(stage, err)
	default:
		return NewCancelledError(stage, err)
	}
}

// IsCatalogFailure reports whether err is a CatalogFailure.
func IsCatalogFailure(err error) bool {
	return IsCode(err, ErrCodeCatalog)
}

// IsExtractionFailure reports whether err is an ExtractionFailure.
func IsExtractionFailure(err error) bool {
	return IsCode(err, ErrCodeExtraction)
}

// IsCancelled reports whether err stems from caller cancellation or a deadline.
func IsCancelled(err error) bool {
	return IsCode(err, ErrCodeCancelled) || IsCode(err, ErrCodeTimeout)
}
