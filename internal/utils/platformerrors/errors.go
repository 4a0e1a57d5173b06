// Package platformerrors provides the engine-wide error taxonomy. Every error
// crossing a layer boundary is wrapped into a PlatformError carrying the layer
// it originated from, a classified error type, and a stable code for log
// correlation.
package platformerrors

import (
	"context"
	"errors"
	"fmt"
)

// Layer identifies where in the stack an error was raised or wrapped.
type Layer string

const (
	LayerRepository Layer = "repository"
	LayerDomain     Layer = "domain"
	LayerHandler    Layer = "handler"
	LayerInfra      Layer = "infrastructure"
)

// ErrorType classifies errors for propagation and retry decisions.
type ErrorType string

const (
	// ErrorTypeStorage marks backend I/O failures. Retryable for idempotent
	// reads only; writes surface to the caller.
	ErrorTypeStorage ErrorType = "storage_error"

	// ErrorTypeInvalidConfig marks caller configuration bugs (e.g. a
	// non-positive turn budget). Fatal, never retried.
	ErrorTypeInvalidConfig ErrorType = "invalid_config"

	// ErrorTypeInvalidForkPoint marks a branch fork target that does not
	// exist or exceeds the parent's latest sequence.
	ErrorTypeInvalidForkPoint ErrorType = "invalid_fork_point"

	// ErrorTypeNotDeleted marks a restore attempt on a live conversation.
	ErrorTypeNotDeleted ErrorType = "not_deleted"

	// ErrorTypeStillHasBranches marks a hard delete blocked by live
	// dependent branches.
	ErrorTypeStillHasBranches ErrorType = "still_has_branches"

	// ErrorTypeNotFound marks reads of unknown or soft-deleted conversations.
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeValidation marks malformed caller input (ids, metadata, roles).
	ErrorTypeValidation ErrorType = "validation"

	// ErrorTypeInternal is the fallback for unclassified failures.
	ErrorTypeInternal ErrorType = "internal"
)

// PlatformError is the concrete error carried across layers.
type PlatformError struct {
	Layer   Layer
	Type    ErrorType
	Message string
	Code    string
	Cause   error
}

func (e *PlatformError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s [%s/%s]: %v", e.Message, e.Layer, e.Type, e.Cause)
	}
	return fmt.Sprintf("%s [%s/%s]", e.Message, e.Layer, e.Type)
}

func (e *PlatformError) Unwrap() error {
	return e.Cause
}

// NewError constructs a classified error. code is a stable identifier used in
// logs to locate the raising site.
func NewError(_ context.Context, layer Layer, errType ErrorType, message string, cause error, code string) error {
	return &PlatformError{
		Layer:   layer,
		Type:    errType,
		Message: message,
		Code:    code,
		Cause:   cause,
	}
}

// AsError wraps err preserving an existing classification. An already
// classified error keeps its type; anything else becomes ErrorTypeStorage when
// raised by a repository and ErrorTypeInternal otherwise.
func AsError(ctx context.Context, layer Layer, err error, message string) error {
	return AsErrorWithCode(ctx, layer, err, message, "")
}

// AsErrorWithCode is AsError with an explicit correlation code.
func AsErrorWithCode(_ context.Context, layer Layer, err error, message string, code string) error {
	if err == nil {
		return nil
	}
	var pe *PlatformError
	if errors.As(err, &pe) {
		return &PlatformError{
			Layer:   layer,
			Type:    pe.Type,
			Message: message,
			Code:    code,
			Cause:   err,
		}
	}
	errType := ErrorTypeInternal
	if layer == LayerRepository {
		errType = ErrorTypeStorage
	}
	return &PlatformError{
		Layer:   layer,
		Type:    errType,
		Message: message,
		Code:    code,
		Cause:   err,
	}
}

// TypeOf returns the classified type of err, or ErrorTypeInternal when err
// carries no classification.
func TypeOf(err error) ErrorType {
	var pe *PlatformError
	if errors.As(err, &pe) {
		return pe.Type
	}
	return ErrorTypeInternal
}

// IsErrorType reports whether err carries the given classification.
func IsErrorType(err error, errType ErrorType) bool {
	var pe *PlatformError
	return errors.As(err, &pe) && pe.Type == errType
}

// IsValidationError reports whether err is a caller-input validation failure.
func IsValidationError(err error) bool {
	return IsErrorType(err, ErrorTypeValidation)
}

// IsRetryable reports whether err may be retried. Only storage failures are;
// every other type is a terminal caller- or state-level condition.
func IsRetryable(err error) bool {
	return IsErrorType(err, ErrorTypeStorage)
}
