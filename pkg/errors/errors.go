// Package errors provides structured error types for the convoy publisher.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across planning and execution
//   - Machine-readable error codes for exit-code decisions
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Planning-phase codes (UNKNOWN_PACKAGE, CYCLIC_DEPENDENCY,
// CONSTRAINT_BREAK, REGISTRY_FATAL) abort plan construction entirely;
// no partial plan is ever handed to the executor. Execution-phase codes
// (RACE_DETECTED, PUBLISH_FAILED) halt remaining steps but preserve the
// outcomes of steps already completed.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeUnknownPackage, "package %s not in workspace", id)
//	if errors.Is(err, errors.ErrCodeUnknownPackage) {
//	    // Handle missing package
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeRegistryFatal, origErr, "fetching %s", id)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for the publish planning and execution phases.
const (
	// Workspace and graph errors
	ErrCodeUnknownPackage    Code = "UNKNOWN_PACKAGE"
	ErrCodeCyclicDependency  Code = "CYCLIC_DEPENDENCY"
	ErrCodeInvalidManifest   Code = "INVALID_MANIFEST"
	ErrCodeInvalidVersion    Code = "INVALID_VERSION"
	ErrCodeInvalidDependency Code = "INVALID_DEPENDENCY"

	// Planning errors
	ErrCodeConstraintBreak Code = "CONSTRAINT_BREAK"
	ErrCodeInvalidPlan     Code = "INVALID_PLAN"

	// Registry errors
	ErrCodeRegistryNotFound  Code = "REGISTRY_NOT_FOUND"
	ErrCodeRegistryTransient Code = "REGISTRY_TRANSIENT"
	ErrCodeRegistryFatal     Code = "REGISTRY_FATAL"
	ErrCodeRateLimited       Code = "RATE_LIMITED"

	// Execution errors
	ErrCodeRaceDetected  Code = "RACE_DETECTED"
	ErrCodePublishFailed Code = "PUBLISH_FAILED"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err carries the given error code anywhere in its chain.
func Is(err error, code Code) bool {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if structured, ok := e.(*Error); ok && structured.Code == code {
			return true
		}
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error chain contains no *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// IsFatalRegistry reports whether err is a registry error that makes the
// whole planning pass unsafe to act on (auth or permission failures).
func IsFatalRegistry(err error) bool {
	return Is(err, ErrCodeRegistryFatal)
}
