// Package apierr defines the typed errors every pipeline surfaces to callers.
//
// Hook points may return any error; the pipelines propagate those unmodified.
// The errors in this package are the ones the pipelines themselves raise.
package apierr

import (
	"errors"
	"fmt"
	"strings"
)

// Code categorizes an Error.
type Code string

const (
	// CodeForbidden indicates an inspector or authorizer denied the operation.
	CodeForbidden Code = "FORBIDDEN"

	// CodeValidationFailed indicates one or more validators reported errors.
	CodeValidationFailed Code = "VALIDATION_FAILED"

	// CodeNotFound indicates a query source or update/delete target does not exist.
	CodeNotFound Code = "RESOURCE_NOT_FOUND"

	// CodePreconditionFailed indicates an ETag mismatch on an existing resource.
	CodePreconditionFailed Code = "PRECONDITION_FAILED"

	// CodeConflict indicates an insert collided with an existing key.
	CodeConflict Code = "CONFLICT"

	// CodeInvalidEntry indicates a change-set entry of an unknown kind.
	CodeInvalidEntry Code = "INVALID_ENTRY"

	// CodeModelBuildFailed wraps a producer or extender failure.
	CodeModelBuildFailed Code = "MODEL_BUILD_FAILED"

	// CodeConfigurationFrozen indicates a registration after the configuration was frozen.
	CodeConfigurationFrozen Code = "CONFIGURATION_FROZEN"

	// CodeInvalidState indicates a context was mutated after reaching a terminal value.
	CodeInvalidState Code = "INVALID_STATE"

	// CodeInvalidQuery indicates a structurally invalid query expression.
	CodeInvalidQuery Code = "INVALID_QUERY"

	// CodeNotImplemented indicates no hook point is registered for a required contract.
	CodeNotImplemented Code = "NOT_IMPLEMENTED"
)

// Error is the error type raised by the pipelines.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Target names the affected element (entity set, action, contract).
	Target string

	// Results carries every validation result for CodeValidationFailed.
	Results []Detail

	// Err is the underlying cause, if any.
	Err error
}

// Detail is one validation message attached to a VALIDATION_FAILED error.
type Detail struct {
	Target   string `json:"target"`
	Property string `json:"property,omitempty"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Target != "" {
		fmt.Fprintf(&b, " (target=%s)", e.Target)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewForbidden creates a FORBIDDEN error for target.
func NewForbidden(target, message string) *Error {
	return &Error{Code: CodeForbidden, Message: message, Target: target}
}

// NewValidation creates a VALIDATION_FAILED error carrying every detail.
func NewValidation(details []Detail) *Error {
	return &Error{
		Code:    CodeValidationFailed,
		Message: fmt.Sprintf("%d validation error(s)", countErrors(details)),
		Results: details,
	}
}

func countErrors(details []Detail) int {
	n := 0
	for _, d := range details {
		if d.Severity == "error" {
			n++
		}
	}
	return n
}

// NewNotFound creates a RESOURCE_NOT_FOUND error.
func NewNotFound(target, message string) *Error {
	return &Error{Code: CodeNotFound, Message: message, Target: target}
}

// NewPreconditionFailed creates a PRECONDITION_FAILED error.
func NewPreconditionFailed(target, expected, actual string) *Error {
	return &Error{
		Code:    CodePreconditionFailed,
		Message: fmt.Sprintf("etag mismatch: expected %s, found %s", expected, actual),
		Target:  target,
	}
}

// NewConflict creates a CONFLICT error.
func NewConflict(target, message string) *Error {
	return &Error{Code: CodeConflict, Message: message, Target: target}
}

// NewInvalidEntry creates an INVALID_ENTRY error for an unknown entry kind.
func NewInvalidEntry(kind string) *Error {
	return &Error{Code: CodeInvalidEntry, Message: "unsupported change-set entry kind " + kind}
}

// NewModelBuildFailed wraps a producer or extender error.
func NewModelBuildFailed(err error) *Error {
	return &Error{Code: CodeModelBuildFailed, Message: "model build failed", Err: err}
}

// NewFrozen creates a CONFIGURATION_FROZEN error for a contract.
func NewFrozen(contract string) *Error {
	return &Error{Code: CodeConfigurationFrozen, Message: "configuration is frozen", Target: contract}
}

// NewInvalidState creates an INVALID_STATE error.
func NewInvalidState(message string) *Error {
	return &Error{Code: CodeInvalidState, Message: message}
}

// NewInvalidQuery wraps a query validation failure.
func NewInvalidQuery(err error) *Error {
	return &Error{Code: CodeInvalidQuery, Message: "query rejected", Err: err}
}

// NewNotImplemented creates a NOT_IMPLEMENTED error for a missing contract.
func NewNotImplemented(contract string) *Error {
	return &Error{Code: CodeNotImplemented, Message: "no hook point registered", Target: contract}
}

// CodeOf returns the Code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsForbidden reports whether err is a FORBIDDEN error.
// Uses errors.As to handle wrapped errors.
func IsForbidden(err error) bool { return CodeOf(err) == CodeForbidden }

// IsValidation reports whether err is a VALIDATION_FAILED error.
func IsValidation(err error) bool { return CodeOf(err) == CodeValidationFailed }

// IsNotFound reports whether err is a RESOURCE_NOT_FOUND error.
func IsNotFound(err error) bool { return CodeOf(err) == CodeNotFound }

// IsPreconditionFailed reports whether err is a PRECONDITION_FAILED error.
func IsPreconditionFailed(err error) bool { return CodeOf(err) == CodePreconditionFailed }

// IsConflict reports whether err is a CONFLICT error.
func IsConflict(err error) bool { return CodeOf(err) == CodeConflict }

// IsFrozen reports whether err is a CONFIGURATION_FROZEN error.
func IsFrozen(err error) bool { return CodeOf(err) == CodeConfigurationFrozen }

// IsInvalidEntry reports whether err is an INVALID_ENTRY error.
func IsInvalidEntry(err error) bool { return CodeOf(err) == CodeInvalidEntry }
