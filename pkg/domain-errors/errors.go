// Package domainerrors carries the error taxonomy shared by services and the
// HTTP layer. Services return *Error values; transport code maps the Code to a
// status and wire code without inspecting messages.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies a class of domain failure.
type Code string

const (
	CodeInvalidRequest     Code = "invalid_request"
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeInvalidInput       Code = "invalid_input"
	CodeNotFound           Code = "not_found"
	CodePreHookValidation  Code = "pre_hook_validation_failed"
	CodeUnauthorized       Code = "unauthorized"
	// CodeInvalidCredentials is a failed Basic Auth check on a callback endpoint.
	CodeInvalidCredentials Code = "invalid_credentials"
	CodeForbidden          Code = "forbidden"
	CodeConflict           Code = "conflict"
	CodeExecutionFailed    Code = "execution_failed"
	CodeInvariantViolation Code = "invariant_violation"
	CodeInternal           Code = "internal_error"
)

// Error is a domain error with an optional list of independent violations.
type Error struct {
	Code     Code
	Message  string
	Messages []string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a domain error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// WithMessages creates a domain error carrying every violation found.
// The first message doubles as the description.
func WithMessages(code Code, messages []string) *Error {
	desc := ""
	if len(messages) > 0 {
		desc = messages[0]
	}
	return &Error{Code: code, Message: desc, Messages: messages}
}

// As extracts the outermost domain error from err.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	de, ok := As(err)
	return ok && de.Code == code
}

// Is is an alias of HasCode kept for handler readability.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}
