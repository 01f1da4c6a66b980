package apperr

import (
	"errors"
	"fmt"
)

// Code classifies a failure raised while handling a chat event.
type Code string

const (
	CodeValidation Code = "VALIDATION_ERROR"
	CodeForbidden  Code = "FORBIDDEN"
	CodeUpstream   Code = "UPSTREAM_ERROR"
	CodeUnknown    Code = "UNKNOWN_INPUT"
)

// Error is the typed error returned by workflow handlers. Message is
// user-facing; Cause is only logged.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Validation reports malformed free-text input. The caller is expected to
// have re-registered its continuation before returning it.
func Validation(message string) *Error {
	return &Error{Code: CodeValidation, Message: message}
}

// Forbidden reports that the caller's role does not permit the action.
func Forbidden(message string) *Error {
	return &Error{Code: CodeForbidden, Message: message}
}

// Upstream wraps a Data API failure.
func Upstream(message string, cause error) *Error {
	return &Error{Code: CodeUpstream, Message: message, Cause: cause}
}

// Unknown reports input no route matched.
func Unknown() *Error {
	return &Error{Code: CodeUnknown, Message: "unknown input"}
}

// CodeOf returns the code carried by err. Errors that are not *Error are
// classified as upstream failures.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUpstream
}

// MessageOf returns the user-facing message of err, or fallback.
func MessageOf(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return fallback
}
