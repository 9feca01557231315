// Package apperr defines the error taxonomy surfaced to chat users.
package apperr

import (
	"errors"
	"fmt"
)

// Code classifies an application error.
type Code string

const (
	CodeNotFound   Code = "NOT_FOUND"
	CodeConflict   Code = "CONFLICT"
	CodeForbidden  Code = "FORBIDDEN"
	CodeValidation Code = "VALIDATION_ERROR"
	CodeInternal   Code = "INTERNAL_ERROR"
)

// Error is a classified error. Message is safe to show to end users
// unless Code is CodeInternal.
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

// New returns a classified error without a cause.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Wrap classifies cause under code.
func Wrap(cause error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Cause: cause}
}

func NotFound(msg string) *Error   { return New(CodeNotFound, msg) }
func Conflict(msg string) *Error   { return New(CodeConflict, msg) }
func Forbidden(msg string) *Error  { return New(CodeForbidden, msg) }
func Validation(msg string) *Error { return New(CodeValidation, msg) }

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// UserMessage renders err for a chat reply. Internal errors collapse to fallback.
func UserMessage(err error, fallback string) string {
	var ae *Error
	if !errors.As(err, &ae) || ae.Code == CodeInternal {
		return fallback
	}
	return fmt.Sprintf("[%s] %s", ae.Code, ae.Message)
}
