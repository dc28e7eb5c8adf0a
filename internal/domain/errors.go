package domain

import (
	"errors"
	"fmt"
)

// Error codes surfaced to callers and mapped by the HTTP layer.
const (
	CodeInvalidInput      = "invalid_input"
	CodeMalformedPlan     = "malformed_plan"
	CodeUnsupportedAction = "unsupported_action"
	CodeFetchFailed       = "fetch_failed"
	CodeTimeout           = "timeout"
	CodeEmptyResult       = "empty_result"
	CodeStaleResponse     = "stale_response"
	CodeInterpreter       = "interpreter_failed"
	CodeNotFound          = "not_found"
)

// Error is a coded error with a stable Code for API mapping.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds a coded error.
func NewError(code, msg string, cause error) error {
	return &Error{Code: code, Message: msg, Cause: cause}
}

// CodeOf returns the code of the first coded error in err's chain, or "".
func CodeOf(err error) string {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}
