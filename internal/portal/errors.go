// internal/portal/errors.go
package portal

import (
	"errors"
	"fmt"
)

// ErrorCode classifies failures of the portal protocol so callers can decide
// whether to abort the run or only the current task.
type ErrorCode string

const (
	// ErrCodeTokenNotFound means the anti-forgery token was missing from a page.
	ErrCodeTokenNotFound ErrorCode = "TOKEN_NOT_FOUND"
	// ErrCodeFormFieldNotFound means a mandatory evaluation field was missing.
	ErrCodeFormFieldNotFound ErrorCode = "FORM_FIELD_NOT_FOUND"
	// ErrCodeProtocolViolation means the portal answered with an unexpected shape.
	ErrCodeProtocolViolation ErrorCode = "PROTOCOL_VIOLATION"
	ErrCodeTransport         ErrorCode = "TRANSPORT"
	// ErrCodeAuthFailure is fatal for the run.
	ErrCodeAuthFailure       ErrorCode = "AUTH_FAILURE"
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
)

// Error is the structured error returned by portal and evaluation operations.
type Error struct {
	Code ErrorCode
	// Op names the operation that failed, e.g. "acquire-token".
	Op     string
	Detail string
	// Body holds the raw server response when one was received.
	Body []byte
	Err  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Code)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so the sentinels below work
// with errors.Is regardless of Op or Detail.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrTokenNotFound     = &Error{Code: ErrCodeTokenNotFound}
	ErrFormFieldNotFound = &Error{Code: ErrCodeFormFieldNotFound}
	ErrProtocolViolation = &Error{Code: ErrCodeProtocolViolation}
	ErrTransport         = &Error{Code: ErrCodeTransport}
	ErrAuthFailure       = &Error{Code: ErrCodeAuthFailure}
	ErrInvalidTransition = &Error{Code: ErrCodeInvalidTransition}
)

// NewError builds an *Error.
func NewError(code ErrorCode, op, detail string, err error) *Error {
	return &Error{Code: code, Op: op, Detail: detail, Err: err}
}

// WithBody attaches the raw response body and returns the receiver.
func (e *Error) WithBody(body []byte) *Error {
	e.Body = body
	return e
}

// CodeOf extracts the ErrorCode from err, or "" if err carries none.
func CodeOf(err error) ErrorCode {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// BodyOf extracts the raw server response attached to err, if any.
func BodyOf(err error) []byte {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Body
	}
	return nil
}
