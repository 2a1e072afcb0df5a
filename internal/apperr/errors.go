// Package apperr classifies errors so the bot and CLI can react without string matching.
package apperr

import (
	"errors"
	"fmt"
)

// Code is a semantic classification shared by the bot and the CLI.
type Code string

const (
	CodeInvalid      Code = "INVALID"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeRemote       Code = "REMOTE"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeConfig       Code = "CONFIG"
	CodeInternal     Code = "INTERNAL"
)

// Error carries a code, a user-facing message and the wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is makes errors.Is match two *Error values with the same code and message,
// so sentinels below work through wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t == nil || e == nil {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// New builds a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap wraps err with a code and message.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Invalid wraps a validation failure.
func Invalid(message string, err error) *Error {
	return Wrap(CodeInvalid, message, err)
}

// Remote wraps a failure talking to the remote task list.
func Remote(message string, err error) *Error {
	return Wrap(CodeRemote, message, err)
}

var (
	ErrTaskNotFound      = New(CodeNotFound, "task not found")
	ErrAmbiguousID       = New(CodeInvalid, "several tasks match that id")
	ErrDateRequired      = New(CodeInvalid, "recurring task needs a start date")
	ErrSyncInProgress    = New(CodeConflict, "sync already in progress")
	ErrTaskListRequired  = New(CodeConfig, "task list id is not configured")
	ErrClientIDRequired  = New(CodeConfig, "google client id is not configured")
	ErrSyncNotConfigured = New(CodeConfig, "google tasks sync is not configured")
	ErrUnauthorized      = New(CodeUnauthorized, "remote rejected credentials")
	ErrPermissionMissing = New(CodeUnauthorized, "notification permission not granted")
)

// Is reports whether the outermost *Error in err's chain has the given code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
