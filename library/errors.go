package library

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// Code classifies a ledger failure.
type Code string

const (
	CodeDuplicateKey       Code = "DUPLICATE_KEY"
	CodeUnavailable        Code = "UNAVAILABLE"
	CodeNotFound           Code = "NOT_FOUND"
	CodeInvalidState       Code = "INVALID_STATE"
	CodePreconditionFailed Code = "PRECONDITION_FAILED"
	CodeInvalidArgument    Code = "INVALID_ARGUMENT"
	CodeStorageFailure     Code = "STORAGE_FAILURE"
)

// Error is the typed failure returned by every ledger operation.
type Error struct {
	Code    Code
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code, so callers can write
// errors.Is(err, library.ErrUnavailable).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrDuplicateKey       = &Error{Code: CodeDuplicateKey}
	ErrUnavailable        = &Error{Code: CodeUnavailable}
	ErrNotFound           = &Error{Code: CodeNotFound}
	ErrInvalidState       = &Error{Code: CodeInvalidState}
	ErrPreconditionFailed = &Error{Code: CodePreconditionFailed}
	ErrInvalidArgument    = &Error{Code: CodeInvalidArgument}
	ErrStorageFailure     = &Error{Code: CodeStorageFailure}
)

func newError(code Code, op, format string, args ...any) error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// CodeOf reports the code of err. Errors that did not come from the ledger
// are storage failures.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeStorageFailure
}

// IsExpected reports whether err is a logical failure the caller can act on,
// as opposed to a storage failure.
func IsExpected(err error) bool {
	c := CodeOf(err)
	return c != "" && c != CodeStorageFailure
}

// classify turns a driver error into a ledger error. Unique violations become
// DuplicateKey; anything else unexpected is a StorageFailure.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return &Error{Code: CodeDuplicateKey, Op: op, Message: sqliteErr.Error(), Err: err}
		}
	}
	return &Error{Code: CodeStorageFailure, Op: op, Err: err}
}
