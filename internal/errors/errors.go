package errors

import (
	"fmt"

	crdberrors "github.com/cockroachdb/errors"
)

// Error is a coded error. Codes follow SQLSTATE so that a driver can
// surface them unchanged to a client.
type Error struct {
	Code     string // SQLSTATE code
	Message  string // Primary error message
	Detail   string // Optional detailed error message
	Hint     string // Optional hint message
	Table    string // Table name if applicable
	Column   string // Column name if applicable
	Operator string // Plan operator if applicable
	Cause    error  // Underlying error, if any
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if e.Operator != "" {
		msg = fmt.Sprintf("%s: %s", e.Operator, msg)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s (SQLSTATE %s) DETAIL: %s", msg, e.Code, e.Detail)
	}
	return fmt.Sprintf("%s (SQLSTATE %s)", msg, e.Code)
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error { return e.Cause }

// New creates a new Error with the given code and message
func New(code string, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new Error with a formatted message
func Newf(code string, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WithDetail adds detail to the error
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// WithDetailf adds formatted detail to the error
func (e *Error) WithDetailf(format string, args ...interface{}) *Error {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// WithHint adds a hint to the error
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// WithTable sets the table name
func (e *Error) WithTable(table string) *Error {
	e.Table = table
	return e
}

// WithColumn sets the column name
func (e *Error) WithColumn(column string) *Error {
	e.Column = column
	return e
}

// WithOperator sets the plan operator the error was raised for
func (e *Error) WithOperator(op string) *Error {
	e.Operator = op
	return e
}

// WithCause records the underlying error
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// InternalErrorf creates an internal error
func InternalErrorf(format string, args ...interface{}) *Error {
	return Newf(InternalError, format, args...)
}

// FeatureNotSupportedError creates a feature not supported error
func FeatureNotSupportedError(feature string) *Error {
	return Newf(FeatureNotSupported, "%s is not supported", feature)
}

// IsError checks if err, or an error it wraps, is an Error with a specific code
func IsError(err error, code string) bool {
	e := asError(err)
	return e != nil && e.Code == code
}

// GetError attempts to extract an Error from any error
func GetError(err error) *Error {
	if err == nil {
		return nil
	}
	if e := asError(err); e != nil {
		return e
	}
	// Wrap generic errors as internal errors
	return InternalErrorf("%v", err).WithCause(err)
}

func asError(err error) *Error {
	var e *Error
	if err != nil && crdberrors.As(err, &e) {
		return e
	}
	return nil
}

// IsAssertionFailure reports whether err marks a broken invariant rather
// than a data problem.
func IsAssertionFailure(err error) bool {
	return err != nil && crdberrors.HasAssertionFailure(err)
}
