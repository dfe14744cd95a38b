package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies storage errors so callers can react without string
// matching. Kinds mirror the failure classes surfaced by the public API.
type ErrorKind string

const (
	// KindArgument indicates inputs that violate the declared shape or range.
	KindArgument ErrorKind = "ArgumentException"

	// KindConstraint indicates a uniqueness violation, an add collision,
	// an unknown backend, or an edit of a non-editable schema.
	KindConstraint ErrorKind = "ConstraintError"

	// KindInvalidState indicates use of a cursor after exhaustion or
	// outside its owning transaction.
	KindInvalidState ErrorKind = "InvalidStateError"

	// KindInvalidOperation indicates a cursor moved against its direction
	// or driven before it was positioned.
	KindInvalidOperation ErrorKind = "InvalidOperationError"

	// KindNotImplemented indicates a feature outside the accepted SQL
	// grammar or cursor subset.
	KindNotImplemented ErrorKind = "NotImplementedError"

	// KindSqlParse indicates the query compiler could not interpret a SQL
	// fragment.
	KindSqlParse ErrorKind = "SqlParseError"

	// KindInternal indicates the backend reported an error; the backend
	// message is attached as the cause.
	KindInternal ErrorKind = "InternalError"
)

// Error is the typed error carried through every result handle.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause for errors.Is/errors.As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError builds a typed error with a formatted message.
func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError builds a typed error around a backend or library error.
func WrapError(kind ErrorKind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the ErrorKind from err. Untyped errors map to KindInternal;
// a nil err yields the empty kind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// IsKind reports whether KindOf(err) is kind: the first typed error in
// err's chain decides.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
