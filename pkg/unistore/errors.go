package unistore

import (
	"github.com/rzpsarthak13/unistore/internal/core"
)

// Error is the typed error carried by every rejected request.
type Error = core.Error

// ErrorKind classifies failures.
type ErrorKind = core.ErrorKind

const (
	ArgumentException     = core.KindArgument
	ConstraintError       = core.KindConstraint
	InvalidStateError     = core.KindInvalidState
	InvalidOperationError = core.KindInvalidOperation
	NotImplementedError   = core.KindNotImplemented
	SqlParseError         = core.KindSqlParse
	InternalError         = core.KindInternal
)

// KindOf extracts the kind from an error chain.
func KindOf(err error) ErrorKind { return core.KindOf(err) }

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool { return core.IsKind(err, kind) }
