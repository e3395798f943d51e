// Package errs implements the tagged-result error model the core reports
// through: every failure carries a Kind that callers can branch on instead
// of matching on message text.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed.
type Kind int

const (
	// Internal marks a bug or precondition violation.
	Internal Kind = iota
	// InvalidArgument marks a caller contract violation.
	InvalidArgument
	// NotFound marks an expected entity that is absent.
	NotFound
	// AlreadyExists marks a duplicate creation where uniqueness is required.
	AlreadyExists
	// Unimplemented marks a feature not present in this core.
	Unimplemented
	// IoError marks an underlying storage failure.
	IoError
	// Corruption marks a checksum mismatch, bad format, or truncation.
	Corruption
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid_argument"
	case NotFound:
		return "not_found"
	case AlreadyExists:
		return "already_exists"
	case Unimplemented:
		return "unimplemented"
	case IoError:
		return "io_error"
	case Corruption:
		return "corruption"
	default:
		return "internal"
	}
}

// Error is the tagged error carried across every core layer.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a tagged error for op with an optional wrapped cause.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

func InvalidArgf(op, format string, args ...any) *Error {
	return New(InvalidArgument, op, fmt.Errorf(format, args...))
}

func NotFoundf(op, format string, args ...any) *Error {
	return New(NotFound, op, fmt.Errorf(format, args...))
}

func AlreadyExistsf(op, format string, args ...any) *Error {
	return New(AlreadyExists, op, fmt.Errorf(format, args...))
}

func Corruptf(op, format string, args ...any) *Error {
	return New(Corruption, op, fmt.Errorf(format, args...))
}

func IoErrorf(op string, cause error) *Error {
	return New(IoError, op, cause)
}

func Internalf(op, format string, args ...any) *Error {
	return New(Internal, op, fmt.Errorf(format, args...))
}

func Unimplementedf(op, format string, args ...any) *Error {
	return New(Unimplemented, op, fmt.Errorf(format, args...))
}
