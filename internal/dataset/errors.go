package dataset

import "github.com/pkg/errors"

// ErrorKind classifies the fatal error taxonomy of the dataset builder: every
// error returned by this package can be attributed to exactly one kind.
type ErrorKind int

const (
	// ErrUnknown is never returned; it is the zero value of ErrorKind.
	ErrUnknown ErrorKind = iota

	// ErrConfig marks a misconfiguration: an unresolvable column role, a
	// malformed column spec, or an illegal combination of Config fields
	// (e.g. a data-embedded group column with multi-machine training that
	// isn't pre-partitioned).
	ErrConfig

	// ErrIO marks a failure to read or write a file, other than the expected
	// and harmless absence of a ".bin" cache next to the source file.
	ErrIO

	// ErrFormat marks an unrecognized or undecodable line/record format.
	ErrFormat

	// ErrData marks a built Dataset that violates a basic usability
	// invariant: no rows after partitioning, or zero usable features.
	ErrData

	// ErrState marks a runtime invariant violation. No function in this
	// package returns it at present: a query id that exceeds the declared
	// number of query groups is reported by a panic from
	// GroupPartitioner.ShouldKeep (exceptions.Panicf), not as an Error.
	ErrState
)

func (k ErrorKind) String() string {
	switch k {
	case ErrConfig:
		return "ConfigError"
	case ErrIO:
		return "IOError"
	case ErrFormat:
		return "FormatError"
	case ErrData:
		return "DataError"
	case ErrState:
		return "StateError"
	default:
		return "UnknownError"
	}
}

// Error wraps a Kind with an underlying cause. It is always fatal: this
// package never returns a partial Dataset alongside an Error.
type Error struct {
	kind  ErrorKind
	cause error
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{kind: kind, cause: errors.Errorf(format, args...)}
}

func wrapError(kind ErrorKind, err error, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, cause: errors.Wrapf(err, format, args...)}
}

// Kind reports which row of the error taxonomy this error belongs to.
func (e *Error) Kind() ErrorKind { return e.kind }

func (e *Error) Error() string { return e.kind.String() + ": " + e.cause.Error() }

func (e *Error) Cause() error { return e.cause }

func (e *Error) Unwrap() error { return e.cause }
