// Package amderr implements the error taxonomy of spec.md §7 as a typed
// error with Go-idiomatic errors.Is/errors.As support, in place of the
// source language's exception hierarchy (spec.md §9 Design Notes).
package amderr

import (
	"errors"
	"fmt"
)

// Kind enumerates the error classes from spec.md §7.
type Kind int

const (
	// InvalidArgument — malformed parameters, missing required fields;
	// recoverable at the call site.
	InvalidArgument Kind = iota
	// FileNotFound — asset IO; fatal to the load operation, server stays up.
	FileNotFound
	// FileRead — asset IO; fatal to the load operation, server stays up.
	FileRead
	// External — backend library failure; fatal to the worker load.
	External
	// Connection — transport unreachable; the only class clients retry.
	Connection
	// BadStatus — remote server returned a structured error; surfaced verbatim.
	BadStatus
	// Runtime — unexpected internal state; fatal to the operation.
	Runtime
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid_argument"
	case FileNotFound:
		return "file_not_found_error"
	case FileRead:
		return "file_read_error"
	case External:
		return "external_error"
	case Connection:
		return "connection_error"
	case BadStatus:
		return "bad_status"
	case Runtime:
		return "runtime_error"
	default:
		return "unknown_error"
	}
}

// Error is the taxonomy-tagged error type used across the core.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, letting
// errors.Is(err, amderr.New(amderr.Connection, "")) match by kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New constructs an *Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap constructs an *Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error, and
// whether it matched.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
