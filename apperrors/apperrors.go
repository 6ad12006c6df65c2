// Package apperrors defines the failure taxonomy shared by the core
// components and the HTTP boundary. Every failure carries a Kind and a
// human-readable reason; the boundary decides how a Kind is reported.
package apperrors

import (
	"errors"
	"fmt"
)

type Kind int

const (
	Internal Kind = iota
	Unauthenticated
	NotFound
	Conflict
	InvalidQuery
	InvalidArgument
	Contention
)

func (k Kind) String() string {
	switch k {
	case Unauthenticated:
		return "unauthenticated"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case InvalidQuery:
		return "invalid_query"
	case InvalidArgument:
		return "invalid_argument"
	case Contention:
		return "contention"
	default:
		return "internal"
	}
}

// Error is a classified failure.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same Kind whose Reason is empty, so
// kind sentinels such as ErrNotFound work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Reason == "" && t.Err == nil && t.Kind == e.Kind
}

// Kind sentinels for errors.Is.
var (
	ErrInternal        = &Error{Kind: Internal}
	ErrUnauthenticated = &Error{Kind: Unauthenticated}
	ErrNotFound        = &Error{Kind: NotFound}
	ErrConflict        = &Error{Kind: Conflict}
	ErrInvalidQuery    = &Error{Kind: InvalidQuery}
	ErrInvalidArgument = &Error{Kind: InvalidArgument}
	ErrContention      = &Error{Kind: Contention}
)

func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, reason string) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// Unauthorized is returned by every identity-requiring operation called
// without a caller identity.
func Unauthorized() *Error {
	return New(Unauthenticated, "Authorization required")
}

// KindOf reports the Kind of err. Unclassified errors are Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// ReasonOf returns the human-readable reason of err.
func ReasonOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Reason != "" {
		return e.Reason
	}
	return err.Error()
}
