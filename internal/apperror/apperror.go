package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies failures at component boundaries. The HTTP layer maps kinds to status codes.
type Kind string

const (
	NotFound        Kind = "NOT_FOUND"
	UpstreamFailure Kind = "UPSTREAM_FAILURE"
	InvalidInput    Kind = "INVALID_INPUT"
)

// Error is a tagged failure carrying a kind, a human-readable message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind, so errors.Is(err, apperror.New(NotFound, ""))
// and errors.Is(err, ErrNotFound) work regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound        = &Error{Kind: NotFound}
	ErrUpstreamFailure = &Error{Kind: UpstreamFailure}
	ErrInvalidInput    = &Error{Kind: InvalidInput}
)

// New returns an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap returns an Error of the given kind wrapping err.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Upstream wraps err as an UpstreamFailure with a formatted message.
func Upstream(err error, format string, args ...interface{}) *Error {
	return Wrap(UpstreamFailure, fmt.Sprintf(format, args...), err)
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// MessageOf returns the message of the first *Error in err's chain, falling back to err.Error().
func MessageOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
