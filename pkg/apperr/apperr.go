// Package apperr defines the error kinds shared by services and the HTTP layer.
//
// Services return *Error values (or errors implementing Kinded) and handlers
// translate them into status codes with httputil.WriteAppError. Anything that
// carries no kind is treated as an internal failure.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure for callers.
type Kind int

const (
	Internal Kind = iota
	Validation
	Unauthenticated
	Forbidden
	NotFound
	Conflict
	RateLimited
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Unauthenticated:
		return "unauthenticated"
	case Forbidden:
		return "forbidden"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case RateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// HTTPStatus returns the response status for the kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case Validation:
		return http.StatusBadRequest
	case Unauthenticated:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case RateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Kinded is implemented by errors that know their own kind.
type Kinded interface {
	error
	Kind() Kind
}

// Error is a classified error with a client-safe message.
type Error struct {
	kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Kind returns the error classification.
func (e *Error) Kind() Kind { return e.kind }

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{kind: kind, Message: message}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{kind: kind, Message: message, Err: err}
}

func Validationf(format string, args ...interface{}) *Error {
	return New(Validation, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...interface{}) *Error {
	return New(NotFound, fmt.Sprintf(format, args...))
}

func Forbiddenf(format string, args ...interface{}) *Error {
	return New(Forbidden, fmt.Sprintf(format, args...))
}

func Conflictf(format string, args ...interface{}) *Error {
	return New(Conflict, fmt.Sprintf(format, args...))
}

func Unauthenticatedf(format string, args ...interface{}) *Error {
	return New(Unauthenticated, fmt.Sprintf(format, args...))
}

// KindOf reports the kind of err, or Internal if it carries none.
func KindOf(err error) Kind {
	var k Kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return Internal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the client-facing message for err. Internal errors never
// expose their cause.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.kind != Internal {
		return e.Message
	}
	var k Kinded
	if errors.As(err, &k) && k.Kind() != Internal {
		return k.Error()
	}
	return "internal error"
}
