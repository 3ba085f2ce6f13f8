// Package apperr defines the error kinds surfaced by the service layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure for the caller.
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindNotFound:
		return "not_found"
	default:
		return "internal_error"
	}
}

// HTTPStatus maps the kind to a response status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is a typed failure carrying a caller-facing message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// BadRequest reports malformed or invalid caller input.
func BadRequest(format string, args ...any) error {
	return &Error{Kind: KindBadRequest, Message: fmt.Sprintf(format, args...)}
}

// BadRequestWrap reports invalid input detected by a lower layer.
func BadRequestWrap(err error, message string) error {
	if message == "" {
		message = "Operation failed"
	}
	return &Error{Kind: KindBadRequest, Message: message, Err: err}
}

// NotFound reports a missing entity.
func NotFound(entity string, id any) error {
	msg := "Resource not found"
	switch {
	case entity != "" && id != nil:
		msg = fmt.Sprintf("%s with id '%v' was not found", entity, id)
	case entity != "":
		msg = fmt.Sprintf("%s was not found", entity)
	}
	return &Error{Kind: KindNotFound, Message: msg}
}

// Internal wraps a failure not attributable to caller input.
func Internal(err error) error {
	return &Error{Kind: KindInternal, Message: "Internal server error", Err: err}
}

// KindOf returns the kind of err; errors that are not *Error are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// Message returns the caller-facing message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return "Internal server error"
}
