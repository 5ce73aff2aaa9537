// Package apperr defines the error taxonomy shared by the services and the
// HTTP layer. Services return these; handlers map them to status codes.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an application error.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindAuth
	KindNotFound
	KindSession
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindConflict:
		return "conflict_error"
	case KindAuth:
		return "auth_error"
	case KindNotFound:
		return "not_found_error"
	case KindSession:
		return "session_error"
	default:
		return "internal_error"
	}
}

// Error is an application error with a client-safe message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(msg string) error { return &Error{Kind: KindValidation, Message: msg} }

func Conflict(msg string) error { return &Error{Kind: KindConflict, Message: msg} }

func Auth(msg string) error { return &Error{Kind: KindAuth, Message: msg} }

func NotFound(msg string) error { return &Error{Kind: KindNotFound, Message: msg} }

// Session wraps a failure to persist or load session state.
func Session(msg string, err error) error {
	return &Error{Kind: KindSession, Message: msg, Err: err}
}

// Internal wraps an unexpected failure. The message is never shown to clients.
func Internal(msg string, err error) error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps err to a response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindAuth:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the text safe to send to a client. Internal and
// session failures collapse to a generic message.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal && e.Kind != KindSession {
		return e.Message
	}
	return "Internal Server Error"
}
