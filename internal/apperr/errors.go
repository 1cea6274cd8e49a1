// Package apperr defines the error taxonomy shared by every service.
package apperr

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Kind classifies a failure independently of the layer that produced it.
type Kind string

const (
	KindNotFound           Kind = "NOT_FOUND"
	KindInvalidInput       Kind = "INVALID_INPUT"
	KindInvalidState       Kind = "INVALID_STATE"
	KindInsufficient       Kind = "INSUFFICIENT_RESOURCES"
	KindDatabase           Kind = "DATABASE_ERROR"
	KindTransaction        Kind = "TRANSACTION_ERROR"
	KindExternalService    Kind = "EXTERNAL_SERVICE"
	KindServiceUnavailable Kind = "SERVICE_UNAVAILABLE"
	KindInternal           Kind = "INTERNAL"
)

// Error is a classified failure. Err is the optional underlying cause.
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

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error carrying a stack trace.
func New(kind Kind, format string, args ...any) error {
	return errors.WithStack(&Error{Kind: kind, Message: fmt.Sprintf(format, args...)})
}

// Wrap classifies err. A nil err stays nil.
func Wrap(err error, kind Kind, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(&Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err})
}

func NotFound(format string, args ...any) error {
	return New(KindNotFound, format, args...)
}

func InvalidInput(format string, args ...any) error {
	return New(KindInvalidInput, format, args...)
}

func InvalidState(format string, args ...any) error {
	return New(KindInvalidState, format, args...)
}

// KindOf returns the kind of the outermost classified error in the chain,
// or KindInternal when err was never classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind onto the status code used by the HTTP surface.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindInvalidState:
		return http.StatusConflict
	case KindInsufficient:
		return http.StatusUnprocessableEntity
	case KindExternalService:
		return http.StatusBadGateway
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FromHTTPStatus is the inverse of HTTPStatus, used by clients that receive a
// remote error without a kind in the body.
func FromHTTPStatus(status int) Kind {
	switch status {
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusBadRequest:
		return KindInvalidInput
	case http.StatusConflict:
		return KindInvalidState
	case http.StatusUnprocessableEntity:
		return KindInsufficient
	case http.StatusServiceUnavailable:
		return KindServiceUnavailable
	case http.StatusBadGateway:
		return KindExternalService
	default:
		return KindInternal
	}
}
