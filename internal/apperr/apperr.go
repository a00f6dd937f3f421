// Package apperr classifies failures surfaced by the order and inventory use cases.
//
// Every error returned upward carries a Kind. Kinds map onto HTTP statuses and
// canonical gRPC codes so any transport can render them consistently.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
)

type Kind string

const (
	KindNotFound              Kind = "not_found"
	KindValidation            Kind = "validation"
	KindInsufficientInventory Kind = "insufficient_inventory"
	KindUnauthorized          Kind = "unauthorized"
	KindInvalidTransition     Kind = "invalid_transition"
	KindPaymentNotCompleted   Kind = "payment_not_completed"
	KindDuplicateOrderNumber  Kind = "duplicate_order_number"
	KindPaymentGateway        Kind = "payment_gateway_error"
	KindConflict              Kind = "conflict"
	KindTimeout               Kind = "timeout"
	KindCanceled              Kind = "canceled"
	KindInternal              Kind = "internal"
)

// Error is a classified failure. Err, when set, is the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message == "" && e.Err == nil:
		return string(e.Kind)
	case e.Err == nil:
		return e.Message
	case e.Message == "":
		return e.Err.Error()
	default:
		return e.Message + ": " + e.Err.Error()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind. A target with a message must match it too.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// Sentinels usable with errors.Is.
var (
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrValidation            = &Error{Kind: KindValidation}
	ErrInsufficientInventory = &Error{Kind: KindInsufficientInventory}
	ErrUnauthorized          = &Error{Kind: KindUnauthorized}
	ErrInvalidTransition     = &Error{Kind: KindInvalidTransition}
	ErrPaymentNotCompleted   = &Error{Kind: KindPaymentNotCompleted}
	ErrDuplicateOrderNumber  = &Error{Kind: KindDuplicateOrderNumber}
	ErrPaymentGateway        = &Error{Kind: KindPaymentGateway}
	ErrConflict              = &Error{Kind: KindConflict}
	ErrInternal              = &Error{Kind: KindInternal}
)

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind. A nil err yields nil.
func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Validation(msg string) *Error   { return New(KindValidation, msg) }
func Unauthorized(msg string) *Error { return New(KindUnauthorized, msg) }
func NotFound(msg string) *Error     { return New(KindNotFound, msg) }

// KindOf reports the kind of err, looking through wrapping.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindInternal
	}
}

// Message returns the client-safe message for err. Internal failures hide their cause.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		if e.Message != "" {
			return e.Message
		}
		return e.Error()
	}
	switch KindOf(err) {
	case KindTimeout:
		return "request timed out"
	case KindCanceled:
		return "request canceled"
	default:
		return "internal error"
	}
}

func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusForbidden
	case KindInsufficientInventory,
		KindInvalidTransition,
		KindPaymentNotCompleted,
		KindDuplicateOrderNumber,
		KindConflict:
		return http.StatusConflict
	case KindPaymentGateway:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindCanceled:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Code maps err onto the canonical gRPC status code.
func Code(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	switch KindOf(err) {
	case KindNotFound:
		return codes.NotFound
	case KindValidation:
		return codes.InvalidArgument
	case KindUnauthorized:
		return codes.PermissionDenied
	case KindInsufficientInventory, KindInvalidTransition, KindPaymentNotCompleted:
		return codes.FailedPrecondition
	case KindDuplicateOrderNumber:
		return codes.AlreadyExists
	case KindConflict:
		return codes.Aborted
	case KindPaymentGateway:
		return codes.Unavailable
	case KindTimeout:
		return codes.DeadlineExceeded
	case KindCanceled:
		return codes.Canceled
	default:
		return codes.Internal
	}
}
