package order

import (
	"context"
	"errors"

	"github.com/Zhima-Mochi/minishop-orders/internal/apperr"
	domcatalog "github.com/Zhima-Mochi/minishop-orders/internal/domain/catalog"
	dominv "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	dompay "github.com/Zhima-Mochi/minishop-orders/internal/domain/payment"
)

// classify maps domain and adapter failures onto apperr kinds. Errors that are
// already classified pass through untouched.
func classify(msg string, err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}

	switch {
	case errors.Is(err, dominv.ErrInsufficientStock):
		return apperr.Wrap(apperr.KindInsufficientInventory, msg, err)
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, dominv.ErrNotFound),
		errors.Is(err, domcatalog.ErrNotFound),
		errors.Is(err, dompay.ErrIntentNotFound):
		return apperr.Wrap(apperr.KindNotFound, msg, err)
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrUnreleased):
		return apperr.Wrap(apperr.KindInvalidTransition, msg, err)
	case errors.Is(err, domain.ErrDuplicateOrderNumber):
		return apperr.Wrap(apperr.KindDuplicateOrderNumber, msg, err)
	case errors.Is(err, domain.ErrStaleVersion),
		errors.Is(err, domain.ErrConflict):
		return apperr.Wrap(apperr.KindConflict, msg, err)
	case errors.Is(err, domain.ErrNoItems),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidPrice),
		errors.Is(err, domain.ErrMissingAddress),
		errors.Is(err, dominv.ErrInvalidQuantity),
		errors.Is(err, domcatalog.ErrInactive),
		errors.Is(err, domcatalog.ErrInvalidPrice),
		errors.Is(err, domcatalog.ErrFractionalMinor):
		return apperr.Wrap(apperr.KindValidation, msg, err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperr.Wrap(apperr.KindTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return apperr.Wrap(apperr.KindCanceled, msg, err)
	default:
		return apperr.Wrap(apperr.KindInternal, msg, err)
	}
}

// statusCode turns an error kind into the upper snake status recorded on spans and logs.
func statusCode(err error) string {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return "NOT_FOUND"
	case apperr.KindValidation:
		return "VALIDATION_FAILED"
	case apperr.KindInsufficientInventory:
		return "INSUFFICIENT_INVENTORY"
	case apperr.KindUnauthorized:
		return "UNAUTHORIZED"
	case apperr.KindInvalidTransition:
		return "INVALID_TRANSITION"
	case apperr.KindPaymentNotCompleted:
		return "PAYMENT_NOT_COMPLETED"
	case apperr.KindDuplicateOrderNumber:
		return "DUPLICATE_ORDER_NUMBER"
	case apperr.KindPaymentGateway:
		return "PAYMENT_GATEWAY_ERROR"
	case apperr.KindConflict:
		return "CONFLICT"
	case apperr.KindTimeout:
		return "TIMEOUT"
	case apperr.KindCanceled:
		return "CONTEXT_CANCELED"
	default:
		return "INTERNAL"
	}
}
