package order

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Zhima-Mochi/minishop-orders/internal/apperr"
	"github.com/Zhima-Mochi/minishop-orders/internal/application"
	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
)

const (
	useCaseCancelOrder = "order.cancel"

	ReasonCustomerRequest = "customer_request"
	ReasonAdminCancel     = "cancelled_by_admin"
	ReasonPaymentTimeout  = "payment_timeout"
)

type CancelOrderCommand struct {
	OrderID   string
	Requester Requester
	Reason    string
}

// CancelOrderUseCase releases what an order still holds and closes it. Paid orders are refunded.
type CancelOrderUseCase struct {
	w *Workflow
}

var _ application.UseCase[CancelOrderCommand, *domain.Order] = (*CancelOrderUseCase)(nil)

func NewCancelOrderUseCase(w *Workflow) *CancelOrderUseCase {
	return &CancelOrderUseCase{w: w}
}

func (uc *CancelOrderUseCase) Execute(ctx context.Context, cmd CancelOrderCommand) (_ *domain.Order, err error) {
	w := uc.w
	ctx, exec := w.begin(ctx, useCaseCancelOrder, "CancelOrder",
		attribute.String("order.id", cmd.OrderID),
	)
	defer func() { exec.end(err) }()

	if strings.TrimSpace(cmd.OrderID) == "" {
		exec.fail("ORDER_ID_REQUIRED")
		return nil, apperr.Validation("order id is required")
	}
	exec.with(observability.F("order_id", cmd.OrderID))

	unlock, err := w.lockOrder(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	o, err := w.load(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if !cmd.Requester.Admin && !cmd.Requester.owns(o.CustomerID) {
		exec.fail("NOT_ORDER_OWNER")
		return nil, apperr.Unauthorized("only the customer or an admin can cancel this order")
	}
	if o.Status == domain.StatusCancelled {
		exec.note("ALREADY_CANCELLED")
		return o, nil
	}

	reason := cmd.Reason
	if reason == "" {
		reason = ReasonCustomerRequest
		if cmd.Requester.Admin && !cmd.Requester.owns(o.CustomerID) {
			reason = ReasonAdminCancel
		}
	}

	if o.PaymentStatus == domain.PaymentPaid {
		err = w.refund(ctx, o, reason)
	} else {
		err = w.cancel(ctx, o, reason)
	}
	if err != nil {
		return nil, err
	}
	exec.with(observability.F("reason", reason))
	exec.span.SetAttributes(orderAttrs(o)...)
	return o, nil
}

// cancel releases outstanding reservations and closes an unpaid order. When a release fails
// the lines already released are persisted and the order stays open for a retry.
func (w *Workflow) cancel(ctx context.Context, o *domain.Order, reason string) error {
	if err := domain.ValidateStatusChange(o.Status, domain.StatusCancelled, o.PaymentStatus); err != nil {
		return classify("cancel order", err)
	}
	ctx, cancel, err := detach(ctx)
	if err != nil {
		return classify("release reservations", err)
	}
	defer cancel()

	if err := w.releaseReserved(ctx, o); err != nil {
		if saveErr := w.save(ctx, o); saveErr != nil {
			err = errors.Join(err, saveErr)
		}
		return apperr.Wrap(apperr.KindInternal, "release reservations", err)
	}
	if err := o.Cancel(reason); err != nil {
		return classify("cancel order", err)
	}
	if err := w.save(ctx, o); err != nil {
		return err
	}
	w.voidIntent(ctx, o)
	w.publish(ctx, domain.NewOrderCancelledEvent(o))
	return nil
}
